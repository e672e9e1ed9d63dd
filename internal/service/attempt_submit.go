package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-cbt/internal/attempt"
	"github.com/stemsi/exstem-cbt/internal/metrics"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/repository"
)

// Submit finalizes the attempt and returns its result summary. Calling it
// again on a finished attempt returns the same summary and changes nothing.
func (s *ExamTakingService) Submit(ctx context.Context, attemptID uuid.UUID, reason model.SubmitReason) (*model.ResultSummary, error) {
	sum, _, err := s.finish(ctx, attemptID, reason)
	return sum, err
}

// AutoSubmitOnTimeout closes an attempt whose time ran out. Racing with a
// manual submit is safe: whichever takes the attempt lock first wins.
func (s *ExamTakingService) AutoSubmitOnTimeout(ctx context.Context, attemptID uuid.UUID) (*model.ResultSummary, error) {
	sum, _, err := s.finish(ctx, attemptID, model.SubmitReasonTimeout)
	return sum, err
}

// CloseExpired is AutoSubmitOnTimeout for the watchdog. closed is false when
// the attempt had already been finished by someone else.
func (s *ExamTakingService) CloseExpired(ctx context.Context, attemptID uuid.UUID) (closed bool, err error) {
	_, closed, err = s.finish(ctx, attemptID, model.SubmitReasonTimeout)
	return closed, err
}

// ForceSubmit is the administrative close. An attempt with no answer at all
// becomes ABANDONED instead of COMPLETED.
func (s *ExamTakingService) ForceSubmit(ctx context.Context, attemptID uuid.UUID) (*model.ResultSummary, error) {
	sum, _, err := s.finish(ctx, attemptID, model.SubmitReasonForced)
	return sum, err
}

func (s *ExamTakingService) finish(ctx context.Context, attemptID uuid.UUID, reason model.SubmitReason) (*model.ResultSummary, bool, error) {
	_, exam, err := s.loadAttempt(ctx, attemptID)
	if err != nil {
		return nil, false, err
	}

	var (
		final        *model.ExamAttempt
		answers      []model.AnswerRecord
		transitioned bool
	)
	err = s.attempts.WithAttemptLock(ctx, attemptID, func(ctx context.Context, tx repository.AttemptTx) error {
		cur := tx.Attempt()
		var err error
		answers, err = tx.ListAnswers(ctx)
		if err != nil {
			return fmt.Errorf("list answers: %w", err)
		}
		if cur.Status.IsTerminal() {
			final = cur.Clone()
			return nil
		}
		if !s.sm.CanSubmit(cur) {
			return fmt.Errorf("%w: cannot submit a %s attempt", attempt.ErrInvalidTransition, cur.Status)
		}

		sum, err := tx.SumMarks(ctx)
		if err != nil {
			return fmt.Errorf("sum marks: %w", err)
		}
		cur.ObtainedMarks = sum
		cur.Percentage = attempt.Percentage(sum, exam.TotalMarks)

		if reason == model.SubmitReasonForced && !anyAnswered(answers) {
			transitioned, err = s.sm.Abandon(cur)
		} else {
			transitioned, err = s.sm.Submit(cur, reason)
		}
		if err != nil {
			return err
		}
		if err := tx.UpdateAttempt(ctx, cur); err != nil {
			return fmt.Errorf("update attempt: %w", err)
		}
		final = cur.Clone()
		return nil
	})
	if err != nil {
		return nil, false, s.handleLiveError(ctx, attemptID, err)
	}

	if transitioned {
		reasonLabel := ""
		if final.EndReason != nil {
			reasonLabel = string(*final.EndReason)
		}
		metrics.AttemptsFinished.WithLabelValues(string(final.Status), reasonLabel).Inc()
		s.log.Info().
			Str("attempt_id", attemptID.String()).
			Str("status", string(final.Status)).
			Str("reason", reasonLabel).
			Float64("obtained_marks", final.ObtainedMarks).
			Msg("Attempt finished")

		s.invalidate(ctx, attemptID)
		evt := model.EventAttemptCompleted
		if final.Status == model.AttemptStatusAbandoned {
			evt = model.EventAttemptAbandoned
		}
		s.publish(ctx, evt, final, nil)
	}

	questions, err := s.exams.ListQuestions(ctx, exam.ID)
	if err != nil {
		return nil, transitioned, fmt.Errorf("list questions: %w", err)
	}
	return buildResultSummary(final, exam, questions, answers), transitioned, nil
}

// ComputeResults returns the summary of a completed attempt once results are
// released. Stored grades are reused as-is.
func (s *ExamTakingService) ComputeResults(ctx context.Context, attemptID uuid.UUID) (*model.ResultSummary, error) {
	a, exam, err := s.loadAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if a.Status != model.AttemptStatusCompleted {
		return nil, fmt.Errorf("%w: attempt is %s", attempt.ErrResultsNotAvailable, a.Status)
	}
	if at := attempt.ResultsReleaseAt(a, exam); s.clock.Now().Before(at) {
		return nil, fmt.Errorf("%w: released at %s", attempt.ErrResultsNotAvailable, at.Format("2006-01-02 15:04:05 MST"))
	}

	answers, err := s.attempts.ListAnswers(ctx, attemptID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	questions, err := s.exams.ListQuestions(ctx, exam.ID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	return buildResultSummary(a, exam, questions, answers), nil
}

func anyAnswered(answers []model.AnswerRecord) bool {
	for i := range answers {
		if answers[i].Answered() {
			return true
		}
	}
	return false
}
