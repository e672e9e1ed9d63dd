package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-cbt/internal/attempt"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/repository"
	"github.com/stemsi/exstem-cbt/internal/sessioncache"
)

// GetSessionView returns the student's view of the attempt, served from the
// session cache when possible. Time remaining is always recomputed.
func (s *ExamTakingService) GetSessionView(ctx context.Context, attemptID uuid.UUID) (*model.SessionView, error) {
	view, err := s.cache.Get(ctx, attemptID)
	if err == nil {
		view.TimeRemainingSeconds = s.viewTimeRemaining(view)
		return view, nil
	}
	if !errors.Is(err, sessioncache.ErrMiss) {
		s.log.Warn().Err(err).Str("attempt_id", attemptID.String()).Msg("Session cache read failed, rebuilding")
	}

	_, exam, err := s.loadAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	questions, err := s.exams.ListQuestions(ctx, exam.ID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	return s.cacheView(ctx, attemptID, exam, questions)
}

// cacheView builds the view and stores it while holding the attempt lock.
// Mutators invalidate only after releasing that lock, so a view built from
// older records can never be written after their invalidation.
func (s *ExamTakingService) cacheView(ctx context.Context, attemptID uuid.UUID, exam *model.Exam, questions []model.Question) (*model.SessionView, error) {
	var view *model.SessionView
	err := s.attempts.WithAttemptLock(ctx, attemptID, func(ctx context.Context, tx repository.AttemptTx) error {
		answers, err := tx.ListAnswers(ctx)
		if err != nil {
			return fmt.Errorf("list answers: %w", err)
		}
		view = buildSessionView(tx.Attempt(), exam, questions, answers, s.clock.Now())
		if err := s.cache.Put(ctx, attemptID, view, s.viewTTL); err != nil {
			s.log.Warn().Err(err).Str("attempt_id", attemptID.String()).Msg("Failed to cache session view")
		}
		return nil
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrAttemptNotFound
	}
	if err != nil {
		return nil, err
	}
	return view, nil
}

func (s *ExamTakingService) viewTimeRemaining(v *model.SessionView) int {
	a := &model.ExamAttempt{StartTime: v.StartTime}
	exam := &model.Exam{DurationMinutes: v.DurationMinutes}
	return attempt.TimeRemaining(a, exam, s.clock.Now())
}

func buildSessionView(a *model.ExamAttempt, exam *model.Exam, questions []model.Question, answers []model.AnswerRecord, now time.Time) *model.SessionView {
	byID := make(map[uuid.UUID]*model.Question, len(questions))
	for i := range questions {
		byID[questions[i].ID] = &questions[i]
	}

	view := &model.SessionView{
		AttemptID:            a.ID,
		ExamID:               exam.ID,
		ExamTitle:            exam.Title,
		StudentID:            a.StudentID,
		Status:               a.Status,
		DurationMinutes:      exam.DurationMinutes,
		StartTime:            a.StartTime,
		ExpiresAt:            a.Deadline(exam),
		TimeRemainingSeconds: attempt.TimeRemaining(a, exam, now),
		TabSwitchCount:       a.TabSwitchCount,
		Questions:            make([]model.SessionQuestion, 0, len(answers)),
	}
	for i := range answers {
		rec := &answers[i]
		q, ok := byID[rec.QuestionID]
		if !ok {
			continue
		}
		sq := model.SessionQuestion{
			QuestionID:   q.ID,
			Position:     rec.Position,
			QuestionText: q.QuestionText,
			QuestionType: q.QuestionType,
			Marks:        q.Marks,
			Options:      q.OptionTexts(),
			AnswerText:   rec.AnswerText,
			Answered:     rec.Answered(),
			IsFlagged:    rec.IsFlagged,
		}
		if sq.Answered {
			view.Progress.Answered++
		}
		if sq.IsFlagged {
			view.Progress.Flagged++
		}
		view.Questions = append(view.Questions, sq)
	}
	view.Progress.Total = len(view.Questions)
	return view
}

// buildResultSummary tallies stored grades. Blank answers count as
// unanswered; answered essays count as pending review.
func buildResultSummary(a *model.ExamAttempt, exam *model.Exam, questions []model.Question, answers []model.AnswerRecord) *model.ResultSummary {
	byID := make(map[uuid.UUID]*model.Question, len(questions))
	for i := range questions {
		byID[questions[i].ID] = &questions[i]
	}

	sum := &model.ResultSummary{
		AttemptID:     a.ID,
		ExamID:        a.ExamID,
		StudentID:     a.StudentID,
		Status:        a.Status,
		EndReason:     a.EndReason,
		StartTime:     a.StartTime,
		EndTime:       a.EndTime,
		ObtainedMarks: a.ObtainedMarks,
		TotalScore:    a.TotalScore,
		TotalMarks:    exam.TotalMarks,
		Percentage:    a.Percentage,
		Items:         make([]model.ResultItem, 0, len(answers)),
	}
	for i := range answers {
		rec := &answers[i]
		item := model.ResultItem{
			QuestionID:    rec.QuestionID,
			Position:      rec.Position,
			AnswerText:    rec.AnswerText,
			IsCorrect:     rec.IsCorrect,
			MarksObtained: rec.MarksObtained,
			IsFlagged:     rec.IsFlagged,
		}
		if q, ok := byID[rec.QuestionID]; ok {
			item.QuestionType = q.QuestionType
			item.Marks = q.Marks
		}

		switch {
		case !rec.Answered():
			sum.Unanswered++
		case item.QuestionType == model.QuestionTypeEssay:
			item.PendingReview = true
			sum.PendingReview++
		case rec.IsCorrect != nil && *rec.IsCorrect:
			sum.Correct++
		default:
			sum.Incorrect++
		}
		if rec.IsFlagged {
			sum.Flagged++
		}
		sum.Items = append(sum.Items, item)
	}
	return sum
}
