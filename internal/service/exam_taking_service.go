package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-cbt/internal/attempt"
	"github.com/stemsi/exstem-cbt/internal/clock"
	"github.com/stemsi/exstem-cbt/internal/events"
	"github.com/stemsi/exstem-cbt/internal/grading"
	"github.com/stemsi/exstem-cbt/internal/keylock"
	"github.com/stemsi/exstem-cbt/internal/metrics"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/repository"
	"github.com/stemsi/exstem-cbt/internal/sessioncache"
)

var (
	ErrExamNotFound      = errors.New("exam not found")
	ErrExamNotPublished  = errors.New("exam is not published")
	ErrNoQuestions       = errors.New("exam has no questions")
	ErrAttemptNotFound   = errors.New("attempt not found")
	ErrAttemptNotOwned   = errors.New("attempt belongs to another student")
	ErrQuestionNotInExam = errors.New("question does not belong to this exam")
)

// errTimeUp marks a mutation rejected because the deadline passed before
// the watchdog got to the attempt. The caller auto-submits it inline.
var errTimeUp = fmt.Errorf("%w: time limit reached", attempt.ErrExamNotInProgress)

// ExamTakingService runs student attempts: start or resume, answers, flags,
// submission, timeouts and results. The attempt store is the source of truth;
// the session cache only holds a rebuildable projection.
type ExamTakingService struct {
	exams     repository.ExamReader
	attempts  repository.AttemptStore
	cache     sessioncache.Store
	publisher events.Publisher
	clock     clock.Clock
	grader    *grading.Grader
	sm        *attempt.StateMachine
	viewTTL   time.Duration
	log       zerolog.Logger

	// startLocks serializes Start per (exam, student) inside this process.
	startLocks keylock.Map
}

// NewExamTakingService creates a new ExamTakingService.
func NewExamTakingService(
	exams repository.ExamReader,
	attempts repository.AttemptStore,
	cache sessioncache.Store,
	publisher events.Publisher,
	clk clock.Clock,
	viewTTL time.Duration,
	log zerolog.Logger,
) *ExamTakingService {
	if publisher == nil {
		publisher = events.Nop{}
	}
	log = log.With().Str("component", "exam_taking").Logger()
	return &ExamTakingService{
		exams:     exams,
		attempts:  attempts,
		cache:     cache,
		publisher: publisher,
		clock:     clk,
		grader: grading.NewGrader(log, func(t model.QuestionType) {
			metrics.GradingAnomalies.WithLabelValues(string(t)).Inc()
		}),
		sm:      attempt.NewStateMachine(clk),
		viewTTL: viewTTL,
		log:     log,
	}
}

// Start returns the student's live attempt for the exam, creating one when
// none exists. Resuming never changes the attempt or its question order.
func (s *ExamTakingService) Start(ctx context.Context, studentID int, examID uuid.UUID, meta model.ClientMeta) (*model.ExamAttempt, error) {
	unlock := s.startLocks.Lock(fmt.Sprintf("%s:%d", examID, studentID))
	defer unlock()

	open, err := s.attempts.FindOpenAttempt(ctx, examID, studentID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("find open attempt: %w", err)
	}
	if open != nil && open.Status == model.AttemptStatusInProgress {
		metrics.AttemptsResumed.Inc()
		return open, nil
	}

	exam, err := s.getExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	if exam.Status != model.ExamStatusPublished {
		return nil, ErrExamNotPublished
	}

	used, err := s.attempts.CountStartedAttempts(ctx, examID, studentID)
	if err != nil {
		return nil, fmt.Errorf("count attempts: %w", err)
	}
	if err := s.sm.CanStart(open, exam, used); err != nil {
		return nil, err
	}

	questions, err := s.exams.ListQuestions(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	if len(questions) == 0 {
		return nil, ErrNoQuestions
	}

	now := s.clock.Now()
	a := open
	if a == nil {
		a = &model.ExamAttempt{
			ID:        uuid.New(),
			ExamID:    examID,
			StudentID: studentID,
			Status:    model.AttemptStatusNotStarted,
			CreatedAt: now,
		}
	}
	if err := s.sm.Start(a); err != nil {
		return nil, err
	}
	a.IPAddress = meta.IPAddress
	a.UserAgent = meta.UserAgent

	records := buildAnswerRecords(a.ID, questions, exam.RandomizeQuestions, now)

	if err := s.attempts.CreateStartedAttempt(ctx, a, records); err != nil {
		if !errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("create attempt: %w", err)
		}
		// Another process started the pair first; hand back its attempt.
		winner, ferr := s.attempts.FindOpenAttempt(ctx, examID, studentID)
		if ferr != nil || winner.Status != model.AttemptStatusInProgress {
			return nil, fmt.Errorf("create attempt: %w", err)
		}
		metrics.AttemptsResumed.Inc()
		return winner, nil
	}

	metrics.AttemptsStarted.Inc()
	s.log.Info().
		Str("attempt_id", a.ID.String()).
		Str("exam_id", examID.String()).
		Int("student_id", studentID).
		Msg("Attempt started")

	if _, err := s.cacheView(ctx, a.ID, exam, questions); err != nil {
		s.log.Warn().Err(err).Str("attempt_id", a.ID.String()).Msg("Failed to prime session cache")
	}
	s.publish(ctx, model.EventAttemptStarted, a, nil)
	return a, nil
}

// SubmitAnswer saves and grades one answer, then recomputes obtained marks
// from all of the attempt's records. Re-answering replaces the earlier
// answer and its marks.
func (s *ExamTakingService) SubmitAnswer(ctx context.Context, attemptID, questionID uuid.UUID, answer string, timeSpent int) (*model.AnswerRecord, error) {
	a, exam, err := s.loadAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	q, err := s.getQuestion(ctx, a.ExamID, questionID)
	if err != nil {
		return nil, err
	}

	var (
		saved *model.AnswerRecord
		snap  *model.ExamAttempt
	)
	err = s.attempts.WithAttemptLock(ctx, attemptID, func(ctx context.Context, tx repository.AttemptTx) error {
		cur := tx.Attempt()
		if err := s.requireLive(cur, exam); err != nil {
			return err
		}

		rec, err := tx.GetAnswer(ctx, questionID)
		if errors.Is(err, repository.ErrNotFound) {
			rec = &model.AnswerRecord{AttemptID: attemptID, QuestionID: questionID, Position: q.OrderNum}
		} else if err != nil {
			return fmt.Errorf("get answer: %w", err)
		}

		now := s.clock.Now()
		res := s.grader.Grade(q, answer)
		text := answer
		rec.AnswerText = &text
		rec.TimeSpentSeconds = timeSpent
		rec.MarksObtained = res.Marks
		rec.IsCorrect = nil
		if q.QuestionType.AutoGradable() {
			correct := res.IsCorrect
			rec.IsCorrect = &correct
		}
		rec.AnsweredAt = &now
		rec.UpdatedAt = now
		if err := tx.UpsertAnswer(ctx, rec); err != nil {
			return fmt.Errorf("upsert answer: %w", err)
		}

		sum, err := tx.SumMarks(ctx)
		if err != nil {
			return fmt.Errorf("sum marks: %w", err)
		}
		cur.ObtainedMarks = sum
		cur.UpdatedAt = now
		if err := tx.UpdateAttempt(ctx, cur); err != nil {
			return fmt.Errorf("update attempt: %w", err)
		}
		saved = rec
		snap = cur.Clone()
		return nil
	})
	if err != nil {
		return nil, s.handleLiveError(ctx, attemptID, err)
	}

	metrics.AnswersSaved.Inc()
	s.invalidate(ctx, attemptID)
	s.publish(ctx, model.EventAnswerSaved, snap, &questionID)
	return saved, nil
}

// FlagQuestion marks a question for review. The attempt must be live.
func (s *ExamTakingService) FlagQuestion(ctx context.Context, attemptID, questionID uuid.UUID) (*model.AnswerRecord, error) {
	return s.setFlag(ctx, attemptID, questionID, true)
}

// UnflagQuestion clears the review mark in any attempt status.
func (s *ExamTakingService) UnflagQuestion(ctx context.Context, attemptID, questionID uuid.UUID) (*model.AnswerRecord, error) {
	return s.setFlag(ctx, attemptID, questionID, false)
}

func (s *ExamTakingService) setFlag(ctx context.Context, attemptID, questionID uuid.UUID, flagged bool) (*model.AnswerRecord, error) {
	a, exam, err := s.loadAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	q, err := s.getQuestion(ctx, a.ExamID, questionID)
	if err != nil {
		return nil, err
	}

	var saved *model.AnswerRecord
	err = s.attempts.WithAttemptLock(ctx, attemptID, func(ctx context.Context, tx repository.AttemptTx) error {
		if flagged {
			if err := s.requireLive(tx.Attempt(), exam); err != nil {
				return err
			}
		}

		rec, err := tx.GetAnswer(ctx, questionID)
		if errors.Is(err, repository.ErrNotFound) {
			rec = &model.AnswerRecord{AttemptID: attemptID, QuestionID: questionID, Position: q.OrderNum}
		} else if err != nil {
			return fmt.Errorf("get answer: %w", err)
		} else if rec.IsFlagged == flagged {
			saved = rec
			return nil
		}

		rec.IsFlagged = flagged
		rec.UpdatedAt = s.clock.Now()
		if err := tx.UpsertAnswer(ctx, rec); err != nil {
			return fmt.Errorf("upsert answer: %w", err)
		}
		saved = rec
		return nil
	})
	if err != nil {
		return nil, s.handleLiveError(ctx, attemptID, err)
	}

	s.invalidate(ctx, attemptID)
	return saved, nil
}

// RecordTabSwitch counts a focus loss on a live attempt and returns the new
// total. On any other status it returns the stored count and changes nothing.
func (s *ExamTakingService) RecordTabSwitch(ctx context.Context, attemptID uuid.UUID) (int, error) {
	var (
		count int
		snap  *model.ExamAttempt
	)
	err := s.attempts.WithAttemptLock(ctx, attemptID, func(ctx context.Context, tx repository.AttemptTx) error {
		cur := tx.Attempt()
		count = cur.TabSwitchCount
		if cur.Status != model.AttemptStatusInProgress {
			return nil
		}
		cur.TabSwitchCount++
		cur.UpdatedAt = s.clock.Now()
		if err := tx.UpdateAttempt(ctx, cur); err != nil {
			return fmt.Errorf("update attempt: %w", err)
		}
		count = cur.TabSwitchCount
		snap = cur.Clone()
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, ErrAttemptNotFound
		}
		return 0, err
	}

	if snap != nil {
		metrics.TabSwitches.Inc()
		s.invalidate(ctx, attemptID)
		s.publish(ctx, model.EventAttemptTabSwitched, snap, nil)
	}
	return count, nil
}

// GetTimeRemaining returns whole seconds left on the attempt.
func (s *ExamTakingService) GetTimeRemaining(a *model.ExamAttempt, exam *model.Exam) int {
	return attempt.TimeRemaining(a, exam, s.clock.Now())
}

// ShouldAutoSubmit reports whether a live attempt has run out of time.
func (s *ExamTakingService) ShouldAutoSubmit(a *model.ExamAttempt, exam *model.Exam) bool {
	return attempt.Expired(a, exam, s.clock.Now())
}

// GetAttempt returns an attempt by id.
func (s *ExamTakingService) GetAttempt(ctx context.Context, attemptID uuid.UUID) (*model.ExamAttempt, error) {
	a, err := s.attempts.GetAttempt(ctx, attemptID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrAttemptNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	return a, nil
}

// GetOwnedAttempt returns the attempt only when it belongs to studentID.
func (s *ExamTakingService) GetOwnedAttempt(ctx context.Context, attemptID uuid.UUID, studentID int) (*model.ExamAttempt, error) {
	a, err := s.GetAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if a.StudentID != studentID {
		return nil, ErrAttemptNotOwned
	}
	return a, nil
}

// GetExam returns an exam definition by id.
func (s *ExamTakingService) GetExam(ctx context.Context, examID uuid.UUID) (*model.Exam, error) {
	return s.getExam(ctx, examID)
}

// ListInProgress returns every live attempt, used by the timeout watchdog.
func (s *ExamTakingService) ListInProgress(ctx context.Context) ([]model.ExamAttempt, error) {
	return s.attempts.ListInProgress(ctx)
}

// ListByExam returns all attempts of an exam for administrators.
func (s *ExamTakingService) ListByExam(ctx context.Context, examID uuid.UUID) ([]model.ExamAttempt, error) {
	if _, err := s.getExam(ctx, examID); err != nil {
		return nil, err
	}
	return s.attempts.ListByExam(ctx, examID)
}

// requireLive rejects mutations unless the attempt is in progress with time
// left. An expired attempt yields errTimeUp so the caller can close it.
func (s *ExamTakingService) requireLive(a *model.ExamAttempt, exam *model.Exam) error {
	if a.Status != model.AttemptStatusInProgress {
		return fmt.Errorf("%w: attempt is %s", attempt.ErrExamNotInProgress, a.Status)
	}
	if attempt.TimeRemaining(a, exam, s.clock.Now()) <= 0 {
		return errTimeUp
	}
	return nil
}

// handleLiveError auto-submits an attempt whose deadline passed mid-call and
// maps store errors to service errors.
func (s *ExamTakingService) handleLiveError(ctx context.Context, attemptID uuid.UUID, err error) error {
	if errors.Is(err, errTimeUp) {
		if _, serr := s.AutoSubmitOnTimeout(ctx, attemptID); serr != nil {
			s.log.Error().Err(serr).Str("attempt_id", attemptID.String()).Msg("Inline auto-submit failed")
		}
		return err
	}
	if errors.Is(err, repository.ErrNotFound) {
		return ErrAttemptNotFound
	}
	return err
}

func (s *ExamTakingService) loadAttempt(ctx context.Context, attemptID uuid.UUID) (*model.ExamAttempt, *model.Exam, error) {
	a, err := s.GetAttempt(ctx, attemptID)
	if err != nil {
		return nil, nil, err
	}
	exam, err := s.getExam(ctx, a.ExamID)
	if err != nil {
		return nil, nil, err
	}
	return a, exam, nil
}

func (s *ExamTakingService) getExam(ctx context.Context, examID uuid.UUID) (*model.Exam, error) {
	exam, err := s.exams.GetExam(ctx, examID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrExamNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}
	return exam, nil
}

func (s *ExamTakingService) getQuestion(ctx context.Context, examID, questionID uuid.UUID) (*model.Question, error) {
	q, err := s.exams.GetQuestion(ctx, examID, questionID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrQuestionNotInExam
	}
	if err != nil {
		return nil, fmt.Errorf("get question: %w", err)
	}
	return q, nil
}

func (s *ExamTakingService) invalidate(ctx context.Context, attemptID uuid.UUID) {
	if err := s.cache.Invalidate(ctx, attemptID); err != nil {
		s.log.Warn().Err(err).Str("attempt_id", attemptID.String()).Msg("Failed to invalidate session cache")
	}
}

func (s *ExamTakingService) publish(ctx context.Context, typ model.AttemptEventType, a *model.ExamAttempt, questionID *uuid.UUID) {
	evt := model.AttemptEvent{
		Type:           typ,
		AttemptID:      a.ID,
		ExamID:         a.ExamID,
		StudentID:      a.StudentID,
		Status:         a.Status,
		QuestionID:     questionID,
		Reason:         a.EndReason,
		ObtainedMarks:  a.ObtainedMarks,
		Percentage:     a.Percentage,
		TabSwitchCount: a.TabSwitchCount,
		OccurredAt:     s.clock.Now(),
	}
	if err := s.publisher.Publish(ctx, evt); err != nil {
		s.log.Warn().Err(err).
			Str("event", string(typ)).
			Str("attempt_id", a.ID.String()).
			Msg("Failed to publish attempt event")
	}
}
