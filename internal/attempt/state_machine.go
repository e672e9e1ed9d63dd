// Package attempt owns the lifecycle of a single exam attempt:
// NOT_STARTED -> IN_PROGRESS -> COMPLETED | ABANDONED. Transitions are
// one-way and every timestamp comes from the injected clock.
package attempt

import (
	"fmt"

	"github.com/stemsi/exstem-cbt/internal/clock"
	"github.com/stemsi/exstem-cbt/internal/model"
)

// StateMachine applies lifecycle transitions to attempt values in memory.
// Persisting the result is the caller's job.
type StateMachine struct {
	clock clock.Clock
}

// NewStateMachine creates a StateMachine reading time from c.
func NewStateMachine(c clock.Clock) *StateMachine {
	return &StateMachine{clock: c}
}

// CanStart returns nil when a may be started now. a may be nil when the
// student has no attempt record yet. attemptsUsed counts previously started
// attempts for the same student and exam.
func (m *StateMachine) CanStart(a *model.ExamAttempt, exam *model.Exam, attemptsUsed int) error {
	if a != nil && a.Status != model.AttemptStatusNotStarted {
		return fmt.Errorf("%w: cannot start attempt in status %s", ErrInvalidTransition, a.Status)
	}
	if err := CheckWindow(exam, m.clock.Now()); err != nil {
		return err
	}
	if exam.AttemptsAllowed > 0 && attemptsUsed >= exam.AttemptsAllowed {
		return fmt.Errorf("%w: %d of %d attempts used", ErrAttemptLimitExceeded, attemptsUsed, exam.AttemptsAllowed)
	}
	return nil
}

// Start moves a NOT_STARTED attempt to IN_PROGRESS.
func (m *StateMachine) Start(a *model.ExamAttempt) error {
	if a.Status != model.AttemptStatusNotStarted {
		return fmt.Errorf("%w: start from %s", ErrInvalidTransition, a.Status)
	}
	now := m.clock.Now()
	a.Status = model.AttemptStatusInProgress
	a.StartTime = &now
	a.UpdatedAt = now
	return nil
}

// CanSubmit reports whether a is live.
func (m *StateMachine) CanSubmit(a *model.ExamAttempt) bool {
	return a.Status == model.AttemptStatusInProgress
}

// Submit completes an IN_PROGRESS attempt and freezes its score. Submitting an
// attempt that already ended is a no-op reported as transitioned=false, so
// retried and racing submits never fail.
func (m *StateMachine) Submit(a *model.ExamAttempt, reason model.SubmitReason) (bool, error) {
	return m.finish(a, model.AttemptStatusCompleted, reason)
}

// Abandon ends an IN_PROGRESS attempt that was force-submitted without a
// single answer. Same idempotency rules as Submit.
func (m *StateMachine) Abandon(a *model.ExamAttempt) (bool, error) {
	return m.finish(a, model.AttemptStatusAbandoned, model.SubmitReasonForced)
}

func (m *StateMachine) finish(a *model.ExamAttempt, to model.AttemptStatus, reason model.SubmitReason) (bool, error) {
	if a.Status.IsTerminal() {
		return false, nil
	}
	if a.Status != model.AttemptStatusInProgress {
		return false, fmt.Errorf("%w: submit from %s", ErrInvalidTransition, a.Status)
	}
	switch reason {
	case model.SubmitReasonManual, model.SubmitReasonTimeout, model.SubmitReasonForced:
	default:
		return false, fmt.Errorf("%w: unknown submit reason %q", ErrInvalidTransition, reason)
	}

	now := m.clock.Now()
	a.Status = to
	a.EndTime = &now
	a.EndReason = &reason
	a.TotalScore = a.ObtainedMarks
	a.UpdatedAt = now
	return true, nil
}

// CheckInvariants verifies the timestamp/status pairing of a.
func CheckInvariants(a *model.ExamAttempt) error {
	started := a.Status != model.AttemptStatusNotStarted
	if started != (a.StartTime != nil) {
		return fmt.Errorf("attempt %s: status %s with start_time set=%v", a.ID, a.Status, a.StartTime != nil)
	}
	if a.Status.IsTerminal() != (a.EndTime != nil) {
		return fmt.Errorf("attempt %s: status %s with end_time set=%v", a.ID, a.Status, a.EndTime != nil)
	}
	return nil
}
