package model

import (
	"time"

	"github.com/google/uuid"
)

// AttemptEventType names an observable attempt state change.
type AttemptEventType string

const (
	EventAttemptStarted     AttemptEventType = "attempt.started"
	EventAnswerSaved        AttemptEventType = "attempt.answer_saved"
	EventAttemptTabSwitched AttemptEventType = "attempt.tab_switched"
	EventAttemptCompleted   AttemptEventType = "attempt.completed"
	EventAttemptAbandoned   AttemptEventType = "attempt.abandoned"
)

// AttemptEvent is published after the authoritative write has committed.
type AttemptEvent struct {
	Type           AttemptEventType `json:"type"`
	AttemptID      uuid.UUID        `json:"attempt_id"`
	ExamID         uuid.UUID        `json:"exam_id"`
	StudentID      int              `json:"student_id"`
	Status         AttemptStatus    `json:"status"`
	QuestionID     *uuid.UUID       `json:"question_id,omitempty"`
	Reason         *SubmitReason    `json:"reason,omitempty"`
	ObtainedMarks  float64          `json:"obtained_marks"`
	Percentage     float64          `json:"percentage"`
	TabSwitchCount int              `json:"tab_switch_count"`
	OccurredAt     time.Time        `json:"occurred_at"`
}
