package model

import (
	"time"

	"github.com/google/uuid"
)

// SessionView is the cached, rebuildable projection of a live attempt.
type SessionView struct {
	AttemptID            uuid.UUID         `json:"attempt_id"`
	ExamID               uuid.UUID         `json:"exam_id"`
	ExamTitle            string            `json:"exam_title"`
	StudentID            int               `json:"student_id"`
	Status               AttemptStatus     `json:"status"`
	DurationMinutes      int               `json:"duration_minutes"`
	StartTime            *time.Time        `json:"start_time,omitempty"`
	ExpiresAt            *time.Time        `json:"expires_at,omitempty"`
	TimeRemainingSeconds int               `json:"time_remaining_seconds"`
	TabSwitchCount       int               `json:"tab_switch_count"`
	Questions            []SessionQuestion `json:"questions"`
	Progress             SessionProgress   `json:"progress"`
}

// SessionQuestion is one question as shown to the student, without the key.
type SessionQuestion struct {
	QuestionID   uuid.UUID    `json:"question_id"`
	Position     int          `json:"position"`
	QuestionText string       `json:"question_text"`
	QuestionType QuestionType `json:"question_type"`
	Marks        float64      `json:"marks"`
	Options      []string     `json:"options,omitempty"`
	AnswerText   *string      `json:"answer_text"`
	Answered     bool         `json:"answered"`
	IsFlagged    bool         `json:"is_flagged"`
}

type SessionProgress struct {
	Answered int `json:"answered"`
	Flagged  int `json:"flagged"`
	Total    int `json:"total"`
}
