package model

import (
	"time"

	"github.com/google/uuid"
)

// ExamStatus enumerates the possible states of an exam.
type ExamStatus string

const (
	ExamStatusDraft     ExamStatus = "DRAFT"
	ExamStatusPublished ExamStatus = "PUBLISHED"
	ExamStatusArchived  ExamStatus = "ARCHIVED"
)

// Exam is the exam definition owned by the authoring subsystem.
// The attempt engine only reads it.
type Exam struct {
	ID                     uuid.UUID  `json:"id"`
	Title                  string     `json:"title"`
	ScheduledStart         *time.Time `json:"scheduled_start,omitempty"`
	ScheduledEnd           *time.Time `json:"scheduled_end,omitempty"`
	DurationMinutes        int        `json:"duration_minutes"`
	TotalMarks             float64    `json:"total_marks"`
	RandomizeQuestions     bool       `json:"randomize_questions"`
	ShowResultsImmediately bool       `json:"show_results_immediately"`
	// AttemptsAllowed of 0 means unlimited.
	AttemptsAllowed int        `json:"attempts_allowed"`
	Status          ExamStatus `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Duration returns the configured attempt length.
func (e *Exam) Duration() time.Duration {
	return time.Duration(e.DurationMinutes) * time.Minute
}
