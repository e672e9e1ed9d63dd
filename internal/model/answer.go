package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// AnswerRecord holds a student's response to one question of an attempt.
// One record per question is created when the attempt starts, so an
// unanswered question is a row with a nil AnswerText.
type AnswerRecord struct {
	AttemptID  uuid.UUID `json:"attempt_id"`
	QuestionID uuid.UUID `json:"question_id"`
	// Position is the 1-based display order fixed for this attempt.
	Position   int     `json:"position"`
	AnswerText *string `json:"answer_text"`
	IsFlagged  bool    `json:"is_flagged"`
	// IsCorrect stays nil until an auto-gradable answer is graded.
	// Essay answers keep it nil pending manual review.
	IsCorrect        *bool      `json:"is_correct"`
	MarksObtained    float64    `json:"marks_obtained"`
	TimeSpentSeconds int        `json:"time_spent_seconds"`
	AnsweredAt       *time.Time `json:"answered_at,omitempty"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Answered reports whether the student gave a non-blank response.
func (r *AnswerRecord) Answered() bool {
	return r.AnswerText != nil && strings.TrimSpace(*r.AnswerText) != ""
}

// SubmitAnswerRequest is the payload for saving one answer.
type SubmitAnswerRequest struct {
	Answer           string `json:"answer" binding:"max=10000"`
	TimeSpentSeconds int    `json:"time_spent_seconds" binding:"min=0,max=86400"`
}
