package model

import (
	"time"

	"github.com/google/uuid"
)

// ResultSummary is assembled from graded answer records; nothing is re-graded.
type ResultSummary struct {
	AttemptID     uuid.UUID     `json:"attempt_id"`
	ExamID        uuid.UUID     `json:"exam_id"`
	StudentID     int           `json:"student_id"`
	Status        AttemptStatus `json:"status"`
	EndReason     *SubmitReason `json:"end_reason,omitempty"`
	StartTime     *time.Time    `json:"start_time,omitempty"`
	EndTime       *time.Time    `json:"end_time,omitempty"`
	ObtainedMarks float64       `json:"obtained_marks"`
	TotalScore    float64       `json:"total_score"`
	TotalMarks    float64       `json:"total_marks"`
	Percentage    float64       `json:"percentage"`
	Correct       int           `json:"correct"`
	Incorrect     int           `json:"incorrect"`
	Unanswered    int           `json:"unanswered"`
	Flagged       int           `json:"flagged"`
	PendingReview int           `json:"pending_review"`
	Items         []ResultItem  `json:"items"`
}

type ResultItem struct {
	QuestionID    uuid.UUID    `json:"question_id"`
	Position      int          `json:"position"`
	QuestionType  QuestionType `json:"question_type"`
	AnswerText    *string      `json:"answer_text"`
	IsCorrect     *bool        `json:"is_correct"`
	MarksObtained float64      `json:"marks_obtained"`
	Marks         float64      `json:"marks"`
	IsFlagged     bool         `json:"is_flagged"`
	PendingReview bool         `json:"pending_review"`
}
