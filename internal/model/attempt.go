package model

import (
	"time"

	"github.com/google/uuid"
)

// AttemptStatus enumerates exam attempt states.
type AttemptStatus string

const (
	AttemptStatusNotStarted AttemptStatus = "NOT_STARTED"
	AttemptStatusInProgress AttemptStatus = "IN_PROGRESS"
	AttemptStatusCompleted  AttemptStatus = "COMPLETED"
	AttemptStatusAbandoned  AttemptStatus = "ABANDONED"
)

// IsTerminal reports whether no further transition is possible.
func (s AttemptStatus) IsTerminal() bool {
	return s == AttemptStatusCompleted || s == AttemptStatusAbandoned
}

// SubmitReason records why an attempt ended.
type SubmitReason string

const (
	SubmitReasonManual  SubmitReason = "MANUAL"
	SubmitReasonTimeout SubmitReason = "TIMEOUT"
	SubmitReasonForced  SubmitReason = "FORCED"
)

// ExamAttempt is one student's run at an exam.
type ExamAttempt struct {
	ID             uuid.UUID     `json:"id"`
	ExamID         uuid.UUID     `json:"exam_id"`
	StudentID      int           `json:"student_id"`
	Status         AttemptStatus `json:"status"`
	StartTime      *time.Time    `json:"start_time,omitempty"`
	EndTime        *time.Time    `json:"end_time,omitempty"`
	ObtainedMarks  float64       `json:"obtained_marks"`
	TotalScore     float64       `json:"total_score"`
	Percentage     float64       `json:"percentage"`
	TabSwitchCount int           `json:"tab_switch_count"`
	EndReason      *SubmitReason `json:"end_reason,omitempty"`
	IPAddress      string        `json:"ip_address,omitempty"`
	UserAgent      string        `json:"user_agent,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// Clone returns a deep copy; pointer fields are not shared.
func (a *ExamAttempt) Clone() *ExamAttempt {
	c := *a
	if a.StartTime != nil {
		t := *a.StartTime
		c.StartTime = &t
	}
	if a.EndTime != nil {
		t := *a.EndTime
		c.EndTime = &t
	}
	if a.EndReason != nil {
		r := *a.EndReason
		c.EndReason = &r
	}
	return &c
}

// Deadline is start_time + duration, or nil before the attempt starts.
func (a *ExamAttempt) Deadline(exam *Exam) *time.Time {
	if a.StartTime == nil {
		return nil
	}
	d := a.StartTime.Add(exam.Duration())
	return &d
}

// ClientMeta is audit-only request metadata captured on start.
type ClientMeta struct {
	IPAddress string
	UserAgent string
}

// AttemptListQuery filters the admin attempt listing.
type AttemptListQuery struct {
	Status  string `form:"status" binding:"omitempty,attempt_status"`
	Page    int    `form:"page" binding:"omitempty,min=1"`
	PerPage int    `form:"per_page" binding:"omitempty,min=1,max=200"`
}
