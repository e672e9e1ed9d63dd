package attempt

import (
	"fmt"
	"time"

	"github.com/stemsi/exstem-cbt/internal/model"
)

// CheckWindow returns ErrSchedulingWindowViolation unless now lies inside
// [ScheduledStart, ScheduledEnd). Missing bounds are open.
func CheckWindow(exam *model.Exam, now time.Time) error {
	if exam.ScheduledStart != nil && now.Before(*exam.ScheduledStart) {
		return fmt.Errorf("%w: opens at %s", ErrSchedulingWindowViolation, exam.ScheduledStart.Format(time.RFC3339))
	}
	if exam.ScheduledEnd != nil && !now.Before(*exam.ScheduledEnd) {
		return fmt.Errorf("%w: closed at %s", ErrSchedulingWindowViolation, exam.ScheduledEnd.Format(time.RFC3339))
	}
	return nil
}

// TimeRemaining returns whole seconds left before the attempt deadline,
// rounded up and clamped at zero. An attempt that has not started has the
// full duration.
func TimeRemaining(a *model.ExamAttempt, exam *model.Exam, now time.Time) int {
	full := exam.DurationMinutes * 60
	if a.StartTime == nil {
		return full
	}
	left := a.StartTime.Add(exam.Duration()).Sub(now)
	if left <= 0 {
		return 0
	}
	secs := int((left + time.Second - 1) / time.Second)
	if secs > full {
		secs = full
	}
	return secs
}

// Expired reports whether a live attempt has run out of time.
func Expired(a *model.ExamAttempt, exam *model.Exam, now time.Time) bool {
	return a.Status == model.AttemptStatusInProgress && TimeRemaining(a, exam, now) <= 0
}

// ResultsReleaseAt is when results of a completed attempt become visible.
// Exams showing results immediately release at submit; otherwise results
// wait for the scheduled end, or the attempt deadline when none is set.
func ResultsReleaseAt(a *model.ExamAttempt, exam *model.Exam) time.Time {
	if exam.ShowResultsImmediately && a.EndTime != nil {
		return *a.EndTime
	}
	if exam.ScheduledEnd != nil {
		return *exam.ScheduledEnd
	}
	if d := a.Deadline(exam); d != nil {
		return *d
	}
	return time.Time{}
}

// Percentage is obtained/total*100, or 0 when total is not positive.
func Percentage(obtained, total float64) float64 {
	if total <= 0 {
		return 0
	}
	return obtained / total * 100
}
