package attempt

import (
	"testing"
	"time"

	"github.com/stemsi/exstem-cbt/internal/model"
)

func TestTimeRemaining(t *testing.T) {
	exam := &model.Exam{DurationMinutes: 30}
	started := &model.ExamAttempt{Status: model.AttemptStatusInProgress, StartTime: ptrTime(t0)}

	tests := []struct {
		name string
		a    *model.ExamAttempt
		now  time.Time
		want int
	}{
		{"not started returns full duration", &model.ExamAttempt{Status: model.AttemptStatusNotStarted}, t0, 1800},
		{"at start", started, t0, 1800},
		{"partial second rounds up", started, t0.Add(500 * time.Millisecond), 1800},
		{"ten minutes in", started, t0.Add(10 * time.Minute), 1200},
		{"exact deadline", started, t0.Add(30 * time.Minute), 0},
		{"past deadline clamps", started, t0.Add(31 * time.Minute), 0},
		{"clock behind start caps at duration", started, t0.Add(-time.Hour), 1800},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TimeRemaining(tt.a, exam, tt.now); got != tt.want {
				t.Errorf("TimeRemaining = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestTimeRemainingMonotonic(t *testing.T) {
	exam := &model.Exam{DurationMinutes: 2}
	a := &model.ExamAttempt{Status: model.AttemptStatusInProgress, StartTime: ptrTime(t0)}

	prev := TimeRemaining(a, exam, t0)
	for step := 1; step <= 300; step++ {
		now := t0.Add(time.Duration(step) * 700 * time.Millisecond)
		got := TimeRemaining(a, exam, now)
		if got > prev {
			t.Fatalf("remaining increased from %d to %d at step %d", prev, got, step)
		}
		if got < 0 {
			t.Fatalf("negative remaining %d", got)
		}
		prev = got
	}
	if prev != 0 {
		t.Fatalf("final remaining = %d, want 0", prev)
	}
}

func TestExpired(t *testing.T) {
	exam := &model.Exam{DurationMinutes: 30}
	a := &model.ExamAttempt{Status: model.AttemptStatusInProgress, StartTime: ptrTime(t0)}

	if Expired(a, exam, t0.Add(29*time.Minute)) {
		t.Error("should not be expired at T0+29m")
	}
	if !Expired(a, exam, t0.Add(31*time.Minute)) {
		t.Error("should be expired at T0+31m")
	}
	a.Status = model.AttemptStatusCompleted
	a.EndTime = ptrTime(t0.Add(5 * time.Minute))
	if Expired(a, exam, t0.Add(31*time.Minute)) {
		t.Error("completed attempts never need auto-submit")
	}
}

func TestPercentage(t *testing.T) {
	if got := Percentage(5, 0); got != 0 {
		t.Errorf("zero total = %v", got)
	}
	if got := Percentage(15, 20); got != 75 {
		t.Errorf("15/20 = %v", got)
	}
}

func TestResultsReleaseAt(t *testing.T) {
	end := t0.Add(2 * time.Hour)
	a := &model.ExamAttempt{
		Status:    model.AttemptStatusCompleted,
		StartTime: ptrTime(t0),
		EndTime:   ptrTime(t0.Add(10 * time.Minute)),
	}

	if got := ResultsReleaseAt(a, &model.Exam{DurationMinutes: 30, ShowResultsImmediately: true}); !got.Equal(*a.EndTime) {
		t.Errorf("immediate release = %v", got)
	}
	if got := ResultsReleaseAt(a, &model.Exam{DurationMinutes: 30, ScheduledEnd: &end}); !got.Equal(end) {
		t.Errorf("window release = %v", got)
	}
	if got := ResultsReleaseAt(a, &model.Exam{DurationMinutes: 30}); !got.Equal(t0.Add(30 * time.Minute)) {
		t.Errorf("deadline release = %v", got)
	}
}
