package worker

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-cbt/internal/metrics"
	"github.com/stemsi/exstem-cbt/internal/model"
)

// AttemptCloser is the part of the exam engine the watchdog needs.
type AttemptCloser interface {
	ListInProgress(ctx context.Context) ([]model.ExamAttempt, error)
	GetExam(ctx context.Context, examID uuid.UUID) (*model.Exam, error)
	ShouldAutoSubmit(a *model.ExamAttempt, exam *model.Exam) bool
	// CloseExpired reports false when the attempt was already finished.
	CloseExpired(ctx context.Context, attemptID uuid.UUID) (bool, error)
}

// TimeoutWatchdog closes attempts whose time ran out while the student was
// away. It reads live attempts from the store, so a restart loses nothing.
type TimeoutWatchdog struct {
	engine   AttemptCloser
	schedule string
	log      zerolog.Logger
}

func NewTimeoutWatchdog(engine AttemptCloser, schedule string, log zerolog.Logger) *TimeoutWatchdog {
	return &TimeoutWatchdog{
		engine:   engine,
		schedule: schedule,
		log:      log.With().Str("component", "timeout_watchdog").Logger(),
	}
}

// Start sweeps once for attempts that expired while the process was down,
// then on schedule until ctx is cancelled.
func (w *TimeoutWatchdog) Start(ctx context.Context) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := c.AddFunc(w.schedule, func() { w.run(ctx) }); err != nil {
		return fmt.Errorf("schedule watchdog %q: %w", w.schedule, err)
	}

	w.run(ctx)
	c.Start()
	w.log.Info().Str("schedule", w.schedule).Msg("TimeoutWatchdog started")

	<-ctx.Done()
	<-c.Stop().Done()
	w.log.Info().Msg("TimeoutWatchdog stopped")
	return nil
}

func (w *TimeoutWatchdog) run(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	n, err := w.Sweep(ctx)
	if err != nil {
		metrics.WatchdogSweeps.WithLabelValues("error").Inc()
		w.log.Error().Err(err).Msg("Watchdog sweep failed")
		return
	}
	metrics.WatchdogSweeps.WithLabelValues("ok").Inc()
	if n > 0 {
		w.log.Info().Int("submitted", n).Msg("Auto-submitted expired attempts")
	}
}

// Sweep auto-submits every expired live attempt and returns how many it
// closed. A failing attempt is logged and retried on the next sweep.
func (w *TimeoutWatchdog) Sweep(ctx context.Context) (int, error) {
	live, err := w.engine.ListInProgress(ctx)
	if err != nil {
		return 0, fmt.Errorf("list in-progress attempts: %w", err)
	}

	exams := make(map[uuid.UUID]*model.Exam)
	submitted := 0
	for i := range live {
		a := &live[i]
		exam, ok := exams[a.ExamID]
		if !ok {
			exam, err = w.engine.GetExam(ctx, a.ExamID)
			if err != nil {
				metrics.WatchdogAutoSubmits.WithLabelValues("error").Inc()
				w.log.Error().Err(err).Str("attempt_id", a.ID.String()).Msg("Failed to load exam for attempt")
				continue
			}
			exams[a.ExamID] = exam
		}

		if !w.engine.ShouldAutoSubmit(a, exam) {
			continue
		}
		closed, err := w.engine.CloseExpired(ctx, a.ID)
		if err != nil {
			metrics.WatchdogAutoSubmits.WithLabelValues("error").Inc()
			w.log.Error().Err(err).Str("attempt_id", a.ID.String()).Msg("Auto-submit failed, will retry")
			continue
		}
		if !closed {
			// A client submit or an inline auto-submit got there first.
			continue
		}
		metrics.WatchdogAutoSubmits.WithLabelValues("ok").Inc()
		submitted++
	}
	return submitted, nil
}
