package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/repository"
	"golang.org/x/sync/errgroup"
)

// progressFetchLimit bounds concurrent answer-record reads per snapshot.
const progressFetchLimit = 8

// MonitorService builds the proctor dashboard view of an exam.
type MonitorService struct {
	exams    repository.ExamReader
	attempts repository.AttemptStore
}

// NewMonitorService creates a new MonitorService.
func NewMonitorService(exams repository.ExamReader, attempts repository.AttemptStore) *MonitorService {
	return &MonitorService{exams: exams, attempts: attempts}
}

type MonitorExam struct {
	ID              uuid.UUID `json:"id"`
	Title           string    `json:"title"`
	DurationMinutes int       `json:"duration"`
	TotalQuestions  int       `json:"total_questions"`
}

type MonitorStats struct {
	TotalJoined     int `json:"total_joined"`
	TotalInProgress int `json:"total_in_progress"`
	TotalCompleted  int `json:"total_completed"`
	TotalAbandoned  int `json:"total_abandoned"`
	TotalTabSwitch  int `json:"total_tab_switches"`
}

// AttemptProgress is one row of the live monitor.
type AttemptProgress struct {
	AttemptID      uuid.UUID           `json:"attempt_id"`
	StudentID      int                 `json:"student_id"`
	Status         model.AttemptStatus `json:"status"`
	StartTime      *time.Time          `json:"started_at,omitempty"`
	ObtainedMarks  float64             `json:"obtained_marks"`
	Percentage     float64             `json:"percentage"`
	AnsweredCount  int                 `json:"answered_count"`
	TabSwitchCount int                 `json:"tab_switch_count"`
}

type MonitorSnapshot struct {
	Exam     MonitorExam       `json:"exam"`
	Stats    MonitorStats      `json:"stats"`
	Attempts []AttemptProgress `json:"students"`
}

// GetSnapshot returns every attempt of the exam with its answered count.
// Questions and attempts are fetched in parallel; answered counts are
// best-effort and stay zero when a read fails.
func (s *MonitorService) GetSnapshot(ctx context.Context, examID uuid.UUID) (*MonitorSnapshot, error) {
	exam, err := s.exams.GetExam(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}

	var (
		questions   []model.Question
		attempts    []model.ExamAttempt
		questionErr error
		attemptErr  error
		wg          sync.WaitGroup
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		questions, questionErr = s.exams.ListQuestions(ctx, examID)
	}()
	go func() {
		defer wg.Done()
		attempts, attemptErr = s.attempts.ListByExam(ctx, examID)
	}()
	wg.Wait()

	if attemptErr != nil {
		return nil, fmt.Errorf("list attempts: %w", attemptErr)
	}
	if questionErr != nil {
		return nil, fmt.Errorf("list questions: %w", questionErr)
	}

	snap := &MonitorSnapshot{
		Exam: MonitorExam{
			ID:              exam.ID,
			Title:           exam.Title,
			DurationMinutes: exam.DurationMinutes,
			TotalQuestions:  len(questions),
		},
		Attempts: make([]AttemptProgress, len(attempts)),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(progressFetchLimit)
	for i := range attempts {
		a := &attempts[i]
		snap.Attempts[i] = AttemptProgress{
			AttemptID:      a.ID,
			StudentID:      a.StudentID,
			Status:         a.Status,
			StartTime:      a.StartTime,
			ObtainedMarks:  a.ObtainedMarks,
			Percentage:     a.Percentage,
			TabSwitchCount: a.TabSwitchCount,
		}

		switch a.Status {
		case model.AttemptStatusInProgress:
			snap.Stats.TotalInProgress++
		case model.AttemptStatusCompleted:
			snap.Stats.TotalCompleted++
		case model.AttemptStatusAbandoned:
			snap.Stats.TotalAbandoned++
		}
		if a.Status != model.AttemptStatusNotStarted {
			snap.Stats.TotalJoined++
		}
		snap.Stats.TotalTabSwitch += a.TabSwitchCount

		row := &snap.Attempts[i]
		g.Go(func() error {
			answers, err := s.attempts.ListAnswers(gctx, row.AttemptID)
			if err != nil {
				return nil
			}
			for j := range answers {
				if answers[j].Answered() {
					row.AnsweredCount++
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	return snap, nil
}
