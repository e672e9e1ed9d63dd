package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/repository"
)

func TestMonitorSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	q := capitalQuestion(1)
	exam := f.putExam(model.Exam{TotalMarks: 2}, q, capitalQuestion(1))

	a1, _ := f.svc.Start(ctx, 1, exam.ID, model.ClientMeta{})
	a2, _ := f.svc.Start(ctx, 2, exam.ID, model.ClientMeta{})
	f.svc.SubmitAnswer(ctx, a1.ID, q.ID, "Paris", 1)
	f.svc.RecordTabSwitch(ctx, a1.ID)
	f.svc.Submit(ctx, a2.ID, model.SubmitReasonManual)

	mon := NewMonitorService(f.store, f.store)
	snap, err := mon.GetSnapshot(ctx, exam.ID)
	if err != nil {
		t.Fatalf("GetSnapshot: %v", err)
	}
	if snap.Exam.TotalQuestions != 2 || snap.Exam.Title != exam.Title {
		t.Fatalf("exam = %+v", snap.Exam)
	}
	want := MonitorStats{TotalJoined: 2, TotalInProgress: 1, TotalCompleted: 1, TotalTabSwitch: 1}
	if snap.Stats != want {
		t.Fatalf("stats = %+v, want %+v", snap.Stats, want)
	}

	byID := make(map[uuid.UUID]AttemptProgress)
	for _, p := range snap.Attempts {
		byID[p.AttemptID] = p
	}
	if got := byID[a1.ID]; got.AnsweredCount != 1 || got.ObtainedMarks != 1 {
		t.Fatalf("a1 progress = %+v", got)
	}
	if got := byID[a2.ID]; got.AnsweredCount != 0 || got.Status != model.AttemptStatusCompleted {
		t.Fatalf("a2 progress = %+v", got)
	}
}

func TestMonitorSnapshotUnknownExam(t *testing.T) {
	f := newFixture(t)
	mon := NewMonitorService(f.store, f.store)
	if _, err := mon.GetSnapshot(context.Background(), uuid.New()); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
}
