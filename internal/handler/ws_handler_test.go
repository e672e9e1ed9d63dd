package handler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-cbt/internal/clock"
	"github.com/stemsi/exstem-cbt/internal/config"
	"github.com/stemsi/exstem-cbt/internal/events"
	"github.com/stemsi/exstem-cbt/internal/middleware"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/repository"
	"github.com/stemsi/exstem-cbt/internal/repository/memory"
	"github.com/stemsi/exstem-cbt/internal/response"
	"github.com/stemsi/exstem-cbt/internal/service"
	"github.com/stemsi/exstem-cbt/internal/sessioncache"
	ws "github.com/stemsi/exstem-cbt/internal/websocket"
)

// lockedBuffer collects log lines written from the server goroutine.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// downStore fails every locked write once down is set.
type downStore struct {
	repository.AttemptStore
	down atomic.Bool
}

func (s *downStore) WithAttemptLock(ctx context.Context, id uuid.UUID, fn func(ctx context.Context, tx repository.AttemptTx) error) error {
	if s.down.Load() {
		return errors.New("connection reset")
	}
	return s.AttemptStore.WithAttemptLock(ctx, id, fn)
}

func TestAttemptStreamLogsCarryConnectionFields(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mem := memory.New()
	store := &downStore{AttemptStore: mem}
	clk := clock.NewFake(time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC))
	engine := service.NewExamTakingService(mem, store, sessioncache.NewMemoryStore(clk), events.Nop{}, clk, time.Minute, zerolog.Nop())

	exam := model.Exam{ID: uuid.New(), Title: "Fisika", DurationMinutes: 30, TotalMarks: 1, Status: model.ExamStatusPublished}
	q := model.Question{
		ID: uuid.New(), QuestionType: model.QuestionTypeTrueFalse, Marks: 1, OrderNum: 1,
		Options: []model.QuestionOption{{Text: "Benar", IsCorrect: true}, {Text: "Salah"}},
	}
	mem.PutExam(exam, []model.Question{q})
	a, err := engine.Start(context.Background(), 7, exam.ID, model.ClientMeta{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	store.down.Store(true)

	logs := &lockedBuffer{}
	h := NewWSHandler(engine, zerolog.New(logs), nil)
	auth := service.NewAuthService(&config.Config{JWTSecret: "rahasia", JWTExpiry: time.Hour})
	r := gin.New()
	r.GET("/stream/:attempt_id", middleware.RequireStudentJWT(auth), h.AttemptStream)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	tok, _ := auth.IssueToken(service.TokenTypeStudent, 7, 1, nil)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + fmt.Sprintf("/stream/%s?token=%s", a.ID, tok)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	for _, action := range []ws.Action{ws.ActionAnswer, ws.ActionFlag} {
		if err := conn.WriteJSON(ws.RequestPayload{Action: action, QID: q.ID.String(), Answer: "Benar"}); err != nil {
			t.Fatalf("write %s: %v", action, err)
		}
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var resp ws.ErrorResponse
		if err := conn.ReadJSON(&resp); err != nil {
			t.Fatalf("read %s: %v", action, err)
		}
		if resp.Code != string(response.ErrInternal) {
			t.Fatalf("%s -> %+v", action, resp)
		}
	}

	var failures int
	for _, line := range strings.Split(strings.TrimSpace(logs.String()), "\n") {
		if !strings.Contains(line, "WebSocket action failed") {
			continue
		}
		failures++
		for _, field := range []string{`"attempt_id":"` + a.ID.String(), `"student_id":7`, `"exam_id":"` + exam.ID.String()} {
			if !strings.Contains(line, field) {
				t.Errorf("log line %s lacks %s", line, field)
			}
		}
	}
	if failures != 2 {
		t.Fatalf("logged %d action failures, want 2:\n%s", failures, logs.String())
	}
}
