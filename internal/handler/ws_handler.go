package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-cbt/internal/middleware"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/response"
	"github.com/stemsi/exstem-cbt/internal/service"
	ws "github.com/stemsi/exstem-cbt/internal/websocket"
)

// actionTimeout bounds one engine call made on behalf of a socket message.
const actionTimeout = 10 * time.Second

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams a live attempt over a WebSocket: autosave, flags, tab
// switches, time checks and submission share one connection.
type WSHandler struct {
	engine   *service.ExamTakingService
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(engine *service.ExamTakingService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		engine:   engine,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// AttemptStream godoc
// WS /ws/v1/student/attempts/:attempt_id/stream
func (h *WSHandler) AttemptStream(c *gin.Context) {
	claims := middleware.GetClaims(c)

	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	// Ownership is checked before the upgrade so the client gets a proper
	// HTTP status.
	a, err := h.engine.GetOwnedAttempt(c.Request.Context(), attemptID, claims.UserID)
	if err != nil {
		failWithError(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Int("student_id", claims.UserID).
		Str("attempt_id", attemptID.String()).
		Str("exam_id", a.ExamID.String()).
		Logger()
	wsLog.Info().Msg("Student connected")

	base := context.WithoutCancel(c.Request.Context())

	for {
		var msg ws.RequestPayload
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		ctx, cancel := context.WithTimeout(base, actionTimeout)
		closeAfter := h.dispatch(ctx, conn, wsLog, attemptID, &msg)
		cancel()
		if closeAfter {
			return
		}
	}
}

// dispatch runs one action and reports whether the connection should close.
func (h *WSHandler) dispatch(ctx context.Context, conn *websocket.Conn, wsLog zerolog.Logger, attemptID uuid.UUID, msg *ws.RequestPayload) bool {
	switch msg.Action {
	case ws.ActionAnswer:
		h.handleAnswer(ctx, conn, wsLog, attemptID, msg)
	case ws.ActionFlag, ws.ActionUnflag:
		h.handleFlag(ctx, conn, wsLog, attemptID, msg)
	case ws.ActionTabSwitch:
		count, err := h.engine.RecordTabSwitch(ctx, attemptID)
		if err != nil {
			h.writeEngineError(conn, wsLog, err)
			return false
		}
		ws.WriteTyped(conn, ws.TabSwitchResponse{Event: ws.EventTabSwitch, TabSwitchCount: count})
	case ws.ActionTime:
		return h.handleTime(ctx, conn, wsLog, attemptID)
	case ws.ActionSubmit:
		return h.handleSubmit(ctx, conn, wsLog, attemptID)
	case ws.ActionPing:
		ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong})
	default:
		wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
		ws.WriteError(conn, string(response.ErrInvalidPayload), "unknown action: "+string(msg.Action))
	}
	return false
}

func (h *WSHandler) handleAnswer(ctx context.Context, conn *websocket.Conn, wsLog zerolog.Logger, attemptID uuid.UUID, msg *ws.RequestPayload) {
	questionID, ok := parseQID(conn, msg.QID)
	if !ok {
		return
	}
	if msg.TimeSpent < 0 {
		ws.WriteError(conn, string(response.ErrValidation), "time_spent must not be negative")
		return
	}

	if _, err := h.engine.SubmitAnswer(ctx, attemptID, questionID, msg.Answer, msg.TimeSpent); err != nil {
		h.writeEngineError(conn, wsLog, err)
		return
	}

	remaining := 0
	if a, exam, err := attemptWithExam(ctx, h.engine, attemptID); err == nil {
		remaining = h.engine.GetTimeRemaining(a, exam)
	}
	ws.WriteTyped(conn, ws.AnswerSavedResponse{
		Event:         ws.EventAnswerSaved,
		QID:           msg.QID,
		TimeRemaining: remaining,
	})
}

func (h *WSHandler) handleFlag(ctx context.Context, conn *websocket.Conn, wsLog zerolog.Logger, attemptID uuid.UUID, msg *ws.RequestPayload) {
	questionID, ok := parseQID(conn, msg.QID)
	if !ok {
		return
	}

	event := ws.EventFlagged
	var err error
	if msg.Action == ws.ActionFlag {
		_, err = h.engine.FlagQuestion(ctx, attemptID, questionID)
	} else {
		event = ws.EventUnflagged
		_, err = h.engine.UnflagQuestion(ctx, attemptID, questionID)
	}
	if err != nil {
		h.writeEngineError(conn, wsLog, err)
		return
	}
	ws.WriteTyped(conn, ws.FlagResponse{Event: event, QID: msg.QID})
}

// handleTime reports the remaining time and closes an expired attempt.
func (h *WSHandler) handleTime(ctx context.Context, conn *websocket.Conn, wsLog zerolog.Logger, attemptID uuid.UUID) bool {
	a, exam, err := attemptWithExam(ctx, h.engine, attemptID)
	if err != nil {
		h.writeEngineError(conn, wsLog, err)
		return false
	}

	if !h.engine.ShouldAutoSubmit(a, exam) {
		ws.WriteTyped(conn, ws.TimeResponse{
			Event:         ws.EventTime,
			TimeRemaining: h.engine.GetTimeRemaining(a, exam),
			Expired:       a.Status.IsTerminal(),
		})
		return false
	}

	summary, err := h.engine.AutoSubmitOnTimeout(ctx, attemptID)
	if err != nil {
		h.writeEngineError(conn, wsLog, err)
		return false
	}
	ws.WriteTyped(conn, ws.TimeResponse{Event: ws.EventTime, Expired: true})
	h.writeSubmitted(ctx, conn, summary)
	return true
}

func (h *WSHandler) handleSubmit(ctx context.Context, conn *websocket.Conn, wsLog zerolog.Logger, attemptID uuid.UUID) bool {
	summary, err := h.engine.Submit(ctx, attemptID, model.SubmitReasonManual)
	if err != nil {
		h.writeEngineError(conn, wsLog, err)
		return false
	}

	wsLog.Info().
		Float64("obtained_marks", summary.ObtainedMarks).
		Float64("percentage", summary.Percentage).
		Msg("Attempt submitted over WebSocket")

	h.writeSubmitted(ctx, conn, summary)
	return true
}

// writeSubmitted attaches the result only when it is already released.
func (h *WSHandler) writeSubmitted(ctx context.Context, conn *websocket.Conn, summary *model.ResultSummary) {
	resp := ws.SubmittedResponse{Event: ws.EventSubmitted, Status: summary.Status}
	if result, err := h.engine.ComputeResults(ctx, summary.AttemptID); err == nil {
		resp.Result = result
	}
	ws.WriteTyped(conn, resp)
}

func (h *WSHandler) writeEngineError(conn *websocket.Conn, log zerolog.Logger, err error) {
	_, code := classify(err)
	if code == response.ErrInternal {
		log.Error().Err(err).Msg("WebSocket action failed")
	}
	ws.WriteError(conn, string(code), response.GetMessage(code))
}

// parseQID validates q_id before it reaches any store key.
func parseQID(conn *websocket.Conn, qid string) (uuid.UUID, bool) {
	id, err := uuid.Parse(qid)
	if err != nil {
		ws.WriteError(conn, string(response.ErrInvalidID), "invalid q_id format")
		return uuid.Nil, false
	}
	return id, true
}
