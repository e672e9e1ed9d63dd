package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stemsi/exstem-cbt/internal/attempt"
	"github.com/stemsi/exstem-cbt/internal/middleware"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/response"
	"github.com/stemsi/exstem-cbt/internal/service"
	"github.com/stemsi/exstem-cbt/internal/validator"
)

// AttemptHandler serves the student side of an exam attempt.
type AttemptHandler struct {
	engine *service.ExamTakingService
}

// NewAttemptHandler creates a new AttemptHandler.
func NewAttemptHandler(engine *service.ExamTakingService) *AttemptHandler {
	return &AttemptHandler{engine: engine}
}

// StartAttempt godoc
// POST /api/v1/student/exams/:exam_id/attempts
// Starts a new attempt or resumes the running one.
func (h *AttemptHandler) StartAttempt(c *gin.Context) {
	claims := middleware.GetClaims(c)

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	a, err := h.engine.Start(c.Request.Context(), claims.UserID, examID, model.ClientMeta{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		failWithError(c, err)
		return
	}

	view, err := h.engine.GetSessionView(c.Request.Context(), a.ID)
	if err != nil {
		failWithError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"attempt": a,
		"session": view,
	})
}

// GetSession godoc
// GET /api/v1/student/attempts/:attempt_id
func (h *AttemptHandler) GetSession(c *gin.Context) {
	a, ok := h.ownedAttempt(c)
	if !ok {
		return
	}

	view, err := h.engine.GetSessionView(c.Request.Context(), a.ID)
	if err != nil {
		failWithError(c, err)
		return
	}
	response.Success(c, http.StatusOK, view)
}

// SubmitAnswer godoc
// PUT /api/v1/student/attempts/:attempt_id/answers/:question_id
func (h *AttemptHandler) SubmitAnswer(c *gin.Context) {
	a, ok := h.ownedAttempt(c)
	if !ok {
		return
	}
	questionID, ok := questionParam(c)
	if !ok {
		return
	}

	var req model.SubmitAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	rec, err := h.engine.SubmitAnswer(c.Request.Context(), a.ID, questionID, req.Answer, req.TimeSpentSeconds)
	if err != nil {
		failWithError(c, err)
		return
	}

	// The grade stays hidden until results are released.
	response.Success(c, http.StatusOK, gin.H{
		"question_id": rec.QuestionID,
		"answer_text": rec.AnswerText,
		"is_flagged":  rec.IsFlagged,
		"answered_at": rec.AnsweredAt,
	})
}

// FlagQuestion godoc
// POST /api/v1/student/attempts/:attempt_id/questions/:question_id/flag
func (h *AttemptHandler) FlagQuestion(c *gin.Context) {
	h.setFlag(c, true)
}

// UnflagQuestion godoc
// DELETE /api/v1/student/attempts/:attempt_id/questions/:question_id/flag
func (h *AttemptHandler) UnflagQuestion(c *gin.Context) {
	h.setFlag(c, false)
}

func (h *AttemptHandler) setFlag(c *gin.Context, flagged bool) {
	a, ok := h.ownedAttempt(c)
	if !ok {
		return
	}
	questionID, ok := questionParam(c)
	if !ok {
		return
	}

	var (
		rec *model.AnswerRecord
		err error
	)
	if flagged {
		rec, err = h.engine.FlagQuestion(c.Request.Context(), a.ID, questionID)
	} else {
		rec, err = h.engine.UnflagQuestion(c.Request.Context(), a.ID, questionID)
	}
	if err != nil {
		failWithError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"question_id": rec.QuestionID,
		"is_flagged":  rec.IsFlagged,
	})
}

// RecordTabSwitch godoc
// POST /api/v1/student/attempts/:attempt_id/tab-switch
func (h *AttemptHandler) RecordTabSwitch(c *gin.Context) {
	a, ok := h.ownedAttempt(c)
	if !ok {
		return
	}

	count, err := h.engine.RecordTabSwitch(c.Request.Context(), a.ID)
	if err != nil {
		failWithError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"tab_switch_count": count})
}

// SubmitAttempt godoc
// POST /api/v1/student/attempts/:attempt_id/submit
// Submits manually. Repeating the call returns the same outcome.
func (h *AttemptHandler) SubmitAttempt(c *gin.Context) {
	a, ok := h.ownedAttempt(c)
	if !ok {
		return
	}

	summary, err := h.engine.Submit(c.Request.Context(), a.ID, model.SubmitReasonManual)
	if err != nil {
		failWithError(c, err)
		return
	}

	data, err := h.submitOutcome(c, summary)
	if err != nil {
		failWithError(c, err)
		return
	}
	response.Success(c, http.StatusOK, data)
}

// submitOutcome reveals the result summary only once it is released.
func (h *AttemptHandler) submitOutcome(c *gin.Context, summary *model.ResultSummary) (gin.H, error) {
	data := gin.H{
		"attempt_id": summary.AttemptID,
		"status":     summary.Status,
		"end_reason": summary.EndReason,
		"end_time":   summary.EndTime,
	}

	result, err := h.engine.ComputeResults(c.Request.Context(), summary.AttemptID)
	switch {
	case err == nil:
		data["result"] = result
		return data, nil
	case errors.Is(err, attempt.ErrResultsNotAvailable):
		if summary.Status == model.AttemptStatusCompleted {
			a, exam, lookupErr := attemptWithExam(c.Request.Context(), h.engine, summary.AttemptID)
			if lookupErr != nil {
				return nil, lookupErr
			}
			data["results_available_at"] = attempt.ResultsReleaseAt(a, exam)
		}
		return data, nil
	default:
		return nil, err
	}
}

// GetTimeRemaining godoc
// GET /api/v1/student/attempts/:attempt_id/time
func (h *AttemptHandler) GetTimeRemaining(c *gin.Context) {
	a, ok := h.ownedAttempt(c)
	if !ok {
		return
	}

	exam, err := h.engine.GetExam(c.Request.Context(), a.ExamID)
	if err != nil {
		failWithError(c, err)
		return
	}

	status := a.Status
	expired := h.engine.ShouldAutoSubmit(a, exam)
	if expired {
		// The watchdog may lag a sweep behind; close the attempt now.
		summary, err := h.engine.AutoSubmitOnTimeout(c.Request.Context(), a.ID)
		if err != nil {
			failWithError(c, err)
			return
		}
		status = summary.Status
	}

	response.Success(c, http.StatusOK, gin.H{
		"status":                 status,
		"time_remaining_seconds": h.engine.GetTimeRemaining(a, exam),
		"expired":                expired,
	})
}

// GetResults godoc
// GET /api/v1/student/attempts/:attempt_id/results
func (h *AttemptHandler) GetResults(c *gin.Context) {
	a, ok := h.ownedAttempt(c)
	if !ok {
		return
	}

	result, err := h.engine.ComputeResults(c.Request.Context(), a.ID)
	if err != nil {
		failWithError(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}

// ownedAttempt parses :attempt_id and loads it for the calling student.
// It writes the error response itself and reports false on failure.
func (h *AttemptHandler) ownedAttempt(c *gin.Context) (*model.ExamAttempt, bool) {
	claims := middleware.GetClaims(c)

	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return nil, false
	}

	a, err := h.engine.GetOwnedAttempt(c.Request.Context(), attemptID, claims.UserID)
	if err != nil {
		failWithError(c, err)
		return nil, false
	}
	return a, true
}

func attemptWithExam(ctx context.Context, engine *service.ExamTakingService, attemptID uuid.UUID) (*model.ExamAttempt, *model.Exam, error) {
	a, err := engine.GetAttempt(ctx, attemptID)
	if err != nil {
		return nil, nil, err
	}
	exam, err := engine.GetExam(ctx, a.ExamID)
	if err != nil {
		return nil, nil, err
	}
	return a, exam, nil
}

func questionParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("question_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return id, true
}
