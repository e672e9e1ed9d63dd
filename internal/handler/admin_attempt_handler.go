package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-cbt/internal/middleware"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/response"
	"github.com/stemsi/exstem-cbt/internal/service"
	"github.com/stemsi/exstem-cbt/internal/validator"
)

const defaultPerPage = 50

// AdminAttemptHandler lets proctors inspect and close attempts.
type AdminAttemptHandler struct {
	engine *service.ExamTakingService
	log    zerolog.Logger
}

// NewAdminAttemptHandler creates a new AdminAttemptHandler.
func NewAdminAttemptHandler(engine *service.ExamTakingService, log zerolog.Logger) *AdminAttemptHandler {
	return &AdminAttemptHandler{
		engine: engine,
		log:    log.With().Str("component", "admin_attempt_handler").Logger(),
	}
}

// ListAttempts godoc
// GET /api/v1/admin/exams/:exam_id/attempts?status=&page=&per_page=
func (h *AdminAttemptHandler) ListAttempts(c *gin.Context) {
	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var q model.AttemptListQuery
	if fields := validator.BindQuery(c, &q); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	if q.Page == 0 {
		q.Page = 1
	}
	if q.PerPage == 0 {
		q.PerPage = defaultPerPage
	}

	attempts, err := h.engine.ListByExam(c.Request.Context(), examID)
	if err != nil {
		failWithError(c, err)
		return
	}

	filtered := make([]model.ExamAttempt, 0, len(attempts))
	for _, a := range attempts {
		if q.Status == "" || string(a.Status) == q.Status {
			filtered = append(filtered, a)
		}
	}

	page, pagination := response.Paginate(filtered, q.Page, q.PerPage)
	response.SuccessWithPagination(c, http.StatusOK, page, pagination)
}

// ForceSubmit godoc
// POST /api/v1/admin/attempts/:attempt_id/force-submit
// Closes a live attempt. With no answers it is marked abandoned.
func (h *AdminAttemptHandler) ForceSubmit(c *gin.Context) {
	claims := middleware.GetClaims(c)

	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	summary, err := h.engine.ForceSubmit(c.Request.Context(), attemptID)
	if err != nil {
		failWithError(c, err)
		return
	}

	h.log.Info().
		Int("admin_id", claims.UserID).
		Str("attempt_id", attemptID.String()).
		Str("status", string(summary.Status)).
		Msg("Attempt force-submitted")

	response.Success(c, http.StatusOK, summary)
}
