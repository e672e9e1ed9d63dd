package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-cbt/internal/attempt"
	"github.com/stemsi/exstem-cbt/internal/repository"
	"github.com/stemsi/exstem-cbt/internal/response"
	"github.com/stemsi/exstem-cbt/internal/service"
)

type errMapping struct {
	target error
	status int
	code   response.ErrCode
}

// engineErrors maps exam-engine errors to HTTP statuses and response codes.
// Order matters: the first match wins.
var engineErrors = []errMapping{
	{service.ErrExamNotFound, http.StatusNotFound, response.ErrExamNotFound},
	{service.ErrAttemptNotFound, http.StatusNotFound, response.ErrAttemptNotFound},
	{service.ErrQuestionNotInExam, http.StatusNotFound, response.ErrQuestionNotInExam},
	{service.ErrAttemptNotOwned, http.StatusForbidden, response.ErrAttemptNotOwned},
	{service.ErrExamNotPublished, http.StatusForbidden, response.ErrExamNotPublished},
	{service.ErrNoQuestions, http.StatusConflict, response.ErrNoQuestions},
	{attempt.ErrSchedulingWindowViolation, http.StatusForbidden, response.ErrOutsideExamWindow},
	{attempt.ErrAttemptLimitExceeded, http.StatusForbidden, response.ErrAttemptLimitExceeded},
	{attempt.ErrExamNotInProgress, http.StatusConflict, response.ErrExamNotInProgress},
	{attempt.ErrInvalidTransition, http.StatusConflict, response.ErrInvalidTransition},
	{attempt.ErrResultsNotAvailable, http.StatusForbidden, response.ErrResultsNotAvailable},
	{repository.ErrNotFound, http.StatusNotFound, response.ErrNotFound},
}

// classify returns the status and code for err; unknown errors are internal.
func classify(err error) (int, response.ErrCode) {
	for _, m := range engineErrors {
		if errors.Is(err, m.target) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, response.ErrInternal
}

// failWithError writes the mapped error response. Internal errors are logged
// through the request-scoped logger.
func failWithError(c *gin.Context, err error) {
	status, code := classify(err)
	if status == http.StatusInternalServerError {
		zerolog.Ctx(c.Request.Context()).Error().Err(err).
			Str("path", c.FullPath()).
			Msg("Request failed")
	}
	response.Fail(c, status, code)
}
