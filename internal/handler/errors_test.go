package handler

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stemsi/exstem-cbt/internal/attempt"
	"github.com/stemsi/exstem-cbt/internal/response"
	"github.com/stemsi/exstem-cbt/internal/service"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   response.ErrCode
	}{
		{service.ErrExamNotFound, http.StatusNotFound, response.ErrExamNotFound},
		{fmt.Errorf("load: %w", service.ErrAttemptNotOwned), http.StatusForbidden, response.ErrAttemptNotOwned},
		{fmt.Errorf("%w: time limit reached", attempt.ErrExamNotInProgress), http.StatusConflict, response.ErrExamNotInProgress},
		{fmt.Errorf("%w: 2 of 2 used", attempt.ErrAttemptLimitExceeded), http.StatusForbidden, response.ErrAttemptLimitExceeded},
		{attempt.ErrSchedulingWindowViolation, http.StatusForbidden, response.ErrOutsideExamWindow},
		{attempt.ErrInvalidTransition, http.StatusConflict, response.ErrInvalidTransition},
		{service.ErrNoQuestions, http.StatusConflict, response.ErrNoQuestions},
		{errors.New("connection reset"), http.StatusInternalServerError, response.ErrInternal},
	}
	for _, tt := range tests {
		status, code := classify(tt.err)
		if status != tt.status || code != tt.code {
			t.Errorf("classify(%v) = %d %s, want %d %s", tt.err, status, code, tt.status, tt.code)
		}
	}
}
