package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		err    *AppError
		code   string
		status int
	}{
		{"validation", Validation("bad", "field"), CodeValidation, http.StatusBadRequest},
		{"not found", NotFound("lesson"), CodeNotFound, http.StatusNotFound},
		{"unauthorized", Unauthorized("no"), CodeUnauthorized, http.StatusUnauthorized},
		{"conflict", Conflict("dup"), CodeConflict, http.StatusConflict},
		{"invalid state", InvalidState("not answering"), CodeInvalidState, http.StatusConflict},
		{"unavailable", Unavailable("sandbox", "timeout"), CodeUnavailable, http.StatusServiceUnavailable},
		{"unprocessable", Unprocessable("gems", ""), CodeUnprocessable, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.status, tt.err.Status)
		})
	}
	assert.Equal(t, "lesson not found", NotFound("lesson").Message)
}

func TestErrorString(t *testing.T) {
	assert.Equal(t, "[CONFLICT] dup", Conflict("dup").Error())
	assert.Equal(t, "[VALIDATION_ERROR] bad: field", Validation("bad", "field").Error())
}

func TestAsUnwrapsChain(t *testing.T) {
	wrapped := fmt.Errorf("run check: %w", Unavailable("sandbox", "timeout"))

	appErr, ok := As(wrapped)
	assert.True(t, ok)
	assert.Equal(t, CodeUnavailable, appErr.Code)
	assert.True(t, HasCode(wrapped, CodeUnavailable))
	assert.False(t, HasCode(fmt.Errorf("plain"), CodeUnavailable))
}
