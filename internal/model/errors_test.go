package model

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeNotFound, CodeOf(E(CodeNotFound, "gone")))
	assert.Equal(t, CodeConflict, CodeOf(fmt.Errorf("wrapped: %w", E(CodeConflict, "raced"))))
	assert.Equal(t, CodeInternal, CodeOf(fmt.Errorf("plain error")))
	assert.Equal(t, CodeInternal, CodeOf(nil))
}

func TestErrorFormatting(t *testing.T) {
	err := E(CodeInvalidArgument, "bad value %d", 42)
	assert.Equal(t, "INVALID_ARGUMENT: bad value 42", err.Error())

	withDetails := E(CodeConflict, "version conflict").WithDetails(map[string]int{"expected": 3})
	assert.Equal(t, map[string]int{"expected": 3}, withDetails.Details)
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{CodeNotFound, http.StatusNotFound},
		{CodeInvalidState, http.StatusBadRequest},
		{CodeInvalidArgument, http.StatusBadRequest},
		{CodeConflict, http.StatusConflict},
		{CodePreconditionFailed, http.StatusPreconditionFailed},
		{CodeUnauthenticated, http.StatusUnauthorized},
		{CodePermissionDenied, http.StatusForbidden},
		{CodeRateLimited, http.StatusTooManyRequests},
		{CodeDeadlineExceeded, http.StatusGatewayTimeout},
		{CodeInternal, http.StatusInternalServerError},
		{Code("SOMETHING_ELSE"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HTTPStatus(tt.code), string(tt.code))
	}
}
