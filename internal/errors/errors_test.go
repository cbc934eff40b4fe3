package errors

import (
	"errors"
	"net/http"
	"testing"

	"hvt/domain/core"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		code     string
		httpCode int
	}{
		{"task not found", core.NewTaskNotFoundError("x"), CodeNotFound, http.StatusNotFound},
		{"empty name", core.ErrEmptyTaskName, CodeInvalidArgument, http.StatusBadRequest},
		{"rule failure", core.NewRuleError("numeric_match", "missing"), CodeRuleFailure, http.StatusBadRequest},
		{"judge failure", core.NewJudgeError("openai", errors.New("eof")), CodeJudgeFailure, http.StatusBadGateway},
		{"plain", errors.New("boom"), CodeInternalError, http.StatusInternalServerError},
		{"config", ConfigInvalid("PORT"), CodeConfigInvalid, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, GetCode(tt.err))
			assert.Equal(t, tt.httpCode, HTTPStatus(tt.err))
		})
	}
}

func TestWrapKeepsCauseAndCode(t *testing.T) {
	cause := core.NewTaskNotFoundError("gsm8k")
	wrapped := Wrapf(cause, "verify %s", "gsm8k")

	assert.Equal(t, CodeNotFound, GetCode(wrapped))
	assert.True(t, errors.Is(wrapped, core.ErrTaskNotFound))
	assert.Nil(t, Wrap(nil, "nothing"))

	rewrapped := Wrap(wrapped, "outer")
	assert.Equal(t, CodeNotFound, GetCode(rewrapped))
	assert.True(t, errors.Is(rewrapped, core.ErrNotFound))
}
