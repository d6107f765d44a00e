package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "custodia/pkg/domain-errors"
)

func TestWriteError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		want   ErrorResponse
	}{
		{
			name:   "internal message is hidden",
			err:    dErrors.New(dErrors.CodeInternal, "db failed"),
			status: http.StatusInternalServerError,
			want:   ErrorResponse{Error: "internal_error"},
		},
		{
			name:   "uncoded errors are internal",
			err:    errors.New("boom"),
			status: http.StatusInternalServerError,
			want:   ErrorResponse{Error: "internal_error"},
		},
		{
			name:   "client errors carry their message",
			err:    dErrors.New(dErrors.CodeBadRequest, "invalid input"),
			status: http.StatusBadRequest,
			want:   ErrorResponse{Error: "bad_request", ErrorDescription: "invalid input"},
		},
		{
			name:   "insufficient funds",
			err:    dErrors.New(dErrors.CodeInsufficientFunds, "escrow holds 5 of target 10"),
			status: http.StatusPaymentRequired,
			want:   ErrorResponse{Error: "insufficient_funds", ErrorDescription: "escrow holds 5 of target 10"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(w, tt.err)

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			var got ErrorResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	var dst struct {
		Amount uint64 `json:"amount"`
	}

	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount": 5}`))
	require.NoError(t, DecodeJSON(httptest.NewRecorder(), r, &dst))
	assert.Equal(t, uint64(5), dst.Amount)

	for name, body := range map[string]string{
		"unknown field": `{"amount": 5, "extra": true}`,
		"malformed":     `{"amount":`,
		"wrong type":    `{"amount": "five"}`,
	} {
		t.Run(name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
			err := DecodeJSON(httptest.NewRecorder(), r, &dst)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest), "got %v", err)
		})
	}
}
