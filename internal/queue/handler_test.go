package queue

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meddesk/consultq/internal/domain"
)

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decodeErrorBody(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"not found", ErrNotFound, http.StatusNotFound, CodeNotFound},
		{"forbidden", ErrForbidden, http.StatusForbidden, CodeForbidden},
		{"already accepted", ErrAlreadyAccepted, http.StatusConflict, CodeConflict},
		{"invalid state", ErrInvalidState, http.StatusConflict, CodeInvalidState},
		{"payment required", ErrPaymentRequired, http.StatusPaymentRequired, CodePaymentRequired},
		{"already paid", ErrAlreadyPaid, http.StatusConflict, CodeInvalidState},
		{"wrapped already paid", fmt.Errorf("enable payment: %w", ErrAlreadyPaid), http.StatusConflict, CodeInvalidState},
	}

	h := NewHandler(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/queue/abc/payment", nil)

			h.handleError(rec, req, tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			body := decodeErrorBody(t, rec)
			assert.Equal(t, tt.wantCode, body.Error.Code)
		})
	}
}

func TestHandler_ErrorMapping_QuotaLimit(t *testing.T) {
	h := NewHandler(nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/queue/broadcast", nil)
	resetAt := time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)

	h.handleError(rec, req, &LimitError{
		Window:     domain.QuotaWindowDaily,
		ResetAt:    resetAt,
		RetryAfter: 12 * time.Hour,
	})

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	var body struct {
		Error struct {
			Code              string    `json:"code"`
			Window            string    `json:"window"`
			ResetAt           time.Time `json:"reset_at"`
			RetryAfterSeconds int       `json:"retry_after_seconds"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, CodeEmergencyLimitReached, body.Error.Code)
	assert.Equal(t, string(domain.QuotaWindowDaily), body.Error.Window)
	assert.Equal(t, resetAt, body.Error.ResetAt)
	assert.Equal(t, 43200, body.Error.RetryAfterSeconds)
}

func TestHandler_DecodeReason(t *testing.T) {
	h := NewHandler(nil)

	t.Run("empty body is allowed", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/queue/abc/cancel", nil)

		got, ok := h.decodeReason(rec, req)
		assert.True(t, ok)
		assert.Empty(t, got.Reason)
	})

	t.Run("valid reason", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/queue/abc/cancel",
			strings.NewReader(`{"reason":"patient recovered"}`))

		got, ok := h.decodeReason(rec, req)
		assert.True(t, ok)
		assert.Equal(t, "patient recovered", got.Reason)
	})

	t.Run("malformed json is rejected", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/queue/abc/cancel",
			strings.NewReader(`{"reason":`))

		_, ok := h.decodeReason(rec, req)
		assert.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		body := decodeErrorBody(t, rec)
		assert.Equal(t, CodeInvalidArgument, body.Error.Code)
	})

	t.Run("reason over limit fails validation", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/queue/abc/cancel",
			strings.NewReader(`{"reason":"`+strings.Repeat("x", 2001)+`"}`))

		_, ok := h.decodeReason(rec, req)
		assert.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
