package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/99minutos/direct-messaging/internal/core/domain"
)

func TestHTTPErrorHandler(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
		msg  string
	}{
		{"echo error", echo.NewHTTPError(http.StatusBadRequest, "invalid payload"), http.StatusBadRequest, "invalid payload"},
		{"invalid credentials", domain.ErrInvalidCredentials, http.StatusUnauthorized, "invalid credentials"},
		{"expired token", fmt.Errorf("verify: %w", domain.ErrExpiredCredential), http.StatusUnauthorized, "token expired"},
		{"user not found", fmt.Errorf("find: %w", domain.ErrUserNotFound), http.StatusNotFound, "user not found"},
		{"user exists", domain.ErrUserExists, http.StatusConflict, "username already taken"},
		{"storage", fmt.Errorf("history: %w: timeout", domain.ErrStorage), http.StatusServiceUnavailable, "storage unavailable"},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, "internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

			NewHTTPErrorHandler(zerolog.Nop())(tt.err, c)

			if rec.Code != tt.code {
				t.Fatalf("expected %d, got %d", tt.code, rec.Code)
			}
			var resp errorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("invalid json: %v", err)
			}
			if resp.Error != tt.msg {
				t.Fatalf("expected %q, got %q", tt.msg, resp.Error)
			}
		})
	}
}
