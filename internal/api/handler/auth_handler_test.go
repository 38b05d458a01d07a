package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/99minutos/direct-messaging/internal/core/domain"
)

type stubAuthService struct {
	registerFn func(ctx context.Context, username, password string) (string, *domain.User, error)
	loginFn    func(ctx context.Context, username, password string) (string, *domain.User, error)
}

func (s *stubAuthService) Register(ctx context.Context, username, password string) (string, *domain.User, error) {
	return s.registerFn(ctx, username, password)
}

func (s *stubAuthService) Login(ctx context.Context, username, password string) (string, *domain.User, error) {
	return s.loginFn(ctx, username, password)
}

func newEcho() *echo.Echo {
	e := echo.New()
	e.Validator = NewValidator()
	return e
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func expectHTTPError(t *testing.T, err error, code int) *echo.HTTPError {
	t.Helper()
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("expected echo.HTTPError, got %v", err)
	}
	if he.Code != code {
		t.Fatalf("expected %d, got %d (%v)", code, he.Code, he.Message)
	}
	return he
}

func TestAuthHandler_Register_Success(t *testing.T) {
	e := newEcho()
	stub := &stubAuthService{
		registerFn: func(ctx context.Context, username, password string) (string, *domain.User, error) {
			if username != "alice_1" || password != "secret1" {
				t.Fatalf("unexpected args: %s %s", username, password)
			}
			return "token123", &domain.User{ID: "u1", Username: username}, nil
		},
	}
	handler := NewAuthHandler(stub)

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/api/auth/register", `{"username":"alice_1","password":"secret1"}`), rec)

	if err := handler.Register(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp["token"] != "token123" {
		t.Fatalf("expected token, got %v", resp["token"])
	}
	user, ok := resp["user"].(map[string]any)
	if !ok || user["id"] != "u1" || user["username"] != "alice_1" {
		t.Fatalf("unexpected user payload: %+v", resp["user"])
	}
	if strings.Contains(rec.Body.String(), "password") {
		t.Fatalf("response leaks password field: %s", rec.Body.String())
	}
}

func TestAuthHandler_Register_UserExists(t *testing.T) {
	e := newEcho()
	stub := &stubAuthService{
		registerFn: func(ctx context.Context, username, password string) (string, *domain.User, error) {
			return "", nil, domain.ErrUserExists
		},
	}

	c := e.NewContext(jsonRequest(http.MethodPost, "/api/auth/register", `{"username":"bob","password":"secret1"}`), httptest.NewRecorder())

	if err := NewAuthHandler(stub).Register(c); !errors.Is(err, domain.ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

func TestAuthHandler_Register_Validation(t *testing.T) {
	stub := &stubAuthService{
		registerFn: func(ctx context.Context, username, password string) (string, *domain.User, error) {
			t.Fatalf("should not be called")
			return "", nil, nil
		},
	}

	tests := []struct {
		name string
		body string
		msg  string
	}{
		{"not json", "not-json", "invalid payload"},
		{"missing username", `{"password":"secret1"}`, "username is required"},
		{"short username", `{"username":"al","password":"secret1"}`, "username must be 3-20 letters, digits or underscores"},
		{"bad characters", `{"username":"al ice","password":"secret1"}`, "username must be 3-20 letters, digits or underscores"},
		{"short password", `{"username":"alice","password":"12345"}`, "password must be at least 6 characters"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEcho()
			c := e.NewContext(jsonRequest(http.MethodPost, "/api/auth/register", tt.body), httptest.NewRecorder())

			he := expectHTTPError(t, NewAuthHandler(stub).Register(c), http.StatusBadRequest)
			if he.Message != tt.msg {
				t.Fatalf("expected %q, got %v", tt.msg, he.Message)
			}
		})
	}
}

func TestAuthHandler_Login_Success(t *testing.T) {
	e := newEcho()
	stub := &stubAuthService{
		loginFn: func(ctx context.Context, username, password string) (string, *domain.User, error) {
			if username != "alice" || password != "secret" {
				t.Fatalf("unexpected args: %s %s", username, password)
			}
			return "token123", &domain.User{ID: "u1", Username: "alice"}, nil
		},
	}

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/api/auth/login", `{"username":"alice","password":"secret"}`), rec)

	if err := NewAuthHandler(stub).Login(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp authResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp.Token != "token123" || resp.User == nil || resp.User.DisplayName != "alice" {
		t.Fatalf("unexpected payload: %+v", resp)
	}
}

func TestAuthHandler_Login_InvalidCredentials(t *testing.T) {
	e := newEcho()
	stub := &stubAuthService{
		loginFn: func(ctx context.Context, username, password string) (string, *domain.User, error) {
			return "", nil, domain.ErrInvalidCredentials
		},
	}

	c := e.NewContext(jsonRequest(http.MethodPost, "/api/auth/login", `{"username":"alice","password":"bad"}`), httptest.NewRecorder())

	if err := NewAuthHandler(stub).Login(c); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestAuthHandler_Login_InvalidPayload(t *testing.T) {
	e := newEcho()
	stub := &stubAuthService{
		loginFn: func(ctx context.Context, username, password string) (string, *domain.User, error) {
			t.Fatalf("should not be called")
			return "", nil, nil
		},
	}

	c := e.NewContext(jsonRequest(http.MethodPost, "/api/auth/login", `{"username":"alice"}`), httptest.NewRecorder())

	expectHTTPError(t, NewAuthHandler(stub).Login(c), http.StatusBadRequest)
}
