package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/99minutos/direct-messaging/internal/api/middleware"
	"github.com/99minutos/direct-messaging/internal/core/domain"
)

type stubDirectory struct {
	meFn       func(ctx context.Context, identity domain.Identity) (*domain.User, error)
	userFn     func(ctx context.Context, id string) (*domain.User, error)
	contactsFn func(ctx context.Context, identity domain.Identity) ([]*domain.User, error)
	historyFn  func(ctx context.Context, identity domain.Identity, limit int) ([]*domain.Message, error)
}

func (s *stubDirectory) Me(ctx context.Context, identity domain.Identity) (*domain.User, error) {
	return s.meFn(ctx, identity)
}

func (s *stubDirectory) User(ctx context.Context, id string) (*domain.User, error) {
	return s.userFn(ctx, id)
}

func (s *stubDirectory) Contacts(ctx context.Context, identity domain.Identity) ([]*domain.User, error) {
	return s.contactsFn(ctx, identity)
}

func (s *stubDirectory) History(ctx context.Context, identity domain.Identity, limit int) ([]*domain.Message, error) {
	return s.historyFn(ctx, identity, limit)
}

var alice = domain.Identity{ID: "u1", DisplayName: "alice"}

func authedContext(e *echo.Echo, req *http.Request, rec *httptest.ResponseRecorder) echo.Context {
	c := e.NewContext(req, rec)
	middleware.WithIdentity(c, alice)
	return c
}

func TestUserHandler_List(t *testing.T) {
	e := newEcho()
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	stub := &stubDirectory{
		contactsFn: func(ctx context.Context, identity domain.Identity) ([]*domain.User, error) {
			if identity != alice {
				t.Fatalf("unexpected identity: %+v", identity)
			}
			return []*domain.User{
				{ID: "u2", Username: "bob", PasswordHash: "hash", CreatedAt: created},
				{ID: "u3", Username: "carol", PasswordHash: "hash", CreatedAt: created},
			}, nil
		},
	}

	rec := httptest.NewRecorder()
	c := authedContext(e, httptest.NewRequest(http.MethodGet, "/api/users", nil), rec)

	if err := NewUserHandler(stub).List(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}

	var resp []userResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if len(resp) != 2 || resp[0].Username != "bob" || resp[1].ID != "u3" {
		t.Fatalf("unexpected payload: %+v", resp)
	}
}

func TestUserHandler_RequiresIdentity(t *testing.T) {
	e := newEcho()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/users/me", nil), httptest.NewRecorder())

	expectHTTPError(t, NewUserHandler(&stubDirectory{}).Me(c), http.StatusUnauthorized)
}

func TestUserHandler_Me(t *testing.T) {
	e := newEcho()
	stub := &stubDirectory{
		meFn: func(ctx context.Context, identity domain.Identity) (*domain.User, error) {
			return &domain.User{ID: identity.ID, Username: identity.DisplayName}, nil
		},
	}

	rec := httptest.NewRecorder()
	c := authedContext(e, httptest.NewRequest(http.MethodGet, "/api/users/me", nil), rec)

	if err := NewUserHandler(stub).Me(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}

	var resp userResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp.ID != "u1" || resp.Username != "alice" {
		t.Fatalf("unexpected payload: %+v", resp)
	}
}

func TestUserHandler_Get_NotFound(t *testing.T) {
	e := newEcho()
	stub := &stubDirectory{
		userFn: func(ctx context.Context, id string) (*domain.User, error) {
			if id != "ghost" {
				t.Fatalf("unexpected id: %s", id)
			}
			return nil, domain.ErrUserNotFound
		},
	}

	c := authedContext(e, httptest.NewRequest(http.MethodGet, "/api/users/ghost", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("ghost")

	if err := NewUserHandler(stub).Get(c); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}
