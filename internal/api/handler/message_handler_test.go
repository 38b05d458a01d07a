package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/99minutos/direct-messaging/internal/core/domain"
)

func TestMessageHandler_History(t *testing.T) {
	e := newEcho()
	sent := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	var gotLimit int
	stub := &stubDirectory{
		historyFn: func(ctx context.Context, identity domain.Identity, limit int) ([]*domain.Message, error) {
			gotLimit = limit
			return []*domain.Message{
				{ID: "m1", Sender: "alice", Receiver: "bob", Body: "hi", SentAt: sent},
			}, nil
		},
	}

	rec := httptest.NewRecorder()
	c := authedContext(e, httptest.NewRequest(http.MethodGet, "/api/messages?limit=50", nil), rec)

	if err := NewMessageHandler(stub).History(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if gotLimit != 50 {
		t.Fatalf("expected limit 50, got %d", gotLimit)
	}

	want := `[{"persistedId":"m1","sender":"alice","receiver":"bob","message":"hi","timestamp":"2024-03-01T12:00:00Z"}]`
	if got := rec.Body.String(); got != want+"\n" {
		t.Fatalf("unexpected body: %s", got)
	}
}

func TestMessageHandler_History_EmptyIsArray(t *testing.T) {
	e := newEcho()
	stub := &stubDirectory{
		historyFn: func(ctx context.Context, identity domain.Identity, limit int) ([]*domain.Message, error) {
			return nil, nil
		},
	}

	rec := httptest.NewRecorder()
	c := authedContext(e, httptest.NewRequest(http.MethodGet, "/api/messages", nil), rec)

	if err := NewMessageHandler(stub).History(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Body.String() != "[]\n" {
		t.Fatalf("expected empty array, got %s", rec.Body.String())
	}
}

func TestMessageHandler_History_BadLimit(t *testing.T) {
	e := newEcho()
	c := authedContext(e, httptest.NewRequest(http.MethodGet, "/api/messages?limit=abc", nil), httptest.NewRecorder())

	expectHTTPError(t, NewMessageHandler(&stubDirectory{}).History(c), http.StatusBadRequest)
}
