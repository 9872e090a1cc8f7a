package notify

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/foyerhq/foyer/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testEvent() domain.Event {
	return domain.Event{
		Kind: domain.EventUserCreated,
		User: domain.User{ID: "u1", Name: "Ann", Email: "ann@example.com"},
		At:   time.Now(),
	}
}

func TestNotifyPostsSignedPayload(t *testing.T) {
	received := make(chan *http.Request, 1)
	bodies := make(chan []byte, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		received <- r
		bodies <- body
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	hook := NewWebhook(srv.URL, "hook-secret", time.Second, testLogger())
	hook.Notify(context.Background(), testEvent())

	select {
	case req := <-received:
		body := <-bodies
		if req.Header.Get("Content-Type") != "application/json" {
			t.Errorf("expected json content type, got %q", req.Header.Get("Content-Type"))
		}
		sig := req.Header.Get(SignatureHeader)
		if err := ValidateSignature(body, []byte("hook-secret"), sig); err != nil {
			t.Errorf("signature does not verify: %v", err)
		}
		var p payload
		if err := json.Unmarshal(body, &p); err != nil {
			t.Fatalf("bad payload: %v", err)
		}
		if p.Kind != domain.EventUserCreated || p.User != "u1" || p.Email != "ann@example.com" {
			t.Errorf("unexpected payload %+v", p)
		}
	case <-time.After(time.Second):
		t.Fatal("webhook was never delivered")
	}
}

func TestNotifySwallowsDeliveryFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	hook := NewWebhook(srv.URL, "hook-secret", time.Second, testLogger())
	hook.Notify(context.Background(), testEvent())
}

func TestNotifyNoopWithoutURL(t *testing.T) {
	hook := NewWebhook("", "hook-secret", time.Second, testLogger())
	hook.Notify(context.Background(), testEvent())
}

func TestValidateSignature(t *testing.T) {
	body := []byte(`{"kind":"user.created"}`)
	secret := []byte("hook-secret")

	if err := ValidateSignature(body, secret, Sign(body, secret)); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}
	if err := ValidateSignature(body, secret, ""); err == nil {
		t.Fatal("missing signature accepted")
	}
	if err := ValidateSignature(body, secret, Sign(body, []byte("wrong"))); err == nil {
		t.Fatal("foreign signature accepted")
	}
}
