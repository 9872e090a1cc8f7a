package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"log/slog"

	"github.com/foyerhq/foyer/internal/domain"
)

// SignatureHeader carries the hex HMAC-SHA256 of the request body.
const SignatureHeader = "X-Foyer-Signature"

// Webhook delivers user.created notifications to an external endpoint.
// Delivery is best effort: failures are logged and never surfaced to the
// registration flow.
type Webhook struct {
	url    string
	secret []byte
	client *http.Client
	logger *slog.Logger
}

// NewWebhook constructs a Webhook. A zero timeout falls back to five seconds.
func NewWebhook(url, secret string, timeout time.Duration, logger *slog.Logger) *Webhook {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Webhook{
		url:    url,
		secret: []byte(secret),
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

type payload struct {
	Kind  string    `json:"kind"`
	At    time.Time `json:"at"`
	User  string    `json:"user_id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
}

// Notify posts the event to the configured endpoint. It is safe to call
// from the event dispatcher; slow or failing endpoints cost at most the
// client timeout.
func (w *Webhook) Notify(ctx context.Context, event domain.Event) {
	if w.url == "" {
		return
	}
	body, err := json.Marshal(payload{
		Kind:  event.Kind,
		At:    event.At,
		User:  event.User.ID,
		Name:  event.User.Name,
		Email: event.User.Email,
	})
	if err != nil {
		w.logger.Error("marshal webhook payload", "error", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		w.logger.Error("build webhook request", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, Sign(body, w.secret))

	resp, err := w.client.Do(req)
	if err != nil {
		w.logger.Warn("webhook delivery failed", "url", w.url, "error", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		w.logger.Warn("webhook delivery rejected", "url", w.url, "status", resp.StatusCode)
		return
	}
	w.logger.Info("webhook delivered", "kind", event.Kind, "status", resp.StatusCode)
}

// Sign computes the hex HMAC-SHA256 signature for payload.
func Sign(payload []byte, secret []byte) string {
	hasher := hmac.New(sha256.New, secret)
	hasher.Write(payload)
	return hex.EncodeToString(hasher.Sum(nil))
}

// ValidateSignature checks a provided signature against payload.
func ValidateSignature(payload []byte, secret []byte, provided string) error {
	if provided == "" {
		return fmt.Errorf("missing webhook signature")
	}
	expected := Sign(payload, secret)
	if !hmac.Equal([]byte(provided), []byte(expected)) {
		return fmt.Errorf("invalid webhook signature")
	}
	return nil
}
