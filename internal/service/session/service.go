package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/foyerhq/foyer/internal/domain"
	"github.com/foyerhq/foyer/pkg/token"
)

var (
	// ErrNotFound indicates the session was never issued, expired, or revoked.
	ErrNotFound = errors.New("session: not found")
	// ErrInvalidToken indicates the presented token failed verification.
	ErrInvalidToken = errors.New("session: invalid token")
)

// Session is an issued sign-in: the signed cookie value plus its lifetime.
type Session struct {
	ID        string
	Token     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Config carries the issuance parameters for sessions and their cookies.
type Config struct {
	Secret        string
	CookieName    string
	ExpiryDays    int
	SecureCookies bool
}

// Service issues, authorizes and revokes sessions.
type Service struct {
	store Store
	cfg   Config
	log   *slog.Logger
	now   func() time.Time
}

// New constructs a session Service. An ExpiryDays of zero or less falls back
// to five days.
func New(store Store, cfg Config, log *slog.Logger) *Service {
	if cfg.ExpiryDays <= 0 {
		cfg.ExpiryDays = 5
	}
	return &Service{store: store, cfg: cfg, log: log, now: time.Now}
}

// Issue creates a session for user. Expiry is the issuance instant plus the
// configured number of days, nothing is rounded or truncated.
func (s *Service) Issue(ctx context.Context, user domain.User) (*Session, error) {
	issuedAt := s.now()
	expiresAt := issuedAt.Add(time.Duration(s.cfg.ExpiryDays) * 24 * time.Hour)

	rec := Record{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}
	if err := s.store.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	signed, err := token.Sign(token.Claims{
		UserID:    user.ID,
		Name:      user.Name,
		Email:     user.Email,
		SessionID: rec.ID,
	}, s.cfg.Secret, issuedAt, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("sign session token: %w", err)
	}

	return &Session{
		ID:        rec.ID,
		Token:     signed,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}, nil
}

// Authorize verifies a presented token and confirms the session is still
// live in the store. It returns the verified claims.
func (s *Service) Authorize(ctx context.Context, raw string) (*token.Claims, error) {
	claims, err := token.Parse(raw, s.cfg.Secret)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if _, err := s.store.Get(ctx, claims.SessionID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	return claims, nil
}

// Revoke deletes a session so its token stops authorizing requests.
func (s *Service) Revoke(ctx context.Context, sessionID string) error {
	return s.store.Delete(ctx, sessionID)
}

// Cookie builds the HTTP cookie carrying sess.
func (s *Service) Cookie(sess *Session) *http.Cookie {
	return &http.Cookie{
		Name:     s.cfg.CookieName,
		Value:    sess.Token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   s.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	}
}

// ClearCookie builds an expired cookie that removes the session cookie.
func (s *Service) ClearCookie() *http.Cookie {
	return &http.Cookie{
		Name:     s.cfg.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	}
}

// CookieName exposes the configured cookie name for request parsing.
func (s *Service) CookieName() string {
	return s.cfg.CookieName
}
