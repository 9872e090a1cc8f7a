package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/foyerhq/foyer/internal/domain"
	"github.com/foyerhq/foyer/internal/repository"
	"github.com/foyerhq/foyer/internal/service/registration"
	"github.com/foyerhq/foyer/internal/service/session"
	"github.com/foyerhq/foyer/internal/ws"
	"github.com/foyerhq/foyer/pkg/crypto"
)

type userRepoStub struct {
	byEmail   map[string]*domain.User
	createErr error
}

func newUserRepoStub() *userRepoStub {
	return &userRepoStub{byEmail: make(map[string]*domain.User)}
}

func (s *userRepoStub) CreateUser(_ context.Context, user *domain.User) error {
	if s.createErr != nil {
		return s.createErr
	}
	if _, ok := s.byEmail[user.Email]; ok {
		return repository.ErrDuplicate
	}
	clone := *user
	s.byEmail[user.Email] = &clone
	return nil
}

func (s *userRepoStub) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	user, ok := s.byEmail[email]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return user, nil
}

func (s *userRepoStub) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	for _, user := range s.byEmail {
		if user.ID == id {
			return user, nil
		}
	}
	return nil, repository.ErrNotFound
}

type bus struct{}

func (bus) Publish(domain.Event) {}

func setupRouter(t *testing.T, repo *userRepoStub) *Router {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sessions := session.New(session.NewMemoryStore(), session.Config{
		Secret:     "test-secret",
		CookieName: "foyer_session",
		ExpiryDays: 5,
	}, logger)
	reg := registration.New(repo, crypto.NewHasher(bcrypt.MinCost), sessions, bus{}, registration.DefaultPolicy(), logger)
	router := NewRouter(logger, reg, sessions, repo, ws.NewHub(), NewMemoryRateLimiter(), "", nil)
	t.Cleanup(router.Close)
	return router
}

func registerBody() *bytes.Reader {
	payload, _ := json.Marshal(map[string]string{
		"name":             "Ann",
		"email":            "Ann@Example.com",
		"password":         "Secret123",
		"confirm_password": "Secret123",
	})
	return bytes.NewReader(payload)
}

func doRegister(t *testing.T, router *Router) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/auth/register", registerBody())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == "foyer_session" {
			return cookie
		}
	}
	t.Fatal("no session cookie in response")
	return nil
}

func TestRegisterEndpointCreatesAccountAndSession(t *testing.T) {
	repo := newUserRepoStub()
	router := setupRouter(t, repo)

	rec := doRegister(t, router)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var body struct {
		Redirect  string `json:"redirect"`
		ExpiresAt string `json:"expires_at"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if body.Redirect != "/welcome" {
		t.Errorf("expected redirect /welcome, got %q", body.Redirect)
	}

	cookie := sessionCookie(t, rec)
	if cookie.Value == "" || !cookie.HttpOnly {
		t.Errorf("expected HttpOnly cookie with token, got %+v", cookie)
	}

	if _, ok := repo.byEmail["ann@example.com"]; !ok {
		t.Error("user not stored under normalized email")
	}
}

func TestRegisterEndpointRejectsInvalidForm(t *testing.T) {
	router := setupRouter(t, newUserRepoStub())

	payload, _ := json.Marshal(map[string]string{
		"name":             "",
		"email":            "bad",
		"password":         "x",
		"confirm_password": "y",
	})
	req := httptest.NewRequest(http.MethodPost, "/auth/register", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Violations []registration.Violation `json:"violations"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if len(body.Violations) == 0 {
		t.Fatal("expected violations in response")
	}
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == "foyer_session" {
			t.Fatal("rejected request must not set a session cookie")
		}
	}
}

func TestRegisterEndpointDuplicateEmail(t *testing.T) {
	router := setupRouter(t, newUserRepoStub())

	if rec := doRegister(t, router); rec.Code != http.StatusCreated {
		t.Fatalf("first registration failed: %d", rec.Code)
	}
	rec := doRegister(t, router)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "already in use") {
		t.Errorf("expected duplicate message, got %s", rec.Body.String())
	}
}

func TestRegisterEndpointPersistenceFailure(t *testing.T) {
	repo := newUserRepoStub()
	repo.createErr = context.DeadlineExceeded
	router := setupRouter(t, repo)

	rec := doRegister(t, router)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "deadline") {
		t.Error("internal error details must not leak to the client")
	}
}

func TestRegisterEndpointMethodNotAllowed(t *testing.T) {
	router := setupRouter(t, newUserRepoStub())
	req := httptest.NewRequest(http.MethodGet, "/auth/register", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestLoginEndpoint(t *testing.T) {
	router := setupRouter(t, newUserRepoStub())
	if rec := doRegister(t, router); rec.Code != http.StatusCreated {
		t.Fatalf("registration failed: %d", rec.Code)
	}

	login := func(email, password string) *httptest.ResponseRecorder {
		payload, _ := json.Marshal(map[string]string{"email": email, "password": password})
		req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(payload))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	rec := login("ann@example.com", "Secret123")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if cookie := sessionCookie(t, rec); cookie.Value == "" {
		t.Error("expected session cookie on login")
	}

	if rec := login("ann@example.com", "WrongPass1"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong password, got %d", rec.Code)
	}
	if rec := login("nobody@example.com", "Secret123"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unknown email, got %d", rec.Code)
	}
}

func TestMeEndpoint(t *testing.T) {
	router := setupRouter(t, newUserRepoStub())
	reg := doRegister(t, router)
	cookie := sessionCookie(t, reg)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		User struct {
			Name  string `json:"name"`
			Email string `json:"email"`
		} `json:"user"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if body.User.Name != "Ann" || body.User.Email != "ann@example.com" {
		t.Errorf("unexpected user payload %+v", body.User)
	}
}

func TestMeEndpointRequiresAuth(t *testing.T) {
	router := setupRouter(t, newUserRepoStub())
	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestLogoutRevokesSession(t *testing.T) {
	router := setupRouter(t, newUserRepoStub())
	reg := doRegister(t, router)
	cookie := sessionCookie(t, reg)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.AddCookie(cookie)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", rec.Code)
	}
}

func TestRegisterEndpointRateLimited(t *testing.T) {
	router := setupRouter(t, newUserRepoStub())

	var last *httptest.ResponseRecorder
	for i := 0; i <= rateLimitRegister; i++ {
		req := httptest.NewRequest(http.MethodPost, "/auth/register", registerBody())
		req.RemoteAddr = "10.0.0.9:1234"
		last = httptest.NewRecorder()
		router.ServeHTTP(last, req)
	}
	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after %d attempts, got %d", rateLimitRegister+1, last.Code)
	}
	if last.Header().Get("X-RateLimit-Limit") == "" {
		t.Error("expected rate limit headers")
	}
}

func TestHealthz(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := newUserRepoStub()
	sessions := session.New(session.NewMemoryStore(), session.Config{Secret: "s", CookieName: "foyer_session", ExpiryDays: 5}, logger)
	reg := registration.New(repo, crypto.NewHasher(bcrypt.MinCost), sessions, bus{}, registration.DefaultPolicy(), logger)

	healthy := func(context.Context) error { return nil }
	router := NewRouter(logger, reg, sessions, repo, ws.NewHub(), NewMemoryRateLimiter(), "", healthy)
	defer router.Close()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	broken := func(context.Context) error { return context.DeadlineExceeded }
	router2 := NewRouter(logger, reg, sessions, repo, ws.NewHub(), NewMemoryRateLimiter(), "", broken)
	defer router2.Close()

	rec = httptest.NewRecorder()
	router2.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when database is down, got %d", rec.Code)
	}
}

func TestCookieExpiryMatchesConfiguredDays(t *testing.T) {
	router := setupRouter(t, newUserRepoStub())
	before := time.Now()
	rec := doRegister(t, router)
	after := time.Now()

	cookie := sessionCookie(t, rec)
	low := before.Add(5 * 24 * time.Hour).Add(-2 * time.Second)
	high := after.Add(5 * 24 * time.Hour).Add(2 * time.Second)
	if cookie.Expires.Before(low) || cookie.Expires.After(high) {
		t.Fatalf("cookie expiry %v outside expected five-day window [%v, %v]", cookie.Expires, low, high)
	}
}
