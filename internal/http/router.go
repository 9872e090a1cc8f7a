package httpx

import (
	"bufio"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"github.com/gorilla/websocket"

	"github.com/foyerhq/foyer/internal/domain"
	"github.com/foyerhq/foyer/internal/repository"
	"github.com/foyerhq/foyer/internal/service/registration"
	"github.com/foyerhq/foyer/internal/service/session"
	"github.com/foyerhq/foyer/internal/ws"
)

// Router wires HTTP endpoints to services.
type Router struct {
	mux          *http.ServeMux
	logger       *slog.Logger
	registration *registration.Service
	sessions     *session.Service
	users        repository.UserRepository
	hub          *ws.Hub
	upgrader     websocket.Upgrader
	limiter      RateLimiter
	eventsToken  string
	dbHealth     func(context.Context) error
}

const (
	rateWindowDefault  = time.Minute
	rateWindowRealtime = 30 * time.Second
	rateLimitRegister  = 5
	rateLimitLogin     = 12
	rateLimitUserRead  = 120
	rateLimitWebsocket = 30
	healthCheckTimeout = 2 * time.Second
)

// NewRouter assembles routes with dependencies.
func NewRouter(
	logger *slog.Logger,
	registrationSvc *registration.Service,
	sessionSvc *session.Service,
	users repository.UserRepository,
	hub *ws.Hub,
	limiter RateLimiter,
	eventsToken string,
	dbHealth func(context.Context) error,
) *Router {
	r := &Router{
		mux:          http.NewServeMux(),
		logger:       logger,
		registration: registrationSvc,
		sessions:     sessionSvc,
		users:        users,
		hub:          hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		limiter:     limiter,
		eventsToken: strings.TrimSpace(eventsToken),
		dbHealth:    dbHealth,
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	r.register()
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	r.mux.HandleFunc("/healthz", r.audit(r.handleHealthz))
	r.mux.HandleFunc("/auth/register", r.audit(r.withRateLimit(rateLimitRegister, rateWindowDefault, rateLimitKeyIP, r.handleRegister)))
	r.mux.HandleFunc("/auth/login", r.audit(r.withRateLimit(rateLimitLogin, rateWindowDefault, rateLimitKeyIP, r.handleLogin)))
	r.mux.HandleFunc("/auth/logout", r.audit(r.requireAuth(r.handleLogout)))
	r.mux.HandleFunc("/auth/me", r.audit(r.handlerAuthRate(rateLimitUserRead, rateWindowDefault, r.handleMe)))
	r.mux.HandleFunc("/ws/events", r.audit(r.withRateLimit(rateLimitWebsocket, rateWindowRealtime, rateLimitKeyIP, r.handleEventsWS)))
}

func userPayload(user *domain.User) map[string]any {
	return map[string]any{
		"id":         user.ID,
		"name":       user.Name,
		"email":      user.Email,
		"created_at": user.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func (r *Router) handleRegister(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload registration.Request
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	result, err := r.registration.Register(req.Context(), payload)
	if err != nil {
		r.logger.Error("registration failed", "error", err)
		writeError(w, http.StatusInternalServerError, "registration failed")
		return
	}
	switch result.Outcome {
	case registration.OutcomeRejected:
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"violations": result.Violations,
		})
	case registration.OutcomeDuplicate:
		writeJSON(w, http.StatusConflict, map[string]any{
			"error": result.Message,
		})
	case registration.OutcomeAuthenticated:
		http.SetCookie(w, r.sessions.Cookie(result.Session))
		writeJSON(w, http.StatusCreated, map[string]any{
			"redirect":   result.Redirect,
			"expires_at": result.Session.ExpiresAt.UTC().Format(time.RFC3339Nano),
		})
	default:
		r.logger.Error("unknown registration outcome", "outcome", result.Outcome)
		writeError(w, http.StatusInternalServerError, "registration failed")
	}
}

func (r *Router) handleLogin(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	user, sess, err := r.registration.SignIn(req.Context(), payload.Email, payload.Password)
	if err != nil {
		if errors.Is(err, registration.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid email or password")
			return
		}
		r.logger.Error("login failed", "error", err)
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}
	http.SetCookie(w, r.sessions.Cookie(sess))
	writeJSON(w, http.StatusOK, map[string]any{
		"user":       userPayload(user),
		"expires_at": sess.ExpiresAt.UTC().Format(time.RFC3339Nano),
	})
}

func (r *Router) handleLogout(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	info, _ := authInfoFromContext(req.Context())
	if info.SessionID != "" {
		if err := r.sessions.Revoke(req.Context(), info.SessionID); err != nil {
			r.logger.Error("session revoke failed", "error", err, "session_id", info.SessionID)
			writeError(w, http.StatusInternalServerError, "logout failed")
			return
		}
	}
	http.SetCookie(w, r.sessions.ClearCookie())
	w.WriteHeader(http.StatusNoContent)
}

func (r *Router) handleMe(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	user, err := r.users.GetUserByID(req.Context(), info.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "account no longer exists")
			return
		}
		r.logger.Error("load current user failed", "error", err, "user_id", info.UserID)
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": userPayload(user)})
}

func (r *Router) handleEventsWS(w http.ResponseWriter, req *http.Request) {
	if !r.authorizeEventStream(w, req) {
		return
	}
	kind := strings.TrimSpace(req.URL.Query().Get("kind"))
	if kind == "" {
		kind = domain.EventUserCreated
	}
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	client := ws.NewClient(conn, r.logger)
	r.hub.Register(kind, client)
	defer func() {
		r.hub.Unregister(kind, client)
		client.Close()
	}()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// authorizeEventStream admits operators with the configured stream token,
// or any signed-in user.
func (r *Router) authorizeEventStream(w http.ResponseWriter, req *http.Request) bool {
	if r.eventsToken != "" {
		token := strings.TrimSpace(req.Header.Get("X-Events-Token"))
		if token == "" {
			token = strings.TrimSpace(req.URL.Query().Get("events_token"))
		}
		if token != "" {
			if len(token) == len(r.eventsToken) && subtle.ConstantTimeCompare([]byte(token), []byte(r.eventsToken)) == 1 {
				return true
			}
			r.logger.Warn("events token mismatch", "path", req.URL.Path)
			writeError(w, http.StatusUnauthorized, "invalid events token")
			return false
		}
	}
	raw, err := r.sessionCookie(req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return false
	}
	if _, err := r.sessions.Authorize(req.Context(), raw); err != nil {
		writeError(w, http.StatusUnauthorized, "authentication failed")
		return false
	}
	return true
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	status := "ok"
	components := map[string]any{}
	if r.dbHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.dbHealth(ctx); err != nil {
			status = "degraded"
			components["database"] = map[string]any{
				"status": "down",
				"error":  err.Error(),
			}
		} else {
			components["database"] = map[string]any{"status": "up"}
		}
	}
	payload := map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (r *Router) audit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		ctx := recorder.ctx
		if ctx == nil {
			ctx = req.Context()
		}
		duration := time.Since(start)
		actor := "anonymous"
		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
		}
		if ip := clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		if reqID := strings.TrimSpace(req.Header.Get("X-Request-ID")); reqID != "" {
			fields = append(fields, "request_id", reqID)
		}
		if info, ok := authInfoFromContext(ctx); ok {
			actor = "user"
			fields = append(fields, "user_id", info.UserID)
		}
		fields = append(fields, "actor", actor)

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
	ctx    context.Context
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) SetContext(ctx context.Context) {
	sr.ctx = ctx
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

func clientIP(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}

func (r *Router) applyRateHeaders(w http.ResponseWriter, limit int, decision rateDecision) {
	if limit <= 0 {
		return
	}
	remaining := limit - decision.count
	if remaining < 0 {
		remaining = 0
	}
	headers := w.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	if !decision.windowEnd.IsZero() {
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(decision.windowEnd.Unix(), 10))
	}
}
