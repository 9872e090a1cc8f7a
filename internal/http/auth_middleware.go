package httpx

import (
	"context"
	"errors"
	"net/http"
)

type authContextKey string

type authInfo struct {
	UserID    string
	SessionID string
	Name      string
	Email     string
}

const contextKeyAuth authContextKey = "foyer-auth-info"

type contextSetter interface {
	SetContext(context.Context)
}

// requireAuth ensures the request carries a valid session cookie before
// invoking the handler.
func (r *Router) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		ctx, _, ok := r.ensureAuth(w, req)
		if !ok {
			return
		}
		if setter, ok := w.(contextSetter); ok {
			setter.SetContext(ctx)
		}
		next(w, req.WithContext(ctx))
	}
}

// ensureAuth validates the session cookie and enriches the context.
func (r *Router) ensureAuth(w http.ResponseWriter, req *http.Request) (context.Context, authInfo, bool) {
	cookie, err := req.Cookie(r.sessions.CookieName())
	if err != nil || cookie.Value == "" {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return req.Context(), authInfo{}, false
	}
	claims, err := r.sessions.Authorize(req.Context(), cookie.Value)
	if err != nil {
		r.logger.Warn("session validation failed", "error", err, "path", req.URL.Path)
		writeError(w, http.StatusUnauthorized, "authentication failed")
		return req.Context(), authInfo{}, false
	}
	info := authInfo{
		UserID:    claims.UserID,
		SessionID: claims.SessionID,
		Name:      claims.Name,
		Email:     claims.Email,
	}
	ctx := context.WithValue(req.Context(), contextKeyAuth, info)
	return ctx, info, true
}

// authInfoFromContext extracts auth metadata from context.
func authInfoFromContext(ctx context.Context) (authInfo, bool) {
	value := ctx.Value(contextKeyAuth)
	if value == nil {
		return authInfo{}, false
	}
	info, ok := value.(authInfo)
	return info, ok
}

var errNoSessionCookie = errors.New("no session cookie")

// sessionCookie returns the raw cookie value for optional-auth paths.
func (r *Router) sessionCookie(req *http.Request) (string, error) {
	cookie, err := req.Cookie(r.sessions.CookieName())
	if err != nil || cookie.Value == "" {
		return "", errNoSessionCookie
	}
	return cookie.Value, nil
}
