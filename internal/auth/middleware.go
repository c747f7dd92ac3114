package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/JustinTDCT/CineHub/internal/httputil"
)

type contextKey string

const (
	ContextUser contextKey = "user"
)

type ContextUserData struct {
	UserID  string
	IsAdmin bool
}

type Middleware struct {
	auth *Auth
}

func NewMiddleware(a *Auth) *Middleware {
	return &Middleware{auth: a}
}

// Authenticate attaches the caller to the context when a valid token is
// present. Anonymous requests pass through; a bad token is rejected.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := ExtractToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}
		claims, err := m.auth.ValidateToken(token)
		if err != nil {
			code, msg := "UNAUTHORIZED", "invalid token"
			if errors.Is(err, ErrTokenExpired) {
				code, msg = "SESSION_EXPIRED", "token expired"
			}
			httputil.WriteError(w, http.StatusUnauthorized, code, msg)
			return
		}
		ctx := context.WithValue(r.Context(), ContextUser, ContextUserData{
			UserID:  claims.Subject,
			IsAdmin: claims.IsAdmin,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAuth must run after Authenticate.
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if UserFromContext(r.Context()) == nil {
			httputil.WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (m *Middleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := UserFromContext(r.Context())
		if user == nil || !user.IsAdmin {
			httputil.WriteError(w, http.StatusForbidden, "FORBIDDEN", "admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func UserFromContext(ctx context.Context) *ContextUserData {
	if v, ok := ctx.Value(ContextUser).(ContextUserData); ok {
		return &v
	}
	return nil
}

// ExtractToken reads the bearer token from the Authorization header, the
// session cookie or, for websocket upgrades, the token query parameter.
func ExtractToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	if c, err := r.Cookie("session"); err == nil {
		return c.Value
	}
	return r.URL.Query().Get("token")
}
