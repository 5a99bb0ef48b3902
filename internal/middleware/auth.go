package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/mtadic/portfolio-backend/internal/auth"

	log "github.com/sirupsen/logrus"
)

type authorizer interface {
	Authenticate(ctx context.Context, token string) (*auth.TokenClaims, error)
}

type AuthMiddlewareHandler struct {
	authService  authorizer
	allowedPaths map[string]bool
}

func NewAuthMiddlewareHandler(authService authorizer) *AuthMiddlewareHandler {
	return &AuthMiddlewareHandler{
		authService: authService,
		allowedPaths: map[string]bool{
			// misc:
			"/":        true,
			"/version": true,

			// login-logout, these handle the cookie themselves:
			"/a/login":  true,
			"/a/logout": true,
			"/a/verify": true,
			"/a/init":   true,
		},
	}
}

// AuthCheck gates all admin writes behind a valid cookie session. The
// three stages (missing cookie, bad token, dead session) all answer
// 401 but with distinct messages, so the frontend can tell "never
// logged in" from "superseded by a newer login".
func (h *AuthMiddlewareHandler) AuthCheck() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				w.Header().Add("Allow", "GET, POST, PUT, OPTIONS")
				w.WriteHeader(http.StatusOK)
				return
			}

			if h.allowedPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			// content: reads are public, writes go through the gate
			if strings.HasPrefix(r.URL.Path, "/content/") && r.Method == http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}

			cookie, err := r.Cookie(auth.CookieName)
			if err != nil {
				log.Tracef("[missing cookie] [auth middleware] unauthorized => %s", r.URL.Path)
				http.Error(w, "not authenticated", http.StatusUnauthorized)
				return
			}

			if _, err := h.authService.Authenticate(r.Context(), cookie.Value); err != nil {
				log.Tracef("[auth middleware] unauthorized => %s: %s", r.URL.Path, err)
				if errors.Is(err, auth.ErrSessionExpired) {
					http.Error(w, "session expired", http.StatusUnauthorized)
				} else {
					http.Error(w, "invalid token", http.StatusUnauthorized)
				}
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
