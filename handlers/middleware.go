package handlers

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/chukwumela909/taskhub-server/auth"
	"github.com/chukwumela909/taskhub-server/domain"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

type KeyPrincipal struct{}

type AuthHandler struct {
	provider *auth.Provider
	logger   *log.Logger
}

func NewAuthHandler(p *auth.Provider, l *log.Logger) *AuthHandler {
	return &AuthHandler{p, l}
}

// MiddlewareAuth rejects requests without a valid bearer token and stores
// the caller's principal in the request context.
func (a *AuthHandler) MiddlewareAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			writeErrorResp(fmt.Errorf("%w: missing bearer token", auth.ErrInvalidToken()), rw)
			return
		}

		principal, err := a.provider.Verify(strings.TrimSpace(token))
		if err != nil {
			a.logger.Printf("rejected token for %s %s: %v\n", r.Method, r.URL.Path, err)
			writeErrorResp(err, rw)
			return
		}

		ctx := context.WithValue(r.Context(), KeyPrincipal{}, principal)
		next.ServeHTTP(rw, r.WithContext(ctx))
	})
}

// RequireRole must run after MiddlewareAuth.
func RequireRole(role domain.Role) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			principal, ok := principalFrom(r)
			if !ok || principal.Role != role {
				writeErrorResp(fmt.Errorf("%w: %s role required", domain.ErrForbidden(), role), rw)
				return
			}
			next.ServeHTTP(rw, r)
		})
	}
}

func principalFrom(r *http.Request) (domain.Principal, bool) {
	p, ok := r.Context().Value(KeyPrincipal{}).(domain.Principal)
	return p, ok
}

func MiddlewareContentTypeSet(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Add("Content-Type", "application/json")

		next.ServeHTTP(rw, r)
	})
}

func ExtractTraceInfoMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
