package http

import (
	"context"
	"net/http"

	"github.com/avrach/go_storefront/internal/domain"
	"github.com/google/uuid"
)

type contextKey string

const (
	principalKey contextKey = "principal"
	requestIDKey contextKey = "request_id"
)

// HeaderAuthMiddleware trusts the identity headers an upstream session
// layer sets after validating the session. Session issuance itself is not
// this service's job; everything downstream only sees the Principal.
func HeaderAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal := domain.Principal{
			UserID: r.Header.Get("X-User-ID"),
			Admin:  r.Header.Get("X-User-Role") == "admin",
		}
		ctx := context.WithValue(r.Context(), principalKey, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestIDMiddleware adds a unique request ID to each request
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func principalFromContext(ctx context.Context) domain.Principal {
	if p, ok := ctx.Value(principalKey).(domain.Principal); ok {
		return p
	}
	return domain.Principal{}
}

// requirePrincipal writes 401 and returns false when no user is present.
func requirePrincipal(w http.ResponseWriter, r *http.Request) (domain.Principal, bool) {
	principal := principalFromContext(r.Context())
	if !principal.Authenticated() {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return domain.Principal{}, false
	}
	return principal, true
}

func requireAdmin(w http.ResponseWriter, r *http.Request) (domain.Principal, bool) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return domain.Principal{}, false
	}
	if !principal.Admin {
		respondError(w, http.StatusForbidden, "forbidden", "admin access required")
		return domain.Principal{}, false
	}
	return principal, true
}
