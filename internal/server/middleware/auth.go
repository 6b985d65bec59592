package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
)

type contextKey string

const callerKey contextKey = "caller"

// RoleKeys maps the two API keys onto the vault identities they act as.
// A key left empty disables that role at the HTTP layer.
type RoleKeys struct {
	AdminKey     string
	AdminAddr    string
	OperatorKey  string
	OperatorAddr string
}

// RoleAuth returns middleware that resolves the request's caller identity
// from either a Bearer token or the X-API-Key header. Requests without a
// token pass through anonymously; the service layer rejects anonymous
// calls to privileged operations. A present-but-unknown token is a 401.
func RoleAuth(keys RoleKeys) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			// Constant-time comparison to prevent timing attacks.
			switch {
			case keys.AdminKey != "" &&
				subtle.ConstantTimeCompare([]byte(token), []byte(keys.AdminKey)) == 1:
				r = r.WithContext(WithCaller(r.Context(), keys.AdminAddr))
			case keys.OperatorKey != "" &&
				subtle.ConstantTimeCompare([]byte(token), []byte(keys.OperatorKey)) == 1:
				r = r.WithContext(WithCaller(r.Context(), keys.OperatorAddr))
			default:
				writeUnauthorized(w, "invalid authentication token")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// WithCaller stores the caller identity on the context.
func WithCaller(ctx context.Context, addr string) context.Context {
	return context.WithValue(ctx, callerKey, addr)
}

// CallerFromContext returns the caller identity resolved by RoleAuth, or
// the empty string for anonymous requests.
func CallerFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(callerKey).(string); ok {
		return v
	}
	return ""
}

// RequireAuth returns middleware that rejects anonymous requests. It is
// applied to the admin subtree so that read-only endpoints with no
// service-layer role check are still hidden from unauthenticated clients.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if CallerFromContext(r.Context()) == "" {
			writeUnauthorized(w, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// extractToken looks for a token in the Authorization header (Bearer
// scheme) or in the X-API-Key header.
func extractToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		return strings.TrimSpace(key)
	}
	return ""
}

// writeUnauthorized sends a 401 response with a JSON error body.
func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}
