package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func testKeys() RoleKeys {
	return RoleKeys{
		AdminKey:     "admin-key",
		AdminAddr:    "0xadmin",
		OperatorKey:  "op-key",
		OperatorAddr: "0xoperator",
	}
}

// callerEcho records the caller identity RoleAuth resolved.
func callerEcho(got *string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*got = CallerFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func TestRoleAuthResolvesIdentity(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		value      string
		wantCaller string
	}{
		{"admin bearer", "Authorization", "Bearer admin-key", "0xadmin"},
		{"operator bearer", "Authorization", "Bearer op-key", "0xoperator"},
		{"admin api key header", "X-API-Key", "admin-key", "0xadmin"},
		{"anonymous", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			h := RoleAuth(testKeys())(callerEcho(&got))

			req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			assert.Equal(t, http.StatusOK, rr.Code)
			assert.Equal(t, tt.wantCaller, got)
		})
	}
}

func TestRoleAuthRejectsUnknownToken(t *testing.T) {
	h := RoleAuth(testKeys())(callerEcho(new(string)))

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, rr.Body.String(), "invalid authentication token")
}

func TestRoleAuthEmptyKeyNeverMatches(t *testing.T) {
	keys := testKeys()
	keys.OperatorKey = ""
	h := RoleAuth(keys)(callerEcho(new(string)))

	// An empty configured key must not be matchable.
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-API-Key", "")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code, "blank header means anonymous, not a token")

	req = httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Authorization", "Bearer op-key")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRequireAuth(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/admin/fees", nil)
	rr := httptest.NewRecorder()
	RequireAuth(next).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/admin/fees", nil)
	req = req.WithContext(WithCaller(req.Context(), "0xadmin"))
	rr = httptest.NewRecorder()
	RequireAuth(next).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}
