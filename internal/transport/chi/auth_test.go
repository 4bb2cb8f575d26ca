package chi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func serveAuth(keys []string, path, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, http.NoBody)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rr := httptest.NewRecorder()
	BearerAuthMiddleware(keys)(okHandler()).ServeHTTP(rr, req)
	return rr
}

func TestBearerAuth_Disabled(t *testing.T) {
	for name, keys := range map[string][]string{
		"nil":           nil,
		"empty strings": {"", ""},
		"broken scoped": {"acme:", ":secret"},
	} {
		t.Run(name, func(t *testing.T) {
			rr := serveAuth(keys, "/v1/tenants/acme/query", "")
			assert.Equal(t, http.StatusOK, rr.Code)
		})
	}
}

func TestBearerAuth(t *testing.T) {
	keys := []string{"root-key", "second-key", "acme:acme-key"}

	tests := []struct {
		name   string
		path   string
		auth   string
		status int
		code   ErrorCode
	}{
		{"missing header", "/v1/tenants/acme/query", "", http.StatusUnauthorized, CodeUnauthorized},
		{"basic scheme", "/v1/tenants/acme/query", "Basic dXNlcjpwYXNz", http.StatusUnauthorized, CodeUnauthorized},
		{"unknown key", "/v1/tenants/acme/query", "Bearer wrong-key", http.StatusUnauthorized, CodeUnauthorized},
		{"scoped spelling is not a token", "/v1/tenants/acme/query", "Bearer acme:acme-key", http.StatusUnauthorized, CodeUnauthorized},
		{"global key", "/v1/tenants/acme/query", "Bearer root-key", http.StatusOK, ""},
		{"second global key", "/v1/tenants/globex/documents", "Bearer second-key", http.StatusOK, ""},
		{"global key on usage", "/usage", "Bearer root-key", http.StatusOK, ""},
		{"scoped key own tenant", "/v1/tenants/acme/documents", "Bearer acme-key", http.StatusOK, ""},
		{"scoped key other tenant", "/v1/tenants/globex/query", "Bearer acme-key", http.StatusForbidden, CodeForbidden},
		{"scoped key tenant prefix", "/v1/tenants/acme-corp/query", "Bearer acme-key", http.StatusForbidden, CodeForbidden},
		{"scoped key on usage", "/usage", "Bearer acme-key", http.StatusForbidden, CodeForbidden},
		{"health exempt", "/health", "", http.StatusOK, ""},
		{"metrics exempt", "/metrics", "", http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := serveAuth(keys, tt.path, tt.auth)
			require.Equal(t, tt.status, rr.Code)
			if tt.code == "" {
				return
			}
			var resp ErrorResponse
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
			assert.Equal(t, tt.code, resp.Code)
		})
	}
}

func TestPathTenant(t *testing.T) {
	for path, want := range map[string]string{
		"/v1/tenants/acme/query": "acme",
		"/v1/tenants/acme":       "acme",
		"/v1/tenants/":           "",
		"/usage":                 "",
	} {
		assert.Equal(t, want, pathTenant(path), path)
	}
}
