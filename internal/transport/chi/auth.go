package chi

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// exemptPaths bypass authentication.
var exemptPaths = map[string]struct{}{
	"/health":  {},
	"/metrics": {},
}

const tenantRoutePrefix = "/v1/tenants/"

// apiKey is a configured credential. A key written as "tenant:secret" only
// opens that tenant's routes; a key without a colon opens every route.
type apiKey struct {
	tenant string
	secret []byte
}

func parseKeys(raw []string) []apiKey {
	keys := make([]apiKey, 0, len(raw))
	for _, k := range raw {
		if k == "" {
			continue
		}
		tenant, secret, scoped := strings.Cut(k, ":")
		if !scoped {
			keys = append(keys, apiKey{secret: []byte(k)})
			continue
		}
		if tenant == "" || secret == "" {
			continue
		}
		keys = append(keys, apiKey{tenant: tenant, secret: []byte(secret)})
	}
	return keys
}

// BearerAuthMiddleware validates Bearer tokens against apiKeys.
// With no usable keys authentication is disabled.
func BearerAuthMiddleware(apiKeys []string) func(http.Handler) http.Handler {
	keys := parseKeys(apiKeys)

	return func(next http.Handler) http.Handler {
		if len(keys) == 0 {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := exemptPaths[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			auth := r.Header.Get("Authorization")
			if auth == "" {
				writeError(w, http.StatusUnauthorized, CodeUnauthorized, "missing authorization header")
				return
			}
			token, ok := strings.CutPrefix(auth, "Bearer ")
			if !ok {
				writeError(w, http.StatusUnauthorized,
					CodeUnauthorized, "authorization header must use Bearer scheme")
				return
			}

			key, ok := match(keys, []byte(token))
			if !ok {
				writeError(w, http.StatusUnauthorized, CodeUnauthorized, "invalid api key")
				return
			}
			if key.tenant != "" && key.tenant != pathTenant(r.URL.Path) {
				writeError(w, http.StatusForbidden, CodeForbidden, "api key is not valid for this tenant")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// match compares in constant time against every configured key.
func match(keys []apiKey, token []byte) (apiKey, bool) {
	var found apiKey
	ok := false
	for _, k := range keys {
		if subtle.ConstantTimeCompare(k.secret, token) == 1 && !ok {
			found, ok = k, true
		}
	}
	return found, ok
}

// pathTenant extracts {tenant} from /v1/tenants/{tenant}/...; routing has
// not run yet so chi URL params are not available.
func pathTenant(path string) string {
	rest, ok := strings.CutPrefix(path, tenantRoutePrefix)
	if !ok {
		return ""
	}
	tenant, _, _ := strings.Cut(rest, "/")
	return tenant
}
