package middleware

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

// TenantKey is the context key for the resolved tenant name.
const TenantKey contextKey = "tenant"

// TenantExtractor extracts the tenant from the request. It checks the
// X-Tenant header, then the tenant query parameter, and falls back to
// "default".
func TenantExtractor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenant := ""

		if h := r.Header.Get("X-Tenant"); h != "" {
			tenant = strings.TrimSpace(h)
		}
		if tenant == "" {
			if q := r.URL.Query().Get("tenant"); q != "" {
				tenant = strings.TrimSpace(q)
			}
		}
		if tenant == "" {
			tenant = "default"
		}

		ctx := context.WithValue(r.Context(), TenantKey, tenant)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetTenant retrieves the tenant name from the request context.
func GetTenant(ctx context.Context) string {
	if v, ok := ctx.Value(TenantKey).(string); ok {
		return v
	}
	return "default"
}
