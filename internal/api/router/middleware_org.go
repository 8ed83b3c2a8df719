package router

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	httpmiddleware "github.com/antonbillionaire/staffix/internal/http/middleware"
	"github.com/antonbillionaire/staffix/internal/tenancy"
)

// requireBusinessAccess scopes admin requests to the {businessID} route
// parameter and rejects tokens limited to another business.
func requireBusinessAccess(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		businessID := strings.TrimSpace(chi.URLParam(r, "businessID"))
		if businessID == "" {
			http.Error(w, "missing businessID", http.StatusBadRequest)
			return
		}
		claims, ok := httpmiddleware.AdminClaimsFromContext(r.Context())
		if !ok || !claims.AllowsBusiness(businessID) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		ctx := tenancy.WithBusinessID(r.Context(), businessID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
