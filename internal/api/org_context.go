package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/jadidihosein68/osaconnect/internal/pkg/httputil"
)

// OrgHeader names the tenant header on /api routes.
const OrgHeader = "X-Organization-ID"

type orgContextKey struct{}

// RequireOrg rejects requests without a valid X-Organization-ID header and
// stores the organization id on the request context.
func RequireOrg(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get(OrgHeader))
		if raw == "" {
			httputil.BadRequest(w, OrgHeader+" header is required")
			return
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			httputil.BadRequest(w, OrgHeader+" must be a UUID")
			return
		}
		ctx := context.WithValue(r.Context(), orgContextKey{}, id.String())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// OrgID returns the organization set by RequireOrg, or "".
func OrgID(ctx context.Context) string {
	id, _ := ctx.Value(orgContextKey{}).(string)
	return id
}
