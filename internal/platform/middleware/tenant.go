package middleware

import (
	"log/slog"
	"net/http"

	id "custodia/pkg/domain"
	dErrors "custodia/pkg/domain-errors"
	"custodia/pkg/requestcontext"
)

const (
	// HeaderTenantID carries the tenant resolved by the edge gateway. The
	// service trusts it; authentication happens upstream.
	HeaderTenantID = "X-Tenant-ID"
	// HeaderActorID identifies the acting principal for change attribution.
	HeaderActorID = "X-Actor-ID"
)

type errorWriter func(w http.ResponseWriter, err error)

// TenantContext resolves the tenant and actor headers into the request
// context. Requests without a valid tenant ID are rejected before they reach
// any handler.
func TenantContext(logger *slog.Logger, writeError errorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get(HeaderTenantID)
			if raw == "" {
				writeError(w, dErrors.New(dErrors.CodeInvalidInput, "missing "+HeaderTenantID+" header"))
				return
			}
			tenantID, err := id.ParseTenantID(raw)
			if err != nil {
				logger.WarnContext(r.Context(), "rejected request with malformed tenant header",
					"tenant_header", raw,
					"request_id", requestcontext.RequestID(r.Context()),
				)
				writeError(w, err)
				return
			}

			ctx := requestcontext.WithTenantID(r.Context(), tenantID)
			if actor := r.Header.Get(HeaderActorID); actor != "" {
				ctx = requestcontext.WithActorID(ctx, actor)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
