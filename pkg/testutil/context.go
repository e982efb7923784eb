package testutil

import (
	"context"
	"time"

	id "custodia/pkg/domain"
	"custodia/pkg/requestcontext"
)

// Ctx builds a service-level context carrying tenant, actor, and a fixed time.
// Useful for service unit tests that skip the HTTP middleware chain.
func Ctx(tenantID id.TenantID, actorID string, at time.Time) context.Context {
	ctx := requestcontext.WithTenantID(context.Background(), tenantID)
	ctx = requestcontext.WithActorID(ctx, actorID)
	if !at.IsZero() {
		ctx = requestcontext.WithTime(ctx, at)
	}
	return ctx
}
