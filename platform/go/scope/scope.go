package scope

import (
	"context"

	"github.com/google/uuid"
)

// Scope is the tenant boundary constraining which prospect rows a caller may
// see or mutate. It is threaded explicitly through every service and store
// call; nothing below the HTTP layer reads ambient auth state.
type Scope struct {
	ActorID  uuid.UUID
	TenantID *uuid.UUID
}

// Personal returns a scope constrained to the actor's own records.
func Personal(actorID uuid.UUID) Scope {
	return Scope{ActorID: actorID}
}

// Scoped returns a scope constrained to every record of the actor's organization.
func Scoped(actorID, tenantID uuid.UUID) Scope {
	return Scope{ActorID: actorID, TenantID: &tenantID}
}

// IsScoped reports whether the scope is organization-wide.
func (s Scope) IsScoped() bool {
	return s.TenantID != nil
}

type ctxKey struct{}

// WithScope returns a derived context carrying the resolved Scope.
func WithScope(ctx context.Context, s Scope) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext extracts the Scope and a boolean indicating presence.
func FromContext(ctx context.Context) (Scope, bool) {
	s, ok := ctx.Value(ctxKey{}).(Scope)
	return s, ok
}
