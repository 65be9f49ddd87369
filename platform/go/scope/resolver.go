package scope

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/leadpilot-crm/leadpilot-saas/platform/go/auth"
	"github.com/leadpilot-crm/leadpilot-saas/platform/go/logging"
)

// ErrUnauthenticated indicates no resolvable scope for the caller. Surfaced as
// an authorization failure; never retried automatically.
var ErrUnauthenticated = errors.New("unauthenticated")

// MembershipLookup resolves an actor's current organization, if any.
type MembershipLookup interface {
	OrganizationFor(ctx context.Context, actorID uuid.UUID) (*uuid.UUID, error)
}

// Resolver derives the tenant scope for the authenticated caller. Membership
// is read from the store on every call: a user may have joined an organization
// since their token was issued, so the claim is never trusted as current and
// the result is never cached across requests.
type Resolver struct {
	members MembershipLookup
}

// NewResolver constructs a Resolver.
func NewResolver(members MembershipLookup) *Resolver {
	if members == nil {
		panic("membership lookup is required")
	}
	return &Resolver{members: members}
}

// Resolve returns the caller's scope or ErrUnauthenticated.
func (r *Resolver) Resolve(ctx context.Context) (Scope, error) {
	creds, ok := auth.UserFromContext(ctx)
	if !ok || creds == nil {
		return Scope{}, ErrUnauthenticated
	}

	actorID, err := uuid.Parse(creds.ID)
	if err != nil {
		return Scope{}, fmt.Errorf("%w: malformed subject", ErrUnauthenticated)
	}

	orgID, err := r.members.OrganizationFor(ctx, actorID)
	if err != nil {
		return Scope{}, fmt.Errorf("resolve membership: %w", err)
	}
	if orgID == nil {
		return Personal(actorID), nil
	}
	return Scoped(actorID, *orgID), nil
}

// Require is HTTP middleware that resolves the caller's scope once per request
// and attaches it to the context, rejecting unauthenticated callers.
func Require(resolver *Resolver, fallback *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, err := resolver.Resolve(r.Context())
			if err != nil {
				if errors.Is(err, ErrUnauthenticated) {
					http.Error(w, "unauthorized", http.StatusUnauthorized)
					return
				}
				logger := logging.FromRequest(r, fallback)
				if logger != nil {
					logger.Error("resolve scope", zap.Error(err))
				}
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithScope(r.Context(), s)))
		})
	}
}
