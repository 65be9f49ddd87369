package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UsersTable holds the registered users and their organization membership.
const UsersTable = "users"

// MembershipStore resolves tenant membership for scope resolution. Reads go
// straight to the table on every call; membership can change between requests
// and the resolver depends on seeing that promptly.
type MembershipStore struct {
	pool *pgxpool.Pool
}

// NewMembershipStore creates a store; assumes migrations already created the table.
func NewMembershipStore(ctx context.Context, pool *pgxpool.Pool) (*MembershipStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &MembershipStore{pool: pool}, nil
}

// OrganizationFor returns the actor's organization id, or nil when the actor
// has none (or is not registered yet, which resolves to personal scope).
func (s *MembershipStore) OrganizationFor(ctx context.Context, actorID uuid.UUID) (*uuid.UUID, error) {
	query := fmt.Sprintf("SELECT organization_id FROM %s WHERE user_id = $1", UsersTable)

	var orgID *uuid.UUID
	err := s.pool.QueryRow(ctx, query, actorID).Scan(&orgID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup membership: %w", err)
	}
	return orgID, nil
}
