package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// OffersTable holds marketing offers linked to a segment.
const OffersTable = "offers"

// OfferStore exposes the dependent-artifact operations the segment registry
// needs: cascade deletion per tenant policy when a segment goes away.
type OfferStore struct {
	pool *pgxpool.Pool
}

// NewOfferStore creates a store; assumes migrations already created the table.
func NewOfferStore(ctx context.Context, pool *pgxpool.Pool) (*OfferStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &OfferStore{pool: pool}, nil
}

// DeleteBySegment removes every in-scope offer linked to the segment and
// returns the number deleted.
func (s *OfferStore) DeleteBySegment(ctx context.Context, scopePred Predicate, segmentID uuid.UUID) (int64, error) {
	where, args := scopePred.Clause()
	query := fmt.Sprintf("DELETE FROM %s WHERE (%s) AND segment_id = $%d", OffersTable, where, len(args)+1)
	args = append(args, segmentID)

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete offers for segment: %w", err)
	}
	return tag.RowsAffected(), nil
}
