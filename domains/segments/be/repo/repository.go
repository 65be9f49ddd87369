package repo

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/leadpilot-crm/leadpilot-saas/platform/go/persistence"
)

// Repository exposes segment registry persistence, always scoped by a tenant
// predicate.
type Repository interface {
	Create(ctx context.Context, rec persistence.SegmentRecord) (persistence.SegmentRecord, error)
	Get(ctx context.Context, scopePred persistence.Predicate, segmentID uuid.UUID) (persistence.SegmentRecord, error)
	List(ctx context.Context, scopePred persistence.Predicate) ([]persistence.SegmentRecord, error)
	UpdateDefinition(ctx context.Context, scopePred persistence.Predicate, segmentID uuid.UUID, name, color string, rules json.RawMessage) (persistence.SegmentRecord, error)
	Delete(ctx context.Context, scopePred persistence.Predicate, segmentID uuid.UUID) error
}

type repository struct {
	store *persistence.SegmentStore
}

// NewPostgresRepository wraps the shared segment store.
func NewPostgresRepository(store *persistence.SegmentStore) Repository {
	if store == nil {
		panic("segment store is required")
	}
	return &repository{store: store}
}

func (r *repository) Create(ctx context.Context, rec persistence.SegmentRecord) (persistence.SegmentRecord, error) {
	return r.store.Create(ctx, rec)
}

func (r *repository) Get(ctx context.Context, scopePred persistence.Predicate, segmentID uuid.UUID) (persistence.SegmentRecord, error) {
	return r.store.Get(ctx, scopePred, segmentID)
}

func (r *repository) List(ctx context.Context, scopePred persistence.Predicate) ([]persistence.SegmentRecord, error) {
	return r.store.List(ctx, scopePred)
}

func (r *repository) UpdateDefinition(ctx context.Context, scopePred persistence.Predicate, segmentID uuid.UUID, name, color string, rules json.RawMessage) (persistence.SegmentRecord, error) {
	return r.store.UpdateDefinition(ctx, scopePred, segmentID, name, color, rules)
}

func (r *repository) Delete(ctx context.Context, scopePred persistence.Predicate, segmentID uuid.UUID) error {
	return r.store.Delete(ctx, scopePred, segmentID)
}
