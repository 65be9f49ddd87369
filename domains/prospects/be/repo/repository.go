package repo

import (
	"context"

	"github.com/google/uuid"

	"github.com/leadpilot-crm/leadpilot-saas/platform/go/persistence"
)

// Repository exposes prospect persistence, always scoped by a tenant predicate.
type Repository interface {
	List(ctx context.Context, scopePred persistence.Predicate, params persistence.ListParams) ([]persistence.ProspectRecord, int64, error)
	Create(ctx context.Context, rec persistence.ProspectRecord) (persistence.ProspectRecord, error)
	Get(ctx context.Context, scopePred persistence.Predicate, prospectID uuid.UUID) (persistence.ProspectRecord, error)
	Update(ctx context.Context, scopePred persistence.Predicate, prospectID uuid.UUID, params persistence.UpdateAttributesParams) (persistence.ProspectRecord, error)
	Delete(ctx context.Context, scopePred persistence.Predicate, prospectID uuid.UUID) error
}

type repository struct {
	store *persistence.ProspectStore
}

// NewPostgresRepository wraps the shared prospect store.
func NewPostgresRepository(store *persistence.ProspectStore) Repository {
	if store == nil {
		panic("prospect store is required")
	}
	return &repository{store: store}
}

func (r *repository) List(ctx context.Context, scopePred persistence.Predicate, params persistence.ListParams) ([]persistence.ProspectRecord, int64, error) {
	return r.store.List(ctx, scopePred, params)
}

func (r *repository) Create(ctx context.Context, rec persistence.ProspectRecord) (persistence.ProspectRecord, error) {
	return r.store.Create(ctx, rec)
}

func (r *repository) Get(ctx context.Context, scopePred persistence.Predicate, prospectID uuid.UUID) (persistence.ProspectRecord, error) {
	return r.store.Get(ctx, scopePred, prospectID)
}

func (r *repository) Update(ctx context.Context, scopePred persistence.Predicate, prospectID uuid.UUID, params persistence.UpdateAttributesParams) (persistence.ProspectRecord, error) {
	return r.store.Update(ctx, scopePred, prospectID, params)
}

func (r *repository) Delete(ctx context.Context, scopePred persistence.Predicate, prospectID uuid.UUID) error {
	return r.store.Delete(ctx, scopePred, prospectID)
}
