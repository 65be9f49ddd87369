package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/leadpilot-crm/leadpilot-saas/platform/go/persistence"
	"github.com/leadpilot-crm/leadpilot-saas/platform/go/scope"
)

type stubRepository struct {
	listFunc   func(ctx context.Context, scopePred persistence.Predicate, params persistence.ListParams) ([]persistence.ProspectRecord, int64, error)
	createFunc func(ctx context.Context, rec persistence.ProspectRecord) (persistence.ProspectRecord, error)
	getFunc    func(ctx context.Context, scopePred persistence.Predicate, prospectID uuid.UUID) (persistence.ProspectRecord, error)
	updateFunc func(ctx context.Context, scopePred persistence.Predicate, prospectID uuid.UUID, params persistence.UpdateAttributesParams) (persistence.ProspectRecord, error)
	deleteFunc func(ctx context.Context, scopePred persistence.Predicate, prospectID uuid.UUID) error
}

func (s *stubRepository) List(ctx context.Context, scopePred persistence.Predicate, params persistence.ListParams) ([]persistence.ProspectRecord, int64, error) {
	return s.listFunc(ctx, scopePred, params)
}

func (s *stubRepository) Create(ctx context.Context, rec persistence.ProspectRecord) (persistence.ProspectRecord, error) {
	return s.createFunc(ctx, rec)
}

func (s *stubRepository) Get(ctx context.Context, scopePred persistence.Predicate, prospectID uuid.UUID) (persistence.ProspectRecord, error) {
	return s.getFunc(ctx, scopePred, prospectID)
}

func (s *stubRepository) Update(ctx context.Context, scopePred persistence.Predicate, prospectID uuid.UUID, params persistence.UpdateAttributesParams) (persistence.ProspectRecord, error) {
	return s.updateFunc(ctx, scopePred, prospectID, params)
}

func (s *stubRepository) Delete(ctx context.Context, scopePred persistence.Predicate, prospectID uuid.UUID) error {
	return s.deleteFunc(ctx, scopePred, prospectID)
}

func TestCreate_StampsScopeAndDefaults(t *testing.T) {
	actorID := uuid.New()
	tenantID := uuid.New()

	var stored persistence.ProspectRecord
	repo := &stubRepository{
		createFunc: func(_ context.Context, rec persistence.ProspectRecord) (persistence.ProspectRecord, error) {
			stored = rec
			return rec, nil
		},
	}
	svc := New(repo, zap.NewNop())

	prospect, err := svc.Create(context.Background(), scope.Scoped(actorID, tenantID), AttributeParams{
		Name: "  Acme Plumbing  ",
		Tags: []string{" hot ", "", "referral"},
	})
	require.NoError(t, err)

	require.Equal(t, "Acme Plumbing", prospect.Name)
	require.Equal(t, DefaultStatus, prospect.Status)
	require.Equal(t, []string{"hot", "referral"}, prospect.Tags)
	require.Equal(t, actorID, stored.OwnerID)
	require.NotNil(t, stored.OrganizationID)
	require.Equal(t, tenantID, *stored.OrganizationID)
	require.Nil(t, stored.SegmentID)
}

func TestCreate_RejectsInvalidAttributes(t *testing.T) {
	svc := New(&stubRepository{}, zap.NewNop())

	cases := map[string]AttributeParams{
		"blank name":      {Name: "   "},
		"rating too high": {Name: "Acme", Rating: float64Ptr(5.5)},
		"negative rating": {Name: "Acme", Rating: float64Ptr(-1)},
		"negative count":  {Name: "Acme", ReviewCount: int32Ptr(-3)},
	}

	for name, params := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), scope.Personal(uuid.New()), params)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
		})
	}
}

func TestGet_TranslatesNotFound(t *testing.T) {
	repo := &stubRepository{
		getFunc: func(context.Context, persistence.Predicate, uuid.UUID) (persistence.ProspectRecord, error) {
			return persistence.ProspectRecord{}, persistence.ErrProspectNotFound
		},
	}
	svc := New(repo, zap.NewNop())

	_, err := svc.Get(context.Background(), scope.Personal(uuid.New()), uuid.New())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestList_MapsRecords(t *testing.T) {
	segmentID := uuid.New()
	repo := &stubRepository{
		listFunc: func(_ context.Context, _ persistence.Predicate, params persistence.ListParams) ([]persistence.ProspectRecord, int64, error) {
			require.Equal(t, 25, params.Limit)
			return []persistence.ProspectRecord{{
				ProspectID: uuid.New(),
				SegmentID:  &segmentID,
				Name:       "Acme Plumbing",
				Status:     "qualified",
				CreatedAt:  time.Now().UTC(),
			}}, 1, nil
		},
	}
	svc := New(repo, zap.NewNop())

	page, err := svc.List(context.Background(), scope.Personal(uuid.New()), ListParams{Limit: 25})
	require.NoError(t, err)
	require.Equal(t, int64(1), page.Total)
	require.Len(t, page.Items, 1)
	require.Equal(t, &segmentID, page.Items[0].SegmentID)
}

func float64Ptr(v float64) *float64 { return &v }
func int32Ptr(v int32) *int32       { return &v }
