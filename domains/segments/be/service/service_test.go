package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/leadpilot-crm/leadpilot-saas/domains/segments/be/rules"
	"github.com/leadpilot-crm/leadpilot-saas/platform/go/persistence"
	"github.com/leadpilot-crm/leadpilot-saas/platform/go/scope"
)

type stubRepository struct {
	createFunc func(ctx context.Context, rec persistence.SegmentRecord) (persistence.SegmentRecord, error)
	getFunc    func(ctx context.Context, scopePred persistence.Predicate, segmentID uuid.UUID) (persistence.SegmentRecord, error)
	listFunc   func(ctx context.Context, scopePred persistence.Predicate) ([]persistence.SegmentRecord, error)
	updateFunc func(ctx context.Context, scopePred persistence.Predicate, segmentID uuid.UUID, name, color string, rules json.RawMessage) (persistence.SegmentRecord, error)
	deleteFunc func(ctx context.Context, scopePred persistence.Predicate, segmentID uuid.UUID) error
}

func (s *stubRepository) Create(ctx context.Context, rec persistence.SegmentRecord) (persistence.SegmentRecord, error) {
	return s.createFunc(ctx, rec)
}

func (s *stubRepository) Get(ctx context.Context, scopePred persistence.Predicate, segmentID uuid.UUID) (persistence.SegmentRecord, error) {
	return s.getFunc(ctx, scopePred, segmentID)
}

func (s *stubRepository) List(ctx context.Context, scopePred persistence.Predicate) ([]persistence.SegmentRecord, error) {
	return s.listFunc(ctx, scopePred)
}

func (s *stubRepository) UpdateDefinition(ctx context.Context, scopePred persistence.Predicate, segmentID uuid.UUID, name, color string, rules json.RawMessage) (persistence.SegmentRecord, error) {
	return s.updateFunc(ctx, scopePred, segmentID, name, color, rules)
}

func (s *stubRepository) Delete(ctx context.Context, scopePred persistence.Predicate, segmentID uuid.UUID) error {
	return s.deleteFunc(ctx, scopePred, segmentID)
}

type bulkCall struct {
	ids       []uuid.UUID
	segmentID *uuid.UUID
}

// memoryRecords is an in-memory RecordStore backed by explicit match and
// membership sets, recording every bulk mutation in order.
type memoryRecords struct {
	matches     []uuid.UUID // IDs the compiled predicate matches
	assignments map[uuid.UUID]uuid.UUID

	bulkCalls []bulkCall
	bulkErr   func(call int) error
}

func newMemoryRecords(matches []uuid.UUID) *memoryRecords {
	return &memoryRecords{
		matches:     matches,
		assignments: map[uuid.UUID]uuid.UUID{},
	}
}

func (m *memoryRecords) FindIDs(_ context.Context, _ persistence.Predicate) ([]uuid.UUID, error) {
	return append([]uuid.UUID(nil), m.matches...), nil
}

func (m *memoryRecords) Count(_ context.Context, _ persistence.Predicate) (int64, error) {
	return int64(len(m.matches)), nil
}

func (m *memoryRecords) MemberIDs(_ context.Context, _ persistence.Predicate, segmentID uuid.UUID) ([]uuid.UUID, error) {
	var out []uuid.UUID
	for id, assigned := range m.assignments {
		if assigned == segmentID {
			out = append(out, id)
		}
	}
	return out, nil
}

func (m *memoryRecords) BulkSetSegment(_ context.Context, ids []uuid.UUID, segmentID *uuid.UUID) (int64, error) {
	m.bulkCalls = append(m.bulkCalls, bulkCall{ids: append([]uuid.UUID(nil), ids...), segmentID: segmentID})
	if m.bulkErr != nil {
		if err := m.bulkErr(len(m.bulkCalls)); err != nil {
			return 0, err
		}
	}
	for _, id := range ids {
		if segmentID == nil {
			delete(m.assignments, id)
		} else {
			m.assignments[id] = *segmentID
		}
	}
	return int64(len(ids)), nil
}

func (m *memoryRecords) ClearSegmentAssignments(_ context.Context, _ persistence.Predicate, segmentID uuid.UUID) (int64, error) {
	var cleared int64
	for id, assigned := range m.assignments {
		if assigned == segmentID {
			delete(m.assignments, id)
			cleared++
		}
	}
	return cleared, nil
}

type stubCleaner struct {
	deleteFunc func(ctx context.Context, scopePred persistence.Predicate, segmentID uuid.UUID) (int64, error)
}

func (s *stubCleaner) DeleteBySegment(ctx context.Context, scopePred persistence.Predicate, segmentID uuid.UUID) (int64, error) {
	return s.deleteFunc(ctx, scopePred, segmentID)
}

func segmentRecord(segmentID, ownerID uuid.UUID, ruleJSON string) persistence.SegmentRecord {
	return persistence.SegmentRecord{
		SegmentID: segmentID,
		OwnerID:   ownerID,
		Name:      "Hot leads",
		Color:     "#ff0000",
		Rules:     json.RawMessage(ruleJSON),
		CreatedAt: time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC),
	}
}

func repoReturning(rec persistence.SegmentRecord) *stubRepository {
	return &stubRepository{
		getFunc: func(_ context.Context, _ persistence.Predicate, segmentID uuid.UUID) (persistence.SegmentRecord, error) {
			if segmentID != rec.SegmentID {
				return persistence.SegmentRecord{}, persistence.ErrSegmentNotFound
			}
			return rec, nil
		},
	}
}

func newTestService(repo *stubRepository, records RecordStore) Service {
	return New(repo, records, &stubCleaner{
		deleteFunc: func(context.Context, persistence.Predicate, uuid.UUID) (int64, error) { return 0, nil },
	}, nil, DeletePolicy{}, zap.NewNop())
}

const scoreRule = `{"type":"leaf","field":"score","operator":"greaterThanOrEqual","value":70}`

func TestApply_AdditiveAssignsMatchesAndKeepsOthers(t *testing.T) {
	segmentID := uuid.New()
	otherSegment := uuid.New()
	ownerID := uuid.New()

	matched := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	records := newMemoryRecords(matched)
	// One match already assigned here; one unmatched row assigned elsewhere.
	records.assignments[matched[0]] = segmentID
	stranger := uuid.New()
	records.assignments[stranger] = otherSegment

	svc := newTestService(repoReturning(segmentRecord(segmentID, ownerID, scoreRule)), records)

	summary, err := svc.Apply(context.Background(), scope.Personal(ownerID), segmentID, ApplyOptions{})
	require.NoError(t, err)

	require.Equal(t, int64(3), summary.MatchedCount)
	require.Equal(t, int64(2), summary.ReassignedCount)
	require.Equal(t, int64(0), summary.UnassignedCount)

	for _, id := range matched {
		require.Equal(t, segmentID, records.assignments[id])
	}
	// Additive mode never touches rows outside the match set.
	require.Equal(t, otherSegment, records.assignments[stranger])
	require.Len(t, records.bulkCalls, 1)
}

func TestApply_ClearOthersUnassignsBeforeAssigning(t *testing.T) {
	segmentID := uuid.New()
	ownerID := uuid.New()

	keep := uuid.New()
	stale := uuid.New()
	fresh := uuid.New()

	records := newMemoryRecords([]uuid.UUID{keep, fresh})
	records.assignments[keep] = segmentID
	records.assignments[stale] = segmentID

	svc := newTestService(repoReturning(segmentRecord(segmentID, ownerID, scoreRule)), records)

	summary, err := svc.Apply(context.Background(), scope.Personal(ownerID), segmentID, ApplyOptions{ClearOthers: true})
	require.NoError(t, err)

	require.Equal(t, int64(2), summary.MatchedCount)
	require.Equal(t, int64(1), summary.ReassignedCount)
	require.Equal(t, int64(1), summary.UnassignedCount)

	// Final membership is exactly the match set.
	require.Equal(t, segmentID, records.assignments[keep])
	require.Equal(t, segmentID, records.assignments[fresh])
	_, staleAssigned := records.assignments[stale]
	require.False(t, staleAssigned)

	// Unassign phase ran first and carried only the stale member.
	require.Len(t, records.bulkCalls, 2)
	require.Nil(t, records.bulkCalls[0].segmentID)
	require.Equal(t, []uuid.UUID{stale}, records.bulkCalls[0].ids)
	require.NotNil(t, records.bulkCalls[1].segmentID)
	require.ElementsMatch(t, []uuid.UUID{keep, fresh}, records.bulkCalls[1].ids)
}

func TestApply_IsIdempotent(t *testing.T) {
	segmentID := uuid.New()
	ownerID := uuid.New()

	matched := []uuid.UUID{uuid.New(), uuid.New()}
	records := newMemoryRecords(matched)

	svc := newTestService(repoReturning(segmentRecord(segmentID, ownerID, scoreRule)), records)

	first, err := svc.Apply(context.Background(), scope.Personal(ownerID), segmentID, ApplyOptions{ClearOthers: true})
	require.NoError(t, err)
	require.Equal(t, int64(2), first.ReassignedCount)

	second, err := svc.Apply(context.Background(), scope.Personal(ownerID), segmentID, ApplyOptions{ClearOthers: true})
	require.NoError(t, err)

	// A second run over an unchanged dataset reassigns and unassigns nothing.
	require.Equal(t, int64(2), second.MatchedCount)
	require.Equal(t, int64(0), second.ReassignedCount)
	require.Equal(t, int64(0), second.UnassignedCount)
	for _, id := range matched {
		require.Equal(t, segmentID, records.assignments[id])
	}
}

func TestApply_EmptyRuleSetMatchesNothing(t *testing.T) {
	segmentID := uuid.New()
	ownerID := uuid.New()

	records := newMemoryRecords(nil)
	member := uuid.New()
	records.assignments[member] = segmentID

	svc := newTestService(repoReturning(segmentRecord(segmentID, ownerID, "null")), records)

	// Additive: no matches means no mutation at all.
	summary, err := svc.Apply(context.Background(), scope.Personal(ownerID), segmentID, ApplyOptions{})
	require.NoError(t, err)
	require.Equal(t, int64(0), summary.MatchedCount)
	require.Equal(t, segmentID, records.assignments[member])

	// Clear-others: existing members drain out.
	summary, err = svc.Apply(context.Background(), scope.Personal(ownerID), segmentID, ApplyOptions{ClearOthers: true})
	require.NoError(t, err)
	require.Equal(t, int64(1), summary.UnassignedCount)
	require.Empty(t, records.assignments)
}

func TestApply_InvalidStoredRulesFailBeforeMutation(t *testing.T) {
	segmentID := uuid.New()
	ownerID := uuid.New()

	records := newMemoryRecords([]uuid.UUID{uuid.New()})
	badRule := `{"type":"leaf","field":"shoeSize","operator":"equals","value":42}`

	svc := newTestService(repoReturning(segmentRecord(segmentID, ownerID, badRule)), records)

	_, err := svc.Apply(context.Background(), scope.Personal(ownerID), segmentID, ApplyOptions{ClearOthers: true})

	var verr *rules.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Empty(t, records.bulkCalls)
}

func TestApply_StoreFailureCarriesPhase(t *testing.T) {
	segmentID := uuid.New()
	ownerID := uuid.New()

	stale := uuid.New()
	records := newMemoryRecords([]uuid.UUID{uuid.New()})
	records.assignments[stale] = segmentID

	boom := errors.New("connection reset")
	records.bulkErr = func(call int) error {
		if call == 1 {
			return boom
		}
		return nil
	}

	svc := newTestService(repoReturning(segmentRecord(segmentID, ownerID, scoreRule)), records)

	_, err := svc.Apply(context.Background(), scope.Personal(ownerID), segmentID, ApplyOptions{ClearOthers: true})

	var failure *StoreFailure
	require.ErrorAs(t, err, &failure)
	require.Equal(t, PhaseUnassign, failure.Phase)
	require.ErrorIs(t, err, boom)
	// The assign phase never ran.
	require.Len(t, records.bulkCalls, 1)
}

func TestApply_UnknownSegmentReturnsNotFound(t *testing.T) {
	svc := newTestService(
		repoReturning(segmentRecord(uuid.New(), uuid.New(), scoreRule)),
		newMemoryRecords(nil))

	_, err := svc.Apply(context.Background(), scope.Personal(uuid.New()), uuid.New(), ApplyOptions{})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCreate_RejectsInvalidRules(t *testing.T) {
	repo := &stubRepository{
		createFunc: func(_ context.Context, rec persistence.SegmentRecord) (persistence.SegmentRecord, error) {
			t.Fatal("create must not reach the repository")
			return rec, nil
		},
	}
	svc := newTestService(repo, newMemoryRecords(nil))

	_, err := svc.Create(context.Background(), scope.Personal(uuid.New()), DefinitionParams{
		Name:  "Bad",
		Rules: []byte(`{"type":"leaf","field":"name","operator":"greaterThanOrEqual","value":1}`),
	})

	var verr *rules.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "greaterThanOrEqual", string(verr.Operator))
}

func TestCreate_RequiresName(t *testing.T) {
	svc := newTestService(&stubRepository{}, newMemoryRecords(nil))

	_, err := svc.Create(context.Background(), scope.Personal(uuid.New()), DefinitionParams{Name: "   "})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestCreate_StampsScopeAndDefaults(t *testing.T) {
	actorID := uuid.New()
	tenantID := uuid.New()

	var stored persistence.SegmentRecord
	repo := &stubRepository{
		createFunc: func(_ context.Context, rec persistence.SegmentRecord) (persistence.SegmentRecord, error) {
			stored = rec
			return rec, nil
		},
	}
	svc := newTestService(repo, newMemoryRecords(nil))

	seg, err := svc.Create(context.Background(), scope.Scoped(actorID, tenantID), DefinitionParams{
		Name:  "  Warm leads  ",
		Rules: []byte(scoreRule),
	})
	require.NoError(t, err)

	require.Equal(t, "Warm leads", seg.Name)
	require.Equal(t, "#888888", seg.Color)
	require.Equal(t, actorID, stored.OwnerID)
	require.NotNil(t, stored.OrganizationID)
	require.Equal(t, tenantID, *stored.OrganizationID)
}

func TestDelete_ClearsAssignmentsAndCascadesOffers(t *testing.T) {
	segmentID := uuid.New()
	ownerID := uuid.New()

	records := newMemoryRecords(nil)
	records.assignments[uuid.New()] = segmentID
	records.assignments[uuid.New()] = segmentID

	repo := repoReturning(segmentRecord(segmentID, ownerID, scoreRule))
	repo.deleteFunc = func(context.Context, persistence.Predicate, uuid.UUID) error { return nil }

	var offersDeleted bool
	cleaner := &stubCleaner{
		deleteFunc: func(_ context.Context, _ persistence.Predicate, id uuid.UUID) (int64, error) {
			offersDeleted = true
			require.Equal(t, segmentID, id)
			return 3, nil
		},
	}

	svc := New(repo, records, cleaner, nil, DeletePolicy{CascadeOffers: true}, zap.NewNop())

	require.NoError(t, svc.Delete(context.Background(), scope.Personal(ownerID), segmentID))
	require.Empty(t, records.assignments)
	require.True(t, offersDeleted)
}

func TestDelete_SkipsOfferCascadeByDefault(t *testing.T) {
	segmentID := uuid.New()
	ownerID := uuid.New()

	repo := repoReturning(segmentRecord(segmentID, ownerID, scoreRule))
	repo.deleteFunc = func(context.Context, persistence.Predicate, uuid.UUID) error { return nil }

	cleaner := &stubCleaner{
		deleteFunc: func(context.Context, persistence.Predicate, uuid.UUID) (int64, error) {
			t.Fatal("offer cascade must not run without the policy")
			return 0, nil
		},
	}

	svc := New(repo, newMemoryRecords(nil), cleaner, nil, DeletePolicy{}, zap.NewNop())
	require.NoError(t, svc.Delete(context.Background(), scope.Personal(ownerID), segmentID))
}

func TestGet_TranslatesNotFound(t *testing.T) {
	repo := &stubRepository{
		getFunc: func(context.Context, persistence.Predicate, uuid.UUID) (persistence.SegmentRecord, error) {
			return persistence.SegmentRecord{}, persistence.ErrSegmentNotFound
		},
	}
	svc := newTestService(repo, newMemoryRecords(nil))

	_, err := svc.Get(context.Background(), scope.Personal(uuid.New()), uuid.New())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLastApply_MissingCacheReportsNoSummary(t *testing.T) {
	segmentID := uuid.New()
	ownerID := uuid.New()

	svc := newTestService(repoReturning(segmentRecord(segmentID, ownerID, scoreRule)), newMemoryRecords(nil))

	_, found, err := svc.LastApply(context.Background(), scope.Personal(ownerID), segmentID)
	require.NoError(t, err)
	require.False(t, found)
}
