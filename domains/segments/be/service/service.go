package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	domainrepo "github.com/leadpilot-crm/leadpilot-saas/domains/segments/be/repo"
	"github.com/leadpilot-crm/leadpilot-saas/domains/segments/be/reconcile"
	"github.com/leadpilot-crm/leadpilot-saas/domains/segments/be/rules"
	"github.com/leadpilot-crm/leadpilot-saas/platform/go/cache"
	"github.com/leadpilot-crm/leadpilot-saas/platform/go/metrics"
	"github.com/leadpilot-crm/leadpilot-saas/platform/go/persistence"
	"github.com/leadpilot-crm/leadpilot-saas/platform/go/scope"
)

// ErrNotFound indicates the segment is absent or outside the caller's scope.
// The two cases are deliberately indistinguishable.
var ErrNotFound = errors.New("segment not found")

// ValidationError captures non-rule input problems (missing name, bad payload).
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Reason
}

// Reconciliation phases, reported on StoreFailure.
const (
	PhaseQuery    = "query"
	PhaseUnassign = "unassign"
	PhaseAssign   = "assign"
)

// StoreFailure wraps a record store error with the reconciliation phase it
// interrupted. Retryable by re-invoking Apply; no phase marker is persisted,
// so recovery is always a full re-run.
type StoreFailure struct {
	Phase string
	Err   error
}

func (e *StoreFailure) Error() string {
	return fmt.Sprintf("record store failure during %s phase: %v", e.Phase, e.Err)
}

func (e *StoreFailure) Unwrap() error {
	return e.Err
}

// RecordStore is the slice of prospect persistence the reconciler consumes.
type RecordStore interface {
	FindIDs(ctx context.Context, pred persistence.Predicate) ([]uuid.UUID, error)
	Count(ctx context.Context, pred persistence.Predicate) (int64, error)
	MemberIDs(ctx context.Context, scopePred persistence.Predicate, segmentID uuid.UUID) ([]uuid.UUID, error)
	BulkSetSegment(ctx context.Context, ids []uuid.UUID, segmentID *uuid.UUID) (int64, error)
	ClearSegmentAssignments(ctx context.Context, scopePred persistence.Predicate, segmentID uuid.UUID) (int64, error)
}

// ArtifactCleaner removes artifacts dependent on a segment (offers) when the
// delete policy cascades.
type ArtifactCleaner interface {
	DeleteBySegment(ctx context.Context, scopePred persistence.Predicate, segmentID uuid.UUID) (int64, error)
}

// DeletePolicy configures what segment deletion takes with it. Prospect
// assignments are always nulled; dependent artifacts follow tenant policy.
type DeletePolicy struct {
	CascadeOffers bool
}

// Segment is a registry entry enriched for API rendering.
type Segment struct {
	ID        uuid.UUID
	Name      string
	Color     string
	Rules     rules.RuleSet
	CreatedAt time.Time
}

// DefinitionParams carries the caller-editable parts of a segment.
type DefinitionParams struct {
	Name    string
	Color   string
	Rules   []byte // JSON tagged-variant tree; nil means empty rule set
}

// ApplyOptions selects the reconciliation mode.
type ApplyOptions struct {
	ClearOthers bool
}

// ApplySummary is the caller-visible outcome of one apply run.
type ApplySummary struct {
	MatchedCount    int64
	ReassignedCount int64
	UnassignedCount int64
}

// Service exposes the segment registry and the apply workflow.
type Service interface {
	List(ctx context.Context, s scope.Scope) ([]Segment, error)
	Create(ctx context.Context, s scope.Scope, params DefinitionParams) (Segment, error)
	Get(ctx context.Context, s scope.Scope, segmentID uuid.UUID) (Segment, error)
	Update(ctx context.Context, s scope.Scope, segmentID uuid.UUID, params DefinitionParams) (Segment, error)
	Delete(ctx context.Context, s scope.Scope, segmentID uuid.UUID) error
	Apply(ctx context.Context, s scope.Scope, segmentID uuid.UUID, opts ApplyOptions) (ApplySummary, error)
	LastApply(ctx context.Context, s scope.Scope, segmentID uuid.UUID) (cache.ApplySummary, bool, error)
}

type service struct {
	repo      domainrepo.Repository
	records   RecordStore
	artifacts ArtifactCleaner
	summaries *cache.SummaryCache
	policy    DeletePolicy
	logger    *zap.Logger
	now       func() time.Time
}

// New constructs a Service instance. summaries may be nil (no cache wired).
func New(repo domainrepo.Repository, records RecordStore, artifacts ArtifactCleaner, summaries *cache.SummaryCache, policy DeletePolicy, logger *zap.Logger) Service {
	if repo == nil {
		panic("segments repository is required")
	}
	if records == nil {
		panic("record store is required")
	}
	if artifacts == nil {
		panic("artifact cleaner is required")
	}
	if logger == nil {
		panic("logger is required")
	}

	return &service{
		repo:      repo,
		records:   records,
		artifacts: artifacts,
		summaries: summaries,
		policy:    policy,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *service) List(ctx context.Context, sc scope.Scope) ([]Segment, error) {
	records, err := s.repo.List(ctx, rules.CompileScopeOnly(sc))
	if err != nil {
		return nil, err
	}

	segments := make([]Segment, 0, len(records))
	for _, rec := range records {
		seg, err := mapRecord(rec)
		if err != nil {
			return nil, err
		}
		segments = append(segments, seg)
	}
	return segments, nil
}

func (s *service) Create(ctx context.Context, sc scope.Scope, params DefinitionParams) (Segment, error) {
	name, color, encoded, err := normalizeDefinition(params)
	if err != nil {
		return Segment{}, err
	}

	rec, err := s.repo.Create(ctx, persistence.SegmentRecord{
		SegmentID:      uuid.New(),
		OwnerID:        sc.ActorID,
		OrganizationID: sc.TenantID,
		Name:           name,
		Color:          color,
		Rules:          encoded,
		CreatedAt:      s.now(),
	})
	if err != nil {
		return Segment{}, err
	}
	return mapRecord(rec)
}

func (s *service) Get(ctx context.Context, sc scope.Scope, segmentID uuid.UUID) (Segment, error) {
	rec, err := s.repo.Get(ctx, rules.CompileScopeOnly(sc), segmentID)
	if err != nil {
		return Segment{}, translateError(err)
	}
	return mapRecord(rec)
}

func (s *service) Update(ctx context.Context, sc scope.Scope, segmentID uuid.UUID, params DefinitionParams) (Segment, error) {
	name, color, encoded, err := normalizeDefinition(params)
	if err != nil {
		return Segment{}, err
	}

	rec, err := s.repo.UpdateDefinition(ctx, rules.CompileScopeOnly(sc), segmentID, name, color, encoded)
	if err != nil {
		return Segment{}, translateError(err)
	}
	return mapRecord(rec)
}

// Delete removes the segment after referential cleanup: members keep their
// rows but lose the assignment, and dependent offers go only when the tenant
// policy cascades.
func (s *service) Delete(ctx context.Context, sc scope.Scope, segmentID uuid.UUID) error {
	scopePred := rules.CompileScopeOnly(sc)

	if _, err := s.repo.Get(ctx, scopePred, segmentID); err != nil {
		return translateError(err)
	}

	cleared, err := s.records.ClearSegmentAssignments(ctx, scopePred, segmentID)
	if err != nil {
		return &StoreFailure{Phase: PhaseUnassign, Err: err}
	}

	if s.policy.CascadeOffers {
		deleted, err := s.artifacts.DeleteBySegment(ctx, scopePred, segmentID)
		if err != nil {
			return fmt.Errorf("cascade segment artifacts: %w", err)
		}
		if deleted > 0 {
			s.logger.Info("cascaded segment offers",
				zap.String("segment_id", segmentID.String()),
				zap.Int64("offers_deleted", deleted))
		}
	}

	if err := s.repo.Delete(ctx, scopePred, segmentID); err != nil {
		return translateError(err)
	}

	if err := s.summaries.Invalidate(ctx, segmentID); err != nil {
		s.logger.Warn("invalidate apply summary cache", zap.Error(err))
	}

	s.logger.Info("segment deleted",
		zap.String("segment_id", segmentID.String()),
		zap.Int64("assignments_cleared", cleared))
	return nil
}

// Apply reconciles stored assignments with the segment's compiled predicate.
//
// Additive mode assigns every in-scope match and touches nothing else; manual
// overrides and stale assignments persist. Clear-others mode first unassigns
// stale members, then assigns the full match set. The assign phase re-derives
// its targets rather than trusting unassign-phase bookkeeping, so a failure
// between phases leaves a safe state that re-invoking Apply repairs.
func (s *service) Apply(ctx context.Context, sc scope.Scope, segmentID uuid.UUID, opts ApplyOptions) (ApplySummary, error) {
	start := s.now()
	mode := "additive"
	if opts.ClearOthers {
		mode = "clear_others"
	}

	summary, err := s.apply(ctx, sc, segmentID, opts)
	result := "success"
	if err != nil {
		result = "failure"
	}
	metrics.ObserveApply(mode, result, summary.MatchedCount, s.now().Sub(start))
	if err != nil {
		return ApplySummary{}, err
	}

	if cacheErr := s.summaries.Put(ctx, cache.ApplySummary{
		SegmentID:       segmentID,
		MatchedCount:    summary.MatchedCount,
		ReassignedCount: summary.ReassignedCount,
		UnassignedCount: summary.UnassignedCount,
		ClearOthers:     opts.ClearOthers,
		AppliedAt:       s.now(),
	}); cacheErr != nil {
		s.logger.Warn("cache apply summary", zap.Error(cacheErr))
	}

	s.logger.Info("segment applied",
		zap.String("segment_id", segmentID.String()),
		zap.String("mode", mode),
		zap.Int64("matched", summary.MatchedCount),
		zap.Int64("reassigned", summary.ReassignedCount),
		zap.Int64("unassigned", summary.UnassignedCount))
	return summary, nil
}

func (s *service) apply(ctx context.Context, sc scope.Scope, segmentID uuid.UUID, opts ApplyOptions) (ApplySummary, error) {
	scopePred := rules.CompileScopeOnly(sc)

	rec, err := s.repo.Get(ctx, scopePred, segmentID)
	if err != nil {
		return ApplySummary{}, translateError(err)
	}

	// Rules compile at apply time, not save time, so widening the field
	// catalog never requires re-saving old segments.
	ruleSet, err := rules.DecodeRuleSet(rec.Rules)
	if err != nil {
		return ApplySummary{}, err
	}
	pred, err := rules.Compile(ruleSet, sc)
	if err != nil {
		return ApplySummary{}, err
	}

	target, err := s.records.FindIDs(ctx, pred)
	if err != nil {
		return ApplySummary{}, &StoreFailure{Phase: PhaseQuery, Err: err}
	}
	current, err := s.records.MemberIDs(ctx, scopePred, segmentID)
	if err != nil {
		return ApplySummary{}, &StoreFailure{Phase: PhaseQuery, Err: err}
	}

	diff := reconcile.Compute(current, target)

	var unassignedCount int64
	if opts.ClearOthers {
		// Phase 1: unassign stale members before any assignment, so the final
		// membership is exactly the target set.
		if _, err := s.records.BulkSetSegment(ctx, diff.ToUnassign, nil); err != nil {
			return ApplySummary{}, &StoreFailure{Phase: PhaseUnassign, Err: err}
		}
		unassignedCount = int64(len(diff.ToUnassign))
	}

	// Phase 2: assign the full target set, not just the delta; rows already
	// assigned converge to the same value.
	if _, err := s.records.BulkSetSegment(ctx, target, &segmentID); err != nil {
		return ApplySummary{}, &StoreFailure{Phase: PhaseAssign, Err: err}
	}

	// Post-hoc count rather than the update's affected-row tally: concurrent
	// mutation between update and count is tolerated.
	matched, err := s.records.Count(ctx, pred)
	if err != nil {
		return ApplySummary{}, &StoreFailure{Phase: PhaseQuery, Err: err}
	}

	return ApplySummary{
		MatchedCount:    matched,
		ReassignedCount: int64(len(diff.ToAssign)),
		UnassignedCount: unassignedCount,
	}, nil
}

func (s *service) LastApply(ctx context.Context, sc scope.Scope, segmentID uuid.UUID) (cache.ApplySummary, bool, error) {
	if _, err := s.repo.Get(ctx, rules.CompileScopeOnly(sc), segmentID); err != nil {
		return cache.ApplySummary{}, false, translateError(err)
	}
	return s.summaries.Get(ctx, segmentID)
}

func normalizeDefinition(params DefinitionParams) (name, color string, encoded []byte, err error) {
	name = strings.TrimSpace(params.Name)
	if name == "" {
		return "", "", nil, &ValidationError{Reason: "name is required"}
	}

	color = strings.TrimSpace(params.Color)
	if color == "" {
		color = "#888888"
	}

	ruleSet, err := rules.DecodeRuleSet(params.Rules)
	if err != nil {
		return "", "", nil, &ValidationError{Reason: err.Error()}
	}
	// Unknown fields and operator/type mismatches are rejected here, at save
	// time; a bad rule set never persists.
	if err := ruleSet.Validate(); err != nil {
		return "", "", nil, err
	}

	encoded, err = rules.EncodeRuleSet(ruleSet)
	if err != nil {
		return "", "", nil, err
	}
	return name, color, encoded, nil
}

func mapRecord(rec persistence.SegmentRecord) (Segment, error) {
	ruleSet, err := rules.DecodeRuleSet(rec.Rules)
	if err != nil {
		return Segment{}, fmt.Errorf("decode stored rule set: %w", err)
	}

	return Segment{
		ID:        rec.SegmentID,
		Name:      rec.Name,
		Color:     rec.Color,
		Rules:     ruleSet,
		CreatedAt: rec.CreatedAt,
	}, nil
}

func translateError(err error) error {
	if errors.Is(err, persistence.ErrSegmentNotFound) {
		return ErrNotFound
	}
	return err
}
