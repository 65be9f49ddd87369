package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	domainrepo "github.com/leadpilot-crm/leadpilot-saas/domains/prospects/be/repo"
	"github.com/leadpilot-crm/leadpilot-saas/domains/segments/be/rules"
	"github.com/leadpilot-crm/leadpilot-saas/platform/go/persistence"
	"github.com/leadpilot-crm/leadpilot-saas/platform/go/scope"
)

// ErrNotFound indicates the prospect is absent or outside the caller's scope.
var ErrNotFound = errors.New("prospect not found")

// DefaultStatus is stamped on prospects created without one.
const DefaultStatus = "new"

// ValidationError reports an invalid prospect payload.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Reason
}

// Prospect is a lead record enriched for API rendering.
type Prospect struct {
	ID          uuid.UUID
	SegmentID   *uuid.UUID
	Name        string
	Company     *string
	Email       *string
	Status      string
	Rating      *float64
	ReviewCount *int32
	Score       *int32
	Tags        []string
	CreatedAt   time.Time
}

// AttributeParams carries the caller-editable parts of a prospect.
type AttributeParams struct {
	Name        string
	Company     *string
	Email       *string
	Status      string
	Rating      *float64
	ReviewCount *int32
	Score       *int32
	Tags        []string
}

// ListParams selects a page of prospects.
type ListParams struct {
	Limit      int
	Offset     int
	SortColumn string
	SortOrder  string
}

// Page is one page of prospects plus the unpaged total.
type Page struct {
	Items []Prospect
	Total int64
}

// Service exposes prospect CRUD within the caller's tenant scope.
type Service interface {
	List(ctx context.Context, s scope.Scope, params ListParams) (Page, error)
	Create(ctx context.Context, s scope.Scope, params AttributeParams) (Prospect, error)
	Get(ctx context.Context, s scope.Scope, prospectID uuid.UUID) (Prospect, error)
	Update(ctx context.Context, s scope.Scope, prospectID uuid.UUID, params AttributeParams) (Prospect, error)
	Delete(ctx context.Context, s scope.Scope, prospectID uuid.UUID) error
}

type service struct {
	repo   domainrepo.Repository
	logger *zap.Logger
}

// New constructs a Service instance.
func New(repo domainrepo.Repository, logger *zap.Logger) Service {
	if repo == nil {
		panic("prospects repository is required")
	}
	if logger == nil {
		panic("logger is required")
	}

	return &service{repo: repo, logger: logger}
}

func (s *service) List(ctx context.Context, sc scope.Scope, params ListParams) (Page, error) {
	records, total, err := s.repo.List(ctx, rules.CompileScopeOnly(sc), persistence.ListParams{
		Limit:      params.Limit,
		Offset:     params.Offset,
		SortColumn: params.SortColumn,
		SortOrder:  params.SortOrder,
	})
	if err != nil {
		return Page{}, err
	}

	items := make([]Prospect, 0, len(records))
	for _, rec := range records {
		items = append(items, mapRecord(rec))
	}
	return Page{Items: items, Total: total}, nil
}

func (s *service) Create(ctx context.Context, sc scope.Scope, params AttributeParams) (Prospect, error) {
	normalized, err := normalizeAttributes(params)
	if err != nil {
		return Prospect{}, err
	}

	rec, err := s.repo.Create(ctx, persistence.ProspectRecord{
		ProspectID:     uuid.New(),
		OwnerID:        sc.ActorID,
		OrganizationID: sc.TenantID,
		Name:           normalized.Name,
		Company:        normalized.Company,
		Email:          normalized.Email,
		Status:         normalized.Status,
		Rating:         normalized.Rating,
		ReviewCount:    normalized.ReviewCount,
		Score:          normalized.Score,
		Tags:           normalized.Tags,
		CreatedAt:      time.Now().UTC(),
	})
	if err != nil {
		return Prospect{}, err
	}
	return mapRecord(rec), nil
}

func (s *service) Get(ctx context.Context, sc scope.Scope, prospectID uuid.UUID) (Prospect, error) {
	rec, err := s.repo.Get(ctx, rules.CompileScopeOnly(sc), prospectID)
	if err != nil {
		return Prospect{}, translateError(err)
	}
	return mapRecord(rec), nil
}

// Update replaces caller-editable attributes. The segment assignment is not
// among them; only the reconciler writes it.
func (s *service) Update(ctx context.Context, sc scope.Scope, prospectID uuid.UUID, params AttributeParams) (Prospect, error) {
	normalized, err := normalizeAttributes(params)
	if err != nil {
		return Prospect{}, err
	}

	rec, err := s.repo.Update(ctx, rules.CompileScopeOnly(sc), prospectID, persistence.UpdateAttributesParams{
		Name:        normalized.Name,
		Company:     normalized.Company,
		Email:       normalized.Email,
		Status:      normalized.Status,
		Rating:      normalized.Rating,
		ReviewCount: normalized.ReviewCount,
		Score:       normalized.Score,
		Tags:        normalized.Tags,
	})
	if err != nil {
		return Prospect{}, translateError(err)
	}
	return mapRecord(rec), nil
}

func (s *service) Delete(ctx context.Context, sc scope.Scope, prospectID uuid.UUID) error {
	if err := s.repo.Delete(ctx, rules.CompileScopeOnly(sc), prospectID); err != nil {
		return translateError(err)
	}
	s.logger.Info("prospect deleted", zap.String("prospect_id", prospectID.String()))
	return nil
}

func normalizeAttributes(params AttributeParams) (AttributeParams, error) {
	params.Name = strings.TrimSpace(params.Name)
	if params.Name == "" {
		return AttributeParams{}, &ValidationError{Reason: "name is required"}
	}

	params.Status = strings.TrimSpace(params.Status)
	if params.Status == "" {
		params.Status = DefaultStatus
	}

	if params.Rating != nil && (*params.Rating < 0 || *params.Rating > 5) {
		return AttributeParams{}, &ValidationError{Reason: "rating must be between 0 and 5"}
	}
	if params.ReviewCount != nil && *params.ReviewCount < 0 {
		return AttributeParams{}, &ValidationError{Reason: "reviewCount must not be negative"}
	}

	tags := make([]string, 0, len(params.Tags))
	for _, tag := range params.Tags {
		tag = strings.TrimSpace(tag)
		if tag != "" {
			tags = append(tags, tag)
		}
	}
	params.Tags = tags

	return params, nil
}

func mapRecord(rec persistence.ProspectRecord) Prospect {
	return Prospect{
		ID:          rec.ProspectID,
		SegmentID:   rec.SegmentID,
		Name:        rec.Name,
		Company:     rec.Company,
		Email:       rec.Email,
		Status:      rec.Status,
		Rating:      rec.Rating,
		ReviewCount: rec.ReviewCount,
		Score:       rec.Score,
		Tags:        rec.Tags,
		CreatedAt:   rec.CreatedAt,
	}
}

func translateError(err error) error {
	if errors.Is(err, persistence.ErrProspectNotFound) {
		return ErrNotFound
	}
	return err
}
