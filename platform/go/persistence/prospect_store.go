package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ProspectsTable is the shared, tenant-scoped record table.
const ProspectsTable = "prospects"

// ErrProspectNotFound indicates the requested prospect does not exist within
// the given scope.
var ErrProspectNotFound = errors.New("prospect not found")

// Predicate is an opaque row filter over the prospects table: a SQL boolean
// expression with positional arguments numbered from $1. The store never
// inspects it beyond splicing; every predicate handed in must already carry
// the caller's tenant scope.
type Predicate interface {
	Clause() (string, []interface{})
}

// ProspectRecord mirrors the prospects table shape.
type ProspectRecord struct {
	ProspectID     uuid.UUID  `db:"prospect_id"`
	OwnerID        uuid.UUID  `db:"owner_id"`
	OrganizationID *uuid.UUID `db:"organization_id"`
	SegmentID      *uuid.UUID `db:"segment_id"`
	Name           string     `db:"name"`
	Company        *string    `db:"company"`
	Email          *string    `db:"email"`
	Status         string     `db:"status"`
	Rating         *float64   `db:"rating"`
	ReviewCount    *int32     `db:"review_count"`
	Score          *int32     `db:"score"`
	Tags           []string   `db:"tags"`
	CreatedAt      time.Time  `db:"created_at"`
}

const prospectColumns = `prospect_id, owner_id, organization_id, segment_id, name, company,
        email, status, rating, review_count, score, tags, created_at`

// ProspectStore provides set-based access to the prospects table. Bulk
// membership writes go through BulkSetSegment so reconciliation stays
// query-then-bulk-update rather than per-row iteration.
type ProspectStore struct {
	pool *pgxpool.Pool
}

// NewProspectStore creates a store; assumes migrations already created the table.
func NewProspectStore(ctx context.Context, pool *pgxpool.Pool) (*ProspectStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &ProspectStore{pool: pool}, nil
}

// FindIDs returns the ids of all prospects matching the predicate, ordered by
// creation time for deterministic bulk updates.
func (s *ProspectStore) FindIDs(ctx context.Context, pred Predicate) ([]uuid.UUID, error) {
	where, args := pred.Clause()
	query := fmt.Sprintf("SELECT prospect_id FROM %s WHERE %s ORDER BY created_at, prospect_id", ProspectsTable, where)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find prospect ids: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Count returns the number of prospects matching the predicate.
func (s *ProspectStore) Count(ctx context.Context, pred Predicate) (int64, error) {
	where, args := pred.Clause()
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", ProspectsTable, where)

	var total int64
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count prospects: %w", err)
	}
	return total, nil
}

// MemberIDs returns the ids of in-scope prospects currently assigned to the
// segment.
func (s *ProspectStore) MemberIDs(ctx context.Context, scopePred Predicate, segmentID uuid.UUID) ([]uuid.UUID, error) {
	where, args := scopePred.Clause()
	query := fmt.Sprintf("SELECT prospect_id FROM %s WHERE (%s) AND segment_id = $%d ORDER BY created_at, prospect_id",
		ProspectsTable, where, len(args)+1)
	args = append(args, segmentID)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find segment members: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// BulkSetSegment assigns (or clears, when segmentID is nil) the segment on
// every listed prospect in one statement. Empty input is a no-op.
func (s *ProspectStore) BulkSetSegment(ctx context.Context, ids []uuid.UUID, segmentID *uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	query := fmt.Sprintf("UPDATE %s SET segment_id = $1 WHERE prospect_id = ANY($2)", ProspectsTable)
	tag, err := s.pool.Exec(ctx, query, segmentID, ids)
	if err != nil {
		return 0, fmt.Errorf("bulk set segment: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ClearSegmentAssignments nulls segment_id on every in-scope prospect holding
// the segment. Used for referential cleanup on segment deletion.
func (s *ProspectStore) ClearSegmentAssignments(ctx context.Context, scopePred Predicate, segmentID uuid.UUID) (int64, error) {
	where, args := scopePred.Clause()
	query := fmt.Sprintf("UPDATE %s SET segment_id = NULL WHERE (%s) AND segment_id = $%d",
		ProspectsTable, where, len(args)+1)
	args = append(args, segmentID)

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("clear segment assignments: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListParams defines pagination and sorting inputs for listing prospects.
type ListParams struct {
	Limit      int
	Offset     int
	SortColumn string
	SortOrder  string
}

var prospectSortColumns = map[string]struct{}{
	"created_at":   {},
	"name":         {},
	"score":        {},
	"rating":       {},
	"review_count": {},
}

// List returns in-scope prospects with total count metadata.
func (s *ProspectStore) List(ctx context.Context, scopePred Predicate, params ListParams) ([]ProspectRecord, int64, error) {
	sortColumn := params.SortColumn
	if _, ok := prospectSortColumns[sortColumn]; !ok {
		sortColumn = "created_at"
	}
	sortOrder := "ASC"
	if strings.EqualFold(params.SortOrder, "desc") {
		sortOrder = "DESC"
	}

	where, args := scopePred.Clause()

	var total int64
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", ProspectsTable, where)
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count prospects: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s ORDER BY %s %s, prospect_id LIMIT $%d OFFSET $%d`,
		prospectColumns, ProspectsTable, where, sortColumn, sortOrder, len(args)+1, len(args)+2)
	args = append(args, params.Limit, params.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list prospects: %w", err)
	}
	defer rows.Close()

	var records []ProspectRecord
	for rows.Next() {
		rec, err := scanProspect(rows)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, rec)
	}
	return records, total, rows.Err()
}

// Create inserts a prospect row.
func (s *ProspectStore) Create(ctx context.Context, rec ProspectRecord) (ProspectRecord, error) {
	if rec.ProspectID == uuid.Nil {
		return ProspectRecord{}, errors.New("prospect id is required")
	}
	if rec.OwnerID == uuid.Nil {
		return ProspectRecord{}, errors.New("owner id is required")
	}
	if rec.Tags == nil {
		rec.Tags = []string{}
	}

	query := fmt.Sprintf(`
        INSERT INTO %s (
            prospect_id, owner_id, organization_id, segment_id, name, company,
            email, status, rating, review_count, score, tags, created_at
        ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
        RETURNING %s
    `, ProspectsTable, prospectColumns)

	row := s.pool.QueryRow(ctx, query,
		rec.ProspectID, rec.OwnerID, rec.OrganizationID, rec.SegmentID, rec.Name, rec.Company,
		rec.Email, rec.Status, rec.Rating, rec.ReviewCount, rec.Score, rec.Tags, rec.CreatedAt,
	)
	return scanProspect(row)
}

// Get fetches one in-scope prospect.
func (s *ProspectStore) Get(ctx context.Context, scopePred Predicate, prospectID uuid.UUID) (ProspectRecord, error) {
	where, args := scopePred.Clause()
	query := fmt.Sprintf("SELECT %s FROM %s WHERE (%s) AND prospect_id = $%d",
		prospectColumns, ProspectsTable, where, len(args)+1)
	args = append(args, prospectID)

	rec, err := scanProspect(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return ProspectRecord{}, ErrProspectNotFound
	}
	return rec, err
}

// UpdateAttributesParams carries the mutable prospect attributes. The
// reconciler alone writes segment_id; scope columns only change via explicit
// migration, never here.
type UpdateAttributesParams struct {
	Name        string
	Company     *string
	Email       *string
	Status      string
	Rating      *float64
	ReviewCount *int32
	Score       *int32
	Tags        []string
}

// Update replaces the mutable attributes of one in-scope prospect.
func (s *ProspectStore) Update(ctx context.Context, scopePred Predicate, prospectID uuid.UUID, params UpdateAttributesParams) (ProspectRecord, error) {
	if params.Tags == nil {
		params.Tags = []string{}
	}

	where, args := scopePred.Clause()
	n := len(args)
	query := fmt.Sprintf(`
        UPDATE %s SET name = $%d, company = $%d, email = $%d, status = $%d,
            rating = $%d, review_count = $%d, score = $%d, tags = $%d
        WHERE (%s) AND prospect_id = $%d
        RETURNING %s
    `, ProspectsTable, n+1, n+2, n+3, n+4, n+5, n+6, n+7, n+8, where, n+9, prospectColumns)
	args = append(args, params.Name, params.Company, params.Email, params.Status,
		params.Rating, params.ReviewCount, params.Score, params.Tags, prospectID)

	rec, err := scanProspect(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return ProspectRecord{}, ErrProspectNotFound
	}
	return rec, err
}

// Delete removes one in-scope prospect.
func (s *ProspectStore) Delete(ctx context.Context, scopePred Predicate, prospectID uuid.UUID) error {
	where, args := scopePred.Clause()
	query := fmt.Sprintf("DELETE FROM %s WHERE (%s) AND prospect_id = $%d", ProspectsTable, where, len(args)+1)
	args = append(args, prospectID)

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("delete prospect: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProspectNotFound
	}
	return nil
}

func scanProspect(row pgx.Row) (ProspectRecord, error) {
	var rec ProspectRecord
	err := row.Scan(
		&rec.ProspectID, &rec.OwnerID, &rec.OrganizationID, &rec.SegmentID, &rec.Name, &rec.Company,
		&rec.Email, &rec.Status, &rec.Rating, &rec.ReviewCount, &rec.Score, &rec.Tags, &rec.CreatedAt,
	)
	return rec, err
}
