package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SegmentsTable holds the named segment definitions.
const SegmentsTable = "segments"

// ErrSegmentNotFound indicates the segment does not exist within the given
// scope. Out-of-scope segments are deliberately indistinguishable from
// nonexistent ones.
var ErrSegmentNotFound = errors.New("segment not found")

// SegmentRecord mirrors the segments table shape. Rules holds the stored
// tagged-variant rule tree as JSONB.
type SegmentRecord struct {
	SegmentID      uuid.UUID       `db:"segment_id"`
	OwnerID        uuid.UUID       `db:"owner_id"`
	OrganizationID *uuid.UUID      `db:"organization_id"`
	Name           string          `db:"name"`
	Color          string          `db:"color"`
	Rules          json.RawMessage `db:"rules"`
	CreatedAt      time.Time       `db:"created_at"`
}

const segmentColumns = `segment_id, owner_id, organization_id, name, color, rules, created_at`

// SegmentStore provides access to the segments table. Every read and mutation
// takes a scope predicate; there is no unscoped path.
type SegmentStore struct {
	pool *pgxpool.Pool
}

// NewSegmentStore creates a store; assumes migrations already created the table.
func NewSegmentStore(ctx context.Context, pool *pgxpool.Pool) (*SegmentStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &SegmentStore{pool: pool}, nil
}

// Create inserts a segment row.
func (s *SegmentStore) Create(ctx context.Context, rec SegmentRecord) (SegmentRecord, error) {
	if rec.SegmentID == uuid.Nil {
		return SegmentRecord{}, errors.New("segment id is required")
	}
	if rec.OwnerID == uuid.Nil {
		return SegmentRecord{}, errors.New("owner id is required")
	}

	query := fmt.Sprintf(`
        INSERT INTO %s (segment_id, owner_id, organization_id, name, color, rules, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING %s
    `, SegmentsTable, segmentColumns)

	row := s.pool.QueryRow(ctx, query,
		rec.SegmentID, rec.OwnerID, rec.OrganizationID, rec.Name, rec.Color, rec.Rules, rec.CreatedAt,
	)
	return scanSegment(row)
}

// Get fetches one in-scope segment.
func (s *SegmentStore) Get(ctx context.Context, scopePred Predicate, segmentID uuid.UUID) (SegmentRecord, error) {
	where, args := scopePred.Clause()
	query := fmt.Sprintf("SELECT %s FROM %s WHERE (%s) AND segment_id = $%d",
		segmentColumns, SegmentsTable, where, len(args)+1)
	args = append(args, segmentID)

	rec, err := scanSegment(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return SegmentRecord{}, ErrSegmentNotFound
	}
	return rec, err
}

// List returns every in-scope segment ordered by creation time.
func (s *SegmentStore) List(ctx context.Context, scopePred Predicate) ([]SegmentRecord, error) {
	where, args := scopePred.Clause()
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY created_at, segment_id",
		segmentColumns, SegmentsTable, where)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}
	defer rows.Close()

	var records []SegmentRecord
	for rows.Next() {
		rec, err := scanSegment(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// UpdateDefinition replaces the mutable parts of a segment: name, color and
// the rule set. Identity and ownership are immutable.
func (s *SegmentStore) UpdateDefinition(ctx context.Context, scopePred Predicate, segmentID uuid.UUID, name, color string, rules json.RawMessage) (SegmentRecord, error) {
	where, args := scopePred.Clause()
	n := len(args)
	query := fmt.Sprintf(`
        UPDATE %s SET name = $%d, color = $%d, rules = $%d
        WHERE (%s) AND segment_id = $%d
        RETURNING %s
    `, SegmentsTable, n+1, n+2, n+3, where, n+4, segmentColumns)
	args = append(args, name, color, rules, segmentID)

	rec, err := scanSegment(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return SegmentRecord{}, ErrSegmentNotFound
	}
	return rec, err
}

// Delete removes one in-scope segment row. Referential cleanup of prospect
// assignments and dependent artifacts is the service's responsibility.
func (s *SegmentStore) Delete(ctx context.Context, scopePred Predicate, segmentID uuid.UUID) error {
	where, args := scopePred.Clause()
	query := fmt.Sprintf("DELETE FROM %s WHERE (%s) AND segment_id = $%d", SegmentsTable, where, len(args)+1)
	args = append(args, segmentID)

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("delete segment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSegmentNotFound
	}
	return nil
}

func scanSegment(row pgx.Row) (SegmentRecord, error) {
	var rec SegmentRecord
	err := row.Scan(
		&rec.SegmentID, &rec.OwnerID, &rec.OrganizationID, &rec.Name, &rec.Color, &rec.Rules, &rec.CreatedAt,
	)
	return rec, err
}
