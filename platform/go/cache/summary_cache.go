// Package cache stores the most recent apply summary per segment so dashboard
// reads do not hit the record table. Redis is optional wiring: a nil cache is
// valid everywhere and degrades to "no cached summary".
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ApplySummary is the cached caller-visible outcome of one apply run.
type ApplySummary struct {
	SegmentID       uuid.UUID `json:"segmentId"`
	MatchedCount    int64     `json:"matchedCount"`
	ReassignedCount int64     `json:"reassignedCount"`
	UnassignedCount int64     `json:"unassignedCount"`
	ClearOthers     bool      `json:"clearOthers"`
	AppliedAt       time.Time `json:"appliedAt"`
}

// SummaryCache persists apply summaries in Redis with a TTL.
type SummaryCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewSummaryCache builds a cache from a Redis URL and verifies connectivity.
func NewSummaryCache(ctx context.Context, url string, ttl time.Duration) (*SummaryCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &SummaryCache{rdb: rdb, ttl: ttl}, nil
}

// Close releases the underlying Redis connection; safe on nil.
func (c *SummaryCache) Close() error {
	if c == nil {
		return nil
	}
	return c.rdb.Close()
}

func summaryKey(segmentID uuid.UUID) string {
	return "segment:last-apply:" + segmentID.String()
}

// Put stores the summary; safe on nil receiver.
func (c *SummaryCache) Put(ctx context.Context, summary ApplySummary) error {
	if c == nil {
		return nil
	}

	raw, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("encode apply summary: %w", err)
	}
	return c.rdb.Set(ctx, summaryKey(summary.SegmentID), raw, c.ttl).Err()
}

// Get returns the cached summary and whether one exists; safe on nil receiver.
func (c *SummaryCache) Get(ctx context.Context, segmentID uuid.UUID) (ApplySummary, bool, error) {
	if c == nil {
		return ApplySummary{}, false, nil
	}

	raw, err := c.rdb.Get(ctx, summaryKey(segmentID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ApplySummary{}, false, nil
	}
	if err != nil {
		return ApplySummary{}, false, fmt.Errorf("read apply summary: %w", err)
	}

	var summary ApplySummary
	if err := json.Unmarshal(raw, &summary); err != nil {
		return ApplySummary{}, false, fmt.Errorf("decode apply summary: %w", err)
	}
	return summary, true, nil
}

// Invalidate drops the cached summary for a deleted segment; safe on nil.
func (c *SummaryCache) Invalidate(ctx context.Context, segmentID uuid.UUID) error {
	if c == nil {
		return nil
	}
	return c.rdb.Del(ctx, summaryKey(segmentID)).Err()
}
