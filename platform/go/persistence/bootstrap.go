package persistence

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	sqlassets "github.com/leadpilot-crm/leadpilot-saas/database"
)

// ApplyCoreSchema executes the embedded platform DDL. Statements are written
// with IF NOT EXISTS so repeated bootstraps are safe.
func ApplyCoreSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, ddl := range sqlassets.All() {
		if _, err := pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("apply core schema: %w", err)
		}
	}
	return nil
}
