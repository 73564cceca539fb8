package database

import (
	"context"
	_ "embed"
	"fmt"
)

//go:embed schema.sql
var schema string

// Migrate creates the catalog and interaction tables if they are missing.
func (db *Database) Migrate(ctx context.Context) error {
	if _, err := db.PG.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	db.logger.Info("Database schema is up to date")
	return nil
}
