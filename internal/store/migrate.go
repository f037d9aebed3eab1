package store

import (
	"context"
	"fmt"

	"github.com/pressly/goose/v3"
)

// Migrate applies all pending goose migrations from dir.
func (d *DB) Migrate(ctx context.Context, dir string) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, d.Client, dir); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
