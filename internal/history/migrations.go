package history

import (
	"context"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// migrate applies pending schema migrations, grounded on
// tonimelisma/onedrive-go's goose v3 Provider usage (no global state,
// context-aware).
func (idx *Index) migrate() error {
	subFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("history: migrations sub-filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, idx.db.DB, subFS)
	if err != nil {
		return fmt.Errorf("history: create migration provider: %w", err)
	}

	if _, err := provider.Up(context.Background()); err != nil {
		return fmt.Errorf("history: run migrations: %w", err)
	}
	return nil
}
