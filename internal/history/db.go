package history

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// SQLite pragmas tuned the same way as the teacher's internal/db package:
// WAL plus a short busy timeout, since the index is single-writer
// (rebuilt by one dsg process at a time under the repository lock).
const defaultPragma = `
PRAGMA journal_mode=WAL;
PRAGMA busy_timeout=5000;
PRAGMA foreign_keys=ON;
PRAGMA temp_store=MEMORY;
`

type indexConfig struct {
	path            string
	pragmas         string
	maxOpenConns    int
	maxIdleConns    int
	connMaxLifetime time.Duration
}

// IndexOption configures Index construction, mirroring the teacher's
// SqliteOption functional-options pattern (internal/db/db.go).
type IndexOption func(*indexConfig)

// WithMaxOpenConns caps the index's connection pool.
func WithMaxOpenConns(n int) IndexOption {
	return func(c *indexConfig) { c.maxOpenConns = n }
}

// Index is a secondary sqlite index over archived snapshots: it exists
// purely to make repeated `dsg log`/`dsg blame` queries over a large
// archive avoid decompressing every member on every call. The gzip
// archive in .dsg/archive/ remains the durable source of truth; Index is
// always rebuildable from it via Rebuild.
type Index struct {
	db *sqlx.DB
}

// OpenIndex opens (creating if absent) the sqlite index file at path,
// running pending migrations.
func OpenIndex(path string, opts ...IndexOption) (*Index, error) {
	cfg := &indexConfig{
		path:         path,
		pragmas:      defaultPragma,
		maxOpenConns: 1, // single-writer: rebuilds happen under the repo lock
		maxIdleConns: 1,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.path), 0o755); err != nil {
			return nil, fmt.Errorf("history: create index directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_txlock=immediate&mode=rwc", cfg.path)
	if cfg.path == ":memory:" {
		dsn = ":memory:"
	}

	slog.Debug("history: opening index", "path", cfg.path)
	db, err := sqlx.Connect("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("history: connect to index: %w", err)
	}

	db.SetMaxOpenConns(cfg.maxOpenConns)
	db.SetMaxIdleConns(cfg.maxIdleConns)
	if cfg.connMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.connMaxLifetime)
	}

	if _, err := db.Exec(cfg.pragmas); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: set pragmas: %w", err)
	}

	idx := &Index{db: db}
	if err := idx.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return idx, nil
}

// Close releases the index's database handle.
func (idx *Index) Close() error {
	return idx.db.Close()
}
