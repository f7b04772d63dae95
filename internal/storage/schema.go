package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"go.uber.org/zap"
)

var (
	// ErrDirectoryCreate is returned when the store's parent directory cannot be created.
	ErrDirectoryCreate = errors.New("create store directory")
	// ErrStoreOpen is returned when the SQLite file cannot be opened.
	ErrStoreOpen = errors.New("open store")
	// ErrSchemaApply is returned when a migration step fails.
	ErrSchemaApply = errors.New("apply schema")
	// ErrNotFound is returned when a run, sample or annotation does not exist.
	ErrNotFound = errors.New("not found")
)

// Migrations holds the ordered schema steps. Every step is written with
// IF NOT EXISTS so reapplying one is harmless.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// migrationsTable records which steps have been applied to a store.
const migrationsTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version    TEXT PRIMARY KEY,
    applied_at DATETIME NOT NULL
);
`

// dsnPragmas configures every connection. foreign_keys must be set per
// connection for the samples->eval_runs and annotations->samples references.
const dsnPragmas = "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)"

func openDB(storePath string) (*sql.DB, error) {
	return sql.Open("sqlite3", "file:"+storePath+"?"+dsnPragmas)
}

// Schema initializes and upgrades project stores.
type Schema struct {
	migrations fs.FS
	logger     *zap.Logger
}

// NewSchema returns a Schema that applies the embedded migrations.
func NewSchema(logger *zap.Logger) *Schema {
	if logger == nil {
		logger = zap.NewNop()
	}
	sub, err := fs.Sub(Migrations, "migrations")
	if err != nil {
		// The embed pattern above guarantees the directory exists.
		panic(err)
	}
	return &Schema{migrations: sub, logger: logger}
}

// Init makes sure the store at storePath exists and carries every migration
// step. It opens its own connection and closes it before returning, so it is
// safe to call on every project open.
func (s *Schema) Init(ctx context.Context, storePath string) error {
	if err := os.MkdirAll(filepath.Dir(storePath), 0o755); err != nil {
		return fmt.Errorf("%w %s: %w", ErrDirectoryCreate, filepath.Dir(storePath), err)
	}

	db, err := openDB(storePath)
	if err != nil {
		return fmt.Errorf("%w %s: %w", ErrStoreOpen, storePath, err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w %s: %w", ErrStoreOpen, storePath, err)
	}

	applied, err := s.apply(ctx, db)
	if err != nil {
		return fmt.Errorf("%w %s: %w", ErrSchemaApply, storePath, err)
	}
	if len(applied) > 0 {
		s.logger.Info("store schema updated",
			zap.String("store", storePath),
			zap.Strings("migrations", applied))
	}
	return nil
}

// Version reports the newest migration step recorded in the store, or ""
// for a store that was never initialized by Init.
func (s *Schema) Version(ctx context.Context, storePath string) (string, error) {
	if _, err := os.Stat(storePath); err != nil {
		return "", fmt.Errorf("%w %s: %w", ErrStoreOpen, storePath, err)
	}
	db, err := openDB(storePath)
	if err != nil {
		return "", fmt.Errorf("%w %s: %w", ErrStoreOpen, storePath, err)
	}
	defer db.Close()

	var exists int
	err = db.QueryRowContext(ctx,
		`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = 'schema_migrations'`,
	).Scan(&exists)
	if err != nil {
		return "", fmt.Errorf("%w %s: %w", ErrStoreOpen, storePath, err)
	}
	if exists == 0 {
		return "", nil
	}

	var version sql.NullString
	if err := db.QueryRowContext(ctx, `SELECT max(version) FROM schema_migrations`).Scan(&version); err != nil {
		return "", fmt.Errorf("read schema version: %w", err)
	}
	return version.String, nil
}

// apply runs every pending step in filename order, each in its own
// transaction together with its schema_migrations marker row.
func (s *Schema) apply(ctx context.Context, db *sql.DB) ([]string, error) {
	if _, err := db.ExecContext(ctx, migrationsTable); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}

	files, err := listMigrationFiles(s.migrations)
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}

	var applied []string
	for _, file := range files {
		var done int
		if err := db.QueryRowContext(ctx,
			`SELECT count(*) FROM schema_migrations WHERE version = ?`, file,
		).Scan(&done); err != nil {
			return applied, fmt.Errorf("check migration %s: %w", file, err)
		}
		if done > 0 {
			continue
		}
		if err := s.applyOne(ctx, db, file); err != nil {
			return applied, err
		}
		applied = append(applied, file)
	}
	return applied, nil
}

func (s *Schema) applyOne(ctx context.Context, db *sql.DB, file string) error {
	body, err := fs.ReadFile(s.migrations, file)
	if err != nil {
		return fmt.Errorf("read migration %s: %w", file, err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, string(body)); err != nil {
		return fmt.Errorf("migration %s: %w", file, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`,
		file, formatTime(time.Now()),
	); err != nil {
		return fmt.Errorf("record migration %s: %w", file, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %s: %w", file, err)
	}
	s.logger.Debug("migration applied", zap.String("version", file))
	return nil
}

func listMigrationFiles(migFS fs.FS) ([]string, error) {
	entries, err := fs.ReadDir(migFS, ".")
	if err != nil {
		return nil, err
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		files = append(files, e.Name())
	}
	sort.Strings(files)
	return files, nil
}
