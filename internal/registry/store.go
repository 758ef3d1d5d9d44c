package registry

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ipiton-systems/autodev-engine/internal/modules"
)

// InstallIndex persists which modules are installed, independent of
// the in-memory Registry's runtime state. Two backends are supported,
// selected by deployment profile: SQLiteInstallIndex for Lite
// (single-process), and a Postgres-backed implementation for Standard
// (multi-process) deployments.
type InstallIndex interface {
	Record(ctx context.Context, m modules.Manifest, manifestPath string) error
	Remove(ctx context.Context, id string) error
	All(ctx context.Context) ([]InstalledModule, error)
}

// InstalledModule is one row of the install index.
type InstalledModule struct {
	ID           string
	Version      string
	ManifestPath string
}

// SQLiteInstallIndex is the Lite-profile install index, backed by a
// single embedded database file via modernc.org/sqlite.
type SQLiteInstallIndex struct {
	db *sql.DB
}

// NewSQLiteInstallIndex opens (creating if necessary) the install
// index table on db.
func NewSQLiteInstallIndex(ctx context.Context, db *sql.DB) (*SQLiteInstallIndex, error) {
	const schema = `
CREATE TABLE IF NOT EXISTS installed_modules (
	id            TEXT PRIMARY KEY,
	version       TEXT NOT NULL,
	manifest_path TEXT NOT NULL
);`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("initializing install index schema: %w", err)
	}
	return &SQLiteInstallIndex{db: db}, nil
}

func (s *SQLiteInstallIndex) Record(ctx context.Context, m modules.Manifest, manifestPath string) error {
	const q = `
INSERT INTO installed_modules (id, version, manifest_path) VALUES (?, ?, ?)
ON CONFLICT(id) DO UPDATE SET version = excluded.version, manifest_path = excluded.manifest_path;`
	_, err := s.db.ExecContext(ctx, q, m.Module.ID, m.Module.Version, manifestPath)
	if err != nil {
		return fmt.Errorf("recording module %s: %w", m.Module.ID, err)
	}
	return nil
}

func (s *SQLiteInstallIndex) Remove(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM installed_modules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("removing module %s: %w", id, err)
	}
	return nil
}

func (s *SQLiteInstallIndex) All(ctx context.Context) ([]InstalledModule, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, version, manifest_path FROM installed_modules ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing installed modules: %w", err)
	}
	defer rows.Close()

	var out []InstalledModule
	for rows.Next() {
		var m InstalledModule
		if err := rows.Scan(&m.ID, &m.Version, &m.ManifestPath); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// PostgresInstallIndex is the Standard-profile install index. It
// shares the same schema and queries as SQLiteInstallIndex (standard
// SQL, no SQLite-specific syntax), so it reuses the same implementation
// against a *sql.DB opened with the pgx stdlib driver.
type PostgresInstallIndex = SQLiteInstallIndex

// NewPostgresInstallIndex opens the install index against a Postgres
// connection, applying the same schema bootstrap as
// NewSQLiteInstallIndex since the DDL is standard SQL with no
// SQLite-specific syntax.
func NewPostgresInstallIndex(ctx context.Context, db *sql.DB) (*PostgresInstallIndex, error) {
	return NewSQLiteInstallIndex(ctx, db)
}
