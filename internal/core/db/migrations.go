package db

import (
	"context"
	"crypto/sha256"
	"embed"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	embeddedmigrations "github.com/solatis/mdcollate/migrations"
)

// MigrationStatus represents the state of a single migration.
type MigrationStatus struct {
	ID          string
	Checksum    string
	Applied     bool
	AppliedAt   *time.Time
	ExecutionMs int64
}

// migration represents a parsed migration file
type migration struct {
	ID       string
	Checksum string
	SQL      string
}

// MigrateUp applies pending migrations in filename order. Already-applied
// migrations must match their embedded checksum.
func MigrateUp(ctx context.Context, db *sqlx.DB) error {
	migrations, err := prepare(ctx, db)
	if err != nil {
		return err
	}

	if err := validateChecksums(ctx, db, migrations); err != nil {
		return fmt.Errorf("migration checksum validation failed: %w", err)
	}

	applied, err := getAppliedMigrations(ctx, db)
	if err != nil {
		return fmt.Errorf("failed to query applied migrations: %w", err)
	}

	for _, m := range migrations {
		if applied[m.ID] {
			continue
		}
		if err := runMigration(ctx, db, m); err != nil {
			return err
		}
	}

	return nil
}

// MigrateStatus returns the status of all migrations (applied and pending).
func MigrateStatus(ctx context.Context, db *sqlx.DB) ([]MigrationStatus, error) {
	migrations, err := prepare(ctx, db)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryxContext(ctx, "SELECT migration_id, checksum, applied_at_ms, execution_ms FROM migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to query migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]MigrationStatus)
	for rows.Next() {
		var (
			status    MigrationStatus
			appliedMs int64
		)
		if err := rows.Scan(&status.ID, &status.Checksum, &appliedMs, &status.ExecutionMs); err != nil {
			return nil, err
		}
		at := time.UnixMilli(appliedMs).UTC()
		status.AppliedAt = &at
		status.Applied = true
		applied[status.ID] = status
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	statuses := make([]MigrationStatus, 0, len(migrations))
	for _, m := range migrations {
		if s, ok := applied[m.ID]; ok {
			statuses = append(statuses, s)
			continue
		}
		statuses = append(statuses, MigrationStatus{ID: m.ID, Checksum: m.Checksum})
	}

	return statuses, nil
}

// prepare creates the tracking table and parses the driver's embedded files.
func prepare(ctx context.Context, db *sqlx.DB) ([]migration, error) {
	fsys, dir, err := driverMigrations(db.DriverName())
	if err != nil {
		return nil, err
	}

	if err := createMigrationsTable(ctx, db); err != nil {
		return nil, fmt.Errorf("failed to create migrations table: %w", err)
	}

	migrations, err := parseMigrationFiles(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to parse migrations: %w", err)
	}
	return migrations, nil
}

func driverMigrations(driver string) (embed.FS, string, error) {
	switch driver {
	case "sqlite3":
		return embeddedmigrations.SqliteMigrations, "sqlite", nil
	case "postgres":
		return embeddedmigrations.PostgresMigrations, "postgres", nil
	default:
		return embed.FS{}, "", fmt.Errorf("unsupported database driver: %s", driver)
	}
}

// parseMigrationFiles extracts ordered list of migrations from embed.FS
func parseMigrationFiles(fsys embed.FS, dir string) ([]migration, error) {
	var migrations []migration

	err := fs.WalkDir(fsys, dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".sql") {
			return nil
		}

		content, err := fsys.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}

		hash := sha256.Sum256(content)
		migrations = append(migrations, migration{
			ID:       filepath.Base(path),
			Checksum: fmt.Sprintf("%x", hash),
			SQL:      string(content),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].ID < migrations[j].ID
	})

	return migrations, nil
}

// createMigrationsTable ensures the tracking table exists. Timestamps are unix
// milliseconds so both drivers share one column type.
func createMigrationsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS migrations (
			migration_id TEXT PRIMARY KEY,
			checksum TEXT NOT NULL,
			applied_at_ms BIGINT NOT NULL,
			execution_ms BIGINT NOT NULL
		)
	`)
	return err
}

// getAppliedMigrations returns a set of applied migration IDs
func getAppliedMigrations(ctx context.Context, db *sqlx.DB) (map[string]bool, error) {
	var ids []string
	if err := db.SelectContext(ctx, &ids, "SELECT migration_id FROM migrations"); err != nil {
		return nil, err
	}

	applied := make(map[string]bool, len(ids))
	for _, id := range ids {
		applied[id] = true
	}
	return applied, nil
}

// validateChecksums verifies all applied migrations match embedded checksums
func validateChecksums(ctx context.Context, db *sqlx.DB, migrations []migration) error {
	var recorded []struct {
		ID       string `db:"migration_id"`
		Checksum string `db:"checksum"`
	}
	if err := db.SelectContext(ctx, &recorded, "SELECT migration_id, checksum FROM migrations"); err != nil {
		return err
	}

	checksumMap := make(map[string]string, len(migrations))
	for _, m := range migrations {
		checksumMap[m.ID] = m.Checksum
	}

	for _, r := range recorded {
		expected, ok := checksumMap[r.ID]
		if !ok {
			return fmt.Errorf("migration %s exists in database but not in embedded files", r.ID)
		}
		if r.Checksum != expected {
			return fmt.Errorf("checksum mismatch for migration %s: expected %s, got %s", r.ID, expected, r.Checksum)
		}
	}

	return nil
}

// runMigration applies m and records it in one transaction.
func runMigration(ctx context.Context, db *sqlx.DB, m migration) error {
	start := time.Now()

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for migration %s: %w", m.ID, err)
	}

	if err := applyMigration(ctx, tx, m); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to apply migration %s: %w", m.ID, err)
	}

	_, err = tx.ExecContext(ctx,
		tx.Rebind("INSERT INTO migrations (migration_id, checksum, applied_at_ms, execution_ms) VALUES (?, ?, ?, ?)"),
		m.ID, m.Checksum, time.Now().UTC().UnixMilli(), time.Since(start).Milliseconds(),
	)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to record migration %s: %w", m.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration %s: %w", m.ID, err)
	}
	return nil
}

// applyMigration executes each statement of m. lib/pq does not accept multiple
// statements in a single Exec.
func applyMigration(ctx context.Context, tx *sqlx.Tx, m migration) error {
	for _, stmt := range strings.Split(stripComments(m.SQL), ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("statement failed: %w", err)
		}
	}
	return nil
}

// stripComments drops full-line "--" comments.
func stripComments(sql string) string {
	lines := strings.Split(sql, "\n")
	kept := lines[:0]
	for _, l := range lines {
		if strings.HasPrefix(strings.TrimSpace(l), "--") {
			continue
		}
		kept = append(kept, l)
	}
	return strings.Join(kept, "\n")
}
