package database

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// Migration represents a database migration.
type Migration struct {
	Version     int
	Description string
	Up          string
	Down        string
}

// Migrator applies schema migrations to the scheduler database.
type Migrator struct {
	db         *DB
	migrations []Migration
}

// NewMigrator creates a migrator with all registered migrations.
func NewMigrator(db *DB) *Migrator {
	m := &Migrator{
		db:         db,
		migrations: make([]Migration, 0),
	}
	m.registerMigrations()
	return m
}

// registerMigrations registers the task_info / task_batch schema.
func (m *Migrator) registerMigrations() {
	autoinc := "INTEGER PRIMARY KEY AUTOINCREMENT"
	switch m.db.Driver() {
	case "mysql":
		autoinc = "BIGINT PRIMARY KEY AUTO_INCREMENT"
	case "pgx":
		autoinc = "BIGSERIAL PRIMARY KEY"
	case "sqlserver":
		autoinc = "BIGINT IDENTITY(1,1) PRIMARY KEY"
	}

	// Migration 1: schema version bookkeeping
	m.Register(Migration{
		Version:     1,
		Description: "Create schema_version table",
		Up: `
			CREATE TABLE IF NOT EXISTS schema_version (
				version INTEGER PRIMARY KEY,
				description TEXT NOT NULL,
				applied_at TEXT NOT NULL
			)
		`,
		Down: `DROP TABLE IF EXISTS schema_version`,
	})

	// Migration 2: task definitions, written by operators
	m.Register(Migration{
		Version:     2,
		Description: "Create task_info table",
		Up: fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS task_info (
				id %s,
				task_name VARCHAR(255) NOT NULL,
				task_type INTEGER NOT NULL DEFAULT 0,
				online INTEGER NOT NULL DEFAULT 1,
				dependence TEXT,
				script VARCHAR(255) NOT NULL,
				script_args VARCHAR(255),
				exec_unit VARCHAR(255) NOT NULL,
				exec_unit_param INTEGER NOT NULL DEFAULT 1,
				delay INTEGER NOT NULL DEFAULT 0,
				start_expire INTEGER NOT NULL DEFAULT 0,
				run_expire INTEGER NOT NULL DEFAULT 0,
				retry_max_times INTEGER NOT NULL DEFAULT 0,
				create_time VARCHAR(255),
				update_time VARCHAR(255)
			)
		`, autoinc),
		Down: `DROP TABLE IF EXISTS task_info`,
	})

	// Migration 3: unique task names
	m.Register(Migration{
		Version:     3,
		Description: "Create unique index on task_info.task_name",
		Up:          `CREATE UNIQUE INDEX IF NOT EXISTS uq_task_info_name ON task_info (task_name)`,
		Down:        `DROP INDEX IF EXISTS uq_task_info_name`,
	})

	// Migration 4: batches, one row per (task, window), never deleted
	m.Register(Migration{
		Version:     4,
		Description: "Create task_batch table",
		Up: fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS task_batch (
				id %s,
				task_name VARCHAR(255) NOT NULL,
				task_tag_name VARCHAR(255) NOT NULL,
				task_batch_name VARCHAR(255) NOT NULL,
				exec_status INTEGER NOT NULL DEFAULT 0,
				dependence TEXT,
				start_time VARCHAR(255) NOT NULL,
				end_time VARCHAR(255) NOT NULL,
				plan_time VARCHAR(255) NOT NULL,
				plan_expire_time VARCHAR(255) NOT NULL,
				exec_time VARCHAR(255) NOT NULL DEFAULT '0000-00-00 00:00:00',
				exit_time VARCHAR(255) NOT NULL DEFAULT '0000-00-00 00:00:00',
				duration INTEGER NOT NULL DEFAULT 0,
				retry INTEGER NOT NULL DEFAULT 0
			)
		`, autoinc),
		Down: `DROP TABLE IF EXISTS task_batch`,
	})

	// Migration 5: duplicate windows are a hard error; generator
	// re-runs rely on this index for idempotence.
	m.Register(Migration{
		Version:     5,
		Description: "Create unique index on task_batch.task_tag_name",
		Up:          `CREATE UNIQUE INDEX IF NOT EXISTS uq_task_batch_tag ON task_batch (task_tag_name)`,
		Down:        `DROP INDEX IF EXISTS uq_task_batch_tag`,
	})

	// Migration 6: claim scan path
	m.Register(Migration{
		Version:     6,
		Description: "Create index on task_batch (exec_status, plan_time)",
		Up:          `CREATE INDEX IF NOT EXISTS idx_task_batch_due ON task_batch (exec_status, plan_time)`,
		Down:        `DROP INDEX IF EXISTS idx_task_batch_due`,
	})
}

// Register adds a migration.
func (m *Migrator) Register(mig Migration) {
	m.migrations = append(m.migrations, mig)
}

// Run applies all pending migrations in version order.
func (m *Migrator) Run(ctx context.Context) error {
	sort.Slice(m.migrations, func(i, j int) bool {
		return m.migrations[i].Version < m.migrations[j].Version
	})

	if len(m.migrations) == 0 {
		return nil
	}

	// The version table is migration 1; apply it first so current() works.
	if _, err := m.db.Exec(ctx, m.migrations[0].Up); err != nil {
		return fmt.Errorf("migration %d (%s): %w", m.migrations[0].Version, m.migrations[0].Description, err)
	}

	current, err := m.current(ctx)
	if err != nil {
		return err
	}

	for _, mig := range m.migrations {
		if mig.Version <= current {
			continue
		}
		if _, err := m.db.Exec(ctx, mig.Up); err != nil {
			return fmt.Errorf("migration %d (%s): %w", mig.Version, mig.Description, err)
		}
		if err := m.record(ctx, mig); err != nil {
			return err
		}
	}

	return nil
}

// current returns the highest applied migration version.
func (m *Migrator) current(ctx context.Context) (int, error) {
	var version int
	row := m.db.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`)
	if err := row.Scan(&version); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}

// record marks a migration as applied.
func (m *Migrator) record(ctx context.Context, mig Migration) error {
	_, err := m.db.Exec(ctx,
		`INSERT INTO schema_version (version, description, applied_at) VALUES (?, ?, ?)`,
		mig.Version, mig.Description, time.Now().UTC().Format("2006-01-02 15:04:05"))
	if err != nil {
		return fmt.Errorf("record migration %d: %w", mig.Version, err)
	}
	return nil
}
