package ledger

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"
	"time"
)

//go:embed migrations/*/*.sql
var migrationFiles embed.FS

// DBDriver names a SQL backend of the ledger.
type DBDriver string

const (
	DBSQLite   DBDriver = "sqlite"
	DBPostgres DBDriver = "postgres"
)

// ErrUnknownDriver is returned for a driver without migrations.
var ErrUnknownDriver = errors.New("ledger: unknown db driver")

// Migration is one embedded schema step. Steps apply in Version order.
type Migration struct {
	Version string
	SQL     string
}

// dialect holds what differs between backends when recording steps.
type dialect struct {
	dir       string
	table     string
	appliedAt string
	insert    string
	stamp     func(time.Time) any
}

var dialects = map[DBDriver]dialect{
	DBSQLite: {
		dir:       "migrations/sqlite",
		table:     "schema_migrations",
		appliedAt: "TEXT",
		insert:    "INSERT INTO schema_migrations(version, applied_at) VALUES(?, ?) ON CONFLICT(version) DO NOTHING",
		stamp:     func(t time.Time) any { return FormatTime(t) },
	},
	DBPostgres: {
		dir:       "migrations/postgres",
		table:     "lawgate_schema_migrations",
		appliedAt: "TIMESTAMPTZ",
		insert:    "INSERT INTO lawgate_schema_migrations(version, applied_at) VALUES($1, $2) ON CONFLICT(version) DO NOTHING",
		stamp:     func(t time.Time) any { return t.UTC() },
	},
}

func dialectFor(driver DBDriver) (dialect, error) {
	d, ok := dialects[driver]
	if !ok {
		return dialect{}, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
	return d, nil
}

// Migrations lists the embedded steps of driver in apply order.
func Migrations(driver DBDriver) ([]Migration, error) {
	d, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}
	names, err := fs.Glob(migrationFiles, d.dir+"/*.sql")
	if err != nil {
		return nil, err
	}
	slices.Sort(names)
	out := make([]Migration, 0, len(names))
	for _, name := range names {
		body, err := migrationFiles.ReadFile(name)
		if err != nil {
			return nil, err
		}
		out = append(out, Migration{
			Version: strings.TrimSuffix(path.Base(name), ".sql"),
			SQL:     string(body),
		})
	}
	return out, nil
}

// Migrate brings db up to the latest ledger schema.
func Migrate(db *sql.DB, driver DBDriver) error {
	return MigrateContext(context.Background(), db, driver)
}

// MigrateContext applies every embedded step db has not recorded yet. Each
// step and its bookkeeping row commit together, so a failed step leaves no
// trace and is retried on the next call.
func MigrateContext(ctx context.Context, db *sql.DB, driver DBDriver) error {
	if db == nil {
		return errors.New("ledger: migrate needs a db")
	}
	d, err := dialectFor(driver)
	if err != nil {
		return err
	}
	steps, err := Migrations(driver)
	if err != nil {
		return err
	}

	create := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (version TEXT PRIMARY KEY, applied_at %s NOT NULL)", d.table, d.appliedAt)
	if _, err := db.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("ledger: create %s: %w", d.table, err)
	}

	now := time.Now()
	for _, step := range steps {
		if err := applyStep(ctx, db, d, step, now); err != nil {
			return fmt.Errorf("ledger: migration %s: %w", step.Version, err)
		}
	}
	return nil
}

func applyStep(ctx context.Context, db *sql.DB, d dialect, step Migration, now time.Time) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, d.insert, step.Version, d.stamp(now))
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil || n == 0 {
		return err
	}
	if _, err := tx.ExecContext(ctx, step.SQL); err != nil {
		return err
	}
	return tx.Commit()
}
