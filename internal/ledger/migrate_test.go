package ledger

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	_ "modernc.org/sqlite"
)

func TestMigrateSQLiteIdempotent(t *testing.T) {
	db, err := sql.Open("sqlite", "file:migrate_idempotent?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	if err := Migrate(db, DBSQLite); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := Migrate(db, DBSQLite); err != nil {
		t.Fatalf("migrate second: %v", err)
	}

	for _, table := range []string{"lawbook_versions", "lawbook_active", "drafts", "playbook_runs"} {
		var name string
		if err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name); err != nil {
			t.Fatalf("expected %s table: %v", table, err)
		}
	}

	steps, err := Migrations(DBSQLite)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&count); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if count != len(steps) {
		t.Fatalf("expected %d migrations recorded, got %d", len(steps), count)
	}
}

func TestMigrationsMatchAcrossDrivers(t *testing.T) {
	lite, err := Migrations(DBSQLite)
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	pg, err := Migrations(DBPostgres)
	if err != nil {
		t.Fatalf("postgres: %v", err)
	}
	if len(lite) == 0 || len(lite) != len(pg) {
		t.Fatalf("sqlite and postgres migrations diverge: %d vs %d", len(lite), len(pg))
	}
	for i := range lite {
		if lite[i].Version != pg[i].Version {
			t.Fatalf("step %d: %s vs %s", i, lite[i].Version, pg[i].Version)
		}
		if i > 0 && lite[i-1].Version >= lite[i].Version {
			t.Fatalf("steps out of order: %s then %s", lite[i-1].Version, lite[i].Version)
		}
	}
}

func TestMigrateUnknownDriver(t *testing.T) {
	if _, err := Migrations(DBDriver("mysql")); !errors.Is(err, ErrUnknownDriver) {
		t.Fatalf("expected ErrUnknownDriver, got %v", err)
	}
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	if err := Migrate(db, DBDriver("mysql")); !errors.Is(err, ErrUnknownDriver) {
		t.Fatalf("expected ErrUnknownDriver, got %v", err)
	}
	if err := Migrate(nil, DBSQLite); err == nil {
		t.Fatalf("expected error for nil db")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unexpected statements: %v", err)
	}
}

func TestMigratePostgresSkipsRecordedSteps(t *testing.T) {
	steps, err := Migrations(DBPostgres)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	insert := dialects[DBPostgres].insert
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS lawgate_schema_migrations (version TEXT PRIMARY KEY, applied_at TIMESTAMPTZ NOT NULL)").
		WillReturnResult(sqlmock.NewResult(0, 0))
	for i, step := range steps {
		mock.ExpectBegin()
		if i == 0 {
			mock.ExpectExec(insert).WithArgs(step.Version, sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectRollback()
			continue
		}
		mock.ExpectExec(insert).WithArgs(step.Version, sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(step.SQL).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()
	}

	if err := Migrate(db, DBPostgres); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestMigrateFailedStepRollsBack(t *testing.T) {
	steps, err := Migrations(DBPostgres)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	boom := errors.New("syntax error")
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS lawgate_schema_migrations (version TEXT PRIMARY KEY, applied_at TIMESTAMPTZ NOT NULL)").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectBegin()
	mock.ExpectExec(dialects[DBPostgres].insert).WithArgs(steps[0].Version, sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(steps[0].SQL).WillReturnError(boom)
	mock.ExpectRollback()

	if err := Migrate(db, DBPostgres); !errors.Is(err, boom) {
		t.Fatalf("expected step error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
