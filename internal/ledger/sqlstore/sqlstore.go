package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/davidahmann/lawgate/internal/ledger"
)

const activeSlot = "default"

type Store struct {
	db *sql.DB
}

func OpenSQLite(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, err
	}
	return New(db), nil
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) WithTx(fn func(ledger.Tx) error) error {
	return s.inTx(func(tx *sql.Tx) error { return fn(&Tx{tx: tx}) })
}

func (s *Store) inTx(fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(context.Background(), &sql.TxOptions{})
	if err != nil {
		return err
	}
	if _, err := tx.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

func (s *Store) PutLawbookVersion(rec ledger.LawbookVersionRecord) (ledger.LawbookVersionRecord, bool, error) {
	var (
		stored  ledger.LawbookVersionRecord
		created bool
	)
	err := s.WithTx(func(tx ledger.Tx) error {
		var err error
		stored, created, err = tx.PutLawbookVersion(rec)
		return err
	})
	return stored, created, err
}

func (s *Store) GetLawbookVersion(versionID string) (ledger.LawbookVersionRecord, bool) {
	return getLawbookVersion(s.db, `version_id = ?`, versionID)
}

func (s *Store) GetLawbookVersionByHash(lawbookHash string) (ledger.LawbookVersionRecord, bool) {
	return getLawbookVersion(s.db, `lawbook_hash = ?`, lawbookHash)
}

func (s *Store) ListLawbookVersions(limit int) ([]ledger.LawbookVersionRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(`SELECT version_id, lawbook_id, lawbook_version, lawbook_hash, body_json, created_at, created_by
FROM lawbook_versions
ORDER BY created_at DESC, version_id ASC
LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []ledger.LawbookVersionRecord{}
	for rows.Next() {
		rec, err := scanLawbookVersion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) SetActiveLawbook(ptr ledger.ActivePointer) error {
	return s.WithTx(func(tx ledger.Tx) error { return tx.SetActiveLawbook(ptr) })
}

func (s *Store) GetActiveLawbook() (ledger.ActivePointer, bool) {
	return getActiveLawbook(s.db)
}

func (s *Store) PutDraft(rec ledger.DraftRecord) (ledger.DraftRecord, bool, error) {
	var (
		stored  ledger.DraftRecord
		created bool
	)
	err := s.inTx(func(tx *sql.Tx) error {
		var err error
		stored, created, err = putDraft(tx, rec)
		return err
	})
	return stored, created, err
}

func (s *Store) GetDraft(draftID string) (ledger.DraftRecord, bool) {
	return getDraft(s.db, `draft_id = ?`, draftID)
}

func (s *Store) PutRun(rec ledger.RunRecord) (ledger.RunRecord, bool, error) {
	var (
		stored  ledger.RunRecord
		created bool
	)
	err := s.WithTx(func(tx ledger.Tx) error {
		var err error
		stored, created, err = tx.PutRun(rec)
		return err
	})
	return stored, created, err
}

func (s *Store) GetRun(runID string) (ledger.RunRecord, bool) {
	return getRun(s.db, `run_id = ?`, runID)
}

func (s *Store) GetRunByKey(runKey string) (ledger.RunRecord, bool) {
	return getRun(s.db, `run_key = ?`, runKey)
}

func (s *Store) CountRuns(incidentID, playbookID string) (int, error) {
	return countRuns(s.db, incidentID, playbookID)
}

func (s *Store) LastRunAt(incidentID, playbookID string) (string, bool, error) {
	return lastRunAt(s.db, incidentID, playbookID)
}

type Tx struct {
	tx *sql.Tx
}

func (t *Tx) PutLawbookVersion(rec ledger.LawbookVersionRecord) (ledger.LawbookVersionRecord, bool, error) {
	if rec.VersionID == "" {
		return ledger.LawbookVersionRecord{}, false, ledger.ErrMissingID
	}
	if rec.LawbookHash == "" {
		return ledger.LawbookVersionRecord{}, false, ledger.ErrMissingHash
	}
	res, err := t.tx.Exec(`INSERT INTO lawbook_versions(version_id, lawbook_id, lawbook_version, lawbook_hash, body_json, created_at, created_by)
VALUES(?, ?, ?, ?, ?, ?, ?)
ON CONFLICT DO NOTHING`,
		rec.VersionID,
		rec.LawbookID,
		rec.LawbookVersion,
		rec.LawbookHash,
		string(rec.BodyJSON),
		rec.CreatedAt,
		rec.CreatedBy,
	)
	if err != nil {
		return ledger.LawbookVersionRecord{}, false, err
	}
	created, err := inserted(res)
	if err != nil {
		return ledger.LawbookVersionRecord{}, false, err
	}
	stored, ok := getLawbookVersion(t.tx, `lawbook_hash = ?`, rec.LawbookHash)
	if !ok {
		return ledger.LawbookVersionRecord{}, false, fmt.Errorf("lawbook version %s: %w", rec.VersionID, ledger.ErrIDConflict)
	}
	return stored, created, nil
}

func (t *Tx) GetLawbookVersion(versionID string) (ledger.LawbookVersionRecord, bool) {
	return getLawbookVersion(t.tx, `version_id = ?`, versionID)
}

func (t *Tx) SetActiveLawbook(ptr ledger.ActivePointer) error {
	if ptr.VersionID == "" {
		return ledger.ErrMissingID
	}
	_, err := t.tx.Exec(`INSERT INTO lawbook_active(slot, lawbook_id, version_id, updated_at, updated_by)
VALUES(?, ?, ?, ?, ?)
ON CONFLICT(slot) DO UPDATE SET
  lawbook_id = excluded.lawbook_id,
  version_id = excluded.version_id,
  updated_at = excluded.updated_at,
  updated_by = excluded.updated_by`,
		activeSlot,
		ptr.LawbookID,
		ptr.VersionID,
		ptr.UpdatedAt,
		ptr.UpdatedBy,
	)
	return err
}

func (t *Tx) GetActiveLawbook() (ledger.ActivePointer, bool) {
	return getActiveLawbook(t.tx)
}

func (t *Tx) PutRun(rec ledger.RunRecord) (ledger.RunRecord, bool, error) {
	if rec.RunID == "" || rec.RunKey == "" {
		return ledger.RunRecord{}, false, ledger.ErrMissingID
	}
	res, err := t.tx.Exec(`INSERT INTO playbook_runs(run_id, run_key, incident_id, playbook_id, status, verdict, inputs_hash, lawbook_hash, verdict_json, created_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT DO NOTHING`,
		rec.RunID,
		rec.RunKey,
		rec.IncidentID,
		rec.PlaybookID,
		rec.Status,
		rec.Verdict,
		rec.InputsHash,
		rec.LawbookHash,
		string(rec.VerdictJSON),
		rec.CreatedAt,
	)
	if err != nil {
		return ledger.RunRecord{}, false, err
	}
	created, err := inserted(res)
	if err != nil {
		return ledger.RunRecord{}, false, err
	}
	stored, ok := getRun(t.tx, `run_key = ?`, rec.RunKey)
	if !ok {
		return ledger.RunRecord{}, false, fmt.Errorf("run %s: %w", rec.RunID, ledger.ErrIDConflict)
	}
	return stored, created, nil
}

func (t *Tx) CountRuns(incidentID, playbookID string) (int, error) {
	return countRuns(t.tx, incidentID, playbookID)
}

func (t *Tx) LastRunAt(incidentID, playbookID string) (string, bool, error) {
	return lastRunAt(t.tx, incidentID, playbookID)
}

func getLawbookVersion(q querier, where string, args ...any) (ledger.LawbookVersionRecord, bool) {
	row := q.QueryRow(`SELECT version_id, lawbook_id, lawbook_version, lawbook_hash, body_json, created_at, created_by
FROM lawbook_versions WHERE `+where, args...)
	rec, err := scanLawbookVersion(row)
	if err != nil {
		return ledger.LawbookVersionRecord{}, false
	}
	return rec, true
}

func scanLawbookVersion(row scanner) (ledger.LawbookVersionRecord, error) {
	var (
		rec  ledger.LawbookVersionRecord
		body string
	)
	if err := row.Scan(&rec.VersionID, &rec.LawbookID, &rec.LawbookVersion, &rec.LawbookHash, &body, &rec.CreatedAt, &rec.CreatedBy); err != nil {
		return ledger.LawbookVersionRecord{}, err
	}
	rec.BodyJSON = []byte(body)
	return rec, nil
}

func getActiveLawbook(q querier) (ledger.ActivePointer, bool) {
	var ptr ledger.ActivePointer
	row := q.QueryRow(`SELECT lawbook_id, version_id, updated_at, updated_by FROM lawbook_active WHERE slot = ?`, activeSlot)
	if err := row.Scan(&ptr.LawbookID, &ptr.VersionID, &ptr.UpdatedAt, &ptr.UpdatedBy); err != nil {
		return ledger.ActivePointer{}, false
	}
	return ptr, true
}

func getDraft(q querier, where string, args ...any) (ledger.DraftRecord, bool) {
	var (
		rec  ledger.DraftRecord
		body string
	)
	row := q.QueryRow(`SELECT draft_id, schema_id, content_hash, body_json, created_at FROM drafts WHERE `+where, args...)
	if err := row.Scan(&rec.DraftID, &rec.SchemaID, &rec.ContentHash, &body, &rec.CreatedAt); err != nil {
		return ledger.DraftRecord{}, false
	}
	rec.BodyJSON = []byte(body)
	return rec, true
}

func getRun(q querier, where string, args ...any) (ledger.RunRecord, bool) {
	var (
		rec     ledger.RunRecord
		verdict string
	)
	row := q.QueryRow(`SELECT run_id, run_key, incident_id, playbook_id, status, verdict, inputs_hash, lawbook_hash, verdict_json, created_at
FROM playbook_runs WHERE `+where, args...)
	if err := row.Scan(&rec.RunID, &rec.RunKey, &rec.IncidentID, &rec.PlaybookID, &rec.Status, &rec.Verdict, &rec.InputsHash, &rec.LawbookHash, &verdict, &rec.CreatedAt); err != nil {
		return ledger.RunRecord{}, false
	}
	rec.VerdictJSON = []byte(verdict)
	return rec, true
}

func countRuns(q querier, incidentID, playbookID string) (int, error) {
	var n int
	err := q.QueryRow(`SELECT COUNT(*) FROM playbook_runs WHERE incident_id = ? AND playbook_id = ?`, incidentID, playbookID).Scan(&n)
	return n, err
}

func lastRunAt(q querier, incidentID, playbookID string) (string, bool, error) {
	var at sql.NullString
	err := q.QueryRow(`SELECT MAX(created_at) FROM playbook_runs WHERE incident_id = ? AND playbook_id = ?`, incidentID, playbookID).Scan(&at)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return at.String, at.Valid, nil
}

func putDraft(q querier, rec ledger.DraftRecord) (ledger.DraftRecord, bool, error) {
	if rec.DraftID == "" {
		return ledger.DraftRecord{}, false, ledger.ErrMissingID
	}
	if rec.ContentHash == "" {
		return ledger.DraftRecord{}, false, ledger.ErrMissingHash
	}
	res, err := q.Exec(`INSERT INTO drafts(draft_id, schema_id, content_hash, body_json, created_at)
VALUES(?, ?, ?, ?, ?)
ON CONFLICT DO NOTHING`,
		rec.DraftID,
		rec.SchemaID,
		rec.ContentHash,
		string(rec.BodyJSON),
		rec.CreatedAt,
	)
	if err != nil {
		return ledger.DraftRecord{}, false, err
	}
	created, err := inserted(res)
	if err != nil {
		return ledger.DraftRecord{}, false, err
	}
	stored, ok := getDraft(q, `schema_id = ? AND content_hash = ?`, rec.SchemaID, rec.ContentHash)
	if !ok {
		return ledger.DraftRecord{}, false, fmt.Errorf("draft %s: %w", rec.DraftID, ledger.ErrIDConflict)
	}
	return stored, created, nil
}

func inserted(res sql.Result) (bool, error) {
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}
