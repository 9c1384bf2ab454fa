package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/davidahmann/lawgate/internal/ledger"
)

const activeSlot = "default"

type Store struct {
	db *sql.DB
}

func OpenPostgres(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return New(db), nil
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) WithTx(fn func(ledger.Tx) error) error {
	return s.inTx(func(tx *sql.Tx) error { return fn(&Tx{tx: tx}) })
}

func (s *Store) inTx(fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(context.Background(), &sql.TxOptions{})
	if err != nil {
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
	return getLawbookVersion(s.db, `version_id = $1`, versionID)
}

func (s *Store) GetLawbookVersionByHash(lawbookHash string) (ledger.LawbookVersionRecord, bool) {
	return getLawbookVersion(s.db, `lawbook_hash = $1`, lawbookHash)
}

func (s *Store) ListLawbookVersions(limit int) ([]ledger.LawbookVersionRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(`SELECT version_id, lawbook_id, lawbook_version, lawbook_hash, body_json, created_at, created_by
FROM lawgate_lawbook_versions
ORDER BY created_at DESC, version_id ASC
LIMIT $1`, limit)
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
	return getDraft(s.db, `draft_id = $1`, draftID)
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
	return getRun(s.db, `run_id = $1`, runID)
}

func (s *Store) GetRunByKey(runKey string) (ledger.RunRecord, bool) {
	return getRun(s.db, `run_key = $1`, runKey)
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
	res, err := t.tx.Exec(`INSERT INTO lawgate_lawbook_versions(version_id, lawbook_id, lawbook_version, lawbook_hash, body_json, created_at, created_by)
VALUES($1, $2, $3, $4, $5, $6, $7)
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
	stored, ok := getLawbookVersion(t.tx, `lawbook_hash = $1`, rec.LawbookHash)
	if !ok {
		return ledger.LawbookVersionRecord{}, false, fmt.Errorf("lawbook version %s: %w", rec.VersionID, ledger.ErrIDConflict)
	}
	return stored, created, nil
}

func (t *Tx) GetLawbookVersion(versionID string) (ledger.LawbookVersionRecord, bool) {
	return getLawbookVersion(t.tx, `version_id = $1`, versionID)
}

func (t *Tx) SetActiveLawbook(ptr ledger.ActivePointer) error {
	if ptr.VersionID == "" {
		return ledger.ErrMissingID
	}
	_, err := t.tx.Exec(`INSERT INTO lawgate_lawbook_active(slot, lawbook_id, version_id, updated_at, updated_by)
VALUES($1, $2, $3, $4, $5)
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
	res, err := t.tx.Exec(`INSERT INTO lawgate_playbook_runs(run_id, run_key, incident_id, playbook_id, status, verdict, inputs_hash, lawbook_hash, verdict_json, created_at)
VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
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
	stored, ok := getRun(t.tx, `run_key = $1`, rec.RunKey)
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
FROM lawgate_lawbook_versions WHERE `+where, args...)
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
	row := q.QueryRow(`SELECT lawbook_id, version_id, updated_at, updated_by FROM lawgate_lawbook_active WHERE slot = $1`, activeSlot)
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
	row := q.QueryRow(`SELECT draft_id, schema_id, content_hash, body_json, created_at FROM lawgate_drafts WHERE `+where, args...)
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
FROM lawgate_playbook_runs WHERE `+where, args...)
	if err := row.Scan(&rec.RunID, &rec.RunKey, &rec.IncidentID, &rec.PlaybookID, &rec.Status, &rec.Verdict, &rec.InputsHash, &rec.LawbookHash, &verdict, &rec.CreatedAt); err != nil {
		return ledger.RunRecord{}, false
	}
	rec.VerdictJSON = []byte(verdict)
	return rec, true
}

func countRuns(q querier, incidentID, playbookID string) (int, error) {
	var n int
	err := q.QueryRow(`SELECT COUNT(*) FROM lawgate_playbook_runs WHERE incident_id = $1 AND playbook_id = $2`, incidentID, playbookID).Scan(&n)
	return n, err
}

func lastRunAt(q querier, incidentID, playbookID string) (string, bool, error) {
	var at sql.NullString
	err := q.QueryRow(`SELECT MAX(created_at) FROM lawgate_playbook_runs WHERE incident_id = $1 AND playbook_id = $2`, incidentID, playbookID).Scan(&at)
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
	res, err := q.Exec(`INSERT INTO lawgate_drafts(draft_id, schema_id, content_hash, body_json, created_at)
VALUES($1, $2, $3, $4, $5)
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
	stored, ok := getDraft(q, `schema_id = $1 AND content_hash = $2`, rec.SchemaID, rec.ContentHash)
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
