package ledger

import "errors"

var (
	ErrMissingID   = errors.New("ledger: record id is required")
	ErrMissingHash = errors.New("ledger: content hash is required")
	ErrIDConflict  = errors.New("ledger: record id already used by different content")
)

// Store persists lawbook versions, the active lawbook pointer, drafts and
// playbook runs. Put methods are idempotent on the record's unique key: a
// conflicting insert returns the stored record with created=false.
type Store interface {
	WithTx(fn func(Tx) error) error

	PutLawbookVersion(rec LawbookVersionRecord) (LawbookVersionRecord, bool, error)
	GetLawbookVersion(versionID string) (LawbookVersionRecord, bool)
	GetLawbookVersionByHash(lawbookHash string) (LawbookVersionRecord, bool)
	ListLawbookVersions(limit int) ([]LawbookVersionRecord, error)

	SetActiveLawbook(ptr ActivePointer) error
	GetActiveLawbook() (ActivePointer, bool)

	PutDraft(rec DraftRecord) (DraftRecord, bool, error)
	GetDraft(draftID string) (DraftRecord, bool)

	PutRun(rec RunRecord) (RunRecord, bool, error)
	GetRun(runID string) (RunRecord, bool)
	GetRunByKey(runKey string) (RunRecord, bool)
	CountRuns(incidentID, playbookID string) (int, error)
	LastRunAt(incidentID, playbookID string) (string, bool, error)
}

type Tx interface {
	PutLawbookVersion(rec LawbookVersionRecord) (LawbookVersionRecord, bool, error)
	GetLawbookVersion(versionID string) (LawbookVersionRecord, bool)

	SetActiveLawbook(ptr ActivePointer) error
	GetActiveLawbook() (ActivePointer, bool)

	PutRun(rec RunRecord) (RunRecord, bool, error)
	CountRuns(incidentID, playbookID string) (int, error)
	LastRunAt(incidentID, playbookID string) (string, bool, error)
}

// LawbookVersionRecord is an immutable lawbook snapshot. BodyJSON holds the
// canonical encoding of the normalized lawbook.
type LawbookVersionRecord struct {
	VersionID      string
	LawbookID      string
	LawbookVersion string
	LawbookHash    string
	BodyJSON       []byte
	CreatedAt      string
	CreatedBy      string
}

// ActivePointer names the lawbook version the gates evaluate against.
type ActivePointer struct {
	LawbookID string
	VersionID string
	UpdatedAt string
	UpdatedBy string
}

type DraftRecord struct {
	DraftID     string
	SchemaID    string
	ContentHash string
	BodyJSON    []byte
	CreatedAt   string
}

type RunRecord struct {
	RunID       string
	RunKey      string
	IncidentID  string
	PlaybookID  string
	Status      string // started | succeeded | failed
	Verdict     string
	InputsHash  string
	LawbookHash string
	VerdictJSON []byte
	CreatedAt   string
}

// Run statuses.
const (
	RunStarted   = "started"
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

func checkLawbookVersion(rec LawbookVersionRecord) error {
	if rec.VersionID == "" {
		return ErrMissingID
	}
	if rec.LawbookHash == "" {
		return ErrMissingHash
	}
	return nil
}

func checkDraft(rec DraftRecord) error {
	if rec.DraftID == "" {
		return ErrMissingID
	}
	if rec.ContentHash == "" {
		return ErrMissingHash
	}
	return nil
}

func checkRun(rec RunRecord) error {
	if rec.RunID == "" || rec.RunKey == "" {
		return ErrMissingID
	}
	return nil
}
