package ledger

import (
	"slices"
	"strings"
	"sync"
)

type InMemoryStore struct {
	mu sync.Mutex

	versions      map[string]LawbookVersionRecord
	versionByHash map[string]string
	active        *ActivePointer
	drafts        map[string]DraftRecord
	draftByHash   map[string]string
	runs          map[string]RunRecord
	runByKey      map[string]string
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		versions:      make(map[string]LawbookVersionRecord),
		versionByHash: make(map[string]string),
		drafts:        make(map[string]DraftRecord),
		draftByHash:   make(map[string]string),
		runs:          make(map[string]RunRecord),
		runByKey:      make(map[string]string),
	}
}

func (s *InMemoryStore) WithTx(fn func(Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn((*memTx)(s))
}

type memTx InMemoryStore

func (s *InMemoryStore) PutLawbookVersion(rec LawbookVersionRecord) (LawbookVersionRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putLawbookVersion(rec)
}

func (s *InMemoryStore) GetLawbookVersion(versionID string) (LawbookVersionRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.versions[versionID]
	return rec, ok
}

func (s *InMemoryStore) GetLawbookVersionByHash(lawbookHash string) (LawbookVersionRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.versionByHash[lawbookHash]
	if !ok {
		return LawbookVersionRecord{}, false
	}
	return s.versions[id], true
}

// ListLawbookVersions returns versions newest first.
func (s *InMemoryStore) ListLawbookVersions(limit int) ([]LawbookVersionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]LawbookVersionRecord, 0, len(s.versions))
	for _, rec := range s.versions {
		out = append(out, rec)
	}
	slices.SortFunc(out, func(a, b LawbookVersionRecord) int {
		if c := strings.Compare(b.CreatedAt, a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.VersionID, b.VersionID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) SetActiveLawbook(ptr ActivePointer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setActiveLawbook(ptr)
}

func (s *InMemoryStore) GetActiveLawbook() (ActivePointer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getActiveLawbook()
}

func (s *InMemoryStore) PutDraft(rec DraftRecord) (DraftRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := checkDraft(rec); err != nil {
		return DraftRecord{}, false, err
	}
	key := rec.SchemaID + "\x00" + rec.ContentHash
	if id, ok := s.draftByHash[key]; ok {
		return s.drafts[id], false, nil
	}
	if _, ok := s.drafts[rec.DraftID]; ok {
		return DraftRecord{}, false, ErrIDConflict
	}
	s.drafts[rec.DraftID] = rec
	s.draftByHash[key] = rec.DraftID
	return rec, true, nil
}

func (s *InMemoryStore) GetDraft(draftID string) (DraftRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.drafts[draftID]
	return rec, ok
}

func (s *InMemoryStore) PutRun(rec RunRecord) (RunRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putRun(rec)
}

func (s *InMemoryStore) GetRun(runID string) (RunRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.runs[runID]
	return rec, ok
}

func (s *InMemoryStore) GetRunByKey(runKey string) (RunRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.runByKey[runKey]
	if !ok {
		return RunRecord{}, false
	}
	return s.runs[id], true
}

func (s *InMemoryStore) CountRuns(incidentID, playbookID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countRuns(incidentID, playbookID), nil
}

func (s *InMemoryStore) LastRunAt(incidentID, playbookID string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.lastRunAt(incidentID, playbookID)
	return at, ok, nil
}

func (s *InMemoryStore) putLawbookVersion(rec LawbookVersionRecord) (LawbookVersionRecord, bool, error) {
	if err := checkLawbookVersion(rec); err != nil {
		return LawbookVersionRecord{}, false, err
	}
	if id, ok := s.versionByHash[rec.LawbookHash]; ok {
		return s.versions[id], false, nil
	}
	if _, ok := s.versions[rec.VersionID]; ok {
		return LawbookVersionRecord{}, false, ErrIDConflict
	}
	s.versions[rec.VersionID] = rec
	s.versionByHash[rec.LawbookHash] = rec.VersionID
	return rec, true, nil
}

func (s *InMemoryStore) setActiveLawbook(ptr ActivePointer) error {
	if ptr.VersionID == "" {
		return ErrMissingID
	}
	s.active = &ptr
	return nil
}

func (s *InMemoryStore) getActiveLawbook() (ActivePointer, bool) {
	if s.active == nil {
		return ActivePointer{}, false
	}
	return *s.active, true
}

func (s *InMemoryStore) putRun(rec RunRecord) (RunRecord, bool, error) {
	if err := checkRun(rec); err != nil {
		return RunRecord{}, false, err
	}
	if id, ok := s.runByKey[rec.RunKey]; ok {
		return s.runs[id], false, nil
	}
	if _, ok := s.runs[rec.RunID]; ok {
		return RunRecord{}, false, ErrIDConflict
	}
	s.runs[rec.RunID] = rec
	s.runByKey[rec.RunKey] = rec.RunID
	return rec, true, nil
}

func (s *InMemoryStore) countRuns(incidentID, playbookID string) int {
	n := 0
	for _, rec := range s.runs {
		if rec.IncidentID == incidentID && rec.PlaybookID == playbookID {
			n++
		}
	}
	return n
}

func (s *InMemoryStore) lastRunAt(incidentID, playbookID string) (string, bool) {
	var last string
	for _, rec := range s.runs {
		if rec.IncidentID == incidentID && rec.PlaybookID == playbookID && rec.CreatedAt > last {
			last = rec.CreatedAt
		}
	}
	return last, last != ""
}

func (t *memTx) PutLawbookVersion(rec LawbookVersionRecord) (LawbookVersionRecord, bool, error) {
	return (*InMemoryStore)(t).putLawbookVersion(rec)
}

func (t *memTx) GetLawbookVersion(versionID string) (LawbookVersionRecord, bool) {
	rec, ok := (*InMemoryStore)(t).versions[versionID]
	return rec, ok
}

func (t *memTx) SetActiveLawbook(ptr ActivePointer) error {
	return (*InMemoryStore)(t).setActiveLawbook(ptr)
}

func (t *memTx) GetActiveLawbook() (ActivePointer, bool) {
	return (*InMemoryStore)(t).getActiveLawbook()
}

func (t *memTx) PutRun(rec RunRecord) (RunRecord, bool, error) {
	return (*InMemoryStore)(t).putRun(rec)
}

func (t *memTx) CountRuns(incidentID, playbookID string) (int, error) {
	return (*InMemoryStore)(t).countRuns(incidentID, playbookID), nil
}

func (t *memTx) LastRunAt(incidentID, playbookID string) (string, bool, error) {
	at, ok := (*InMemoryStore)(t).lastRunAt(incidentID, playbookID)
	return at, ok, nil
}
