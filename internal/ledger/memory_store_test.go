package ledger

import (
	"errors"
	"testing"
)

func TestInMemoryStoreLawbookVersions(t *testing.T) {
	s := NewInMemoryStore()

	rec := LawbookVersionRecord{VersionID: "v1", LawbookID: "lb", LawbookVersion: "0.7.0", LawbookHash: "h1", CreatedAt: "2026-10-01T00:00:00Z"}
	if _, created, err := s.PutLawbookVersion(rec); err != nil || !created {
		t.Fatalf("put: created=%v err=%v", created, err)
	}

	dup := rec
	dup.VersionID = "v2"
	got, created, err := s.PutLawbookVersion(dup)
	if err != nil || created || got.VersionID != "v1" {
		t.Fatalf("expected existing version: created=%v err=%v got=%+v", created, err, got)
	}

	clash := rec
	clash.LawbookHash = "h2"
	if _, _, err := s.PutLawbookVersion(clash); !errors.Is(err, ErrIDConflict) {
		t.Fatalf("expected id conflict, got %v", err)
	}
	if _, _, err := s.PutLawbookVersion(LawbookVersionRecord{VersionID: "v3"}); !errors.Is(err, ErrMissingHash) {
		t.Fatalf("expected missing hash, got %v", err)
	}

	newer := LawbookVersionRecord{VersionID: "v0", LawbookHash: "h0", CreatedAt: "2026-10-05T00:00:00Z"}
	if _, _, err := s.PutLawbookVersion(newer); err != nil {
		t.Fatalf("put newer: %v", err)
	}
	list, err := s.ListLawbookVersions(0)
	if err != nil || len(list) != 2 || list[0].VersionID != "v0" {
		t.Fatalf("list mismatch: err=%v list=%+v", err, list)
	}
	if got, ok := s.GetLawbookVersionByHash("h1"); !ok || got.VersionID != "v1" {
		t.Fatalf("get by hash mismatch: ok=%v got=%+v", ok, got)
	}
}

func TestInMemoryStoreActivePointer(t *testing.T) {
	s := NewInMemoryStore()
	if _, ok := s.GetActiveLawbook(); ok {
		t.Fatalf("expected no pointer")
	}
	if err := s.SetActiveLawbook(ActivePointer{}); !errors.Is(err, ErrMissingID) {
		t.Fatalf("expected missing id, got %v", err)
	}
	err := s.WithTx(func(tx Tx) error {
		return tx.SetActiveLawbook(ActivePointer{LawbookID: "lb", VersionID: "v1", UpdatedBy: "alice"})
	})
	if err != nil {
		t.Fatalf("set in tx: %v", err)
	}
	if ptr, ok := s.GetActiveLawbook(); !ok || ptr.VersionID != "v1" {
		t.Fatalf("pointer mismatch: ok=%v ptr=%+v", ok, ptr)
	}
}

func TestInMemoryStoreDraftsAndRuns(t *testing.T) {
	s := NewInMemoryStore()

	draft, err := MakeDraftRecord("d1", "issue_draft", map[string]any{"b": 1, "a": "x"}, "now")
	if err != nil {
		t.Fatalf("make draft: %v", err)
	}
	if string(draft.BodyJSON) != `{"a":"x","b":1}` {
		t.Fatalf("unexpected canonical body: %s", draft.BodyJSON)
	}
	if err := VerifyDraft(draft); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if _, created, err := s.PutDraft(draft); err != nil || !created {
		t.Fatalf("put draft: created=%v err=%v", created, err)
	}
	again := draft
	again.DraftID = "d2"
	if got, created, err := s.PutDraft(again); err != nil || created || got.DraftID != "d1" {
		t.Fatalf("expected existing draft: created=%v err=%v got=%+v", created, err, got)
	}

	for i, at := range []string{"2026-10-01T10:00:00Z", "2026-10-01T09:00:00Z"} {
		rec := RunRecord{RunID: string(rune('a' + i)), RunKey: at, IncidentID: "INC-1", PlaybookID: "pb", CreatedAt: at}
		if _, created, err := s.PutRun(rec); err != nil || !created {
			t.Fatalf("put run: created=%v err=%v", created, err)
		}
	}
	if n, _ := s.CountRuns("INC-1", "pb"); n != 2 {
		t.Fatalf("count = %d", n)
	}
	if at, ok, _ := s.LastRunAt("INC-1", "pb"); !ok || at != "2026-10-01T10:00:00Z" {
		t.Fatalf("last run = %q ok=%v", at, ok)
	}
	if _, ok, _ := s.LastRunAt("INC-1", "other"); ok {
		t.Fatalf("expected no run for other playbook")
	}
	if got, ok := s.GetRunByKey("2026-10-01T09:00:00Z"); !ok || got.RunID != "b" {
		t.Fatalf("get by key mismatch: ok=%v got=%+v", ok, got)
	}
}

func TestMakeDraftRecordAndVerify(t *testing.T) {
	if _, err := MakeDraftRecord("", "issue_draft", map[string]any{}, "now"); !errors.Is(err, ErrMissingID) {
		t.Fatalf("expected missing id, got %v", err)
	}
	if _, err := MakeDraftRecord("d1", "", map[string]any{}, "now"); err == nil {
		t.Fatalf("expected missing schema error")
	}

	rec, err := MakeDraftRecord("d1", "issue_draft", map[string]any{"title": "x"}, "now")
	if err != nil {
		t.Fatalf("make: %v", err)
	}
	rec.BodyJSON = []byte(`{"title":"y"}`)
	if err := VerifyDraft(rec); !errors.Is(err, ErrDraftDigestMismatch) {
		t.Fatalf("expected digest mismatch, got %v", err)
	}
}
