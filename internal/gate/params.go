package gate

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/davidahmann/lawgate/pkg/types"
)

var (
	ErrUnknownKind   = errors.New("unknown gate kind")
	ErrInvalidParams = errors.New("invalid gate params")
)

// Kind selects which lawbook sections a gate consults.
type Kind string

const (
	KindPlaybookRun Kind = "playbook_run"
	KindRepoAccess  Kind = "repo_access"
	KindDeterminism Kind = "determinism"
)

// Kinds lists every gate kind.
func Kinds() []Kind {
	return []Kind{KindDeterminism, KindPlaybookRun, KindRepoAccess}
}

// ParseKind maps a string onto a Kind.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds() {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Params is the input of one gate kind.
type Params interface {
	Kind() Kind
	validate() error
}

// PlaybookRunParams asks whether a remediation playbook may run for an
// incident. CurrentRunCount and LastRunAt are supplied by the caller from
// the run ledger.
type PlaybookRunParams struct {
	IncidentID      string              `json:"incidentId"`
	Category        string              `json:"category"`
	PlaybookID      string              `json:"playbookId"`
	ActionTypes     []string            `json:"actionTypes"`
	Evidence        []types.EvidenceRef `json:"evidence"`
	CurrentRunCount int                 `json:"currentRunCount"`
	LastRunAt       *time.Time          `json:"lastRunAt,omitempty"`
	Approvals       []string            `json:"approvals,omitempty"`
}

func (PlaybookRunParams) Kind() Kind { return KindPlaybookRun }

func (p PlaybookRunParams) validate() error {
	var problems []string
	if strings.TrimSpace(p.IncidentID) == "" {
		problems = append(problems, "incidentId is required")
	}
	if strings.TrimSpace(p.PlaybookID) == "" {
		problems = append(problems, "playbookId is required")
	}
	if strings.TrimSpace(p.Category) == "" {
		problems = append(problems, "category is required")
	}
	if p.CurrentRunCount < 0 {
		problems = append(problems, "currentRunCount must not be negative")
	}
	for i, ev := range p.Evidence {
		if !slices.Contains(types.EvidenceKinds, ev.Kind) {
			problems = append(problems, fmt.Sprintf("evidence[%d].kind %q is not a known kind", i, ev.Kind))
		}
	}
	return paramsError(problems)
}

// RepoAccessParams asks whether a branch of a repository may be touched.
type RepoAccessParams struct {
	Owner  string `json:"owner"`
	Repo   string `json:"repo"`
	Branch string `json:"branch"`
}

func (RepoAccessParams) Kind() Kind { return KindRepoAccess }

func (p RepoAccessParams) validate() error {
	var problems []string
	if strings.TrimSpace(p.Owner) == "" {
		problems = append(problems, "owner is required")
	}
	if strings.TrimSpace(p.Repo) == "" {
		problems = append(problems, "repo is required")
	}
	if strings.TrimSpace(p.Branch) == "" {
		problems = append(problems, "branch is required")
	}
	return paramsError(problems)
}

// Determinism report states.
const (
	DeterminismMissing = "missing"
	DeterminismPending = "pending"
	DeterminismPassed  = "passed"
	DeterminismFailed  = "failed"
)

// DeterminismParams carries the state of the determinism report for a
// release candidate.
type DeterminismParams struct {
	Status   string `json:"status"`
	ReportID string `json:"reportId,omitempty"`
}

func (DeterminismParams) Kind() Kind { return KindDeterminism }

func (p DeterminismParams) validate() error {
	switch p.Status {
	case DeterminismMissing, DeterminismPending, DeterminismPassed, DeterminismFailed:
		return nil
	}
	return paramsError([]string{fmt.Sprintf("status %q is not one of missing, pending, passed, failed", p.Status)})
}

func paramsError(problems []string) error {
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvalidParams, strings.Join(problems, "; "))
}

// DecodeParams strictly decodes the JSON params of kind.
func DecodeParams(kind Kind, raw []byte) (Params, error) {
	switch kind {
	case KindPlaybookRun:
		var p PlaybookRunParams
		if err := decodeStrict(raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	case KindRepoAccess:
		var p RepoAccessParams
		if err := decodeStrict(raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	case KindDeterminism:
		var p DeterminismParams
		if err := decodeStrict(raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}

func decodeStrict(raw []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: trailing data", ErrInvalidParams)
	}
	return nil
}
