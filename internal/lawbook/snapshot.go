package lawbook

import (
	"context"
	"maps"
	"slices"
	"sync/atomic"
	"time"

	"github.com/davidahmann/lawgate/internal/ledger"
	"github.com/davidahmann/lawgate/pkg/types"
)

// Snapshot holds the lawbook of file-backed deployments. Readers never
// observe a partially replaced lawbook.
type Snapshot struct {
	cur atomic.Pointer[snapshot]
}

type snapshot struct {
	lb      types.Lawbook
	version Version
}

// Set replaces the held lawbook and returns its version.
func (s *Snapshot) Set(lb types.Lawbook, source string) (Version, error) {
	hash, err := ComputeHash(lb)
	if err != nil {
		return Version{}, err
	}
	v := Version{
		ID:             source,
		LawbookID:      lb.LawbookID,
		LawbookVersion: lb.LawbookVersion,
		Hash:           hash,
		CreatedAt:      ledger.FormatTime(time.Now()),
		CreatedBy:      lb.CreatedBy,
	}
	s.cur.Store(&snapshot{lb: cloneLawbook(lb), version: v})
	return v, nil
}

// Active returns a copy of the held lawbook.
func (s *Snapshot) Active(ctx context.Context) (*types.Lawbook, Version, error) {
	if err := ctx.Err(); err != nil {
		return nil, Version{}, err
	}
	cur := s.cur.Load()
	if cur == nil {
		return nil, Version{}, ErrNoActiveLawbook
	}
	lb := cloneLawbook(cur.lb)
	return &lb, cur.version, nil
}

func cloneLawbook(lb types.Lawbook) types.Lawbook {
	out := lb
	out.GitHub.AllowedRepos = slices.Clone(lb.GitHub.AllowedRepos)
	for i := range out.GitHub.AllowedRepos {
		out.GitHub.AllowedRepos[i].Branches = slices.Clone(out.GitHub.AllowedRepos[i].Branches)
	}
	out.Remediation.AllowedPlaybooks = slices.Clone(lb.Remediation.AllowedPlaybooks)
	out.Remediation.AllowedActions = slices.Clone(lb.Remediation.AllowedActions)
	out.Evidence.Requirements = slices.Clone(lb.Evidence.Requirements)
	for i, req := range out.Evidence.Requirements {
		out.Evidence.Requirements[i].RequiredKinds = slices.Clone(req.RequiredKinds)
		if req.RequiredFields != nil {
			fields := maps.Clone(req.RequiredFields)
			for k, v := range fields {
				fields[k] = slices.Clone(v)
			}
			out.Evidence.Requirements[i].RequiredFields = fields
		}
	}
	out.Approvals.RequireFor = slices.Clone(lb.Approvals.RequireFor)
	return out
}
