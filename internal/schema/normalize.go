package schema

import (
	"cmp"
	"slices"
	"strings"

	"github.com/davidahmann/lawgate/pkg/types"
)

// uniqueSorted trims, drops empties, deduplicates and sorts. It never
// returns nil so absent and empty sets encode the same way.
func uniqueSorted(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// trimAll trims every element and keeps the order.
func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, strings.TrimSpace(s))
	}
	return out
}

// NormalizeLawbook returns the canonical form of a validated lawbook.
// Repository owners and names are lowercased and rules naming the same
// repository are merged.
func NormalizeLawbook(lb types.Lawbook) types.Lawbook {
	out := lb
	out.Version = strings.TrimSpace(lb.Version)
	out.LawbookID = strings.TrimSpace(lb.LawbookID)
	out.LawbookVersion = strings.TrimSpace(lb.LawbookVersion)
	out.CreatedAt = strings.TrimSpace(lb.CreatedAt)
	out.CreatedBy = strings.TrimSpace(lb.CreatedBy)
	out.Notes = strings.TrimSpace(lb.Notes)

	out.GitHub.AllowedRepos = normalizeRepoRules(lb.GitHub.AllowedRepos)

	out.Remediation.AllowedPlaybooks = uniqueSorted(lb.Remediation.AllowedPlaybooks)
	out.Remediation.AllowedActions = uniqueSorted(lb.Remediation.AllowedActions)

	reqs := make([]types.EvidenceRequirement, 0, len(lb.Evidence.Requirements))
	for _, req := range lb.Evidence.Requirements {
		n := types.EvidenceRequirement{
			Category:      strings.TrimSpace(req.Category),
			RequiredKinds: uniqueSorted(req.RequiredKinds),
		}
		if len(req.RequiredFields) > 0 {
			n.RequiredFields = make(map[string][]string, len(req.RequiredFields))
			for kind, fields := range req.RequiredFields {
				n.RequiredFields[strings.TrimSpace(kind)] = uniqueSorted(fields)
			}
		}
		reqs = append(reqs, n)
	}
	slices.SortStableFunc(reqs, func(a, b types.EvidenceRequirement) int {
		return cmp.Compare(a.Category, b.Category)
	})
	out.Evidence.Requirements = reqs

	out.Approvals.RequireFor = uniqueSorted(lb.Approvals.RequireFor)
	return out
}

func normalizeRepoRules(in []types.RepoRule) []types.RepoRule {
	type repoKey struct{ owner, repo string }
	merged := make(map[repoKey][]string, len(in))
	order := make([]repoKey, 0, len(in))
	for _, rule := range in {
		key := repoKey{
			owner: strings.ToLower(strings.TrimSpace(rule.Owner)),
			repo:  strings.ToLower(strings.TrimSpace(rule.Repo)),
		}
		if _, ok := merged[key]; !ok {
			order = append(order, key)
		}
		merged[key] = append(merged[key], rule.Branches...)
	}
	slices.SortFunc(order, func(a, b repoKey) int {
		return cmp.Or(cmp.Compare(a.owner, b.owner), cmp.Compare(a.repo, b.repo))
	})
	out := make([]types.RepoRule, 0, len(order))
	for _, key := range order {
		out = append(out, types.RepoRule{
			Owner:    key.owner,
			Repo:     key.repo,
			Branches: uniqueSorted(merged[key]),
		})
	}
	return out
}

// NormalizeIssueDraft returns the canonical form of a validated issue draft.
func NormalizeIssueDraft(d types.IssueDraft) types.IssueDraft {
	out := d
	out.Version = strings.TrimSpace(d.Version)
	out.Title = strings.TrimSpace(d.Title)
	out.Body = strings.TrimSpace(d.Body)
	out.Type = strings.TrimSpace(d.Type)
	out.CanonicalID = strings.TrimSpace(d.CanonicalID)
	out.Labels = uniqueSorted(d.Labels)
	out.DependsOn = uniqueSorted(d.DependsOn)
	out.Priority = strings.TrimSpace(d.Priority)
	out.AcceptanceCriteria = trimAll(d.AcceptanceCriteria)
	out.Verify = types.IssueVerify{
		Commands: trimAll(d.Verify.Commands),
		Expected: trimAll(d.Verify.Expected),
	}
	out.Guards.Env = strings.TrimSpace(d.Guards.Env)
	if d.KPI != nil {
		kpi := types.IssueKPI{Intent: strings.TrimSpace(d.KPI.Intent)}
		if d.KPI.DCU != nil {
			dcu := *d.KPI.DCU
			kpi.DCU = &dcu
		}
		out.KPI = &kpi
	}
	return out
}

// NormalizeChangeRequest returns the canonical form of a validated change
// request.
func NormalizeChangeRequest(cr types.ChangeRequest) types.ChangeRequest {
	out := cr
	out.Version = strings.TrimSpace(cr.Version)
	out.CanonicalID = strings.TrimSpace(cr.CanonicalID)
	out.IssueRef = strings.TrimSpace(cr.IssueRef)
	out.Title = strings.TrimSpace(cr.Title)
	out.Motivation = strings.TrimSpace(cr.Motivation)
	out.Scope = types.CRScope{
		Summary:    strings.TrimSpace(cr.Scope.Summary),
		InScope:    trimAll(cr.Scope.InScope),
		OutOfScope: trimAll(cr.Scope.OutOfScope),
	}
	out.Targets = types.CRTargets{
		Repo: types.RepoRef{
			Owner: strings.TrimSpace(cr.Targets.Repo.Owner),
			Repo:  strings.TrimSpace(cr.Targets.Repo.Repo),
		},
		Branch: strings.TrimSpace(cr.Targets.Branch),
	}

	files := make([]types.FileChange, 0, len(cr.Changes.Files))
	for _, f := range cr.Changes.Files {
		files = append(files, types.FileChange{
			Path:       strings.TrimSpace(f.Path),
			ChangeType: strings.TrimSpace(f.ChangeType),
			Rationale:  strings.TrimSpace(f.Rationale),
		})
	}
	slices.SortFunc(files, func(a, b types.FileChange) int {
		return cmp.Or(
			cmp.Compare(a.Path, b.Path),
			cmp.Compare(a.ChangeType, b.ChangeType),
			cmp.Compare(a.Rationale, b.Rationale),
		)
	})
	out.Changes.Files = slices.Compact(files)

	out.AcceptanceCriteria = trimAll(cr.AcceptanceCriteria)
	out.Tests = types.CRTests{
		Required:       trimAll(cr.Tests.Required),
		AddedOrUpdated: trimAll(cr.Tests.AddedOrUpdated),
	}

	risks := make([]types.Risk, 0, len(cr.Risks.Items))
	for _, r := range cr.Risks.Items {
		risks = append(risks, types.Risk{
			Risk:       strings.TrimSpace(r.Risk),
			Impact:     strings.TrimSpace(r.Impact),
			Mitigation: strings.TrimSpace(r.Mitigation),
		})
	}
	out.Risks.Items = risks

	out.Rollout = types.CRRollout{
		Steps:        trimAll(cr.Rollout.Steps),
		RollbackPlan: strings.TrimSpace(cr.Rollout.RollbackPlan),
		FeatureFlags: uniqueSorted(cr.Rollout.FeatureFlags),
	}

	out.Evidence = SortEvidence(cr.Evidence)

	out.Metadata = types.CRMetadata{
		CreatedAt: strings.TrimSpace(cr.Metadata.CreatedAt),
		CreatedBy: strings.TrimSpace(cr.Metadata.CreatedBy),
		Tags:      uniqueSorted(cr.Metadata.Tags),
	}
	return out
}

// NormalizeWorkPlan trims a validated work plan. Goals, todos and options
// are ordered collections.
func NormalizeWorkPlan(wp types.WorkPlan) types.WorkPlan {
	out := wp
	out.Version = strings.TrimSpace(wp.Version)
	out.Title = strings.TrimSpace(wp.Title)
	out.Context = strings.TrimSpace(wp.Context)
	out.Notes = strings.TrimSpace(wp.Notes)

	out.Goals = make([]types.PlanGoal, 0, len(wp.Goals))
	for _, g := range wp.Goals {
		g.ID = strings.TrimSpace(g.ID)
		g.Text = strings.TrimSpace(g.Text)
		g.Priority = strings.TrimSpace(g.Priority)
		out.Goals = append(out.Goals, g)
	}
	out.Todos = make([]types.PlanTodo, 0, len(wp.Todos))
	for _, t := range wp.Todos {
		t.ID = strings.TrimSpace(t.ID)
		t.Text = strings.TrimSpace(t.Text)
		t.AssignedGoalID = strings.TrimSpace(t.AssignedGoalID)
		out.Todos = append(out.Todos, t)
	}
	out.Options = make([]types.PlanOption, 0, len(wp.Options))
	for _, o := range wp.Options {
		out.Options = append(out.Options, types.PlanOption{
			ID:          strings.TrimSpace(o.ID),
			Title:       strings.TrimSpace(o.Title),
			Description: strings.TrimSpace(o.Description),
			Pros:        trimAll(o.Pros),
			Cons:        trimAll(o.Cons),
		})
	}
	return out
}

// SortEvidence returns a trimmed, deduplicated copy of refs ordered by
// CompareEvidence.
func SortEvidence(refs []types.EvidenceRef) []types.EvidenceRef {
	out := make([]types.EvidenceRef, 0, len(refs))
	for _, ref := range refs {
		out = append(out, trimEvidence(ref))
	}
	slices.SortFunc(out, CompareEvidence)
	return slices.Compact(out)
}

func trimEvidence(ref types.EvidenceRef) types.EvidenceRef {
	ref.Kind = strings.TrimSpace(ref.Kind)
	ref.Repo = strings.TrimSpace(ref.Repo)
	ref.Branch = strings.TrimSpace(ref.Branch)
	ref.Path = strings.TrimSpace(ref.Path)
	ref.SnippetHash = strings.TrimSpace(ref.SnippetHash)
	ref.Title = strings.TrimSpace(ref.Title)
	ref.Conclusion = strings.TrimSpace(ref.Conclusion)
	ref.Source = strings.TrimSpace(ref.Source)
	ref.URL = strings.TrimSpace(ref.URL)
	ref.Env = strings.TrimSpace(ref.Env)
	ref.Status = strings.TrimSpace(ref.Status)
	ref.ArtifactType = strings.TrimSpace(ref.ArtifactType)
	ref.ArtifactID = strings.TrimSpace(ref.ArtifactID)
	return ref
}

// CompareEvidence orders evidence by kind, then by the identifying fields
// of that kind, then by every remaining field.
func CompareEvidence(a, b types.EvidenceRef) int {
	if c := cmp.Compare(a.Kind, b.Kind); c != 0 {
		return c
	}
	var c int
	switch a.Kind {
	case types.EvidenceFileSnippet:
		c = cmp.Or(
			cmp.Compare(a.Repo, b.Repo),
			cmp.Compare(a.Path, b.Path),
			cmp.Compare(a.StartLine, b.StartLine),
			cmp.Compare(a.EndLine, b.EndLine),
		)
	case types.EvidenceGitHubIssue, types.EvidenceGitHubPR:
		c = cmp.Or(cmp.Compare(a.Repo, b.Repo), cmp.Compare(a.Number, b.Number))
	case types.EvidenceWorkflowRun:
		c = cmp.Or(cmp.Compare(a.Repo, b.Repo), cmp.Compare(a.RunID, b.RunID))
	case types.EvidenceErrorLog:
		c = cmp.Or(cmp.Compare(a.Source, b.Source), cmp.Compare(a.Path, b.Path), cmp.Compare(a.URL, b.URL))
	case types.EvidenceDeployStatus:
		c = cmp.Or(cmp.Compare(a.Env, b.Env), cmp.Compare(a.Status, b.Status))
	case types.EvidenceArtifact:
		c = cmp.Or(cmp.Compare(a.ArtifactType, b.ArtifactType), cmp.Compare(a.ArtifactID, b.ArtifactID))
	}
	if c != 0 {
		return c
	}
	return cmp.Or(
		cmp.Compare(a.Repo, b.Repo),
		cmp.Compare(a.Branch, b.Branch),
		cmp.Compare(a.Path, b.Path),
		cmp.Compare(a.StartLine, b.StartLine),
		cmp.Compare(a.EndLine, b.EndLine),
		cmp.Compare(a.SnippetHash, b.SnippetHash),
		cmp.Compare(a.Number, b.Number),
		cmp.Compare(a.Title, b.Title),
		cmp.Compare(a.RunID, b.RunID),
		cmp.Compare(a.Conclusion, b.Conclusion),
		cmp.Compare(a.Source, b.Source),
		cmp.Compare(a.URL, b.URL),
		cmp.Compare(a.Env, b.Env),
		cmp.Compare(a.Status, b.Status),
		cmp.Compare(a.ArtifactType, b.ArtifactType),
		cmp.Compare(a.ArtifactID, b.ArtifactID),
	)
}
