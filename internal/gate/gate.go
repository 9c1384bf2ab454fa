package gate

import (
	"fmt"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/davidahmann/lawgate/internal/crypto"
	"github.com/davidahmann/lawgate/internal/schema"
	"github.com/davidahmann/lawgate/pkg/types"
)

// inputSetFields are params arrays whose order carries no meaning.
var inputSetFields = crypto.WithSetFields("actionTypes", "evidence", "approvals")

// Evaluator evaluates gates against a lawbook. The zero value uses
// time.Now.
type Evaluator struct {
	Now func() time.Time
}

// Evaluate runs gate kind with the default Evaluator.
func Evaluate(kind Kind, params Params, lb *types.Lawbook) types.Verdict {
	return Evaluator{}.Evaluate(kind, params, lb)
}

// Evaluate returns the verdict for params under lb. A nil lawbook denies
// every kind. The clock is read once per call.
func (e Evaluator) Evaluate(kind Kind, params Params, lb *types.Lawbook) types.Verdict {
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	at := now().UTC()

	v := types.Verdict{
		Kind:        string(kind),
		InputsHash:  inputsHash(params),
		GeneratedAt: at.Format(time.RFC3339Nano),
	}

	if lb == nil {
		return deny(v, reason(CodeLawbookMissing, ruleLawbook, "no active lawbook"))
	}
	version := lb.LawbookVersion
	v.LawbookVersion = &version
	if hash, err := schema.LawbookHash(*lb); err == nil {
		v.LawbookHash = &hash
	}

	if params == nil || params.Kind() != kind {
		return deny(v, reason(CodeParamsInvalid, ruleParams, fmt.Sprintf("params do not describe a %s gate", kind)))
	}
	if err := params.validate(); err != nil {
		return deny(v, reason(CodeParamsInvalid, ruleParams, err.Error()))
	}

	switch p := params.(type) {
	case PlaybookRunParams:
		return evaluatePlaybookRun(v, p, lb, at)
	case RepoAccessParams:
		return evaluateRepoAccess(v, p, lb)
	case DeterminismParams:
		return evaluateDeterminism(v, p, lb)
	}
	return deny(v, reason(CodeParamsInvalid, ruleParams, fmt.Sprintf("unsupported gate kind %q", kind)))
}

func evaluatePlaybookRun(v types.Verdict, p PlaybookRunParams, lb *types.Lawbook, now time.Time) types.Verdict {
	rem := lb.Remediation
	if !rem.Enabled {
		return deny(v, reason(CodeRemediationDisabled, ruleRemediation, "remediation is disabled by the lawbook"))
	}

	var reasons []types.Reason

	if !slices.Contains(rem.AllowedPlaybooks, p.PlaybookID) {
		reasons = append(reasons, reason(CodePlaybookNotAllowed, rulePlaybooks,
			fmt.Sprintf("playbook %q is not allowed", p.PlaybookID)))
	}

	var disallowed []string
	for _, action := range p.ActionTypes {
		if !slices.Contains(rem.AllowedActions, action) {
			disallowed = append(disallowed, action)
		}
	}
	if disallowed = sortedUnique(disallowed); len(disallowed) > 0 {
		reasons = append(reasons, reason(CodeActionNotAllowed, ruleActions,
			"actions not allowed: "+strings.Join(disallowed, ", ")))
	}

	if _, ok := lb.Requirement(p.Category); !ok && len(lb.Evidence.Requirements) > 0 {
		reasons = append(reasons, reason(CodeCategoryUnknown, ruleEvidence,
			fmt.Sprintf("category %q has no evidence requirement in the lawbook", p.Category)))
	} else if missing := missingEvidence(lb, p.Category, p.Evidence); len(missing) > 0 {
		reasons = append(reasons, reason(CodeEvidenceMissing, ruleEvidence,
			fmt.Sprintf("category %q is missing evidence: %s", p.Category, strings.Join(missing, ", "))))
	}

	if rem.MaxRunsPerIncident > 0 && p.CurrentRunCount >= rem.MaxRunsPerIncident {
		reasons = append(reasons, reason(CodeMaxRunsExceeded, ruleMaxRuns,
			fmt.Sprintf("incident has %d of %d allowed runs", p.CurrentRunCount, rem.MaxRunsPerIncident)))
	}

	if rem.CooldownMinutes > 0 && p.LastRunAt != nil {
		cooldown := time.Duration(rem.CooldownMinutes) * time.Minute
		if elapsed := now.Sub(p.LastRunAt.UTC()); elapsed < cooldown {
			remaining := (cooldown - elapsed).Round(time.Second)
			reasons = append(reasons, reason(CodeCooldownActive, ruleCooldown,
				fmt.Sprintf("cooldown of %d minutes active, %s remaining", rem.CooldownMinutes, remaining)))
		}
	}

	if required := lb.Approvals.RequiredApprovals; required > 0 && approvalApplies(lb.Approvals.RequireFor, p.PlaybookID) {
		v.ApprovalRequired = true
		got := len(sortedUnique(p.Approvals))
		v.ApprovalMet = got >= required
		if !v.ApprovalMet {
			reasons = append(reasons, reason(CodeApprovalRequired, ruleApprovals,
				fmt.Sprintf("%d of %d approvals present", got, required)))
		}
	}

	if len(reasons) > 0 {
		return deny(v, reasons...)
	}
	return allow(v, reason(CodeRemediationAllowed, ruleRemediation,
		fmt.Sprintf("playbook %q may run for incident %q", p.PlaybookID, p.IncidentID)))
}

// missingEvidence returns the sorted evidence kinds and kind.field pairs the
// category requires but the params lack. A lawbook that declares no
// requirements imposes none.
func missingEvidence(lb *types.Lawbook, category string, evidence []types.EvidenceRef) []string {
	req, ok := lb.Requirement(category)
	if !ok {
		return nil
	}
	byKind := make(map[string][]types.EvidenceRef, len(evidence))
	for _, ev := range evidence {
		byKind[ev.Kind] = append(byKind[ev.Kind], ev)
	}

	var missing []string
	for _, kind := range req.RequiredKinds {
		if len(byKind[kind]) == 0 {
			missing = append(missing, kind)
		}
	}
	for kind, fields := range req.RequiredFields {
		for _, ev := range byKind[kind] {
			for _, field := range fields {
				if _, set := ev.Field(field); !set {
					missing = append(missing, kind+"."+field)
				}
			}
		}
	}
	return sortedUnique(missing)
}

func approvalApplies(requireFor []string, playbookID string) bool {
	return slices.Contains(requireFor, "*") || slices.Contains(requireFor, playbookID)
}

func evaluateRepoAccess(v types.Verdict, p RepoAccessParams, lb *types.Lawbook) types.Verdict {
	owner := strings.ToLower(strings.TrimSpace(p.Owner))
	repo := strings.ToLower(strings.TrimSpace(p.Repo))
	slug := owner + "/" + repo

	var rule *types.RepoRule
	for i := range lb.GitHub.AllowedRepos {
		r := &lb.GitHub.AllowedRepos[i]
		if strings.EqualFold(r.Owner, owner) && strings.EqualFold(r.Repo, repo) {
			rule = r
			break
		}
	}
	if rule == nil {
		return deny(v, reason(CodeRepoNotAllowed, ruleRepos, fmt.Sprintf("repository %s is not allowed", slug)))
	}
	if !branchAllowed(rule.Branches, p.Branch) {
		return deny(v, reason(CodeBranchNotAllowed, ruleBranches,
			fmt.Sprintf("branch %q of %s is not allowed", p.Branch, slug)))
	}
	return allow(v, reason(CodeRepoAllowed, ruleRepos, fmt.Sprintf("branch %q of %s is allowed", p.Branch, slug)))
}

// branchAllowed matches exact names and path.Match globs such as
// "release/*". A lone "*" allows every branch.
func branchAllowed(patterns []string, branch string) bool {
	for _, pattern := range patterns {
		if pattern == "*" || pattern == branch {
			return true
		}
		if ok, err := path.Match(pattern, branch); err == nil && ok {
			return true
		}
	}
	return false
}

func evaluateDeterminism(v types.Verdict, p DeterminismParams, lb *types.Lawbook) types.Verdict {
	if !lb.Determinism.RequireDeterminismGate {
		return allow(v, reason(CodeDeterminismNotRequired, ruleDeterminism, "lawbook does not require a determinism gate"))
	}
	switch p.Status {
	case DeterminismPassed:
		if strings.TrimSpace(p.ReportID) == "" {
			return deny(v, reason(CodeDeterminismMissing, ruleDeterminism, "passed status without a report id"))
		}
		return allow(v, reason(CodeDeterminismPassed, ruleDeterminism, fmt.Sprintf("report %s passed", p.ReportID)))
	case DeterminismPending:
		v.Verdict = types.VerdictHold
		v.Reasons = []types.Reason{{
			Code:     CodeDeterminismPending,
			RuleID:   ruleDeterminism,
			Severity: types.SeverityWarn,
			Message:  "determinism report is still running",
		}}
		return v
	case DeterminismFailed:
		return deny(v, reason(CodeDeterminismFailed, ruleDeterminism, fmt.Sprintf("report %s failed", p.ReportID)))
	}
	return deny(v, reason(CodeDeterminismMissing, ruleDeterminism, "no determinism report"))
}

func reason(code, ruleID, message string) types.Reason {
	return types.Reason{Code: code, RuleID: ruleID, Message: message}
}

func deny(v types.Verdict, reasons ...types.Reason) types.Verdict {
	v.Verdict = types.VerdictDeny
	v.Reasons = withSeverity(reasons, types.SeverityError)
	return v
}

func allow(v types.Verdict, r types.Reason) types.Verdict {
	v.Verdict = types.VerdictAllow
	v.Reasons = withSeverity([]types.Reason{r}, types.SeverityInfo)
	return v
}

func withSeverity(reasons []types.Reason, severity types.Severity) []types.Reason {
	out := make([]types.Reason, len(reasons))
	for i, r := range reasons {
		r.Severity = severity
		out[i] = r
	}
	slices.SortFunc(out, func(a, b types.Reason) int {
		if c := strings.Compare(a.Code, b.Code); c != 0 {
			return c
		}
		if c := strings.Compare(a.RuleID, b.RuleID); c != 0 {
			return c
		}
		return strings.Compare(a.Message, b.Message)
	})
	return out
}

func inputsHash(params Params) string {
	h, err := crypto.Hash(params, inputSetFields)
	if err != nil {
		return ""
	}
	return h
}

func sortedUnique(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
