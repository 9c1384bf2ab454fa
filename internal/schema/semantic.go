package schema

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/davidahmann/lawgate/pkg/types"
)

// evidenceFields lists the fields each evidence kind may carry.
var evidenceFields = map[string][]string{
	types.EvidenceFileSnippet:  {"branch", "endLine", "path", "repo", "snippetHash", "startLine"},
	types.EvidenceGitHubIssue:  {"number", "repo", "title"},
	types.EvidenceGitHubPR:     {"number", "repo", "title"},
	types.EvidenceWorkflowRun:  {"conclusion", "repo", "runId"},
	types.EvidenceErrorLog:     {"path", "source", "url"},
	types.EvidenceDeployStatus: {"env", "status"},
	types.EvidenceArtifact:     {"artifactId", "artifactType"},
}

func hasEvidenceField(kind, field string) bool {
	for _, f := range evidenceFields[kind] {
		if f == field {
			return true
		}
	}
	return false
}

// blankStrings reports non-empty strings made only of whitespace.
func blankStrings(v any, segs []string) []FieldError {
	switch node := v.(type) {
	case string:
		if node != "" && strings.TrimSpace(node) == "" {
			return []FieldError{{Path: joinSegments(segs), Code: CodeInvalidString, Message: "Must not be blank"}}
		}
	case map[string]any:
		keys := make([]string, 0, len(node))
		for k := range node {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var out []FieldError
		for _, k := range keys {
			out = append(out, blankStrings(node[k], appendSeg(segs, k))...)
		}
		return out
	case []any:
		var out []FieldError
		for i, item := range node {
			out = append(out, blankStrings(item, appendSeg(segs, fmt.Sprint(i)))...)
		}
		return out
	}
	return nil
}

func appendSeg(segs []string, seg string) []string {
	out := make([]string, len(segs), len(segs)+1)
	copy(out, segs)
	return append(out, seg)
}

func checkLawbook(lb types.Lawbook) []FieldError {
	var errs []FieldError

	for i, id := range lb.Remediation.AllowedPlaybooks {
		if !IsPlaybookID(id) {
			errs = append(errs, FieldError{
				Path:    indexPath("remediation.allowedPlaybooks", i),
				Code:    CodeInvalidString,
				Message: patternMessage(playbookIDPattern),
			})
		}
	}
	for i, id := range lb.Approvals.RequireFor {
		if id != "*" && !IsPlaybookID(id) {
			errs = append(errs, FieldError{
				Path:    indexPath("approvals.requireFor", i),
				Code:    CodeInvalidString,
				Message: patternMessage(playbookIDPattern),
			})
		}
	}

	for i, rule := range lb.GitHub.AllowedRepos {
		for j, branch := range rule.Branches {
			if _, err := path.Match(branch, ""); err != nil {
				errs = append(errs, FieldError{
					Path:    indexPath(indexPath("github.allowedRepos", i)+".branches", j),
					Code:    CodeInvalidString,
					Message: fmt.Sprintf("Invalid branch pattern %q", branch),
				})
			}
		}
	}

	seen := make(map[string]int, len(lb.Evidence.Requirements))
	for i, req := range lb.Evidence.Requirements {
		category := strings.TrimSpace(req.Category)
		if first, ok := seen[category]; ok {
			errs = append(errs, FieldError{
				Path:    indexPath("evidence.requirements", i) + ".category",
				Code:    CodeDuplicate,
				Message: fmt.Sprintf("Duplicate category %q (first declared at index %d)", category, first),
			})
			continue
		}
		seen[category] = i

		kinds := make([]string, 0, len(req.RequiredFields))
		for kind := range req.RequiredFields {
			kinds = append(kinds, kind)
		}
		sort.Strings(kinds)
		for _, kind := range kinds {
			base := indexPath("evidence.requirements", i) + ".requiredFields." + kind
			for j, field := range req.RequiredFields[kind] {
				if !hasEvidenceField(kind, field) {
					errs = append(errs, FieldError{
						Path:    indexPath(base, j),
						Code:    CodeInvalidEnumValue,
						Message: fmt.Sprintf("Unknown field %q for %s evidence", field, kind),
					})
				}
			}
		}
	}
	return errs
}

func checkIssueDraft(d types.IssueDraft) []FieldError {
	var errs []FieldError

	switch d.Type {
	case "issue":
		if !IsIssueID(d.CanonicalID) {
			errs = append(errs, FieldError{Path: "canonicalId", Code: CodeInvalidString, Message: patternMessage(issueIDPattern)})
		}
	case "epic":
		if !IsEpicID(d.CanonicalID) {
			errs = append(errs, FieldError{Path: "canonicalId", Code: CodeInvalidString, Message: patternMessage(epicIDPattern)})
		}
	}

	for i, dep := range d.DependsOn {
		p := indexPath("dependsOn", i)
		switch {
		case !IsIssueID(dep) && !IsEpicID(dep):
			errs = append(errs, FieldError{Path: p, Code: CodeInvalidString, Message: "Invalid format: expected an issue or epic id"})
		case dep == d.CanonicalID:
			errs = append(errs, FieldError{Path: p, Code: CodeInvalid, Message: "Draft cannot depend on itself"})
		}
	}

	if n := len([]rune(strings.TrimSpace(d.Body))); n < 10 {
		errs = append(errs, FieldError{Path: "body", Code: CodeTooSmall, Message: "String must contain at least 10 character(s)"})
	}

	if d.Guards.Env == "production" && !d.Guards.ProdBlocked {
		errs = append(errs, FieldError{Path: "guards.prodBlocked", Code: CodeInvalid, Message: "Production drafts must set prodBlocked"})
	}
	return errs
}

func checkChangeRequest(cr types.ChangeRequest) []FieldError {
	var errs []FieldError

	if !IsChangeRequestID(cr.CanonicalID) {
		errs = append(errs, FieldError{Path: "canonicalId", Code: CodeInvalidString, Message: patternMessage(changeRequestIDPattern)})
	}
	if cr.IssueRef != "" && !IsIssueID(cr.IssueRef) && !IsEpicID(cr.IssueRef) {
		errs = append(errs, FieldError{Path: "issueRef", Code: CodeInvalidString, Message: "Invalid format: expected an issue or epic id"})
	}

	changeTypes := make(map[string]string, len(cr.Changes.Files))
	for i, f := range cr.Changes.Files {
		p := strings.TrimSpace(f.Path)
		if prev, ok := changeTypes[p]; ok && prev != f.ChangeType {
			errs = append(errs, FieldError{
				Path:    indexPath("changes.files", i) + ".changeType",
				Code:    CodeDuplicate,
				Message: fmt.Sprintf("File %q is listed with conflicting change types", p),
			})
			continue
		}
		changeTypes[p] = f.ChangeType
	}

	for i, ev := range cr.Evidence {
		if ev.Kind == types.EvidenceFileSnippet && ev.EndLine < ev.StartLine {
			errs = append(errs, FieldError{
				Path:    indexPath("evidence", i) + ".endLine",
				Code:    CodeTooSmall,
				Message: fmt.Sprintf("endLine must be greater than or equal to startLine (%d)", ev.StartLine),
			})
		}
	}
	return errs
}

func checkWorkPlan(wp types.WorkPlan) []FieldError {
	var errs []FieldError

	goals := make(map[string]struct{}, len(wp.Goals))
	for i, g := range wp.Goals {
		if _, ok := goals[g.ID]; ok {
			errs = append(errs, duplicateID(indexPath("goals", i), g.ID))
			continue
		}
		goals[g.ID] = struct{}{}
	}

	todos := make(map[string]struct{}, len(wp.Todos))
	for i, t := range wp.Todos {
		if _, ok := todos[t.ID]; ok {
			errs = append(errs, duplicateID(indexPath("todos", i), t.ID))
		}
		todos[t.ID] = struct{}{}
		if t.AssignedGoalID == "" {
			continue
		}
		if _, ok := goals[t.AssignedGoalID]; !ok {
			errs = append(errs, FieldError{
				Path:    indexPath("todos", i) + ".assignedGoalId",
				Code:    CodeInvalid,
				Message: fmt.Sprintf("Unknown goal %q", t.AssignedGoalID),
			})
		}
	}

	options := make(map[string]struct{}, len(wp.Options))
	for i, o := range wp.Options {
		if _, ok := options[o.ID]; ok {
			errs = append(errs, duplicateID(indexPath("options", i), o.ID))
			continue
		}
		options[o.ID] = struct{}{}
	}
	return errs
}

func duplicateID(base, id string) FieldError {
	return FieldError{Path: base + ".id", Code: CodeDuplicate, Message: fmt.Sprintf("Duplicate id %q", id)}
}
