package types

import "strconv"

const (
	EvidenceFileSnippet  = "file_snippet"
	EvidenceGitHubIssue  = "github_issue"
	EvidenceGitHubPR     = "github_pr"
	EvidenceWorkflowRun  = "workflow_run"
	EvidenceErrorLog     = "error_log"
	EvidenceDeployStatus = "deploy_status"
	EvidenceArtifact     = "artifact"
)

// EvidenceKinds lists every accepted evidence kind.
var EvidenceKinds = []string{
	EvidenceArtifact,
	EvidenceDeployStatus,
	EvidenceErrorLog,
	EvidenceFileSnippet,
	EvidenceGitHubIssue,
	EvidenceGitHubPR,
	EvidenceWorkflowRun,
}

// EvidenceRef is a typed pointer to supporting material. Which fields are
// meaningful depends on Kind.
type EvidenceRef struct {
	Kind         string `json:"kind"`
	Repo         string `json:"repo,omitempty"`
	Branch       string `json:"branch,omitempty"`
	Path         string `json:"path,omitempty"`
	StartLine    int    `json:"startLine,omitempty"`
	EndLine      int    `json:"endLine,omitempty"`
	SnippetHash  string `json:"snippetHash,omitempty"`
	Number       int    `json:"number,omitempty"`
	Title        string `json:"title,omitempty"`
	RunID        int64  `json:"runId,omitempty"`
	Conclusion   string `json:"conclusion,omitempty"`
	Source       string `json:"source,omitempty"`
	URL          string `json:"url,omitempty"`
	Env          string `json:"env,omitempty"`
	Status       string `json:"status,omitempty"`
	ArtifactType string `json:"artifactType,omitempty"`
	ArtifactID   string `json:"artifactId,omitempty"`
}

// Field returns the value of the JSON field name and whether it is set.
func (e EvidenceRef) Field(name string) (string, bool) {
	var v string
	switch name {
	case "kind":
		v = e.Kind
	case "repo":
		v = e.Repo
	case "branch":
		v = e.Branch
	case "path":
		v = e.Path
	case "startLine":
		v = itoa(int64(e.StartLine))
	case "endLine":
		v = itoa(int64(e.EndLine))
	case "snippetHash":
		v = e.SnippetHash
	case "number":
		v = itoa(int64(e.Number))
	case "title":
		v = e.Title
	case "runId":
		v = itoa(e.RunID)
	case "conclusion":
		v = e.Conclusion
	case "source":
		v = e.Source
	case "url":
		v = e.URL
	case "env":
		v = e.Env
	case "status":
		v = e.Status
	case "artifactType":
		v = e.ArtifactType
	case "artifactId":
		v = e.ArtifactID
	}
	return v, v != ""
}

func itoa(n int64) string {
	if n == 0 {
		return ""
	}
	return strconv.FormatInt(n, 10)
}
