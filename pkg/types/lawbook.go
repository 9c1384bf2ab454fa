package types

// Lawbook is the versioned policy document consulted by every gate.
type Lawbook struct {
	Version        string             `json:"version" yaml:"version"`
	LawbookID      string             `json:"lawbookId" yaml:"lawbookId"`
	LawbookVersion string             `json:"lawbookVersion" yaml:"lawbookVersion"`
	CreatedAt      string             `json:"createdAt" yaml:"createdAt"`
	CreatedBy      string             `json:"createdBy" yaml:"createdBy"`
	Notes          string             `json:"notes,omitempty" yaml:"notes,omitempty"`
	GitHub         LawbookGitHub      `json:"github" yaml:"github"`
	Determinism    LawbookDeterminism `json:"determinism" yaml:"determinism"`
	Remediation    LawbookRemediation `json:"remediation" yaml:"remediation"`
	Evidence       LawbookEvidence    `json:"evidence" yaml:"evidence"`
	Approvals      LawbookApprovals   `json:"approvals" yaml:"approvals"`
}

type LawbookGitHub struct {
	AllowedRepos []RepoRule `json:"allowedRepos" yaml:"allowedRepos"`
}

// RepoRule allows a repository. Branches are exact names or path.Match
// globs; "*" must be spelled out to allow every branch.
type RepoRule struct {
	Owner    string   `json:"owner" yaml:"owner"`
	Repo     string   `json:"repo" yaml:"repo"`
	Branches []string `json:"branches" yaml:"branches"`
}

type LawbookDeterminism struct {
	RequireDeterminismGate        bool `json:"requireDeterminismGate" yaml:"requireDeterminismGate"`
	RequirePostDeployVerification bool `json:"requirePostDeployVerification" yaml:"requirePostDeployVerification"`
}

// LawbookRemediation governs playbook runs. Zero MaxRunsPerIncident or
// CooldownMinutes disables that limit.
type LawbookRemediation struct {
	Enabled            bool     `json:"enabled" yaml:"enabled"`
	AllowedPlaybooks   []string `json:"allowedPlaybooks" yaml:"allowedPlaybooks"`
	AllowedActions     []string `json:"allowedActions" yaml:"allowedActions"`
	MaxRunsPerIncident int      `json:"maxRunsPerIncident" yaml:"maxRunsPerIncident"`
	CooldownMinutes    int      `json:"cooldownMinutes" yaml:"cooldownMinutes"`
}

type LawbookEvidence struct {
	Requirements []EvidenceRequirement `json:"requirements" yaml:"requirements"`
}

// EvidenceRequirement lists the evidence kinds an incident category must
// present. RequiredFields maps an evidence kind to fields that must be set.
type EvidenceRequirement struct {
	Category       string              `json:"category" yaml:"category"`
	RequiredKinds  []string            `json:"requiredKinds" yaml:"requiredKinds"`
	RequiredFields map[string][]string `json:"requiredFields,omitempty" yaml:"requiredFields,omitempty"`
}

type LawbookApprovals struct {
	RequiredApprovals int      `json:"requiredApprovals" yaml:"requiredApprovals"`
	RequireFor        []string `json:"requireFor" yaml:"requireFor"`
}

// Requirement returns the evidence requirement for category, if any.
func (l Lawbook) Requirement(category string) (EvidenceRequirement, bool) {
	for _, req := range l.Evidence.Requirements {
		if req.Category == category {
			return req, true
		}
	}
	return EvidenceRequirement{}, false
}
