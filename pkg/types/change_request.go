package types

// ChangeRequest describes a code change and the evidence backing it.
type ChangeRequest struct {
	Version            string        `json:"version"`
	CanonicalID        string        `json:"canonicalId"`
	IssueRef           string        `json:"issueRef,omitempty"`
	Title              string        `json:"title"`
	Motivation         string        `json:"motivation"`
	Scope              CRScope       `json:"scope"`
	Targets            CRTargets     `json:"targets"`
	Changes            CRChanges     `json:"changes"`
	AcceptanceCriteria []string      `json:"acceptanceCriteria"`
	Tests              CRTests       `json:"tests"`
	Risks              CRRisks       `json:"risks"`
	Rollout            CRRollout     `json:"rollout"`
	Evidence           []EvidenceRef `json:"evidence"`
	Metadata           CRMetadata    `json:"metadata"`
}

type CRScope struct {
	Summary    string   `json:"summary"`
	InScope    []string `json:"inScope"`
	OutOfScope []string `json:"outOfScope"`
}

type RepoRef struct {
	Owner string `json:"owner"`
	Repo  string `json:"repo"`
}

type CRTargets struct {
	Repo   RepoRef `json:"repo"`
	Branch string  `json:"branch"`
}

type CRChanges struct {
	Files []FileChange `json:"files"`
}

type FileChange struct {
	Path       string `json:"path"`
	ChangeType string `json:"changeType"`
	Rationale  string `json:"rationale,omitempty"`
}

type CRTests struct {
	Required       []string `json:"required"`
	AddedOrUpdated []string `json:"addedOrUpdated,omitempty"`
}

type CRRisks struct {
	Items []Risk `json:"items"`
}

type Risk struct {
	Risk       string `json:"risk"`
	Impact     string `json:"impact"`
	Mitigation string `json:"mitigation"`
}

type CRRollout struct {
	Steps        []string `json:"steps"`
	RollbackPlan string   `json:"rollbackPlan"`
	FeatureFlags []string `json:"featureFlags,omitempty"`
}

type CRMetadata struct {
	CreatedAt string   `json:"createdAt"`
	CreatedBy string   `json:"createdBy"`
	Tags      []string `json:"tags,omitempty"`
}
