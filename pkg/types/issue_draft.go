package types

// IssueDraft is a proposed issue or epic before it is published.
type IssueDraft struct {
	Version            string      `json:"version"`
	Title              string      `json:"title"`
	Body               string      `json:"body"`
	Type               string      `json:"type"`
	CanonicalID        string      `json:"canonicalId"`
	Labels             []string    `json:"labels"`
	DependsOn          []string    `json:"dependsOn"`
	Priority           string      `json:"priority"`
	AcceptanceCriteria []string    `json:"acceptanceCriteria"`
	Verify             IssueVerify `json:"verify"`
	Guards             IssueGuards `json:"guards"`
	KPI                *IssueKPI   `json:"kpi,omitempty"`
}

type IssueVerify struct {
	Commands []string `json:"commands"`
	Expected []string `json:"expected"`
}

type IssueGuards struct {
	Env         string `json:"env"`
	ProdBlocked bool   `json:"prodBlocked"`
}

type IssueKPI struct {
	DCU    *int   `json:"dcu,omitempty"`
	Intent string `json:"intent,omitempty"`
}
