package types

type VerdictValue string

const (
	VerdictAllow VerdictValue = "ALLOW"
	VerdictDeny  VerdictValue = "DENY"
	VerdictHold  VerdictValue = "HOLD"
)

type Severity string

const (
	SeverityInfo  Severity = "INFO"
	SeverityWarn  Severity = "WARN"
	SeverityError Severity = "ERROR"
)

type Reason struct {
	Code     string   `json:"code"`
	RuleID   string   `json:"ruleId"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// Verdict is the outcome of one gate evaluation. It is recomputed on
// demand; GeneratedAt is an observation time and not part of its identity.
type Verdict struct {
	Kind             string       `json:"kind"`
	Verdict          VerdictValue `json:"verdict"`
	Reasons          []Reason     `json:"reasons"`
	LawbookVersion   *string      `json:"lawbookVersion"`
	LawbookHash      *string      `json:"lawbookHash"`
	InputsHash       string       `json:"inputsHash"`
	ApprovalRequired bool         `json:"approvalRequired"`
	ApprovalMet      bool         `json:"approvalMet"`
	GeneratedAt      string       `json:"generatedAt"`
}

func (v Verdict) Allowed() bool { return v.Verdict == VerdictAllow }

// Codes returns the reason codes in order.
func (v Verdict) Codes() []string {
	out := make([]string, 0, len(v.Reasons))
	for _, r := range v.Reasons {
		out = append(out, r.Code)
	}
	return out
}
