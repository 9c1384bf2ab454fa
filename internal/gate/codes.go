package gate

// Reason codes.
const (
	CodeLawbookMissing      = "LAWBOOK_MISSING"
	CodeParamsInvalid       = "PARAMS_INVALID"
	CodeRemediationDisabled = "REMEDIATION_DISABLED"
	CodePlaybookNotAllowed  = "PLAYBOOK_NOT_ALLOWED"
	CodeActionNotAllowed    = "ACTION_NOT_ALLOWED"
	CodeRepoNotAllowed      = "REPO_NOT_ALLOWED"
	CodeBranchNotAllowed    = "BRANCH_NOT_ALLOWED"
	CodeEvidenceMissing     = "EVIDENCE_MISSING"
	CodeCategoryUnknown     = "CATEGORY_UNKNOWN"
	CodeMaxRunsExceeded     = "MAX_RUNS_EXCEEDED"
	CodeCooldownActive      = "COOLDOWN_ACTIVE"
	CodeApprovalRequired    = "APPROVAL_REQUIRED"

	CodeRemediationAllowed     = "REMEDIATION_ALLOWED"
	CodeRepoAllowed            = "REPO_ALLOWED"
	CodeDeterminismPassed      = "DETERMINISM_PASSED"
	CodeDeterminismNotRequired = "DETERMINISM_NOT_REQUIRED"
	CodeDeterminismPending     = "DETERMINISM_PENDING"
	CodeDeterminismMissing     = "DETERMINISM_REPORT_MISSING"
	CodeDeterminismFailed      = "DETERMINISM_FAILED"
)

// Rule ids point at the lawbook section a reason came from.
const (
	ruleLawbook     = "lawbook"
	ruleParams      = "params"
	ruleRemediation = "remediation.enabled"
	rulePlaybooks   = "remediation.allowedPlaybooks"
	ruleActions     = "remediation.allowedActions"
	ruleMaxRuns     = "remediation.maxRunsPerIncident"
	ruleCooldown    = "remediation.cooldownMinutes"
	ruleRepos       = "github.allowedRepos"
	ruleBranches    = "github.allowedRepos.branches"
	ruleEvidence    = "evidence.requirements"
	ruleApprovals   = "approvals.requiredApprovals"
	ruleDeterminism = "determinism.requireDeterminismGate"
)
