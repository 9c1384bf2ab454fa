package schema

import "regexp"

var (
	issueIDPattern         = regexp.MustCompile(`^I[0-9]{3,5}$`)
	epicIDPattern          = regexp.MustCompile(`^E[0-9]{2,3}(\.[0-9]{1,3})?$`)
	changeRequestIDPattern = regexp.MustCompile(`^CR-[0-9]{8}-[0-9]{3}$`)
	playbookIDPattern      = regexp.MustCompile(`^[a-z][a-z0-9_-]{2,63}$`)
)

// IsIssueID reports whether s is an issue id such as I811.
func IsIssueID(s string) bool { return issueIDPattern.MatchString(s) }

// IsEpicID reports whether s is an epic id such as E81 or E81.2.
func IsEpicID(s string) bool { return epicIDPattern.MatchString(s) }

// IsChangeRequestID reports whether s is a change request id such as
// CR-20260101-001.
func IsChangeRequestID(s string) bool { return changeRequestIDPattern.MatchString(s) }

// IsPlaybookID reports whether s is a playbook id such as restart_service.
func IsPlaybookID(s string) bool { return playbookIDPattern.MatchString(s) }

func patternMessage(p *regexp.Regexp) string {
	return "Invalid format: expected pattern " + p.String()
}
