package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidahmann/lawgate/pkg/types"
)

func loadFixture(t *testing.T, id SchemaID) map[string]any {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", string(id)+"_valid.json"))
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	return doc
}

func child(t *testing.T, doc map[string]any, key string) map[string]any {
	t.Helper()
	m, ok := doc[key].(map[string]any)
	require.True(t, ok, "missing object %s", key)
	return m
}

func hasError(errs []FieldError, path, code string) bool {
	for _, e := range errs {
		if e.Path == path && e.Code == code {
			return true
		}
	}
	return false
}

func TestValidateFixtures(t *testing.T) {
	for _, id := range IDs() {
		t.Run(string(id), func(t *testing.T) {
			res := Validate(id, loadFixture(t, id))
			require.True(t, res.Success, "errors: %+v", res.Errors)
			require.Empty(t, res.Errors)
			require.NotNil(t, res.Data)
		})
	}
}

func TestValidateTypedData(t *testing.T) {
	res := Validate(Lawbook, loadFixture(t, Lawbook))
	require.True(t, res.Success)
	lb, ok := res.Data.(types.Lawbook)
	require.True(t, ok)
	assert.Equal(t, "afu9-default", lb.LawbookID)
	assert.Equal(t, 3, lb.Remediation.MaxRunsPerIncident)
}

func TestValidateAcceptsEncodedBytes(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("testdata", "issue_draft_valid.json"))
	require.NoError(t, err)
	res := Validate(IssueDraft, data)
	require.True(t, res.Success, "errors: %+v", res.Errors)
}

func TestValidateAcceptsGoStructs(t *testing.T) {
	res := Validate(IssueDraft, loadFixture(t, IssueDraft))
	require.True(t, res.Success)
	draft := res.Data.(types.IssueDraft)

	again := Validate(IssueDraft, draft)
	require.True(t, again.Success, "errors: %+v", again.Errors)
}

func TestUnknownKeysRejected(t *testing.T) {
	doc := loadFixture(t, Lawbook)
	doc["extra"] = true
	child(t, doc, "remediation")["autoApprove"] = true

	res := Validate(Lawbook, doc)
	require.False(t, res.Success)
	assert.Equal(t, []FieldError{
		{Path: "extra", Code: CodeUnrecognizedKeys, Message: `Unrecognized key: "extra"`},
		{Path: "remediation.autoApprove", Code: CodeUnrecognizedKeys, Message: `Unrecognized key: "autoApprove"`},
	}, res.Errors)
}

func TestEvidenceFieldsDependOnKind(t *testing.T) {
	doc := loadFixture(t, ChangeRequest)
	evidence := doc["evidence"].([]any)
	snippet := evidence[1].(map[string]any)
	snippet["number"] = 12

	res := Validate(ChangeRequest, doc)
	require.False(t, res.Success)
	assert.True(t, hasError(res.Errors, "evidence.1.number", CodeUnrecognizedKeys), "errors: %+v", res.Errors)
}

func TestEvidenceUnknownKind(t *testing.T) {
	doc := loadFixture(t, ChangeRequest)
	evidence := doc["evidence"].([]any)
	evidence[0].(map[string]any)["kind"] = "screenshot"

	res := Validate(ChangeRequest, doc)
	require.False(t, res.Success)
	assert.True(t, hasError(res.Errors, "evidence.0.kind", CodeInvalidEnumValue), "errors: %+v", res.Errors)
}

func TestTitleLengthBoundary(t *testing.T) {
	doc := loadFixture(t, IssueDraft)
	doc["title"] = strings.Repeat("a", 200)
	res := Validate(IssueDraft, doc)
	require.True(t, res.Success, "errors: %+v", res.Errors)

	doc["title"] = strings.Repeat("a", 201)
	res = Validate(IssueDraft, doc)
	require.False(t, res.Success)
	assert.Equal(t, []FieldError{
		{Path: "title", Code: CodeTooBig, Message: "String must contain at most 200 character(s)"},
	}, res.Errors)
}

func TestEmptyIsNotMissing(t *testing.T) {
	doc := loadFixture(t, IssueDraft)
	doc["acceptanceCriteria"] = []any{}
	empty := Validate(IssueDraft, doc)
	require.False(t, empty.Success)
	assert.Equal(t, []FieldError{
		{Path: "acceptanceCriteria", Code: CodeEmpty, Message: "Array must not be empty"},
	}, empty.Errors)

	delete(doc, "acceptanceCriteria")
	missing := Validate(IssueDraft, doc)
	require.False(t, missing.Success)
	assert.Equal(t, []FieldError{
		{Path: "acceptanceCriteria", Code: CodeRequired, Message: "Required"},
	}, missing.Errors)
}

func TestTypeMismatch(t *testing.T) {
	doc := loadFixture(t, Lawbook)
	child(t, doc, "remediation")["maxRunsPerIncident"] = "three"

	res := Validate(Lawbook, doc)
	require.False(t, res.Success)
	assert.Equal(t, []FieldError{
		{Path: "remediation.maxRunsPerIncident", Code: CodeInvalidType, Message: "Expected integer, received string"},
	}, res.Errors)
}

func TestNumericBounds(t *testing.T) {
	doc := loadFixture(t, Lawbook)
	child(t, doc, "remediation")["cooldownMinutes"] = 1441

	res := Validate(Lawbook, doc)
	require.False(t, res.Success)
	assert.Equal(t, []FieldError{
		{Path: "remediation.cooldownMinutes", Code: CodeTooBig, Message: "Number must be less than or equal to 1440"},
	}, res.Errors)
}

func TestDateTimeFormat(t *testing.T) {
	doc := loadFixture(t, Lawbook)
	doc["createdAt"] = "yesterday"

	res := Validate(Lawbook, doc)
	require.False(t, res.Success)
	assert.True(t, hasError(res.Errors, "createdAt", CodeInvalidString), "errors: %+v", res.Errors)
}

func TestErrorsSortedAndCapped(t *testing.T) {
	doc := loadFixture(t, WorkPlan)
	for i := 149; i >= 0; i-- {
		doc[fmt.Sprintf("k%03d", i)] = i
	}

	res := Validate(WorkPlan, doc)
	require.False(t, res.Success)
	require.Len(t, res.Errors, MaxErrors)
	assert.Equal(t, "k000", res.Errors[0].Path)
	assert.Equal(t, "k099", res.Errors[MaxErrors-1].Path)
	assert.True(t, slices.IsSortedFunc(res.Errors, func(a, b FieldError) int {
		return strings.Compare(a.Path, b.Path)
	}))
}

func TestErrorOrderIsStable(t *testing.T) {
	doc := loadFixture(t, ChangeRequest)
	doc["title"] = ""
	delete(doc, "motivation")
	child(t, doc, "metadata")["createdBy"] = "robot"

	first := Validate(ChangeRequest, doc)
	for i := 0; i < 10; i++ {
		require.Equal(t, first.Errors, Validate(ChangeRequest, doc).Errors)
	}
	assert.Equal(t, []string{"metadata.createdBy", "motivation", "title"}, paths(first.Errors))
}

func paths(errs []FieldError) []string {
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		out = append(out, e.Path)
	}
	return out
}

func TestVersionDiscriminator(t *testing.T) {
	cases := []struct {
		id      SchemaID
		version string
		ok      bool
	}{
		{Lawbook, "0.7.0", true},
		{Lawbook, "0.7.3", true},
		{Lawbook, "0.8.0", false},
		{Lawbook, "latest", false},
		{IssueDraft, "1.0", true},
		{IssueDraft, "1.0.2", true},
		{IssueDraft, "1.1", false},
		{WorkPlan, "1.4.0", true},
		{WorkPlan, "2.0.0", false},
		{ChangeRequest, "0.6.9", false},
	}
	for _, tc := range cases {
		t.Run(string(tc.id)+"@"+tc.version, func(t *testing.T) {
			doc := loadFixture(t, tc.id)
			doc["version"] = tc.version
			res := Validate(tc.id, doc)
			if tc.ok {
				require.True(t, res.Success, "errors: %+v", res.Errors)
				return
			}
			require.False(t, res.Success)
			require.Len(t, res.Errors, 1)
			assert.Equal(t, "version", res.Errors[0].Path)
			assert.Equal(t, CodeUnsupportedVersion, res.Errors[0].Code)
		})
	}
}

func TestPayloadTooLarge(t *testing.T) {
	raw := make([]byte, MaxPayloadBytes+1)
	for i := range raw {
		raw[i] = ' '
	}
	res := Validate(WorkPlan, raw)
	require.False(t, res.Success)
	assert.Equal(t, []FieldError{
		{Code: CodePayloadTooLarge, Message: fmt.Sprintf("Payload exceeds %d bytes", MaxPayloadBytes)},
	}, res.Errors)
}

func TestInvalidJSON(t *testing.T) {
	res := Validate(WorkPlan, []byte(`{"version": `))
	require.False(t, res.Success)
	assert.Equal(t, CodeInvalidJSON, res.Errors[0].Code)
}

func TestUnknownSchema(t *testing.T) {
	res := Validate(SchemaID("receipt"), []byte(`{}`))
	require.False(t, res.Success)
	assert.Equal(t, CodeUnknownSchema, res.Errors[0].Code)

	_, err := ParseID("receipt")
	assert.ErrorIs(t, err, ErrUnknownSchema)
}

func TestBlankStringsRejected(t *testing.T) {
	doc := loadFixture(t, IssueDraft)
	doc["title"] = "   "

	res := Validate(IssueDraft, doc)
	require.False(t, res.Success)
	assert.Equal(t, []FieldError{
		{Path: "title", Code: CodeInvalidString, Message: "Must not be blank"},
	}, res.Errors)
}

func TestIssueDraftIdentifiers(t *testing.T) {
	doc := loadFixture(t, IssueDraft)
	doc["canonicalId"] = "E81"
	doc["dependsOn"] = []any{"I811", "X1"}

	res := Validate(IssueDraft, doc)
	require.False(t, res.Success)
	assert.True(t, hasError(res.Errors, "canonicalId", CodeInvalidString))
	assert.True(t, hasError(res.Errors, "dependsOn.1", CodeInvalidString))

	doc = loadFixture(t, IssueDraft)
	doc["type"] = "epic"
	doc["canonicalId"] = "E81.2"
	res = Validate(IssueDraft, doc)
	require.True(t, res.Success, "errors: %+v", res.Errors)
}

func TestIssueDraftSelfDependency(t *testing.T) {
	doc := loadFixture(t, IssueDraft)
	doc["dependsOn"] = []any{"I811"}

	res := Validate(IssueDraft, doc)
	require.False(t, res.Success)
	assert.True(t, hasError(res.Errors, "dependsOn.0", CodeInvalid))
}

func TestIssueDraftProductionGuard(t *testing.T) {
	doc := loadFixture(t, IssueDraft)
	doc["guards"] = map[string]any{"env": "production", "prodBlocked": false}

	res := Validate(IssueDraft, doc)
	require.False(t, res.Success)
	assert.Equal(t, "guards.prodBlocked", res.Errors[0].Path)
}

func TestIssueDraftBodyTrimmedLength(t *testing.T) {
	doc := loadFixture(t, IssueDraft)
	doc["body"] = "   short     "

	res := Validate(IssueDraft, doc)
	require.False(t, res.Success)
	assert.Equal(t, []FieldError{
		{Path: "body", Code: CodeTooSmall, Message: "String must contain at least 10 character(s)"},
	}, res.Errors)
}

func TestChangeRequestLineRange(t *testing.T) {
	doc := loadFixture(t, ChangeRequest)
	snippet := doc["evidence"].([]any)[1].(map[string]any)
	snippet["startLine"] = 50
	snippet["endLine"] = 10

	res := Validate(ChangeRequest, doc)
	require.False(t, res.Success)
	assert.True(t, hasError(res.Errors, "evidence.1.endLine", CodeTooSmall), "errors: %+v", res.Errors)
}

func TestChangeRequestIdentifier(t *testing.T) {
	doc := loadFixture(t, ChangeRequest)
	doc["canonicalId"] = "CR-2026-1"

	res := Validate(ChangeRequest, doc)
	require.False(t, res.Success)
	assert.True(t, hasError(res.Errors, "canonicalId", CodeInvalidString))
}

func TestChangeRequestConflictingFiles(t *testing.T) {
	doc := loadFixture(t, ChangeRequest)
	files := child(t, doc, "changes")["files"].([]any)
	files = append(files, map[string]any{"path": "internal/lawbook/watcher.go", "changeType": "delete"})
	child(t, doc, "changes")["files"] = files

	res := Validate(ChangeRequest, doc)
	require.False(t, res.Success)
	assert.True(t, hasError(res.Errors, "changes.files.2.changeType", CodeDuplicate))
}

func TestLawbookDuplicateCategory(t *testing.T) {
	doc := loadFixture(t, Lawbook)
	evidence := child(t, doc, "evidence")
	reqs := evidence["requirements"].([]any)
	evidence["requirements"] = append(reqs, map[string]any{
		"category":      "deploy_failure",
		"requiredKinds": []any{"error_log"},
	})

	res := Validate(Lawbook, doc)
	require.False(t, res.Success)
	assert.True(t, hasError(res.Errors, "evidence.requirements.1.category", CodeDuplicate))
}

func TestLawbookRequiredFieldNames(t *testing.T) {
	doc := loadFixture(t, Lawbook)
	req := child(t, doc, "evidence")["requirements"].([]any)[0].(map[string]any)
	req["requiredFields"] = map[string]any{"workflow_run": []any{"runId", "sha"}}

	res := Validate(Lawbook, doc)
	require.False(t, res.Success)
	assert.True(t, hasError(res.Errors, "evidence.requirements.0.requiredFields.workflow_run.1", CodeInvalidEnumValue))
}

func TestLawbookPlaybookIdentifiers(t *testing.T) {
	doc := loadFixture(t, Lawbook)
	child(t, doc, "remediation")["allowedPlaybooks"] = []any{"Restart Service"}

	res := Validate(Lawbook, doc)
	require.False(t, res.Success)
	assert.True(t, hasError(res.Errors, "remediation.allowedPlaybooks.0", CodeInvalidString))
}

func TestWorkPlanReferences(t *testing.T) {
	doc := loadFixture(t, WorkPlan)
	todos := doc["todos"].([]any)
	todos[1].(map[string]any)["assignedGoalId"] = "g9"
	todos[1].(map[string]any)["id"] = "t1"

	res := Validate(WorkPlan, doc)
	require.False(t, res.Success)
	assert.True(t, hasError(res.Errors, "todos.1.id", CodeDuplicate))
	assert.True(t, hasError(res.Errors, "todos.1.assignedGoalId", CodeInvalid))
}

func TestResultErr(t *testing.T) {
	ok := Validate(WorkPlan, loadFixture(t, WorkPlan))
	require.NoError(t, ok.Err())

	doc := loadFixture(t, WorkPlan)
	delete(doc, "goals")
	bad := Validate(WorkPlan, doc)
	err := bad.Err()
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "work_plan: goals: Required", err.Error())
}

func TestTrailingDataRejected(t *testing.T) {
	for _, raw := range []string{
		`{"version": "1.0.0"} {}`,
		`{"version": "1.0.0"}]`,
		`{"version": "1.0.0"} "x"`,
	} {
		res := Validate(WorkPlan, []byte(raw))
		require.False(t, res.Success, raw)
		assert.Equal(t, []FieldError{{Code: CodeInvalidJSON, Message: "Invalid JSON"}}, res.Errors, raw)
	}
}

func TestTrailingWhitespaceAccepted(t *testing.T) {
	doc := loadFixture(t, WorkPlan)
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	res := Validate(WorkPlan, append(data, " \n\t"...))
	require.True(t, res.Success, "errors: %+v", res.Errors)
}

func TestUnsupportedVersionReportedWithStructuralErrors(t *testing.T) {
	doc := loadFixture(t, WorkPlan)
	doc["version"] = "2.0.0"
	delete(doc, "goals")
	res := Validate(WorkPlan, doc)
	require.False(t, res.Success)
	assert.True(t, hasError(res.Errors, "version", CodeUnsupportedVersion), "errors: %+v", res.Errors)
	assert.True(t, hasError(res.Errors, "goals", CodeRequired), "errors: %+v", res.Errors)
}
