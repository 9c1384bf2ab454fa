package lawbook

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotEmpty(t *testing.T) {
	var s Snapshot
	_, _, err := s.Active(context.Background())
	assert.ErrorIs(t, err, ErrNoActiveLawbook)
}

func TestSnapshotReturnsPrivateCopies(t *testing.T) {
	lb := loadTestLawbook(t)
	var s Snapshot
	v, err := s.Set(lb, "file:lawbook.json")
	require.NoError(t, err)
	assert.Equal(t, "file:lawbook.json", v.ID)

	want, err := ComputeHash(lb)
	require.NoError(t, err)
	assert.Equal(t, want, v.Hash)

	// Mutating the source after Set does not leak in.
	lb.Remediation.AllowedActions[0] = "DELETE_EVERYTHING"

	got, gotV, err := s.Active(context.Background())
	require.NoError(t, err)
	assert.Equal(t, v, gotV)
	assert.Equal(t, "RESTART_SERVICE", got.Remediation.AllowedActions[0])

	// Neither does mutating a returned copy.
	got.GitHub.AllowedRepos[0].Branches[0] = "anything"
	got.Evidence.Requirements[0].RequiredFields["workflow_run"][0] = "conclusion"
	again, _, err := s.Active(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "main", again.GitHub.AllowedRepos[0].Branches[0])
	assert.Equal(t, []string{"runId"}, again.Evidence.Requirements[0].RequiredFields["workflow_run"])
}
