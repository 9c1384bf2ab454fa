package lawbook

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidahmann/lawgate/internal/ledger"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	s := NewService(ledger.NewInMemoryStore(), nil)
	clock := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	s.Now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	n := 0
	s.NewID = func() string {
		n++
		return fmt.Sprintf("lbv-%d", n)
	}
	return s
}

func readTestdata(t *testing.T, name string) []byte {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return raw
}

func TestCreateVersionIsIdempotent(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	raw := readTestdata(t, "lawbook.json")

	first, err := s.CreateVersion(ctx, raw, "alice")
	require.NoError(t, err)
	assert.True(t, first.Created)
	assert.Equal(t, "lbv-1", first.Version.ID)
	assert.Equal(t, "alice", first.Version.CreatedBy)

	// Same content with reordered sets and a new createdAt.
	reordered := strings.Replace(string(raw), `["restart_service", "rollback_deploy"]`, `["rollback_deploy", "restart_service"]`, 1)
	reordered = strings.Replace(reordered, `"2026-10-01T12:00:00Z"`, `"2026-10-02T08:00:00Z"`, 1)
	second, err := s.CreateVersion(ctx, []byte(reordered), "bob")
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.Version, second.Version)

	versions, err := s.ListVersions(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, versions, 1)
}

func TestCreateVersionRejectsInvalidLawbook(t *testing.T) {
	s := newTestService(t)
	_, err := s.CreateVersion(context.Background(), []byte(`{"version":"0.7.0","lawbookId":"x"}`), "alice")
	require.Error(t, err)

	versions, err := s.ListVersions(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, versions)
}

func TestActivateAndActive(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	_, _, err := s.Active(ctx)
	assert.ErrorIs(t, err, ErrNoActiveLawbook)

	lb, v, err := ActiveOrNil(ctx, s)
	require.NoError(t, err)
	assert.Nil(t, lb)
	assert.Empty(t, v.ID)

	created, err := s.CreateVersion(ctx, readTestdata(t, "lawbook.json"), "alice")
	require.NoError(t, err)

	_, err = s.Activate(ctx, "unknown", "alice")
	assert.ErrorIs(t, err, ErrVersionNotFound)

	activated, err := s.Activate(ctx, created.Version.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, created.Version, activated)

	active, v, err := s.Active(ctx)
	require.NoError(t, err)
	assert.Equal(t, created.Version.Hash, v.Hash)
	assert.Equal(t, "2026-10-01.1", active.LawbookVersion)

	// Callers receive a private copy.
	active.Remediation.AllowedPlaybooks[0] = "tampered"
	again, _, err := s.Active(ctx)
	require.NoError(t, err)
	assert.Equal(t, "restart_service", again.Remediation.AllowedPlaybooks[0])

	h, err := ComputeHash(*again)
	require.NoError(t, err)
	assert.Equal(t, v.Hash, h)
}

func TestActivateSwitchesVersions(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	raw := readTestdata(t, "lawbook.json")

	v1, err := s.CreateVersion(ctx, raw, "alice")
	require.NoError(t, err)
	v2, err := s.CreateVersion(ctx, []byte(strings.Replace(string(raw), `"cooldownMinutes": 15`, `"cooldownMinutes": 30`, 1)), "alice")
	require.NoError(t, err)
	require.True(t, v2.Created)
	require.NotEqual(t, v1.Version.Hash, v2.Version.Hash)

	_, err = s.Activate(ctx, v1.Version.ID, "alice")
	require.NoError(t, err)
	_, err = s.Activate(ctx, v2.Version.ID, "bob")
	require.NoError(t, err)

	lb, _, err := s.Active(ctx)
	require.NoError(t, err)
	assert.Equal(t, 30, lb.Remediation.CooldownMinutes)

	versions, err := s.ListVersions(ctx, 0)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, v2.Version.ID, versions[0].ID)
}

func TestServiceHonorsCancelledContext(t *testing.T) {
	s := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.CreateVersion(ctx, readTestdata(t, "lawbook.json"), "alice")
	assert.ErrorIs(t, err, context.Canceled)
	_, _, err = s.Active(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
