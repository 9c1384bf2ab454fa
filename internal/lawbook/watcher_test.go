package lawbook

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func waitReload(t *testing.T, reloads <-chan error, cond func(error) bool) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case err := <-reloads:
			if cond(err) {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for lawbook reload")
		}
	}
}

func TestWatcherReloadsOnChange(t *testing.T) {
	defer goleak.VerifyNone(t)

	raw := readTestdata(t, "lawbook.json")
	path := filepath.Join(t.TempDir(), "lawbook.json")
	require.NoError(t, os.WriteFile(path, raw, 0o600))

	var snap Snapshot
	w, err := NewWatcher(path, &snap, nil, 20*time.Millisecond)
	require.NoError(t, err)

	reloads := make(chan error, 16)
	w.OnReload = func(_ Version, err error) {
		select {
		case reloads <- err:
		default:
		}
	}
	_, err = w.Reload()
	require.NoError(t, err)
	<-reloads

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	cooldown := func() int {
		lb, _, err := snap.Active(context.Background())
		require.NoError(t, err)
		return lb.Remediation.CooldownMinutes
	}
	assert.Equal(t, 15, cooldown())

	updated := strings.Replace(string(raw), `"cooldownMinutes": 15`, `"cooldownMinutes": 45`, 1)
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o600))
	waitReload(t, reloads, func(err error) bool { return err == nil && cooldown() == 45 })

	// A broken file keeps the last good lawbook.
	require.NoError(t, os.WriteFile(path, []byte(`{"version":`), 0o600))
	waitReload(t, reloads, func(err error) bool { return err != nil })
	assert.Equal(t, 45, cooldown())

	cancel()
	require.NoError(t, <-done)
}

func TestNewWatcherMissingDirectory(t *testing.T) {
	var snap Snapshot
	_, err := NewWatcher(filepath.Join(t.TempDir(), "nope", "lawbook.json"), &snap, nil, 0)
	require.Error(t, err)
}
