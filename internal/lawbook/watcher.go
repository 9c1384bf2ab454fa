package lawbook

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/davidahmann/lawgate/internal/crypto"
)

const DefaultDebounce = 250 * time.Millisecond

// Watcher reloads a lawbook file into a Snapshot when it changes. A file
// that fails to parse leaves the previous lawbook in place.
type Watcher struct {
	path     string
	snap     *Snapshot
	log      *zap.Logger
	watcher  *fsnotify.Watcher
	debounce time.Duration

	// OnReload, when set, is called after every reload attempt.
	OnReload func(Version, error)
}

// NewWatcher watches the directory holding path, so editors that replace
// the file by rename are still seen.
func NewWatcher(path string, snap *Snapshot, log *zap.Logger, debounce time.Duration) (*Watcher, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}
	return &Watcher{
		path:     abs,
		snap:     snap,
		log:      log,
		watcher:  fw,
		debounce: debounce,
	}, nil
}

// Reload parses the file and swaps the snapshot on success.
func (w *Watcher) Reload() (Version, error) {
	lb, err := LoadFile(w.path)
	if err == nil {
		var v Version
		v, err = w.snap.Set(lb, FileSource(w.path))
		if err == nil {
			w.log.Info("lawbook reloaded",
				zap.String("path", w.path),
				zap.String("lawbook_version", v.LawbookVersion),
				zap.String("lawbook_hash", crypto.ShortHash(v.Hash)),
			)
			w.notify(v, nil)
			return v, nil
		}
	}
	w.log.Warn("lawbook reload failed, keeping previous snapshot", zap.String("path", w.path), zap.Error(err))
	w.notify(Version{}, err)
	return Version{}, err
}

// Run processes file events until ctx is done, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path || !relevant(ev.Op) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("lawbook watcher error", zap.Error(err))
		case <-fire:
			fire = nil
			_, _ = w.Reload()
		}
	}
}

// Close stops watching without running the event loop.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

// FileSource is the snapshot version id of a lawbook read from path.
func FileSource(path string) string {
	return "file:" + filepath.Base(path)
}

func relevant(op fsnotify.Op) bool {
	return op.Has(fsnotify.Write) || op.Has(fsnotify.Create) || op.Has(fsnotify.Rename)
}

func (w *Watcher) notify(v Version, err error) {
	if w.OnReload != nil {
		w.OnReload(v, err)
	}
}
