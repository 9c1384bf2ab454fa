package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/davidahmann/lawgate/internal/api"
	"github.com/davidahmann/lawgate/internal/auth"
	"github.com/davidahmann/lawgate/internal/config"
	"github.com/davidahmann/lawgate/internal/drafts"
	"github.com/davidahmann/lawgate/internal/lawbook"
	"github.com/davidahmann/lawgate/internal/ledger"
	"github.com/davidahmann/lawgate/internal/ledger/pgstore"
	"github.com/davidahmann/lawgate/internal/ledger/sqlstore"
	"github.com/davidahmann/lawgate/internal/runs"
)

type server struct {
	HTTP *http.Server

	// background tasks run alongside HTTP until the serve context ends.
	background []func(context.Context) error
	closers    []io.Closer
}

func (s *server) Close() error {
	var first error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func newServer(cfg config.Config, log *zap.Logger) (*server, error) {
	srv := &server{}
	ok := false
	defer func() {
		if !ok {
			_ = srv.Close()
		}
	}()

	store, closer, err := openStore(cfg.DB)
	if err != nil {
		return nil, err
	}
	if closer != nil {
		srv.closers = append(srv.closers, closer)
	}

	lawbooks := lawbook.NewService(store, log)
	h := &api.Handler{
		Lawbooks: lawbooks,
		Drafts:   drafts.NewService(store, log),
		Log:      log,
	}
	var provider lawbook.Provider = lawbooks

	if cfg.Lawbook.Path != "" {
		snap, err := loadSnapshot(srv, cfg.Lawbook, log)
		if err != nil {
			return nil, err
		}
		provider = snap
		h.Lawbooks = nil
		h.Provider = snap
	}
	h.Runs = runs.NewService(store, provider, log)

	authn, err := auth.New(auth.Options{
		Mode:          cfg.Auth.Mode,
		JWTSecret:     cfg.Auth.JWTSecret,
		JWTIssuer:     cfg.Auth.JWTIssuer,
		TrustedHeader: cfg.Auth.TrustedHeader,
		DevToken:      cfg.Auth.DevToken,
	})
	if err != nil {
		return nil, err
	}

	var limiter *api.RateLimiter
	if cfg.Limits.RequestsPerSecond > 0 {
		limiter = api.NewRateLimiter(cfg.Limits.RequestsPerSecond, cfg.Limits.Burst)
	}

	srv.HTTP = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.NewRouter(h, authn, limiter),
		ReadHeaderTimeout: 5 * time.Second,
	}
	ok = true
	return srv, nil
}

func openStore(cfg config.DBConfig) (ledger.Store, io.Closer, error) {
	switch cfg.Driver {
	case "":
		return ledger.NewInMemoryStore(), nil, nil
	case string(ledger.DBSQLite):
		s, err := sqlstore.OpenSQLite(cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		if err := ledger.Migrate(s.DB(), ledger.DBSQLite); err != nil {
			_ = s.Close()
			return nil, nil, fmt.Errorf("migrate sqlite: %w", err)
		}
		return s, s, nil
	case string(ledger.DBPostgres):
		s, err := pgstore.OpenPostgres(cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := ledger.Migrate(s.DB(), ledger.DBPostgres); err != nil {
			_ = s.Close()
			return nil, nil, fmt.Errorf("migrate postgres: %w", err)
		}
		return s, s, nil
	}
	return nil, nil, fmt.Errorf("unsupported db driver %q", cfg.Driver)
}

// loadSnapshot reads the lawbook file once and, in watch mode, registers a
// background task that keeps the snapshot in sync.
func loadSnapshot(srv *server, cfg config.LawbookConfig, log *zap.Logger) (*lawbook.Snapshot, error) {
	snap := &lawbook.Snapshot{}
	if !cfg.Watch {
		lb, err := lawbook.LoadFile(cfg.Path)
		if err != nil {
			return nil, err
		}
		if _, err := snap.Set(lb, lawbook.FileSource(cfg.Path)); err != nil {
			return nil, err
		}
		return snap, nil
	}

	w, err := lawbook.NewWatcher(cfg.Path, snap, log, lawbook.DefaultDebounce)
	if err != nil {
		return nil, err
	}
	if _, err := w.Reload(); err != nil {
		_ = w.Close()
		return nil, err
	}
	srv.closers = append(srv.closers, w)
	srv.background = append(srv.background, w.Run)
	return snap, nil
}
