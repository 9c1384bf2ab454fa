package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/davidahmann/lawgate/internal/config"
	"github.com/davidahmann/lawgate/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd(listenAndServe).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// serveFn runs srv until ctx is done.
type serveFn func(ctx context.Context, srv *http.Server) error

func newRootCmd(serve serveFn) *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:           "lawgate",
		Short:         "Lawbook guardrail gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if configPath == "" {
				configPath = os.Getenv("LAWGATE_CONFIG_PATH")
			}
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, serve)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to lawgate config file")
	return cmd
}

func loadConfig(path string) (config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	cfg := config.Default()
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return config.Config{}, err
	}
	return cfg, cfg.Validate()
}

func run(ctx context.Context, cfg config.Config, serve serveFn) error {
	log, err := logging.New(cfg.Log.Level, cfg.Log.JSON)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	srv, err := newServer(cfg, log)
	if err != nil {
		return err
	}
	defer srv.Close()

	log.Info("lawgate listening",
		zap.String("addr", cfg.ListenAddr),
		zap.String("db_driver", cfg.DB.Driver),
		zap.String("lawbook_path", cfg.Lawbook.Path),
	)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)
	for _, task := range srv.background {
		g.Go(func() error { return task(gctx) })
	}
	g.Go(func() error {
		// Background tasks stop once the server does.
		defer cancel()
		if err := serve(gctx, srv.HTTP); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	return g.Wait()
}

func listenAndServe(ctx context.Context, srv *http.Server) error {
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
