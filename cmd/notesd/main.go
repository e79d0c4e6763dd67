// Package main runs the notes REST API that desktop and CLI clients sync
// against.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/abhishek150-rt/offline-notes-app/internal/config"
	"github.com/abhishek150-rt/offline-notes-app/internal/server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "notesd:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := pflag.NewFlagSet("notesd", pflag.ContinueOnError)
	configFile := flags.String("config", "", "config file (default: search ./ and the data dir for notes.yaml)")
	flags.String("server-addr", "", "listen address")
	flags.String("server-backend", "", "storage backend: sqlite or postgres")
	flags.String("postgres-dsn", "", "PostgreSQL connection string")
	flags.String("data-dir", "", "directory for the sqlite backend")
	flags.String("log-level", "", "debug, info, warn or error")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(config.Options{
		ConfigFile: *configFile,
		ConfigDirs: []string{".", config.DefaultDataDir()},
		Flags:      flags,
	})
	if err != nil {
		return err
	}
	logger, closeLog, err := cfg.Logger()
	if err != nil {
		return err
	}
	defer closeLog()
	logger = logger.With(map[string]interface{}{"service": "notesd"})

	backend, err := openBackend(cfg)
	if err != nil {
		return err
	}
	defer backend.Close()

	srv := &http.Server{
		Addr: cfg.ServerAddr,
		Handler: server.NewServerWithConfig(backend, server.Config{
			Token:  cfg.RemoteToken,
			Logger: logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Notes API listening", map[string]interface{}{
			"addr":    cfg.ServerAddr,
			"backend": cfg.ServerBackend,
		})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openBackend(cfg *config.Config) (server.Backend, error) {
	switch cfg.ServerBackend {
	case config.BackendPostgres:
		return server.NewPostgresBackend(cfg.PostgresDSN)
	default:
		return server.NewSQLiteBackend(filepath.Join(cfg.DataDir, "server"))
	}
}
