// Package main runs the desktop daemon: the local sync engine behind a REST
// API and a WebSocket event stream on localhost.
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

	"github.com/spf13/pflag"

	"github.com/abhishek150-rt/offline-notes-app/cmd/desktop/handlers"
	"github.com/abhishek150-rt/offline-notes-app/internal/app"
	"github.com/abhishek150-rt/offline-notes-app/internal/config"
	"github.com/abhishek150-rt/offline-notes-app/internal/sync"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "notes-desktop:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := pflag.NewFlagSet("notes-desktop", pflag.ContinueOnError)
	configFile := flags.String("config", "", "config file (default: search ./ and the data dir for notes.yaml)")
	offline := flags.Bool("offline", false, "never contact the remote")
	flags.String("data-dir", "", "directory holding notes.db")
	flags.String("listen-addr", "", "address of the local API")
	flags.String("remote-url", "", "notes API base URL")
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
	logger = logger.With(map[string]interface{}{"service": "desktop"})

	a, err := app.Open(cfg, app.Options{Offline: *offline, Watch: true, Logger: logger})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := NewWSHub(logger)
	detach := hub.Attach(a.Engine)

	if err := a.Start(ctx); err != nil {
		detach()
		hub.Close()
		a.Shutdown(context.Background())
		return err
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           newRouter(a.Engine, hub),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("Desktop API listening", map[string]interface{}{
			"addr":   cfg.ListenAddr,
			"remote": cfg.RemoteURL,
			"online": a.Network.Online(),
		})
		errCh <- srv.ListenAndServe()
	}()

	var serveErr error
	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = err
		}
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", map[string]interface{}{"error": err.Error()})
	}
	detach()
	hub.Close()
	if err := a.Shutdown(shutdownCtx); err != nil {
		return errors.Join(serveErr, err)
	}
	return serveErr
}

// newRouter registers the daemon routes.
func newRouter(engine sync.Engine, hub *WSHub) *http.ServeMux {
	notes := handlers.NewNotesHandler(engine)
	syncHandler := handlers.NewSyncHandler(engine)
	syncHandler.SetWebSocketHub(hub)

	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"ok","service":"offline-notes-desktop","online":%t}`, engine.Status().Online)
	})

	// Note routes
	mux.HandleFunc("GET /api/notes", notes.ListNotes)
	mux.HandleFunc("POST /api/notes", notes.CreateNote)
	mux.HandleFunc("GET /api/notes/{id}", notes.GetNote)
	mux.HandleFunc("PUT /api/notes/{id}", notes.UpdateNote)
	mux.HandleFunc("DELETE /api/notes/{id}", notes.DeleteNote)

	// Sync routes
	mux.HandleFunc("POST /api/sync", syncHandler.TriggerSync)
	mux.HandleFunc("GET /api/sync/status", syncHandler.GetStatus)

	// WebSocket route
	mux.HandleFunc("GET /ws", HandleWebSocket(hub))

	return mux
}
