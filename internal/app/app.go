// Package app wires the local store, the remote client, connectivity and
// the sync orchestrator into one unit that the binaries open and shut down.
package app

import (
	"context"
	"errors"

	"github.com/abhishek150-rt/offline-notes-app/internal/config"
	"github.com/abhishek150-rt/offline-notes-app/internal/db"
	"github.com/abhishek150-rt/offline-notes-app/internal/logging"
	notesync "github.com/abhishek150-rt/offline-notes-app/internal/sync"
	"github.com/abhishek150-rt/offline-notes-app/internal/sync/connectivity"
	"github.com/abhishek150-rt/offline-notes-app/internal/sync/remote"
)

// Options selects how connectivity is observed.
type Options struct {
	// Offline pins the engine offline; nothing is pushed or fetched.
	Offline bool
	// Watch keeps probing the remote in the background. Without it the
	// remote is probed once at Start.
	Watch  bool
	Logger *logging.Logger
}

// App holds the wired engine and the resources behind it.
type App struct {
	Config  *config.Config
	Logger  *logging.Logger
	DB      *db.DB
	Store   *db.NoteRepository
	Remote  *remote.HTTPClient
	Network connectivity.Observer
	Engine  *notesync.Orchestrator

	prober  *connectivity.Prober
	watch   bool
	cancel  context.CancelFunc
	runDone chan struct{}
}

// Open opens the store in cfg.DataDir and builds the engine. Nothing talks
// to the network until Start.
func Open(cfg *config.Config, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Get()
	}

	database, err := db.Open(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	store := db.NewNoteRepository(database.DB)
	store.SetLogger(logger.With(map[string]interface{}{"component": "store"}))

	client := remote.NewHTTPClient(cfg.RemoteURL, cfg.RemoteToken, nil)
	client.SetLogger(logger.With(map[string]interface{}{"component": "remote"}))

	a := &App{
		Config: cfg,
		Logger: logger,
		DB:     database,
		Store:  store,
		Remote: client,
		watch:  opts.Watch,
	}
	if opts.Offline {
		a.Network = connectivity.NewSwitch(false)
	} else {
		a.prober = connectivity.NewProber(client, &connectivity.ProberConfig{
			Interval: cfg.ProbeInterval,
			Logger:   logger,
		})
		a.Network = a.prober
	}

	a.Engine = notesync.NewOrchestrator(store, client, a.Network, notesync.Options{
		Debounce:    cfg.Debounce,
		SyncTimeout: cfg.SyncTimeout,
		Logger:      logger,
	})
	return a, nil
}

// Start probes the remote, loads the notes and, when watching, starts
// reacting to reconnects.
func (a *App) Start(ctx context.Context) error {
	if a.prober != nil {
		if a.watch {
			a.prober.Start(ctx)
		} else {
			a.prober.Probe(ctx)
		}
	}
	var run func(context.Context) error
	stop := func() {}
	if a.watch {
		// Subscribe before loading so a reconnect right after Load is seen.
		run, stop = a.Engine.Watch()
	}
	if err := a.Engine.Load(ctx); err != nil {
		stop()
		return err
	}
	if run != nil {
		runCtx, cancel := context.WithCancel(ctx)
		a.cancel = cancel
		a.runDone = make(chan struct{})
		go func() {
			defer close(a.runDone)
			run(runCtx)
		}()
	}
	return nil
}

// Shutdown stops watching, pushes pending edits and releases the store. A
// push failure does not prevent the store from being closed; the notes stay
// unsynced for the next run.
func (a *App) Shutdown(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
		<-a.runDone
	}
	if a.prober != nil {
		a.prober.Stop()
	}

	var errs []error
	if err := a.Engine.Flush(ctx); err != nil {
		a.Logger.Warn("Pending notes not synced before shutdown", map[string]interface{}{"error": err.Error()})
	}
	if err := a.Engine.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := a.Store.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := a.DB.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
