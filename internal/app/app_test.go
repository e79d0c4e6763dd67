package app

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/abhishek150-rt/offline-notes-app/internal/config"
	"github.com/abhishek150-rt/offline-notes-app/internal/logging"
	"github.com/abhishek150-rt/offline-notes-app/internal/models"
	"github.com/abhishek150-rt/offline-notes-app/internal/server"
	notesync "github.com/abhishek150-rt/offline-notes-app/internal/sync"
)

func newRemote(t *testing.T) (*httptest.Server, *server.SQLiteBackend) {
	t.Helper()
	backend, err := server.NewSQLiteBackend(t.TempDir())
	if err != nil {
		t.Fatalf("NewSQLiteBackend() error = %v", err)
	}
	t.Cleanup(func() { backend.Close() })
	ts := httptest.NewServer(server.NewServerWithConfig(backend, server.Config{
		Logger: logging.New(io.Discard, logging.LevelError),
	}))
	t.Cleanup(ts.Close)
	return ts, backend
}

func testConfig(dataDir, remoteURL string) *config.Config {
	return &config.Config{
		DataDir:       dataDir,
		RemoteURL:     remoteURL,
		Debounce:      20 * time.Millisecond,
		SyncTimeout:   time.Second,
		ProbeInterval: time.Hour,
		LogLevel:      "error",
		ServerBackend: config.BackendSQLite,
	}
}

func open(t *testing.T, cfg *config.Config, opts Options) *App {
	t.Helper()
	opts.Logger = logging.New(io.Discard, logging.LevelError)
	a, err := Open(cfg, opts)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return a
}

func TestApp_createPushesOnShutdown(t *testing.T) {
	ts, backend := newRemote(t)
	cfg := testConfig(t.TempDir(), ts.URL)
	ctx := context.Background()

	a := open(t, cfg, Options{})
	if !a.Network.Online() {
		t.Fatal("remote should be reachable")
	}
	note, err := a.Engine.Create(ctx, "T", "B")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	waitForStatus(t, a, note.ID, models.SyncStatusSynced)
	if _, err := a.Engine.Update(ctx, note.ID, notesUpdate("B2")); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if err := a.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	got, err := backend.Get(ctx, note.ID)
	if err != nil {
		t.Fatalf("remote Get() error = %v", err)
	}
	if got.Body != "B2" {
		t.Errorf("remote body = %q, want the flushed edit", got.Body)
	}
}

func TestApp_offlineThenOnline(t *testing.T) {
	ts, backend := newRemote(t)
	cfg := testConfig(t.TempDir(), ts.URL)
	ctx := context.Background()

	offline := open(t, cfg, Options{Offline: true})
	note, err := offline.Engine.Create(ctx, "draft", "")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := offline.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if _, err := backend.Get(ctx, note.ID); err == nil {
		t.Fatal("offline create should not reach the remote")
	}

	online := open(t, cfg, Options{})
	defer online.Shutdown(ctx)

	stored, err := online.Engine.Get(ctx, note.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if stored.SyncStatus != models.SyncStatusUnsynced {
		t.Errorf("status = %q, want unsynced after offline run", stored.SyncStatus)
	}

	result, err := online.Engine.SyncAll(ctx)
	if err != nil {
		t.Fatalf("SyncAll() error = %v", err)
	}
	if result.Synced != 1 {
		t.Errorf("SyncAll() = %s, want 1 synced", result)
	}
	if _, err := backend.Get(ctx, note.ID); err != nil {
		t.Errorf("remote should have the note after SyncAll: %v", err)
	}
}

func TestApp_loadPullsRemote(t *testing.T) {
	ts, backend := newRemote(t)
	ctx := context.Background()
	if _, err := backend.Upsert(ctx, &models.Note{ID: "r1", Title: "from server", UpdatedAt: time.Now()}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	a := open(t, testConfig(t.TempDir(), ts.URL), Options{})
	defer a.Shutdown(ctx)

	n := a.Engine.State().Find("r1")
	if n == nil || n.SyncStatus != models.SyncStatusSynced {
		t.Fatalf("projection r1 = %+v, want synced remote note", n)
	}
	if _, err := a.Store.Get(ctx, "r1"); err != nil {
		t.Errorf("remote note should be persisted locally: %v", err)
	}
}

func TestApp_unreachableRemote(t *testing.T) {
	ts, _ := newRemote(t)
	url := ts.URL
	ts.Close()

	a := open(t, testConfig(t.TempDir(), url), Options{Watch: true})
	if a.Network.Online() {
		t.Error("closed remote should probe offline")
	}
	if _, err := a.Engine.Create(context.Background(), "x", ""); err != nil {
		t.Fatalf("Create() offline error = %v", err)
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func notesUpdate(body string) notesync.NoteUpdate {
	return notesync.NoteUpdate{Body: &body}
}

func waitForStatus(t *testing.T, a *App, id string, want models.SyncStatus) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if n := a.Engine.State().Find(id); n != nil && n.SyncStatus == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("note %s never reached status %s", id, want)
}
