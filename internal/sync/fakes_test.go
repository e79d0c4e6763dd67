package sync

import (
	"context"
	"database/sql"
	"errors"
	"io"
	gosync "sync"
	"testing"
	"time"

	"github.com/abhishek150-rt/offline-notes-app/internal/db"
	"github.com/abhishek150-rt/offline-notes-app/internal/logging"
	"github.com/abhishek150-rt/offline-notes-app/internal/models"
	"github.com/abhishek150-rt/offline-notes-app/internal/sync/connectivity"
)

var errNetwork = errors.New("network unreachable")

// fakeRemote is an in-memory remote.Service.
type fakeRemote struct {
	mu       gosync.Mutex
	notes    map[string]*models.Note
	pushes   []*models.Note
	deletes  []string
	fetchErr error
	pushErr  error

	// When gate is set, CreateOrUpdate signals started and waits for gate
	// (or ctx) before answering.
	gate    chan struct{}
	started chan string
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{notes: make(map[string]*models.Note)}
}

func (f *fakeRemote) FetchAll(ctx context.Context) ([]*models.Note, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	out := make([]*models.Note, 0, len(f.notes))
	for _, n := range f.notes {
		out = append(out, n.Clone())
	}
	return out, nil
}

func (f *fakeRemote) CreateOrUpdate(ctx context.Context, note *models.Note) (*models.Note, error) {
	f.mu.Lock()
	gate, started := f.gate, f.started
	f.pushes = append(f.pushes, note.Clone())
	f.mu.Unlock()

	if gate != nil {
		if started != nil {
			started <- note.ID
		}
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pushErr != nil {
		return nil, f.pushErr
	}
	stored := &models.Note{ID: note.ID, Title: note.Title, Body: note.Body, UpdatedAt: note.UpdatedAt}
	f.notes[note.ID] = stored
	return stored.Clone(), nil
}

func (f *fakeRemote) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, id)
	delete(f.notes, id)
	return nil
}

func (f *fakeRemote) setPushErr(err error) {
	f.mu.Lock()
	f.pushErr = err
	f.mu.Unlock()
}

func (f *fakeRemote) pushCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pushes)
}

func (f *fakeRemote) lastPush() *models.Note {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pushes) == 0 {
		return nil
	}
	return f.pushes[len(f.pushes)-1]
}

func (f *fakeRemote) deleteCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.deletes)
}

// failingStore wraps a NoteStore and fails writes on demand.
type failingStore struct {
	db.NoteStore
	mu      gosync.Mutex
	failPut bool
	failAll bool
}

func (s *failingStore) Put(ctx context.Context, n *models.Note) (*models.Note, error) {
	s.mu.Lock()
	fail := s.failPut
	s.mu.Unlock()
	if fail {
		return nil, errors.New("disk full")
	}
	return s.NoteStore.Put(ctx, n)
}

func (s *failingStore) GetUnsynced(ctx context.Context) ([]*models.Note, error) {
	s.mu.Lock()
	fail := s.failAll
	s.mu.Unlock()
	if fail {
		return nil, errors.New("corrupt")
	}
	return s.NoteStore.GetUnsynced(ctx)
}

type harness struct {
	orch   *Orchestrator
	store  *db.NoteRepository
	remote *fakeRemote
	net    *connectivity.Switch
}

const testDebounce = 40 * time.Millisecond

func newHarness(t *testing.T, online bool, wrap func(db.NoteStore) db.NoteStore) *harness {
	t.Helper()
	conn, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	conn.SetMaxOpenConns(1)
	if err := db.Migrate(conn); err != nil {
		t.Fatalf("Migrate() failed: %v", err)
	}
	logger := logging.New(io.Discard, logging.LevelError)
	repo := db.NewNoteRepository(conn)
	repo.SetLogger(logger)

	var store db.NoteStore = repo
	if wrap != nil {
		store = wrap(repo)
	}

	h := &harness{
		store:  repo,
		remote: newFakeRemote(),
		net:    connectivity.NewSwitch(online),
	}
	h.orch = NewOrchestrator(store, h.remote, h.net, Options{
		Debounce:    testDebounce,
		SyncTimeout: time.Second,
		Logger:      logger,
	})
	t.Cleanup(func() {
		h.orch.Close()
		repo.Close()
		conn.Close()
	})
	return h
}

func (h *harness) stored(t *testing.T, id string) *models.Note {
	t.Helper()
	n, err := h.store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("store.Get(%s) failed: %v", id, err)
	}
	return n
}

// waitFor polls cond until it holds or a second passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func strPtr(s string) *string { return &s }
