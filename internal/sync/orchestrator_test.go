package sync

import (
	"context"
	gosync "sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/abhishek150-rt/offline-notes-app/internal/db"
	apperrors "github.com/abhishek150-rt/offline-notes-app/internal/errors"
	"github.com/abhishek150-rt/offline-notes-app/internal/models"
	"github.com/abhishek150-rt/offline-notes-app/internal/sync/state"
)

// =====================================================
// Local Mutation Tests
// =====================================================

func TestOrchestrator_Create_offline(t *testing.T) {
	h := newHarness(t, false, nil)
	ctx := context.Background()

	note, err := h.orch.Create(ctx, "A", "")
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if note.ID == "" || note.SyncStatus != models.SyncStatusUnsynced || note.Synced {
		t.Errorf("Create() = %+v", note)
	}
	if got := h.stored(t, note.ID); got.Title != "A" || got.SyncStatus != models.SyncStatusUnsynced {
		t.Errorf("stored = %+v", got)
	}
	if h.orch.State().Find(note.ID) == nil {
		t.Error("created note missing from projection")
	}
	time.Sleep(2 * testDebounce)
	if h.remote.pushCount() != 0 {
		t.Error("offline Create() must not push")
	}
}

func TestOrchestrator_Create_onlinePushesImmediately(t *testing.T) {
	h := newHarness(t, true, nil)

	note, err := h.orch.Create(context.Background(), "A", "body")
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	waitFor(t, "note synced", func() bool {
		n := h.orch.State().Find(note.ID)
		return n != nil && n.SyncStatus == models.SyncStatusSynced
	})
	if got := h.stored(t, note.ID); !got.Synced || got.SyncStatus != models.SyncStatusSynced {
		t.Errorf("stored = %+v, want synced", got)
	}
	if h.remote.pushCount() != 1 {
		t.Errorf("pushes = %d, want 1", h.remote.pushCount())
	}
}

// TestOrchestrator_Create_storeFailure verifies a failed persist is returned
// and leaves the projection untouched.
func TestOrchestrator_Create_storeFailure(t *testing.T) {
	h := newHarness(t, true, func(s db.NoteStore) db.NoteStore {
		return &failingStore{NoteStore: s, failPut: true}
	})

	if _, err := h.orch.Create(context.Background(), "A", ""); err == nil {
		t.Fatal("Create() should fail when the store fails")
	}
	if n := len(h.orch.State().Notes); n != 0 {
		t.Errorf("projection has %d notes, want 0", n)
	}
	if h.remote.pushCount() != 0 {
		t.Error("nothing should be pushed after a failed persist")
	}
}

func TestOrchestrator_Update(t *testing.T) {
	h := newHarness(t, false, nil)
	ctx := context.Background()
	note, _ := h.orch.Create(ctx, "A", "a")

	updated, err := h.orch.Update(ctx, note.ID, NoteUpdate{Body: strPtr("b")})
	if err != nil {
		t.Fatalf("Update() failed: %v", err)
	}
	if updated.Title != "A" || updated.Body != "b" {
		t.Errorf("Update() = %+v", updated)
	}
	if updated.UpdatedAt.Before(note.UpdatedAt) {
		t.Error("UpdatedAt moved backwards")
	}
	if got := h.orch.State().Find(note.ID); got.Body != "b" {
		t.Errorf("projection body = %q, want b", got.Body)
	}

	_, err = h.orch.Update(ctx, "missing", NoteUpdate{Title: strPtr("x")})
	if !apperrors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("Update(missing) error = %v, want NOT_FOUND", err)
	}
}

// TestOrchestrator_Update_monotonicStamp verifies a clock step back does not
// move UpdatedAt backwards.
func TestOrchestrator_Update_monotonicStamp(t *testing.T) {
	h := newHarness(t, false, nil)
	ctx := context.Background()

	clock := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	h.orch.now = func() time.Time { return clock }
	note, _ := h.orch.Create(ctx, "A", "")

	clock = clock.Add(-time.Hour)
	updated, err := h.orch.Update(ctx, note.ID, NoteUpdate{Title: strPtr("B")})
	if err != nil {
		t.Fatal(err)
	}
	if !updated.UpdatedAt.Equal(note.UpdatedAt) {
		t.Errorf("UpdatedAt = %v, want %v", updated.UpdatedAt, note.UpdatedAt)
	}
}

// TestOrchestrator_Update_resetsSynced verifies an edit returns a synced note
// to unsynced.
func TestOrchestrator_Update_resetsSynced(t *testing.T) {
	h := newHarness(t, false, nil)
	ctx := context.Background()
	note, _ := h.orch.Create(ctx, "A", "")

	h.net.Set(true)
	if err := h.orch.SyncOne(ctx, h.stored(t, note.ID)); err != nil {
		t.Fatal(err)
	}
	h.net.Set(false)

	updated, _ := h.orch.Update(ctx, note.ID, NoteUpdate{Title: strPtr("B")})
	if updated.Synced || updated.SyncStatus != models.SyncStatusUnsynced {
		t.Errorf("status = %v/%v, want unsynced", updated.Synced, updated.SyncStatus)
	}
}

// =====================================================
// Debounce Tests
// =====================================================

// TestOrchestrator_debounceCoalescing verifies a burst of edits produces one
// push carrying the last values.
func TestOrchestrator_debounceCoalescing(t *testing.T) {
	h := newHarness(t, false, nil)
	ctx := context.Background()
	note, _ := h.orch.Create(ctx, "A", "")
	h.net.Set(true)

	for _, title := range []string{"one", "two", "three"} {
		if _, err := h.orch.Update(ctx, note.ID, NoteUpdate{Title: strPtr(title), Body: strPtr(title + "!")}); err != nil {
			t.Fatal(err)
		}
	}
	if h.orch.Pending() != 1 {
		t.Errorf("Pending() = %d, want 1", h.orch.Pending())
	}

	waitFor(t, "push", func() bool { return h.remote.pushCount() >= 1 })
	time.Sleep(3 * testDebounce)

	if got := h.remote.pushCount(); got != 1 {
		t.Fatalf("pushes = %d, want exactly 1", got)
	}
	if last := h.remote.lastPush(); last.Title != "three" || last.Body != "three!" {
		t.Errorf("pushed %q/%q, want three/three!", last.Title, last.Body)
	}
	waitFor(t, "synced", func() bool { return h.stored(t, note.ID).Synced })
}

// TestOrchestrator_deleteCancelsPendingSync verifies deleting inside the
// quiet interval means the edit is never pushed.
func TestOrchestrator_deleteCancelsPendingSync(t *testing.T) {
	h := newHarness(t, false, nil)
	ctx := context.Background()
	note, _ := h.orch.Create(ctx, "five", "")
	h.net.Set(true)

	h.orch.Update(ctx, note.ID, NoteUpdate{Title: strPtr("edited")})
	if err := h.orch.Delete(ctx, note.ID); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if h.orch.Pending() != 0 {
		t.Error("Delete() should cancel the pending timer")
	}

	time.Sleep(3 * testDebounce)
	if got := h.remote.pushCount(); got != 0 {
		t.Errorf("pushes = %d, want 0", got)
	}
	all, _ := h.store.GetAll(ctx)
	if len(all) != 0 {
		t.Errorf("GetAll() = %d notes, want 0", len(all))
	}
	if h.orch.State().Find(note.ID) != nil {
		t.Error("deleted note still projected")
	}
	waitFor(t, "remote delete", func() bool { return h.remote.deleteCount() == 1 })
}

func TestOrchestrator_Delete_offlineSkipsRemote(t *testing.T) {
	h := newHarness(t, false, nil)
	ctx := context.Background()
	note, _ := h.orch.Create(ctx, "A", "")

	if err := h.orch.Delete(ctx, note.ID); err != nil {
		t.Fatal(err)
	}
	h.orch.Close()
	if h.remote.deleteCount() != 0 {
		t.Error("offline Delete() must not reach the remote")
	}
}

// TestOrchestrator_timerFiresOffline verifies a timer that fires after the
// connection dropped leaves the note unsynced.
func TestOrchestrator_timerFiresOffline(t *testing.T) {
	h := newHarness(t, false, nil)
	ctx := context.Background()
	note, _ := h.orch.Create(ctx, "A", "")
	h.net.Set(true)
	h.orch.Update(ctx, note.ID, NoteUpdate{Title: strPtr("B")})
	h.net.Set(false)

	waitFor(t, "timer fired", func() bool { return h.orch.Pending() == 0 })
	time.Sleep(testDebounce)
	if h.remote.pushCount() != 0 {
		t.Error("nothing should be pushed while offline")
	}
	if got := h.stored(t, note.ID); got.SyncStatus != models.SyncStatusUnsynced {
		t.Errorf("status = %v, want unsynced", got.SyncStatus)
	}
}

func TestOrchestrator_Flush(t *testing.T) {
	h := newHarness(t, false, nil)
	ctx := context.Background()
	h.orch.debounce = time.Hour
	note, _ := h.orch.Create(ctx, "A", "")
	h.net.Set(true)
	h.orch.Update(ctx, note.ID, NoteUpdate{Title: strPtr("flushed")})

	if err := h.orch.Flush(ctx); err != nil {
		t.Fatalf("Flush() failed: %v", err)
	}
	if h.orch.Pending() != 0 {
		t.Error("Flush() should drain timers")
	}
	if last := h.remote.lastPush(); last == nil || last.Title != "flushed" {
		t.Errorf("last push = %+v, want flushed", last)
	}
	if !h.stored(t, note.ID).Synced {
		t.Error("flushed note should be synced")
	}
}

// =====================================================
// Single-Flight and Race Tests
// =====================================================

// TestOrchestrator_singleFlight verifies a second SyncOne for an id in
// flight makes no remote call.
func TestOrchestrator_singleFlight(t *testing.T) {
	h := newHarness(t, false, nil)
	ctx := context.Background()
	note, _ := h.orch.Create(ctx, "A", "")
	h.net.Set(true)

	h.remote.gate = make(chan struct{})
	h.remote.started = make(chan string, 1)

	var wg gosync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := h.orch.SyncOne(ctx, note); err != nil {
			t.Errorf("first SyncOne() failed: %v", err)
		}
	}()
	<-h.remote.started

	if got := h.orch.State().Find(note.ID).SyncStatus; got != models.SyncStatusSyncing {
		t.Errorf("projected status = %v, want syncing", got)
	}
	if err := h.orch.SyncOne(ctx, note); err != nil {
		t.Errorf("second SyncOne() = %v, want nil", err)
	}
	close(h.remote.gate)
	wg.Wait()

	if got := h.remote.pushCount(); got != 1 {
		t.Errorf("pushes = %d, want 1", got)
	}
	if got := h.stored(t, note.ID); got.SyncStatus != models.SyncStatusSynced {
		t.Errorf("status = %v, want synced", got.SyncStatus)
	}
}

// TestOrchestrator_deleteDuringPush verifies a push result for a note
// deleted meanwhile is discarded.
func TestOrchestrator_deleteDuringPush(t *testing.T) {
	h := newHarness(t, false, nil)
	ctx := context.Background()
	note, _ := h.orch.Create(ctx, "A", "")
	h.net.Set(true)
	h.remote.gate = make(chan struct{})
	h.remote.started = make(chan string, 1)

	done := make(chan error, 1)
	go func() { done <- h.orch.SyncOne(ctx, note) }()
	<-h.remote.started

	if err := h.orch.Delete(ctx, note.ID); err != nil {
		t.Fatal(err)
	}
	close(h.remote.gate)
	if err := <-done; err != nil {
		t.Errorf("SyncOne() = %v, want nil", err)
	}

	if _, err := h.store.Get(ctx, note.ID); !apperrors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("deleted note reappeared: %v", err)
	}
	if h.orch.State().Find(note.ID) != nil {
		t.Error("deleted note reappeared in projection")
	}
}

// TestOrchestrator_editDuringPush verifies a newer edit is not marked synced
// by an older push and is pushed afterwards.
func TestOrchestrator_editDuringPush(t *testing.T) {
	h := newHarness(t, false, nil)
	ctx := context.Background()
	note, _ := h.orch.Create(ctx, "A", "")
	h.net.Set(true)
	h.remote.gate = make(chan struct{})
	h.remote.started = make(chan string, 1)

	done := make(chan error, 1)
	go func() { done <- h.orch.SyncOne(ctx, note) }()
	<-h.remote.started

	if _, err := h.orch.Update(ctx, note.ID, NoteUpdate{Title: strPtr("newer")}); err != nil {
		t.Fatal(err)
	}
	// Release the blocked push; later pushes go straight through.
	h.remote.mu.Lock()
	gate := h.remote.gate
	h.remote.gate = nil
	h.remote.mu.Unlock()
	close(gate)
	<-done

	if got := h.stored(t, note.ID); got.Synced || got.Title != "newer" {
		t.Errorf("after stale push stored = %+v, want unsynced newer", got)
	}
	waitFor(t, "newer revision pushed", func() bool {
		last := h.remote.lastPush()
		return last != nil && last.Title == "newer" && h.stored(t, note.ID).Synced
	})
}

// TestOrchestrator_editDuringPush_sameStamp verifies an edit that gets the
// same stamp as the revision being pushed is still treated as newer.
func TestOrchestrator_editDuringPush_sameStamp(t *testing.T) {
	h := newHarness(t, false, nil)
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	h.orch.now = func() time.Time { return fixed }
	ctx := context.Background()
	note, _ := h.orch.Create(ctx, "A", "")
	h.net.Set(true)
	h.remote.gate = make(chan struct{})
	h.remote.started = make(chan string, 1)

	done := make(chan error, 1)
	go func() { done <- h.orch.SyncOne(ctx, note) }()
	<-h.remote.started

	updated, err := h.orch.Update(ctx, note.ID, NoteUpdate{Title: strPtr("newer")})
	if err != nil {
		t.Fatal(err)
	}
	if !updated.UpdatedAt.Equal(note.UpdatedAt) {
		t.Fatalf("UpdatedAt = %v, want the fixed stamp %v", updated.UpdatedAt, note.UpdatedAt)
	}

	h.remote.mu.Lock()
	gate := h.remote.gate
	h.remote.gate = nil
	h.remote.mu.Unlock()
	close(gate)
	<-done

	if got := h.stored(t, note.ID); got.Synced || got.Title != "newer" {
		t.Errorf("after push stored = %+v, want unsynced newer", got)
	}
	waitFor(t, "edit pushed", func() bool {
		last := h.remote.lastPush()
		return last != nil && last.Title == "newer" && h.stored(t, note.ID).Synced
	})
	if got := h.stored(t, note.ID); got.Title != "newer" {
		t.Errorf("stored title = %q, want newer", got.Title)
	}
}

// TestOrchestrator_deleteWaitsForPush verifies the remote delete is sent
// after a push in flight for the same note, so the note does not survive
// remotely.
func TestOrchestrator_deleteWaitsForPush(t *testing.T) {
	h := newHarness(t, false, nil)
	ctx := context.Background()
	note, _ := h.orch.Create(ctx, "A", "")
	h.net.Set(true)
	h.remote.gate = make(chan struct{})
	h.remote.started = make(chan string, 1)

	done := make(chan error, 1)
	go func() { done <- h.orch.SyncOne(ctx, note) }()
	<-h.remote.started

	if err := h.orch.Delete(ctx, note.ID); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)
	if got := h.remote.deleteCount(); got != 0 {
		t.Fatalf("remote deletes before push returned = %d, want 0", got)
	}

	close(h.remote.gate)
	<-done
	waitFor(t, "remote delete", func() bool { return h.remote.deleteCount() == 1 })

	h.remote.mu.Lock()
	_, exists := h.remote.notes[note.ID]
	h.remote.mu.Unlock()
	if exists {
		t.Error("deleted note still present remotely")
	}
}

// =====================================================
// Failure Tests
// =====================================================

// TestOrchestrator_failureThenRetry verifies a failed push marks the note
// error and the next sweep syncs it.
func TestOrchestrator_failureThenRetry(t *testing.T) {
	h := newHarness(t, false, nil)
	ctx := context.Background()
	note, _ := h.orch.Create(ctx, "A", "")
	h.net.Set(true)
	h.remote.setPushErr(errNetwork)

	err := h.orch.SyncOne(ctx, note)
	if !apperrors.Is(err, apperrors.ErrSyncFailed) {
		t.Errorf("SyncOne() error = %v, want SYNC_FAILED", err)
	}
	if got := h.stored(t, note.ID); got.SyncStatus != models.SyncStatusError || got.Synced {
		t.Errorf("stored = %v/%v, want error", got.SyncStatus, got.Synced)
	}
	if got := h.orch.State().Find(note.ID); got.SyncStatus != models.SyncStatusError {
		t.Errorf("projected = %v, want error", got.SyncStatus)
	}

	h.remote.setPushErr(nil)
	result, err := h.orch.SyncAll(ctx)
	if err != nil {
		t.Fatalf("SyncAll() failed: %v", err)
	}
	if result.Attempted != 1 || result.Synced != 1 {
		t.Errorf("SyncAll() = %+v", result)
	}
	if got := h.stored(t, note.ID); got.SyncStatus != models.SyncStatusSynced || !got.Synced {
		t.Errorf("stored = %v/%v, want synced", got.SyncStatus, got.Synced)
	}
}

// TestOrchestrator_pushTimeout verifies an expired push counts as failure.
func TestOrchestrator_pushTimeout(t *testing.T) {
	h := newHarness(t, false, nil)
	ctx := context.Background()
	h.orch.syncTimeout = 20 * time.Millisecond
	note, _ := h.orch.Create(ctx, "A", "")
	h.net.Set(true)
	h.remote.gate = make(chan struct{})
	h.remote.started = make(chan string, 1)
	defer close(h.remote.gate)

	if err := h.orch.SyncOne(ctx, note); err == nil {
		t.Error("SyncOne() should fail on timeout")
	}
	if got := h.stored(t, note.ID); got.SyncStatus != models.SyncStatusError {
		t.Errorf("status = %v, want error", got.SyncStatus)
	}
}

// =====================================================
// Sweep Tests
// =====================================================

func TestOrchestrator_SyncAll_offline(t *testing.T) {
	h := newHarness(t, false, nil)
	ctx := context.Background()
	h.orch.Create(ctx, "A", "")

	result, err := h.orch.SyncAll(ctx)
	if err != nil || !result.Offline {
		t.Errorf("SyncAll() = %+v, %v; want offline no-op", result, err)
	}
	if h.remote.pushCount() != 0 || h.orch.State().IsSyncing {
		t.Error("offline SyncAll() must do nothing")
	}
}

func TestOrchestrator_SyncAll_skipsSynced(t *testing.T) {
	h := newHarness(t, false, nil)
	ctx := context.Background()
	synced := &models.Note{ID: "done", Title: "x", UpdatedAt: time.Now().UTC()}
	synced.SetStatus(models.SyncStatusSynced)
	h.store.Put(ctx, synced)
	h.orch.Create(ctx, "A", "")
	h.orch.Create(ctx, "B", "")
	h.net.Set(true)

	var sawSyncing bool
	unsubscribe := h.orch.Subscribe(func(s state.State, a state.Action) {
		if s.IsSyncing {
			sawSyncing = true
		}
	})
	defer unsubscribe()

	result, err := h.orch.SyncAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if result.Attempted != 2 || result.Synced != 2 || h.remote.pushCount() != 2 {
		t.Errorf("SyncAll() = %+v, pushes = %d", result, h.remote.pushCount())
	}
	if !sawSyncing || h.orch.State().IsSyncing {
		t.Error("IsSyncing should be set during the sweep and cleared after")
	}
	if len(h.orch.State().Notes) != 3 {
		t.Errorf("projection refreshed with %d notes, want 3", len(h.orch.State().Notes))
	}
	if h.orch.LastSync() == nil {
		t.Error("LastSync() should record the sweep")
	}
}

// TestOrchestrator_SyncAll_clearsFlagOnError verifies IsSyncing is reset
// when the backlog scan fails.
func TestOrchestrator_SyncAll_clearsFlagOnError(t *testing.T) {
	h := newHarness(t, true, func(s db.NoteStore) db.NoteStore {
		return &failingStore{NoteStore: s, failAll: true}
	})

	if _, err := h.orch.SyncAll(context.Background()); err == nil {
		t.Error("SyncAll() should surface the store failure")
	}
	if h.orch.State().IsSyncing {
		t.Error("IsSyncing left set after failure")
	}
}

// TestOrchestrator_offlineCreateThenReconnect covers the create-offline,
// go-online scenario end to end through Run.
func TestOrchestrator_offlineCreateThenReconnect(t *testing.T) {
	h := newHarness(t, false, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := h.orch.Load(ctx); err != nil {
		t.Fatal(err)
	}
	note, err := h.orch.Create(ctx, "A", "")
	if err != nil {
		t.Fatal(err)
	}
	if note.SyncStatus != models.SyncStatusUnsynced {
		t.Fatalf("status = %v, want unsynced", note.SyncStatus)
	}

	runDone := make(chan error, 1)
	go func() { runDone <- h.orch.Run(ctx) }()
	time.Sleep(10 * time.Millisecond)
	h.net.Set(true)

	waitFor(t, "note synced after reconnect", func() bool {
		return h.stored(t, note.ID).Synced
	})
	if got := h.stored(t, note.ID); got.SyncStatus != models.SyncStatusSynced {
		t.Errorf("status = %v, want synced", got.SyncStatus)
	}
	if got := h.remote.pushCount(); got != 1 {
		t.Errorf("pushes = %d, want 1", got)
	}

	cancel()
	<-runDone
}

// TestOrchestrator_Run_reconnectBeforeRun verifies a reconnect between Load
// and the start of Run still syncs the backlog.
func TestOrchestrator_Run_reconnectBeforeRun(t *testing.T) {
	h := newHarness(t, false, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	note, _ := h.orch.Create(ctx, "A", "")
	if err := h.orch.Load(ctx); err != nil {
		t.Fatal(err)
	}
	h.net.Set(true)

	runDone := make(chan error, 1)
	go func() { runDone <- h.orch.Run(ctx) }()

	waitFor(t, "note synced after reconnect", func() bool {
		return h.stored(t, note.ID).Synced
	})
	if got := h.remote.pushCount(); got != 1 {
		t.Errorf("pushes = %d, want 1", got)
	}

	cancel()
	<-runDone
}

// TestOrchestrator_Watch_singleSweep verifies a reconnect during or right
// after Load triggers exactly one sweep when the subscription precedes Load.
func TestOrchestrator_Watch_singleSweep(t *testing.T) {
	h := newHarness(t, false, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var sweeps atomic.Int32
	unsubscribe := h.orch.Subscribe(func(_ state.State, a state.Action) {
		if a.Type == state.ActionSetSyncing && a.Flag {
			sweeps.Add(1)
		}
	})
	defer unsubscribe()

	note, _ := h.orch.Create(ctx, "A", "")
	run, stop := h.orch.Watch()
	defer stop()
	if err := h.orch.Load(ctx); err != nil {
		t.Fatal(err)
	}
	h.net.Set(true)

	runDone := make(chan error, 1)
	go func() { runDone <- run(ctx) }()

	waitFor(t, "note synced after reconnect", func() bool {
		return h.stored(t, note.ID).Synced
	})
	time.Sleep(50 * time.Millisecond)
	if got := sweeps.Load(); got != 1 {
		t.Errorf("sweeps = %d, want 1", got)
	}

	cancel()
	<-runDone
}

func TestOrchestrator_Run_ignoresTransitionsBeforeLoad(t *testing.T) {
	h := newHarness(t, false, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.orch.Create(ctx, "A", "")

	go h.orch.Run(ctx)
	time.Sleep(10 * time.Millisecond)
	h.net.Set(true)
	time.Sleep(50 * time.Millisecond)

	if h.remote.pushCount() != 0 {
		t.Error("Run() must not sweep before Load()")
	}
}

// =====================================================
// Load Tests
// =====================================================

func TestOrchestrator_Load_merges(t *testing.T) {
	h := newHarness(t, true, nil)
	ctx := context.Background()
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	offline := &models.Note{ID: "edited-offline", Title: "local", UpdatedAt: t0}
	offline.SetStatus(models.SyncStatusUnsynced)
	stale := &models.Note{ID: "stale", Title: "old", UpdatedAt: t0}
	stale.SetStatus(models.SyncStatusSynced)
	h.store.Put(ctx, offline)
	h.store.Put(ctx, stale)

	h.remote.notes["edited-offline"] = &models.Note{ID: "edited-offline", Title: "remote", UpdatedAt: t0.Add(time.Hour)}
	h.remote.notes["stale"] = &models.Note{ID: "stale", Title: "fresh", UpdatedAt: t0.Add(time.Hour)}
	h.remote.notes["new"] = &models.Note{ID: "new", Title: "from server", UpdatedAt: t0}

	if err := h.orch.Load(ctx); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	s := h.orch.State()
	if len(s.Notes) != 3 || s.IsLoading {
		t.Fatalf("state = %d notes, loading %v", len(s.Notes), s.IsLoading)
	}
	if n := s.Find("edited-offline"); n.Title != "local" || n.Synced {
		t.Errorf("offline edit clobbered: %+v", n)
	}
	if n := h.stored(t, "stale"); n.Title != "fresh" || !n.Synced {
		t.Errorf("stale = %+v, want fresh synced", n)
	}
	if n := h.stored(t, "new"); !n.Synced {
		t.Errorf("new = %+v, want persisted synced", n)
	}
	if !h.orch.Loaded() {
		t.Error("Loaded() = false after Load()")
	}
}

func TestOrchestrator_Load_remoteFailureKeepsLocal(t *testing.T) {
	h := newHarness(t, true, nil)
	ctx := context.Background()
	n := &models.Note{ID: "local", Title: "x", UpdatedAt: time.Now().UTC()}
	h.store.Put(ctx, n)
	h.remote.fetchErr = errNetwork

	if err := h.orch.Load(ctx); err != nil {
		t.Fatalf("Load() should tolerate remote failure, got %v", err)
	}
	if h.orch.State().Find("local") == nil {
		t.Error("local note missing after failed fetch")
	}
}

func TestOrchestrator_Status(t *testing.T) {
	h := newHarness(t, false, nil)
	ctx := context.Background()
	h.orch.Load(ctx)
	h.orch.Create(ctx, "A", "")

	st := h.orch.Status()
	if st.Online || !st.Loaded || st.Notes != 1 || st.Unsynced != 1 {
		t.Errorf("Status() = %+v", st)
	}
}

func TestOrchestrator_Close(t *testing.T) {
	h := newHarness(t, false, nil)
	ctx := context.Background()
	note, _ := h.orch.Create(ctx, "A", "")
	h.net.Set(true)
	h.orch.Update(ctx, note.ID, NoteUpdate{Title: strPtr("B")})

	if err := h.orch.Close(); err != nil {
		t.Fatal(err)
	}
	if h.orch.Pending() != 0 {
		t.Error("Close() should stop timers")
	}
	h.orch.ScheduleSync(note)
	if h.orch.Pending() != 0 {
		t.Error("ScheduleSync() after Close() should do nothing")
	}
	time.Sleep(2 * testDebounce)
	if h.remote.pushCount() != 0 {
		t.Error("no pushes after Close()")
	}
}
