// Package sync keeps the local note store and the remote copy converging.
//
// All mutations go through the Orchestrator: it persists locally first,
// updates the in-memory projection and, while online, pushes the change to
// the remote after a quiet interval. At most one push per note is in flight.
package sync

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"time"

	"github.com/abhishek150-rt/offline-notes-app/internal/db"
	apperrors "github.com/abhishek150-rt/offline-notes-app/internal/errors"
	"github.com/abhishek150-rt/offline-notes-app/internal/logging"
	"github.com/abhishek150-rt/offline-notes-app/internal/models"
	"github.com/abhishek150-rt/offline-notes-app/internal/sync/conflict"
	"github.com/abhishek150-rt/offline-notes-app/internal/sync/connectivity"
	"github.com/abhishek150-rt/offline-notes-app/internal/sync/remote"
	"github.com/abhishek150-rt/offline-notes-app/internal/sync/state"
	"github.com/abhishek150-rt/offline-notes-app/internal/uuid"
)

const (
	DefaultDebounce    = 500 * time.Millisecond
	DefaultSyncTimeout = 10 * time.Second
)

// Options configures an Orchestrator. Zero values select the defaults.
type Options struct {
	Debounce    time.Duration
	SyncTimeout time.Duration
	Logger      *logging.Logger
	Clock       func() time.Time
}

// NoteUpdate carries the fields to change. Nil fields are left as they are.
type NoteUpdate struct {
	Title *string
	Body  *string
}

// SyncResult represents the result of a full sync sweep.
type SyncResult struct {
	StartTime time.Time     `json:"startTime"`
	EndTime   time.Time     `json:"endTime"`
	Duration  time.Duration `json:"duration"`
	Attempted int           `json:"attempted"`
	Synced    int           `json:"synced"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
	Offline   bool          `json:"offline"`
}

// outcome is what happened to a single push.
type outcome int

const (
	outcomeSynced outcome = iota
	outcomeFailed
	outcomeSkipped   // another push for the id was in flight
	outcomeDiscarded // the note was deleted while the push ran
	outcomeStale     // a newer local edit landed while the push ran
)

// Orchestrator owns per-note sync state. It is safe for concurrent use.
type Orchestrator struct {
	store    db.NoteStore
	remote   remote.Service
	net      connectivity.Observer
	state    *state.Store
	resolver *conflict.Resolver
	logger   *logging.Logger
	now      func() time.Time

	debounce    time.Duration
	syncTimeout time.Duration

	// writeMu serializes read-modify-write sequences on the store together
	// with the projection update that follows them.
	writeMu gosync.Mutex

	mu           gosync.Mutex
	inflight     map[string]chan struct{} // closed when the push ends
	deleting     map[string]struct{}      // remote delete pending
	timers       map[string]*time.Timer
	loaded       bool
	loadedOnline bool
	sweeping     bool
	closed       bool
	lastSync     *SyncResult

	bg     gosync.WaitGroup
	bgCtx  context.Context
	cancel context.CancelFunc
}

// NewOrchestrator wires an Orchestrator to its collaborators.
func NewOrchestrator(store db.NoteStore, svc remote.Service, net connectivity.Observer, opts Options) *Orchestrator {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.SyncTimeout <= 0 {
		opts.SyncTimeout = DefaultSyncTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logging.Get()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	logger := opts.Logger.With(map[string]interface{}{"component": "sync"})

	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		store:       store,
		remote:      svc,
		net:         net,
		state:       state.NewStore(),
		resolver:    conflict.NewResolver(logger),
		logger:      logger,
		now:         opts.Clock,
		debounce:    opts.Debounce,
		syncTimeout: opts.SyncTimeout,
		inflight:    make(map[string]chan struct{}),
		deleting:    make(map[string]struct{}),
		timers:      make(map[string]*time.Timer),
		bgCtx:       ctx,
		cancel:      cancel,
	}
}

// =====================================================
// Projection Access
// =====================================================

// State returns the current projection.
func (o *Orchestrator) State() state.State {
	return o.state.Snapshot()
}

// Subscribe registers a listener for projection changes. Listeners run
// synchronously and must not call back into the Orchestrator's mutating
// methods.
func (o *Orchestrator) Subscribe(l state.Listener) func() {
	return o.state.Subscribe(l)
}

// Online reports the connectivity signal.
func (o *Orchestrator) Online() bool {
	return o.net.Online()
}

// =====================================================
// Loading
// =====================================================

// Load fills the projection from the local store and, when online, merges
// in the remote copy. A failed remote fetch leaves the local state in place.
func (o *Orchestrator) Load(ctx context.Context) error {
	o.state.Dispatch(state.SetLoading(true))
	defer o.state.Dispatch(state.SetLoading(false))

	all, err := o.store.GetAll(ctx)
	if err != nil {
		return err
	}
	local := conflict.Deduplicate(all)
	o.state.Dispatch(state.ReplaceAll(local))

	online := o.net.Online()
	if online {
		if err := o.pullRemote(ctx, local); err != nil {
			o.logger.Warn("Remote fetch failed, continuing with local notes",
				map[string]interface{}{"error": err.Error()})
		}
	}

	o.mu.Lock()
	o.loaded = true
	o.loadedOnline = online
	o.mu.Unlock()

	o.logger.Info("Notes loaded", map[string]interface{}{
		"count":  len(o.state.Snapshot().Notes),
		"online": o.net.Online(),
	})
	return nil
}

func (o *Orchestrator) pullRemote(ctx context.Context, local []*models.Note) error {
	fetchCtx, cancel := context.WithTimeout(ctx, o.syncTimeout)
	remoteNotes, err := o.remote.FetchAll(fetchCtx)
	cancel()
	if err != nil {
		return apperrors.Wrap(apperrors.ErrSyncFailed, "fetch remote notes", err)
	}

	report := o.resolver.Merge(local, remoteNotes)

	o.writeMu.Lock()
	defer o.writeMu.Unlock()
	for _, n := range report.Notes {
		switch report.Decisions[n.ID] {
		case conflict.DecisionRemoteAdded, conflict.DecisionRemoteNewer:
			if _, err := o.store.Put(ctx, n); err != nil {
				return err
			}
		}
	}
	o.state.Dispatch(state.ReplaceAll(report.Notes))
	return nil
}

// Loaded reports whether Load has completed.
func (o *Orchestrator) Loaded() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.loaded
}

// =====================================================
// Local Mutations
// =====================================================

// Get returns the stored note with id.
func (o *Orchestrator) Get(ctx context.Context, id string) (*models.Note, error) {
	return o.store.Get(ctx, id)
}

// Create stores a new unsynced note and, when online, pushes it right away.
// A store failure is returned and leaves the projection untouched.
func (o *Orchestrator) Create(ctx context.Context, title, body string) (*models.Note, error) {
	note := &models.Note{
		ID:        uuid.New(),
		Title:     title,
		Body:      body,
		UpdatedAt: o.now().UTC(),
	}
	note.SetStatus(models.SyncStatusUnsynced)

	o.writeMu.Lock()
	stored, err := o.store.Put(ctx, note)
	if err != nil {
		o.writeMu.Unlock()
		return nil, err
	}
	o.state.Dispatch(state.AddOrReplace(stored))
	o.writeMu.Unlock()

	if o.net.Online() {
		o.goSync(stored)
	}
	return stored.Clone(), nil
}

// Update applies upd to the note with id, stamps it and marks it unsynced.
// While online a debounced push is scheduled.
func (o *Orchestrator) Update(ctx context.Context, id string, upd NoteUpdate) (*models.Note, error) {
	o.writeMu.Lock()
	current, err := o.store.Get(ctx, id)
	if err != nil {
		o.writeMu.Unlock()
		return nil, err
	}
	next := current.Clone()
	if upd.Title != nil {
		next.Title = *upd.Title
	}
	if upd.Body != nil {
		next.Body = *upd.Body
	}
	next.Touch(o.now())

	stored, err := o.store.Put(ctx, next)
	if err != nil {
		o.writeMu.Unlock()
		return nil, err
	}
	if o.state.Snapshot().Find(id) == nil {
		o.state.Dispatch(state.AddOrReplace(stored))
	} else {
		o.state.Dispatch(state.ReplaceByID(stored))
	}
	o.writeMu.Unlock()

	if o.net.Online() {
		o.ScheduleSync(stored)
	}
	return stored.Clone(), nil
}

// Delete removes the note locally, cancels its pending push and, when
// online, deletes it remotely. The remote delete is best effort: failures are
// logged and not retried. It is sent only after a push already in flight for
// the note has returned, so the push cannot recreate the note remotely.
func (o *Orchestrator) Delete(ctx context.Context, id string) error {
	o.cancelTimer(id)

	o.writeMu.Lock()
	if err := o.store.Delete(ctx, id); err != nil {
		o.writeMu.Unlock()
		return err
	}
	o.state.Dispatch(state.RemoveByID(id))
	o.writeMu.Unlock()

	if o.net.Online() {
		o.mu.Lock()
		o.deleting[id] = struct{}{}
		pending := o.inflight[id]
		o.mu.Unlock()

		o.background(func(ctx context.Context) {
			defer func() {
				o.mu.Lock()
				delete(o.deleting, id)
				o.mu.Unlock()
			}()
			if pending != nil {
				select {
				case <-pending:
				case <-ctx.Done():
					return
				}
			}
			ctx, cancel := context.WithTimeout(ctx, o.syncTimeout)
			defer cancel()
			if err := o.remote.Delete(ctx, id); err != nil {
				o.logger.Warn("Remote delete failed, not retried", map[string]interface{}{
					"note_id": id,
					"error":   err.Error(),
				})
			}
		})
	}
	return nil
}

// =====================================================
// Scheduling
// =====================================================

// ScheduleSync arms the debounce timer for note, replacing any pending one.
// When the timer fires the latest stored revision is pushed, provided the
// remote is reachable at that moment.
func (o *Orchestrator) ScheduleSync(note *models.Note) {
	id := note.ID

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	if t, ok := o.timers[id]; ok {
		t.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(o.debounce, func() { o.fire(id, timer) })
	o.timers[id] = timer
}

// Pending returns the number of armed debounce timers.
func (o *Orchestrator) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.timers)
}

func (o *Orchestrator) fire(id string, timer *time.Timer) {
	o.mu.Lock()
	if o.timers[id] != timer {
		// Re-armed or cancelled after this timer had already fired.
		o.mu.Unlock()
		return
	}
	delete(o.timers, id)
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.bg.Add(1)
	o.mu.Unlock()
	defer o.bg.Done()

	o.pushLatest(o.bgCtx, id)
}

func (o *Orchestrator) cancelTimer(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if t, ok := o.timers[id]; ok {
		t.Stop()
		delete(o.timers, id)
	}
}

// pushLatest pushes the stored revision of id if online.
func (o *Orchestrator) pushLatest(ctx context.Context, id string) outcome {
	if !o.net.Online() {
		o.logger.Debug("Offline, leaving note unsynced", map[string]interface{}{"note_id": id})
		return outcomeSkipped
	}
	current, err := o.store.Get(ctx, id)
	if apperrors.Is(err, apperrors.ErrNotFound) {
		return outcomeDiscarded
	}
	if err != nil {
		o.logger.Error("Failed to load note for sync", err, map[string]interface{}{"note_id": id})
		return outcomeFailed
	}
	return o.syncOne(ctx, current)
}

// Flush fires every pending debounce timer immediately and waits for the
// resulting pushes. Offline, the notes stay unsynced for the next sweep.
func (o *Orchestrator) Flush(ctx context.Context) error {
	o.mu.Lock()
	ids := make([]string, 0, len(o.timers))
	for id, t := range o.timers {
		t.Stop()
		delete(o.timers, id)
		ids = append(ids, id)
	}
	o.mu.Unlock()

	failed := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		if o.pushLatest(ctx, id) == outcomeFailed {
			failed++
		}
	}
	if failed > 0 {
		return apperrors.Newf(apperrors.ErrSyncFailed, "%d of %d pending notes failed to sync", failed, len(ids))
	}
	return nil
}

// goSync pushes note on a background goroutine tracked by Close.
func (o *Orchestrator) goSync(note *models.Note) {
	o.background(func(ctx context.Context) {
		o.syncOne(ctx, note)
	})
}

func (o *Orchestrator) background(fn func(ctx context.Context)) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.bg.Add(1)
	o.mu.Unlock()

	go func() {
		defer o.bg.Done()
		fn(o.bgCtx)
	}()
}

// =====================================================
// Pushing
// =====================================================

// SyncOne pushes note to the remote. If a push for the same id is already in
// flight the call does nothing and returns nil. A failed push marks the note
// as error and returns the failure.
func (o *Orchestrator) SyncOne(ctx context.Context, note *models.Note) error {
	if err := note.Validate(); err != nil {
		return apperrors.Wrap(apperrors.ErrInvalid, "sync note", err)
	}
	if o.syncOne(ctx, note) == outcomeFailed {
		return apperrors.Newf(apperrors.ErrSyncFailed, "sync note %s failed", note.ID)
	}
	return nil
}

func (o *Orchestrator) syncOne(ctx context.Context, note *models.Note) outcome {
	id := note.ID

	o.mu.Lock()
	if _, gone := o.deleting[id]; gone {
		o.mu.Unlock()
		return outcomeDiscarded
	}
	if _, busy := o.inflight[id]; busy {
		o.mu.Unlock()
		o.logger.Debug("Push already in flight, skipping", map[string]interface{}{"note_id": id})
		return outcomeSkipped
	}
	done := make(chan struct{})
	o.inflight[id] = done
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		delete(o.inflight, id)
		o.mu.Unlock()
		close(done)
	}()

	o.state.Dispatch(state.SetSyncStatus(id, models.SyncStatusSyncing))

	pushCtx, cancel := context.WithTimeout(ctx, o.syncTimeout)
	pushed, err := o.remote.CreateOrUpdate(pushCtx, note)
	cancel()
	if err != nil {
		return o.markFailed(ctx, note, err)
	}
	return o.applyPushed(ctx, note, pushed)
}

// applyPushed records a successful push. The stored note is re-read so that
// a delete or a newer edit made during the push wins over the result.
func (o *Orchestrator) applyPushed(ctx context.Context, sent, pushed *models.Note) outcome {
	id := sent.ID

	o.writeMu.Lock()
	current, err := o.store.Get(ctx, id)
	if apperrors.Is(err, apperrors.ErrNotFound) {
		o.writeMu.Unlock()
		o.logger.Debug("Note deleted during push, discarding result", map[string]interface{}{"note_id": id})
		return outcomeDiscarded
	}
	if err != nil {
		o.state.Dispatch(state.SetSyncStatus(id, models.SyncStatusError))
		o.writeMu.Unlock()
		o.logger.ErrorWithCode("Failed to record push result", string(apperrors.CodeOf(err)), err,
			map[string]interface{}{"note_id": id})
		return outcomeFailed
	}

	// Stamps may tie under a coarse clock, so content is compared as well.
	if !current.SameRevision(sent) {
		o.state.Dispatch(state.SetSyncStatus(id, current.SyncStatus))
		o.writeMu.Unlock()
		o.logger.Debug("Note edited during push, rescheduling", map[string]interface{}{"note_id": id})
		if o.net.Online() {
			o.ScheduleSync(current)
		}
		return outcomeStale
	}

	merged := current.Clone()
	if pushed != nil {
		merged.Title = pushed.Title
		merged.Body = pushed.Body
		if pushed.UpdatedAt.After(merged.UpdatedAt) {
			merged.UpdatedAt = pushed.UpdatedAt
		}
	}
	merged.SetStatus(models.SyncStatusSynced)

	stored, err := o.store.Put(ctx, merged)
	if err != nil {
		o.state.Dispatch(state.SetSyncStatus(id, models.SyncStatusError))
		o.writeMu.Unlock()
		o.logger.ErrorWithCode("Failed to persist synced note", string(apperrors.ErrStore), err,
			map[string]interface{}{"note_id": id})
		return outcomeFailed
	}
	o.state.Dispatch(state.ReplaceByID(stored))
	o.writeMu.Unlock()

	o.logger.Debug("Note synced", map[string]interface{}{"note_id": id})
	return outcomeSynced
}

// markFailed records a failed push. The note stays locally authoritative and
// in the backlog.
func (o *Orchestrator) markFailed(ctx context.Context, sent *models.Note, cause error) outcome {
	id := sent.ID
	code := apperrors.ErrSyncFailed
	if errors.Is(cause, context.DeadlineExceeded) {
		code = apperrors.ErrSyncTimeout
	}
	o.logger.ErrorWithCode("Push failed", string(code), cause, map[string]interface{}{"note_id": id})

	o.writeMu.Lock()
	defer o.writeMu.Unlock()

	current, err := o.store.Get(ctx, id)
	if apperrors.Is(err, apperrors.ErrNotFound) {
		return outcomeDiscarded
	}
	if err != nil {
		o.state.Dispatch(state.SetSyncStatus(id, models.SyncStatusError))
		return outcomeFailed
	}

	current.SetStatus(models.SyncStatusError)
	stored, err := o.store.Put(ctx, current)
	if err != nil {
		o.logger.ErrorWithCode("Failed to persist sync error", string(apperrors.ErrStore), err,
			map[string]interface{}{"note_id": id})
		o.state.Dispatch(state.SetSyncStatus(id, models.SyncStatusError))
		return outcomeFailed
	}
	o.state.Dispatch(state.ReplaceByID(stored))
	return outcomeFailed
}

// =====================================================
// Sweeps
// =====================================================

// SyncAll pushes every note in the backlog, one at a time, then refreshes
// the projection from the store. Offline it does nothing. A sweep already in
// progress makes the call a no-op.
func (o *Orchestrator) SyncAll(ctx context.Context) (*SyncResult, error) {
	result := &SyncResult{StartTime: o.now()}
	if !o.net.Online() {
		result.Offline = true
		result.EndTime = result.StartTime
		return result, nil
	}

	o.mu.Lock()
	if o.sweeping {
		o.mu.Unlock()
		result.EndTime = result.StartTime
		return result, nil
	}
	o.sweeping = true
	o.mu.Unlock()

	o.state.Dispatch(state.SetSyncing(true))
	defer func() {
		o.state.Dispatch(state.SetSyncing(false))
		result.EndTime = o.now()
		result.Duration = result.EndTime.Sub(result.StartTime)

		o.mu.Lock()
		o.sweeping = false
		o.lastSync = result
		o.mu.Unlock()
	}()

	backlog, err := o.store.GetUnsynced(ctx)
	if err != nil {
		return result, err
	}
	backlog = conflict.Deduplicate(backlog)
	o.logger.Info("Starting full sync", map[string]interface{}{"backlog": len(backlog)})

	for _, note := range backlog {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Attempted++
		switch o.syncOne(ctx, note) {
		case outcomeSynced:
			result.Synced++
		case outcomeFailed:
			result.Failed++
		default:
			result.Skipped++
		}
	}

	all, err := o.store.GetAll(ctx)
	if err != nil {
		return result, err
	}
	o.state.Dispatch(state.ReplaceAll(conflict.Deduplicate(all)))

	o.logger.Info("Full sync completed", map[string]interface{}{
		"attempted": result.Attempted,
		"synced":    result.Synced,
		"failed":    result.Failed,
		"skipped":   result.Skipped,
	})
	return result, nil
}

// LastSync returns the result of the most recent completed sweep.
func (o *Orchestrator) LastSync() *SyncResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.lastSync == nil {
		return nil
	}
	r := *o.lastSync
	return &r
}

// Run triggers one SyncAll for every offline-to-online transition seen
// after Load has completed. A reconnect between Load and Run is caught up
// with a single sweep. It returns when ctx is done.
func (o *Orchestrator) Run(ctx context.Context) error {
	run, _ := o.Watch()
	return run(ctx)
}

// Watch subscribes to connectivity right away and returns the Run loop
// bound to that subscription. Calling it before Load means no transition
// can fall between the two. stop releases the subscription when run is
// never called.
func (o *Orchestrator) Watch() (run func(ctx context.Context) error, stop func()) {
	ch, unsubscribe := o.net.Subscribe()
	return func(ctx context.Context) error {
		defer unsubscribe()
		return o.watch(ctx, ch)
	}, unsubscribe
}

func (o *Orchestrator) watch(ctx context.Context, ch <-chan bool) error {
	if o.reconnectedSinceLoad() {
		// A queued transition is covered by this sweep.
		select {
		case <-ch:
		default:
		}
		o.logger.Info("Came online after load, starting full sync", nil)
		o.sweep(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case online := <-ch:
			if !online {
				o.logger.Info("Went offline", nil)
				continue
			}
			if !o.Loaded() {
				continue
			}
			o.logger.Info("Back online, starting full sync", nil)
			o.sweep(ctx)
		}
	}
}

// reconnectedSinceLoad reports whether Load ran offline and the remote is
// reachable now.
func (o *Orchestrator) reconnectedSinceLoad() bool {
	o.mu.Lock()
	loaded, loadedOnline := o.loaded, o.loadedOnline
	o.mu.Unlock()
	return loaded && !loadedOnline && o.net.Online()
}

func (o *Orchestrator) sweep(ctx context.Context) {
	if _, err := o.SyncAll(ctx); err != nil && ctx.Err() == nil {
		o.logger.Error("Full sync failed", err)
	}
}

// Close cancels pending debounce timers and waits for background pushes to
// finish. Call Flush first to push pending edits instead of dropping them.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	for id, t := range o.timers {
		t.Stop()
		delete(o.timers, id)
	}
	o.mu.Unlock()

	o.bg.Wait()
	o.cancel()
	return nil
}

// Status summarizes the engine for status endpoints.
type Status struct {
	Online    bool        `json:"online"`
	Loaded    bool        `json:"loaded"`
	IsSyncing bool        `json:"isSyncing"`
	IsLoading bool        `json:"isLoading"`
	Notes     int         `json:"notes"`
	Unsynced  int         `json:"unsynced"`
	Errored   int         `json:"errored"`
	Pending   int         `json:"pending"`
	InFlight  int         `json:"inFlight"`
	LastSync  *SyncResult `json:"lastSync,omitempty"`
}

// Status returns a snapshot of the engine state.
func (o *Orchestrator) Status() Status {
	snap := o.state.Snapshot()
	st := Status{
		Online:    o.net.Online(),
		IsSyncing: snap.IsSyncing,
		IsLoading: snap.IsLoading,
		Notes:     len(snap.Notes),
		LastSync:  o.LastSync(),
	}
	for _, n := range snap.Notes {
		switch n.SyncStatus {
		case models.SyncStatusUnsynced:
			st.Unsynced++
		case models.SyncStatusError:
			st.Errored++
		}
	}
	o.mu.Lock()
	st.Loaded = o.loaded
	st.Pending = len(o.timers)
	st.InFlight = len(o.inflight)
	o.mu.Unlock()
	return st
}

// String implements fmt.Stringer for logs and the CLI.
func (r *SyncResult) String() string {
	if r.Offline {
		return "offline, nothing synced"
	}
	return fmt.Sprintf("attempted %d, synced %d, failed %d, skipped %d in %s",
		r.Attempted, r.Synced, r.Failed, r.Skipped, r.Duration.Round(time.Millisecond))
}
