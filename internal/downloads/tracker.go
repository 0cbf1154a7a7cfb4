// Package downloads bridges an external download transport's event stream
// into UI-friendly per-file state, and fires completion side effects
// exactly once per job.
package downloads

import (
	"context"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"modelcat/internal/logging"
	"modelcat/internal/reactive"
	"modelcat/internal/state"
)

// Transport is the external download service. It owns the actual byte
// movement; the tracker only projects its events.
type Transport interface {
	Start(ctx context.Context, repoID, filename, dest string) (jobID string, err error)
	Pause(ctx context.Context, jobID string) error
	Resume(ctx context.Context, jobID string) error
	Cancel(ctx context.Context, jobID string) error
	// Events delivers job progress/status updates. Delivery may duplicate;
	// the tracker is idempotent against that.
	Events() <-chan Job
}

// State is the whole download view, replaced wholesale on every event.
type State struct {
	// Active holds non-terminal jobs, most recently updated first.
	Active []Job
	// History holds terminal jobs, newest first. Immutable entries.
	History []Job
	// Pending marks repoID::filename keys requested but not yet
	// acknowledged by the transport.
	Pending map[string]bool
}

// Tracker consumes transport events and maintains derived download state.
type Tracker struct {
	log    *logging.Logger
	db     *state.DB
	tr     Transport
	folder string // active models folder; completions under it trigger a rescan

	store *reactive.Store[State]

	onLoad   func(Job)    // "load into app" action
	onRescan func(string) // folder rescan

	mu        sync.Mutex
	active    map[string]Job  // by transport job id
	pending   map[string]bool // by PendingKey
	autoLoad  map[string]bool // keys flagged for load-on-completion
	processed map[string]bool // terminal job ids already handled
	history   []Job
}

// NewTracker restores history from the database and prepares the tracker.
// onLoad and onRescan may be nil.
func NewTracker(db *state.DB, tr Transport, folder string, onLoad func(Job), onRescan func(string), log *logging.Logger) *Tracker {
	t := &Tracker{
		log:       log.With("downloads"),
		db:        db,
		tr:        tr,
		folder:    folder,
		store:     reactive.NewStore(State{Pending: map[string]bool{}}),
		onLoad:    onLoad,
		onRescan:  onRescan,
		active:    map[string]Job{},
		pending:   map[string]bool{},
		autoLoad:  map[string]bool{},
		processed: map[string]bool{},
	}
	if db != nil {
		rows, err := db.ListJobHistory(0)
		if err != nil {
			t.log.Warnf("load history: %v", err)
		}
		for _, r := range rows {
			t.processed[r.ID] = true
			t.history = append(t.history, Job{
				ID:         r.ID,
				RepoID:     r.RepoID,
				Filename:   r.Filename,
				Status:     Status(r.Status),
				BytesDone:  r.BytesDone,
				BytesTotal: r.BytesTotal,
				Dest:       r.Dest,
				Error:      r.LastError,
				UpdatedAt:  time.Unix(r.FinishedAt, 0),
			})
		}
	}
	t.publish()
	return t
}

// State is the reactive stream the UI subscribes to.
func (t *Tracker) State() *reactive.Store[State] { return t.store }

// Request asks the transport to start a download. The pending marker is set
// the instant the user asked, before the transport acknowledges, and
// cleared as soon as a matching job or history record appears.
func (t *Tracker) Request(ctx context.Context, repoID, filename, dest string, autoLoad bool) error {
	key := PendingKey(repoID, filename)
	t.mu.Lock()
	t.pending[key] = true
	if autoLoad {
		t.autoLoad[key] = true
	}
	t.mu.Unlock()
	t.publish()

	if _, err := t.tr.Start(ctx, repoID, filename, dest); err != nil {
		t.mu.Lock()
		delete(t.pending, key)
		delete(t.autoLoad, key)
		t.mu.Unlock()
		t.publish()
		return err
	}
	return nil
}

func (t *Tracker) Pause(ctx context.Context, jobID string) error  { return t.tr.Pause(ctx, jobID) }
func (t *Tracker) Resume(ctx context.Context, jobID string) error { return t.tr.Resume(ctx, jobID) }
func (t *Tracker) Cancel(ctx context.Context, jobID string) error { return t.tr.Cancel(ctx, jobID) }

// Run consumes transport events until ctx is done or the stream closes.
func (t *Tracker) Run(ctx context.Context) {
	events := t.tr.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-events:
			if !ok {
				return
			}
			t.Apply(j)
		}
	}
}

// Apply projects one transport event into tracker state. Safe under
// duplicate delivery: terminal transitions and their side effects run at
// most once per job id.
func (t *Tracker) Apply(j Job) {
	if j.UpdatedAt.IsZero() {
		j.UpdatedAt = time.Now()
	}
	var fireLoad, fireRescan bool

	t.mu.Lock()
	// A matching job closes the request/acknowledgment race.
	delete(t.pending, j.Key())

	if !j.Status.Terminal() {
		t.active[j.ID] = j
		t.mu.Unlock()
		t.publish()
		return
	}

	delete(t.active, j.ID)
	if t.processed[j.ID] {
		// Duplicate terminal event; history is immutable.
		t.mu.Unlock()
		t.publish()
		return
	}
	t.processed[j.ID] = true
	t.history = append([]Job{j}, t.history...)

	if j.Status == StatusCompleted {
		if t.autoLoad[j.Key()] {
			delete(t.autoLoad, j.Key())
			fireLoad = t.onLoad != nil
		}
		fireRescan = t.onRescan != nil && underFolder(j.Dest, t.folder)
	}
	t.mu.Unlock()

	if t.db != nil {
		if err := t.db.InsertJobHistory(state.JobRow{
			ID:         j.ID,
			RepoID:     j.RepoID,
			Filename:   j.Filename,
			Status:     string(j.Status),
			BytesDone:  j.BytesDone,
			BytesTotal: j.BytesTotal,
			Dest:       j.Dest,
			LastError:  j.Error,
			FinishedAt: j.UpdatedAt.Unix(),
		}); err != nil {
			t.log.Warnf("persist history %s: %v", j.ID, err)
		}
	}
	if fireLoad {
		t.log.Infof("download complete, loading %s", j.Filename)
		t.onLoad(j)
	}
	if fireRescan {
		t.onRescan(t.folder)
	}
	t.publish()
}

func (t *Tracker) publish() {
	t.mu.Lock()
	st := State{Pending: make(map[string]bool, len(t.pending))}
	for k := range t.pending {
		st.Pending[k] = true
	}
	st.Active = make([]Job, 0, len(t.active))
	for _, j := range t.active {
		st.Active = append(st.Active, j)
	}
	sort.Slice(st.Active, func(i, k int) bool {
		if !st.Active[i].UpdatedAt.Equal(st.Active[k].UpdatedAt) {
			return st.Active[i].UpdatedAt.After(st.Active[k].UpdatedAt)
		}
		return st.Active[i].ID < st.Active[k].ID
	})
	st.History = make([]Job, len(t.history))
	copy(st.History, t.history)
	t.mu.Unlock()
	t.store.Set(st)
}

func underFolder(dest, folder string) bool {
	if dest == "" || folder == "" {
		return false
	}
	rel, err := filepath.Rel(folder, dest)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
