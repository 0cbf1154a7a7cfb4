package downloads

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"modelcat/internal/config"
	"modelcat/internal/logging"
)

// HTTPTransport is a single-stream download transport fetching files from
// the hub's resolve endpoint. Partial data lands in a .part file and
// resumes with a Range request; the final rename is atomic.
type HTTPTransport struct {
	base   string
	ua     string
	client *http.Client
	log    *logging.Logger

	events chan Job

	mu     sync.Mutex
	nextID int
	jobs   map[string]*httpJob
}

type httpJob struct {
	job    Job
	url    string
	cancel context.CancelFunc
	paused bool
}

func NewHTTPTransport(cfg *config.Config, log *logging.Logger) *HTTPTransport {
	timeout := time.Duration(cfg.Network.TimeoutSeconds) * time.Second
	return &HTTPTransport{
		base: cfg.Hub.BaseURL,
		ua:   cfg.Network.UserAgent,
		// No overall timeout: large model files legitimately take longer
		// than any sane request deadline. Per-connection stalls surface
		// through the copy loop instead.
		client: &http.Client{Transport: &http.Transport{ResponseHeaderTimeout: timeout}},
		log:    log.With("transport"),
		events: make(chan Job, 64),
		jobs:   map[string]*httpJob{},
	}
}

func (t *HTTPTransport) Events() <-chan Job { return t.events }

// Start begins downloading repoID/filename to dest and returns the job id.
func (t *HTTPTransport) Start(ctx context.Context, repoID, filename, dest string) (string, error) {
	if repoID == "" || filename == "" {
		return "", fmt.Errorf("repo id and filename required")
	}
	if dest == "" {
		return "", fmt.Errorf("destination required")
	}
	t.mu.Lock()
	t.nextID++
	id := "dl-" + strconv.Itoa(t.nextID)
	jctx, cancel := context.WithCancel(ctx)
	hj := &httpJob{
		job: Job{
			ID:       id,
			RepoID:   repoID,
			Filename: filename,
			Status:   StatusQueued,
			Dest:     dest,
		},
		url:    t.base + "/" + repoID + "/resolve/main/" + filename,
		cancel: cancel,
	}
	t.jobs[id] = hj
	t.mu.Unlock()

	t.emit(hj.job)
	go t.fetch(jctx, id)
	return id, nil
}

// Pause stops the transfer, keeping the .part file for a later Resume.
func (t *HTTPTransport) Pause(ctx context.Context, jobID string) error {
	t.mu.Lock()
	hj, ok := t.jobs[jobID]
	if ok && !hj.job.Status.Terminal() {
		hj.paused = true
		hj.cancel()
	}
	t.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown job %s", jobID)
	}
	return nil
}

// Resume restarts a paused job from its partial file.
func (t *HTTPTransport) Resume(ctx context.Context, jobID string) error {
	t.mu.Lock()
	hj, ok := t.jobs[jobID]
	if !ok || hj.job.Status != StatusPaused {
		t.mu.Unlock()
		return fmt.Errorf("job %s is not paused", jobID)
	}
	hj.paused = false
	jctx, cancel := context.WithCancel(ctx)
	hj.cancel = cancel
	t.mu.Unlock()
	go t.fetch(jctx, jobID)
	return nil
}

// Cancel aborts the job and removes its partial file.
func (t *HTTPTransport) Cancel(ctx context.Context, jobID string) error {
	t.mu.Lock()
	hj, ok := t.jobs[jobID]
	if ok && !hj.job.Status.Terminal() {
		hj.paused = false
		hj.cancel()
	}
	t.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown job %s", jobID)
	}
	return nil
}

func (t *HTTPTransport) fetch(ctx context.Context, jobID string) {
	t.mu.Lock()
	hj := t.jobs[jobID]
	u := hj.url
	dest := hj.job.Dest
	t.mu.Unlock()

	part := dest + ".part"
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		t.finish(jobID, StatusError, err)
		return
	}
	var start int64
	if fi, err := os.Stat(part); err == nil {
		start = fi.Size()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		t.finish(jobID, StatusError, err)
		return
	}
	req.Header.Set("User-Agent", t.ua)
	if start > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", start))
	}
	resp, err := t.client.Do(req)
	if err != nil {
		t.interrupted(jobID, err)
		return
	}
	defer resp.Body.Close()

	if start > 0 && resp.StatusCode == http.StatusOK {
		// Server ignored Range; restart from the beginning.
		start = 0
		_ = os.Remove(part)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		t.finish(jobID, StatusError, fmt.Errorf("unexpected status: %s", resp.Status))
		return
	}
	total := start + resp.ContentLength
	if resp.ContentLength < 0 {
		total = 0
	}

	f, err := os.OpenFile(part, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.finish(jobID, StatusError, err)
		return
	}

	t.update(jobID, func(j *Job) {
		j.Status = StatusDownloading
		j.BytesDone = start
		j.BytesTotal = total
	})

	buf := make([]byte, 256*1024)
	done := start
	lastEmit := time.Now()
	lastBytes := done
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				_ = f.Close()
				t.finish(jobID, StatusError, werr)
				return
			}
			done += int64(n)
		}
		if now := time.Now(); now.Sub(lastEmit) >= 500*time.Millisecond {
			speed := float64(done-lastBytes) / now.Sub(lastEmit).Seconds()
			lastEmit, lastBytes = now, done
			t.update(jobID, func(j *Job) {
				j.BytesDone = done
				j.Speed = speed
			})
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			_ = f.Close()
			t.interrupted(jobID, rerr)
			return
		}
	}
	if err := f.Close(); err != nil {
		t.finish(jobID, StatusError, err)
		return
	}
	if err := os.Rename(part, dest); err != nil {
		t.finish(jobID, StatusError, err)
		return
	}
	t.update(jobID, func(j *Job) {
		j.BytesDone = done
		if j.BytesTotal == 0 {
			j.BytesTotal = done
		}
		j.Speed = 0
	})
	t.finish(jobID, StatusCompleted, nil)
}

// interrupted decides whether a stopped transfer was a pause, a cancel, or
// a real failure.
func (t *HTTPTransport) interrupted(jobID string, cause error) {
	t.mu.Lock()
	hj := t.jobs[jobID]
	paused := hj != nil && hj.paused
	t.mu.Unlock()
	if paused {
		t.update(jobID, func(j *Job) {
			j.Status = StatusPaused
			j.Speed = 0
		})
		return
	}
	if cause != nil && errors.Is(cause, context.Canceled) {
		t.mu.Lock()
		if hj != nil {
			_ = os.Remove(hj.job.Dest + ".part")
		}
		t.mu.Unlock()
		t.finish(jobID, StatusCancelled, nil)
		return
	}
	t.finish(jobID, StatusError, cause)
}

func (t *HTTPTransport) update(jobID string, fn func(*Job)) {
	t.mu.Lock()
	hj, ok := t.jobs[jobID]
	if !ok {
		t.mu.Unlock()
		return
	}
	fn(&hj.job)
	hj.job.UpdatedAt = time.Now()
	j := hj.job
	t.mu.Unlock()
	t.emit(j)
}

func (t *HTTPTransport) finish(jobID string, st Status, cause error) {
	t.update(jobID, func(j *Job) {
		j.Status = st
		j.Speed = 0
		if cause != nil {
			j.Error = cause.Error()
			t.log.Warnf("%s %s: %v", jobID, j.Filename, cause)
		}
	})
}

func (t *HTTPTransport) emit(j Job) {
	select {
	case t.events <- j:
	default:
		// Slow consumer; drop this progress tick. Terminal events are
		// retried so they cannot be lost.
		if j.Status.Terminal() {
			t.events <- j
		}
	}
}
