package downloads

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// Status is a download job's lifecycle state. Transitions come exclusively
// from the external transport; the tracker never invents them.
type Status string

const (
	StatusQueued      Status = "queued"
	StatusDownloading Status = "downloading"
	StatusPaused      Status = "paused"
	StatusCompleted   Status = "completed"
	StatusCancelled   Status = "cancelled"
	StatusError       Status = "error"
)

// Terminal reports whether the status is final. Terminal jobs move to
// history and are immutable thereafter.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusError:
		return true
	}
	return false
}

// Job is one file download as projected from transport events.
type Job struct {
	ID         string
	RepoID     string
	Filename   string
	Status     Status
	BytesDone  int64
	BytesTotal int64
	Speed      float64 // bytes per second
	Dest       string
	Error      string // per-file; never affects other jobs
	UpdatedAt  time.Time
}

// Key identifies the requested file independently of the transport's job
// id, bridging "user clicked download" and "backend acknowledged it".
func (j Job) Key() string { return PendingKey(j.RepoID, j.Filename) }

// PendingKey builds the repoID::filename key.
func PendingKey(repoID, filename string) string { return repoID + "::" + filename }

// ETA estimates remaining time from current speed; zero when unknown.
func (j Job) ETA() time.Duration {
	if j.Speed <= 0 || j.BytesTotal <= 0 || j.BytesDone >= j.BytesTotal {
		return 0
	}
	secs := float64(j.BytesTotal-j.BytesDone) / j.Speed
	return time.Duration(secs * float64(time.Second))
}

// Progress renders a human-readable progress line for CLI/TUI display.
func (j Job) Progress() string {
	if j.BytesTotal <= 0 {
		return humanize.Bytes(uint64(j.BytesDone))
	}
	pct := float64(j.BytesDone) / float64(j.BytesTotal) * 100
	s := fmt.Sprintf("%s / %s (%.1f%%)",
		humanize.Bytes(uint64(j.BytesDone)), humanize.Bytes(uint64(j.BytesTotal)), pct)
	if j.Speed > 0 && !j.Status.Terminal() {
		s += fmt.Sprintf(" @ %s/s", humanize.Bytes(uint64(j.Speed)))
	}
	return s
}
