package lockfile

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
)

// Lock is an exclusive PID-based lock on a file path. It keeps a second
// instance from mutating the same data root.
type Lock struct {
	path string
}

// Acquire takes the lock at path, clearing a stale lock left by a dead
// process. It fails if a live process holds it.
func Acquire(path string) (*Lock, error) {
	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			fmt.Fprintf(f, "%d\n", os.Getpid())
			f.Close()
			return &Lock{path: path}, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("create lock file: %w", err)
		}
		holder, stale := readHolder(path)
		if !stale {
			return nil, fmt.Errorf("another instance is running (PID %d); remove %s if that is wrong", holder, path)
		}
		if err := os.Remove(path); err != nil {
			return nil, fmt.Errorf("remove stale lock %s: %w", path, err)
		}
	}
	return nil, fmt.Errorf("could not acquire lock at %s", path)
}

// Release removes the lock file.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	return os.Remove(l.path)
}

// readHolder reports the PID in the lock file and whether it is stale.
// Unreadable or malformed lock files are treated as stale.
func readHolder(path string) (int, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, true
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, true
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return pid, true
	}
	// Signal 0 probes for existence without disturbing the process.
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		return pid, true
	}
	return pid, false
}
