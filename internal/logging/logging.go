package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level represents log severity.
type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
)

func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return Debug
	case "warn":
		return Warn
	case "error":
		return Error
	default:
		return Info
	}
}

func levelString(l Level) string {
	switch l {
	case Debug:
		return "debug"
	case Warn:
		return "warn"
	case Error:
		return "error"
	default:
		return "info"
	}
}

// Logger writes leveled, optionally JSON-formatted log lines. Safe for
// concurrent use; the search service and download tracker log from multiple
// goroutines.
type Logger struct {
	min       Level
	json      bool
	component string

	mu  *sync.Mutex
	out io.Writer
}

func New(level string, jsonOut bool) *Logger {
	return &Logger{min: ParseLevel(level), json: jsonOut, mu: &sync.Mutex{}, out: os.Stderr}
}

// NewWriter is like New but logs to w. Used by tests and by the TUI, which
// must keep stderr clean while the alternate screen is active.
func NewWriter(level string, jsonOut bool, w io.Writer) *Logger {
	return &Logger{min: ParseLevel(level), json: jsonOut, mu: &sync.Mutex{}, out: w}
}

// With returns a logger that stamps every line with a component name, e.g.
// "search" or "downloads". The underlying writer and level are shared.
func (l *Logger) With(component string) *Logger {
	if l == nil {
		return nil
	}
	cp := *l
	cp.component = component
	return &cp
}

func (l *Logger) Enabled(v Level) bool { return l != nil && v >= l.min }

func (l *Logger) Debugf(format string, a ...any) { l.log(Debug, fmt.Sprintf(format, a...)) }
func (l *Logger) Infof(format string, a ...any)  { l.log(Info, fmt.Sprintf(format, a...)) }
func (l *Logger) Warnf(format string, a ...any)  { l.log(Warn, fmt.Sprintf(format, a...)) }
func (l *Logger) Errorf(format string, a ...any) { l.log(Error, fmt.Sprintf(format, a...)) }

func (l *Logger) log(level Level, msg string) {
	if !l.Enabled(level) {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.json {
		payload := map[string]any{
			"ts":    time.Now().Format(time.RFC3339Nano),
			"level": levelString(level),
			"msg":   msg,
		}
		if l.component != "" {
			payload["component"] = l.component
		}
		_ = json.NewEncoder(l.out).Encode(payload)
		return
	}
	if l.component != "" {
		fmt.Fprintf(l.out, "%s\t[%s] %s\n", strings.ToUpper(levelString(level)), l.component, msg)
		return
	}
	fmt.Fprintf(l.out, "%s\t%s\n", strings.ToUpper(levelString(level)), msg)
}
