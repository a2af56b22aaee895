// internal/runner/logtail.go
package runner

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hpcloud/tail"
	"go.uber.org/zap"
)

// maxServerErrorLines caps the watcher's buffer; a shop stuck returning 5xx
// would otherwise grow it without bound.
const maxServerErrorLines = 1000

// serverErrorLine is one access-log entry with a 5xx status.
type serverErrorLine struct {
	at   time.Time
	text string
}

// ServerErrorSource provides server-side error lines for a time window.
// Implemented by AccessWatcher; the runner treats it as optional.
type ServerErrorSource interface {
	ServerErrorsBetween(from, to time.Time) []string
}

// AccessWatcher tails the demo shop's access log and keeps the lines whose
// status is 5xx, so a failed scenario can be correlated with server-side
// errors that happened while it ran.
//
// Access log line format: timestamp, method, URI, status, latency, bytes,
// space-separated. The status field is the fourth.
type AccessWatcher struct {
	logger *zap.Logger
	tailer *tail.Tail

	mu    sync.Mutex
	lines []serverErrorLine

	done chan struct{}
}

// WatchAccessLog starts tailing the access log at path from its current end.
// The file must already exist; the shop creates it on startup.
func WatchAccessLog(path string, logger *zap.Logger) (*AccessWatcher, error) {
	tailer, err := tail.TailFile(path, tail.Config{
		Follow:    true,
		ReOpen:    true,
		MustExist: true,
		Location:  &tail.SeekInfo{Offset: 0, Whence: 2},
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to tail access log %s: %w", path, err)
	}

	w := &AccessWatcher{
		logger: logger.Named("access_watcher"),
		tailer: tailer,
		done:   make(chan struct{}),
	}
	go w.monitorLoop()
	return w, nil
}

func (w *AccessWatcher) monitorLoop() {
	defer close(w.done)
	for line := range w.tailer.Lines {
		if line.Err != nil {
			w.logger.Warn("Error reading access log", zap.Error(line.Err))
			continue
		}
		w.ingest(line.Text)
	}
}

func (w *AccessWatcher) ingest(text string) {
	at, status, ok := parseAccessLine(text)
	if !ok || status < 500 {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.lines = append(w.lines, serverErrorLine{at: at, text: text})
	if len(w.lines) > maxServerErrorLines {
		w.lines = w.lines[len(w.lines)-maxServerErrorLines:]
	}
}

// parseAccessLine extracts the timestamp and status from an access log line.
func parseAccessLine(text string) (time.Time, int, bool) {
	fields := strings.Fields(text)
	if len(fields) < 6 {
		return time.Time{}, 0, false
	}
	at, err := time.Parse(time.RFC3339Nano, fields[0])
	if err != nil {
		return time.Time{}, 0, false
	}
	status, err := strconv.Atoi(fields[3])
	if err != nil {
		return time.Time{}, 0, false
	}
	return at, status, true
}

// ServerErrorsBetween returns the 5xx access-log lines observed in the
// inclusive window [from, to].
func (w *AccessWatcher) ServerErrorsBetween(from, to time.Time) []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	var out []string
	for _, line := range w.lines {
		if line.at.Before(from) || line.at.After(to) {
			continue
		}
		out = append(out, line.text)
	}
	return out
}

// Stop ends the tail and waits for the monitor goroutine to drain.
func (w *AccessWatcher) Stop() error {
	err := w.tailer.Stop()
	<-w.done
	w.tailer.Cleanup()
	return err
}
