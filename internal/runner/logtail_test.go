// internal/runner/logtail_test.go
package runner

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func accessLine(at time.Time, method, uri string, status int) string {
	return fmt.Sprintf("%s %s %s %d 1.042ms 512", at.UTC().Format(time.RFC3339Nano), method, uri, status)
}

func TestWatchAccessLogRequiresExistingFile(t *testing.T) {
	_, err := WatchAccessLog(filepath.Join(t.TempDir(), "missing.log"), zaptest.NewLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to tail access log")
}

func TestAccessWatcherKeepsOnlyServerErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "access.log")

	// Lines present before the watcher starts must be ignored: the tail
	// begins at the end of the file.
	stale := accessLine(time.Now().Add(-time.Minute), "GET", "/stale", 500) + "\n"
	require.NoError(t, os.WriteFile(path, []byte(stale), 0o644))

	watcher, err := WatchAccessLog(path, zaptest.NewLogger(t))
	require.NoError(t, err)
	stopped := false
	defer func() {
		if !stopped {
			_ = watcher.Stop()
		}
	}()

	from := time.Now().Add(-time.Second)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	now := time.Now()
	for _, line := range []string{
		accessLine(now, "GET", "/products", 200),
		accessLine(now, "POST", "/api/cart/add", 503),
		accessLine(now, "GET", "/checkout", 500),
		"not an access log line",
	} {
		_, err = fmt.Fprintln(f, line)
		require.NoError(t, err)
	}
	require.NoError(t, f.Close())

	require.Eventually(t, func() bool {
		return len(watcher.ServerErrorsBetween(from, time.Now())) == 2
	}, 5*time.Second, 20*time.Millisecond, "watcher should pick up the two 5xx lines")

	got := watcher.ServerErrorsBetween(from, time.Now())
	require.Len(t, got, 2)
	assert.Contains(t, got[0], "POST /api/cart/add 503")
	assert.Contains(t, got[1], "GET /checkout 500")

	stopped = true
	require.NoError(t, watcher.Stop())
}

func TestServerErrorsBetweenWindowIsInclusive(t *testing.T) {
	base := time.Date(2026, 3, 14, 9, 26, 0, 0, time.UTC)
	watcher := &AccessWatcher{lines: []serverErrorLine{
		{at: base.Add(-time.Second), text: "before"},
		{at: base, text: "at from"},
		{at: base.Add(30 * time.Second), text: "inside"},
		{at: base.Add(time.Minute), text: "at to"},
		{at: base.Add(61 * time.Second), text: "after"},
	}}

	got := watcher.ServerErrorsBetween(base, base.Add(time.Minute))
	assert.Equal(t, []string{"at from", "inside", "at to"}, got)
}

func TestAccessWatcherCapsBufferedLines(t *testing.T) {
	watcher := &AccessWatcher{logger: zaptest.NewLogger(t)}
	start := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	for i := 0; i < maxServerErrorLines+25; i++ {
		at := start.Add(time.Duration(i) * time.Second)
		watcher.ingest(accessLine(at, "GET", fmt.Sprintf("/flaky/%d", i), 503))
	}

	got := watcher.ServerErrorsBetween(start, start.Add(time.Hour))
	require.Len(t, got, maxServerErrorLines)
	// Oldest lines are evicted first.
	assert.Contains(t, got[0], "/flaky/25 ")
	assert.Contains(t, got[len(got)-1], fmt.Sprintf("/flaky/%d ", maxServerErrorLines+24))
}
