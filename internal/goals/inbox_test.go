package goals

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// drop writes a plan under a temporary name and renames it into place so
// the watcher never sees a partial file.
func drop(t *testing.T, dir, name, body string) {
	t.Helper()
	tmp := filepath.Join(dir, "."+name+".tmp")
	require.NoError(t, os.WriteFile(tmp, []byte(body), 0o644))
	require.NoError(t, os.Rename(tmp, filepath.Join(dir, name)))
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestWatchInbox(t *testing.T) {
	dir := t.TempDir()
	drop(t, dir, "early.yaml", "goals:\n  - kind: sell\n    priority: economic\n")

	var mu sync.Mutex
	var got []*Plan
	submit := func(_ context.Context, p *Plan) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, p)
		return nil
	}
	count := func() int {
		mu.Lock()
		defer mu.Unlock()
		return len(got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- WatchInbox(ctx, dir, submit) }()

	require.Eventually(t, func() bool { return exists(filepath.Join(dir, "early.yaml"+SuffixDone)) }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, count())

	drop(t, dir, "later.yaml", "goals:\n  - kind: mining\n    priority: urgent\n    target: X1-A-ROCK\n")
	require.Eventually(t, func() bool { return exists(filepath.Join(dir, "later.yaml"+SuffixDone)) }, 2*time.Second, 10*time.Millisecond)

	drop(t, dir, "broken.yaml", "goals:\n  - kind: piracy\n    priority: urgent\n")
	require.Eventually(t, func() bool { return exists(filepath.Join(dir, "broken.yaml"+SuffixFailed)) }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 2, count())
	assert.False(t, exists(filepath.Join(dir, "broken.yaml")))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
