package taskfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWatcherReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tasks.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tasks: []\n"), 0o644))

	reloads := make(chan string, 10)
	w, err := NewWatcher(path, func(ctx context.Context, p string) error {
		reloads <- p
		return nil
	}, WithDebounce(100*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Other files in the directory are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x"), 0o644))

	require.NoError(t, os.WriteFile(path, []byte("tasks:\n  - name: a\n"), 0o644))

	select {
	case p := <-reloads:
		abs, _ := filepath.Abs(path)
		require.Equal(t, abs, p)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}

	// Several writes in quick succession coalesce.
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte("tasks: []\n"), 0o644))
	}
	select {
	case <-reloads:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
	select {
	case <-reloads:
		t.Fatal("burst of writes reloaded more than once")
	case <-time.After(500 * time.Millisecond):
	}
}
