package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRunInvokesHandlerOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "source.py")
	require.NoError(t, os.WriteFile(path, []byte("x = 1\n"), 0o644))

	w, err := New(path)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	seen := make(chan string, 1)
	go w.Run(ctx, func(text string) { seen <- text })

	require.NoError(t, os.WriteFile(path, []byte("x = 2\n"), 0o644))

	select {
	case text := <-seen:
		require.Equal(t, "x = 2\n", text)
	case <-time.After(5 * time.Second):
		t.Fatal("handler was not invoked after write")
	}
}

func TestRunIgnoresOtherFilesInDirectory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "source.py")
	require.NoError(t, os.WriteFile(path, []byte("x = 1\n"), 0o644))

	w, err := New(path)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	seen := make(chan string, 1)
	go w.Run(ctx, func(text string) { seen <- text })

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.txt"), []byte("noise"), 0o644))
	require.NoError(t, os.WriteFile(path, []byte("x = 3\n"), 0o644))

	select {
	case text := <-seen:
		require.Equal(t, "x = 3\n", text)
	case <-time.After(5 * time.Second):
		t.Fatal("handler was not invoked after the real write")
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "source.py")
	require.NoError(t, os.WriteFile(path, []byte("x = 1\n"), 0o644))

	w, err := New(path)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx, func(string) {})
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}
