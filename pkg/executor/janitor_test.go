package executor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func touch(t *testing.T, path string, mtime time.Time) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func TestJanitor_Sweep(t *testing.T) {
	e := newTestEngine(t, &fakeRunner{})
	dir := e.Config().WorkDir
	now := time.Now()

	touch(t, filepath.Join(dir, "script-old.sh"), now.Add(-time.Hour))
	touch(t, filepath.Join(dir, "script-fresh.py"), now.Add(-time.Second))
	touch(t, filepath.Join(dir, "unrelated.txt"), now.Add(-time.Hour))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "script-dir"), 0o700))

	j := NewJanitor(e, zap.NewNop())
	assert.Equal(t, 10*time.Second, j.maxAge)

	removed, err := j.Sweep()
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	assert.NoFileExists(t, filepath.Join(dir, "script-old.sh"))
	assert.FileExists(t, filepath.Join(dir, "script-fresh.py"))
	assert.FileExists(t, filepath.Join(dir, "unrelated.txt"))
	assert.DirExists(t, filepath.Join(dir, "script-dir"))
}

func TestJanitor_SweepMissingDir(t *testing.T) {
	e := newTestEngine(t, &fakeRunner{})
	j := NewJanitor(e, zap.NewNop())
	j.dir = filepath.Join(t.TempDir(), "gone")

	_, err := j.Sweep()
	assert.Error(t, err)
}

func TestJanitor_RunSweepsImmediately(t *testing.T) {
	e := newTestEngine(t, &fakeRunner{})
	old := filepath.Join(e.Config().WorkDir, "script-stale.sh")
	touch(t, old, time.Now().Add(-time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewJanitor(e, zap.NewNop()).Run(ctx, "@every 1h") }()

	assert.Eventually(t, func() bool {
		_, err := os.Stat(old)
		return os.IsNotExist(err)
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("janitor did not stop")
	}
}

func TestJanitor_RunInvalidSchedule(t *testing.T) {
	e := newTestEngine(t, &fakeRunner{})
	err := NewJanitor(e, zap.NewNop()).Run(context.Background(), "whenever")
	assert.ErrorContains(t, err, "invalid janitor schedule")
}
