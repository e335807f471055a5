package health

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutu-network/coord/internal/infra/memstore"
	"github.com/tutu-network/coord/internal/infra/sqlite"
)

type flakyStore struct{ err error }

func (f *flakyStore) Ping() error { return f.err }

// ─── Checker Tests ──────────────────────────────────────────────────────────

func TestNewChecker_SelectsChecks(t *testing.T) {
	c := NewChecker(Options{})
	assert.Empty(t, c.checks)

	c = NewChecker(Options{
		Store:      memstore.NewStore(),
		DataDir:    t.TempDir(),
		TrackerURL: "http://tracker",
		Tracker:    func(context.Context, string) bool { return true },
	})
	require.Len(t, c.checks, 3)
	assert.Equal(t, "content_store", c.checks[0].Name)
	assert.Equal(t, "data_dir", c.checks[1].Name)
	assert.Equal(t, "tracker", c.checks[2].Name)
}

func TestChecker_RunOnceHealthy(t *testing.T) {
	db, err := sqlite.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	c := NewChecker(Options{Store: db, DataDir: t.TempDir()})
	c.RunOnce(context.Background())

	statuses := c.Statuses()
	require.Len(t, statuses, 2)
	for _, s := range statuses {
		assert.True(t, s.Healthy, "check %q: %s", s.Name, s.Error)
	}
	assert.True(t, c.IsHealthy())
}

func TestChecker_IsHealthy_BeforeRun(t *testing.T) {
	c := NewChecker(Options{Store: &flakyStore{err: errors.New("down")}})
	assert.True(t, c.IsHealthy(), "vacuously healthy with no statuses")
}

func TestChecker_StoreFailureTriggersRecovery(t *testing.T) {
	var gcRuns atomic.Int32
	c := NewChecker(Options{
		Store:   &flakyStore{err: errors.New("closed")},
		StoreGC: func() error { gcRuns.Add(1); return nil },
	})
	c.RunOnce(context.Background())

	assert.False(t, c.IsHealthy())
	assert.Equal(t, int32(1), gcRuns.Load())
	assert.Equal(t, "closed", c.Statuses()[0].Error)
}

func TestChecker_DataDirRecovery(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	c := NewChecker(Options{DataDir: dir})

	c.RunOnce(context.Background())
	assert.False(t, c.IsHealthy())

	_, err := os.Stat(dir)
	require.NoError(t, err, "recovery should have created the directory")

	c.RunOnce(context.Background())
	assert.True(t, c.IsHealthy())
}

func TestChecker_DataDirIsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0600))

	err := checkDataDir(path)
	assert.ErrorIs(t, err, errNotDir)
}

func TestChecker_TrackerDownIsAdvisory(t *testing.T) {
	c := NewChecker(Options{
		Store:      memstore.NewStore(),
		TrackerURL: "http://tracker",
		Tracker:    func(context.Context, string) bool { return false },
	})
	c.RunOnce(context.Background())

	statuses := c.Statuses()
	require.Len(t, statuses, 2)
	assert.False(t, statuses[1].Healthy)
	assert.True(t, c.IsHealthy())
}

func TestChecker_AddCheck(t *testing.T) {
	c := NewChecker(Options{})
	c.AddCheck(Check{Name: "custom", CheckFn: func(context.Context) error { return errors.New("nope") }})
	c.RunOnce(context.Background())
	assert.False(t, c.IsHealthy())
}

func TestChecker_RunStopsOnCancel(t *testing.T) {
	mock := clock.NewMock()
	var runs atomic.Int32
	c := NewChecker(Options{Clock: mock, Interval: time.Second})
	c.AddCheck(Check{Name: "count", CheckFn: func(context.Context) error { runs.Add(1); return nil }})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return runs.Load() >= 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
