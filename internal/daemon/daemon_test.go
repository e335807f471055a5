package daemon

import (
	"context"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutu-network/coord/internal/infra/kvstore"
	"github.com/tutu-network/coord/internal/infra/memstore"
	"github.com/tutu-network/coord/internal/infra/sqlite"
)

func testConfig(t *testing.T, storage, registry string) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Node.DataDir = t.TempDir()
	cfg.Storage.Backend = storage
	cfg.Registry.Backend = registry
	cfg.Logging.Level = "error"
	return cfg
}

func TestNewWithConfig_Backends(t *testing.T) {
	tests := []struct {
		storage, registry string
		check             func(t *testing.T, d *Daemon)
	}{
		{BackendSQLite, BackendSQLite, func(t *testing.T, d *Daemon) {
			require.NotNil(t, d.DB)
			assert.IsType(t, &sqlite.DB{}, d.Store)
			assert.IsType(t, &sqlite.DB{}, d.Registry)
		}},
		{BackendBadger, BackendMemory, func(t *testing.T, d *Daemon) {
			assert.Nil(t, d.DB)
			require.NotNil(t, d.KV)
			assert.IsType(t, &kvstore.Store{}, d.Store)
			assert.IsType(t, &memstore.Registry{}, d.Registry)
		}},
		{BackendMemory, BackendSQLite, func(t *testing.T, d *Daemon) {
			require.NotNil(t, d.DB)
			assert.IsType(t, &memstore.Store{}, d.Store)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.storage+"/"+tt.registry, func(t *testing.T) {
			d, err := NewWithConfig(testConfig(t, tt.storage, tt.registry))
			require.NoError(t, err)
			defer d.Close()

			tt.check(t, d)
			assert.NotNil(t, d.Keypair)
			assert.Contains(t, d.Config.Node.ID, "node-")
		})
	}
}

func TestNewWithConfig_SeedsMinReputation(t *testing.T) {
	cfg := testConfig(t, BackendMemory, BackendSQLite)
	cfg.Registry.MinReputation = 2500

	d, err := NewWithConfig(cfg)
	require.NoError(t, err)
	defer d.Close()

	v, err := d.Registry.GetMinReputation(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(2500), v)
}

func TestNewWithConfig_InvalidBackend(t *testing.T) {
	cfg := testConfig(t, "tape", BackendMemory)
	_, err := NewWithConfig(cfg)
	assert.Error(t, err)
}

func TestNewWithConfig_LogFile(t *testing.T) {
	cfg := testConfig(t, BackendMemory, BackendMemory)
	cfg.Logging.File = filepath.Join(cfg.Node.DataDir, "logs", "coord.log")
	cfg.Logging.Level = "info"

	d, err := NewWithConfig(cfg)
	require.NoError(t, err)
	assert.FileExists(t, cfg.Logging.File)
	assert.NoError(t, d.Close())
}

func TestServeListener_ServesAndStops(t *testing.T) {
	d, err := NewWithConfig(testConfig(t, BackendMemory, BackendMemory))
	require.NoError(t, err)
	defer d.Close()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- d.ServeListener(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/health"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("ServeListener did not return after cancel")
	}
}

func TestNewLogger(t *testing.T) {
	logger, f, err := NewLogger(LoggingConfig{Level: "debug", Format: "json"})
	require.NoError(t, err)
	assert.Nil(t, f)
	assert.Equal(t, "debug", logger.GetLevel().String())

	logger, _, err = NewLogger(LoggingConfig{Level: "nonsense"})
	require.NoError(t, err)
	assert.Equal(t, "info", logger.GetLevel().String())
}
