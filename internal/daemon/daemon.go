package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/tutu-network/coord/internal/api"
	"github.com/tutu-network/coord/internal/app/commitreveal"
	"github.com/tutu-network/coord/internal/app/dhtfallback"
	"github.com/tutu-network/coord/internal/domain"
	"github.com/tutu-network/coord/internal/health"
	"github.com/tutu-network/coord/internal/infra/kvstore"
	"github.com/tutu-network/coord/internal/infra/memstore"
	"github.com/tutu-network/coord/internal/infra/sqlite"
	"github.com/tutu-network/coord/internal/security"
)

// gcInterval is how often the badger value log is compacted.
const gcInterval = 10 * time.Minute

// Daemon is the coordination node runtime. It wires together all services.
type Daemon struct {
	Config  Config
	Log     *logrus.Logger
	Keypair *security.Keypair

	Store    domain.ContentStore
	Registry domain.Registry
	DB       *sqlite.DB    // nil unless a sqlite backend is selected
	KV       *kvstore.Store // nil unless storage.backend = badger

	Commits *commitreveal.Manager
	DHT     *dhtfallback.Manager
	Health  *health.Checker
	Server  *api.Server

	closers []io.Closer
}

// New creates and initializes a Daemon from the on-disk configuration.
func New() (*Daemon, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return NewWithConfig(cfg)
}

// NewWithConfig creates a Daemon with the given configuration.
func NewWithConfig(cfg Config) (_ *Daemon, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	dataDir := cfg.Node.DataDir
	if dataDir == "" {
		dataDir = coordHome()
	}
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	d := &Daemon{Config: cfg}
	defer func() {
		if err != nil {
			_ = d.Close()
		}
	}()

	logger, logFile, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}
	d.Log = logger
	if logFile != nil {
		d.closers = append(d.closers, logFile)
	}
	log := logger.WithField("component", "daemon")

	// Identity (Ed25519)
	kp, err := security.LoadOrCreateKeypair(dataDir)
	if err != nil {
		return nil, fmt.Errorf("load keypair: %w", err)
	}
	d.Keypair = kp
	if d.Config.Node.ID == "" {
		d.Config.Node.ID = "node-" + kp.PublicKeyHex()[:16]
	}

	if err := d.openBackends(dataDir); err != nil {
		return nil, err
	}

	// Commit-reveal
	crCfg := commitreveal.DefaultConfig()
	crCfg.RevealDelay = cfg.RevealDelay()
	crCfg.EncryptTypes = cfg.EncryptTypes()
	crCfg.Logger = logger
	d.Commits = commitreveal.NewManager(crCfg, d.Store)

	// DHT fallback
	dhtCfg := dhtfallback.DefaultConfig()
	dhtCfg.MaxAge = parseDuration(cfg.DHT.MaxAge, dhtfallback.DefaultMaxAge)
	dhtCfg.MaxContents = cfg.DHT.MaxContents
	dhtCfg.PeerLimit = cfg.DHT.PeerLimit
	dhtCfg.Logger = logger
	d.DHT, err = dhtfallback.NewManager(dhtCfg, d.Registry)
	if err != nil {
		return nil, fmt.Errorf("dht fallback: %w", err)
	}

	// Health checker
	hOpts := health.Options{
		DataDir:    dataDir,
		TrackerURL: cfg.DHT.TrackerURL,
		Tracker:    d.DHT.IsTrackerAvailable,
		Interval:   parseDuration(cfg.Telemetry.HealthInterval, health.DefaultInterval),
		Logger:     logger,
	}
	if p, ok := d.Store.(health.Pinger); ok {
		hOpts.Store = p
	}
	if d.KV != nil {
		hOpts.StoreGC = d.KV.RunGC
	}
	d.Health = health.NewChecker(hOpts)

	// API server
	d.Server = api.NewServer(d.Commits, d.DHT, d.Store, logger)
	d.Server.SetChecker(d.Health)
	d.Server.SetTrackerURL(cfg.DHT.TrackerURL)
	if cfg.Telemetry.Prometheus {
		d.Server.EnableMetrics()
	}

	log.WithFields(logrus.Fields{
		"node":     d.Config.Node.ID,
		"storage":  cfg.Storage.Backend,
		"registry": cfg.Registry.Backend,
	}).Info("daemon initialized")
	return d, nil
}

// openBackends opens the content store and registry. The sqlite database
// is shared when both use it.
func (d *Daemon) openBackends(dataDir string) error {
	cfg := d.Config
	if cfg.Storage.Backend == BackendSQLite || cfg.Registry.Backend == BackendSQLite {
		db, err := sqlite.Open(dataDir)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		d.DB = db
		d.closers = append(d.closers, db)
	}

	switch cfg.Storage.Backend {
	case BackendSQLite:
		d.Store = d.DB
	case BackendBadger:
		kv, err := kvstore.Open(kvstore.Config{
			Dir:    filepath.Join(dataDir, "kv"),
			Logger: d.Log,
		})
		if err != nil {
			return err
		}
		d.KV = kv
		d.Store = kv
		d.closers = append(d.closers, kv)
	case BackendMemory:
		d.Store = memstore.NewStore()
	}

	switch cfg.Registry.Backend {
	case BackendSQLite:
		if cfg.Registry.MinReputation > 0 {
			if err := d.DB.SetMinReputation(context.Background(), cfg.Registry.MinReputation); err != nil {
				return fmt.Errorf("seed min reputation: %w", err)
			}
		}
		d.Registry = d.DB
	case BackendMemory:
		d.Registry = memstore.NewRegistry(cfg.Registry.MinReputation)
	}
	return nil
}

// Serve listens on the configured address and blocks until ctx is done or
// SIGINT/SIGTERM arrives.
func (d *Daemon) Serve(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", d.Config.API.Host, d.Config.API.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return d.ServeListener(ctx, ln)
}

// ServeListener runs the HTTP server on ln together with the peer-table
// sweeper, the health loop and, for badger, value log GC. It returns when
// ctx is done or any of them fails.
func (d *Daemon) ServeListener(ctx context.Context, ln net.Listener) error {
	log := d.Log.WithField("component", "daemon")

	httpServer := &http.Server{
		Handler:      d.Server.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  2 * time.Minute,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := httpServer.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		d.DHT.RunSweeper(ctx, parseDuration(d.Config.DHT.SweepInterval, time.Minute))
		return nil
	})

	g.Go(func() error {
		d.Health.Run(ctx)
		return nil
	})

	if d.KV != nil {
		g.Go(func() error {
			ticker := time.NewTicker(gcInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					if err := d.KV.RunGC(); err != nil {
						log.WithError(err).Warn("value log gc failed")
					}
				}
			}
		})
	}

	log.WithField("addr", ln.Addr().String()).Info("coordination node serving")
	if d.Config.Telemetry.Prometheus {
		log.Infof("metrics: http://%s/metrics", ln.Addr())
	}

	return g.Wait()
}

// Close releases every opened resource, collecting all errors.
func (d *Daemon) Close() error {
	var err error
	for i := len(d.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, d.closers[i].Close())
	}
	d.closers = nil
	return err
}

// NewLogger builds the process logger from config. The returned file, if
// any, must be closed by the caller.
func NewLogger(cfg LoggingConfig) (*logrus.Logger, *os.File, error) {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	if cfg.File == "" {
		logger.SetOutput(os.Stderr)
		return logger, nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.File), 0700); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	logger.SetOutput(f)
	return logger, f, nil
}
