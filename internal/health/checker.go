// Package health runs periodic liveness checks for the coordination node
// and attempts recovery when a check fails.
package health

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"github.com/tutu-network/coord/internal/infra/metrics"
)

// DefaultInterval is how often Run re-evaluates every check.
const DefaultInterval = 60 * time.Second

// Check defines a single health check with optional recovery action.
type Check struct {
	Name      string
	CheckFn   func(ctx context.Context) error
	RecoverFn func(ctx context.Context) error
}

// Status represents the result of a health check.
type Status struct {
	Name      string    `json:"name"`
	Healthy   bool      `json:"healthy"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Pinger is implemented by every content store backend.
type Pinger interface {
	Ping() error
}

// TrackerProbe reports whether the central tracker answers.
type TrackerProbe func(ctx context.Context, url string) bool

// Options selects which checks NewChecker installs. Zero fields skip
// the corresponding check.
type Options struct {
	Store      Pinger
	StoreGC    func() error // recovery for the content store, if any
	DataDir    string
	TrackerURL string
	Tracker    TrackerProbe

	Interval time.Duration
	Clock    clock.Clock
	Logger   *logrus.Logger
}

// Checker runs periodic health checks with auto-recovery.
type Checker struct {
	mu       sync.RWMutex
	checks   []Check
	statuses []Status
	interval time.Duration
	clock    clock.Clock
	log      *logrus.Entry
}

// NewChecker creates a checker with the checks opts enables.
func NewChecker(opts Options) *Checker {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
		opts.Logger.SetOutput(io.Discard)
	}

	c := &Checker{
		interval: opts.Interval,
		clock:    opts.Clock,
		log:      opts.Logger.WithField("component", "health"),
	}

	if opts.Store != nil {
		store := opts.Store
		check := Check{
			Name:    "content_store",
			CheckFn: func(ctx context.Context) error { return store.Ping() },
		}
		if opts.StoreGC != nil {
			gc := opts.StoreGC
			check.RecoverFn = func(ctx context.Context) error { return gc() }
		}
		c.checks = append(c.checks, check)
	}

	if opts.DataDir != "" {
		dir := opts.DataDir
		c.checks = append(c.checks, Check{
			Name:    "data_dir",
			CheckFn: func(ctx context.Context) error { return checkDataDir(dir) },
			RecoverFn: func(ctx context.Context) error {
				return os.MkdirAll(dir, 0700)
			},
		})
	}

	// The tracker being down is what the DHT fallback exists for, so the
	// check reports it without any recovery.
	if opts.TrackerURL != "" && opts.Tracker != nil {
		url, probe := opts.TrackerURL, opts.Tracker
		c.checks = append(c.checks, Check{
			Name: "tracker",
			CheckFn: func(ctx context.Context) error {
				if !probe(ctx, url) {
					return fmt.Errorf("tracker %s unreachable", url)
				}
				return nil
			},
		})
	}

	return c
}

// AddCheck appends a custom check.
func (c *Checker) AddCheck(check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks = append(c.checks, check)
}

// Run starts the health check loop. Call in a goroutine.
func (c *Checker) Run(ctx context.Context) {
	c.RunOnce(ctx)

	ticker := c.clock.Ticker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.RunOnce(ctx)
		}
	}
}

// RunOnce evaluates every check once.
func (c *Checker) RunOnce(ctx context.Context) {
	c.mu.RLock()
	checks := append([]Check(nil), c.checks...)
	c.mu.RUnlock()

	statuses := make([]Status, len(checks))
	for i, check := range checks {
		s := Status{
			Name:      check.Name,
			CheckedAt: c.clock.Now(),
			Healthy:   true,
		}
		if err := check.CheckFn(ctx); err != nil {
			s.Healthy = false
			s.Error = err.Error()
			c.log.WithError(err).WithField("check", check.Name).Warn("health check failed")
			if check.RecoverFn != nil {
				if rerr := check.RecoverFn(ctx); rerr != nil {
					c.log.WithError(rerr).WithField("check", check.Name).Warn("recovery failed")
				} else {
					metrics.HealthRecoveries.WithLabelValues(check.Name).Inc()
				}
			}
		}
		if s.Healthy {
			metrics.HealthCheckStatus.WithLabelValues(check.Name).Set(1)
		} else {
			metrics.HealthCheckStatus.WithLabelValues(check.Name).Set(0)
		}
		statuses[i] = s
	}

	c.mu.Lock()
	c.statuses = statuses
	c.mu.Unlock()
}

// Statuses returns the latest health check results.
func (c *Checker) Statuses() []Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]Status, len(c.statuses))
	copy(result, c.statuses)
	return result
}

// IsHealthy returns true if all checks pass. The tracker check is
// advisory and does not count.
func (c *Checker) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.statuses {
		if !s.Healthy && s.Name != "tracker" {
			return false
		}
	}
	return true
}

// ─── Check Implementations ──────────────────────────────────────────────────

var errNotDir = errors.New("not a directory")

func checkDataDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("check data dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s: %w", dir, errNotDir)
	}
	return nil
}
