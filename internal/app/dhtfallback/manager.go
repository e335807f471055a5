// Package dhtfallback admits signed peer announcements into a local,
// per-content peer table when the central tracker is unreachable.
//
// Admission pipeline, evaluated in order and short-circuiting:
//  1. announcer registered on chain
//  2. announced public key equals the registry's key for that user
//  3. live reputation (from the registry, never the embedded snapshot)
//     meets the current minimum
//  4. Ed25519 signature over the canonical message verifies
//  5. announcement is not older than MaxAge
//  6. table mutation: "stopped" removes, anything else upserts
//
// The on-chain registry is the source of truth for identity and
// reputation; the table itself is ephemeral.
package dhtfallback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/tutu-network/coord/internal/domain"
	"github.com/tutu-network/coord/internal/infra/metrics"
	"github.com/tutu-network/coord/internal/security"
)

// ─── Protocol Parameters ────────────────────────────────────────────────────

const (
	DefaultMaxAge       = 5 * time.Minute // replay window for announcements
	TrackerProbeTimeout = 5 * time.Second
	DefaultPeerLimit    = 50
	DefaultMaxContents  = 10000
)

// Config controls a Manager.
type Config struct {
	MaxAge      time.Duration
	MaxContents int // content hashes kept; least recently announced evicted first
	PeerLimit   int // default GetPeers sample size

	HTTPClient *http.Client
	Clock      clock.Clock
	Logger     *logrus.Logger
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MaxAge:      DefaultMaxAge,
		MaxContents: DefaultMaxContents,
		PeerLimit:   DefaultPeerLimit,
	}
}

// peerSet maps public key → PeerInfo for one content hash.
type peerSet map[string]domain.PeerInfo

// Manager holds the authenticated peer table.
type Manager struct {
	cfg      Config
	registry domain.Registry
	clock    clock.Clock
	client   *http.Client
	log      *logrus.Entry

	mu    sync.Mutex
	table *lru.Cache[string, peerSet]
	total int
}

// NewManager creates a DHT fallback manager backed by registry.
func NewManager(cfg Config, registry domain.Registry) (*Manager, error) {
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultMaxAge
	}
	if cfg.MaxContents <= 0 {
		cfg.MaxContents = DefaultMaxContents
	}
	if cfg.PeerLimit <= 0 {
		cfg.PeerLimit = DefaultPeerLimit
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
		cfg.Logger.SetOutput(io.Discard)
	}

	m := &Manager{
		cfg:      cfg,
		registry: registry,
		clock:    cfg.Clock,
		client:   cfg.HTTPClient,
		log:      cfg.Logger.WithField("component", "dht"),
	}

	// Runs under m.mu: every Add/Remove happens with the lock held.
	table, err := lru.NewWithEvict(cfg.MaxContents, func(contentHash string, peers peerSet) {
		m.total -= len(peers)
	})
	if err != nil {
		return nil, fmt.Errorf("create peer table: %w", err)
	}
	m.table = table
	return m, nil
}

// ProcessAnnouncement runs the admission pipeline. Hostile or malformed
// announcements are expected input: they return false, never an error.
func (m *Manager) ProcessAnnouncement(ctx context.Context, ann *domain.DHTAnnouncement) bool {
	start := time.Now()
	err := m.Admit(ctx, ann)
	metrics.AdmissionLatency.Observe(time.Since(start).Seconds())
	metrics.AnnouncementsTotal.WithLabelValues(resultLabel(err)).Inc()

	if err != nil {
		entry := m.log.WithError(err)
		if ann != nil {
			entry = entry.WithFields(logrus.Fields{
				"content": ann.ContentHash,
				"user":    ann.Peer.UserID,
				"event":   ann.Event,
			})
		}
		entry.Debug("announcement rejected")
		return false
	}
	return true
}

// Admit is ProcessAnnouncement returning the specific rejection reason.
func (m *Manager) Admit(ctx context.Context, ann *domain.DHTAnnouncement) error {
	if ann == nil {
		return fmt.Errorf("%w: nil announcement", domain.ErrInvalidEvent)
	}
	if !ann.Event.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidEvent, ann.Event)
	}
	peer := &ann.Peer

	// 1. Registration
	user, err := m.registry.GetUser(ctx, peer.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return fmt.Errorf("%w: %s", domain.ErrNotRegistered, peer.UserID)
		}
		return fmt.Errorf("%w: registry lookup: %v", domain.ErrNotRegistered, err)
	}
	if !user.Active {
		return fmt.Errorf("%w: %s inactive", domain.ErrNotRegistered, peer.UserID)
	}

	// 2. Key binding
	if user.PublicKey != peer.PublicKey {
		return fmt.Errorf("%w: user %s", domain.ErrKeyMismatch, peer.UserID)
	}

	// 3. Live reputation
	reputation := CalculateReputation(user.Uploaded, user.Downloaded)
	minRep, err := m.registry.GetMinReputation(ctx)
	if err != nil {
		return fmt.Errorf("%w: registry min reputation: %v", domain.ErrInsufficientReputation, err)
	}
	if reputation < minRep {
		return &domain.InsufficientReputationError{Actual: reputation, Required: minRep}
	}

	// 4. Signature
	if !security.VerifyHex(peer.PublicKey, CanonicalMessageFor(ann), peer.Signature) {
		return domain.ErrInvalidSignature
	}

	// 5. Freshness
	age := m.clock.Now().Sub(peer.AnnouncedAt())
	if age > m.cfg.MaxAge {
		return &domain.StaleError{Age: age, MaxAge: m.cfg.MaxAge}
	}

	// 6. Mutation
	m.apply(ann)
	return nil
}

func (m *Manager) apply(ann *domain.DHTAnnouncement) {
	m.mu.Lock()
	defer m.mu.Unlock()

	peers, ok := m.table.Get(ann.ContentHash)
	if ann.Event == domain.EventStopped {
		if !ok {
			return
		}
		if _, present := peers[ann.Peer.PublicKey]; present {
			delete(peers, ann.Peer.PublicKey)
			m.total--
		}
		if len(peers) == 0 {
			m.table.Remove(ann.ContentHash)
		}
		m.publishGauges()
		return
	}

	if !ok {
		peers = make(peerSet)
		m.table.Add(ann.ContentHash, peers)
	}
	if _, present := peers[ann.Peer.PublicKey]; !present {
		m.total++
	}
	peers[ann.Peer.PublicKey] = ann.Peer
	m.publishGauges()
}

// GetPeers returns a uniformly shuffled sample of at most limit peers for
// contentHash. limit <= 0 uses the configured default.
func (m *Manager) GetPeers(contentHash string, limit int) []domain.PeerInfo {
	if limit <= 0 {
		limit = m.cfg.PeerLimit
	}

	m.mu.Lock()
	peers, ok := m.table.Peek(contentHash)
	out := make([]domain.PeerInfo, 0, len(peers))
	if ok {
		for _, p := range peers {
			out = append(out, p)
		}
	}
	m.mu.Unlock()

	// Fisher–Yates over the full set before truncating, so the sample is
	// not biased by map or insertion order.
	for i := len(out) - 1; i > 0; i-- {
		j := rand.Intn(i + 1)
		out[i], out[j] = out[j], out[i]
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Stats returns aggregate table counts.
func (m *Manager) Stats() domain.PeerStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return domain.PeerStats{
		ContentCount: m.table.Len(),
		TotalPeers:   m.total,
	}
}

// Sweep drops entries older than MaxAge and returns how many were removed.
func (m *Manager) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	removed := 0
	for _, contentHash := range m.table.Keys() {
		peers, ok := m.table.Peek(contentHash)
		if !ok {
			continue
		}
		for key, p := range peers {
			if now.Sub(p.AnnouncedAt()) > m.cfg.MaxAge {
				delete(peers, key)
				m.total--
				removed++
			}
		}
		if len(peers) == 0 {
			m.table.Remove(contentHash)
		}
	}

	if removed > 0 {
		metrics.PeersSwept.Add(float64(removed))
		m.log.WithField("removed", removed).Debug("swept stale peers")
	}
	m.publishGauges()
	return removed
}

// RunSweeper calls Sweep every interval until ctx is done.
func (m *Manager) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = m.cfg.MaxAge / 5
	}
	ticker := m.clock.Ticker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// IsTrackerAvailable probes trackerURL with a fixed 5 second timeout.
// Any transport error or non-2xx status counts as unavailable.
func (m *Manager) IsTrackerAvailable(ctx context.Context, trackerURL string) bool {
	ctx, cancel := context.WithTimeout(ctx, TrackerProbeTimeout)
	defer cancel()

	up := m.probe(ctx, trackerURL)
	if up {
		metrics.TrackerProbes.WithLabelValues("up").Inc()
	} else {
		metrics.TrackerProbes.WithLabelValues("down").Inc()
	}
	return up
}

func (m *Manager) probe(ctx context.Context, trackerURL string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, trackerURL, nil)
	if err != nil {
		return false
	}
	resp, err := m.client.Do(req)
	if err != nil {
		m.log.WithError(err).WithField("tracker", trackerURL).Debug("tracker unreachable")
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// publishGauges must be called with m.mu held.
func (m *Manager) publishGauges() {
	metrics.PeerTableContents.Set(float64(m.table.Len()))
	metrics.PeerTableEntries.Set(float64(m.total))
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "accepted"
	case errors.Is(err, domain.ErrNotRegistered):
		return "unregistered"
	case errors.Is(err, domain.ErrKeyMismatch):
		return "key_mismatch"
	case errors.Is(err, domain.ErrInsufficientReputation):
		return "insufficient_reputation"
	case errors.Is(err, domain.ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, domain.ErrStale):
		return "stale"
	case errors.Is(err, domain.ErrInvalidEvent):
		return "invalid_event"
	default:
		return "error"
	}
}
