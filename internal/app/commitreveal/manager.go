// Package commitreveal implements the two-phase publish protocol: commit to
// the hash of a payload, wait out the reveal delay, then disclose the
// payload. Any third party with access to the content store can audit a
// commit/reveal pair without the manager that produced it.
package commitreveal

import (
	"context"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"github.com/tutu-network/coord/internal/domain"
	"github.com/tutu-network/coord/internal/infra/metrics"
	"github.com/tutu-network/coord/internal/security"
)

// DefaultRevealDelay is used when Config.RevealDelay is negative.
const DefaultRevealDelay = 30 * time.Second

// Config controls a Manager.
type Config struct {
	// RevealDelay is the mandatory wait between commit and reveal.
	// Zero degrades to immediate disclosure, which tests rely on.
	RevealDelay time.Duration

	// EncryptTypes lists data types whose revealed payload is uploaded
	// with the encryption flag set.
	EncryptTypes []domain.DataType

	Clock  clock.Clock
	Logger *logrus.Logger
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		RevealDelay:  DefaultRevealDelay,
		EncryptTypes: []domain.DataType{domain.DataTrainingData, domain.DataModelUpdate},
	}
}

// commitmentRecord is the public record persisted at commit time. It holds
// the hash only, never the payload.
type commitmentRecord struct {
	ID              string          `json:"id"`
	DataHash        string          `json:"data_hash"`
	CommitTimestamp time.Time       `json:"commit_timestamp"`
	RevealAfter     time.Time       `json:"reveal_after"`
	DataType        domain.DataType `json:"data_type"`
	Nonce           uint64          `json:"nonce"`
}

// Manager orchestrates commits and reveals for one process.
type Manager struct {
	cfg   Config
	store domain.ContentStore
	clock clock.Clock
	log   *logrus.Entry

	mu          sync.Mutex
	nonce       uint64
	commitments map[string]*domain.Commitment
	order       []string
	reveals     map[string]*domain.Reveal
}

// NewManager creates a commit-reveal manager persisting to store.
func NewManager(cfg Config, store domain.ContentStore) *Manager {
	if cfg.RevealDelay < 0 {
		cfg.RevealDelay = DefaultRevealDelay
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
		cfg.Logger.SetOutput(io.Discard)
	}

	return &Manager{
		cfg:         cfg,
		store:       store,
		clock:       cfg.Clock,
		log:         cfg.Logger.WithField("component", "commitreveal"),
		commitments: make(map[string]*domain.Commitment),
		reveals:     make(map[string]*domain.Reveal),
	}
}

// Commit pins the hash of data and persists the public commitment record.
// Storage failures propagate unchanged and leave no table entry behind.
// The nonce is consumed either way.
func (m *Manager) Commit(ctx context.Context, data []byte, dataType domain.DataType) (*domain.Commitment, error) {
	dataHash := security.ComputeDataHash(data)

	m.mu.Lock()
	m.nonce++
	nonce := m.nonce
	m.mu.Unlock()

	now := m.clock.Now()
	c := &domain.Commitment{
		ID:              fmt.Sprintf("commit-%d-%d", now.UnixMilli(), nonce),
		DataHash:        dataHash,
		CommitTimestamp: now,
		RevealAfter:     now.Add(m.cfg.RevealDelay),
		DataType:        dataType,
		Nonce:           nonce,
	}

	res, err := m.store.UploadJSON(ctx, commitmentRecord{
		ID:              c.ID,
		DataHash:        c.DataHash,
		CommitTimestamp: c.CommitTimestamp,
		RevealAfter:     c.RevealAfter,
		DataType:        c.DataType,
		Nonce:           c.Nonce,
	}, domain.UploadOptions{
		Encrypted: false,
		Tags: map[string]string{
			"type":          "commitment",
			"commitment-id": c.ID,
			"data-type":     string(dataType),
			"data-hash":     dataHash,
		},
	})
	if err != nil {
		m.log.WithError(err).WithField("commitment", c.ID).Warn("persist commitment failed")
		return nil, err
	}
	c.StorageID = res.ID

	m.mu.Lock()
	m.commitments[c.ID] = c
	m.order = append(m.order, c.ID)
	m.mu.Unlock()

	metrics.CommitmentsCreated.WithLabelValues(string(dataType)).Inc()
	m.log.WithFields(logrus.Fields{
		"commitment":   c.ID,
		"data_type":    dataType,
		"reveal_after": c.RevealAfter,
	}).Debug("commitment created")

	out := *c
	return &out, nil
}

// Reveal discloses data for a commitment. It fails with ErrUnknownCommitment,
// a *RevealTooEarlyError or a *HashMismatchError, in that order. A second
// reveal of the same data overwrites the first record with identical content.
func (m *Manager) Reveal(ctx context.Context, commitmentID string, data []byte) (*domain.Reveal, error) {
	c, ok := m.lookup(commitmentID)
	if !ok {
		metrics.RevealsTotal.WithLabelValues("unknown").Inc()
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownCommitment, commitmentID)
	}

	now := m.clock.Now()
	if !c.RevealableAt(now) {
		metrics.RevealsTotal.WithLabelValues("too_early").Inc()
		return nil, &domain.RevealTooEarlyError{
			CommitmentID: commitmentID,
			Remaining:    c.RevealAfter.Sub(now),
		}
	}

	got := security.ComputeDataHash(data)
	if got != c.DataHash {
		metrics.RevealsTotal.WithLabelValues("hash_mismatch").Inc()
		m.log.WithField("commitment", commitmentID).Warn("reveal rejected: hash mismatch")
		return nil, &domain.HashMismatchError{Expected: c.DataHash, Got: got}
	}

	payload, err := m.store.Upload(ctx, data, domain.UploadOptions{
		Encrypted: m.shouldEncrypt(c.DataType),
		Tags: map[string]string{
			"type":          "reveal",
			"commitment-id": commitmentID,
			"data-type":     string(c.DataType),
			"data-hash":     got,
		},
	})
	if err != nil {
		return nil, err
	}

	receipt, err := m.store.UploadJSON(ctx, domain.RevealReceipt{
		CommitmentID:     commitmentID,
		DataHash:         got,
		RevealTimestamp:  now,
		PayloadStorageID: payload.ID,
	}, domain.UploadOptions{
		Tags: map[string]string{
			"type":          "reveal-receipt",
			"commitment-id": commitmentID,
		},
	})
	if err != nil {
		return nil, err
	}

	r := &domain.Reveal{
		CommitmentID:     commitmentID,
		Data:             append([]byte(nil), data...),
		DataHash:         got,
		RevealTimestamp:  now,
		StorageID:        payload.ID,
		ReceiptStorageID: receipt.ID,
	}

	m.mu.Lock()
	m.reveals[commitmentID] = r
	m.mu.Unlock()

	metrics.RevealsTotal.WithLabelValues("ok").Inc()
	m.log.WithField("commitment", commitmentID).Debug("commitment revealed")

	out := *r
	return &out, nil
}

// VerifyReveal recomputes the hash of revealedData against the commitment.
// It never mutates state and ignores timing.
func (m *Manager) VerifyReveal(commitmentID string, revealedData []byte) domain.VerifyResult {
	c, ok := m.lookup(commitmentID)
	if !ok {
		return domain.VerifyResult{Error: domain.ErrUnknownCommitment.Error()}
	}
	if !security.VerifyDataHash(revealedData, c.DataHash) {
		return domain.VerifyResult{Error: domain.ErrHashMismatch.Error()}
	}
	return domain.VerifyResult{Valid: true}
}

// CanReveal reports whether the reveal delay has passed. Unknown ids
// return false.
func (m *Manager) CanReveal(commitmentID string) bool {
	c, ok := m.lookup(commitmentID)
	if !ok {
		return false
	}
	return c.RevealableAt(m.clock.Now())
}

// WaitForReveal blocks until the commitment may be revealed or ctx is done.
func (m *Manager) WaitForReveal(ctx context.Context, commitmentID string) error {
	c, ok := m.lookup(commitmentID)
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownCommitment, commitmentID)
	}

	remaining := c.RevealAfter.Sub(m.clock.Now())
	if remaining <= 0 {
		return nil
	}

	timer := m.clock.Timer(remaining)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PendingCommitments returns commitments without a reveal, in commit order.
func (m *Manager) PendingCommitments() []domain.Commitment {
	m.mu.Lock()
	defer m.mu.Unlock()

	pending := make([]domain.Commitment, 0, len(m.order))
	for _, id := range m.order {
		if _, revealed := m.reveals[id]; revealed {
			continue
		}
		pending = append(pending, *m.commitments[id])
	}
	return pending
}

// Commitment returns a copy of a commitment.
func (m *Manager) Commitment(commitmentID string) (domain.Commitment, bool) {
	c, ok := m.lookup(commitmentID)
	if !ok {
		return domain.Commitment{}, false
	}
	return *c, true
}

// RevealFor returns a copy of the reveal recorded for a commitment.
func (m *Manager) RevealFor(commitmentID string) (domain.Reveal, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.reveals[commitmentID]
	if !ok {
		return domain.Reveal{}, false
	}
	return *r, true
}

func (m *Manager) lookup(commitmentID string) (*domain.Commitment, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.commitments[commitmentID]
	return c, ok
}

func (m *Manager) shouldEncrypt(t domain.DataType) bool {
	return slices.Contains(m.cfg.EncryptTypes, t)
}
