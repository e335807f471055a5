package dhtfallback

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/tutu-network/coord/internal/domain"
	"github.com/tutu-network/coord/internal/security"
)

// CanonicalMessage is the exact byte string an announcement signature
// covers. The field order and separators are part of the wire protocol;
// changing them makes every existing signature unverifiable.
func CanonicalMessage(contentHash, publicKey, host string, port int, timestamp int64) []byte {
	return fmt.Appendf(nil, "%s:%s:%s:%d:%d", contentHash, publicKey, host, port, timestamp)
}

// CanonicalMessageFor rebuilds the signed message from an announcement's
// own fields.
func CanonicalMessageFor(ann *domain.DHTAnnouncement) []byte {
	return CanonicalMessage(ann.ContentHash, ann.Peer.PublicKey, ann.Peer.Host, ann.Peer.Port, ann.Peer.Timestamp)
}

// CreateAnnouncement builds and signs an announcement for contentHash.
// The announcer must be registered and meet the live reputation threshold.
func (m *Manager) CreateAnnouncement(
	ctx context.Context,
	privateKey ed25519.PrivateKey,
	contentHash, host string,
	port int,
	event domain.AnnounceEvent,
) (*domain.DHTAnnouncement, error) {
	if !event.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidEvent, event)
	}
	kp, err := security.KeypairFromPrivate(privateKey)
	if err != nil {
		return nil, err
	}
	publicKey := kp.PublicKeyHex()

	user, err := m.registry.GetUserByAddress(ctx, publicKey)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrNotRegistered, publicKey)
		}
		return nil, fmt.Errorf("registry lookup: %w", err)
	}
	if !user.Active {
		return nil, fmt.Errorf("%w: %s inactive", domain.ErrNotRegistered, user.UserID)
	}

	reputation := CalculateReputation(user.Uploaded, user.Downloaded)
	minRep, err := m.registry.GetMinReputation(ctx)
	if err != nil {
		return nil, fmt.Errorf("registry min reputation: %w", err)
	}
	if reputation < minRep {
		return nil, &domain.InsufficientReputationError{Actual: reputation, Required: minRep}
	}

	timestamp := m.clock.Now().UnixMilli()
	sig := kp.SignHex(CanonicalMessage(contentHash, publicKey, host, port, timestamp))

	return &domain.DHTAnnouncement{
		ContentHash: contentHash,
		Event:       event,
		Peer: domain.PeerInfo{
			UserID:     user.UserID,
			PublicKey:  publicKey,
			Host:       host,
			Port:       port,
			Signature:  sig,
			Timestamp:  timestamp,
			Reputation: reputation,
		},
	}, nil
}
