package domain

import (
	"fmt"
	"time"
)

// AnnounceEvent mirrors the tracker announce events.
type AnnounceEvent string

const (
	EventStarted   AnnounceEvent = "started"
	EventStopped   AnnounceEvent = "stopped"
	EventCompleted AnnounceEvent = "completed"
)

// Valid reports whether e is one of the three announce events.
func (e AnnounceEvent) Valid() bool {
	switch e {
	case EventStarted, EventStopped, EventCompleted:
		return true
	}
	return false
}

// PeerInfo is a participant's signed presence for one content hash.
// Timestamp is Unix milliseconds so it survives the wire unchanged; the
// signature covers it byte-for-byte. Reputation is the announcer's own
// snapshot and is never trusted for admission.
type PeerInfo struct {
	UserID     string `json:"user_id"`
	PublicKey  string `json:"public_key"`
	Host       string `json:"host"`
	Port       int    `json:"port"`
	Signature  string `json:"signature"`
	Timestamp  int64  `json:"timestamp"`
	Reputation uint64 `json:"reputation"`
}

// AnnouncedAt returns the announcement time.
func (p *PeerInfo) AnnouncedAt() time.Time {
	return time.UnixMilli(p.Timestamp)
}

// Addr returns host:port.
func (p *PeerInfo) Addr() string {
	return fmt.Sprintf("%s:%d", p.Host, p.Port)
}

// DHTAnnouncement is the unit exchanged between peers when the tracker is
// unreachable. It is processed once and never persisted.
type DHTAnnouncement struct {
	ContentHash string        `json:"content_hash"`
	Peer        PeerInfo      `json:"peer"`
	Event       AnnounceEvent `json:"event"`
}

// OnChainUser is the registry view of a participant.
type OnChainUser struct {
	UserID     string `json:"user_id"`
	PublicKey  string `json:"public_key"`
	Uploaded   uint64 `json:"uploaded"`
	Downloaded uint64 `json:"downloaded"`
	Active     bool   `json:"active"`
}

// PeerStats aggregates the local peer table.
type PeerStats struct {
	ContentCount int `json:"content_count"`
	TotalPeers   int `json:"total_peers"`
}
