package domain

import (
	"errors"
	"fmt"
	"time"
)

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure, with no infrastructure dependency.

var (
	// Commit-reveal errors
	ErrUnknownCommitment = errors.New("unknown commitment")
	ErrRevealTooEarly    = errors.New("reveal attempted before reveal_after")
	ErrHashMismatch      = errors.New("revealed data does not match committed hash")
	ErrReceiptMismatch   = errors.New("reveal receipt does not belong to commitment")

	// Announcement admission errors
	ErrNotRegistered          = errors.New("announcer not registered on chain")
	ErrKeyMismatch            = errors.New("announced public key does not match registry")
	ErrInsufficientReputation = errors.New("reputation below required minimum")
	ErrInvalidSignature       = errors.New("announcement signature invalid")
	ErrStale                  = errors.New("announcement is stale")
	ErrInvalidEvent           = errors.New("invalid announcement event")

	// Collaborator errors
	ErrObjectNotFound = errors.New("object not found in content store")
	ErrUserNotFound   = errors.New("user not found in registry")
)

// RevealTooEarlyError carries the remaining wait so callers can back off.
type RevealTooEarlyError struct {
	CommitmentID string
	Remaining    time.Duration
}

func (e *RevealTooEarlyError) Error() string {
	return fmt.Sprintf("reveal %s too early: %dms remaining", e.CommitmentID, e.Remaining.Milliseconds())
}

func (e *RevealTooEarlyError) Unwrap() error { return ErrRevealTooEarly }

// HashMismatchError reports the committed and the recomputed hash.
type HashMismatchError struct {
	Expected string
	Got      string
}

func (e *HashMismatchError) Error() string {
	return fmt.Sprintf("hash mismatch: expected %s, got %s", e.Expected, e.Got)
}

func (e *HashMismatchError) Unwrap() error { return ErrHashMismatch }

// InsufficientReputationError reports the live reputation against the
// registry threshold.
type InsufficientReputationError struct {
	Actual   uint64
	Required uint64
}

func (e *InsufficientReputationError) Error() string {
	return fmt.Sprintf("insufficient reputation: %d < %d", e.Actual, e.Required)
}

func (e *InsufficientReputationError) Unwrap() error { return ErrInsufficientReputation }

// StaleError reports how old a rejected announcement was.
type StaleError struct {
	Age    time.Duration
	MaxAge time.Duration
}

func (e *StaleError) Error() string {
	return fmt.Sprintf("announcement stale: age %dms exceeds %dms", e.Age.Milliseconds(), e.MaxAge.Milliseconds())
}

func (e *StaleError) Unwrap() error { return ErrStale }
