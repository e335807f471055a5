// Package domain holds the pure protocol types shared by the commit-reveal
// and DHT fallback layers. Nothing here touches storage or the network.
package domain

import "time"

// DataType tags what a commitment is about. Stores use it for indexing and
// the reveal path uses it to pick an encryption policy.
type DataType string

const (
	DataGameState    DataType = "game-state"
	DataTrainingData DataType = "training-data"
	DataModelUpdate  DataType = "model-update"
)

// Valid reports whether t is a known data type.
func (t DataType) Valid() bool {
	switch t {
	case DataGameState, DataTrainingData, DataModelUpdate:
		return true
	}
	return false
}

// Commitment is a promise to reveal data whose hash is DataHash.
// DataHash is never recomputed after creation.
type Commitment struct {
	ID              string    `json:"id"`
	DataHash        string    `json:"data_hash"`
	CommitTimestamp time.Time `json:"commit_timestamp"`
	RevealAfter     time.Time `json:"reveal_after"`
	DataType        DataType  `json:"data_type"`
	Nonce           uint64    `json:"nonce"`
	StorageID       string    `json:"storage_id,omitempty"`
}

// RevealableAt reports whether the commitment may be revealed at t.
func (c *Commitment) RevealableAt(t time.Time) bool {
	return !t.Before(c.RevealAfter)
}

// Reveal discloses the data behind a commitment.
type Reveal struct {
	CommitmentID     string    `json:"commitment_id"`
	Data             []byte    `json:"data"`
	DataHash         string    `json:"data_hash"`
	RevealTimestamp  time.Time `json:"reveal_timestamp"`
	StorageID        string    `json:"storage_id"`
	ReceiptStorageID string    `json:"receipt_storage_id"`
}

// RevealReceipt is the public record written next to a revealed payload.
// Together with the commitment record it lets any third party check both
// hash equality and timing from durable storage alone.
type RevealReceipt struct {
	CommitmentID     string    `json:"commitment_id"`
	DataHash         string    `json:"data_hash"`
	RevealTimestamp  time.Time `json:"reveal_timestamp"`
	PayloadStorageID string    `json:"payload_storage_id"`
}

// VerifyResult is the outcome of a side-effect-free reveal check.
type VerifyResult struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}
