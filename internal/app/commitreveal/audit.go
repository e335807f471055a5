package commitreveal

import (
	"context"
	"fmt"

	"github.com/tutu-network/coord/internal/domain"
	"github.com/tutu-network/coord/internal/security"
)

// AuditReport is the result of auditing a commit/reveal pair from storage.
type AuditReport struct {
	Commitment domain.Commitment    `json:"commitment"`
	Receipt    domain.RevealReceipt `json:"receipt"`
	Valid      bool                 `json:"valid"`
	Error      string               `json:"error,omitempty"`
}

// Audit checks a commit/reveal pair using only the content store: the
// receipt must reference the commitment, the payload must hash to the
// committed hash, and the reveal must not predate reveal_after.
// Storage errors are returned; protocol violations are reported in the
// report with Valid=false.
func Audit(ctx context.Context, store domain.ContentStore, commitmentStorageID, receiptStorageID string) (*AuditReport, error) {
	var rec commitmentRecord
	if err := store.DownloadJSON(ctx, commitmentStorageID, &rec); err != nil {
		return nil, fmt.Errorf("load commitment: %w", err)
	}
	var receipt domain.RevealReceipt
	if err := store.DownloadJSON(ctx, receiptStorageID, &receipt); err != nil {
		return nil, fmt.Errorf("load receipt: %w", err)
	}

	report := &AuditReport{
		Commitment: domain.Commitment{
			ID:              rec.ID,
			DataHash:        rec.DataHash,
			CommitTimestamp: rec.CommitTimestamp,
			RevealAfter:     rec.RevealAfter,
			DataType:        rec.DataType,
			Nonce:           rec.Nonce,
			StorageID:       commitmentStorageID,
		},
		Receipt: receipt,
	}

	if receipt.CommitmentID != rec.ID {
		report.Error = domain.ErrReceiptMismatch.Error()
		return report, nil
	}

	payload, err := store.Download(ctx, receipt.PayloadStorageID)
	if err != nil {
		return nil, fmt.Errorf("load payload: %w", err)
	}

	if !security.VerifyDataHash(payload, rec.DataHash) {
		report.Error = (&domain.HashMismatchError{
			Expected: rec.DataHash,
			Got:      security.ComputeDataHash(payload),
		}).Error()
		return report, nil
	}
	if !report.Commitment.RevealableAt(receipt.RevealTimestamp) {
		report.Error = (&domain.RevealTooEarlyError{
			CommitmentID: rec.ID,
			Remaining:    rec.RevealAfter.Sub(receipt.RevealTimestamp),
		}).Error()
		return report, nil
	}

	report.Valid = true
	return report, nil
}
