package domain

import "context"

// ─── Collaborator Interfaces ────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// Infrastructure implements them; the protocol managers depend on them.

// Registry is the read-only on-chain identity and reputation oracle.
// Implementations must be cheap to call repeatedly: admission queries it
// several times per announcement.
type Registry interface {
	// GetUser returns ErrUserNotFound when userID is unknown.
	GetUser(ctx context.Context, userID string) (*OnChainUser, error)

	// GetUserByAddress looks a user up by public key / address.
	GetUserByAddress(ctx context.Context, address string) (*OnChainUser, error)

	// GetMinReputation returns the current admission threshold.
	GetMinReputation(ctx context.Context) (uint64, error)
}

// UploadOptions is passed through to the store untouched. Encryption is a
// store concern; the protocol only states the request.
type UploadOptions struct {
	Encrypted bool
	Tags      map[string]string
}

// UploadResult references a stored object.
type UploadResult struct {
	ID   string `json:"id"`
	URL  string `json:"url"`
	Size int64  `json:"size"`
}

// ContentStore is durable put/get of bytes and JSON by opaque id.
type ContentStore interface {
	Upload(ctx context.Context, data []byte, opts UploadOptions) (UploadResult, error)
	UploadJSON(ctx context.Context, v any, opts UploadOptions) (UploadResult, error)

	// Download returns ErrObjectNotFound for unknown ids.
	Download(ctx context.Context, id string) ([]byte, error)
	DownloadJSON(ctx context.Context, id string, v any) error
}
