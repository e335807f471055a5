package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tutu-network/coord/internal/domain"
)

// ─── Content Store ──────────────────────────────────────────────────────────
// DB implements domain.ContentStore. Encryption is recorded as requested;
// sealing the bytes is left to a fronting store.

// Upload stores data under a fresh id.
func (d *DB) Upload(ctx context.Context, data []byte, opts domain.UploadOptions) (domain.UploadResult, error) {
	tags, err := json.Marshal(opts.Tags)
	if err != nil {
		return domain.UploadResult{}, fmt.Errorf("encode tags: %w", err)
	}
	if data == nil {
		data = []byte{}
	}

	id := uuid.NewString()
	_, err = d.db.ExecContext(ctx,
		`INSERT INTO objects (id, data, size, encrypted, tags, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, data, len(data), opts.Encrypted, string(tags), time.Now().UnixMilli(),
	)
	if err != nil {
		return domain.UploadResult{}, fmt.Errorf("insert object: %w", err)
	}

	return domain.UploadResult{
		ID:   id,
		URL:  "sqlite://objects/" + id,
		Size: int64(len(data)),
	}, nil
}

// UploadJSON marshals v and stores it.
func (d *DB) UploadJSON(ctx context.Context, v any, opts domain.UploadOptions) (domain.UploadResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return domain.UploadResult{}, fmt.Errorf("marshal json: %w", err)
	}
	return d.Upload(ctx, data, opts)
}

// Download returns the bytes stored under id.
func (d *DB) Download(ctx context.Context, id string) ([]byte, error) {
	var data []byte
	err := d.db.QueryRowContext(ctx, `SELECT data FROM objects WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrObjectNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("select object: %w", err)
	}
	return data, nil
}

// DownloadJSON decodes the object stored under id into v.
func (d *DB) DownloadJSON(ctx context.Context, id string, v any) error {
	data, err := d.Download(ctx, id)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", id, err)
	}
	return nil
}

// ObjectMeta is the stored metadata for one object.
type ObjectMeta struct {
	ID        string
	Size      int64
	Encrypted bool
	Tags      map[string]string
	CreatedAt time.Time
}

// ObjectMeta returns metadata for id.
func (d *DB) ObjectMeta(ctx context.Context, id string) (*ObjectMeta, error) {
	var (
		m       ObjectMeta
		tags    string
		created int64
	)
	err := d.db.QueryRowContext(ctx,
		`SELECT id, size, encrypted, tags, created_at FROM objects WHERE id = ?`, id,
	).Scan(&m.ID, &m.Size, &m.Encrypted, &tags, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrObjectNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tags), &m.Tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	m.CreatedAt = time.UnixMilli(created)
	return &m, nil
}
