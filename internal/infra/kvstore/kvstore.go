// Package kvstore is a BadgerDB-backed ContentStore for nodes that want an
// embedded LSM store instead of SQLite.
package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tutu-network/coord/internal/domain"
)

// Config controls a Store.
type Config struct {
	Dir      string // ignored when InMemory is set
	InMemory bool
	Logger   *logrus.Logger
}

// Store persists objects as two keys: obj/<id>/data and obj/<id>/meta.
type Store struct {
	db  *badger.DB
	log *logrus.Entry

	reads  atomic.Uint64
	writes atomic.Uint64
}

// meta is the JSON value stored under obj/<id>/meta.
type meta struct {
	Size      int64             `json:"size"`
	Encrypted bool              `json:"encrypted"`
	Tags      map[string]string `json:"tags,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Open creates or opens a badger database.
func Open(cfg Config) (*Store, error) {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Dir == "" {
			return nil, errors.New("kvstore: no directory configured")
		}
		if err := os.MkdirAll(cfg.Dir, 0700); err != nil {
			return nil, fmt.Errorf("create kv dir: %w", err)
		}
		opts = badger.DefaultOptions(cfg.Dir)
		opts.ValueLogFileSize = 100 << 20
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &Store{
		db:  db,
		log: cfg.Logger.WithField("component", "kvstore"),
	}, nil
}

// Close syncs and closes the database.
func (s *Store) Close() error {
	if !s.db.Opts().InMemory {
		if err := s.db.Sync(); err != nil {
			s.log.WithError(err).Warn("sync before close failed")
		}
	}
	s.log.WithFields(logrus.Fields{
		"reads":  s.reads.Load(),
		"writes": s.writes.Load(),
	}).Debug("closing kv store")
	return s.db.Close()
}

// Ping reports whether the database is still open.
func (s *Store) Ping() error {
	if s.db.IsClosed() {
		return errors.New("kvstore: closed")
	}
	return nil
}

// RunGC runs one value-log garbage collection round. badger.ErrNoRewrite
// means there was nothing to reclaim and is not reported.
func (s *Store) RunGC() error {
	if s.db.Opts().InMemory {
		return nil
	}
	err := s.db.RunValueLogGC(0.5)
	if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
		return fmt.Errorf("value log gc: %w", err)
	}
	return nil
}

func dataKey(id string) []byte { return []byte("obj/" + id + "/data") }
func metaKey(id string) []byte { return []byte("obj/" + id + "/meta") }

// ─── domain.ContentStore ────────────────────────────────────────────────────

// Upload writes data and its metadata in one transaction.
func (s *Store) Upload(ctx context.Context, data []byte, opts domain.UploadOptions) (domain.UploadResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.UploadResult{}, err
	}

	id := uuid.NewString()
	m, err := json.Marshal(meta{
		Size:      int64(len(data)),
		Encrypted: opts.Encrypted,
		Tags:      opts.Tags,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return domain.UploadResult{}, fmt.Errorf("encode meta: %w", err)
	}

	s.writes.Add(1)
	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(dataKey(id), append([]byte(nil), data...)); err != nil {
			return err
		}
		return txn.Set(metaKey(id), m)
	})
	if err != nil {
		return domain.UploadResult{}, fmt.Errorf("write object %s: %w", id, err)
	}

	return domain.UploadResult{
		ID:   id,
		URL:  "badger://" + id,
		Size: int64(len(data)),
	}, nil
}

// UploadJSON marshals v and stores it.
func (s *Store) UploadJSON(ctx context.Context, v any, opts domain.UploadOptions) (domain.UploadResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return domain.UploadResult{}, fmt.Errorf("marshal json: %w", err)
	}
	return s.Upload(ctx, data, opts)
}

// Download returns the bytes stored under id.
func (s *Store) Download(ctx context.Context, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.reads.Add(1)
	value, err := s.get(dataKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", domain.ErrObjectNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", id, err)
	}
	return value, nil
}

// DownloadJSON decodes the object stored under id into v.
func (s *Store) DownloadJSON(ctx context.Context, id string, v any) error {
	data, err := s.Download(ctx, id)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", id, err)
	}
	return nil
}

// Encrypted reports the encryption flag an object was uploaded with.
func (s *Store) Encrypted(id string) (bool, error) {
	raw, err := s.get(metaKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, fmt.Errorf("%w: %s", domain.ErrObjectNotFound, id)
	}
	if err != nil {
		return false, err
	}
	var m meta
	if err := json.Unmarshal(raw, &m); err != nil {
		return false, fmt.Errorf("decode meta: %w", err)
	}
	return m.Encrypted, nil
}

func (s *Store) get(key []byte) ([]byte, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	return value, err
}
