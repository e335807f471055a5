package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/tutu-network/coord/internal/domain"
)

// ─── Ledger Registry ────────────────────────────────────────────────────────
// DB implements domain.Registry over a local mirror of the on-chain user
// set. Useful for single-operator deployments and for the CLI.

const paramMinReputation = "min_reputation"

// UpsertUser inserts or updates a user. Ledger totals are left untouched
// on update; use RecordTransfer to move them.
func (d *DB) UpsertUser(ctx context.Context, u domain.OnChainUser) error {
	up, err := toInt64(u.Uploaded)
	if err != nil {
		return err
	}
	down, err := toInt64(u.Downloaded)
	if err != nil {
		return err
	}
	_, err = d.db.ExecContext(ctx,
		`INSERT INTO users (user_id, public_key, uploaded, downloaded, active, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
			public_key=excluded.public_key,
			active=excluded.active,
			updated_at=excluded.updated_at`,
		u.UserID, u.PublicKey, up, down, u.Active, time.Now().Unix(),
	)
	return err
}

// RecordTransfer appends a ledger row and adds it to the user's totals.
func (d *DB) RecordTransfer(ctx context.Context, userID string, uploaded, downloaded uint64) error {
	up, err := toInt64(uploaded)
	if err != nil {
		return err
	}
	down, err := toInt64(downloaded)
	if err != nil {
		return err
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE users SET uploaded = uploaded + ?, downloaded = downloaded + ?, updated_at = ? WHERE user_id = ?`,
		up, down, time.Now().Unix(), userID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrUserNotFound, userID)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO transfer_ledger (timestamp, user_id, uploaded, downloaded) VALUES (?, ?, ?, ?)`,
		time.Now().Unix(), userID, up, down,
	); err != nil {
		return err
	}
	return tx.Commit()
}

// SetMinReputation stores the admission threshold.
func (d *DB) SetMinReputation(ctx context.Context, v uint64) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO registry_params (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value`,
		paramMinReputation, strconv.FormatUint(v, 10),
	)
	return err
}

// GetUser implements domain.Registry.
func (d *DB) GetUser(ctx context.Context, userID string) (*domain.OnChainUser, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT user_id, public_key, uploaded, downloaded, active FROM users WHERE user_id = ?`, userID,
	)
	return scanUser(row, userID)
}

// GetUserByAddress implements domain.Registry.
func (d *DB) GetUserByAddress(ctx context.Context, address string) (*domain.OnChainUser, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT user_id, public_key, uploaded, downloaded, active FROM users WHERE public_key = ?`, address,
	)
	return scanUser(row, address)
}

// GetMinReputation implements domain.Registry. Unset means 0.
func (d *DB) GetMinReputation(ctx context.Context) (uint64, error) {
	var value string
	err := d.db.QueryRowContext(ctx,
		`SELECT value FROM registry_params WHERE key = ?`, paramMinReputation,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(value, 10, 64)
}

// ListUsers returns all registered users ordered by id.
func (d *DB) ListUsers(ctx context.Context) ([]domain.OnChainUser, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT user_id, public_key, uploaded, downloaded, active FROM users ORDER BY user_id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []domain.OnChainUser
	for rows.Next() {
		u, err := scanUser(rows, "")
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func scanUser(s scanner, key string) (*domain.OnChainUser, error) {
	var (
		u        domain.OnChainUser
		up, down int64
	)
	err := s.Scan(&u.UserID, &u.PublicKey, &up, &down, &u.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrUserNotFound, key)
	}
	if err != nil {
		return nil, err
	}
	u.Uploaded = uint64(up)
	u.Downloaded = uint64(down)
	return &u, nil
}
