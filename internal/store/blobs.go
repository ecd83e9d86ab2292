package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"meetscribe/internal/session"
)

// State blob keys. Each holds one JSON document.
const (
	blobActiveBackup  = "active_backup"
	blobLastSaved     = "last_saved"
	blobPendingBackup = "pending_backup"
)

// BackupBlob is the durable snapshot of every active session, written by
// the backup manager and consumed by recovery.
type BackupBlob struct {
	SavedAt  time.Time                  `json:"saved_at"`
	Sessions map[string]*session.Record `json:"sessions"`
}

func (s *Store) setBlob(ctx context.Context, key string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal blob %s: %w", key, err)
	}
	err = s.execWithRetry(ctx,
		`INSERT INTO state_blobs (key, value, updated_at) VALUES (?, ?, ?)
         ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key,
		string(payload),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("write blob %s: %w", key, err)
	}
	return nil
}

// getBlob unmarshals the blob for key into out. Returns false when the
// key is absent.
func (s *Store) getBlob(ctx context.Context, key string, out any) (bool, error) {
	ctx = ensureContext(ctx)
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM state_blobs WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read blob %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(value), out); err != nil {
		return false, fmt.Errorf("decode blob %s: %w", key, err)
	}
	return true, nil
}

func (s *Store) deleteBlob(ctx context.Context, key string) error {
	if err := s.execWithRetry(ctx, `DELETE FROM state_blobs WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete blob %s: %w", key, err)
	}
	return nil
}

// WriteBackup replaces the durable backup snapshot.
func (s *Store) WriteBackup(ctx context.Context, blob BackupBlob) error {
	return s.setBlob(ctx, blobActiveBackup, blob)
}

// ReadBackup returns the durable backup snapshot, or nil when none exists.
func (s *Store) ReadBackup(ctx context.Context) (*BackupBlob, error) {
	var blob BackupBlob
	found, err := s.getBlob(ctx, blobActiveBackup, &blob)
	if err != nil || !found {
		return nil, err
	}
	return &blob, nil
}

// ClearBackup removes the durable backup snapshot.
func (s *Store) ClearBackup(ctx context.Context) error {
	return s.deleteBlob(ctx, blobActiveBackup)
}

// SetLastSaved records the most recently saved session.
func (s *Store) SetLastSaved(ctx context.Context, rec *session.Record) error {
	return s.setBlob(ctx, blobLastSaved, rec)
}

// LastSaved returns the most recently saved session, or nil when none
// has been saved.
func (s *Store) LastSaved(ctx context.Context) (*session.Record, error) {
	var rec session.Record
	found, err := s.getBlob(ctx, blobLastSaved, &rec)
	if err != nil || !found {
		return nil, err
	}
	return &rec, nil
}

// SetPendingBackup stashes recovered sessions awaiting hydration by a
// matching page context.
func (s *Store) SetPendingBackup(ctx context.Context, blob BackupBlob) error {
	return s.setBlob(ctx, blobPendingBackup, blob)
}

// PendingBackup returns the stashed recovery candidates, or nil.
func (s *Store) PendingBackup(ctx context.Context) (*BackupBlob, error) {
	var blob BackupBlob
	found, err := s.getBlob(ctx, blobPendingBackup, &blob)
	if err != nil || !found {
		return nil, err
	}
	return &blob, nil
}

// ClearPendingBackup removes the stashed recovery candidates.
func (s *Store) ClearPendingBackup(ctx context.Context) error {
	return s.deleteBlob(ctx, blobPendingBackup)
}
