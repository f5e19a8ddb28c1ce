// Package remote holds the cloud replicas of user snapshots: one row or
// document per user in a hosted database.
package remote

import (
	"context"
	"errors"
	"time"

	"tutorledger/internal/ledger"
)

// Store is a per-user snapshot replica reachable only when online.
// Fetch returns nil, nil when the user has no row yet.
type Store interface {
	Name() string
	Fetch(ctx context.Context, userID string) (*ledger.Snapshot, error)
	Upsert(ctx context.Context, userID string, snap ledger.Snapshot) error
	Exists(ctx context.Context, userID string) (bool, error)
}

// rowWriter is the check-then-write surface shared by table-shaped backends.
type rowWriter interface {
	exists(ctx context.Context, userID string) (bool, error)
	insert(ctx context.Context, userID string, data []byte, lastUpdated time.Time) error
	update(ctx context.Context, userID string, data []byte, lastUpdated time.Time) error
}

// upsertRow updates an existing row or inserts a new one. A duplicate key on
// insert means another writer created the row first, so the write is
// retried as an update.
func upsertRow(ctx context.Context, w rowWriter, userID string, data []byte, lastUpdated time.Time) (conflict bool, err error) {
	ok, err := w.exists(ctx, userID)
	if err != nil {
		return false, err
	}
	if ok {
		return false, w.update(ctx, userID, data, lastUpdated)
	}
	err = w.insert(ctx, userID, data, lastUpdated)
	if errors.Is(err, ErrConflictOnInsert) {
		return true, w.update(ctx, userID, data, lastUpdated)
	}
	return false, err
}

func requireUser(backend, op, userID string) error {
	if userID == "" {
		return newError(backend, op, ErrNotAuthenticated, nil)
	}
	return nil
}

// decodeRow parses stored data, falling back to the row timestamp when the
// payload carries none.
func decodeRow(backend string, data []byte, rowUpdated time.Time) (*ledger.Snapshot, error) {
	snap, err := ledger.Decode(data)
	if err != nil {
		return nil, newError(backend, "fetch", ErrBackend, err)
	}
	if snap.LastUpdated.IsZero() {
		snap.LastUpdated = rowUpdated.UTC()
	}
	return &snap, nil
}
