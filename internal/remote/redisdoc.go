package remote

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"tutorledger/internal/ledger"
)

// RedisDocs stores one hash per user at <prefix><user>. Writes merge into the
// existing document: created_at is set once, everything else is overwritten.
type RedisDocs struct {
	client *redis.Client
	prefix string
	log    zerolog.Logger
	now    func() time.Time
}

// NewRedisDocs creates a document-shaped remote store.
func NewRedisDocs(client *redis.Client, prefix string, log zerolog.Logger) *RedisDocs {
	if prefix == "" {
		prefix = "tutorledger:users:"
	}
	return &RedisDocs{
		client: client,
		prefix: prefix,
		log:    log.With().Str("component", "remote_redis").Logger(),
		now:    time.Now,
	}
}

// Name identifies the backend in logs and status.
func (r *RedisDocs) Name() string { return "redis" }

func (r *RedisDocs) key(userID string) string { return r.prefix + userID }

// Fetch returns the user's snapshot or nil when no document exists.
func (r *RedisDocs) Fetch(ctx context.Context, userID string) (*ledger.Snapshot, error) {
	if err := requireUser(r.Name(), "fetch", userID); err != nil {
		return nil, err
	}
	vals, err := r.client.HMGet(ctx, r.key(userID), "data", "last_updated").Result()
	if err != nil {
		return nil, r.classify("fetch", err)
	}
	data, _ := vals[0].(string)
	if data == "" {
		return nil, nil
	}
	var rowUpdated time.Time
	if ts, ok := vals[1].(string); ok {
		rowUpdated, _ = time.Parse(time.RFC3339Nano, ts)
	}
	return decodeRow(r.Name(), []byte(data), rowUpdated)
}

// Exists reports whether the user's document exists.
func (r *RedisDocs) Exists(ctx context.Context, userID string) (bool, error) {
	if err := requireUser(r.Name(), "exists", userID); err != nil {
		return false, err
	}
	n, err := r.client.Exists(ctx, r.key(userID)).Result()
	if err != nil {
		return false, r.classify("exists", err)
	}
	return n > 0, nil
}

// Upsert merges the snapshot into the user's document in one transaction.
func (r *RedisDocs) Upsert(ctx context.Context, userID string, snap ledger.Snapshot) error {
	if err := requireUser(r.Name(), "upsert", userID); err != nil {
		return err
	}
	data, err := snap.Encode()
	if err != nil {
		return newError(r.Name(), "upsert", ErrBackend, err)
	}
	now := r.now().UTC().Format(time.RFC3339Nano)
	key := r.key(userID)
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSetNX(ctx, key, "created_at", now)
		pipe.HSet(ctx, key,
			"user_id", userID,
			"data", string(data),
			"last_updated", snap.LastUpdated.UTC().Format(time.RFC3339Nano),
			"updated_at", now,
		)
		return nil
	})
	return r.classify("upsert", err)
}

func (r *RedisDocs) classify(op string, err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.HasPrefix(msg, "NOPERM"):
		return newError(r.Name(), op, ErrPermissionDenied, err)
	case strings.HasPrefix(msg, "NOAUTH"), strings.HasPrefix(msg, "WRONGPASS"):
		return newError(r.Name(), op, ErrNotAuthenticated, err)
	case errors.Is(err, redis.ErrClosed), isTransport(err):
		return newError(r.Name(), op, ErrNetworkUnavailable, err)
	}
	return newError(r.Name(), op, ErrBackend, err)
}
