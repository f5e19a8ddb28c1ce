package remote

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"tutorledger/internal/ledger"
)

// SQLSTATE codes the postgres backend reacts to.
const (
	pgUniqueViolation       = "23505"
	pgInsufficientPrivilege = "42501"
	pgUndefinedTable        = "42P01"
	pgInvalidAuthClass      = "28"
)

// Postgres stores one row per user in a table shaped like
// (user_id unique, data jsonb, last_updated, created_at, updated_at).
type Postgres struct {
	db    *sql.DB
	table string
	log   zerolog.Logger
	now   func() time.Time
}

// NewPostgres creates a remote store on the given table.
func NewPostgres(db *sql.DB, table string, log zerolog.Logger) *Postgres {
	if table == "" {
		table = "user_data"
	}
	return &Postgres{
		db:    db,
		table: pgx.Identifier{table}.Sanitize(),
		log:   log.With().Str("component", "remote_postgres").Logger(),
		now:   time.Now,
	}
}

// Name identifies the backend in logs and status.
func (p *Postgres) Name() string { return "postgres" }

// EnsureSchema creates the table when it does not exist yet.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			user_id      TEXT PRIMARY KEY,
			data         JSONB NOT NULL,
			last_updated TIMESTAMPTZ NOT NULL,
			created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, p.table))
	return p.classify("ensure_schema", err)
}

// Fetch returns the user's snapshot, or nil when there is no row or no table.
func (p *Postgres) Fetch(ctx context.Context, userID string) (*ledger.Snapshot, error) {
	if err := requireUser(p.Name(), "fetch", userID); err != nil {
		return nil, err
	}
	var (
		data        []byte
		lastUpdated time.Time
	)
	err := p.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT data, last_updated FROM %s WHERE user_id = $1`, p.table), userID,
	).Scan(&data, &lastUpdated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		cerr := p.classify("fetch", err)
		if errors.Is(cerr, ErrResourceNotFound) {
			p.log.Info().Str("user_id", userID).Msg("remote table missing, treating as first sync")
			return nil, nil
		}
		return nil, cerr
	}
	return decodeRow(p.Name(), data, lastUpdated)
}

// Exists reports whether the user has a row.
func (p *Postgres) Exists(ctx context.Context, userID string) (bool, error) {
	if err := requireUser(p.Name(), "exists", userID); err != nil {
		return false, err
	}
	return p.exists(ctx, userID)
}

// Upsert writes the snapshot, creating the table on first use.
func (p *Postgres) Upsert(ctx context.Context, userID string, snap ledger.Snapshot) error {
	if err := requireUser(p.Name(), "upsert", userID); err != nil {
		return err
	}
	data, err := snap.Encode()
	if err != nil {
		return newError(p.Name(), "upsert", ErrBackend, err)
	}
	conflict, err := upsertRow(ctx, p, userID, data, snap.LastUpdated)
	if errors.Is(err, ErrResourceNotFound) {
		p.log.Info().Str("table", p.table).Msg("remote table missing, creating")
		if err := p.EnsureSchema(ctx); err != nil {
			return err
		}
		conflict, err = upsertRow(ctx, p, userID, data, snap.LastUpdated)
	}
	if conflict {
		p.log.Debug().Str("user_id", userID).Msg("insert raced with another writer, updated instead")
	}
	return err
}

func (p *Postgres) exists(ctx context.Context, userID string) (bool, error) {
	var ok bool
	err := p.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE user_id = $1)`, p.table), userID,
	).Scan(&ok)
	if err != nil {
		return false, p.classify("exists", err)
	}
	return ok, nil
}

func (p *Postgres) insert(ctx context.Context, userID string, data []byte, lastUpdated time.Time) error {
	now := p.now().UTC()
	_, err := p.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (user_id, data, last_updated, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
	`, p.table), userID, data, lastUpdated.UTC(), now)
	return p.classify("insert", err)
}

// update rewrites the row, inserting it when it vanished after the existence
// check.
func (p *Postgres) update(ctx context.Context, userID string, data []byte, lastUpdated time.Time) error {
	res, err := p.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE %s SET data = $2, last_updated = $3, updated_at = $4
		WHERE user_id = $1
	`, p.table), userID, data, lastUpdated.UTC(), p.now().UTC())
	if err != nil {
		return p.classify("update", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return p.classify("update", err)
	}
	if n == 0 {
		p.log.Debug().Str("user_id", userID).Msg("row gone before update, inserting")
		return p.insert(ctx, userID, data, lastUpdated)
	}
	return nil
}

// classify converts driver errors into the remote taxonomy.
func (p *Postgres) classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return newError(p.Name(), op, ErrConflictOnInsert, err)
		case pgInsufficientPrivilege:
			return newError(p.Name(), op, ErrPermissionDenied, err)
		case pgUndefinedTable:
			return newError(p.Name(), op, ErrResourceNotFound, err)
		}
		if strings.HasPrefix(pgErr.Code, pgInvalidAuthClass) {
			return newError(p.Name(), op, ErrNotAuthenticated, err)
		}
		return newError(p.Name(), op, ErrBackend, err)
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) || errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || isTransport(err) {
		return newError(p.Name(), op, ErrNetworkUnavailable, err)
	}
	return newError(p.Name(), op, ErrBackend, err)
}
