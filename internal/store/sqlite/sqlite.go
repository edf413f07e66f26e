// Package sqlite provides a store.Driver backed by an embedded SQLite
// database accessed through database/sql with OTEL instrumentation via
// otelsql. It serves single-node deployments and tests that should not
// require a Postgres container.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/XSAM/otelsql"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	_ "modernc.org/sqlite" // sqlite driver

	"github.com/jensholdgaard/bazaar/internal/clock"
	"github.com/jensholdgaard/bazaar/internal/config"
	"github.com/jensholdgaard/bazaar/internal/store"
)

// closerFunc adapts a func() error into an io.Closer.
type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func init() {
	store.Register("sqlite", openSQLite)
}

// openSQLite is the store.Driver for the "sqlite" backend.
func openSQLite(ctx context.Context, cfg config.DatabaseConfig, _ clock.Clock) (*store.Repositories, error) {
	db, err := Connect(ctx, cfg.Path)
	if err != nil {
		return nil, err
	}
	return &store.Repositories{
		Listings:        NewListingRepo(db),
		Transactions:    NewTransactionRepo(db),
		Stats:           NewStatRepo(db),
		Timers:          NewTimerRepo(db),
		PendingPayments: NewPendingPaymentRepo(db),
		Closer:          closerFunc(db.Close),
		Ping:            db.PingContext,
	}, nil
}

// Connect opens the SQLite file at path, verifies the connection and
// applies the schema. An empty path opens an in-memory database.
func Connect(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		path = ":memory:"
	}

	db, err := otelsql.Open("sqlite", path,
		otelsql.WithAttributes(semconv.DBSystemSqlite),
	)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	// modernc sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent use.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite database: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying sqlite schema: %w", err)
	}

	return db, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS listings (
    id             TEXT PRIMARY KEY,
    seller_id      TEXT NOT NULL,
    seller_name    TEXT NOT NULL,
    payload        BLOB NOT NULL,
    price          TEXT NOT NULL,
    original_price TEXT NOT NULL,
    listed_at      TIMESTAMP NOT NULL,
    tier           TEXT NOT NULL CHECK (tier IN ('standard', 'discounted'))
);

CREATE INDEX IF NOT EXISTS listings_tier_idx ON listings (tier, listed_at);
CREATE INDEX IF NOT EXISTS listings_seller_idx ON listings (seller_id, tier);

CREATE TABLE IF NOT EXISTS transactions (
    id          TEXT PRIMARY KEY,
    buyer_id    TEXT NOT NULL,
    buyer_name  TEXT NOT NULL,
    seller_id   TEXT NOT NULL,
    seller_name TEXT NOT NULL,
    item_name   TEXT NOT NULL,
    payload     BLOB NOT NULL,
    price       TEXT NOT NULL,
    kind        TEXT NOT NULL CHECK (kind IN ('standard', 'discounted')),
    created_at  TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS player_stats (
    player_id      TEXT PRIMARY KEY,
    player_name    TEXT NOT NULL,
    items_sold     INTEGER NOT NULL DEFAULT 0,
    items_bought   INTEGER NOT NULL DEFAULT 0,
    total_earned   TEXT NOT NULL DEFAULT '0',
    total_spent    TEXT NOT NULL DEFAULT '0',
    last_active_at TIMESTAMP NOT NULL,
    first_seen_at  TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS timers (
    job_id       TEXT PRIMARY KEY,
    next_fire_at TIMESTAMP,
    last_fire_at TIMESTAMP,
    saved_at     TIMESTAMP
);

CREATE TABLE IF NOT EXISTS pending_payments (
    id          TEXT PRIMARY KEY,
    seller_id   TEXT NOT NULL,
    seller_name TEXT NOT NULL,
    amount      TEXT NOT NULL,
    listing_id  TEXT NOT NULL,
    reason      TEXT NOT NULL,
    created_at  TIMESTAMP NOT NULL,
    resolved_at TIMESTAMP
);
`
