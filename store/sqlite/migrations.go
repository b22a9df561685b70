package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the carbon store.
var Migrations = migrate.NewGroup("carbon")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_carbon_credits",
			Version: "20240101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS carbon_credits (
    id             INTEGER PRIMARY KEY,
    owner          TEXT NOT NULL DEFAULT '',
    verifier       TEXT NOT NULL DEFAULT '',
    total_amount   INTEGER NOT NULL CHECK (total_amount > 0),
    retired_amount INTEGER NOT NULL DEFAULT 0 CHECK (retired_amount >= 0),
    origin         TEXT NOT NULL DEFAULT '',
    vintage_year   INTEGER NOT NULL DEFAULT 0,
    is_retired     INTEGER NOT NULL DEFAULT 0,
    created_at     TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at     TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_carbon_credits_owner ON carbon_credits (owner);
CREATE INDEX IF NOT EXISTS idx_carbon_credits_vintage ON carbon_credits (vintage_year);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS carbon_credits`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_carbon_balances",
			Version: "20240101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS carbon_balances (
    account    TEXT NOT NULL,
    credit_id  INTEGER NOT NULL,
    amount     INTEGER NOT NULL CHECK (amount > 0),
    updated_at TEXT NOT NULL DEFAULT (datetime('now')),
    PRIMARY KEY (account, credit_id)
);

CREATE INDEX IF NOT EXISTS idx_carbon_balances_credit ON carbon_balances (credit_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS carbon_balances`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_carbon_listings",
			Version: "20240101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS carbon_listings (
    id               INTEGER PRIMARY KEY,
    seller           TEXT NOT NULL,
    credit_id        INTEGER NOT NULL,
    amount           INTEGER NOT NULL CHECK (amount > 0),
    price_per_credit INTEGER NOT NULL CHECK (price_per_credit > 0),
    created_at       TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at       TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_carbon_listings_seller ON carbon_listings (seller);
CREATE INDEX IF NOT EXISTS idx_carbon_listings_credit ON carbon_listings (credit_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS carbon_listings`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_carbon_journal",
			Version: "20240101000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS carbon_journal (
    seq              INTEGER PRIMARY KEY,
    id               TEXT NOT NULL UNIQUE,
    kind             TEXT NOT NULL,
    caller           TEXT NOT NULL DEFAULT '',
    counterparty     TEXT NOT NULL DEFAULT '',
    credit_id        INTEGER NOT NULL DEFAULT 0,
    listing_id       INTEGER,
    amount           INTEGER NOT NULL DEFAULT 0,
    price_per_credit INTEGER NOT NULL DEFAULT 0,
    total_amount     INTEGER NOT NULL DEFAULT 0,
    total_currency   TEXT NOT NULL DEFAULT '',
    settlement_ref   TEXT NOT NULL DEFAULT '',
    timestamp        TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_carbon_journal_kind ON carbon_journal (kind);
CREATE INDEX IF NOT EXISTS idx_carbon_journal_caller ON carbon_journal (caller);
CREATE INDEX IF NOT EXISTS idx_carbon_journal_counterparty ON carbon_journal (counterparty);
CREATE INDEX IF NOT EXISTS idx_carbon_journal_credit ON carbon_journal (credit_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS carbon_journal`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_carbon_sequences",
			Version: "20240101000005",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS carbon_sequences (
    key             TEXT PRIMARY KEY,
    next_credit_id  INTEGER NOT NULL DEFAULT 0,
    next_listing_id INTEGER NOT NULL DEFAULT 0,
    next_entry_seq  INTEGER NOT NULL DEFAULT 0,
    updated_at      TEXT NOT NULL DEFAULT (datetime('now'))
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS carbon_sequences`)
				return err
			},
		},
	)
}
