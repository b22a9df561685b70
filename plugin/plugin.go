// Package plugin provides lifecycle hooks for the carbon ledger.
// Plugins implement only the hook interfaces they care about; the Registry
// discovers them at registration time.
package plugin

import (
	"context"

	"github.com/xraph/carbon/credit"
	"github.com/xraph/carbon/journal"
	"github.com/xraph/carbon/market"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called once the ledger has loaded its state.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, ledger any) error
}

// OnShutdown is called when the ledger stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Credit hooks
// ──────────────────────────────────────────────────

// OnCreditIssued is called after a new credit batch is issued.
type OnCreditIssued interface {
	Plugin
	OnCreditIssued(ctx context.Context, c *credit.Credit, e *journal.Entry) error
}

// OnCreditTransferred is called after units change hands by transfer.
type OnCreditTransferred interface {
	Plugin
	OnCreditTransferred(ctx context.Context, e *journal.Entry) error
}

// OnCreditRetired is called after units are retired. c reflects the credit
// after retirement.
type OnCreditRetired interface {
	Plugin
	OnCreditRetired(ctx context.Context, c *credit.Credit, e *journal.Entry) error
}

// ──────────────────────────────────────────────────
// Market hooks
// ──────────────────────────────────────────────────

// OnListingCreated is called after a listing opens.
type OnListingCreated interface {
	Plugin
	OnListingCreated(ctx context.Context, l *market.Listing, e *journal.Entry) error
}

// OnListingCanceled is called after a seller withdraws a listing. l is the
// listing as it was before removal.
type OnListingCanceled interface {
	Plugin
	OnListingCanceled(ctx context.Context, l *market.Listing, e *journal.Entry) error
}

// OnCreditPurchased is called after a buyer fills all or part of a listing.
type OnCreditPurchased interface {
	Plugin
	OnCreditPurchased(ctx context.Context, e *journal.Entry) error
}

// ──────────────────────────────────────────────────
// Failure hooks
// ──────────────────────────────────────────────────

// OnOperationRejected is called when an operation fails and leaves the
// ledger unchanged.
type OnOperationRejected interface {
	Plugin
	OnOperationRejected(ctx context.Context, kind journal.Kind, caller string, err error) error
}
