// Package store defines the persistence contract for the carbon ledger.
//
// The ledger keeps its working state in memory and writes every applied
// change through a Store, then rebuilds the state from it on start.
package store

import (
	"context"

	"github.com/xraph/carbon/credit"
	"github.com/xraph/carbon/journal"
	"github.com/xraph/carbon/market"
)

// Sequences holds the ledger's monotonic counters.
type Sequences struct {
	NextCreditID  uint64 `json:"next_credit_id"`
	NextListingID uint64 `json:"next_listing_id"`
	NextEntrySeq  uint64 `json:"next_entry_seq"`
}

// Store is the unified storage interface for all ledger records.
type Store interface {
	credit.Store
	market.Store
	journal.Store

	// GetSequences returns the zero Sequences when none were saved.
	GetSequences(ctx context.Context) (*Sequences, error)
	PutSequences(ctx context.Context, seq *Sequences) error

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
