// Package carbon provides a ledger for tokenized carbon credits: issuance,
// ownership transfer, retirement, and a fixed-price marketplace.
//
// Carbon is designed as a library, not a service. The core is State, a
// deterministic state machine over three mappings (credits, balances,
// listings) and two monotonic id counters. Ledger wraps a State with
// serialised access, write-through persistence, settlement and plugin
// notifications.
//
// # Quick Start
//
//	import (
//	    "github.com/xraph/carbon"
//	    "github.com/xraph/carbon/store/memory"
//	)
//
//	l := carbon.New(memory.New())
//	if err := l.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer l.Stop()
//
//	creditID, err := l.Issue(ctx, "registry", "verra", 1000, "KE-REDD-014", 2023)
//	err = l.Transfer(ctx, "registry", "acme", creditID, 400)
//	listingID, err := l.List(ctx, "acme", creditID, 100, 1250)
//	entry, err := l.Buy(ctx, "globex", listingID, 40)
//	err = l.Retire(ctx, "globex", creditID, 40)
//
// # Operations
//
// Every operation checks all of its preconditions before changing anything
// and fails with a sentinel error otherwise: ErrInsufficientBalance,
// ErrNotFound, ErrUnauthorized, ErrInvalidPrice, ErrInvalidAmount or
// ErrSettlementFailed. Use errors.Is or Kind to classify them.
//
// Listings do not escrow the seller's units. A seller may list more than they
// later hold; the shortfall surfaces as ErrInsufficientBalance at buy time,
// before any payment is taken.
//
// # Conservation
//
// For every credit, the sum of all balances plus the retired amount equals
// the issued amount. CheckConservation verifies it, and Start refuses to load
// a store that violates it.
//
// # Settlement
//
// Buy pays the seller through a settlement.Settler before moving units. The
// default settler records a receipt and moves nothing; settlement.Book keeps
// in-memory cash accounts.
//
// # Snapshots
//
// State.Snapshot encodes the ledger as deterministic CBOR and State.Digest
// hashes it with BLAKE2b-256. Equal states have equal digests however they
// were reached.
package carbon
