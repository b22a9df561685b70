// Package journal records one entry per successful ledger operation.
//
// The journal is an audit history, not the source of truth: the ledger
// state can be rebuilt from the credit, balance and listing tables alone.
package journal

import (
	"time"

	"github.com/xraph/carbon/id"
	"github.com/xraph/carbon/types"
)

// Kind identifies the operation that produced an entry.
type Kind string

const (
	KindIssue    Kind = "issue"
	KindTransfer Kind = "transfer"
	KindRetire   Kind = "retire"
	KindList     Kind = "list"
	KindCancel   Kind = "cancel"
	KindBuy      Kind = "buy"
)

// Kinds returns every operation kind in a stable order.
func Kinds() []Kind {
	return []Kind{KindIssue, KindTransfer, KindRetire, KindList, KindCancel, KindBuy}
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindIssue, KindTransfer, KindRetire, KindList, KindCancel, KindBuy:
		return true
	}
	return false
}

// Entry describes one applied operation.
//
// Counterparty is the recipient of a transfer or the seller of a listing
// that was bought; it is empty for the other kinds.
type Entry struct {
	ID             id.EntryID  `json:"id"`
	Sequence       uint64      `json:"sequence"`
	Kind           Kind        `json:"kind"`
	Caller         string      `json:"caller"`
	Counterparty   string      `json:"counterparty,omitempty"`
	CreditID       uint64      `json:"credit_id"`
	ListingID      *uint64     `json:"listing_id,omitempty"`
	Amount         int64       `json:"amount"`
	PricePerCredit int64       `json:"price_per_credit,omitempty"`
	Total          types.Money `json:"total"`
	SettlementRef  string      `json:"settlement_ref,omitempty"`
	Timestamp      time.Time   `json:"timestamp"`
}

// Involves reports whether account took part in the entry.
func (e *Entry) Involves(account string) bool {
	return e.Caller == account || e.Counterparty == account
}
