package carbon

import (
	"time"

	"github.com/xraph/carbon/credit"
	"github.com/xraph/carbon/id"
	"github.com/xraph/carbon/journal"
	"github.com/xraph/carbon/market"
	"github.com/xraph/carbon/types"
)

// ChangeSet is the complete effect of one validated operation, expressed as
// the new values of every record it touches. Planning an operation produces
// a ChangeSet without mutating the State; Apply makes it visible.
type ChangeSet struct {
	Kind           journal.Kind
	Caller         string
	Counterparty   string
	CreditID       uint64
	ListingID      *uint64
	Amount         int64
	PricePerCredit int64
	Total          types.Money
	SettlementRef  string
	At             time.Time

	// Credit is created or replaced.
	Credit *credit.Credit
	// Balances holds absolute values; a zero amount removes the entry.
	Balances []credit.Balance
	// Listing is created or replaced, unless RemoveListing is set.
	Listing       *market.Listing
	RemoveListing bool

	NextCreditID  uint64
	NextListingID uint64

	base uint64
}

// Entry renders the change set as the journal entry with the given sequence.
func (cs *ChangeSet) Entry(seq uint64) *journal.Entry {
	e := &journal.Entry{
		ID:             id.NewEntryID(),
		Sequence:       seq,
		Kind:           cs.Kind,
		Caller:         cs.Caller,
		Counterparty:   cs.Counterparty,
		CreditID:       cs.CreditID,
		Amount:         cs.Amount,
		PricePerCredit: cs.PricePerCredit,
		Total:          cs.Total,
		SettlementRef:  cs.SettlementRef,
		Timestamp:      cs.At,
	}
	if cs.ListingID != nil {
		lid := *cs.ListingID
		e.ListingID = &lid
	}
	return e
}

// RemovedListingID returns the listing deleted by the change set, if any.
func (cs *ChangeSet) RemovedListingID() (uint64, bool) {
	if !cs.RemoveListing || cs.ListingID == nil {
		return 0, false
	}
	return *cs.ListingID, true
}
