// Package credit defines carbon credit issuance batches and the balances
// that record who holds how many units of each batch.
package credit

import (
	"time"

	"github.com/xraph/carbon/types"
)

// Credit is one issuance batch. TotalAmount, Origin, VintageYear and
// Verifier never change after issue.
type Credit struct {
	types.Entity
	ID            uint64 `json:"id"`
	Owner         string `json:"owner"`
	Verifier      string `json:"verifier"`
	TotalAmount   int64  `json:"total_amount"`
	RetiredAmount int64  `json:"retired_amount"`
	Origin        string `json:"origin"`
	VintageYear   int    `json:"vintage_year"`

	// IsRetired is set by the first retirement of any units and never
	// cleared, even while unretired units remain transferable.
	IsRetired bool `json:"is_retired"`
}

// Outstanding returns the number of units not yet retired.
func (c *Credit) Outstanding() int64 {
	return c.TotalAmount - c.RetiredAmount
}

// Key addresses a single balance entry.
type Key struct {
	Account  string `json:"account"`
	CreditID uint64 `json:"credit_id"`
}

// Balance is the quantity of one credit held by one account.
// A missing balance is equivalent to zero.
type Balance struct {
	Account   string    `json:"account"`
	CreditID  uint64    `json:"credit_id"`
	Amount    int64     `json:"amount"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Key returns the balance's address.
func (b *Balance) Key() Key {
	return Key{Account: b.Account, CreditID: b.CreditID}
}
