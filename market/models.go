// Package market defines fixed-price sell orders for carbon credits.
package market

import (
	"github.com/xraph/carbon/types"
)

// Listing is an open sell order. Seller, CreditID and PricePerCredit are
// fixed for the listing's lifetime; Amount only ever decreases.
//
// A listing does not reserve the seller's balance. The seller's holdings are
// checked again when a buyer fills the order.
type Listing struct {
	types.Entity
	ID             uint64 `json:"id"`
	Seller         string `json:"seller"`
	CreditID       uint64 `json:"credit_id"`
	Amount         int64  `json:"amount"`
	PricePerCredit int64  `json:"price_per_credit"`
}

// Cost returns the settlement total for buying qty units of the listing.
func (l *Listing) Cost(qty int64, currency string) (types.Money, error) {
	return types.UnitPrice(qty, l.PricePerCredit, currency)
}

// Notional returns the value of the remaining inventory at the listed price.
func (l *Listing) Notional(currency string) (types.Money, error) {
	return l.Cost(l.Amount, currency)
}
