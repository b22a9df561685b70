// Package settlement defines the payment collaborator invoked when a buyer
// fills a listing, plus an in-memory implementation.
//
// The ledger treats a settlement as all-or-nothing: if Pay returns an error
// no ledger state changes.
package settlement

import (
	"context"
	"errors"
	"time"

	"github.com/xraph/carbon/id"
	"github.com/xraph/carbon/types"
)

var (
	ErrInsufficientFunds = errors.New("settlement: insufficient funds")
	ErrCurrencyMismatch  = errors.New("settlement: currency mismatch")
	ErrUnknownReceipt    = errors.New("settlement: unknown receipt")
	ErrInvalidTotal      = errors.New("settlement: total must be positive")
)

// Receipt proves a completed payment.
type Receipt struct {
	ID        id.ReceiptID `json:"id"`
	Payer     string       `json:"payer"`
	Payee     string       `json:"payee"`
	Total     types.Money  `json:"total"`
	SettledAt time.Time    `json:"settled_at"`
}

// Settler moves total from payer to payee in the settlement currency.
type Settler interface {
	Pay(ctx context.Context, payer, payee string, total types.Money) (*Receipt, error)
}

// Reverser is implemented by settlers that can refund a completed payment.
// The ledger uses it when a paid purchase cannot be recorded.
type Reverser interface {
	Reverse(ctx context.Context, receipt *Receipt) error
}

// SettlerFunc adapts a plain function to Settler.
type SettlerFunc func(ctx context.Context, payer, payee string, total types.Money) (*Receipt, error)

// Pay implements Settler.
func (f SettlerFunc) Pay(ctx context.Context, payer, payee string, total types.Money) (*Receipt, error) {
	return f(ctx, payer, payee, total)
}

// Noop accepts every payment without moving funds. It is the default
// settler for ledgers that settle off-ledger.
type Noop struct{}

// Pay implements Settler.
func (Noop) Pay(_ context.Context, payer, payee string, total types.Money) (*Receipt, error) {
	return &Receipt{
		ID:        id.NewReceiptID(),
		Payer:     payer,
		Payee:     payee,
		Total:     total,
		SettledAt: time.Now().UTC(),
	}, nil
}
