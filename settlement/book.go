package settlement

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/xraph/carbon/id"
	"github.com/xraph/carbon/types"
)

// Compile-time interface checks.
var (
	_ Settler  = (*Book)(nil)
	_ Reverser = (*Book)(nil)
)

// Book is an in-memory cash book in a single currency. It is safe for
// concurrent use.
type Book struct {
	mu       sync.Mutex
	currency string
	accounts map[string]int64
	receipts map[string]*Receipt
	now      func() time.Time
}

// NewBook creates an empty book in the given currency.
func NewBook(currency string) *Book {
	return &Book{
		currency: strings.ToLower(currency),
		accounts: make(map[string]int64),
		receipts: make(map[string]*Receipt),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Currency returns the book's currency.
func (b *Book) Currency() string { return b.currency }

// Deposit credits amount to account.
func (b *Book) Deposit(account string, amount types.Money) error {
	if amount.Currency != b.currency {
		return fmt.Errorf("%w: book holds %s, got %s", ErrCurrencyMismatch, b.currency, amount.Currency)
	}
	if !amount.IsPositive() {
		return ErrInvalidTotal
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.accounts[account] += amount.Amount
	return nil
}

// Balance returns the funds held by account.
func (b *Book) Balance(account string) types.Money {
	b.mu.Lock()
	defer b.mu.Unlock()
	return types.New(b.accounts[account], b.currency)
}

// Accounts returns every account with a non-zero balance, sorted.
func (b *Book) Accounts() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]string, 0, len(b.accounts))
	for a, v := range b.accounts {
		if v != 0 {
			out = append(out, a)
		}
	}
	sort.Strings(out)
	return out
}

// Pay implements Settler.
func (b *Book) Pay(ctx context.Context, payer, payee string, total types.Money) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if total.Currency != b.currency {
		return nil, fmt.Errorf("%w: book holds %s, got %s", ErrCurrencyMismatch, b.currency, total.Currency)
	}
	if !total.IsPositive() {
		return nil, ErrInvalidTotal
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.accounts[payer] < total.Amount {
		return nil, fmt.Errorf("%w: %s holds %s, needs %s",
			ErrInsufficientFunds, payer, types.New(b.accounts[payer], b.currency), total)
	}
	b.accounts[payer] -= total.Amount
	b.accounts[payee] += total.Amount

	r := &Receipt{
		ID:        id.NewReceiptID(),
		Payer:     payer,
		Payee:     payee,
		Total:     total,
		SettledAt: b.now(),
	}
	b.receipts[r.ID.String()] = r
	return r, nil
}

// Reverse implements Reverser. A receipt can be reversed once.
func (b *Book) Reverse(_ context.Context, receipt *Receipt) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	r, ok := b.receipts[receipt.ID.String()]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownReceipt, receipt.ID)
	}
	delete(b.receipts, receipt.ID.String())

	b.accounts[r.Payee] -= r.Total.Amount
	b.accounts[r.Payer] += r.Total.Amount
	return nil
}
