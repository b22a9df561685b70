package credit

import "context"

// Store persists credits and balances.
type Store interface {
	PutCredit(ctx context.Context, c *Credit) error
	GetCredit(ctx context.Context, creditID uint64) (*Credit, error)
	ListCredits(ctx context.Context, opts ListOpts) ([]*Credit, error)
	// DeleteCredit removes a credit; it returns ErrNotFound when absent.
	DeleteCredit(ctx context.Context, creditID uint64) error

	// PutBalance upserts a balance. A zero amount removes the entry.
	PutBalance(ctx context.Context, b *Balance) error
	GetBalance(ctx context.Context, account string, creditID uint64) (*Balance, error)
	ListBalances(ctx context.Context, opts BalanceOpts) ([]*Balance, error)
}

// ListOpts filters credit listings. Results are ordered by ID.
type ListOpts struct {
	Owner       string
	Retired     *bool
	VintageYear int
	Limit       int
	Offset      int
}

// Match reports whether c satisfies the filter, ignoring paging.
func (o ListOpts) Match(c *Credit) bool {
	if o.Owner != "" && c.Owner != o.Owner {
		return false
	}
	if o.Retired != nil && c.IsRetired != *o.Retired {
		return false
	}
	if o.VintageYear != 0 && c.VintageYear != o.VintageYear {
		return false
	}
	return true
}

// BalanceOpts filters balance listings. Results are ordered by
// (credit id, account).
type BalanceOpts struct {
	Account  string
	CreditID *uint64
	Limit    int
	Offset   int
}

// Match reports whether b satisfies the filter, ignoring paging.
func (o BalanceOpts) Match(b *Balance) bool {
	if o.Account != "" && b.Account != o.Account {
		return false
	}
	if o.CreditID != nil && b.CreditID != *o.CreditID {
		return false
	}
	return true
}
