package market

import "context"

// Store persists listings.
type Store interface {
	PutListing(ctx context.Context, l *Listing) error
	GetListing(ctx context.Context, listingID uint64) (*Listing, error)
	DeleteListing(ctx context.Context, listingID uint64) error
	ListListings(ctx context.Context, opts ListOpts) ([]*Listing, error)
}

// ListOpts filters listings. Results are ordered by ID.
type ListOpts struct {
	Seller   string
	CreditID *uint64
	Limit    int
	Offset   int
}

// Match reports whether l satisfies the filter, ignoring paging.
func (o ListOpts) Match(l *Listing) bool {
	if o.Seller != "" && l.Seller != o.Seller {
		return false
	}
	if o.CreditID != nil && l.CreditID != *o.CreditID {
		return false
	}
	return true
}
