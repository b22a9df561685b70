package journal

import "context"

// Store persists journal entries. Entries are append-only.
type Store interface {
	AppendEntry(ctx context.Context, e *Entry) error
	ListEntries(ctx context.Context, opts ListOpts) ([]*Entry, error)
}

// ListOpts filters journal queries. Results are ordered by Sequence.
type ListOpts struct {
	Kind     Kind
	Account  string
	CreditID *uint64
	// After returns only entries with a Sequence strictly greater than it.
	After  *uint64
	Limit  int
	Offset int
}

// Match reports whether e satisfies the filter, ignoring paging.
func (o ListOpts) Match(e *Entry) bool {
	if o.Kind != "" && e.Kind != o.Kind {
		return false
	}
	if o.Account != "" && !e.Involves(o.Account) {
		return false
	}
	if o.CreditID != nil && e.CreditID != *o.CreditID {
		return false
	}
	if o.After != nil && e.Sequence <= *o.After {
		return false
	}
	return true
}
