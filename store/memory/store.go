// Package memory provides an in-process store.Store for tests and
// single-node deployments that do not need durability.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/xraph/carbon"
	"github.com/xraph/carbon/credit"
	"github.com/xraph/carbon/journal"
	"github.com/xraph/carbon/market"
	"github.com/xraph/carbon/store"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store keeps every record in maps guarded by a single RWMutex. Values are
// copied on the way in and out.
type Store struct {
	mu sync.RWMutex

	credits  map[uint64]*credit.Credit
	balances map[credit.Key]*credit.Balance
	listings map[uint64]*market.Listing
	entries  []*journal.Entry
	seq      store.Sequences
	closed   bool
}

// New creates an empty store.
func New() *Store {
	return &Store{
		credits:  make(map[uint64]*credit.Credit),
		balances: make(map[credit.Key]*credit.Balance),
		listings: make(map[uint64]*market.Listing),
	}
}

// ==================== Credit Store ====================

func (s *Store) PutCredit(_ context.Context, c *credit.Credit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return carbon.ErrStoreClosed
	}

	cp := *c
	s.credits[c.ID] = &cp
	return nil
}

func (s *Store) GetCredit(_ context.Context, creditID uint64) (*credit.Credit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.credits[creditID]
	if !ok {
		return nil, fmt.Errorf("%w: credit %d", carbon.ErrNotFound, creditID)
	}
	cp := *c
	return &cp, nil
}

func (s *Store) DeleteCredit(_ context.Context, creditID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return carbon.ErrStoreClosed
	}

	if _, ok := s.credits[creditID]; !ok {
		return fmt.Errorf("%w: credit %d", carbon.ErrNotFound, creditID)
	}
	delete(s.credits, creditID)
	return nil
}

func (s *Store) ListCredits(_ context.Context, opts credit.ListOpts) ([]*credit.Credit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*credit.Credit, 0, len(s.credits))
	for _, c := range s.credits {
		if opts.Match(c) {
			cp := *c
			result = append(result, &cp)
		}
	}
	slices.SortFunc(result, func(a, b *credit.Credit) int { return cmp.Compare(a.ID, b.ID) })
	return page(result, opts.Limit, opts.Offset), nil
}

func (s *Store) PutBalance(_ context.Context, b *credit.Balance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return carbon.ErrStoreClosed
	}

	if b.Amount == 0 {
		delete(s.balances, b.Key())
		return nil
	}
	cp := *b
	s.balances[b.Key()] = &cp
	return nil
}

func (s *Store) GetBalance(_ context.Context, account string, creditID uint64) (*credit.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.balances[credit.Key{Account: account, CreditID: creditID}]
	if !ok {
		return nil, fmt.Errorf("%w: balance %s/%d", carbon.ErrNotFound, account, creditID)
	}
	cp := *b
	return &cp, nil
}

func (s *Store) ListBalances(_ context.Context, opts credit.BalanceOpts) ([]*credit.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*credit.Balance, 0, len(s.balances))
	for _, b := range s.balances {
		if opts.Match(b) {
			cp := *b
			result = append(result, &cp)
		}
	}
	slices.SortFunc(result, func(a, b *credit.Balance) int {
		if c := cmp.Compare(a.CreditID, b.CreditID); c != 0 {
			return c
		}
		return strings.Compare(a.Account, b.Account)
	})
	return page(result, opts.Limit, opts.Offset), nil
}

// ==================== Listing Store ====================

func (s *Store) PutListing(_ context.Context, l *market.Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return carbon.ErrStoreClosed
	}

	cp := *l
	s.listings[l.ID] = &cp
	return nil
}

func (s *Store) GetListing(_ context.Context, listingID uint64) (*market.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.listings[listingID]
	if !ok {
		return nil, fmt.Errorf("%w: listing %d", carbon.ErrNotFound, listingID)
	}
	cp := *l
	return &cp, nil
}

func (s *Store) DeleteListing(_ context.Context, listingID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return carbon.ErrStoreClosed
	}

	if _, ok := s.listings[listingID]; !ok {
		return fmt.Errorf("%w: listing %d", carbon.ErrNotFound, listingID)
	}
	delete(s.listings, listingID)
	return nil
}

func (s *Store) ListListings(_ context.Context, opts market.ListOpts) ([]*market.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*market.Listing, 0, len(s.listings))
	for _, l := range s.listings {
		if opts.Match(l) {
			cp := *l
			result = append(result, &cp)
		}
	}
	slices.SortFunc(result, func(a, b *market.Listing) int { return cmp.Compare(a.ID, b.ID) })
	return page(result, opts.Limit, opts.Offset), nil
}

// ==================== Journal Store ====================

func (s *Store) AppendEntry(_ context.Context, e *journal.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return carbon.ErrStoreClosed
	}

	for _, existing := range s.entries {
		if existing.Sequence == e.Sequence {
			return fmt.Errorf("%w: journal sequence %d", carbon.ErrAlreadyExists, e.Sequence)
		}
	}
	s.entries = append(s.entries, copyEntry(e))
	return nil
}

func (s *Store) ListEntries(_ context.Context, opts journal.ListOpts) ([]*journal.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*journal.Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if !opts.Match(e) {
			continue
		}
		result = append(result, copyEntry(e))
	}
	slices.SortFunc(result, func(a, b *journal.Entry) int { return cmp.Compare(a.Sequence, b.Sequence) })
	return page(result, opts.Limit, opts.Offset), nil
}

// ==================== Sequences ====================

func (s *Store) GetSequences(_ context.Context) (*store.Sequences, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seq := s.seq
	return &seq, nil
}

func (s *Store) PutSequences(_ context.Context, seq *store.Sequences) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return carbon.ErrStoreClosed
	}

	s.seq = *seq
	return nil
}

// ==================== Core ====================

// Migrate is a no-op for the memory store.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping reports ErrStoreClosed after Close.
func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return carbon.ErrStoreClosed
	}
	return nil
}

// Close rejects further writes. Reads keep working so a closed store can
// still be inspected.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Reopen clears the closed flag, simulating a process restart over the
// same data.
func (s *Store) Reopen() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = false
}

func copyEntry(e *journal.Entry) *journal.Entry {
	cp := *e
	if e.ListingID != nil {
		lid := *e.ListingID
		cp.ListingID = &lid
	}
	return &cp
}

func page[T any](items []T, limit, offset int) []T {
	start := min(max(offset, 0), len(items))
	end := len(items)
	if limit > 0 && start+limit < end {
		end = start + limit
	}
	return items[start:end]
}
