package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/carbon"
	"github.com/xraph/carbon/credit"
	"github.com/xraph/carbon/journal"
	"github.com/xraph/carbon/market"
	"github.com/xraph/carbon/store"
	"github.com/xraph/carbon/store/memory"
	"github.com/xraph/carbon/types"
)

func TestCredits(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	for i := range uint64(4) {
		require.NoError(t, s.PutCredit(ctx, &credit.Credit{
			ID:          i,
			Owner:       []string{"a", "b"}[i%2],
			TotalAmount: 100,
			VintageYear: 2020 + int(i),
			IsRetired:   i == 3,
		}))
	}

	c, err := s.GetCredit(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 2022, c.VintageYear)

	c.Owner = "mutated"
	again, _ := s.GetCredit(ctx, 2)
	assert.Equal(t, "a", again.Owner, "returned records are copies")

	_, err = s.GetCredit(ctx, 99)
	assert.ErrorIs(t, err, carbon.ErrNotFound)

	all, err := s.ListCredits(ctx, credit.ListOpts{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	for i, c := range all {
		assert.Equal(t, uint64(i), c.ID)
	}

	byOwner, err := s.ListCredits(ctx, credit.ListOpts{Owner: "b"})
	require.NoError(t, err)
	assert.Len(t, byOwner, 2)

	retired := true
	onlyRetired, err := s.ListCredits(ctx, credit.ListOpts{Retired: &retired})
	require.NoError(t, err)
	require.Len(t, onlyRetired, 1)
	assert.Equal(t, uint64(3), onlyRetired[0].ID)

	paged, err := s.ListCredits(ctx, credit.ListOpts{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, paged, 2)
	assert.Equal(t, uint64(1), paged[0].ID)

	past, err := s.ListCredits(ctx, credit.ListOpts{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, past)
}

func TestDeleteCredit(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	require.NoError(t, s.PutCredit(ctx, &credit.Credit{ID: 7, TotalAmount: 5}))

	require.NoError(t, s.DeleteCredit(ctx, 7))
	_, err := s.GetCredit(ctx, 7)
	assert.ErrorIs(t, err, carbon.ErrNotFound)
	assert.ErrorIs(t, s.DeleteCredit(ctx, 7), carbon.ErrNotFound)

	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.DeleteCredit(ctx, 7), carbon.ErrStoreClosed)
}

func TestBalances(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	require.NoError(t, s.PutBalance(ctx, &credit.Balance{Account: "b", CreditID: 1, Amount: 5}))
	require.NoError(t, s.PutBalance(ctx, &credit.Balance{Account: "a", CreditID: 1, Amount: 7}))
	require.NoError(t, s.PutBalance(ctx, &credit.Balance{Account: "a", CreditID: 0, Amount: 3}))

	b, err := s.GetBalance(ctx, "a", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(7), b.Amount)

	all, err := s.ListBalances(ctx, credit.BalanceOpts{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, credit.Key{Account: "a", CreditID: 0}, all[0].Key())
	assert.Equal(t, credit.Key{Account: "a", CreditID: 1}, all[1].Key())
	assert.Equal(t, credit.Key{Account: "b", CreditID: 1}, all[2].Key())

	one := uint64(1)
	onCredit, err := s.ListBalances(ctx, credit.BalanceOpts{CreditID: &one})
	require.NoError(t, err)
	assert.Len(t, onCredit, 2)

	// A zero amount removes the balance.
	require.NoError(t, s.PutBalance(ctx, &credit.Balance{Account: "a", CreditID: 1, Amount: 0}))
	_, err = s.GetBalance(ctx, "a", 1)
	assert.ErrorIs(t, err, carbon.ErrNotFound)

	forA, err := s.ListBalances(ctx, credit.BalanceOpts{Account: "a"})
	require.NoError(t, err)
	assert.Len(t, forA, 1)
}

func TestListings(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	require.NoError(t, s.PutListing(ctx, &market.Listing{ID: 0, Seller: "a", CreditID: 3, Amount: 10, PricePerCredit: 2}))
	require.NoError(t, s.PutListing(ctx, &market.Listing{ID: 1, Seller: "b", CreditID: 3, Amount: 4, PricePerCredit: 9}))

	l, err := s.GetListing(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "b", l.Seller)

	bySeller, err := s.ListListings(ctx, market.ListOpts{Seller: "a"})
	require.NoError(t, err)
	assert.Len(t, bySeller, 1)

	require.NoError(t, s.DeleteListing(ctx, 0))
	assert.ErrorIs(t, s.DeleteListing(ctx, 0), carbon.ErrNotFound)
	_, err = s.GetListing(ctx, 0)
	assert.ErrorIs(t, err, carbon.ErrNotFound)
}

func TestJournal(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	lid := uint64(0)
	entries := []*journal.Entry{
		{Sequence: 0, Kind: journal.KindIssue, Caller: "a", CreditID: 0, Amount: 10, Total: types.Zero("usd")},
		{Sequence: 1, Kind: journal.KindList, Caller: "a", CreditID: 0, ListingID: &lid, Amount: 5},
		{Sequence: 2, Kind: journal.KindBuy, Caller: "b", Counterparty: "a", CreditID: 0, ListingID: &lid, Amount: 2, Total: types.USD(8)},
	}
	for _, e := range entries {
		require.NoError(t, s.AppendEntry(ctx, e))
	}
	assert.ErrorIs(t, s.AppendEntry(ctx, &journal.Entry{Sequence: 1}), carbon.ErrAlreadyExists)

	all, err := s.ListEntries(ctx, journal.ListOpts{})
	require.NoError(t, err)
	require.Len(t, all, 3)

	*all[1].ListingID = 7
	reread, _ := s.ListEntries(ctx, journal.ListOpts{Kind: journal.KindList})
	require.Len(t, reread, 1)
	assert.Equal(t, uint64(0), *reread[0].ListingID, "listing id pointer is not shared")

	forB, err := s.ListEntries(ctx, journal.ListOpts{Account: "b"})
	require.NoError(t, err)
	require.Len(t, forB, 1)
	assert.Equal(t, types.USD(8), forB[0].Total)

	after := uint64(0)
	later, err := s.ListEntries(ctx, journal.ListOpts{After: &after, Limit: 1})
	require.NoError(t, err)
	require.Len(t, later, 1)
	assert.Equal(t, uint64(1), later[0].Sequence)
}

func TestSequencesAndClose(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	seq, err := s.GetSequences(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.Sequences{}, *seq)

	require.NoError(t, s.PutSequences(ctx, &store.Sequences{NextCreditID: 2, NextListingID: 1, NextEntrySeq: 5}))
	seq, err = s.GetSequences(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), seq.NextEntrySeq)

	require.NoError(t, s.Migrate(ctx))
	require.NoError(t, s.Ping(ctx))
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.Ping(ctx), carbon.ErrStoreClosed)
	assert.ErrorIs(t, s.PutCredit(ctx, &credit.Credit{}), carbon.ErrStoreClosed)
	_, err = s.GetSequences(ctx)
	assert.NoError(t, err, "reads work after close")

	s.Reopen()
	assert.NoError(t, s.Ping(ctx))
}
