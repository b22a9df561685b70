package carbon_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/xraph/carbon"
	"github.com/xraph/carbon/credit"
	"github.com/xraph/carbon/journal"
	"github.com/xraph/carbon/market"
	"github.com/xraph/carbon/settlement"
	"github.com/xraph/carbon/store"
	"github.com/xraph/carbon/store/memory"
	"github.com/xraph/carbon/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func startLedger(t *testing.T, s *memory.Store, opts ...carbon.Option) *carbon.Ledger {
	t.Helper()
	l := carbon.New(s, append([]carbon.Option{carbon.WithLogger(quiet)}, opts...)...)
	require.NoError(t, l.Start(context.Background()))
	return l
}

// flakyStore fails chosen writes on demand. Call counts are per method and
// start at 1 after arm.
type flakyStore struct {
	*memory.Store

	mu    sync.Mutex
	calls map[string]int
	fail  func(op string, call int) bool
	// lostAck stores journal entries but still reports failure.
	lostAck bool
}

func (f *flakyStore) arm(fail func(op string, call int) bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = make(map[string]int)
	f.fail = fail
}

func (f *flakyStore) hit(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail == nil {
		return nil
	}
	f.calls[op]++
	if f.fail(op, f.calls[op]) {
		return fmt.Errorf("%s: transient", op)
	}
	return nil
}

func failOnce(op string) func(string, int) bool {
	return func(o string, n int) bool { return o == op && n == 1 }
}

func (f *flakyStore) PutCredit(ctx context.Context, c *credit.Credit) error {
	if err := f.hit("PutCredit"); err != nil {
		return err
	}
	return f.Store.PutCredit(ctx, c)
}

func (f *flakyStore) DeleteCredit(ctx context.Context, creditID uint64) error {
	if err := f.hit("DeleteCredit"); err != nil {
		return err
	}
	return f.Store.DeleteCredit(ctx, creditID)
}

func (f *flakyStore) PutBalance(ctx context.Context, b *credit.Balance) error {
	if err := f.hit("PutBalance"); err != nil {
		return err
	}
	return f.Store.PutBalance(ctx, b)
}

func (f *flakyStore) PutListing(ctx context.Context, l *market.Listing) error {
	if err := f.hit("PutListing"); err != nil {
		return err
	}
	return f.Store.PutListing(ctx, l)
}

func (f *flakyStore) DeleteListing(ctx context.Context, listingID uint64) error {
	if err := f.hit("DeleteListing"); err != nil {
		return err
	}
	return f.Store.DeleteListing(ctx, listingID)
}

func (f *flakyStore) PutSequences(ctx context.Context, seq *store.Sequences) error {
	if err := f.hit("PutSequences"); err != nil {
		return err
	}
	return f.Store.PutSequences(ctx, seq)
}

func (f *flakyStore) AppendEntry(ctx context.Context, e *journal.Entry) error {
	err := f.hit("AppendEntry")
	f.mu.Lock()
	lost := f.lostAck
	f.mu.Unlock()
	if lost {
		if serr := f.Store.AppendEntry(ctx, e); serr != nil {
			return serr
		}
		return errors.New("AppendEntry: connection reset")
	}
	if err != nil {
		return err
	}
	return f.Store.AppendEntry(ctx, e)
}

type events struct {
	mu       sync.Mutex
	seen     []string
	canceled *market.Listing
	rejected []error
}

func (e *events) Name() string { return "events" }

func (e *events) add(s string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seen = append(e.seen, s)
}

func (e *events) OnInit(context.Context, any) error { e.add("init"); return nil }
func (e *events) OnShutdown(context.Context) error { e.add("shutdown"); return nil }
func (e *events) OnCreditIssued(_ context.Context, _ *credit.Credit, _ *journal.Entry) error {
	e.add("issued")
	return nil
}
func (e *events) OnCreditTransferred(context.Context, *journal.Entry) error {
	e.add("transferred")
	return nil
}
func (e *events) OnCreditRetired(_ context.Context, c *credit.Credit, _ *journal.Entry) error {
	e.add("retired")
	return nil
}
func (e *events) OnListingCreated(_ context.Context, _ *market.Listing, _ *journal.Entry) error {
	e.add("listed")
	return nil
}
func (e *events) OnListingCanceled(_ context.Context, l *market.Listing, _ *journal.Entry) error {
	e.mu.Lock()
	e.canceled = l
	e.mu.Unlock()
	e.add("canceled")
	return nil
}
func (e *events) OnCreditPurchased(context.Context, *journal.Entry) error {
	e.add("purchased")
	return nil
}
func (e *events) OnOperationRejected(_ context.Context, kind journal.Kind, _ string, err error) error {
	e.mu.Lock()
	e.rejected = append(e.rejected, err)
	e.mu.Unlock()
	e.add("rejected:" + string(kind))
	return nil
}

func TestLedgerLifecycle(t *testing.T) {
	ctx := context.Background()
	ev := &events{}
	l := startLedger(t, memory.New(), carbon.WithPlugin(ev))

	creditID, err := l.Issue(ctx, "owner1", "verifier1", 1000, "Forest Project A", 2023)
	require.NoError(t, err)
	require.NoError(t, l.Transfer(ctx, "owner1", "owner2", creditID, 100))
	require.NoError(t, l.Retire(ctx, "owner2", creditID, 10))
	listingID, err := l.List(ctx, "owner1", creditID, 50, 7)
	require.NoError(t, err)
	_, err = l.Buy(ctx, "buyer", listingID, 10)
	require.NoError(t, err)
	require.NoError(t, l.Cancel(ctx, "owner1", listingID))
	require.ErrorIs(t, l.Cancel(ctx, "owner1", listingID), carbon.ErrNotFound)
	require.NoError(t, l.Stop())

	assert.Equal(t, []string{
		"init", "issued", "transferred", "retired", "listed",
		"purchased", "canceled", "rejected:cancel", "shutdown",
	}, ev.seen)
	require.NotNil(t, ev.canceled)
	assert.Equal(t, int64(40), ev.canceled.Amount, "canceled listing is reported as it stood")
	require.Len(t, ev.rejected, 1)
	assert.Equal(t, carbon.KindNotFound, carbon.Kind(ev.rejected[0]))
}

func TestLedgerReads(t *testing.T) {
	ctx := context.Background()
	l := startLedger(t, memory.New())
	defer l.Stop()

	creditID, err := l.Issue(ctx, "owner1", "v", 1000, "p", 2023)
	require.NoError(t, err)
	listingID, err := l.List(ctx, "owner1", creditID, 500, 10)
	require.NoError(t, err)

	c, err := l.GetCredit(creditID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), c.TotalAmount)
	_, err = l.GetCredit(9)
	require.ErrorIs(t, err, carbon.ErrNotFound)

	bal, err := l.GetBalance("owner1", creditID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), bal)
	bal, err = l.GetBalance("nobody", creditID)
	require.NoError(t, err)
	assert.Zero(t, bal)

	listing, err := l.GetListing(listingID)
	require.NoError(t, err)
	assert.Equal(t, int64(500), listing.Amount)
	_, err = l.GetListing(3)
	assert.True(t, carbon.IsNotFound(err))

	next, err := l.NextCreditID()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), next)
	next, err = l.NextListingID()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), next)

	credits, err := l.Credits()
	require.NoError(t, err)
	assert.Len(t, credits, 1)
	balances, err := l.Balances()
	require.NoError(t, err)
	assert.Len(t, balances, 1)
	listings, err := l.Listings()
	require.NoError(t, err)
	assert.Len(t, listings, 1)

	require.NoError(t, l.CheckConservation())
	snap, err := l.Snapshot()
	require.NoError(t, err)
	assert.NotEmpty(t, snap)
	require.NoError(t, l.Ping(ctx))
}

func TestLedgerBuySettlesThroughBook(t *testing.T) {
	ctx := context.Background()
	book := settlement.NewBook("usd")
	require.NoError(t, book.Deposit("buyer", types.USD(5000)))
	l := startLedger(t, memory.New(), carbon.WithSettler(book))
	defer l.Stop()

	creditID, err := l.Issue(ctx, "seller", "v", 100, "p", 2021)
	require.NoError(t, err)
	listingID, err := l.List(ctx, "seller", creditID, 100, 150)
	require.NoError(t, err)

	entry, err := l.Buy(ctx, "buyer", listingID, 20)
	require.NoError(t, err)
	assert.Equal(t, types.USD(3000), entry.Total)
	assert.NotEmpty(t, entry.SettlementRef)
	assert.Equal(t, journal.KindBuy, entry.Kind)
	assert.Equal(t, types.USD(2000), book.Balance("buyer"))
	assert.Equal(t, types.USD(3000), book.Balance("seller"))

	before, err := l.Digest()
	require.NoError(t, err)

	_, err = l.Buy(ctx, "buyer", listingID, 20)
	require.ErrorIs(t, err, carbon.ErrSettlementFailed)
	require.ErrorIs(t, err, settlement.ErrInsufficientFunds)

	after, err := l.Digest()
	require.NoError(t, err)
	assert.Equal(t, before, after)
	bal, _ := l.GetBalance("buyer", creditID)
	assert.Equal(t, int64(20), bal)
}

func TestLedgerPersistFailureReversesSettlement(t *testing.T) {
	ctx := context.Background()
	book := settlement.NewBook("usd")
	require.NoError(t, book.Deposit("buyer", types.USD(1000)))
	s := &flakyStore{Store: memory.New()}

	l := carbon.New(s, carbon.WithLogger(quiet), carbon.WithSettler(book))
	require.NoError(t, l.Start(ctx))
	defer l.Stop()

	creditID, err := l.Issue(ctx, "seller", "v", 10, "p", 2021)
	require.NoError(t, err)
	listingID, err := l.List(ctx, "seller", creditID, 10, 100)
	require.NoError(t, err)
	before, err := l.Digest()
	require.NoError(t, err)

	s.arm(failOnce("AppendEntry"))
	_, err = l.Buy(ctx, "buyer", listingID, 5)
	require.ErrorIs(t, err, carbon.ErrTransactionFailed)
	assert.True(t, carbon.IsRetryable(err))

	after, err := l.Digest()
	require.NoError(t, err)
	assert.Equal(t, before, after, "memory state untouched")
	assert.Equal(t, types.USD(1000), book.Balance("buyer"), "payment refunded")
	assert.True(t, book.Balance("seller").IsZero())

	_, err = l.Buy(ctx, "buyer", listingID, 5)
	require.NoError(t, err)

	history, err := l.History(ctx, journal.ListOpts{})
	require.NoError(t, err)
	require.Len(t, history, 3)
	for i, e := range history {
		assert.Equal(t, uint64(i), e.Sequence, "journal sequence stays dense")
	}
}

// restart stops l, disarms s and starts a fresh ledger over the same data.
func restart(t *testing.T, l *carbon.Ledger, s *flakyStore) *carbon.Ledger {
	t.Helper()
	require.NoError(t, l.Stop())
	s.arm(nil)
	s.Reopen()
	next := carbon.New(s, carbon.WithLogger(quiet))
	require.NoError(t, next.Start(context.Background()))
	return next
}

func TestLedgerFailedBuyLeavesStoreUnchanged(t *testing.T) {
	tests := []struct {
		name   string
		amount int64
		fail   func(string, int) bool
	}{
		{"seller balance", 5, failOnce("PutBalance")},
		{"buyer balance", 5, func(op string, n int) bool { return op == "PutBalance" && n == 2 }},
		{"listing update", 5, failOnce("PutListing")},
		{"listing delete", 10, failOnce("DeleteListing")},
		{"counters", 5, failOnce("PutSequences")},
		{"journal", 10, failOnce("AppendEntry")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			book := settlement.NewBook("usd")
			require.NoError(t, book.Deposit("buyer", types.USD(1000)))
			s := &flakyStore{Store: memory.New()}
			l := carbon.New(s, carbon.WithLogger(quiet), carbon.WithSettler(book))
			require.NoError(t, l.Start(ctx))

			creditID, err := l.Issue(ctx, "seller", "v", 10, "p", 2021)
			require.NoError(t, err)
			listingID, err := l.List(ctx, "seller", creditID, 10, 100)
			require.NoError(t, err)
			before, err := l.Digest()
			require.NoError(t, err)

			s.arm(tt.fail)
			_, err = l.Buy(ctx, "buyer", listingID, tt.amount)
			require.ErrorIs(t, err, carbon.ErrTransactionFailed)
			assert.Equal(t, types.USD(1000), book.Balance("buyer"), "payment refunded")

			restarted := restart(t, l, s)
			defer restarted.Stop()

			after, err := restarted.Digest()
			require.NoError(t, err)
			assert.Equal(t, before, after)

			bal, err := restarted.GetBalance("buyer", creditID)
			require.NoError(t, err)
			assert.Zero(t, bal)
			listing, err := restarted.GetListing(listingID)
			require.NoError(t, err)
			assert.Equal(t, int64(10), listing.Amount)

			history, err := restarted.History(ctx, journal.ListOpts{})
			require.NoError(t, err)
			assert.Len(t, history, 2)
		})
	}
}

func TestLedgerFailedIssueFreesCreditID(t *testing.T) {
	ctx := context.Background()
	s := &flakyStore{Store: memory.New()}
	l := carbon.New(s, carbon.WithLogger(quiet))
	require.NoError(t, l.Start(ctx))

	s.arm(failOnce("AppendEntry"))
	_, err := l.Issue(ctx, "registry", "verra", 100, "Peatland", 2020)
	require.ErrorIs(t, err, carbon.ErrTransactionFailed)
	_, err = s.GetCredit(ctx, 0)
	require.ErrorIs(t, err, carbon.ErrNotFound)

	creditID, err := l.Issue(ctx, "registry", "gold-standard", 40, "Mangroves", 2024)
	require.NoError(t, err)
	assert.Zero(t, creditID)

	restarted := restart(t, l, s)
	defer restarted.Stop()

	c, err := restarted.GetCredit(creditID)
	require.NoError(t, err)
	assert.Equal(t, "Mangroves", c.Origin)
	assert.Equal(t, "gold-standard", c.Verifier)
	assert.Equal(t, int64(40), c.TotalAmount)
	next, err := restarted.NextCreditID()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), next)
}

func TestLedgerRecoversFromCounterWriteFailure(t *testing.T) {
	ctx := context.Background()
	s := &flakyStore{Store: memory.New()}
	l := carbon.New(s, carbon.WithLogger(quiet))
	require.NoError(t, l.Start(ctx))

	s.arm(failOnce("PutSequences"))
	_, err := l.Issue(ctx, "registry", "verra", 10, "p", 2020)
	require.ErrorIs(t, err, carbon.ErrTransactionFailed)

	creditID, err := l.Issue(ctx, "registry", "verra", 10, "p", 2020)
	require.NoError(t, err)
	assert.Zero(t, creditID)

	restarted := restart(t, l, s)
	defer restarted.Stop()

	_, err = restarted.Issue(ctx, "registry", "verra", 10, "p", 2021)
	require.NoError(t, err)
	history, err := restarted.History(ctx, journal.ListOpts{})
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, uint64(0), history[0].Sequence)
	assert.Equal(t, uint64(1), history[1].Sequence)
}

func TestLedgerSkipsEntryStoredDespiteError(t *testing.T) {
	ctx := context.Background()
	s := &flakyStore{Store: memory.New(), lostAck: true}
	l := carbon.New(s, carbon.WithLogger(quiet))
	require.NoError(t, l.Start(ctx))
	defer l.Stop()

	_, err := l.Issue(ctx, "registry", "verra", 5, "p", 2020)
	require.ErrorIs(t, err, carbon.ErrTransactionFailed)

	s.mu.Lock()
	s.lostAck = false
	s.mu.Unlock()

	creditID, err := l.Issue(ctx, "registry", "verra", 5, "p", 2020)
	require.NoError(t, err)
	assert.Zero(t, creditID)

	history, err := l.History(ctx, journal.ListOpts{})
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, uint64(1), history[1].Sequence)
}

func TestLedgerStartResumesAfterStoredJournal(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	l := startLedger(t, s)

	creditID, err := l.Issue(ctx, "registry", "verra", 5, "p", 2020)
	require.NoError(t, err)
	require.NoError(t, l.Stop())

	// Counters written before the entry, as by an older process.
	s.Reopen()
	require.NoError(t, s.PutSequences(ctx, &store.Sequences{NextCreditID: 1}))

	restarted := startLedger(t, s)
	defer restarted.Stop()

	require.NoError(t, restarted.Transfer(ctx, "registry", "acme", creditID, 1))
	history, err := restarted.History(ctx, journal.ListOpts{})
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, uint64(1), history[1].Sequence)
}

func TestLedgerRepairsStoreBeforeNextOperation(t *testing.T) {
	ctx := context.Background()
	s := &flakyStore{Store: memory.New()}
	l := carbon.New(s, carbon.WithLogger(quiet))
	require.NoError(t, l.Start(ctx))

	creditID, err := l.Issue(ctx, "registry", "verra", 100, "p", 2020)
	require.NoError(t, err)

	// The recipient write fails, and so does restoring the sender.
	s.arm(func(op string, n int) bool { return op == "PutBalance" && (n == 2 || n == 4) })
	err = l.Transfer(ctx, "registry", "acme", creditID, 30)
	require.ErrorIs(t, err, carbon.ErrTransactionFailed)

	stored, err := s.GetBalance(ctx, "registry", creditID)
	require.NoError(t, err)
	assert.Equal(t, int64(70), stored.Amount, "sender write still pending repair")
	bal, err := l.GetBalance("registry", creditID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), bal)

	require.NoError(t, l.Retire(ctx, "registry", creditID, 10))
	stored, err = s.GetBalance(ctx, "registry", creditID)
	require.NoError(t, err)
	assert.Equal(t, int64(90), stored.Amount)

	restarted := restart(t, l, s)
	defer restarted.Stop()

	bal, err = restarted.GetBalance("registry", creditID)
	require.NoError(t, err)
	assert.Equal(t, int64(90), bal)
	bal, err = restarted.GetBalance("acme", creditID)
	require.NoError(t, err)
	assert.Zero(t, bal)
}

func TestLedgerBlocksWhileRepairPending(t *testing.T) {
	ctx := context.Background()
	s := &flakyStore{Store: memory.New()}
	l := carbon.New(s, carbon.WithLogger(quiet))
	require.NoError(t, l.Start(ctx))
	defer l.Stop()

	creditID, err := l.Issue(ctx, "registry", "verra", 100, "p", 2020)
	require.NoError(t, err)
	want, err := l.Digest()
	require.NoError(t, err)

	s.arm(func(op string, n int) bool { return op == "PutBalance" && n >= 2 && n != 3 })
	require.ErrorIs(t, l.Transfer(ctx, "registry", "acme", creditID, 30), carbon.ErrTransactionFailed)

	err = l.Retire(ctx, "registry", creditID, 10)
	require.ErrorIs(t, err, carbon.ErrTransactionFailed)
	assert.False(t, carbon.IsRejection(err))
	got, err := l.Digest()
	require.NoError(t, err)
	assert.Equal(t, want, got)

	s.arm(nil)
	require.NoError(t, l.Retire(ctx, "registry", creditID, 10))
	stored, err := s.GetBalance(ctx, "registry", creditID)
	require.NoError(t, err)
	assert.Equal(t, int64(90), stored.Amount)
}

func TestLedgerStopWhenNotRunning(t *testing.T) {
	ctx := context.Background()
	ev := &events{}
	s := memory.New()
	l := carbon.New(s, carbon.WithLogger(quiet), carbon.WithPlugin(ev))

	require.NoError(t, l.Stop())
	assert.Empty(t, ev.seen)
	require.NoError(t, s.Ping(ctx), "store left open")

	require.NoError(t, l.Start(ctx))
	require.NoError(t, l.Stop())
	require.NoError(t, l.Stop())
	assert.Equal(t, []string{"init", "shutdown"}, ev.seen)
}

func TestLedgerRestartReproducesState(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	l := startLedger(t, s)

	a, err := l.Issue(ctx, "registry", "verra", 1000, "Peatland", 2019)
	require.NoError(t, err)
	b, err := l.Issue(ctx, "registry", "verra", 300, "Mangroves", 2024)
	require.NoError(t, err)
	require.NoError(t, l.Transfer(ctx, "registry", "acme", a, 250))
	require.NoError(t, l.Retire(ctx, "acme", a, 50))
	listingID, err := l.List(ctx, "registry", b, 200, 40)
	require.NoError(t, err)
	_, err = l.Buy(ctx, "globex", listingID, 200)
	require.NoError(t, err)
	_, err = l.List(ctx, "acme", a, 100, 55)
	require.NoError(t, err)

	want, err := l.Digest()
	require.NoError(t, err)
	require.NoError(t, l.Stop())

	s.Reopen()
	restarted := startLedger(t, s)
	defer restarted.Stop()

	got, err := restarted.Digest()
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// Counters and the journal continue where they left off.
	c, err := restarted.Issue(ctx, "registry", "verra", 1, "x", 2025)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), c)
	lid, err := restarted.List(ctx, "acme", a, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), lid)

	history, err := restarted.History(ctx, journal.ListOpts{})
	require.NoError(t, err)
	require.Len(t, history, 9)
	assert.Equal(t, uint64(8), history[8].Sequence)

	retires, err := restarted.History(ctx, journal.ListOpts{Kind: journal.KindRetire})
	require.NoError(t, err)
	require.Len(t, retires, 1)
	assert.Equal(t, "acme", retires[0].Caller)
}

func TestLedgerRejectsCorruptStore(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	require.NoError(t, s.PutCredit(ctx, &credit.Credit{ID: 0, TotalAmount: 10}))
	require.NoError(t, s.PutBalance(ctx, &credit.Balance{Account: "a", CreditID: 0, Amount: 11}))

	l := carbon.New(s, carbon.WithLogger(quiet))
	err := l.Start(ctx)
	require.ErrorIs(t, err, carbon.ErrCorruptState)

	_, err = l.Issue(ctx, "a", "v", 1, "p", 2020)
	require.ErrorIs(t, err, carbon.ErrNotStarted)
}

func TestLedgerNotStarted(t *testing.T) {
	ctx := context.Background()
	l := carbon.New(memory.New(), carbon.WithLogger(quiet))

	_, err := l.Issue(ctx, "a", "v", 1, "p", 2020)
	require.ErrorIs(t, err, carbon.ErrNotStarted)
	require.ErrorIs(t, l.Transfer(ctx, "a", "b", 0, 1), carbon.ErrNotStarted)
	_, err = l.GetCredit(0)
	require.ErrorIs(t, err, carbon.ErrNotStarted)
	_, err = l.Digest()
	require.ErrorIs(t, err, carbon.ErrNotStarted)
}

func TestLedgerCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	l := startLedger(t, memory.New())
	defer l.Stop()

	cancel()
	_, err := l.Issue(ctx, "a", "v", 1, "p", 2020)
	require.ErrorIs(t, err, context.Canceled)
	next, err := l.NextCreditID()
	require.NoError(t, err)
	assert.Zero(t, next)
}

func TestLedgerClockStampsRecords(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2031, 6, 1, 12, 0, 0, 0, time.UTC)
	l := startLedger(t, memory.New(), carbon.WithClock(func() time.Time { return at }))
	defer l.Stop()

	creditID, err := l.Issue(ctx, "a", "v", 5, "p", 2020)
	require.NoError(t, err)
	c, err := l.GetCredit(creditID)
	require.NoError(t, err)
	assert.Equal(t, at, c.CreatedAt)

	history, err := l.History(ctx, journal.ListOpts{})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, at, history[0].Timestamp)
}

func TestLedgerConcurrentTransfers(t *testing.T) {
	ctx := context.Background()
	l := startLedger(t, memory.New())
	defer l.Stop()

	creditID, err := l.Issue(ctx, "pool", "v", 1000, "p", 2020)
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := range 40 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			to := []string{"a", "b", "c", "d"}[i%4]
			if err := l.Transfer(ctx, "pool", to, creditID, 30); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, carbon.ErrInsufficientBalance)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 33, succeeded, "1000 units cover 33 transfers of 30")
	require.NoError(t, l.CheckConservation())
	pool, err := l.GetBalance("pool", creditID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), pool)
}

func ExampleLedger() {
	ctx := context.Background()
	l := carbon.New(memory.New(), carbon.WithLogger(quiet))
	if err := l.Start(ctx); err != nil {
		panic(err)
	}
	defer l.Stop()

	creditID, _ := l.Issue(ctx, "registry", "verra", 1000, "KE-REDD-014", 2023)
	listingID, _ := l.List(ctx, "registry", creditID, 100, 1250)
	entry, _ := l.Buy(ctx, "globex", listingID, 40)
	_ = l.Retire(ctx, "globex", creditID, 40)

	c, _ := l.GetCredit(creditID)
	fmt.Println(entry.Total, c.RetiredAmount, c.IsRetired)
	// Output: $500.00 40 true
}
