package carbon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/carbon/credit"
	"github.com/xraph/carbon/journal"
	"github.com/xraph/carbon/market"
	"github.com/xraph/carbon/plugin"
	"github.com/xraph/carbon/settlement"
	"github.com/xraph/carbon/store"
)

// Ledger is the carbon credit engine. It owns a State, serialises every
// operation behind one mutex, and writes each applied change through to a
// store.Store before it becomes visible.
type Ledger struct {
	mu      sync.Mutex
	state   *State
	started bool
	seq     uint64

	store    store.Store
	settler  settlement.Settler
	plugins  *plugin.Registry
	logger   *slog.Logger
	currency string
	clock    func() time.Time
	migrate  bool

	// repair holds restore writes that failed after an aborted change set.
	// They run before the next operation so the store matches state again.
	repair []write
}

// New creates a new Ledger instance backed by s.
func New(s store.Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:    s,
		settler:  settlement.Noop{},
		plugins:  plugin.NewRegistry(),
		logger:   slog.Default(),
		currency: DefaultCurrency,
		migrate:  true,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Option configures a Ledger instance.
type Option func(*Ledger)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
		l.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(l *Ledger) {
		_ = l.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithSettler sets the collaborator that moves money on buy. The default
// settler records a receipt without moving anything.
func WithSettler(s settlement.Settler) Option {
	return func(l *Ledger) {
		if s != nil {
			l.settler = s
		}
	}
}

// WithCurrency sets the settlement currency listing prices are quoted in.
func WithCurrency(currency string) Option {
	return func(l *Ledger) {
		if currency != "" {
			l.currency = currency
		}
	}
}

// WithClock sets the time source for record and journal timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.clock = now
	}
}

// WithPluginTimeout bounds how long each plugin hook may run.
func WithPluginTimeout(d time.Duration) Option {
	return func(l *Ledger) {
		if d > 0 {
			l.plugins.WithTimeout(d)
		}
	}
}

// WithoutMigrate skips store migrations on Start.
func WithoutMigrate() Option {
	return func(l *Ledger) {
		l.migrate = false
	}
}

// Start migrates the store, loads the persisted state and verifies it.
func (l *Ledger) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		return nil
	}

	state, seq, err := l.load(ctx)
	if err != nil {
		l.mu.Unlock()
		return err
	}
	l.state = state
	l.seq = seq
	l.started = true
	l.mu.Unlock()

	l.plugins.EmitInit(ctx, l)

	l.logger.Info("carbon ledger started",
		"currency", state.Currency(),
		"next_credit_id", state.NextCreditID(),
		"next_listing_id", state.NextListingID(),
		"next_entry_seq", seq,
	)

	return nil
}

func (l *Ledger) load(ctx context.Context) (*State, uint64, error) {
	if l.migrate {
		if err := l.store.Migrate(ctx); err != nil {
			return nil, 0, err
		}
	}

	seq, err := l.store.GetSequences(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("carbon: load sequences: %w", err)
	}
	credits, err := l.store.ListCredits(ctx, credit.ListOpts{})
	if err != nil {
		return nil, 0, fmt.Errorf("carbon: load credits: %w", err)
	}
	balances, err := l.store.ListBalances(ctx, credit.BalanceOpts{})
	if err != nil {
		return nil, 0, fmt.Errorf("carbon: load balances: %w", err)
	}
	listings, err := l.store.ListListings(ctx, market.ListOpts{})
	if err != nil {
		return nil, 0, fmt.Errorf("carbon: load listings: %w", err)
	}

	state, err := Restore(l.currency, seq.NextCreditID, seq.NextListingID, credits, balances, listings)
	if err != nil {
		return nil, 0, err
	}
	state.SetClock(l.clock)

	next, err := l.nextEntrySeq(ctx, seq.NextEntrySeq)
	if err != nil {
		return nil, 0, err
	}
	return state, next, nil
}

// nextEntrySeq returns the sequence after the last stored journal entry, or
// the saved counter when it is ahead.
func (l *Ledger) nextEntrySeq(ctx context.Context, saved uint64) (uint64, error) {
	opts := journal.ListOpts{}
	if saved > 0 {
		after := saved - 1
		opts.After = &after
	}
	tail, err := l.store.ListEntries(ctx, opts)
	if err != nil {
		return 0, fmt.Errorf("carbon: load journal tail: %w", err)
	}
	if len(tail) == 0 {
		return saved, nil
	}
	next := tail[len(tail)-1].Sequence + 1
	if next <= saved {
		return saved, nil
	}
	l.logger.Warn("journal ahead of saved counters",
		"saved_next_entry_seq", saved,
		"next_entry_seq", next,
	)
	return next, nil
}

// Stop shuts down the Ledger and closes its store. Stopping a ledger that
// is not running does nothing.
func (l *Ledger) Stop() error {
	l.mu.Lock()
	if !l.started {
		l.mu.Unlock()
		return nil
	}
	l.started = false
	if err := l.flushRepair(context.Background()); err != nil {
		l.logger.Error("store left out of sync on stop", "error", err)
	}
	l.mu.Unlock()

	ctx := context.Background()
	l.plugins.EmitShutdown(ctx)

	return l.store.Close()
}

// ──────────────────────────────────────────────────
// Operations
// ──────────────────────────────────────────────────

// Issue creates a credit of amount units owned by caller and returns its id.
func (l *Ledger) Issue(ctx context.Context, caller, verifier string, amount int64, origin string, vintageYear int) (uint64, error) {
	out, err := l.execute(ctx, journal.KindIssue, caller, func(s *State) (*ChangeSet, error) {
		return s.PlanIssue(caller, verifier, amount, origin, vintageYear)
	})
	if err != nil {
		return 0, err
	}

	l.logger.Info("credit issued", "credit_id", out.cs.CreditID, "owner", caller, "amount", amount)
	l.plugins.EmitCreditIssued(ctx, out.cs.Credit, out.entry)
	return out.cs.CreditID, nil
}

// Transfer moves amount units of a credit from sender to recipient.
func (l *Ledger) Transfer(ctx context.Context, sender, recipient string, creditID uint64, amount int64) error {
	out, err := l.execute(ctx, journal.KindTransfer, sender, func(s *State) (*ChangeSet, error) {
		return s.PlanTransfer(sender, recipient, creditID, amount)
	})
	if err != nil {
		return err
	}

	l.plugins.EmitCreditTransferred(ctx, out.entry)
	return nil
}

// Retire permanently removes amount units of caller's holding from
// circulation and marks the credit retired.
func (l *Ledger) Retire(ctx context.Context, caller string, creditID uint64, amount int64) error {
	out, err := l.execute(ctx, journal.KindRetire, caller, func(s *State) (*ChangeSet, error) {
		return s.PlanRetire(caller, creditID, amount)
	})
	if err != nil {
		return err
	}

	l.logger.Info("credit retired", "credit_id", creditID, "account", caller, "amount", amount)
	l.plugins.EmitCreditRetired(ctx, out.cs.Credit, out.entry)
	return nil
}

// List opens a fixed-price listing and returns its id.
func (l *Ledger) List(ctx context.Context, caller string, creditID uint64, amount, pricePerCredit int64) (uint64, error) {
	out, err := l.execute(ctx, journal.KindList, caller, func(s *State) (*ChangeSet, error) {
		return s.PlanList(caller, creditID, amount, pricePerCredit)
	})
	if err != nil {
		return 0, err
	}

	l.plugins.EmitListingCreated(ctx, out.cs.Listing, out.entry)
	return *out.cs.ListingID, nil
}

// Cancel removes one of caller's listings.
func (l *Ledger) Cancel(ctx context.Context, caller string, listingID uint64) error {
	out, err := l.execute(ctx, journal.KindCancel, caller, func(s *State) (*ChangeSet, error) {
		return s.PlanCancel(caller, listingID)
	})
	if err != nil {
		return err
	}

	l.plugins.EmitListingCanceled(ctx, out.removed, out.entry)
	return nil
}

// Buy fills amount units of a listing. The buyer pays the seller through the
// configured settler before any units move; the returned entry carries the
// total paid and the settlement reference.
func (l *Ledger) Buy(ctx context.Context, buyer string, listingID uint64, amount int64) (*journal.Entry, error) {
	out, err := l.execute(ctx, journal.KindBuy, buyer, func(s *State) (*ChangeSet, error) {
		return s.PlanBuy(buyer, listingID, amount)
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("credit purchased",
		"listing_id", listingID,
		"buyer", buyer,
		"seller", out.cs.Counterparty,
		"amount", amount,
		"total", out.cs.Total.String(),
	)
	l.plugins.EmitCreditPurchased(ctx, out.entry)
	return out.entry, nil
}

// ──────────────────────────────────────────────────
// Reads
// ──────────────────────────────────────────────────

// GetCredit returns the credit with the given id.
func (l *Ledger) GetCredit(creditID uint64) (*credit.Credit, error) {
	var c *credit.Credit
	err := l.read(func(s *State) error {
		var ok bool
		if c, ok = s.Credit(creditID); !ok {
			return fmt.Errorf("%w: credit %d", ErrNotFound, creditID)
		}
		return nil
	})
	return c, err
}

// GetBalance returns the units of creditID held by account.
func (l *Ledger) GetBalance(account string, creditID uint64) (int64, error) {
	var amount int64
	err := l.read(func(s *State) error {
		amount = s.Balance(account, creditID)
		return nil
	})
	return amount, err
}

// GetListing returns the open listing with the given id.
func (l *Ledger) GetListing(listingID uint64) (*market.Listing, error) {
	var listing *market.Listing
	err := l.read(func(s *State) error {
		var ok bool
		if listing, ok = s.Listing(listingID); !ok {
			return fmt.Errorf("%w: listing %d", ErrNotFound, listingID)
		}
		return nil
	})
	return listing, err
}

// NextCreditID returns the id the next issuance will receive.
func (l *Ledger) NextCreditID() (uint64, error) {
	var next uint64
	err := l.read(func(s *State) error {
		next = s.NextCreditID()
		return nil
	})
	return next, err
}

// NextListingID returns the id the next listing will receive.
func (l *Ledger) NextListingID() (uint64, error) {
	var next uint64
	err := l.read(func(s *State) error {
		next = s.NextListingID()
		return nil
	})
	return next, err
}

// Credits returns every credit ordered by id.
func (l *Ledger) Credits() ([]*credit.Credit, error) {
	var out []*credit.Credit
	err := l.read(func(s *State) error {
		out = s.Credits()
		return nil
	})
	return out, err
}

// Balances returns every non-zero balance ordered by credit id, then account.
func (l *Ledger) Balances() ([]credit.Balance, error) {
	var out []credit.Balance
	err := l.read(func(s *State) error {
		out = s.Balances()
		return nil
	})
	return out, err
}

// Listings returns every open listing ordered by id.
func (l *Ledger) Listings() ([]*market.Listing, error) {
	var out []*market.Listing
	err := l.read(func(s *State) error {
		out = s.Listings()
		return nil
	})
	return out, err
}

// History returns journal entries from the store.
func (l *Ledger) History(ctx context.Context, opts journal.ListOpts) ([]*journal.Entry, error) {
	return l.store.ListEntries(ctx, opts)
}

// CheckConservation verifies the conservation law over the current state.
func (l *Ledger) CheckConservation() error {
	return l.read(func(s *State) error { return s.CheckConservation() })
}

// Snapshot encodes the current state.
func (l *Ledger) Snapshot() ([]byte, error) {
	var data []byte
	err := l.read(func(s *State) error {
		var err error
		data, err = s.Snapshot()
		return err
	})
	return data, err
}

// Digest returns the digest of the current state.
func (l *Ledger) Digest() (Digest, error) {
	var d Digest
	err := l.read(func(s *State) error {
		var err error
		d, err = s.Digest()
		return err
	})
	return d, err
}

// Ping checks the store.
func (l *Ledger) Ping(ctx context.Context) error {
	return l.store.Ping(ctx)
}

// ──────────────────────────────────────────────────
// Execution
// ──────────────────────────────────────────────────

type outcome struct {
	cs    *ChangeSet
	entry *journal.Entry
	// removed is the listing as it stood before the change set deleted it.
	removed *market.Listing
}

func (l *Ledger) execute(
	ctx context.Context,
	kind journal.Kind,
	caller string,
	plan func(*State) (*ChangeSet, error),
) (*outcome, error) {
	out, err := l.run(ctx, kind, plan)
	if err != nil {
		l.logger.Debug("operation rejected",
			"kind", string(kind),
			"caller", caller,
			"error_kind", string(Kind(err)),
			"error", err,
		)
		l.plugins.EmitOperationRejected(ctx, kind, caller, err)
		return nil, err
	}
	return out, nil
}

func (l *Ledger) run(ctx context.Context, kind journal.Kind, plan func(*State) (*ChangeSet, error)) (*outcome, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.started {
		return nil, ErrNotStarted
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := l.flushRepair(context.WithoutCancel(ctx)); err != nil {
		return nil, err
	}

	cs, err := plan(l.state)
	if err != nil {
		return nil, err
	}

	var receipt *settlement.Receipt
	if kind == journal.KindBuy {
		if receipt, err = settle(ctx, l.settler, cs); err != nil {
			return nil, err
		}
	}

	out := &outcome{cs: cs}
	if lid, ok := cs.RemovedListingID(); ok {
		out.removed, _ = l.state.Listing(lid)
	}

	// Past this point the operation is committed to; the caller's
	// cancellation no longer applies.
	wctx := context.WithoutCancel(ctx)
	entry, err := l.persist(wctx, cs)
	if err != nil {
		l.logger.Error("failed to persist change set",
			"kind", string(kind),
			"credit_id", cs.CreditID,
			"error", err,
		)
		l.reverse(wctx, receipt)
		l.skipTakenSeq(wctx)
		return nil, fmt.Errorf("%w: %w", ErrTransactionFailed, err)
	}

	if err := l.state.Apply(cs); err != nil {
		return nil, err
	}
	l.seq++
	out.entry = entry
	return out, nil
}

// write is one store mutation.
type write func(context.Context) error

// step commits one record and knows how to put back what it overwrote.
type step struct {
	do   write
	undo write
}

// persist writes every record a change set touches, then the counters, then
// the journal entry. On a failed write every attempted record is restored to
// its value in state.
func (l *Ledger) persist(ctx context.Context, cs *ChangeSet) (*journal.Entry, error) {
	entry := cs.Entry(l.seq)
	steps := l.steps(cs, entry)

	for i, st := range steps {
		if err := st.do(ctx); err != nil {
			l.rollback(ctx, steps[:i+1])
			return nil, err
		}
	}
	return entry, nil
}

// steps pairs each write of cs with the pre-image held in state.
func (l *Ledger) steps(cs *ChangeSet, entry *journal.Entry) []step {
	steps := make([]step, 0, len(cs.Balances)+4)

	if c := cs.Credit; c != nil {
		prior, existed := l.state.Credit(c.ID)
		steps = append(steps, step{
			do: func(ctx context.Context) error { return l.store.PutCredit(ctx, c) },
			undo: func(ctx context.Context) error {
				if existed {
					return l.store.PutCredit(ctx, prior)
				}
				return ignoreNotFound(l.store.DeleteCredit(ctx, c.ID))
			},
		})
	}

	for i := range cs.Balances {
		b := &cs.Balances[i]
		prior := &credit.Balance{
			Account:   b.Account,
			CreditID:  b.CreditID,
			Amount:    l.state.Balance(b.Account, b.CreditID),
			UpdatedAt: b.UpdatedAt,
		}
		steps = append(steps, step{
			do:   func(ctx context.Context) error { return l.store.PutBalance(ctx, b) },
			undo: func(ctx context.Context) error { return l.store.PutBalance(ctx, prior) },
		})
	}

	if lid, ok := cs.RemovedListingID(); ok {
		if prior, existed := l.state.Listing(lid); existed {
			steps = append(steps, step{
				do:   func(ctx context.Context) error { return l.store.DeleteListing(ctx, lid) },
				undo: func(ctx context.Context) error { return l.store.PutListing(ctx, prior) },
			})
		}
	} else if ls := cs.Listing; ls != nil {
		prior, existed := l.state.Listing(ls.ID)
		steps = append(steps, step{
			do: func(ctx context.Context) error { return l.store.PutListing(ctx, ls) },
			undo: func(ctx context.Context) error {
				if existed {
					return l.store.PutListing(ctx, prior)
				}
				return ignoreNotFound(l.store.DeleteListing(ctx, ls.ID))
			},
		})
	}

	next := &store.Sequences{
		NextCreditID:  cs.NextCreditID,
		NextListingID: cs.NextListingID,
		NextEntrySeq:  l.seq + 1,
	}
	prior := &store.Sequences{
		NextCreditID:  l.state.NextCreditID(),
		NextListingID: l.state.NextListingID(),
		NextEntrySeq:  l.seq,
	}
	steps = append(steps, step{
		do:   func(ctx context.Context) error { return l.store.PutSequences(ctx, next) },
		undo: func(ctx context.Context) error { return l.store.PutSequences(ctx, prior) },
	})

	// Last write: once the entry is stored the change set is committed.
	steps = append(steps, step{
		do: func(ctx context.Context) error { return l.store.AppendEntry(ctx, entry) },
	})
	return steps
}

// rollback restores attempted steps newest first. Restores that fail are
// queued in l.repair.
func (l *Ledger) rollback(ctx context.Context, attempted []step) {
	for i := len(attempted) - 1; i >= 0; i-- {
		undo := attempted[i].undo
		if undo == nil {
			continue
		}
		if err := undo(ctx); err != nil {
			l.logger.Error("failed to restore record", "error", err)
			l.repair = append(l.repair, undo)
		}
	}
}

// flushRepair retries queued restores. It fails while any remain.
func (l *Ledger) flushRepair(ctx context.Context) error {
	if len(l.repair) == 0 {
		return nil
	}

	var (
		remaining []write
		errs      MultiError
	)
	for _, w := range l.repair {
		if err := w(ctx); err != nil {
			remaining = append(remaining, w)
			errs.Add(err)
		}
	}
	l.repair = remaining
	if errs.HasErrors() {
		return fmt.Errorf("%w: store repair pending: %w", ErrTransactionFailed, errs)
	}
	l.logger.Info("store repaired")
	return nil
}

// skipTakenSeq moves l.seq past journal entries already in the store, such
// as an append that was stored but reported as failed.
func (l *Ledger) skipTakenSeq(ctx context.Context) {
	next, err := l.nextEntrySeq(ctx, l.seq)
	if err != nil {
		l.logger.Error("failed to read journal tail", "error", err)
		return
	}
	l.seq = next
}

func ignoreNotFound(err error) error {
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// reverse refunds a purchase whose units could not be recorded.
func (l *Ledger) reverse(ctx context.Context, receipt *settlement.Receipt) {
	if receipt == nil {
		return
	}
	r, ok := l.settler.(settlement.Reverser)
	if !ok {
		l.logger.Error("settlement cannot be reversed", "receipt", receipt.ID.String())
		return
	}
	if err := r.Reverse(ctx, receipt); err != nil {
		l.logger.Error("failed to reverse settlement", "receipt", receipt.ID.String(), "error", err)
		return
	}
	l.logger.Warn("settlement reversed", "receipt", receipt.ID.String())
}

func (l *Ledger) read(fn func(*State) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.started {
		return ErrNotStarted
	}
	return fn(l.state)
}
