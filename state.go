package carbon

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/xraph/carbon/credit"
	"github.com/xraph/carbon/journal"
	"github.com/xraph/carbon/market"
	"github.com/xraph/carbon/settlement"
	"github.com/xraph/carbon/types"
)

// DefaultCurrency is the settlement currency used when none is configured.
const DefaultCurrency = "usd"

// State is the carbon credit ledger: credits, balances, listings and the
// two id counters. Every operation either applies all of its effects or
// returns an error and leaves the State unchanged.
//
// State is not safe for concurrent use; Ledger serialises access to one.
type State struct {
	currency      string
	credits       map[uint64]*credit.Credit
	balances      map[credit.Key]int64
	listings      map[uint64]*market.Listing
	nextCreditID  uint64
	nextListingID uint64

	version uint64
	now     func() time.Time
}

// NewState creates an empty ledger settling in currency.
func NewState(currency string) *State {
	if currency == "" {
		currency = DefaultCurrency
	}
	return &State{
		currency: strings.ToLower(currency),
		credits:  make(map[uint64]*credit.Credit),
		balances: make(map[credit.Key]int64),
		listings: make(map[uint64]*market.Listing),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Restore rebuilds a State from persisted records and verifies it.
func Restore(
	currency string,
	nextCreditID, nextListingID uint64,
	credits []*credit.Credit,
	balances []*credit.Balance,
	listings []*market.Listing,
) (*State, error) {
	s := NewState(currency)
	s.nextCreditID = nextCreditID
	s.nextListingID = nextListingID

	for _, c := range credits {
		if c.ID >= nextCreditID {
			return nil, fmt.Errorf("%w: credit %d beyond counter %d", ErrCorruptState, c.ID, nextCreditID)
		}
		if _, dup := s.credits[c.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate credit %d", ErrCorruptState, c.ID)
		}
		cp := *c
		s.credits[c.ID] = &cp
	}
	for _, b := range balances {
		if b.Amount < 0 {
			return nil, fmt.Errorf("%w: negative balance for %s on credit %d", ErrCorruptState, b.Account, b.CreditID)
		}
		if b.Amount == 0 {
			continue
		}
		s.balances[b.Key()] += b.Amount
	}
	for _, l := range listings {
		if l.ID >= nextListingID {
			return nil, fmt.Errorf("%w: listing %d beyond counter %d", ErrCorruptState, l.ID, nextListingID)
		}
		if l.Amount <= 0 || l.PricePerCredit <= 0 {
			return nil, fmt.Errorf("%w: listing %d has non-positive amount or price", ErrCorruptState, l.ID)
		}
		cp := *l
		s.listings[l.ID] = &cp
	}

	if err := s.CheckConservation(); err != nil {
		return nil, err
	}
	return s, nil
}

// Currency returns the settlement currency.
func (s *State) Currency() string { return s.currency }

// SetClock replaces the time source used to stamp planned changes.
func (s *State) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// ──────────────────────────────────────────────────
// Planning
// ──────────────────────────────────────────────────

// PlanIssue validates an issuance and returns its change set.
func (s *State) PlanIssue(caller, verifier string, amount int64, origin string, vintageYear int) (*ChangeSet, error) {
	if err := checkAmount(amount); err != nil {
		return nil, err
	}

	cs := s.newChangeSet(journal.KindIssue, caller)
	cs.CreditID = s.nextCreditID
	cs.Amount = amount
	cs.Credit = &credit.Credit{
		Entity:      types.NewEntity(cs.At),
		ID:          s.nextCreditID,
		Owner:       caller,
		Verifier:    verifier,
		TotalAmount: amount,
		Origin:      origin,
		VintageYear: vintageYear,
	}
	cs.Balances = []credit.Balance{{Account: caller, CreditID: cs.CreditID, Amount: amount, UpdatedAt: cs.At}}
	cs.NextCreditID = s.nextCreditID + 1
	return cs, nil
}

// PlanTransfer validates a transfer and returns its change set. The credit
// is not required to exist; an unknown credit has no balances to spend.
func (s *State) PlanTransfer(sender, recipient string, creditID uint64, amount int64) (*ChangeSet, error) {
	if err := checkAmount(amount); err != nil {
		return nil, err
	}
	have, err := s.requireBalance(sender, creditID, amount)
	if err != nil {
		return nil, err
	}

	cs := s.newChangeSet(journal.KindTransfer, sender)
	cs.Counterparty = recipient
	cs.CreditID = creditID
	cs.Amount = amount
	cs.Balances = s.moveUnits(sender, recipient, creditID, have, amount, cs.At)
	return cs, nil
}

// PlanRetire validates a retirement and returns its change set. The
// balance is checked before the credit's existence.
func (s *State) PlanRetire(caller string, creditID uint64, amount int64) (*ChangeSet, error) {
	if err := checkAmount(amount); err != nil {
		return nil, err
	}
	have, err := s.requireBalance(caller, creditID, amount)
	if err != nil {
		return nil, err
	}
	c, ok := s.credits[creditID]
	if !ok {
		return nil, fmt.Errorf("%w: credit %d", ErrNotFound, creditID)
	}

	cs := s.newChangeSet(journal.KindRetire, caller)
	cs.CreditID = creditID
	cs.Amount = amount

	retired := *c
	retired.RetiredAmount += amount
	retired.IsRetired = true
	retired.Touch(cs.At)
	cs.Credit = &retired
	cs.Balances = []credit.Balance{{Account: caller, CreditID: creditID, Amount: have - amount, UpdatedAt: cs.At}}
	return cs, nil
}

// PlanList validates a new listing and returns its change set. The seller's
// balance is checked but not reserved.
func (s *State) PlanList(caller string, creditID uint64, amount, pricePerCredit int64) (*ChangeSet, error) {
	if err := checkAmount(amount); err != nil {
		return nil, err
	}
	if _, err := s.requireBalance(caller, creditID, amount); err != nil {
		return nil, err
	}
	if pricePerCredit <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPrice, pricePerCredit)
	}

	cs := s.newChangeSet(journal.KindList, caller)
	lid := s.nextListingID
	cs.ListingID = &lid
	cs.CreditID = creditID
	cs.Amount = amount
	cs.PricePerCredit = pricePerCredit
	cs.Listing = &market.Listing{
		Entity:         types.NewEntity(cs.At),
		ID:             lid,
		Seller:         caller,
		CreditID:       creditID,
		Amount:         amount,
		PricePerCredit: pricePerCredit,
	}
	cs.NextListingID = lid + 1
	return cs, nil
}

// PlanCancel validates a listing cancellation and returns its change set.
func (s *State) PlanCancel(caller string, listingID uint64) (*ChangeSet, error) {
	l, ok := s.listings[listingID]
	if !ok {
		return nil, fmt.Errorf("%w: listing %d", ErrNotFound, listingID)
	}
	if l.Seller != caller {
		return nil, fmt.Errorf("%w: listing %d belongs to %s", ErrUnauthorized, listingID, l.Seller)
	}

	cs := s.newChangeSet(journal.KindCancel, caller)
	lid := listingID
	cs.ListingID = &lid
	cs.CreditID = l.CreditID
	cs.Amount = l.Amount
	cs.PricePerCredit = l.PricePerCredit
	cs.RemoveListing = true
	return cs, nil
}

// PlanBuy validates a purchase and returns its change set, including the
// Total the buyer must pay the seller. The seller's holdings are checked
// here so that no payment is taken for a transfer that would fail.
func (s *State) PlanBuy(buyer string, listingID uint64, amount int64) (*ChangeSet, error) {
	if err := checkAmount(amount); err != nil {
		return nil, err
	}
	l, ok := s.listings[listingID]
	if !ok {
		return nil, fmt.Errorf("%w: listing %d", ErrNotFound, listingID)
	}
	if amount > l.Amount {
		return nil, fmt.Errorf("%w: listing %d has %d remaining, wanted %d",
			ErrInsufficientBalance, listingID, l.Amount, amount)
	}
	have, err := s.requireBalance(l.Seller, l.CreditID, amount)
	if err != nil {
		return nil, err
	}
	total, err := l.Cost(amount, s.currency)
	if err != nil {
		return nil, fmt.Errorf("%w: %d x %d: %w", ErrInvalidAmount, amount, l.PricePerCredit, err)
	}

	cs := s.newChangeSet(journal.KindBuy, buyer)
	lid := listingID
	cs.ListingID = &lid
	cs.Counterparty = l.Seller
	cs.CreditID = l.CreditID
	cs.Amount = amount
	cs.PricePerCredit = l.PricePerCredit
	cs.Total = total
	cs.Balances = s.moveUnits(l.Seller, buyer, l.CreditID, have, amount, cs.At)

	if remaining := l.Amount - amount; remaining == 0 {
		cs.RemoveListing = true
	} else {
		updated := *l
		updated.Amount = remaining
		updated.Touch(cs.At)
		cs.Listing = &updated
	}
	return cs, nil
}

// Apply makes a planned change set visible. It fails with ErrStaleChangeSet
// if the State changed since the change set was planned.
func (s *State) Apply(cs *ChangeSet) error {
	if cs.base != s.version {
		return ErrStaleChangeSet
	}

	if cs.Credit != nil {
		c := *cs.Credit
		s.credits[c.ID] = &c
	}
	for _, b := range cs.Balances {
		if b.Amount == 0 {
			delete(s.balances, b.Key())
			continue
		}
		s.balances[b.Key()] = b.Amount
	}
	if lid, ok := cs.RemovedListingID(); ok {
		delete(s.listings, lid)
	} else if cs.Listing != nil {
		l := *cs.Listing
		s.listings[l.ID] = &l
	}
	s.nextCreditID = cs.NextCreditID
	s.nextListingID = cs.NextListingID
	s.version++
	return nil
}

// ──────────────────────────────────────────────────
// Operations
// ──────────────────────────────────────────────────

// Issue creates a credit of amount units owned by caller and returns its id.
func (s *State) Issue(caller, verifier string, amount int64, origin string, vintageYear int) (uint64, error) {
	cs, err := s.PlanIssue(caller, verifier, amount, origin, vintageYear)
	if err != nil {
		return 0, err
	}
	return cs.CreditID, s.Apply(cs)
}

// Transfer moves amount units of a credit from sender to recipient.
func (s *State) Transfer(sender, recipient string, creditID uint64, amount int64) error {
	cs, err := s.PlanTransfer(sender, recipient, creditID, amount)
	if err != nil {
		return err
	}
	return s.Apply(cs)
}

// Retire permanently removes amount units of caller's holding from circulation.
func (s *State) Retire(caller string, creditID uint64, amount int64) error {
	cs, err := s.PlanRetire(caller, creditID, amount)
	if err != nil {
		return err
	}
	return s.Apply(cs)
}

// List opens a listing and returns its id.
func (s *State) List(caller string, creditID uint64, amount, pricePerCredit int64) (uint64, error) {
	cs, err := s.PlanList(caller, creditID, amount, pricePerCredit)
	if err != nil {
		return 0, err
	}
	return *cs.ListingID, s.Apply(cs)
}

// Cancel removes one of caller's listings.
func (s *State) Cancel(caller string, listingID uint64) error {
	cs, err := s.PlanCancel(caller, listingID)
	if err != nil {
		return err
	}
	return s.Apply(cs)
}

// Buy fills amount units of a listing, paying the seller through settler
// before any units move.
func (s *State) Buy(ctx context.Context, settler settlement.Settler, buyer string, listingID uint64, amount int64) (*settlement.Receipt, error) {
	cs, err := s.PlanBuy(buyer, listingID, amount)
	if err != nil {
		return nil, err
	}
	receipt, err := settle(ctx, settler, cs)
	if err != nil {
		return nil, err
	}
	return receipt, s.Apply(cs)
}

// settle pays for a planned purchase and records the receipt on cs.
func settle(ctx context.Context, settler settlement.Settler, cs *ChangeSet) (*settlement.Receipt, error) {
	receipt, err := settler.Pay(ctx, cs.Caller, cs.Counterparty, cs.Total)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSettlementFailed, err)
	}
	if receipt != nil {
		cs.SettlementRef = receipt.ID.String()
	}
	return receipt, nil
}

// ──────────────────────────────────────────────────
// Reads
// ──────────────────────────────────────────────────

// Credit returns a copy of the credit with the given id.
func (s *State) Credit(creditID uint64) (*credit.Credit, bool) {
	c, ok := s.credits[creditID]
	if !ok {
		return nil, false
	}
	cp := *c
	return &cp, true
}

// Balance returns the units of creditID held by account; zero when absent.
func (s *State) Balance(account string, creditID uint64) int64 {
	return s.balances[credit.Key{Account: account, CreditID: creditID}]
}

// Listing returns a copy of the listing with the given id.
func (s *State) Listing(listingID uint64) (*market.Listing, bool) {
	l, ok := s.listings[listingID]
	if !ok {
		return nil, false
	}
	cp := *l
	return &cp, true
}

// NextCreditID returns the id the next issuance will receive.
func (s *State) NextCreditID() uint64 { return s.nextCreditID }

// NextListingID returns the id the next listing will receive.
func (s *State) NextListingID() uint64 { return s.nextListingID }

// Credits returns copies of every credit ordered by id.
func (s *State) Credits() []*credit.Credit {
	out := make([]*credit.Credit, 0, len(s.credits))
	for _, c := range s.credits {
		cp := *c
		out = append(out, &cp)
	}
	slices.SortFunc(out, func(a, b *credit.Credit) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// Balances returns every non-zero balance ordered by (credit id, account).
func (s *State) Balances() []credit.Balance {
	out := make([]credit.Balance, 0, len(s.balances))
	for k, v := range s.balances {
		out = append(out, credit.Balance{Account: k.Account, CreditID: k.CreditID, Amount: v})
	}
	slices.SortFunc(out, func(a, b credit.Balance) int {
		if c := cmp.Compare(a.CreditID, b.CreditID); c != 0 {
			return c
		}
		return strings.Compare(a.Account, b.Account)
	})
	return out
}

// Listings returns copies of every open listing ordered by id.
func (s *State) Listings() []*market.Listing {
	out := make([]*market.Listing, 0, len(s.listings))
	for _, l := range s.listings {
		cp := *l
		out = append(out, &cp)
	}
	slices.SortFunc(out, func(a, b *market.Listing) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// CheckConservation verifies that, for every credit, the held balances plus
// the retired units equal the issued amount.
func (s *State) CheckConservation() error {
	held := make(map[uint64]int64, len(s.credits))
	for k, v := range s.balances {
		held[k.CreditID] += v
	}

	var errs MultiError
	for creditID, c := range s.credits {
		if held[creditID]+c.RetiredAmount != c.TotalAmount {
			errs.Add(ConservationError{
				CreditID: creditID,
				Issued:   c.TotalAmount,
				Held:     held[creditID],
				Retired:  c.RetiredAmount,
			})
		}
	}
	for creditID, h := range held {
		if _, ok := s.credits[creditID]; !ok {
			errs.Add(ConservationError{CreditID: creditID, Held: h})
		}
	}
	return errs.ErrOrNil()
}

// Clone returns an independent deep copy of the State.
func (s *State) Clone() *State {
	c := NewState(s.currency)
	c.nextCreditID = s.nextCreditID
	c.nextListingID = s.nextListingID
	c.version = s.version
	c.now = s.now
	for k, v := range s.credits {
		cp := *v
		c.credits[k] = &cp
	}
	for k, v := range s.balances {
		c.balances[k] = v
	}
	for k, v := range s.listings {
		cp := *v
		c.listings[k] = &cp
	}
	return c
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func (s *State) newChangeSet(kind journal.Kind, caller string) *ChangeSet {
	return &ChangeSet{
		Kind:          kind,
		Caller:        caller,
		Total:         types.Zero(s.currency),
		At:            s.now(),
		NextCreditID:  s.nextCreditID,
		NextListingID: s.nextListingID,
		base:          s.version,
	}
}

func (s *State) requireBalance(account string, creditID uint64, amount int64) (int64, error) {
	have := s.Balance(account, creditID)
	if have < amount {
		return have, fmt.Errorf("%w: %s holds %d of credit %d, needs %d",
			ErrInsufficientBalance, account, have, creditID, amount)
	}
	return have, nil
}

// moveUnits returns the resulting balances of moving amount units from one
// account to another. A move to oneself leaves the single balance unchanged.
func (s *State) moveUnits(from, to string, creditID uint64, fromHave, amount int64, at time.Time) []credit.Balance {
	if from == to {
		return []credit.Balance{{Account: from, CreditID: creditID, Amount: fromHave, UpdatedAt: at}}
	}
	return []credit.Balance{
		{Account: from, CreditID: creditID, Amount: fromHave - amount, UpdatedAt: at},
		{Account: to, CreditID: creditID, Amount: s.Balance(to, creditID) + amount, UpdatedAt: at},
	}
}

func checkAmount(amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}
	return nil
}
