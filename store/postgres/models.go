package postgres

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/carbon/credit"
	"github.com/xraph/carbon/id"
	"github.com/xraph/carbon/journal"
	"github.com/xraph/carbon/market"
	"github.com/xraph/carbon/store"
	"github.com/xraph/carbon/types"
)

// sequencesKey is the single row holding the ledger counters.
const sequencesKey = "carbon"

// ==================== Credit models ====================

type creditModel struct {
	grove.BaseModel `grove:"table:carbon_credits"`

	ID            int64     `grove:"id,pk"`
	Owner         string    `grove:"owner"`
	Verifier      string    `grove:"verifier"`
	TotalAmount   int64     `grove:"total_amount"`
	RetiredAmount int64     `grove:"retired_amount"`
	Origin        string    `grove:"origin"`
	VintageYear   int       `grove:"vintage_year"`
	IsRetired     bool      `grove:"is_retired"`
	CreatedAt     time.Time `grove:"created_at"`
	UpdatedAt     time.Time `grove:"updated_at"`
}

func toCreditModel(c *credit.Credit) *creditModel {
	return &creditModel{
		ID:            int64(c.ID),
		Owner:         c.Owner,
		Verifier:      c.Verifier,
		TotalAmount:   c.TotalAmount,
		RetiredAmount: c.RetiredAmount,
		Origin:        c.Origin,
		VintageYear:   c.VintageYear,
		IsRetired:     c.IsRetired,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
}

func fromCreditModel(m *creditModel) *credit.Credit {
	return &credit.Credit{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:            uint64(m.ID),
		Owner:         m.Owner,
		Verifier:      m.Verifier,
		TotalAmount:   m.TotalAmount,
		RetiredAmount: m.RetiredAmount,
		Origin:        m.Origin,
		VintageYear:   m.VintageYear,
		IsRetired:     m.IsRetired,
	}
}

type balanceModel struct {
	grove.BaseModel `grove:"table:carbon_balances"`

	Account   string    `grove:"account,pk"`
	CreditID  int64     `grove:"credit_id,pk"`
	Amount    int64     `grove:"amount"`
	UpdatedAt time.Time `grove:"updated_at"`
}

func toBalanceModel(b *credit.Balance) *balanceModel {
	return &balanceModel{
		Account:   b.Account,
		CreditID:  int64(b.CreditID),
		Amount:    b.Amount,
		UpdatedAt: b.UpdatedAt,
	}
}

func fromBalanceModel(m *balanceModel) *credit.Balance {
	return &credit.Balance{
		Account:   m.Account,
		CreditID:  uint64(m.CreditID),
		Amount:    m.Amount,
		UpdatedAt: m.UpdatedAt,
	}
}

// ==================== Listing models ====================

type listingModel struct {
	grove.BaseModel `grove:"table:carbon_listings"`

	ID             int64     `grove:"id,pk"`
	Seller         string    `grove:"seller"`
	CreditID       int64     `grove:"credit_id"`
	Amount         int64     `grove:"amount"`
	PricePerCredit int64     `grove:"price_per_credit"`
	CreatedAt      time.Time `grove:"created_at"`
	UpdatedAt      time.Time `grove:"updated_at"`
}

func toListingModel(l *market.Listing) *listingModel {
	return &listingModel{
		ID:             int64(l.ID),
		Seller:         l.Seller,
		CreditID:       int64(l.CreditID),
		Amount:         l.Amount,
		PricePerCredit: l.PricePerCredit,
		CreatedAt:      l.CreatedAt,
		UpdatedAt:      l.UpdatedAt,
	}
}

func fromListingModel(m *listingModel) *market.Listing {
	return &market.Listing{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:             uint64(m.ID),
		Seller:         m.Seller,
		CreditID:       uint64(m.CreditID),
		Amount:         m.Amount,
		PricePerCredit: m.PricePerCredit,
	}
}

// ==================== Journal models ====================

type entryModel struct {
	grove.BaseModel `grove:"table:carbon_journal"`

	Seq            int64     `grove:"seq,pk"`
	ID             string    `grove:"id"`
	Kind           string    `grove:"kind"`
	Caller         string    `grove:"caller"`
	Counterparty   string    `grove:"counterparty"`
	CreditID       int64     `grove:"credit_id"`
	ListingID      *int64    `grove:"listing_id"`
	Amount         int64     `grove:"amount"`
	PricePerCredit int64     `grove:"price_per_credit"`
	TotalAmount    int64     `grove:"total_amount"`
	TotalCurrency  string    `grove:"total_currency"`
	SettlementRef  string    `grove:"settlement_ref"`
	Timestamp      time.Time `grove:"timestamp"`
}

func toEntryModel(e *journal.Entry) *entryModel {
	m := &entryModel{
		Seq:            int64(e.Sequence),
		ID:             e.ID.String(),
		Kind:           string(e.Kind),
		Caller:         e.Caller,
		Counterparty:   e.Counterparty,
		CreditID:       int64(e.CreditID),
		Amount:         e.Amount,
		PricePerCredit: e.PricePerCredit,
		TotalAmount:    e.Total.Amount,
		TotalCurrency:  e.Total.Currency,
		SettlementRef:  e.SettlementRef,
		Timestamp:      e.Timestamp,
	}
	if e.ListingID != nil {
		lid := int64(*e.ListingID)
		m.ListingID = &lid
	}
	return m
}

func fromEntryModel(m *entryModel) (*journal.Entry, error) {
	entryID, err := id.ParseEntryID(m.ID)
	if err != nil {
		return nil, err
	}
	e := &journal.Entry{
		ID:             entryID,
		Sequence:       uint64(m.Seq),
		Kind:           journal.Kind(m.Kind),
		Caller:         m.Caller,
		Counterparty:   m.Counterparty,
		CreditID:       uint64(m.CreditID),
		Amount:         m.Amount,
		PricePerCredit: m.PricePerCredit,
		Total:          types.Money{Amount: m.TotalAmount, Currency: m.TotalCurrency},
		SettlementRef:  m.SettlementRef,
		Timestamp:      m.Timestamp,
	}
	if m.ListingID != nil {
		lid := uint64(*m.ListingID)
		e.ListingID = &lid
	}
	return e, nil
}

// ==================== Sequence models ====================

type sequencesModel struct {
	grove.BaseModel `grove:"table:carbon_sequences"`

	Key           string    `grove:"key,pk"`
	NextCreditID  int64     `grove:"next_credit_id"`
	NextListingID int64     `grove:"next_listing_id"`
	NextEntrySeq  int64     `grove:"next_entry_seq"`
	UpdatedAt     time.Time `grove:"updated_at"`
}

func toSequencesModel(seq *store.Sequences) *sequencesModel {
	return &sequencesModel{
		Key:           sequencesKey,
		NextCreditID:  int64(seq.NextCreditID),
		NextListingID: int64(seq.NextListingID),
		NextEntrySeq:  int64(seq.NextEntrySeq),
		UpdatedAt:     time.Now().UTC(),
	}
}

func fromSequencesModel(m *sequencesModel) *store.Sequences {
	return &store.Sequences{
		NextCreditID:  uint64(m.NextCreditID),
		NextListingID: uint64(m.NextListingID),
		NextEntrySeq:  uint64(m.NextEntrySeq),
	}
}
