package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/carbon"
	"github.com/xraph/carbon/credit"
	"github.com/xraph/carbon/journal"
	"github.com/xraph/carbon/market"
	carbonstore "github.com/xraph/carbon/store"
)

// Collection name constants.
const (
	colCredits   = "carbon_credits"
	colBalances  = "carbon_balances"
	colListings  = "carbon_listings"
	colJournal   = "carbon_journal"
	colSequences = "carbon_sequences"
)

// compile-time interface check
var _ carbonstore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all carbon collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("%w: carbon/mongo: migrate %s indexes: %w", carbon.ErrMigrationFailed, col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Credit Store ====================

func (s *Store) PutCredit(ctx context.Context, c *credit.Credit) error {
	m := toCreditModel(c)
	_, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		SetUpdate(bson.M{"$set": bson.M{
			"owner":          m.Owner,
			"verifier":       m.Verifier,
			"total_amount":   m.TotalAmount,
			"retired_amount": m.RetiredAmount,
			"origin":         m.Origin,
			"vintage_year":   m.VintageYear,
			"is_retired":     m.IsRetired,
			"created_at":     m.CreatedAt,
			"updated_at":     m.UpdatedAt,
		}}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("carbon/mongo: put credit: %w", err)
	}
	return nil
}

func (s *Store) GetCredit(ctx context.Context, creditID uint64) (*credit.Credit, error) {
	var m creditModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": int64(creditID)}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("%w: credit %d", carbon.ErrNotFound, creditID)
		}
		return nil, fmt.Errorf("carbon/mongo: get credit: %w", err)
	}
	return fromCreditModel(&m), nil
}

func (s *Store) DeleteCredit(ctx context.Context, creditID uint64) error {
	res, err := s.mdb.NewDelete((*creditModel)(nil)).
		Filter(bson.M{"_id": int64(creditID)}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("carbon/mongo: delete credit: %w", err)
	}
	if res.DeletedCount() == 0 {
		return fmt.Errorf("%w: credit %d", carbon.ErrNotFound, creditID)
	}
	return nil
}

func (s *Store) ListCredits(ctx context.Context, opts credit.ListOpts) ([]*credit.Credit, error) {
	var models []creditModel

	filter := bson.M{}
	if opts.Owner != "" {
		filter["owner"] = opts.Owner
	}
	if opts.Retired != nil {
		filter["is_retired"] = *opts.Retired
	}
	if opts.VintageYear != 0 {
		filter["vintage_year"] = opts.VintageYear
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "_id", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("carbon/mongo: list credits: %w", err)
	}

	result := make([]*credit.Credit, len(models))
	for i := range models {
		result[i] = fromCreditModel(&models[i])
	}
	return result, nil
}

func (s *Store) PutBalance(ctx context.Context, b *credit.Balance) error {
	m := toBalanceModel(b)
	if b.Amount == 0 {
		_, err := s.mdb.NewDelete((*balanceModel)(nil)).
			Filter(bson.M{"_id": m.Key}).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("carbon/mongo: delete balance: %w", err)
		}
		return nil
	}

	_, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.Key}).
		SetUpdate(bson.M{"$set": bson.M{
			"account":    m.Account,
			"credit_id":  m.CreditID,
			"amount":     m.Amount,
			"updated_at": m.UpdatedAt,
		}}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("carbon/mongo: put balance: %w", err)
	}
	return nil
}

func (s *Store) GetBalance(ctx context.Context, account string, creditID uint64) (*credit.Balance, error) {
	var m balanceModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": balanceKey(account, creditID)}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("%w: balance %s/%d", carbon.ErrNotFound, account, creditID)
		}
		return nil, fmt.Errorf("carbon/mongo: get balance: %w", err)
	}
	return fromBalanceModel(&m), nil
}

func (s *Store) ListBalances(ctx context.Context, opts credit.BalanceOpts) ([]*credit.Balance, error) {
	var models []balanceModel

	filter := bson.M{}
	if opts.Account != "" {
		filter["account"] = opts.Account
	}
	if opts.CreditID != nil {
		filter["credit_id"] = int64(*opts.CreditID)
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "credit_id", Value: 1}, {Key: "account", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("carbon/mongo: list balances: %w", err)
	}

	result := make([]*credit.Balance, len(models))
	for i := range models {
		result[i] = fromBalanceModel(&models[i])
	}
	return result, nil
}

// ==================== Listing Store ====================

func (s *Store) PutListing(ctx context.Context, l *market.Listing) error {
	m := toListingModel(l)
	_, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		SetUpdate(bson.M{"$set": bson.M{
			"seller":           m.Seller,
			"credit_id":        m.CreditID,
			"amount":           m.Amount,
			"price_per_credit": m.PricePerCredit,
			"created_at":       m.CreatedAt,
			"updated_at":       m.UpdatedAt,
		}}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("carbon/mongo: put listing: %w", err)
	}
	return nil
}

func (s *Store) GetListing(ctx context.Context, listingID uint64) (*market.Listing, error) {
	var m listingModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": int64(listingID)}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("%w: listing %d", carbon.ErrNotFound, listingID)
		}
		return nil, fmt.Errorf("carbon/mongo: get listing: %w", err)
	}
	return fromListingModel(&m), nil
}

func (s *Store) DeleteListing(ctx context.Context, listingID uint64) error {
	res, err := s.mdb.NewDelete((*listingModel)(nil)).
		Filter(bson.M{"_id": int64(listingID)}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("carbon/mongo: delete listing: %w", err)
	}
	if res.DeletedCount() == 0 {
		return fmt.Errorf("%w: listing %d", carbon.ErrNotFound, listingID)
	}
	return nil
}

func (s *Store) ListListings(ctx context.Context, opts market.ListOpts) ([]*market.Listing, error) {
	var models []listingModel

	filter := bson.M{}
	if opts.Seller != "" {
		filter["seller"] = opts.Seller
	}
	if opts.CreditID != nil {
		filter["credit_id"] = int64(*opts.CreditID)
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "_id", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("carbon/mongo: list listings: %w", err)
	}

	result := make([]*market.Listing, len(models))
	for i := range models {
		result[i] = fromListingModel(&models[i])
	}
	return result, nil
}

// ==================== Journal Store ====================

func (s *Store) AppendEntry(ctx context.Context, e *journal.Entry) error {
	m := toEntryModel(e)
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: journal sequence %d", carbon.ErrAlreadyExists, e.Sequence)
		}
		return fmt.Errorf("carbon/mongo: append entry %d: %w", e.Sequence, err)
	}
	return nil
}

func (s *Store) ListEntries(ctx context.Context, opts journal.ListOpts) ([]*journal.Entry, error) {
	var models []entryModel

	filter := bson.M{}
	if opts.Kind != "" {
		filter["kind"] = string(opts.Kind)
	}
	if opts.Account != "" {
		filter["$or"] = bson.A{
			bson.M{"caller": opts.Account},
			bson.M{"counterparty": opts.Account},
		}
	}
	if opts.CreditID != nil {
		filter["credit_id"] = int64(*opts.CreditID)
	}
	if opts.After != nil {
		filter["_id"] = bson.M{"$gt": int64(*opts.After)}
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "_id", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("carbon/mongo: list entries: %w", err)
	}

	result := make([]*journal.Entry, len(models))
	for i := range models {
		e, err := fromEntryModel(&models[i])
		if err != nil {
			return nil, fmt.Errorf("carbon/mongo: entry %d: %w", models[i].Seq, err)
		}
		result[i] = e
	}
	return result, nil
}

// ==================== Sequences ====================

func (s *Store) GetSequences(ctx context.Context) (*carbonstore.Sequences, error) {
	var m sequencesModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": sequencesKey}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return &carbonstore.Sequences{}, nil
		}
		return nil, fmt.Errorf("carbon/mongo: get sequences: %w", err)
	}
	return fromSequencesModel(&m), nil
}

func (s *Store) PutSequences(ctx context.Context, seq *carbonstore.Sequences) error {
	_, err := s.mdb.NewUpdate((*sequencesModel)(nil)).
		Filter(bson.M{"_id": sequencesKey}).
		SetUpdate(bson.M{"$set": bson.M{
			"next_credit_id":  int64(seq.NextCreditID),
			"next_listing_id": int64(seq.NextListingID),
			"next_entry_seq":  int64(seq.NextEntrySeq),
			"updated_at":      time.Now().UTC(),
		}}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("carbon/mongo: put sequences: %w", err)
	}
	return nil
}

// ==================== Helpers ====================

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all carbon collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colCredits: {
			{Keys: bson.D{{Key: "owner", Value: 1}}},
			{Keys: bson.D{{Key: "vintage_year", Value: 1}, {Key: "is_retired", Value: 1}}},
		},
		colBalances: {
			{
				Keys:    bson.D{{Key: "account", Value: 1}, {Key: "credit_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "credit_id", Value: 1}}},
		},
		colListings: {
			{Keys: bson.D{{Key: "seller", Value: 1}}},
			{Keys: bson.D{{Key: "credit_id", Value: 1}}},
		},
		colJournal: {
			{
				Keys:    bson.D{{Key: "entry_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "kind", Value: 1}, {Key: "_id", Value: 1}}},
			{Keys: bson.D{{Key: "caller", Value: 1}, {Key: "_id", Value: 1}}},
			{Keys: bson.D{{Key: "counterparty", Value: 1}, {Key: "_id", Value: 1}}},
			{Keys: bson.D{{Key: "credit_id", Value: 1}, {Key: "_id", Value: 1}}},
		},
		colSequences: {},
	}
}
