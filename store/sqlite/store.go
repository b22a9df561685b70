package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/carbon"
	"github.com/xraph/carbon/credit"
	"github.com/xraph/carbon/journal"
	"github.com/xraph/carbon/market"
	carbonstore "github.com/xraph/carbon/store"
)

// compile-time interface check
var _ carbonstore.Store = (*Store)(nil)

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("%w: carbon/sqlite: create migration executor: %w", carbon.ErrMigrationFailed, err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("%w: carbon/sqlite: %w", carbon.ErrMigrationFailed, err)
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
	_, err := s.sdb.NewInsert(m).
		OnConflict("(id) DO UPDATE").
		Set("owner = EXCLUDED.owner").
		Set("verifier = EXCLUDED.verifier").
		Set("total_amount = EXCLUDED.total_amount").
		Set("retired_amount = EXCLUDED.retired_amount").
		Set("origin = EXCLUDED.origin").
		Set("vintage_year = EXCLUDED.vintage_year").
		Set("is_retired = EXCLUDED.is_retired").
		Set("created_at = EXCLUDED.created_at").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("carbon/sqlite: put credit: %w", err)
	}
	return nil
}

func (s *Store) GetCredit(ctx context.Context, creditID uint64) (*credit.Credit, error) {
	m := new(creditModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", int64(creditID)).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("%w: credit %d", carbon.ErrNotFound, creditID)
		}
		return nil, fmt.Errorf("carbon/sqlite: get credit: %w", err)
	}
	return fromCreditModel(m), nil
}

func (s *Store) DeleteCredit(ctx context.Context, creditID uint64) error {
	res, err := s.sdb.NewDelete((*creditModel)(nil)).
		Where("id = ?", int64(creditID)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("carbon/sqlite: delete credit: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("%w: credit %d", carbon.ErrNotFound, creditID)
	}
	return nil
}

func (s *Store) ListCredits(ctx context.Context, opts credit.ListOpts) ([]*credit.Credit, error) {
	var models []creditModel
	q := s.sdb.NewSelect(&models)

	if opts.Owner != "" {
		q = q.Where("owner = ?", opts.Owner)
	}
	if opts.Retired != nil {
		q = q.Where("is_retired = ?", *opts.Retired)
	}
	if opts.VintageYear != 0 {
		q = q.Where("vintage_year = ?", opts.VintageYear)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("carbon/sqlite: list credits: %w", err)
	}

	result := make([]*credit.Credit, len(models))
	for i := range models {
		result[i] = fromCreditModel(&models[i])
	}
	return result, nil
}

func (s *Store) PutBalance(ctx context.Context, b *credit.Balance) error {
	if b.Amount == 0 {
		_, err := s.sdb.NewDelete((*balanceModel)(nil)).
			Where("account = ?", b.Account).
			Where("credit_id = ?", int64(b.CreditID)).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("carbon/sqlite: delete balance: %w", err)
		}
		return nil
	}

	m := toBalanceModel(b)
	_, err := s.sdb.NewInsert(m).
		OnConflict("(account, credit_id) DO UPDATE").
		Set("amount = EXCLUDED.amount").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("carbon/sqlite: put balance: %w", err)
	}
	return nil
}

func (s *Store) GetBalance(ctx context.Context, account string, creditID uint64) (*credit.Balance, error) {
	m := new(balanceModel)
	err := s.sdb.NewSelect(m).
		Where("account = ?", account).
		Where("credit_id = ?", int64(creditID)).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("%w: balance %s/%d", carbon.ErrNotFound, account, creditID)
		}
		return nil, fmt.Errorf("carbon/sqlite: get balance: %w", err)
	}
	return fromBalanceModel(m), nil
}

func (s *Store) ListBalances(ctx context.Context, opts credit.BalanceOpts) ([]*credit.Balance, error) {
	var models []balanceModel
	q := s.sdb.NewSelect(&models)

	if opts.Account != "" {
		q = q.Where("account = ?", opts.Account)
	}
	if opts.CreditID != nil {
		q = q.Where("credit_id = ?", int64(*opts.CreditID))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("credit_id ASC, account ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("carbon/sqlite: list balances: %w", err)
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
	_, err := s.sdb.NewInsert(m).
		OnConflict("(id) DO UPDATE").
		Set("seller = EXCLUDED.seller").
		Set("credit_id = EXCLUDED.credit_id").
		Set("amount = EXCLUDED.amount").
		Set("price_per_credit = EXCLUDED.price_per_credit").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("carbon/sqlite: put listing: %w", err)
	}
	return nil
}

func (s *Store) GetListing(ctx context.Context, listingID uint64) (*market.Listing, error) {
	m := new(listingModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", int64(listingID)).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("%w: listing %d", carbon.ErrNotFound, listingID)
		}
		return nil, fmt.Errorf("carbon/sqlite: get listing: %w", err)
	}
	return fromListingModel(m), nil
}

func (s *Store) DeleteListing(ctx context.Context, listingID uint64) error {
	res, err := s.sdb.NewDelete((*listingModel)(nil)).
		Where("id = ?", int64(listingID)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("carbon/sqlite: delete listing: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("%w: listing %d", carbon.ErrNotFound, listingID)
	}
	return nil
}

func (s *Store) ListListings(ctx context.Context, opts market.ListOpts) ([]*market.Listing, error) {
	var models []listingModel
	q := s.sdb.NewSelect(&models)

	if opts.Seller != "" {
		q = q.Where("seller = ?", opts.Seller)
	}
	if opts.CreditID != nil {
		q = q.Where("credit_id = ?", int64(*opts.CreditID))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("carbon/sqlite: list listings: %w", err)
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
	_, err := s.sdb.NewInsert(m).Exec(ctx)
	if err != nil {
		return fmt.Errorf("carbon/sqlite: append entry %d: %w", e.Sequence, err)
	}
	return nil
}

func (s *Store) ListEntries(ctx context.Context, opts journal.ListOpts) ([]*journal.Entry, error) {
	var models []entryModel
	q := s.sdb.NewSelect(&models)

	if opts.Kind != "" {
		q = q.Where("kind = ?", string(opts.Kind))
	}
	if opts.Account != "" {
		q = q.Where("(caller = ? OR counterparty = ?)", opts.Account, opts.Account)
	}
	if opts.CreditID != nil {
		q = q.Where("credit_id = ?", int64(*opts.CreditID))
	}
	if opts.After != nil {
		q = q.Where("seq > ?", int64(*opts.After))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("seq ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("carbon/sqlite: list entries: %w", err)
	}

	result := make([]*journal.Entry, len(models))
	for i := range models {
		e, err := fromEntryModel(&models[i])
		if err != nil {
			return nil, fmt.Errorf("carbon/sqlite: entry %d: %w", models[i].Seq, err)
		}
		result[i] = e
	}
	return result, nil
}

// ==================== Sequences ====================

func (s *Store) GetSequences(ctx context.Context) (*carbonstore.Sequences, error) {
	m := new(sequencesModel)
	err := s.sdb.NewSelect(m).
		Where("key = ?", sequencesKey).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return &carbonstore.Sequences{}, nil
		}
		return nil, fmt.Errorf("carbon/sqlite: get sequences: %w", err)
	}
	return fromSequencesModel(m), nil
}

func (s *Store) PutSequences(ctx context.Context, seq *carbonstore.Sequences) error {
	m := toSequencesModel(seq)
	_, err := s.sdb.NewInsert(m).
		OnConflict("(key) DO UPDATE").
		Set("next_credit_id = EXCLUDED.next_credit_id").
		Set("next_listing_id = EXCLUDED.next_listing_id").
		Set("next_entry_seq = EXCLUDED.next_entry_seq").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("carbon/sqlite: put sequences: %w", err)
	}
	return nil
}

// ==================== Helpers ====================

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
