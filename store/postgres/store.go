package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/carbon"
	"github.com/xraph/carbon/credit"
	"github.com/xraph/carbon/journal"
	"github.com/xraph/carbon/market"
	carbonstore "github.com/xraph/carbon/store"
)

// compile-time interface check
var _ carbonstore.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("%w: carbon/postgres: create migration executor: %w", carbon.ErrMigrationFailed, err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("%w: carbon/postgres: %w", carbon.ErrMigrationFailed, err)
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
	_, err := s.pg.NewInsert(m).
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
		return fmt.Errorf("carbon/postgres: put credit: %w", err)
	}
	return nil
}

func (s *Store) GetCredit(ctx context.Context, creditID uint64) (*credit.Credit, error) {
	m := new(creditModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", int64(creditID)).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("%w: credit %d", carbon.ErrNotFound, creditID)
		}
		return nil, fmt.Errorf("carbon/postgres: get credit: %w", err)
	}
	return fromCreditModel(m), nil
}

func (s *Store) DeleteCredit(ctx context.Context, creditID uint64) error {
	res, err := s.pg.NewDelete((*creditModel)(nil)).
		Where("id = $1", int64(creditID)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("carbon/postgres: delete credit: %w", err)
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
	q := s.pg.NewSelect(&models)

	argIdx := 0

	if opts.Owner != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("owner = $%d", argIdx), opts.Owner)
	}
	if opts.Retired != nil {
		argIdx++
		q = q.Where(fmt.Sprintf("is_retired = $%d", argIdx), *opts.Retired)
	}
	if opts.VintageYear != 0 {
		argIdx++
		q = q.Where(fmt.Sprintf("vintage_year = $%d", argIdx), opts.VintageYear)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("carbon/postgres: list credits: %w", err)
	}

	result := make([]*credit.Credit, len(models))
	for i := range models {
		result[i] = fromCreditModel(&models[i])
	}
	return result, nil
}

func (s *Store) PutBalance(ctx context.Context, b *credit.Balance) error {
	if b.Amount == 0 {
		_, err := s.pg.NewDelete((*balanceModel)(nil)).
			Where("account = $1", b.Account).
			Where("credit_id = $2", int64(b.CreditID)).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("carbon/postgres: delete balance: %w", err)
		}
		return nil
	}

	m := toBalanceModel(b)
	_, err := s.pg.NewInsert(m).
		OnConflict("(account, credit_id) DO UPDATE").
		Set("amount = EXCLUDED.amount").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("carbon/postgres: put balance: %w", err)
	}
	return nil
}

func (s *Store) GetBalance(ctx context.Context, account string, creditID uint64) (*credit.Balance, error) {
	m := new(balanceModel)
	err := s.pg.NewSelect(m).
		Where("account = $1", account).
		Where("credit_id = $2", int64(creditID)).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("%w: balance %s/%d", carbon.ErrNotFound, account, creditID)
		}
		return nil, fmt.Errorf("carbon/postgres: get balance: %w", err)
	}
	return fromBalanceModel(m), nil
}

func (s *Store) ListBalances(ctx context.Context, opts credit.BalanceOpts) ([]*credit.Balance, error) {
	var models []balanceModel
	q := s.pg.NewSelect(&models)

	argIdx := 0

	if opts.Account != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("account = $%d", argIdx), opts.Account)
	}
	if opts.CreditID != nil {
		argIdx++
		q = q.Where(fmt.Sprintf("credit_id = $%d", argIdx), int64(*opts.CreditID))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("credit_id ASC, account ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("carbon/postgres: list balances: %w", err)
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
	_, err := s.pg.NewInsert(m).
		OnConflict("(id) DO UPDATE").
		Set("seller = EXCLUDED.seller").
		Set("credit_id = EXCLUDED.credit_id").
		Set("amount = EXCLUDED.amount").
		Set("price_per_credit = EXCLUDED.price_per_credit").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("carbon/postgres: put listing: %w", err)
	}
	return nil
}

func (s *Store) GetListing(ctx context.Context, listingID uint64) (*market.Listing, error) {
	m := new(listingModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", int64(listingID)).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("%w: listing %d", carbon.ErrNotFound, listingID)
		}
		return nil, fmt.Errorf("carbon/postgres: get listing: %w", err)
	}
	return fromListingModel(m), nil
}

func (s *Store) DeleteListing(ctx context.Context, listingID uint64) error {
	res, err := s.pg.NewDelete((*listingModel)(nil)).
		Where("id = $1", int64(listingID)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("carbon/postgres: delete listing: %w", err)
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
	q := s.pg.NewSelect(&models)

	argIdx := 0

	if opts.Seller != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("seller = $%d", argIdx), opts.Seller)
	}
	if opts.CreditID != nil {
		argIdx++
		q = q.Where(fmt.Sprintf("credit_id = $%d", argIdx), int64(*opts.CreditID))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("carbon/postgres: list listings: %w", err)
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
	_, err := s.pg.NewInsert(m).Exec(ctx)
	if err != nil {
		return fmt.Errorf("carbon/postgres: append entry %d: %w", e.Sequence, err)
	}
	return nil
}

func (s *Store) ListEntries(ctx context.Context, opts journal.ListOpts) ([]*journal.Entry, error) {
	var models []entryModel
	q := s.pg.NewSelect(&models)

	argIdx := 0

	if opts.Kind != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("kind = $%d", argIdx), string(opts.Kind))
	}
	if opts.Account != "" {
		q = q.Where(fmt.Sprintf("(caller = $%d OR counterparty = $%d)", argIdx+1, argIdx+2), opts.Account, opts.Account)
		argIdx += 2
	}
	if opts.CreditID != nil {
		argIdx++
		q = q.Where(fmt.Sprintf("credit_id = $%d", argIdx), int64(*opts.CreditID))
	}
	if opts.After != nil {
		argIdx++
		q = q.Where(fmt.Sprintf("seq > $%d", argIdx), int64(*opts.After))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("seq ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("carbon/postgres: list entries: %w", err)
	}

	result := make([]*journal.Entry, len(models))
	for i := range models {
		e, err := fromEntryModel(&models[i])
		if err != nil {
			return nil, fmt.Errorf("carbon/postgres: entry %d: %w", models[i].Seq, err)
		}
		result[i] = e
	}
	return result, nil
}

// ==================== Sequences ====================

func (s *Store) GetSequences(ctx context.Context) (*carbonstore.Sequences, error) {
	m := new(sequencesModel)
	err := s.pg.NewSelect(m).
		Where("key = $1", sequencesKey).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return &carbonstore.Sequences{}, nil
		}
		return nil, fmt.Errorf("carbon/postgres: get sequences: %w", err)
	}
	return fromSequencesModel(m), nil
}

func (s *Store) PutSequences(ctx context.Context, seq *carbonstore.Sequences) error {
	m := toSequencesModel(seq)
	_, err := s.pg.NewInsert(m).
		OnConflict("(key) DO UPDATE").
		Set("next_credit_id = EXCLUDED.next_credit_id").
		Set("next_listing_id = EXCLUDED.next_listing_id").
		Set("next_entry_seq = EXCLUDED.next_entry_seq").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("carbon/postgres: put sequences: %w", err)
	}
	return nil
}

// ==================== Helpers ====================

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
