package carbon

import (
	"encoding/hex"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/blake2b"

	"github.com/xraph/carbon/credit"
	"github.com/xraph/carbon/market"
)

// snapshotVersion is bumped whenever the encoded layout changes.
const snapshotVersion = 1

// DigestSize is the length in bytes of a state digest.
const DigestSize = blake2b.Size256

// Digest identifies a ledger state. Two States with equal records and
// counters have equal digests regardless of how they were reached.
type Digest [DigestSize]byte

// String returns the hex encoding of the digest.
func (d Digest) String() string { return hex.EncodeToString(d[:]) }

// Snapshots cover the ledger's logical content only. Record timestamps are
// not encoded, so a state rebuilt from any store hashes identically.
type snapshot struct {
	_             struct{} `cbor:",toarray"`
	Version       uint
	Currency      string
	NextCreditID  uint64
	NextListingID uint64
	Credits       []creditRecord
	Balances      []balanceRecord
	Listings      []listingRecord
}

type creditRecord struct {
	_             struct{} `cbor:",toarray"`
	ID            uint64
	Owner         string
	Verifier      string
	TotalAmount   int64
	RetiredAmount int64
	Origin        string
	VintageYear   int
	IsRetired     bool
}

type balanceRecord struct {
	_        struct{} `cbor:",toarray"`
	CreditID uint64
	Account  string
	Amount   int64
}

type listingRecord struct {
	_              struct{} `cbor:",toarray"`
	ID             uint64
	Seller         string
	CreditID       uint64
	Amount         int64
	PricePerCredit int64
}

var (
	snapshotEnc cbor.EncMode
	snapshotDec cbor.DecMode
)

func init() {
	var err error
	snapshotEnc, err = cbor.EncOptions{Sort: cbor.SortCoreDeterministic}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("carbon: snapshot encoder: %v", err))
	}
	snapshotDec, err = cbor.DecOptions{DupMapKey: cbor.DupMapKeyEnforcedAPF}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("carbon: snapshot decoder: %v", err))
	}
}

// Snapshot encodes the State as deterministic CBOR.
func (s *State) Snapshot() ([]byte, error) {
	snap := snapshot{
		Version:       snapshotVersion,
		Currency:      s.currency,
		NextCreditID:  s.nextCreditID,
		NextListingID: s.nextListingID,
	}
	for _, c := range s.Credits() {
		snap.Credits = append(snap.Credits, creditRecord{
			ID:            c.ID,
			Owner:         c.Owner,
			Verifier:      c.Verifier,
			TotalAmount:   c.TotalAmount,
			RetiredAmount: c.RetiredAmount,
			Origin:        c.Origin,
			VintageYear:   c.VintageYear,
			IsRetired:     c.IsRetired,
		})
	}
	for _, b := range s.Balances() {
		snap.Balances = append(snap.Balances, balanceRecord{CreditID: b.CreditID, Account: b.Account, Amount: b.Amount})
	}
	for _, l := range s.Listings() {
		snap.Listings = append(snap.Listings, listingRecord{
			ID:             l.ID,
			Seller:         l.Seller,
			CreditID:       l.CreditID,
			Amount:         l.Amount,
			PricePerCredit: l.PricePerCredit,
		})
	}

	data, err := snapshotEnc.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("carbon: encode snapshot: %w", err)
	}
	return data, nil
}

// Digest returns the BLAKE2b-256 hash of the State's snapshot.
func (s *State) Digest() (Digest, error) {
	data, err := s.Snapshot()
	if err != nil {
		return Digest{}, err
	}
	return blake2b.Sum256(data), nil
}

// RestoreSnapshot decodes a snapshot produced by State.Snapshot.
func RestoreSnapshot(data []byte) (*State, error) {
	var snap snapshot
	if err := snapshotDec.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSnapshot, err)
	}
	if snap.Version != snapshotVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidSnapshot, snap.Version)
	}

	credits := make([]*credit.Credit, len(snap.Credits))
	for i, r := range snap.Credits {
		credits[i] = &credit.Credit{
			ID:            r.ID,
			Owner:         r.Owner,
			Verifier:      r.Verifier,
			TotalAmount:   r.TotalAmount,
			RetiredAmount: r.RetiredAmount,
			Origin:        r.Origin,
			VintageYear:   r.VintageYear,
			IsRetired:     r.IsRetired,
		}
	}
	balances := make([]*credit.Balance, len(snap.Balances))
	for i, r := range snap.Balances {
		balances[i] = &credit.Balance{Account: r.Account, CreditID: r.CreditID, Amount: r.Amount}
	}
	listings := make([]*market.Listing, len(snap.Listings))
	for i, r := range snap.Listings {
		listings[i] = &market.Listing{
			ID:             r.ID,
			Seller:         r.Seller,
			CreditID:       r.CreditID,
			Amount:         r.Amount,
			PricePerCredit: r.PricePerCredit,
		}
	}

	return Restore(snap.Currency, snap.NextCreditID, snap.NextListingID, credits, balances, listings)
}
