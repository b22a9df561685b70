package carbon

import (
	"github.com/xraph/carbon/credit"
	"github.com/xraph/carbon/journal"
	"github.com/xraph/carbon/market"
	"github.com/xraph/carbon/types"
)

// Re-export common types for convenience so users don't have to import the
// model packages.

// Money is re-exported from types package.
type Money = types.Money

// Entity is re-exported from types package.
type Entity = types.Entity

// Credit is re-exported from credit package.
type Credit = credit.Credit

// Balance is re-exported from credit package.
type Balance = credit.Balance

// Listing is re-exported from market package.
type Listing = market.Listing

// Entry is re-exported from journal package.
type Entry = journal.Entry

// Re-export Money constructors
var (
	NewMoney = types.New
	USD      = types.USD
	EUR      = types.EUR
	GBP      = types.GBP
	JPY      = types.JPY
	Zero     = types.Zero
	Sum      = types.Sum
)

// Re-export Entity constructor
var NewEntity = types.NewEntity
