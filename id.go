package carbon

import "github.com/xraph/carbon/id"

// ID is the TypeID used for journal entries and settlement receipts. Credits
// and listings use the ledger's dense uint64 counters instead.
type ID = id.ID

// Prefix identifies the record type encoded in a TypeID.
type Prefix = id.Prefix
