package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xraph/carbon/credit"
	"github.com/xraph/carbon/store"
)

func TestSequencesModelUsesFixedKey(t *testing.T) {
	m := toSequencesModel(&store.Sequences{NextCreditID: 3, NextListingID: 2, NextEntrySeq: 7})
	assert.Equal(t, sequencesKey, m.Key)
	assert.Equal(t, &store.Sequences{NextCreditID: 3, NextListingID: 2, NextEntrySeq: 7}, fromSequencesModel(m))
}

func TestCreditModelRoundTrip(t *testing.T) {
	c := &credit.Credit{ID: 1, Owner: "registry", Verifier: "verra", TotalAmount: 100, RetiredAmount: 10, Origin: "Peatland", VintageYear: 2021, IsRetired: true}
	assert.Equal(t, c, fromCreditModel(toCreditModel(c)))
}
