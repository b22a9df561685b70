package carbon

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/carbon/settlement"
)

func populated(t *testing.T) *State {
	t.Helper()
	s := NewState("eur")
	a, err := s.Issue("registry", "gold-standard", 500, "Cookstoves Ghana", 2022)
	require.NoError(t, err)
	b, err := s.Issue("registry", "verra", 2000, "Peatland Borneo", 2019)
	require.NoError(t, err)
	require.NoError(t, s.Transfer("registry", "acme", a, 120))
	require.NoError(t, s.Retire("acme", a, 20))
	_, err = s.List("registry", b, 300, 900)
	require.NoError(t, err)
	_, err = s.Buy(context.Background(), settlement.Noop{}, "globex", 0, 50)
	require.NoError(t, err)
	return s
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := populated(t)

	data, err := s.Snapshot()
	require.NoError(t, err)

	restored, err := RestoreSnapshot(data)
	require.NoError(t, err)
	assert.Equal(t, "eur", restored.Currency())
	assert.Equal(t, s.NextCreditID(), restored.NextCreditID())
	assert.Equal(t, s.NextListingID(), restored.NextListingID())
	assert.Equal(t, s.Balances(), restored.Balances())
	assert.Equal(t, digestOf(t, s), digestOf(t, restored))

	again, err := restored.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, data, again, "encoding is deterministic")
}

func TestDigestIgnoresHistoryAndTime(t *testing.T) {
	clock := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	direct := NewState("usd")
	_, err := direct.Issue("o", "v", 100, "p", 2020)
	require.NoError(t, err)
	require.NoError(t, direct.Transfer("o", "x", 0, 30))

	roundabout := NewState("usd")
	roundabout.SetClock(func() time.Time { return clock })
	_, err = roundabout.Issue("o", "v", 100, "p", 2020)
	require.NoError(t, err)
	require.NoError(t, roundabout.Transfer("o", "y", 0, 30))
	require.NoError(t, roundabout.Transfer("y", "x", 0, 30))
	require.NoError(t, roundabout.Transfer("o", "o", 0, 5))

	assert.Equal(t, digestOf(t, direct), digestOf(t, roundabout))

	require.NoError(t, roundabout.Transfer("x", "o", 0, 1))
	assert.NotEqual(t, digestOf(t, direct), digestOf(t, roundabout))
}

func TestDigestString(t *testing.T) {
	d := digestOf(t, NewState("usd"))
	assert.Len(t, d.String(), DigestSize*2)
	assert.NotEqual(t, Digest{}, d)
}

func TestRestoreSnapshotRejectsGarbage(t *testing.T) {
	_, err := RestoreSnapshot([]byte{0xff, 0x00, 0x13})
	require.ErrorIs(t, err, ErrInvalidSnapshot)

	bad, err := snapshotEnc.Marshal(snapshot{Version: snapshotVersion + 1, Currency: "usd"})
	require.NoError(t, err)
	_, err = RestoreSnapshot(bad)
	require.ErrorIs(t, err, ErrInvalidSnapshot)

	corrupt, err := snapshotEnc.Marshal(snapshot{
		Version:      snapshotVersion,
		Currency:     "usd",
		NextCreditID: 1,
		Credits:      []creditRecord{{ID: 0, TotalAmount: 10}},
		Balances:     []balanceRecord{{CreditID: 0, Account: "a", Amount: 11}},
	})
	require.NoError(t, err)
	_, err = RestoreSnapshot(corrupt)
	require.ErrorIs(t, err, ErrCorruptState)
}
