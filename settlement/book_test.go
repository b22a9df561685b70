package settlement_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/carbon/id"
	"github.com/xraph/carbon/settlement"
	"github.com/xraph/carbon/types"
)

func TestBookPay(t *testing.T) {
	ctx := context.Background()
	b := settlement.NewBook("USD")
	require.NoError(t, b.Deposit("buyer1", types.USD(5000)))

	r, err := b.Pay(ctx, "buyer1", "owner1", types.USD(3000))
	require.NoError(t, err)
	assert.Equal(t, id.PrefixReceipt, r.ID.Prefix())
	assert.Equal(t, "buyer1", r.Payer)
	assert.Equal(t, "owner1", r.Payee)
	assert.True(t, b.Balance("buyer1").Equal(types.USD(2000)))
	assert.True(t, b.Balance("owner1").Equal(types.USD(3000)))
	assert.Equal(t, []string{"buyer1", "owner1"}, b.Accounts())
}

func TestBookPayRejects(t *testing.T) {
	ctx := context.Background()
	b := settlement.NewBook("usd")
	require.NoError(t, b.Deposit("buyer1", types.USD(100)))

	tests := []struct {
		name  string
		total types.Money
		want  error
	}{
		{"insufficient funds", types.USD(101), settlement.ErrInsufficientFunds},
		{"wrong currency", types.EUR(10), settlement.ErrCurrencyMismatch},
		{"zero total", types.USD(0), settlement.ErrInvalidTotal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := b.Pay(ctx, "buyer1", "owner1", tt.total)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, b.Balance("buyer1").Equal(types.USD(100)), "payer funds must be untouched")
			assert.True(t, b.Balance("owner1").IsZero(), "payee funds must be untouched")
		})
	}

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err := b.Pay(canceled, "buyer1", "owner1", types.USD(1))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestBookReverse(t *testing.T) {
	ctx := context.Background()
	b := settlement.NewBook("usd")
	require.NoError(t, b.Deposit("buyer1", types.USD(500)))

	r, err := b.Pay(ctx, "buyer1", "owner1", types.USD(500))
	require.NoError(t, err)

	require.NoError(t, b.Reverse(ctx, r))
	assert.True(t, b.Balance("buyer1").Equal(types.USD(500)))
	assert.True(t, b.Balance("owner1").IsZero())

	assert.ErrorIs(t, b.Reverse(ctx, r), settlement.ErrUnknownReceipt)
}

func TestSettlerFuncAndNoop(t *testing.T) {
	ctx := context.Background()
	calls := 0
	var s settlement.Settler = settlement.SettlerFunc(func(_ context.Context, payer, payee string, total types.Money) (*settlement.Receipt, error) {
		calls++
		return &settlement.Receipt{Payer: payer, Payee: payee, Total: total}, nil
	})
	r, err := s.Pay(ctx, "a", "b", types.USD(1))
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "a", r.Payer)

	r, err = settlement.Noop{}.Pay(ctx, "a", "b", types.USD(7))
	require.NoError(t, err)
	assert.False(t, r.ID.IsNil())
	assert.True(t, r.Total.Equal(types.USD(7)))
}
