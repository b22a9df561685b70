package extension

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/carbon"
	"github.com/xraph/carbon/store/memory"
)

func TestMergeWithDefaults(t *testing.T) {
	cfg := mergeWithDefaults(Config{})
	assert.Equal(t, DefaultConfig(), cfg)

	cfg = mergeWithDefaults(Config{Currency: "eur", PluginTimeout: time.Second})
	assert.Equal(t, "eur", cfg.Currency)
	assert.Equal(t, time.Second, cfg.PluginTimeout)
}

func TestMergeConfigurations(t *testing.T) {
	tests := []struct {
		name         string
		yaml, prog   Config
		wantCurrency string
		wantMigrate  bool
		wantTimeout  time.Duration
	}{
		{"yaml wins", Config{Currency: "gbp"}, Config{Currency: "eur"}, "gbp", false, 5 * time.Second},
		{"programmatic fills gaps", Config{}, Config{Currency: "eur", PluginTimeout: time.Second}, "eur", false, time.Second},
		{"disable migrate sticks", Config{}, Config{DisableMigrate: true}, "usd", true, 5 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mergeConfigurations(tt.yaml, tt.prog)
			assert.Equal(t, tt.wantCurrency, got.Currency)
			assert.Equal(t, tt.wantMigrate, got.DisableMigrate)
			assert.Equal(t, tt.wantTimeout, got.PluginTimeout)
		})
	}
}

func TestOptions(t *testing.T) {
	st := memory.New()
	e := New(
		WithStore(st),
		WithCurrency("jpy"),
		WithDisableMigrate(),
		WithPluginTimeout(time.Second),
		WithRequireConfig(true),
		WithLedgerOption(carbon.WithCurrency("eur")),
	)

	assert.Equal(t, ExtensionName, e.Name())
	assert.Same(t, st, e.store)
	assert.Equal(t, "jpy", e.config.Currency)
	assert.True(t, e.config.DisableMigrate)
	assert.True(t, e.config.RequireConfig)
	assert.Equal(t, time.Second, e.config.PluginTimeout)

	// currency, timeout, without-migrate, then the pass-through option
	assert.Len(t, e.buildLedgerOpts(), 4)
}

func TestBuiltEngineRuns(t *testing.T) {
	ctx := context.Background()
	e := New(WithStore(memory.New()), WithCurrency("eur"))
	e.config = mergeWithDefaults(e.config)

	l := carbon.New(e.store, e.buildLedgerOpts()...)
	require.NoError(t, l.Start(ctx))
	defer l.Stop()

	creditID, err := l.Issue(ctx, "registry", "verra", 10, "Mangroves", 2023)
	require.NoError(t, err)
	listingID, err := l.List(ctx, "registry", creditID, 5, 7)
	require.NoError(t, err)
	entry, err := l.Buy(ctx, "acme", listingID, 2)
	require.NoError(t, err)
	assert.Equal(t, "eur", entry.Total.Currency)
}

func TestLifecycleGuards(t *testing.T) {
	e := New()
	assert.Nil(t, e.Engine())
	assert.Error(t, e.Start(context.Background()))
	assert.ErrorIs(t, e.Health(context.Background()), carbon.ErrStoreNotReady)
	assert.NoError(t, e.Stop(context.Background()))
}
