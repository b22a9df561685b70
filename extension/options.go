package extension

import (
	"time"

	"github.com/xraph/carbon"
	"github.com/xraph/carbon/plugin"
	"github.com/xraph/carbon/settlement"
	"github.com/xraph/carbon/store"
)

// Option configures the Carbon Forge extension.
type Option func(*Extension)

// WithStore sets the store for the ledger engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithLedgerOption passes a carbon.Option through to the underlying engine.
func WithLedgerOption(opt carbon.Option) Option {
	return func(e *Extension) {
		e.ledgerOpts = append(e.ledgerOpts, opt)
	}
}

// WithPlugin registers a ledger plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.ledgerOpts = append(e.ledgerOpts, carbon.WithPlugin(p))
	}
}

// WithSettler sets the settlement backend used by buy.
func WithSettler(s settlement.Settler) Option {
	return func(e *Extension) {
		e.ledgerOpts = append(e.ledgerOpts, carbon.WithSettler(s))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithCurrency sets the settlement currency.
func WithCurrency(currency string) Option {
	return func(e *Extension) { e.config.Currency = currency }
}

// WithPluginTimeout sets the per-hook plugin timeout.
func WithPluginTimeout(d time.Duration) Option {
	return func(e *Extension) { e.config.PluginTimeout = d }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}
