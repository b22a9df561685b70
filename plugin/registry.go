package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/xraph/carbon/credit"
	"github.com/xraph/carbon/journal"
	"github.com/xraph/carbon/market"
)

// DefaultTimeout bounds a single hook call.
const DefaultTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// Hook implementers are discovered once, at registration.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	// Type-cached plugin lists for efficient dispatch
	onInit              []OnInit
	onShutdown          []OnShutdown
	onCreditIssued      []OnCreditIssued
	onCreditTransferred []OnCreditTransferred
	onCreditRetired     []OnCreditRetired
	onListingCreated    []OnListingCreated
	onListingCanceled   []OnListingCanceled
	onCreditPurchased   []OnCreditPurchased
	onOperationRejected []OnOperationRejected
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Check for duplicate
	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	// Type-switch to cache interfaces
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnCreditIssued); ok {
		r.onCreditIssued = append(r.onCreditIssued, v)
	}
	if v, ok := p.(OnCreditTransferred); ok {
		r.onCreditTransferred = append(r.onCreditTransferred, v)
	}
	if v, ok := p.(OnCreditRetired); ok {
		r.onCreditRetired = append(r.onCreditRetired, v)
	}
	if v, ok := p.(OnListingCreated); ok {
		r.onListingCreated = append(r.onListingCreated, v)
	}
	if v, ok := p.(OnListingCanceled); ok {
		r.onListingCanceled = append(r.onListingCanceled, v)
	}
	if v, ok := p.(OnCreditPurchased); ok {
		r.onCreditPurchased = append(r.onCreditPurchased, v)
	}
	if v, ok := p.(OnOperationRejected); ok {
		r.onOperationRejected = append(r.onOperationRejected, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", Interfaces(p),
	)

	return nil
}

var hookTypes = []struct {
	name string
	typ  reflect.Type
}{
	{"OnInit", reflect.TypeFor[OnInit]()},
	{"OnShutdown", reflect.TypeFor[OnShutdown]()},
	{"OnCreditIssued", reflect.TypeFor[OnCreditIssued]()},
	{"OnCreditTransferred", reflect.TypeFor[OnCreditTransferred]()},
	{"OnCreditRetired", reflect.TypeFor[OnCreditRetired]()},
	{"OnListingCreated", reflect.TypeFor[OnListingCreated]()},
	{"OnListingCanceled", reflect.TypeFor[OnListingCanceled]()},
	{"OnCreditPurchased", reflect.TypeFor[OnCreditPurchased]()},
	{"OnOperationRejected", reflect.TypeFor[OnOperationRejected]()},
}

// Interfaces returns the names of the hook interfaces p implements.
func Interfaces(p Plugin) []string {
	var names []string
	t := reflect.TypeOf(p)
	for _, h := range hookTypes {
		if t.Implements(h.typ) {
			names = append(names, h.name)
		}
	}
	return names
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, ledger any) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	dispatch(ctx, r, "OnInit", plugins, func(p OnInit) error {
		return p.OnInit(ctx, ledger)
	})
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	dispatch(ctx, r, "OnShutdown", plugins, func(p OnShutdown) error {
		return p.OnShutdown(ctx)
	})
}

// EmitCreditIssued emits a credit issued event.
func (r *Registry) EmitCreditIssued(ctx context.Context, c *credit.Credit, e *journal.Entry) {
	r.mu.RLock()
	plugins := r.onCreditIssued
	r.mu.RUnlock()

	dispatch(ctx, r, "OnCreditIssued", plugins, func(p OnCreditIssued) error {
		return p.OnCreditIssued(ctx, c, e)
	})
}

// EmitCreditTransferred emits a credit transferred event.
func (r *Registry) EmitCreditTransferred(ctx context.Context, e *journal.Entry) {
	r.mu.RLock()
	plugins := r.onCreditTransferred
	r.mu.RUnlock()

	dispatch(ctx, r, "OnCreditTransferred", plugins, func(p OnCreditTransferred) error {
		return p.OnCreditTransferred(ctx, e)
	})
}

// EmitCreditRetired emits a credit retired event.
func (r *Registry) EmitCreditRetired(ctx context.Context, c *credit.Credit, e *journal.Entry) {
	r.mu.RLock()
	plugins := r.onCreditRetired
	r.mu.RUnlock()

	dispatch(ctx, r, "OnCreditRetired", plugins, func(p OnCreditRetired) error {
		return p.OnCreditRetired(ctx, c, e)
	})
}

// EmitListingCreated emits a listing created event.
func (r *Registry) EmitListingCreated(ctx context.Context, l *market.Listing, e *journal.Entry) {
	r.mu.RLock()
	plugins := r.onListingCreated
	r.mu.RUnlock()

	dispatch(ctx, r, "OnListingCreated", plugins, func(p OnListingCreated) error {
		return p.OnListingCreated(ctx, l, e)
	})
}

// EmitListingCanceled emits a listing canceled event.
func (r *Registry) EmitListingCanceled(ctx context.Context, l *market.Listing, e *journal.Entry) {
	r.mu.RLock()
	plugins := r.onListingCanceled
	r.mu.RUnlock()

	dispatch(ctx, r, "OnListingCanceled", plugins, func(p OnListingCanceled) error {
		return p.OnListingCanceled(ctx, l, e)
	})
}

// EmitCreditPurchased emits a credit purchased event.
func (r *Registry) EmitCreditPurchased(ctx context.Context, e *journal.Entry) {
	r.mu.RLock()
	plugins := r.onCreditPurchased
	r.mu.RUnlock()

	dispatch(ctx, r, "OnCreditPurchased", plugins, func(p OnCreditPurchased) error {
		return p.OnCreditPurchased(ctx, e)
	})
}

// EmitOperationRejected emits an operation rejected event.
func (r *Registry) EmitOperationRejected(ctx context.Context, kind journal.Kind, caller string, err error) {
	r.mu.RLock()
	plugins := r.onOperationRejected
	r.mu.RUnlock()

	dispatch(ctx, r, "OnOperationRejected", plugins, func(p OnOperationRejected) error {
		return p.OnOperationRejected(ctx, kind, caller, err)
	})
}

// dispatch calls hook on every plugin in turn and logs failures. A failing
// plugin never stops the others.
func dispatch[T Plugin](ctx context.Context, r *Registry, hook string, plugins []T, call func(T) error) {
	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return call(p)
		}); err != nil {
			r.logger.Warn("plugin "+hook+" failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the ledger.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
