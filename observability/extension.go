// Package observability provides a metrics extension for the carbon ledger
// that records event counts and volumes via a MetricFactory.
package observability

import (
	"context"

	"github.com/xraph/carbon"
	"github.com/xraph/carbon/credit"
	"github.com/xraph/carbon/journal"
	"github.com/xraph/carbon/market"
	"github.com/xraph/carbon/plugin"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin              = (*MetricsExtension)(nil)
	_ plugin.OnInit              = (*MetricsExtension)(nil)
	_ plugin.OnCreditIssued      = (*MetricsExtension)(nil)
	_ plugin.OnCreditTransferred = (*MetricsExtension)(nil)
	_ plugin.OnCreditRetired     = (*MetricsExtension)(nil)
	_ plugin.OnListingCreated    = (*MetricsExtension)(nil)
	_ plugin.OnListingCanceled   = (*MetricsExtension)(nil)
	_ plugin.OnCreditPurchased   = (*MetricsExtension)(nil)
	_ plugin.OnOperationRejected = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records ledger-wide metrics.
// Register it as a Ledger plugin to track issuance, trading and retirement.
type MetricsExtension struct {
	factory MetricFactory

	// Credit metrics
	CreditIssued      Counter
	UnitsIssued       Counter
	CreditTransferred Counter
	UnitsTransferred  Counter
	CreditRetired     Counter
	UnitsRetired      Counter

	// Market metrics
	ListingCreated  Counter
	ListingCanceled Counter
	ListingSize     Histogram
	ListingPrice    Histogram
	CreditPurchased Counter
	UnitsPurchased  Counter
	PurchaseTotal   Histogram

	// Error metrics
	OperationRejected Counter
	rejectedByKind    map[carbon.ErrorKind]Counter
}

var rejectionKinds = []carbon.ErrorKind{
	carbon.KindInsufficientBalance,
	carbon.KindNotFound,
	carbon.KindUnauthorized,
	carbon.KindInvalidPrice,
	carbon.KindInvalidAmount,
	carbon.KindSettlementFailed,
	carbon.KindInternal,
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use app.Metrics() in forge extensions.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	m := &MetricsExtension{
		factory: factory,

		// Credit metrics
		CreditIssued:      factory.Counter("carbon.credit.issued"),
		UnitsIssued:       factory.Counter("carbon.credit.units.issued"),
		CreditTransferred: factory.Counter("carbon.credit.transferred"),
		UnitsTransferred:  factory.Counter("carbon.credit.units.transferred"),
		CreditRetired:     factory.Counter("carbon.credit.retired"),
		UnitsRetired:      factory.Counter("carbon.credit.units.retired"),

		// Market metrics
		ListingCreated:  factory.Counter("carbon.listing.created"),
		ListingCanceled: factory.Counter("carbon.listing.canceled"),
		ListingSize:     factory.Histogram("carbon.listing.size"),
		ListingPrice:    factory.Histogram("carbon.listing.price_per_credit"),
		CreditPurchased: factory.Counter("carbon.credit.purchased"),
		UnitsPurchased:  factory.Counter("carbon.credit.units.purchased"),
		PurchaseTotal:   factory.Histogram("carbon.purchase.total_amount"),

		// Error metrics
		OperationRejected: factory.Counter("carbon.operation.rejected"),
		rejectedByKind:    make(map[carbon.ErrorKind]Counter, len(rejectionKinds)),
	}
	for _, k := range rejectionKinds {
		m.rejectedByKind[k] = factory.Counter("carbon.operation.rejected." + string(k))
	}
	return m
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ any) error {
	// No initialization needed
	return nil
}

// ──────────────────────────────────────────────────
// Credit hooks
// ──────────────────────────────────────────────────

// OnCreditIssued implements plugin.OnCreditIssued.
func (m *MetricsExtension) OnCreditIssued(_ context.Context, c *credit.Credit, _ *journal.Entry) error {
	m.CreditIssued.Inc()
	m.UnitsIssued.Add(float64(c.TotalAmount))
	return nil
}

// OnCreditTransferred implements plugin.OnCreditTransferred.
func (m *MetricsExtension) OnCreditTransferred(_ context.Context, e *journal.Entry) error {
	m.CreditTransferred.Inc()
	m.UnitsTransferred.Add(float64(e.Amount))
	return nil
}

// OnCreditRetired implements plugin.OnCreditRetired.
func (m *MetricsExtension) OnCreditRetired(_ context.Context, _ *credit.Credit, e *journal.Entry) error {
	m.CreditRetired.Inc()
	m.UnitsRetired.Add(float64(e.Amount))
	return nil
}

// ──────────────────────────────────────────────────
// Market hooks
// ──────────────────────────────────────────────────

// OnListingCreated implements plugin.OnListingCreated.
func (m *MetricsExtension) OnListingCreated(_ context.Context, l *market.Listing, _ *journal.Entry) error {
	m.ListingCreated.Inc()
	m.ListingSize.Observe(float64(l.Amount))
	m.ListingPrice.Observe(float64(l.PricePerCredit))
	return nil
}

// OnListingCanceled implements plugin.OnListingCanceled.
func (m *MetricsExtension) OnListingCanceled(_ context.Context, _ *market.Listing, _ *journal.Entry) error {
	m.ListingCanceled.Inc()
	return nil
}

// OnCreditPurchased implements plugin.OnCreditPurchased.
func (m *MetricsExtension) OnCreditPurchased(_ context.Context, e *journal.Entry) error {
	m.CreditPurchased.Inc()
	m.UnitsPurchased.Add(float64(e.Amount))
	m.PurchaseTotal.Observe(float64(e.Total.Amount))
	return nil
}

// ──────────────────────────────────────────────────
// Failure hooks
// ──────────────────────────────────────────────────

// OnOperationRejected implements plugin.OnOperationRejected.
func (m *MetricsExtension) OnOperationRejected(_ context.Context, _ journal.Kind, _ string, err error) error {
	m.OperationRejected.Inc()
	if c, ok := m.rejectedByKind[carbon.Kind(err)]; ok {
		c.Inc()
	}
	return nil
}
