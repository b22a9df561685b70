// Package audithook bridges carbon ledger events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not import
// Chronicle directly. Callers inject a RecorderFunc adapter that bridges
// to Chronicle at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/xraph/carbon"
	"github.com/xraph/carbon/credit"
	"github.com/xraph/carbon/journal"
	"github.com/xraph/carbon/market"
	"github.com/xraph/carbon/plugin"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin              = (*Extension)(nil)
	_ plugin.OnCreditIssued      = (*Extension)(nil)
	_ plugin.OnCreditTransferred = (*Extension)(nil)
	_ plugin.OnCreditRetired     = (*Extension)(nil)
	_ plugin.OnListingCreated    = (*Extension)(nil)
	_ plugin.OnListingCanceled   = (*Extension)(nil)
	_ plugin.OnCreditPurchased   = (*Extension)(nil)
	_ plugin.OnOperationRejected = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
// Its shape follows chronicle.Emitter; wire a concrete backend in with
// RecorderFunc.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a single audit record.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges carbon ledger events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Credit hooks
// ──────────────────────────────────────────────────

// OnCreditIssued implements plugin.OnCreditIssued.
func (e *Extension) OnCreditIssued(ctx context.Context, c *credit.Credit, entry *journal.Entry) error {
	return e.record(ctx, ActionCreditIssued, SeverityInfo, OutcomeSuccess,
		ResourceCredit, formatID(c.ID), CategoryRegistry, nil,
		"owner", c.Owner,
		"verifier", c.Verifier,
		"amount", c.TotalAmount,
		"origin", c.Origin,
		"vintage_year", c.VintageYear,
		"sequence", entry.Sequence,
	)
}

// OnCreditTransferred implements plugin.OnCreditTransferred.
func (e *Extension) OnCreditTransferred(ctx context.Context, entry *journal.Entry) error {
	return e.record(ctx, ActionCreditTransferred, SeverityInfo, OutcomeSuccess,
		ResourceCredit, formatID(entry.CreditID), CategoryOwnership, nil,
		"sender", entry.Caller,
		"recipient", entry.Counterparty,
		"amount", entry.Amount,
		"sequence", entry.Sequence,
	)
}

// OnCreditRetired implements plugin.OnCreditRetired.
func (e *Extension) OnCreditRetired(ctx context.Context, c *credit.Credit, entry *journal.Entry) error {
	return e.record(ctx, ActionCreditRetired, SeverityInfo, OutcomeSuccess,
		ResourceCredit, formatID(c.ID), CategoryRetirement, nil,
		"account", entry.Caller,
		"amount", entry.Amount,
		"retired_total", c.RetiredAmount,
		"outstanding", c.Outstanding(),
		"sequence", entry.Sequence,
	)
}

// ──────────────────────────────────────────────────
// Market hooks
// ──────────────────────────────────────────────────

// OnListingCreated implements plugin.OnListingCreated.
func (e *Extension) OnListingCreated(ctx context.Context, l *market.Listing, entry *journal.Entry) error {
	return e.record(ctx, ActionListingCreated, SeverityInfo, OutcomeSuccess,
		ResourceListing, formatID(l.ID), CategoryMarket, nil,
		"seller", l.Seller,
		"credit_id", l.CreditID,
		"amount", l.Amount,
		"price_per_credit", l.PricePerCredit,
		"sequence", entry.Sequence,
	)
}

// OnListingCanceled implements plugin.OnListingCanceled.
func (e *Extension) OnListingCanceled(ctx context.Context, l *market.Listing, entry *journal.Entry) error {
	return e.record(ctx, ActionListingCanceled, SeverityInfo, OutcomeSuccess,
		ResourceListing, formatID(l.ID), CategoryMarket, nil,
		"seller", l.Seller,
		"credit_id", l.CreditID,
		"remaining", l.Amount,
		"sequence", entry.Sequence,
	)
}

// OnCreditPurchased implements plugin.OnCreditPurchased.
func (e *Extension) OnCreditPurchased(ctx context.Context, entry *journal.Entry) error {
	var listingID string
	if entry.ListingID != nil {
		listingID = formatID(*entry.ListingID)
	}
	return e.record(ctx, ActionCreditPurchased, SeverityInfo, OutcomeSuccess,
		ResourceListing, listingID, CategoryMarket, nil,
		"buyer", entry.Caller,
		"seller", entry.Counterparty,
		"credit_id", entry.CreditID,
		"amount", entry.Amount,
		"total", entry.Total.String(),
		"settlement_ref", entry.SettlementRef,
		"sequence", entry.Sequence,
	)
}

// ──────────────────────────────────────────────────
// Failure hooks
// ──────────────────────────────────────────────────

// OnOperationRejected implements plugin.OnOperationRejected.
func (e *Extension) OnOperationRejected(ctx context.Context, kind journal.Kind, caller string, err error) error {
	errKind := carbon.Kind(err)
	return e.record(ctx, ActionOperationRejected, rejectionSeverity(errKind), OutcomeFailure,
		ResourceOperation, string(kind), categoryFor(kind), err,
		"operation", string(kind),
		"caller", caller,
		"error_kind", string(errKind),
	)
}

func rejectionSeverity(k carbon.ErrorKind) string {
	switch k {
	case carbon.KindUnauthorized, carbon.KindSettlementFailed:
		return SeverityError
	case carbon.KindInternal:
		return SeverityCritical
	default:
		return SeverityWarning
	}
}

func categoryFor(kind journal.Kind) string {
	switch kind {
	case journal.KindIssue:
		return CategoryRegistry
	case journal.KindTransfer:
		return CategoryOwnership
	case journal.KindRetire:
		return CategoryRetirement
	default:
		return CategoryMarket
	}
}

func formatID(v uint64) string { return strconv.FormatUint(v, 10) }

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
