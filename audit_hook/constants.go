package audithook

// Action constants for audit events.
const (
	// Credit actions
	ActionCreditIssued      = "credit.issued"
	ActionCreditTransferred = "credit.transferred"
	ActionCreditRetired     = "credit.retired"
	ActionCreditPurchased   = "credit.purchased"

	// Listing actions
	ActionListingCreated  = "listing.created"
	ActionListingCanceled = "listing.canceled"

	// Failure actions
	ActionOperationRejected = "operation.rejected"
)

// Resource constants for audit events.
const (
	ResourceCredit    = "credit"
	ResourceListing   = "listing"
	ResourceOperation = "operation"
)

// Category constants for audit events.
const (
	CategoryRegistry   = "registry"
	CategoryOwnership  = "ownership"
	CategoryRetirement = "retirement"
	CategoryMarket     = "market"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
