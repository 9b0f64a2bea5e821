package domain

import "errors"

// Sentinel errors for domain-level error handling.
// The handler layer maps these to HTTP status codes.
var (
	ErrInsufficientFunds       = errors.New("insufficient_funds")
	ErrInsufficientHoldings    = errors.New("insufficient_holdings")
	ErrLedgerOverflow          = errors.New("ledger_overflow")
	ErrUnknownInstrument       = errors.New("unknown_instrument")
	ErrUnknownOrder            = errors.New("unknown_order")
	ErrUnknownClient           = errors.New("unknown_client")
	ErrClientExists            = errors.New("client_already_exists")
	ErrOrderTerminated         = errors.New("order_terminated")
	ErrOrderNotEditable        = errors.New("order_not_editable")
	ErrOverfillAttempted       = errors.New("overfill_attempted")
	ErrSameStockRequired       = errors.New("same_stock_required")
	ErrSelfTrade               = errors.New("self_trade")
	ErrSettlementInconsistency = errors.New("settlement_inconsistency")
	ErrPricingUnavailable      = errors.New("pricing_unavailable")
	ErrTradeNotDurable         = errors.New("trade_not_durable")
	ErrWebhookNotFound         = errors.New("webhook_not_found")
)

// ValidationError represents a request validation failure.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// IsRejection reports whether err means the participant's request was
// refused on its merits (funds, holdings, order state) rather than because
// something could not be found.
func IsRejection(err error) bool {
	return errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrInsufficientHoldings) ||
		errors.Is(err, ErrLedgerOverflow) ||
		errors.Is(err, ErrOrderTerminated) ||
		errors.Is(err, ErrOrderNotEditable) ||
		errors.Is(err, ErrClientExists)
}

// IsNotFound reports whether err means an id or ticker could not be resolved.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUnknownInstrument) ||
		errors.Is(err, ErrUnknownOrder) ||
		errors.Is(err, ErrUnknownClient) ||
		errors.Is(err, ErrWebhookNotFound)
}

// IsInvariantViolation reports whether err signals a logic defect: money or
// shares may have been lost or duplicated.
func IsInvariantViolation(err error) bool {
	return errors.Is(err, ErrOverfillAttempted) ||
		errors.Is(err, ErrSettlementInconsistency)
}
