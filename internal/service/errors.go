package service

import "errors"

// Expected failures are sentinel errors the handlers map to reason codes and
// status codes with errors.Is. Anything else is treated as fatal by the caller.
var (
	ErrValidation = errors.New("validation")
	ErrNotFound   = errors.New("not_found")
	ErrConflict   = errors.New("conflict")

	ErrNotPaid              = errors.New("not_paid")
	ErrAccountMismatch      = errors.New("account_mismatch")
	ErrSessionOrderMismatch = errors.New("session_order_mismatch")

	ErrUnauthorized = errors.New("unauthorized")
	ErrNotEligible  = errors.New("not_eligible")

	ErrInvalidAmount   = errors.New("invalid_amount")
	ErrAlreadyRefunded = errors.New("already_refunded")
	ErrNotRefundable   = errors.New("not_refundable")

	ErrRetryLimit = errors.New("retry_limit")

	// External-dependency failure, retryable, distinct from business conflicts.
	ErrGateway = errors.New("gateway_error")
)
