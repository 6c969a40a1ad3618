package domain

import "errors"

var (
	ErrInvalidPaymentID     = errors.New("invalid_payment_id")
	ErrInvalidNodeID        = errors.New("invalid_node_id")
	ErrInvalidPackageID     = errors.New("invalid_package_id")
	ErrInvalidAmount        = errors.New("invalid_amount")
	ErrInvalidMethod        = errors.New("invalid_payment_method")
	ErrInvalidExternalTxID  = errors.New("invalid_external_tx_id")
	ErrInvalidStatus        = errors.New("invalid_payment_status")
	ErrInvalidUpgrade       = errors.New("invalid_package_upgrade")
	ErrPaymentNotFound      = errors.New("payment_not_found")
	ErrDuplicateTransaction = errors.New("duplicate_transaction")

	// ErrConfirmationInProgress is returned while another process holds the
	// confirmation lock of a non-terminal payment. Callers retry.
	ErrConfirmationInProgress = errors.New("payment_confirmation_in_progress")

	ErrInvalidProvider  = errors.New("invalid_provider")
	ErrProviderNotFound = errors.New("provider_not_found")
	ErrInvalidConfig    = errors.New("invalid_provider_config")
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrInvalidPayload   = errors.New("invalid_payload")
	ErrInvalidEvent     = errors.New("invalid_event")
	ErrEventIgnored     = errors.New("event_ignored")
)
