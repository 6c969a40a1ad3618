package domain

import "errors"

var (
	ErrInvalidNodeID           = errors.New("invalid_node_id")
	ErrInvalidAmount           = errors.New("invalid_amount")
	ErrInvalidStatementType    = errors.New("invalid_statement_type")
	ErrInvalidStatementStatus  = errors.New("invalid_statement_status")
	ErrInvalidReference        = errors.New("invalid_reference")
	ErrInvalidPageToken        = errors.New("invalid_page_token")
	ErrNodeNotFound            = errors.New("node_not_found")
	ErrStatementNotFound       = errors.New("statement_not_found")
	ErrInsufficientBalance     = errors.New("insufficient_balance")
	ErrWithdrawalLimitExceeded = errors.New("withdrawal_limit_exceeded")
)
