package domain

import "errors"

var ErrInvalidCommissionInput = errors.New("invalid_commission_input")
