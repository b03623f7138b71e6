package engine

import "errors"

var (
	ErrInvalidOrder       = errors.New("invalid order")
	ErrNotFound           = errors.New("order not found")
	ErrForbidden          = errors.New("order belongs to another owner")
	ErrServiceUnavailable = errors.New("order book service not ready")
)
