package cartsync

import "errors"

var (
	ErrServiceNotFound        = errors.New("service does not exist")
	ErrServiceUnavailable     = errors.New("service is not available for purchase")
	ErrInvalidQuantity        = errors.New("quantity must be positive")
	ErrUnknownIntent          = errors.New("unknown mutation intent kind")
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
)
