package orders

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidState      = errors.New("invalid order state")
	ErrInvalidInput      = errors.New("invalid input")
	ErrRemoteUnavailable = errors.New("product directory unavailable")
	ErrRemoteRejected    = errors.New("product directory rejected request")

	// ErrDuplicateOrderNo is returned by a Store when order_no collides.
	ErrDuplicateOrderNo = errors.New("duplicate order number")
)
