package core

import "errors"

var (
	// ErrOrderNotFound indicates the order no longer exists on the venue.
	// Cancels hitting this are treated as already done.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderRejected indicates the venue refused the order outright.
	ErrOrderRejected = errors.New("order rejected")
	// ErrInsufficientBalance indicates the venue rejected the action due to
	// insufficient funds or allowance.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrRateLimited indicates the venue throttled the request.
	ErrRateLimited = errors.New("rate limited")
	// ErrTransient indicates a network or 5xx failure worth retrying on the
	// next scheduled cycle, never inline.
	ErrTransient = errors.New("transient venue error")
	// ErrNoPrice indicates the venue had no usable price for a token.
	ErrNoPrice = errors.New("no price available")
)
