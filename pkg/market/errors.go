package market

import "errors"

// Settlement error taxonomy. Every failure in the settlement path
// rolls back the whole match attempt; these classify why.
var (
	// ErrTermExpired: the order's expiration time has passed.
	// Recoverable by resubmitting a fresh order.
	ErrTermExpired = errors.New("order term expired")

	// ErrNotYetListed: the order's listing time is in the future.
	ErrNotYetListed = errors.New("order not yet listed")

	// ErrUnauthorized: signature invalid, caller not maker, or a
	// proxy command from an ungranted address.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrPredicateRejected: call payload inconsistent with the
	// order's terms, or the two legs are not a recognized pairing.
	ErrPredicateRejected = errors.New("predicate rejected call")

	// ErrFillExhausted: the order's fill capacity is already
	// consumed for the requested amount.
	ErrFillExhausted = errors.New("order fill exhausted")

	// ErrExecutionFailed: an underlying asset transfer failed.
	ErrExecutionFailed = errors.New("execution failed")

	// ErrConfigurationInvalid: an admin setter was given a value
	// that would leave the system in an inconsistent state.
	ErrConfigurationInvalid = errors.New("configuration invalid")
)
