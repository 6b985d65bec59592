package domain

import "errors"

var (
	ErrAccessDenied          = errors.New("access denied")
	ErrNotFound              = errors.New("not found")
	ErrZeroAmount            = errors.New("amount must be greater than zero")
	ErrInvalidDestination    = errors.New("destination is not registered")
	ErrDuplicateDestination  = errors.New("destination is already registered")
	ErrInvalidExpiry         = errors.New("expiry must be in the future")
	ErrSlippageExceeded      = errors.New("swap output below minimum")
	ErrInsufficientRemaining = errors.New("amount exceeds remaining balance")
	ErrExpired               = errors.New("position has expired")
	ErrNotYetExpired         = errors.New("position has not expired yet")
	ErrTransferFailed        = errors.New("local transfer failed")
	ErrBridgeFailed          = errors.New("bridge delivery failed")
	ErrVenueNotConfigured    = errors.New("swap venue is not configured")
	ErrLockHeld              = errors.New("lock already held")
)

// validationErrors are rejected before any external call or ledger mutation.
var validationErrors = []error{
	ErrAccessDenied,
	ErrNotFound,
	ErrZeroAmount,
	ErrInvalidDestination,
	ErrDuplicateDestination,
	ErrInvalidExpiry,
	ErrInsufficientRemaining,
	ErrExpired,
	ErrNotYetExpired,
	ErrVenueNotConfigured,
}

// IsValidation reports whether err is a pre-mutation rejection, i.e. the
// flow aborted atomically with no state change committed.
func IsValidation(err error) bool {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsDelivery reports whether err occurred on the delivery leg of a flow,
// after the ledger mutation was already committed. These require
// out-of-band remediation rather than a retry of the whole flow.
func IsDelivery(err error) bool {
	return errors.Is(err, ErrTransferFailed) || errors.Is(err, ErrBridgeFailed)
}
