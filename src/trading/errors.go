package trading

import "errors"

// Every rejection the engine can produce is a machine-distinguishable
// sentinel. Validation and not-found errors are raised before any lock is
// taken; business-rule violations are detected after acquiring the lock and
// roll the transaction back with zero side effects.
var (
	ErrInvalidSide          = errors.New("invalid side. allowed: buy,sell")
	ErrMissingField         = errors.New("missing field")
	ErrInvalidQuantity      = errors.New("quantity must be a positive number")
	ErrInvalidPrice         = errors.New("price must be a positive number")
	ErrInvalidAmount        = errors.New("amount must be a positive number")
	ErrInvalidDirection     = errors.New("invalid direction. allowed: deposit,withdraw")
	ErrAssetNotFound        = errors.New("asset not found")
	ErrNoPriceAvailable     = errors.New("no price to execute against")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrInsufficientHoldings = errors.New("insufficient holdings")
)
