package market

import "errors"

var (
	ErrMissingSecurity     = errors.New("Security ID is required")
	ErrInvalidAmount       = errors.New("deltaScaled must be a signed scaled integer")
	ErrSecurityNotTradable = errors.New("Security is not tradable; refresh the board and retry")
	ErrContention          = errors.New("Market is busy, please retry")
	ErrMarketDisabled      = errors.New("Market is not enabled for this deployment")

	// errVersionConflict is internal: retried, never surfaced directly.
	errVersionConflict = errors.New("market state version conflict")
)
