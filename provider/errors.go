package provider

import "errors"

var (
	// ErrNoFundingAvailable indicates the pool cannot cover a fee or
	// funding request. It wraps the selector's shortfall error.
	ErrNoFundingAvailable = errors.New("provider: no funding available")

	// ErrInvalidConfig indicates missing dependencies or bad pool sizes.
	ErrInvalidConfig = errors.New("provider: invalid config")

	// ErrInvalidAmount indicates a zero funding request.
	ErrInvalidAmount = errors.New("provider: invalid amount")

	// ErrPoolFull indicates replenishment has nothing to create.
	ErrPoolFull = errors.New("provider: pool already full")
)
