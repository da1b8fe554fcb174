package utxo

import "errors"

var (
	// ErrInsufficientFunds indicates the default asset could not cover the
	// requested amount.
	ErrInsufficientFunds = errors.New("utxo: insufficient funds")

	// ErrInsufficientTokens indicates a colored asset could not cover the
	// requested amount.
	ErrInsufficientTokens = errors.New("utxo: insufficient tokens")

	// ErrNotFound indicates the outpoint is not in the repository.
	ErrNotFound = errors.New("utxo: output not found")

	// ErrInvalidOutput indicates a malformed output record.
	ErrInvalidOutput = errors.New("utxo: invalid output")

	// ErrValueChanged indicates an upsert tried to change a stored output's
	// value or script.
	ErrValueChanged = errors.New("utxo: stored output is immutable")
)

// insufficient returns the shortfall error matching the asset kind.
func insufficient(colorDefault bool) error {
	if colorDefault {
		return ErrInsufficientFunds
	}
	return ErrInsufficientTokens
}
