package txbuilder

import "errors"

var (
	// ErrInvalidAmount indicates a zero pay, issue or funding amount.
	ErrInvalidAmount = errors.New("txbuilder: invalid amount")

	// ErrInvalidSplit indicates a split count below one.
	ErrInvalidSplit = errors.New("txbuilder: invalid split")

	// ErrInvalidTokenType indicates an operation not allowed for the asset,
	// such as burning the default asset or issuing one NFT twice.
	ErrInvalidTokenType = errors.New("txbuilder: invalid token type")

	// ErrUnknownAuthorityScript indicates a reissue without a recorded
	// authority script.
	ErrUnknownAuthorityScript = errors.New("txbuilder: unknown authority script")

	// ErrMissingChangeAddress indicates a colored balance with nowhere to go.
	ErrMissingChangeAddress = errors.New("txbuilder: missing change address")

	// ErrOutputUnavailable indicates an input is already claimed elsewhere.
	ErrOutputUnavailable = errors.New("txbuilder: output unavailable")

	// ErrUnknownSigner indicates nobody configured can spend an input.
	ErrUnknownSigner = errors.New("txbuilder: no signer for input")

	// ErrBuilt indicates the builder was already consumed by Build.
	ErrBuilt = errors.New("txbuilder: already built")

	// ErrInvalidConfig indicates missing builder dependencies.
	ErrInvalidConfig = errors.New("txbuilder: invalid config")
)
