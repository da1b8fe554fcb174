package color

import "errors"

var (
	// ErrInvalidID indicates a malformed color identifier encoding.
	ErrInvalidID = errors.New("color: invalid color identifier")

	// ErrUnsupportedTokenType indicates an identifier type byte this library
	// does not handle.
	ErrUnsupportedTokenType = errors.New("color: unsupported token type")

	// ErrNotColored indicates a script without a color prefix.
	ErrNotColored = errors.New("color: script is not colored")

	// ErrUnknownAuthority indicates no authority script is registered for a
	// reissuable identifier.
	ErrUnknownAuthority = errors.New("color: unknown authority script")
)
