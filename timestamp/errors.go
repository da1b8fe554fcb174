package timestamp

import "errors"

var (
	// ErrEmptyData indicates Build without data, or SetData with none.
	ErrEmptyData = errors.New("timestamp: empty data")

	// ErrPrefixTooLong indicates a prefix over MaxPrefixLen bytes.
	ErrPrefixTooLong = errors.New("timestamp: prefix too long")

	// ErrUnknownKind indicates an unsupported variant.
	ErrUnknownKind = errors.New("timestamp: unknown kind")

	// ErrInvalidPrevious indicates an update without exactly one previous
	// trackable output.
	ErrInvalidPrevious = errors.New("timestamp: invalid previous output")
)
