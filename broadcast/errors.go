package broadcast

import "errors"

var (
	// ErrFailedToBroadcast wraps any submission failure. Claims of the
	// attempt have been released when it is returned.
	ErrFailedToBroadcast = errors.New("broadcast: failed to broadcast")

	// ErrPersist indicates the transaction was accepted but its outputs
	// could not be recorded.
	ErrPersist = errors.New("broadcast: persist outputs")
)
