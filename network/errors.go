package network

import (
	"errors"
	"fmt"
)

var (
	// ErrConnectionFailed indicates the client could not connect to the node.
	ErrConnectionFailed = errors.New("network: connection failed")

	// ErrAuthFailed indicates the node rejected the RPC credentials.
	ErrAuthFailed = errors.New("network: authentication failed")

	// ErrTxNotFound indicates the requested transaction or output does not exist.
	ErrTxNotFound = errors.New("network: transaction not found")

	// ErrBlockNotFound indicates an unknown block hash or height.
	ErrBlockNotFound = errors.New("network: block not found")

	// ErrBroadcastRejected indicates the node refused a submitted transaction.
	ErrBroadcastRejected = errors.New("network: broadcast rejected")

	// ErrInvalidResponse indicates the node returned a malformed or unexpected response.
	ErrInvalidResponse = errors.New("network: invalid response")

	// ErrNotConfigured indicates no RPC endpoint is known for the network.
	ErrNotConfigured = errors.New("network: rpc not configured")
)

// Node RPC error codes the client maps onto sentinels.
const (
	codeInvalidAddressOrKey = -5
	codeInvalidParameter    = -8
)

// RPCError is an error object returned by the node.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("network: rpc error %d: %s", e.Code, e.Message)
}
