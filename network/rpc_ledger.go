package network

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
)

var _ Ledger = (*RPCClient)(nil)

// nativeToken is the token field the node reports for the default asset.
const nativeToken = "TPC"

// coinToSat converts a coin amount (as returned by the node) to the
// smallest unit.
func coinToSat(coins float64) uint64 {
	return uint64(math.Round(coins * 1e8))
}

// listUnspentResult maps the node's listunspent entries. Colored outputs
// carry their color id in token and an integer amount.
type listUnspentResult struct {
	TxID          string  `json:"txid"`
	Vout          uint32  `json:"vout"`
	Token         string  `json:"token"`
	Amount        float64 `json:"amount"`
	ScriptPubKey  string  `json:"scriptPubKey"`
	Address       string  `json:"address"`
	Confirmations int64   `json:"confirmations"`
}

// ListUnspent calls `listunspent 0 9999999 ["address"]`.
func (c *RPCClient) ListUnspent(ctx context.Context, address string) ([]*Unspent, error) {
	params := []any{0, 9999999, []string{address}}
	var results []listUnspentResult
	if err := c.Call(ctx, "listunspent", params, &results); err != nil {
		return nil, err
	}

	out := make([]*Unspent, len(results))
	for i, r := range results {
		u := &Unspent{
			TxID:          r.TxID,
			Vout:          r.Vout,
			ScriptPubKey:  r.ScriptPubKey,
			Address:       r.Address,
			Confirmations: r.Confirmations,
		}
		if r.Token == "" || r.Token == nativeToken {
			u.Amount = coinToSat(r.Amount)
		} else {
			u.ColorID = r.Token
			u.Amount = uint64(r.Amount)
		}
		out[i] = u
	}
	return out, nil
}

// SubmitRawTransaction calls `sendrawtransaction "hex"`. Every node-side
// refusal wraps ErrBroadcastRejected.
func (c *RPCClient) SubmitRawTransaction(ctx context.Context, rawHex string) (string, error) {
	if _, err := hex.DecodeString(rawHex); err != nil {
		return "", fmt.Errorf("%w: not hex: %w", ErrBroadcastRejected, err)
	}
	var txid string
	if err := c.Call(ctx, "sendrawtransaction", []any{rawHex}, &txid); err != nil {
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) {
			return "", fmt.Errorf("%w: %w", ErrBroadcastRejected, err)
		}
		return "", err
	}
	return txid, nil
}

// GetRawTransaction calls `getrawtransaction "txid" false`.
func (c *RPCClient) GetRawTransaction(ctx context.Context, txid string) (string, error) {
	var rawHex string
	if err := c.Call(ctx, "getrawtransaction", []any{txid, false}, &rawHex); err != nil {
		return "", notFound(err, ErrTxNotFound)
	}
	if _, err := hex.DecodeString(rawHex); err != nil {
		return "", fmt.Errorf("%w: invalid tx hex: %w", ErrInvalidResponse, err)
	}
	return rawHex, nil
}

type verboseTxResult struct {
	Confirmations int64  `json:"confirmations"`
	BlockHash     string `json:"blockhash"`
}

// GetTxStatus calls `getrawtransaction "txid" true`.
func (c *RPCClient) GetTxStatus(ctx context.Context, txid string) (*TxStatus, error) {
	var result verboseTxResult
	if err := c.Call(ctx, "getrawtransaction", []any{txid, true}, &result); err != nil {
		return nil, notFound(err, ErrTxNotFound)
	}
	return &TxStatus{
		Confirmed:     result.Confirmations > 0,
		Confirmations: result.Confirmations,
		BlockHash:     result.BlockHash,
	}, nil
}

// GetBlockCount calls `getblockcount`.
func (c *RPCClient) GetBlockCount(ctx context.Context) (uint64, error) {
	var height float64
	if err := c.Call(ctx, "getblockcount", nil, &height); err != nil {
		return 0, err
	}
	if height < 0 {
		return 0, fmt.Errorf("%w: negative block count %v", ErrInvalidResponse, height)
	}
	return uint64(height), nil
}

// GetBlockHash calls `getblockhash height`.
func (c *RPCClient) GetBlockHash(ctx context.Context, height uint64) (string, error) {
	var hash string
	if err := c.Call(ctx, "getblockhash", []any{height}, &hash); err != nil {
		return "", notFound(err, ErrBlockNotFound)
	}
	return hash, nil
}

// GetBlock calls `getblock "hash" 1`.
func (c *RPCClient) GetBlock(ctx context.Context, hash string) (*Block, error) {
	var b Block
	if err := c.Call(ctx, "getblock", []any{hash, 1}, &b); err != nil {
		return nil, notFound(err, ErrBlockNotFound)
	}
	if b.Hash == "" {
		return nil, fmt.Errorf("%w: block without hash", ErrInvalidResponse)
	}
	return &b, nil
}

// notFound wraps sentinel around node errors meaning "no such object".
func notFound(err, sentinel error) error {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		switch rpcErr.Code {
		case codeInvalidAddressOrKey, codeInvalidParameter:
			return fmt.Errorf("%w: %w", sentinel, err)
		}
	}
	return err
}
