// Package network talks to the ledger node.
package network

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/bsv-blockchain/go-sdk/chainhash"

	"github.com/bitfsorg/libtoken-go/color"
	"github.com/bitfsorg/libtoken-go/utxo"
)

// Ledger is the node RPC surface the library uses. Submission is atomic:
// a transaction is either accepted whole or rejected.
type Ledger interface {
	// SubmitRawTransaction broadcasts a hex-encoded transaction and returns
	// its txid.
	SubmitRawTransaction(ctx context.Context, rawHex string) (string, error)

	// GetRawTransaction returns the hex encoding of txid.
	GetRawTransaction(ctx context.Context, txid string) (string, error)

	// GetTxStatus reports how deeply txid is confirmed.
	GetTxStatus(ctx context.Context, txid string) (*TxStatus, error)

	GetBlockCount(ctx context.Context) (uint64, error)
	GetBlockHash(ctx context.Context, height uint64) (string, error)
	GetBlock(ctx context.Context, hash string) (*Block, error)

	// ListUnspent returns the node's unspent outputs paying address.
	ListUnspent(ctx context.Context, address string) ([]*Unspent, error)
}

// Unspent is an unspent output as the node reports it.
type Unspent struct {
	TxID   string `json:"txid"`
	Vout   uint32 `json:"vout"`
	Amount uint64 `json:"amount"`
	// ColorID is the hex color id, empty for the default asset.
	ColorID       string `json:"color_id,omitempty"`
	ScriptPubKey  string `json:"script_pubkey"`
	Address       string `json:"address"`
	Confirmations int64  `json:"confirmations"`
}

// Output converts u into a repository row owned by walletID. The color is
// taken from the locking script.
func (u *Unspent) Output(walletID string) (*utxo.Output, error) {
	txid, err := chainhash.NewHashFromHex(u.TxID)
	if err != nil {
		return nil, fmt.Errorf("%w: txid %q: %w", ErrInvalidResponse, u.TxID, err)
	}
	lock, err := hex.DecodeString(u.ScriptPubKey)
	if err != nil {
		return nil, fmt.Errorf("%w: script of %s:%d: %w", ErrInvalidResponse, u.TxID, u.Vout, err)
	}
	id := color.Of(lock)
	if u.ColorID != "" {
		reported, err := color.ParseID(u.ColorID)
		if err != nil || reported != id {
			return nil, fmt.Errorf("%w: %s:%d reported color %s, script carries %s", ErrInvalidResponse, u.TxID, u.Vout, u.ColorID, id)
		}
	}
	return &utxo.Output{
		TxID:      *txid,
		Index:     u.Vout,
		Value:     u.Amount,
		Script:    lock,
		ColorID:   id,
		Finalized: u.Confirmations > 0,
		WalletID:  walletID,
	}, nil
}

// TxStatus is the confirmation state of a transaction.
type TxStatus struct {
	Confirmed     bool   `json:"confirmed"`
	Confirmations int64  `json:"confirmations"`
	BlockHash     string `json:"block_hash"`
}

// Block is the verbose form of a block, with its transactions as txids.
type Block struct {
	Hash          string   `json:"hash"`
	Height        uint64   `json:"height"`
	Confirmations int64    `json:"confirmations"`
	PreviousHash  string   `json:"previousblockhash"`
	Time          int64    `json:"time"`
	TxIDs         []string `json:"tx"`
}
