package network

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/bitfsorg/libtoken-go/log"
	"github.com/bitfsorg/libtoken-go/utxo"
)

// maxConcurrentCalls bounds parallel RPC calls made by the helpers below.
const maxConcurrentCalls = 4

// ImportUnspent asks the node for the unspent outputs of addresses and
// records them under walletID in one batch. It returns how many outputs were
// recorded. Nothing is written if any query fails.
func ImportUnspent(ctx context.Context, l Ledger, store utxo.Repository, walletID string, addresses ...string) (int, error) {
	found := make([][]*Unspent, len(addresses))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentCalls)
	for i, addr := range addresses {
		g.Go(func() error {
			us, err := l.ListUnspent(gctx, addr)
			if err != nil {
				return fmt.Errorf("network: list unspent %s: %w", addr, err)
			}
			found[i] = us
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	batch := &utxo.Batch{}
	for _, us := range found {
		for _, u := range us {
			out, err := u.Output(walletID)
			if err != nil {
				return 0, err
			}
			batch.Upserts = append(batch.Upserts, out)
		}
	}
	if err := store.Apply(batch); err != nil {
		return 0, fmt.Errorf("network: record unspent: %w", err)
	}
	log.Network.Info().
		Str("wallet", walletID).
		Int("addresses", len(addresses)).
		Int("outputs", len(batch.Upserts)).
		Msg("imported unspent outputs")
	return len(batch.Upserts), nil
}

// GetRawTransactions fetches several transactions concurrently. The result
// is in the order of txids.
func GetRawTransactions(ctx context.Context, l Ledger, txids ...string) ([]string, error) {
	raws := make([]string, len(txids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentCalls)
	for i, txid := range txids {
		g.Go(func() error {
			raw, err := l.GetRawTransaction(gctx, txid)
			if err != nil {
				return fmt.Errorf("network: get %s: %w", txid, err)
			}
			raws[i] = raw
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return raws, nil
}
