package network

import "context"

// MockLedger is a test double for Ledger. Each method calls the matching
// function field, which must be set before use.
type MockLedger struct {
	SubmitRawTransactionFn func(ctx context.Context, rawHex string) (string, error)
	GetRawTransactionFn    func(ctx context.Context, txid string) (string, error)
	GetTxStatusFn          func(ctx context.Context, txid string) (*TxStatus, error)
	GetBlockCountFn        func(ctx context.Context) (uint64, error)
	GetBlockHashFn         func(ctx context.Context, height uint64) (string, error)
	GetBlockFn             func(ctx context.Context, hash string) (*Block, error)
	ListUnspentFn          func(ctx context.Context, address string) ([]*Unspent, error)
}

var _ Ledger = (*MockLedger)(nil)

func (m *MockLedger) SubmitRawTransaction(ctx context.Context, rawHex string) (string, error) {
	return m.SubmitRawTransactionFn(ctx, rawHex)
}
func (m *MockLedger) GetRawTransaction(ctx context.Context, txid string) (string, error) {
	return m.GetRawTransactionFn(ctx, txid)
}
func (m *MockLedger) GetTxStatus(ctx context.Context, txid string) (*TxStatus, error) {
	return m.GetTxStatusFn(ctx, txid)
}
func (m *MockLedger) GetBlockCount(ctx context.Context) (uint64, error) {
	return m.GetBlockCountFn(ctx)
}
func (m *MockLedger) GetBlockHash(ctx context.Context, height uint64) (string, error) {
	return m.GetBlockHashFn(ctx, height)
}
func (m *MockLedger) GetBlock(ctx context.Context, hash string) (*Block, error) {
	return m.GetBlockFn(ctx, hash)
}
func (m *MockLedger) ListUnspent(ctx context.Context, address string) ([]*Unspent, error) {
	return m.ListUnspentFn(ctx, address)
}
