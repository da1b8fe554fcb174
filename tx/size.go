package tx

import (
	"github.com/bsv-blockchain/go-sdk/transaction"
)

// EstimateFee estimates the transaction fee for a given size and fee rate
// in sat/KB. Returns ceil(txSizeBytes * feeRate / 1000); a zero rate is
// free.
func EstimateFee(txSizeBytes int, feeRate uint64) uint64 {
	fee := uint64(txSizeBytes) * feeRate
	return (fee + 999) / 1000
}

// ClampDust raises v to the dust limit.
func ClampDust(v, dust uint64) uint64 {
	if v < dust {
		return dust
	}
	return v
}

// SumOutputs returns the total satoshis carried by tx's outputs.
func SumOutputs(t *transaction.Transaction) uint64 {
	var sum uint64
	for _, out := range t.Outputs {
		sum += out.Satoshis
	}
	return sum
}
