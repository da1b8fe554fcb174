package fee

import (
	"errors"
	"fmt"

	"github.com/bsv-blockchain/go-sdk/script"
	"github.com/bsv-blockchain/go-sdk/transaction"
)

// ErrInsufficientFee indicates the surplus cannot pay the fee.
var ErrInsufficientFee = errors.New("fee: surplus does not cover fee")

// Settlement describes how a transaction's surplus was split.
type Settlement struct {
	Fee    uint64
	Change uint64
	// Vout is the index of the change output, or -1 when none was added.
	Vout int
}

// Settle splits surplus (inputs minus non-change outputs) into fee and a
// change output paying to changeScript. Change is added only when it is at
// least dust; otherwise the whole surplus becomes fee. The fee is priced
// again after the change output is added, since it enlarges t.
func Settle(t *transaction.Transaction, surplus uint64, est Estimator, dust uint64, changeScript []byte) (Settlement, error) {
	fee := est.Fee(t)
	if surplus < fee {
		return Settlement{}, fmt.Errorf("%w: surplus %d, fee %d", ErrInsufficientFee, surplus, fee)
	}
	if surplus-fee < dust || len(changeScript) == 0 {
		return Settlement{Fee: surplus, Vout: -1}, nil
	}

	t.AddOutput(&transaction.TransactionOutput{
		Satoshis:      surplus - fee,
		LockingScript: script.NewFromBytes(changeScript),
	})
	vout := len(t.Outputs) - 1

	withChange := est.Fee(t)
	if surplus < withChange || surplus-withChange < dust {
		t.Outputs = t.Outputs[:vout]
		return Settlement{Fee: surplus, Vout: -1}, nil
	}
	t.Outputs[vout].Satoshis = surplus - withChange
	return Settlement{Fee: withChange, Change: surplus - withChange, Vout: vout}, nil
}
