package wallet

import (
	"bytes"
	"fmt"
	"sync"

	bip32 "github.com/bsv-blockchain/go-sdk/compat/bip32"
	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	"github.com/bsv-blockchain/go-sdk/script"
	"github.com/bsv-blockchain/go-sdk/transaction"
	sighash "github.com/bsv-blockchain/go-sdk/transaction/sighash"

	"github.com/bitfsorg/libtoken-go/color"
	"github.com/bitfsorg/libtoken-go/log"
	"github.com/bitfsorg/libtoken-go/p2c"
	"github.com/bitfsorg/libtoken-go/tx"
	"github.com/bitfsorg/libtoken-go/utxo"
)

// Account holds the keys of one wallet id. Addresses are handed out in
// derivation order; every key handed out is remembered so that outputs
// paying it can be recognised and spent.
type Account struct {
	id      string
	index   uint32
	mainnet bool
	key     *bip32.ExtendedKey

	mu   sync.Mutex
	next [2]uint32
	keys map[string]*ec.PrivateKey // pubkey hash -> key
	base *KeyPair
}

// Account opens account index of the wallet under walletID.
func (w *Wallet) Account(index uint32, walletID string) (*Account, error) {
	if walletID == "" {
		return nil, fmt.Errorf("%w: empty wallet id", ErrDerivationFailed)
	}
	key, err := w.deriveAccount(index)
	if err != nil {
		return nil, err
	}
	return &Account{
		id:      walletID,
		index:   index,
		mainnet: w.network.Mainnet(),
		key:     key,
		keys:    make(map[string]*ec.PrivateKey),
	}, nil
}

// WalletID returns the id outputs of this account are stored under.
func (a *Account) WalletID() string { return a.id }

// FreshReceiveAddress derives the next external address.
func (a *Account) FreshReceiveAddress() (*script.Address, error) {
	return a.fresh(ExternalChain)
}

// FreshChangeAddress derives the next internal address.
func (a *Account) FreshChangeAddress() (*script.Address, error) {
	return a.fresh(InternalChain)
}

func (a *Account) fresh(chain uint32) (*script.Address, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	kp, err := a.derive(chain, a.next[chain])
	if err != nil {
		return nil, err
	}
	a.next[chain]++
	log.Wallet.Debug().Str("wallet", a.id).Str("path", kp.Path).Msg("derived address")
	return script.NewAddressFromPublicKey(kp.PublicKey, a.mainnet)
}

// derive registers and returns key chain/index. Caller holds mu.
func (a *Account) derive(chain, index uint32) (*KeyPair, error) {
	if index > MaxIndex {
		return nil, fmt.Errorf("%w: index %d", ErrIndexOutOfRange, index)
	}
	kp, err := deriveLeaf(a.key, a.index, chain, index)
	if err != nil {
		return nil, err
	}
	addr, err := script.NewAddressFromPublicKey(kp.PublicKey, a.mainnet)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDerivationFailed, err)
	}
	a.keys[string(addr.PublicKeyHash)] = kp.PrivateKey
	return kp, nil
}

// Lookahead registers the first n keys of the receive and change chains so
// outputs paid to them in earlier sessions are recognised.
func (a *Account) Lookahead(n uint32) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, chain := range []uint32{ExternalChain, InternalChain} {
		for i := uint32(0); i < n; i++ {
			if _, err := a.derive(chain, i); err != nil {
				return err
			}
		}
	}
	return nil
}

// privateKeyFor finds the key behind a P2PKH script, colored or not.
func (a *Account) privateKeyFor(lockingScript []byte) (*ec.PrivateKey, bool) {
	_, inner := color.Split(lockingScript)
	h, err := tx.PubKeyHashFromP2PKH(inner)
	if err != nil {
		return nil, false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	k, ok := a.keys[string(h)]
	return k, ok
}

// Owns reports whether lockingScript pays one of the account's keys.
func (a *Account) Owns(lockingScript []byte) bool {
	_, ok := a.privateKeyFor(lockingScript)
	return ok
}

// SignInput signs input index of t spending prev with SIGHASH_ALL|FORKID.
func (a *Account) SignInput(t *transaction.Transaction, index int, prev *utxo.Output) error {
	priv, ok := a.privateKeyFor(prev.Script)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKey, prev.Outpoint())
	}
	return signP2PKH(t, index, prev, priv)
}

// PaymentBase returns the account's pay-to-contract base key.
func (a *Account) PaymentBase() (*ec.PublicKey, error) {
	kp, err := a.contractBase()
	if err != nil {
		return nil, err
	}
	return kp.PublicKey, nil
}

func (a *Account) contractBase() (*KeyPair, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.base == nil {
		kp, err := deriveLeaf(a.key, a.index, ContractChain, 0)
		if err != nil {
			return nil, err
		}
		a.base = kp
	}
	return a.base, nil
}

// DerivePayToContractKey returns the private key committing to metadata.
func (a *Account) DerivePayToContractKey(metadata []byte) (*ec.PrivateKey, error) {
	base, err := a.contractBase()
	if err != nil {
		return nil, err
	}
	return p2c.PrivateKey(base.PrivateKey, metadata)
}

// OwnsContract reports whether lockingScript is the account's
// pay-to-contract script for metadata.
func (a *Account) OwnsContract(lockingScript, metadata []byte) bool {
	if len(metadata) == 0 {
		return false
	}
	base, err := a.PaymentBase()
	if err != nil {
		return false
	}
	want, err := p2c.LockingScript(base, metadata)
	if err != nil {
		return false
	}
	_, inner := color.Split(lockingScript)
	return bytes.Equal(inner, want)
}

// SignPayToContractInput signs an input spending a pay-to-contract output
// whose commitment is prev.Metadata.
func (a *Account) SignPayToContractInput(t *transaction.Transaction, index int, prev *utxo.Output) error {
	if len(prev.Metadata) == 0 {
		return fmt.Errorf("%w: %s", ErrNoMetadata, prev.Outpoint())
	}
	priv, err := a.DerivePayToContractKey(prev.Metadata)
	if err != nil {
		return err
	}
	return signP2PKH(t, index, prev, priv)
}

// signP2PKH pushes <sig> <pubkey> for input index. The full previous
// locking script, color prefix included, is the script code.
func signP2PKH(t *transaction.Transaction, index int, prev *utxo.Output, priv *ec.PrivateKey) error {
	if index < 0 || index >= len(t.Inputs) {
		return fmt.Errorf("wallet: input %d out of range", index)
	}
	t.Inputs[index].SetSourceTxOutput(prev.TxOutput())

	hash, err := t.CalcInputSignatureHash(uint32(index), sighash.AllForkID)
	if err != nil {
		return fmt.Errorf("wallet: sighash input %d: %w", index, err)
	}
	sig, err := priv.Sign(hash)
	if err != nil {
		return fmt.Errorf("wallet: sign input %d: %w", index, err)
	}

	unlock := &script.Script{}
	if err := unlock.AppendPushData(append(sig.Serialize(), byte(sighash.AllForkID))); err != nil {
		return fmt.Errorf("wallet: push signature: %w", err)
	}
	if err := unlock.AppendPushData(priv.PubKey().Compressed()); err != nil {
		return fmt.Errorf("wallet: push public key: %w", err)
	}
	t.Inputs[index].UnlockingScript = unlock
	return nil
}
