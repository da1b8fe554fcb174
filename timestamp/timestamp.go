// Package timestamp records the digest of arbitrary data on chain.
//
// Three variants share one Builder interface:
//
//	Simple             OP_RETURN <prefix> <sha256(data)>
//	Trackable          the OP_RETURN plus a pay-to-contract output committing
//	                   to the digest, which later updates can spend
//	UpdatingTrackable  a Trackable record spending the previous one
package timestamp

import (
	"crypto/sha256"
	"fmt"

	"github.com/bitfsorg/libtoken-go/log"
	"github.com/bitfsorg/libtoken-go/tx"
	"github.com/bitfsorg/libtoken-go/txbuilder"
	"github.com/bitfsorg/libtoken-go/utxo"
)

// Kind selects a timestamp variant.
type Kind int

const (
	Simple Kind = iota
	Trackable
	UpdatingTrackable
)

func (k Kind) String() string {
	switch k {
	case Simple:
		return "simple"
	case Trackable:
		return "trackable"
	case UpdatingTrackable:
		return "updating_trackable"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind parses the String form of a Kind.
func ParseKind(s string) (Kind, error) {
	for _, k := range []Kind{Simple, Trackable, UpdatingTrackable} {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// MaxPrefixLen bounds the prefix push.
const MaxPrefixLen = 64

// Builder builds one timestamp transaction.
type Builder interface {
	SetData(prefix, data []byte) error
	SetInputs(outs ...*utxo.Output) error
	Build() (*txbuilder.Result, error)
}

// New returns the builder for kind. Transactions are assembled by a
// txbuilder configured with cfg; the trackable value is cfg.DustLimit.
func New(kind Kind, cfg txbuilder.Config) (Builder, error) {
	tb, err := txbuilder.New(cfg)
	if err != nil {
		return nil, err
	}
	base := record{tb: tb, dust: cfg.DustLimit, kind: kind}
	if base.dust == 0 {
		base.dust = tx.DustLimit
	}
	switch kind {
	case Simple:
		return &simple{record: base}, nil
	case Trackable:
		return &trackable{record: base, sender: cfg.Sender}, nil
	case UpdatingTrackable:
		return &updating{trackable: trackable{record: base, sender: cfg.Sender}}, nil
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownKind, int(kind))
}

// Digest returns sha256(data), the value recorded on chain.
func Digest(data []byte) []byte {
	d := sha256.Sum256(data)
	return d[:]
}

// record holds what every variant shares.
type record struct {
	tb     *txbuilder.Builder
	kind   Kind
	dust   uint64
	prefix []byte
	digest []byte
}

func (r *record) SetData(prefix, data []byte) error {
	if len(data) == 0 {
		return ErrEmptyData
	}
	if len(prefix) > MaxPrefixLen {
		return fmt.Errorf("%w: %d bytes", ErrPrefixTooLong, len(prefix))
	}
	r.prefix = prefix
	r.digest = Digest(data)
	return nil
}

func (r *record) SetInputs(outs ...*utxo.Output) error {
	for _, o := range outs {
		if err := r.tb.AddInput(o); err != nil {
			return err
		}
	}
	return nil
}

func (r *record) addData() error {
	if r.digest == nil {
		return ErrEmptyData
	}
	if len(r.prefix) == 0 {
		return r.tb.AddData(r.digest)
	}
	return r.tb.AddData(r.prefix, r.digest)
}

func (r *record) build() (*txbuilder.Result, error) {
	res, err := r.tb.Build()
	if err != nil {
		return nil, err
	}
	log.Builder.Info().
		Str("kind", r.kind.String()).
		Str("txid", res.Tx.TxID().String()).
		Hex("digest", r.digest).
		Msg("built timestamp")
	return res, nil
}

type simple struct {
	record
}

func (s *simple) Build() (*txbuilder.Result, error) {
	if err := s.addData(); err != nil {
		return nil, err
	}
	return s.build()
}

type trackable struct {
	record
	sender txbuilder.Signer
}

func (t *trackable) Build() (*txbuilder.Result, error) {
	if err := t.addData(); err != nil {
		return nil, err
	}
	if err := t.addContract(); err != nil {
		return nil, err
	}
	return t.build()
}

func (t *trackable) addContract() error {
	base, err := t.sender.PaymentBase()
	if err != nil {
		return fmt.Errorf("timestamp: payment base: %w", err)
	}
	return t.tb.PayToContract(base, t.digest, t.dust)
}

// updating spends the previous trackable output.
type updating struct {
	trackable
	prev *utxo.Output
}

func (u *updating) SetInputs(outs ...*utxo.Output) error {
	if len(outs) != 1 || len(outs[0].Metadata) == 0 {
		return fmt.Errorf("%w: need exactly one trackable output", ErrInvalidPrevious)
	}
	if err := u.record.SetInputs(outs[0]); err != nil {
		return err
	}
	u.prev = outs[0]
	return nil
}

func (u *updating) Build() (*txbuilder.Result, error) {
	if u.prev == nil {
		return nil, fmt.Errorf("%w: no previous output set", ErrInvalidPrevious)
	}
	return u.trackable.Build()
}
