package utxo

import (
	"bytes"
	"sort"

	"github.com/bitfsorg/libtoken-go/color"
)

// Repository is the persistence contract of the engine. Claim must be an
// atomic claim-if-unclaimed on a single record and must never block on a
// record held by someone else.
type Repository interface {
	// ListOutputs returns the wallet's outputs matching f, ordered by
	// outpoint.
	ListOutputs(walletID string, f Filter) ([]*Output, error)

	// Get returns the stored output or ErrNotFound.
	Get(op Outpoint) (*Output, error)

	// Claim reserves op for owner. It reports false when the output is
	// already claimed or no longer exists.
	Claim(op Outpoint, owner string) (bool, error)

	// Release returns op to the available set if owner still holds it.
	// Releasing an output that is available, missing or claimed by someone
	// else is a no-op.
	Release(op Outpoint, owner string) error

	// Delete removes an output once its spend is confirmed.
	Delete(op Outpoint) error

	// Upsert inserts an output or refreshes a stored one's metadata.
	Upsert(out *Output) error

	// Apply commits a batch in one local transaction.
	Apply(b *Batch) error
}

// Filter narrows ListOutputs.
type Filter struct {
	// ColorID restricts the asset; nil matches every asset.
	ColorID *color.ID

	OnlyFinalized bool

	// Label restricts to outputs with this label when non-empty.
	Label string

	// IncludeClaimed also returns reserved outputs.
	IncludeClaimed bool
}

// ByColor returns a filter matching one asset.
func ByColor(id color.ID) Filter {
	return Filter{ColorID: &id}
}

// Match reports whether out passes the filter.
func (f Filter) Match(out *Output) bool {
	if f.ColorID != nil && out.ColorID != *f.ColorID {
		return false
	}
	if f.OnlyFinalized && !out.Finalized {
		return false
	}
	if f.Label != "" && out.Label != f.Label {
		return false
	}
	if !f.IncludeClaimed && out.State == Claimed {
		return false
	}
	return true
}

// Batch groups the writes that record a broadcast or a confirmation.
type Batch struct {
	Upserts  []*Output
	Deletes  []Outpoint
	Finalize []Outpoint
}

// Empty reports whether the batch has no writes.
func (b *Batch) Empty() bool {
	return b == nil || len(b.Upserts)+len(b.Deletes)+len(b.Finalize) == 0
}

// merge applies an upsert onto a stored record. Value and script never
// change once persisted; reservation state is kept.
func merge(stored, in *Output) (*Output, error) {
	if stored == nil {
		c := in.Clone()
		c.State = Available
		c.ClaimedBy = ""
		return c, nil
	}
	if stored.Value != in.Value || !bytes.Equal(stored.Script, in.Script) {
		return nil, ErrValueChanged
	}
	c := in.Clone()
	c.State = stored.State
	c.ClaimedBy = stored.ClaimedBy
	c.Finalized = stored.Finalized || in.Finalized
	return c, nil
}

func sortOutputs(outs []*Output) {
	sort.Slice(outs, func(i, j int) bool {
		return bytes.Compare(outs[i].Outpoint().Key(), outs[j].Outpoint().Key()) < 0
	})
}
