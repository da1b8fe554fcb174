package utxo

import (
	"fmt"
	"math/rand/v2"

	"github.com/google/uuid"

	"github.com/bitfsorg/libtoken-go/color"
	"github.com/bitfsorg/libtoken-go/log"
)

// Options tune a selection.
type Options struct {
	OnlyFinalized bool
	Label         string

	// Shuffle randomizes candidate order to avoid always spending the same
	// addresses first.
	Shuffle bool

	// Excludes are never selected.
	Excludes []Outpoint

	// Predicate, when set, must accept a candidate for it to be considered.
	Predicate func(*Output) bool

	// Owner tags the claims. A fresh id is generated when empty.
	Owner string
}

// Selection is the outcome of a successful Select.
type Selection struct {
	Owner   string
	Sum     uint64
	Outputs []*Output
}

// Outpoints returns the identities of the selected outputs.
func (s *Selection) Outpoints() []Outpoint {
	ops := make([]Outpoint, len(s.Outputs))
	for i, o := range s.Outputs {
		ops[i] = o.Outpoint()
	}
	return ops
}

// Selector picks and reserves outputs from a Repository.
type Selector struct {
	store Repository
}

// NewSelector creates a selector over store.
func NewSelector(store Repository) *Selector {
	return &Selector{store: store}
}

// Store returns the underlying repository.
func (s *Selector) Store() Repository { return s.store }

// Select claims outputs of walletID carrying colorID until their sum reaches
// amount. An amount of 0 claims every matching output.
//
// Candidates are claimed one at a time with a non-blocking claim; outputs
// already held by a concurrent selection are skipped. If the candidates run
// out first, every claim made by this call is released and
// ErrInsufficientFunds (default asset) or ErrInsufficientTokens is
// returned.
func (s *Selector) Select(walletID string, colorID color.ID, amount uint64, opts Options) (*Selection, error) {
	owner := opts.Owner
	if owner == "" {
		owner = uuid.NewString()
	}

	f := ByColor(colorID)
	f.OnlyFinalized = opts.OnlyFinalized
	f.Label = opts.Label

	candidates, err := s.store.ListOutputs(walletID, f)
	if err != nil {
		return nil, fmt.Errorf("utxo: list candidates: %w", err)
	}
	candidates = s.filter(candidates, opts)
	if opts.Shuffle {
		rand.Shuffle(len(candidates), func(i, j int) {
			candidates[i], candidates[j] = candidates[j], candidates[i]
		})
	}

	sel := &Selection{Owner: owner}
	skipped := 0
	for _, c := range candidates {
		if amount > 0 && sel.Sum >= amount {
			break
		}
		ok, err := s.store.Claim(c.Outpoint(), owner)
		if err != nil {
			s.release(sel.Outputs)
			return nil, fmt.Errorf("utxo: claim %s: %w", c.Outpoint(), err)
		}
		if !ok {
			skipped++
			continue
		}
		c.State = Claimed
		c.ClaimedBy = owner
		sel.Outputs = append(sel.Outputs, c)
		sel.Sum += c.Value
	}

	if amount > 0 && sel.Sum < amount {
		log.Selector.Warn().
			Str("wallet", walletID).
			Str("color", colorID.String()).
			Uint64("need", amount).
			Uint64("have", sel.Sum).
			Int("released", len(sel.Outputs)).
			Int("skipped", skipped).
			Msg("selection exhausted candidates")
		s.release(sel.Outputs)
		return nil, fmt.Errorf("%w: need %d, found %d of %s",
			insufficient(colorID.IsDefault()), amount, sel.Sum, colorID)
	}

	log.Selector.Debug().
		Str("wallet", walletID).
		Str("owner", owner).
		Int("claimed", len(sel.Outputs)).
		Int("skipped", skipped).
		Uint64("sum", sel.Sum).
		Msg("selection claimed outputs")
	return sel, nil
}

// Release returns outs to the available set. Each output is released under
// its ClaimedBy owner, so releasing the same outputs twice never frees a
// claim taken by someone else in between.
func (s *Selector) Release(outs ...*Output) error {
	var firstErr error
	for _, o := range outs {
		if o.State != Claimed {
			continue
		}
		if err := s.store.Release(o.Outpoint(), o.ClaimedBy); err != nil && firstErr == nil {
			firstErr = err
		}
		o.State = Available
		o.ClaimedBy = ""
	}
	return firstErr
}

func (s *Selector) release(outs []*Output) {
	if err := s.Release(outs...); err != nil {
		log.Selector.Error().Err(err).Int("outputs", len(outs)).Msg("release after failed selection")
	}
}

func (s *Selector) filter(candidates []*Output, opts Options) []*Output {
	if len(opts.Excludes) == 0 && opts.Predicate == nil {
		return candidates
	}
	excluded := make(map[Outpoint]struct{}, len(opts.Excludes))
	for _, op := range opts.Excludes {
		excluded[op] = struct{}{}
	}
	kept := candidates[:0]
	for _, c := range candidates {
		if _, skip := excluded[c.Outpoint()]; skip {
			continue
		}
		if opts.Predicate != nil && !opts.Predicate(c) {
			continue
		}
		kept = append(kept, c)
	}
	return kept
}
