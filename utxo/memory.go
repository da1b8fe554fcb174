package utxo

import (
	"fmt"
	"sync"
)

// MemoryStore is an in-process Repository.
type MemoryStore struct {
	mu      sync.Mutex
	outputs map[Outpoint]*Output
}

var _ Repository = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{outputs: make(map[Outpoint]*Output)}
}

// ListOutputs implements Repository.
func (s *MemoryStore) ListOutputs(walletID string, f Filter) ([]*Output, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var outs []*Output
	for _, o := range s.outputs {
		if o.WalletID == walletID && f.Match(o) {
			outs = append(outs, o.Clone())
		}
	}
	sortOutputs(outs)
	return outs, nil
}

// Get implements Repository.
func (s *MemoryStore) Get(op Outpoint) (*Output, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.outputs[op]
	if !ok {
		return nil, ErrNotFound
	}
	return o.Clone(), nil
}

// Claim implements Repository.
func (s *MemoryStore) Claim(op Outpoint, owner string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.outputs[op]
	if !ok || o.State == Claimed {
		return false, nil
	}
	o.State = Claimed
	o.ClaimedBy = owner
	return true, nil
}

// Release implements Repository.
func (s *MemoryStore) Release(op Outpoint, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if o, ok := s.outputs[op]; ok && o.heldBy(owner) {
		o.State = Available
		o.ClaimedBy = ""
	}
	return nil
}

// Delete implements Repository.
func (s *MemoryStore) Delete(op Outpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.outputs, op)
	return nil
}

// Upsert implements Repository.
func (s *MemoryStore) Upsert(out *Output) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsertLocked(out)
}

func (s *MemoryStore) upsertLocked(out *Output) error {
	merged, err := merge(s.outputs[out.Outpoint()], out)
	if err != nil {
		return err
	}
	s.outputs[out.Outpoint()] = merged
	return nil
}

// Apply implements Repository. The batch is validated before any write so a
// failure leaves the store unchanged.
func (s *MemoryStore) Apply(b *Batch) error {
	if b.Empty() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	// Upserts are merged in order on a scratch copy so that two entries for
	// one outpoint are checked against each other too.
	staged := make(map[Outpoint]*Output, len(b.Upserts))
	for _, out := range b.Upserts {
		prev, ok := staged[out.Outpoint()]
		if !ok {
			prev = s.outputs[out.Outpoint()]
		}
		merged, err := merge(prev, out)
		if err != nil {
			return fmt.Errorf("%w: %s", err, out.Outpoint())
		}
		staged[out.Outpoint()] = merged
	}
	for op, out := range staged {
		s.outputs[op] = out
	}
	for _, op := range b.Finalize {
		if o, ok := s.outputs[op]; ok {
			o.Finalized = true
		}
	}
	for _, op := range b.Deletes {
		delete(s.outputs, op)
	}
	return nil
}
