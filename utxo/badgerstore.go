package utxo

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/bitfsorg/libtoken-go/color"
	"github.com/bitfsorg/libtoken-go/log"
)

var (
	prefixOutput    = []byte("o/")
	prefixAuthority = []byte("a/")
)

// BadgerStore is a Repository backed by Badger. Claims rely on Badger's
// optimistic transactions: a claim that loses a write conflict is retried
// and then sees the output the winner reserved.
type BadgerStore struct {
	db *badger.DB
}

var (
	_ Repository     = (*BadgerStore)(nil)
	_ color.Registry = (*BadgerStore)(nil)
)

// OpenBadgerStore opens or creates a Badger database in dir.
func OpenBadgerStore(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		if strings.Contains(err.Error(), "Cannot acquire directory lock") {
			return nil, fmt.Errorf("utxo: database at %s is locked by another process: %w", dir, err)
		}
		return nil, fmt.Errorf("utxo: open badger at %s: %w", dir, err)
	}
	log.Storage.Info().Str("dir", dir).Msg("opened badger output store")
	return &BadgerStore{db: db}, nil
}

// OpenInMemoryBadgerStore opens a Badger store that lives only in memory.
func OpenInMemoryBadgerStore() (*BadgerStore, error) {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("utxo: open in-memory badger: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// Close closes the database.
func (s *BadgerStore) Close() error { return s.db.Close() }

func outputKey(op Outpoint) []byte {
	return append(append([]byte{}, prefixOutput...), op.Key()...)
}

// ListOutputs implements Repository.
func (s *BadgerStore) ListOutputs(walletID string, f Filter) ([]*Output, error) {
	var outs []*Output
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefixOutput
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefixOutput); it.ValidForPrefix(prefixOutput); it.Next() {
			var o Output
			err := it.Item().Value(func(val []byte) error {
				return decodeGob(val, &o)
			})
			if err != nil {
				return fmt.Errorf("decode output: %w", err)
			}
			if o.WalletID == walletID && f.Match(&o) {
				outs = append(outs, &o)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("utxo: list outputs: %w", err)
	}
	return outs, nil
}

// Get implements Repository.
func (s *BadgerStore) Get(op Outpoint) (*Output, error) {
	var o *Output
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		o, err = badgerGet(txn, op)
		return err
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}

// Claim implements Repository.
func (s *BadgerStore) Claim(op Outpoint, owner string) (bool, error) {
	claimed := false
	err := s.update(func(txn *badger.Txn) error {
		claimed = false
		o, err := badgerGet(txn, op)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if o.State == Claimed {
			return nil
		}
		o.State = Claimed
		o.ClaimedBy = owner
		claimed = true
		return badgerPut(txn, o)
	})
	if errors.Is(err, badger.ErrConflict) {
		// Still contended after every retry.
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("utxo: claim %s: %w", op, err)
	}
	return claimed, nil
}

// Release implements Repository.
func (s *BadgerStore) Release(op Outpoint, owner string) error {
	err := s.update(func(txn *badger.Txn) error {
		o, err := badgerGet(txn, op)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if !o.heldBy(owner) {
			return nil
		}
		o.State = Available
		o.ClaimedBy = ""
		return badgerPut(txn, o)
	})
	if err != nil {
		return fmt.Errorf("utxo: release %s: %w", op, err)
	}
	return nil
}

// Delete implements Repository.
func (s *BadgerStore) Delete(op Outpoint) error {
	return s.update(func(txn *badger.Txn) error {
		return txn.Delete(outputKey(op))
	})
}

// Upsert implements Repository.
func (s *BadgerStore) Upsert(out *Output) error {
	return s.Apply(&Batch{Upserts: []*Output{out}})
}

// Apply implements Repository in a single Badger transaction.
func (s *BadgerStore) Apply(batch *Batch) error {
	if batch.Empty() {
		return nil
	}
	return s.update(func(txn *badger.Txn) error {
		for _, in := range batch.Upserts {
			stored, err := badgerGet(txn, in.Outpoint())
			if err != nil && !errors.Is(err, ErrNotFound) {
				return err
			}
			merged, err := merge(stored, in)
			if err != nil {
				return fmt.Errorf("%w: %s", err, in.Outpoint())
			}
			if err := badgerPut(txn, merged); err != nil {
				return err
			}
		}
		for _, op := range batch.Finalize {
			o, err := badgerGet(txn, op)
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			o.Finalized = true
			if err := badgerPut(txn, o); err != nil {
				return err
			}
		}
		for _, op := range batch.Deletes {
			if err := txn.Delete(outputKey(op)); err != nil {
				return err
			}
		}
		return nil
	})
}

// update retries fn on write conflicts. fn re-reads what it changes, so a
// retried claim sees the record the conflicting writer left.
func (s *BadgerStore) update(fn func(txn *badger.Txn) error) error {
	for attempt := 0; ; attempt++ {
		err := s.db.Update(fn)
		if errors.Is(err, badger.ErrConflict) && attempt < 8 {
			continue
		}
		return err
	}
}

// RegisterAuthority implements color.Registry.
func (s *BadgerStore) RegisterAuthority(id color.ID, lockingScript []byte) error {
	if err := color.CheckAuthority(id, lockingScript); err != nil {
		return err
	}
	return s.update(func(txn *badger.Txn) error {
		return txn.Set(append(append([]byte{}, prefixAuthority...), id[:]...), lockingScript)
	})
}

// AuthorityScript implements color.Registry.
func (s *BadgerStore) AuthorityScript(id color.ID) ([]byte, error) {
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(append(append([]byte{}, prefixAuthority...), id[:]...))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", color.ErrUnknownAuthority, id)
		}
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	return out, err
}

func badgerGet(txn *badger.Txn, op Outpoint) (*Output, error) {
	item, err := txn.Get(outputKey(op))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var o Output
	err = item.Value(func(val []byte) error {
		return decodeGob(val, &o)
	})
	if err != nil {
		return nil, fmt.Errorf("decode output %s: %w", op, err)
	}
	return &o, nil
}

func badgerPut(txn *badger.Txn, o *Output) error {
	data, err := encodeGob(o)
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return txn.Set(outputKey(o.Outpoint()), data)
}
