package utxo

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"go.etcd.io/bbolt"

	"github.com/bitfsorg/libtoken-go/color"
	"github.com/bitfsorg/libtoken-go/log"
)

var (
	bucketOutputs     = []byte("outputs")
	bucketAuthorities = []byte("authorities")
)

// BoltStore is a Repository backed by bbolt. It also records reissuance
// authority scripts and so doubles as a color.Registry.
type BoltStore struct {
	db *bbolt.DB
}

var (
	_ Repository     = (*BoltStore)(nil)
	_ color.Registry = (*BoltStore)(nil)
)

// OpenBoltStore opens or creates the database at dbPath. The parent
// directory is created if it does not exist.
func OpenBoltStore(dbPath string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("utxo: create directory: %w", err)
	}
	db, err := bbolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("utxo: open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketOutputs, bucketAuthorities} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %q: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("utxo: create buckets: %w", err)
	}
	log.Storage.Info().Str("path", dbPath).Msg("opened bolt output store")
	return &BoltStore{db: db}, nil
}

// Close closes the underlying database.
func (s *BoltStore) Close() error { return s.db.Close() }

// ListOutputs implements Repository.
func (s *BoltStore) ListOutputs(walletID string, f Filter) ([]*Output, error) {
	var outs []*Output
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketOutputs).ForEach(func(k, v []byte) error {
			var o Output
			if err := decodeGob(v, &o); err != nil {
				return fmt.Errorf("decode output: %w", err)
			}
			if o.WalletID == walletID && f.Match(&o) {
				outs = append(outs, &o)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("utxo: list outputs: %w", err)
	}
	return outs, nil
}

// Get implements Repository.
func (s *BoltStore) Get(op Outpoint) (*Output, error) {
	var o *Output
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		o, err = getOutput(tx.Bucket(bucketOutputs), op)
		return err
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}

// Claim implements Repository.
func (s *BoltStore) Claim(op Outpoint, owner string) (bool, error) {
	claimed := false
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketOutputs)
		o, err := getOutput(b, op)
		if err == ErrNotFound {
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
		return putOutput(b, o)
	})
	if err != nil {
		return false, fmt.Errorf("utxo: claim %s: %w", op, err)
	}
	return claimed, nil
}

// Release implements Repository.
func (s *BoltStore) Release(op Outpoint, owner string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketOutputs)
		o, err := getOutput(b, op)
		if err == ErrNotFound {
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
		return putOutput(b, o)
	})
	if err != nil {
		return fmt.Errorf("utxo: release %s: %w", op, err)
	}
	return nil
}

// Delete implements Repository.
func (s *BoltStore) Delete(op Outpoint) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketOutputs).Delete(op.Key())
	})
}

// Upsert implements Repository.
func (s *BoltStore) Upsert(out *Output) error {
	return s.Apply(&Batch{Upserts: []*Output{out}})
}

// Apply implements Repository in a single bbolt transaction.
func (s *BoltStore) Apply(batch *Batch) error {
	if batch.Empty() {
		return nil
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketOutputs)
		for _, in := range batch.Upserts {
			stored, err := getOutput(b, in.Outpoint())
			if err != nil && err != ErrNotFound {
				return err
			}
			merged, err := merge(stored, in)
			if err != nil {
				return fmt.Errorf("%w: %s", err, in.Outpoint())
			}
			if err := putOutput(b, merged); err != nil {
				return err
			}
		}
		for _, op := range batch.Finalize {
			o, err := getOutput(b, op)
			if err == ErrNotFound {
				continue
			}
			if err != nil {
				return err
			}
			o.Finalized = true
			if err := putOutput(b, o); err != nil {
				return err
			}
		}
		for _, op := range batch.Deletes {
			if err := b.Delete(op.Key()); err != nil {
				return fmt.Errorf("utxo: delete %s: %w", op, err)
			}
		}
		return nil
	})
}

// RegisterAuthority implements color.Registry.
func (s *BoltStore) RegisterAuthority(id color.ID, lockingScript []byte) error {
	if err := color.CheckAuthority(id, lockingScript); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketAuthorities).Put(id[:], lockingScript)
	})
}

// AuthorityScript implements color.Registry.
func (s *BoltStore) AuthorityScript(id color.ID) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketAuthorities).Get(id[:])
		if v == nil {
			return fmt.Errorf("%w: %s", color.ErrUnknownAuthority, id)
		}
		out = bytes.Clone(v)
		return nil
	})
	return out, err
}

func getOutput(b *bbolt.Bucket, op Outpoint) (*Output, error) {
	v := b.Get(op.Key())
	if v == nil {
		return nil, ErrNotFound
	}
	var o Output
	if err := decodeGob(v, &o); err != nil {
		return nil, fmt.Errorf("decode output %s: %w", op, err)
	}
	return &o, nil
}

func putOutput(b *bbolt.Bucket, o *Output) error {
	data, err := encodeGob(o)
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	if err := b.Put(o.Outpoint().Key(), data); err != nil {
		return fmt.Errorf("utxo: put output: %w", err)
	}
	return nil
}

// encodeGob serializes a value using gob encoding.
func encodeGob(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeGob deserializes gob-encoded data into a value.
func decodeGob(data []byte, v interface{}) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}
