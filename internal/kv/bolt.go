package kv

import (
	"context"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/weftdb/weft/internal/fault"
)

var slotsBucket = []byte("slots")

// Bolt is a bbolt-backed Store. All slots live in a single bucket; the
// file is safe for concurrent readers with a single writer.
type Bolt struct {
	db *bolt.DB
}

// OpenBolt opens (or creates) a bbolt file at path.
func OpenBolt(path string) (*Bolt, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fault.Wrap(fault.InvalidData, "open slot store", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(slotsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fault.Wrap(fault.InvalidData, "create slots bucket", err)
	}

	return &Bolt{db: db}, nil
}

func (b *Bolt) Get(_ context.Context, slot string) ([]byte, error) {
	var out []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(slotsBucket).Get([]byte(slot))
		if v == nil {
			return notFound(slot)
		}
		out = make([]byte, len(v))
		copy(out, v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (b *Bolt) Put(_ context.Context, slot string, value []byte) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(slotsBucket).Put([]byte(slot), value)
	})
}

func (b *Bolt) Delete(_ context.Context, slot string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(slotsBucket).Delete([]byte(slot))
	})
}

func (b *Bolt) Close() error {
	return b.db.Close()
}
