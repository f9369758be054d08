package kv

import (
	"time"

	"github.com/boltdb/bolt"
)

var bucketName = []byte("sgct")

// BoltKV is a durable, single-file KV store used when ProcessManager is
// configured to persist its scheme and combi-parameters across restarts.
type BoltKV struct {
	db *bolt.DB
}

// NewBoltKV opens (creating if necessary) a bolt-backed store at path.
func NewBoltKV(path string) (*BoltKV, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, e := tx.CreateBucketIfNotExists(bucketName)
		return e
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BoltKV{db: db}, nil
}

// Get returns the value stored at key.
func (b *BoltKV) Get(key string) (string, error) {
	var val string
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketName).Get([]byte(key))
		if v == nil {
			return &notFoundError{key: key}
		}
		val = string(v)
		return nil
	})
	return val, err
}

// Put stores value at key, overwriting any existing value.
func (b *BoltKV) Put(key, value string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(key), []byte(value))
	})
}

// Delete removes key, if present.
func (b *BoltKV) Delete(key string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Delete([]byte(key))
	})
}

// List returns every key with the given prefix.
func (b *BoltKV) List(prefix string) ([]string, error) {
	var keys []string
	pfx := []byte(prefix)
	err := b.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketName).Cursor()
		for k, _ := c.Seek(pfx); k != nil && hasPrefix(k, pfx); k, _ = c.Next() {
			keys = append(keys, string(k))
		}
		return nil
	})
	return keys, err
}

// Close releases the underlying file handle.
func (b *BoltKV) Close() error { return b.db.Close() }

func hasPrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i := range prefix {
		if b[i] != prefix[i] {
			return false
		}
	}
	return true
}
