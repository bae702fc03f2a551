// Package history keeps REPL input in a bbolt database.
package history

import (
	"encoding/binary"
	"time"

	bolt "go.etcd.io/bbolt"
)

const bucketCmd = "cmd"

type Store struct {
	db *bolt.DB
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o644, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketCmd))
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db}, nil
}

func (self *Store) Close() error {
	return self.db.Close()
}

// Add appends an entry and returns its sequence number.
func (self *Store) Add(text string) (int, error) {
	var seq uint64
	err := self.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketCmd))
		var err error
		seq, err = b.NextSequence()
		if err != nil {
			return err
		}
		return b.Put(marshalSeq(seq), []byte(text))
	})
	return int(seq), err
}

// All returns every entry, oldest first.
func (self *Store) All() ([]string, error) {
	var entries []string
	err := self.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketCmd)).ForEach(func(k, v []byte) error {
			entries = append(entries, string(v))
			return nil
		})
	})
	return entries, err
}

// Last returns up to n of the most recent entries, oldest first.
func (self *Store) Last(n int) ([]string, error) {
	var entries []string
	err := self.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(bucketCmd)).Cursor()
		for k, v := c.Last(); k != nil && len(entries) < n; k, v = c.Prev() {
			entries = append(entries, string(v))
		}
		return nil
	})
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, err
}

func marshalSeq(seq uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, seq)
	return b
}
