package journal

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fxamacker/cbor/v2"
	"go.etcd.io/bbolt"
)

var bucketEntries = []byte("entries")

// encMode keeps entry times at nanosecond precision
var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("journal: cbor encoding mode: %v", err))
	}
}

// Kind names the transaction an entry records
type Kind string

const (
	KindMine     Kind = "mine"
	KindClaim    Kind = "claim"
	KindRegister Kind = "register"
	KindReset    Kind = "reset"
)

// Entry is one confirmed transaction
type Entry struct {
	Kind      Kind      `cbor:"1,keyasint"`
	Signature string    `cbor:"2,keyasint"`
	Slot      uint64    `cbor:"3,keyasint"`
	Time      time.Time `cbor:"4,keyasint"`
	Nonce     uint64    `cbor:"5,keyasint,omitempty"`
	Hash      string    `cbor:"6,keyasint,omitempty"`
	Amount    uint64    `cbor:"7,keyasint,omitempty"`
	Attempts  int       `cbor:"8,keyasint,omitempty"`
}

// Journal is an append-only local log of confirmed transactions
type Journal struct {
	db *bbolt.DB
}

// Open opens (or creates) the journal at path, creating parent directories
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketEntries)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}
	return &Journal{db: db}, nil
}

// Record appends e. Entries sort by time, then signature.
func (j *Journal) Record(e Entry) error {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	data, err := encMode.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}

	err = j.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketEntries).Put(entryKey(e), data)
	})
	if err != nil {
		return fmt.Errorf("persist entry: %w", err)
	}
	return nil
}

// List returns up to limit entries, newest first. A limit of zero or less
// returns every entry.
func (j *Journal) List(limit int) ([]Entry, error) {
	var entries []Entry
	err := j.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketEntries).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(entries) >= limit {
				break
			}
			var e Entry
			if err := cbor.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("decode entry %x: %w", k, err)
			}
			entries = append(entries, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Close releases the database file
func (j *Journal) Close() error {
	return j.db.Close()
}

func entryKey(e Entry) []byte {
	key := make([]byte, 8, 8+len(e.Signature))
	binary.BigEndian.PutUint64(key, uint64(e.Time.UnixNano()))
	return append(key, e.Signature...)
}
