package bill

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const (
	billsBucket = "bills"
	orderBucket = "bills_order"
)

// DB defines the interface for bill persistence
type DB interface {
	// SaveBill inserts or replaces a bill
	SaveBill(b *Bill) error

	// GetBill retrieves a bill by ID
	GetBill(id string) (*Bill, error)

	// ListBills returns all bills in insertion order
	ListBills() ([]*Bill, error)

	// Close closes the database connection
	Close() error
}

// BoltDB implements DB on bbolt. A second bucket keyed by a sequence number
// keeps listings in insertion order.
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB opens or creates the database at path
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{billsBucket, orderBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

// SaveBill stores b under its ID
func (b *BoltDB) SaveBill(bill *Bill) error {
	if bill.ID == "" {
		return fmt.Errorf("saving bill: empty id")
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		bills := tx.Bucket([]byte(billsBucket))
		data, err := json.Marshal(bill)
		if err != nil {
			return fmt.Errorf("marshaling bill: %w", err)
		}

		if bills.Get([]byte(bill.ID)) == nil {
			order := tx.Bucket([]byte(orderBucket))
			seq, err := order.NextSequence()
			if err != nil {
				return fmt.Errorf("allocating sequence: %w", err)
			}
			if err := order.Put(sequenceKey(seq), []byte(bill.ID)); err != nil {
				return err
			}
		}
		return bills.Put([]byte(bill.ID), data)
	})
}

// GetBill retrieves a bill by ID
func (b *BoltDB) GetBill(id string) (*Bill, error) {
	var bill *Bill
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(billsBucket)).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return json.Unmarshal(data, &bill)
	})
	if err != nil {
		return nil, err
	}
	return bill, nil
}

// ListBills returns all bills in the order they were first saved
func (b *BoltDB) ListBills() ([]*Bill, error) {
	bills := make([]*Bill, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(billsBucket))
		return tx.Bucket([]byte(orderBucket)).ForEach(func(_, id []byte) error {
			v := data.Get(id)
			if v == nil {
				return nil
			}
			var bill Bill
			if err := json.Unmarshal(v, &bill); err != nil {
				return fmt.Errorf("unmarshaling bill %s: %w", id, err)
			}
			bills = append(bills, &bill)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return bills, nil
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}

// sequenceKey encodes seq big-endian so byte order matches numeric order.
func sequenceKey(seq uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, seq)
}
