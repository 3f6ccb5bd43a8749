package invoice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"
)

const bucketName = "invoices"

// DB defines the interface for invoice persistence. Every lookup and update
// is scoped to the owning user: an invoice of another user is reported as
// ErrNotFound.
type DB interface {
	// CreateInvoice saves a new invoice
	CreateInvoice(ctx context.Context, inv *Invoice) error

	// GetInvoice retrieves an invoice by ID for its owner
	GetInvoice(ctx context.Context, id, userID string) (*Invoice, error)

	// ListInvoices returns the invoices of a user, newest date first
	ListInvoices(ctx context.Context, userID string) ([]*Invoice, error)

	// UpdateInvoice replaces the content of a pending invoice owned by inv.UserID
	UpdateInvoice(ctx context.Context, inv *Invoice) error

	// UpdateStatus moves a pending invoice owned by userID to status
	UpdateStatus(ctx context.Context, id, userID string, status Status, signing Signing) (*Invoice, error)

	// Close closes the database connection
	Close() error
}

// BoltDB implements the DB interface using BoltDB
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates a new BoltDB instance
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

// CreateInvoice saves a new invoice; IDs must be unique
func (b *BoltDB) CreateInvoice(_ context.Context, inv *Invoice) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		if bucket.Get([]byte(inv.ID)) != nil {
			return fmt.Errorf("invoice %s already exists", inv.ID)
		}
		return putInvoice(bucket, inv)
	})
}

// GetInvoice retrieves an invoice by ID for its owner
func (b *BoltDB) GetInvoice(_ context.Context, id, userID string) (*Invoice, error) {
	var inv *Invoice
	err := b.db.View(func(tx *bbolt.Tx) error {
		var err error
		inv, err = ownedInvoice(tx.Bucket([]byte(bucketName)), id, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// ListInvoices returns the invoices of a user, newest date first
func (b *BoltDB) ListInvoices(_ context.Context, userID string) ([]*Invoice, error) {
	invoices := make([]*Invoice, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		return bucket.ForEach(func(k, v []byte) error {
			var inv Invoice
			if err := json.Unmarshal(v, &inv); err != nil {
				return fmt.Errorf("unmarshaling invoice: %w", err)
			}
			if inv.UserID == userID {
				invoices = append(invoices, &inv)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sortNewestFirst(invoices)
	return invoices, nil
}

// UpdateInvoice replaces the content of a pending invoice
func (b *BoltDB) UpdateInvoice(_ context.Context, inv *Invoice) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		existing, err := ownedInvoice(bucket, inv.ID, inv.UserID)
		if err != nil {
			return err
		}
		if existing.Status != StatusPending {
			return ErrNotPending
		}
		return putInvoice(bucket, inv)
	})
}

// UpdateStatus moves a pending invoice to status and records the signer
func (b *BoltDB) UpdateStatus(_ context.Context, id, userID string, status Status, signing Signing) (*Invoice, error) {
	var inv *Invoice
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		var err error
		inv, err = ownedInvoice(bucket, id, userID)
		if err != nil {
			return err
		}
		if inv.Status != StatusPending {
			return ErrNotPending
		}
		if !inv.Status.CanTransitionTo(status) {
			return ErrInvalidTransition
		}
		inv.Status = status
		inv.Signing = signing
		inv.UpdatedAt = signing.SignedAt
		return putInvoice(bucket, inv)
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}

// ownedInvoice loads id and hides it unless userID owns it
func ownedInvoice(bucket *bbolt.Bucket, id, userID string) (*Invoice, error) {
	data := bucket.Get([]byte(id))
	if data == nil {
		return nil, ErrNotFound
	}
	var inv Invoice
	if err := json.Unmarshal(data, &inv); err != nil {
		return nil, fmt.Errorf("unmarshaling invoice: %w", err)
	}
	if inv.UserID != userID {
		return nil, ErrNotFound
	}
	return &inv, nil
}

func putInvoice(bucket *bbolt.Bucket, inv *Invoice) error {
	if inv.ID == "" || inv.UserID == "" {
		return errors.New("invoice id and user id are required")
	}
	data, err := json.Marshal(storedInvoice{Invoice: inv, PDFPath: inv.PDFPath})
	if err != nil {
		return fmt.Errorf("marshaling invoice: %w", err)
	}
	return bucket.Put([]byte(inv.ID), data)
}

// storedInvoice adds fields hidden from the API to the persisted JSON
type storedInvoice struct {
	*Invoice
	PDFPath string `json:"pdf_path,omitempty"`
}

// UnmarshalJSON restores PDFPath, which the API representation omits
func (inv *Invoice) UnmarshalJSON(data []byte) error {
	type plain Invoice
	var aux struct {
		*plain
		PDFPath string `json:"pdf_path"`
	}
	aux.plain = (*plain)(inv)
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	inv.PDFPath = aux.PDFPath
	return nil
}

func sortNewestFirst(invoices []*Invoice) {
	sort.SliceStable(invoices, func(i, j int) bool {
		if !invoices[i].Date.Equal(invoices[j].Date) {
			return invoices[i].Date.After(invoices[j].Date)
		}
		return invoices[i].CreatedAt.After(invoices[j].CreatedAt)
	})
}
