package invoice

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned for missing invoices and for invoices owned by someone else
	ErrNotFound = errors.New("invoice not found")
	// ErrNotPending is returned when changing an invoice that already left pending
	ErrNotPending = errors.New("invoice is no longer pending")
	// ErrInvalidTransition is returned for a status change that is not allowed
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrMailboxNotConfigured is returned by mailbox scans without a mailbox
	ErrMailboxNotConfigured = errors.New("mailbox is not configured")
)

// InputError reports a request the caller has to fix
type InputError struct {
	Message string
}

func (e *InputError) Error() string {
	return e.Message
}

// UnsupportedMediaError reports a fetched document that is not a PDF
type UnsupportedMediaError struct {
	ContentType string
}

func (e *UnsupportedMediaError) Error() string {
	return fmt.Sprintf("Not a PDF: %s", e.ContentType)
}
