// Package mailbox finds PDF attachments of invoice mails in a remote mailbox.
package mailbox

import (
	"context"
	"fmt"
	"strings"
)

// DefaultSubject is used for messages without a Subject header
const DefaultSubject = "No Subject"

// Keywords are the subject and body terms that mark an invoice mail
var Keywords = []string{"RECHNUNG", "INVOICE", "BELEG"}

// Query returns the search query for invoice mails of the last year
func Query() string {
	return fmt.Sprintf("(%s) newer_than:1y", strings.Join(Keywords, " OR "))
}

// Attachment is a PDF attached to a message
type Attachment struct {
	Filename string
	Subject  string
	Data     []byte
}

// Mailbox is a searchable mail account
type Mailbox interface {
	// Search returns the IDs of all messages matching query
	Search(ctx context.Context, query string) ([]string, error)

	// Attachments returns the PDF attachments of a message
	Attachments(ctx context.Context, messageID string) ([]Attachment, error)
}
