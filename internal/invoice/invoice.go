package invoice

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of an invoice
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether an invoice in state s may move to next.
// Only pending invoices move, and never back to pending.
func (s Status) CanTransitionTo(next Status) bool {
	return s == StatusPending && next != StatusPending && next.Valid()
}

// Categories is the fixed set of invoice categories
var Categories = []string{
	"Travel",
	"Meals and Entertainment",
	"Office Supplies",
	"Equipment",
	"Utilities",
	"Professional Services",
	"Marketing and Advertising",
	"Training and Development",
	"Insurance",
	"Miscellaneous",
}

// CategoryTravel is counted separately on the dashboard
const CategoryTravel = "Travel"

// ValidCategory reports whether c is one of Categories
func ValidCategory(c string) bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Location is an optional postal address of where the expense occurred
type Location struct {
	Name       string `json:"name,omitempty"`
	Street     string `json:"street,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	Country    string `json:"country,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
}

// Normalize trims every field and returns nil when none is left set
func (l *Location) Normalize() *Location {
	if l == nil {
		return nil
	}
	n := Location{
		Name:       strings.TrimSpace(l.Name),
		Street:     strings.TrimSpace(l.Street),
		City:       strings.TrimSpace(l.City),
		State:      strings.TrimSpace(l.State),
		Country:    strings.TrimSpace(l.Country),
		PostalCode: strings.TrimSpace(l.PostalCode),
	}
	if n == (Location{}) {
		return nil
	}
	return &n
}

// Signing records who last changed an invoice and when
type Signing struct {
	SignedBy string    `json:"signed_by"`
	SignedAt time.Time `json:"signed_at"`
}

// Invoice represents an expense record owned by a single user
type Invoice struct {
	ID           string          `json:"id"`
	UserID       string          `json:"user_id"`
	Amount       decimal.Decimal `json:"amount"`
	TipAmount    decimal.Decimal `json:"tip_amount"`
	Date         time.Time       `json:"date"`
	Reason       string          `json:"reason"`
	Category     string          `json:"category"`
	Status       Status          `json:"status"`
	Participants []string        `json:"participants"`
	Location     *Location       `json:"location,omitempty"`
	PDFURL       string          `json:"pdf_url,omitempty"`
	PDFPath      string          `json:"-"`
	Signing      Signing         `json:"signing"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Details holds the user-editable content of an invoice
type Details struct {
	Amount       decimal.Decimal `json:"amount"`
	TipAmount    decimal.Decimal `json:"tip_amount"`
	Date         string          `json:"date"` // YYYY-MM-DD
	Reason       string          `json:"reason"`
	Category     string          `json:"category"`
	Participants []string        `json:"participants"`
	Location     *Location       `json:"location,omitempty"`
}

const dateLayout = "2006-01-02"

// validate checks d and returns the parsed date
func (d Details) validate() (time.Time, error) {
	if d.Amount.IsNegative() {
		return time.Time{}, &InputError{Message: "Amount must not be negative"}
	}
	if d.TipAmount.IsNegative() {
		return time.Time{}, &InputError{Message: "Tip amount must not be negative"}
	}
	date, err := time.Parse(dateLayout, strings.TrimSpace(d.Date))
	if err != nil {
		return time.Time{}, &InputError{Message: "Date must be formatted as YYYY-MM-DD"}
	}
	if !ValidCategory(d.Category) {
		return time.Time{}, &InputError{Message: "Unknown category: " + d.Category}
	}
	return date, nil
}

// apply copies validated details onto inv
func (d Details) apply(inv *Invoice, date time.Time) {
	inv.Amount = d.Amount
	inv.TipAmount = d.TipAmount
	inv.Date = date
	inv.Reason = strings.TrimSpace(d.Reason)
	inv.Category = d.Category
	inv.Participants = cleanParticipants(d.Participants)
	inv.Location = d.Location.Normalize()
}

// cleanParticipants trims names and drops empty ones, keeping order
func cleanParticipants(names []string) []string {
	cleaned := make([]string, 0, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			cleaned = append(cleaned, n)
		}
	}
	return cleaned
}

// SplitParticipants parses a comma separated list of names
func SplitParticipants(s string) []string {
	return cleanParticipants(strings.Split(s, ","))
}
