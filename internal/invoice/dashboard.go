package invoice

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

const (
	dashboardMonths = 6
	recentInvoices  = 5
	monthLayout     = "Jan 2006"
)

// MonthlyTotal is the amount spent in one calendar month
type MonthlyTotal struct {
	Month  string          `json:"month"`
	Amount decimal.Decimal `json:"amount"`
}

// CategoryTotal is the amount spent in one category
type CategoryTotal struct {
	Category string          `json:"category"`
	Amount   decimal.Decimal `json:"amount"`
}

// Dashboard aggregates the spend of the last six months
type Dashboard struct {
	TotalInvoices  int             `json:"total_invoices"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	TravelInvoices int             `json:"travel_invoices"`
	Monthly        []MonthlyTotal  `json:"monthly"`
	Categories     []CategoryTotal `json:"categories"`
	Recent         []*Invoice      `json:"recent"`
}

// Dashboard aggregates the invoices of user dated within the last six months
func (s *Service) Dashboard(ctx context.Context, user User) (*Dashboard, error) {
	invoices, err := s.ListInvoices(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("loading dashboard: %w", err)
	}
	return buildDashboard(invoices, s.timeSource.Now()), nil
}

// buildDashboard expects invoices sorted newest first
func buildDashboard(invoices []*Invoice, now time.Time) *Dashboard {
	current := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	start := current.AddDate(0, -(dashboardMonths - 1), 0)

	d := &Dashboard{
		TotalAmount: decimal.Zero,
		Monthly:     make([]MonthlyTotal, dashboardMonths),
		Categories:  make([]CategoryTotal, 0),
		Recent:      make([]*Invoice, 0, recentInvoices),
	}
	for i := range d.Monthly {
		d.Monthly[i] = MonthlyTotal{Month: start.AddDate(0, i, 0).Format(monthLayout), Amount: decimal.Zero}
	}

	byCategory := map[string]decimal.Decimal{}
	for _, inv := range invoices {
		month := time.Date(inv.Date.Year(), inv.Date.Month(), 1, 0, 0, 0, 0, time.UTC)
		if month.Before(start) || month.After(current) {
			continue
		}

		d.TotalInvoices++
		d.TotalAmount = d.TotalAmount.Add(inv.Amount)
		if inv.Category == CategoryTravel {
			d.TravelInvoices++
		}

		idx := (month.Year()-start.Year())*12 + int(month.Month()-start.Month())
		d.Monthly[idx].Amount = d.Monthly[idx].Amount.Add(inv.Amount)

		byCategory[inv.Category] = byCategory[inv.Category].Add(inv.Amount)

		if len(d.Recent) < recentInvoices {
			d.Recent = append(d.Recent, inv)
		}
	}

	for category, amount := range byCategory {
		d.Categories = append(d.Categories, CategoryTotal{Category: category, Amount: amount})
	}
	sort.Slice(d.Categories, func(i, j int) bool {
		if cmp := d.Categories[i].Amount.Cmp(d.Categories[j].Amount); cmp != 0 {
			return cmp > 0
		}
		return d.Categories[i].Category < d.Categories[j].Category
	})

	return d
}
