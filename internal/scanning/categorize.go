package scanning

import (
	"context"
	"log/slog"
	"time"
)

// FallbackCategory is reported when the model could not be asked
const FallbackCategory = "Other"

// Categories is the closed set offered to the model
var Categories = []string{
	"Work Equipment",
	"Insurance",
	"Travel",
	"Food",
	"Lifestyle",
	FallbackCategory,
}

// Category is the label a model picked for a document. Label is whatever the
// model answered and may lie outside Categories. Fallback marks a label that
// was substituted because the model call failed.
type Category struct {
	Label    string `json:"category"`
	Fallback bool   `json:"fallback"`
}

// Known reports whether the label is one of Categories
func (c Category) Known() bool {
	for _, known := range Categories {
		if c.Label == known {
			return true
		}
	}
	return false
}

// Categorizer assigns a category to extracted invoice text
type Categorizer struct {
	model   Model
	timeout time.Duration
}

// NewCategorizer creates a Categorizer; every model call is bounded by timeout
func NewCategorizer(model Model, timeout time.Duration) *Categorizer {
	return &Categorizer{model: model, timeout: timeout}
}

// Categorize never fails: when the model is unreachable, slow or silent the
// result is FallbackCategory with Fallback set.
func (c *Categorizer) Categorize(ctx context.Context, text string) Category {
	label, err := Call(ctx, c.model, c.timeout, categorizationPrompt(text))
	if err != nil {
		slog.Warn("Categorization failed, using fallback",
			"fallback", FallbackCategory,
			"text_length", len(text),
			"error", err,
		)
		return Category{Label: FallbackCategory, Fallback: true}
	}
	return Category{Label: label}
}
