package scanning

import (
	"context"
	"log/slog"
	"time"
)

// ReceiptExtractor asks a model for the structured fields of a receipt
type ReceiptExtractor struct {
	model   Model
	timeout time.Duration
}

// NewReceiptExtractor creates a ReceiptExtractor; every model call is bounded by timeout
func NewReceiptExtractor(model Model, timeout time.Duration) *ReceiptExtractor {
	return &ReceiptExtractor{model: model, timeout: timeout}
}

// Extract returns the receipt fields found in text. Any failure along the way
// (model call, missing JSON, bad JSON) yields an empty ReceiptInfo.
func (e *ReceiptExtractor) Extract(ctx context.Context, text string) ReceiptInfo {
	raw, err := Call(ctx, e.model, e.timeout, receiptPrompt(text))
	if err != nil {
		slog.Warn("Receipt extraction call failed", "text_length", len(text), "error", err)
		return ReceiptInfo{}
	}

	info, err := parseReceiptInfo(raw)
	if err != nil {
		slog.Warn("Receipt extraction returned no usable JSON",
			"response_length", len(raw),
			"error", err,
		)
		return ReceiptInfo{}
	}

	return info
}
