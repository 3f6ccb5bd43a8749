package scanning

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrEmptyResponse is returned when a model answers with no content
var ErrEmptyResponse = errors.New("model returned an empty response")

// Model defines the interface for language model backends
type Model interface {
	// Generate sends a single prompt and returns the raw response text
	Generate(ctx context.Context, prompt string) (string, error)
	// Close closes the model client and releases resources
	Close() error
}

type generateResult struct {
	text string
	err  error
}

// Call runs one prompt against model, bounded by timeout and by ctx.
// The returned text is trimmed; a blank answer is reported as ErrEmptyResponse.
// A non-positive timeout leaves only ctx in charge.
func Call(ctx context.Context, model Model, timeout time.Duration, prompt string) (string, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	done := make(chan generateResult, 1)
	go func() {
		text, err := model.Generate(ctx, prompt)
		done <- generateResult{text: text, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-done:
		if res.err != nil {
			return "", res.err
		}
		text := strings.TrimSpace(res.text)
		if text == "" {
			return "", ErrEmptyResponse
		}
		return text, nil
	}
}
