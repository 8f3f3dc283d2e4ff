package ai

import (
	"context"
)

// Request carries raw OCR text and its recognition confidence to a
// text-understanding provider.
type Request struct {
	Text       string
	Confidence float64
}

// Client is the text-understanding capability. Structure returns the
// provider's raw JSON payload; parsing it into a typed record is the
// caller's concern.
type Client interface {
	Name() string
	Structure(ctx context.Context, req Request) (string, error)
}
