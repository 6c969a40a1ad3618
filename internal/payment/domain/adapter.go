package domain

import (
	"context"
	"net/http"
)

// AdapterConfig carries the per-provider secrets an adapter verifies with.
type AdapterConfig struct {
	Provider string
	Secret   string
}

type AdapterFactory interface {
	Provider() string
	NewAdapter(cfg AdapterConfig) (PaymentAdapter, error)
}

// PaymentAdapter authenticates and parses one provider's callbacks.
type PaymentAdapter interface {
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	Parse(ctx context.Context, payload []byte) (*WebhookEvent, error)
}
