package domain

import (
	"context"
	"net/http"
	"time"

	"github.com/smallbiznis/accessgate/internal/clock"
)

type PaymentAdapter interface {
	// Verify authenticates the raw payload before anything parses it.
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	// Parse maps the provider envelope onto a DomainEvent.
	Parse(ctx context.Context, payload []byte) (*DomainEvent, error)
}

type AdapterConfig struct {
	Provider        string
	SigningSecret   []byte
	SignatureHeader string
	Tolerance       time.Duration
	Clock           clock.Clock
}

type AdapterFactory interface {
	Provider() string
	NewAdapter(config AdapterConfig) (PaymentAdapter, error)
}
