package domain

import (
	"context"
	"errors"
	"net/http"
)

// Outcome is what the webhook endpoint reports back to the provider.
type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
)

type IngestResult struct {
	Outcome         Outcome `json:"status"`
	ProviderEventID string  `json:"event_id,omitempty"`
	Kind            Kind    `json:"kind,omitempty"`
}

type Service interface {
	IngestWebhook(ctx context.Context, payload []byte, headers http.Header) (IngestResult, error)
}

var (
	ErrInvalidProvider   = errors.New("invalid_provider")
	ErrProviderNotFound  = errors.New("provider_not_found")
	ErrInvalidSignature  = errors.New("invalid_signature")
	ErrInvalidPayload    = errors.New("invalid_payload")
	ErrInvalidEvent      = errors.New("invalid_event")
	ErrUnsupportedEvent  = errors.New("unsupported_event")
	ErrMalformedMetadata = errors.New("malformed_metadata")
	ErrInvalidAmount     = errors.New("invalid_amount")
	ErrInvalidConfig     = errors.New("invalid_config")
)

// IsNormalizationError reports failures that are acknowledged to the provider
// so it stops retrying an event that can never be processed.
func IsNormalizationError(err error) bool {
	return errors.Is(err, ErrUnsupportedEvent) ||
		errors.Is(err, ErrMalformedMetadata) ||
		errors.Is(err, ErrInvalidEvent) ||
		errors.Is(err, ErrInvalidAmount)
}
