package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	paymentdomain "github.com/smallbiznis/accessgate/internal/payment/domain"
	"github.com/smallbiznis/accessgate/internal/payment/signature"
	stripego "github.com/stripe/stripe-go/v82"
)

type Adapter struct {
	provider string
	header   string
	verifier *signature.Verifier
}

func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	if err := a.verifier.Verify(payload, headers.Get(a.header)); err != nil {
		return fmt.Errorf("%w: %v", paymentdomain.ErrInvalidSignature, err)
	}
	return nil
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (*paymentdomain.DomainEvent, error) {
	var envelope stripego.Event
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if envelope.ID == "" || envelope.Type == "" || envelope.Data == nil || len(envelope.Data.Raw) == 0 {
		return nil, paymentdomain.ErrInvalidPayload
	}

	event, err := normalize(string(envelope.Type), envelope.Data.Raw)
	if err != nil {
		return nil, err
	}

	event.Provider = a.provider
	event.ProviderEventID = envelope.ID
	event.OccurredAt = time.Unix(envelope.Created, 0).UTC()
	return event, nil
}
