package stripe

import (
	"strings"

	paymentdomain "github.com/smallbiznis/accessgate/internal/payment/domain"
	"github.com/smallbiznis/accessgate/internal/payment/signature"
)

const (
	ProviderName           = "stripe"
	DefaultSignatureHeader = "Stripe-Signature"
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return ProviderName
}

func (f *Factory) NewAdapter(config paymentdomain.AdapterConfig) (paymentdomain.PaymentAdapter, error) {
	if len(config.SigningSecret) == 0 {
		return nil, paymentdomain.ErrInvalidConfig
	}

	header := strings.TrimSpace(config.SignatureHeader)
	if header == "" {
		header = DefaultSignatureHeader
	}

	verifier, err := signature.New(
		config.SigningSecret,
		signature.WithTolerance(config.Tolerance),
		signature.WithClock(config.Clock),
	)
	if err != nil {
		return nil, paymentdomain.ErrInvalidConfig
	}

	return &Adapter{
		provider: ProviderName,
		header:   header,
		verifier: verifier,
	}, nil
}
