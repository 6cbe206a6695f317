package adapters

import (
	"strings"

	paymentdomain "github.com/smallbiznis/accessgate/internal/payment/domain"
)

type Registry struct {
	factories map[string]paymentdomain.AdapterFactory
}

func NewRegistry(factories ...paymentdomain.AdapterFactory) *Registry {
	registry := &Registry{factories: make(map[string]paymentdomain.AdapterFactory, len(factories))}
	for _, factory := range factories {
		if factory == nil {
			continue
		}
		registry.factories[normalizeProvider(factory.Provider())] = factory
	}
	return registry
}

func (r *Registry) ProviderExists(provider string) bool {
	if r == nil {
		return false
	}
	_, ok := r.factories[normalizeProvider(provider)]
	return ok
}

func (r *Registry) NewAdapter(provider string, config paymentdomain.AdapterConfig) (paymentdomain.PaymentAdapter, error) {
	provider = normalizeProvider(provider)
	if provider == "" {
		return nil, paymentdomain.ErrInvalidProvider
	}
	if r == nil {
		return nil, paymentdomain.ErrProviderNotFound
	}
	factory, ok := r.factories[provider]
	if !ok {
		return nil, paymentdomain.ErrProviderNotFound
	}
	config.Provider = provider
	return factory.NewAdapter(config)
}

func normalizeProvider(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}
