package metrics

import (
	"strings"

	"github.com/smallbiznis/accessgate/internal/config"
	"go.opentelemetry.io/otel/attribute"
)

// Config labels every instrument with the service identity.
type Config struct {
	ServiceName string
	Environment string
}

func ConfigFromApp(cfg config.Config) Config {
	return Config{
		ServiceName: cfg.App.Name,
		Environment: cfg.App.Environment,
	}
}

var highCardinalityKeys = []string{
	"customer_id",
	"creator_id",
	"provider_event_id",
	"email",
	"client_ip",
}

// FilterAttributes drops identifiers that would explode metric cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		key := strings.ToLower(string(attr.Key))
		drop := false
		for _, needle := range highCardinalityKeys {
			if key == needle {
				drop = true
				break
			}
		}
		if !drop {
			filtered = append(filtered, attr)
		}
	}
	return filtered
}
