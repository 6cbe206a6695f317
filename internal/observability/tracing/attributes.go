package tracing

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

var sensitiveAttributeKeys = []string{
	"secret",
	"signature",
	"authorization",
	"api_key",
	"token",
	"email",
	"phone",
	"idempotency",
}

var errorCodePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// SafeAttributes drops attributes whose key names a credential or contact detail.
func SafeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if isSensitiveKey(string(attr.Key)) {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}

// SafeError reduces err to something safe to attach to a span. Sentinel codes
// such as "invalid_signature" pass through; anything else keeps only its type.
func SafeError(err error) error {
	if err == nil {
		return nil
	}
	for cur := err; cur != nil; cur = errors.Unwrap(cur) {
		if errorCodePattern.MatchString(cur.Error()) {
			return errors.New(cur.Error())
		}
	}
	return fmt.Errorf("%T", err)
}

func isSensitiveKey(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	for _, needle := range sensitiveAttributeKeys {
		if strings.Contains(key, needle) {
			return true
		}
	}
	return false
}
