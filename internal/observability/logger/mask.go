package logger

import (
	"net/http"
	"regexp"
	"strings"
)

const redacted = "[redacted]"

// Headers never written to logs verbatim. Signature headers are dropped
// entirely; credentials keep their last four characters for correlation.
var (
	droppedHeaders = map[string]struct{}{
		"stripe-signature":    {},
		"x-signature":         {},
		"x-webhook-signature": {},
		"cookie":              {},
		"set-cookie":          {},
	}
	truncatedHeaders = map[string]struct{}{
		"authorization":   {},
		"x-api-key":       {},
		"idempotency-key": {},
	}
)

var (
	emailPattern      = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	cardLikePattern   = regexp.MustCompile(`\b\d(?:[ -]?\d){11,18}\b`)
	providerIDPattern = regexp.MustCompile(`\b(?:cus|sub|evt|in|cs|pi|ch|whsec|sk|rk|pk)_[A-Za-z0-9_]+\b`)
)

// MaskHeaders flattens headers for logging with credentials removed.
// extra names additional headers to drop, such as a configured signature header.
func MaskHeaders(headers http.Header, extra ...string) map[string]string {
	masked := make(map[string]string, len(headers))
	drop := make(map[string]struct{}, len(extra))
	for _, name := range extra {
		drop[strings.ToLower(strings.TrimSpace(name))] = struct{}{}
	}
	for key, values := range headers {
		name := strings.ToLower(key)
		_, custom := drop[name]
		_, dropped := droppedHeaders[name]
		_, truncated := truncatedHeaders[name]
		switch {
		case custom || dropped:
			masked[key] = redacted
		case truncated:
			masked[key] = lastFour(strings.Join(values, ","))
		default:
			masked[key] = strings.Join(values, ",")
		}
	}
	return masked
}

// SafeFieldsFromRequest returns request metadata that is safe to log.
func SafeFieldsFromRequest(req *http.Request, extraHeaders ...string) map[string]any {
	if req == nil {
		return map[string]any{}
	}
	contentLength := req.ContentLength
	if contentLength < 0 {
		contentLength = 0
	}
	return map[string]any{
		"method":         req.Method,
		"path":           req.URL.Path,
		"content_length": contentLength,
		"headers":        MaskHeaders(req.Header, extraHeaders...),
	}
}

// SanitizeMessage strips emails, card-like digit runs and provider identifiers
// from text that may be shown to end users.
func SanitizeMessage(message string) string {
	message = strings.TrimSpace(message)
	if message == "" {
		return ""
	}
	message = emailPattern.ReplaceAllString(message, "[email]")
	message = providerIDPattern.ReplaceAllString(message, "[id]")
	return cardLikePattern.ReplaceAllString(message, "[number]")
}

func lastFour(value string) string {
	value = strings.TrimSpace(value)
	if len(value) <= 4 {
		return redacted
	}
	return "****" + value[len(value)-4:]
}
