package context

import "context"

type contextKey string

const (
	requestIDKey contextKey = "observability_request_id"
	clientIPKey  contextKey = "observability_client_ip"
	providerKey  contextKey = "observability_provider"
	eventIDKey   contextKey = "observability_event_id"
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	if ctx == nil || requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(requestIDKey).(string)
	return value
}

func WithClientIP(ctx context.Context, ip string) context.Context {
	if ctx == nil || ip == "" {
		return ctx
	}
	return context.WithValue(ctx, clientIPKey, ip)
}

func ClientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(clientIPKey).(string)
	return value
}

// WithWebhookEvent tags the context with the provider and provider event id being processed.
func WithWebhookEvent(ctx context.Context, provider, eventID string) context.Context {
	if ctx == nil {
		return ctx
	}
	if provider != "" {
		ctx = context.WithValue(ctx, providerKey, provider)
	}
	if eventID != "" {
		ctx = context.WithValue(ctx, eventIDKey, eventID)
	}
	return ctx
}

func WebhookEventFromContext(ctx context.Context) (string, string) {
	if ctx == nil {
		return "", ""
	}
	provider, _ := ctx.Value(providerKey).(string)
	eventID, _ := ctx.Value(eventIDKey).(string)
	return provider, eventID
}
