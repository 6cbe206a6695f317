package tracing

import (
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// WrapHTTPClient returns a copy of client whose requests to peer are traced
// and carry the caller's trace headers.
func WrapHTTPClient(client *http.Client, peer string) *http.Client {
	if client == nil {
		client = &http.Client{}
	}
	if peer == "" {
		peer = "external"
	}
	wrapped := *client
	base := wrapped.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	wrapped.Transport = &clientTransport{base: base, peer: peer, tracer: Tracer("http.client")}
	return &wrapped
}

type clientTransport struct {
	base   http.RoundTripper
	peer   string
	tracer trace.Tracer
}

func (t *clientTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx, span := t.tracer.Start(req.Context(), t.peer+" "+req.Method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(SafeAttributes(
			attribute.String("peer.service", t.peer),
			attribute.String("http.method", req.Method),
			attribute.String("http.host", req.URL.Host),
		)...),
	)
	defer span.End()

	// RoundTrippers must not mutate the caller's request.
	out := req.Clone(ctx)
	injectHeaders(ctx, out.Header)

	start := time.Now()
	resp, err := t.base.RoundTrip(out)
	span.SetAttributes(attribute.Int64("http.client_duration_ms", time.Since(start).Milliseconds()))
	if err != nil {
		span.RecordError(SafeError(err))
		span.SetStatus(codes.Error, "transport error")
		return resp, err
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
	}
	return resp, nil
}
