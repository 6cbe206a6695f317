package tracing

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/accessgate/internal/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	protocolGRPC         = "grpc"
	protocolHTTP         = "http"
	defaultSamplingRatio = 0.1
	exporterDialTimeout  = 5 * time.Second
)

// Config selects the OTLP exporter and sampling for this instance.
type Config struct {
	Enabled          bool
	ServiceName      string
	ServiceVersion   string
	Environment      string
	InstanceID       string
	ExporterEndpoint string
	ExporterProtocol string
	SamplingRatio    float64
}

func ConfigFromApp(cfg config.Config) Config {
	return Config{
		Enabled:          cfg.Tracing.Enabled,
		ServiceName:      cfg.App.Name,
		ServiceVersion:   cfg.App.Version,
		Environment:      cfg.App.Environment,
		InstanceID:       strconv.FormatInt(cfg.App.NodeID, 10),
		ExporterEndpoint: strings.TrimSpace(cfg.Tracing.ExporterEndpoint),
		ExporterProtocol: normalizeProtocol(cfg.Tracing.ExporterProtocol),
		SamplingRatio:    clampRatio(cfg.Tracing.SamplingRatio),
	}
}

// Tracer returns a tracer scoped under the service namespace.
func Tracer(name string) trace.Tracer {
	return otel.Tracer("accessgate/" + name)
}

// NewProvider installs the global tracer provider. With tracing disabled a
// noop provider is installed and nil is returned.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (*sdktrace.TracerProvider, error) {
	SetPropagator()
	log = log.Named("tracing")
	if !cfg.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
		log.Debug("tracing disabled")
		return nil, nil
	}

	exporter, err := newExporter(cfg)
	if err != nil {
		return nil, err
	}
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
		attribute.String("service.instance.id", cfg.InstanceID),
		attribute.String("deployment.environment", cfg.Environment),
	))
	if err != nil {
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SamplingRatio))),
	)
	otel.SetTracerProvider(provider)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			if err := provider.ForceFlush(ctx); err != nil {
				log.Warn("flushing spans failed", zap.Error(err))
			}
			return provider.Shutdown(ctx)
		},
	})

	log.Info("tracing enabled",
		zap.String("endpoint", cfg.ExporterEndpoint),
		zap.String("protocol", cfg.ExporterProtocol),
		zap.Float64("sampling_ratio", cfg.SamplingRatio),
	)
	return provider, nil
}

func newExporter(cfg Config) (sdktrace.SpanExporter, error) {
	ctx, cancel := context.WithTimeout(context.Background(), exporterDialTimeout)
	defer cancel()

	switch cfg.ExporterProtocol {
	case protocolHTTP:
		var opts []otlptracehttp.Option
		if cfg.ExporterEndpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpoint(cfg.ExporterEndpoint))
		}
		return otlptracehttp.New(ctx, opts...)
	case protocolGRPC:
		opts := []otlptracegrpc.Option{otlptracegrpc.WithInsecure()}
		if cfg.ExporterEndpoint != "" {
			opts = append(opts, otlptracegrpc.WithEndpoint(cfg.ExporterEndpoint))
		}
		return otlptracegrpc.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", cfg.ExporterProtocol)
	}
}

func normalizeProtocol(raw string) string {
	switch p := strings.ToLower(strings.TrimSpace(raw)); p {
	case "", "grpc", "grpc/protobuf":
		return protocolGRPC
	case "http", "http/protobuf":
		return protocolHTTP
	default:
		return p
	}
}

func clampRatio(value float64) float64 {
	switch {
	case value <= 0:
		return defaultSamplingRatio
	case value > 1:
		return 1
	default:
		return value
	}
}
