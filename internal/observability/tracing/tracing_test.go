package tracing

import (
	"testing"

	"github.com/smallbiznis/accessgate/internal/config"
)

func TestConfigFromAppNormalizes(t *testing.T) {
	cfg := ConfigFromApp(config.Config{
		App:     config.AppConfig{Name: "accessgate", NodeID: 3},
		Tracing: config.TracingConfig{Enabled: true, ExporterProtocol: " HTTP/protobuf ", SamplingRatio: 4},
	})
	if cfg.ExporterProtocol != protocolHTTP {
		t.Fatalf("expected http protocol, got %q", cfg.ExporterProtocol)
	}
	if cfg.SamplingRatio != 1 {
		t.Fatalf("expected ratio clamped to 1, got %v", cfg.SamplingRatio)
	}
	if cfg.InstanceID != "3" {
		t.Fatalf("expected instance id 3, got %q", cfg.InstanceID)
	}
}

func TestConfigFromAppDefaults(t *testing.T) {
	cfg := ConfigFromApp(config.Config{})
	if cfg.ExporterProtocol != protocolGRPC {
		t.Fatalf("expected grpc default, got %q", cfg.ExporterProtocol)
	}
	if cfg.SamplingRatio != defaultSamplingRatio {
		t.Fatalf("expected default ratio, got %v", cfg.SamplingRatio)
	}
}

func TestNewExporterRejectsUnknownProtocol(t *testing.T) {
	if _, err := newExporter(Config{ExporterProtocol: "carrier-pigeon"}); err == nil {
		t.Fatal("expected error for unknown protocol")
	}
}
