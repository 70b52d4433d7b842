package exporters

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

type Protocol string

const (
	ProtocolGRPC Protocol = "grpc"
	ProtocolHTTP Protocol = "http"

	defaultExportTimeout = 10 * time.Second
)

// OTLPConfig describes where fern ships its import and request spans.
type OTLPConfig struct {
	Endpoint string
	Protocol Protocol
	// Insecure skips TLS, for a collector sidecar.
	Insecure bool
	Headers  map[string]string
	Timeout  time.Duration
}

// OTLPConfigFromEnv builds the exporter settings from the OTLP_* variables. headers is a
// comma separated list of key=value pairs, e.g. an API key for a hosted collector.
func OTLPConfigFromEnv(endpoint, protocol string, insecure bool, headers string) (OTLPConfig, error) {
	p := Protocol(strings.ToLower(strings.TrimSpace(protocol)))
	if p == "" {
		p = ProtocolGRPC
	}
	if p != ProtocolGRPC && p != ProtocolHTTP {
		return OTLPConfig{}, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}

	parsed, err := ParseHeaders(headers)
	if err != nil {
		return OTLPConfig{}, err
	}

	return OTLPConfig{
		Endpoint: endpoint,
		Protocol: p,
		Insecure: insecure,
		Headers:  parsed,
		Timeout:  defaultExportTimeout,
	}, nil
}

func ParseHeaders(raw string) (map[string]string, error) {
	headers := map[string]string{}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid OTLP header %q, want key=value", pair)
		}
		headers[key] = strings.TrimSpace(value)
	}
	return headers, nil
}

// NewOTLPExporter builds the span exporter for cfg.Protocol.
func NewOTLPExporter(ctx context.Context, cfg OTLPConfig) (*otlptrace.Exporter, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultExportTimeout
	}

	switch cfg.Protocol {
	case ProtocolGRPC:
		opts := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(cfg.Endpoint),
			otlptracegrpc.WithTimeout(timeout),
			otlptracegrpc.WithHeaders(cfg.Headers),
		}
		if cfg.Insecure {
			opts = append(opts,
				otlptracegrpc.WithInsecure(),
				otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
			)
		}
		return otlptracegrpc.New(ctx, opts...)
	case ProtocolHTTP:
		opts := []otlptracehttp.Option{
			otlptracehttp.WithEndpoint(cfg.Endpoint),
			otlptracehttp.WithTimeout(timeout),
			otlptracehttp.WithHeaders(cfg.Headers),
		}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return otlptracehttp.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", cfg.Protocol)
	}
}
