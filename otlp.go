// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package autotel

import (
	"context"
	"net/http"
	"time"

	"github.com/z5labs/autotel/config"

	"github.com/hashicorp/go-retryablehttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const (
	protocolGRPC = "grpc"
	protocolHTTP = "http/protobuf"

	defaultGRPCEndpoint = "localhost:4317"
	defaultHTTPEndpoint = "localhost:4318"
)

type otlpConfig struct {
	Endpoint string        `config:"endpoint"`
	Protocol string        `config:"protocol"`
	Insecure bool          `config:"insecure"`
	Timeout  time.Duration `config:"timeout"`
}

// readOTLPConfig decodes the generic otel.exporter.otlp.* properties
// and then overlays the signal specific otel.exporter.otlp.<signal>.*
// properties on top.
func readOTLPConfig(props *config.Properties, signal string) (otlpConfig, error) {
	cfg := otlpConfig{
		Protocol: protocolGRPC,
		Timeout:  10 * time.Second,
	}

	err := props.Unmarshal("otel.exporter.otlp", &cfg)
	if err != nil {
		return otlpConfig{}, err
	}
	err = props.Unmarshal("otel.exporter.otlp."+signal, &cfg)
	if err != nil {
		return otlpConfig{}, err
	}

	if cfg.Endpoint == "" {
		switch cfg.Protocol {
		case protocolHTTP:
			cfg.Endpoint = defaultHTTPEndpoint
		default:
			cfg.Endpoint = defaultGRPCEndpoint
		}
	}
	return cfg, nil
}

// newOTLPHTTPClient returns the retrying HTTP client shared by all
// OTLP over HTTP exporters.
func newOTLPHTTPClient() *http.Client {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.Logger = nil
	return client.StandardClient()
}

func (b *Builder) buildOTLPSpanExporter(ctx context.Context, props *config.Properties) (*otlptrace.Exporter, error) {
	cfg, err := readOTLPConfig(props, "traces")
	if err != nil {
		return nil, err
	}

	switch cfg.Protocol {
	case protocolGRPC:
		opts := []otlptracegrpc.Option{
			otlptracegrpc.WithTimeout(cfg.Timeout),
		}
		if b.grpcConn != nil {
			opts = append(opts, otlptracegrpc.WithGRPCConn(b.grpcConn))
		} else {
			opts = append(opts, otlptracegrpc.WithEndpoint(cfg.Endpoint))
		}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		return otlptracegrpc.New(ctx, opts...)
	case protocolHTTP:
		opts := []otlptracehttp.Option{
			otlptracehttp.WithEndpoint(cfg.Endpoint),
			otlptracehttp.WithTimeout(cfg.Timeout),
			otlptracehttp.WithHTTPClient(newOTLPHTTPClient()),
		}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return otlptracehttp.New(ctx, opts...)
	default:
		return nil, ConfigurationError{Key: "otel.exporter.otlp.protocol", Value: cfg.Protocol}
	}
}

func (b *Builder) buildOTLPMetricExporter(ctx context.Context, props *config.Properties) (sdkmetric.Exporter, error) {
	cfg, err := readOTLPConfig(props, "metrics")
	if err != nil {
		return nil, err
	}

	switch cfg.Protocol {
	case protocolGRPC:
		opts := []otlpmetricgrpc.Option{
			otlpmetricgrpc.WithTimeout(cfg.Timeout),
		}
		if b.grpcConn != nil {
			opts = append(opts, otlpmetricgrpc.WithGRPCConn(b.grpcConn))
		} else {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(cfg.Endpoint))
		}
		if cfg.Insecure {
			opts = append(opts, otlpmetricgrpc.WithInsecure())
		}
		return otlpmetricgrpc.New(ctx, opts...)
	case protocolHTTP:
		opts := []otlpmetrichttp.Option{
			otlpmetrichttp.WithEndpoint(cfg.Endpoint),
			otlpmetrichttp.WithTimeout(cfg.Timeout),
			otlpmetrichttp.WithHTTPClient(newOTLPHTTPClient()),
		}
		if cfg.Insecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		return otlpmetrichttp.New(ctx, opts...)
	default:
		return nil, ConfigurationError{Key: "otel.exporter.otlp.protocol", Value: cfg.Protocol}
	}
}

func (b *Builder) buildOTLPLogExporter(ctx context.Context, props *config.Properties) (sdklog.Exporter, error) {
	cfg, err := readOTLPConfig(props, "logs")
	if err != nil {
		return nil, err
	}

	switch cfg.Protocol {
	case protocolGRPC:
		opts := []otlploggrpc.Option{
			otlploggrpc.WithTimeout(cfg.Timeout),
		}
		if b.grpcConn != nil {
			opts = append(opts, otlploggrpc.WithGRPCConn(b.grpcConn))
		} else {
			opts = append(opts, otlploggrpc.WithEndpoint(cfg.Endpoint))
		}
		if cfg.Insecure {
			opts = append(opts, otlploggrpc.WithInsecure())
		}
		return otlploggrpc.New(ctx, opts...)
	case protocolHTTP:
		opts := []otlploghttp.Option{
			otlploghttp.WithEndpoint(cfg.Endpoint),
			otlploghttp.WithTimeout(cfg.Timeout),
			otlploghttp.WithHTTPClient(newOTLPHTTPClient()),
		}
		if cfg.Insecure {
			opts = append(opts, otlploghttp.WithInsecure())
		}
		return otlploghttp.New(ctx, opts...)
	default:
		return nil, ConfigurationError{Key: "otel.exporter.otlp.protocol", Value: cfg.Protocol}
	}
}
