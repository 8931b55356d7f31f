// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package autotel

import (
	"context"
	"time"

	"github.com/z5labs/autotel/config"

	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

// buildMeterProvider configures the metric pipeline. It runs before the
// trace and log pipelines since both may emit self monitoring metrics
// during their own construction.
func (b *Builder) buildMeterProvider(
	ctx context.Context,
	res *resource.Resource,
	props *config.Properties,
) (*sdkmetric.MeterProvider, error) {
	names, err := exporterNames(props, "otel.metrics.exporter", "otlp")
	if err != nil {
		return nil, err
	}

	interval, err := props.DurationOr("otel.metric.export.interval", time.Minute)
	if err != nil {
		return nil, err
	}

	opts := make([]sdkmetric.Option, 0, len(names)+1)
	opts = append(opts, sdkmetric.WithResource(res))
	for _, name := range names {
		var exporter sdkmetric.Exporter
		switch name {
		case "otlp":
			exporter, err = b.buildOTLPMetricExporter(ctx, props)
		case "logging", "console":
			exporter, err = stdoutmetric.New()
		default:
			return nil, ConfigurationError{Key: "otel.metrics.exporter", Value: name}
		}
		if err != nil {
			return nil, err
		}

		opts = append(opts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval)),
		))
	}
	return sdkmetric.NewMeterProvider(opts...), nil
}
