// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package autotel

import (
	"context"
	"sort"

	"github.com/z5labs/autotel/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/metric"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	"golang.org/x/sync/errgroup"
)

// buildLoggerProvider configures the log pipeline. It depends on the
// meter provider for the batch pipeline's self monitoring metrics.
func (b *Builder) buildLoggerProvider(
	ctx context.Context,
	res *resource.Resource,
	props *config.Properties,
	mp metric.MeterProvider,
) (*sdklog.LoggerProvider, error) {
	exportersByName, err := b.buildLogExporters(ctx, props)
	if err != nil {
		return nil, err
	}

	opts := make([]sdklog.LoggerProviderOption, 0, len(exportersByName)+1)
	opts = append(opts, sdklog.WithResource(res))
	for _, p := range configureLogProcessors(exportersByName, mp) {
		opts = append(opts, sdklog.WithProcessor(p))
	}
	return sdklog.NewLoggerProvider(opts...), nil
}

func (b *Builder) buildLogExporters(ctx context.Context, props *config.Properties) (map[string]sdklog.Exporter, error) {
	names, err := exporterNames(props, "otel.logs.exporter", "otlp")
	if err != nil {
		return nil, err
	}

	exportersByName := make(map[string]sdklog.Exporter, len(names))
	for _, name := range names {
		var exporter sdklog.Exporter
		switch name {
		case "otlp":
			exporter, err = b.buildOTLPLogExporter(ctx, props)
		case "logging", "console":
			exporter, err = stdoutlog.New()
		default:
			return nil, ConfigurationError{Key: "otel.logs.exporter", Value: name}
		}
		if err != nil {
			return nil, err
		}
		exportersByName[name] = exporter
	}
	return exportersByName, nil
}

// configureLogProcessors partitions the named exporters into processing
// strategies. The reserved "logging" exporter bypasses batching, each
// emitted record is handed to it synchronously. All remaining exporters
// are combined into a single fan out exporter behind one batch
// processor. The input map is not mutated.
func configureLogProcessors(exportersByName map[string]sdklog.Exporter, mp metric.MeterProvider) []sdklog.Processor {
	remaining := make(map[string]sdklog.Exporter, len(exportersByName))
	for name, exporter := range exportersByName {
		remaining[name] = exporter
	}

	var processors []sdklog.Processor
	if exporter, ok := remaining[immediateExporterName]; ok {
		delete(remaining, immediateExporterName)
		processors = append(processors, sdklog.NewSimpleProcessor(exporter))
	}
	if len(remaining) > 0 {
		exporter := meterLogExporter(combineLogExporters(remaining), mp)
		processors = append(processors, sdklog.NewBatchProcessor(exporter))
	}
	return processors
}

func combineLogExporters(exportersByName map[string]sdklog.Exporter) sdklog.Exporter {
	if len(exportersByName) == 1 {
		for _, exporter := range exportersByName {
			return exporter
		}
	}

	names := make([]string, 0, len(exportersByName))
	for name := range exportersByName {
		names = append(names, name)
	}
	sort.Strings(names)

	exporters := make(multiLogExporter, 0, len(names))
	for _, name := range names {
		exporters = append(exporters, exportersByName[name])
	}
	return exporters
}

// multiLogExporter fans records out to all of its exporters concurrently.
type multiLogExporter []sdklog.Exporter

// Export implements the [sdklog.Exporter] interface. One failing
// exporter does not stop the export to the others.
func (m multiLogExporter) Export(ctx context.Context, records []sdklog.Record) error {
	var eg errgroup.Group
	for _, exporter := range m {
		eg.Go(func() error {
			return exporter.Export(ctx, records)
		})
	}
	return eg.Wait()
}

// Shutdown implements the [sdklog.Exporter] interface.
func (m multiLogExporter) Shutdown(ctx context.Context) error {
	var eg errgroup.Group
	for _, exporter := range m {
		eg.Go(func() error {
			return exporter.Shutdown(ctx)
		})
	}
	return eg.Wait()
}

// ForceFlush implements the [sdklog.Exporter] interface.
func (m multiLogExporter) ForceFlush(ctx context.Context) error {
	var eg errgroup.Group
	for _, exporter := range m {
		eg.Go(func() error {
			return exporter.ForceFlush(ctx)
		})
	}
	return eg.Wait()
}

// meteredLogExporter reports the number of exported log records through
// the assembled meter provider. The batch processor itself exposes no
// metric hooks so self monitoring of the batch pipeline happens at the
// exporter boundary.
type meteredLogExporter struct {
	sdklog.Exporter

	exported metric.Int64Counter
}

func meterLogExporter(exporter sdklog.Exporter, mp metric.MeterProvider) sdklog.Exporter {
	meter := mp.Meter("github.com/z5labs/autotel")

	exported, err := meter.Int64Counter(
		"autotel.log.records.exported",
		metric.WithDescription("Number of log records pushed to the batch pipeline exporters."),
	)
	if err != nil {
		otel.Handle(err)
		return exporter
	}

	return meteredLogExporter{
		Exporter: exporter,
		exported: exported,
	}
}

// Export implements the [sdklog.Exporter] interface.
func (m meteredLogExporter) Export(ctx context.Context, records []sdklog.Record) error {
	err := m.Exporter.Export(ctx, records)
	m.exported.Add(ctx, int64(len(records)), metric.WithAttributes(
		attribute.Bool("success", err == nil),
	))
	return err
}
