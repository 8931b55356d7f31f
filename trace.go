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
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/sync/errgroup"
)

// immediateExporterName is the reserved exporter name which is always
// routed to immediate, unbatched processing.
const immediateExporterName = "logging"

// TracerProviderBuilder accumulates the configuration of a
// [sdktrace.TracerProvider] so customizers can adjust it before it's
// finalized.
type TracerProviderBuilder struct {
	res        *resource.Resource
	sampler    sdktrace.Sampler
	processors []sdktrace.SpanProcessor
	opts       []sdktrace.TracerProviderOption
}

// SetResource sets the resource the tracer provider will report.
func (tpb *TracerProviderBuilder) SetResource(res *resource.Resource) *TracerProviderBuilder {
	tpb.res = res
	return tpb
}

// SetSampler sets the sampler the tracer provider will use.
func (tpb *TracerProviderBuilder) SetSampler(sampler sdktrace.Sampler) *TracerProviderBuilder {
	tpb.sampler = sampler
	return tpb
}

// AddSpanProcessor appends a span processor to the tracer provider.
func (tpb *TracerProviderBuilder) AddSpanProcessor(sp sdktrace.SpanProcessor) *TracerProviderBuilder {
	tpb.processors = append(tpb.processors, sp)
	return tpb
}

// AddOption appends raw [sdktrace.TracerProviderOption]s for anything
// not covered by the other methods, for example, span limits.
func (tpb *TracerProviderBuilder) AddOption(opts ...sdktrace.TracerProviderOption) *TracerProviderBuilder {
	tpb.opts = append(tpb.opts, opts...)
	return tpb
}

// Build finalizes the builder into an immutable [sdktrace.TracerProvider].
func (tpb *TracerProviderBuilder) Build() *sdktrace.TracerProvider {
	opts := make([]sdktrace.TracerProviderOption, 0, len(tpb.processors)+len(tpb.opts)+2)
	if tpb.res != nil {
		opts = append(opts, sdktrace.WithResource(tpb.res))
	}
	if tpb.sampler != nil {
		opts = append(opts, sdktrace.WithSampler(tpb.sampler))
	}
	for _, sp := range tpb.processors {
		opts = append(opts, sdktrace.WithSpanProcessor(sp))
	}
	opts = append(opts, tpb.opts...)
	return sdktrace.NewTracerProvider(opts...)
}

// buildTracerProvider configures the trace pipeline. The meter provider
// must already exist since the batch span processor's exporters may
// emit self monitoring metrics.
func (b *Builder) buildTracerProvider(
	ctx context.Context,
	res *resource.Resource,
	props *config.Properties,
	mp metric.MeterProvider,
) (*sdktrace.TracerProvider, error) {
	tpb := new(TracerProviderBuilder)
	tpb.SetResource(res)

	sampler, err := b.buildSampler(props)
	if err != nil {
		return nil, err
	}
	tpb.SetSampler(sampler)

	exportersByName, err := b.buildSpanExporters(ctx, props)
	if err != nil {
		return nil, err
	}
	for _, sp := range configureSpanProcessors(exportersByName, mp) {
		tpb.AddSpanProcessor(sp)
	}

	tpb, err = b.tracerProviderCustomizers.resolve()(tpb, props)
	if err != nil {
		return nil, err
	}
	return tpb.Build(), nil
}

func (b *Builder) buildSampler(props *config.Properties) (sdktrace.Sampler, error) {
	name := props.StringOr("otel.traces.sampler", "parentbased_always_on")
	ratio, err := props.Float64Or("otel.traces.sampler.arg", 1.0)
	if err != nil {
		return nil, err
	}

	var sampler sdktrace.Sampler
	switch name {
	case "always_on":
		sampler = sdktrace.AlwaysSample()
	case "always_off":
		sampler = sdktrace.NeverSample()
	case "traceidratio":
		sampler = sdktrace.TraceIDRatioBased(ratio)
	case "parentbased_always_on":
		sampler = sdktrace.ParentBased(sdktrace.AlwaysSample())
	case "parentbased_always_off":
		sampler = sdktrace.ParentBased(sdktrace.NeverSample())
	case "parentbased_traceidratio":
		sampler = sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
	default:
		return nil, ConfigurationError{Key: "otel.traces.sampler", Value: name}
	}
	return b.samplerCustomizers.resolve()(sampler, props)
}

// buildSpanExporters constructs the named span exporters and runs each
// one through the resolved span exporter customizer.
func (b *Builder) buildSpanExporters(ctx context.Context, props *config.Properties) (map[string]sdktrace.SpanExporter, error) {
	names, err := exporterNames(props, "otel.traces.exporter", "otlp")
	if err != nil {
		return nil, err
	}

	customize := b.spanExporterCustomizers.resolve()

	exportersByName := make(map[string]sdktrace.SpanExporter, len(names))
	for _, name := range names {
		var exporter sdktrace.SpanExporter
		switch name {
		case "otlp":
			exporter, err = b.buildOTLPSpanExporter(ctx, props)
		case "logging", "console":
			exporter, err = stdouttrace.New()
		default:
			return nil, ConfigurationError{Key: "otel.traces.exporter", Value: name}
		}
		if err != nil {
			return nil, err
		}

		exporter, err = customize(exporter, props)
		if err != nil {
			return nil, err
		}
		exportersByName[name] = exporter
	}
	return exportersByName, nil
}

// configureSpanProcessors partitions the named exporters into an
// immediate processor for the reserved "logging" exporter and a single
// batch processor wrapping all remaining exporters combined. The input
// map is not mutated.
func configureSpanProcessors(exportersByName map[string]sdktrace.SpanExporter, mp metric.MeterProvider) []sdktrace.SpanProcessor {
	remaining := make(map[string]sdktrace.SpanExporter, len(exportersByName))
	for name, exporter := range exportersByName {
		remaining[name] = exporter
	}

	var processors []sdktrace.SpanProcessor
	if exporter, ok := remaining[immediateExporterName]; ok {
		delete(remaining, immediateExporterName)
		processors = append(processors, sdktrace.NewSimpleSpanProcessor(exporter))
	}
	if len(remaining) > 0 {
		exporter := meterSpanExporter(combineSpanExporters(remaining), mp)
		processors = append(processors, sdktrace.NewBatchSpanProcessor(exporter))
	}
	return processors
}

func combineSpanExporters(exportersByName map[string]sdktrace.SpanExporter) sdktrace.SpanExporter {
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

	exporters := make(multiSpanExporter, 0, len(names))
	for _, name := range names {
		exporters = append(exporters, exportersByName[name])
	}
	return exporters
}

// multiSpanExporter fans spans out to all of its exporters concurrently.
type multiSpanExporter []sdktrace.SpanExporter

// ExportSpans implements the [sdktrace.SpanExporter] interface. One
// failing exporter does not stop the export to the others.
func (m multiSpanExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	var eg errgroup.Group
	for _, exporter := range m {
		eg.Go(func() error {
			return exporter.ExportSpans(ctx, spans)
		})
	}
	return eg.Wait()
}

// Shutdown implements the [sdktrace.SpanExporter] interface.
func (m multiSpanExporter) Shutdown(ctx context.Context) error {
	var eg errgroup.Group
	for _, exporter := range m {
		eg.Go(func() error {
			return exporter.Shutdown(ctx)
		})
	}
	return eg.Wait()
}

// meteredSpanExporter reports the number of exported spans through the
// assembled meter provider. Like the log pipeline, self monitoring of
// the batch pipeline happens at the exporter boundary.
type meteredSpanExporter struct {
	sdktrace.SpanExporter

	exported metric.Int64Counter
}

func meterSpanExporter(exporter sdktrace.SpanExporter, mp metric.MeterProvider) sdktrace.SpanExporter {
	meter := mp.Meter("github.com/z5labs/autotel")

	exported, err := meter.Int64Counter(
		"autotel.spans.exported",
		metric.WithDescription("Number of spans pushed to the batch pipeline exporters."),
	)
	if err != nil {
		otel.Handle(err)
		return exporter
	}

	return meteredSpanExporter{
		SpanExporter: exporter,
		exported:     exported,
	}
}

// ExportSpans implements the [sdktrace.SpanExporter] interface.
func (m meteredSpanExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	err := m.SpanExporter.ExportSpans(ctx, spans)
	m.exported.Add(ctx, int64(len(spans)), metric.WithAttributes(
		attribute.Bool("success", err == nil),
	))
	return err
}

// exporterNames reads a comma separated list of exporter names. The
// name "none" disables the pipeline and can not be combined with other
// names.
func exporterNames(props *config.Properties, key, fallback string) ([]string, error) {
	names := props.StringList(key)
	if len(names) == 0 {
		names = []string{fallback}
	}
	for _, name := range names {
		if name != "none" {
			continue
		}
		if len(names) > 1 {
			return nil, ConfigurationError{Key: key, Value: "none"}
		}
		return nil, nil
	}
	return names, nil
}
