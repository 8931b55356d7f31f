// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package autotel

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/z5labs/autotel/config"
	"github.com/z5labs/autotel/lifecycle"
	"github.com/z5labs/autotel/plugin"

	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/grpc"
)

// Plugin capabilities consumed during assembly. Plugins register
// themselves under these names via [plugin.Register].
const (
	// CapabilityCustomizer identifies generic plugins implementing
	// [CustomizerProvider].
	CapabilityCustomizer = "autotel.customizer"

	// CapabilityTracerProviderConfigurer identifies legacy plugins
	// implementing [TracerProviderConfigurer]. They're merged into the
	// tracer provider customizer chain before any [CustomizerProvider]
	// runs.
	CapabilityTracerProviderConfigurer = "autotel.tracer-provider-configurer"
)

// CustomizerProvider is the generic plugin entry point. It's invoked
// once per assembly with the live [Builder] and may call any of its
// Add methods.
type CustomizerProvider interface {
	Customize(*Builder) error
}

// TracerProviderConfigurer is a legacy single purpose plugin hook for
// customizing the tracer provider before it's finalized.
type TracerProviderConfigurer interface {
	Configure(*TracerProviderBuilder, *config.Properties) error
}

// Builder assembles the OpenTelemetry SDK's trace, metric and log
// pipelines from merged configuration properties and discovered plugins.
//
// A Builder is meant to be configured and built once, single threaded,
// during process startup. Plugin discovery runs at most once per Builder
// even if Build is called multiple times.
type Builder struct {
	props        *config.Properties
	propsSources []config.Source
	loader       plugin.Loader
	logHandler   slog.Handler
	grpcConn     *grpc.ClientConn

	registerShutdown bool
	setAsGlobal      bool

	discovered atomic.Bool

	tracerProviderCustomizers chain[*TracerProviderBuilder]
	propagatorCustomizers     chain[propagation.TextMapPropagator]
	spanExporterCustomizers   chain[sdktrace.SpanExporter]
	resourceCustomizers       chain[*resource.Resource]
	samplerCustomizers        chain[sdktrace.Sampler]
}

// NewBuilder returns a [Builder] which discovers plugins through the
// process wide registry and reads properties from the ambient
// environment.
func NewBuilder() *Builder {
	return &Builder{
		loader:           plugin.DefaultLoader(),
		registerShutdown: true,
	}
}

// SetProperties sets the [config.Properties] snapshot to use during
// assembly. Sources added with [Builder.AddPropertySource] will have no
// effect if this method is used.
func (b *Builder) SetProperties(props *config.Properties) *Builder {
	b.props = props
	return b
}

// AddPropertySource adds a [config.Source] whose values act as defaults
// for the properties used during assembly. Sources are merged in the
// order they were added, with later ones overwriting duplicate keys in
// earlier ones. The ambient environment is always applied last and wins
// over every added source.
func (b *Builder) AddPropertySource(src config.Source) *Builder {
	b.propsSources = append(b.propsSources, src)
	return b
}

// AddTracerProviderCustomizer registers a [Customizer] to invoke with
// the [TracerProviderBuilder] before it's finalized. The return value of
// the customizer replaces the passed in argument.
//
// Multiple calls will execute the customizers in order.
func (b *Builder) AddTracerProviderCustomizer(fn Customizer[*TracerProviderBuilder]) *Builder {
	b.tracerProviderCustomizers.append(fn)
	return b
}

// AddPropagatorCustomizer registers a [Customizer] to invoke with each
// configured [propagation.TextMapPropagator]. The return value of the
// customizer replaces the passed in argument.
//
// Multiple calls will execute the customizers in order.
func (b *Builder) AddPropagatorCustomizer(fn Customizer[propagation.TextMapPropagator]) *Builder {
	b.propagatorCustomizers.append(fn)
	return b
}

// AddSpanExporterCustomizer registers a [Customizer] to invoke with each
// configured [sdktrace.SpanExporter]. The return value of the customizer
// replaces the passed in argument.
//
// Multiple calls will execute the customizers in order.
func (b *Builder) AddSpanExporterCustomizer(fn Customizer[sdktrace.SpanExporter]) *Builder {
	b.spanExporterCustomizers.append(fn)
	return b
}

// AddResourceCustomizer registers a [Customizer] to invoke with the
// configured [resource.Resource]. The return value of the customizer
// replaces the passed in argument and is the resource every assembled
// provider will report.
//
// Multiple calls will execute the customizers in order.
func (b *Builder) AddResourceCustomizer(fn Customizer[*resource.Resource]) *Builder {
	b.resourceCustomizers.append(fn)
	return b
}

// AddSamplerCustomizer registers a [Customizer] to invoke with the
// configured [sdktrace.Sampler]. The return value of the customizer
// replaces the passed in argument.
//
// Multiple calls will execute the customizers in order.
func (b *Builder) AddSamplerCustomizer(fn Customizer[sdktrace.Sampler]) *Builder {
	b.samplerCustomizers.append(fn)
	return b
}

// PluginLoader sets the [plugin.Loader] used to discover plugins.
//
// Defaults to [plugin.DefaultLoader].
func (b *Builder) PluginLoader(loader plugin.Loader) *Builder {
	b.loader = loader
	return b
}

// LogHandler sets the [slog.Handler] the SDK uses for its own
// diagnostic logging during assembly.
func (b *Builder) LogHandler(h slog.Handler) *Builder {
	b.logHandler = h
	return b
}

// GRPCConn supplies an existing gRPC client connection for OTLP
// exporters to use instead of dialing the configured endpoint.
func (b *Builder) GRPCConn(conn *grpc.ClientConn) *Builder {
	b.grpcConn = conn
	return b
}

// RegisterShutdown controls whether Build registers the assembled
// [SDK]s shutdown hook on a [lifecycle.Context] carried by the build
// context. By default, the hook is registered.
//
// Skipping the registration may cause telemetry to be lost on exit. It
// is intended for SDK consumers that require full control over the SDK
// lifecycle and call [SDK.Shutdown] themselves.
func (b *Builder) RegisterShutdown(register bool) *Builder {
	b.registerShutdown = register
	return b
}

// SetAsGlobal controls whether Build installs the assembled [SDK] as
// the process wide default telemetry handle. By default, it does not.
// Installing is single assignment, a second install from any SDK fails
// with [ErrAlreadyInstalled].
func (b *Builder) SetAsGlobal(set bool) *Builder {
	b.setAsGlobal = set
	return b
}

func (b *Builder) logger() *slog.Logger {
	if b.logHandler == nil {
		return slog.Default()
	}
	return slog.New(b.logHandler)
}

// discoverAndMerge runs plugin discovery exactly once per Builder,
// regardless of how many times Build is invoked. Legacy
// [TracerProviderConfigurer]s are merged into the tracer provider chain
// first so their effect composes as if they were the first customizers
// added.
func (b *Builder) discoverAndMerge() error {
	if !b.discovered.CompareAndSwap(false, true) {
		return nil
	}

	for _, instance := range b.loader.Load(CapabilityTracerProviderConfigurer) {
		configurer, ok := instance.(TracerProviderConfigurer)
		if !ok {
			return PluginError{
				Capability: CapabilityTracerProviderConfigurer,
				Cause:      fmt.Errorf("unexpected instance type: %T", instance),
			}
		}

		b.AddTracerProviderCustomizer(func(tpb *TracerProviderBuilder, props *config.Properties) (*TracerProviderBuilder, error) {
			err := configurer.Configure(tpb, props)
			if err != nil {
				return nil, PluginError{
					Capability: CapabilityTracerProviderConfigurer,
					Cause:      err,
				}
			}
			return tpb, nil
		})
	}

	for _, instance := range b.loader.Load(CapabilityCustomizer) {
		provider, ok := instance.(CustomizerProvider)
		if !ok {
			return PluginError{
				Capability: CapabilityCustomizer,
				Cause:      fmt.Errorf("unexpected instance type: %T", instance),
			}
		}

		err := provider.Customize(b)
		if err != nil {
			return PluginError{
				Capability: CapabilityCustomizer,
				Cause:      err,
			}
		}
	}
	return nil
}

func (b *Builder) readProperties() (*config.Properties, error) {
	if b.props != nil {
		return b.props, nil
	}

	srcs := make([]config.Source, 0, len(b.propsSources)+1)
	srcs = append(srcs, b.propsSources...)

	// The ambient environment is applied last so it wins over
	// explicitly supplied sources.
	srcs = append(srcs, config.FromEnv())

	props, err := config.Read(srcs...)
	if err != nil {
		return nil, ConfigReadError{Cause: err}
	}
	return props, nil
}

// Build assembles the SDK. Providers are constructed in dependency
// order: resource, then meter provider, then tracer and logger providers
// which may emit self monitoring metrics during their own construction,
// then propagators. Every provider in the returned [SDK] reports the
// same customized resource.
//
// Any error aborts the assembly, no partial [SDK] is returned and
// providers constructed before the failing step are not shut down.
func (b *Builder) Build(ctx context.Context) (*SDK, error) {
	err := b.discoverAndMerge()
	if err != nil {
		return nil, err
	}

	props, err := b.readProperties()
	if err != nil {
		return nil, err
	}

	log := b.logger()

	res, err := b.buildResource(props)
	if err != nil {
		return nil, err
	}

	mp, err := b.buildMeterProvider(ctx, res, props)
	if err != nil {
		return nil, err
	}

	tp, err := b.buildTracerProvider(ctx, res, props, mp)
	if err != nil {
		return nil, err
	}

	lp, err := b.buildLoggerProvider(ctx, res, props, mp)
	if err != nil {
		return nil, err
	}

	propagator, err := b.buildPropagator(props)
	if err != nil {
		return nil, err
	}

	sdk := &SDK{
		res:            res,
		tracerProvider: tp,
		meterProvider:  mp,
		loggerProvider: lp,
		propagator:     propagator,
		log:            log,
	}

	if b.setAsGlobal {
		err = sdk.Install()
		if err != nil {
			return nil, err
		}
	}

	if b.registerShutdown {
		lc, ok := lifecycle.FromContext(ctx)
		if ok {
			lc.OnPostRun(sdk.ShutdownHook())
		}
	}
	return sdk, nil
}

// ConfigReadError
type ConfigReadError struct {
	Cause error
}

// Error implements the [builtin.error] interface.
func (e ConfigReadError) Error() string {
	return fmt.Sprintf("failed to read property source(s): %s", e.Cause)
}

// Unwrap implements the implicit interface used by [errors.Is] and [errors.As].
func (e ConfigReadError) Unwrap() error {
	return e.Cause
}

// PluginError
type PluginError struct {
	Capability string
	Cause      error
}

// Error implements the [builtin.error] interface.
func (e PluginError) Error() string {
	return fmt.Sprintf("plugin for capability %q failed: %s", e.Capability, e.Cause)
}

// Unwrap implements the implicit interface used by [errors.Is] and [errors.As].
func (e PluginError) Unwrap() error {
	return e.Cause
}

// ConfigurationError occurs when a property names a component the SDK
// does not recognize.
type ConfigurationError struct {
	Key   string
	Value string
}

// Error implements the [builtin.error] interface.
func (e ConfigurationError) Error() string {
	return fmt.Sprintf("unrecognized value %q for property %q", e.Value, e.Key)
}
