// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package autotel

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/z5labs/autotel/config"
	"github.com/z5labs/autotel/lifecycle"
	"github.com/z5labs/autotel/plugin"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// nonePipelines disables every exporter so tests never touch the network.
var nonePipelines = config.Map{
	"otel.traces.exporter":  "none",
	"otel.metrics.exporter": "none",
	"otel.logs.exporter":    "none",
}

type captureSpanProcessor struct {
	mu    sync.Mutex
	ended []sdktrace.ReadOnlySpan
}

func (p *captureSpanProcessor) OnStart(parent context.Context, s sdktrace.ReadWriteSpan) {}

func (p *captureSpanProcessor) OnEnd(s sdktrace.ReadOnlySpan) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ended = append(p.ended, s)
}

func (p *captureSpanProcessor) Shutdown(ctx context.Context) error {
	return nil
}

func (p *captureSpanProcessor) ForceFlush(ctx context.Context) error {
	return nil
}

func (p *captureSpanProcessor) endedSpans() []sdktrace.ReadOnlySpan {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]sdktrace.ReadOnlySpan(nil), p.ended...)
}

type customizeFunc func(*Builder) error

func (f customizeFunc) Customize(b *Builder) error {
	return f(b)
}

type configureFunc func(*TracerProviderBuilder, *config.Properties) error

func (f configureFunc) Configure(tpb *TracerProviderBuilder, props *config.Properties) error {
	return f(tpb, props)
}

func TestBuilder_Build(t *testing.T) {
	t.Run("will apply the customized resource to every provider", func(t *testing.T) {
		t.Run("if a resource customizer is registered", func(t *testing.T) {
			processor := new(captureSpanProcessor)

			b := NewBuilder().
				AddPropertySource(nonePipelines).
				AddResourceCustomizer(func(res *resource.Resource, _ *config.Properties) (*resource.Resource, error) {
					return resource.Merge(res, resource.NewSchemaless(attribute.String("team", "obs")))
				}).
				AddTracerProviderCustomizer(func(tpb *TracerProviderBuilder, _ *config.Properties) (*TracerProviderBuilder, error) {
					return tpb.AddSpanProcessor(processor), nil
				})

			sdk, err := b.Build(context.Background())
			require.NoError(t, err)

			v, ok := sdk.Resource().Set().Value("team")
			require.True(t, ok)
			require.Equal(t, "obs", v.AsString())

			_, span := sdk.TracerProvider().Tracer("test").Start(context.Background(), "op")
			span.End()

			spans := processor.endedSpans()
			require.Len(t, spans, 1)

			v, ok = spans[0].Resource().Set().Value("team")
			require.True(t, ok)
			require.Equal(t, "obs", v.AsString())
		})
	})

	t.Run("will prefer ambient environment properties", func(t *testing.T) {
		t.Run("if a supplied source sets the same key", func(t *testing.T) {
			t.Setenv("OTEL_SERVICE_NAME", "from-env")

			b := NewBuilder().
				AddPropertySource(nonePipelines).
				AddPropertySource(config.Map{"otel.service.name": "from-map"})

			sdk, err := b.Build(context.Background())
			require.NoError(t, err)

			v, ok := sdk.Resource().Set().Value("service.name")
			require.True(t, ok)
			require.Equal(t, "from-env", v.AsString())
		})
	})

	t.Run("will merge supplied sources in order", func(t *testing.T) {
		t.Run("if multiple sources set the same key", func(t *testing.T) {
			b := NewBuilder().
				AddPropertySource(nonePipelines).
				AddPropertySource(config.Map{"otel.service.name": "first"}).
				AddPropertySource(config.Map{"otel.service.name": "second"})

			sdk, err := b.Build(context.Background())
			require.NoError(t, err)

			v, ok := sdk.Resource().Set().Value("service.name")
			require.True(t, ok)
			require.Equal(t, "second", v.AsString())
		})
	})

	t.Run("will ignore supplied sources", func(t *testing.T) {
		t.Run("if a properties snapshot was set explicitly", func(t *testing.T) {
			props, err := config.Read(nonePipelines, config.Map{"otel.service.name": "from-snapshot"})
			require.NoError(t, err)

			b := NewBuilder().
				SetProperties(props).
				AddPropertySource(config.Map{"otel.service.name": "from-source"})

			sdk, err := b.Build(context.Background())
			require.NoError(t, err)

			v, ok := sdk.Resource().Set().Value("service.name")
			require.True(t, ok)
			require.Equal(t, "from-snapshot", v.AsString())
		})
	})

	t.Run("will abort the assembly", func(t *testing.T) {
		t.Run("if a resource customizer fails", func(t *testing.T) {
			customizeErr := errors.New("failed to customize resource")

			b := NewBuilder().
				AddPropertySource(nonePipelines).
				AddResourceCustomizer(func(res *resource.Resource, _ *config.Properties) (*resource.Resource, error) {
					return nil, customizeErr
				})

			sdk, err := b.Build(context.Background())
			require.ErrorIs(t, err, customizeErr)
			require.Nil(t, sdk)
		})

		t.Run("if a plugin fails to customize", func(t *testing.T) {
			customizeErr := errors.New("failed to customize")

			loader := plugin.LoaderFunc(func(capability string) []any {
				if capability != CapabilityCustomizer {
					return nil
				}
				return []any{customizeFunc(func(b *Builder) error {
					return customizeErr
				})}
			})

			b := NewBuilder().
				AddPropertySource(nonePipelines).
				PluginLoader(loader)

			sdk, err := b.Build(context.Background())
			require.ErrorIs(t, err, customizeErr)
			require.Nil(t, sdk)

			var perr PluginError
			require.ErrorAs(t, err, &perr)
			require.Equal(t, CapabilityCustomizer, perr.Capability)
		})

		t.Run("if a legacy tracer provider configurer fails", func(t *testing.T) {
			configureErr := errors.New("failed to configure tracer provider")

			loader := plugin.LoaderFunc(func(capability string) []any {
				if capability != CapabilityTracerProviderConfigurer {
					return nil
				}
				return []any{configureFunc(func(tpb *TracerProviderBuilder, _ *config.Properties) error {
					return configureErr
				})}
			})

			b := NewBuilder().
				AddPropertySource(nonePipelines).
				PluginLoader(loader)

			sdk, err := b.Build(context.Background())
			require.ErrorIs(t, err, configureErr)
			require.Nil(t, sdk)

			var perr PluginError
			require.ErrorAs(t, err, &perr)
			require.Equal(t, CapabilityTracerProviderConfigurer, perr.Capability)
		})

		t.Run("if a plugin does not implement the capability", func(t *testing.T) {
			loader := plugin.LoaderFunc(func(capability string) []any {
				if capability != CapabilityCustomizer {
					return nil
				}
				return []any{"not a customizer provider"}
			})

			b := NewBuilder().
				AddPropertySource(nonePipelines).
				PluginLoader(loader)

			sdk, err := b.Build(context.Background())
			require.Nil(t, sdk)

			var perr PluginError
			require.ErrorAs(t, err, &perr)
			require.Equal(t, CapabilityCustomizer, perr.Capability)
		})
	})

	t.Run("will discover plugins at most once", func(t *testing.T) {
		t.Run("if Build is invoked multiple times", func(t *testing.T) {
			loads := 0
			customizes := 0

			loader := plugin.LoaderFunc(func(capability string) []any {
				if capability != CapabilityCustomizer {
					return nil
				}
				loads++
				return []any{customizeFunc(func(b *Builder) error {
					customizes++
					return nil
				})}
			})

			b := NewBuilder().
				AddPropertySource(nonePipelines).
				PluginLoader(loader)

			_, err := b.Build(context.Background())
			require.NoError(t, err)

			_, err = b.Build(context.Background())
			require.NoError(t, err)

			require.Equal(t, 1, loads)
			require.Equal(t, 1, customizes)
		})
	})

	t.Run("will run legacy tracer provider configurers first", func(t *testing.T) {
		t.Run("if generic plugins also customize the tracer provider", func(t *testing.T) {
			var order []string

			loader := plugin.LoaderFunc(func(capability string) []any {
				switch capability {
				case CapabilityTracerProviderConfigurer:
					return []any{configureFunc(func(tpb *TracerProviderBuilder, _ *config.Properties) error {
						order = append(order, "legacy")
						return nil
					})}
				case CapabilityCustomizer:
					return []any{customizeFunc(func(b *Builder) error {
						b.AddTracerProviderCustomizer(func(tpb *TracerProviderBuilder, _ *config.Properties) (*TracerProviderBuilder, error) {
							order = append(order, "generic")
							return tpb, nil
						})
						return nil
					})}
				default:
					return nil
				}
			})

			b := NewBuilder().
				AddPropertySource(nonePipelines).
				PluginLoader(loader)

			_, err := b.Build(context.Background())
			require.NoError(t, err)
			require.Equal(t, []string{"legacy", "generic"}, order)
		})
	})

	t.Run("will register the shutdown hook", func(t *testing.T) {
		t.Run("if the build context carries a lifecycle.Context", func(t *testing.T) {
			processor := new(captureSpanProcessor)

			var lc lifecycle.Context
			ctx := lifecycle.NewContext(context.Background(), &lc)

			b := NewBuilder().
				AddPropertySource(nonePipelines).
				AddTracerProviderCustomizer(func(tpb *TracerProviderBuilder, _ *config.Properties) (*TracerProviderBuilder, error) {
					return tpb.AddSpanProcessor(processor), nil
				})

			sdk, err := b.Build(ctx)
			require.NoError(t, err)

			err = lc.PostRun().Run(context.Background())
			require.NoError(t, err)

			// The tracer provider was shut down by the hook so the
			// processor no longer sees any spans.
			_, span := sdk.TracerProvider().Tracer("test").Start(context.Background(), "op")
			span.End()

			require.Empty(t, processor.endedSpans())
		})
	})

	t.Run("will skip registering the shutdown hook", func(t *testing.T) {
		t.Run("if RegisterShutdown was disabled", func(t *testing.T) {
			processor := new(captureSpanProcessor)

			var lc lifecycle.Context
			ctx := lifecycle.NewContext(context.Background(), &lc)

			b := NewBuilder().
				AddPropertySource(nonePipelines).
				RegisterShutdown(false).
				AddTracerProviderCustomizer(func(tpb *TracerProviderBuilder, _ *config.Properties) (*TracerProviderBuilder, error) {
					return tpb.AddSpanProcessor(processor), nil
				})

			sdk, err := b.Build(ctx)
			require.NoError(t, err)

			err = lc.PostRun().Run(context.Background())
			require.NoError(t, err)

			_, span := sdk.TracerProvider().Tracer("test").Start(context.Background(), "op")
			span.End()

			require.Len(t, processor.endedSpans(), 1)
		})
	})
}
