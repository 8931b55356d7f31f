// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package autotel

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/z5labs/autotel/internal/try"
	"github.com/z5labs/autotel/lifecycle"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// shutdownTimeout bounds how long [SDK.Shutdown] waits for the
// providers to shut down. Callers rely on this bound for exit latency
// so it is deliberately not configurable.
const shutdownTimeout = 10 * time.Second

// SDK is the immutable aggregate of all assembled providers plus the
// resource and propagators. It owns shutdown responsibility for its
// constituent providers.
type SDK struct {
	res            *resource.Resource
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	loggerProvider *sdklog.LoggerProvider
	propagator     propagation.TextMapPropagator
	log            *slog.Logger

	shutdownOnce sync.Once
	shutdownErr  error
}

// Resource returns the customized resource every provider reports.
func (sdk *SDK) Resource() *resource.Resource {
	return sdk.res
}

// TracerProvider returns the assembled tracer provider.
func (sdk *SDK) TracerProvider() trace.TracerProvider {
	return sdk.tracerProvider
}

// MeterProvider returns the assembled meter provider.
func (sdk *SDK) MeterProvider() metric.MeterProvider {
	return sdk.meterProvider
}

// LoggerProvider returns the assembled logger provider.
func (sdk *SDK) LoggerProvider() log.LoggerProvider {
	return sdk.loggerProvider
}

// TextMapPropagator returns the assembled propagator.
func (sdk *SDK) TextMapPropagator() propagation.TextMapPropagator {
	return sdk.propagator
}

// Shutdown shuts down all providers concurrently so one slow provider
// does not serialize after another. It waits for all of them to
// complete or for a fixed 10 second deadline to elapse, whichever comes
// first. Past the deadline, in flight provider shutdowns continue in
// the background but are no longer waited on.
//
// Shutdown errors are captured per provider and do not prevent the
// other providers from shutting down. Repeated calls return the result
// of the first call.
func (sdk *SDK) Shutdown(ctx context.Context) error {
	sdk.shutdownOnce.Do(func() {
		sdk.shutdownErr = sdk.shutdownWithin(ctx, shutdownTimeout)
	})
	return sdk.shutdownErr
}

func (sdk *SDK) shutdownWithin(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	shutdowns := []func(context.Context) error{
		sdk.tracerProvider.Shutdown,
		sdk.meterProvider.Shutdown,
		sdk.loggerProvider.Shutdown,
	}

	// Per provider errors are recorded independently instead of using
	// errgroup since one provider failing must not mask the others.
	errs := make([]error, len(shutdowns))
	var wg sync.WaitGroup
	for i, shutdown := range shutdowns {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer try.Recover(&errs[i])

			errs[i] = shutdown(ctx)
		}()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		wg.Wait()
	}()

	select {
	case <-done:
		return errors.Join(errs...)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ShutdownHook returns a [lifecycle.Hook] which shuts the SDK down.
// Applications which want exit time cleanup register it on their own
// exit path, for example, via [lifecycle.Context.OnPostRun].
func (sdk *SDK) ShutdownHook() lifecycle.Hook {
	return lifecycle.HookFunc(sdk.Shutdown)
}

var installed atomic.Bool

// ErrAlreadyInstalled is returned by [SDK.Install] if an SDK was
// already installed as the process wide default telemetry handle.
var ErrAlreadyInstalled = errors.New("autotel: an sdk is already installed as the global telemetry handle")

// Install sets this SDK as the process wide default telemetry handle
// by registering its providers and propagator with the otel globals.
//
// Installation is single assignment. A second call, from this or any
// other SDK, fails with [ErrAlreadyInstalled].
func (sdk *SDK) Install() error {
	if !installed.CompareAndSwap(false, true) {
		return ErrAlreadyInstalled
	}

	otel.SetTextMapPropagator(sdk.propagator)
	otel.SetTracerProvider(sdk.tracerProvider)
	otel.SetMeterProvider(sdk.meterProvider)
	global.SetLoggerProvider(sdk.loggerProvider)

	sdk.log.Debug("installed sdk as the global telemetry handle")
	return nil
}
