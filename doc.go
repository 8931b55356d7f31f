// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package autotel assembles the OpenTelemetry SDK from configuration
// properties and discovered plugins.
//
// A [Builder] merges properties from the ambient environment and any
// explicitly supplied sources, discovers plugins through a
// [plugin.Loader], and constructs the trace, metric and log pipelines in
// dependency order. The result is a single [SDK] handle which owns the
// coordinated shutdown of everything it assembled.
//
//	sdk, err := autotel.NewBuilder().
//	    AddPropertySource(config.Map{
//	        "otel.service.name":    "echo",
//	        "otel.traces.exporter": "otlp",
//	    }).
//	    Build(ctx)
//	if err != nil {
//	    return err
//	}
//	defer sdk.Shutdown(ctx)
//
// Auto configured components can be customized by registering
// [Customizer]s on the [Builder], either directly or from a discovered
// plugin, for example by delegating to them from a wrapper that tweaks
// behavior such as filtering out telemetry attributes.
package autotel
