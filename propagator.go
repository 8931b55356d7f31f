// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package autotel

import (
	"github.com/z5labs/autotel/config"

	"go.opentelemetry.io/otel/propagation"
)

// buildPropagator resolves the configured propagators, runs each one
// through the resolved propagator customizer and composes them into a
// single [propagation.TextMapPropagator].
func (b *Builder) buildPropagator(props *config.Properties) (propagation.TextMapPropagator, error) {
	names := props.StringList("otel.propagators")
	if len(names) == 0 {
		names = []string{"tracecontext", "baggage"}
	}

	customize := b.propagatorCustomizers.resolve()

	propagators := make([]propagation.TextMapPropagator, 0, len(names))
	for _, name := range names {
		var propagator propagation.TextMapPropagator
		switch name {
		case "none":
			if len(names) > 1 {
				return nil, ConfigurationError{Key: "otel.propagators", Value: "none"}
			}
			return propagation.NewCompositeTextMapPropagator(), nil
		case "tracecontext":
			propagator = propagation.TraceContext{}
		case "baggage":
			propagator = propagation.Baggage{}
		default:
			return nil, ConfigurationError{Key: "otel.propagators", Value: name}
		}

		propagator, err := customize(propagator, props)
		if err != nil {
			return nil, err
		}
		propagators = append(propagators, propagator)
	}
	return propagation.NewCompositeTextMapPropagator(propagators...), nil
}
