// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package autotel

import (
	"github.com/z5labs/autotel/config"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// buildResource resolves the resource every assembled provider will
// report. Ambient detection is delegated to [resource.Default], property
// supplied attributes are merged on top and the resolved resource
// customizer is applied last.
func (b *Builder) buildResource(props *config.Properties) (*resource.Resource, error) {
	attrStrs, err := props.StringMap("otel.resource.attributes")
	if err != nil {
		return nil, err
	}

	attrs := make([]attribute.KeyValue, 0, len(attrStrs)+1)
	for k, v := range attrStrs {
		attrs = append(attrs, attribute.String(k, v))
	}
	if name, ok := props.String("otel.service.name"); ok {
		attrs = append(attrs, semconv.ServiceName(name))
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(attrs...))
	if err != nil {
		return nil, err
	}
	return b.resourceCustomizers.resolve()(res, props)
}
