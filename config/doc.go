// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package config provides a flat, merged view of configuration properties.
//
// Properties are read from one or more [Source]s into an immutable
// [Properties] snapshot. Subsequent sources override previous sources so
// callers control precedence by ordering sources. Keys are case-insensitive
// and environment variable style names are folded to the dotted property
// form, for example, OTEL_TRACES_EXPORTER and otel.traces.exporter resolve
// to the same value.
//
//	props, err := config.Read(
//	    config.Map{"otel.service.name": "echo"},
//	    config.FromEnv(),
//	)
//
// Typed accessors never fail due to an absent key. They return the
// provided fallback instead, only a present but malformed value produces
// a [ValueError].
package config
