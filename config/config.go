// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package config

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/cast"
)

// Store represents a flat key value structure.
type Store interface {
	Set(key, value string)
}

// Source defines valid property sources as those who can
// serialize themselves into a flat key value structure.
type Source interface {
	Apply(Store) error
}

// Properties is an immutable snapshot of merged configuration properties.
// It is constructed once per SDK assembly and never mutated afterwards.
type Properties struct {
	m map[string]string
}

type mapStore map[string]string

func (s mapStore) Set(key, value string) {
	s[normalizeKey(key)] = value
}

// Read merges the given sources into a single [Properties] snapshot.
// Subsequent sources override previous sources on key collision.
func Read(srcs ...Source) (*Properties, error) {
	store := make(mapStore)
	for _, src := range srcs {
		err := src.Apply(store)
		if err != nil {
			return nil, err
		}
	}
	return &Properties{m: store}, nil
}

// normalizeKey lowercases the key so lookups are case-insensitive.
// Environment style separators are folded to the dotted property form.
func normalizeKey(key string) string {
	return strings.ReplaceAll(strings.ToLower(key), "_", ".")
}

// String returns the raw value for key and whether it was set.
func (p *Properties) String(key string) (string, bool) {
	v, ok := p.m[normalizeKey(key)]
	return v, ok
}

// StringOr returns the value for key or fallback if the key is not set.
func (p *Properties) StringOr(key, fallback string) string {
	v, ok := p.String(key)
	if !ok || v == "" {
		return fallback
	}
	return v
}

// IntOr returns the value for key parsed as an int or fallback if
// the key is not set.
func (p *Properties) IntOr(key string, fallback int) (int, error) {
	v, ok := p.String(key)
	if !ok {
		return fallback, nil
	}
	n, err := cast.ToIntE(v)
	if err != nil {
		return 0, ValueError{Key: key, Value: v, Cause: err}
	}
	return n, nil
}

// Float64Or returns the value for key parsed as a float64 or fallback
// if the key is not set.
func (p *Properties) Float64Or(key string, fallback float64) (float64, error) {
	v, ok := p.String(key)
	if !ok {
		return fallback, nil
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, ValueError{Key: key, Value: v, Cause: err}
	}
	return f, nil
}

// BoolOr returns the value for key parsed as a bool or fallback if
// the key is not set.
func (p *Properties) BoolOr(key string, fallback bool) (bool, error) {
	v, ok := p.String(key)
	if !ok {
		return fallback, nil
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return false, ValueError{Key: key, Value: v, Cause: err}
	}
	return b, nil
}

// DurationOr returns the value for key parsed as a [time.Duration] or
// fallback if the key is not set. A bare integer value is interpreted
// as a number of milliseconds.
func (p *Properties) DurationOr(key string, fallback time.Duration) (time.Duration, error) {
	v, ok := p.String(key)
	if !ok {
		return fallback, nil
	}
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Duration(n) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, ValueError{Key: key, Value: v, Cause: err}
	}
	return d, nil
}

// StringList returns the value for key split on commas. Entries are
// trimmed of whitespace and empty entries are dropped.
func (p *Properties) StringList(key string) []string {
	v, ok := p.String(key)
	if !ok {
		return nil
	}
	var vals []string
	for _, s := range strings.Split(v, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		vals = append(vals, s)
	}
	return vals
}

// StringMap returns the value for key interpreted as a comma separated
// list of key=value entries. Malformed entries are reported as a [ValueError].
func (p *Properties) StringMap(key string) (map[string]string, error) {
	v, ok := p.String(key)
	if !ok {
		return nil, nil
	}
	m := make(map[string]string)
	for _, entry := range strings.Split(v, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		k, val, found := strings.Cut(entry, "=")
		if !found || strings.TrimSpace(k) == "" {
			return nil, ValueError{Key: key, Value: v, Cause: fmt.Errorf("invalid map entry: %q", entry)}
		}
		m[strings.TrimSpace(k)] = strings.TrimSpace(val)
	}
	return m, nil
}

// Unmarshal decodes all properties under the given dotted prefix into v.
// The remaining key segments are treated as a nested structure and decoded
// with the "config" struct tag.
func (p *Properties) Unmarshal(prefix string, v any) error {
	prefix = normalizeKey(prefix)
	if prefix != "" && !strings.HasSuffix(prefix, ".") {
		prefix += "."
	}

	nested := make(map[string]any)
	for k, val := range p.m {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		setNested(nested, strings.Split(strings.TrimPrefix(k, prefix), "."), val)
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "config",
		Result:           v,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			millisecondDurationHookFunc(),
			mapstructure.StringToTimeDurationHookFunc(),
		),
	})
	if err != nil {
		return err
	}
	return dec.Decode(nested)
}

// millisecondDurationHookFunc decodes a bare integer string into a
// [time.Duration] as a number of milliseconds, the same convention
// [Properties.DurationOr] follows. Values with a unit fall through to
// [mapstructure.StringToTimeDurationHookFunc].
func millisecondDurationHookFunc() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if from.Kind() != reflect.String || to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		n, err := strconv.ParseInt(data.(string), 10, 64)
		if err != nil {
			return data, nil
		}
		return time.Duration(n) * time.Millisecond, nil
	}
}

func setNested(m map[string]any, path []string, value string) {
	for i, seg := range path {
		if i == len(path)-1 {
			m[seg] = value
			return
		}
		sub, ok := m[seg].(map[string]any)
		if !ok {
			sub = make(map[string]any)
			m[seg] = sub
		}
		m = sub
	}
}

// ValueError occurs when a property value can not be coerced
// to the requested type.
type ValueError struct {
	Key   string
	Value string
	Cause error
}

// Error implements the [builtin.error] interface.
func (e ValueError) Error() string {
	return fmt.Sprintf("invalid value %q for property %q: %s", e.Value, e.Key, e.Cause)
}

// Unwrap implements the implicit interface used by [errors.Is] and [errors.As].
func (e ValueError) Unwrap() error {
	return e.Cause
}
