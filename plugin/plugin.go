// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package plugin provides a process wide registry for discovering SDK plugins.
//
// Plugins register themselves under a capability name, typically from an
// init function in the package which implements them, similar to how
// database/sql drivers self register. Consumers discover all instances of
// a capability through a [Loader]. The enumeration order of instances is
// unspecified but stable within a single process, it follows registration
// order.
package plugin

import "sync"

// Loader discovers all registered instances of a named capability.
type Loader interface {
	Load(capability string) []any
}

type registry struct {
	mu    sync.Mutex
	plugs map[string][]any
}

func (r *registry) register(capability string, instance any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.plugs == nil {
		r.plugs = make(map[string][]any)
	}
	r.plugs[capability] = append(r.plugs[capability], instance)
}

// Load implements the [Loader] interface.
func (r *registry) Load(capability string) []any {
	r.mu.Lock()
	defer r.mu.Unlock()

	instances := r.plugs[capability]
	if len(instances) == 0 {
		return nil
	}

	// Copy so callers can not mutate the registry.
	out := make([]any, len(instances))
	copy(out, instances)
	return out
}

var defaultRegistry = &registry{}

// Register adds instance to the process wide registry under
// the given capability name.
func Register(capability string, instance any) {
	defaultRegistry.register(capability, instance)
}

// DefaultLoader returns a [Loader] backed by the process wide registry
// populated via [Register].
func DefaultLoader() Loader {
	return defaultRegistry
}

// LoaderFunc is a func variant of the [Loader] interface.
type LoaderFunc func(capability string) []any

// Load implements the [Loader] interface.
func (f LoaderFunc) Load(capability string) []any {
	return f(capability)
}
