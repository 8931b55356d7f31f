// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package config

// Map is an ordinary map[string]string but implements the Source interface.
type Map map[string]string

// Apply implements the Source interface.
func (m Map) Apply(store Store) error {
	for k, v := range m {
		store.Set(k, v)
	}
	return nil
}
