// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package autotel

import "github.com/z5labs/autotel/config"

// Customizer is a transform applied to an intermediate artifact during
// SDK assembly. The returned value replaces the passed in argument. Any
// error aborts the entire assembly and is returned to the caller of
// [Builder.Build].
type Customizer[T any] func(T, *config.Properties) (T, error)

// chain is an ordered sequence of [Customizer]s. Customizers are only
// ever appended, never removed.
type chain[T any] struct {
	fns []Customizer[T]
}

func (c *chain[T]) append(fn Customizer[T]) {
	c.fns = append(c.fns, fn)
}

// resolve folds the chain into a single [Customizer]. The first appended
// customizer is applied first and its output threads forward through the
// rest of the chain. Appending after resolve has no effect on the
// already resolved customizer.
func (c *chain[T]) resolve() Customizer[T] {
	fns := c.fns
	return func(v T, props *config.Properties) (T, error) {
		for _, fn := range fns {
			var err error
			v, err = fn(v, props)
			if err != nil {
				return v, err
			}
		}
		return v, nil
	}
}
