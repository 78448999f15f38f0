// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package vartype provides a generic optional value. The acquisition snapshot uses it to
// distinguish "no fix yet" and "no address yet" from legitimate zero values.
package vartype

import (
	"fmt"
)

// Variable holds a value of type T together with a flag tracking whether it has been set.
type Variable[T any] struct {
	value T
	isset bool
}

// NewVariable returns a Variable holding the given value.
func NewVariable[T any](value T) Variable[T] {
	return Variable[T]{
		isset: true,
		value: value,
	}
}

// Reset clears the held value and marks the Variable as unset.
func (v *Variable[T]) Reset() {
	var newVal T
	v.value = newVal
	v.isset = false
}

// Value returns the held value. For an unset Variable it returns the zero value of T.
func (v *Variable[T]) Value() T {
	return v.value
}

// Set stores the given value and marks the Variable as set.
func (v *Variable[T]) Set(val T) {
	v.value = val
	v.isset = true
}

// IsSet reports whether the Variable holds a value.
func (v *Variable[T]) IsSet() bool {
	return v.isset
}

// String renders the held value, or a placeholder when unset.
func (v Variable[T]) String() string {
	if !v.isset {
		return "not available"
	}
	return fmt.Sprint(v.value)
}
