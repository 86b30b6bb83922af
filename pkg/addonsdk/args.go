// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package addonsdk

// Args are the arguments of one call. The host has already checked them
// against the declared parameter types, so the accessors do not fail; a
// missing or mistyped argument reads as the zero value.
type Args []any

// Number returns argument i as a float64.
func (a Args) Number(i int) float64 {
	if i < len(a) {
		if f, ok := a[i].(float64); ok {
			return f
		}
	}
	return 0
}

// String returns argument i as a string.
func (a Args) String(i int) string {
	if i < len(a) {
		if s, ok := a[i].(string); ok {
			return s
		}
	}
	return ""
}

// Bool returns argument i as a bool.
func (a Args) Bool(i int) bool {
	if i < len(a) {
		if b, ok := a[i].(bool); ok {
			return b
		}
	}
	return false
}

// Value returns argument i unconverted, or nil.
func (a Args) Value(i int) any {
	if i < len(a) {
		return a[i]
	}
	return nil
}
