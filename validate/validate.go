// Package validate builds message validators over decoded intermediates.
//
// The builders operate on the value shapes the reference codecs produce:
// map[string]any objects, []any slices, strings, bools, time.Time, and
// numeric scalars of any Go kind. Validators reject shape, not meaning;
// field conversion and strictness belong to the finalize options.
package validate

import (
	"reflect"
	"time"

	"github.com/wiremux/wiremux"
)

// Fields lists object fields and the check each must pass. A nil check
// requires presence only; wrap a check in Optional to let the field be
// absent.
type Fields map[string]wiremux.ValidateFunc

// fieldAbsent marks a listed key the object does not carry. Object hands it
// to the field's check for missing keys; only Optional accepts it.
type fieldAbsent struct{}

// Any accepts every present value.
func Any() wiremux.ValidateFunc {
	return func(v any) bool {
		_, miss := v.(fieldAbsent)
		return !miss
	}
}

// String accepts string values.
func String() wiremux.ValidateFunc {
	return func(v any) bool {
		_, ok := v.(string)
		return ok
	}
}

// NonEmptyString accepts strings with at least one byte.
func NonEmptyString() wiremux.ValidateFunc {
	return func(v any) bool {
		s, ok := v.(string)
		return ok && s != ""
	}
}

// Number accepts values of any numeric kind. JSON decodes numbers as
// float64; MessagePack preserves sized integer kinds. Both pass.
func Number() wiremux.ValidateFunc {
	return func(v any) bool {
		if v == nil {
			return false
		}
		switch reflect.ValueOf(v).Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
			reflect.Float32, reflect.Float64:
			return true
		default:
			return false
		}
	}
}

// Bool accepts boolean values.
func Bool() wiremux.ValidateFunc {
	return func(v any) bool {
		_, ok := v.(bool)
		return ok
	}
}

// Time accepts time.Time values, which binary codecs deliver natively.
// Combine with String via Or for channels that travel over both text and
// binary codecs.
func Time() wiremux.ValidateFunc {
	return func(v any) bool {
		_, ok := v.(time.Time)
		return ok
	}
}

// SliceOf accepts []any values whose every element passes elem.
func SliceOf(elem wiremux.ValidateFunc) wiremux.ValidateFunc {
	return func(v any) bool {
		items, ok := v.([]any)
		if !ok {
			return false
		}
		for _, item := range items {
			if elem != nil && !elem(item) {
				return false
			}
		}
		return true
	}
}

// Object accepts map[string]any values carrying every listed field. Fields
// beyond the listed ones pass; a field wrapped in Optional may be missing.
func Object(fields Fields) wiremux.ValidateFunc {
	return func(v any) bool {
		m, ok := v.(map[string]any)
		if !ok {
			return false
		}
		for name, check := range fields {
			fv, ok := m[name]
			if !ok {
				if check == nil {
					return false
				}
				fv = fieldAbsent{}
			}
			if check != nil && !check(fv) {
				return false
			}
		}
		return true
	}
}

// Optional accepts a missing or nil value and otherwise applies check.
func Optional(check wiremux.ValidateFunc) wiremux.ValidateFunc {
	return func(v any) bool {
		if v == nil {
			return true
		}
		if _, miss := v.(fieldAbsent); miss {
			return true
		}
		return check == nil || check(v)
	}
}

// And accepts values passing every check.
func And(checks ...wiremux.ValidateFunc) wiremux.ValidateFunc {
	return func(v any) bool {
		for _, check := range checks {
			if check != nil && !check(v) {
				return false
			}
		}
		return true
	}
}

// Or accepts values passing at least one check.
func Or(checks ...wiremux.ValidateFunc) wiremux.ValidateFunc {
	return func(v any) bool {
		for _, check := range checks {
			if check != nil && check(v) {
				return true
			}
		}
		return false
	}
}
