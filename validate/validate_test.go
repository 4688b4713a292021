package validate

import (
	"testing"
	"time"
)

func TestScalarChecks(t *testing.T) {
	cases := []struct {
		name  string
		check func(any) bool
		pass  []any
		fail  []any
	}{
		{
			name:  "string",
			check: String(),
			pass:  []any{"x", ""},
			fail:  []any{1, nil, true},
		},
		{
			name:  "non-empty string",
			check: NonEmptyString(),
			pass:  []any{"x"},
			fail:  []any{"", 1, nil},
		},
		{
			name:  "number",
			check: Number(),
			pass:  []any{float64(1.5), int(2), int8(3), uint16(4), int64(5)},
			fail:  []any{"1", nil, true, []any{1}},
		},
		{
			name:  "bool",
			check: Bool(),
			pass:  []any{true, false},
			fail:  []any{"true", 1, nil},
		},
		{
			name:  "time",
			check: Time(),
			pass:  []any{time.Now()},
			fail:  []any{"2026-08-25T00:00:00Z", int64(0), nil},
		},
		{
			name:  "any",
			check: Any(),
			pass:  []any{nil, 1, "x", map[string]any{}},
			fail:  nil,
		},
		{
			name:  "optional string",
			check: Optional(String()),
			pass:  []any{"x", "", nil},
			fail:  []any{1, true, []any{"x"}},
		},
	}

	for _, tc := range cases {
		for _, v := range tc.pass {
			if !tc.check(v) {
				t.Fatalf("%s: expected %#v to pass", tc.name, v)
			}
		}
		for _, v := range tc.fail {
			if tc.check(v) {
				t.Fatalf("%s: expected %#v to fail", tc.name, v)
			}
		}
	}
}

func TestSliceOf(t *testing.T) {
	check := SliceOf(String())
	if !check([]any{"a", "b"}) {
		t.Fatalf("expected string slice to pass")
	}
	if !check([]any{}) {
		t.Fatalf("expected empty slice to pass")
	}
	if check([]any{"a", 2}) {
		t.Fatalf("expected mixed slice to fail")
	}
	if check("not a slice") {
		t.Fatalf("expected non-slice to fail")
	}
}

func TestObject(t *testing.T) {
	check := Object(Fields{
		"id":   NonEmptyString(),
		"tags": SliceOf(String()),
		"meta": nil, // presence only
	})

	valid := map[string]any{
		"id":    "x-1",
		"tags":  []any{"a"},
		"meta":  map[string]any{"k": "v"},
		"extra": true,
	}
	if !check(valid) {
		t.Fatalf("expected valid object to pass")
	}

	missing := map[string]any{"id": "x-1", "tags": []any{}}
	if check(missing) {
		t.Fatalf("expected missing field to fail")
	}

	wrongShape := map[string]any{"id": "", "tags": []any{}, "meta": 1}
	if check(wrongShape) {
		t.Fatalf("expected failing field check to fail")
	}

	if check("not an object") {
		t.Fatalf("expected non-object to fail")
	}
}

func TestOptionalObjectFields(t *testing.T) {
	check := Object(Fields{
		"id":   NonEmptyString(),
		"v":    Any(),
		"note": Optional(String()),
	})

	if !check(map[string]any{"id": "x-1", "v": 1}) {
		t.Fatalf("expected object without optional field to pass")
	}
	if !check(map[string]any{"id": "x-1", "v": 1, "note": nil}) {
		t.Fatalf("expected null optional field to pass")
	}
	if !check(map[string]any{"id": "x-1", "v": 1, "note": "hi"}) {
		t.Fatalf("expected present optional field to pass")
	}
	if check(map[string]any{"id": "x-1", "v": 1, "note": 7}) {
		t.Fatalf("expected wrong-shape optional field to fail")
	}
	if check(map[string]any{"v": 1, "note": "hi"}) {
		t.Fatalf("expected missing required field to fail")
	}
	if check(map[string]any{"id": "x-1", "note": "hi"}) {
		t.Fatalf("expected missing any-checked field to fail")
	}
}

func TestAndOr(t *testing.T) {
	stringy := And(String(), NonEmptyString())
	if !stringy("x") || stringy("") || stringy(1) {
		t.Fatalf("and combinator misbehaved")
	}

	flexible := Or(String(), Number())
	if !flexible("x") || !flexible(float64(2)) || flexible(true) {
		t.Fatalf("or combinator misbehaved")
	}

	if Or()(1) {
		t.Fatalf("empty or must reject")
	}
	if !And()(1) {
		t.Fatalf("empty and must accept")
	}
}
