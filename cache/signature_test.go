package cache

import (
	"strings"
	"testing"
	"time"
)

func joinWithSeparator(parts ...string) string {
	return strings.Join(parts, SignatureSeparator)
}

type condition struct {
	Field string
	Op    string
	Value any
	skip  bool
}

func TestSignature_BasicTypes(t *testing.T) {
	builder := NewSignatureBuilder()

	tests := []struct {
		name  string
		parts []any
		want  string
	}{
		{name: "no parts", parts: nil, want: ""},
		{name: "single int", parts: []any{42}, want: "42"},
		{name: "mixed", parts: []any{1, "hello", true, 3.14}, want: joinWithSeparator("1", `"hello"`, "true", "3.14")},
		{name: "int widths agree", parts: []any{int8(7), int64(7)}, want: joinWithSeparator("7", "7")},
		{name: "quoted strings", parts: []any{"a,b"}, want: `"a,b"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := builder.Signature(tt.parts...); got != tt.want {
				t.Errorf("Signature() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSignature_NilValues(t *testing.T) {
	builder := NewSignatureBuilder()

	tests := []struct {
		name string
		part any
		want string
	}{
		{name: "nil interface", part: nil, want: "nil"},
		{name: "nil pointer", part: (*int)(nil), want: "nil"},
		{name: "nil slice", part: ([]int)(nil), want: "slice:nil"},
		{name: "nil map", part: (map[string]int)(nil), want: "map:nil"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := builder.Signature(tt.part); got != tt.want {
				t.Errorf("Signature() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSignature_Collections(t *testing.T) {
	builder := NewSignatureBuilder()

	tests := []struct {
		name string
		part any
		want string
	}{
		{name: "empty slice", part: []int{}, want: "slice[0]:{}"},
		{name: "int slice", part: []int{1, 2, 3}, want: "slice[3]:{1,2,3}"},
		{name: "nested slice", part: [][]int{{1, 2}, {3}}, want: "slice[2]:{slice[2]:{1,2},slice[1]:{3}}"},
		{name: "array", part: [2]string{"a", "b"}, want: `array[2]:{"a","b"}`},
		{name: "bytes", part: []byte("ab"), want: `bytes:"ab"`},
		{name: "map sorted", part: map[string]int{"b": 2, "a": 1}, want: `map[2]:{"a"=1,"b"=2}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := builder.Signature(tt.part); got != tt.want {
				t.Errorf("Signature() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSignature_Structs(t *testing.T) {
	builder := NewSignatureBuilder()

	got := builder.Signature(condition{Field: "age", Op: ">", Value: 3, skip: true})
	want := `struct:{Field:"age",Op:">",Value:3}`
	if got != want {
		t.Errorf("Signature() = %v, want %v", got, want)
	}

	ptr := &condition{Field: "age", Op: ">", Value: 3}
	if builder.Signature(ptr) != want {
		t.Error("expected pointers to render like their target")
	}
}

func TestSignature_TextMarshalers(t *testing.T) {
	builder := NewSignatureBuilder()

	a := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	b := a.Add(time.Second)

	if builder.Signature(a) == builder.Signature(b) {
		t.Error("expected different times to produce different signatures")
	}
	if got := builder.Signature(a); got != "text:2024-01-02T03:04:05Z" {
		t.Errorf("unexpected time rendering %q", got)
	}
}

func TestSignature_Stability(t *testing.T) {
	builder := NewSignatureBuilder()
	parts := []any{
		[]condition{{Field: "name", Op: "=", Value: "x"}, {Field: "age", Op: "IN", Value: []int{1, 2}}},
		map[string]bool{"z": true, "a": false, "m": true},
		[2]int{0, 10},
	}

	first := builder.Signature(parts...)
	for i := 0; i < 50; i++ {
		if got := builder.Signature(parts...); got != first {
			t.Fatalf("signature changed between calls: %q vs %q", first, got)
		}
	}
}

func TestSignature_Funcs(t *testing.T) {
	builder := NewSignatureBuilder()
	got := builder.Signature(func() {})
	if got != "type:func()" {
		t.Errorf("expected funcs to render as their type, got %q", got)
	}
}
