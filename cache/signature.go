package cache

import (
	"encoding"
	"encoding/json"
	"errors"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// SignatureSeparator defines the delimiter used between signature segments.
const SignatureSeparator = "::"

// SignatureBuilder renders query parts into a stable string. Two queries with
// the same conditions, ordering and paging must render identically across
// processes, because the result is part of a shared cache key.
type SignatureBuilder interface {
	Signature(parts ...any) string
}

// reflectSignature implements SignatureBuilder by walking values with
// reflection. Maps are rendered with sorted keys and structs with their
// exported fields in declaration order.
type reflectSignature struct{}

// NewSignatureBuilder returns the default reflection based SignatureBuilder.
func NewSignatureBuilder() SignatureBuilder {
	return reflectSignature{}
}

func (s reflectSignature) Signature(parts ...any) string {
	var b strings.Builder
	for i, p := range parts {
		if i > 0 {
			b.WriteString(SignatureSeparator)
		}
		s.write(&b, reflect.ValueOf(p))
	}
	return b.String()
}

var (
	textMarshalerType   = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
	errNotInterfaceable = errors.New("value cannot be interfaced")
)

func (s reflectSignature) write(b *strings.Builder, rv reflect.Value) {
	if !rv.IsValid() {
		b.WriteString("nil")
		return
	}

	// time.Time and friends keep their state in unexported fields
	if rv.Kind() != reflect.Pointer && rv.CanInterface() && rv.Type().Implements(textMarshalerType) {
		if text, err := rv.Interface().(encoding.TextMarshaler).MarshalText(); err == nil {
			b.WriteString("text:")
			b.Write(text)
			return
		}
	}

	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			b.WriteString("nil")
			return
		}
		s.write(b, rv.Elem())

	case reflect.Bool:
		b.WriteString(strconv.FormatBool(rv.Bool()))
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		b.WriteString(strconv.FormatInt(rv.Int(), 10))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		b.WriteString(strconv.FormatUint(rv.Uint(), 10))
	case reflect.Float32, reflect.Float64:
		b.WriteString(strconv.FormatFloat(rv.Float(), 'g', -1, 64))
	case reflect.String:
		b.WriteString(strconv.Quote(rv.String()))

	case reflect.Slice:
		if rv.IsNil() {
			b.WriteString("slice:nil")
			return
		}
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			b.WriteString("bytes:")
			b.WriteString(strconv.Quote(string(rv.Bytes())))
			return
		}
		s.writeList(b, "slice", rv)
	case reflect.Array:
		s.writeList(b, "array", rv)

	case reflect.Map:
		if rv.IsNil() {
			b.WriteString("map:nil")
			return
		}
		s.writeMap(b, rv)

	case reflect.Struct:
		s.writeStruct(b, rv)

	default:
		// funcs, channels and other kinds cannot describe a query; fall back
		// to JSON so the signature at least stays deterministic
		var (
			data []byte
			err  = errNotInterfaceable
		)
		if rv.CanInterface() {
			data, err = json.Marshal(rv.Interface())
		}
		if err != nil {
			b.WriteString("type:")
			b.WriteString(rv.Type().String())
			return
		}
		b.WriteString("json:")
		b.Write(data)
	}
}

func (s reflectSignature) writeList(b *strings.Builder, kind string, rv reflect.Value) {
	b.WriteString(kind)
	b.WriteByte('[')
	b.WriteString(strconv.Itoa(rv.Len()))
	b.WriteString("]:{")
	for i := 0; i < rv.Len(); i++ {
		if i > 0 {
			b.WriteByte(',')
		}
		s.write(b, rv.Index(i))
	}
	b.WriteByte('}')
}

func (s reflectSignature) writeMap(b *strings.Builder, rv reflect.Value) {
	type pair struct{ key, value string }
	pairs := make([]pair, 0, rv.Len())

	iter := rv.MapRange()
	for iter.Next() {
		var k, v strings.Builder
		s.write(&k, iter.Key())
		s.write(&v, iter.Value())
		pairs = append(pairs, pair{key: k.String(), value: v.String()})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].key < pairs[j].key })

	b.WriteString("map[")
	b.WriteString(strconv.Itoa(len(pairs)))
	b.WriteString("]:{")
	for i, p := range pairs {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(p.key)
		b.WriteByte('=')
		b.WriteString(p.value)
	}
	b.WriteByte('}')
}

func (s reflectSignature) writeStruct(b *strings.Builder, rv reflect.Value) {
	rt := rv.Type()
	b.WriteString("struct:{")
	first := true
	for i := 0; i < rv.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		if !first {
			b.WriteByte(',')
		}
		first = false
		b.WriteString(field.Name)
		b.WriteByte(':')
		s.write(b, rv.Field(i))
	}
	b.WriteByte('}')
}
