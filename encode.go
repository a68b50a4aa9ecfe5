package store

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
)

// encodeValue translates a domain value to its document form. Scalars
// pass through; lists and maps are rebuilt recursively; objects encode
// through their codec. The declared type drives polymorphism tagging.
func encodeValue(cx *CodecContext, value any, declared reflect.Type) (any, error) {
	if value == nil {
		return nil, nil
	}
	rv := reflect.ValueOf(value)

	if cx != nil {
		if spec := cx.manager.enumByType(rv.Type()); spec != nil {
			name, ok := spec.names[value]
			if !ok {
				return nil, fmt.Errorf("%w: unregistered constant %v of %v", ErrEnumValue, value, rv.Type())
			}
			if spec.tagged {
				return spec.name + ":" + name, nil
			}
			return name, nil
		}
	}

	switch rv.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return value, nil

	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return value, nil // raw bytes pass through
		}
		return encodeList(cx, rv)

	case reflect.Array:
		return encodeList(cx, rv)

	case reflect.Map:
		return encodeMap(cx, rv)

	case reflect.Ptr:
		if rv.IsNil() {
			return nil, nil
		}
		if rv.Type().Elem().Kind() == reflect.Struct {
			return encodeObject(cx, value, declared)
		}
		return encodeValue(cx, rv.Elem().Interface(), declared)

	case reflect.Struct:
		return encodeObject(cx, value, declared)
	}
	return nil, fmt.Errorf("store: cannot encode %T", value)
}

func encodeList(cx *CodecContext, rv reflect.Value) (any, error) {
	n := rv.Len()
	et := rv.Type().Elem()
	out := make([]any, n)
	for i := 0; i < n; i++ {
		ev, err := encodeValue(cx, rv.Index(i).Interface(), et)
		if err != nil {
			return nil, err
		}
		out[i] = ev
	}
	return out, nil
}

// encodeMap emits string-keyed maps as document nodes, and maps with any
// other key type as a list of [key, value] pairs with stringified keys.
// Pairs are sorted by key string for deterministic output.
func encodeMap(cx *CodecContext, rv reflect.Value) (any, error) {
	vt := rv.Type().Elem()

	if rv.Type().Key().Kind() == reflect.String {
		doc := make(Document, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			ev, err := encodeValue(cx, iter.Value().Interface(), vt)
			if err != nil {
				return nil, err
			}
			doc[iter.Key().String()] = ev
		}
		return doc, nil
	}

	type pair struct {
		k string
		v any
	}
	pairs := make([]pair, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		ks, err := KeyString(iter.Key().Interface())
		if err != nil {
			return nil, err
		}
		ev, err := encodeValue(cx, iter.Value().Interface(), vt)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, pair{ks, ev})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].k < pairs[j].k })
	out := make([]any, len(pairs))
	for i, p := range pairs {
		out[i] = []any{p.k, p.v}
	}
	return out, nil
}

// encodeObject encodes a struct through its codec and tags the resulting
// map node with __class when the concrete type is registered under a
// name and either differs from the declared target or is marked as
// always tagged.
func encodeObject(cx *CodecContext, value any, declared reflect.Type) (any, error) {
	if cx == nil {
		return nil, fmt.Errorf("%w: object value in key position", ErrNonPrimitiveKey)
	}
	base := reflect.TypeOf(value)
	if base.Kind() == reflect.Ptr {
		base = base.Elem()
	}
	codec, err := cx.manager.FindCodec(base)
	if err != nil {
		return nil, err
	}
	out := NewDocumentEncodeOutput()
	if err := codec.Encode(cx, value, out); err != nil {
		return nil, err
	}
	doc := out.Document()
	if name, ok := cx.manager.typeNames[base]; ok {
		if cx.manager.taggedTypes[base] || polymorphicMismatch(declared, base) {
			doc[ClassNameField] = name
		}
	}
	return doc, nil
}

func polymorphicMismatch(declared, dynamic reflect.Type) bool {
	if declared == nil {
		return false
	}
	if declared.Kind() == reflect.Ptr {
		declared = declared.Elem()
	}
	if declared.Kind() == reflect.Interface {
		return true
	}
	return declared != dynamic
}

// KeyString serializes a map or primary key to its canonical string
// form: strings as-is, integers as signed decimal text, floating-point
// numbers as the decimal text of their IEEE-754 bit pattern.
func KeyString(key any) (string, error) {
	rv := reflect.ValueOf(key)
	switch rv.Kind() {
	case reflect.String:
		return rv.String(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatInt(int64(rv.Uint()), 10), nil
	case reflect.Float32, reflect.Float64:
		return strconv.FormatInt(int64(math.Float64bits(rv.Float())), 10), nil
	}
	return "", fmt.Errorf("%w: %T", ErrUnsupportedKey, key)
}
