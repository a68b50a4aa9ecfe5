package store

import (
	"fmt"
	"log/slog"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// decodeValue maps an input value of arbitrary shape onto the declared
// target type. The dispatch order matters: document encodings flatten
// maps with non-string keys into lists of pairs, so lists are examined
// before the same-type passthrough. A nil context marks the privileged
// key-reading path, which admits scalar shapes only.
func (in *DocumentDecodeInput) decodeValue(cx *CodecContext, value any, typ reflect.Type) (any, error) {
	if typ == nil {
		typ = anyType
	}

	// Null input materializes empty containers for container-typed targets.
	if value == nil {
		switch typ.Kind() {
		case reflect.Slice:
			return reflect.MakeSlice(typ, 0, 0).Interface(), nil
		case reflect.Map:
			return reflect.MakeMap(typ).Interface(), nil
		case reflect.Array:
			return reflect.New(typ).Elem().Interface(), nil
		}
		return nil, nil
	}

	if list, ok := value.([]any); ok {
		return in.decodeList(cx, list, typ)
	}

	// Same-type passthrough.
	if typ == anyType {
		return value, nil
	}
	if rt := reflect.TypeOf(value); rt.AssignableTo(typ) {
		return value, nil
	}

	if s, ok := value.(string); ok && cx != nil {
		if v, handled, err := decodeEnum(cx, s, typ); handled {
			return v, err
		}
	}

	if doc, ok := asDocument(value); ok {
		return in.decodeDocument(cx, doc, typ)
	}

	switch typ.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return coerceScalar(value, typ)
	}
	return value, nil
}

// decodeList handles list-shaped input: pair-encoded maps, arrays,
// slices, and untyped targets.
func (in *DocumentDecodeInput) decodeList(cx *CodecContext, list []any, typ reflect.Type) (any, error) {
	switch typ.Kind() {
	case reflect.Map:
		return in.decodePairs(cx, list, typ)

	case reflect.Array:
		n := typ.Len()
		if len(list) > n {
			return nil, decodeErrf("", typ, nil, "list of %d elements does not fit array of %d", len(list), n)
		}
		arr := reflect.New(typ).Elem()
		for i, el := range list {
			dv, err := in.decodeValue(cx, el, typ.Elem())
			if err != nil {
				return nil, err
			}
			if err := assignTo(arr.Index(i), dv); err != nil {
				return nil, err
			}
		}
		return arr.Interface(), nil

	case reflect.Slice:
		out := reflect.MakeSlice(typ, len(list), len(list))
		for i, el := range list {
			dv, err := in.decodeValue(cx, el, typ.Elem())
			if err != nil {
				return nil, err
			}
			if err := assignTo(out.Index(i), dv); err != nil {
				return nil, err
			}
		}
		return out.Interface(), nil

	case reflect.Interface:
		if typ == anyType {
			out := make([]any, len(list))
			for i, el := range list {
				dv, err := in.decodeValue(cx, el, anyType)
				if err != nil {
					return nil, err
				}
				out[i] = dv
			}
			return out, nil
		}
	}

	if cx == nil {
		return nil, fmt.Errorf("%w: list value", ErrNonPrimitiveKey)
	}
	return list, nil
}

// decodePairs interprets a list of [key, value] pairs as a map.
func (in *DocumentDecodeInput) decodePairs(cx *CodecContext, list []any, typ reflect.Type) (any, error) {
	kt, vt := typ.Key(), typ.Elem()
	m := reflect.MakeMapWithSize(typ, len(list))
	for _, el := range list {
		pair, ok := el.([]any)
		if !ok || len(pair) != 2 {
			return nil, decodeErrf("", typ, nil, "malformed map entry pair %T", el)
		}
		kd, err := in.decodeMapKey(cx, pair[0], kt)
		if err != nil {
			return nil, err
		}
		vd, err := in.decodeValue(cx, pair[1], vt)
		if err != nil {
			return nil, err
		}
		if err := setMapEntry(m, kd, vd); err != nil {
			return nil, err
		}
	}
	return m.Interface(), nil
}

// decodeDocument handles map-node input: map targets and nested objects,
// honoring a resolvable __class tag.
func (in *DocumentDecodeInput) decodeDocument(cx *CodecContext, doc Document, typ reflect.Type) (any, error) {
	if cx == nil {
		return nil, fmt.Errorf("%w: document value", ErrNonPrimitiveKey)
	}

	if typ.Kind() == reflect.Map {
		kt, vt := typ.Key(), typ.Elem()
		m := reflect.MakeMapWithSize(typ, len(doc))
		for k, v := range doc {
			kd, err := in.decodeMapKey(cx, k, kt)
			if err != nil {
				return nil, err
			}
			vd, err := in.decodeValue(cx, v, vt)
			if err != nil {
				return nil, err
			}
			if err := setMapEntry(m, kd, vd); err != nil {
				return nil, err
			}
		}
		return m.Interface(), nil
	}

	codec, err := resolveDocumentCodec(cx, doc, typ)
	if err != nil {
		return nil, err
	}
	sub := &DocumentDecodeInput{keyFieldOverride: in.keyFieldOverride, doc: doc}
	return constructAndDecode(cx, codec, sub)
}

// resolveDocumentCodec picks the codec for a nested object: the __class
// tag when the registry resolves it, the statically expected type
// otherwise. An unresolved tag is not fatal.
func resolveDocumentCodec(cx *CodecContext, doc Document, typ reflect.Type) (Codec, error) {
	if name := doc.ClassName(); name != "" {
		if t, ok := cx.manager.TypeByName(name); ok {
			return cx.manager.FindCodec(t)
		}
		slog.Debug("store: decoding with declared type", "err", ErrClassResolution, "class", name)
	}
	return cx.manager.FindCodec(typ)
}

// decodeMapKey converts one serialized map key. Keys arrive as strings
// and follow the string-to-key rules; natively produced keys pass
// through the regular value path.
func (in *DocumentDecodeInput) decodeMapKey(cx *CodecContext, raw any, kt reflect.Type) (any, error) {
	if s, ok := raw.(string); ok && kt != anyType {
		return decodeKeyString(s, kt)
	}
	return in.decodeValue(cx, raw, kt)
}

// decodeEnum resolves an encoded enumeration constant, either bare
// "CONST" or tagged "<class>:<CONST>", case-insensitively. handled is
// false when the target is not a registered enumeration.
func decodeEnum(cx *CodecContext, s string, typ reflect.Type) (v any, handled bool, err error) {
	spec := cx.manager.enumByType(typ)
	if spec == nil {
		return nil, false, nil
	}
	name := s
	if cls, constant, found := strings.Cut(s, ":"); found {
		name = constant
		if other := cx.manager.enumByName(cls); other != nil {
			spec = other
		} else {
			slog.Debug("store: resolving constant in declared enum", "err", ErrClassResolution, "class", cls)
		}
	}
	c, ok := spec.constant(name)
	if !ok {
		return nil, true, fmt.Errorf("%w: %q in %s", ErrEnumValue, s, spec.name)
	}
	return c, true, nil
}

// decodeKeyString converts a serialized map key to the target type:
// strings as-is, floating-point targets through the integer bit pattern
// chosen by the encoder, integer targets as signed 64-bit decimals.
func decodeKeyString(s string, typ reflect.Type) (any, error) {
	switch typ.Kind() {
	case reflect.String:
		return reflect.ValueOf(s).Convert(typ).Interface(), nil

	case reflect.Float32, reflect.Float64:
		bits, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: float key bits %q: %v", ErrUnsupportedKey, s, err)
		}
		f := math.Float64frombits(uint64(bits))
		return reflect.ValueOf(f).Convert(typ).Interface(), nil

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: integer key %q: %v", ErrUnsupportedKey, s, err)
		}
		return reflect.ValueOf(n).Convert(typ).Interface(), nil
	}
	return nil, fmt.Errorf("%w: %v", ErrUnsupportedKey, typ)
}

// coerceScalar narrows or widens a scalar between numeric widths and
// between numeric and boolean representations. Lossy narrowing
// truncates; zero is false, nonzero is true.
func coerceScalar(value any, typ reflect.Type) (any, error) {
	rv := reflect.ValueOf(value)

	if typ.Kind() == reflect.Bool {
		var b bool
		switch rv.Kind() {
		case reflect.Bool:
			b = rv.Bool()
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			b = rv.Int() != 0
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			b = rv.Uint() != 0
		case reflect.Float32, reflect.Float64:
			b = rv.Float() != 0
		default:
			return nil, decodeErrf("", typ, nil, "cannot coerce %T", value)
		}
		return reflect.ValueOf(b).Convert(typ).Interface(), nil
	}

	switch rv.Kind() {
	case reflect.Bool:
		var n int64
		if rv.Bool() {
			n = 1
		}
		return reflect.ValueOf(n).Convert(typ).Interface(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return rv.Convert(typ).Interface(), nil
	}
	return nil, decodeErrf("", typ, nil, "cannot coerce %T", value)
}

// assignTo stores a decoded value into a settable destination, applying
// the standard Go conversion when types differ but convert.
func assignTo(dst reflect.Value, v any) error {
	if v == nil {
		dst.SetZero()
		return nil
	}
	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(dst.Type()) {
		dst.Set(rv)
		return nil
	}
	if rv.Type().ConvertibleTo(dst.Type()) {
		dst.Set(rv.Convert(dst.Type()))
		return nil
	}
	return decodeErrf("", dst.Type(), nil, "cannot assign %T", v)
}

func setMapEntry(m reflect.Value, key, value any) error {
	kv := reflect.New(m.Type().Key()).Elem()
	if err := assignTo(kv, key); err != nil {
		return err
	}
	ev := reflect.New(m.Type().Elem()).Elem()
	if err := assignTo(ev, value); err != nil {
		return err
	}
	m.SetMapIndex(kv, ev)
	return nil
}
