package store

import (
	"fmt"
	"reflect"
	"strings"
)

// structField describes one encoded struct field.
type structField struct {
	name  string
	index []int
	typ   reflect.Type
}

// structCodec is the reflectively derived codec for a struct type.
// Field names follow the `store:"name"` tag when present, the Go field
// name otherwise; `store:"-"` skips a field.
type structCodec struct {
	typ    reflect.Type
	fields []structField
}

var _ Codec = (*structCodec)(nil)

func newStructCodec(typ reflect.Type) *structCodec {
	if typ.Kind() != reflect.Struct {
		panic(fmt.Errorf("store: %v is not a struct type", typ))
	}
	c := &structCodec{typ: typ}
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		if !f.IsExported() {
			continue
		}
		name := encodedFieldName(f)
		if name == "" {
			continue
		}
		c.fields = append(c.fields, structField{name: name, index: f.Index, typ: f.Type})
	}
	return c
}

func encodedFieldName(f reflect.StructField) string {
	tag := f.Tag.Get("store")
	if tag == "-" {
		return ""
	}
	if tag != "" {
		if i := strings.IndexByte(tag, ','); i >= 0 {
			tag = tag[:i]
		}
		if tag != "" {
			return tag
		}
	}
	return f.Name
}

func (c *structCodec) ValueType() reflect.Type {
	return c.typ
}

func (c *structCodec) Construct(cx *CodecContext, in DecodeInput) (any, error) {
	return reflect.New(c.typ).Interface(), nil
}

func (c *structCodec) DecodeFields(cx *CodecContext, value any, in DecodeInput) error {
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Ptr || rv.Elem().Type() != c.typ {
		panic(fmt.Errorf("store: decoding into %T, want *%v", value, c.typ))
	}
	rv = rv.Elem()
	for _, f := range c.fields {
		v, err := in.Read(cx, f.name, f.typ)
		if err != nil {
			return err
		}
		if v == nil {
			continue
		}
		if err := assignTo(rv.FieldByIndex(f.index), v); err != nil {
			return decodeErrf(f.name, f.typ, err, "")
		}
	}
	return nil
}

func (c *structCodec) Encode(cx *CodecContext, value any, out EncodeOutput) error {
	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}
	if rv.Type() != c.typ {
		panic(fmt.Errorf("store: encoding %T with codec for %v", value, c.typ))
	}
	for _, f := range c.fields {
		if err := out.Write(cx, f.name, rv.FieldByIndex(f.index).Interface(), f.typ); err != nil {
			return err
		}
	}
	return nil
}

// KeyFieldName overrides the document field name the primary key is
// stored under. Pass it as an option to StructCodec.
type KeyFieldName string

// structDataCodec is the derived root codec of a datastore. By
// convention the struct's first exported field holds the primary key; it
// is excluded from regular field traffic and travels through the
// privileged key slot instead.
type structDataCodec[K comparable, T any] struct {
	*structCodec
	keyFieldName string
	keyField     structField
	keyType      reflect.Type
	defaultFn    func(item *DataItem[K, T]) *T
}

// StructCodec derives the DataCodec for a struct row type. The first
// exported field is the primary key; its type must be the key type or
// one the key type converts to.
// Options: KeyFieldName, or a func(*DataItem[K, T]) *T producing default
// values.
func StructCodec[K comparable, T any](opts ...any) DataCodec[K, T] {
	typ := reflect.TypeOf((*T)(nil)).Elem()
	if typ.Kind() != reflect.Struct {
		panic(fmt.Errorf("store: row type %v is not a struct", typ))
	}
	keyType := reflect.TypeOf((*K)(nil)).Elem()

	var keyField reflect.StructField
	found := false
	for i := 0; i < typ.NumField(); i++ {
		if typ.Field(i).IsExported() {
			keyField = typ.Field(i)
			found = true
			break
		}
	}
	if !found {
		panic(fmt.Errorf("store: %v has no exported fields", typ))
	}
	if keyField.Type != keyType && !keyType.ConvertibleTo(keyField.Type) {
		panic(fmt.Errorf("store: key field %v.%s is %v, want %v", typ, keyField.Name, keyField.Type, keyType))
	}

	c := &structDataCodec[K, T]{
		structCodec:  &structCodec{typ: typ},
		keyFieldName: encodedFieldName(keyField),
		keyField:     structField{name: encodedFieldName(keyField), index: keyField.Index, typ: keyField.Type},
		keyType:      keyType,
	}
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		if !f.IsExported() || f.Index[0] == keyField.Index[0] {
			continue
		}
		name := encodedFieldName(f)
		if name == "" {
			continue
		}
		c.fields = append(c.fields, structField{name: name, index: f.Index, typ: f.Type})
	}

	for _, opt := range opts {
		switch opt := opt.(type) {
		case KeyFieldName:
			c.keyFieldName = string(opt)
		case func(item *DataItem[K, T]) *T:
			c.defaultFn = opt
		default:
			panic(fmt.Errorf("store: invalid option %T %v", opt, opt))
		}
	}
	return c
}

func (c *structDataCodec[K, T]) PrimaryKeyFieldName() string {
	return c.keyFieldName
}

func (c *structDataCodec[K, T]) DecodeFields(cx *CodecContext, value any, in DecodeInput) error {
	kv, err := in.ReadKey(c.keyFieldName, c.keyType)
	if err != nil {
		return err
	}
	if kv != nil {
		rv := reflect.ValueOf(value).Elem()
		if err := assignTo(rv.FieldByIndex(c.keyField.index), kv); err != nil {
			return decodeErrf(c.keyFieldName, c.keyType, err, "")
		}
	}
	return c.structCodec.DecodeFields(cx, value, in)
}

func (c *structDataCodec[K, T]) CreateDefault(item *DataItem[K, T]) *T {
	if c.defaultFn != nil {
		return c.defaultFn(item)
	}
	v := new(T)
	rv := reflect.ValueOf(v).Elem()
	if err := assignTo(rv.FieldByIndex(c.keyField.index), item.Key()); err != nil {
		panic(err)
	}
	return v
}

func (c *structDataCodec[K, T]) QueryComparator(q *Query) func(*T) bool {
	type fieldTest struct {
		index []int
		test  func(any) bool
	}
	tests := make([]fieldTest, 0, len(q.constraints))
	for _, fc := range q.constraints {
		f, ok := c.fieldByName(fc.Field)
		if !ok {
			panic(fmt.Errorf("store: %v has no field encoded as %q", c.typ, fc.Field))
		}
		tests = append(tests, fieldTest{index: f.index, test: fc.Test})
	}
	return func(v *T) bool {
		rv := reflect.ValueOf(v).Elem()
		for _, t := range tests {
			if !t.test(rv.FieldByIndex(t.index).Interface()) {
				return false
			}
		}
		return true
	}
}

func (c *structDataCodec[K, T]) fieldByName(name string) (structField, bool) {
	if name == c.keyFieldName {
		return c.keyField, true
	}
	for _, f := range c.fields {
		if f.name == name {
			return f, true
		}
	}
	return structField{}, false
}
