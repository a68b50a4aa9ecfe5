package store

import (
	"reflect"
)

var anyType = reflect.TypeOf((*any)(nil)).Elem()

// DecodeInput reads typed fields by name from a document.
type DecodeInput interface {
	// Read decodes the named field into the expected type. It accepts any
	// tree shape.
	Read(cx *CodecContext, field string, typ reflect.Type) (any, error)

	// ReadKey decodes the primary-key field without a codec context. It is
	// privileged: it accepts scalar values only and fails with
	// ErrNonPrimitiveKey on nested structures. A key-field override
	// configured on the input takes precedence over the field argument.
	ReadKey(field string, typ reflect.Type) (any, error)
}

// EncodeOutput writes typed fields by name into a document-in-progress.
type EncodeOutput interface {
	// SetKey writes the primary-key slot.
	SetKey(cx *CodecContext, field string, key any) error

	// Write encodes a field value. The declared type informs polymorphism:
	// a concrete value whose type differs from it is tagged with __class
	// when the registry names the type.
	Write(cx *CodecContext, field string, value any, declared reflect.Type) error
}

// Codec translates values of a single Go type to and from documents.
// Construction is split from field decoding so cyclic object graphs can
// be registered in the codec context before their fields are filled, and
// so polymorphic nodes can pick their concrete type before decode.
type Codec interface {
	// ValueType returns the struct type handled by this codec.
	ValueType() reflect.Type

	// Construct allocates a bare value, reading only what is needed to
	// choose a concrete representation.
	Construct(cx *CodecContext, in DecodeInput) (any, error)

	// DecodeFields populates fields on an already-constructed value.
	DecodeFields(cx *CodecContext, value any, in DecodeInput) error

	// Encode emits the value's fields to an output.
	Encode(cx *CodecContext, value any, out EncodeOutput) error
}

// DataCodec is the root codec of a datastore: a Codec that additionally
// knows the primary-key slot, default values, and how to compile query
// constraints into a value predicate.
type DataCodec[K comparable, T any] interface {
	Codec

	// PrimaryKeyFieldName returns the document field name keys are stored
	// under.
	PrimaryKeyFieldName() string

	// CreateDefault builds the value for a freshly materialized item.
	CreateDefault(item *DataItem[K, T]) *T

	// QueryComparator compiles the query's field constraints into a value
	// predicate used by cache scans.
	QueryComparator(q *Query) func(*T) bool
}

// CodecContext is per-operation scratch carrying a back-reference to the
// data manager and cycle-resolution state. It lives only for one encode
// or decode invocation tree.
type CodecContext struct {
	manager     *DataManager
	constructed map[uintptr]any
}

// Manager returns the data manager this context operates under.
func (cx *CodecContext) Manager() *DataManager {
	return cx.manager
}

// FindCodec resolves a codec through the manager's registry.
func (cx *CodecContext) FindCodec(typ reflect.Type) (Codec, error) {
	return cx.manager.FindCodec(typ)
}

// registerConstructed records a freshly constructed object under its
// document's identity so back-references resolve to the same instance.
func (cx *CodecContext) registerConstructed(doc Document, v any) {
	if cx.constructed == nil {
		cx.constructed = make(map[uintptr]any)
	}
	cx.constructed[reflect.ValueOf(doc).Pointer()] = v
}

func (cx *CodecContext) resolveConstructed(doc Document) (any, bool) {
	v, ok := cx.constructed[reflect.ValueOf(doc).Pointer()]
	return v, ok
}

// constructAndDecode runs the construct/decode split for one document,
// resolving cycles through the context.
func constructAndDecode(cx *CodecContext, codec Codec, in *DocumentDecodeInput) (any, error) {
	if v, ok := cx.resolveConstructed(in.doc); ok {
		return v, nil
	}
	v, err := codec.Construct(cx, in)
	if err != nil {
		return nil, err
	}
	cx.registerConstructed(in.doc, v)
	if err := codec.DecodeFields(cx, v, in); err != nil {
		return nil, err
	}
	return v, nil
}
