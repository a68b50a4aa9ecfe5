package store

import (
	"reflect"
)

// DocumentDecodeInput reads data from a Document.
type DocumentDecodeInput struct {
	// keyFieldOverride, when non-empty, redirects ReadKey to an alternate
	// document field without changing the codec's declared key name.
	keyFieldOverride string

	doc Document
}

var _ DecodeInput = (*DocumentDecodeInput)(nil)

func NewDocumentDecodeInput(keyFieldOverride string, doc Document) *DocumentDecodeInput {
	return &DocumentDecodeInput{keyFieldOverride: keyFieldOverride, doc: doc}
}

// Document returns the underlying input document.
func (in *DocumentDecodeInput) Document() Document {
	return in.doc
}

func (in *DocumentDecodeInput) Read(cx *CodecContext, field string, typ reflect.Type) (any, error) {
	v, err := in.decodeValue(cx, in.doc[field], typ)
	if err != nil {
		return nil, decodeErrf(field, typ, err, "")
	}
	return v, nil
}

func (in *DocumentDecodeInput) ReadKey(field string, typ reflect.Type) (any, error) {
	if in.keyFieldOverride != "" {
		field = in.keyFieldOverride
	}
	// The nil context restricts the value to scalar shapes.
	return in.decodeValue(nil, in.doc[field], typ)
}

// DocumentEncodeOutput accumulates a document-in-progress.
type DocumentEncodeOutput struct {
	doc      Document
	keyField string
	keyValue any
}

var _ EncodeOutput = (*DocumentEncodeOutput)(nil)

func NewDocumentEncodeOutput() *DocumentEncodeOutput {
	return &DocumentEncodeOutput{doc: Document{}}
}

// Document returns the document built so far.
func (out *DocumentEncodeOutput) Document() Document {
	return out.doc
}

// KeyField returns the field name the primary key was written under, or
// "" if SetKey was never called.
func (out *DocumentEncodeOutput) KeyField() string {
	return out.keyField
}

// KeyValue returns the domain-side primary key passed to SetKey.
func (out *DocumentEncodeOutput) KeyValue() any {
	return out.keyValue
}

func (out *DocumentEncodeOutput) SetKey(cx *CodecContext, field string, key any) error {
	enc, err := encodeValue(cx, key, nil)
	if err != nil {
		return err
	}
	out.keyField = field
	out.keyValue = key
	out.doc[field] = enc
	return nil
}

func (out *DocumentEncodeOutput) Write(cx *CodecContext, field string, value any, declared reflect.Type) error {
	enc, err := encodeValue(cx, value, declared)
	if err != nil {
		return decodeErrf(field, declared, err, "encode")
	}
	out.doc[field] = enc
	return nil
}
