package store

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// encodingMethod selects the byte serialization of document trees used
// by storage backends.
type encodingMethod int

const (
	MsgPack encodingMethod = iota
	JSON

	DefaultDocumentEncoding = MsgPack
)

type bytesBuilder struct {
	Buf []byte
}

func (bb *bytesBuilder) Write(p []byte) (int, error) {
	bb.Buf = append(bb.Buf, p...)
	return len(p), nil
}

// EncodeDocument appends the serialized document to buf and returns the
// extended slice.
func (enc encodingMethod) EncodeDocument(buf []byte, doc Document) []byte {
	switch enc {
	case MsgPack:
		bb := bytesBuilder{buf}
		e := msgpack.GetEncoder()
		e.ResetDict(&bb, nil)
		e.SetSortMapKeys(true)
		err := e.Encode(doc)
		msgpack.PutEncoder(e)
		if err != nil {
			panic(fmt.Errorf("failed to encode document using MsgPack: %w", err))
		}
		return bb.Buf
	case JSON:
		raw, err := json.Marshal(doc)
		if err != nil {
			panic(fmt.Errorf("failed to encode document to JSON: %w", err))
		}
		return append(buf, raw...)
	default:
		panic("unsupported encoding")
	}
}

// DecodeDocument parses a serialized document.
func (enc encodingMethod) DecodeDocument(buf []byte) (Document, error) {
	switch enc {
	case MsgPack:
		var r bytes.Reader
		r.Reset(buf)
		dec := msgpack.GetDecoder()
		dec.ResetDict(&r, nil)
		var doc Document
		err := dec.Decode(&doc)
		msgpack.PutDecoder(dec)
		if err != nil {
			return nil, dataErrf(buf, 0, err, "failed to decode msgpack document")
		}
		return doc, nil
	case JSON:
		var doc Document
		if err := json.Unmarshal(buf, &doc); err != nil {
			return nil, dataErrf(buf, 0, err, "failed to decode JSON document")
		}
		return doc, nil
	default:
		panic("unsupported encoding")
	}
}
