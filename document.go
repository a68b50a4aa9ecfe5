package store

// ClassNameField is the reserved document field carrying the registered
// name of a polymorphic value's concrete type.
const ClassNameField = "__class"

// Document is the untyped recursive value exchanged with the storage
// layer: scalar leaves, []any lists, and string-keyed map nodes.
// The core treats documents as immutable during decode.
type Document map[string]any

// ClassName returns the value of the reserved class-name field, or ""
// if absent or not a string.
func (d Document) ClassName() string {
	s, _ := d[ClassNameField].(string)
	return s
}

// asDocument reports the document form of a decoded wire value.
// Backends hand back either Document or a plain map[string]any.
func asDocument(value any) (Document, bool) {
	switch v := value.(type) {
	case Document:
		return v, true
	case map[string]any:
		return Document(v), true
	}
	return nil, false
}
