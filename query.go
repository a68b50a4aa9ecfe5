package store

import "reflect"

// FieldConstraint is a predicate on the values of one encoded field.
// Field names a document field; Test receives the decoded struct field
// value on cache scans and the raw stored value on table-side scans.
type FieldConstraint struct {
	Field string
	Test  func(value any) bool
}

// Eq constrains a field to equal the given value, comparing numerics
// across widths.
func Eq(field string, want any) FieldConstraint {
	return FieldConstraint{Field: field, Test: func(got any) bool {
		return looseEqual(got, want)
	}}
}

// Query is an optional primary key plus a conjunction of field
// constraints, compilable to a value predicate.
type Query struct {
	key          any
	hasKey       bool
	keyFieldName string
	constraints  []FieldConstraint
}

// ByKey builds the simplest query form: a single-key lookup.
func ByKey(key any) *Query {
	return &Query{key: key, hasKey: true}
}

// NewQuery starts an empty query to be refined with Where clauses.
func NewQuery() *Query {
	return &Query{}
}

// Where adds a field constraint.
func (q *Query) Where(fc FieldConstraint) *Query {
	q.constraints = append(q.constraints, fc)
	return q
}

// WhereEq adds an equality constraint on a field.
func (q *Query) WhereEq(field string, want any) *Query {
	return q.Where(Eq(field, want))
}

// HasKey reports whether the query targets a single primary key.
func (q *Query) HasKey() bool {
	return q.hasKey
}

// Key returns the primary key, nil if the query has none.
func (q *Query) Key() any {
	return q.key
}

// KeyFieldName returns the document field the primary key is stored
// under, available once the query has been qualified against a
// datastore.
func (q *Query) KeyFieldName() string {
	return q.keyFieldName
}

// Constraints returns the field constraints in declaration order.
func (q *Query) Constraints() []FieldConstraint {
	return q.constraints
}

// qualify resolves datastore-specific naming onto the query before it is
// handed to the source table.
func (q *Query) qualify(keyFieldName string) *Query {
	if q.keyFieldName == keyFieldName {
		return q
	}
	qq := *q
	qq.keyFieldName = keyFieldName
	return &qq
}

// looseEqual compares two values, treating numerics of different widths
// as equal when they denote the same number.
func looseEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	av, aok := normNumber(a)
	bv, bok := normNumber(b)
	if aok && bok {
		return av == bv
	}
	return reflect.DeepEqual(a, b)
}

// normNumber reduces any numeric or boolean value to float64.
// Float64 carries 53 bits of integer precision, enough for the key and
// field ranges compared here.
func normNumber(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		if rv.Bool() {
			return 1, true
		}
		return 0, true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}
