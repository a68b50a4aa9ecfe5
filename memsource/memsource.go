// Package memsource provides an in-memory DataTable backend, intended
// for tests and cache-only deployments. Documents are held as-is, keyed
// by the canonical string form of their primary key.
package memsource

import (
	"context"
	"fmt"
	"sync"

	"github.com/slatepowered/store"
)

type Source struct {
	mu     sync.Mutex
	tables map[string]*Table
}

var _ store.DataSource = (*Source)(nil)

func New() *Source {
	return &Source{tables: make(map[string]*Table)}
}

func (s *Source) Table(name string) store.DataTable {
	return s.table(name, "")
}

// TableWithKeyFieldOverride returns a table whose decode inputs read the
// primary key from an alternate document field.
func (s *Source) TableWithKeyFieldOverride(name, keyField string) store.DataTable {
	return s.table(name, keyField)
}

func (s *Source) table(name, keyFieldOverride string) *Table {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tables[name]
	if t == nil {
		t = &Table{name: name, docs: make(map[string]store.Document)}
		s.tables[name] = t
	}
	t.keyFieldOverride = keyFieldOverride
	return t
}

func (s *Source) Close() error {
	return nil
}

type Table struct {
	name             string
	keyFieldOverride string

	mu   sync.RWMutex
	docs map[string]store.Document
}

var _ store.DataTable = (*Table)(nil)

func (t *Table) Name() string {
	return t.name
}

func (t *Table) Size() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.docs)
}

func (t *Table) CreateEncodeOutput() store.EncodeOutput {
	return store.NewDocumentEncodeOutput()
}

func (t *Table) ReplaceOne(_ context.Context, out store.EncodeOutput) error {
	o, ok := out.(*store.DocumentEncodeOutput)
	if !ok {
		return fmt.Errorf("memsource: unsupported encode output %T", out)
	}
	if o.KeyField() == "" || o.KeyValue() == nil {
		return store.ErrMissingPrimaryKey
	}
	ks, err := store.KeyString(o.KeyValue())
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.docs[ks] = o.Document()
	return nil
}

func (t *Table) FindOne(_ context.Context, q *store.Query) (*store.SourceFindResult, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if q.HasKey() {
		ks, err := store.KeyString(q.Key())
		if err != nil {
			return nil, err
		}
		doc, ok := t.docs[ks]
		if !ok || !match(doc, q) {
			return &store.SourceFindResult{}, nil
		}
		return t.result(doc), nil
	}

	for _, doc := range t.docs {
		if match(doc, q) {
			return t.result(doc), nil
		}
	}
	return &store.SourceFindResult{}, nil
}

func (t *Table) FindAll(_ context.Context, q *store.Query) ([]store.DecodeInput, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var inputs []store.DecodeInput
	for _, doc := range t.docs {
		if match(doc, q) {
			inputs = append(inputs, store.NewDocumentDecodeInput(t.keyFieldOverride, doc))
		}
	}
	return inputs, nil
}

// match applies the query's field constraints against the raw stored
// document values.
func match(doc store.Document, q *store.Query) bool {
	for _, fc := range q.Constraints() {
		if !fc.Test(doc[fc.Field]) {
			return false
		}
	}
	return true
}

func (t *Table) result(doc store.Document) *store.SourceFindResult {
	return &store.SourceFindResult{Found: true, Input: store.NewDocumentDecodeInput(t.keyFieldOverride, doc)}
}
