// Package badgersource provides a DataTable backend on top of Badger.
// The key space is flat: records are stored under "<table>/<key>" with
// msgpack-encoded document trees as values.
package badgersource

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/slatepowered/store"
)

type Options struct {
	Dir string

	// InMemory runs Badger without a directory; used in tests.
	InMemory bool

	SyncWrites       bool
	ValueLogFileSize int64

	Logf    func(format string, args ...any)
	Verbose bool
}

type Source struct {
	db      *badger.DB
	logf    func(format string, args ...any)
	verbose bool
}

var _ store.DataSource = (*Source)(nil)

func Open(opt Options) (*Source, error) {
	bopt := badger.DefaultOptions(opt.Dir)
	if opt.InMemory {
		bopt = badger.DefaultOptions("").WithInMemory(true)
	}
	bopt.Logger = nil
	bopt.SyncWrites = opt.SyncWrites
	if opt.ValueLogFileSize != 0 {
		bopt.ValueLogFileSize = opt.ValueLogFileSize
	}

	db, err := badger.Open(bopt)
	if err != nil {
		return nil, fmt.Errorf("badgersource: %w", err)
	}
	return &Source{db: db, logf: opt.Logf, verbose: opt.Verbose}, nil
}

func (s *Source) Badger() *badger.DB {
	return s.db
}

func (s *Source) Close() error {
	return s.db.Close()
}

func (s *Source) Table(name string) store.DataTable {
	return &Table{src: s, name: name, prefix: []byte(name + "/")}
}

// TableWithKeyFieldOverride returns a table whose decode inputs read the
// primary key from an alternate document field.
func (s *Source) TableWithKeyFieldOverride(name, keyField string) store.DataTable {
	return &Table{src: s, name: name, prefix: []byte(name + "/"), keyFieldOverride: keyField}
}

func (s *Source) tracef(format string, args ...any) {
	if s.verbose && s.logf != nil {
		s.logf(format, args...)
	}
}

type Table struct {
	src              *Source
	name             string
	prefix           []byte
	keyFieldOverride string
}

var _ store.DataTable = (*Table)(nil)

func (t *Table) Name() string {
	return t.name
}

func (t *Table) recordKey(ks string) []byte {
	return append(append([]byte(nil), t.prefix...), ks...)
}

func (t *Table) CreateEncodeOutput() store.EncodeOutput {
	return store.NewDocumentEncodeOutput()
}

func (t *Table) ReplaceOne(_ context.Context, out store.EncodeOutput) error {
	o, ok := out.(*store.DocumentEncodeOutput)
	if !ok {
		return fmt.Errorf("badgersource: unsupported encode output %T", out)
	}
	if o.KeyField() == "" || o.KeyValue() == nil {
		return store.ErrMissingPrimaryKey
	}
	ks, err := store.KeyString(o.KeyValue())
	if err != nil {
		return err
	}
	raw := store.DefaultDocumentEncoding.EncodeDocument(nil, o.Document())

	err = t.src.db.Update(func(txn *badger.Txn) error {
		return txn.Set(t.recordKey(ks), raw)
	})
	if err != nil {
		return fmt.Errorf("badgersource: %s: %w", t.name, err)
	}
	t.src.tracef("badgersource: PUT %s/%s", t.name, ks)
	return nil
}

func (t *Table) FindOne(_ context.Context, q *store.Query) (*store.SourceFindResult, error) {
	res := &store.SourceFindResult{}
	err := t.src.db.View(func(txn *badger.Txn) error {
		if q.HasKey() {
			ks, err := store.KeyString(q.Key())
			if err != nil {
				return err
			}
			entry, err := txn.Get(t.recordKey(ks))
			if errors.Is(err, badger.ErrKeyNotFound) {
				t.src.tracef("badgersource: GET.NOTFOUND %s/%s", t.name, ks)
				return nil
			}
			if err != nil {
				return err
			}
			return entry.Value(func(raw []byte) error {
				doc, err := store.DefaultDocumentEncoding.DecodeDocument(raw)
				if err != nil {
					return err
				}
				if !match(doc, q) {
					return nil
				}
				t.src.tracef("badgersource: GET %s/%s", t.name, ks)
				res.Found = true
				res.Input = store.NewDocumentDecodeInput(t.keyFieldOverride, doc)
				return nil
			})
		}

		iopt := badger.DefaultIteratorOptions
		iopt.Prefix = t.prefix
		it := txn.NewIterator(iopt)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var found bool
			err := it.Item().Value(func(raw []byte) error {
				doc, err := store.DefaultDocumentEncoding.DecodeDocument(raw)
				if err != nil {
					return err
				}
				if match(doc, q) {
					found = true
					res.Found = true
					res.Input = store.NewDocumentDecodeInput(t.keyFieldOverride, doc)
				}
				return nil
			})
			if err != nil {
				return err
			}
			if found {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badgersource: %s: %w", t.name, err)
	}
	return res, nil
}

func (t *Table) FindAll(_ context.Context, q *store.Query) ([]store.DecodeInput, error) {
	var inputs []store.DecodeInput
	err := t.src.db.View(func(txn *badger.Txn) error {
		iopt := badger.DefaultIteratorOptions
		iopt.Prefix = t.prefix
		it := txn.NewIterator(iopt)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(raw []byte) error {
				doc, err := store.DefaultDocumentEncoding.DecodeDocument(raw)
				if err != nil {
					return err
				}
				if match(doc, q) {
					inputs = append(inputs, store.NewDocumentDecodeInput(t.keyFieldOverride, doc))
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badgersource: %s: %w", t.name, err)
	}
	t.src.tracef("badgersource: SCAN %s => %d records", t.name, len(inputs))
	return inputs, nil
}

func match(doc store.Document, q *store.Query) bool {
	for _, fc := range q.Constraints() {
		if !fc.Test(doc[fc.Field]) {
			return false
		}
	}
	return true
}
