// Package boltsource provides a DataTable backend on top of Bolt. Each
// table maps to one bucket; records are msgpack-encoded document trees
// keyed by the canonical string form of their primary key.
package boltsource

import (
	"context"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/slatepowered/store"
)

type Options struct {
	Logf      func(format string, args ...any)
	Verbose   bool
	IsTesting bool
	MmapSize  int
}

type Source struct {
	bdb     *bbolt.DB
	logf    func(format string, args ...any)
	verbose bool
}

var _ store.DataSource = (*Source)(nil)

func Open(path string, opt Options) (*Source, error) {
	bopt := *bbolt.DefaultOptions
	bopt.Timeout = 10 * time.Second
	if opt.IsTesting {
		bopt.NoSync = true
		bopt.NoFreelistSync = true
		bopt.InitialMmapSize = 1024 * 1024 * 5
	} else {
		bopt.InitialMmapSize = 1024 * 1024 * 1024
		bopt.FreelistType = bbolt.FreelistMapType
	}
	if opt.MmapSize != 0 {
		bopt.InitialMmapSize = opt.MmapSize
	}

	bdb, err := bbolt.Open(path, 0666, &bopt)
	if err != nil {
		return nil, fmt.Errorf("boltsource: %w", err)
	}
	return &Source{bdb: bdb, logf: opt.Logf, verbose: opt.Verbose}, nil
}

func (s *Source) Bolt() *bbolt.DB {
	return s.bdb
}

func (s *Source) Close() error {
	return s.bdb.Close()
}

func (s *Source) Table(name string) store.DataTable {
	return &Table{src: s, name: name, buck: []byte(name)}
}

// TableWithKeyFieldOverride returns a table whose decode inputs read the
// primary key from an alternate document field.
func (s *Source) TableWithKeyFieldOverride(name, keyField string) store.DataTable {
	return &Table{src: s, name: name, buck: []byte(name), keyFieldOverride: keyField}
}

func (s *Source) tracef(format string, args ...any) {
	if s.verbose && s.logf != nil {
		s.logf(format, args...)
	}
}

type Table struct {
	src              *Source
	name             string
	buck             []byte
	keyFieldOverride string
}

var _ store.DataTable = (*Table)(nil)

func (t *Table) Name() string {
	return t.name
}

func (t *Table) CreateEncodeOutput() store.EncodeOutput {
	return store.NewDocumentEncodeOutput()
}

func (t *Table) ReplaceOne(_ context.Context, out store.EncodeOutput) error {
	o, ok := out.(*store.DocumentEncodeOutput)
	if !ok {
		return fmt.Errorf("boltsource: unsupported encode output %T", out)
	}
	if o.KeyField() == "" || o.KeyValue() == nil {
		return store.ErrMissingPrimaryKey
	}
	ks, err := store.KeyString(o.KeyValue())
	if err != nil {
		return err
	}

	buf := valueBytesPool.Get().([]byte)
	defer releaseValueBytes(buf)
	raw := store.DefaultDocumentEncoding.EncodeDocument(buf[:0], o.Document())

	err = t.src.bdb.Update(func(btx *bbolt.Tx) error {
		b, err := btx.CreateBucketIfNotExists(t.buck)
		if err != nil {
			return err
		}
		return b.Put([]byte(ks), raw)
	})
	if err != nil {
		return fmt.Errorf("boltsource: %s: %w", t.name, err)
	}
	t.src.tracef("boltsource: PUT %s/%s", t.name, ks)
	return nil
}

func (t *Table) FindOne(_ context.Context, q *store.Query) (*store.SourceFindResult, error) {
	res := &store.SourceFindResult{}
	err := t.src.bdb.View(func(btx *bbolt.Tx) error {
		b := btx.Bucket(t.buck)
		if b == nil {
			return nil
		}

		if q.HasKey() {
			ks, err := store.KeyString(q.Key())
			if err != nil {
				return err
			}
			raw := b.Get([]byte(ks))
			if raw == nil {
				t.src.tracef("boltsource: GET.NOTFOUND %s/%s", t.name, ks)
				return nil
			}
			doc, err := store.DefaultDocumentEncoding.DecodeDocument(raw)
			if err != nil {
				return err
			}
			if !match(doc, q) {
				return nil
			}
			t.src.tracef("boltsource: GET %s/%s", t.name, ks)
			res.Found = true
			res.Input = store.NewDocumentDecodeInput(t.keyFieldOverride, doc)
			return nil
		}

		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			doc, err := store.DefaultDocumentEncoding.DecodeDocument(v)
			if err != nil {
				return err
			}
			if match(doc, q) {
				res.Found = true
				res.Input = store.NewDocumentDecodeInput(t.keyFieldOverride, doc)
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("boltsource: %s: %w", t.name, err)
	}
	return res, nil
}

func (t *Table) FindAll(_ context.Context, q *store.Query) ([]store.DecodeInput, error) {
	var inputs []store.DecodeInput
	err := t.src.bdb.View(func(btx *bbolt.Tx) error {
		b := btx.Bucket(t.buck)
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			doc, err := store.DefaultDocumentEncoding.DecodeDocument(v)
			if err != nil {
				return err
			}
			if match(doc, q) {
				inputs = append(inputs, store.NewDocumentDecodeInput(t.keyFieldOverride, doc))
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("boltsource: %s: %w", t.name, err)
	}
	t.src.tracef("boltsource: SCAN %s => %d records", t.name, len(inputs))
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
