package store

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
)

type (
	PlayerID int64

	Rank int

	Element int

	Shape interface {
		Area() float64
	}

	Circle struct {
		Radius float64
	}

	Square struct {
		Side float64
	}

	Player struct {
		ID    PlayerID `store:"_id"`
		Name  string
		Score int32
		Tags  []string
		Rank  Rank
		Stats map[int32]int32
	}

	Profile struct {
		ID      PlayerID `store:"_id"`
		Avatar  Shape
		Element Element
	}
)

const (
	RankBronze Rank = iota
	RankSilver
	RankGold
)

const (
	ElementFire Element = iota
	ElementWater
)

func (c Circle) Area() float64 { return 3.14159 * c.Radius * c.Radius }
func (s Square) Area() float64 { return s.Side * s.Side }

var rankConstants = map[string]Rank{
	"BRONZE": RankBronze,
	"SILVER": RankSilver,
	"GOLD":   RankGold,
}

var elementConstants = map[string]Element{
	"FIRE":  ElementFire,
	"WATER": ElementWater,
}

func newTestManager(t testing.TB) *DataManager {
	t.Helper()
	dm := NewDataManager(Options{Logf: t.Logf, Verbose: true})
	t.Cleanup(dm.Close)
	RegisterEnum(dm, "Rank", rankConstants)
	RegisterTaggedEnum(dm, "Element", elementConstants)
	dm.RegisterTypeName("circle", Circle{})
	dm.RegisterTypeName("square", Square{})
	return dm
}

// testTable is an in-package DataTable fake counting remote calls.
type testTable struct {
	name string

	mu   sync.Mutex
	docs map[string]Document

	findOneCalls atomic.Int32
	failWith     error

	// gate, when non-nil, delays FindOne until released.
	gate chan struct{}
}

var _ DataTable = (*testTable)(nil)

func newTestTable(name string) *testTable {
	return &testTable{name: name, docs: make(map[string]Document)}
}

func (t *testTable) Name() string {
	return t.name
}

func (t *testTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.docs)
}

func (t *testTable) put(tb testing.TB, doc Document, keyField string) {
	tb.Helper()
	ks := must(KeyString(doc[keyField]))
	t.mu.Lock()
	defer t.mu.Unlock()
	t.docs[ks] = doc
}

func (t *testTable) CreateEncodeOutput() EncodeOutput {
	return NewDocumentEncodeOutput()
}

func (t *testTable) ReplaceOne(_ context.Context, out EncodeOutput) error {
	o := out.(*DocumentEncodeOutput)
	if o.KeyField() == "" || o.KeyValue() == nil {
		return ErrMissingPrimaryKey
	}
	ks, err := KeyString(o.KeyValue())
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.docs[ks] = o.Document()
	return nil
}

func (t *testTable) FindOne(_ context.Context, q *Query) (*SourceFindResult, error) {
	t.findOneCalls.Add(1)
	if t.gate != nil {
		<-t.gate
	}
	if t.failWith != nil {
		return nil, t.failWith
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if q.HasKey() {
		ks, err := KeyString(q.Key())
		if err != nil {
			return nil, err
		}
		doc, ok := t.docs[ks]
		if !ok || !docMatch(doc, q) {
			return &SourceFindResult{}, nil
		}
		return &SourceFindResult{Found: true, Input: NewDocumentDecodeInput("", doc)}, nil
	}
	for _, doc := range t.docs {
		if docMatch(doc, q) {
			return &SourceFindResult{Found: true, Input: NewDocumentDecodeInput("", doc)}, nil
		}
	}
	return &SourceFindResult{}, nil
}

func (t *testTable) FindAll(_ context.Context, q *Query) ([]DecodeInput, error) {
	if t.failWith != nil {
		return nil, t.failWith
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	var inputs []DecodeInput
	for _, doc := range t.docs {
		if docMatch(doc, q) {
			inputs = append(inputs, NewDocumentDecodeInput("", doc))
		}
	}
	return inputs, nil
}

func docMatch(doc Document, q *Query) bool {
	for _, fc := range q.Constraints() {
		if !fc.Test(doc[fc.Field]) {
			return false
		}
	}
	return true
}

func setupPlayers(t testing.TB) (*Datastore[PlayerID, Player], *testTable) {
	t.Helper()
	dm := newTestManager(t)
	tbl := newTestTable("Players")
	ds := NewDatastore[PlayerID, Player](dm, tbl, StructCodec[PlayerID, Player](), nil)
	return ds, tbl
}

func deepEqual[T any](t testing.TB, a, e T) {
	if !reflect.DeepEqual(a, e) {
		t.Helper()
		t.Errorf("** got %v, wanted %v", a, e)
	}
}

func isnil[T any, P ~*T](t testing.TB, a P) {
	if a != nil {
		t.Helper()
		t.Errorf("** got &%v, wanted nil", *a)
	}
}

func isnonnil[T any](t testing.TB, a *T) {
	if a == nil {
		t.Helper()
		t.Errorf("** got nil %T, wanted non-nil", a)
	}
}

func iserr(t testing.TB, err, want error) {
	t.Helper()
	if err == nil {
		t.Errorf("** got nil error, wanted %v", want)
		return
	}
	if want != nil && !errors.Is(err, want) {
		t.Errorf("** got error %v, wanted %v", err, want)
	}
}

func noerr(t testing.TB, err error) {
	if err != nil {
		t.Helper()
		t.Errorf("** unexpected error: %v", err)
	}
}
