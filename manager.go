package store

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
)

// DataManager owns the codec registry, the enumeration and class-name
// tables, and the worker pool running asynchronous operations. Register
// everything before handing the manager to datastores; the registry is
// read-only after that point and is not synchronized for mutation.
type DataManager struct {
	logf    func(format string, args ...any)
	verbose bool

	codecs      sync.Map // reflect.Type -> Codec
	namedTypes  map[string]reflect.Type
	typeNames   map[reflect.Type]string
	taggedTypes map[reflect.Type]bool
	enums       map[reflect.Type]*enumSpec
	enumsByName map[string]*enumSpec

	tasks  chan func()
	wg     sync.WaitGroup
	closed atomic.Bool
}

type Options struct {
	Logf    func(format string, args ...any)
	Verbose bool
	// Workers bounds the pool running asynchronous finds, fetches and
	// saves. Defaults to 4.
	Workers int
}

func NewDataManager(opt Options) *DataManager {
	workers := opt.Workers
	if workers <= 0 {
		workers = 4
	}
	dm := &DataManager{
		logf:        opt.Logf,
		verbose:     opt.Verbose,
		namedTypes:  make(map[string]reflect.Type),
		typeNames:   make(map[reflect.Type]string),
		taggedTypes: make(map[reflect.Type]bool),
		enums:       make(map[reflect.Type]*enumSpec),
		enumsByName: make(map[string]*enumSpec),
		tasks:       make(chan func(), 128),
	}
	dm.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go dm.work()
	}
	return dm
}

func (dm *DataManager) work() {
	defer dm.wg.Done()
	for task := range dm.tasks {
		task()
	}
}

// Go submits a task to the worker pool. Panics if the manager is closed.
func (dm *DataManager) Go(task func()) {
	if dm.closed.Load() {
		panic("store: data manager is closed")
	}
	dm.tasks <- task
}

// Close drains the worker pool. Outstanding tasks finish first.
func (dm *DataManager) Close() {
	if dm.closed.CompareAndSwap(false, true) {
		close(dm.tasks)
		dm.wg.Wait()
	}
}

func (dm *DataManager) tracef(format string, args ...any) {
	if dm.verbose && dm.logf != nil {
		dm.logf(format, args...)
	}
}

// NewCodecContext starts a fresh per-operation codec context.
func (dm *DataManager) NewCodecContext() *CodecContext {
	return &CodecContext{manager: dm}
}

// RegisterCodec registers an explicit codec for its value type, replacing
// the reflectively derived one.
func (dm *DataManager) RegisterCodec(c Codec) {
	dm.codecs.Store(c.ValueType(), c)
}

// RegisterTypeName binds a stable identifier to the prototype's type for
// use in __class fields. The identifier, not the Go type name, is what
// goes over the wire.
func (dm *DataManager) RegisterTypeName(name string, prototype any) {
	dm.registerTypeName(name, prototype, false)
}

// RegisterTaggedTypeName is RegisterTypeName for types that must carry a
// __class field on every write, regardless of the declared target.
func (dm *DataManager) RegisterTaggedTypeName(name string, prototype any) {
	dm.registerTypeName(name, prototype, true)
}

func (dm *DataManager) registerTypeName(name string, prototype any, tagged bool) {
	typ := reflect.TypeOf(prototype)
	if typ == nil {
		panic("store: nil prototype")
	}
	if typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	if prev, ok := dm.namedTypes[name]; ok && prev != typ {
		panic(fmt.Errorf("store: type name %q already bound to %v", name, prev))
	}
	dm.namedTypes[name] = typ
	dm.typeNames[typ] = name
	if tagged {
		dm.taggedTypes[typ] = true
	}
}

// TypeByName resolves a registered class identifier.
func (dm *DataManager) TypeByName(name string) (reflect.Type, bool) {
	typ, ok := dm.namedTypes[name]
	return typ, ok
}

// FindCodec resolves the codec for the given type, deriving and caching a
// struct codec for unregistered struct types. It fails with
// ErrCodecMissing for types no codec can serve.
func (dm *DataManager) FindCodec(typ reflect.Type) (Codec, error) {
	if typ == nil {
		return nil, fmt.Errorf("%w: <nil>", ErrCodecMissing)
	}
	if typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	if c, ok := dm.codecs.Load(typ); ok {
		return c.(Codec), nil
	}
	if typ.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %v", ErrCodecMissing, typ)
	}
	c := newStructCodec(typ)
	actual, _ := dm.codecs.LoadOrStore(typ, Codec(c))
	return actual.(Codec), nil
}

// enumSpec describes a registered enumeration: a named scalar type with a
// fixed constant table. Constants match case-insensitively on decode.
type enumSpec struct {
	name   string
	typ    reflect.Type
	tagged bool
	byName map[string]any // lower-cased constant name -> typed constant
	names  map[any]string // typed constant -> canonical name
}

func (spec *enumSpec) constant(name string) (any, bool) {
	v, ok := spec.byName[strings.ToLower(name)]
	return v, ok
}

func (dm *DataManager) enumByType(typ reflect.Type) *enumSpec {
	return dm.enums[typ]
}

func (dm *DataManager) enumByName(name string) *enumSpec {
	return dm.enumsByName[strings.ToLower(name)]
}

// RegisterEnum registers an enumeration type with its constant table.
// Constants encode as bare "CONST" strings.
func RegisterEnum[T comparable](dm *DataManager, name string, constants map[string]T) {
	registerEnum(dm, name, false, constants)
}

// RegisterTaggedEnum registers an enumeration whose constants encode in
// the tagged "<name>:<CONST>" form.
func RegisterTaggedEnum[T comparable](dm *DataManager, name string, constants map[string]T) {
	registerEnum(dm, name, true, constants)
}

func registerEnum[T comparable](dm *DataManager, name string, tagged bool, constants map[string]T) {
	typ := reflect.TypeOf((*T)(nil)).Elem()
	if dm.enums[typ] != nil {
		panic(fmt.Errorf("store: enum already registered for %v", typ))
	}
	if dm.enumsByName[strings.ToLower(name)] != nil {
		panic(fmt.Errorf("store: enum name %q already registered", name))
	}
	spec := &enumSpec{
		name:   name,
		typ:    typ,
		tagged: tagged,
		byName: make(map[string]any, len(constants)),
		names:  make(map[any]string, len(constants)),
	}
	for cname, v := range constants {
		spec.byName[strings.ToLower(cname)] = v
		spec.names[v] = cname
	}
	dm.enums[typ] = spec
	dm.enumsByName[strings.ToLower(name)] = spec
}
