package store

import (
	"context"
	"reflect"
)

// Datastore is a typed façade over one remote table plus its local cache
// of data items.
type Datastore[K comparable, T any] struct {
	manager *DataManager
	cache   DataCache[K, T]
	table   DataTable
	codec   DataCodec[K, T]
	keyType reflect.Type
}

// NewDatastore builds a datastore. A nil cache defaults to an unbounded
// one.
func NewDatastore[K comparable, T any](dm *DataManager, table DataTable, codec DataCodec[K, T], cache DataCache[K, T]) *Datastore[K, T] {
	if dm == nil {
		panic("store: nil data manager")
	}
	if table == nil {
		panic("store: nil table")
	}
	if codec == nil {
		panic("store: nil codec")
	}
	if cache == nil {
		cache = NewDataCache[K, T]()
	}
	dm.RegisterCodec(codec)
	return &Datastore[K, T]{
		manager: dm,
		cache:   cache,
		table:   table,
		codec:   codec,
		keyType: reflect.TypeOf((*K)(nil)).Elem(),
	}
}

// Manager returns the data manager.
func (ds *Datastore[K, T]) Manager() *DataManager {
	return ds.manager
}

// Cache returns the data cache.
func (ds *Datastore[K, T]) Cache() DataCache[K, T] {
	return ds.cache
}

// Table returns the source table.
func (ds *Datastore[K, T]) Table() DataTable {
	return ds.table
}

// Codec returns the root codec.
func (ds *Datastore[K, T]) Codec() DataCodec[K, T] {
	return ds.codec
}

// GetOrReference returns the item for the key, creating an empty
// reference if none is cached. The result is never nil but may have no
// value yet.
func (ds *Datastore[K, T]) GetOrReference(key K) *DataItem[K, T] {
	return ds.cache.GetOrCompute(key, func(k K) *DataItem[K, T] {
		return newDataItem(ds, k)
	})
}

// GetOrCreate returns the item for the key with a value present,
// defaulting a fresh one if absent.
func (ds *Datastore[K, T]) GetOrCreate(key K) *DataItem[K, T] {
	return ds.GetOrReference(key).DefaultIfAbsent()
}

// GetOptional returns the cached item for the key, if any.
func (ds *Datastore[K, T]) GetOptional(key K) (*DataItem[K, T], bool) {
	item := ds.cache.GetOrNull(key)
	return item, item != nil
}

// GetOrNull returns the cached item for the key or nil.
func (ds *Datastore[K, T]) GetOrNull(key K) *DataItem[K, T] {
	return ds.cache.GetOrNull(key)
}

// FindOneCached finds a loaded cached item matching the query, or nil.
// Items without a value are ignored; the remote table is never
// consulted. Always synchronous.
func (ds *Datastore[K, T]) FindOneCached(q *Query) *DataItem[K, T] {
	if q.hasKey {
		key, ok := ds.queryKey(q)
		if !ok {
			return nil
		}
		item := ds.cache.GetOrNull(key)
		if item != nil && item.IsPresent() {
			item.referencedNow()
			return item
		}
		return nil
	}

	comparator := ds.codec.QueryComparator(q)
	var found *DataItem[K, T]
	ds.cache.Each(func(item *DataItem[K, T]) bool {
		if !item.IsPresent() {
			return true
		}
		if comparator(item.Get()) {
			found = item
			return false
		}
		return true
	})
	if found != nil {
		found.referencedNow()
	}
	return found
}

// FindOne finds an item matching the query, probing the cache first and
// loading from the table otherwise. The remote path runs on the
// manager's worker pool.
func (ds *Datastore[K, T]) FindOne(q *Query) *FindStatus[K, T] {
	st := newFindStatus(ds, q)
	if item := ds.FindOneCached(q); item != nil {
		ds.manager.tracef("store: FINDONE.CACHED %s/%v", ds.table.Name(), item.Key())
		return st.complete(FindCached, item, nil)
	}

	q = q.qualify(ds.codec.PrimaryKeyFieldName())
	ds.manager.Go(func() {
		res, err := ds.table.FindOne(context.Background(), q)
		if err != nil {
			ds.manager.tracef("store: FINDONE.FAILED %s: %v", ds.table.Name(), err)
			st.complete(FindFailed, nil, err)
			return
		}
		if !res.Found {
			ds.manager.tracef("store: FINDONE.ABSENT %s", ds.table.Name())
			st.complete(FindAbsent, nil, nil)
			return
		}
		item, err := ds.resolveInput(res.Input)
		if err != nil {
			st.complete(FindFailed, nil, err)
			return
		}
		ds.manager.tracef("store: FINDONE.FETCHED %s/%v", ds.table.Name(), item.Key())
		st.complete(FindFetched, item, nil)
	})
	return st
}

// FindOneByKey finds an item by primary key.
func (ds *Datastore[K, T]) FindOneByKey(key K) *FindStatus[K, T] {
	return ds.FindOne(ByKey(key))
}

// FindAllCached finds all loaded cached items matching the query.
// Always synchronous.
func (ds *Datastore[K, T]) FindAllCached(q *Query) []*DataItem[K, T] {
	n := len(q.constraints)
	list := make([]*DataItem[K, T], 0, ds.cache.Size()/(n+1))

	comparator := func(*T) bool { return true }
	if n > 0 {
		comparator = ds.codec.QueryComparator(q)
	}
	ds.cache.Each(func(item *DataItem[K, T]) bool {
		if item.IsPresent() && comparator(item.Get()) {
			item.referencedNow()
			list = append(list, item)
		}
		return true
	})
	return list
}

// FindAll finds all items matching the query in the remote table. The
// aggregation always references the table; individual records resolve
// through the cache.
func (ds *Datastore[K, T]) FindAll(q *Query) *FindAllStatus[K, T] {
	st := newFindAllStatus(ds, q)
	q = q.qualify(ds.codec.PrimaryKeyFieldName())
	ds.manager.Go(func() {
		inputs, err := ds.table.FindAll(context.Background(), q)
		if err != nil {
			st.completeFailed(err)
			return
		}
		items := make([]*DataItem[K, T], 0, len(inputs))
		for _, in := range inputs {
			item, err := ds.resolveInput(in)
			if err != nil {
				st.completeFailed(err)
				return
			}
			items = append(items, item)
		}
		ds.manager.tracef("store: FINDALL %s => %d items", ds.table.Name(), len(items))
		st.completeItems(items)
	})
	return st
}

// resolveInput decodes one remote record into its cache-resolved item.
func (ds *Datastore[K, T]) resolveInput(in DecodeInput) (*DataItem[K, T], error) {
	key, err := ds.readKey(in)
	if err != nil {
		return nil, err
	}
	item := ds.GetOrReference(key)
	if err := item.Decode(in); err != nil {
		return nil, err
	}
	item.fetchedNow()
	return item, nil
}

// readKey extracts the primary key from a remote record.
func (ds *Datastore[K, T]) readKey(in DecodeInput) (K, error) {
	var zero K
	kv, err := in.ReadKey(ds.codec.PrimaryKeyFieldName(), ds.keyType)
	if err != nil {
		return zero, err
	}
	if kv == nil {
		return zero, ErrMissingPrimaryKey
	}
	if key, ok := kv.(K); ok {
		return key, nil
	}
	rv := reflect.ValueOf(kv)
	if rv.CanConvert(ds.keyType) {
		return rv.Convert(ds.keyType).Interface().(K), nil
	}
	return zero, decodeErrf(ds.codec.PrimaryKeyFieldName(), ds.keyType, ErrMissingPrimaryKey, "key decoded as %T", kv)
}

// queryKey extracts the typed key from a keyed query.
func (ds *Datastore[K, T]) queryKey(q *Query) (K, bool) {
	if key, ok := q.key.(K); ok {
		return key, true
	}
	var zero K
	rv := reflect.ValueOf(q.key)
	if rv.IsValid() && rv.CanConvert(ds.keyType) {
		return rv.Convert(ds.keyType).Interface().(K), true
	}
	return zero, false
}
