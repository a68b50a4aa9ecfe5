package store

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"
)

// DataItem is a reference to one logical record of a datastore. Its
// identity is (datastore, key); the cache guarantees at most one live
// item per key, so items compare by pointer. The value may be absent
// until populated by a fetch, a decode, or a default.
type DataItem[K comparable, T any] struct {
	datastore *Datastore[K, T]
	key       K
	value     atomic.Pointer[T]

	createdTime time.Time

	// Millisecond offsets onto createdTime, saturating at MaxInt32.
	// lastFetchOffset is -1 until the item is first fetched.
	lastFetchOffset     atomic.Int32
	lastReferenceOffset atomic.Int32
}

func newDataItem[K comparable, T any](ds *Datastore[K, T], key K) *DataItem[K, T] {
	item := &DataItem[K, T]{
		datastore:   ds,
		key:         key,
		createdTime: time.Now(),
	}
	item.lastFetchOffset.Store(-1)
	return item
}

// Key returns the primary key. It never changes.
func (item *DataItem[K, T]) Key() K {
	return item.key
}

// Datastore returns the datastore this item belongs to.
func (item *DataItem[K, T]) Datastore() *Datastore[K, T] {
	return item.datastore
}

// IsPresent reports whether a value is loaded.
func (item *DataItem[K, T]) IsPresent() bool {
	return item.value.Load() != nil
}

// Get returns the loaded value, or nil if absent.
func (item *DataItem[K, T]) Get() *T {
	return item.value.Load()
}

// Optional returns the value and whether it is present.
func (item *DataItem[K, T]) Optional() (*T, bool) {
	v := item.value.Load()
	return v, v != nil
}

// IfPresent runs fn when a value is loaded.
func (item *DataItem[K, T]) IfPresent(fn func(*T)) *DataItem[K, T] {
	if v := item.value.Load(); v != nil {
		fn(v)
	}
	return item
}

// DefaultIfAbsent creates a default value if none is loaded.
func (item *DataItem[K, T]) DefaultIfAbsent() *DataItem[K, T] {
	if !item.IsPresent() {
		item.value.Store(item.datastore.codec.CreateDefault(item))
	}
	return item
}

// ResetToDefaults replaces the value with a fresh default regardless of
// whether one is loaded.
func (item *DataItem[K, T]) ResetToDefaults() *DataItem[K, T] {
	item.value.Store(item.datastore.codec.CreateDefault(item))
	return item
}

// Dispose removes this item from the datastore's cache, releasing its
// identity. A subsequent reference produces a new item with reset
// timestamps.
func (item *DataItem[K, T]) Dispose() *DataItem[K, T] {
	item.datastore.cache.Remove(item)
	return item
}

// SaveSync serializes and updates this item in the remote storage. A
// valueless item saves nothing.
func (item *DataItem[K, T]) SaveSync(ctx context.Context) error {
	v := item.value.Load()
	if v == nil {
		return nil
	}
	ds := item.datastore

	out := ds.table.CreateEncodeOutput()
	cx := ds.manager.NewCodecContext()
	if err := out.SetKey(cx, ds.codec.PrimaryKeyFieldName(), item.key); err != nil {
		return err
	}
	if err := ds.codec.Encode(cx, v, out); err != nil {
		return err
	}

	if err := ds.table.ReplaceOne(ctx, out); err != nil {
		return err
	}
	ds.manager.tracef("store: SAVE %s/%v", ds.table.Name(), item.key)
	return nil
}

// SaveAsync saves on the manager's worker pool.
func (item *DataItem[K, T]) SaveAsync() *ItemStatus[K, T] {
	st := newItemStatus(item)
	item.datastore.manager.Go(func() {
		st.complete(item.SaveSync(context.Background()))
	})
	return st
}

// FetchSync fetches and decodes the value for this item from the remote
// storage, blocking the calling goroutine.
func (item *DataItem[K, T]) FetchSync(ctx context.Context) error {
	ds := item.datastore
	q := ByKey(item.key).qualify(ds.codec.PrimaryKeyFieldName())
	res, err := ds.table.FindOne(ctx, q)
	if err != nil {
		return err
	}
	var in DecodeInput
	if res.Found {
		in = res.Input
	}
	if err := item.Decode(in); err != nil {
		return err
	}
	item.fetchedNow()
	ds.manager.tracef("store: FETCH %s/%v found=%v", ds.table.Name(), item.key, res.Found)
	return nil
}

// FetchAsync fetches on the manager's worker pool.
func (item *DataItem[K, T]) FetchAsync() *ItemStatus[K, T] {
	st := newItemStatus(item)
	item.datastore.manager.Go(func() {
		st.complete(item.FetchSync(context.Background()))
	})
	return st
}

// Decode replaces this item's value with one decoded from the input. A
// nil input leaves the item unchanged. The value is constructed and
// fully populated before publication, so readers never observe a
// half-decoded object.
func (item *DataItem[K, T]) Decode(in DecodeInput) error {
	if in == nil {
		return nil
	}
	ds := item.datastore
	cx := ds.manager.NewCodecContext()
	v, err := ds.codec.Construct(cx, in)
	if err != nil {
		return err
	}
	if err := ds.codec.DecodeFields(cx, v, in); err != nil {
		return err
	}
	tv, ok := v.(*T)
	if !ok {
		return fmt.Errorf("store: codec constructed %T, want %T", v, (*T)(nil))
	}
	item.value.Store(tv)
	return nil
}

// TimeCreated returns the instant this item handle was created.
func (item *DataItem[K, T]) TimeCreated() time.Time {
	return item.createdTime
}

// LastFetchTime returns the last time the item was loaded from the
// remote storage, or the zero time if never fetched.
func (item *DataItem[K, T]) LastFetchTime() time.Time {
	off := item.lastFetchOffset.Load()
	if off < 0 {
		return time.Time{}
	}
	return item.createdTime.Add(time.Duration(off) * time.Millisecond)
}

// LastReferenceTime returns the last time the item was returned by
// FindOneCached or FindAllCached, or its creation time if it never was.
// Other lookups (GetOrReference, GetOrNull, GetOptional) do not update it.
func (item *DataItem[K, T]) LastReferenceTime() time.Time {
	return item.createdTime.Add(time.Duration(item.lastReferenceOffset.Load()) * time.Millisecond)
}

func (item *DataItem[K, T]) nowOffset() int32 {
	ms := time.Since(item.createdTime).Milliseconds()
	if ms < 0 {
		ms = 0
	}
	if ms > math.MaxInt32 {
		ms = math.MaxInt32
	}
	return int32(ms)
}

// storeMax keeps the offset monotonically non-decreasing under benign
// races.
func storeMax(a *atomic.Int32, v int32) {
	for {
		cur := a.Load()
		if v <= cur || a.CompareAndSwap(cur, v) {
			return
		}
	}
}

func (item *DataItem[K, T]) referencedNow() *DataItem[K, T] {
	storeMax(&item.lastReferenceOffset, item.nowOffset())
	return item
}

func (item *DataItem[K, T]) fetchedNow() *DataItem[K, T] {
	storeMax(&item.lastFetchOffset, item.nowOffset())
	return item
}

func (item *DataItem[K, T]) String() string {
	if v := item.value.Load(); v != nil {
		return fmt.Sprintf("DataItem(%v = %v)", item.key, *v)
	}
	return fmt.Sprintf("DataItem(%v, absent)", item.key)
}

// ItemStatus is the completion handle of an asynchronous per-item save
// or fetch.
type ItemStatus[K comparable, T any] struct {
	item *DataItem[K, T]
	done chan struct{}
	err  error
}

func newItemStatus[K comparable, T any](item *DataItem[K, T]) *ItemStatus[K, T] {
	return &ItemStatus[K, T]{item: item, done: make(chan struct{})}
}

func (st *ItemStatus[K, T]) complete(err error) {
	st.err = err
	close(st.done)
}

// Done is closed when the operation finishes.
func (st *ItemStatus[K, T]) Done() <-chan struct{} {
	return st.done
}

// Wait blocks until completion and returns the item and any error.
func (st *ItemStatus[K, T]) Wait() (*DataItem[K, T], error) {
	<-st.done
	return st.item, st.err
}
