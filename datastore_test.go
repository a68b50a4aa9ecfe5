package store

import (
	"context"
	"errors"
	"testing"
)

func TestGetOrReferenceIdentity(t *testing.T) {
	ds, _ := setupPlayers(t)
	a := ds.GetOrReference(1)
	b := ds.GetOrReference(1)
	if a != b {
		t.Fatalf("** references to the same key are distinct items")
	}
	if c := ds.GetOrReference(2); c == a {
		t.Fatalf("** references to distinct keys share an item")
	}
}

func TestGetOptional(t *testing.T) {
	ds, _ := setupPlayers(t)
	_, ok := ds.GetOptional(1)
	deepEqual(t, ok, false)

	item := ds.GetOrReference(1)
	got, ok := ds.GetOptional(1)
	deepEqual(t, ok, true)
	deepEqual(t, got, item)
}

func TestFindOneCachedHit(t *testing.T) {
	ds, tbl := setupPlayers(t)
	ds.GetOrCreate(17)

	st := ds.FindOneByKey(17)
	deepEqual(t, st.Outcome(), FindCached)
	item, err := st.Wait()
	noerr(t, err)
	deepEqual(t, item.Key(), PlayerID(17))
	// The remote table was never consulted.
	deepEqual(t, tbl.findOneCalls.Load(), int32(0))
}

func TestFindOneCachedIgnoresValuelessItems(t *testing.T) {
	ds, _ := setupPlayers(t)
	ds.GetOrReference(1)
	isnil(t, ds.FindOneCached(ByKey(PlayerID(1))))
}

func TestFindOneFetched(t *testing.T) {
	ds, tbl := setupPlayers(t)
	tbl.put(t, Document{"_id": int64(8), "Name": "remote", "Score": 5}, "_id")

	item, err := ds.FindOneByKey(8).Wait()
	noerr(t, err)
	deepEqual(t, item.Get().Name, "remote")
	deepEqual(t, item.Get().Score, int32(5))
	deepEqual(t, tbl.findOneCalls.Load(), int32(1))

	// The decoded item is cache-resolved: the next find is a cache hit.
	st := ds.FindOneByKey(8)
	deepEqual(t, st.Outcome(), FindCached)
	got, err := st.Wait()
	noerr(t, err)
	deepEqual(t, got, item)
	deepEqual(t, tbl.findOneCalls.Load(), int32(1))
}

func TestFindOneAbsent(t *testing.T) {
	ds, _ := setupPlayers(t)
	st := ds.FindOneByKey(404)
	item, err := st.Wait()
	noerr(t, err)
	isnil(t, item)
	deepEqual(t, st.Outcome(), FindAbsent)
}

func TestFindOneFailed(t *testing.T) {
	ds, tbl := setupPlayers(t)
	boom := errors.New("connection reset")
	tbl.failWith = boom

	st := ds.FindOneByKey(1)
	_, err := st.Wait()
	iserr(t, err, boom)
	deepEqual(t, st.Outcome(), FindFailed)
}

func TestFindOneMissingPrimaryKey(t *testing.T) {
	ds, tbl := setupPlayers(t)
	tbl.docs["x"] = Document{"Name": "orphan"}

	_, err := ds.FindOne(NewQuery().WhereEq("Name", "orphan")).Wait()
	iserr(t, err, ErrMissingPrimaryKey)
}

func TestFindOneCachedByPredicate(t *testing.T) {
	ds, _ := setupPlayers(t)
	ds.GetOrCreate(1).Get().Name = "foo"
	ds.GetOrCreate(2).Get().Name = "bar"

	item := ds.FindOneCached(NewQuery().WhereEq("Name", "bar"))
	isnonnil(t, item)
	deepEqual(t, item.Key(), PlayerID(2))

	isnil(t, ds.FindOneCached(NewQuery().WhereEq("Name", "baz")))
}

func TestFindOneByConstraintFetches(t *testing.T) {
	ds, tbl := setupPlayers(t)
	tbl.put(t, Document{"_id": int64(3), "Name": "zed", "Score": 50}, "_id")

	item, err := ds.FindOne(NewQuery().WhereEq("Name", "zed")).Wait()
	noerr(t, err)
	deepEqual(t, item.Key(), PlayerID(3))
	deepEqual(t, item.Get().Score, int32(50))
}

func TestFindAllCached(t *testing.T) {
	ds, _ := setupPlayers(t)
	ds.GetOrCreate(1).Get().Score = 10
	ds.GetOrCreate(2).Get().Score = 20
	ds.GetOrCreate(3).Get().Score = 10
	ds.GetOrReference(4) // valueless, must be skipped

	all := ds.FindAllCached(NewQuery())
	deepEqual(t, len(all), 3)

	tens := ds.FindAllCached(NewQuery().WhereEq("Score", int32(10)))
	deepEqual(t, len(tens), 2)
	for _, item := range tens {
		deepEqual(t, item.Get().Score, int32(10))
	}
}

func TestFindAllRemote(t *testing.T) {
	ds, tbl := setupPlayers(t)
	tbl.put(t, Document{"_id": int64(1), "Name": "a", "Score": 1}, "_id")
	tbl.put(t, Document{"_id": int64(2), "Name": "b", "Score": 2}, "_id")
	tbl.put(t, Document{"_id": int64(3), "Name": "c", "Score": 2}, "_id")

	items, err := ds.FindAll(NewQuery().WhereEq("Score", 2)).Wait()
	noerr(t, err)
	deepEqual(t, len(items), 2)
	for _, item := range items {
		deepEqual(t, item.Get().Score, int32(2))
		// Each result resolves through the cache.
		deepEqual(t, ds.GetOrNull(item.Key()), item)
	}
}

func TestFindAllRemoteFailed(t *testing.T) {
	ds, tbl := setupPlayers(t)
	boom := errors.New("io timeout")
	tbl.failWith = boom
	_, err := ds.FindAll(NewQuery()).Wait()
	iserr(t, err, boom)
}

func TestFindOneRemoteDoesNotBlockCaller(t *testing.T) {
	ds, tbl := setupPlayers(t)
	tbl.gate = make(chan struct{})

	st := ds.FindOneByKey(1)
	deepEqual(t, st.Outcome(), FindPending)
	isnil(t, st.Item())
	close(tbl.gate)

	_, err := st.WaitContext(context.Background())
	noerr(t, err)
	deepEqual(t, st.Outcome(), FindAbsent)
}
