package store

import (
	"context"
	"testing"
	"time"
)

func TestItemDefaultsAndReset(t *testing.T) {
	ds, _ := setupPlayers(t)

	item := ds.GetOrReference(1)
	deepEqual(t, item.IsPresent(), false)
	isnil(t, item.Get())
	_, ok := item.Optional()
	deepEqual(t, ok, false)

	item.DefaultIfAbsent()
	deepEqual(t, item.IsPresent(), true)
	deepEqual(t, item.Get().ID, PlayerID(1))

	item.Get().Name = "foo"
	item.DefaultIfAbsent()
	deepEqual(t, item.Get().Name, "foo")

	item.ResetToDefaults()
	deepEqual(t, item.Get().Name, "")
	deepEqual(t, item.Get().ID, PlayerID(1))
}

func TestItemIfPresent(t *testing.T) {
	ds, _ := setupPlayers(t)

	var calls int
	ds.GetOrReference(1).IfPresent(func(*Player) { calls++ })
	deepEqual(t, calls, 0)

	ds.GetOrCreate(1).IfPresent(func(p *Player) { calls++ })
	deepEqual(t, calls, 1)
}

func TestItemSaveFetch(t *testing.T) {
	ds, tbl := setupPlayers(t)

	item := ds.GetOrCreate(7)
	item.Get().Name = "bar"
	item.Get().Score = 99
	item.Get().Rank = RankGold
	noerr(t, item.SaveSync(context.Background()))
	deepEqual(t, tbl.size(), 1)

	// A fresh reference round-trips through the table.
	item.Dispose()
	fresh := ds.GetOrReference(7)
	deepEqual(t, fresh.IsPresent(), false)
	noerr(t, fresh.FetchSync(context.Background()))
	deepEqual(t, fresh.IsPresent(), true)
	deepEqual(t, fresh.Get().Name, "bar")
	deepEqual(t, fresh.Get().Score, int32(99))
	deepEqual(t, fresh.Get().Rank, RankGold)
	deepEqual(t, fresh.Get().ID, PlayerID(7))
}

func TestItemSaveAbsentIsNoop(t *testing.T) {
	ds, tbl := setupPlayers(t)
	noerr(t, ds.GetOrReference(1).SaveSync(context.Background()))
	deepEqual(t, tbl.size(), 0)
}

func TestItemSaveFetchAsync(t *testing.T) {
	ds, _ := setupPlayers(t)

	item := ds.GetOrCreate(5)
	item.Get().Name = "async"
	_, err := item.SaveAsync().Wait()
	noerr(t, err)

	item.Dispose()
	fresh := ds.GetOrReference(5)
	got, err := fresh.FetchAsync().Wait()
	noerr(t, err)
	deepEqual(t, got.Get().Name, "async")
}

func TestItemFetchAbsentLeavesValueEmpty(t *testing.T) {
	ds, _ := setupPlayers(t)
	item := ds.GetOrReference(404)
	noerr(t, item.FetchSync(context.Background()))
	deepEqual(t, item.IsPresent(), false)
	// The attempt still counts as a fetch.
	deepEqual(t, item.LastFetchTime().IsZero(), false)
}

func TestItemTimestamps(t *testing.T) {
	ds, _ := setupPlayers(t)
	item := ds.GetOrCreate(1)

	deepEqual(t, item.LastFetchTime().IsZero(), true)
	ref0 := item.LastReferenceTime()

	item.referencedNow()
	ref1 := item.LastReferenceTime()
	if ref1.Before(ref0) {
		t.Errorf("** reference time went backwards: %v -> %v", ref0, ref1)
	}

	item.fetchedNow()
	fetch1 := item.LastFetchTime()
	deepEqual(t, fetch1.IsZero(), false)

	time.Sleep(2 * time.Millisecond)
	item.fetchedNow()
	fetch2 := item.LastFetchTime()
	if fetch2.Before(fetch1) {
		t.Errorf("** fetch time went backwards: %v -> %v", fetch1, fetch2)
	}
}

func TestItemOffsetsSaturate(t *testing.T) {
	ds, _ := setupPlayers(t)
	item := ds.GetOrCreate(1)
	// Pretend the item was created far in the past; the offset clamps
	// instead of overflowing.
	item.createdTime = time.Now().Add(-100 * 24 * 365 * time.Hour)
	item.fetchedNow()
	deepEqual(t, item.lastFetchOffset.Load(), int32(1<<31-1))
}

func TestItemDisposeReleasesIdentity(t *testing.T) {
	ds, _ := setupPlayers(t)
	item := ds.GetOrCreate(1)
	item.Dispose()
	fresh := ds.GetOrReference(1)
	if fresh == item {
		t.Errorf("** disposed item identity was reused")
	}
	deepEqual(t, fresh.IsPresent(), false)
}
