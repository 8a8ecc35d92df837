package cache

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/goliatone/go-repository-shardcache/pkg/testsupport"
)

func fixedSeed(n int64) SecondOption {
	return WithVersionSeed(func() int64 { return n })
}

func TestSecondCache_FirstGetSeedsVersion(t *testing.T) {
	ctx := context.Background()
	store := testsupport.NewMemoryStore()
	s := NewSecondCache(store, time.Minute, zerolog.Nop(), fixedSeed(41))

	if _, ok := s.Get(ctx, shardedUser, "q"); ok {
		t.Fatal("expected a miss on a fresh coordinate")
	}
	v, ok := store.CounterValue(VersionKey(shardedUser))
	if !ok || v != 41 {
		t.Errorf("expected version seeded to 41, got %d (present=%v)", v, ok)
	}
}

func TestSecondCache_PutGetInvalidate(t *testing.T) {
	ctx := context.Background()
	store := testsupport.NewMemoryStore()
	results := Queries[user](NewSecondCache(store, time.Minute, zerolog.Nop(), fixedSeed(7)), nil)

	want := []user{{ID: 1, Name: "ann"}, {ID: 2, Name: "bob"}}
	results.Put(ctx, shardedUser, "age>3", want)

	if !store.Has(ResultKey(shardedUser, 7, "age>3")) {
		t.Fatalf("expected result stored under version 7, have %v", store.Keys())
	}

	got, ok := results.Get(ctx, shardedUser, "age>3")
	if !ok {
		t.Fatal("expected a hit after put")
	}
	if len(got) != 2 || got[1].Name != "bob" {
		t.Errorf("unexpected result %+v", got)
	}

	results.Invalidate(ctx, shardedUser)

	if _, ok := results.Get(ctx, shardedUser, "age>3"); ok {
		t.Error("expected a miss after invalidate")
	}
	if v, _ := store.CounterValue(VersionKey(shardedUser)); v != 8 {
		t.Errorf("expected version 8 after invalidate, got %d", v)
	}
}

func TestSecondCache_InvalidateIsScopedToCoordinate(t *testing.T) {
	ctx := context.Background()
	store := testsupport.NewMemoryStore()
	results := Queries[user](NewSecondCache(store, time.Minute, zerolog.Nop(), fixedSeed(1)), nil)

	results.Put(ctx, shardedUser, "q", []user{{ID: 1}})
	results.Put(ctx, globalCountry, "q", []user{{ID: 2}})

	results.Invalidate(ctx, globalCountry)

	if _, ok := results.Get(ctx, shardedUser, "q"); !ok {
		t.Error("expected other coordinate to keep its results")
	}
}

func TestSecondCache_InvalidateAbsentVersionIsNoop(t *testing.T) {
	ctx := context.Background()
	store := testsupport.NewMemoryStore()
	s := NewSecondCache(store, time.Minute, zerolog.Nop())

	s.Invalidate(ctx, shardedUser)

	if _, ok := store.CounterValue(VersionKey(shardedUser)); ok {
		t.Error("invalidate must not create a version")
	}
}

func TestSecondCache_EmptyResultIsAHit(t *testing.T) {
	ctx := context.Background()
	results := Queries[user](NewSecondCache(testsupport.NewMemoryStore(), time.Minute, zerolog.Nop()), nil)

	results.Put(ctx, shardedUser, "none", []user{})
	got, ok := results.Get(ctx, shardedUser, "none")
	if !ok {
		t.Fatal("expected cached empty result to hit")
	}
	if got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", got)
	}
}

func TestSecondCache_FailingBackend(t *testing.T) {
	ctx := context.Background()
	results := Queries[user](NewSecondCache(testsupport.FailingStore{}, time.Minute, zerolog.Nop()), nil)

	results.Put(ctx, shardedUser, "q", []user{{ID: 1}})
	if _, ok := results.Get(ctx, shardedUser, "q"); ok {
		t.Error("expected failing backend to report a miss")
	}
	results.Invalidate(ctx, shardedUser)
}

func TestSecondCache_RandomSeedRange(t *testing.T) {
	seed := randomSeed()
	for i := 0; i < 1000; i++ {
		if v := seed(); v < 0 || v >= versionSeedRange {
			t.Fatalf("seed %d outside [0, %d)", v, versionSeedRange)
		}
	}
}
