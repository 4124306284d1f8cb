package ttscache

import (
	"fmt"
	"testing"
	"time"
)

func fixedClock(t *time.Time) func() time.Time {
	return func() time.Time { return *t }
}

func TestGetHitWithinTTL(t *testing.T) {
	now := time.Now()
	c := New()
	c.now = fixedClock(&now)

	key := Key("hello world", "voice-a")
	c.Put(key, []byte("mp3-bytes"))

	now = now.Add(14 * time.Minute)
	got, ok := c.Get(key)
	if !ok {
		t.Fatal("expected cache hit within TTL")
	}
	if string(got) != "mp3-bytes" {
		t.Fatalf("expected identical bytes, got %q", got)
	}
}

func TestGetMissAfterTTL(t *testing.T) {
	now := time.Now()
	c := New()
	c.now = fixedClock(&now)

	key := Key("hello world", "voice-a")
	c.Put(key, []byte("mp3-bytes"))

	now = now.Add(16 * time.Minute)
	if _, ok := c.Get(key); ok {
		t.Fatal("expected miss after TTL")
	}
	if c.Len() != 0 {
		t.Fatalf("stale entry should be dropped lazily, len=%d", c.Len())
	}
}

func TestKeyDistinguishesVoice(t *testing.T) {
	if Key("same text", "voice-a") == Key("same text", "voice-b") {
		t.Fatal("different voices must not collide")
	}
}

func TestEvictionDropsOldestBatch(t *testing.T) {
	now := time.Now()
	c := New()
	c.now = fixedClock(&now)

	for i := 0; i < DefaultMaxEntries; i++ {
		c.Put(fmt.Sprintf("key-%d", i), []byte("x"))
		now = now.Add(time.Second)
	}
	if c.Len() != DefaultMaxEntries {
		t.Fatalf("len=%d, want %d", c.Len(), DefaultMaxEntries)
	}

	c.Put("overflow", []byte("x"))

	want := DefaultMaxEntries - DefaultEvictBatch + 1
	if c.Len() != want {
		t.Fatalf("len=%d after eviction, want %d", c.Len(), want)
	}
	// The 20 oldest are gone, newer ones survive.
	for i := 0; i < DefaultEvictBatch; i++ {
		if _, ok := c.Get(fmt.Sprintf("key-%d", i)); ok {
			t.Fatalf("key-%d should have been evicted", i)
		}
	}
	if _, ok := c.Get(fmt.Sprintf("key-%d", DefaultEvictBatch)); !ok {
		t.Fatalf("key-%d should have survived eviction", DefaultEvictBatch)
	}
	if _, ok := c.Get("overflow"); !ok {
		t.Fatal("newly inserted entry should be present")
	}
}

func TestPutSameKeyDoesNotEvict(t *testing.T) {
	now := time.Now()
	c := New()
	c.now = fixedClock(&now)

	for i := 0; i < DefaultMaxEntries; i++ {
		c.Put(fmt.Sprintf("key-%d", i), []byte("x"))
	}
	c.Put("key-0", []byte("y"))
	if c.Len() != DefaultMaxEntries {
		t.Fatalf("overwriting an existing key must not evict, len=%d", c.Len())
	}
}

func TestPurge(t *testing.T) {
	now := time.Now()
	c := New()
	c.now = fixedClock(&now)

	c.Put("old", []byte("x"))
	now = now.Add(20 * time.Minute)
	c.Put("fresh", []byte("x"))

	if removed := c.Purge(); removed != 1 {
		t.Fatalf("removed=%d, want 1", removed)
	}
	if _, ok := c.Get("fresh"); !ok {
		t.Fatal("fresh entry must survive purge")
	}
}
