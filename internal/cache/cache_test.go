package cache

import (
	"errors"
	"testing"
	"time"

	"github.com/desertthunder/gamekeep/internal/kv"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestCache[V any](t *testing.T, lifespan time.Duration) (*Cache[V], *kv.Namespace, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	bucket := kv.Memory().Namespace("gameinfo.gog")
	return New[V]("gameinfo.gog", bucket, lifespan, WithClock(clock.Now)), bucket, clock
}

func TestCacheExpiry(t *testing.T) {
	tests := []struct {
		name      string
		lifespan  time.Duration
		elapsed   time.Duration
		wantFound bool
	}{
		{name: "fresh", lifespan: 10 * time.Minute, elapsed: 0, wantFound: true},
		{name: "exactly at lifespan", lifespan: 10 * time.Minute, elapsed: 10 * time.Minute, wantFound: true},
		{name: "lifespan plus one minute", lifespan: 10 * time.Minute, elapsed: 11 * time.Minute, wantFound: false},
		{name: "one minute lifespan", lifespan: time.Minute, elapsed: 2 * time.Minute, wantFound: false},
		{name: "never expires", lifespan: NoExpiry, elapsed: 24 * 365 * 100 * time.Hour, wantFound: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, bucket, clock := newTestCache[string](t, tt.lifespan)

			if err := c.Set("demo", "value"); err != nil {
				t.Fatalf("Set failed: %v", err)
			}
			if v, ok, _ := c.Get("demo"); !ok || v != "value" {
				t.Fatalf("immediate Get = %q, %v", v, ok)
			}

			clock.Advance(tt.elapsed)

			v, ok, err := c.Get("demo")
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if ok != tt.wantFound {
				t.Fatalf("Get found = %v, want %v", ok, tt.wantFound)
			}
			if ok && v != "value" {
				t.Errorf("unexpected value %q", v)
			}

			has, _ := bucket.Has("demo")
			if has != tt.wantFound {
				t.Errorf("entry present in store = %v, want %v", has, tt.wantFound)
			}
		})
	}
}

func TestCacheOperations(t *testing.T) {
	type info struct {
		Title string
		Size  int64
	}

	c, bucket, clock := newTestCache[info](t, 5*time.Minute)

	t.Run("Set overwrites and refreshes timestamp", func(t *testing.T) {
		c.Set("a", info{Title: "old"})
		clock.Advance(4 * time.Minute)
		c.Set("a", info{Title: "new", Size: 9})
		clock.Advance(4 * time.Minute)

		got, ok, _ := c.Get("a")
		if !ok || got.Title != "new" || got.Size != 9 {
			t.Errorf("Get = %+v, %v", got, ok)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		c.Set("b", info{Title: "b"})
		if err := c.Delete("b"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if _, ok, _ := c.Get("b"); ok {
			t.Error("deleted key should be absent")
		}
	})

	t.Run("Clear", func(t *testing.T) {
		c.Set("c", info{})
		c.Set("d", info{})
		if err := c.Clear(); err != nil {
			t.Fatalf("Clear failed: %v", err)
		}
		if _, ok, _ := c.Get("c"); ok {
			t.Error("cleared cache should be empty")
		}
	})

	t.Run("GetOrLoad", func(t *testing.T) {
		calls := 0
		load := func() (info, error) {
			calls++
			return info{Title: "loaded"}, nil
		}

		for range 3 {
			got, err := c.GetOrLoad("e", load)
			if err != nil || got.Title != "loaded" {
				t.Fatalf("GetOrLoad = %+v, %v", got, err)
			}
		}
		if calls != 1 {
			t.Errorf("expected a single load, got %d", calls)
		}

		clock.Advance(6 * time.Minute)
		c.GetOrLoad("e", load)
		if calls != 2 {
			t.Errorf("expected reload after expiry, got %d calls", calls)
		}

		boom := errors.New("offline")
		if _, err := c.GetOrLoad("f", func() (info, error) { return info{}, boom }); !errors.Is(err, boom) {
			t.Errorf("expected load error, got %v", err)
		}
		if _, ok, _ := c.Get("f"); ok {
			t.Error("failed load must not be cached")
		}
	})

	t.Run("GetOrLoad reports unreadable entries", func(t *testing.T) {
		if err := bucket.Set("corrupt", "not an entry"); err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		calls := 0
		_, err := c.GetOrLoad("corrupt", func() (info, error) {
			calls++
			return info{}, nil
		})
		if err == nil {
			t.Error("expected a decode error")
		}
		if calls != 0 {
			t.Errorf("load should not run on a read error, got %d calls", calls)
		}
	})
}
