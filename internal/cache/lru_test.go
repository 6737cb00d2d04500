// Waymark - Geospatial Node Spawning and Reservation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func TestLRU_BasicOperations(t *testing.T) {
	c := NewLRU[string, int](3, time.Minute)

	c.Add("a", 1)
	c.Add("b", 2)
	c.Add("c", 3)

	for key, want := range map[string]int{"a": 1, "b": 2, "c": 3} {
		got, ok := c.Get(key)
		if !ok || got != want {
			t.Errorf("Get(%q) = %d, %v; want %d, true", key, got, ok, want)
		}
	}
	if c.Len() != 3 {
		t.Errorf("Len() = %d, want 3", c.Len())
	}

	c.Add("a", 10)
	if got, _ := c.Get("a"); got != 10 {
		t.Errorf("Get(a) after update = %d, want 10", got)
	}
	if c.Len() != 3 {
		t.Errorf("Len() after update = %d, want 3", c.Len())
	}
}

func TestLRU_Eviction(t *testing.T) {
	c := NewLRU[string, int](3, time.Minute)
	c.Add("a", 1)
	c.Add("b", 2)
	c.Add("c", 3)

	// a becomes most recently used, so b is the eviction victim.
	c.Get("a")
	c.Add("d", 4)

	if _, ok := c.Get("b"); ok {
		t.Error("expected b to be evicted")
	}
	for _, key := range []string{"a", "c", "d"} {
		if _, ok := c.Get(key); !ok {
			t.Errorf("expected %s to be present", key)
		}
	}
}

func TestLRU_TTLExpiration(t *testing.T) {
	clock := newClock()
	c := NewLRU[string, string](10, time.Minute).WithClock(clock.Now)

	c.Add("a", "x")
	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected a before expiry")
	}

	clock.Advance(time.Minute)
	if _, ok := c.Get("a"); ok {
		t.Error("expected a to expire at ttl")
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, expired entry should be dropped on access", c.Len())
	}
}

func TestLRU_AddRefreshesTTL(t *testing.T) {
	clock := newClock()
	c := NewLRU[string, int](10, time.Minute).WithClock(clock.Now)

	c.Add("a", 1)
	clock.Advance(45 * time.Second)
	c.Add("a", 2)
	clock.Advance(45 * time.Second)

	if got, ok := c.Get("a"); !ok || got != 2 {
		t.Errorf("Get(a) = %d, %v; want refreshed entry", got, ok)
	}
}

func TestLRU_RemoveAndClear(t *testing.T) {
	c := NewLRU[int, string](10, time.Minute)
	c.Add(1, "one")
	c.Add(2, "two")

	if !c.Remove(1) {
		t.Error("Remove(1) = false, want true")
	}
	if c.Remove(1) {
		t.Error("second Remove(1) = true, want false")
	}

	c.Clear()
	if c.Len() != 0 {
		t.Errorf("Len() after Clear = %d", c.Len())
	}
	c.Add(3, "three")
	if got, ok := c.Get(3); !ok || got != "three" {
		t.Error("cache unusable after Clear")
	}
}

func TestLRU_CleanupExpired(t *testing.T) {
	clock := newClock()
	c := NewLRU[string, int](10, time.Minute).WithClock(clock.Now)

	c.Add("old1", 1)
	c.Add("old2", 2)
	clock.Advance(30 * time.Second)
	c.Add("fresh", 3)
	clock.Advance(40 * time.Second)

	if removed := c.CleanupExpired(); removed != 2 {
		t.Errorf("CleanupExpired() = %d, want 2", removed)
	}
	if _, ok := c.Get("fresh"); !ok {
		t.Error("fresh entry should survive cleanup")
	}
}

func TestLRU_Stats(t *testing.T) {
	c := NewLRU[string, int](10, time.Minute)
	c.Add("a", 1)
	c.Get("a")
	c.Get("a")
	c.Get("missing")

	hits, misses, size := c.Stats()
	if hits != 2 || misses != 1 || size != 1 {
		t.Errorf("Stats() = %d, %d, %d; want 2, 1, 1", hits, misses, size)
	}
}

func TestLRU_Defaults(t *testing.T) {
	c := NewLRU[string, int](0, 0)
	if c.capacity != 10000 || c.ttl != 5*time.Minute {
		t.Errorf("defaults = %d, %v", c.capacity, c.ttl)
	}
}

func TestLRU_Concurrent(t *testing.T) {
	c := NewLRU[string, int](50, time.Minute)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("k%d", (g*200+i)%100)
				c.Add(key, i)
				c.Get(key)
				if i%17 == 0 {
					c.Remove(key)
				}
			}
		}(g)
	}
	wg.Wait()

	if c.Len() > 50 {
		t.Errorf("Len() = %d exceeds capacity", c.Len())
	}
}
