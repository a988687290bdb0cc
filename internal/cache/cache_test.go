// seehuhn.de/go/pdfscrub - forensic scanning and cleaning of PDF files
// Copyright (C) 2026  Jochen Voss <voss@seehuhn.de>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"seehuhn.de/go/pdfscrub/internal/digest"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestCache(ttl time.Duration, budget int64) (*Cache, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := New(ttl, budget)
	c.now = clock.now
	return c, clock
}

func key(s string) digest.Sum {
	return digest.Content([]byte(s))
}

func TestGetPut(t *testing.T) {
	c, _ := newTestCache(0, 0)
	if _, ok := c.Get(key("a")); ok {
		t.Fatal("empty cache returned a value")
	}
	c.Put(key("a"), []byte("alpha"))
	val, ok := c.Get(key("a"))
	if !ok || string(val) != "alpha" {
		t.Fatalf("got %q, %t", val, ok)
	}
	c.Put(key("a"), []byte("ALPHA!"))
	val, _ = c.Get(key("a"))
	if string(val) != "ALPHA!" {
		t.Errorf("got %q", val)
	}

	s := c.Stats()
	if s.Hits != 2 || s.Misses != 1 || s.Entries != 1 || s.Bytes != 6 {
		t.Errorf("unexpected stats %+v", s)
	}
}

func TestExpiry(t *testing.T) {
	c, clock := newTestCache(time.Minute, 0)
	c.Put(key("a"), []byte("alpha"))

	clock.advance(59 * time.Second)
	if _, ok := c.Get(key("a")); !ok {
		t.Fatal("entry expired early")
	}
	clock.advance(time.Second)
	if _, ok := c.Get(key("a")); ok {
		t.Fatal("expired entry returned")
	}
	if s := c.Stats(); s.Entries != 0 || s.Bytes != 0 {
		t.Errorf("expired entry not removed: %+v", s)
	}
}

func TestEvictLeastRecentlyUsed(t *testing.T) {
	c, clock := newTestCache(0, 10)
	c.Put(key("a"), []byte("aaaa"))
	clock.advance(time.Second)
	c.Put(key("b"), []byte("bbbb"))
	clock.advance(time.Second)
	c.Get(key("a")) // a is now more recent than b
	clock.advance(time.Second)
	c.Put(key("c"), []byte("cccc"))

	if _, ok := c.Get(key("b")); ok {
		t.Error("least recently used entry was kept")
	}
	for _, k := range []string{"a", "c"} {
		if _, ok := c.Get(key(k)); !ok {
			t.Errorf("entry %q was evicted", k)
		}
	}
	if s := c.Stats(); s.Evictions != 1 || s.Bytes != 8 {
		t.Errorf("unexpected stats %+v", s)
	}

	// values larger than the budget are ignored
	c.Put(key("big"), make([]byte, 11))
	if _, ok := c.Get(key("big")); ok {
		t.Error("oversized value stored")
	}
}

func TestConcurrent(t *testing.T) {
	c := New(time.Hour, 1000)
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 200 {
				k := key(fmt.Sprint(i, j%20))
				if _, ok := c.Get(k); !ok {
					c.Put(k, make([]byte, 10))
				}
			}
		}()
	}
	wg.Wait()
	if s := c.Stats(); s.Bytes > 1000 {
		t.Errorf("budget exceeded: %+v", s)
	}
}
