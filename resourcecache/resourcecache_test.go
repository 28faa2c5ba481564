package resourcecache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/SocketCluster/sc-crud-rethink/cachetypes"
	"github.com/SocketCluster/sc-crud-rethink/schema"
)

func TestPassSingleFlight(t *testing.T) {
	c := New(time.Minute, false)
	key := Key{Type: "Product", ID: "p1"}

	var calls int32
	var release sync.WaitGroup
	release.Add(1)
	provider := func(cb Callback) {
		atomic.AddInt32(&calls, 1)
		go func() {
			release.Wait()
			cb(schema.Document{"id": "p1"}, nil)
		}()
	}

	const n = 20
	results := make(chan schema.Document, n)
	var start sync.WaitGroup
	start.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			start.Done()
			c.Pass(context.Background(), key, provider, func(doc schema.Document, err error) {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				results <- doc
			})
		}()
	}
	start.Wait()
	time.Sleep(20 * time.Millisecond) // let all N calls register as waiters before releasing
	release.Done()

	for i := 0; i < n; i++ {
		<-results
	}

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("dataProvider invoked %d times, want 1", got)
	}
}

func TestPassPatchCoherence(t *testing.T) {
	c := New(time.Minute, false)
	key := Key{Type: "Product", ID: "p1"}

	started := make(chan struct{})
	resume := make(chan struct{})
	provider := func(cb Callback) {
		close(started)
		go func() {
			<-resume
			cb(schema.Document{"id": "p1", "price": 5}, nil)
		}()
	}

	done := make(chan schema.Document, 1)
	c.Pass(context.Background(), key, provider, func(doc schema.Document, err error) {
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		done <- doc
	})

	<-started
	// A field update arrives while the fetch is still pending.
	c.Update("crud>Product/p1/price", "update", 9)
	close(resume)

	doc := <-done
	if doc["price"] != 9 {
		t.Errorf("price = %v, want 9 (patch must win over fetched value)", doc["price"])
	}
}

func TestPassErrorNotCached(t *testing.T) {
	c := New(time.Minute, false)
	key := Key{Type: "Product", ID: "p1"}

	wantErr := assertErr{"boom"}
	c.Pass(context.Background(), key, func(cb Callback) { cb(nil, wantErr) }, func(doc schema.Document, err error) {
		if err != wantErr {
			t.Errorf("err = %v, want %v", err, wantErr)
		}
	})

	if _, err := c.Get(key); err == nil {
		t.Error("expected no cache entry after a failed fetch")
	}
}

func TestSetGetClear(t *testing.T) {
	c := New(time.Minute, false)
	key := Key{Type: "Product", ID: "p1"}

	var cleared bool
	c.OnClear(func(k Key) {
		if k == key {
			cleared = true
		}
	})

	c.Set(key, schema.Document{"id": "p1"})
	got, err := c.Get(key)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if diff := cmp.Diff(schema.Document{"id": "p1"}, got); diff != "" {
		t.Errorf("Get mismatch (-want +got):\n%s", diff)
	}

	c.Clear(key)
	if _, err := c.Get(key); err == nil {
		t.Error("expected cache miss after Clear")
	}
	if !cleared {
		t.Error("expected OnClear listener to fire")
	}
}

func TestDisabledCacheBypassesEntirely(t *testing.T) {
	c := New(time.Minute, true)
	key := Key{Type: "Product", ID: "p1"}

	var calls int
	c.Pass(context.Background(), key, func(cb Callback) {
		calls++
		cb(schema.Document{"id": "p1"}, nil)
	}, func(doc schema.Document, err error) {})
	c.Pass(context.Background(), key, func(cb Callback) {
		calls++
		cb(schema.Document{"id": "p1"}, nil)
	}, func(doc schema.Document, err error) {})

	if calls != 2 {
		t.Errorf("calls = %d, want 2 (disabled cache must not coalesce)", calls)
	}
}

type assertErr struct{ msg string }

func (e assertErr) Error() string { return e.msg }

// fakeMirror is an in-memory Mirror stand-in for tests that don't need an
// actual Valkey connection.
type fakeMirror struct {
	mu   sync.Mutex
	docs map[Key]schema.Document
	gets int32
}

func (m *fakeMirror) Get(_ context.Context, key Key) (schema.Document, error) {
	atomic.AddInt32(&m.gets, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[key]
	if !ok {
		return nil, cachetypes.ErrCachedDataNotFound
	}

	return doc, nil
}

func (m *fakeMirror) Set(_ context.Context, key Key, doc schema.Document, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.docs == nil {
		m.docs = map[Key]schema.Document{}
	}
	m.docs[key] = doc

	return nil
}

func (m *fakeMirror) Delete(_ context.Context, key Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, key)

	return nil
}

func TestPassServesFromMirrorOnLocalMiss(t *testing.T) {
	mirror := &fakeMirror{docs: map[Key]schema.Document{
		{Type: "Product", ID: "p1"}: {"id": "p1", "name": "mirrored"},
	}}
	c := New(time.Minute, false, WithMirror(mirror))
	key := Key{Type: "Product", ID: "p1"}

	var providerCalls int32
	done := make(chan schema.Document, 1)
	c.Pass(context.Background(), key, func(cb Callback) {
		atomic.AddInt32(&providerCalls, 1)
		cb(schema.Document{"id": "p1", "name": "fetched"}, nil)
	}, func(doc schema.Document, err error) {
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		done <- doc
	})

	doc := <-done
	if doc["name"] != "mirrored" {
		t.Errorf("name = %v, want mirrored (mirror hit should win over provider)", doc["name"])
	}
	if atomic.LoadInt32(&providerCalls) != 0 {
		t.Error("provider must not run when the mirror already has the document")
	}

	// The mirror hit installs a local entry, so Get finds the document
	// locally.
	if _, err := c.Get(key); err != nil {
		t.Errorf("Get error after mirror hit: %v", err)
	}
}

func TestPassFallsThroughToProviderOnMirrorMiss(t *testing.T) {
	mirror := &fakeMirror{}
	c := New(time.Minute, false, WithMirror(mirror))
	key := Key{Type: "Product", ID: "p1"}

	var providerCalls int32
	done := make(chan schema.Document, 1)
	c.Pass(context.Background(), key, func(cb Callback) {
		atomic.AddInt32(&providerCalls, 1)
		cb(schema.Document{"id": "p1"}, nil)
	}, func(doc schema.Document, err error) {
		done <- doc
	})

	<-done
	if atomic.LoadInt32(&providerCalls) != 1 {
		t.Errorf("providerCalls = %d, want 1 on a mirror miss", providerCalls)
	}
	if atomic.LoadInt32(&mirror.gets) != 1 {
		t.Errorf("mirror.Get calls = %d, want 1", mirror.gets)
	}
}
