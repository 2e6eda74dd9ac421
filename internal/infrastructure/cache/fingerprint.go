package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/creditlens/creditlens/internal/core/domain"
)

const (
	DefaultCapacity = 20
	DefaultTTL      = 5 * time.Minute
)

type entry struct {
	fingerprint string
	payload     *domain.ReportPayload
	insertedAt  time.Time
}

// FingerprintCache maps content fingerprints to previously computed
// analysis payloads. Capacity-bounded with oldest-insertion-first
// eviction and a TTL; entries never outlive the process. It also tracks
// per-fingerprint in-flight markers so concurrent misses on the same
// fingerprint run at most one extraction+analysis.
type FingerprintCache struct {
	capacity int
	ttl      time.Duration
	now      func() time.Time

	mu       sync.Mutex
	entries  map[string]*list.Element
	order    *list.List
	inflight map[string]chan struct{}
}

type Option func(*FingerprintCache)

func WithCapacity(capacity int) Option {
	return func(c *FingerprintCache) {
		if capacity > 0 {
			c.capacity = capacity
		}
	}
}

func WithTTL(ttl time.Duration) Option {
	return func(c *FingerprintCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock overrides the time source in tests.
func WithClock(now func() time.Time) Option {
	return func(c *FingerprintCache) {
		if now != nil {
			c.now = now
		}
	}
}

func New(opts ...Option) *FingerprintCache {
	c := &FingerprintCache{
		capacity: DefaultCapacity,
		ttl:      DefaultTTL,
		now:      time.Now,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
		inflight: make(map[string]chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *FingerprintCache) Get(fingerprint string) (*domain.ReportPayload, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[fingerprint]
	if !ok {
		return nil, false
	}
	ent := elem.Value.(*entry)
	if c.ttl > 0 && c.now().Sub(ent.insertedAt) > c.ttl {
		c.removeLocked(elem)
		return nil, false
	}
	return ent.payload, true
}

func (c *FingerprintCache) Put(fingerprint string, payload *domain.ReportPayload) {
	if payload == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[fingerprint]; ok {
		c.removeLocked(elem)
	}
	for c.order.Len() >= c.capacity {
		oldest := c.order.Front()
		if oldest == nil {
			break
		}
		c.removeLocked(oldest)
	}

	elem := c.order.PushBack(&entry{
		fingerprint: fingerprint,
		payload:     payload,
		insertedAt:  c.now(),
	})
	c.entries[fingerprint] = elem
}

// Acquire claims the in-flight marker for a fingerprint. The first
// caller becomes leader and must call done() once its result is cached
// (or its attempt abandoned). Followers get leader=false with a no-op
// done and should re-check the cache after WaitInflight.
func (c *FingerprintCache) Acquire(fingerprint string) (bool, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, busy := c.inflight[fingerprint]; busy {
		return false, func() {}
	}

	ch := make(chan struct{})
	c.inflight[fingerprint] = ch
	var once sync.Once
	done := func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.inflight, fingerprint)
			c.mu.Unlock()
			close(ch)
		})
	}
	return true, done
}

// WaitInflight blocks until the current leader for the fingerprint
// finishes or the context expires. Returns immediately when nothing is
// in flight.
func (c *FingerprintCache) WaitInflight(done <-chan struct{}, fingerprint string) {
	c.mu.Lock()
	ch, busy := c.inflight[fingerprint]
	c.mu.Unlock()
	if !busy {
		return
	}
	select {
	case <-ch:
	case <-done:
	}
}

func (c *FingerprintCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *FingerprintCache) removeLocked(elem *list.Element) {
	ent := elem.Value.(*entry)
	delete(c.entries, ent.fingerprint)
	c.order.Remove(elem)
}
