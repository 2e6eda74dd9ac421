package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/creditlens/creditlens/internal/core/domain"
)

func payloadWithSummary(summary string) *domain.ReportPayload {
	return &domain.ReportPayload{
		Overview: domain.Overview{Summary: summary},
	}
}

func TestGetReturnsStoredPayload(t *testing.T) {
	c := New()
	c.Put("fp-1", payloadWithSummary("hello"))

	got, ok := c.Get("fp-1")
	if !ok {
		t.Fatalf("expected hit")
	}
	if got.Overview.Summary != "hello" {
		t.Fatalf("unexpected payload: %+v", got)
	}
	if _, ok := c.Get("fp-missing"); ok {
		t.Fatalf("expected miss for unknown fingerprint")
	}
}

func TestPutEvictsOldestInsertionOnOverflow(t *testing.T) {
	c := New(WithCapacity(2))
	c.Put("fp-1", payloadWithSummary("1"))
	c.Put("fp-2", payloadWithSummary("2"))
	c.Put("fp-3", payloadWithSummary("3"))

	if _, ok := c.Get("fp-1"); ok {
		t.Fatalf("expected oldest entry evicted")
	}
	if _, ok := c.Get("fp-2"); !ok {
		t.Fatalf("expected fp-2 retained")
	}
	if _, ok := c.Get("fp-3"); !ok {
		t.Fatalf("expected fp-3 retained")
	}
	if c.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", c.Len())
	}
}

func TestGetExpiresEntriesPastTTL(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	c := New(WithTTL(time.Minute), WithClock(func() time.Time { return clock() }))

	c.Put("fp-1", payloadWithSummary("1"))
	now = now.Add(2 * time.Minute)

	if _, ok := c.Get("fp-1"); ok {
		t.Fatalf("expected TTL expiry")
	}
	if c.Len() != 0 {
		t.Fatalf("expected expired entry removed, got %d", c.Len())
	}
}

func TestFallbackPayloadIsReturnedAsIs(t *testing.T) {
	c := New()
	fallback := payloadWithSummary("could not complete")
	fallback.Fallback = true
	c.Put("fp-1", fallback)

	got, ok := c.Get("fp-1")
	if !ok || !got.Fallback {
		t.Fatalf("expected cached fallback payload, got %+v ok=%v", got, ok)
	}
}

func TestAcquireGrantsSingleLeader(t *testing.T) {
	c := New()
	leader, done := c.Acquire("fp-1")
	if !leader {
		t.Fatalf("expected first caller to lead")
	}
	if again, _ := c.Acquire("fp-1"); again {
		t.Fatalf("expected follower while leader in flight")
	}

	done()
	if leader, d := c.Acquire("fp-1"); !leader {
		t.Fatalf("expected leadership after done")
	} else {
		d()
	}
}

func TestConcurrentAccessDoesNotCorrupt(t *testing.T) {
	c := New(WithCapacity(8))
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			fp := fmt.Sprintf("fp-%d", n%10)
			c.Put(fp, payloadWithSummary(fp))
			c.Get(fp)
			if leader, done := c.Acquire(fp); leader {
				done()
			}
		}(i)
	}
	wg.Wait()

	if c.Len() > 8 {
		t.Fatalf("capacity bound violated: %d", c.Len())
	}
}
