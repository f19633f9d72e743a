package ratelimit

import (
	"testing"
	"time"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func TestBurstThenExhaust(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	b := New(clk, 5)

	for i := 0; i < 5; i++ {
		if !b.Allow() {
			t.Fatalf("allow %d: want true", i)
		}
	}
	if b.Allow() {
		t.Fatal("bucket should be empty")
	}
}

func TestRefill(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	b := New(clk, 10)

	for i := 0; i < 10; i++ {
		b.Allow()
	}
	if b.Allow() {
		t.Fatal("bucket should be empty")
	}

	clk.Advance(100 * time.Millisecond) // one token at 10/sec
	if !b.Allow() {
		t.Fatal("expected one token after refill")
	}
	if b.Allow() {
		t.Fatal("expected exactly one token after refill")
	}
}

func TestCapacityClamp(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	b := New(clk, 2)

	clk.Advance(time.Hour)

	allowed := 0
	for i := 0; i < 10; i++ {
		if b.Allow() {
			allowed++
		}
	}
	if allowed != 2 {
		t.Fatalf("allowed=%d, want capacity 2", allowed)
	}
}

func TestBackwardsClock(t *testing.T) {
	clk := &fakeClock{now: time.Unix(100, 0)}
	b := New(clk, 1)

	if !b.Allow() {
		t.Fatal("first allow should succeed")
	}
	clk.now = time.Unix(50, 0)
	if b.Allow() {
		t.Fatal("no refill after backwards step")
	}
	clk.Advance(time.Second)
	if !b.Allow() {
		t.Fatal("refill should resume from new reference point")
	}
}

func TestDisabled(t *testing.T) {
	var b *TokenBucket
	for i := 0; i < 100; i++ {
		if !b.Allow() {
			t.Fatal("nil bucket must always allow")
		}
	}
	if New(nil, 0) != nil {
		t.Fatal("rate 0 must return nil bucket")
	}
}
