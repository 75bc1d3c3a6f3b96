package clock

import (
	"testing"
	"time"
)

func TestFakeAdvanceFiresInOrder(t *testing.T) {
	c := NewFake(time.Unix(1000, 0))
	var got []int
	c.AfterFunc(300*time.Millisecond, func() { got = append(got, 2) })
	c.AfterFunc(100*time.Millisecond, func() { got = append(got, 1) })
	c.AfterFunc(time.Second, func() { got = append(got, 3) })

	c.Advance(500 * time.Millisecond)
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("unexpected fire order: %v", got)
	}
	if c.Pending() != 1 {
		t.Fatalf("expected 1 pending, got %d", c.Pending())
	}
	c.Advance(time.Second)
	if len(got) != 3 {
		t.Fatalf("expected all callbacks fired, got %v", got)
	}
}

func TestFakeStop(t *testing.T) {
	c := NewFake(time.Unix(0, 0))
	fired := false
	stop := c.AfterFunc(time.Millisecond, func() { fired = true })
	if !stop() {
		t.Fatal("first stop should report true")
	}
	if stop() {
		t.Fatal("second stop should report false")
	}
	c.Advance(time.Second)
	if fired {
		t.Fatal("stopped callback fired")
	}
}

func TestFakeNow(t *testing.T) {
	start := time.Unix(50, 0)
	c := NewFake(start)
	c.Advance(1500 * time.Millisecond)
	if got := c.Now().Sub(start); got != 1500*time.Millisecond {
		t.Fatalf("expected 1.5s elapsed, got %v", got)
	}
}
