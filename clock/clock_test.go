package clock

import (
	"testing"
	"time"
)

func TestFake_NowAdvance(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	f := NewFake(start)

	if !f.Now().Equal(start) {
		t.Fatalf("Now() = %v, want %v", f.Now(), start)
	}

	f.Advance(5 * time.Second)
	if got := f.Now(); !got.Equal(start.Add(5 * time.Second)) {
		t.Fatalf("Now() after advance = %v", got)
	}
}

func TestFake_AfterFiresOnAdvance(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	ch := f.After(time.Second)

	select {
	case <-ch:
		t.Fatal("timer fired before advance")
	default:
	}

	f.Advance(time.Second)
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire after advance")
	}
}

func TestFake_AfterPartialAdvance(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	ch := f.After(2 * time.Second)

	f.Advance(time.Second)
	select {
	case <-ch:
		t.Fatal("timer fired too early")
	default:
	}

	f.Advance(time.Second)
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire at deadline")
	}
}

func TestFake_AfterNonPositive(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	select {
	case <-f.After(0):
	default:
		t.Fatal("zero-duration After should fire immediately")
	}
}

func TestReal_Clock(t *testing.T) {
	var c Clock = Real{}
	if c.Now().IsZero() {
		t.Fatal("real clock returned zero time")
	}
	select {
	case <-c.After(time.Millisecond):
	case <-time.After(time.Second):
		t.Fatal("real After never fired")
	}
}
