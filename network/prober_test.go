package network

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/driftsync/driftsync/logging"
)

func passingProbe(ctx context.Context) error { return nil }

func failingProbe(ctx context.Context) error { return fmt.Errorf("unreachable") }

func quietProber(probe ProbeFunc, opts ...ProberOption) *HTTPProber {
	opts = append(opts, WithProberLogger(logging.Discard()))
	return NewHTTPProber(probe, opts...)
}

func TestTierFor(t *testing.T) {
	tests := []struct {
		latency time.Duration
		want    Tier
	}{
		{10 * time.Millisecond, TierExcellent},
		{150 * time.Millisecond, TierExcellent},
		{151 * time.Millisecond, TierGood},
		{500 * time.Millisecond, TierGood},
		{2 * time.Second, TierPoor},
	}
	for _, tt := range tests {
		if got := tierFor(tt.latency); got != tt.want {
			t.Errorf("tierFor(%v) = %v, want %v", tt.latency, got, tt.want)
		}
	}
}

func TestProber_StartsOffline(t *testing.T) {
	p := quietProber(passingProbe)
	if p.Online() {
		t.Fatal("prober should start offline until the first probe")
	}
	if p.Quality() != TierOffline {
		t.Fatalf("Quality = %v", p.Quality())
	}
}

func TestProber_CheckNow(t *testing.T) {
	p := quietProber(passingProbe)

	change := p.CheckNow(context.Background())
	if !change.Online || !p.Online() {
		t.Fatal("successful probe should mark online")
	}
	if p.Quality() == TierOffline {
		t.Fatalf("Quality = %v after successful probe", p.Quality())
	}

	p.probe = failingProbe
	change = p.CheckNow(context.Background())
	if change.Online || p.Online() {
		t.Fatal("failed probe should mark offline")
	}
	if p.Quality() != TierOffline {
		t.Fatalf("Quality = %v after failed probe", p.Quality())
	}
}

func TestProber_NotifiesOnTransitionOnly(t *testing.T) {
	p := quietProber(passingProbe)

	var changes []StatusChange
	p.Subscribe(func(c StatusChange) { changes = append(changes, c) })

	ctx := context.Background()
	p.CheckNow(ctx) // offline -> online
	p.CheckNow(ctx) // steady state, no event
	p.probe = failingProbe
	p.CheckNow(ctx) // online -> offline

	if len(changes) != 2 {
		t.Fatalf("got %d notifications, want 2: %+v", len(changes), changes)
	}
	if !changes[0].Online || changes[1].Online {
		t.Fatalf("unexpected transitions: %+v", changes)
	}
}

func TestProber_Unsubscribe(t *testing.T) {
	p := quietProber(passingProbe)

	calls := 0
	cancel := p.Subscribe(func(StatusChange) { calls++ })
	cancel()

	p.CheckNow(context.Background())
	if calls != 0 {
		t.Fatalf("cancelled subscriber was called %d times", calls)
	}
}

func TestProber_SubscriberPanicIsolated(t *testing.T) {
	p := quietProber(passingProbe)

	called := false
	p.Subscribe(func(StatusChange) { panic("bad subscriber") })
	p.Subscribe(func(StatusChange) { called = true })

	p.CheckNow(context.Background())
	if !called {
		t.Fatal("a panicking subscriber must not starve the others")
	}
}

func TestProber_ProbeTimeout(t *testing.T) {
	blocked := func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}
	p := quietProber(blocked, WithProbeTimeout(10*time.Millisecond))

	change := p.CheckNow(context.Background())
	if change.Online {
		t.Fatal("a probe that exceeds its timeout is a failure")
	}
}
