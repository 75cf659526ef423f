// Package network observes connectivity to the sync server and feeds
// quality changes to the engine so it can adapt batch size and retry
// cadence.
package network

import "time"

// Tier buckets connection quality by observed round-trip latency.
type Tier int

const (
	TierOffline Tier = iota
	TierPoor
	TierGood
	TierExcellent
)

func (t Tier) String() string {
	switch t {
	case TierOffline:
		return "offline"
	case TierPoor:
		return "poor"
	case TierGood:
		return "good"
	case TierExcellent:
		return "excellent"
	default:
		return "unknown"
	}
}

// StatusChange describes a connectivity transition.
type StatusChange struct {
	Online  bool
	Quality Tier
	Latency time.Duration
	At      time.Time
}

// Observer reports current connectivity and notifies subscribers on
// transitions.
type Observer interface {
	// Online reports whether the server answered the last probe.
	Online() bool

	// Quality returns the latency tier of the last successful probe,
	// or TierOffline.
	Quality() Tier

	// Subscribe registers a callback invoked on every status
	// transition. The returned function cancels the subscription.
	Subscribe(fn func(StatusChange)) func()
}
