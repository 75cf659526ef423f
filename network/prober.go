package network

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/driftsync/driftsync/clock"
	"github.com/driftsync/driftsync/logging"
)

// ProbeFunc checks server reachability. A nil error means the server
// answered.
type ProbeFunc func(ctx context.Context) error

// Default prober settings.
const (
	DefaultProbeInterval = 15 * time.Second
	DefaultProbeTimeout  = 5 * time.Second

	// Latency ceilings for the quality tiers.
	excellentLatencyMax = 150 * time.Millisecond
	goodLatencyMax      = 500 * time.Millisecond
)

// HTTPProber polls a probe endpoint on its own interval and classifies
// the connection by round-trip latency.
type HTTPProber struct {
	probe    ProbeFunc
	clk      clock.Clock
	interval time.Duration
	timeout  time.Duration
	logger   *logging.Logger

	mu      sync.RWMutex
	online  bool
	quality Tier
	subs    map[int]func(StatusChange)
	nextSub int
	started bool
	stop    chan struct{}
	stopped sync.Once
}

var _ Observer = (*HTTPProber)(nil)

// ProberOption configures an HTTPProber.
type ProberOption func(*HTTPProber)

// WithProbeInterval sets the polling interval.
func WithProbeInterval(d time.Duration) ProberOption {
	return func(p *HTTPProber) { p.interval = d }
}

// WithProbeTimeout sets the per-probe timeout.
func WithProbeTimeout(d time.Duration) ProberOption {
	return func(p *HTTPProber) { p.timeout = d }
}

// WithProberClock sets the clock used for scheduling probes.
func WithProberClock(c clock.Clock) ProberOption {
	return func(p *HTTPProber) { p.clk = c }
}

// WithProberLogger sets the logger.
func WithProberLogger(l *logging.Logger) ProberOption {
	return func(p *HTTPProber) { p.logger = l }
}

// NewHTTPProber creates a prober around the given probe function,
// typically a transport client's Probe method.
func NewHTTPProber(probe ProbeFunc, opts ...ProberOption) *HTTPProber {
	p := &HTTPProber{
		probe:    probe,
		clk:      clock.Real{},
		interval: DefaultProbeInterval,
		timeout:  DefaultProbeTimeout,
		logger:   logging.WithComponent(logging.Component("network-prober")),
		quality:  TierOffline,
		subs:     make(map[int]func(StatusChange)),
		stop:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Online reports the result of the most recent probe.
func (p *HTTPProber) Online() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.online
}

// Quality returns the latency tier of the most recent probe.
func (p *HTTPProber) Quality() Tier {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.quality
}

// Subscribe registers a transition callback and returns its cancel
// function.
func (p *HTTPProber) Subscribe(fn func(StatusChange)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.nextSub
	p.nextSub++
	p.subs[id] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.subs, id)
	}
}

// Start begins polling in a background goroutine. The first probe runs
// immediately. Start is a no-op when called twice.
func (p *HTTPProber) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go p.loop(ctx)
}

// Close stops the polling loop.
func (p *HTTPProber) Close() error {
	p.stopped.Do(func() { close(p.stop) })
	return nil
}

func (p *HTTPProber) loop(ctx context.Context) {
	for {
		p.CheckNow(ctx)

		select {
		case <-ctx.Done():
			return
		case <-p.stop:
			return
		case <-p.clk.After(p.interval):
		}
	}
}

// CheckNow runs a single probe synchronously and returns the resulting
// status.
func (p *HTTPProber) CheckNow(ctx context.Context) StatusChange {
	probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	err := p.probe(probeCtx)
	latency := time.Since(start)

	online := err == nil
	quality := TierOffline
	if online {
		quality = tierFor(latency)
	}
	return p.transition(online, quality, latency, err)
}

func (p *HTTPProber) transition(online bool, quality Tier, latency time.Duration, probeErr error) StatusChange {
	change := StatusChange{
		Online:  online,
		Quality: quality,
		Latency: latency,
		At:      p.clk.Now(),
	}

	p.mu.Lock()
	changed := p.online != online || p.quality != quality
	p.online = online
	p.quality = quality
	var subs []func(StatusChange)
	if changed {
		subs = make([]func(StatusChange), 0, len(p.subs))
		for _, fn := range p.subs {
			subs = append(subs, fn)
		}
	}
	p.mu.Unlock()

	if !changed {
		return change
	}

	if probeErr != nil {
		p.logger.Warn("Connectivity lost", slog.String("error", probeErr.Error()))
	} else {
		p.logger.Info("Connectivity changed",
			slog.String("quality", quality.String()),
			slog.Duration("latency", latency))
	}

	for _, fn := range subs {
		p.emit(fn, change)
	}
	return change
}

// emit isolates subscriber panics so one bad callback cannot take down
// the polling loop.
func (p *HTTPProber) emit(fn func(StatusChange), change StatusChange) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Subscriber panicked", slog.Any("panic", r))
		}
	}()
	fn(change)
}

func tierFor(latency time.Duration) Tier {
	switch {
	case latency <= excellentLatencyMax:
		return TierExcellent
	case latency <= goodLatencyMax:
		return TierGood
	default:
		return TierPoor
	}
}
