// Package engine implements the offline-first synchronization state
// machine: a durable operation queue, batched transmission, retry with
// exponential backoff, and conflict routing through the resolution
// policy.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/driftsync/driftsync/clock"
	"github.com/driftsync/driftsync/conflict"
	syncErrors "github.com/driftsync/driftsync/errors"
	"github.com/driftsync/driftsync/logging"
	"github.com/driftsync/driftsync/network"
	"github.com/driftsync/driftsync/storage"
	"github.com/driftsync/driftsync/transport"
)

// Storage layout.
const (
	opsCollection  = "pending-operations"
	metaCollection = "metadata"
	metaKey        = "engine"
)

// Default tuning knobs.
const (
	DefaultBatchSize      = 50
	DefaultMaxRetries     = 3
	DefaultRetryBaseDelay = time.Second
	DefaultSyncInterval   = 30 * time.Second

	maxBackoffDelay = 2 * time.Minute
)

// metadata is the single durable record tracking engine status across
// restarts.
type metadata struct {
	Online     bool  `json:"online"`
	LastSyncAt int64 `json:"lastSyncAt"`
}

// Options holds the engine's construction-time settings.
type Options struct {
	// DeviceID identifies this device in batch requests. Required.
	DeviceID string

	// BatchSize caps how many operations travel in one batch.
	BatchSize int

	// MaxRetries bounds transient-failure retries per operation before
	// it becomes terminally failed.
	MaxRetries int

	// RetryBaseDelay is the backoff base: the n-th retry waits
	// RetryBaseDelay * 2^(n-1).
	RetryBaseDelay time.Duration

	// SyncInterval drives the optional auto-sync loop.
	SyncInterval time.Duration

	// StartOnline sets the initial connectivity assumption for a fresh
	// store. Persisted connectivity from a previous run takes
	// precedence, as does any observer report.
	StartOnline bool
}

// DefaultOptions returns production defaults for the given device.
func DefaultOptions(deviceID string) Options {
	return Options{
		DeviceID:       deviceID,
		BatchSize:      DefaultBatchSize,
		MaxRetries:     DefaultMaxRetries,
		RetryBaseDelay: DefaultRetryBaseDelay,
		SyncInterval:   DefaultSyncInterval,
		StartOnline:    true,
	}
}

func (o *Options) setDefaults() {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.RetryBaseDelay <= 0 {
		o.RetryBaseDelay = DefaultRetryBaseDelay
	}
	if o.SyncInterval <= 0 {
		o.SyncInterval = DefaultSyncInterval
	}
}

// Engine is the synchronization state machine. All mutation of the
// operation index and conflict registry is serialized behind mu; the
// single active sync pass is enforced by the syncing flag.
type Engine struct {
	deviceID  string
	store     storage.Store
	transport transport.Transport
	policy    *conflict.Policy
	registry  *conflict.Registry
	clk       clock.Clock
	logger    *logging.Logger
	bus       *eventBus

	mu             sync.Mutex
	batchSize      int
	maxRetries     int
	retryBaseDelay time.Duration
	syncInterval   time.Duration
	state          State
	online         bool
	syncing        bool
	closed         bool
	degraded       bool
	lastSyncAt     int64
	ops            map[string]*Operation
	nextSeq        uint64
	autoSyncStop   chan struct{}

	unsubObserver func()
	stop          chan struct{}
	stopped       sync.Once
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock injects the time source. Defaults to the wall clock.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clk = c }
}

// WithLogger sets the engine logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithObserver wires a connectivity observer: online transitions drive
// the engine's offline state and quality tiers adapt its behavior.
func WithObserver(obs network.Observer) Option {
	return func(e *Engine) {
		e.unsubObserver = obs.Subscribe(func(c network.StatusChange) {
			e.SetOnline(c.Online)
			if c.Online {
				e.AdaptToQuality(c.Quality)
			}
		})
	}
}

// New constructs an engine and rehydrates the pending queue from the
// durable store. Operations caught mid-flight by a previous crash are
// reverted to pending.
func New(store storage.Store, tr transport.Transport, policy *conflict.Policy, opts Options, options ...Option) (*Engine, error) {
	if opts.DeviceID == "" {
		return nil, fmt.Errorf("DeviceID is required")
	}
	opts.setDefaults()

	e := &Engine{
		deviceID:       opts.DeviceID,
		store:          store,
		transport:      tr,
		policy:         policy,
		registry:       conflict.NewRegistry(),
		clk:            clock.Real{},
		logger:         logging.WithComponent(logging.Component("sync-engine")),
		batchSize:      opts.BatchSize,
		maxRetries:     opts.MaxRetries,
		retryBaseDelay: opts.RetryBaseDelay,
		syncInterval:   opts.SyncInterval,
		state:          StateIdle,
		online:         opts.StartOnline,
		ops:            make(map[string]*Operation),
		stop:           make(chan struct{}),
	}
	for _, opt := range options {
		opt(e)
	}
	e.bus = newEventBus(e.logger)

	if err := e.rehydrate(context.Background()); err != nil {
		return nil, err
	}
	if !e.online {
		e.state = StateOffline
	}
	return e, nil
}

// rehydrate loads persisted operations and metadata.
func (e *Engine) rehydrate(ctx context.Context) error {
	records, err := e.store.GetAll(ctx, opsCollection)
	if err != nil {
		return syncErrors.NewPersistenceError(syncErrors.OpLoad, err)
	}

	restored := make([]*Operation, 0, len(records))
	for id, data := range records {
		op, err := unmarshalOperation(data)
		if err != nil {
			e.logger.Warn("Dropping unreadable operation record",
				slog.String("operation_id", id),
				slog.String("error", err.Error()))
			continue
		}
		// A processing operation at startup means the previous run
		// died mid-pass. Its batch may or may not have landed; resend
		// and let the authority arbitrate.
		if op.Status == StatusProcessing {
			op.Status = StatusPending
		}
		restored = append(restored, op)
	}

	sort.Slice(restored, func(i, j int) bool {
		if restored[i].EnqueuedAt != restored[j].EnqueuedAt {
			return restored[i].EnqueuedAt < restored[j].EnqueuedAt
		}
		return restored[i].ID < restored[j].ID
	})
	for _, op := range restored {
		op.seq = e.nextSeq
		e.nextSeq++
		e.ops[op.ID] = op
	}

	if data, err := e.store.Get(ctx, metaCollection, metaKey); err == nil {
		var meta metadata
		if err := json.Unmarshal(data, &meta); err == nil {
			e.lastSyncAt = meta.LastSyncAt
			// Last known connectivity carries across restarts until an
			// observer reports otherwise.
			e.online = meta.Online
		}
	}
	return nil
}

// Subscribe registers an event handler. Delivery is synchronous and in
// emission order; the returned function cancels the subscription.
func (e *Engine) Subscribe(fn func(Event)) func() {
	return e.bus.subscribe(fn)
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Online reports the engine's current connectivity assumption.
func (e *Engine) Online() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.online
}

// LastSyncAt returns the timestamp of the last fully successful sync
// pass, in milliseconds, or zero.
func (e *Engine) LastSyncAt() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSyncAt
}

// GetPendingOperations returns a snapshot of every queued operation in
// enqueue order, including conflicted and terminally failed ones.
func (e *Engine) GetPendingOperations() []*Operation {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]*Operation, 0, len(e.ops))
	for _, op := range e.ops {
		copied := *op
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// GetConflicts returns the currently parked conflicts.
func (e *Engine) GetConflicts() []*conflict.Conflict {
	return e.registry.List()
}

// SetOnline records a connectivity transition. Going offline flips the
// state and cancels unsent work; coming back online resumes syncing if
// the queue is non-empty.
func (e *Engine) SetOnline(online bool) {
	e.mu.Lock()
	if e.closed || e.online == online {
		e.mu.Unlock()
		return
	}
	e.online = online
	prev := e.state

	var events []Event
	events = append(events, Event{Type: EventOnlineStatusChanged, Online: online})

	if !online {
		if e.state != StateOffline {
			e.state = StateOffline
			events = append(events, Event{Type: EventStateChanged, Previous: prev, Current: StateOffline})
		}
	} else if e.state == StateOffline {
		next := StateIdle
		if e.registry.Len() > 0 {
			next = StateConflictPending
		}
		e.state = next
		events = append(events, Event{Type: EventStateChanged, Previous: prev, Current: next})
	}
	hasPending := e.pendingCountLocked() > 0
	e.mu.Unlock()

	for _, ev := range events {
		e.bus.emit(ev)
	}
	e.saveMetadata(context.Background())

	if online && hasPending {
		go e.Sync(context.Background())
	}
}

// Behavior holds the live-tunable knobs. Zero values leave the current
// setting unchanged.
type Behavior struct {
	BatchSize      int
	MaxRetries     int
	RetryBaseDelay time.Duration
	SyncInterval   time.Duration
}

// AdjustBehavior applies the non-zero knobs immediately. The next sync
// pass and retry computation pick them up.
func (e *Engine) AdjustBehavior(b Behavior) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if b.BatchSize > 0 {
		e.batchSize = b.BatchSize
	}
	if b.MaxRetries > 0 {
		e.maxRetries = b.MaxRetries
	}
	if b.RetryBaseDelay > 0 {
		e.retryBaseDelay = b.RetryBaseDelay
	}
	if b.SyncInterval > 0 {
		e.syncInterval = b.SyncInterval
	}
}

// AdaptToQuality tunes batch size and sync cadence to the observed
// connection tier: smaller batches and a slower cadence on a poor
// link, larger batches on an excellent one.
func (e *Engine) AdaptToQuality(t network.Tier) {
	switch t {
	case network.TierPoor:
		e.AdjustBehavior(Behavior{BatchSize: 10, SyncInterval: 2 * DefaultSyncInterval})
	case network.TierGood:
		e.AdjustBehavior(Behavior{BatchSize: DefaultBatchSize, SyncInterval: DefaultSyncInterval})
	case network.TierExcellent:
		e.AdjustBehavior(Behavior{BatchSize: 2 * DefaultBatchSize, SyncInterval: DefaultSyncInterval / 2})
	}
}

// StartAutoSync begins periodic syncing at the configured interval.
func (e *Engine) StartAutoSync(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return syncErrors.New(syncErrors.OpSync, fmt.Errorf("engine is closed"))
	}
	if e.autoSyncStop != nil {
		return syncErrors.New(syncErrors.OpSync, fmt.Errorf("auto sync is already running"))
	}

	stopChan := make(chan struct{})
	e.autoSyncStop = stopChan

	go func() {
		for {
			e.mu.Lock()
			interval := e.syncInterval
			e.mu.Unlock()

			select {
			case <-ctx.Done():
				return
			case <-e.stop:
				return
			case <-stopChan:
				return
			case <-e.clk.After(interval):
				e.Sync(ctx)
			}
		}
	}()

	return nil
}

// StopAutoSync stops the periodic sync loop.
func (e *Engine) StopAutoSync() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.autoSyncStop == nil {
		return syncErrors.New(syncErrors.OpSync, fmt.Errorf("auto sync is not running"))
	}
	close(e.autoSyncStop)
	e.autoSyncStop = nil
	return nil
}

// Close shuts the engine down. Queued operations stay durable for the
// next run.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	if e.autoSyncStop != nil {
		close(e.autoSyncStop)
		e.autoSyncStop = nil
	}
	e.mu.Unlock()

	e.stopped.Do(func() { close(e.stop) })
	if e.unsubObserver != nil {
		e.unsubObserver()
	}

	var errs []error
	if err := e.transport.Close(); err != nil {
		errs = append(errs, syncErrors.NewWithComponent(syncErrors.OpClose, "transport", err))
	}
	if err := e.store.Close(); err != nil {
		errs = append(errs, syncErrors.NewWithComponent(syncErrors.OpClose, "store", err))
	}
	if len(errs) > 0 {
		return syncErrors.New(syncErrors.OpClose, fmt.Errorf("multiple close errors: %v", errs))
	}
	return nil
}

// pendingCountLocked counts operations in StatusPending. Callers hold mu.
func (e *Engine) pendingCountLocked() int {
	n := 0
	for _, op := range e.ops {
		if op.Status == StatusPending {
			n++
		}
	}
	return n
}

// newOperationID mints an operation id.
func newOperationID() string {
	return uuid.NewString()
}
