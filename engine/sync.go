package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/driftsync/driftsync/conflict"
	syncErrors "github.com/driftsync/driftsync/errors"
	"github.com/driftsync/driftsync/transport"
)

// QueueOperation validates and enqueues a mutation, persists it, and
// triggers a sync attempt when the engine is idle and online. It
// returns the new operation's id.
func (e *Engine) QueueOperation(ctx context.Context, kind Kind, collection, entityID string, payload interface{}, baseRevision string) (string, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return "", syncErrors.New(syncErrors.OpEnqueue, fmt.Errorf("engine is closed"))
	}
	op := &Operation{
		ID:           newOperationID(),
		Kind:         kind,
		Collection:   collection,
		EntityID:     entityID,
		Payload:      payload,
		BaseRevision: baseRevision,
		OriginDevice: e.deviceID,
		EnqueuedAt:   e.clk.Now().UnixMilli(),
		Status:       StatusPending,
		seq:          e.nextSeq,
	}
	if err := op.Validate(); err != nil {
		e.mu.Unlock()
		return "", syncErrors.NewValidationError(syncErrors.OpEnqueue, err)
	}
	e.nextSeq++
	e.ops[op.ID] = op
	online := e.online
	idle := e.state == StateIdle
	e.mu.Unlock()

	e.persistOp(ctx, op)

	if !online {
		e.bus.emit(Event{Type: EventOfflineChange, Collection: collection, EntityID: entityID})
	} else if idle {
		go e.Sync(context.Background())
	}
	return op.ID, nil
}

// Create enqueues a create operation.
func (e *Engine) Create(ctx context.Context, collection, entityID string, payload interface{}) (string, error) {
	return e.QueueOperation(ctx, KindCreate, collection, entityID, payload, "")
}

// Update enqueues an update computed against the given base revision.
func (e *Engine) Update(ctx context.Context, collection, entityID string, payload interface{}, baseRevision string) (string, error) {
	return e.QueueOperation(ctx, KindUpdate, collection, entityID, payload, baseRevision)
}

// Delete enqueues a delete computed against the given base revision.
func (e *Engine) Delete(ctx context.Context, collection, entityID, baseRevision string) (string, error) {
	return e.QueueOperation(ctx, KindDelete, collection, entityID, nil, baseRevision)
}

// Sync runs one synchronization pass: pending operations are snapshot
// in enqueue order, partitioned into batches, and sent sequentially.
// Concurrent calls while a pass is active are no-ops, as are calls
// while offline.
func (e *Engine) Sync(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return syncErrors.New(syncErrors.OpSync, fmt.Errorf("engine is closed"))
	}
	if e.syncing || !e.online {
		e.mu.Unlock()
		return nil
	}

	pending := e.pendingSnapshotLocked()
	if len(pending) == 0 {
		e.mu.Unlock()
		e.bus.emit(Event{Type: EventSyncCompleted, ItemCount: 0})
		return nil
	}

	e.syncing = true
	e.degraded = false
	prev := e.state
	e.state = StateSyncing
	batchSize := e.batchSize
	e.mu.Unlock()

	e.bus.emit(Event{Type: EventStateChanged, Previous: prev, Current: StateSyncing})
	e.bus.emit(Event{Type: EventSyncStarted})

	synced, passErr := e.runPass(ctx, pending, batchSize)

	e.mu.Lock()
	removed := e.sweepCompletedLocked()
	hasPending := e.pendingCountLocked() > 0
	var next State
	switch {
	case !e.online:
		next = StateOffline
	case passErr != nil:
		next = StateError
	case e.registry.Len() > 0:
		next = StateConflictPending
	default:
		next = StateIdle
	}
	// SetOnline may already have moved the state mid-pass; only a real
	// transition gets an event.
	prior := e.state
	e.state = next
	e.syncing = false
	if passErr == nil {
		e.lastSyncAt = e.clk.Now().UnixMilli()
	}
	e.mu.Unlock()

	for _, id := range removed {
		e.removeOpRecord(ctx, id)
	}
	e.saveMetadata(ctx)

	if prior != next {
		e.bus.emit(Event{Type: EventStateChanged, Previous: prior, Current: next})
	}
	if passErr == nil {
		e.bus.emit(Event{Type: EventSyncCompleted, ItemCount: synced})
	}

	// Auto-resolution may have re-queued merged updates during the
	// pass; drain them now rather than waiting for the next trigger.
	if passErr == nil && hasPending && next == StateIdle {
		go e.Sync(context.Background())
	}
	return passErr
}

// runPass sends the snapshot batch by batch and applies each result.
func (e *Engine) runPass(ctx context.Context, pending []*Operation, batchSize int) (int, error) {
	synced := 0

	for start := 0; start < len(pending); start += batchSize {
		if !e.Online() {
			// Connectivity dropped mid-pass: unsent work stays
			// pending, already-sent batches have completed normally.
			e.logger.Info("Sync pass abandoned, connectivity lost",
				slog.Int("unsent", len(pending)-start))
			return synced, nil
		}

		end := start + batchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[start:end]

		e.mu.Lock()
		for _, op := range batch {
			op.Status = StatusProcessing
		}
		e.mu.Unlock()
		for _, op := range batch {
			e.persistOp(ctx, op)
		}

		req := &transport.BatchRequest{DeviceID: e.deviceID}
		for _, op := range batch {
			req.Operations = append(req.Operations, op.wire())
		}

		resp, err := e.transport.SendBatch(ctx, req)
		if err == nil {
			// A response that does not pair up with the batch cannot be
			// applied safely.
			if verr := resp.Validate(req); verr != nil {
				err = syncErrors.NewWithComponent(syncErrors.OpSendBatch, "engine",
					fmt.Errorf("response does not answer batch: %w", verr))
			}
		}
		if err != nil {
			for _, op := range batch {
				e.handleOpError(ctx, op, err)
			}
			return synced, err
		}

		for i, res := range resp.Results {
			op := batch[i]
			switch {
			case res.Success:
				e.completeOp(ctx, op, res.Revision)
				synced++
			case res.Conflict != nil:
				e.handleConflict(ctx, op, res.Conflict)
			default:
				e.handleOpError(ctx, op,
					syncErrors.NewNetworkError(syncErrors.OpSendBatch, fmt.Errorf("%s", res.Error)))
			}
		}
	}
	return synced, nil
}

// completeOp marks success. The record itself is swept at the end of
// the pass so observers querying mid-pass still see it.
func (e *Engine) completeOp(ctx context.Context, op *Operation, revision string) {
	e.mu.Lock()
	op.Status = StatusCompleted
	op.LastError = ""
	e.mu.Unlock()

	e.logger.Debug("Operation synced",
		slog.String("operation_id", op.ID),
		slog.String("collection", op.Collection),
		slog.String("entity_id", op.EntityID),
		slog.String("revision", revision))
	e.bus.emit(Event{Type: EventItemSynced, Collection: op.Collection, EntityID: op.EntityID})
}

// handleOpError applies the retry policy: under the cap the operation
// reverts to pending and a retry fires after exponential backoff; over
// the cap it fails terminally with exactly one failure event.
func (e *Engine) handleOpError(ctx context.Context, op *Operation, cause error) {
	e.mu.Lock()
	op.RetryCount++
	op.LastError = cause.Error()
	maxRetries := e.maxRetries
	baseDelay := e.retryBaseDelay

	if op.RetryCount <= maxRetries {
		op.Status = StatusPending
		delay := backoffDelay(baseDelay, op.RetryCount)
		e.mu.Unlock()

		e.persistOp(ctx, op)
		e.logger.Warn("Operation failed, retry scheduled",
			slog.String("operation_id", op.ID),
			slog.Int("retry_count", op.RetryCount),
			slog.Duration("delay", delay),
			slog.String("error", cause.Error()))
		e.scheduleRetry(delay)
		return
	}

	op.Status = StatusFailed
	e.mu.Unlock()

	e.persistOp(ctx, op)
	e.logger.Error("Operation failed terminally",
		slog.String("operation_id", op.ID),
		slog.String("collection", op.Collection),
		slog.String("entity_id", op.EntityID),
		slog.Int("retry_count", op.RetryCount))
	e.bus.emit(Event{
		Type:       EventSyncFailed,
		Err:        cause,
		Collection: op.Collection,
		EntityID:   op.EntityID,
	})
}

// handleConflict classifies the divergence and runs the resolution
// policy. Automatic resolution replaces the operation with a merged
// update; manual resolution parks both until ResolveManually.
func (e *Engine) handleConflict(ctx context.Context, op *Operation, wc *transport.WireConflict) {
	e.mu.Lock()
	op.Status = StatusConflicted
	e.mu.Unlock()
	e.persistOp(ctx, op)

	c := conflict.New(op.Collection, op.EntityID, wc.Ancestor, op.Payload, wc.Remote)
	c.LocalTS = op.EnqueuedAt
	c.RemoteTS = wc.RemoteTS

	out := e.policy.Resolve(c)
	if out.Manual {
		e.registry.Park(c)
		e.logger.Info("Conflict parked for manual resolution",
			slog.String("conflict_id", c.ID),
			slog.String("collection", c.Collection),
			slog.String("entity_id", c.EntityID),
			slog.Int("complexity", c.Complexity))
		e.bus.emit(Event{
			Type:       EventConflictDetected,
			Collection: c.Collection,
			EntityID:   c.EntityID,
			Conflict:   c,
		})
		return
	}

	// Auto-resolved: the conflicted operation is replaced by a fresh
	// operation carrying the resolution.
	e.dropOp(ctx, op.ID)
	e.requeueResolution(ctx, c, out)
	e.logger.Info("Conflict auto-resolved",
		slog.String("conflict_id", c.ID),
		slog.String("collection", c.Collection),
		slog.String("entity_id", c.EntityID),
		slog.String("strategy", string(out.Strategy)))
}

// requeueResolution enqueues the follow-up operation implied by a
// resolution outcome. A resolution to absence needs a push only when
// the remote side still holds a live value.
func (e *Engine) requeueResolution(ctx context.Context, c *conflict.Conflict, out conflict.Outcome) {
	if out.Deleted {
		if c.Remote != nil {
			e.enqueueInternal(ctx, KindDelete, c.Collection, c.EntityID, nil)
		}
		return
	}
	e.enqueueInternal(ctx, KindUpdate, c.Collection, c.EntityID, out.Value)
}

// enqueueInternal appends an engine-originated operation. It carries
// no base revision: the engine has already reconciled against the
// canonical version.
func (e *Engine) enqueueInternal(ctx context.Context, kind Kind, collection, entityID string, payload interface{}) {
	e.mu.Lock()
	op := &Operation{
		ID:           newOperationID(),
		Kind:         kind,
		Collection:   collection,
		EntityID:     entityID,
		Payload:      payload,
		OriginDevice: e.deviceID,
		EnqueuedAt:   e.clk.Now().UnixMilli(),
		Status:       StatusPending,
		seq:          e.nextSeq,
	}
	e.nextSeq++
	e.ops[op.ID] = op
	e.mu.Unlock()
	e.persistOp(ctx, op)
}

// Resolution selects which version wins a manual resolution.
type Resolution string

const (
	ResolutionLocal  Resolution = "local"
	ResolutionRemote Resolution = "remote"
	ResolutionCustom Resolution = "custom"
)

// ResolveManually applies an external decision to a parked conflict:
// the chosen value replaces the conflicted operation as a fresh
// update, the conflict leaves the registry, and syncing resumes if
// online. Resolving an entity with no parked conflict is programmer
// misuse and fails synchronously.
func (e *Engine) ResolveManually(ctx context.Context, collection, entityID string, resolution Resolution, customValue interface{}) error {
	c, ok := e.registry.ByEntity(collection, entityID)
	if !ok {
		return syncErrors.New(syncErrors.OpResolveManual,
			fmt.Errorf("no parked conflict for %s/%s", collection, entityID))
	}

	var value interface{}
	switch resolution {
	case ResolutionLocal:
		value = c.Local
	case ResolutionRemote:
		value = c.Remote
	case ResolutionCustom:
		value = customValue
	default:
		return syncErrors.New(syncErrors.OpResolveManual,
			fmt.Errorf("unknown resolution %q", resolution))
	}

	if err := e.registry.Remove(c.ID); err != nil {
		return syncErrors.New(syncErrors.OpResolveManual, err)
	}
	c.Resolved = true
	c.Resolution = value
	c.Strategy = conflict.StrategyManual

	// Drop the parked operation for this entity.
	e.mu.Lock()
	var parkedID string
	for id, op := range e.ops {
		if op.Collection == collection && op.EntityID == entityID && op.Status == StatusConflicted {
			parkedID = id
			break
		}
	}
	e.mu.Unlock()
	if parkedID != "" {
		e.dropOp(ctx, parkedID)
	}

	if value != nil {
		e.enqueueInternal(ctx, KindUpdate, collection, entityID, value)
	} else if c.Remote != nil {
		e.enqueueInternal(ctx, KindDelete, collection, entityID, nil)
	}

	e.mu.Lock()
	var events []Event
	if e.registry.Len() == 0 && e.state == StateConflictPending {
		prev := e.state
		e.state = StateIdle
		events = append(events, Event{Type: EventStateChanged, Previous: prev, Current: StateIdle})
	}
	online := e.online
	e.mu.Unlock()

	for _, ev := range events {
		e.bus.emit(ev)
	}
	e.logger.Info("Conflict resolved manually",
		slog.String("conflict_id", c.ID),
		slog.String("collection", collection),
		slog.String("entity_id", entityID),
		slog.String("resolution", string(resolution)))

	if online {
		go e.Sync(context.Background())
	}
	return nil
}

// scheduleRetry triggers a sync attempt after the backoff delay.
func (e *Engine) scheduleRetry(delay time.Duration) {
	go func() {
		select {
		case <-e.stop:
			return
		case <-e.clk.After(delay):
			e.Sync(context.Background())
		}
	}()
}

// backoffDelay computes base * 2^(retryCount-1), capped.
func backoffDelay(base time.Duration, retryCount int) time.Duration {
	if retryCount < 1 {
		retryCount = 1
	}
	delay := base
	for i := 1; i < retryCount; i++ {
		delay *= 2
		if delay >= maxBackoffDelay {
			return maxBackoffDelay
		}
	}
	return delay
}

// pendingSnapshotLocked returns pending operations in enqueue order.
// Callers hold mu.
func (e *Engine) pendingSnapshotLocked() []*Operation {
	out := make([]*Operation, 0, len(e.ops))
	for _, op := range e.ops {
		if op.Status == StatusPending {
			out = append(out, op)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// sweepCompletedLocked removes completed operations from the index and
// returns their ids for durable removal. Callers hold mu.
func (e *Engine) sweepCompletedLocked() []string {
	var removed []string
	for id, op := range e.ops {
		if op.Status == StatusCompleted {
			delete(e.ops, id)
			removed = append(removed, id)
		}
	}
	return removed
}

// dropOp removes an operation from the index and the durable store.
func (e *Engine) dropOp(ctx context.Context, id string) {
	e.mu.Lock()
	delete(e.ops, id)
	e.mu.Unlock()
	e.removeOpRecord(ctx, id)
}

// persistOp writes the operation record, degrading to in-memory
// operation for the rest of the cycle on a store failure.
func (e *Engine) persistOp(ctx context.Context, op *Operation) {
	e.mu.Lock()
	if e.degraded {
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	data, err := marshalOperation(op)
	if err == nil {
		err = e.store.Put(ctx, opsCollection, op.ID, data)
	}
	if err != nil {
		e.persistenceFailure(syncErrors.NewPersistenceError(syncErrors.OpPersist, err))
	}
}

func (e *Engine) removeOpRecord(ctx context.Context, id string) {
	e.mu.Lock()
	if e.degraded {
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	if err := e.store.Delete(ctx, opsCollection, id); err != nil {
		e.persistenceFailure(syncErrors.NewPersistenceError(syncErrors.OpPersist, err))
	}
}

// saveMetadata persists connectivity and last-sync state.
func (e *Engine) saveMetadata(ctx context.Context) {
	e.mu.Lock()
	if e.degraded {
		e.mu.Unlock()
		return
	}
	meta := metadata{Online: e.online, LastSyncAt: e.lastSyncAt}
	e.mu.Unlock()

	data, err := json.Marshal(meta)
	if err == nil {
		err = e.store.Put(ctx, metaCollection, metaKey, data)
	}
	if err != nil {
		e.persistenceFailure(syncErrors.NewPersistenceError(syncErrors.OpPersist, err))
	}
}

// persistenceFailure surfaces a store failure as an error event and
// switches the engine to in-memory operation for the current cycle.
func (e *Engine) persistenceFailure(err *syncErrors.SyncError) {
	e.mu.Lock()
	first := !e.degraded
	e.degraded = true
	e.mu.Unlock()

	e.logger.LogError(context.Background(), err, "Durable store failure, degrading to in-memory operation")
	if first {
		e.bus.emit(Event{Type: EventSyncFailed, Err: err})
	}
}
