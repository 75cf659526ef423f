package httptransport

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/driftsync/driftsync/transport"
)

// entry is the authority's canonical record for one entity.
type entry struct {
	value     interface{}
	revision  string
	timestamp int64
	deleted   bool

	// snapshots holds prior values keyed by the revision that produced
	// them, so a stale writer's base revision can be surfaced as the
	// conflict ancestor.
	snapshots map[string]interface{}
}

// MemoryAuthority is an in-memory reference implementation of
// Authority. It enforces optimistic concurrency: an operation whose
// base revision no longer matches the canonical revision comes back as
// a conflict carrying ancestor, local and remote versions.
type MemoryAuthority struct {
	mu      sync.Mutex
	entries map[string]*entry
}

var _ Authority = (*MemoryAuthority)(nil)

// NewMemoryAuthority creates an empty authority.
func NewMemoryAuthority() *MemoryAuthority {
	return &MemoryAuthority{entries: make(map[string]*entry)}
}

func entityKey(collection, entityID string) string {
	return collection + "/" + entityID
}

// ApplyBatch applies operations in order and returns one result per
// operation, also in order.
func (a *MemoryAuthority) ApplyBatch(ctx context.Context, req *transport.BatchRequest) (*transport.BatchResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	results := make([]transport.WireResult, len(req.Operations))
	for i, op := range req.Operations {
		results[i] = a.apply(op)
	}
	return &transport.BatchResponse{Results: results}, nil
}

func (a *MemoryAuthority) apply(op transport.WireOperation) transport.WireResult {
	key := entityKey(op.Collection, op.EntityID)
	e := a.entries[key]

	switch op.Kind {
	case transport.KindCreate:
		if e != nil && !e.deleted {
			// Two devices created the same entity independently.
			return conflictResult(op, nil, e)
		}
		return a.commit(key, e, op, op.Payload, false)

	case transport.KindUpdate:
		// An empty base revision means the client has already
		// reconciled against the canonical version, typically by
		// merging a previous conflict. Such writes are accepted as is.
		if op.BaseRevision == "" {
			return a.commit(key, e, op, op.Payload, false)
		}
		if e == nil || e.deleted {
			// The entity was deleted remotely while this edit was queued.
			return transport.WireResult{
				OperationID: op.ID,
				Conflict: &transport.WireConflict{
					Ancestor: ancestorOf(e, op.BaseRevision),
					Local:    op.Payload,
					Remote:   nil,
					RemoteTS: remoteTS(e),
				},
			}
		}
		if op.BaseRevision != e.revision {
			return conflictResult(op, ancestorOf(e, op.BaseRevision), e)
		}
		return a.commit(key, e, op, op.Payload, false)

	case transport.KindDelete:
		if e == nil || e.deleted {
			// Both sides deleted. Nothing left to disagree about.
			return a.commit(key, e, op, nil, true)
		}
		if op.BaseRevision == "" {
			// Reconciled delete, accepted as is.
			return a.commit(key, e, op, nil, true)
		}
		if op.BaseRevision != e.revision {
			return transport.WireResult{
				OperationID: op.ID,
				Conflict: &transport.WireConflict{
					Ancestor: ancestorOf(e, op.BaseRevision),
					Local:    nil,
					Remote:   e.value,
					RemoteTS: e.timestamp,
				},
			}
		}
		return a.commit(key, e, op, nil, true)

	default:
		return transport.WireResult{
			OperationID: op.ID,
			Error:       "unknown operation kind: " + op.Kind,
		}
	}
}

// commit installs the new value under a fresh revision and snapshots
// the displaced one.
func (a *MemoryAuthority) commit(key string, e *entry, op transport.WireOperation, value interface{}, deleted bool) transport.WireResult {
	if e == nil {
		e = &entry{snapshots: make(map[string]interface{})}
		a.entries[key] = e
	}
	if e.revision != "" {
		e.snapshots[e.revision] = e.value
	}
	e.value = value
	e.revision = uuid.NewString()
	e.timestamp = op.Timestamp
	e.deleted = deleted

	return transport.WireResult{
		OperationID: op.ID,
		Success:     true,
		Revision:    e.revision,
	}
}

// Get returns the canonical value and revision for an entity. The
// second return is false when the entity does not exist or is deleted.
func (a *MemoryAuthority) Get(collection, entityID string) (interface{}, string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	e := a.entries[entityKey(collection, entityID)]
	if e == nil || e.deleted {
		return nil, "", false
	}
	return e.value, e.revision, true
}

func conflictResult(op transport.WireOperation, ancestor interface{}, e *entry) transport.WireResult {
	return transport.WireResult{
		OperationID: op.ID,
		Conflict: &transport.WireConflict{
			Ancestor: ancestor,
			Local:    op.Payload,
			Remote:   e.value,
			RemoteTS: e.timestamp,
		},
	}
}

func ancestorOf(e *entry, baseRevision string) interface{} {
	if e == nil || baseRevision == "" {
		return nil
	}
	if baseRevision == e.revision {
		return e.value
	}
	return e.snapshots[baseRevision]
}

func remoteTS(e *entry) int64 {
	if e == nil {
		return 0
	}
	return e.timestamp
}
