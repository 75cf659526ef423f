package httptransport

import (
	"context"
	"testing"

	"github.com/driftsync/driftsync/transport"
)

func applyOne(t *testing.T, a *MemoryAuthority, op transport.WireOperation) transport.WireResult {
	t.Helper()
	resp, err := a.ApplyBatch(context.Background(), &transport.BatchRequest{
		DeviceID:   op.OriginDevice,
		Operations: []transport.WireOperation{op},
	})
	if err != nil {
		t.Fatalf("ApplyBatch failed: %v", err)
	}
	return resp.Results[0]
}

func TestAuthority_CreateThenUpdate(t *testing.T) {
	a := NewMemoryAuthority()

	created := applyOne(t, a, transport.WireOperation{
		ID: "op-1", Kind: transport.KindCreate,
		Collection: "notes", EntityID: "n1",
		Payload: map[string]interface{}{"v": 1.0}, Timestamp: 10,
	})
	if !created.Success {
		t.Fatalf("create failed: %+v", created)
	}

	updated := applyOne(t, a, transport.WireOperation{
		ID: "op-2", Kind: transport.KindUpdate,
		Collection: "notes", EntityID: "n1",
		Payload:      map[string]interface{}{"v": 2.0},
		BaseRevision: created.Revision, Timestamp: 20,
	})
	if !updated.Success {
		t.Fatalf("update against current revision failed: %+v", updated)
	}
	if updated.Revision == created.Revision {
		t.Fatal("revision should advance on every commit")
	}
}

func TestAuthority_CreateCreateConflict(t *testing.T) {
	a := NewMemoryAuthority()

	applyOne(t, a, transport.WireOperation{
		ID: "op-1", Kind: transport.KindCreate,
		Collection: "notes", EntityID: "n1",
		Payload: map[string]interface{}{"from": "a"}, Timestamp: 10,
	})
	res := applyOne(t, a, transport.WireOperation{
		ID: "op-2", Kind: transport.KindCreate,
		Collection: "notes", EntityID: "n1",
		Payload: map[string]interface{}{"from": "b"}, Timestamp: 20,
	})

	if res.Success || res.Conflict == nil {
		t.Fatalf("independent create should conflict: %+v", res)
	}
	if res.Conflict.Ancestor != nil {
		t.Errorf("create/create conflict has no common ancestor, got %v", res.Conflict.Ancestor)
	}
	if res.Conflict.Remote == nil || res.Conflict.Local == nil {
		t.Errorf("conflict should carry both versions: %+v", res.Conflict)
	}
}

func TestAuthority_StaleUpdateConflictCarriesAncestor(t *testing.T) {
	a := NewMemoryAuthority()

	created := applyOne(t, a, transport.WireOperation{
		ID: "op-1", Kind: transport.KindCreate,
		Collection: "notes", EntityID: "n1",
		Payload: map[string]interface{}{"v": 1.0}, Timestamp: 10,
	})
	applyOne(t, a, transport.WireOperation{
		ID: "op-2", Kind: transport.KindUpdate,
		Collection: "notes", EntityID: "n1",
		Payload:      map[string]interface{}{"v": 2.0},
		BaseRevision: created.Revision, Timestamp: 20,
	})

	// Second writer still holds the original revision.
	stale := applyOne(t, a, transport.WireOperation{
		ID: "op-3", Kind: transport.KindUpdate,
		Collection: "notes", EntityID: "n1",
		Payload:      map[string]interface{}{"v": 3.0},
		BaseRevision: created.Revision, Timestamp: 30,
	})

	if stale.Success || stale.Conflict == nil {
		t.Fatalf("stale update should conflict: %+v", stale)
	}
	ancestor, ok := stale.Conflict.Ancestor.(map[string]interface{})
	if !ok || ancestor["v"] != 1.0 {
		t.Errorf("ancestor should be the base-revision value, got %v", stale.Conflict.Ancestor)
	}
	remote, ok := stale.Conflict.Remote.(map[string]interface{})
	if !ok || remote["v"] != 2.0 {
		t.Errorf("remote should be the canonical value, got %v", stale.Conflict.Remote)
	}
	if stale.Conflict.RemoteTS != 20 {
		t.Errorf("RemoteTS = %d, want timestamp of the canonical write", stale.Conflict.RemoteTS)
	}
}

func TestAuthority_UpdateAgainstDeleted(t *testing.T) {
	a := NewMemoryAuthority()

	created := applyOne(t, a, transport.WireOperation{
		ID: "op-1", Kind: transport.KindCreate,
		Collection: "notes", EntityID: "n1",
		Payload: map[string]interface{}{"v": 1.0}, Timestamp: 10,
	})
	applyOne(t, a, transport.WireOperation{
		ID: "op-2", Kind: transport.KindDelete,
		Collection: "notes", EntityID: "n1",
		BaseRevision: created.Revision, Timestamp: 20,
	})

	res := applyOne(t, a, transport.WireOperation{
		ID: "op-3", Kind: transport.KindUpdate,
		Collection: "notes", EntityID: "n1",
		Payload:      map[string]interface{}{"v": 2.0},
		BaseRevision: created.Revision, Timestamp: 30,
	})

	if res.Success || res.Conflict == nil {
		t.Fatalf("update of a deleted entity should conflict: %+v", res)
	}
	if res.Conflict.Remote != nil {
		t.Errorf("remote side is a deletion, got %v", res.Conflict.Remote)
	}
}

func TestAuthority_DeleteIdempotent(t *testing.T) {
	a := NewMemoryAuthority()

	// Deleting something that never existed succeeds quietly.
	res := applyOne(t, a, transport.WireOperation{
		ID: "op-1", Kind: transport.KindDelete,
		Collection: "notes", EntityID: "ghost", Timestamp: 10,
	})
	if !res.Success {
		t.Fatalf("delete of absent entity should succeed: %+v", res)
	}
}

func TestAuthority_UnknownKind(t *testing.T) {
	a := NewMemoryAuthority()

	res := applyOne(t, a, transport.WireOperation{
		ID: "op-1", Kind: "merge", Collection: "notes", EntityID: "n1",
	})
	if res.Success || res.Error == "" {
		t.Fatalf("unknown kind should produce a per-result error: %+v", res)
	}
}
