// Package transport defines the wire contract between the sync engine
// and a remote authority. A batch of queued operations goes up; an
// ordered result per operation comes back.
package transport

import (
	"context"
	"fmt"
)

// Kind names for WireOperation.Kind. They mirror the engine's operation
// kinds and are part of the wire format.
const (
	KindCreate = "create"
	KindUpdate = "update"
	KindDelete = "delete"
)

// WireOperation is one queued change as it travels to the server.
type WireOperation struct {
	ID           string      `json:"id"`
	Kind         string      `json:"kind"`
	Collection   string      `json:"collection"`
	EntityID     string      `json:"entityId"`
	Payload      interface{} `json:"payload,omitempty"`
	Timestamp    int64       `json:"timestamp"`
	OriginDevice string      `json:"originDevice"`
	BaseRevision string      `json:"baseRevision,omitempty"`
}

// WireConflict carries the three versions the server saw for a
// conflicted operation. Any of the three may be null, meaning the
// value does not exist on that side.
type WireConflict struct {
	Ancestor interface{} `json:"ancestor,omitempty"`
	Local    interface{} `json:"local,omitempty"`
	Remote   interface{} `json:"remote,omitempty"`
	RemoteTS int64       `json:"remoteTimestamp,omitempty"`
}

// WireResult is the server's verdict on a single operation. Exactly one
// of the three shapes applies: success (Revision set), conflict
// (Conflict set), or error (Error set).
type WireResult struct {
	OperationID string        `json:"operationId"`
	Success     bool          `json:"success"`
	Revision    string        `json:"revision,omitempty"`
	Conflict    *WireConflict `json:"conflict,omitempty"`
	Error       string        `json:"error,omitempty"`
}

// BatchRequest is an ordered batch of operations from one device.
type BatchRequest struct {
	DeviceID   string          `json:"deviceId"`
	Operations []WireOperation `json:"operations"`
}

// BatchResponse carries one result per request operation, in request
// order. Validate pairs responses back to requests.
type BatchResponse struct {
	Results []WireResult `json:"results"`
}

// Validate checks that the response is answerable against the request:
// same length, same operation ids, same order.
func (r *BatchResponse) Validate(req *BatchRequest) error {
	if len(r.Results) != len(req.Operations) {
		return fmt.Errorf("result count %d does not match operation count %d",
			len(r.Results), len(req.Operations))
	}
	for i, res := range r.Results {
		if res.OperationID != req.Operations[i].ID {
			return fmt.Errorf("result %d answers operation %q, expected %q",
				i, res.OperationID, req.Operations[i].ID)
		}
	}
	return nil
}

// Transport delivers operation batches to the remote authority.
type Transport interface {
	// SendBatch submits the batch and returns one result per operation
	// in request order. A non-nil error means the batch as a whole did
	// not reach the server; individual failures are reported per-result.
	SendBatch(ctx context.Context, req *BatchRequest) (*BatchResponse, error)

	// Probe checks remote reachability. A nil error means the server
	// answered.
	Probe(ctx context.Context) error

	// Close releases transport resources.
	Close() error
}
