package engine

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/driftsync/driftsync/transport"
)

// Kind is the mutation type of a queued operation.
type Kind string

const (
	KindCreate Kind = "create"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
)

// Status tracks an operation through its lifecycle. Transitions only
// move Pending -> Processing -> {Completed | Failed | Conflicted}, and
// Conflicted -> Pending once the conflict is resolved.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusConflicted Status = "conflicted"
)

// Operation is a durable mutation intent awaiting transmission.
type Operation struct {
	ID           string      `json:"id" validate:"required"`
	Kind         Kind        `json:"kind" validate:"required,oneof=create update delete"`
	Collection   string      `json:"collection" validate:"required"`
	EntityID     string      `json:"entityId" validate:"required"`
	Payload      interface{} `json:"payload,omitempty"`
	BaseRevision string      `json:"baseRevision,omitempty"`
	OriginDevice string      `json:"originDevice" validate:"required"`
	EnqueuedAt   int64       `json:"enqueuedAt"`
	RetryCount   int         `json:"retryCount"`
	Status       Status      `json:"status"`
	LastError    string      `json:"lastError,omitempty"`

	// seq preserves enqueue order between operations that share a
	// timestamp. Not persisted; reassigned on rehydration.
	seq uint64
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate rejects malformed operations before they enter the queue.
func (o *Operation) Validate() error {
	if err := validate.Struct(o); err != nil {
		return err
	}
	switch o.Kind {
	case KindCreate, KindUpdate:
		if o.Payload == nil {
			return fmt.Errorf("payload is required for %s operations", o.Kind)
		}
	case KindDelete:
		if o.Payload != nil {
			return fmt.Errorf("delete operations carry no payload")
		}
	}
	return nil
}

// wire converts the operation to its transport representation.
func (o *Operation) wire() transport.WireOperation {
	return transport.WireOperation{
		ID:           o.ID,
		Kind:         string(o.Kind),
		Collection:   o.Collection,
		EntityID:     o.EntityID,
		Payload:      o.Payload,
		Timestamp:    o.EnqueuedAt,
		OriginDevice: o.OriginDevice,
		BaseRevision: o.BaseRevision,
	}
}

func marshalOperation(o *Operation) ([]byte, error) {
	return json.Marshal(o)
}

func unmarshalOperation(data []byte) (*Operation, error) {
	var o Operation
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, err
	}
	return &o, nil
}
