// Package conflict implements the conflict taxonomy of the sync core:
// classification of divergent edits, a 0-100 complexity score, the
// resolution policy that picks and runs a merge strategy, and the
// registry of conflicts parked for manual resolution.
package conflict

import (
	"github.com/google/uuid"
)

// Category identifies the shape of a detected divergence.
type Category string

const (
	// CategoryCreateCreate: no common ancestor, both sides created the entity.
	CategoryCreateCreate Category = "create_create"

	// CategoryUpdateUpdate: both sides edited an existing entity.
	CategoryUpdateUpdate Category = "update_update"

	// CategoryDeleteUpdate: one side deleted while the other edited.
	CategoryDeleteUpdate Category = "delete_update"

	// CategoryDeleteDelete: both sides deleted the entity.
	CategoryDeleteDelete Category = "delete_delete"
)

// Strategy names a conflict resolution approach.
type Strategy string

const (
	StrategyLastWriteWins  Strategy = "last_write_wins"
	StrategyThreeWayMerge  Strategy = "three_way_merge"
	StrategySmartMerge     Strategy = "smart_merge"
	StrategyRecursiveMerge Strategy = "recursive_merge"
	StrategyManual         Strategy = "manual"
)

// knownStrategies gates config parsing.
var knownStrategies = map[Strategy]bool{
	StrategyLastWriteWins:  true,
	StrategyThreeWayMerge:  true,
	StrategySmartMerge:     true,
	StrategyRecursiveMerge: true,
	StrategyManual:         true,
}

// Conflict is a materialized divergence for one (collection, entity)
// pair. Ancestor, Local and Remote are snapshots of the entity value; a
// nil snapshot means "does not exist" on that side.
type Conflict struct {
	ID         string      `json:"id"`
	Collection string      `json:"collection"`
	EntityID   string      `json:"entity_id"`
	Category   Category    `json:"category"`
	Ancestor   interface{} `json:"ancestor,omitempty"`
	Local      interface{} `json:"local,omitempty"`
	Remote     interface{} `json:"remote,omitempty"`

	// LocalTS and RemoteTS are the logical timestamps of the two edits,
	// used by the last-write-wins strategy.
	LocalTS  int64 `json:"local_ts,omitempty"`
	RemoteTS int64 `json:"remote_ts,omitempty"`

	// Complexity is the 0-100 divergence estimate set by Score.
	Complexity int `json:"complexity"`

	// Strategy records the strategy that resolved (or parked) the conflict.
	Strategy Strategy `json:"strategy,omitempty"`

	Resolved   bool        `json:"resolved"`
	Resolution interface{} `json:"resolution,omitempty"`

	// ResolutionAttempts counts failed automatic resolutions; it bounds
	// the downgrade-to-manual path.
	ResolutionAttempts int `json:"resolution_attempts"`
}

// New builds a classified, scored Conflict for an entity.
func New(collection, entityID string, ancestor, local, remote interface{}) *Conflict {
	c := &Conflict{
		ID:         uuid.NewString(),
		Collection: collection,
		EntityID:   entityID,
		Category:   Classify(ancestor, local, remote),
		Ancestor:   ancestor,
		Local:      local,
		Remote:     remote,
	}
	c.Complexity = Score(c)
	return c
}

// Classify determines the conflict category from the presence and
// absence of the three snapshots. Ancestor absent means both sides
// created the entity independently; otherwise absence of a side means
// that side deleted it.
func Classify(ancestor, local, remote interface{}) Category {
	switch {
	case ancestor == nil:
		return CategoryCreateCreate
	case local == nil && remote == nil:
		return CategoryDeleteDelete
	case local == nil || remote == nil:
		return CategoryDeleteUpdate
	default:
		return CategoryUpdateUpdate
	}
}
