// Package merge implements the pure merge algorithms used by the sync
// core: last-write-wins selection, recursive three-way merge over
// objects and ID-keyed arrays, span-based text merge, a depth-guarded
// deep clone, and order-independent structural equality.
//
// All entry points are pure functions of their inputs: identical inputs
// always yield identical outputs, and no output aliases mutable state
// from any input.
package merge

import "fmt"

// ErrMaxDepth is the failure message produced when the recursive merge
// exceeds the configured depth bound.
const ErrMaxDepth = "max recursion depth exceeded"

// TieBreak decides the winner of a last-write-wins merge when both
// timestamps are equal.
type TieBreak int

const (
	// TiePreferLocal keeps the local value on equal timestamps. This is
	// the default.
	TiePreferLocal TieBreak = iota

	// TiePreferRemote keeps the remote value on equal timestamps.
	TiePreferRemote
)

// FieldConflict is a residual sub-conflict from a partial structural
// merge. Path is a dotted key path; array elements are addressed by
// their identity value in brackets.
type FieldConflict struct {
	Path     string      `json:"path"`
	Ancestor interface{} `json:"ancestor,omitempty"`
	Local    interface{} `json:"local"`
	Remote   interface{} `json:"remote"`
}

// Result is the outcome of a merge. OK is true only when the merge is
// complete: no residual sub-conflicts and no error. Structural merges
// still populate Merged on a partial result, with default choices
// applied (e.g. delete-vs-edit tombstones keep the edit), so callers
// that accept partial merges can use it; Err set means no merge was
// produced at all.
type Result struct {
	OK        bool
	Merged    interface{}
	Conflicts []FieldConflict
	Err       string
}

// Engine holds merge configuration. The zero value is not usable;
// construct with New.
type Engine struct {
	maxDepth     int
	identityKeys []string
	tieBreak     TieBreak
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxDepth bounds the recursion depth of structural merges and
// clones. Exceeding the bound aborts the merge with ErrMaxDepth.
func WithMaxDepth(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxDepth = n
		}
	}
}

// WithIdentityKeys sets the field names probed, in order, for a stable
// element identity during array merges. Default is "id".
func WithIdentityKeys(keys ...string) Option {
	return func(e *Engine) {
		if len(keys) > 0 {
			e.identityKeys = keys
		}
	}
}

// WithTieBreak sets the last-write-wins tie-break preference.
func WithTieBreak(tb TieBreak) Option {
	return func(e *Engine) { e.tieBreak = tb }
}

// New constructs a merge Engine. Defaults: depth bound 20, identity key
// "id", ties prefer local.
func New(opts ...Option) *Engine {
	e := &Engine{
		maxDepth:     20,
		identityKeys: []string{"id"},
		tieBreak:     TiePreferLocal,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// LastWriteWins selects between local and remote by timestamp. Local
// wins on localTS >= remoteTS when ties prefer local; remote wins ties
// otherwise. Pure selection with no structural inspection; the returned
// value is a clone and shares no state with the inputs.
func (e *Engine) LastWriteWins(ancestor, local, remote interface{}, localTS, remoteTS int64) interface{} {
	switch {
	case localTS > remoteTS:
		return e.Clone(local)
	case localTS < remoteTS:
		return e.Clone(remote)
	case e.tieBreak == TiePreferLocal:
		return e.Clone(local)
	default:
		return e.Clone(remote)
	}
}

// ThreeWayMerge merges local and remote against their common ancestor,
// dispatching by runtime shape: ID-keyed arrays get set-style
// reconciliation, structured records get a per-key merge, and scalars
// conflict when the two sides disagree.
func (e *Engine) ThreeWayMerge(ancestor, local, remote interface{}) Result {
	return e.mergeValue(ancestor, local, remote, "", 0)
}

// mergeValue is the recursive dispatch shared by object and array
// merges. path carries the dotted location for sub-conflict reporting.
func (e *Engine) mergeValue(ancestor, local, remote interface{}, path string, depth int) Result {
	if depth > e.maxDepth {
		return Result{Err: ErrMaxDepth}
	}

	localMap, localIsMap := asMap(local)
	remoteMap, remoteIsMap := asMap(remote)
	if localIsMap && remoteIsMap {
		ancestorMap, _ := asMap(ancestor)
		return e.mergeObject(ancestorMap, localMap, remoteMap, path, depth)
	}

	localArr, localIsArr := asSlice(local)
	remoteArr, remoteIsArr := asSlice(remote)
	if localIsArr && remoteIsArr {
		ancestorArr, _ := asSlice(ancestor)
		return e.mergeArray(ancestorArr, localArr, remoteArr, path, depth)
	}

	localStr, localIsStr := local.(string)
	remoteStr, remoteIsStr := remote.(string)
	if localIsStr && remoteIsStr {
		ancestorStr, _ := ancestor.(string)
		res := e.MergeText(ancestorStr, localStr, remoteStr)
		if !res.OK && res.Err == "" {
			// Overlapping edits: surface as a field conflict at this path.
			return Result{
				OK:     false,
				Merged: nil,
				Conflicts: []FieldConflict{{
					Path:     path,
					Ancestor: ancestor,
					Local:    localStr,
					Remote:   remoteStr,
				}},
			}
		}
		return res
	}

	// Scalar comparison.
	if Equal(local, remote) {
		return Result{OK: true, Merged: e.Clone(local)}
	}
	return Result{
		OK: false,
		Conflicts: []FieldConflict{{
			Path:     path,
			Ancestor: e.Clone(ancestor),
			Local:    e.Clone(local),
			Remote:   e.Clone(remote),
		}},
	}
}

// mergeable reports whether both sides share a shape the engine can
// recurse into instead of immediately recording a conflict.
func mergeable(local, remote interface{}) bool {
	if _, ok := asMap(local); ok {
		_, ok2 := asMap(remote)
		return ok2
	}
	if _, ok := asSlice(local); ok {
		_, ok2 := asSlice(remote)
		return ok2
	}
	if _, ok := local.(string); ok {
		_, ok2 := remote.(string)
		return ok2
	}
	return false
}

func joinPath(base, key string) string {
	if base == "" {
		return key
	}
	return base + "." + key
}

func elemPath(base, id string) string {
	if base == "" {
		return fmt.Sprintf("[%s]", id)
	}
	return fmt.Sprintf("%s[%s]", base, id)
}
