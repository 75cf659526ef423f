package merge

import (
	"regexp"
	"time"
)

// Clone returns a deep copy of a JSON-shaped value. The clone shares no
// mutable buffers with the source: maps, slices and byte slices are
// copied recursively, and container types like time.Time pass through
// by value. Recursion is guarded by the engine's depth bound; beyond it
// remaining structure is dropped, which keeps pathological cycles from
// looping forever.
func (e *Engine) Clone(v interface{}) interface{} {
	return e.clone(v, 0)
}

func (e *Engine) clone(v interface{}, depth int) interface{} {
	if depth > e.maxDepth {
		return nil
	}

	switch val := v.(type) {
	case nil:
		return nil
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, inner := range val {
			out[k] = e.clone(inner, depth+1)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, inner := range val {
			out[i] = e.clone(inner, depth+1)
		}
		return out
	case []string:
		out := make([]string, len(val))
		copy(out, val)
		return out
	case []byte:
		out := make([]byte, len(val))
		copy(out, val)
		return out
	case map[string]string:
		out := make(map[string]string, len(val))
		for k, inner := range val {
			out[k] = inner
		}
		return out
	case time.Time:
		// time.Time is a value type; assignment copies it.
		return val
	case *regexp.Regexp:
		// Compiled patterns are immutable; re-compiling detaches the
		// clone from any caller-held pointer identity.
		return regexp.MustCompile(val.String())
	default:
		// Scalars (bool, string, numbers) are immutable in Go.
		return val
	}
}
