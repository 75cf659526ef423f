package conflict

import (
	"encoding/json"
	"sort"

	"github.com/driftsync/driftsync/merge"
)

// scoreTruncateLen caps the canonical serializations fed to the edit
// distance so scoring stays cheap on large payloads. The score is a
// heuristic; truncation keeps it O(scoreTruncateLen^2) worst case.
const scoreTruncateLen = 2000

// Score estimates how much structural divergence a conflict contains on
// a 0-100 scale. Delete/delete is trivially 0; delete/update is a fixed
// 50; scalar divergence is a fixed 40; structured values are scored by
// the normalized edit distance between canonical serializations,
// averaged over both sides when an ancestor exists.
func Score(c *Conflict) int {
	switch c.Category {
	case CategoryDeleteDelete:
		return 0
	case CategoryDeleteUpdate:
		return 50
	}

	if isScalar(c.Local) && isScalar(c.Remote) {
		if merge.Equal(c.Local, c.Remote) {
			return 0
		}
		return 40
	}

	local := canonicalJSON(c.Local)
	remote := canonicalJSON(c.Remote)

	var score float64
	if c.Ancestor != nil {
		ancestor := canonicalJSON(c.Ancestor)
		score = (normalizedDistance(ancestor, local) + normalizedDistance(ancestor, remote)) / 2
	} else {
		score = normalizedDistance(local, remote)
	}

	scaled := int(score * 100)
	if scaled < 0 {
		scaled = 0
	}
	if scaled > 100 {
		scaled = 100
	}
	return scaled
}

func isScalar(v interface{}) bool {
	switch v.(type) {
	case nil, bool, string, float64, float32, int, int32, int64, uint, uint64:
		return true
	default:
		return false
	}
}

// canonicalJSON serializes a value with sorted map keys so structurally
// identical values always produce identical strings.
func canonicalJSON(v interface{}) string {
	b, err := json.Marshal(canonicalize(v))
	if err != nil {
		return ""
	}
	if len(b) > scoreTruncateLen {
		b = b[:scoreTruncateLen]
	}
	return string(b)
}

// canonicalize rebuilds maps in sorted-key order. encoding/json already
// sorts map keys, but nested non-map containers may hold maps of other
// key types; normalizing here keeps the serialization stable.
func canonicalize(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(map[string]interface{}, len(val))
		for _, k := range keys {
			out[k] = canonicalize(val[k])
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, el := range val {
			out[i] = canonicalize(el)
		}
		return out
	default:
		return v
	}
}

// normalizedDistance returns the Levenshtein distance between two
// strings divided by the length of the longer one, in [0, 1].
func normalizedDistance(a, b string) float64 {
	if a == b {
		return 0
	}
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest == 0 {
		return 0
	}
	return float64(levenshtein(a, b)) / float64(longest)
}

// levenshtein computes edit distance with a two-row dynamic program.
func levenshtein(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := 0; j <= len(b); j++ {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
