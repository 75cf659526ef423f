package merge

import "fmt"

// mergeArray reconciles two divergent versions of an array against
// their common ancestor. When every element exposes a stable identity
// field the arrays are treated as sets keyed by that identity and
// merged three-way with tombstone semantics. Otherwise a positional
// heuristic is applied.
func (e *Engine) mergeArray(ancestor, local, remote []interface{}, path string, depth int) Result {
	if depth > e.maxDepth {
		return Result{Err: ErrMaxDepth}
	}

	key, ok := e.identityKey(ancestor, local, remote)
	if !ok {
		return e.mergeArrayPositional(ancestor, local, remote)
	}
	return e.mergeArrayByID(ancestor, local, remote, key, path, depth)
}

// identityKey returns the first configured identity field present with
// a scalar value in every element of every non-empty input array.
func (e *Engine) identityKey(arrays ...[]interface{}) (string, bool) {
	total := 0
	for _, arr := range arrays {
		total += len(arr)
	}
	if total == 0 {
		return "", false
	}

nextKey:
	for _, key := range e.identityKeys {
		for _, arr := range arrays {
			for _, el := range arr {
				m, isMap := asMap(el)
				if !isMap {
					continue nextKey
				}
				id, has := m[key]
				if !has || !scalarID(id) {
					continue nextKey
				}
			}
		}
		return key, true
	}
	return "", false
}

func scalarID(v interface{}) bool {
	switch v.(type) {
	case string, float64, int, int64, uint64, bool:
		return true
	default:
		return false
	}
}

func idString(v interface{}) string {
	if f, ok := v.(float64); ok && f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%v", v)
}

// mergeArrayByID performs the ID-keyed three-way merge: the union of
// identities across the three arrays is classified element-wise with
// tombstone semantics. Deleted on one side and untouched on the other
// stays deleted; deleted on one side but edited on the other keeps the
// edit and records the conflict; deleted on both stays deleted.
func (e *Engine) mergeArrayByID(ancestor, local, remote []interface{}, key, path string, depth int) Result {
	aByID, aOrder := indexByID(ancestor, key)
	lByID, lOrder := indexByID(local, key)
	rByID, rOrder := indexByID(remote, key)

	merged := make([]interface{}, 0, len(lOrder)+len(rOrder))
	var conflicts []FieldConflict

	for _, id := range unionIDs(aOrder, lOrder, rOrder) {
		av, aHas := aByID[id]
		lv, lHas := lByID[id]
		rv, rHas := rByID[id]
		p := elemPath(path, id)

		if !aHas {
			switch {
			case lHas && rHas:
				if Equal(lv, rv) {
					merged = append(merged, e.Clone(lv))
					continue
				}
				sub := e.mergeValue(nil, lv, rv, p, depth+1)
				if sub.Err != "" {
					return Result{Err: sub.Err}
				}
				if sub.Merged != nil {
					merged = append(merged, sub.Merged)
				}
				conflicts = append(conflicts, sub.Conflicts...)
			case lHas:
				merged = append(merged, e.Clone(lv))
			case rHas:
				merged = append(merged, e.Clone(rv))
			}
			continue
		}

		lChanged := lHas && !Equal(lv, av)
		rChanged := rHas && !Equal(rv, av)

		switch {
		case !lHas && !rHas:
			// Deleted on both sides: stays deleted.

		case !lHas || !rHas:
			surviving, survivingChanged := lv, lChanged
			if !lHas {
				surviving, survivingChanged = rv, rChanged
			}
			if !survivingChanged {
				// Deleted on one side, untouched on the other: the
				// tombstone wins.
				continue
			}
			// Delete vs. edit: keep the edited version, record the conflict.
			merged = append(merged, e.Clone(surviving))
			conflicts = append(conflicts, FieldConflict{
				Path:     p,
				Ancestor: e.Clone(av),
				Local:    cloneIfPresent(e, lv, lHas),
				Remote:   cloneIfPresent(e, rv, rHas),
			})

		case !lChanged && !rChanged:
			merged = append(merged, e.Clone(av))

		case lChanged && !rChanged:
			merged = append(merged, e.Clone(lv))

		case rChanged && !lChanged:
			merged = append(merged, e.Clone(rv))

		default:
			if Equal(lv, rv) {
				merged = append(merged, e.Clone(lv))
				continue
			}
			sub := e.mergeValue(av, lv, rv, p, depth+1)
			if sub.Err != "" {
				return Result{Err: sub.Err}
			}
			if sub.Merged != nil {
				merged = append(merged, sub.Merged)
			}
			conflicts = append(conflicts, sub.Conflicts...)
		}
	}

	return Result{OK: len(conflicts) == 0, Merged: merged, Conflicts: conflicts}
}

// mergeArrayPositional is the fallback for arrays without a stable
// identity field: keep ancestor elements, append elements added by
// either side that are not already present by structural equality, and
// drop elements removed by both sides.
//
// This heuristic preserves neither element order nor duplicate counts
// across concurrent edits; it is a best-effort reconciliation, not a
// correctness contract.
func (e *Engine) mergeArrayPositional(ancestor, local, remote []interface{}) Result {
	merged := make([]interface{}, 0, len(ancestor))

	for _, av := range ancestor {
		inLocal := containsEqual(local, av)
		inRemote := containsEqual(remote, av)
		if !inLocal && !inRemote {
			// Removed by both sides.
			continue
		}
		merged = append(merged, e.Clone(av))
	}

	for _, side := range [][]interface{}{local, remote} {
		for _, v := range side {
			if containsEqual(ancestor, v) || containsEqual(merged, v) {
				continue
			}
			merged = append(merged, e.Clone(v))
		}
	}

	return Result{OK: true, Merged: merged}
}

func containsEqual(arr []interface{}, v interface{}) bool {
	for _, el := range arr {
		if Equal(el, v) {
			return true
		}
	}
	return false
}

// indexByID builds an id -> element map plus the encounter order of ids.
func indexByID(arr []interface{}, key string) (map[string]interface{}, []string) {
	byID := make(map[string]interface{}, len(arr))
	order := make([]string, 0, len(arr))
	for _, el := range arr {
		m, _ := asMap(el)
		id := idString(m[key])
		if _, dup := byID[id]; !dup {
			order = append(order, id)
		}
		byID[id] = el
	}
	return byID, order
}

// unionIDs returns ancestor ids first, then local then remote
// additions, preserving encounter order within each array.
func unionIDs(ancestor, local, remote []string) []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, group := range [][]string{ancestor, local, remote} {
		for _, id := range group {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids
}
