package merge

import "sort"

// mergeObject reconciles two divergent versions of a structured record
// against their common ancestor, key by key over the union of keys
// present in any of the three inputs.
//
// Per-key classification:
//   - added by both sides identically: take either
//   - added by both sides differently: recurse when both additions are
//     mergeable shapes, otherwise record a sub-conflict
//   - added by one side only: take it
//   - changed by exactly one side (including deletion): take the change
//   - changed identically by both: take either
//   - changed differently by both: recurse or record a sub-conflict;
//     delete-vs-edit keeps the edit and records the conflict
//   - unchanged: take the ancestor value
func (e *Engine) mergeObject(ancestor, local, remote map[string]interface{}, path string, depth int) Result {
	if depth > e.maxDepth {
		return Result{Err: ErrMaxDepth}
	}

	merged := make(map[string]interface{})
	var conflicts []FieldConflict

	for _, key := range unionKeys(ancestor, local, remote) {
		av, aHas := ancestor[key]
		lv, lHas := local[key]
		rv, rHas := remote[key]
		keyPath := joinPath(path, key)

		if !aHas {
			switch {
			case lHas && rHas:
				if Equal(lv, rv) {
					merged[key] = e.Clone(lv)
					continue
				}
				if mergeable(lv, rv) {
					sub := e.mergeValue(nil, lv, rv, keyPath, depth+1)
					if sub.Err != "" {
						return Result{Err: sub.Err}
					}
					// Partial sub-merges keep their merged value too.
					if sub.Merged != nil {
						merged[key] = sub.Merged
					}
					conflicts = append(conflicts, sub.Conflicts...)
					continue
				}
				conflicts = append(conflicts, FieldConflict{
					Path:  keyPath,
					Local: e.Clone(lv), Remote: e.Clone(rv),
				})
			case lHas:
				merged[key] = e.Clone(lv)
			case rHas:
				merged[key] = e.Clone(rv)
			}
			continue
		}

		// Key exists in the ancestor. Absence on a side is a deletion.
		lChanged := !lHas || !Equal(lv, av)
		rChanged := !rHas || !Equal(rv, av)

		switch {
		case !lChanged && !rChanged:
			merged[key] = e.Clone(av)

		case lChanged && !rChanged:
			if lHas {
				merged[key] = e.Clone(lv)
			}
			// Deleted locally: omit from the merged record.

		case rChanged && !lChanged:
			if rHas {
				merged[key] = e.Clone(rv)
			}

		default: // both changed
			if !lHas && !rHas {
				// Deleted on both sides: stays deleted.
				continue
			}
			if lHas && rHas && Equal(lv, rv) {
				merged[key] = e.Clone(lv)
				continue
			}
			if !lHas || !rHas {
				// Delete on one side, edit on the other. Keep the edit
				// and record the divergence for the caller.
				surviving := lv
				if !lHas {
					surviving = rv
				}
				merged[key] = e.Clone(surviving)
				conflicts = append(conflicts, FieldConflict{
					Path:     keyPath,
					Ancestor: e.Clone(av),
					Local:    cloneIfPresent(e, lv, lHas),
					Remote:   cloneIfPresent(e, rv, rHas),
				})
				continue
			}
			if mergeable(lv, rv) {
				sub := e.mergeValue(av, lv, rv, keyPath, depth+1)
				if sub.Err != "" {
					return Result{Err: sub.Err}
				}
				if sub.Merged != nil {
					merged[key] = sub.Merged
				}
				conflicts = append(conflicts, sub.Conflicts...)
				continue
			}
			conflicts = append(conflicts, FieldConflict{
				Path:     keyPath,
				Ancestor: e.Clone(av),
				Local:    e.Clone(lv),
				Remote:   e.Clone(rv),
			})
		}
	}

	return Result{OK: len(conflicts) == 0, Merged: merged, Conflicts: conflicts}
}

func cloneIfPresent(e *Engine, v interface{}, present bool) interface{} {
	if !present {
		return nil
	}
	return e.Clone(v)
}

// unionKeys returns the sorted union of keys across the three maps.
// Sorting keeps merge output and conflict ordering deterministic.
func unionKeys(maps ...map[string]interface{}) []string {
	seen := make(map[string]struct{})
	for _, m := range maps {
		for k := range m {
			seen[k] = struct{}{}
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
