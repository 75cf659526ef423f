package merge

import (
	"sort"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// editSpan is a single edit against the ancestor text: the half-open
// byte range [start, end) is removed and insert is placed in its stead.
// A pure insertion has start == end.
type editSpan struct {
	start  int
	end    int
	insert string
}

// MergeText merges two divergent edits of a text against their common
// ancestor. The edit scripts ancestor->local and ancestor->remote are
// computed as ordered spans; when the spans are disjoint both scripts
// are applied to the ancestor. Overlapping spans with non-identical
// content produce a conflict carrying all three full texts; there is no
// character-level auto-merge of overlapping regions.
func (e *Engine) MergeText(ancestor, local, remote string) Result {
	switch {
	case local == remote:
		return Result{OK: true, Merged: local}
	case local == ancestor:
		return Result{OK: true, Merged: remote}
	case remote == ancestor:
		return Result{OK: true, Merged: local}
	}

	dmp := diffmatchpatch.New()
	localSpans := editScript(dmp, ancestor, local)
	remoteSpans := editScript(dmp, ancestor, remote)

	combined := append([]editSpan{}, localSpans...)
	for _, rs := range remoteSpans {
		duplicate := false
		for _, ls := range localSpans {
			if rs == ls {
				duplicate = true
				break
			}
			if spansConflict(ls, rs) {
				return Result{
					OK: false,
					Conflicts: []FieldConflict{{
						Ancestor: ancestor,
						Local:    local,
						Remote:   remote,
					}},
				}
			}
		}
		if !duplicate {
			combined = append(combined, rs)
		}
	}

	return Result{OK: true, Merged: applySpans(ancestor, combined)}
}

// spansConflict reports whether two edit spans touch the same region of
// the ancestor. Edits starting at the same offset are treated as
// overlapping even when one is a pure insertion, since their relative
// order in the output would be ambiguous.
func spansConflict(a, b editSpan) bool {
	if a.start == b.start {
		return true
	}
	return a.start < b.end && b.start < a.end
}

// editScript converts a diff of ancestor->side into ordered edit spans
// positioned in ancestor byte offsets. Adjacent delete/insert runs are
// coalesced into a single replacement span.
func editScript(dmp *diffmatchpatch.DiffMatchPatch, ancestor, side string) []editSpan {
	diffs := dmp.DiffCleanupSemantic(dmp.DiffMain(ancestor, side, false))

	var spans []editSpan
	pos := 0
	pending := editSpan{start: -1}

	flush := func() {
		if pending.start >= 0 {
			spans = append(spans, pending)
			pending = editSpan{start: -1}
		}
	}

	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			flush()
			pos += len(d.Text)
		case diffmatchpatch.DiffDelete:
			if pending.start < 0 {
				pending = editSpan{start: pos, end: pos}
			}
			pending.end = pos + len(d.Text)
			pos += len(d.Text)
		case diffmatchpatch.DiffInsert:
			if pending.start < 0 {
				pending = editSpan{start: pos, end: pos}
			}
			pending.insert += d.Text
		}
	}
	flush()

	return spans
}

// applySpans applies non-overlapping edit spans to the ancestor text,
// right to left so earlier offsets stay valid.
func applySpans(ancestor string, spans []editSpan) string {
	sorted := append([]editSpan{}, spans...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].start > sorted[j].start })

	out := ancestor
	for _, s := range sorted {
		out = out[:s.start] + s.insert + out[s.end:]
	}
	return out
}
