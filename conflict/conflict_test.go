package conflict

import (
	"testing"
)

func obj(pairs ...interface{}) map[string]interface{} {
	m := make(map[string]interface{})
	for i := 0; i < len(pairs); i += 2 {
		m[pairs[i].(string)] = pairs[i+1]
	}
	return m
}

func TestClassify(t *testing.T) {
	value := obj("x", 1)

	tests := []struct {
		name                    string
		ancestor, local, remote interface{}
		want                    Category
	}{
		{"no ancestor", nil, value, value, CategoryCreateCreate},
		{"no ancestor one side", nil, value, nil, CategoryCreateCreate},
		{"both deleted", value, nil, nil, CategoryDeleteDelete},
		{"local deleted", value, nil, value, CategoryDeleteUpdate},
		{"remote deleted", value, value, nil, CategoryDeleteUpdate},
		{"both edited", value, obj("x", 2), obj("x", 3), CategoryUpdateUpdate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.ancestor, tt.local, tt.remote); got != tt.want {
				t.Errorf("Classify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScore_FixedPoints(t *testing.T) {
	base := obj("x", 1)

	dd := New("c", "e", base, nil, nil)
	if dd.Complexity != 0 {
		t.Errorf("delete/delete complexity = %d, want 0", dd.Complexity)
	}

	du := New("c", "e", base, nil, obj("x", 2))
	if du.Complexity != 50 {
		t.Errorf("delete/update complexity = %d, want 50", du.Complexity)
	}
}

func TestScore_Scalars(t *testing.T) {
	equal := New("c", "e", "old", "same", "same")
	if equal.Complexity != 0 {
		t.Errorf("equal scalars complexity = %d, want 0", equal.Complexity)
	}

	diverged := New("c", "e", "old", "foo", "bar")
	if diverged.Complexity != 40 {
		t.Errorf("diverged scalars complexity = %d, want 40", diverged.Complexity)
	}
}

func TestScore_StructuredBounds(t *testing.T) {
	small := New("c", "e",
		obj("a", 1, "b", 2, "c", 3, "d", 4),
		obj("a", 1, "b", 2, "c", 3, "d", 5),
		obj("a", 1, "b", 2, "c", 3, "d", 4))
	large := New("c", "e",
		obj("a", 1),
		obj("completely", "different", "shape", true),
		obj("nothing", "alike", "here", []interface{}{1, 2, 3}))

	for _, c := range []*Conflict{small, large} {
		if c.Complexity < 0 || c.Complexity > 100 {
			t.Fatalf("complexity %d out of [0,100]", c.Complexity)
		}
	}
	if small.Complexity >= large.Complexity {
		t.Errorf("small divergence (%d) should score below large divergence (%d)",
			small.Complexity, large.Complexity)
	}
}

func TestScore_NoAncestorUsesDirectDistance(t *testing.T) {
	identical := New("c", "e", nil, obj("a", 1), obj("a", 1))
	if identical.Complexity != 0 {
		t.Errorf("identical creations should score 0, got %d", identical.Complexity)
	}
}

func TestCanonicalJSON_OrderIndependence(t *testing.T) {
	a := obj("z", 1, "a", 2, "m", obj("k2", 1, "k1", 2))
	b := obj("a", 2, "m", obj("k1", 2, "k2", 1), "z", 1)
	if canonicalJSON(a) != canonicalJSON(b) {
		t.Fatal("canonical serialization must be key-order independent")
	}
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"", "abc", 3},
		{"kitten", "sitting", 3},
		{"same", "same", 0},
	}
	for _, tt := range tests {
		if got := levenshtein(tt.a, tt.b); got != tt.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestNew_AssignsIDAndScore(t *testing.T) {
	c := New("notes", "n1", obj("x", 1), obj("x", 2), obj("x", 3))
	if c.ID == "" {
		t.Error("expected generated conflict id")
	}
	if c.Category != CategoryUpdateUpdate {
		t.Errorf("category = %v", c.Category)
	}
	if c.Collection != "notes" || c.EntityID != "n1" {
		t.Errorf("identity fields not set: %+v", c)
	}
}
