package merge

import (
	"regexp"
	"testing"
	"time"
)

func TestClone_NoSharedBuffers(t *testing.T) {
	e := New()
	src := map[string]interface{}{
		"list":  []interface{}{1, 2, 3},
		"inner": map[string]interface{}{"k": "v"},
		"bytes": []byte{1, 2, 3},
	}

	cloned := e.Clone(src).(map[string]interface{})

	cloned["list"].([]interface{})[0] = 99
	cloned["inner"].(map[string]interface{})["k"] = "mutated"
	cloned["bytes"].([]byte)[0] = 9

	if src["list"].([]interface{})[0] != 1 {
		t.Error("slice buffer shared with source")
	}
	if src["inner"].(map[string]interface{})["k"] != "v" {
		t.Error("nested map shared with source")
	}
	if src["bytes"].([]byte)[0] != 1 {
		t.Error("byte slice shared with source")
	}
}

func TestClone_SpecialCases(t *testing.T) {
	e := New()

	now := time.Now()
	if got := e.Clone(now).(time.Time); !got.Equal(now) {
		t.Error("time.Time should clone by value")
	}

	re := regexp.MustCompile(`^abc$`)
	got := e.Clone(re).(*regexp.Regexp)
	if got == re {
		t.Error("regexp clone should not share pointer identity")
	}
	if got.String() != re.String() {
		t.Error("regexp clone changed the pattern")
	}

	if e.Clone(nil) != nil {
		t.Error("nil should clone to nil")
	}
	if e.Clone("s") != "s" || e.Clone(42) != 42 || e.Clone(true) != true {
		t.Error("scalars should pass through")
	}
}

func TestClone_DepthGuard(t *testing.T) {
	e := New(WithMaxDepth(2))
	deep := map[string]interface{}{
		"a": map[string]interface{}{
			"b": map[string]interface{}{
				"c": map[string]interface{}{"d": 1},
			},
		},
	}

	// Must terminate; structure beyond the bound is dropped.
	cloned := e.Clone(deep).(map[string]interface{})
	if cloned["a"] == nil {
		t.Fatal("first level should survive")
	}
}

func TestEqual_OrderIndependent(t *testing.T) {
	a := map[string]interface{}{"x": 1, "y": map[string]interface{}{"p": "q", "r": "s"}}
	b := map[string]interface{}{"y": map[string]interface{}{"r": "s", "p": "q"}, "x": 1}
	if !Equal(a, b) {
		t.Fatal("structurally identical maps must compare equal regardless of insertion order")
	}
}

func TestEqual_NumericCrossTypes(t *testing.T) {
	if !Equal(1, float64(1)) {
		t.Error("int and float64 of the same value should be equal")
	}
	if !Equal(int64(7), 7) {
		t.Error("int64 and int of the same value should be equal")
	}
	if Equal(1, float64(1.5)) {
		t.Error("different numbers must not be equal")
	}
}

func TestEqual_Mismatches(t *testing.T) {
	tests := []struct {
		name string
		a, b interface{}
	}{
		{"map vs slice", map[string]interface{}{}, []interface{}{}},
		{"different lengths", []interface{}{1}, []interface{}{1, 2}},
		{"missing key", map[string]interface{}{"a": 1}, map[string]interface{}{"b": 1}},
		{"nil vs value", nil, 1},
		{"string vs number", "1", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if Equal(tt.a, tt.b) {
				t.Errorf("Equal(%v, %v) = true, want false", tt.a, tt.b)
			}
		})
	}
}

func TestEqual_Times(t *testing.T) {
	utc := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	other := utc.In(time.FixedZone("X", 3600))
	if !Equal(utc, other) {
		t.Error("same instant in different zones should be equal")
	}
}
