package conflict

import "testing"

func TestRegistry_ParkAndLookup(t *testing.T) {
	r := NewRegistry()
	c := New("notes", "n1", obj("x", 1), obj("x", 2), obj("x", 3))

	r.Park(c)

	got, ok := r.Get(c.ID)
	if !ok || got != c {
		t.Fatal("Get by id failed")
	}
	got, ok = r.ByEntity("notes", "n1")
	if !ok || got != c {
		t.Fatal("ByEntity lookup failed")
	}
	if r.Len() != 1 {
		t.Fatalf("Len = %d, want 1", r.Len())
	}
}

func TestRegistry_ReplaceSameEntity(t *testing.T) {
	r := NewRegistry()
	first := New("notes", "n1", obj("x", 1), obj("x", 2), obj("x", 3))
	second := New("notes", "n1", obj("x", 1), obj("x", 4), obj("x", 5))

	r.Park(first)
	r.Park(second)

	if r.Len() != 1 {
		t.Fatalf("Len = %d, want 1 after replacement", r.Len())
	}
	if _, ok := r.Get(first.ID); ok {
		t.Fatal("stale conflict should have been evicted")
	}
	got, _ := r.ByEntity("notes", "n1")
	if got != second {
		t.Fatal("entity index should point at the newer conflict")
	}
}

func TestRegistry_RemoveUnknownFails(t *testing.T) {
	r := NewRegistry()
	if err := r.Remove("nope"); err == nil {
		t.Fatal("removing an unknown conflict id must fail synchronously")
	}
}

func TestRegistry_RemoveClearsBothIndices(t *testing.T) {
	r := NewRegistry()
	c := New("notes", "n1", obj("x", 1), obj("x", 2), obj("x", 3))
	r.Park(c)

	if err := r.Remove(c.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := r.Get(c.ID); ok {
		t.Fatal("id index not cleared")
	}
	if _, ok := r.ByEntity("notes", "n1"); ok {
		t.Fatal("entity index not cleared")
	}
	if len(r.List()) != 0 {
		t.Fatal("List should be empty")
	}
}
