package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/driftsync/driftsync/storage"
)

func TestStore_PutGetRoundTrip(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.Put(ctx, "ops", "a", []byte(`{"v":1}`)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	got, err := s.Get(ctx, "ops", "a")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != `{"v":1}` {
		t.Errorf("Get = %q", got)
	}
}

func TestStore_GetMissing(t *testing.T) {
	s := New()
	ctx := context.Background()

	if _, err := s.Get(ctx, "ops", "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	// Absent collection behaves the same as an absent key.
	if _, err := s.Get(ctx, "nowhere", "a"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestStore_PutReplaces(t *testing.T) {
	s := New()
	ctx := context.Background()

	s.Put(ctx, "ops", "a", []byte("old"))
	s.Put(ctx, "ops", "a", []byte("new"))

	got, err := s.Get(ctx, "ops", "a")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != "new" {
		t.Errorf("Get = %q, want replacement", got)
	}
}

func TestStore_DeleteIdempotent(t *testing.T) {
	s := New()
	ctx := context.Background()

	s.Put(ctx, "ops", "a", []byte("x"))
	if err := s.Delete(ctx, "ops", "a"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := s.Delete(ctx, "ops", "a"); err != nil {
		t.Fatalf("repeat Delete failed: %v", err)
	}
	if _, err := s.Get(ctx, "ops", "a"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("record survived deletion: %v", err)
	}
}

func TestStore_GetAll(t *testing.T) {
	s := New()
	ctx := context.Background()

	s.Put(ctx, "ops", "a", []byte("1"))
	s.Put(ctx, "ops", "b", []byte("2"))
	s.Put(ctx, "meta", "c", []byte("3"))

	all, err := s.GetAll(ctx, "ops")
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}
	if len(all) != 2 || string(all["a"]) != "1" || string(all["b"]) != "2" {
		t.Errorf("GetAll = %v", all)
	}

	empty, err := s.GetAll(ctx, "nowhere")
	if err != nil {
		t.Fatalf("GetAll on empty collection failed: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("GetAll on empty collection = %v", empty)
	}
}

func TestStore_ValuesNotAliased(t *testing.T) {
	s := New()
	ctx := context.Background()

	original := []byte("abc")
	s.Put(ctx, "ops", "a", original)
	original[0] = 'z'

	got, _ := s.Get(ctx, "ops", "a")
	if string(got) != "abc" {
		t.Fatal("stored value shares the caller's buffer")
	}
	got[0] = 'q'
	again, _ := s.Get(ctx, "ops", "a")
	if string(again) != "abc" {
		t.Fatal("returned value aliases internal storage")
	}
}

func TestStore_Closed(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := s.Close(); !errors.Is(err, storage.ErrStoreClosed) {
		t.Fatalf("double Close err = %v", err)
	}
	if _, err := s.Get(ctx, "ops", "a"); !errors.Is(err, storage.ErrStoreClosed) {
		t.Fatalf("Get after Close err = %v", err)
	}
	if err := s.Put(ctx, "ops", "a", nil); !errors.Is(err, storage.ErrStoreClosed) {
		t.Fatalf("Put after Close err = %v", err)
	}
}
