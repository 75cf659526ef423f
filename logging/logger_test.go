package logging

import (
	"context"
	"fmt"
	"testing"

	"github.com/driftsync/driftsync/errors"
)

func TestNewLogger_Levels(t *testing.T) {
	tests := []struct {
		level string
	}{
		{"debug"}, {"info"}, {"warn"}, {"error"}, {"bogus"},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			l := NewLogger(Config{Level: tt.level, Format: "text"})
			if l == nil || l.Logger == nil {
				t.Fatal("expected non-nil logger")
			}
		})
	}
}

func TestDefault_LazyInit(t *testing.T) {
	defaultLogger = nil
	if Default() == nil {
		t.Fatal("expected default logger to initialize lazily")
	}
}

func TestSyncErrorValuer(t *testing.T) {
	err := errors.NewNetworkError(errors.OpSendBatch, fmt.Errorf("timeout"))
	err.Metadata = map[string]interface{}{"batch": 3}

	v := SyncErrorValuer{SyncError: err}.LogValue()
	if v.Kind().String() != "Group" {
		t.Fatalf("expected group value, got %s", v.Kind())
	}

	// Should not panic when logging through the wrapper.
	Discard().LogError(context.Background(), err, "batch failed")
	Discard().LogError(context.Background(), fmt.Errorf("plain"), "plain failure")
}

func TestWithComponent(t *testing.T) {
	l := Discard().WithComponent(Component("engine"))
	if l == nil {
		t.Fatal("expected child logger")
	}
}
