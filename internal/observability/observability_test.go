package observability

import (
	"context"
	"testing"
)

func TestNewLogger_RejectsUnknownLevel(t *testing.T) {
	if _, err := NewLogger("svc", "loud"); err == nil {
		t.Fatal("expected error for unknown level")
	}
	l, err := NewLogger("svc", "debug")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_ = l.Sync()
}

func TestSetupTracing_NoEndpointIsNoop(t *testing.T) {
	shutdown, err := SetupTracing(context.Background(), TracingConfig{ServiceName: "svc"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
