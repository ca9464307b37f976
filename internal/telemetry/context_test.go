package telemetry_test

import (
	"context"
	"testing"
	"time"

	"github.com/petasbytes/mcp-agent/internal/telemetry"
)

func TestTurnID_RoundTrip(t *testing.T) {
	ctx := telemetry.WithTurnID(context.Background(), "turn-123")
	got, ok := telemetry.TurnIDFromContext(ctx)
	if !ok || got != "turn-123" {
		t.Fatalf("want turn-123,true; got %q,%v", got, ok)
	}
}

func TestTurnID_EmptyIDRejectedOnRead(t *testing.T) {
	ctx := telemetry.WithTurnID(context.Background(), "")
	got, ok := telemetry.TurnIDFromContext(ctx)
	if ok || got != "" {
		t.Fatalf("want empty,false; got %q,%v", got, ok)
	}
}

func TestTurnID_ParentCancellationPropagates(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	child := telemetry.WithTurnID(parent, "t1")
	cancel()

	select {
	case <-child.Done():
	case <-time.After(100 * time.Millisecond):
		t.Fatal("child context did not observe parent cancellation")
	}
}

func TestTurnID_LastWriteWins(t *testing.T) {
	ctx := telemetry.WithTurnID(telemetry.WithTurnID(context.Background(), "t1"), "t2")
	got, ok := telemetry.TurnIDFromContext(ctx)
	if !ok || got != "t2" {
		t.Fatalf("want t2,true; got %q,%v", got, ok)
	}
}

func TestTurnID_MissingValue(t *testing.T) {
	got, ok := telemetry.TurnIDFromContext(context.Background())
	if ok || got != "" {
		t.Fatalf("want empty,false; got %q,%v", got, ok)
	}
}

func TestEnsureTurnID(t *testing.T) {
	ctx, id := telemetry.EnsureTurnID(context.Background())
	if id == "" {
		t.Fatal("expected a generated id")
	}
	if got, _ := telemetry.TurnIDFromContext(ctx); got != id {
		t.Fatalf("context carries %q, want %q", got, id)
	}

	same, again := telemetry.EnsureTurnID(ctx)
	if again != id || same != ctx {
		t.Fatalf("existing id should be kept; got %q", again)
	}
}

func TestNewTurnID_Unique(t *testing.T) {
	if telemetry.NewTurnID() == telemetry.NewTurnID() {
		t.Fatal("turn ids should differ")
	}
}
