package services_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/bastago/basta/internal/errors"
	"github.com/bastago/basta/internal/services"
)

// TestQuickplay_JoinsExistingRoom tests the direct-join path
func TestQuickplay_JoinsExistingRoom(t *testing.T) {
	e := newEngine(t, testConfig())
	ctx := context.Background()
	room := e.newReadyRoom(t, "alice")

	res, err := e.matching.Quickplay(ctx, "bob", "bob", "en")
	if err != nil {
		t.Fatalf("Quickplay failed: %v", err)
	}
	if res.Queued {
		t.Fatal("expected an immediate seat, got queued")
	}
	if res.Room == nil || res.Room.ID != room.ID {
		t.Errorf("expected to join %s, got %+v", room.ID, res.Room)
	}
	if res.Room.Member("bob") == nil {
		t.Error("expected bob seated in the room")
	}
}

// TestQuickplay_QueuesUntilBatch tests queue accumulation and room
// formation at the threshold
func TestQuickplay_QueuesUntilBatch(t *testing.T) {
	e := newEngine(t, testConfig())
	ctx := context.Background()

	res, err := e.matching.Quickplay(ctx, "alice", "alice", "en")
	if err != nil {
		t.Fatalf("Quickplay failed: %v", err)
	}
	if !res.Queued {
		t.Fatal("expected the first player queued")
	}
	if !e.matching.Queued("alice") {
		t.Error("expected alice reported as queued")
	}

	// A repeat request while queued stays queued without duplication
	res, err = e.matching.Quickplay(ctx, "alice", "alice", "en")
	if err != nil || !res.Queued {
		t.Fatalf("expected repeat request to stay queued: %+v %v", res, err)
	}

	// The second player completes the batch
	res, err = e.matching.Quickplay(ctx, "bob", "bob", "en")
	if err != nil {
		t.Fatalf("Quickplay failed: %v", err)
	}
	if res.Queued || res.Room == nil {
		t.Fatalf("expected a formed room, got %+v", res)
	}

	// The longest-waiting player owns the room and starts ready; the rest
	// confirm themselves like any other member
	if res.Room.OwnerID != "alice" {
		t.Errorf("expected alice as owner, got %s", res.Room.OwnerID)
	}
	for _, m := range res.Room.Members {
		if m.PlayerID == "alice" && !m.Ready {
			t.Error("expected the owner ready")
		}
		if m.PlayerID == "bob" && m.Ready {
			t.Error("expected bob unready until he confirms")
		}
	}
	if e.matching.Queued("alice") || e.matching.Queued("bob") {
		t.Error("expected both players out of the queue")
	}

	// Each matched player is notified on their own channel
	if e.bus.Count(services.EventQuickplayMatched) != 2 {
		t.Errorf("expected 2 match notifications, got %d", e.bus.Count(services.EventQuickplayMatched))
	}
	if ev, ok := e.bus.Last(services.EventQuickplayMatched); ok {
		if ev.Payload.(services.QuickplayMatchedPayload).RoomID != res.Room.ID {
			t.Errorf("expected notification for room %s, got %+v", res.Room.ID, ev.Payload)
		}
	}
}

// TestQuickplay_LanguagesQueueSeparately tests that batches never mix
// languages
func TestQuickplay_LanguagesQueueSeparately(t *testing.T) {
	e := newEngine(t, testConfig())
	ctx := context.Background()

	if _, err := e.matching.Quickplay(ctx, "alice", "alice", "en"); err != nil {
		t.Fatalf("Quickplay failed: %v", err)
	}
	res, err := e.matching.Quickplay(ctx, "pedro", "pedro", "es")
	if err != nil {
		t.Fatalf("Quickplay failed: %v", err)
	}
	if !res.Queued {
		t.Error("expected the es player queued, not matched with the en player")
	}
}

// TestQuickplay_LeaveRemovesFromQueue tests queue withdrawal
func TestQuickplay_LeaveRemovesFromQueue(t *testing.T) {
	e := newEngine(t, testConfig())
	ctx := context.Background()

	if _, err := e.matching.Quickplay(ctx, "alice", "alice", "en"); err != nil {
		t.Fatalf("Quickplay failed: %v", err)
	}
	e.matching.Leave("alice")
	if e.matching.Queued("alice") {
		t.Error("expected alice out of the queue")
	}
	// Leaving when not queued is a no-op
	e.matching.Leave("alice")

	// The next entrant queues instead of matching with a ghost
	res, err := e.matching.Quickplay(ctx, "bob", "bob", "en")
	if err != nil || !res.Queued {
		t.Errorf("expected bob queued alone: %+v %v", res, err)
	}
}

// TestQuickplay_QueueLimit tests the hard cap
func TestQuickplay_QueueLimit(t *testing.T) {
	cfg := testConfig()
	cfg.QueueLimit = 2
	cfg.QuickplayMin = 4 // keep everyone waiting
	e := newEngine(t, cfg)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		id := fmt.Sprintf("p%d", i)
		if _, err := e.matching.Quickplay(ctx, id, id, "en"); err != nil {
			t.Fatalf("Quickplay(%s) failed: %v", id, err)
		}
	}
	_, err := e.matching.Quickplay(ctx, "overflow", "overflow", "en")
	if !errors.IsKind(err, errors.ErrConflict) {
		t.Errorf("expected conflict on a full queue, got %v", err)
	}
}
