package events

import (
	"encoding/json"
	"log/slog"
	"testing"
)

func TestHubPublishReachesOwnUserOnly(t *testing.T) {
	hub := NewHub(slog.Default())

	alice := NewClient(hub, nil, 1)
	bob := NewClient(hub, nil, 2)
	hub.Register(alice)
	hub.Register(bob)
	t.Cleanup(func() {
		hub.Unregister(alice)
		hub.Unregister(bob)
	})

	hub.Publish(1, Event{Type: "comparison", ComparisonID: "cmp-1", Status: "complete"})

	select {
	case data := <-alice.send:
		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatalf("unmarshal event: %v", err)
		}
		if ev.ComparisonID != "cmp-1" {
			t.Errorf("comparison_id = %q, want cmp-1", ev.ComparisonID)
		}
	default:
		t.Fatal("expected event for alice")
	}

	select {
	case <-bob.send:
		t.Fatal("bob must not receive alice's event")
	default:
	}
}

func TestHubPublishNoClients(t *testing.T) {
	hub := NewHub(slog.Default())
	// Must not panic or block.
	hub.Publish(42, Event{Type: "comparison", ComparisonID: "cmp-1", Status: "failed"})
}

func TestHubUnregisterClosesSend(t *testing.T) {
	hub := NewHub(slog.Default())
	c := NewClient(hub, nil, 1)
	hub.Register(c)
	if hub.ClientCount(1) != 1 {
		t.Fatalf("client count = %d, want 1", hub.ClientCount(1))
	}

	hub.Unregister(c)
	if hub.ClientCount(1) != 0 {
		t.Errorf("client count = %d, want 0", hub.ClientCount(1))
	}
	if _, ok := <-c.send; ok {
		t.Error("expected send channel to be closed")
	}
}

func TestHubSlowClientDoesNotBlock(t *testing.T) {
	hub := NewHub(slog.Default())
	c := NewClient(hub, nil, 1)
	hub.Register(c)
	t.Cleanup(func() { hub.Unregister(c) })

	// Fill the buffer; further publishes must drop, not block.
	for i := 0; i < sendBufferSize+5; i++ {
		hub.Publish(1, Event{Type: "comparison", ComparisonID: "cmp", Status: "processing"})
	}
}
