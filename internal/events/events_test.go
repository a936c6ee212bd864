package events

import (
	"encoding/json"
	"testing"
	"time"
)

func TestEmit_DeliversToSubscriber(t *testing.T) {
	h := NewHub()
	ch, unsub := h.Subscribe()
	defer unsub()

	h.Emit("reflection.completed", map[string]any{"skill_id": "s1"})

	select {
	case data := <-ch:
		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatalf("unmarshal event: %v", err)
		}
		if ev.Type != "reflection.completed" {
			t.Fatalf("unexpected event type: %s", ev.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestEmit_SlowClientDropsInsteadOfBlocking(t *testing.T) {
	h := NewHub()
	ch, unsub := h.Subscribe()
	defer unsub()

	// Fill the client's buffer (capacity 32) without draining.
	for i := 0; i < 64; i++ {
		h.Emit("tick", i)
	}
	// If Emit blocked on a full channel, this test would hang and fail by timeout.
	if len(ch) == 0 {
		t.Fatal("expected some buffered events")
	}
}

func TestUnsubscribe_RemovesClient(t *testing.T) {
	h := NewHub()
	_, unsub := h.Subscribe()
	if h.ClientCount() != 1 {
		t.Fatalf("expected 1 client, got %d", h.ClientCount())
	}
	unsub()
	if h.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after unsubscribe, got %d", h.ClientCount())
	}
}
