package hub

import (
	"sync"
	"testing"
	"time"

	"github.com/DoyleJ11/cricket-auction-backend/internal/engine"
)

func recvMessage(t *testing.T, ch <-chan Message, within time.Duration) Message {
	t.Helper()
	select {
	case msg, ok := <-ch:
		if !ok {
			t.Fatalf("observer channel closed unexpectedly")
		}
		return msg
	case <-time.After(within):
		t.Fatalf("timed out waiting for message")
		return Message{}
	}
}

func expectClosed(t *testing.T, ch <-chan Message, within time.Duration) {
	t.Helper()
	deadline := time.After(within)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatalf("channel still open after %v", within)
		}
	}
}

func event(version int) Message {
	return Message{Version: version, Event: &engine.Event{Type: engine.EvtBidPlaced, Version: version}}
}

func TestHub_SnapshotThenEventsInOrder(t *testing.T) {
	h := New(nil, 8)
	view := engine.View{Status: engine.StatusInProgress}
	sub, err := h.Subscribe(Message{Version: 3, Snapshot: &view})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	for v := 4; v <= 6; v++ {
		h.Publish(event(v))
	}

	first := recvMessage(t, sub.C, 100*time.Millisecond)
	if first.Snapshot == nil || first.Version != 3 {
		t.Fatalf("first delivery: want snapshot at version 3, got %+v", first)
	}
	for want := 4; want <= 6; want++ {
		got := recvMessage(t, sub.C, 100*time.Millisecond)
		if got.Event == nil || got.Version != want {
			t.Fatalf("want event version %d, got %+v", want, got)
		}
	}
}

func TestHub_DropsSlowObserver(t *testing.T) {
	h := New(nil, 1)
	slow, _ := h.Subscribe(Message{})
	fast, _ := h.Subscribe(Message{})

	h.Publish(event(1))
	_ = recvMessage(t, fast.C, 100*time.Millisecond)
	h.Publish(event(2))

	if h.Len() != 1 {
		t.Fatalf("expected slow observer to be dropped; Len=%d", h.Len())
	}
	if h.Dropped() != 1 {
		t.Fatalf("Dropped: got %d, want 1", h.Dropped())
	}

	// The slow observer still sees what was queued before the drop.
	got := recvMessage(t, slow.C, 100*time.Millisecond)
	if got.Version != 1 {
		t.Fatalf("slow observer: want version 1, got %d", got.Version)
	}
	expectClosed(t, slow.C, 100*time.Millisecond)

	if got := recvMessage(t, fast.C, 100*time.Millisecond); got.Version != 2 {
		t.Fatalf("fast observer: want version 2, got %d", got.Version)
	}
}

func TestHub_UnsubscribeIsIdempotent(t *testing.T) {
	h := New(nil, 4)
	sub, _ := h.Subscribe(Message{})
	h.Unsubscribe(sub)
	h.Unsubscribe(sub)
	h.Unsubscribe(nil)

	expectClosed(t, sub.C, 100*time.Millisecond)
	if h.Len() != 0 {
		t.Fatalf("Len: got %d, want 0", h.Len())
	}
}

func TestHub_CloseRefusesNewObservers(t *testing.T) {
	h := New(nil, 4)
	sub, _ := h.Subscribe(Message{})
	h.Close()

	expectClosed(t, sub.C, 100*time.Millisecond)
	if _, err := h.Subscribe(Message{}); err != ErrClosed {
		t.Fatalf("subscribe after close: got %v, want ErrClosed", err)
	}
	h.Publish(event(1))
}

func TestHub_ConcurrentSubscribeAndPublish(t *testing.T) {
	h := New(nil, 64)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub, err := h.Subscribe(Message{})
			if err != nil {
				t.Errorf("subscribe: %v", err)
				return
			}
			h.Unsubscribe(sub)
		}()
	}
	for v := 1; v <= 32; v++ {
		h.Publish(event(v))
	}
	wg.Wait()
	if h.Len() != 0 {
		t.Fatalf("Len: got %d, want 0", h.Len())
	}
}
