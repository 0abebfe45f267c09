package relay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/cricket-auction-backend/internal/engine"
	"github.com/DoyleJ11/cricket-auction-backend/internal/hub"
	"github.com/DoyleJ11/cricket-auction-backend/internal/types"
)

type fakeBus struct {
	mu        sync.Mutex
	published []types.ServerMessage
	streamed  []types.ServerMessage
	failNext  bool
}

func (b *fakeBus) Publish(_ context.Context, _ string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failNext {
		b.failNext = false
		return errors.New("connection refused")
	}
	var m types.ServerMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		return err
	}
	b.published = append(b.published, m)
	return nil
}

func (b *fakeBus) StreamAppend(_ context.Context, _ string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var m types.ServerMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		return err
	}
	b.streamed = append(b.streamed, m)
	return nil
}

func (b *fakeBus) counts() (int, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.published), len(b.streamed)
}

// hubSource subscribes straight to a hub, greeting with a snapshot.
type hubSource struct {
	h     *hub.Hub
	mu    sync.Mutex
	joins int
}

func (s *hubSource) Subscribe(context.Context) (*hub.Subscription, error) {
	s.mu.Lock()
	s.joins++
	s.mu.Unlock()
	return s.h.Subscribe(hub.Message{Snapshot: &engine.View{Status: engine.StatusInProgress}})
}

func (s *hubSource) Unsubscribe(sub *hub.Subscription) { s.h.Unsubscribe(sub) }

func (s *hubSource) joinCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.joins
}

func publishEvent(h *hub.Hub, version int) {
	h.Publish(hub.Message{Version: version, Event: &engine.Event{Type: engine.EvtBidPlaced, Version: version}})
}

func TestRelay_ForwardsInOrder(t *testing.T) {
	h := hub.New(nil, 16)
	src := &hubSource{h: h}
	bus := &fakeBus{}
	r := New(src, bus, nil, Options{Stream: "auction:log"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool { return h.Len() == 1 }, time.Second, 5*time.Millisecond)
	for v := 1; v <= 3; v++ {
		publishEvent(h, v)
	}
	require.Eventually(t, func() bool {
		p, s := bus.counts()
		return p == 4 && s == 3
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, "snapshot", bus.published[0].Type)
	for i, m := range bus.streamed {
		assert.Equal(t, "event", m.Type)
		assert.Equal(t, i+1, m.Version)
	}
	assert.Equal(t, 0, h.Len(), "relay unsubscribes on exit")
}

func TestRelay_PublishFailureDoesNotStopRelay(t *testing.T) {
	h := hub.New(nil, 16)
	bus := &fakeBus{failNext: true}
	r := New(&hubSource{h: h}, bus, nil, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = r.Run(ctx) }()

	require.Eventually(t, func() bool { return h.Len() == 1 }, time.Second, 5*time.Millisecond)
	publishEvent(h, 1)
	require.Eventually(t, func() bool {
		p, _ := bus.counts()
		return p == 1
	}, time.Second, 5*time.Millisecond)
}

func TestRelay_ResubscribesWhenDropped(t *testing.T) {
	h := hub.New(nil, 16)
	src := &hubSource{h: h}
	r := New(src, &fakeBus{}, nil, Options{Backoff: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = r.Run(ctx) }()

	require.Eventually(t, func() bool { return h.Len() == 1 }, time.Second, 5*time.Millisecond)

	// Closing every observer channel looks exactly like being dropped.
	h.Close()
	require.Eventually(t, func() bool { return src.joinCount() >= 2 }, time.Second, 5*time.Millisecond)
}
