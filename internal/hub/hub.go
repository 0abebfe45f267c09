package hub

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/cricket-auction-backend/internal/engine"
)

var ErrClosed = errors.New("hub closed")

// Message is one delivery to an observer: the snapshot queued when it
// subscribed, or a committed event.
type Message struct {
	Version  int
	Snapshot *engine.View
	Event    *engine.Event
}

type Subscription struct {
	ID string
	C  <-chan Message
	ch chan Message
}

// Hub fans committed events out to observers. It never blocks the
// publisher: an observer whose queue is full is dropped and its channel
// closed.
type Hub struct {
	mu      sync.Mutex
	subs    map[string]*Subscription
	buffer  int
	closed  bool
	dropped int
	log     *zap.Logger
}

func New(log *zap.Logger, buffer int) *Hub {
	if buffer < 1 {
		buffer = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		subs:   make(map[string]*Subscription),
		buffer: buffer,
		log:    log,
	}
}

// Subscribe registers a new observer. first, if it carries a snapshot or an
// event, is queued ahead of anything published afterwards.
func (h *Hub) Subscribe(first Message) (*Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrClosed
	}

	ch := make(chan Message, h.buffer)
	if first.Snapshot != nil || first.Event != nil {
		ch <- first
	}
	sub := &Subscription{ID: uuid.NewString(), C: ch, ch: ch}
	h.subs[sub.ID] = sub
	return sub, nil
}

// Unsubscribe removes sub and closes its channel. Unknown or already
// dropped subscriptions are ignored.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if cur, ok := h.subs[sub.ID]; ok && cur == sub {
		close(sub.ch)
		delete(h.subs, sub.ID)
	}
}

func (h *Hub) Publish(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, sub := range h.subs {
		select {
		case sub.ch <- msg:
		default:
			close(sub.ch)
			delete(h.subs, id)
			h.dropped++
			h.log.Warn("dropping slow observer", zap.String("observer", id), zap.Int("version", msg.Version))
		}
	}
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Dropped counts observers removed for falling behind.
func (h *Hub) Dropped() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}

// Close closes every observer channel and refuses new subscriptions.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, sub := range h.subs {
		close(sub.ch)
		delete(h.subs, id)
	}
	h.closed = true
}
