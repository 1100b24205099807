package rendezvous

import (
	"sync"
	"time"

	"github.com/SpatiumPortae/stardrop/protocol/signal"
)

// outboxSize is the number of messages that may queue for a single connection
// before further messages to it are dropped.
const outboxSize = 256

// Hub tracks the live endpoint connections and delivers messages to them.
// Each connection has a dedicated writer, so messages to one connection are
// written in the order they were sent and a slow connection never blocks the
// others.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]chan signal.Msg
}

func NewHub() *Hub {
	return &Hub{conns: make(map[string]chan signal.Msg)}
}

// Add registers the connection id and starts its writer. The returned remove
// function unregisters it and stops the writer.
func (h *Hub) Add(id string, send func(signal.Msg) error) (remove func()) {
	outbox := make(chan signal.Msg, outboxSize)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range outbox {
			if err := send(msg); err != nil {
				return
			}
		}
	}()

	h.mu.Lock()
	h.conns[id] = outbox
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.conns, id)
			h.mu.Unlock()
			close(outbox)
			select {
			case <-done:
			case <-time.After(time.Second):
			}
		})
	}
}

// Send queues msg for the connection id. It reports false if the connection
// is unknown or its outbox is full.
func (h *Hub) Send(id string, msg signal.Msg) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	outbox, ok := h.conns[id]
	if !ok {
		return false
	}
	select {
	case outbox <- msg:
		return true
	default:
		return false
	}
}

// Len returns the number of live connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}
