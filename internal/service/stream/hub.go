package stream

import (
	"context"
	"io"
	"sync"

	"camcontrol/internal/logger"
)

// Hub fans encoded frames out to every subscribed viewer. Each viewer has a
// small queue; when it is full the frame is skipped for that viewer only, so a
// slow connection never holds up capture.
type Hub struct {
	mu      sync.Mutex
	clients map[int]chan []byte
	nextID  int
	buffer  int
	closed  bool
	logger  *logger.Logger
}

func NewHub(buffer int, logger *logger.Logger) *Hub {
	if buffer <= 0 {
		buffer = 1
	}
	return &Hub{
		clients: make(map[int]chan []byte),
		buffer:  buffer,
		logger:  logger,
	}
}

// Subscription is one viewer's view of the stream.
type Subscription struct {
	id     int
	frames chan []byte
	hub    *Hub
	once   sync.Once
}

// Subscribe registers a new viewer. Subscribing to a closed hub yields a
// subscription that is already at end-of-stream.
func (h *Hub) Subscribe() *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	ch := make(chan []byte, h.buffer)
	sub := &Subscription{id: id, frames: ch, hub: h}

	if h.closed {
		close(ch)
		return sub
	}

	h.clients[id] = ch
	h.logger.Debug("Viewer #%d subscribed (total viewers: %d)", id, len(h.clients))
	return sub
}

func (h *Hub) unsubscribe(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ch, ok := h.clients[id]; ok {
		close(ch)
		delete(h.clients, id)
		h.logger.Debug("Viewer #%d unsubscribed (remaining viewers: %d)", id, len(h.clients))
	}
}

// Broadcast offers frame to every viewer without blocking and reports how many
// took it and how many were skipped.
func (h *Hub) Broadcast(frame []byte) (delivered, dropped int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return 0, 0
	}
	for _, ch := range h.clients {
		select {
		case ch <- frame:
			delivered++
		default:
			dropped++
		}
	}
	return delivered, dropped
}

// Close ends every subscription. Frames already queued are still delivered.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.clients {
		close(ch)
		delete(h.clients, id)
	}
	h.logger.Info("Stream closed")
}

// Clients is the number of connected viewers.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Closed reports whether the stream has ended.
func (h *Hub) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// Next blocks for the next frame. It returns io.EOF once the stream has ended
// and ctx.Err() if the viewer goes away first.
func (s *Subscription) Next(ctx context.Context) ([]byte, error) {
	select {
	case frame, ok := <-s.frames:
		if !ok {
			return nil, io.EOF
		}
		return frame, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close unsubscribes. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.unsubscribe(s.id)
	})
}
