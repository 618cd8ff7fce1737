package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"camcontrol/internal/dto"
	"camcontrol/internal/logger"

	"github.com/gorilla/websocket"
)

const (
	writeWait       = 2 * time.Second
	broadcastBuffer = 16
)

// Message is the envelope pushed to control clients.
type Message struct {
	Type    string             `json:"type"`
	Event   *dto.EventInfo     `json:"event,omitempty"`
	Command *dto.CommandResult `json:"command,omitempty"`
}

// HubService tracks control-page websocket clients and pushes transition
// events and command acknowledgements to all of them.
type HubService struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	mutex      sync.RWMutex
	logger     *logger.Logger
}

func NewHubService(logger *logger.Logger) *HubService {
	return &HubService{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, broadcastBuffer),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run serves registrations and broadcasts until ctx is cancelled, then
// closes every client. Register and Unregister stop blocking once it returns.
func (h *HubService) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mutex.Unlock()
			h.logger.Info("Control client connected. Total: %d", count)

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
			}
			count := len(h.clients)
			h.mutex.Unlock()
			h.logger.Info("Control client disconnected. Total: %d", count)

		case message := <-h.broadcast:
			h.mutex.Lock()
			for client := range h.clients {
				client.SetWriteDeadline(time.Now().Add(writeWait))
				if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
					h.logger.Error("Error sending message: %v", err)
					delete(h.clients, client)
					client.Close()
				}
			}
			h.mutex.Unlock()

		case <-ctx.Done():
			h.mutex.Lock()
			for client := range h.clients {
				client.Close()
				delete(h.clients, client)
			}
			h.mutex.Unlock()
			return
		}
	}
}

// Register adds a client. After Run has stopped the client is closed instead.
func (h *HubService) Register(client *websocket.Conn) {
	select {
	case h.register <- client:
	case <-h.done:
		if client != nil {
			client.Close()
		}
	}
}

// Unregister removes and closes a client. After Run has stopped every client
// is already closed, so it returns immediately.
func (h *HubService) Unregister(client *websocket.Conn) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Broadcast queues a raw message. It never blocks: when the queue is full the
// message is dropped.
func (h *HubService) Broadcast(message []byte) {
	select {
	case h.broadcast <- message:
	default:
		h.logger.Warning("Control broadcast queue full, dropping message")
	}
}

// PublishEvent pushes a transition event to every client.
func (h *HubService) PublishEvent(ev dto.EventInfo) {
	h.publish(Message{Type: "event", Event: &ev})
}

// PublishCommand pushes a command acknowledgement to every client.
func (h *HubService) PublishCommand(res dto.CommandResult) {
	h.publish(Message{Type: "command", Command: &res})
}

func (h *HubService) publish(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("Error encoding %s message: %v", msg.Type, err)
		return
	}
	h.Broadcast(data)
}

func (h *HubService) GetClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}
