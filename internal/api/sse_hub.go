package api

import (
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"sheetlens/domain/core"
	"sheetlens/domain/upload"
	"sheetlens/internal"
)

const sseKeepAlive = 30 * time.Second

// SSEHub fans record events out to each owner's connected clients
type SSEHub struct {
	clients   map[core.OwnerID]map[chan upload.Event]bool
	clientsMu sync.RWMutex
	broadcast chan upload.Event
	done      chan struct{}
	closeOnce sync.Once
	logger    *internal.Logger
}

// NewSSEHub creates a new SSE hub and starts its fan-out loop
func NewSSEHub(logger *internal.Logger) *SSEHub {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	hub := &SSEHub{
		clients:   make(map[core.OwnerID]map[chan upload.Event]bool),
		broadcast: make(chan upload.Event, 100),
		done:      make(chan struct{}),
		logger:    logger,
	}

	go hub.run()
	return hub
}

// run delivers broadcast events until Close
func (h *SSEHub) run() {
	for {
		select {
		case event := <-h.broadcast:
			h.clientsMu.RLock()
			for clientChan := range h.clients[event.OwnerID] {
				select {
				case clientChan <- event:
				default:
					h.logger.Warn("[SSE] Client channel full for owner %s, skipping event", event.OwnerID)
				}
			}
			h.clientsMu.RUnlock()
		case <-h.done:
			return
		}
	}
}

// Subscribe registers a client channel for owner. The returned func unregisters it.
func (h *SSEHub) Subscribe(owner core.OwnerID) (<-chan upload.Event, func()) {
	ch := make(chan upload.Event, 10)

	h.clientsMu.Lock()
	if h.clients[owner] == nil {
		h.clients[owner] = make(map[chan upload.Event]bool)
	}
	h.clients[owner][ch] = true
	h.logger.Debug("[SSE] Client registered for owner %s (total clients: %d)", owner, len(h.clients[owner]))
	h.clientsMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.clientsMu.Lock()
			defer h.clientsMu.Unlock()
			if clients, exists := h.clients[owner]; exists {
				delete(clients, ch)
				if len(clients) == 0 {
					delete(h.clients, owner)
				}
			}
			close(ch)
		})
	}
}

// Publish queues an event for the owner's clients; a full queue drops it
func (h *SSEHub) Publish(event upload.Event) {
	select {
	case h.broadcast <- event:
	default:
		h.logger.Warn("[SSE] Broadcast channel full, dropping event %s for %s", event.Type, event.FileID)
	}
}

// ClientCount returns the number of connected clients for an owner
func (h *SSEHub) ClientCount(owner core.OwnerID) int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients[owner])
}

// Close stops the fan-out loop
func (h *SSEHub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// HandleSSE streams the caller's record events
func (h *SSEHub) HandleSSE(c *gin.Context) {
	actor := actorFrom(c)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	events, unsubscribe := h.Subscribe(actor.OwnerID)
	defer unsubscribe()

	ctx := c.Request.Context()
	ticker := time.NewTicker(sseKeepAlive)
	defer ticker.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case event, ok := <-events:
			if !ok {
				return false
			}
			payload, err := json.Marshal(event)
			if err != nil {
				h.logger.Error("[SSE] Failed to marshal event: %v", err)
				return true
			}
			c.SSEvent(event.Type, string(payload))
			return true

		case <-ticker.C:
			c.SSEvent("ping", `{"status":"alive","timestamp":"`+time.Now().UTC().Format(time.RFC3339)+`"}`)
			return true

		case <-ctx.Done():
			return false
		}
	})
}
