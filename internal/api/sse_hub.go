package api

import (
	"encoding/json"
	"io"
	"log"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// AllTopics subscribes a client to every event topic
const AllTopics = "*"

// SSEClient represents a connected SSE client
type SSEClient struct {
	Topic   string
	Channel chan AuditEvent
}

// AuditEvent represents one live system event for SSE streaming: a scored
// failure, a weight mutation, a decay pass, or a sealed chain entry
type AuditEvent struct {
	Event     string      `json:"event"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// SSEHub manages Server-Sent Events for real-time audit updates
type SSEHub struct {
	clients    map[string]map[chan AuditEvent]bool
	clientsMu  sync.RWMutex
	register   chan SSEClient
	unregister chan SSEClient
	broadcast  chan AuditEvent
}

// NewSSEHub creates a new SSE hub
func NewSSEHub() *SSEHub {
	hub := &SSEHub{
		clients:    make(map[string]map[chan AuditEvent]bool),
		register:   make(chan SSEClient, 10),
		unregister: make(chan SSEClient, 10),
		broadcast:  make(chan AuditEvent, 100),
	}

	go hub.run()
	return hub
}

// run processes SSE hub operations
func (h *SSEHub) run() {
	for {
		select {
		case client := <-h.register:
			h.clientsMu.Lock()
			if h.clients[client.Topic] == nil {
				h.clients[client.Topic] = make(map[chan AuditEvent]bool)
			}
			h.clients[client.Topic][client.Channel] = true
			log.Printf("[SSE] Client registered for topic %s (total clients: %d)",
				client.Topic, len(h.clients[client.Topic]))
			h.clientsMu.Unlock()

		case client := <-h.unregister:
			h.clientsMu.Lock()
			if clients, exists := h.clients[client.Topic]; exists {
				delete(clients, client.Channel)
				close(client.Channel)
				log.Printf("[SSE] Client unregistered from topic %s (remaining clients: %d)",
					client.Topic, len(clients))
				if len(clients) == 0 {
					delete(h.clients, client.Topic)
				}
			}
			h.clientsMu.Unlock()

		case event := <-h.broadcast:
			h.clientsMu.RLock()
			h.deliver(event, h.clients[event.Event])
			h.deliver(event, h.clients[AllTopics])
			h.clientsMu.RUnlock()
		}
	}
}

// deliver fans one event out to a client set. Caller holds the read lock.
func (h *SSEHub) deliver(event AuditEvent, clients map[chan AuditEvent]bool) {
	for clientChan := range clients {
		select {
		case clientChan <- event:
			// Event sent successfully
		default:
			// Client channel is full, skip
			log.Printf("[SSE] Client channel full for topic %s, skipping event", event.Event)
		}
	}
}

// Broadcast sends an event to all clients listening to its topic
func (h *SSEHub) Broadcast(event AuditEvent) {
	select {
	case h.broadcast <- event:
	default:
		log.Printf("[SSE] Broadcast channel full, dropping event: %s", event.Event)
	}
}

// HandleSSE handles the Server-Sent Events endpoint. Clients pick a topic via
// ?topic=mutation|decay|seal|failure, defaulting to all topics.
func (h *SSEHub) HandleSSE(c *gin.Context) {
	topic := c.Query("topic")
	if topic == "" {
		topic = AllTopics
	}

	// Set SSE headers
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("Access-Control-Allow-Origin", "*")
	c.Header("Access-Control-Allow-Headers", "Cache-Control")

	// Create client channel
	clientChan := make(chan AuditEvent, 10)

	// Register client
	select {
	case h.register <- SSEClient{Topic: topic, Channel: clientChan}:
	default:
		c.JSON(500, gin.H{"error": "SSE hub registration failed"})
		return
	}

	defer func() {
		select {
		case h.unregister <- SSEClient{Topic: topic, Channel: clientChan}:
		default:
			// Hub might be overloaded, just close channel
		}
	}()

	// Keep connection alive and stream events
	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case event := <-clientChan:
			eventJSON, err := json.Marshal(event)
			if err != nil {
				log.Printf("[SSE] Failed to marshal event: %v", err)
				return true
			}

			c.SSEvent("audit", string(eventJSON))
			return true

		case <-time.After(30 * time.Second):
			// Send ping to keep connection alive
			c.SSEvent("ping", `{"status": "alive", "timestamp": "`+time.Now().Format(time.RFC3339)+`"}`)
			return true

		case <-ctx.Done():
			// Client disconnected
			return false
		}
	})
}

// ActiveTopics returns topics with at least one connected client
func (h *SSEHub) ActiveTopics() []string {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()

	topics := make([]string, 0, len(h.clients))
	for topic := range h.clients {
		topics = append(topics, topic)
	}
	return topics
}

// ClientCount returns the number of active clients for a topic
func (h *SSEHub) ClientCount(topic string) int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()

	if clients, exists := h.clients[topic]; exists {
		return len(clients)
	}
	return 0
}
