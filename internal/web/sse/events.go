package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// EventType represents the type of SSE event
type EventType string

const (
	EventOrderRecorded      EventType = "order_recorded"
	EventOrderStatusChanged EventType = "order_status_changed"
	EventRecordCreated      EventType = "record_created"
	EventRecordUpdated      EventType = "record_updated"
	EventRecordDeleted      EventType = "record_deleted"

	EventMetricsSampled    EventType = "metrics_sampled"
	EventMaintenanceRun    EventType = "maintenance_run"
	EventMaintenanceFailed EventType = "maintenance_failed"
	EventBackupCompleted   EventType = "backup_completed"
	EventHeartbeat         EventType = "heartbeat"
	EventConnected         EventType = "connected"
)

// DefaultHeartbeat is used when NewBroker is given a non-positive interval.
const DefaultHeartbeat = 30 * time.Second

// Event represents an SSE event to be sent to clients
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data"`
}

// Client is one subscriber. Messages carries pre-encoded event JSON.
type Client struct {
	ID       string
	Messages chan Message
}

// Message is an encoded event ready to be written to a client.
type Message struct {
	Type EventType
	Data []byte
}

// Broker manages client subscriptions and event broadcasting. SSE and
// websocket clients share it.
type Broker struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	broadcast  chan Event
	done       chan struct{}
	stopOnce   sync.Once
	heartbeat  time.Duration
	mu         sync.RWMutex
}

// NewBroker creates a new broker and starts its dispatch loop
func NewBroker(heartbeat time.Duration) *Broker {
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	b := &Broker{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan Event, 100),
		done:       make(chan struct{}),
		heartbeat:  heartbeat,
	}
	go b.run()
	return b
}

// run handles client registration and event broadcasting
func (b *Broker) run() {
	heartbeatTicker := time.NewTicker(b.heartbeat)
	defer heartbeatTicker.Stop()

	for {
		select {
		case <-b.done:
			// Graceful shutdown - close all client channels
			b.mu.Lock()
			for _, client := range b.clients {
				close(client.Messages)
			}
			b.clients = make(map[string]*Client)
			b.mu.Unlock()
			log.Debug().Msg("Event broker stopped")
			return

		case client := <-b.register:
			b.mu.Lock()
			b.clients[client.ID] = client
			total := len(b.clients)
			b.mu.Unlock()
			log.Debug().Str("client_id", client.ID).Int("total_clients", total).Msg("Event client connected")

		case client := <-b.unregister:
			b.mu.Lock()
			if _, ok := b.clients[client.ID]; ok {
				delete(b.clients, client.ID)
				close(client.Messages)
			}
			total := len(b.clients)
			b.mu.Unlock()
			log.Debug().Str("client_id", client.ID).Int("total_clients", total).Msg("Event client disconnected")

		case event := <-b.broadcast:
			data, err := json.Marshal(event)
			if err != nil {
				log.Error().Err(err).Msg("Failed to marshal event")
				continue
			}
			msg := Message{Type: event.Type, Data: data}

			b.mu.RLock()
			for _, client := range b.clients {
				select {
				case client.Messages <- msg:
				default:
					// Client buffer full, skip this message
					log.Warn().Str("client_id", client.ID).Msg("Event client buffer full, dropping message")
				}
			}
			b.mu.RUnlock()

		case <-heartbeatTicker.C:
			b.Broadcast(Event{Type: EventHeartbeat, Data: map[string]any{"time": time.Now().Unix()}})
		}
	}
}

// Broadcast sends an event to all connected clients
func (b *Broker) Broadcast(event Event) {
	select {
	case b.broadcast <- event:
	default:
		log.Warn().Str("event_type", string(event.Type)).Msg("Broadcast channel full, dropping event")
	}
}

// Subscribe registers a new client. The returned function unregisters it
// and is safe to call after Stop.
func (b *Broker) Subscribe() (*Client, func()) {
	client := &Client{
		ID:       uuid.NewString(),
		Messages: make(chan Message, 32),
	}

	select {
	case b.register <- client:
	case <-b.done:
		close(client.Messages)
		return client, func() {}
	}

	return client, func() {
		select {
		case b.unregister <- client:
		case <-b.done:
			// Broker is shutting down, skip unregister
		}
	}
}

// Stop gracefully shuts down the broker
func (b *Broker) Stop() {
	b.stopOnce.Do(func() { close(b.done) })
}

// ServeHTTP streams events as text/event-stream
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Check if flushing is supported
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	client, unsubscribe := b.Subscribe()
	defer unsubscribe()

	data, _ := json.Marshal(Event{
		Type: EventConnected,
		Data: map[string]any{
			"client_id": client.ID,
			"time":      time.Now().Unix(),
		},
	})
	_, _ = w.Write(formatSSEMessage(string(EventConnected), data))
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-client.Messages:
			if !ok {
				return
			}
			_, _ = w.Write(formatSSEMessage(string(msg.Type), msg.Data))
			flusher.Flush()
		}
	}
}

// ClientCount returns the number of connected clients
func (b *Broker) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// formatSSEMessage formats an SSE message with event type and data
func formatSSEMessage(eventType string, data []byte) []byte {
	return fmt.Appendf(nil, "event: %s\ndata: %s\n\n", eventType, data)
}
