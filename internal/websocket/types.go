package websocket

import (
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/raaihank/redaction-review/internal/redaction"
)

// EventType represents the type of WebSocket event
type EventType string

const (
	// EventTypeStatusChanged is sent when one redaction changes status
	EventTypeStatusChanged = EventType(redaction.EventStatusChanged)
	// EventTypeBatchUpdated is sent when a batch of redactions changes status
	EventTypeBatchUpdated = EventType(redaction.EventBatchUpdated)
	// EventTypeManualAdded is sent when a reviewer adds a manual redaction
	EventTypeManualAdded = EventType(redaction.EventManualAdded)
	// EventTypePendingResolved is sent when all pending redactions are resolved
	EventTypePendingResolved = EventType(redaction.EventPendingResolved)
	// EventTypeConnection represents connection events
	EventTypeConnection EventType = "connection"
	// EventTypePong answers a client ping
	EventTypePong EventType = "pong"
)

// Event represents a WebSocket event sent to clients
type Event struct {
	Type       EventType   `json:"type"`
	Timestamp  time.Time   `json:"timestamp"`
	DocumentID int64       `json:"document_id,omitempty"`
	Data       interface{} `json:"data"`
}

// ConnectionEvent represents WebSocket connection events
type ConnectionEvent struct {
	Action    string `json:"action"` // "connected", "disconnected"
	ClientID  string `json:"client_id"`
	ClientIP  string `json:"client_ip"`
	UserAgent string `json:"user_agent,omitempty"`
	Message   string `json:"message,omitempty"`
}

// ClientMessage represents messages sent from clients to server
type ClientMessage struct {
	Type string               `json:"type"`
	Data *SubscriptionRequest `json:"data,omitempty"`
}

// SubscriptionRequest represents a client subscription request. An empty
// event list subscribes to every event type.
type SubscriptionRequest struct {
	Events []EventType   `json:"events"`
	Filter *EventFilter `json:"filter,omitempty"`
}

// EventFilter narrows the events a client receives
type EventFilter struct {
	// DocumentIDs limits lifecycle events to these documents
	DocumentIDs []int64 `json:"document_ids,omitempty"`
}

// Matches reports whether event passes the subscription
func (s *SubscriptionRequest) Matches(event Event) bool {
	if s == nil {
		return true
	}
	if len(s.Events) > 0 && !slices.Contains(s.Events, event.Type) {
		return false
	}
	if s.Filter != nil && len(s.Filter.DocumentIDs) > 0 && event.DocumentID != 0 {
		return slices.Contains(s.Filter.DocumentIDs, event.DocumentID)
	}
	return true
}

// Client represents a WebSocket client connection
type Client struct {
	ID          string
	Conn        *websocket.Conn
	Send        chan Event
	ConnectedAt time.Time
	IP          string
	UserAgent   string

	mu           sync.RWMutex
	subscription *SubscriptionRequest
}

// Subscription returns the client's current subscription, nil for all events
func (c *Client) Subscription() *SubscriptionRequest {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subscription
}

func (c *Client) setSubscription(s *SubscriptionRequest) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscription = s
}
