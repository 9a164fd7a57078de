package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/raaihank/docmask/internal/pipeline"
)

// EventType represents the type of WebSocket event
type EventType string

const (
	// EventTypeJobProgress carries OCR progress of the current job
	EventTypeJobProgress EventType = "job_progress"
	// EventTypeJobState carries job lifecycle transitions
	EventTypeJobState EventType = "job_state"
	// EventTypeConnection represents connection events
	EventTypeConnection EventType = "connection"
	// EventTypePong answers a client ping
	EventTypePong EventType = "pong"
)

// Event represents a WebSocket event sent to clients
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// JobProgressEvent is the payload of a job_progress event
type JobProgressEvent = pipeline.ProgressUpdate

// JobStateEvent is the payload of a job_state event
type JobStateEvent = pipeline.StateChange

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
	Type   string      `json:"type"`
	Events []EventType `json:"events,omitempty"`
}

// Client represents a WebSocket client connection
type Client struct {
	ID          string
	Conn        *websocket.Conn
	Send        chan Event
	ConnectedAt time.Time
	IP          string
	UserAgent   string

	mu       sync.RWMutex
	events   map[EventType]bool // nil means all events
	lastPing time.Time
}

func (c *Client) subscribe(events []EventType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(events) == 0 {
		c.events = nil
		return
	}
	c.events = make(map[EventType]bool, len(events))
	for _, e := range events {
		c.events[e] = true
	}
}

func (c *Client) wants(eventType EventType) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.events == nil || c.events[eventType]
}

func (c *Client) touch() {
	c.mu.Lock()
	c.lastPing = time.Now()
	c.mu.Unlock()
}
