package redaction

import "time"

// EventType names a lifecycle change
type EventType string

const (
	// EventStatusChanged is emitted by SetStatus
	EventStatusChanged EventType = "status_changed"
	// EventBatchUpdated is emitted by BatchSetStatus
	EventBatchUpdated EventType = "batch_updated"
	// EventManualAdded is emitted by InsertManual
	EventManualAdded EventType = "manual_added"
	// EventPendingResolved is emitted by SetAllPending
	EventPendingResolved EventType = "pending_resolved"
)

// Event describes a completed lifecycle operation
type Event struct {
	Type              EventType `json:"type"`
	DocumentID        int64     `json:"document_id"`
	RedactionIDs      []int64   `json:"redaction_ids"`
	Status            Status    `json:"status"`
	Actor             *Actor    `json:"actor,omitempty"`
	Text              string    `json:"text,omitempty"`
	RedactionsApplied int       `json:"redactions_applied"`
	At                time.Time `json:"at"`
}

// EventSink receives lifecycle events. Implementations must not block.
type EventSink interface {
	Publish(Event)
}

// EventSinkFunc adapts a function to EventSink
type EventSinkFunc func(Event)

// Publish calls f(e)
func (f EventSinkFunc) Publish(e Event) { f(e) }
