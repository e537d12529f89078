package audit

import (
	"time"

	"github.com/lib/pq"
	"github.com/raaihank/redaction-review/internal/redaction"
)

// Entry is one recorded lifecycle decision
type Entry struct {
	ID                int64         `db:"id" json:"id"`
	EventType         string        `db:"event_type" json:"event_type"`
	DocumentID        int64         `db:"document_id" json:"document_id"`
	RedactionIDs      pq.Int64Array `db:"redaction_ids" json:"redaction_ids"`
	Status            string        `db:"status" json:"status,omitempty"`
	ActorName         string        `db:"actor_name" json:"actor_name,omitempty"`
	ActorBadge        string        `db:"actor_badge" json:"actor_badge,omitempty"`
	Text              string        `db:"text" json:"text,omitempty"`
	RedactionsApplied int           `db:"redactions_applied" json:"redactions_applied"`
	OccurredAt        time.Time     `db:"occurred_at" json:"occurred_at"`
	RecordedAt        time.Time     `db:"recorded_at" json:"recorded_at"`
}

// Config contains audit database configuration
type Config struct {
	Enabled         bool          `yaml:"enabled" mapstructure:"enabled"`
	DatabaseURL     string        `yaml:"database_url" mapstructure:"database_url"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	BufferSize      int           `yaml:"buffer_size" mapstructure:"buffer_size"`
	BatchSize       int           `yaml:"batch_size" mapstructure:"batch_size"`
	FlushInterval   time.Duration `yaml:"flush_interval" mapstructure:"flush_interval"`
}

// BatchInsertResult represents the result of a batch insert operation
type BatchInsertResult struct {
	Inserted int64         `json:"inserted"`
	Failed   int64         `json:"failed"`
	Duration time.Duration `json:"duration"`
}

// EntryFromEvent converts a lifecycle event into an audit entry
func EntryFromEvent(ev redaction.Event) *Entry {
	e := &Entry{
		EventType:         string(ev.Type),
		DocumentID:        ev.DocumentID,
		RedactionIDs:      pq.Int64Array(append([]int64{}, ev.RedactionIDs...)),
		Status:            ev.Status.String(),
		Text:              ev.Text,
		RedactionsApplied: ev.RedactionsApplied,
		OccurredAt:        ev.At,
	}
	if ev.Actor != nil {
		e.ActorName = ev.Actor.Name
		e.ActorBadge = ev.Actor.Badge
	}
	return e
}
