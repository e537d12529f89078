package redaction

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Manager applies reviewer decisions to the documents of a Store
type Manager struct {
	store  *Store
	logger *zap.Logger
	now    func() time.Time
	sinks  []EventSink

	// mu holds each store update together with its publish so sinks see
	// events in the order the store applied them
	mu sync.Mutex
}

// Option configures a Manager
type Option func(*Manager)

// WithClock overrides the time source used for audit stamps
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithSink registers an event sink notified after every successful operation.
// Sinks are called in operation order and must not block.
func WithSink(sink EventSink) Option {
	return func(m *Manager) {
		if sink != nil {
			m.sinks = append(m.sinks, sink)
		}
	}
}

// NewManager creates a lifecycle manager over store
func NewManager(store *Store, logger *zap.Logger, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Store returns the store the manager operates on
func (m *Manager) Store() *Store {
	return m.store
}

// SetStatus sets the status of one redaction. Setting Pending is the undo path.
func (m *Manager) SetStatus(docID, redactionID int64, status Status, actor *Actor) (Document, error) {
	if !status.Valid() {
		return Document{}, fmt.Errorf("%s: %w", status, ErrInvalidStatus)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	at := m.now().UTC()
	doc, err := m.store.Update(docID, func(d *Document) error {
		r := d.redaction(redactionID)
		if r == nil {
			return fmt.Errorf("redaction %d in document %d: %w", redactionID, docID, ErrNotFound)
		}
		applyStatus(r, status, actor, at)
		return nil
	})
	if err != nil {
		m.logger.Warn("Failed to update redaction status",
			zap.Int64("document_id", docID),
			zap.Int64("redaction_id", redactionID),
			zap.Stringer("status", status),
			zap.Error(err))
		return Document{}, err
	}

	m.logger.Debug("Redaction status updated",
		zap.Int64("document_id", docID),
		zap.Int64("redaction_id", redactionID),
		zap.Stringer("status", status),
		zap.Int("redactions_applied", doc.RedactionsApplied))

	m.publish(Event{
		Type:              EventStatusChanged,
		DocumentID:        docID,
		RedactionIDs:      []int64{redactionID},
		Status:            status,
		Actor:             actor,
		RedactionsApplied: doc.RedactionsApplied,
		At:                at,
	})
	return doc, nil
}

// BatchSetStatus sets the status of every listed redaction that exists in the
// document. Unknown ids are skipped.
func (m *Manager) BatchSetStatus(docID int64, redactionIDs []int64, status Status, actor *Actor) (Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	at := m.now().UTC()
	doc, applied, err := m.batch(docID, redactionIDs, status, actor, at)
	if err != nil {
		return Document{}, err
	}
	m.publish(Event{
		Type:              EventBatchUpdated,
		DocumentID:        docID,
		RedactionIDs:      applied,
		Status:            status,
		Actor:             actor,
		RedactionsApplied: doc.RedactionsApplied,
		At:                at,
	})
	return doc, nil
}

// SetAllPending applies status to every non-manual redaction that is pending
// when the call starts.
func (m *Manager) SetAllPending(docID int64, status Status, actor *Actor) (Document, error) {
	if !status.Valid() {
		return Document{}, fmt.Errorf("%s: %w", status, ErrInvalidStatus)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var (
		applied []int64
		at      = m.now().UTC()
	)
	doc, err := m.store.Update(docID, func(d *Document) error {
		var pending []*Redaction
		for i := range d.Redactions {
			if r := &d.Redactions[i]; r.Status == Pending && !r.IsManual {
				pending = append(pending, r)
			}
		}
		for _, r := range pending {
			applyStatus(r, status, actor, at)
			applied = append(applied, r.ID)
		}
		return nil
	})
	if err != nil {
		m.logger.Warn("Failed to resolve pending redactions",
			zap.Int64("document_id", docID),
			zap.Stringer("status", status),
			zap.Error(err))
		return Document{}, err
	}

	m.logger.Info("Pending redactions resolved",
		zap.Int64("document_id", docID),
		zap.Stringer("status", status),
		zap.Int("resolved", len(applied)),
		zap.Int("redactions_applied", doc.RedactionsApplied))

	m.publish(Event{
		Type:              EventPendingResolved,
		DocumentID:        docID,
		RedactionIDs:      applied,
		Status:            status,
		Actor:             actor,
		RedactionsApplied: doc.RedactionsApplied,
		At:                at,
	})
	return doc, nil
}

// InsertManual appends a reviewer-created redaction. Manual redactions are
// created approved and count towards both detected and applied totals.
func (m *Manager) InsertManual(docID int64, text, location string, actor *Actor) (Document, Redaction, error) {
	if strings.TrimSpace(text) == "" {
		return Document{}, Redaction{}, ErrEmptyText
	}
	if location == "" {
		location = DefaultManualLocation
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	at := m.now().UTC()
	var created Redaction
	doc, err := m.store.Update(docID, func(d *Document) error {
		r := Redaction{
			ID:       nextID(d),
			Text:     text,
			Category: CategoryManual,
			Location: location,
			Status:   Approved,
			IsManual: true,
		}
		if actor != nil {
			r.CreatedBy = actor.Name
			r.CreatedByBadge = actor.Badge
		}
		stamp := at
		r.CreatedAt = &stamp

		d.Redactions = append(d.Redactions, r)
		d.RedactionsDetected++
		created = r.clone()
		return nil
	})
	if err != nil {
		m.logger.Warn("Failed to add manual redaction",
			zap.Int64("document_id", docID),
			zap.Error(err))
		return Document{}, Redaction{}, err
	}

	m.logger.Info("Manual redaction added",
		zap.Int64("document_id", docID),
		zap.Int64("redaction_id", created.ID),
		zap.String("location", location),
		zap.Int("redactions_detected", doc.RedactionsDetected))

	m.publish(Event{
		Type:              EventManualAdded,
		DocumentID:        docID,
		RedactionIDs:      []int64{created.ID},
		Status:            Approved,
		Actor:             actor,
		Text:              text,
		RedactionsApplied: doc.RedactionsApplied,
		At:                at,
	})
	return doc, created, nil
}

func (m *Manager) batch(docID int64, redactionIDs []int64, status Status, actor *Actor, at time.Time) (Document, []int64, error) {
	if !status.Valid() {
		return Document{}, nil, fmt.Errorf("%s: %w", status, ErrInvalidStatus)
	}

	var (
		applied []int64
		skipped int
	)
	doc, err := m.store.Update(docID, func(d *Document) error {
		for _, id := range redactionIDs {
			r := d.redaction(id)
			if r == nil {
				skipped++
				continue
			}
			applyStatus(r, status, actor, at)
			applied = append(applied, id)
		}
		return nil
	})
	if err != nil {
		m.logger.Warn("Failed to batch update redactions",
			zap.Int64("document_id", docID),
			zap.Stringer("status", status),
			zap.Error(err))
		return Document{}, nil, err
	}

	m.logger.Info("Redactions batch updated",
		zap.Int64("document_id", docID),
		zap.Stringer("status", status),
		zap.Int("updated", len(applied)),
		zap.Int("skipped", skipped),
		zap.Int("redactions_applied", doc.RedactionsApplied))
	return doc, applied, nil
}

func (m *Manager) publish(e Event) {
	for _, sink := range m.sinks {
		sink.Publish(e)
	}
}

func applyStatus(r *Redaction, status Status, actor *Actor, at time.Time) {
	r.Status = status
	if actor != nil {
		r.ModifiedBy = actor.Name
		r.ModifiedByBadge = actor.Badge
		stamp := at
		r.ModifiedAt = &stamp
	}
}

// nextID returns an id one above the largest in the document
func nextID(d *Document) int64 {
	var highest int64
	for _, r := range d.Redactions {
		if r.ID > highest {
			highest = r.ID
		}
	}
	return highest + 1
}
