package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/raaihank/redaction-review/internal/redaction"
	"go.uber.org/zap"
)

// Writer persists audit entries
type Writer interface {
	Insert(ctx context.Context, entry *Entry) error
	InsertBatch(ctx context.Context, entries []*Entry) (*BatchInsertResult, error)
}

// Recorder is an event sink that writes lifecycle events to a Writer in the
// background. Publish never blocks; events are dropped when the buffer is full.
type Recorder struct {
	writer        Writer
	logger        *zap.Logger
	events        chan redaction.Event
	batchSize     int
	flushInterval time.Duration

	mu      sync.RWMutex
	closed  bool
	done    chan struct{}
	dropped atomic.Int64
}

// NewRecorder creates a recorder and starts its writer goroutine
func NewRecorder(writer Writer, config *Config, logger *zap.Logger) *Recorder {
	bufferSize := config.BufferSize
	if bufferSize <= 0 {
		bufferSize = 256
	}
	batchSize := config.BatchSize
	if batchSize <= 0 {
		batchSize = 50
	}
	flushInterval := config.FlushInterval
	if flushInterval <= 0 {
		flushInterval = time.Second
	}

	r := &Recorder{
		writer:        writer,
		logger:        logger,
		events:        make(chan redaction.Event, bufferSize),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		done:          make(chan struct{}),
	}
	go r.run()
	return r
}

// Publish queues an event for recording
func (r *Recorder) Publish(ev redaction.Event) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}

	select {
	case r.events <- ev:
	default:
		r.logger.Warn("Audit buffer full, dropping event",
			zap.String("event_type", string(ev.Type)),
			zap.Int64("document_id", ev.DocumentID),
			zap.Int64("dropped_total", r.dropped.Add(1)))
	}
}

// Dropped returns the number of events dropped because the buffer was full
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Close stops accepting events and waits for queued events to be written
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.events)
	r.mu.Unlock()

	<-r.done
	return nil
}

func (r *Recorder) run() {
	defer close(r.done)

	ticker := time.NewTicker(r.flushInterval)
	defer ticker.Stop()

	batch := make([]*Entry, 0, r.batchSize)
	for {
		select {
		case ev, ok := <-r.events:
			if !ok {
				r.flush(batch)
				return
			}
			batch = append(batch, EntryFromEvent(ev))
			if len(batch) >= r.batchSize {
				r.flush(batch)
				batch = make([]*Entry, 0, r.batchSize)
			}
		case <-ticker.C:
			if len(batch) > 0 {
				r.flush(batch)
				batch = make([]*Entry, 0, r.batchSize)
			}
		}
	}
}

func (r *Recorder) flush(batch []*Entry) {
	if len(batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := r.writer.InsertBatch(ctx, batch)
	if err == nil {
		return
	}
	r.logger.Warn("Audit batch rejected, writing entries individually",
		zap.Error(err),
		zap.Int("entries", len(batch)))

	// One bad entry must not cost the rest of the batch
	failed := 0
	for _, entry := range batch {
		if err := r.writer.Insert(ctx, entry); err != nil {
			failed++
		}
	}
	if failed > 0 {
		r.logger.Error("Failed to write audit entries",
			zap.Int("failed", failed),
			zap.Int("entries", len(batch)))
	}
}
