package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

const schema = `
CREATE TABLE IF NOT EXISTS redaction_audit (
	id                 BIGSERIAL PRIMARY KEY,
	event_type         TEXT        NOT NULL,
	document_id        BIGINT      NOT NULL,
	redaction_ids      BIGINT[]    NOT NULL DEFAULT '{}',
	status             TEXT        NOT NULL DEFAULT '',
	actor_name         TEXT        NOT NULL DEFAULT '',
	actor_badge        TEXT        NOT NULL DEFAULT '',
	text               TEXT        NOT NULL DEFAULT '',
	redactions_applied INTEGER     NOT NULL DEFAULT 0,
	occurred_at        TIMESTAMPTZ NOT NULL,
	recorded_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_redaction_audit_document
	ON redaction_audit (document_id, occurred_at);`

const insertColumns = "event_type, document_id, redaction_ids, status, actor_name, actor_badge, text, redactions_applied, occurred_at"

// Store persists audit entries in PostgreSQL
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewStore creates a new audit store instance
func NewStore(config *Config, logger *zap.Logger) (*Store, error) {
	db, err := sqlx.Connect("postgres", config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	store := &Store{
		db:     db,
		logger: logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := store.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	logger.Info("Audit store initialized successfully",
		zap.String("database_url", maskDatabaseURL(config.DatabaseURL)),
		zap.Int("max_open_conns", config.MaxOpenConns),
		zap.Int("max_idle_conns", config.MaxIdleConns))

	return store, nil
}

// EnsureSchema creates the audit table when missing
func (s *Store) EnsureSchema(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create audit schema: %w", err)
	}
	return nil
}

// Insert records a single entry and fills in its id and recorded time
func (s *Store) Insert(ctx context.Context, entry *Entry) error {
	query := `
		INSERT INTO redaction_audit (` + insertColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, recorded_at`

	err := s.db.QueryRowxContext(ctx, query, entryArgs(entry)...).Scan(&entry.ID, &entry.RecordedAt)
	if err != nil {
		s.logger.Error("Failed to insert audit entry",
			zap.Error(err),
			zap.String("event_type", entry.EventType),
			zap.Int64("document_id", entry.DocumentID))
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}

	s.logger.Debug("Audit entry inserted",
		zap.Int64("id", entry.ID),
		zap.String("event_type", entry.EventType))
	return nil
}

// InsertBatch records multiple entries in one statement
func (s *Store) InsertBatch(ctx context.Context, entries []*Entry) (*BatchInsertResult, error) {
	if len(entries) == 0 {
		return &BatchInsertResult{}, nil
	}

	start := time.Now()
	result := &BatchInsertResult{}

	query, args := batchInsertQuery(entries)
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		result.Failed = int64(len(entries))
		s.logger.Error("Audit batch insert failed", zap.Error(err))
		return result, fmt.Errorf("batch insert failed: %w", err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		s.logger.Warn("Could not get rows affected", zap.Error(err))
		inserted = int64(len(entries))
	}

	result.Inserted = inserted
	result.Failed = int64(len(entries)) - inserted
	result.Duration = time.Since(start)

	s.logger.Debug("Audit batch insert completed",
		zap.Int64("inserted", result.Inserted),
		zap.Int64("failed", result.Failed),
		zap.Duration("duration", result.Duration))

	return result, nil
}

// ListByDocument returns the most recent entries for a document, oldest first
func (s *Store) ListByDocument(ctx context.Context, documentID int64, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT * FROM (
			SELECT id, ` + insertColumns + `, recorded_at
			FROM redaction_audit
			WHERE document_id = $1
			ORDER BY occurred_at DESC, id DESC
			LIMIT $2
		) recent
		ORDER BY occurred_at, id`

	var entries []Entry
	if err := s.db.SelectContext(ctx, &entries, query, documentID, limit); err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	return entries, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func entryArgs(e *Entry) []interface{} {
	return []interface{}{
		e.EventType,
		e.DocumentID,
		e.RedactionIDs,
		e.Status,
		e.ActorName,
		e.ActorBadge,
		e.Text,
		e.RedactionsApplied,
		e.OccurredAt,
	}
}

// batchInsertQuery builds a multi-row insert with positional parameters
func batchInsertQuery(entries []*Entry) (string, []interface{}) {
	const width = 9
	valueStrings := make([]string, 0, len(entries))
	valueArgs := make([]interface{}, 0, len(entries)*width)

	for i, e := range entries {
		placeholders := make([]string, width)
		for j := range placeholders {
			placeholders[j] = fmt.Sprintf("$%d", i*width+j+1)
		}
		valueStrings = append(valueStrings, "("+strings.Join(placeholders, ", ")+")")
		valueArgs = append(valueArgs, entryArgs(e)...)
	}

	query := fmt.Sprintf(`
		INSERT INTO redaction_audit (%s)
		VALUES %s`, insertColumns, strings.Join(valueStrings, ","))
	return query, valueArgs
}

// maskDatabaseURL masks the password in a database URL for logging
func maskDatabaseURL(url string) string {
	at := strings.LastIndex(url, "@")
	if at < 0 {
		return url
	}
	start := strings.Index(url, "://") + len("://")
	if start < len("://") || start > at {
		start = 0
	}
	colon := strings.LastIndex(url[start:at], ":")
	if colon < 0 {
		return url
	}
	return url[:start+colon+1] + "***" + url[at:]
}
