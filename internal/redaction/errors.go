package redaction

import "errors"

var (
	// ErrNotFound is returned when a document or redaction id does not exist
	ErrNotFound = errors.New("not found")
	// ErrInvalidStatus is returned for a status outside pending/approved/rejected
	ErrInvalidStatus = errors.New("invalid status")
	// ErrEmptyText is returned when a manual redaction has no text to match
	ErrEmptyText = errors.New("redaction text is empty")
	// ErrDuplicate is returned when ingesting a document or redaction id twice
	ErrDuplicate = errors.New("duplicate id")
	// ErrInvalidQuery is returned for unknown review query parameters
	ErrInvalidQuery = errors.New("invalid query")
)
