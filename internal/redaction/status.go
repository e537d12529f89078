package redaction

import "fmt"

// Status is the review disposition of a redaction
type Status uint8

const (
	// Pending means no reviewer decision has been made yet
	Pending Status = iota
	// Approved means the phrase will be redacted
	Approved
	// Rejected means the phrase will be kept
	Rejected
)

var statusNames = [...]string{
	Pending:  "pending",
	Approved: "approved",
	Rejected: "rejected",
}

// ParseStatus converts the text form of a status into a Status. Only the
// exact lower-case names are accepted.
func ParseStatus(s string) (Status, error) {
	for i, name := range statusNames {
		if s == name {
			return Status(i), nil
		}
	}
	return Pending, fmt.Errorf("%q: %w", s, ErrInvalidStatus)
}

// Valid reports whether s is one of the three known states
func (s Status) Valid() bool {
	return int(s) < len(statusNames)
}

func (s Status) String() string {
	if !s.Valid() {
		return fmt.Sprintf("status(%d)", uint8(s))
	}
	return statusNames[s]
}

// MarshalText implements encoding.TextMarshaler
func (s Status) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%d: %w", uint8(s), ErrInvalidStatus)
	}
	return []byte(statusNames[s]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
