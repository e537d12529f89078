package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/raaihank/redaction-review/internal/redaction"
)

// DetectionRecord is one flat detector finding as found in CSV and Parquet input
type DetectionRecord struct {
	DocumentID int64    `csv:"document_id" parquet:"document_id" json:"document_id"`
	FileName   string   `csv:"file_name" parquet:"file_name" json:"file_name"`
	Text       string   `csv:"text" parquet:"text" json:"text"`
	Category   string   `csv:"category" parquet:"category" json:"category"`
	Location   string   `csv:"location" parquet:"location" json:"location"`
	Confidence *float64 `csv:"confidence" parquet:"confidence,optional" json:"confidence"`
	Status     string   `csv:"status" parquet:"status" json:"status"`
	Paragraph  string   `csv:"paragraph" parquet:"paragraph,optional" json:"paragraph,omitempty"`
}

// Fixture is a complete case snapshot in JSON form
type Fixture struct {
	Case      *FixtureCase      `json:"scanInfo,omitempty"`
	Reviewer  *redaction.Actor  `json:"currentUser,omitempty"`
	Documents []FixtureDocument `json:"documents"`
}

// FixtureCase describes the case in a fixture. Totals are derived from the
// documents, so any totals in the file are ignored.
type FixtureCase struct {
	CaseNumber string    `json:"caseNumber"`
	Status     string    `json:"status"`
	ScanDate   time.Time `json:"scanDate"`
}

// FixtureDocument is one document in a fixture
type FixtureDocument struct {
	ID                 int64              `json:"id"`
	FileName           string             `json:"fileName"`
	UploadDate         time.Time          `json:"uploadDate"`
	ReviewStatus       string             `json:"reviewStatus"`
	RedactionsDetected int                `json:"redactionsDetected"`
	ConfidenceLevel    float64            `json:"confidenceLevel"`
	FileSize           string             `json:"fileSize"`
	DocumentData       []string           `json:"documentData"`
	Redactions         []FixtureRedaction `json:"redactions"`
}

// FixtureRedaction is one redaction in a fixture document
type FixtureRedaction struct {
	ID         int64      `json:"id"`
	Text       string     `json:"text"`
	Category   string     `json:"category"`
	Location   string     `json:"location"`
	Confidence Confidence `json:"confidence"`
	Status     string     `json:"status"`
	IsManual   bool       `json:"isManual"`

	ModifiedBy      string     `json:"modifiedBy"`
	ModifiedByBadge string     `json:"modifiedByBadge"`
	ModifiedAt      *time.Time `json:"modifiedAt"`
	CreatedBy       string     `json:"createdBy"`
	CreatedByBadge  string     `json:"createdByBadge"`
	CreatedAt       *time.Time `json:"createdAt"`
}

// Confidence accepts a number, a numeric string, null or "N/A"
type Confidence struct {
	Value *float64
}

// UnmarshalJSON implements json.Unmarshaler
func (c *Confidence) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		c.Value = nil
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" || strings.EqualFold(s, "n/a") {
			c.Value = nil
			return nil
		}
		v, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
		if err != nil {
			return fmt.Errorf("invalid confidence %q", s)
		}
		c.Value = &v
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("invalid confidence %s", data)
	}
	c.Value = &v
	return nil
}

// Dataset is the result of reading an input file
type Dataset struct {
	Case      *redaction.CaseInfo  `json:"case,omitempty"`
	Reviewer  *redaction.Actor     `json:"reviewer,omitempty"`
	Documents []redaction.Document `json:"documents"`
}

// Result summarizes an ingestion run
type Result struct {
	TotalRecords   int64             `json:"total_records"`
	ValidRecords   int64             `json:"valid_records"`
	InvalidRecords int64             `json:"invalid_records"`
	Documents      int               `json:"documents"`
	Redactions     int               `json:"redactions"`
	Duration       time.Duration     `json:"duration"`
	Errors         []ValidationError `json:"errors,omitempty"`
	// Reviewer is the current user named by a case fixture
	Reviewer *redaction.Actor `json:"reviewer,omitempty"`
}

// Config contains ingestion configuration
type Config struct {
	// BatchSize is the number of records between progress reports
	BatchSize int `yaml:"batch_size" mapstructure:"batch_size"`
	// MaxErrors caps the validation errors kept in a Result
	MaxErrors int `yaml:"max_errors" mapstructure:"max_errors"`
}

// ValidationError represents a data validation error
type ValidationError struct {
	Row     int64  `json:"row"`
	Field   string `json:"field"`
	Value   string `json:"value"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("row %d: %s %q: %s", e.Row, e.Field, e.Value, e.Message)
}

// FileFormat represents supported file formats
type FileFormat string

const (
	FormatCSV     FileFormat = "csv"
	FormatParquet FileFormat = "parquet"
	FormatJSON    FileFormat = "json"
)

// DetectFileFormat detects file format from extension
func DetectFileFormat(filename string) (FileFormat, error) {
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".csv":
		return FormatCSV, nil
	case ".parquet":
		return FormatParquet, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported file format %q", ext)
	}
}
