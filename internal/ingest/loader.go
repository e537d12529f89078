package ingest

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/raaihank/redaction-review/internal/redaction"
	"github.com/segmentio/parquet-go"
	"go.uber.org/zap"
)

// DefaultReviewStatus is given to documents built from flat detection rows
const DefaultReviewStatus = "Pending Review"

// Loader reads detector output and case fixtures into documents
type Loader struct {
	config *Config
	logger *zap.Logger
}

// NewLoader creates a new loader
func NewLoader(config *Config, logger *zap.Logger) *Loader {
	if config == nil {
		config = &Config{}
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 1000
	}
	if config.MaxErrors <= 0 {
		config.MaxErrors = 100
	}
	return &Loader{config: config, logger: logger}
}

// Load reads a file and adds its documents to store. The case info from a
// fixture replaces the store's case info.
func (l *Loader) Load(ctx context.Context, filePath string, store *redaction.Store) (*Result, error) {
	dataset, result, err := l.Read(ctx, filePath)
	if err != nil {
		return result, err
	}

	for _, doc := range dataset.Documents {
		if err := store.Add(doc); err != nil {
			return result, fmt.Errorf("failed to add document %d: %w", doc.ID, err)
		}
	}
	if dataset.Case != nil {
		store.SetCase(*dataset.Case)
	}

	l.logger.Info("Documents loaded into store",
		zap.String("file", filePath),
		zap.Int("documents", result.Documents),
		zap.Int("redactions", result.Redactions))

	return result, nil
}

// Read parses a dataset file (CSV, Parquet, or JSON) without touching a store
func (l *Loader) Read(ctx context.Context, filePath string) (*Dataset, *Result, error) {
	start := time.Now()
	result := &Result{}

	format, err := DetectFileFormat(filePath)
	if err != nil {
		return nil, result, err
	}

	l.logger.Info("Starting ingestion",
		zap.String("file", filePath),
		zap.String("format", string(format)))

	file, err := os.Open(filePath)
	if err != nil {
		return nil, result, fmt.Errorf("failed to open input file: %w", err)
	}
	defer file.Close()

	var dataset *Dataset
	switch format {
	case FormatCSV:
		dataset, err = l.readCSV(ctx, file, result)
	case FormatParquet:
		dataset, err = l.readParquet(ctx, file, result)
	case FormatJSON:
		dataset, err = l.readJSON(ctx, file, result)
	}
	if err != nil {
		return nil, result, fmt.Errorf("%s processing failed: %w", format, err)
	}

	result.Documents = len(dataset.Documents)
	result.Reviewer = dataset.Reviewer
	for _, d := range dataset.Documents {
		result.Redactions += len(d.Redactions)
	}
	result.Duration = time.Since(start)

	l.logger.Info("Ingestion completed",
		zap.Int64("total_records", result.TotalRecords),
		zap.Int64("valid_records", result.ValidRecords),
		zap.Int64("invalid_records", result.InvalidRecords),
		zap.Int("documents", result.Documents),
		zap.Duration("duration", result.Duration))

	return dataset, result, nil
}

// readCSV reads flat detection rows; columns are matched by header name
func (l *Loader) readCSV(ctx context.Context, r io.Reader, result *Result) (*Dataset, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"document_id", "text"} {
		if _, ok := columns[required]; !ok {
			return nil, fmt.Errorf("CSV header missing required column %q", required)
		}
	}

	l.logger.Debug("CSV header detected", zap.Strings("columns", header))

	raw := func(row []string, name string) string {
		i, ok := columns[name]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}
	field := func(row []string, name string) string {
		return strings.TrimSpace(raw(row, name))
	}

	g := newGrouper()
	var row int64
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		row++
		if err != nil {
			l.invalid(result, ValidationError{Row: row, Field: "row", Message: err.Error()})
			continue
		}

		rec := DetectionRecord{
			FileName:  field(record, "file_name"),
			Text:      raw(record, "text"),
			Category:  field(record, "category"),
			Location:  field(record, "location"),
			Status:    field(record, "status"),
			Paragraph: raw(record, "paragraph"),
		}
		idStr := field(record, "document_id")
		rec.DocumentID, err = strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			l.invalid(result, ValidationError{Row: row, Field: "document_id", Value: idStr, Message: "not an integer"})
			continue
		}
		if c := field(record, "confidence"); c != "" && !strings.EqualFold(c, "n/a") {
			v, err := strconv.ParseFloat(strings.TrimSuffix(c, "%"), 64)
			if err != nil {
				l.invalid(result, ValidationError{Row: row, Field: "confidence", Value: c, Message: "not a number"})
				continue
			}
			rec.Confidence = &v
		}

		l.accept(g, row, rec, result)
	}

	return &Dataset{Documents: g.documents()}, nil
}

// readParquet reads flat detection rows from a Parquet file
func (l *Loader) readParquet(ctx context.Context, file *os.File, result *Result) (*Dataset, error) {
	reader := parquet.NewReader(file)
	defer reader.Close()

	g := newGrouper()
	var row int64
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var rec DetectionRecord
		err := reader.Read(&rec)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read Parquet record: %w", err)
		}
		row++
		l.accept(g, row, rec, result)
	}

	return &Dataset{Documents: g.documents()}, nil
}

// readJSON reads a complete case fixture
func (l *Loader) readJSON(ctx context.Context, r io.Reader, result *Result) (*Dataset, error) {
	var fixture Fixture
	if err := json.NewDecoder(r).Decode(&fixture); err != nil {
		return nil, fmt.Errorf("failed to decode fixture: %w", err)
	}

	dataset := &Dataset{Reviewer: fixture.Reviewer}
	if fixture.Case != nil {
		dataset.Case = &redaction.CaseInfo{
			CaseNumber: fixture.Case.CaseNumber,
			Status:     fixture.Case.Status,
			ScanDate:   fixture.Case.ScanDate,
		}
	}

	var row int64
	for _, fd := range fixture.Documents {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		doc := redaction.Document{
			ID:                 fd.ID,
			FileName:           fd.FileName,
			ReviewStatus:       fd.ReviewStatus,
			RedactionsDetected: fd.RedactionsDetected,
			ConfidenceLevel:    fd.ConfidenceLevel,
			UploadDate:         fd.UploadDate,
			FileSize:           fd.FileSize,
			Paragraphs:         fd.DocumentData,
			Redactions:         make([]redaction.Redaction, 0, len(fd.Redactions)),
		}

		for _, fr := range fd.Redactions {
			row++
			status := fr.Status
			if fr.IsManual && status == "" {
				status = redaction.Approved.String()
			}
			red, verr := validateRedaction(row, fr.Text, fr.Confidence.Value, status)
			if verr != nil {
				l.invalid(result, *verr)
				continue
			}
			red.ID = fr.ID
			red.Category = fr.Category
			red.Location = fr.Location
			red.IsManual = fr.IsManual
			red.ModifiedBy, red.ModifiedByBadge, red.ModifiedAt = fr.ModifiedBy, fr.ModifiedByBadge, fr.ModifiedAt
			red.CreatedBy, red.CreatedByBadge, red.CreatedAt = fr.CreatedBy, fr.CreatedByBadge, fr.CreatedAt
			if red.IsManual && red.Category == "" {
				red.Category = redaction.CategoryManual
			}
			doc.Redactions = append(doc.Redactions, red)
			l.valid(result)
		}

		if doc.RedactionsDetected < len(doc.Redactions) {
			doc.RedactionsDetected = len(doc.Redactions)
		}
		dataset.Documents = append(dataset.Documents, doc)
	}

	return dataset, nil
}

func (l *Loader) accept(g *grouper, row int64, rec DetectionRecord, result *Result) {
	if rec.DocumentID <= 0 {
		l.invalid(result, ValidationError{Row: row, Field: "document_id", Value: strconv.FormatInt(rec.DocumentID, 10), Message: "must be positive"})
		return
	}
	r, verr := validateRedaction(row, rec.Text, rec.Confidence, rec.Status)
	if verr != nil {
		l.invalid(result, *verr)
		return
	}
	r.Category = rec.Category
	r.Location = rec.Location
	g.add(rec, r)
	l.valid(result)
}

func (l *Loader) valid(result *Result) {
	result.TotalRecords++
	result.ValidRecords++
	if result.TotalRecords%int64(l.config.BatchSize) == 0 {
		l.logger.Debug("Ingestion progress", zap.Int64("records", result.TotalRecords))
	}
}

func (l *Loader) invalid(result *Result, verr ValidationError) {
	result.TotalRecords++
	result.InvalidRecords++
	if len(result.Errors) < l.config.MaxErrors {
		result.Errors = append(result.Errors, verr)
	}
	l.logger.Warn("Skipping invalid record",
		zap.Int64("row", verr.Row),
		zap.String("field", verr.Field),
		zap.String("reason", verr.Message))
}

// validateRedaction checks the fields every input format shares
func validateRedaction(row int64, text string, confidence *float64, status string) (redaction.Redaction, *ValidationError) {
	// The phrase is matched literally, so it is stored exactly as detected
	if strings.TrimSpace(text) == "" {
		return redaction.Redaction{}, &ValidationError{Row: row, Field: "text", Message: "must not be empty"}
	}
	if confidence != nil && (math.IsNaN(*confidence) || *confidence < 0 || *confidence > 100) {
		return redaction.Redaction{}, &ValidationError{Row: row, Field: "confidence", Value: strconv.FormatFloat(*confidence, 'f', -1, 64), Message: "must be between 0 and 100"}
	}
	s := redaction.Pending
	if status != "" {
		var err error
		if s, err = redaction.ParseStatus(status); err != nil {
			msg := err.Error()
			if errors.Is(err, redaction.ErrInvalidStatus) {
				msg = "must be pending, approved or rejected"
			}
			return redaction.Redaction{}, &ValidationError{Row: row, Field: "status", Value: status, Message: msg}
		}
	}
	var c *float64
	if confidence != nil {
		c = redaction.Float64(*confidence)
	}
	return redaction.Redaction{Text: text, Confidence: c, Status: s}, nil
}

// grouper collects flat rows into documents in first-seen order
type grouper struct {
	order []int64
	docs  map[int64]*redaction.Document
}

func newGrouper() *grouper {
	return &grouper{docs: make(map[int64]*redaction.Document)}
}

func (g *grouper) add(rec DetectionRecord, r redaction.Redaction) {
	doc, ok := g.docs[rec.DocumentID]
	if !ok {
		doc = &redaction.Document{
			ID:           rec.DocumentID,
			FileName:     rec.FileName,
			ReviewStatus: DefaultReviewStatus,
		}
		g.docs[rec.DocumentID] = doc
		g.order = append(g.order, rec.DocumentID)
	}
	if doc.FileName == "" {
		doc.FileName = rec.FileName
	}
	if rec.Paragraph != "" {
		doc.Paragraphs = append(doc.Paragraphs, rec.Paragraph)
	}
	r.ID = int64(len(doc.Redactions) + 1)
	doc.Redactions = append(doc.Redactions, r)
	doc.RedactionsDetected = len(doc.Redactions)
}

func (g *grouper) documents() []redaction.Document {
	out := make([]redaction.Document, 0, len(g.order))
	for _, id := range g.order {
		doc := g.docs[id]
		doc.ConfidenceLevel = meanConfidence(doc.Redactions)
		out = append(out, *doc)
	}
	return out
}

func meanConfidence(rs []redaction.Redaction) float64 {
	var sum float64
	var n int
	for _, r := range rs {
		if r.Confidence != nil {
			sum += *r.Confidence
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return math.Round(sum/float64(n)*10) / 10
}
