package masking

import (
	"fmt"
	"strings"
	"sync"

	"github.com/raaihank/redaction-review/internal/redaction"
	"go.uber.org/zap"
)

// DefaultFormat is used when no format is configured
const DefaultFormat = "[REDACTED]"

const categoryPlaceholder = "{{CATEGORY}}"

// Masker replaces approved redactions in document text
type Masker struct {
	mu     sync.RWMutex
	config Config
	logger *zap.Logger
}

// New creates a new masker instance
func New(cfg Config, log *zap.Logger) (*Masker, error) {
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	if cfg.Format == "" {
		cfg.Format = DefaultFormat
	}

	log.Info("Masker initialized",
		zap.String("format", cfg.Format),
		zap.Bool("mask_pending", cfg.MaskPending),
	)

	return &Masker{config: cfg, logger: log}, nil
}

// Validate checks a masking configuration
func Validate(cfg Config) error {
	if strings.Count(cfg.Format, "{{") != strings.Count(cfg.Format, "}}") {
		return fmt.Errorf("unbalanced placeholder in mask format %q", cfg.Format)
	}
	rest := strings.ReplaceAll(cfg.Format, categoryPlaceholder, "")
	if strings.Contains(rest, "{{") {
		return fmt.Errorf("unknown placeholder in mask format %q", cfg.Format)
	}
	return nil
}

// Reconfigure swaps the masking configuration, used on config reload
func (m *Masker) Reconfigure(cfg Config) error {
	if err := Validate(cfg); err != nil {
		return err
	}
	if cfg.Format == "" {
		cfg.Format = DefaultFormat
	}

	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()

	m.logger.Info("Masker reconfigured", zap.String("format", cfg.Format))
	return nil
}

// Apply masks every decided redaction occurrence in text
func (m *Masker) Apply(text string, redactions []redaction.Redaction) Result {
	m.mu.RLock()
	cfg := m.config
	m.mu.RUnlock()

	var (
		b        strings.Builder
		findings []Finding
		index    = make(map[string]int)
	)
	b.Grow(len(text))

	for _, seg := range redaction.ComputeSegments(text, redactions) {
		if !shouldMask(seg, cfg) {
			b.WriteString(seg.Text)
			continue
		}

		r, _ := findRedaction(redactions, seg.Annotation.RedactionID)
		replacement := render(cfg.Format, r.Category)
		b.WriteString(replacement)

		if i, ok := index[r.Category]; ok {
			findings[i].Count++
		} else {
			index[r.Category] = len(findings)
			findings = append(findings, Finding{Category: r.Category, Masked: replacement, Count: 1})
		}
	}

	if len(findings) > 0 {
		m.logger.Debug("Redactions masked",
			zap.Int("categories", len(findings)),
		)
	}

	return Result{
		MaskedText: b.String(),
		Findings:   findings,
		Original:   text,
	}
}

// ApplyDocument masks every paragraph of a document
func (m *Masker) ApplyDocument(doc redaction.Document) DocumentResult {
	out := DocumentResult{
		DocumentID: doc.ID,
		FileName:   doc.FileName,
		Paragraphs: make([]string, len(doc.Paragraphs)),
	}
	index := make(map[string]int)
	for i, p := range doc.Paragraphs {
		res := m.Apply(p, doc.Redactions)
		out.Paragraphs[i] = res.MaskedText
		for _, f := range res.Findings {
			if j, ok := index[f.Category]; ok {
				out.Findings[j].Count += f.Count
				continue
			}
			index[f.Category] = len(out.Findings)
			out.Findings = append(out.Findings, f)
		}
	}
	return out
}

func shouldMask(seg redaction.Segment, cfg Config) bool {
	a := seg.Annotation
	if a == nil {
		return false
	}
	if a.Manual {
		return true
	}
	switch a.Status {
	case redaction.Approved:
		return true
	case redaction.Pending:
		return cfg.MaskPending
	default:
		return false
	}
}

func findRedaction(redactions []redaction.Redaction, id int64) (redaction.Redaction, bool) {
	for _, r := range redactions {
		if r.ID == id {
			return r, true
		}
	}
	return redaction.Redaction{}, false
}

func render(format, category string) string {
	if category == "" {
		category = "SENSITIVE"
	}
	return strings.ReplaceAll(format, categoryPlaceholder, strings.ToUpper(category))
}
