package redaction

import (
	"fmt"
	"sort"
	"strings"
)

// Sort orders accepted by Query.SortBy
const (
	SortDocumentOrder  = ""
	SortConfidenceDesc = "confidence-desc"
	SortConfidenceAsc  = "confidence-asc"
	SortLocation       = "location"
)

// Query selects and orders the redactions shown in a review table
type Query struct {
	Category      string
	MinConfidence *float64
	Status        *Status
	SortBy        string
}

// Summary counts the redactions of a document by disposition
type Summary struct {
	Total    int `json:"total"`
	Pending  int `json:"pending"`
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`
	Manual   int `json:"manual"`
}

// Validate checks the query parameters
func (q Query) Validate() error {
	switch q.SortBy {
	case SortDocumentOrder, SortConfidenceDesc, SortConfidenceAsc, SortLocation:
	default:
		return fmt.Errorf("sort %q: %w", q.SortBy, ErrInvalidQuery)
	}
	if q.Status != nil && !q.Status.Valid() {
		return fmt.Errorf("status %s: %w", *q.Status, ErrInvalidQuery)
	}
	if c := q.MinConfidence; c != nil && (*c < 0 || *c > 100) {
		return fmt.Errorf("min confidence %g: %w", *c, ErrInvalidQuery)
	}
	return nil
}

// Filter returns copies of the redactions matching q in the requested order.
// Records without a confidence only pass when no threshold is set.
func Filter(redactions []Redaction, q Query) ([]Redaction, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	out := make([]Redaction, 0, len(redactions))
	for _, r := range redactions {
		if q.Category != "" && !strings.EqualFold(r.Category, q.Category) {
			continue
		}
		if q.Status != nil && r.Status != *q.Status {
			continue
		}
		if q.MinConfidence != nil && (r.Confidence == nil || *r.Confidence < *q.MinConfidence) {
			continue
		}
		out = append(out, r.clone())
	}

	switch q.SortBy {
	case SortConfidenceDesc:
		sort.SliceStable(out, func(i, j int) bool {
			return confidence(out[i]) > confidence(out[j])
		})
	case SortConfidenceAsc:
		sort.SliceStable(out, func(i, j int) bool {
			return confidence(out[i]) < confidence(out[j])
		})
	case SortLocation:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].Location < out[j].Location
		})
	}
	return out, nil
}

// Summarize counts a document's redactions per status
func Summarize(doc Document) Summary {
	s := Summary{Total: len(doc.Redactions)}
	for _, r := range doc.Redactions {
		switch r.Status {
		case Pending:
			s.Pending++
		case Approved:
			s.Approved++
		case Rejected:
			s.Rejected++
		}
		if r.IsManual {
			s.Manual++
		}
	}
	return s
}

// confidence sorts records without a score below every scored record
func confidence(r Redaction) float64 {
	if r.Confidence == nil {
		return -1
	}
	return *r.Confidence
}
