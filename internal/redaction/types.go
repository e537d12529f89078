package redaction

import "time"

// CategoryManual is the category given to reviewer-created redactions
const CategoryManual = "Manual"

// DefaultManualLocation is used when a manual redaction is added without a location
const DefaultManualLocation = "Police Report"

// Actor identifies the reviewer performing an operation
type Actor struct {
	Name       string `json:"name"`
	Badge      string `json:"badge"`
	Department string `json:"department,omitempty"`
}

// Redaction is one flagged or manually added phrase and its review state
type Redaction struct {
	ID         int64    `json:"id"`
	Text       string   `json:"text"`
	Category   string   `json:"category"`
	Location   string   `json:"location"`
	Confidence *float64 `json:"confidence,omitempty"`
	Status     Status   `json:"status"`
	IsManual   bool     `json:"isManual,omitempty"`

	ModifiedBy      string     `json:"modifiedBy,omitempty"`
	ModifiedByBadge string     `json:"modifiedByBadge,omitempty"`
	ModifiedAt      *time.Time `json:"modifiedAt,omitempty"`

	CreatedBy      string     `json:"createdBy,omitempty"`
	CreatedByBadge string     `json:"createdByBadge,omitempty"`
	CreatedAt      *time.Time `json:"createdAt,omitempty"`
}

// Document is one reviewable unit with its ordered redaction list
type Document struct {
	ID                 int64       `json:"id"`
	FileName           string      `json:"fileName"`
	ReviewStatus       string      `json:"reviewStatus"`
	RedactionsDetected int         `json:"redactionsDetected"`
	RedactionsApplied  int         `json:"redactionsApplied"`
	ConfidenceLevel    float64     `json:"confidenceLevel"`
	UploadDate         time.Time   `json:"uploadDate,omitzero"`
	FileSize           string      `json:"fileSize,omitempty"`
	Paragraphs         []string    `json:"documentData,omitempty"`
	Redactions         []Redaction `json:"redactions"`
}

// CaseInfo describes the scan the documents belong to
type CaseInfo struct {
	CaseNumber      string    `json:"caseNumber"`
	Status          string    `json:"status"`
	ScanDate        time.Time `json:"scanDate,omitzero"`
	TotalDocuments  int       `json:"totalDocuments"`
	TotalRedactions int       `json:"totalRedactions"`
}

// redaction returns a pointer to the record with the given id, or nil
func (d *Document) redaction(id int64) *Redaction {
	for i := range d.Redactions {
		if d.Redactions[i].ID == id {
			return &d.Redactions[i]
		}
	}
	return nil
}

// FindRedaction returns a copy of the redaction with the given id
func (d Document) FindRedaction(id int64) (Redaction, bool) {
	r := d.redaction(id)
	if r == nil {
		return Redaction{}, false
	}
	return r.clone(), true
}

// recomputeApplied recounts approved records from scratch
func (d *Document) recomputeApplied() {
	applied := 0
	for _, r := range d.Redactions {
		if r.Status == Approved {
			applied++
		}
	}
	d.RedactionsApplied = applied
}

func (r Redaction) clone() Redaction {
	if r.Confidence != nil {
		c := *r.Confidence
		r.Confidence = &c
	}
	if r.ModifiedAt != nil {
		t := *r.ModifiedAt
		r.ModifiedAt = &t
	}
	if r.CreatedAt != nil {
		t := *r.CreatedAt
		r.CreatedAt = &t
	}
	return r
}

func (d Document) clone() Document {
	if d.Paragraphs != nil {
		d.Paragraphs = append([]string(nil), d.Paragraphs...)
	}
	redactions := make([]Redaction, len(d.Redactions))
	for i, r := range d.Redactions {
		redactions[i] = r.clone()
	}
	d.Redactions = redactions
	return d
}

// Float64 returns a pointer to v, for building confidence values
func Float64(v float64) *float64 {
	return &v
}
