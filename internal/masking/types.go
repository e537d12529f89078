package masking

// Config contains masking configuration
type Config struct {
	// Format is the replacement text; {{CATEGORY}} expands to the upper-cased
	// redaction category
	Format string `yaml:"format" mapstructure:"format"`
	// MaskPending also masks phrases that have not been reviewed yet
	MaskPending bool `yaml:"mask_pending" mapstructure:"mask_pending"`
}

// Finding summarizes the masked occurrences of one category
type Finding struct {
	Category string `json:"category"`
	Masked   string `json:"masked"`
	Count    int    `json:"count"`
}

// Result contains the outcome of masking one block of text
type Result struct {
	MaskedText string    `json:"maskedText"`
	Findings   []Finding `json:"findings"`
	Original   string    `json:"-"` // Never serialize original text
}

// DocumentResult contains the masked paragraphs of a document
type DocumentResult struct {
	DocumentID int64     `json:"documentId"`
	FileName   string    `json:"fileName"`
	Paragraphs []string  `json:"paragraphs"`
	Findings   []Finding `json:"findings"`
}
