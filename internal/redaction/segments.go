package redaction

import (
	"sort"
	"strings"
)

// SegmentKind distinguishes plain text runs from annotated ones
type SegmentKind uint8

const (
	// SegmentPlain is unannotated source text
	SegmentPlain SegmentKind = iota
	// SegmentAnnotated is an occurrence of a redaction phrase
	SegmentAnnotated
)

func (k SegmentKind) String() string {
	if k == SegmentAnnotated {
		return "annotated"
	}
	return "plain"
}

// MarshalText implements encoding.TextMarshaler
func (k SegmentKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (k *SegmentKind) UnmarshalText(text []byte) error {
	if string(text) == "annotated" {
		*k = SegmentAnnotated
	} else {
		*k = SegmentPlain
	}
	return nil
}

// Style classes carried by annotated segments
const (
	StyleRedacted = "redacted"
	StyleKept     = "kept"
	StylePending  = "pending"
	StyleManual   = "manual"
)

// Segment is a contiguous run of rendered text. Start and End are byte
// offsets into the source text. Annotation is set only for annotated segments.
type Segment struct {
	Kind       SegmentKind `json:"kind"`
	Text       string      `json:"text"`
	Start      int         `json:"start"`
	End        int         `json:"end"`
	Annotation *Annotation `json:"annotation,omitempty"`
}

// Annotation carries the review metadata of an annotated segment
type Annotation struct {
	RedactionID int64  `json:"redactionId"`
	Status      Status `json:"status"`
	Manual      bool   `json:"manual,omitempty"`
	Style       string `json:"style"`
	Tooltip     string `json:"tooltip"`
	Clickable   bool   `json:"clickable"`
}

// ParagraphSegments holds the segments of one document paragraph
type ParagraphSegments struct {
	Index    int       `json:"index"`
	Segments []Segment `json:"segments"`
}

type match struct {
	start, end int
	order      int
	redaction  *Redaction
}

// Occurrences returns the [start,end) byte ranges of every non-overlapping
// left-to-right occurrence of phrase in text. Matching is literal and case
// sensitive.
func Occurrences(text, phrase string) [][2]int {
	if phrase == "" {
		return nil
	}
	var out [][2]int
	offset := 0
	for {
		i := strings.Index(text[offset:], phrase)
		if i < 0 {
			return out
		}
		start := offset + i
		end := start + len(phrase)
		out = append(out, [2]int{start, end})
		offset = end
	}
}

// ComputeSegments splits text into plain and annotated segments for the given
// redactions. Matches are ordered by start offset, ties broken by list order,
// and a match that begins inside an earlier match is dropped.
func ComputeSegments(text string, redactions []Redaction) []Segment {
	if text == "" {
		return nil
	}

	var matches []match
	for i := range redactions {
		for _, occ := range Occurrences(text, redactions[i].Text) {
			matches = append(matches, match{
				start:     occ[0],
				end:       occ[1],
				order:     i,
				redaction: &redactions[i],
			})
		}
	}
	sort.SliceStable(matches, func(a, b int) bool {
		if matches[a].start != matches[b].start {
			return matches[a].start < matches[b].start
		}
		return matches[a].order < matches[b].order
	})

	segments := make([]Segment, 0, 2*len(matches)+1)
	consumed := 0
	for _, m := range matches {
		if m.start < consumed {
			continue
		}
		if m.start > consumed {
			segments = append(segments, plainSegment(text, consumed, m.start))
		}
		segments = append(segments, annotatedSegment(text, m))
		consumed = m.end
	}
	if consumed < len(text) {
		segments = append(segments, plainSegment(text, consumed, len(text)))
	}
	return segments
}

// RenderDocument computes segments for every paragraph of the document
func RenderDocument(doc Document) []ParagraphSegments {
	out := make([]ParagraphSegments, len(doc.Paragraphs))
	for i, p := range doc.Paragraphs {
		out[i] = ParagraphSegments{Index: i, Segments: ComputeSegments(p, doc.Redactions)}
	}
	return out
}

func plainSegment(text string, start, end int) Segment {
	return Segment{Kind: SegmentPlain, Text: text[start:end], Start: start, End: end}
}

func annotatedSegment(text string, m match) Segment {
	r := m.redaction
	a := &Annotation{
		RedactionID: r.ID,
		Status:      r.Status,
		Manual:      r.IsManual,
	}
	switch {
	case r.IsManual:
		a.Style, a.Tooltip = StyleManual, "Redacted"
	case r.Status == Approved:
		a.Style, a.Tooltip = StyleRedacted, "Redacted"
	case r.Status == Rejected:
		a.Style, a.Tooltip = StyleKept, "Not Redacted"
	default:
		a.Style, a.Tooltip = StylePending, "Pending Redaction"
		a.Clickable = true
	}
	return Segment{
		Kind:       SegmentAnnotated,
		Text:       text[m.start:m.end],
		Start:      m.start,
		End:        m.end,
		Annotation: a,
	}
}
