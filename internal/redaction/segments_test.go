package redaction

import (
	"strings"
	"testing"
)

func joinSegments(segments []Segment) string {
	var b strings.Builder
	for _, s := range segments {
		b.WriteString(s.Text)
	}
	return b.String()
}

func annotatedFor(segments []Segment, id int64) []Segment {
	var out []Segment
	for _, s := range segments {
		if s.Kind == SegmentAnnotated && s.Annotation.RedactionID == id {
			out = append(out, s)
		}
	}
	return out
}

// TestOccurrences tests literal, non-overlapping phrase matching
func TestOccurrences(t *testing.T) {
	t.Run("MultipleNonOverlapping", func(t *testing.T) {
		got := Occurrences("aaaa", "aa")
		if len(got) != 2 {
			t.Fatalf("Expected 2 occurrences, got %d", len(got))
		}
		if got[0] != [2]int{0, 2} || got[1] != [2]int{2, 4} {
			t.Errorf("Unexpected ranges: %v", got)
		}
	})

	t.Run("CaseSensitive", func(t *testing.T) {
		if got := Occurrences("Jane doe", "Jane Doe"); len(got) != 0 {
			t.Errorf("Expected no match for different case, got %v", got)
		}
	})

	t.Run("NoRegexMetacharacters", func(t *testing.T) {
		got := Occurrences("DOB: 03/22/1987 (a.b)", "(a.b)")
		if len(got) != 1 || got[0] != [2]int{16, 21} {
			t.Errorf("Expected literal match at 16-21, got %v", got)
		}
		if got := Occurrences("axb", "a.b"); len(got) != 0 {
			t.Errorf("Dot must not match any character, got %v", got)
		}
	})

	t.Run("EmptyPhrase", func(t *testing.T) {
		if got := Occurrences("text", ""); got != nil {
			t.Errorf("Expected nil for empty phrase, got %v", got)
		}
	})
}

// TestComputeSegments tests span matching and segment construction
func TestComputeSegments(t *testing.T) {
	text := "I, Officer Sarah Martinez, was dispatched to 123 Sydney Street. " +
		"A witness, Jennifer Thompson, residing at 125 Sydney Street, called. Jennifer Thompson left."

	redactions := []Redaction{
		{ID: 1, Text: "123 Sydney Street", Category: "Address", Status: Approved},
		{ID: 6, Text: "Jennifer Thompson", Category: "Name", Status: Pending},
		{ID: 7, Text: "125 Sydney Street", Category: "Address", Status: Rejected},
		{ID: 9, Text: "Not In Text", Category: "Name", Status: Pending},
	}

	t.Run("ReconstructsText", func(t *testing.T) {
		segments := ComputeSegments(text, redactions)
		if got := joinSegments(segments); got != text {
			t.Errorf("Segments do not reconstruct text:\n got: %q\nwant: %q", got, text)
		}
	})

	t.Run("AnnotatesEveryOccurrence", func(t *testing.T) {
		segments := ComputeSegments(text, redactions)
		if n := len(annotatedFor(segments, 6)); n != 2 {
			t.Errorf("Expected 2 annotated segments for redaction 6, got %d", n)
		}
		if n := len(annotatedFor(segments, 1)); n != 1 {
			t.Errorf("Expected 1 annotated segment for redaction 1, got %d", n)
		}
		if n := len(annotatedFor(segments, 9)); n != 0 {
			t.Errorf("Expected no segment for missing phrase, got %d", n)
		}
	})

	t.Run("OffsetsMatchText", func(t *testing.T) {
		for _, s := range ComputeSegments(text, redactions) {
			if text[s.Start:s.End] != s.Text {
				t.Errorf("Segment %q does not match text[%d:%d]", s.Text, s.Start, s.End)
			}
		}
	})

	t.Run("StylesFollowStatus", func(t *testing.T) {
		segments := ComputeSegments(text, redactions)
		cases := []struct {
			id        int64
			style     string
			tooltip   string
			clickable bool
		}{
			{1, StyleRedacted, "Redacted", false},
			{6, StylePending, "Pending Redaction", true},
			{7, StyleKept, "Not Redacted", false},
		}
		for _, c := range cases {
			for _, s := range annotatedFor(segments, c.id) {
				a := s.Annotation
				if a.Style != c.style || a.Tooltip != c.tooltip || a.Clickable != c.clickable {
					t.Errorf("Redaction %d: got style=%s tooltip=%q clickable=%t", c.id, a.Style, a.Tooltip, a.Clickable)
				}
			}
		}
	})

	t.Run("ManualStyleIgnoresStatus", func(t *testing.T) {
		manual := []Redaction{{ID: 20, Text: "Sarah Martinez", Status: Pending, IsManual: true}}
		segments := annotatedFor(ComputeSegments(text, manual), 20)
		if len(segments) != 1 {
			t.Fatalf("Expected 1 manual segment, got %d", len(segments))
		}
		a := segments[0].Annotation
		if a.Style != StyleManual || a.Clickable {
			t.Errorf("Manual segment should be styled manual and not clickable, got %s clickable=%t", a.Style, a.Clickable)
		}
	})

	t.Run("PlainSegmentsHaveNoAnnotation", func(t *testing.T) {
		for _, s := range ComputeSegments(text, redactions) {
			if s.Kind == SegmentPlain && s.Annotation != nil {
				t.Errorf("Plain segment %q carries an annotation", s.Text)
			}
		}
	})

	t.Run("EmptyText", func(t *testing.T) {
		if segments := ComputeSegments("", redactions); len(segments) != 0 {
			t.Errorf("Expected no segments for empty text, got %d", len(segments))
		}
	})

	t.Run("NoRedactions", func(t *testing.T) {
		segments := ComputeSegments("plain text", nil)
		if len(segments) != 1 || segments[0].Kind != SegmentPlain || segments[0].Text != "plain text" {
			t.Errorf("Expected a single plain segment, got %+v", segments)
		}
	})

	t.Run("Deterministic", func(t *testing.T) {
		a := ComputeSegments(text, redactions)
		b := ComputeSegments(text, redactions)
		if len(a) != len(b) {
			t.Fatalf("Segment counts differ: %d vs %d", len(a), len(b))
		}
		for i := range a {
			if a[i].Text != b[i].Text || a[i].Start != b[i].Start || a[i].Kind != b[i].Kind {
				t.Errorf("Segment %d differs between runs", i)
			}
		}
	})
}

// TestComputeSegmentsOverlap tests the first-registered-wins overlap rule
func TestComputeSegmentsOverlap(t *testing.T) {
	t.Run("PartialOverlap", func(t *testing.T) {
		redactions := []Redaction{
			{ID: 1, Text: "abc"},
			{ID: 2, Text: "bcd"},
		}
		segments := ComputeSegments("abcdef", redactions)

		annotated := 0
		for _, s := range segments {
			if s.Kind == SegmentAnnotated {
				annotated++
			}
		}
		if annotated != 1 {
			t.Fatalf("Expected exactly 1 annotated segment, got %d", annotated)
		}
		if len(annotatedFor(segments, 1)) != 1 {
			t.Error("Expected the earlier match (abc) to win")
		}
		if got := joinSegments(segments); got != "abcdef" {
			t.Errorf("Expected text to be reconstructed, got %q", got)
		}
	})

	t.Run("SameStartTieUsesListOrder", func(t *testing.T) {
		text := "123 Sydney Street"
		shortFirst := []Redaction{
			{ID: 1, Text: "123 Sydney"},
			{ID: 2, Text: "123 Sydney Street"},
		}
		segments := ComputeSegments(text, shortFirst)
		if len(annotatedFor(segments, 1)) != 1 || len(annotatedFor(segments, 2)) != 0 {
			t.Errorf("Expected first registered redaction to win a tie, got %+v", segments)
		}
		if got := joinSegments(segments); got != text {
			t.Errorf("Expected text to be reconstructed, got %q", got)
		}

		longFirst := []Redaction{shortFirst[1], shortFirst[0]}
		segments = ComputeSegments(text, longFirst)
		if len(segments) != 1 || segments[0].Annotation.RedactionID != 2 {
			t.Errorf("Expected only the longer phrase to be annotated, got %+v", segments)
		}
	})

	t.Run("LaterStartInsideEarlierMatch", func(t *testing.T) {
		text := "at 123 Sydney Street today"
		redactions := []Redaction{
			{ID: 1, Text: "Sydney"},
			{ID: 2, Text: "123 Sydney Street"},
		}
		segments := ComputeSegments(text, redactions)
		if len(annotatedFor(segments, 2)) != 1 {
			t.Error("Expected the match starting first to be annotated")
		}
		if len(annotatedFor(segments, 1)) != 0 {
			t.Error("Expected the nested match to be suppressed")
		}
	})
}

// TestRenderDocument tests per-paragraph rendering
func TestRenderDocument(t *testing.T) {
	doc := Document{
		ID: 1,
		Paragraphs: []string{
			"Victim Emily Rodriguez (DOB: 03/22/1987).",
			"No names here.",
		},
		Redactions: []Redaction{
			{ID: 2, Text: "Emily Rodriguez", Status: Approved},
			{ID: 3, Text: "03/22/1987", Status: Pending},
		},
	}

	paragraphs := RenderDocument(doc)
	if len(paragraphs) != 2 {
		t.Fatalf("Expected 2 paragraphs, got %d", len(paragraphs))
	}
	if n := len(annotatedFor(paragraphs[0].Segments, 2)) + len(annotatedFor(paragraphs[0].Segments, 3)); n != 2 {
		t.Errorf("Expected 2 annotated segments in first paragraph, got %d", n)
	}
	if len(paragraphs[1].Segments) != 1 || paragraphs[1].Segments[0].Kind != SegmentPlain {
		t.Errorf("Expected a single plain segment in second paragraph")
	}
	if paragraphs[1].Index != 1 {
		t.Errorf("Expected paragraph index 1, got %d", paragraphs[1].Index)
	}
}
