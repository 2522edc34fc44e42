package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func mustSplitter(t *testing.T, size, overlap int) *Splitter {
	t.Helper()
	s, err := New(size, overlap)
	if err != nil {
		t.Fatalf("New(%d, %d) failed: %v", size, overlap, err)
	}
	return s
}

// TestNew_OverlapMustBeSmaller verifies the fail-fast configuration check.
func TestNew_OverlapMustBeSmaller(t *testing.T) {
	if _, err := New(100, 100); err == nil {
		t.Error("expected error for overlap == size")
	}
	if _, err := New(100, 150); err == nil {
		t.Error("expected error for overlap > size")
	}
	if _, err := New(0, 0); err == nil {
		t.Error("expected error for zero size")
	}
	if _, err := New(100, -1); err == nil {
		t.Error("expected error for negative overlap")
	}
}

// TestSplit_SectionHeadersPrefixed verifies each piece repeats its section
// heading and indices are contiguous from zero.
func TestSplit_SectionHeadersPrefixed(t *testing.T) {
	input := `## Installation

Install steps here.

## Configuration

Config details here.
`
	s := mustSplitter(t, 512, 10)
	pieces, err := s.Split([]byte(input))
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}

	if len(pieces) != 2 {
		t.Fatalf("expected 2 pieces, got %d", len(pieces))
	}
	for i, p := range pieces {
		if p.Index != i {
			t.Errorf("piece %d has index %d", i, p.Index)
		}
	}
	if pieces[0].Header != "## Installation" {
		t.Errorf("piece 0 header: got %q", pieces[0].Header)
	}
	if !strings.HasPrefix(pieces[0].Content, "## Installation\n") {
		t.Errorf("piece 0 content not prefixed: %q", pieces[0].Content)
	}
	if pieces[0].RawContent != "Install steps here." {
		t.Errorf("piece 0 raw content: %q", pieces[0].RawContent)
	}
	if pieces[1].Header != "## Configuration" {
		t.Errorf("piece 1 header: got %q", pieces[1].Header)
	}
}

// TestSplit_NoHeadingsSingleUntitledPass verifies a heading-free document
// goes through exactly one untitled pass without a heading prefix.
func TestSplit_NoHeadingsSingleUntitledPass(t *testing.T) {
	input := "Just a short paragraph with no structure at all."

	s := mustSplitter(t, 512, 10)
	pieces, err := s.Split([]byte(input))
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	if len(pieces) != 1 {
		t.Fatalf("expected 1 piece, got %d", len(pieces))
	}
	if pieces[0].Header != "" {
		t.Errorf("untitled piece has header %q", pieces[0].Header)
	}
	if pieces[0].Content != input {
		t.Errorf("content altered: %q", pieces[0].Content)
	}
}

// TestSplit_UntitledContentProcessedLast verifies content before the first
// heading trails the titled sections in the output.
func TestSplit_UntitledContentProcessedLast(t *testing.T) {
	input := `Preamble before any heading.

## Section

Section body.
`
	s := mustSplitter(t, 512, 10)
	pieces, err := s.Split([]byte(input))
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	if len(pieces) != 2 {
		t.Fatalf("expected 2 pieces, got %d", len(pieces))
	}
	if pieces[0].Header != "## Section" {
		t.Errorf("section should come first, got header %q", pieces[0].Header)
	}
	if pieces[1].Header != "" || pieces[1].RawContent != "Preamble before any heading." {
		t.Errorf("untitled remainder not last: %+v", pieces[1])
	}
}

// TestSplit_TopLevelTitleStaysUntitled verifies a level 1 heading does not
// open a section: the title and its content join the untitled remainder
// and are processed after the titled sections.
func TestSplit_TopLevelTitleStaysUntitled(t *testing.T) {
	input := `# Title

Intro paragraph under the document title.

## Section

Section body.
`
	s := mustSplitter(t, 512, 10)
	pieces, err := s.Split([]byte(input))
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	if len(pieces) != 2 {
		t.Fatalf("expected 2 pieces, got %d", len(pieces))
	}
	if pieces[0].Header != "## Section" {
		t.Errorf("titled section should come first, got header %q", pieces[0].Header)
	}
	if pieces[1].Header != "" {
		t.Errorf("title content must be untitled, got header %q", pieces[1].Header)
	}
	if !strings.Contains(pieces[1].RawContent, "Intro paragraph under the document title.") {
		t.Errorf("intro body missing from untitled remainder: %q", pieces[1].RawContent)
	}
}

// TestSplit_TopLevelTitleClosesSection verifies a level 1 heading still
// terminates the section running before it.
func TestSplit_TopLevelTitleClosesSection(t *testing.T) {
	input := `## Setup

Setup body.

# Part Two

Part two intro.
`
	s := mustSplitter(t, 512, 10)
	pieces, err := s.Split([]byte(input))
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	if len(pieces) != 2 {
		t.Fatalf("expected 2 pieces, got %d", len(pieces))
	}
	if pieces[0].Header != "## Setup" {
		t.Errorf("unexpected first header %q", pieces[0].Header)
	}
	if strings.Contains(pieces[0].RawContent, "Part two intro") {
		t.Errorf("section not closed at the title: %q", pieces[0].RawContent)
	}
	if pieces[1].Header != "" || !strings.Contains(pieces[1].RawContent, "Part two intro.") {
		t.Errorf("title content not in untitled remainder: %+v", pieces[1])
	}
}

// TestSplit_EmptySectionProducesNothing verifies a heading with no body
// yields zero pieces for that section.
func TestSplit_EmptySectionProducesNothing(t *testing.T) {
	input := `## Empty

## Full

Something here.
`
	s := mustSplitter(t, 512, 10)
	pieces, err := s.Split([]byte(input))
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	if len(pieces) != 1 {
		t.Fatalf("expected 1 piece, got %d", len(pieces))
	}
	if pieces[0].Header != "## Full" {
		t.Errorf("unexpected header %q", pieces[0].Header)
	}
}

// TestSplit_ExactSizeSingleChunk: a document exactly the chunk size emits
// one piece with no overlap applied.
func TestSplit_ExactSizeSingleChunk(t *testing.T) {
	body := strings.Repeat("a", 64)

	s := mustSplitter(t, 64, 8)
	pieces, err := s.Split([]byte(body))
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	if len(pieces) != 1 {
		t.Fatalf("expected exactly 1 piece, got %d", len(pieces))
	}
	if pieces[0].RawContent != body {
		t.Errorf("content altered: %q", pieces[0].RawContent)
	}
}

// TestSplit_BoundedPieces verifies every piece respects the target size and
// that all document words survive the split.
func TestSplit_BoundedPieces(t *testing.T) {
	var b strings.Builder
	b.WriteString("## Notes\n\n")
	for i := 0; i < 120; i++ {
		b.WriteString("word")
		b.WriteByte('0' + byte(i%10))
		b.WriteByte(' ')
	}

	s := mustSplitter(t, 100, 10)
	pieces, err := s.Split([]byte(b.String()))
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	if len(pieces) < 2 {
		t.Fatalf("expected multiple pieces, got %d", len(pieces))
	}

	var joined strings.Builder
	for _, p := range pieces {
		if p.Header != "## Notes" {
			t.Errorf("piece missing header: %+v", p)
		}
		if n := utf8.RuneCountInString(p.RawContent); n > 100 {
			t.Errorf("piece exceeds size: %d runes", n)
		}
		joined.WriteString(p.RawContent)
		joined.WriteByte(' ')
	}
	for i := 0; i < 120; i++ {
		word := "word" + string('0'+byte(i%10))
		if !strings.Contains(joined.String(), word) {
			t.Fatalf("word %q lost during splitting", word)
		}
	}
}

// TestSplit_OverlapCarried verifies the tail of one piece reappears at the
// head of the next.
func TestSplit_OverlapCarried(t *testing.T) {
	var words []string
	for i := 0; i < 60; i++ {
		words = append(words, "tok"+string('a'+byte(i%26)))
	}
	input := strings.Join(words, " ")

	s := mustSplitter(t, 50, 15)
	pieces, err := s.Split([]byte(input))
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	if len(pieces) < 2 {
		t.Fatalf("expected multiple pieces, got %d", len(pieces))
	}
	for i := 1; i < len(pieces); i++ {
		prev := pieces[i-1].RawContent
		head := strings.Fields(pieces[i].RawContent)[0]
		if !strings.Contains(prev, head) {
			t.Errorf("piece %d head %q not carried from previous piece %q", i, head, prev)
		}
	}
}

// TestSplit_ProtectedSpansNeverTruncated verifies images, links and fenced
// code blocks survive splitting intact in some piece.
func TestSplit_ProtectedSpansNeverTruncated(t *testing.T) {
	image := "![diagram](images/arch-overview-very-long-filename.png)"
	link := "[the design document](https://example.com/docs/design?version=3)"
	code := "```go\nfunc main() {\n\tfmt.Println(\"hello\")\n}\n```"

	input := "## Reference\n\n" +
		strings.Repeat("filler text ", 10) + image + " " +
		strings.Repeat("more filler ", 10) + link + " " +
		strings.Repeat("tail filler ", 10) + "\n\n" + code + "\n"

	s := mustSplitter(t, 80, 10)
	pieces, err := s.Split([]byte(input))
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}

	var all strings.Builder
	for _, p := range pieces {
		all.WriteString(p.RawContent)
		all.WriteString("\n")
		if strings.Contains(p.RawContent, "__PROTECTED_") {
			t.Errorf("placeholder leaked into output: %q", p.RawContent)
		}
	}
	for _, span := range []string{image, link, code} {
		if !strings.Contains(all.String(), span) {
			t.Errorf("protected span truncated or missing: %q", span)
		}
	}
}

// TestSplit_LongDocumentChunkCount mirrors the end-to-end ingestion case:
// a ~2000 character single-heading document at size 512 overlap 10 must
// produce at least 4 pieces, all carrying the heading.
func TestSplit_LongDocumentChunkCount(t *testing.T) {
	var b strings.Builder
	b.WriteString("## Refund Policy\n\n")
	for b.Len() < 2018 {
		b.WriteString("All refunds are processed within five business days of approval. ")
	}

	s := mustSplitter(t, 512, 10)
	pieces, err := s.Split([]byte(b.String()))
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	if len(pieces) < 4 {
		t.Errorf("expected at least 4 pieces, got %d", len(pieces))
	}
	for i, p := range pieces {
		if p.Header != "## Refund Policy" {
			t.Errorf("piece %d lost its heading: %+v", i, p)
		}
	}
	last := pieces[len(pieces)-1]
	if n := utf8.RuneCountInString(last.RawContent); n > 512 {
		t.Errorf("last piece exceeds size: %d runes", n)
	}
}
