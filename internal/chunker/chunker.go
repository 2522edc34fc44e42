// Package chunker splits normalized markdown documents into bounded,
// structure-aware pieces suitable for embedding and retrieval.
package chunker

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gparser "github.com/yuin/goldmark/parser"
	gtext "github.com/yuin/goldmark/text"
)

// Piece is one bounded segment of a document.
type Piece struct {
	Index      int    // Position in document (0, 1, 2...)
	Header     string // Originating heading line ("## Install"), empty for untitled content
	Content    string // Piece text WITH the heading prepended
	RawContent string // Piece text without the heading prefix
}

// separators are tried largest-boundary first: paragraph, line, sentence,
// word, then individual characters.
var separators = []string{"\n\n", "\n", ". ", " ", ""}

// Splitter turns one markdown document into an ordered piece sequence.
// Pieces respect structural boundaries and never truncate protected spans
// (images, links, fenced code blocks). Pure; no side effects.
type Splitter struct {
	size    int
	overlap int
	parser  goldmark.Markdown
}

// New creates a Splitter with a target piece size and overlap, both in
// characters. Overlap must be strictly smaller than size; anything else
// would loop the splitter and is rejected up front.
func New(size, overlap int) (*Splitter, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("chunk overlap must not be negative, got %d", overlap)
	}
	if overlap >= size {
		return nil, fmt.Errorf("chunk overlap (%d) must be smaller than chunk size (%d)", overlap, size)
	}
	md := goldmark.New(
		goldmark.WithParserOptions(
			gparser.WithAutoHeadingID(),
		),
	)
	return &Splitter{size: size, overlap: overlap, parser: md}, nil
}

// section is a heading plus the content that runs until the next heading.
type section struct {
	header  string
	content string
}

// Split partitions the document into heading-bounded sections, splits each
// into size-bounded pieces, and returns them in document order. Content
// before the first heading belongs to an implicit untitled section handled
// after all titled ones. A document with no headings yields exactly one
// untitled pass.
func (s *Splitter) Split(source []byte) ([]Piece, error) {
	sections, untitled := s.extractSections(source)

	var pieces []Piece
	for _, sec := range sections {
		for _, part := range s.splitSection(sec.content) {
			pieces = append(pieces, Piece{
				Index:      len(pieces),
				Header:     sec.header,
				RawContent: part,
				Content:    sec.header + "\n" + part,
			})
		}
	}

	// Untitled remainder is processed last.
	for _, part := range s.splitSection(untitled) {
		pieces = append(pieces, Piece{
			Index:      len(pieces),
			RawContent: part,
			Content:    part,
		})
	}

	return pieces, nil
}

// extractSections walks the goldmark AST for heading boundaries. Only
// headings of level 2 and deeper open sections; any heading closes the
// section before it. Top-level titles and their content stay in the
// untitled remainder, together with everything before the first section.
func (s *Splitter) extractSections(source []byte) ([]section, string) {
	doc := s.parser.Parser().Parse(gtext.NewReader(source))

	type headingPos struct {
		level     int
		lineStart int // Offset of the heading line
		textStop  int // Offset past the heading text
	}
	var headings []headingPos

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || n.Kind() != ast.KindHeading {
			return ast.WalkContinue, nil
		}
		if n.Lines().Len() == 0 {
			return ast.WalkContinue, nil
		}
		seg := n.Lines().At(0)
		lineStart := seg.Start
		for lineStart > 0 && source[lineStart-1] != '\n' {
			lineStart--
		}
		headings = append(headings, headingPos{
			level:     n.(*ast.Heading).Level,
			lineStart: lineStart,
			textStop:  seg.Stop,
		})
		return ast.WalkContinue, nil
	})

	var sections []section
	var untitled strings.Builder
	cursor := 0
	for i, h := range headings {
		if h.level < 2 {
			continue
		}
		end := len(source)
		if i+1 < len(headings) {
			end = headings[i+1].lineStart
		}
		untitled.Write(source[cursor:h.lineStart])
		sections = append(sections, section{
			header:  strings.TrimSpace(string(source[h.lineStart:h.textStop])),
			content: string(source[h.textStop:end]),
		})
		cursor = end
	}
	untitled.Write(source[cursor:])
	return sections, untitled.String()
}

// splitSection protects atomic markup spans, applies the recursive bounded
// splitter, restores the spans and drops pieces that trim to nothing.
func (s *Splitter) splitSection(content string) []string {
	if strings.TrimSpace(content) == "" {
		return nil
	}

	protected, spans := protectSpans(content)

	var out []string
	for _, part := range s.splitText(protected, separators) {
		restored := strings.TrimSpace(restoreSpans(part, spans))
		if restored != "" {
			out = append(out, restored)
		}
	}
	return out
}

// splitText recursively splits text at the largest separator present so
// that every returned part is at most size characters, carrying the
// configured overlap from the tail of one part into the head of the next.
func (s *Splitter) splitText(text string, seps []string) []string {
	if utf8.RuneCountInString(text) <= s.size {
		return []string{text}
	}

	sep := ""
	rest := []string{}
	for i, cand := range seps {
		if cand == "" {
			break
		}
		if strings.Contains(text, cand) {
			sep = cand
			rest = seps[i+1:]
			break
		}
	}

	var parts []string
	if sep == "" {
		parts = atomSplit(text)
	} else {
		parts = splitKeepSeparator(text, sep)
	}

	var final, pending []string
	for _, part := range parts {
		if utf8.RuneCountInString(part) <= s.size {
			pending = append(pending, part)
			continue
		}
		if len(pending) > 0 {
			final = append(final, s.merge(pending)...)
			pending = nil
		}
		if len(rest) == 0 {
			// Unsplittable atom larger than the target size; emit whole
			// rather than corrupting it.
			final = append(final, part)
		} else {
			final = append(final, s.splitText(part, rest)...)
		}
	}
	if len(pending) > 0 {
		final = append(final, s.merge(pending)...)
	}
	return final
}

// merge packs adjacent splits into pieces of at most size characters.
// When a piece is flushed, whole trailing splits totalling at most the
// overlap are carried into the next piece.
func (s *Splitter) merge(parts []string) []string {
	var pieces []string
	var window []string
	total := 0

	for _, part := range parts {
		l := utf8.RuneCountInString(part)
		if total+l > s.size && len(window) > 0 {
			pieces = append(pieces, strings.Join(window, ""))
			for len(window) > 0 && (total > s.overlap || total+l > s.size) {
				total -= utf8.RuneCountInString(window[0])
				window = window[1:]
			}
		}
		window = append(window, part)
		total += l
	}
	if len(window) > 0 {
		pieces = append(pieces, strings.Join(window, ""))
	}
	return pieces
}

// splitKeepSeparator splits text by sep, attaching the separator to the
// head of the following part so that joining the parts reconstructs the
// input exactly.
func splitKeepSeparator(text, sep string) []string {
	raw := strings.Split(text, sep)
	parts := make([]string, 0, len(raw))
	for i, p := range raw {
		if i > 0 {
			p = sep + p
		}
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

// atomSplit breaks text into single-character atoms, keeping protected-span
// placeholders as single opaque atoms so they can never be cut mid-token.
func atomSplit(text string) []string {
	var atoms []string
	for len(text) > 0 {
		if loc := placeholderPattern.FindStringIndex(text); loc != nil && loc[0] == 0 {
			atoms = append(atoms, text[:loc[1]])
			text = text[loc[1]:]
			continue
		}
		_, size := utf8.DecodeRuneInString(text)
		atoms = append(atoms, text[:size])
		text = text[size:]
	}
	return atoms
}

var (
	imagePattern       = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)
	linkPattern        = regexp.MustCompile(`\[[^\]]*\]\([^)]*\)`)
	codeBlockPattern   = regexp.MustCompile("(?s)```.*?```")
	placeholderPattern = regexp.MustCompile(`__PROTECTED_\d+__`)
)

// protectSpans replaces every fenced code block, image reference and
// hyperlink with a unique placeholder token, so the splitter treats them
// as atomic. Returns the substituted text and the restore map.
func protectSpans(text string) (string, map[string]string) {
	spans := make(map[string]string)
	n := 0
	for _, pattern := range []*regexp.Regexp{codeBlockPattern, imagePattern, linkPattern} {
		for _, match := range pattern.FindAllString(text, -1) {
			placeholder := fmt.Sprintf("__PROTECTED_%d__", n)
			n++
			spans[placeholder] = match
			text = strings.ReplaceAll(text, match, placeholder)
		}
	}
	return text, spans
}

// restoreSpans swaps placeholders back to their original spans.
func restoreSpans(text string, spans map[string]string) string {
	for placeholder, span := range spans {
		text = strings.ReplaceAll(text, placeholder, span)
	}
	return text
}
