// Package docparse turns uploaded files into markdown. PDFs go through an
// external structuring service that performs layout analysis and OCR;
// markdown and plain text pass through unchanged.
package docparse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"regexp"
	"time"
)

// Result is the parsed form of a document. Images holds extracted figures
// keyed by their file name as referenced from Markdown.
type Result struct {
	Markdown string
	Images   map[string][]byte
}

// Parser converts a raw file into markdown plus extracted images.
type Parser interface {
	Parse(ctx context.Context, name string, data []byte) (*Result, error)
}

// Passthrough returns the input bytes as markdown unchanged. Used for
// files that already are markdown or plain text.
type Passthrough struct{}

func (Passthrough) Parse(_ context.Context, _ string, data []byte) (*Result, error) {
	return &Result{Markdown: string(data)}, nil
}

// HTTPParser calls a structuring service over HTTP. The service accepts a
// multipart upload and responds with the markdown rendition and any
// extracted images, base64-encoded.
type HTTPParser struct {
	url    string
	client *http.Client
}

// parseResponse mirrors the service's JSON response body.
type parseResponse struct {
	Markdown string            `json:"markdown"`
	Images   map[string][]byte `json:"images"`
}

func NewHTTPParser(url string) *HTTPParser {
	return &HTTPParser{
		url: url,
		client: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}
}

func (p *HTTPParser) Parse(ctx context.Context, name string, data []byte) (*Result, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", name)
	if err != nil {
		return nil, fmt.Errorf("building parse request: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("building parse request: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("building parse request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, &body)
	if err != nil {
		return nil, fmt.Errorf("building parse request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling parse service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("parse service returned %d: %s", resp.StatusCode, string(msg))
	}

	var parsed parseResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding parse response: %w", err)
	}
	return &Result{Markdown: parsed.Markdown, Images: parsed.Images}, nil
}

var imageLinkPattern = regexp.MustCompile(`!\[([^\]]*)\]\(([^)]+)\)`)

// RewriteImageLinks replaces each image target in markdown with its
// uploaded URL from urls, keyed by the original target. Targets with no
// mapping are left alone.
func RewriteImageLinks(markdown string, urls map[string]string) string {
	if len(urls) == 0 {
		return markdown
	}
	return imageLinkPattern.ReplaceAllStringFunc(markdown, func(match string) string {
		groups := imageLinkPattern.FindStringSubmatch(match)
		if url, ok := urls[groups[2]]; ok {
			return fmt.Sprintf("![%s](%s)", groups[1], url)
		}
		return match
	})
}
