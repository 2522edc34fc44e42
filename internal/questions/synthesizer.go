// Package questions broadens lexical recall by asking a language model,
// per chunk, for the questions the chunk plausibly answers.
package questions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"

	"github.com/kiro-rag/kiro/internal/embedding"
)

// MaxQuestions caps how many questions one chunk may contribute.
const MaxQuestions = 3

// requestTimeout bounds a single completion call; question synthesis is
// the longest-latency step of indexing and must not hang the pipeline.
const requestTimeout = 60 * time.Second

// Synthesizer generates representative questions per chunk.
type Synthesizer struct {
	client *embedding.Client
	model  string
	logger *slog.Logger
}

// NewSynthesizer creates a Synthesizer using the given chat model.
func NewSynthesizer(client *embedding.Client, model string, logger *slog.Logger) *Synthesizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synthesizer{client: client, model: model, logger: logger}
}

// Synthesize returns at most MaxQuestions questions for the chunk text.
// Output that cannot be parsed as a JSON string array degrades to an
// empty set with a warning; it never fails the indexing pipeline.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) ([]string, error) {
	prompt := fmt.Sprintf(`#Text fragment
%s

Based on the content above, come up with at most %d questions a reader might ask that this fragment answers.
Output them as a standard JSON array of strings, for example: ["question 1", "question 2", "question 3"]`,
		text, MaxQuestions)

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	var raw string
	operation := func() error {
		resp, err := s.client.Client().Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.UserMessage(prompt),
			},
			Model: s.model,
		})
		if err != nil {
			if isRateLimitError(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		if len(resp.Choices) == 0 {
			return backoff.Permanent(fmt.Errorf("completion returned no choices"))
		}
		raw = resp.Choices[0].Message.Content
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, fmt.Errorf("question synthesis: %w", err)
	}

	qs, err := ParseQuestionArray(raw)
	if err != nil {
		s.logger.Warn("Discarding unparseable question output", "error", err, "raw", truncate(raw, 200))
		return []string{}, nil
	}
	return qs, nil
}

// ParseQuestionArray extracts a JSON string array from model output.
// Code fences and surrounding prose are tolerated; anything else fails.
func ParseQuestionArray(raw string) ([]string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return []string{}, nil
	}

	// Models routinely wrap JSON in markdown fences or lead-in prose;
	// parse the outermost bracketed span.
	start := strings.Index(trimmed, "[")
	end := strings.LastIndex(trimmed, "]")
	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("no JSON array in output")
	}

	var qs []string
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), &qs); err != nil {
		return nil, fmt.Errorf("parsing question array: %w", err)
	}

	out := make([]string, 0, len(qs))
	for _, q := range qs {
		q = strings.TrimSpace(q)
		if q != "" {
			out = append(out, q)
		}
		if len(out) == MaxQuestions {
			break
		}
	}
	return out, nil
}

func isRateLimitError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
