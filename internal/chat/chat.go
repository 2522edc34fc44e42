// Package chat answers user questions grounded in retrieved chunks, with
// per-user conversation history replayed into every prompt.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/openai/openai-go"

	"github.com/kiro-rag/kiro/internal/embedding"
	"github.com/kiro-rag/kiro/internal/history"
	"github.com/kiro-rag/kiro/internal/retriever"
	"github.com/kiro-rag/kiro/internal/search"
)

const requestTimeout = 120 * time.Second

const systemPromptTemplate = `You are a knowledge base assistant. Answer the user's question using only the reference material below.
If the reference material is empty or does not cover the question, say you do not have enough information and ask a clarifying question instead of guessing.

#Reference material
%s`

type hitRetriever interface {
	Retrieve(ctx context.Context, query string) ([]*search.Hit, error)
}

type historyStore interface {
	Get(userID string) ([]history.Message, error)
	Put(userID string, msgs []history.Message, limit int) error
}

// Answer is one completed chat turn.
type Answer struct {
	Content   string
	Related   []*search.Hit
	ElapsedMS int64
}

// Service wires retrieval, completion and history into a chat turn.
type Service struct {
	client       *embedding.Client
	model        string
	retriever    hitRetriever
	history      historyStore
	historyLimit int
	logger       *slog.Logger
}

func NewService(client *embedding.Client, model string, retriever hitRetriever, history historyStore, historyLimit int, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		client:       client,
		model:        model,
		retriever:    retriever,
		history:      history,
		historyLimit: historyLimit,
		logger:       logger,
	}
}

// Send answers one user question. Retrieval failure fails the turn;
// history persistence failure does not, the answer is already computed.
func (s *Service) Send(ctx context.Context, userID, question string) (*Answer, error) {
	start := time.Now()

	hits, err := s.retriever.Retrieve(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("retrieving context: %w", err)
	}
	reference := retriever.Context(hits)

	past, err := s.history.Get(userID)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}

	messages := buildMessages(reference, past, question)

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	resp, err := s.client.Client().Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: messages,
		Model:    s.model,
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion returned no choices")
	}
	content := resp.Choices[0].Message.Content

	turn := append(past,
		history.NewMessage("user", question),
		history.NewMessage("assistant", content),
	)
	if err := s.history.Put(userID, turn, s.historyLimit); err != nil {
		s.logger.Error("persisting chat history", "user_id", userID, "error", err)
	}

	return &Answer{
		Content:   content,
		Related:   hits,
		ElapsedMS: time.Since(start).Milliseconds(),
	}, nil
}

// History returns the stored conversation for a user, oldest first.
func (s *Service) History(userID string) ([]history.Message, error) {
	return s.history.Get(userID)
}

// buildMessages assembles the completion prompt: system message carrying
// the reference material, the replayed history, then the new question.
func buildMessages(reference string, past []history.Message, question string) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(past)+2)
	messages = append(messages, openai.SystemMessage(fmt.Sprintf(systemPromptTemplate, reference)))
	for _, m := range past {
		switch m.Role {
		case "assistant":
			messages = append(messages, openai.AssistantMessage(m.Content))
		default:
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}
	messages = append(messages, openai.UserMessage(question))
	return messages
}
