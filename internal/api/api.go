// Package api exposes the knowledge base over HTTP with a uniform JSON
// envelope. Raw errors are logged server-side; clients get a summarized
// message and a stable failure code.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/kiro-rag/kiro/internal/chat"
	"github.com/kiro-rag/kiro/internal/domain"
	"github.com/kiro-rag/kiro/internal/history"
)

// Envelope codes. "0" is success; the others group failures by origin.
const (
	codeOK       = "0"
	codeUser     = "1002"
	codeDocument = "1003"
	codeStorage  = "1004"
)

const (
	maxUploadBytes  = 64 << 20
	defaultPageSize = 20
	maxPageSize     = 100
)

type envelope struct {
	Code string `json:"code"`
	Msg  string `json:"msg,omitempty"`
	Data any    `json:"data,omitempty"`
}

// DocumentService is the ingestion surface of the API.
type DocumentService interface {
	Upload(ctx context.Context, name string, data []byte, ownerID string) (*domain.Document, error)
	Chunk(ctx context.Context, documentID string) error
}

// DocumentLister reads documents and chunks back out of the store.
type DocumentLister interface {
	ListDocuments(ctx context.Context, page, pageSize int) ([]*domain.Document, int, error)
	ListChunks(ctx context.Context, documentID string, page, pageSize int) ([]*domain.Chunk, int, error)
}

// ChatService answers questions and replays history.
type ChatService interface {
	Send(ctx context.Context, userID, question string) (*chat.Answer, error)
	History(userID string) ([]history.Message, error)
}

// ObjectStore serves stored blobs (originals, markdown artifacts,
// extracted figures) at their public URLs.
type ObjectStore interface {
	Download(objectName string) ([]byte, error)
	ContentType(objectName string) string
}

// Server routes HTTP requests to the underlying services.
type Server struct {
	ingest  DocumentService
	lister  DocumentLister
	chat    ChatService
	objects ObjectStore
	logger  *slog.Logger
	mux     *http.ServeMux
}

func NewServer(ingest DocumentService, lister DocumentLister, chatSvc ChatService, objects ObjectStore, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		ingest:  ingest,
		lister:  lister,
		chat:    chatSvc,
		objects: objects,
		logger:  logger,
		mux:     http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /api/document/upload", s.handleUpload)
	s.mux.HandleFunc("POST /api/document/chunk", s.handleChunk)
	s.mux.HandleFunc("GET /api/document/list", s.handleListDocuments)
	s.mux.HandleFunc("GET /api/document/chunks", s.handleListChunks)
	s.mux.HandleFunc("POST /api/chat/send", s.handleChatSend)
	s.mux.HandleFunc("GET /api/chat/history", s.handleChatHistory)
	s.mux.HandleFunc("GET /objects/{name...}", s.handleObject)
	s.mux.HandleFunc("GET /health", s.handleHealth)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.fail(w, http.StatusBadRequest, codeUser, "invalid multipart form", err)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.fail(w, http.StatusBadRequest, codeUser, "missing file field", err)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		s.fail(w, http.StatusBadRequest, codeUser, "reading upload failed", err)
		return
	}

	doc, err := s.ingest.Upload(r.Context(), header.Filename, data, r.FormValue("owner_id"))
	if err != nil {
		s.failDocument(w, "upload rejected", err)
		return
	}
	s.ok(w, documentView(doc))
}

type chunkRequest struct {
	DocumentID string `json:"document_id"`
}

func (s *Server) handleChunk(w http.ResponseWriter, r *http.Request) {
	var req chunkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DocumentID == "" {
		s.fail(w, http.StatusBadRequest, codeUser, "document_id is required", err)
		return
	}
	if err := s.ingest.Chunk(r.Context(), req.DocumentID); err != nil {
		s.failDocument(w, "chunking failed", err)
		return
	}
	s.ok(w, map[string]string{"document_id": req.DocumentID, "status": string(domain.StatusChunked)})
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pagination(r)
	docs, total, err := s.lister.ListDocuments(r.Context(), page, pageSize)
	if err != nil {
		s.fail(w, http.StatusInternalServerError, codeStorage, "listing documents failed", err)
		return
	}
	views := make([]any, 0, len(docs))
	for _, d := range docs {
		views = append(views, documentView(d))
	}
	s.ok(w, map[string]any{"total": total, "page": page, "page_size": pageSize, "documents": views})
}

func (s *Server) handleListChunks(w http.ResponseWriter, r *http.Request) {
	documentID := r.URL.Query().Get("document_id")
	if documentID == "" {
		s.fail(w, http.StatusBadRequest, codeUser, "document_id is required", nil)
		return
	}
	page, pageSize := pagination(r)
	chunks, total, err := s.lister.ListChunks(r.Context(), documentID, page, pageSize)
	if err != nil {
		s.fail(w, http.StatusInternalServerError, codeStorage, "listing chunks failed", err)
		return
	}
	views := make([]any, 0, len(chunks))
	for _, c := range chunks {
		views = append(views, chunkView(c))
	}
	s.ok(w, map[string]any{"total": total, "page": page, "page_size": pageSize, "chunks": views})
}

type chatSendRequest struct {
	UserID   string `json:"user_id"`
	Question string `json:"question"`
}

func (s *Server) handleChatSend(w http.ResponseWriter, r *http.Request) {
	var req chatSendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" || req.Question == "" {
		s.fail(w, http.StatusBadRequest, codeUser, "user_id and question are required", err)
		return
	}
	answer, err := s.chat.Send(r.Context(), req.UserID, req.Question)
	if err != nil {
		s.fail(w, http.StatusInternalServerError, codeDocument, "answering failed", err)
		return
	}

	related := make([]any, 0, len(answer.Related))
	for _, h := range answer.Related {
		related = append(related, map[string]any{
			"document_id": h.DocumentID,
			"chunk_id":    h.ChunkID,
			"chunk_index": h.ChunkIndex,
			"content":     h.Content,
			"score":       h.Score,
		})
	}
	s.ok(w, map[string]any{
		"answer":     answer.Content,
		"related":    related,
		"elapsed_ms": answer.ElapsedMS,
	})
}

func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		s.fail(w, http.StatusBadRequest, codeUser, "user_id is required", nil)
		return
	}
	msgs, err := s.chat.History(userID)
	if err != nil {
		s.fail(w, http.StatusInternalServerError, codeStorage, "loading history failed", err)
		return
	}
	views := make([]any, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, map[string]string{
			"role":      m.Role,
			"content":   m.Content,
			"timestamp": m.Timestamp,
		})
	}
	s.ok(w, map[string]any{"messages": views})
}

func (s *Server) handleObject(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	data, err := s.objects.Download(name)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if ct := s.objects.ContentType(name); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.Write(data)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.ok(w, map[string]string{"status": "ok"})
}

func (s *Server) ok(w http.ResponseWriter, data any) {
	s.write(w, http.StatusOK, envelope{Code: codeOK, Data: data})
}

func (s *Server) fail(w http.ResponseWriter, status int, code, msg string, err error) {
	if err != nil {
		s.logger.Error("request failed", "code", code, "msg", msg, "error", err)
	} else {
		s.logger.Warn("request rejected", "code", code, "msg", msg)
	}
	s.write(w, status, envelope{Code: code, Msg: msg})
}

// failDocument maps pipeline sentinels onto the document failure code
// with a client-safe message.
func (s *Server) failDocument(w http.ResponseWriter, action string, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		s.fail(w, http.StatusNotFound, codeDocument, "document not found", err)
	case errors.Is(err, domain.ErrDuplicateContent):
		s.fail(w, http.StatusConflict, codeDocument, "identical content already uploaded", err)
	case errors.Is(err, domain.ErrUnsupportedMediaType):
		s.fail(w, http.StatusUnprocessableEntity, codeDocument, "unsupported file type", err)
	case errors.Is(err, domain.ErrChunkingInProgress):
		s.fail(w, http.StatusConflict, codeDocument, "chunking already in progress", err)
	default:
		s.fail(w, http.StatusInternalServerError, codeDocument, action, err)
	}
}

func (s *Server) write(w http.ResponseWriter, status int, env envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		s.logger.Error("writing response", "error", err)
	}
}

func pagination(r *http.Request) (page, pageSize int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ = strconv.Atoi(r.URL.Query().Get("page_size"))
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

func documentView(d *domain.Document) map[string]any {
	return map[string]any{
		"id":           d.ID,
		"name":         d.Name,
		"size":         d.Size,
		"media_type":   d.MediaType,
		"chunk_status": string(d.ChunkStatus),
		"chunk_count":  d.ChunkCount,
		"retry_count":  d.RetryCount,
		"created_at":   d.CreatedAt,
		"updated_at":   d.UpdatedAt,
	}
}

func chunkView(c *domain.Chunk) map[string]any {
	return map[string]any{
		"id":          c.ID,
		"document_id": c.DocumentID,
		"index":       c.Index,
		"content":     c.Content,
		"size":        c.Size,
		"vector_key":  c.VectorKey,
	}
}
