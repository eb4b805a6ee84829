// ABOUTME: HTTP API for answering questions over the index
// ABOUTME: JSON answers on /api/query and server-sent event streams on /api/query/stream
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/harper/docrag/internal/models"
	"github.com/harper/docrag/internal/rag"
)

// Answerer produces complete and streamed answers
type Answerer interface {
	Answer(ctx context.Context, q rag.Query) (*rag.Answer, error)
	AnswerStream(ctx context.Context, q rag.Query) *rag.Stream
}

// Counter reports how many chunks are indexed
type Counter interface {
	Len() int
}

// QueryRequest is the JSON body accepted by the query endpoints
type QueryRequest struct {
	Query        string        `json:"query"`
	TopK         int           `json:"top_k,omitempty"`
	ScoreFloor   *float64      `json:"score_floor,omitempty"`
	History      []models.Turn `json:"history,omitempty"`
	AnswerAnyway bool          `json:"answer_anyway,omitempty"`
}

// Server is the HTTP server for the query API
type Server struct {
	answerer  Answerer
	retriever rag.Retriever
	index     Counter
	addr      string
	logger    *log.Logger
}

// New creates a Server. retriever and index may be nil, which disables
// /api/search and the chunk count in /api/health.
func New(answerer Answerer, retriever rag.Retriever, index Counter, addr string, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Server{
		answerer:  answerer,
		retriever: retriever,
		index:     index,
		addr:      addr,
		logger:    logger,
	}
}

// Handler returns the routed API handler
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/query", s.handleQuery)
	mux.HandleFunc("/api/query/stream", s.handleQueryStream)
	mux.HandleFunc("/api/search", s.handleSearch)
	mux.HandleFunc("/api/health", s.handleHealth)
	return corsMiddleware(s.loggingMiddleware(mux))
}

// Start runs the HTTP server until ctx is done
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:        s.addr,
		Handler:     s.Handler(),
		ReadTimeout: 15 * time.Second,
		// Streams stay open for the whole generation
		WriteTimeout: 300 * time.Second,
	}

	s.logger.Printf("docrag API listening on %s", s.addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.logger.Printf("Warning: shutdown: %v", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	req, err := decodeQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ans, err := s.answerer.Answer(r.Context(), req.query())
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ans)
}

func (s *Server) handleQueryStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	req, err := decodeQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	stream := s.answerer.AnswerStream(r.Context(), req.query())
	defer stream.Close()

	for {
		ev, ok := stream.Next()
		if !ok {
			return
		}
		var payload map[string]any
		switch {
		case ev.Err != nil:
			payload = map[string]any{"error": ev.Err.Error()}
		case ev.Finished:
			payload = map[string]any{"finished": true}
		default:
			payload = map[string]any{"delta": ev.Delta}
		}
		if err := sendSSE(w, flusher, payload); err != nil {
			// Client went away; Close cancels generation
			return
		}
	}
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if s.retriever == nil {
		writeError(w, http.StatusNotFound, "search is not enabled")
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	req, err := decodeQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	topK := req.TopK
	if topK == 0 {
		topK = rag.DefaultTopK
	}

	res, err := s.retriever.Retrieve(r.Context(), req.Query, topK, req.ScoreFloor)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	if res == nil {
		res = models.RetrievalResult{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": res})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok"}
	if s.index != nil {
		body["chunks"] = s.index.Len()
	}
	writeJSON(w, http.StatusOK, body)
}

// decodeQuery reads a QueryRequest from a JSON body, or from the q, top_k
// and score_floor URL parameters for GET requests
func decodeQuery(r *http.Request) (QueryRequest, error) {
	var req QueryRequest
	if r.Method == http.MethodGet {
		params := r.URL.Query()
		req.Query = params.Get("q")
		if v := params.Get("top_k"); v != "" {
			k, err := strconv.Atoi(v)
			if err != nil {
				return req, fmt.Errorf("invalid top_k %q", v)
			}
			req.TopK = k
		}
		if v := params.Get("score_floor"); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return req, fmt.Errorf("invalid score_floor %q", v)
			}
			req.ScoreFloor = &f
		}
	} else if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, fmt.Errorf("invalid JSON body: %w", err)
	}

	if req.Query == "" {
		return req, fmt.Errorf("query required")
	}
	if req.TopK < 0 {
		return req, fmt.Errorf("top_k must be positive, got %d", req.TopK)
	}
	return req, nil
}

func (q QueryRequest) query() rag.Query {
	return rag.Query{
		Text:         q.Query,
		TopK:         q.TopK,
		ScoreFloor:   q.ScoreFloor,
		History:      q.History,
		AnswerAnyway: q.AnswerAnyway,
	}
}

// statusFor maps pipeline error kinds to HTTP status codes
func statusFor(err error) int {
	kind, ok := models.KindOf(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch kind {
	case models.KindInvalidArgument:
		return http.StatusBadRequest
	case models.KindEmbeddingUnavailable:
		return http.StatusServiceUnavailable
	case models.KindGenerationFailure:
		return http.StatusBadGateway
	case models.KindDimensionOrModelMismatch:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func sendSSE(w io.Writer, flusher http.Flusher, data map[string]any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", jsonData); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Printf("%s %s %v", r.Method, r.URL.Path, time.Since(start))
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			return
		}
		next.ServeHTTP(w, r)
	})
}
