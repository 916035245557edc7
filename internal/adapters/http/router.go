// Package httpadapter exposes the retrieval pipeline over HTTP: a
// server-sent-events chat endpoint plus plain JSON search and stats.
package httpadapter

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/vespauniversity/vespa-ragblueprint/internal/core/domain"
	"github.com/vespauniversity/vespa-ragblueprint/internal/core/ports"
	"github.com/vespauniversity/vespa-ragblueprint/internal/observability/metrics"
)

type Router struct {
	service string
	chat    ports.ChatService
	search  ports.SearchService
	metrics *metrics.HTTPServerMetrics
	limiter *rate.Limiter
	logger  *slog.Logger
}

func NewRouter(
	service string,
	chat ports.ChatService,
	search ports.SearchService,
	m *metrics.HTTPServerMetrics,
	limiter *rate.Limiter,
	logger *slog.Logger,
) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		service: service,
		chat:    chat,
		search:  search,
		metrics: m,
		limiter: limiter,
		logger:  logger,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/chat", rt.chatStream)
	mux.HandleFunc("/v1/search", rt.directSearch)
	mux.HandleFunc("/v1/stats", rt.corpusStats)

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(rt.service, handler)
	}
	handler = rateLimitMiddleware(rt.limiter, handler)
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// chatRequestBody mirrors domain.ChatRequest but keeps query_k as a
// pointer: an absent field means "use the configured default", while an
// explicit 0 disables expansion entirely.
type chatRequestBody struct {
	Question     string        `json:"question"`
	History      []domain.Turn `json:"history"`
	HitsPerQuery int           `json:"hits"`
	TopK         int           `json:"k"`
	QueryK       *int          `json:"query_k"`
}

func (rt *Router) chatStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body chatRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if strings.TrimSpace(body.Question) == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	req := domain.ChatRequest{
		Question:     body.Question,
		History:      body.History,
		HitsPerQuery: body.HitsPerQuery,
		TopK:         body.TopK,
		QueryK:       -1,
	}
	if body.QueryK != nil {
		req.QueryK = *body.QueryK
	}

	stream, err := newEventStream(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	start := time.Now()
	status := "cancelled"
	queryCount := 0
	sourceCount := 0

	for event := range rt.chat.Stream(r.Context(), req) {
		switch event.Type {
		case domain.EventQueries:
			queryCount = len(event.Queries)
		case domain.EventSources:
			sourceCount = len(event.Sources)
		case domain.EventDone:
			status = "done"
		case domain.EventError:
			status = "error"
		}
		if rt.metrics != nil {
			rt.metrics.RecordStreamEvent(rt.service, string(event.Type))
		}
		if err := stream.send(event); err != nil {
			rt.logger.Warn("chat stream write failed",
				"request_id", requestIDFrom(r.Context()), "error", err)
			break
		}
	}

	if rt.metrics != nil {
		rt.metrics.RecordChatStream(rt.service, status, queryCount, sourceCount, time.Since(start))
	}
}

func (rt *Router) directSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body struct {
		Query string `json:"query"`
		Hits  int    `json:"hits"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	hits, err := rt.search.Search(r.Context(), body.Query, body.Hits)
	if err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"hits":  hits,
		"count": len(hits),
	})
}

func (rt *Router) corpusStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	stats, err := rt.search.Stats(r.Context())
	if err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
