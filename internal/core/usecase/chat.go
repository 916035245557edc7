package usecase

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/vespauniversity/vespa-ragblueprint/internal/core/domain"
	"github.com/vespauniversity/vespa-ragblueprint/internal/core/ports"
)

const (
	statusExpanding  = "generating search queries"
	statusSearching  = "searching"
	statusGenerating = "generating answer"
)

// ChatStreamUseCase orchestrates one user turn:
// expand -> fuse -> generate, emitting progress and fragments as a
// StreamEvent sequence. The sequence ends with exactly one done or error
// event, except on context cancellation where emission simply stops.
type ChatStreamUseCase struct {
	planner   *QueryPlanner
	fusion    *FusionEngine
	generator ports.AnswerStreamer
	notifier  ports.RequestNotifier
	logger    *slog.Logger

	defaults domain.ChatRequest
}

// NewChatStreamUseCase wires the pipeline stages. The defaults fill in
// request fields the caller left unset; zero-valued defaults fall back
// to 5 hits per query, 3 fused results and 3 expanded queries.
func NewChatStreamUseCase(
	planner *QueryPlanner,
	fusion *FusionEngine,
	generator ports.AnswerStreamer,
	notifier ports.RequestNotifier,
	logger *slog.Logger,
	defaults domain.ChatRequest,
) *ChatStreamUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	if defaults.HitsPerQuery <= 0 {
		defaults.HitsPerQuery = 5
	}
	if defaults.TopK <= 0 {
		defaults.TopK = 3
	}
	if defaults.QueryK <= 0 {
		defaults.QueryK = 3
	}
	return &ChatStreamUseCase{
		planner:   planner,
		fusion:    fusion,
		generator: generator,
		notifier:  notifier,
		logger:    logger,
		defaults:  defaults,
	}
}

func (uc *ChatStreamUseCase) Stream(ctx context.Context, req domain.ChatRequest) <-chan domain.StreamEvent {
	events := make(chan domain.StreamEvent)
	go func() {
		defer close(events)
		uc.run(ctx, req, events)
	}()
	return events
}

func (uc *ChatStreamUseCase) run(ctx context.Context, req domain.ChatRequest, events chan<- domain.StreamEvent) {
	start := time.Now()

	emit := func(event domain.StreamEvent) bool {
		select {
		case <-ctx.Done():
			return false
		case events <- event:
			return true
		}
	}

	req = uc.applyDefaults(req)
	if strings.TrimSpace(req.Question) == "" {
		emit(domain.ErrorEvent("question is required"))
		return
	}

	if !emit(domain.StatusEvent(statusExpanding)) {
		return
	}
	queries := uc.planner.Plan(ctx, req.Question, req.History, req.QueryK)
	if !emit(domain.QueriesEvent(queries)) {
		return
	}

	if !emit(domain.StatusEvent(statusSearching)) {
		return
	}
	sources, err := uc.fusion.Fuse(ctx, queries, req.HitsPerQuery, req.TopK)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		uc.logger.Error("retrieval_failed", "error", err)
		emit(domain.ErrorEvent("retrieval failed: "+err.Error()))
		uc.notify(ctx, req, queries, nil, start, "error")
		return
	}
	if !emit(domain.SourcesEvent(sources)) {
		return
	}

	// Empty context is not an error: the generator is still invoked and
	// is prompted to decline rather than invent an answer.
	if !emit(domain.StatusEvent(statusGenerating)) {
		return
	}
	deltas, err := uc.generator.StreamAnswer(ctx, req.Question, req.History, sources)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		uc.logger.Error("answer_generation_failed", "error", err)
		emit(domain.ErrorEvent("answer generation failed: "+err.Error()))
		uc.notify(ctx, req, queries, sources, start, "error")
		return
	}

	for delta := range deltas {
		if delta.Err != nil {
			if ctx.Err() != nil {
				return
			}
			uc.logger.Error("answer_stream_broken", "error", delta.Err)
			emit(domain.ErrorEvent("answer stream interrupted: " + delta.Err.Error()))
			uc.notify(ctx, req, queries, sources, start, "error")
			return
		}
		if delta.Thinking != "" && !emit(domain.ThinkingEvent(delta.Thinking)) {
			return
		}
		if delta.Answer != "" && !emit(domain.AnswerEvent(delta.Answer)) {
			return
		}
	}
	if ctx.Err() != nil {
		return
	}

	emit(domain.DoneEvent(sources))
	uc.notify(ctx, req, queries, sources, start, "done")
}

func (uc *ChatStreamUseCase) applyDefaults(req domain.ChatRequest) domain.ChatRequest {
	if req.HitsPerQuery <= 0 {
		req.HitsPerQuery = uc.defaults.HitsPerQuery
	}
	if req.TopK <= 0 {
		req.TopK = uc.defaults.TopK
	}
	if req.QueryK < 0 {
		req.QueryK = uc.defaults.QueryK
	}
	return req
}

func (uc *ChatStreamUseCase) notify(ctx context.Context, req domain.ChatRequest, queries []string, sources []domain.ChunkHit, start time.Time, status string) {
	if uc.notifier == nil {
		return
	}

	note := domain.AnsweredNote{
		RequestID:   RequestIDFromContext(ctx),
		Question:    req.Question,
		QueryCount:  len(queries),
		SourceCount: len(sources),
		DurationMS:  float64(time.Since(start).Microseconds()) / 1000.0,
		Status:      status,
	}

	// Delivery survives caller disconnects but never stalls a worker.
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	go func() {
		defer cancel()
		if err := uc.notifier.NotifyAnswered(notifyCtx, note); err != nil {
			uc.logger.Warn("answered_note_publish_failed", "error", err)
		}
	}()
}

type requestIDContextKey struct{}

// WithRequestID tags ctx with the serving layer's request identifier so
// published notes can be correlated with access logs.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDContextKey{}, requestID)
}

// RequestIDFromContext returns the identifier set by WithRequestID, or
// an empty string.
func RequestIDFromContext(ctx context.Context) string {
	requestID, _ := ctx.Value(requestIDContextKey{}).(string)
	return requestID
}
