// Package bootstrap assembles the retrieval pipeline from configuration:
// clients, use cases and the optional NATS publisher.
package bootstrap

import (
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/vespauniversity/vespa-ragblueprint/internal/config"
	"github.com/vespauniversity/vespa-ragblueprint/internal/core/domain"
	"github.com/vespauniversity/vespa-ragblueprint/internal/core/ports"
	"github.com/vespauniversity/vespa-ragblueprint/internal/core/usecase"
	"github.com/vespauniversity/vespa-ragblueprint/internal/infrastructure/llm/ollama"
	"github.com/vespauniversity/vespa-ragblueprint/internal/infrastructure/llm/openaicompat"
	natsqueue "github.com/vespauniversity/vespa-ragblueprint/internal/infrastructure/queue/nats"
	"github.com/vespauniversity/vespa-ragblueprint/internal/infrastructure/resilience"
	"github.com/vespauniversity/vespa-ragblueprint/internal/infrastructure/search/vespa"
)

type App struct {
	Config config.Config

	ChatUC   ports.ChatService
	SearchUC ports.SearchService
	Limiter  *rate.Limiter

	closeFn func()
}

func New(cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	searchBackend := vespa.New(cfg.VespaURL, cfg.VespaSchema, vespa.Options{
		RankingProfile: cfg.VespaRankingProfile,
		Summary:        cfg.VespaSummary,
		ChunkTopK:      cfg.VespaChunkTopK,
		QueryTimeout:   time.Duration(cfg.VespaQueryTimeoutSeconds) * time.Second,
	})

	embedder := ollama.NewEmbedder(cfg.OllamaURL, cfg.OllamaEmbedModel,
		time.Duration(cfg.OllamaTimeoutSeconds)*time.Second)

	llmClient := openaicompat.New(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel,
		time.Duration(cfg.LLMTimeoutSeconds)*time.Second)
	executor := resilience.NewExecutor(resilience.Policy{
		MaxAttempts:         cfg.RetryMaxAttempts,
		InitialBackoff:      time.Duration(cfg.RetryInitialBackoffMillis) * time.Millisecond,
		MaxBackoff:          time.Duration(cfg.RetryMaxBackoffMillis) * time.Millisecond,
		BreakerEnabled:      cfg.BreakerEnabled,
		BreakerFailureRatio: cfg.BreakerFailureRatio,
		BreakerOpenTimeout:  time.Duration(cfg.BreakerOpenTimeoutSeconds) * time.Second,
	})
	expander := openaicompat.NewExpander(llmClient, executor)
	generator := openaicompat.NewGenerator(llmClient, executor)

	var notifier ports.RequestNotifier
	var closeFn func()
	if cfg.NATSURL != "" {
		publisher, err := natsqueue.New(cfg.NATSURL, cfg.NATSSubject, natsqueue.Options{})
		if err != nil {
			return nil, fmt.Errorf("connect nats: %w", err)
		}
		notifier = publisher
		closeFn = publisher.Close
	}

	planner := usecase.NewQueryPlanner(expander, embedder, searchBackend, logger)
	fusion := usecase.NewFusionEngine(embedder, searchBackend,
		time.Duration(cfg.SearchTimeoutSeconds)*time.Second, logger)

	chatUC := usecase.NewChatStreamUseCase(planner, fusion, generator, notifier, logger,
		domain.ChatRequest{
			HitsPerQuery: cfg.HitsPerQuery,
			TopK:         cfg.FusedTopK,
			QueryK:       cfg.ExpandedQueries,
		})
	searchUC := usecase.NewSearchUseCase(embedder, searchBackend)

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		burst := cfg.RateLimitBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), burst)
	}

	return &App{
		Config:   cfg,
		ChatUC:   chatUC,
		SearchUC: searchUC,
		Limiter:  limiter,
		closeFn:  closeFn,
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
