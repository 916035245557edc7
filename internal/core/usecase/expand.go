package usecase

import (
	"context"
	"log/slog"
	"strings"

	"github.com/vespauniversity/vespa-ragblueprint/internal/core/domain"
	"github.com/vespauniversity/vespa-ragblueprint/internal/core/ports"
)

// Expansion prompts carry at most this many of the question's own hits.
const groundingLimit = 5

// QueryPlanner builds the retrieval query list for one user turn.
// The original question is always query 0; LLM-expanded queries follow.
// Before expanding, the planner retrieves the question's own top hits
// and hands them to the expander as grounding, keeping expansions on
// the corpus vocabulary. Expansion is an optimization: any expander or
// grounding failure degrades gracefully and is never surfaced.
type QueryPlanner struct {
	expander ports.QueryExpander
	embedder ports.Embedder
	backend  ports.SearchBackend
	logger   *slog.Logger
}

func NewQueryPlanner(expander ports.QueryExpander, embedder ports.Embedder, backend ports.SearchBackend, logger *slog.Logger) *QueryPlanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryPlanner{
		expander: expander,
		embedder: embedder,
		backend:  backend,
		logger:   logger,
	}
}

func (p *QueryPlanner) Plan(ctx context.Context, question string, history []domain.Turn, queryK int) []string {
	question = strings.TrimSpace(question)
	if queryK <= 0 || p.expander == nil {
		return []string{question}
	}

	expanded, err := p.expander.Expand(ctx, question, history, p.grounding(ctx, question), queryK)
	if err != nil {
		p.logger.Warn("query_expansion_failed", "error", err)
		return []string{question}
	}

	return dedupeQueries(append([]string{question}, expanded...), queryK+1)
}

// grounding retrieves the question's top hits for the expansion prompt.
// A failure just means ungrounded expansion.
func (p *QueryPlanner) grounding(ctx context.Context, question string) []domain.ChunkHit {
	if p.embedder == nil || p.backend == nil {
		return nil
	}
	vector, err := p.embedder.EmbedQuery(ctx, question)
	if err != nil {
		p.logger.Warn("grounding_embed_failed", "error", err)
		return nil
	}
	hits, err := p.backend.Search(ctx, question, vector, groundingLimit)
	if err != nil {
		p.logger.Warn("grounding_search_failed", "error", err)
		return nil
	}
	if len(hits) > groundingLimit {
		hits = hits[:groundingLimit]
	}
	return hits
}

// dedupeQueries keeps first occurrences, comparing case-insensitively.
func dedupeQueries(queries []string, limit int) []string {
	out := make([]string, 0, len(queries))
	seen := make(map[string]struct{}, len(queries))
	for _, q := range queries {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		key := strings.ToLower(q)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, q)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}
