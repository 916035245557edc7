package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/vespauniversity/vespa-ragblueprint/internal/core/domain"
	"github.com/vespauniversity/vespa-ragblueprint/internal/core/ports"
)

// FusionEngine runs embed+search for every planned query, merges the
// per-query hit lists into one pool, deduplicates by location keeping the
// highest-scoring occurrence, and returns the global top-k.
type FusionEngine struct {
	embedder ports.Embedder
	backend  ports.SearchBackend
	logger   *slog.Logger

	perQueryTimeout time.Duration
}

func NewFusionEngine(embedder ports.Embedder, backend ports.SearchBackend, perQueryTimeout time.Duration, logger *slog.Logger) *FusionEngine {
	if perQueryTimeout <= 0 {
		perQueryTimeout = 20 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FusionEngine{
		embedder:        embedder,
		backend:         backend,
		logger:          logger,
		perQueryTimeout: perQueryTimeout,
	}
}

// Fuse fans out one embed+search per query and fans results back in.
// A failed query contributes nothing; only when every query fails does
// Fuse return an error. Zero hits across all queries is a valid empty
// result.
func (f *FusionEngine) Fuse(ctx context.Context, queries []string, hitsPerQuery, k int) ([]domain.ChunkHit, error) {
	if len(queries) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "fuse", fmt.Errorf("no queries"))
	}
	if hitsPerQuery <= 0 {
		hitsPerQuery = 5
	}
	if k <= 0 {
		k = 3
	}

	// Results are collected per query index so the candidate pool keeps
	// the planner's query order regardless of goroutine completion order.
	results := make([][]domain.ChunkHit, len(queries))
	errs := make([]error, len(queries))

	var wg sync.WaitGroup
	for i, query := range queries {
		wg.Add(1)
		go func(idx int, q string) {
			defer wg.Done()
			queryCtx, cancel := context.WithTimeout(ctx, f.perQueryTimeout)
			defer cancel()
			results[idx], errs[idx] = f.searchOne(queryCtx, q, hitsPerQuery)
		}(i, query)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	failed := 0
	pool := make([]domain.ChunkHit, 0, len(queries)*hitsPerQuery)
	for i := range queries {
		if errs[i] != nil {
			failed++
			f.logger.Warn("query_retrieval_failed", "query", queries[i], "error", errs[i])
			continue
		}
		pool = append(pool, results[i]...)
	}
	if failed == len(queries) {
		return nil, domain.WrapError(domain.ErrBackendUnavailable, "fuse", fmt.Errorf("all %d queries failed, last: %w", len(queries), errs[len(errs)-1]))
	}

	fused := dedupeByLocation(pool)
	sort.SliceStable(fused, func(i, j int) bool {
		return fused[i].Score > fused[j].Score
	})
	if len(fused) > k {
		fused = fused[:k]
	}
	return fused, nil
}

func (f *FusionEngine) searchOne(ctx context.Context, query string, limit int) ([]domain.ChunkHit, error) {
	vector, err := f.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := f.backend.Search(ctx, query, vector, limit)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	for i := range hits {
		if hits[i].SourceQuery == "" {
			hits[i].SourceQuery = query
		}
	}
	return hits, nil
}

// dedupeByLocation keeps one hit per location: the highest-scoring
// occurrence, at the position of its first appearance so equal scores
// stay in first-seen order after the stable sort.
func dedupeByLocation(pool []domain.ChunkHit) []domain.ChunkHit {
	out := make([]domain.ChunkHit, 0, len(pool))
	index := make(map[string]int, len(pool))
	for _, hit := range pool {
		at, ok := index[hit.Location]
		if !ok {
			index[hit.Location] = len(out)
			out = append(out, hit)
			continue
		}
		if hit.Score > out[at].Score {
			out[at] = hit
		}
	}
	return out
}
