package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/vespauniversity/vespa-ragblueprint/internal/core/domain"
	"github.com/vespauniversity/vespa-ragblueprint/internal/core/ports"
)

// SearchUseCase serves direct single-query hybrid search, bypassing
// expansion and fusion.
type SearchUseCase struct {
	embedder ports.Embedder
	backend  ports.SearchBackend
}

func NewSearchUseCase(embedder ports.Embedder, backend ports.SearchBackend) *SearchUseCase {
	return &SearchUseCase{
		embedder: embedder,
		backend:  backend,
	}
}

func (uc *SearchUseCase) Search(ctx context.Context, query string, hits int) ([]domain.ChunkHit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "search", fmt.Errorf("query is required"))
	}
	if hits <= 0 {
		hits = 10
	}

	vector, err := uc.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return uc.backend.Search(ctx, query, vector, hits)
}

func (uc *SearchUseCase) Stats(ctx context.Context) (domain.CorpusStats, error) {
	return uc.backend.Stats(ctx)
}
