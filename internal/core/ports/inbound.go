package ports

import (
	"context"

	"github.com/vespauniversity/vespa-ragblueprint/internal/core/domain"
)

// ChatService is the inbound contract for the orchestrated retrieval
// pipeline. The returned channel delivers events in state-machine order
// and is closed after the terminal event; on context cancellation the
// channel is closed without one.
type ChatService interface {
	Stream(ctx context.Context, req domain.ChatRequest) <-chan domain.StreamEvent
}

// SearchService is the inbound contract for direct single-query search.
type SearchService interface {
	Search(ctx context.Context, query string, hits int) ([]domain.ChunkHit, error)
	Stats(ctx context.Context) (domain.CorpusStats, error)
}
