package ports

import (
	"context"

	"github.com/vespauniversity/vespa-ragblueprint/internal/core/domain"
)

// Embedder turns query text into a fixed-dimension vector. The backing
// model is loaded once per process and safe for concurrent use.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// SearchBackend executes one hybrid (lexical + vector) query and returns
// backend-scored hits. An empty slice is a valid zero-hit response;
// connectivity and auth failures are typed errors.
type SearchBackend interface {
	Search(ctx context.Context, queryText string, queryVector []float32, limit int) ([]domain.ChunkHit, error)
	Stats(ctx context.Context) (domain.CorpusStats, error)
}

// QueryExpander proposes up to n alternative search queries for a
// question. Grounding carries the question's own top hits; expansions
// should reuse their vocabulary rather than invent new terms.
type QueryExpander interface {
	Expand(ctx context.Context, question string, history []domain.Turn, grounding []domain.ChunkHit, n int) ([]string, error)
}

// AnswerStreamer produces a grounded answer as an incremental delta stream.
// The channel is closed when generation finishes; a delta with Err set is
// the last element of a broken stream.
type AnswerStreamer interface {
	StreamAnswer(ctx context.Context, question string, history []domain.Turn, contextChunks []domain.ChunkHit) (<-chan domain.AnswerDelta, error)
}

// RequestNotifier publishes a fire-and-forget record of a completed chat
// request for downstream consumers. Implementations must not block the
// pipeline on delivery.
type RequestNotifier interface {
	NotifyAnswered(ctx context.Context, note domain.AnsweredNote) error
}
