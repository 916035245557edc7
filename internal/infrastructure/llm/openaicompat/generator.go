package openaicompat

import (
	"context"
	"io"

	"github.com/vespauniversity/vespa-ragblueprint/internal/core/domain"
	"github.com/vespauniversity/vespa-ragblueprint/internal/infrastructure/resilience"
)

// Generator streams grounded answers. Fragments are forwarded as they
// arrive; nothing is buffered until completion. Opening the stream goes
// through the resilience executor; once the first byte may have been
// produced the call is never retried.
type Generator struct {
	client   *Client
	executor *resilience.Executor
}

func NewGenerator(client *Client, executor *resilience.Executor) *Generator {
	return &Generator{
		client:   client,
		executor: executor,
	}
}

func (g *Generator) StreamAnswer(
	ctx context.Context,
	question string,
	history []domain.Turn,
	contextChunks []domain.ChunkHit,
) (<-chan domain.AnswerDelta, error) {
	request := completionRequest{
		Messages: buildAnswerMessages(question, history, contextChunks),
	}

	var body io.ReadCloser
	open := func(ctx context.Context) error {
		var err error
		body, err = g.client.startStream(ctx, request)
		return err
	}

	var err error
	if g.executor != nil {
		err = g.executor.Execute(ctx, "llm generate", open, classifyLLMError)
	} else {
		err = open(ctx)
	}
	if err != nil {
		return nil, err
	}

	out := make(chan domain.AnswerDelta)
	go func() {
		defer close(out)
		defer body.Close()

		streamErr := readStream(body, func(delta streamDelta) bool {
			select {
			case <-ctx.Done():
				return false
			case out <- domain.AnswerDelta{Thinking: delta.Thinking, Answer: delta.Answer}:
				return true
			}
		})
		if streamErr != nil && ctx.Err() == nil {
			select {
			case <-ctx.Done():
			case out <- domain.AnswerDelta{Err: streamErr}:
			}
		}
	}()
	return out, nil
}
