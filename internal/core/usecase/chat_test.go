package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vespauniversity/vespa-ragblueprint/internal/core/domain"
)

type streamerFake struct {
	deltas   []domain.AnswerDelta
	startErr error
	contexts [][]domain.ChunkHit
}

func (f *streamerFake) StreamAnswer(ctx context.Context, _ string, _ []domain.Turn, chunks []domain.ChunkHit) (<-chan domain.AnswerDelta, error) {
	f.contexts = append(f.contexts, chunks)
	if f.startErr != nil {
		return nil, f.startErr
	}
	out := make(chan domain.AnswerDelta)
	go func() {
		defer close(out)
		for _, delta := range f.deltas {
			select {
			case <-ctx.Done():
				return
			case out <- delta:
			}
		}
	}()
	return out, nil
}

func newChatUseCase(backend *backendFake, expander *expanderFake, streamer *streamerFake) *ChatStreamUseCase {
	return NewChatStreamUseCase(
		NewQueryPlanner(expander, nil, nil, nil),
		NewFusionEngine(&embedderFake{}, backend, time.Second, nil),
		streamer,
		nil,
		nil,
		domain.ChatRequest{},
	)
}

func collect(t *testing.T, events <-chan domain.StreamEvent) []domain.StreamEvent {
	t.Helper()
	var out []domain.StreamEvent
	deadline := time.After(5 * time.Second)
	for {
		select {
		case event, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, event)
		case <-deadline:
			t.Fatalf("event stream did not close, got so far: %+v", out)
		}
	}
}

func TestStreamEventOrderOnSuccess(t *testing.T) {
	backend := &backendFake{hits: map[string][]domain.ChunkHit{
		"q": {{Location: "d1", Score: 0.9}},
	}}
	streamer := &streamerFake{deltas: []domain.AnswerDelta{
		{Thinking: "considering"},
		{Answer: "part one "},
		{Answer: "part two"},
	}}
	uc := newChatUseCase(backend, &expanderFake{}, streamer)

	events := collect(t, uc.Stream(context.Background(), domain.ChatRequest{Question: "q"}))

	sourcesAt, firstAnswerAt, terminals := -1, -1, 0
	for i, event := range events {
		switch event.Type {
		case domain.EventSources:
			sourcesAt = i
		case domain.EventAnswer:
			if firstAnswerAt < 0 {
				firstAnswerAt = i
			}
		case domain.EventDone, domain.EventError:
			terminals++
			if i != len(events)-1 {
				t.Fatalf("terminal event not last: %+v", events)
			}
		}
	}
	if sourcesAt < 0 || firstAnswerAt < 0 || sourcesAt >= firstAnswerAt {
		t.Fatalf("expected sources before first answer, got events %+v", events)
	}
	if terminals != 1 {
		t.Fatalf("expected exactly one terminal event, got %d", terminals)
	}
	if events[len(events)-1].Type != domain.EventDone {
		t.Fatalf("expected done terminal, got %s", events[len(events)-1].Type)
	}
	if len(events[len(events)-1].Sources) != 1 {
		t.Fatalf("expected done to repeat fused sources")
	}
}

func TestStreamReachesDoneWhenExpansionFails(t *testing.T) {
	backend := &backendFake{hits: map[string][]domain.ChunkHit{
		"q": {{Location: "d1", Score: 0.9}},
	}}
	uc := newChatUseCase(backend, &expanderFake{err: errors.New("llm down")}, &streamerFake{deltas: []domain.AnswerDelta{{Answer: "ok"}}})

	events := collect(t, uc.Stream(context.Background(), domain.ChatRequest{Question: "q", QueryK: 3}))

	var queries []string
	for _, event := range events {
		if event.Type == domain.EventQueries {
			queries = event.Queries
		}
	}
	if len(queries) != 1 || queries[0] != "q" {
		t.Fatalf("expected degraded single-query retrieval, got %v", queries)
	}
	if events[len(events)-1].Type != domain.EventDone {
		t.Fatalf("expected done terminal, got %s", events[len(events)-1].Type)
	}
}

func TestStreamInvokesGeneratorOnEmptyRetrieval(t *testing.T) {
	streamer := &streamerFake{deltas: []domain.AnswerDelta{{Answer: "not in the provided context"}}}
	uc := newChatUseCase(&backendFake{}, &expanderFake{}, streamer)

	events := collect(t, uc.Stream(context.Background(), domain.ChatRequest{Question: "q"}))

	if len(streamer.contexts) != 1 {
		t.Fatalf("generator should be invoked exactly once, got %d", len(streamer.contexts))
	}
	if len(streamer.contexts[0]) != 0 {
		t.Fatalf("expected empty context passed through, got %d chunks", len(streamer.contexts[0]))
	}
	if events[len(events)-1].Type != domain.EventDone {
		t.Fatalf("expected done terminal, got %s", events[len(events)-1].Type)
	}
}

func TestStreamErrorTerminalWhenAllQueriesFail(t *testing.T) {
	backend := &backendFake{fails: map[string]error{"q": errors.New("vespa down")}}
	uc := newChatUseCase(backend, &expanderFake{}, &streamerFake{})

	events := collect(t, uc.Stream(context.Background(), domain.ChatRequest{Question: "q"}))

	last := events[len(events)-1]
	if last.Type != domain.EventError {
		t.Fatalf("expected error terminal, got %s", last.Type)
	}
	for _, event := range events {
		if event.Type == domain.EventAnswer || event.Type == domain.EventDone {
			t.Fatalf("unexpected %s after fatal retrieval failure", event.Type)
		}
	}
}

func TestStreamMidStreamFailureTerminatesWithError(t *testing.T) {
	backend := &backendFake{hits: map[string][]domain.ChunkHit{
		"q": {{Location: "d1", Score: 0.9}},
	}}
	streamer := &streamerFake{deltas: []domain.AnswerDelta{
		{Answer: "partial "},
		{Err: errors.New("upstream reset")},
	}}
	uc := newChatUseCase(backend, &expanderFake{}, streamer)

	events := collect(t, uc.Stream(context.Background(), domain.ChatRequest{Question: "q"}))

	last := events[len(events)-1]
	if last.Type != domain.EventError {
		t.Fatalf("expected error terminal after broken stream, got %s", last.Type)
	}
	sawPartial := false
	for _, event := range events {
		if event.Type == domain.EventAnswer {
			sawPartial = true
		}
	}
	if !sawPartial {
		t.Fatalf("partial answer fragments must not be retracted")
	}
}

func TestStreamStopsEmittingOnCancellation(t *testing.T) {
	backend := &backendFake{hits: map[string][]domain.ChunkHit{
		"q": {{Location: "d1", Score: 0.9}},
	}}
	streamer := &streamerFake{deltas: []domain.AnswerDelta{
		{Answer: "a"}, {Answer: "b"}, {Answer: "c"},
	}}
	uc := newChatUseCase(backend, &expanderFake{}, streamer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := uc.Stream(ctx, domain.ChatRequest{Question: "q"})

	// Consume up to and including sources, then disconnect.
	for event := range events {
		if event.Type == domain.EventSources {
			cancel()
			break
		}
	}

	var after []domain.StreamEvent
	deadline := time.After(5 * time.Second)
drain:
	for {
		select {
		case event, ok := <-events:
			if !ok {
				break drain
			}
			after = append(after, event)
		case <-deadline:
			t.Fatalf("stream did not close after cancellation")
		}
	}
	for _, event := range after {
		if event.Terminal() {
			t.Fatalf("no terminal event may be emitted after cancellation, got %s", event.Type)
		}
	}
	// At most the status event racing the cancel may slip through.
	if len(after) > 1 {
		t.Fatalf("expected emission to stop after cancellation, got %+v", after)
	}
}

func TestStreamRejectsEmptyQuestion(t *testing.T) {
	uc := newChatUseCase(&backendFake{}, &expanderFake{}, &streamerFake{})

	events := collect(t, uc.Stream(context.Background(), domain.ChatRequest{Question: "   "}))
	if len(events) != 1 || events[0].Type != domain.EventError {
		t.Fatalf("expected single error event, got %+v", events)
	}
}
