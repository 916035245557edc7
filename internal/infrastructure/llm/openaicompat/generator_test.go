package openaicompat

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/vespauniversity/vespa-ragblueprint/internal/core/domain"
)

func sseServer(t *testing.T, frames []string, terminate bool) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		flusher := w.(http.Flusher)
		w.Header().Set("Content-Type", "text/event-stream")
		for _, frame := range frames {
			_, _ = w.Write([]byte("data: " + frame + "\n\n"))
			flusher.Flush()
		}
		if terminate {
			_, _ = w.Write([]byte("data: [DONE]\n\n"))
			flusher.Flush()
		}
	}))
}

func drainDeltas(t *testing.T, deltas <-chan domain.AnswerDelta) []domain.AnswerDelta {
	t.Helper()
	var out []domain.AnswerDelta
	deadline := time.After(5 * time.Second)
	for {
		select {
		case delta, ok := <-deltas:
			if !ok {
				return out
			}
			out = append(out, delta)
		case <-deadline:
			t.Fatalf("delta stream did not close")
		}
	}
}

func TestStreamAnswerSeparatesThinkingFromAnswer(t *testing.T) {
	server := sseServer(t, []string{
		`{"choices":[{"delta":{"reasoning":"weighing sources"}}]}`,
		`{"choices":[{"delta":{"content":"Vespa ranks "}}]}`,
		`{"choices":[{"delta":{"content":"with profiles."}}]}`,
	}, true)
	defer server.Close()

	generator := NewGenerator(New(server.URL, "", "m", time.Second), nil)
	deltas, err := generator.StreamAnswer(context.Background(), "q", nil, nil)
	if err != nil {
		t.Fatalf("StreamAnswer() error = %v", err)
	}

	collected := drainDeltas(t, deltas)
	if len(collected) != 3 {
		t.Fatalf("expected 3 deltas, got %d: %+v", len(collected), collected)
	}
	if collected[0].Thinking != "weighing sources" || collected[0].Answer != "" {
		t.Fatalf("expected leading thinking delta, got %+v", collected[0])
	}
	var answer strings.Builder
	for _, delta := range collected {
		answer.WriteString(delta.Answer)
	}
	if answer.String() != "Vespa ranks with profiles." {
		t.Fatalf("unexpected assembled answer: %q", answer.String())
	}
}

func TestStreamAnswerReadsReasoningContentVariant(t *testing.T) {
	server := sseServer(t, []string{
		`{"choices":[{"delta":{"reasoning_content":"thinking"}}]}`,
	}, true)
	defer server.Close()

	generator := NewGenerator(New(server.URL, "", "m", time.Second), nil)
	deltas, err := generator.StreamAnswer(context.Background(), "q", nil, nil)
	if err != nil {
		t.Fatalf("StreamAnswer() error = %v", err)
	}
	collected := drainDeltas(t, deltas)
	if len(collected) != 1 || collected[0].Thinking != "thinking" {
		t.Fatalf("expected reasoning_content mapped to thinking, got %+v", collected)
	}
}

func TestStreamAnswerMalformedChunkYieldsErrDelta(t *testing.T) {
	server := sseServer(t, []string{
		`{"choices":[{"delta":{"content":"partial"}}]}`,
		`{not json`,
	}, false)
	defer server.Close()

	generator := NewGenerator(New(server.URL, "", "m", time.Second), nil)
	deltas, err := generator.StreamAnswer(context.Background(), "q", nil, nil)
	if err != nil {
		t.Fatalf("StreamAnswer() error = %v", err)
	}

	collected := drainDeltas(t, deltas)
	last := collected[len(collected)-1]
	if last.Err == nil {
		t.Fatalf("expected trailing error delta, got %+v", collected)
	}
	if collected[0].Answer != "partial" {
		t.Fatalf("fragments before the failure must be delivered, got %+v", collected)
	}
}

func TestStreamAnswerFailedOpenReturnsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "no such model", http.StatusNotFound)
	}))
	defer server.Close()

	generator := NewGenerator(New(server.URL, "", "m", time.Second), nil)
	if _, err := generator.StreamAnswer(context.Background(), "q", nil, nil); err == nil {
		t.Fatalf("expected error when the stream cannot be opened")
	}
}

func TestStreamAnswerPromptGroundsOnContext(t *testing.T) {
	messages := buildAnswerMessages("what is a ranking profile?", []domain.Turn{
		{Role: domain.RoleUser, Content: "earlier question"},
		{Role: domain.RoleAssistant, Content: "earlier answer"},
	}, []domain.ChunkHit{
		{Location: "docs/ranking.html", Text: "Ranking profiles define scoring."},
	})

	if messages[0].Role != "system" || !strings.Contains(messages[0].Content, "ONLY the provided context") {
		t.Fatalf("expected grounding system prompt, got %+v", messages[0])
	}
	last := messages[len(messages)-1]
	if !strings.Contains(last.Content, "docs/ranking.html") {
		t.Fatalf("expected chunk labeled by source location, got %q", last.Content)
	}
	if len(messages) != 4 {
		t.Fatalf("expected system + 2 history turns + question, got %d messages", len(messages))
	}
}

func TestBuildAnswerMessagesEmptyContext(t *testing.T) {
	messages := buildAnswerMessages("q", nil, nil)
	last := messages[len(messages)-1]
	if !strings.Contains(last.Content, "(no context found)") {
		t.Fatalf("expected explicit empty-context marker, got %q", last.Content)
	}
}
