package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/vespauniversity/vespa-ragblueprint/internal/core/domain"
)

type expanderFake struct {
	queries   []string
	err       error
	calls     int
	grounding []domain.ChunkHit
}

func (f *expanderFake) Expand(_ context.Context, _ string, _ []domain.Turn, grounding []domain.ChunkHit, _ int) ([]string, error) {
	f.calls++
	f.grounding = grounding
	if f.err != nil {
		return nil, f.err
	}
	return f.queries, nil
}

func TestPlanPrependsOriginalQuestion(t *testing.T) {
	planner := NewQueryPlanner(&expanderFake{queries: []string{"alt one", "alt two"}}, nil, nil, nil)

	queries := planner.Plan(context.Background(), "what is vespa", nil, 2)
	if len(queries) != 3 {
		t.Fatalf("expected 3 queries, got %d: %v", len(queries), queries)
	}
	if queries[0] != "what is vespa" {
		t.Fatalf("expected original question first, got %q", queries[0])
	}
}

func TestPlanDegradesToQuestionOnExpanderError(t *testing.T) {
	planner := NewQueryPlanner(&expanderFake{err: errors.New("llm timeout")}, nil, nil, nil)

	queries := planner.Plan(context.Background(), "what is vespa", nil, 3)
	if len(queries) != 1 || queries[0] != "what is vespa" {
		t.Fatalf("expected degraded single-query plan, got %v", queries)
	}
}

func TestPlanSkipsExpansionWhenQueryKZero(t *testing.T) {
	expander := &expanderFake{queries: []string{"unused"}}
	planner := NewQueryPlanner(expander, nil, nil, nil)

	queries := planner.Plan(context.Background(), "question", nil, 0)
	if len(queries) != 1 {
		t.Fatalf("expected question only, got %v", queries)
	}
	if expander.calls != 0 {
		t.Fatalf("expander should not be called for query_k=0")
	}
}

func TestPlanDeduplicatesCaseInsensitively(t *testing.T) {
	planner := NewQueryPlanner(&expanderFake{queries: []string{"What Is Vespa", "vespa internals", ""}}, nil, nil, nil)

	queries := planner.Plan(context.Background(), "what is vespa", nil, 3)
	if len(queries) != 2 {
		t.Fatalf("expected restatement and blank dropped, got %v", queries)
	}
	if queries[1] != "vespa internals" {
		t.Fatalf("expected distinct expansion kept, got %v", queries)
	}
}

func TestPlanGroundsExpansionInQuestionHits(t *testing.T) {
	expander := &expanderFake{queries: []string{"vespa ranking profile"}}
	backend := &backendFake{hits: map[string][]domain.ChunkHit{
		"what is vespa": {{Location: "doc:1", Text: "vespa is a search engine", Score: 0.9}},
	}}
	planner := NewQueryPlanner(expander, &embedderFake{}, backend, nil)

	planner.Plan(context.Background(), "what is vespa", nil, 2)
	if len(expander.grounding) != 1 || expander.grounding[0].Location != "doc:1" {
		t.Fatalf("expected question hits handed to expander, got %v", expander.grounding)
	}
}

func TestPlanExpandsUngroundedWhenRetrievalFails(t *testing.T) {
	expander := &expanderFake{queries: []string{"alt"}}
	backend := &backendFake{fails: map[string]error{"what is vespa": errors.New("search down")}}
	planner := NewQueryPlanner(expander, &embedderFake{}, backend, nil)

	queries := planner.Plan(context.Background(), "what is vespa", nil, 2)
	if expander.grounding != nil {
		t.Fatalf("expected no grounding after retrieval failure, got %v", expander.grounding)
	}
	if len(queries) != 2 {
		t.Fatalf("expected expansion to proceed ungrounded, got %v", queries)
	}
}
