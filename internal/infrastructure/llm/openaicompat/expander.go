package openaicompat

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/vespauniversity/vespa-ragblueprint/internal/core/domain"
	"github.com/vespauniversity/vespa-ragblueprint/internal/infrastructure/resilience"
)

// Low-to-moderate sampling keeps expansions reproducible while still
// allowing query diversity.
const expansionTemperature = 0.3

// Expander asks the chat model for alternative search queries.
type Expander struct {
	client   *Client
	executor *resilience.Executor
}

func NewExpander(client *Client, executor *resilience.Executor) *Expander {
	return &Expander{
		client:   client,
		executor: executor,
	}
}

func (e *Expander) Expand(ctx context.Context, question string, history []domain.Turn, grounding []domain.ChunkHit, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}

	temperature := expansionTemperature
	request := completionRequest{
		Messages:       buildExpansionMessages(question, history, grounding, n),
		Temperature:    &temperature,
		ResponseFormat: &responseFormat{Type: "json_object"},
	}

	var raw string
	call := func(ctx context.Context) error {
		var err error
		raw, err = e.client.complete(ctx, request)
		if jsonModeUnsupported(err) {
			// Local servers may reject response_format; retry bare once.
			fallback := request
			fallback.ResponseFormat = nil
			raw, err = e.client.complete(ctx, fallback)
		}
		return err
	}

	var err error
	if e.executor != nil {
		err = e.executor.Execute(ctx, "llm expand", call, classifyLLMError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, err
	}

	return parseQueries(raw, n), nil
}

func jsonModeUnsupported(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "response_format") || strings.Contains(msg, "json_object")
}

// parseQueries decodes the expected {"queries": [...]} object, falling
// back to line splitting for models that ignore the format instruction.
func parseQueries(raw string, n int) []string {
	var parsed struct {
		Queries []string `json:"queries"`
	}
	var queries []string
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &parsed); err == nil {
		queries = parsed.Queries
	}

	if len(queries) == 0 {
		for _, line := range strings.Split(raw, "\n") {
			candidate := strings.Trim(line, " -•\t\"")
			if candidate != "" && !strings.HasPrefix(candidate, "{") && !strings.HasPrefix(candidate, "}") {
				queries = append(queries, candidate)
			}
		}
	}

	out := make([]string, 0, n)
	seen := make(map[string]struct{}, n)
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
		if len(out) >= n {
			break
		}
	}
	return out
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
