package vespa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/vespauniversity/vespa-ragblueprint/internal/core/domain"
)

const (
	defaultRankingProfile = "base-features"
	defaultSummary        = "no-chunks"
)

// Client issues hybrid queries against one Vespa application. The ranking
// profile and document summary are fixed per deployment and passed through
// unchanged on every query.
type Client struct {
	baseURL    string
	schema     string
	ranking    string
	summary    string
	chunkTopK  int
	httpClient *http.Client
}

type Options struct {
	RankingProfile string
	Summary        string
	ChunkTopK      int
	QueryTimeout   time.Duration
}

func New(baseURL, schema string, options Options) *Client {
	ranking := options.RankingProfile
	if ranking == "" {
		ranking = defaultRankingProfile
	}
	summary := options.Summary
	if summary == "" {
		summary = defaultSummary
	}
	chunkTopK := options.ChunkTopK
	if chunkTopK <= 0 {
		chunkTopK = 3
	}
	queryTimeout := options.QueryTimeout
	if queryTimeout <= 0 {
		queryTimeout = 20 * time.Second
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		schema:     schema,
		ranking:    ranking,
		summary:    summary,
		chunkTopK:  chunkTopK,
		httpClient: &http.Client{Timeout: queryTimeout},
	}
}

// Search runs one hybrid query: lexical userInput matching on queryText
// combined with nearest-neighbor ranking on queryVector. Hits carry
// backend-computed scores; no local re-ranking happens here.
func (c *Client) Search(ctx context.Context, queryText string, queryVector []float32, limit int) ([]domain.ChunkHit, error) {
	if limit <= 0 {
		limit = 10
	}

	body := map[string]any{
		"yql":                          fmt.Sprintf("select * from %s where {defaultIndex:\"default\"}userInput(@query)", c.schema),
		"query":                        queryText,
		"hits":                         limit,
		"summary":                      c.summary,
		"ranking.profile":              c.ranking,
		"input.query(float_embedding)": queryVector,
		"input.query(k)":               c.chunkTopK,
		"timeout":                      fmt.Sprintf("%ds", int(c.httpClient.Timeout.Seconds())),
	}

	var response queryResponse
	if err := c.postQuery(ctx, body, &response); err != nil {
		return nil, err
	}
	return flattenHits(response, queryText), nil
}

type queryResponse struct {
	Root struct {
		Fields struct {
			TotalCount json.Number `json:"totalCount"`
		} `json:"fields"`
		Children []struct {
			Relevance       float64        `json:"relevance"`
			Fields          map[string]any `json:"fields"`
			SummaryFeatures map[string]any `json:"summaryfeatures"`
		} `json:"children"`
	} `json:"root"`
}

// flattenHits maps each document hit to one ChunkHit whose Text joins
// the document's selected chunks. Keeping one hit per location means
// downstream location dedup can never discard retrieved chunk text.
// The score comes from the ranking profile's best_chunk_score summary
// feature, falling back to hit relevance.
func flattenHits(response queryResponse, sourceQuery string) []domain.ChunkHit {
	out := make([]domain.ChunkHit, 0, len(response.Root.Children))
	for _, hit := range response.Root.Children {
		location := stringField(hit.Fields, "loc")
		if location == "" {
			location = stringField(hit.Fields, "id")
		}

		score := hit.Relevance
		features := hit.SummaryFeatures
		if features == nil {
			if nested, ok := hit.Fields["summaryfeatures"].(map[string]any); ok {
				features = nested
			}
		}
		if best, ok := numericField(features, "best_chunk_score"); ok {
			score = best
		}

		chunks := chunkTexts(hit.Fields)
		if len(chunks) == 0 {
			continue
		}
		out = append(out, domain.ChunkHit{
			Location:    location,
			Text:        strings.Join(chunks, "\n\n"),
			Score:       score,
			SourceQuery: sourceQuery,
		})
	}
	return out
}

func chunkTexts(fields map[string]any) []string {
	raw, ok := fields["chunks"].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if text, ok := item.(string); ok && text != "" {
			out = append(out, text)
		}
	}
	return out
}

func stringField(fields map[string]any, key string) string {
	v, ok := fields[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}

func numericField(fields map[string]any, key string) (float64, bool) {
	if fields == nil {
		return 0, false
	}
	switch v := fields[key].(type) {
	case float64:
		return v, true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func (c *Client) postQuery(ctx context.Context, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal query body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search/", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create query request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.WrapError(domain.ErrBackendUnavailable, "vespa query", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return queryStatusError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode query response: %w", err)
	}
	return nil
}

func queryStatusError(resp *http.Response) error {
	err := fmt.Errorf("vespa query status: %s", resp.Status)
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return domain.WrapError(domain.ErrUnauthorized, "vespa query", err)
	case resp.StatusCode >= 500:
		return domain.WrapError(domain.ErrBackendUnavailable, "vespa query", err)
	default:
		return err
	}
}
