package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/vespauniversity/vespa-ragblueprint/internal/core/domain"
)

// Embedder wraps the Ollama embedding API. One Embedder is shared by all
// in-flight requests; inference never mutates state, so no locking is
// needed beyond the dimension pin below.
type Embedder struct {
	baseURL    string
	model      string
	httpClient *http.Client

	// The configured model's vector dimension is unknown until the first
	// call succeeds. It is pinned then; a later mismatch means the served
	// model changed under us and is an error.
	dimMu     sync.Mutex
	dimension int
}

func NewEmbedder(baseURL, model string, timeout time.Duration) *Embedder {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Embedder{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	request := map[string]any{
		"model": e.model,
		"input": []string{text},
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := e.postJSON(ctx, "/api/embed", request, &response); err != nil {
		return nil, err
	}
	if len(response.Embeddings) == 0 || len(response.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}

	vector := response.Embeddings[0]
	if err := e.checkDimension(len(vector)); err != nil {
		return nil, err
	}
	return vector, nil
}

// Dimension reports the pinned vector size, or 0 before the first
// successful call.
func (e *Embedder) Dimension() int {
	e.dimMu.Lock()
	defer e.dimMu.Unlock()
	return e.dimension
}

func (e *Embedder) checkDimension(got int) error {
	e.dimMu.Lock()
	defer e.dimMu.Unlock()
	if e.dimension == 0 {
		e.dimension = got
		return nil
	}
	if e.dimension != got {
		return fmt.Errorf("embedding dimension changed: pinned %d, got %d", e.dimension, got)
	}
	return nil
}

func (e *Embedder) postJSON(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		// Transport faults are transient from the caller's point of view.
		return domain.WrapError(domain.ErrTemporary, "ollama embed request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		msg := strings.TrimSpace(string(body))
		statusErr := fmt.Errorf("ollama embed status: %s", resp.Status)
		if msg != "" {
			statusErr = fmt.Errorf("ollama embed status: %s: %s", resp.Status, msg)
		}
		if resp.StatusCode >= 500 {
			return domain.WrapError(domain.ErrTemporary, "ollama embed", statusErr)
		}
		return statusErr
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode embed response: %w", err)
	}
	return nil
}
