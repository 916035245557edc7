package openaicompat

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
			// Reasoning-capable models expose a separate channel; the
			// field name varies by provider.
			Reasoning        string `json:"reasoning"`
			ReasoningContent string `json:"reasoning_content"`
		} `json:"delta"`
	} `json:"choices"`
}

type streamDelta struct {
	Thinking string
	Answer   string
}

// readStream decodes one SSE-framed completion stream, invoking yield per
// delta in arrival order. It returns nil on the [DONE] sentinel or EOF,
// and the transport error on a broken stream. yield returning false
// abandons the stream.
func readStream(body io.Reader, yield func(streamDelta) bool) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		payload, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		payload = strings.TrimSpace(payload)
		if payload == "[DONE]" {
			return nil
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			return fmt.Errorf("decode stream chunk: %w", err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		delta := chunk.Choices[0].Delta
		thinking := delta.Reasoning
		if thinking == "" {
			thinking = delta.ReasoningContent
		}
		if thinking == "" && delta.Content == "" {
			continue
		}
		if !yield(streamDelta{Thinking: thinking, Answer: delta.Content}) {
			return nil
		}
	}
	return scanner.Err()
}
