package domain

// ChunkHit is one retrieved passage candidate. Location identifies the
// source record and is the dedup/citation key within a fused result.
type ChunkHit struct {
	Location    string  `json:"loc"`
	Text        string  `json:"chunk"`
	Score       float64 `json:"score"`
	SourceQuery string  `json:"source_query,omitempty"`
}

type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatRequest is the orchestrator input for one user turn.
type ChatRequest struct {
	Question     string `json:"question"`
	History      []Turn `json:"history"`
	HitsPerQuery int    `json:"hits"`
	TopK         int    `json:"k"`
	QueryK       int    `json:"query_k"`
}

// AnsweredNote is the compact record published after a chat request
// reaches a terminal state. It carries aggregates only, never chunk text.
type AnsweredNote struct {
	RequestID   string  `json:"request_id"`
	Question    string  `json:"question"`
	QueryCount  int     `json:"query_count"`
	SourceCount int     `json:"source_count"`
	DurationMS  float64 `json:"duration_ms"`
	Status      string  `json:"status"`
}

// CorpusStats describes the search backend's indexed corpus.
type CorpusStats struct {
	Schema    string `json:"schema"`
	Documents int    `json:"documents"`
	Reachable bool   `json:"reachable"`
}
