package domain

type EventType string

const (
	EventStatus   EventType = "status"
	EventQueries  EventType = "queries"
	EventSources  EventType = "sources"
	EventThinking EventType = "thinking"
	EventAnswer   EventType = "answer"
	EventDone     EventType = "done"
	EventError    EventType = "error"
)

// StreamEvent is one element of the orchestrated chat stream. The field
// that is populated depends on Type; Done and Error are terminal and each
// stream carries exactly one of them.
type StreamEvent struct {
	Type     EventType  `json:"type"`
	Message  string     `json:"message,omitempty"`
	Queries  []string   `json:"queries,omitempty"`
	Sources  []ChunkHit `json:"sources,omitempty"`
	Fragment string     `json:"fragment,omitempty"`
}

func StatusEvent(message string) StreamEvent {
	return StreamEvent{Type: EventStatus, Message: message}
}

func QueriesEvent(queries []string) StreamEvent {
	return StreamEvent{Type: EventQueries, Queries: queries}
}

func SourcesEvent(sources []ChunkHit) StreamEvent {
	return StreamEvent{Type: EventSources, Sources: sources}
}

func ThinkingEvent(fragment string) StreamEvent {
	return StreamEvent{Type: EventThinking, Fragment: fragment}
}

func AnswerEvent(fragment string) StreamEvent {
	return StreamEvent{Type: EventAnswer, Fragment: fragment}
}

func DoneEvent(sources []ChunkHit) StreamEvent {
	return StreamEvent{Type: EventDone, Sources: sources}
}

func ErrorEvent(message string) StreamEvent {
	return StreamEvent{Type: EventError, Message: message}
}

func (e StreamEvent) Terminal() bool {
	return e.Type == EventDone || e.Type == EventError
}

// AnswerDelta is one fragment of a streamed completion. Thinking deltas
// carry model reasoning when the backing model exposes a separate
// reasoning channel; Err, when set, terminates the stream.
type AnswerDelta struct {
	Thinking string
	Answer   string
	Err      error
}
