package openaicompat

import (
	"fmt"
	"strings"

	"github.com/vespauniversity/vespa-ragblueprint/internal/core/domain"
)

const (
	historyTurnLimit   = 4
	historyContentCap  = 200
	expansionWordLimit = 12
)

const expansionSystemPrompt = `You generate concise, to-the-point search queries that help retrieve factual context for answering the user.
Do not change the meaning of the question.
Do not introduce new information, concepts, or ideas.
Prefer to reuse the provided context to stay on-topic.
Return only valid JSON.`

func buildExpansionMessages(question string, history []domain.Turn, grounding []domain.ChunkHit, n int) []message {
	var prompt strings.Builder
	writeConversationContext(&prompt, history)
	fmt.Fprintf(&prompt,
		"Create %d diverse, specific search queries (max %d words each) that would retrieve evidence to answer:\n%q.\n",
		n, expansionWordLimit, question,
	)
	prompt.WriteString("Grounding context:\n")
	if len(grounding) == 0 {
		prompt.WriteString("(no context found)\n")
	}
	for _, chunk := range grounding {
		fmt.Fprintf(&prompt, "- [%s] %s\n", chunk.Location, chunk.Text)
	}
	prompt.WriteString(`Respond as a JSON object like {"queries": ["query 1", "query 2"]}.`)

	return []message{
		{Role: "system", Content: expansionSystemPrompt},
		{Role: "user", Content: prompt.String()},
	}
}

const answerSystemPrompt = `You are a helpful assistant.
Answer the user's question using ONLY the provided context chunks.
If the answer is not in the chunks, say the provided context does not contain it.
Do not hallucinate.`

func buildAnswerMessages(question string, history []domain.Turn, chunks []domain.ChunkHit) []message {
	var contextText strings.Builder
	if len(chunks) == 0 {
		contextText.WriteString("(no context found)\n")
	}
	for _, chunk := range chunks {
		fmt.Fprintf(&contextText, "Source: %s\nContent: %s\n\n", chunk.Location, chunk.Text)
	}

	messages := make([]message, 0, len(history)+2)
	messages = append(messages, message{Role: "system", Content: answerSystemPrompt})
	for _, turn := range tailTurns(history, historyTurnLimit) {
		messages = append(messages, message{Role: turn.Role, Content: turn.Content})
	}
	messages = append(messages, message{
		Role:    "user",
		Content: fmt.Sprintf("Context:\n%s\nQuestion: %s", contextText.String(), question),
	})
	return messages
}

func writeConversationContext(b *strings.Builder, history []domain.Turn) {
	turns := tailTurns(history, historyTurnLimit)
	if len(turns) == 0 {
		return
	}
	b.WriteString("Previous conversation:\n")
	for _, turn := range turns {
		content := turn.Content
		if len(content) > historyContentCap {
			content = content[:historyContentCap]
		}
		fmt.Fprintf(b, "%s: %s\n", turn.Role, content)
	}
	b.WriteString("\n")
}

func tailTurns(history []domain.Turn, limit int) []domain.Turn {
	if len(history) <= limit {
		return history
	}
	return history[len(history)-limit:]
}
