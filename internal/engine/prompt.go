package engine

import (
	"fmt"
	"strings"

	"github.com/askbase/askbase/internal/model"
	"github.com/askbase/askbase/internal/session"
)

// DefaultPromptTemplate is used when a project has no template of its own.
const DefaultPromptTemplate = `You are an internal knowledge base assistant.
Answer the question using ONLY the reference fragments below.
- If the fragments do not contain the answer, say that the loaded documents have no information on this.
- Do not invent facts. Do not use outside knowledge.
- Keep the answer under {{max_length}} characters.

REFERENCE FRAGMENTS:
{{context}}

RECENT CONVERSATION:
{{history}}

QUESTION:
{{question}}`

func renderPrompt(template string, matches []*model.ChunkMatch, history []session.Turn, question string, maxLen int) string {
	if strings.TrimSpace(template) == "" {
		template = DefaultPromptTemplate
	}
	var ctxParts []string
	for i, m := range matches {
		ctxParts = append(ctxParts, fmt.Sprintf("[%d] %s", i+1, m.Content))
	}
	var histParts []string
	for _, turn := range history {
		histParts = append(histParts, "Q: "+turn.Question, "A: "+turn.Answer)
	}
	histText := strings.Join(histParts, "\n")
	if histText == "" {
		histText = "(none)"
	}
	out := template
	out = strings.ReplaceAll(out, "{{context}}", strings.Join(ctxParts, "\n\n"))
	out = strings.ReplaceAll(out, "{{history}}", histText)
	out = strings.ReplaceAll(out, "{{question}}", question)
	out = strings.ReplaceAll(out, "{{max_length}}", fmt.Sprintf("%d", maxLen))
	return out
}
