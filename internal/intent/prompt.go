package intent

import (
	"fmt"
	"strings"

	"github.com/soumithganji/DineLytics/internal/engine"
	"github.com/soumithganji/DineLytics/internal/textutil"
)

const systemPrompt = `Return only valid JSON.`

const instructions = `1. CLASSIFY as "task" (data/analytics: orders, sales, revenue, products, stores, metrics, trends) or "general" (greetings, chitchat, questions about the assistant).
2. If task: rewrite the query using the conversation context so it stands alone (resolve pronouns, add missing context). Keep time-unspecified queries as-is ("till now" means all data). If general: enhanced_query=null.

Return ONLY JSON: {"classification":"task"|"general","enhanced_query":"..."|null}`

// BuildPrompt constructs the chat messages for classifying query given the
// rendered conversation history. Both are quoted so their content cannot
// alter the instructions.
func BuildPrompt(history, query string) []engine.Message {
	var sb strings.Builder
	sb.WriteString("You are a classifier for DineLytics (food delivery analytics).\n\n")
	fmt.Fprintf(&sb, "Conversation: %s\n", textutil.Quote(history))
	fmt.Fprintf(&sb, "Query: %s\n\n", textutil.Quote(query))
	sb.WriteString(instructions)

	return []engine.Message{
		{Role: engine.RoleSystem, Content: systemPrompt},
		{Role: engine.RoleUser, Content: sb.String()},
	}
}

// replySchema is the structured output requested from backends that support it.
func replySchema() *engine.Schema {
	return &engine.Schema{
		Type: "object",
		Properties: map[string]engine.SchemaProperty{
			"classification": {Type: "string", Description: `Either "task" or "general"`},
			"enhanced_query": {Type: "string", Description: "Standalone rewrite of a task query, or null"},
		},
		Required: []string{"classification", "enhanced_query"},
	}
}
