// Package intent decides whether a user turn needs the data pipeline and,
// if so, rewrites it into a standalone query using the conversation so far.
package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/soumithganji/DineLytics/internal/engine"
)

// Completer is the chat completion dependency of the classifier.
type Completer interface {
	Chat(ctx context.Context, messages []engine.Message, schema *engine.Schema) (string, error)
}

// Result is the routing decision for one turn.
type Result struct {
	IsTask bool
	// RewrittenQuery is the standalone rewrite of a task query. Empty means
	// the original query should be used unchanged.
	RewrittenQuery string
}

// Query returns the rewrite if there is one, otherwise original.
func (r Result) Query(original string) string {
	if r.RewrittenQuery != "" {
		return r.RewrittenQuery
	}
	return original
}

// smallTalk matches turns that are obviously conversational.
var smallTalk = regexp.MustCompile(`(?i)^\s*(h(i|ello|ey|owdy|ola)` +
	`|thanks?( you)?|thx|ty` +
	`|bye|goodbye|see ya|later` +
	`|good (morning|afternoon|evening|night)` +
	`|what(s|\s*is)? up` +
	`|how are you` +
	`|ok(ay)?|sure|great|cool|nice|awesome` +
	`|yes|no|nope|yep|yeah` +
	`|who are you|what are you|what can you do` +
	`|help` +
	`)\s*[?!.]*\s*$`)

// IsSmallTalk reports whether query is a greeting, thanks, farewell, yes/no
// or similar, which never needs a model call to classify.
func IsSmallTalk(query string) bool {
	return smallTalk.MatchString(query)
}

// Classifier routes turns between general chat and the data pipeline.
type Classifier struct {
	llm Completer
}

// NewClassifier creates a Classifier using llm for ambiguous turns.
func NewClassifier(llm Completer) *Classifier {
	return &Classifier{llm: llm}
}

// Classify returns the routing decision for query. history is the rendered
// conversation before this turn.
//
// Small talk is answered without a model call. Otherwise exactly one
// completion request is made. If it fails or the reply does not validate, the
// turn is treated as a task with the original query.
func (c *Classifier) Classify(ctx context.Context, history, query string) Result {
	if IsSmallTalk(query) {
		slog.Debug("classified by fast path", "route", "general")
		return Result{}
	}

	raw, err := c.llm.Chat(ctx, BuildPrompt(history, query), replySchema())
	if err != nil {
		slog.Warn("query classification failed, routing to pipeline", "error", err)
		return Result{IsTask: true}
	}

	res, err := parseReply(raw)
	if err != nil {
		slog.Warn("unusable classification reply, routing to pipeline", "error", err, "response", raw)
		return Result{IsTask: true}
	}
	return res
}

type reply struct {
	Classification string  `json:"classification"`
	EnhancedQuery  *string `json:"enhanced_query"`
}

// parseReply validates a classification reply. It tolerates code fences,
// prose around the JSON object and syntax the repair library can fix, but
// the decoded object must carry a known classification and a string or null
// enhanced_query.
func parseReply(raw string) (Result, error) {
	obj := jsonObject(raw)
	if obj == "" {
		return Result{}, fmt.Errorf("no JSON object in reply")
	}

	var r reply
	if err := json.Unmarshal([]byte(obj), &r); err != nil {
		repaired, rerr := jsonrepair.JSONRepair(obj)
		if rerr != nil {
			return Result{}, fmt.Errorf("decoding reply: %w", err)
		}
		r = reply{}
		if err := json.Unmarshal([]byte(repaired), &r); err != nil {
			return Result{}, fmt.Errorf("decoding repaired reply: %w", err)
		}
	}

	switch strings.ToLower(strings.TrimSpace(r.Classification)) {
	case "general":
		return Result{}, nil
	case "task":
		res := Result{IsTask: true}
		if r.EnhancedQuery != nil && meaningful(*r.EnhancedQuery) {
			res.RewrittenQuery = strings.TrimSpace(*r.EnhancedQuery)
		}
		return res, nil
	default:
		return Result{}, fmt.Errorf("unknown classification %q", r.Classification)
	}
}

// jsonObject returns the outermost {...} span of s. An object missing its
// closing brace is returned to the end of s so it can be repaired.
func jsonObject(s string) string {
	start := strings.Index(s, "{")
	if start < 0 {
		return ""
	}
	end := strings.LastIndex(s, "}")
	if end < start {
		return s[start:]
	}
	return s[start : end+1]
}

// meaningful reports whether a rewrite carries a query rather than a
// placeholder for "nothing to rewrite".
func meaningful(q string) bool {
	switch strings.ToLower(strings.Trim(strings.TrimSpace(q), ".")) {
	case "", "none", "null", "n/a", "na", "no meaningful query", "no query":
		return false
	}
	return true
}
