// Package pipeline answers data questions: it generates a query program,
// runs it, repairs it once if it fails, and has the model present the
// result.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/soumithganji/DineLytics/internal/engine"
	"github.com/soumithganji/DineLytics/internal/foodterms"
	"github.com/soumithganji/DineLytics/internal/textutil"
)

// Completer is the completion model.
type Completer interface {
	Chat(ctx context.Context, messages []engine.Message, schema *engine.Schema) (string, error)
}

// Resolver maps food terms to stored item names. It never fails; an empty
// result means no enrichment.
type Resolver interface {
	Resolve(ctx context.Context, terms []string) []string
}

// Executor runs a generated program.
type Executor interface {
	Run(ctx context.Context, code string) (string, error)
}

// Stage names a step of Run, for logs.
type Stage string

const (
	StageExtract  Stage = "extract"
	StageResolve  Stage = "resolve"
	StageGenerate Stage = "generate"
	StageExecute  Stage = "execute"
	StageRepair   Stage = "repair"
	StageFormat   Stage = "format"
)

// failureScanPrefix is how far into the output a leading "Error" counts.
const failureScanPrefix = 30

// ExecutionResult is the outcome of one program run.
type ExecutionResult struct {
	Succeeded bool
	Output    string
}

// NewExecutionResult classifies executor output. A run fails when the
// executor returned an error, when the output mentions "ERROR" or
// "Traceback", or when "Error" appears near its start.
func NewExecutionResult(output string, err error) ExecutionResult {
	output = strings.TrimSpace(output)
	if err != nil {
		msg := "EXECUTION ERROR: " + err.Error()
		if output != "" {
			msg += "\n" + output
		}
		return ExecutionResult{Succeeded: false, Output: msg}
	}
	return ExecutionResult{Succeeded: !looksFailed(output), Output: output}
}

func looksFailed(output string) bool {
	return strings.Contains(output, "ERROR") ||
		strings.Contains(output, "Traceback") ||
		strings.Contains(textutil.Truncate(output, failureScanPrefix), "Error")
}

// Attempt is one generated program and what running it produced.
type Attempt struct {
	Code   string
	Result ExecutionResult
}

// Report describes how a Run went.
type Report struct {
	Terms           []string
	ResolvedItems   []string
	Attempts        []Attempt
	Repaired        bool
	CompletionCalls int
	Duration        time.Duration
}

// FinalCode returns the last program that was run, or "".
func (r Report) FinalCode() string {
	if len(r.Attempts) == 0 {
		return ""
	}
	return r.Attempts[len(r.Attempts)-1].Code
}

// Options configures a Pipeline.
type Options struct {
	// Collections is the inventory named in the generation prompt.
	// Empty selects DefaultCollections.
	Collections []string
	// Schema is the compact schema description.
	Schema string
	// Now returns the current time; nil means time.Now.
	Now func() time.Time
}

// Pipeline runs data questions end to end. It makes exactly two completion
// calls per question, or three when the first program fails.
type Pipeline struct {
	llm         Completer
	resolver    Resolver
	executor    Executor
	collections []string
	schema      string
	now         func() time.Time
}

// New creates a Pipeline. resolver may be nil to disable enrichment.
func New(llm Completer, resolver Resolver, executor Executor, opts Options) *Pipeline {
	collections := opts.Collections
	if len(collections) == 0 {
		collections = DefaultCollections
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Pipeline{
		llm:         llm,
		resolver:    resolver,
		executor:    executor,
		collections: collections,
		schema:      opts.Schema,
		now:         now,
	}
}

// Run answers query. Enrichment problems only reduce the prompt; a failed
// program is repaired once and its final output is formatted whether or not
// the repair worked. The returned error is non-nil only when a completion
// call fails.
func (p *Pipeline) Run(ctx context.Context, query string) (answer string, report Report, err error) {
	start := time.Now()
	defer func() { report.Duration = time.Since(start) }()

	report.Terms = foodterms.Extract(query)
	slog.Debug("pipeline stage", "stage", StageExtract, "terms", report.Terms)

	if len(report.Terms) > 0 && p.resolver != nil {
		report.ResolvedItems = p.resolver.Resolve(ctx, report.Terms)
	}
	slog.Debug("pipeline stage", "stage", StageResolve, "items", len(report.ResolvedItems))

	reply, err := p.complete(ctx, &report, StageGenerate,
		generateMessages(query, p.now(), p.collections, report.ResolvedItems, p.schema))
	if err != nil {
		return "", report, err
	}
	result := p.execute(ctx, &report, extractCodeBlock(reply))

	if !result.Succeeded {
		slog.Debug("pipeline stage", "stage", StageRepair, "output", textutil.Truncate(result.Output, 200))
		reply, err := p.complete(ctx, &report, StageRepair,
			repairMessages(report.FinalCode(), result.Output))
		if err != nil {
			return "", report, err
		}
		report.Repaired = true
		result = p.execute(ctx, &report, extractCodeBlock(reply))
		if !result.Succeeded {
			slog.Warn("repaired program still failing", "output", textutil.Truncate(result.Output, 200))
		}
	}

	answer, err = p.complete(ctx, &report, StageFormat, formatMessages(query, result.Output))
	if err != nil {
		return "", report, err
	}
	return strings.TrimSpace(answer), report, nil
}

func (p *Pipeline) complete(ctx context.Context, report *Report, stage Stage, msgs []engine.Message) (string, error) {
	report.CompletionCalls++
	slog.Debug("pipeline stage", "stage", stage, "call", report.CompletionCalls)
	reply, err := p.llm.Chat(ctx, msgs, nil)
	if err != nil {
		return "", fmt.Errorf("%s completion: %w", stage, err)
	}
	return reply, nil
}

func (p *Pipeline) execute(ctx context.Context, report *Report, code string) ExecutionResult {
	output, err := p.executor.Run(ctx, code)
	result := NewExecutionResult(output, err)
	report.Attempts = append(report.Attempts, Attempt{Code: code, Result: result})
	slog.Debug("pipeline stage", "stage", StageExecute,
		"attempt", len(report.Attempts), "succeeded", result.Succeeded)
	return result
}

var codeFence = regexp.MustCompile("(?s)```(?:python)?\\s*\\n(.*?)```")

// extractCodeBlock returns the body of the first fenced code block in reply,
// or the whole reply trimmed when there is none.
func extractCodeBlock(reply string) string {
	if m := codeFence.FindStringSubmatch(reply); m != nil {
		return strings.TrimSpace(m[1])
	}
	if !strings.Contains(reply, "import ") && !strings.Contains(reply, "MongoClient") {
		slog.Debug("generated reply has no code fence and does not look like code")
	}
	return strings.TrimSpace(reply)
}
