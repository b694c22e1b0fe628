// Package chat routes each user turn of a thread to either a direct general
// reply or the data-query pipeline, and keeps the thread's conversation
// window and message log in step.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/soumithganji/DineLytics/internal/conversation"
	"github.com/soumithganji/DineLytics/internal/engine"
	"github.com/soumithganji/DineLytics/internal/intent"
	"github.com/soumithganji/DineLytics/internal/pipeline"
	"github.com/soumithganji/DineLytics/internal/storage"
	"github.com/soumithganji/DineLytics/internal/textutil"
)

// Replies used in place of a model answer.
const (
	FailureMessage    = "Something went wrong while processing your query. Please try again. If the issue persists, try starting a new thread."
	EmptyReplyMessage = "I'm sorry, I wasn't able to generate a response. Please try asking again."
)

const generalSystem = "You are DineLytics, a friendly AI assistant for a food delivery analytics app. Be concise and helpful."

// ErrEmptyMessage is returned by HandleTurn for blank input.
var ErrEmptyMessage = errors.New("message is empty")

// Classifier decides the route of a turn.
type Classifier interface {
	Classify(ctx context.Context, history, query string) intent.Result
}

// DataPipeline answers a data question.
type DataPipeline interface {
	Run(ctx context.Context, query string) (string, pipeline.Report, error)
}

// Completer produces the general-chat reply.
type Completer interface {
	Chat(ctx context.Context, messages []engine.Message, schema *engine.Schema) (string, error)
}

// ThreadStore persists threads and the interaction log.
type ThreadStore interface {
	CreateThread(ctx context.Context, t storage.Thread) error
	GetThread(ctx context.Context, id string) (storage.Thread, error)
	AppendTurn(ctx context.Context, id string, msgs []storage.Message, window *conversation.Window) error
	DeleteThread(ctx context.Context, id string) error
	SaveInteraction(ctx context.Context, i storage.Interaction) error
}

// Options configures a Router.
type Options struct {
	// WindowSize is the conversation window of new threads. Zero selects
	// conversation.DefaultCapacity.
	WindowSize int
	// Now is the clock used for thread IDs; nil means time.Now.
	Now func() time.Time
}

// Reply is the outcome of one turn.
type Reply struct {
	ThreadID      string `json:"thread_id"`
	Text          string `json:"reply"`
	Route         string `json:"route"`
	Failed        bool   `json:"failed,omitempty"`
	InteractionID string `json:"interaction_id"`
}

// Router handles chat turns. It is safe for concurrent use; turns on the
// same thread run one at a time.
type Router struct {
	classifier Classifier
	pipe       DataPipeline
	llm        Completer
	store      ThreadStore
	windowSize int
	ids        *IDGenerator
	locks      *threadLocks
}

// NewRouter creates a Router.
func NewRouter(classifier Classifier, pipe DataPipeline, llm Completer, store ThreadStore, opts Options) *Router {
	size := opts.WindowSize
	if size <= 0 {
		size = conversation.DefaultCapacity
	}
	return &Router{
		classifier: classifier,
		pipe:       pipe,
		llm:        llm,
		store:      store,
		windowSize: size,
		ids:        NewIDGenerator(opts.Now),
		locks:      newThreadLocks(),
	}
}

// NewThread creates and stores an empty thread.
func (r *Router) NewThread(ctx context.Context) (storage.Thread, error) {
	id, created := r.ids.Next()
	t := storage.Thread{
		ID:           id,
		Messages:     []storage.Message{},
		Conversation: conversation.New(r.windowSize),
		CreatedAt:    created,
		UpdatedAt:    created,
	}
	if err := r.store.CreateThread(ctx, t); err != nil {
		return storage.Thread{}, fmt.Errorf("creating thread: %w", err)
	}
	slog.Debug("thread created", "thread", id)
	return t, nil
}

// DeleteThread removes thread id. current is the thread the caller is on;
// the returned ID is the thread to continue on, which is a freshly created
// one when the current thread was deleted.
func (r *Router) DeleteThread(ctx context.Context, id, current string) (string, error) {
	unlock := r.locks.lock(id)
	err := r.store.DeleteThread(ctx, id)
	unlock()
	if err != nil {
		return current, fmt.Errorf("deleting thread %s: %w", id, err)
	}
	if id != current {
		return current, nil
	}
	t, err := r.NewThread(ctx)
	if err != nil {
		return "", err
	}
	return t.ID, nil
}

// HandleTurn answers userText on thread threadID, creating a thread when
// threadID is empty. Model and execution failures never surface as errors:
// the reply is then FailureMessage and only the user turn enters the window.
// An error is returned only when the thread cannot be loaded or saved;
// storage.ErrNotFound is wrapped for unknown threads.
func (r *Router) HandleTurn(ctx context.Context, threadID, userText string) (Reply, error) {
	if strings.TrimSpace(userText) == "" {
		return Reply{}, ErrEmptyMessage
	}
	if threadID == "" {
		t, err := r.NewThread(ctx)
		if err != nil {
			return Reply{}, err
		}
		threadID = t.ID
	}

	unlock := r.locks.lock(threadID)
	defer unlock()

	thread, err := r.store.GetThread(ctx, threadID)
	if err != nil {
		return Reply{}, fmt.Errorf("loading thread %s: %w", threadID, err)
	}
	window := thread.Conversation
	if window == nil {
		window = conversation.New(r.windowSize)
	}

	start := time.Now()
	history := window.Render()
	out, err := r.answer(ctx, threadID, history, userText)
	window.Append(conversation.SpeakerUser, out.working)

	rec := storage.Interaction{
		ID:            uuid.NewString(),
		ThreadID:      threadID,
		CreatedAt:     start,
		UserQuery:     userText,
		WorkingQuery:  out.working,
		Route:         out.route,
		ResolvedItems: out.report.ResolvedItems,
		GeneratedCode: out.report.FinalCode(),
		Executions:    len(out.report.Attempts),
		Repaired:      out.report.Repaired,
		Status:        storage.StatusCompleted,
	}
	reply := Reply{ThreadID: threadID, Route: out.route, InteractionID: rec.ID}

	if err != nil {
		slog.Error("turn failed", "thread", threadID, "route", out.route, "error", err)
		reply.Text = FailureMessage
		reply.Failed = true
		rec.Status = storage.StatusFailed
		rec.Error = err.Error()
	} else {
		reply.Text = strings.TrimSpace(out.text)
		if reply.Text == "" {
			slog.Warn("empty reply replaced", "thread", threadID, "route", out.route)
			reply.Text = EmptyReplyMessage
		}
		window.Append(conversation.SpeakerAI, reply.Text)
	}

	msgs := []storage.Message{
		{Role: storage.RoleUser, Content: userText},
		{Role: storage.RoleAssistant, Content: reply.Text},
	}
	if err := r.store.AppendTurn(ctx, threadID, msgs, window); err != nil {
		return Reply{}, fmt.Errorf("saving turn: %w", err)
	}

	rec.Duration = time.Since(start)
	if err := r.store.SaveInteraction(ctx, rec); err != nil {
		slog.Warn("failed to save interaction", "id", rec.ID, "error", err)
	}
	return reply, nil
}

// outcome is what answer learned about one turn, even when it failed.
type outcome struct {
	route   string
	working string
	text    string
	report  pipeline.Report
}

// answer classifies userText and answers it on the chosen route. A panic at
// any stage, classification included, is returned as an error.
func (r *Router) answer(ctx context.Context, threadID, history, userText string) (out outcome, err error) {
	out = outcome{route: storage.RouteGeneral, working: userText}
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic while answering: %v", p)
		}
	}()

	decision := r.classifier.Classify(ctx, history, userText)
	if decision.IsTask {
		out.route = storage.RouteTask
		out.working = decision.Query(userText)
	}
	slog.Debug("turn routed", "thread", threadID, "route", out.route, "query", out.working)

	if decision.IsTask {
		out.text, out.report, err = r.pipe.Run(ctx, out.working)
		return out, err
	}
	out.text, err = r.llm.Chat(ctx, generalMessages(history, out.working), nil)
	if err != nil {
		return out, fmt.Errorf("general reply: %w", err)
	}
	return out, nil
}

// generalMessages builds the general-chat request from the history before
// this turn and the query, both quoted.
func generalMessages(history, query string) []engine.Message {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Conversation so far: %s\n\n", textutil.Quote(history))
	fmt.Fprintf(&sb, "User: %s", textutil.Quote(query))
	return []engine.Message{
		{Role: engine.RoleSystem, Content: generalSystem},
		{Role: engine.RoleUser, Content: sb.String()},
	}
}
