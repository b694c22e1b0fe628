package storage

import (
	"errors"
	"time"

	"github.com/soumithganji/DineLytics/internal/conversation"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Message roles stored in a thread's display log.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry of a thread's display log.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Thread is a persisted chat session: the full message log shown to the
// user plus the bounded window used as model context.
type Thread struct {
	ID           string
	Title        string
	Messages     []Message
	Conversation *conversation.Window
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ThreadSummary is a thread without its messages, for listings.
type ThreadSummary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ThreadRecord is the export/import form of a thread:
// {"messages": [...], "conversation": {"window_size": N, "buffer": [...]}}.
type ThreadRecord struct {
	Messages     []Message            `json:"messages"`
	Conversation *conversation.Window `json:"conversation"`
}

// Interaction routes.
const (
	RouteGeneral = "general"
	RouteTask    = "task"
)

// Interaction statuses.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Interaction is the audit record of one handled turn.
type Interaction struct {
	ID            string
	ThreadID      string
	CreatedAt     time.Time
	UserQuery     string
	WorkingQuery  string
	Route         string
	ResolvedItems []string
	GeneratedCode string
	Executions    int
	Repaired      bool
	Status        string
	Error         string
	Duration      time.Duration
}

type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
