package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/soumithganji/DineLytics/internal/chat"
	"github.com/soumithganji/DineLytics/internal/conversation"
	"github.com/soumithganji/DineLytics/internal/ingest"
	"github.com/soumithganji/DineLytics/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB
const maxImportBodySize = 32 << 20 // 32MB

// ChatRouter is the chat surface used by the HTTP and MCP layers.
type ChatRouter interface {
	NewThread(ctx context.Context) (storage.Thread, error)
	HandleTurn(ctx context.Context, threadID, userText string) (chat.Reply, error)
	DeleteThread(ctx context.Context, id, current string) (string, error)
}

// AppDeps holds dependencies for the HTTP API.
type AppDeps struct {
	Store *storage.Store
	Chat  ChatRouter
	// Token guards /v1. Empty disables authentication.
	Token string
}

// ThreadView is the API form of a thread.
type ThreadView struct {
	ID           string              `json:"id"`
	Title        string              `json:"title"`
	Messages     []storage.Message   `json:"messages"`
	Conversation conversation.Record `json:"conversation"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

func threadView(t storage.Thread) ThreadView {
	v := ThreadView{
		ID:        t.ID,
		Title:     t.Title,
		Messages:  t.Messages,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
	if v.Messages == nil {
		v.Messages = []storage.Message{}
	}
	if t.Conversation != nil {
		v.Conversation = t.Conversation.Record()
	} else {
		v.Conversation = conversation.New(conversation.DefaultCapacity).Record()
	}
	return v
}

// InteractionView is the API form of an interaction.
type InteractionView struct {
	ID            string    `json:"id"`
	ThreadID      string    `json:"thread_id"`
	CreatedAt     time.Time `json:"created_at"`
	UserQuery     string    `json:"user_query"`
	WorkingQuery  string    `json:"working_query"`
	Route         string    `json:"route"`
	ResolvedItems []string  `json:"resolved_items"`
	GeneratedCode string    `json:"generated_code,omitempty"`
	Executions    int       `json:"executions"`
	Repaired      bool      `json:"repaired"`
	Status        string    `json:"status"`
	Error         string    `json:"error,omitempty"`
	DurationMS    int64     `json:"duration_ms"`
}

func interactionView(i storage.Interaction) InteractionView {
	items := i.ResolvedItems
	if items == nil {
		items = []string{}
	}
	return InteractionView{
		ID:            i.ID,
		ThreadID:      i.ThreadID,
		CreatedAt:     i.CreatedAt,
		UserQuery:     i.UserQuery,
		WorkingQuery:  i.WorkingQuery,
		Route:         i.Route,
		ResolvedItems: items,
		GeneratedCode: i.GeneratedCode,
		Executions:    i.Executions,
		Repaired:      i.Repaired,
		Status:        i.Status,
		Error:         i.Error,
		DurationMS:    i.Duration.Milliseconds(),
	}
}

// MessageRequest is the body of POST /v1/threads/{id}/messages.
type MessageRequest struct {
	Content string `json:"content"`
}

// NewHandler returns the HTTP API.
func NewHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Route("/v1", func(r chi.Router) {
		if deps.Token != "" {
			r.Use(BearerAuth(deps.Token))
		}

		r.Post("/threads", handleCreateThread(deps))
		r.Get("/threads", handleListThreads(deps))
		r.Get("/threads/{id}", handleGetThread(deps))
		r.Delete("/threads/{id}", handleDeleteThread(deps))
		r.Post("/threads/{id}/messages", handlePostMessage(deps))
		r.Get("/interactions", handleListInteractions(deps))
		r.Post("/catalog/index", handleIndexCatalog(deps))
		r.Get("/export", handleExport(deps))
		r.Post("/import", handleImport(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleCreateThread(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, err := deps.Chat.NewThread(r.Context())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to create thread: %v", err)
			return
		}
		writeJSON(w, http.StatusCreated, threadView(t))
	}
}

func handleListThreads(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		threads, err := deps.Store.ListThreads(r.Context())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list threads: %v", err)
			return
		}
		if threads == nil {
			threads = []storage.ThreadSummary{}
		}
		writeJSON(w, http.StatusOK, threads)
	}
}

func handleGetThread(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		t, err := deps.Store.GetThread(r.Context(), id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "thread not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get thread: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, threadView(t))
	}
}

func handleDeleteThread(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		_, err := deps.Chat.DeleteThread(r.Context(), id, "")
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "thread not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete thread: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

func handlePostMessage(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req MessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		reply, err := deps.Chat.HandleTurn(r.Context(), id, req.Content)
		switch {
		case errors.Is(err, chat.ErrEmptyMessage):
			httpError(w, http.StatusBadRequest, "invalid_request_error", "content is required")
			return
		case errors.Is(err, storage.ErrNotFound):
			httpError(w, http.StatusNotFound, "not_found", "thread not found")
			return
		case err != nil:
			httpError(w, http.StatusInternalServerError, "api_error", "failed to handle message: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, reply)
	}
}

func handleListInteractions(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)
		threadID := r.URL.Query().Get("thread")

		interactions, err := deps.Store.ListInteractions(r.Context(), threadID, limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list interactions: %v", err)
			return
		}

		out := make([]InteractionView, len(interactions))
		for i, ix := range interactions {
			out[i] = interactionView(ix)
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleIndexCatalog(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := ingest.Enqueue(r.Context(), deps.Store, "api")
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to enqueue job: %v", err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{
			"id":     id,
			"status": "queued",
		})
	}
}

func handleExport(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recs, err := deps.Store.ExportThreads(r.Context())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to export threads: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, recs)
	}
}

func handleImport(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxImportBodySize)
		defer r.Body.Close()

		var recs map[string]storage.ThreadRecord
		if err := json.NewDecoder(r.Body).Decode(&recs); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		n, err := deps.Store.ImportThreads(r.Context(), recs)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to import threads: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"imported": n})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
