package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// SaveInteraction records the audit entry for one turn.
func (s *Store) SaveInteraction(ctx context.Context, i Interaction) error {
	status := i.Status
	if status == "" {
		status = StatusCompleted
	}
	created := i.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	items := i.ResolvedItems
	if items == nil {
		items = []string{}
	}
	itemsJSON, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encoding resolved items: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO interactions (id, thread_id, created_at, user_query, working_query, route,
			resolved_items, generated_code, executions, repaired, status, error, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		i.ID, i.ThreadID, formatTS(created), i.UserQuery, i.WorkingQuery, i.Route,
		string(itemsJSON), i.GeneratedCode, i.Executions, i.Repaired, status, i.Error,
		i.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("saving interaction %s: %w", i.ID, err)
	}
	return nil
}

// ListInteractions returns up to limit interactions, newest first. A
// non-empty threadID restricts the result to that thread.
func (s *Store) ListInteractions(ctx context.Context, threadID string, limit int) ([]Interaction, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT id, thread_id, created_at, user_query, working_query, route, resolved_items,
			generated_code, executions, repaired, status, error, duration_ms
		FROM interactions`
	args := []any{}
	if threadID != "" {
		q += ` WHERE thread_id = ?`
		args = append(args, threadID)
	}
	q += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("listing interactions: %w", err)
	}
	defer rows.Close()

	var out []Interaction
	for rows.Next() {
		var i Interaction
		var created, items string
		var durationMS int64
		if err := rows.Scan(&i.ID, &i.ThreadID, &created, &i.UserQuery, &i.WorkingQuery, &i.Route, &items,
			&i.GeneratedCode, &i.Executions, &i.Repaired, &i.Status, &i.Error, &durationMS); err != nil {
			return nil, fmt.Errorf("scanning interaction: %w", err)
		}
		if i.CreatedAt, err = parseTS(created); err != nil {
			return nil, fmt.Errorf("parsing created_at for interaction %s: %w", i.ID, err)
		}
		if err := json.Unmarshal([]byte(items), &i.ResolvedItems); err != nil {
			return nil, fmt.Errorf("decoding resolved items for interaction %s: %w", i.ID, err)
		}
		i.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, i)
	}
	return out, rows.Err()
}
