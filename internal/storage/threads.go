package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/soumithganji/DineLytics/internal/conversation"
	"github.com/soumithganji/DineLytics/internal/textutil"
)

// tsLayout is RFC 3339 in UTC with fixed-width microseconds, so stored
// timestamps sort lexically.
const tsLayout = "2006-01-02T15:04:05.000000Z07:00"

const titleLength = 25

func formatTS(t time.Time) string { return t.UTC().Format(tsLayout) }

// parseTS accepts any RFC 3339 text. The driver hands DATETIME columns back
// as time.Time, which database/sql renders as RFC3339Nano when scanned into a
// string.
func parseTS(s string) (time.Time, error) { return time.Parse(time.RFC3339Nano, s) }

// TitleFor derives a thread title from its first user message: the first 25
// characters, with "..." appended when the message was cut.
func TitleFor(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	cut := textutil.Truncate(text, titleLength)
	if cut != text {
		return cut + "..."
	}
	return cut
}

// firstUserTitle returns TitleFor the first user message in msgs, or "".
func firstUserTitle(msgs []Message) string {
	for _, m := range msgs {
		if m.Role == RoleUser {
			return TitleFor(m.Content)
		}
	}
	return ""
}

// CreateThread inserts a new thread. A nil Conversation is stored as an empty
// window of conversation.DefaultCapacity.
func (s *Store) CreateThread(ctx context.Context, t Thread) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning create transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertThread(ctx, tx, t); err != nil {
		return err
	}
	return tx.Commit()
}

func insertThread(ctx context.Context, tx *sql.Tx, t Thread) error {
	window := t.Conversation
	if window == nil {
		window = conversation.New(conversation.DefaultCapacity)
	}
	conv, err := json.Marshal(window)
	if err != nil {
		return fmt.Errorf("encoding conversation for thread %s: %w", t.ID, err)
	}

	now := time.Now()
	created := t.CreatedAt
	if created.IsZero() {
		created = now
	}
	updated := t.UpdatedAt
	if updated.IsZero() {
		updated = created
	}
	title := t.Title
	if title == "" {
		title = firstUserTitle(t.Messages)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO threads (id, title, conversation, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		t.ID, title, string(conv), formatTS(created), formatTS(updated),
	); err != nil {
		return fmt.Errorf("inserting thread %s: %w", t.ID, err)
	}
	return insertMessages(ctx, tx, t.ID, t.Messages, updated)
}

func insertMessages(ctx context.Context, tx *sql.Tx, threadID string, msgs []Message, at time.Time) error {
	for _, m := range msgs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO messages (thread_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
			threadID, m.Role, m.Content, formatTS(at),
		); err != nil {
			return fmt.Errorf("inserting message for thread %s: %w", threadID, err)
		}
	}
	return nil
}

// GetThread loads a thread with its messages in insertion order.
func (s *Store) GetThread(ctx context.Context, id string) (Thread, error) {
	var t Thread
	var conv, created, updated string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, conversation, created_at, updated_at FROM threads WHERE id = ?`, id,
	).Scan(&t.ID, &t.Title, &conv, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Thread{}, ErrNotFound
	}
	if err != nil {
		return Thread{}, fmt.Errorf("loading thread %s: %w", id, err)
	}

	t.Conversation = new(conversation.Window)
	if err := json.Unmarshal([]byte(conv), t.Conversation); err != nil {
		return Thread{}, fmt.Errorf("decoding conversation for thread %s: %w", id, err)
	}
	if t.CreatedAt, err = parseTS(created); err != nil {
		return Thread{}, fmt.Errorf("parsing created_at for thread %s: %w", id, err)
	}
	if t.UpdatedAt, err = parseTS(updated); err != nil {
		return Thread{}, fmt.Errorf("parsing updated_at for thread %s: %w", id, err)
	}

	if t.Messages, err = s.threadMessages(ctx, id); err != nil {
		return Thread{}, err
	}
	return t, nil
}

func (s *Store) threadMessages(ctx context.Context, id string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content FROM messages WHERE thread_id = ? ORDER BY id ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("loading messages for thread %s: %w", id, err)
	}
	defer rows.Close()

	msgs := []Message{}
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.Role, &m.Content); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// ListThreads returns every thread, newest first.
func (s *Store) ListThreads(ctx context.Context) ([]ThreadSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.title, t.created_at, t.updated_at,
			(SELECT COUNT(*) FROM messages m WHERE m.thread_id = t.id)
		FROM threads t
		ORDER BY t.created_at DESC, t.id DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing threads: %w", err)
	}
	defer rows.Close()

	var out []ThreadSummary
	for rows.Next() {
		var ts ThreadSummary
		var created, updated string
		if err := rows.Scan(&ts.ID, &ts.Title, &created, &updated, &ts.MessageCount); err != nil {
			return nil, fmt.Errorf("scanning thread: %w", err)
		}
		if ts.CreatedAt, err = parseTS(created); err != nil {
			return nil, fmt.Errorf("parsing created_at for thread %s: %w", ts.ID, err)
		}
		if ts.UpdatedAt, err = parseTS(updated); err != nil {
			return nil, fmt.Errorf("parsing updated_at for thread %s: %w", ts.ID, err)
		}
		out = append(out, ts)
	}
	return out, rows.Err()
}

// DeleteThread removes a thread and its messages.
func (s *Store) DeleteThread(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning delete transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE thread_id = ?`, id); err != nil {
		return fmt.Errorf("deleting messages for thread %s: %w", id, err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM threads WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting thread %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

// AppendTurn appends msgs to the thread's log and replaces its stored
// conversation window, atomically. An untitled thread takes its title from
// the first user message appended.
func (s *Store) AppendTurn(ctx context.Context, id string, msgs []Message, window *conversation.Window) error {
	conv, err := json.Marshal(window)
	if err != nil {
		return fmt.Errorf("encoding conversation for thread %s: %w", id, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning append transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	res, err := tx.ExecContext(ctx, `
		UPDATE threads
		SET conversation = ?, updated_at = ?, title = CASE WHEN title = '' THEN ? ELSE title END
		WHERE id = ?`,
		string(conv), formatTS(now), firstUserTitle(msgs), id,
	)
	if err != nil {
		return fmt.Errorf("updating thread %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	if err := insertMessages(ctx, tx, id, msgs, now); err != nil {
		return err
	}
	return tx.Commit()
}

// ExportThreads returns every thread in the export mapping form keyed by
// thread ID.
func (s *Store) ExportThreads(ctx context.Context) (map[string]ThreadRecord, error) {
	summaries, err := s.ListThreads(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]ThreadRecord, len(summaries))
	for _, ts := range summaries {
		t, err := s.GetThread(ctx, ts.ID)
		if err != nil {
			return nil, err
		}
		out[t.ID] = ThreadRecord{Messages: t.Messages, Conversation: t.Conversation}
	}
	return out, nil
}

// ImportThreads stores every record, replacing threads with the same ID.
// A record whose conversation is missing gets an empty default window; one
// stored as a bare list of pairs has already been normalised by decoding.
// It returns the number of threads written.
func (s *Store) ImportThreads(ctx context.Context, recs map[string]ThreadRecord) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning import transaction: %w", err)
	}
	defer tx.Rollback()

	for id, rec := range recs {
		if strings.TrimSpace(id) == "" {
			return 0, fmt.Errorf("importing thread: empty id")
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE thread_id = ?`, id); err != nil {
			return 0, fmt.Errorf("clearing messages for thread %s: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM threads WHERE id = ?`, id); err != nil {
			return 0, fmt.Errorf("clearing thread %s: %w", id, err)
		}
		t := Thread{ID: id, Messages: rec.Messages, Conversation: rec.Conversation}
		if ts, ok := threadIDTime(id); ok {
			t.CreatedAt = ts
		}
		if err := insertThread(ctx, tx, t); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing import: %w", err)
	}
	return len(recs), nil
}

// threadIDTime recovers the creation time from a microsecond-timestamp ID.
func threadIDTime(id string) (time.Time, bool) {
	us, err := strconv.ParseInt(id, 10, 64)
	if err != nil || us <= 0 {
		return time.Time{}, false
	}
	return time.UnixMicro(us), true
}
