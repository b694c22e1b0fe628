// Package conversation holds the bounded rolling window of dialogue turns
// that is used for intent classification and general replies.
package conversation

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Speakers used by the chat router.
const (
	SpeakerUser = "User"
	SpeakerAI   = "AI"
)

// DefaultCapacity is the window size of newly created threads.
const DefaultCapacity = 10

// Turn is a single (speaker, text) entry.
type Turn struct {
	Speaker string
	Text    string
}

// MarshalJSON encodes a turn as a two-element array.
func (t Turn) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{t.Speaker, t.Text})
}

// UnmarshalJSON decodes a two-element array into a turn.
func (t *Turn) UnmarshalJSON(data []byte) error {
	var pair []string
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("decoding turn: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("decoding turn: want 2 elements, got %d", len(pair))
	}
	t.Speaker, t.Text = pair[0], pair[1]
	return nil
}

// Window is a FIFO of at most Capacity turns. Appending to a full window
// evicts the oldest turn. The zero value is not usable; use New.
//
// A Window is not safe for concurrent use.
type Window struct {
	capacity int
	// ring buffer: head is the index of the oldest turn.
	buf  []Turn
	head int
	n    int
}

// New returns an empty window holding at most capacity turns.
// It panics if capacity is not positive.
func New(capacity int) *Window {
	if capacity <= 0 {
		panic(fmt.Sprintf("conversation: capacity must be positive, got %d", capacity))
	}
	return &Window{capacity: capacity, buf: make([]Turn, capacity)}
}

// Capacity returns the maximum number of turns the window retains.
func (w *Window) Capacity() int { return w.capacity }

// Len returns the number of turns currently held.
func (w *Window) Len() int { return w.n }

// Append adds a turn, evicting the oldest one if the window is full.
func (w *Window) Append(speaker, text string) {
	t := Turn{Speaker: speaker, Text: text}
	if w.n < w.capacity {
		w.buf[(w.head+w.n)%w.capacity] = t
		w.n++
		return
	}
	w.buf[w.head] = t
	w.head = (w.head + 1) % w.capacity
}

// Turns returns a copy of the held turns, oldest first.
func (w *Window) Turns() []Turn {
	out := make([]Turn, w.n)
	for i := range w.n {
		out[i] = w.buf[(w.head+i)%w.capacity]
	}
	return out
}

// Render returns the transcript as "speaker: text" lines, oldest first.
// An empty window renders as the empty string.
func (w *Window) Render() string {
	var sb strings.Builder
	for i, t := range w.Turns() {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(t.Speaker)
		sb.WriteString(": ")
		sb.WriteString(t.Text)
	}
	return sb.String()
}

// Clear removes every turn. The capacity is unchanged.
func (w *Window) Clear() {
	clear(w.buf)
	w.head, w.n = 0, 0
}

// Record is the persisted form of a window.
type Record struct {
	WindowSize int    `json:"window_size"`
	Buffer     []Turn `json:"buffer"`
}

// Record returns the persisted form of the window.
func (w *Window) Record() Record {
	return Record{WindowSize: w.capacity, Buffer: w.Turns()}
}

// FromRecord rebuilds a window from its persisted form. A missing or
// non-positive size falls back to DefaultCapacity. When the buffer holds more
// turns than the size allows, only the newest are kept.
func FromRecord(rec Record) *Window {
	size := rec.WindowSize
	if size <= 0 {
		size = DefaultCapacity
	}
	w := New(size)
	for _, t := range rec.Buffer {
		w.Append(t.Speaker, t.Text)
	}
	return w
}

// MarshalJSON encodes the window as {"window_size": N, "buffer": [[speaker, text], ...]}.
func (w *Window) MarshalJSON() ([]byte, error) {
	return json.Marshal(w.Record())
}

// UnmarshalJSON accepts either the record object or a bare list of
// [speaker, text] pairs. A bare list is loaded into a window of
// DefaultCapacity.
func (w *Window) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	var rec Record
	switch {
	case trimmed == "null":
		rec = Record{}
	case strings.HasPrefix(trimmed, "["):
		if err := json.Unmarshal(data, &rec.Buffer); err != nil {
			return fmt.Errorf("decoding conversation list: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("decoding conversation record: %w", err)
		}
	}
	*w = *FromRecord(rec)
	return nil
}
