package conversation

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestAppendEvictsOldest(t *testing.T) {
	w := New(3)
	w.Append(SpeakerUser, "A")
	w.Append(SpeakerAI, "B")
	w.Append(SpeakerUser, "C")
	w.Append(SpeakerAI, "D")

	if w.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", w.Len())
	}
	want := "AI: B\nUser: C\nAI: D"
	if got := w.Render(); got != want {
		t.Errorf("Render() = %q, want %q", got, want)
	}
}

func TestRenderEmpty(t *testing.T) {
	if got := New(2).Render(); got != "" {
		t.Errorf("Render() = %q, want empty", got)
	}
}

func TestLenNeverExceedsCapacity(t *testing.T) {
	w := New(4)
	for i := range 25 {
		w.Append(SpeakerUser, string(rune('a'+i)))
		if w.Len() > w.Capacity() {
			t.Fatalf("after %d appends Len() = %d > %d", i+1, w.Len(), w.Capacity())
		}
	}
	turns := w.Turns()
	if turns[0].Text != "v" || turns[3].Text != "y" {
		t.Errorf("unexpected retained turns: %v", turns)
	}
}

func TestClear(t *testing.T) {
	w := New(2)
	w.Append(SpeakerUser, "hi")
	w.Clear()
	if w.Len() != 0 || w.Render() != "" {
		t.Errorf("window not empty after Clear: %q", w.Render())
	}
	if w.Capacity() != 2 {
		t.Errorf("Capacity() = %d, want 2", w.Capacity())
	}
	w.Append(SpeakerAI, "again")
	if w.Render() != "AI: again" {
		t.Errorf("Render() after reuse = %q", w.Render())
	}
}

func TestNewPanicsOnNonPositiveCapacity(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	New(0)
}

func TestRecordRoundTrip(t *testing.T) {
	w := New(5)
	w.Append(SpeakerUser, "top sellers?")
	w.Append(SpeakerAI, "| item | qty |")

	data, err := json.Marshal(w)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	wantJSON := `{"window_size":5,"buffer":[["User","top sellers?"],["AI","| item | qty |"]]}`
	if string(data) != wantJSON {
		t.Errorf("Marshal = %s, want %s", data, wantJSON)
	}

	var got Window
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.Capacity() != 5 {
		t.Errorf("Capacity() = %d, want 5", got.Capacity())
	}
	if diff := cmp.Diff(w.Turns(), got.Turns()); diff != "" {
		t.Errorf("turns mismatch (-want +got):\n%s", diff)
	}
}

func TestUnmarshalPlainList(t *testing.T) {
	var w Window
	if err := json.Unmarshal([]byte(`[["User","hi"],["AI","hello"]]`), &w); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if w.Capacity() != DefaultCapacity {
		t.Errorf("Capacity() = %d, want %d", w.Capacity(), DefaultCapacity)
	}
	w.Append(SpeakerUser, "next")
	if got := w.Render(); got != "User: hi\nAI: hello\nUser: next" {
		t.Errorf("Render() = %q", got)
	}
}

func TestFromRecordKeepsNewest(t *testing.T) {
	w := FromRecord(Record{WindowSize: 2, Buffer: []Turn{
		{SpeakerUser, "1"}, {SpeakerAI, "2"}, {SpeakerUser, "3"},
	}})
	if got := w.Render(); got != "AI: 2\nUser: 3" {
		t.Errorf("Render() = %q", got)
	}
}

func TestUnmarshalRejectsBadTurn(t *testing.T) {
	var w Window
	if err := json.Unmarshal([]byte(`{"window_size":3,"buffer":[["only one"]]}`), &w); err == nil {
		t.Error("expected error for malformed turn")
	}
}
