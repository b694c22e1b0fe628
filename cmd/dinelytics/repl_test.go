package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/soumithganji/DineLytics/internal/chat"
	"github.com/soumithganji/DineLytics/internal/storage"
)

type fakeSession struct {
	next    int
	turns   []string
	deleted []string
	turnErr error
}

func (f *fakeSession) NewThread(context.Context) (storage.Thread, error) {
	f.next++
	return storage.Thread{ID: fmt.Sprintf("t%d", f.next)}, nil
}

func (f *fakeSession) HandleTurn(_ context.Context, threadID, text string) (chat.Reply, error) {
	if f.turnErr != nil {
		return chat.Reply{}, f.turnErr
	}
	f.turns = append(f.turns, threadID+":"+text)
	return chat.Reply{ThreadID: threadID, Text: "echo " + text, Route: storage.RouteGeneral}, nil
}

func (f *fakeSession) DeleteThread(ctx context.Context, id, current string) (string, error) {
	f.deleted = append(f.deleted, id)
	if id != current {
		return current, nil
	}
	t, _ := f.NewThread(ctx)
	return t.ID, nil
}

type fakeBrowser struct {
	threads map[string]storage.Thread
}

func (f *fakeBrowser) ListThreads(context.Context) ([]storage.ThreadSummary, error) {
	var out []storage.ThreadSummary
	for _, t := range f.threads {
		out = append(out, storage.ThreadSummary{ID: t.ID, Title: t.Title, UpdatedAt: time.Unix(0, 0)})
	}
	return out, nil
}

func (f *fakeBrowser) GetThread(_ context.Context, id string) (storage.Thread, error) {
	t, ok := f.threads[id]
	if !ok {
		return storage.Thread{}, storage.ErrNotFound
	}
	return t, nil
}

func plainOutput(t *testing.T) {
	t.Helper()
	old := noColor
	noColor = true
	t.Cleanup(func() { noColor = old })
}

func TestREPL_NewThreadAndTurns(t *testing.T) {
	plainOutput(t)
	sess := &fakeSession{}
	var out strings.Builder

	in := strings.NewReader("hi there\n\n  how many orders?  \n")
	if err := runREPL(context.Background(), sess, &fakeBrowser{}, in, &out, ""); err != nil {
		t.Fatalf("runREPL: %v", err)
	}

	want := []string{"t1:hi there", "t1:how many orders?"}
	if diff := cmp.Diff(want, sess.turns); diff != "" {
		t.Errorf("turns mismatch (-want +got):\n%s", diff)
	}
	got := out.String()
	for _, s := range []string{"Started thread t1.", "DineLytics: echo hi there", "DineLytics: echo how many orders?"} {
		if !strings.Contains(got, s) {
			t.Errorf("output missing %q:\n%s", s, got)
		}
	}
}

func TestREPL_ContinueThreadShowsHistory(t *testing.T) {
	plainOutput(t)
	browser := &fakeBrowser{threads: map[string]storage.Thread{
		"t9": {ID: "t9", Messages: []storage.Message{
			{Role: storage.RoleUser, Content: "hello"},
			{Role: storage.RoleAssistant, Content: "Hi! How can I help?"},
		}},
	}}
	sess := &fakeSession{}
	var out strings.Builder

	if err := runREPL(context.Background(), sess, browser, strings.NewReader("more\n/quit\nignored\n"), &out, "t9"); err != nil {
		t.Fatalf("runREPL: %v", err)
	}

	if diff := cmp.Diff([]string{"t9:more"}, sess.turns); diff != "" {
		t.Errorf("turns mismatch (-want +got):\n%s", diff)
	}
	got := out.String()
	for _, s := range []string{"Continuing thread t9.", "You: hello", "DineLytics: Hi! How can I help?"} {
		if !strings.Contains(got, s) {
			t.Errorf("output missing %q:\n%s", s, got)
		}
	}
}

func TestREPL_UnknownStartThread(t *testing.T) {
	plainOutput(t)
	var out strings.Builder
	err := runREPL(context.Background(), &fakeSession{}, &fakeBrowser{}, strings.NewReader(""), &out, "nope")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestREPL_Commands(t *testing.T) {
	plainOutput(t)
	browser := &fakeBrowser{threads: map[string]storage.Thread{
		"t5": {ID: "t5", Title: "pizza sales"},
	}}
	sess := &fakeSession{}
	var out strings.Builder

	input := strings.Join([]string{
		"/threads",
		"/new",
		"/delete t5",
		"/delete",
		"/switch",
		"/bogus",
		"after",
	}, "\n")
	if err := runREPL(context.Background(), sess, browser, strings.NewReader(input), &out, ""); err != nil {
		t.Fatalf("runREPL: %v", err)
	}

	if diff := cmp.Diff([]string{"t5", "t2"}, sess.deleted); diff != "" {
		t.Errorf("deleted mismatch (-want +got):\n%s", diff)
	}
	// Deleting the current thread moves the session to a fresh one.
	if diff := cmp.Diff([]string{"t3:after"}, sess.turns); diff != "" {
		t.Errorf("turns mismatch (-want +got):\n%s", diff)
	}
	got := out.String()
	for _, s := range []string{"pizza sales", "Started thread t2.", "Deleted thread t5.", "Started thread t3.", "usage: /switch <id>", "unknown command /bogus"} {
		if !strings.Contains(got, s) {
			t.Errorf("output missing %q:\n%s", s, got)
		}
	}
}

func TestREPL_TurnErrorKeepsRunning(t *testing.T) {
	plainOutput(t)
	sess := &fakeSession{turnErr: errors.New("database is locked")}
	var out strings.Builder

	if err := runREPL(context.Background(), sess, &fakeBrowser{}, strings.NewReader("one\ntwo\n"), &out, ""); err != nil {
		t.Fatalf("runREPL: %v", err)
	}
	if n := strings.Count(out.String(), "✗ database is locked"); n != 2 {
		t.Errorf("error printed %d times, want 2:\n%s", n, out.String())
	}
}
