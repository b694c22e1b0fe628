package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/soumithganji/DineLytics/internal/chat"
	"github.com/soumithganji/DineLytics/internal/storage"
)

// session is what the interactive chat needs from the service.
type session interface {
	NewThread(ctx context.Context) (storage.Thread, error)
	HandleTurn(ctx context.Context, threadID, userText string) (chat.Reply, error)
	DeleteThread(ctx context.Context, id, current string) (string, error)
}

// threadBrowser lists and loads stored threads.
type threadBrowser interface {
	ListThreads(ctx context.Context) ([]storage.ThreadSummary, error)
	GetThread(ctx context.Context, id string) (storage.Thread, error)
}

const replHelp = `Commands:
  /new            start a new thread
  /threads        list threads
  /switch <id>    continue another thread
  /delete [id]    delete a thread (default: the current one)
  /history        show the current thread
  /quit           leave`

type repl struct {
	sess    session
	threads threadBrowser
	out     io.Writer
	current string
}

// runREPL reads one message per line from in until EOF or /quit. threadID
// selects the starting thread; empty starts a new one.
func runREPL(ctx context.Context, sess session, threads threadBrowser, in io.Reader, out io.Writer, threadID string) error {
	r := &repl{sess: sess, threads: threads, out: out}
	if threadID == "" {
		if err := r.newThread(ctx); err != nil {
			return err
		}
	} else if err := r.switchTo(ctx, threadID); err != nil {
		return err
	}

	fmt.Fprintln(out, colorize(colorDim, "Ask about sales, orders or menu items. /help lists commands."))
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for {
		fmt.Fprint(out, colorize(colorBold+colorBlue, "> "))
		if !sc.Scan() {
			fmt.Fprintln(out)
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			quit, err := r.command(ctx, line)
			if err != nil {
				fmt.Fprintln(out, colorize(colorRed, "✗ "+err.Error()))
			}
			if quit {
				return nil
			}
			continue
		}

		reply, err := sess.HandleTurn(ctx, r.current, line)
		if err != nil {
			fmt.Fprintln(out, colorize(colorRed, "✗ "+err.Error()))
			continue
		}
		fmt.Fprintf(out, "%s %s\n\n", roleLabel(storage.RoleAssistant), reply.Text)
	}
}

func (r *repl) command(ctx context.Context, line string) (quit bool, err error) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return true, nil
	case "/help":
		fmt.Fprintln(r.out, replHelp)
	case "/new":
		return false, r.newThread(ctx)
	case "/threads":
		summaries, err := r.threads.ListThreads(ctx)
		if err != nil {
			return false, err
		}
		for _, t := range summaries {
			printThreadLine(r.out, t, t.ID == r.current)
		}
	case "/switch":
		if len(fields) != 2 {
			return false, errors.New("usage: /switch <id>")
		}
		return false, r.switchTo(ctx, fields[1])
	case "/delete":
		id := r.current
		if len(fields) > 1 {
			id = fields[1]
		}
		next, err := r.sess.DeleteThread(ctx, id, r.current)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(r.out, "Deleted thread %s.\n", id)
		if next != r.current {
			r.current = next
			fmt.Fprintf(r.out, "Started thread %s.\n", next)
		}
	case "/history":
		t, err := r.threads.GetThread(ctx, r.current)
		if err != nil {
			return false, err
		}
		printMessages(r.out, t.Messages)
	default:
		return false, fmt.Errorf("unknown command %s; /help lists commands", fields[0])
	}
	return false, nil
}

func (r *repl) newThread(ctx context.Context) error {
	t, err := r.sess.NewThread(ctx)
	if err != nil {
		return err
	}
	r.current = t.ID
	fmt.Fprintf(r.out, "Started thread %s.\n", t.ID)
	return nil
}

func (r *repl) switchTo(ctx context.Context, id string) error {
	t, err := r.threads.GetThread(ctx, id)
	if err != nil {
		return fmt.Errorf("loading thread %s: %w", id, err)
	}
	r.current = t.ID
	fmt.Fprintf(r.out, "Continuing thread %s.\n", t.ID)
	printMessages(r.out, t.Messages)
	return nil
}
