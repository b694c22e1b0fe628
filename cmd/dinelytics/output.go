package main

import (
	"fmt"
	"io"
	"os"

	"github.com/soumithganji/DineLytics/internal/storage"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
)

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorGreen, "✓ "+msg))
}

func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorRed, "✗ "+msg))
}

func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorYellow, "⚠ "+msg))
}

func printStatus(label string, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	l := colorize(colorBold, label+":")
	fmt.Fprintf(os.Stderr, "  %s %s\n", l, val)
}

func printStep(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorCyan, "→ "+msg))
}

// roleLabel is the speaker prefix shown before a message.
func roleLabel(role string) string {
	switch role {
	case storage.RoleUser:
		return colorize(colorBold+colorBlue, "You:")
	case storage.RoleAssistant:
		return colorize(colorBold+colorGreen, "DineLytics:")
	default:
		return colorize(colorBold, role+":")
	}
}

// printMessages writes a thread's display log.
func printMessages(w io.Writer, msgs []storage.Message) {
	for _, m := range msgs {
		fmt.Fprintf(w, "%s %s\n\n", roleLabel(m.Role), m.Content)
	}
}

// printThreadLine writes one listing row.
func printThreadLine(w io.Writer, t storage.ThreadSummary, current bool) {
	marker := "  "
	if current {
		marker = colorize(colorGreen, "* ")
	}
	title := t.Title
	if title == "" {
		title = colorize(colorDim, "(empty)")
	}
	fmt.Fprintf(w, "%s%s  %s  %s\n", marker, colorize(colorCyan, t.ID), t.UpdatedAt.Local().Format("2006-01-02 15:04"), title)
}
