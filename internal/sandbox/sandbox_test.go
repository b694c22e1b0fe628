package sandbox

import (
	"context"
	"os/exec"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestLocalRunner_Output(t *testing.T) {
	requireShell(t)
	r := NewLocalRunner("sh", nil, Settings{})

	out, err := r.Run(context.Background(), `echo '[{"total": 42}]'`)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out != "[{\"total\": 42}]\n" {
		t.Errorf("output = %q", out)
	}
}

func TestLocalRunner_PassesSettings(t *testing.T) {
	requireShell(t)
	r := NewLocalRunner("sh", nil, Settings{MongoURI: "mongodb://db:27017", DatabaseName: "appetit_db"})

	out, err := r.Run(context.Background(), `echo "$mongodb_uri $database_name"`)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if strings.TrimSpace(out) != "mongodb://db:27017 appetit_db" {
		t.Errorf("output = %q", out)
	}
}

func TestLocalRunner_NonZeroExit(t *testing.T) {
	requireShell(t)
	r := NewLocalRunner("sh", nil, Settings{})

	out, err := r.Run(context.Background(), "echo 'Traceback (most recent call last):' >&2\nexit 3")
	if err == nil {
		t.Fatal("expected error for non-zero exit")
	}
	if !strings.Contains(err.Error(), "status 3") {
		t.Errorf("error = %v, want exit status", err)
	}
	if !strings.Contains(out, "Traceback") {
		t.Errorf("output = %q, want stderr included", out)
	}
}

func TestLocalRunner_MissingInterpreter(t *testing.T) {
	r := NewLocalRunner("dinelytics-no-such-interpreter", nil, Settings{})
	if _, err := r.Run(context.Background(), "print(1)"); err == nil {
		t.Error("expected error for missing interpreter")
	}
}

func TestDockerRunner_Args(t *testing.T) {
	r := NewDockerRunner("dinelytics-sandbox:latest", "dinelytics", Settings{MongoURI: "mongodb://mongo:27017", DatabaseName: "appetit_db"})
	want := []string{
		"run", "--rm", "-i", "--label", "dinelytics.sandbox=1",
		"--network", "dinelytics",
		"-e", "mongodb_uri=mongodb://mongo:27017",
		"-e", "database_name=appetit_db",
		"dinelytics-sandbox:latest", "python", "-",
	}
	if diff := cmp.Diff(want, r.args()); diff != "" {
		t.Errorf("args mismatch (-want +got):\n%s", diff)
	}

	noNet := NewDockerRunner("img", "", Settings{})
	for _, a := range noNet.args() {
		if a == "--network" {
			t.Error("--network set with empty network")
		}
	}
}
