// Package sandbox runs generated query programs out of process and returns
// what they print.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Environment variable names the generated programs read their connection
// settings from.
const (
	EnvMongoURI     = "mongodb_uri"
	EnvDatabaseName = "database_name"
)

// Executor runs a program and returns its combined stdout and stderr. A
// program that exits non-zero yields its output together with an error.
type Executor interface {
	Run(ctx context.Context, code string) (string, error)
}

// Settings are passed to every program as environment variables.
type Settings struct {
	MongoURI     string
	DatabaseName string
}

func (s Settings) env() []string {
	return []string{
		EnvMongoURI + "=" + s.MongoURI,
		EnvDatabaseName + "=" + s.DatabaseName,
	}
}

// LocalRunner pipes programs into an interpreter on the host.
type LocalRunner struct {
	interpreter string
	args        []string
	settings    Settings
}

// NewLocalRunner creates a runner invoking interpreter with args. The
// program is written to the interpreter's stdin, so args should make it read
// from there ("-" for python).
func NewLocalRunner(interpreter string, args []string, settings Settings) *LocalRunner {
	return &LocalRunner{interpreter: interpreter, args: args, settings: settings}
}

// Run executes code and returns its output.
func (r *LocalRunner) Run(ctx context.Context, code string) (string, error) {
	cmd := exec.CommandContext(ctx, r.interpreter, r.args...)
	cmd.Env = append(os.Environ(), r.settings.env()...)
	return run(cmd, code)
}

// DockerRunner runs each program in a fresh, auto-removed container.
type DockerRunner struct {
	image    string
	network  string
	settings Settings
}

// NewDockerRunner creates a runner using image, which must provide python
// and pymongo. network may be empty for Docker's default.
func NewDockerRunner(image, network string, settings Settings) *DockerRunner {
	return &DockerRunner{image: image, network: network, settings: settings}
}

// Run executes code inside a container and returns its output.
func (r *DockerRunner) Run(ctx context.Context, code string) (string, error) {
	cmd := exec.CommandContext(ctx, "docker", r.args()...)
	return run(cmd, code)
}

func (r *DockerRunner) args() []string {
	args := []string{"run", "--rm", "-i", "--label", "dinelytics.sandbox=1"}
	if r.network != "" {
		args = append(args, "--network", r.network)
	}
	for _, e := range r.settings.env() {
		args = append(args, "-e", e)
	}
	return append(args, r.image, "python", "-")
}

func run(cmd *exec.Cmd, code string) (string, error) {
	cmd.Stdin = strings.NewReader(code)
	output, err := cmd.CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return string(output), fmt.Errorf("program exited with status %d", exitErr.ExitCode())
		}
		return string(output), fmt.Errorf("running %s: %w", cmd.Path, err)
	}
	return string(output), nil
}
