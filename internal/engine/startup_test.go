package engine

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
)

type mockManager struct {
	isRunning bool
	models    map[string]bool
	pulled    []string
}

func (m *mockManager) IsRunning(_ context.Context) bool { return m.isRunning }
func (m *mockManager) HasModel(_ context.Context, name string) bool {
	return m.models[name]
}
func (m *mockManager) PullModel(_ context.Context, name string, cb func(PullProgress)) error {
	m.pulled = append(m.pulled, name)
	if cb != nil {
		cb(PullProgress{Status: "success"})
	}
	return nil
}

func TestEnsureReady_AllModelsPresent(t *testing.T) {
	m := &mockManager{isRunning: true, models: map[string]bool{"all-minilm": true}}
	if err := EnsureReady(context.Background(), m, []string{"all-minilm"}, io.Discard); err != nil {
		t.Fatalf("EnsureReady: %v", err)
	}
	if len(m.pulled) != 0 {
		t.Errorf("expected no pulls, got %v", m.pulled)
	}
}

func TestEnsureReady_PullsMissingOnce(t *testing.T) {
	m := &mockManager{isRunning: true, models: map[string]bool{"llama3.3": true}}
	var out bytes.Buffer
	err := EnsureReady(context.Background(), m, []string{"llama3.3", "all-minilm", "all-minilm", ""}, &out)
	if err != nil {
		t.Fatalf("EnsureReady: %v", err)
	}
	if len(m.pulled) != 1 || m.pulled[0] != "all-minilm" {
		t.Errorf("expected one pull of all-minilm, got %v", m.pulled)
	}
	if !strings.Contains(out.String(), "model all-minilm: pulling...") {
		t.Errorf("progress output missing pull line:\n%s", out.String())
	}
}

func TestEnsureReady_EngineDown(t *testing.T) {
	m := &mockManager{}
	if err := EnsureReady(context.Background(), m, []string{"all-minilm"}, io.Discard); err == nil {
		t.Fatal("expected error when model server is down")
	}
}
