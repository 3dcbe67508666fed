package fixer

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/mendrake/siteforge/recipe"
)

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func TestSessionFix_ReadsLargeResponseLine(t *testing.T) {
	// WHY: A rewrite response embedding page snippets can run to
	// hundreds of KB on one line; the default scanner token limit of
	// 64KB would fail it with "token too long".
	snippet := strings.Repeat("x", 200*1024)
	resp, err := json.Marshal(Action{
		Kind:  ActionRewrite,
		Steps: []recipe.Step{{"command": "goto", "url": "https://example.com", "note": snippet}},
	})
	if err != nil {
		t.Fatal(err)
	}

	s := &cmdSession{
		id:    "test",
		stdin: nopWriteCloser{io.Discard},
		out:   newResponseScanner(bytes.NewReader(append(resp, '\n'))),
	}
	action, err := s.Fix(context.Background(), FixContext{})
	if err != nil {
		t.Fatalf("Fix: %v", err)
	}
	if action.Kind != ActionRewrite || len(action.Steps) != 1 {
		t.Errorf("action = %+v, want the rewrite decoded intact", action.Kind)
	}
}

func TestSessionFix_ClosedOutputIsAnError(t *testing.T) {
	s := &cmdSession{
		id:    "test",
		stdin: nopWriteCloser{io.Discard},
		out:   newResponseScanner(strings.NewReader("")),
	}
	if _, err := s.Fix(context.Background(), FixContext{}); err == nil {
		t.Error("expected an error when the session closes its output")
	}
}
