package fixer

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"time"

	"github.com/google/uuid"

	"github.com/mendrake/siteforge/recipe"
)

// CmdCollaborator talks to an external authoring/fixing process. Author
// is one-shot: a fresh invocation per request. Fix sessions are
// long-lived: one subprocess per session, line-delimited JSON requests
// on stdin and responses on stdout, so the collaborator can keep the
// conversation state itself.
type CmdCollaborator struct {
	// Bin is the collaborator executable.
	Bin string
	// Args are fixed arguments placed before the mode argument.
	Args []string
	// AuthorTimeout bounds one authoring call. Default: 120s.
	AuthorTimeout time.Duration
}

// authorRequest is the stdin payload for one authoring invocation.
type authorRequest struct {
	StepType recipe.StepType `json:"step_type"`
	Context  AuthorContext   `json:"context"`
}

type authorResponse struct {
	Steps   []recipe.Step `json:"steps"`
	Message string        `json:"message,omitempty"`
}

// Author invokes `bin args... author` with the request on stdin.
func (c *CmdCollaborator) Author(ctx context.Context, stepType recipe.StepType, ac AuthorContext) ([]recipe.Step, error) {
	timeout := c.AuthorTimeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	payload, err := json.Marshal(authorRequest{StepType: stepType, Context: ac})
	if err != nil {
		return nil, fmt.Errorf("fixer: marshal author request: %w", err)
	}

	args := append(append([]string{}, c.Args...), "author")
	cmd := exec.CommandContext(ctx, c.Bin, args...)
	cmd.Stdin = bytes.NewReader(payload)

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("fixer: author run: %w", err)
	}

	var resp authorResponse
	if err := json.Unmarshal(out, &resp); err != nil {
		return nil, fmt.Errorf("fixer: decode author response: %w", err)
	}
	if len(resp.Steps) == 0 {
		return nil, fmt.Errorf("fixer: collaborator authored no steps: %s", resp.Message)
	}
	return resp.Steps, nil
}

// OpenSession spawns `bin args... fix <session-id> <site-id>` and keeps
// it alive for the whole repair loop.
func (c *CmdCollaborator) OpenSession(ctx context.Context, siteID string) (Session, error) {
	sessionID := uuid.NewString()
	args := append(append([]string{}, c.Args...), "fix", sessionID, siteID)

	cmd := exec.CommandContext(ctx, c.Bin, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("fixer: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("fixer: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("fixer: start session process: %w", err)
	}

	return &cmdSession{
		id:    sessionID,
		cmd:   cmd,
		stdin: stdin,
		out:   newResponseScanner(stdout),
	}, nil
}

// maxResponseLine bounds one fix response. Rewrite actions carry whole
// step sequences with evidence snippets, far past bufio's default 64KB
// token limit.
const maxResponseLine = 16 << 20

func newResponseScanner(r io.Reader) *bufio.Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxResponseLine)
	return sc
}

type cmdSession struct {
	id    string
	cmd   *exec.Cmd
	stdin io.WriteCloser
	out   *bufio.Scanner
}

// Fix writes one FixContext line and reads one Action line back. The
// caller serializes Fix calls; the repair loop never issues two at once.
func (s *cmdSession) Fix(ctx context.Context, fc FixContext) (Action, error) {
	payload, err := json.Marshal(fc)
	if err != nil {
		return Action{}, fmt.Errorf("fixer: marshal fix context: %w", err)
	}
	payload = append(payload, '\n')
	if _, err := s.stdin.Write(payload); err != nil {
		return Action{}, fmt.Errorf("fixer: write fix request: %w", err)
	}

	type lineResult struct {
		ok  bool
		err error
	}
	ch := make(chan lineResult, 1)
	go func() {
		ok := s.out.Scan()
		ch <- lineResult{ok: ok, err: s.out.Err()}
	}()

	select {
	case <-ctx.Done():
		return Action{}, ctx.Err()
	case r := <-ch:
		if !r.ok {
			if r.err != nil {
				return Action{}, fmt.Errorf("fixer: read fix response: %w", r.err)
			}
			return Action{}, fmt.Errorf("fixer: session process closed its output")
		}
	}

	var action Action
	if err := json.Unmarshal(s.out.Bytes(), &action); err != nil {
		return Action{}, fmt.Errorf("fixer: decode fix response: %w", err)
	}
	return action.Normalize(), nil
}

// Close ends the conversation by closing stdin and reaping the process.
func (s *cmdSession) Close() error {
	s.stdin.Close()
	if err := s.cmd.Wait(); err != nil {
		return fmt.Errorf("fixer: session %s exit: %w", s.id, err)
	}
	return nil
}
