package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	"github.com/mendrake/siteforge/recipe"
)

// CmdRunner invokes the execution collaborator as a subprocess speaking
// JSON on stdout. Its failure signal (exit status + streams + optional
// error_type tag) feeds Classify.
type CmdRunner struct {
	// Bin is the collaborator executable.
	Bin string
	// Args are fixed arguments placed before the per-run ones.
	Args []string
	// Timeout bounds one run. Default: 90s.
	Timeout time.Duration
}

// runOutput is the collaborator's stdout envelope.
type runOutput struct {
	Results   []map[string]any `json:"results"`
	Result    map[string]any   `json:"result"`
	ErrorType string           `json:"error_type"`
	Message   string           `json:"message"`
}

// Run executes the recipe and decodes the collaborator's output.
func (r *CmdRunner) Run(ctx context.Context, recipePath string, stepType recipe.StepType, input string) (*Result, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := append(append([]string{}, r.Args...), recipePath, string(stepType), input)
	cmd := exec.CommandContext(ctx, r.Bin, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	var out runOutput
	decodeErr := json.Unmarshal(stdout.Bytes(), &out)

	switch {
	case runErr != nil && stdout.Len() == 0 && stderr.Len() == 0:
		// Nothing came back at all: the process never ran.
		return nil, &Failure{
			Class:  ClassProcessSpawnFailure,
			Stderr: runErr.Error(),
		}
	case out.ErrorType != "":
		return nil, &Failure{
			Class:  Classify(out.ErrorType, stdout.String(), stderr.String()),
			Tag:    out.ErrorType,
			Stdout: stdout.String(),
			Stderr: stderr.String(),
		}
	case runErr != nil:
		return nil, &Failure{
			Class:  Classify("", stdout.String(), stderr.String()),
			Stdout: stdout.String(),
			Stderr: stderr.String(),
		}
	case decodeErr != nil:
		return nil, &Failure{
			Class:  ClassInvalidOutputEncoding,
			Stdout: stdout.String(),
			Stderr: fmt.Sprintf("decode: %v", decodeErr),
		}
	}

	if len(out.Results) == 0 && out.Result == nil {
		return nil, &Failure{
			Class:  ClassEmptyResultSet,
			Stdout: stdout.String(),
			Stderr: stderr.String(),
		}
	}

	return &Result{Records: out.Results, Record: out.Result}, nil
}
