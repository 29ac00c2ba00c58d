package hook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// waitDelay bounds how long Execute waits for a killed hook's output pipes
// to close.
const waitDelay = 2 * time.Second

// Executor runs hooks with a timeout.
type Executor struct {
	timeout time.Duration
}

// NewExecutor creates a new Executor with the given timeout.
func NewExecutor(timeout time.Duration) *Executor {
	return &Executor{timeout: timeout}
}

// Execute runs hook with req on stdin under the executor timeout and
// parses its stdout as a Response.
func (e *Executor) Execute(ctx context.Context, hook *Hook, req *Request) (*Response, error) {
	return e.Run(ctx, hook, req, e.timeout)
}

// Run is Execute with an explicit timeout. A timeout <= 0 lets the hook
// run until ctx is done. On timeout or cancellation the hook's whole
// process group is killed.
func (e *Executor) Run(ctx context.Context, hook *Hook, req *Request, timeout time.Duration) (*Response, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, hook.Executable)
	cmd.Dir = hook.Path
	cmd.WaitDelay = waitDelay
	killProcessGroup(cmd)

	reqJSON, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	cmd.Stdin = bytes.NewReader(reqJSON)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()

	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return nil, fmt.Errorf("hook %s timeout after %s", hook.Manifest.Name, timeout)
	case errors.Is(ctx.Err(), context.Canceled):
		return nil, fmt.Errorf("hook %s: %w", hook.Manifest.Name, ctx.Err())
	}

	if err != nil {
		if s := stderr.String(); s != "" {
			return nil, fmt.Errorf("hook %s failed: %w, stderr: %s", hook.Manifest.Name, err, s)
		}
		return nil, fmt.Errorf("hook %s failed: %w", hook.Manifest.Name, err)
	}

	var response Response
	if err := json.Unmarshal(stdout.Bytes(), &response); err != nil {
		return nil, fmt.Errorf("failed to parse hook response: %w, stdout: %s", err, stdout.String())
	}

	return &response, nil
}
