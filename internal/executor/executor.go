// Package executor runs approved commands in bounded subprocesses:
// wall-clock timeout, per-stream output caps, pinned working directory,
// and a minimal environment.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// defaultPath is handed to children instead of the inherited
// environment, shrinking the env-injection surface.
const defaultPath = "/usr/local/bin:/usr/bin:/bin"

// Result is the outcome of one subprocess run. Success means the
// process ran to completion without infrastructure error; the exit code
// carries the process's own pass/fail signal.
type Result struct {
	Success  bool   `json:"success"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
	Error    string `json:"error,omitempty"`
}

// Engine executes shell commands under fixed resource bounds.
type Engine struct {
	Timeout   time.Duration
	MaxOutput int
	// WorkDir pins the child's working directory; never derived from
	// request input.
	WorkDir string
	// Path overrides the PATH handed to children. Empty uses defaultPath.
	Path string
}

// Run executes command through the shell and always returns a Result;
// spawn failures and timeouts are reported in it, never as a panic or
// crash.
func (e *Engine) Run(ctx context.Context, command string) Result {
	runCtx := ctx
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, "sh", "-c", command)
	cmd.Dir = e.WorkDir
	cmd.Env = e.childEnv()
	cmd.WaitDelay = 2 * time.Second

	stdout := &limitedBuffer{limit: e.MaxOutput}
	stderr := &limitedBuffer{limit: e.MaxOutput}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return Result{
			ExitCode: -1,
			Error:    fmt.Sprintf("failed to start command: %v", err),
		}
	}

	err := cmd.Wait()

	if runCtx.Err() == context.DeadlineExceeded {
		return Result{
			Stdout:   e.render(stdout),
			Stderr:   e.render(stderr),
			ExitCode: -1,
			Error:    fmt.Sprintf("timed out after %s", e.Timeout),
		}
	}

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return Result{
				Stdout:   e.render(stdout),
				Stderr:   e.render(stderr),
				ExitCode: -1,
				Error:    fmt.Sprintf("execution error: %v", err),
			}
		}
	}

	// A -1 exit code means the child died to a signal or cancellation
	// instead of exiting; that is not a completed run.
	if exitCode == -1 {
		reason := "process terminated by signal"
		if ctxErr := runCtx.Err(); ctxErr != nil {
			reason = fmt.Sprintf("execution interrupted: %v", ctxErr)
		}
		return Result{
			Stdout:   e.render(stdout),
			Stderr:   e.render(stderr),
			ExitCode: -1,
			Error:    reason,
		}
	}

	return Result{
		Success:  true,
		Stdout:   e.render(stdout),
		Stderr:   e.render(stderr),
		ExitCode: exitCode,
	}
}

func (e *Engine) childEnv() []string {
	path := e.Path
	if path == "" {
		path = defaultPath
	}
	return []string{
		"PATH=" + path,
		"HOME=" + e.WorkDir,
		"LANG=C.UTF-8",
	}
}

func (e *Engine) render(b *limitedBuffer) string {
	if !b.truncated {
		return b.String()
	}
	return b.String() + fmt.Sprintf("\n[output truncated at %d bytes]", e.MaxOutput)
}

// limitedBuffer keeps the first limit bytes written and flags overflow.
// Later writes still report full length so the child never sees a write
// error.
type limitedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (l *limitedBuffer) Write(p []byte) (int, error) {
	if l.limit <= 0 {
		return l.buf.Write(p)
	}
	remaining := l.limit - l.buf.Len()
	if remaining <= 0 {
		l.truncated = true
		return len(p), nil
	}
	if len(p) > remaining {
		l.truncated = true
		_, _ = l.buf.Write(p[:remaining])
		return len(p), nil
	}
	return l.buf.Write(p)
}

func (l *limitedBuffer) String() string {
	return l.buf.String()
}
