package executor

import (
	"context"
	"strings"
	"testing"
	"time"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	return &Engine{
		Timeout:   5 * time.Second,
		MaxOutput: 1 << 20,
		WorkDir:   t.TempDir(),
	}
}

func TestRunSuccess(t *testing.T) {
	t.Parallel()

	res := testEngine(t).Run(context.Background(), "echo hello")
	if !res.Success {
		t.Fatalf("expected success, got error %q", res.Error)
	}
	if res.ExitCode != 0 {
		t.Fatalf("exit code = %d, want 0", res.ExitCode)
	}
	if !strings.Contains(res.Stdout, "hello\n") {
		t.Fatalf("stdout = %q, want to contain %q", res.Stdout, "hello\n")
	}
}

func TestRunNonZeroExitStillSucceeds(t *testing.T) {
	t.Parallel()

	res := testEngine(t).Run(context.Background(), "exit 3")
	if !res.Success {
		t.Fatalf("completed run with nonzero exit must report success, got error %q", res.Error)
	}
	if res.ExitCode != 3 {
		t.Fatalf("exit code = %d, want 3", res.ExitCode)
	}
}

func TestRunCapturesStderrSeparately(t *testing.T) {
	t.Parallel()

	res := testEngine(t).Run(context.Background(), "echo out; echo err 1>&2")
	if !strings.Contains(res.Stdout, "out") {
		t.Fatalf("stdout = %q, want to contain %q", res.Stdout, "out")
	}
	if !strings.Contains(res.Stderr, "err") {
		t.Fatalf("stderr = %q, want to contain %q", res.Stderr, "err")
	}
	if strings.Contains(res.Stdout, "err") {
		t.Fatalf("stderr leaked into stdout: %q", res.Stdout)
	}
}

func TestRunTimeout(t *testing.T) {
	t.Parallel()

	e := testEngine(t)
	e.Timeout = 100 * time.Millisecond

	start := time.Now()
	res := e.Run(context.Background(), "sleep 5")
	elapsed := time.Since(start)

	if res.Success {
		t.Fatalf("timed-out run must not report success")
	}
	if !strings.Contains(res.Error, "timed out after 100ms") {
		t.Fatalf("error = %q, want timeout error naming the deadline", res.Error)
	}
	if elapsed > 3*time.Second {
		t.Fatalf("timeout took %v, expected prompt termination", elapsed)
	}
}

func TestRunTruncatesOutput(t *testing.T) {
	t.Parallel()

	e := testEngine(t)
	e.MaxOutput = 10

	res := e.Run(context.Background(), "printf '0123456789abcdef'")
	if !res.Success {
		t.Fatalf("unexpected error %q", res.Error)
	}
	if !strings.HasPrefix(res.Stdout, "0123456789") {
		t.Fatalf("stdout = %q, want first 10 bytes preserved", res.Stdout)
	}
	if !strings.Contains(res.Stdout, "[output truncated at 10 bytes]") {
		t.Fatalf("stdout = %q, want truncation marker", res.Stdout)
	}
	body := strings.SplitN(res.Stdout, "\n[output truncated", 2)[0]
	if len(body) != 10 {
		t.Fatalf("truncated body length = %d, want 10", len(body))
	}
}

func TestRunOutputUnderBudgetUnmodified(t *testing.T) {
	t.Parallel()

	e := testEngine(t)
	e.MaxOutput = 64

	res := e.Run(context.Background(), "printf 'short'")
	if res.Stdout != "short" {
		t.Fatalf("stdout = %q, want %q", res.Stdout, "short")
	}
}

func TestRunRestrictedEnvironment(t *testing.T) {
	t.Setenv("SHELLGATE_SECRET_CANARY", "leaked")

	e := &Engine{Timeout: 5 * time.Second, MaxOutput: 1 << 20, WorkDir: t.TempDir()}
	res := e.Run(context.Background(), "env")
	if !res.Success {
		t.Fatalf("unexpected error %q", res.Error)
	}
	if strings.Contains(res.Stdout, "SHELLGATE_SECRET_CANARY") {
		t.Fatalf("child inherited parent environment: %q", res.Stdout)
	}
	if !strings.Contains(res.Stdout, "PATH=") {
		t.Fatalf("child missing PATH: %q", res.Stdout)
	}
}

func TestRunPinsWorkingDirectory(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	e := &Engine{Timeout: 5 * time.Second, MaxOutput: 1 << 20, WorkDir: dir}
	res := e.Run(context.Background(), "pwd")
	if !strings.Contains(res.Stdout, dir) {
		t.Fatalf("pwd = %q, want workdir %q", res.Stdout, dir)
	}
}

func TestRunCallerCancellationNotSuccess(t *testing.T) {
	t.Parallel()

	e := testEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	res := e.Run(ctx, "sleep 5")
	if res.Success {
		t.Fatalf("cancelled run must not report success")
	}
	if res.ExitCode != -1 {
		t.Fatalf("exit code = %d, want -1", res.ExitCode)
	}
	if !strings.Contains(res.Error, "interrupted") {
		t.Fatalf("error = %q, want interruption reported", res.Error)
	}
}

func TestRunSignalDeathNotSuccess(t *testing.T) {
	t.Parallel()

	res := testEngine(t).Run(context.Background(), "kill -9 $$")
	if res.Success {
		t.Fatalf("signal-killed run must not report success")
	}
	if res.ExitCode != -1 {
		t.Fatalf("exit code = %d, want -1", res.ExitCode)
	}
	if res.Error == "" {
		t.Fatalf("signal death must carry an error string")
	}
}

func TestRunSpawnFailureReported(t *testing.T) {
	t.Parallel()

	e := &Engine{Timeout: time.Second, MaxOutput: 1 << 20, WorkDir: "/nonexistent-shellgate-dir"}
	res := e.Run(context.Background(), "echo hi")
	if res.Success {
		t.Fatalf("spawn failure must not report success")
	}
	if res.Error == "" {
		t.Fatalf("spawn failure must carry an error string")
	}
	if res.ExitCode != -1 {
		t.Fatalf("exit code = %d, want -1", res.ExitCode)
	}
}
