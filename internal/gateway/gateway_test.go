package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"shellgate/internal/executor"
	"shellgate/internal/policy"
	"shellgate/internal/ratelimit"
	"shellgate/internal/session"
)

// fakeRunner records invocations instead of spawning subprocesses.
type fakeRunner struct {
	commands []string
	ctxs     []context.Context
	result   executor.Result
}

func (f *fakeRunner) Run(ctx context.Context, command string) executor.Result {
	f.commands = append(f.commands, command)
	f.ctxs = append(f.ctxs, ctx)
	return f.result
}

func newTestGateway(rateLimit int, allowed []string) (*Gateway, *fakeRunner, *session.Store) {
	runner := &fakeRunner{result: executor.Result{Success: true, Stdout: "hello\n"}}
	sessions := session.NewStore(time.Hour, 50)
	gw := New(
		ratelimit.NewLimiter(rateLimit),
		sessions,
		policy.NewFilter(allowed),
		runner,
		Snapshot{TimeoutSeconds: 30, MaxOutputBytes: 1 << 20},
	)
	return gw, runner, sessions
}

func TestExecuteHappyPath(t *testing.T) {
	t.Parallel()

	gw, runner, _ := newTestGateway(60, []string{"echo"})
	id, err := gw.CreateSession()
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	res, err := gw.Execute(context.Background(), Request{ClientID: "c", SessionID: id, Command: "echo hello"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.Success || res.ExitCode != 0 {
		t.Fatalf("result = %+v, want success with exit 0", res)
	}
	if len(runner.commands) != 1 || runner.commands[0] != "echo hello" {
		t.Fatalf("runner saw %v, want the single command", runner.commands)
	}

	records, err := gw.History(id, 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(records) != 1 || records[0].Command != "echo hello" {
		t.Fatalf("history = %v, want the executed command", records)
	}
}

func TestRateLimitCheckedFirst(t *testing.T) {
	t.Parallel()

	gw, runner, _ := newTestGateway(1, []string{"echo"})
	id, _ := gw.CreateSession()

	if _, err := gw.Execute(context.Background(), Request{ClientID: "c", SessionID: id, Command: "echo one"}); err != nil {
		t.Fatalf("first request: %v", err)
	}

	// Even an invalid session and empty command must see the rate
	// limit denial first.
	_, err := gw.Execute(context.Background(), Request{ClientID: "c", SessionID: "bogus", Command: ""})
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}
	if len(runner.commands) != 1 {
		t.Fatalf("runner invoked %d times, want 1", len(runner.commands))
	}

	records, _ := gw.History(id, 0)
	if len(records) != 1 {
		t.Fatalf("rate-limited request must not be recorded, history = %v", records)
	}
}

func TestInvalidSessionRejectedBeforePolicy(t *testing.T) {
	t.Parallel()

	gw, runner, _ := newTestGateway(60, []string{"echo"})

	_, err := gw.Execute(context.Background(), Request{ClientID: "c", SessionID: "bogus", Command: "rm -rf /x"})
	if !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("err = %v, want ErrSessionInvalid", err)
	}
	if len(runner.commands) != 0 {
		t.Fatalf("runner must not be invoked for an invalid session")
	}
}

func TestEmptyCommandRejected(t *testing.T) {
	t.Parallel()

	gw, runner, _ := newTestGateway(60, []string{"echo"})
	id, _ := gw.CreateSession()

	_, err := gw.Execute(context.Background(), Request{ClientID: "c", SessionID: id, Command: "   "})
	if !errors.Is(err, ErrEmptyCommand) {
		t.Fatalf("err = %v, want ErrEmptyCommand", err)
	}
	if len(runner.commands) != 0 {
		t.Fatalf("runner must not be invoked for an empty command")
	}

	records, _ := gw.History(id, 0)
	if len(records) != 0 {
		t.Fatalf("empty command must not be recorded")
	}
}

func TestPolicyDenialRecordedNotExecuted(t *testing.T) {
	t.Parallel()

	gw, runner, _ := newTestGateway(60, []string{"echo"})
	id, _ := gw.CreateSession()

	res, err := gw.Execute(context.Background(), Request{ClientID: "c", SessionID: id, Command: "rm -rf /tmp/x"})
	var denied *PolicyDeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("err = %v, want PolicyDeniedError", err)
	}
	if res.Success {
		t.Fatalf("denied result must not report success")
	}
	if len(runner.commands) != 0 {
		t.Fatalf("runner must never see a denied command")
	}

	records, _ := gw.History(id, 0)
	if len(records) != 1 {
		t.Fatalf("denial must be recorded, history = %v", records)
	}
	if records[0].Result.Success || records[0].Result.Error == "" {
		t.Fatalf("recorded denial = %+v, want failed result with reason", records[0].Result)
	}
}

func TestFailedExecutionStillRecorded(t *testing.T) {
	t.Parallel()

	gw, runner, _ := newTestGateway(60, []string{"echo"})
	runner.result = executor.Result{ExitCode: -1, Error: "timed out after 30s"}
	id, _ := gw.CreateSession()

	res, err := gw.Execute(context.Background(), Request{ClientID: "c", SessionID: id, Command: "echo slow"})
	if err != nil {
		t.Fatalf("runtime failures travel inside the result, got err %v", err)
	}
	if res.Success {
		t.Fatalf("timed-out result must not report success")
	}

	records, _ := gw.History(id, 0)
	if len(records) != 1 || records[0].Result.Error == "" {
		t.Fatalf("failed execution must be recorded, history = %v", records)
	}
}

func TestExecuteDetachedFromCallerCancellation(t *testing.T) {
	t.Parallel()

	gw, runner, _ := newTestGateway(60, []string{"echo"})
	id, _ := gw.CreateSession()

	// Once admitted, a run must survive the caller hanging up; only the
	// engine's own deadline may terminate the child.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := gw.Execute(ctx, Request{ClientID: "c", SessionID: id, Command: "echo hello"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(runner.ctxs) != 1 {
		t.Fatalf("runner invoked %d times, want 1", len(runner.ctxs))
	}
	if err := runner.ctxs[0].Err(); err != nil {
		t.Fatalf("runner context carries caller cancellation: %v", err)
	}
}

func TestHistoryInvalidSession(t *testing.T) {
	t.Parallel()

	gw, _, _ := newTestGateway(60, []string{"echo"})
	if _, err := gw.History("bogus", 0); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("err = %v, want ErrSessionInvalid", err)
	}
}

func TestConfigSnapshot(t *testing.T) {
	t.Parallel()

	gw, _, _ := newTestGateway(60, []string{"echo", "ls"})
	snap := gw.ConfigSnapshot()
	if snap.Unrestricted {
		t.Fatalf("expected restricted snapshot")
	}
	if len(snap.AllowedCommands) != 2 {
		t.Fatalf("allowed commands = %v, want 2 entries", snap.AllowedCommands)
	}
	if snap.RateLimitPerMinute != 60 || snap.TimeoutSeconds != 30 {
		t.Fatalf("snapshot limits = %+v", snap)
	}

	snap.AllowedCommands[0] = "mutated"
	if gw.ConfigSnapshot().AllowedCommands[0] != "echo" {
		t.Fatalf("ConfigSnapshot must return a copy")
	}
}
