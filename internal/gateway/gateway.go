// Package gateway orders the admission pipeline for every execute
// request: rate limit, then session, then policy, then the execution
// engine, with the outcome appended to session history.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"shellgate/internal/executor"
	"shellgate/internal/policy"
	"shellgate/internal/ratelimit"
	"shellgate/internal/session"
)

var (
	// ErrRateLimited denies a request before any session or policy work.
	ErrRateLimited = errors.New("rate limit exceeded, try again later")
	// ErrSessionInvalid covers unknown and expired sessions alike.
	ErrSessionInvalid = errors.New("invalid or expired session")
	// ErrEmptyCommand rejects blank command strings.
	ErrEmptyCommand = errors.New("command cannot be empty")
)

// PolicyDeniedError reports a policy-filter rejection. The denial is
// recorded into session history before it is returned.
type PolicyDeniedError struct {
	Reason string
}

func (e *PolicyDeniedError) Error() string {
	return e.Reason
}

// Runner executes an approved command within fixed bounds.
type Runner interface {
	Run(ctx context.Context, command string) executor.Result
}

// Request is one inbound execute call.
type Request struct {
	// ClientID identifies the caller for rate limiting, typically the
	// source address.
	ClientID  string
	SessionID string
	Command   string
}

// Snapshot is the active policy and limits, for display only.
type Snapshot struct {
	AllowedCommands    []string `json:"allowed_commands"`
	Unrestricted       bool     `json:"unrestricted"`
	TimeoutSeconds     int      `json:"command_timeout"`
	MaxOutputBytes     int      `json:"max_output_size"`
	RateLimitPerMinute int      `json:"rate_limit"`
}

// Gateway wires the admission pipeline around the execution engine.
// All collaborators are constructed once at startup and owned by the
// caller; Gateway holds no ambient state.
type Gateway struct {
	limiter  *ratelimit.Limiter
	sessions *session.Store
	filter   *policy.Filter
	runner   Runner
	snapshot Snapshot
	logger   *slog.Logger
}

// New builds a gateway over the given collaborators.
func New(limiter *ratelimit.Limiter, sessions *session.Store, filter *policy.Filter, runner Runner, snapshot Snapshot) *Gateway {
	snapshot.AllowedCommands = filter.AllowedCommands()
	snapshot.Unrestricted = filter.Unrestricted()
	snapshot.RateLimitPerMinute = limiter.Limit()
	return &Gateway{
		limiter:  limiter,
		sessions: sessions,
		filter:   filter,
		runner:   runner,
		snapshot: snapshot,
	}
}

func (g *Gateway) SetLogger(logger *slog.Logger) {
	g.logger = logger
}

// Execute runs the admission pipeline for one request. Denials are
// reported through the error; the Result is meaningful for policy
// denials (recorded in history) and for execution outcomes.
func (g *Gateway) Execute(ctx context.Context, req Request) (executor.Result, error) {
	if !g.limiter.Allow(req.ClientID) {
		g.logWarn("request_rate_limited", "client", req.ClientID)
		return executor.Result{}, ErrRateLimited
	}

	if !g.sessions.Validate(req.SessionID) {
		g.logWarn("request_session_invalid", "client", req.ClientID)
		return executor.Result{}, ErrSessionInvalid
	}

	if strings.TrimSpace(req.Command) == "" {
		return executor.Result{}, ErrEmptyCommand
	}

	if decision := g.filter.Evaluate(req.Command); !decision.Allowed {
		result := executor.Result{ExitCode: -1, Error: decision.Reason}
		g.sessions.Record(req.SessionID, req.Command, result)
		g.logWarn("command_denied", "client", req.ClientID, "command", req.Command, "reason", decision.Reason)
		return result, &PolicyDeniedError{Reason: decision.Reason}
	}

	// The run blocks up to the engine timeout; no table lock is held
	// across it. Caller cancellation must not reach the child: once a
	// subprocess starts, only the engine deadline terminates it.
	result := g.runner.Run(context.WithoutCancel(ctx), req.Command)
	g.sessions.Record(req.SessionID, req.Command, result)
	g.logInfo("command_executed", "client", req.ClientID, "command", req.Command,
		"success", result.Success, "exit_code", result.ExitCode)
	return result, nil
}

// CreateSession issues a fresh session token.
func (g *Gateway) CreateSession() (string, error) {
	id, err := g.sessions.Create()
	if err != nil {
		return "", err
	}
	g.logInfo("session_created", "sessions", g.sessions.Len())
	return id, nil
}

// History returns the bounded command history for a session.
func (g *Gateway) History(sessionID string, limit int) ([]session.CommandRecord, error) {
	records, ok := g.sessions.History(sessionID, limit)
	if !ok {
		return nil, ErrSessionInvalid
	}
	return records, nil
}

// ConfigSnapshot returns the active policy and limits for display.
func (g *Gateway) ConfigSnapshot() Snapshot {
	out := g.snapshot
	out.AllowedCommands = append([]string(nil), g.snapshot.AllowedCommands...)
	return out
}

func (g *Gateway) logInfo(msg string, args ...any) {
	if g.logger != nil {
		g.logger.Info(msg, args...)
	}
}

func (g *Gateway) logWarn(msg string, args ...any) {
	if g.logger != nil {
		g.logger.Warn(msg, args...)
	}
}
