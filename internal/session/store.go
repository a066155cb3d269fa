// Package session owns the session table: opaque tokens, idle expiry,
// and a bounded per-session command history. All mutation goes through
// the Store; expiry is lazy, happening on the next validation touch.
package session

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"shellgate/internal/executor"
)

// tokenBytes is the randomness behind each session token.
const tokenBytes = 16

// CommandRecord is an immutable history entry, appended once.
type CommandRecord struct {
	Timestamp time.Time       `json:"timestamp"`
	Command   string          `json:"command"`
	Result    executor.Result `json:"result"`
}

type session struct {
	createdAt   time.Time
	lastAccess  time.Time
	commandsRun int
	history     []CommandRecord
}

// Store is a thread-safe in-memory session table.
type Store struct {
	timeout      time.Duration
	historyLimit int
	now          func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
}

// NewStore returns an empty store. Sessions idle for timeout or longer
// are invalid; each history is capped at historyLimit entries.
func NewStore(timeout time.Duration, historyLimit int) *Store {
	return &Store{
		timeout:      timeout,
		historyLimit: historyLimit,
		now:          time.Now,
		sessions:     make(map[string]*session),
	}
}

// SetClock overrides the time source. Test hook.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// Create registers a fresh session and returns its token. Tokens are
// cryptographically random and URL-safe; collision with a live session
// is negligible and not checked.
func (s *Store) Create() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	id := base64.RawURLEncoding.EncodeToString(buf)

	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = &session{createdAt: now, lastAccess: now}
	return id, nil
}

// Validate reports whether the session exists and is within its idle
// timeout. A valid touch refreshes last access; an expired session is
// deleted as a side effect.
func (s *Store) Validate(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.touch(id) != nil
}

// touch implements validate-and-refresh. Caller holds s.mu.
func (s *Store) touch(id string) *session {
	sess, ok := s.sessions[id]
	if !ok {
		return nil
	}
	now := s.now()
	if now.Sub(sess.lastAccess) >= s.timeout {
		delete(s.sessions, id)
		return nil
	}
	sess.lastAccess = now
	return sess
}

// Record validates the session and appends one history entry, evicting
// the oldest entries beyond the cap. Silently a no-op when the session
// is invalid.
func (s *Store) Record(id, command string, result executor.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.touch(id)
	if sess == nil {
		return
	}

	sess.history = append(sess.history, CommandRecord{
		Timestamp: s.now(),
		Command:   command,
		Result:    result,
	})
	if excess := len(sess.history) - s.historyLimit; excess > 0 {
		sess.history = append([]CommandRecord(nil), sess.history[excess:]...)
	}
	sess.commandsRun++
}

// History returns up to limit records in insertion order (most recent
// last), or ok=false for an unknown or expired session. limit <= 0
// returns the full history. The slice is a copy.
func (s *Store) History(id string, limit int) ([]CommandRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.touch(id)
	if sess == nil {
		return nil, false
	}

	records := sess.history
	if limit > 0 && len(records) > limit {
		records = records[len(records)-limit:]
	}
	return append([]CommandRecord(nil), records...), true
}

// CommandsRun returns the lifetime command counter for a session.
func (s *Store) CommandsRun(id string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.touch(id)
	if sess == nil {
		return 0, false
	}
	return sess.commandsRun, true
}

// Len reports the number of live sessions, expired-but-untouched ones
// included.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
