package session

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultCapacity bounds the per-session transcript buffer.
const DefaultCapacity = 100

type State int32

const (
	StateActive State = iota
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// TranscriptLine is one finalized or interim recognition result.
// Immutable once appended to a session buffer.
type TranscriptLine struct {
	Timestamp time.Duration
	Speaker   string
	Text      string
	IsFinal   bool
}

// Session holds the server-side state for one live client connection.
type Session struct {
	ID        string
	StartedAt time.Time

	clock    func() time.Time
	capacity int

	mu              sync.Mutex
	speakers        map[string]string
	lines           []TranscriptLine
	lastSummaryMark time.Duration

	state atomic.Int32
}

func New(id string, capacity int, clock func() time.Time) *Session {
	if clock == nil {
		clock = time.Now
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Session{
		ID:        id,
		StartedAt: clock(),
		clock:     clock,
		capacity:  capacity,
	}
}

// Elapsed returns time since the session started.
func (s *Session) Elapsed() time.Duration {
	return s.clock().Sub(s.StartedAt)
}

// SetSpeakers installs the role→display-name mapping from the client's
// setup message. It can succeed at most once per session.
func (s *Session) SetSpeakers(labels map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.speakers != nil {
		return fmt.Errorf("speaker labels already set for session %s", s.ID)
	}
	copied := make(map[string]string, len(labels))
	for role, name := range labels {
		copied[role] = name
	}
	s.speakers = copied
	return nil
}

// Speaker resolves a role to its display name.
func (s *Session) Speaker(role string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name, ok := s.speakers[role]
	return name, ok
}

// Append adds a line to the transcript buffer, evicting the oldest
// line when the buffer is at capacity.
func (s *Session) Append(line TranscriptLine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.lines) == s.capacity {
		copy(s.lines, s.lines[1:])
		s.lines = s.lines[:s.capacity-1]
	}
	s.lines = append(s.lines, line)
}

// Len reports the number of buffered lines.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lines)
}

// Window returns the buffered lines with Timestamp in (from, to],
// in chronological order.
func (s *Session) Window(from, to time.Duration) []TranscriptLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []TranscriptLine
	for _, line := range s.lines {
		if line.Timestamp > from && line.Timestamp <= to {
			out = append(out, line)
		}
	}
	return out
}

// LastSummaryMark returns the latest interval boundary already summarized.
func (s *Session) LastSummaryMark() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSummaryMark
}

// AdvanceSummaryMark moves the summarized boundary forward. It never
// moves backward.
func (s *Session) AdvanceSummaryMark(mark time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if mark > s.lastSummaryMark {
		s.lastSummaryMark = mark
	}
}

func (s *Session) State() State {
	return State(s.state.Load())
}

// BeginClose transitions ACTIVE→CLOSING. It returns true only for the
// caller that wins the transition, so teardown runs at most once.
func (s *Session) BeginClose() bool {
	return s.state.CompareAndSwap(int32(StateActive), int32(StateClosing))
}

// MarkClosed transitions CLOSING→CLOSED.
func (s *Session) MarkClosed() bool {
	return s.state.CompareAndSwap(int32(StateClosing), int32(StateClosed))
}
