package session

import (
	"fmt"
	"sync"
)

// Store is the process-wide registry of live sessions, keyed by client
// identifier. Sessions are added on connect and removed on teardown.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*Session),
	}
}

// Add registers a session. Adding a second session under the same id
// is an error; the existing session is left untouched.
func (st *Store) Add(s *Session) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, ok := st.sessions[s.ID]; ok {
		return fmt.Errorf("session %s already registered", s.ID)
	}
	st.sessions[s.ID] = s
	return nil
}

func (st *Store) Get(id string) (*Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[id]
	return s, ok
}

func (st *Store) Remove(id string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.sessions, id)
}

func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

// Each calls f for every registered session. The snapshot is taken
// under the lock; f runs outside it.
func (st *Store) Each(f func(*Session)) {
	st.mu.Lock()
	snapshot := make([]*Session, 0, len(st.sessions))
	for _, s := range st.sessions {
		snapshot = append(snapshot, s)
	}
	st.mu.Unlock()
	for _, s := range snapshot {
		f(s)
	}
}
