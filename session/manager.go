package session

import (
	"errors"
	"sync"
	"time"

	"github.com/c360studio/teamrelay/directory"
	"github.com/c360studio/teamrelay/routing"
)

// ErrFlowPending is returned when a sender starts a new flow while one of
// theirs is already awaiting confirmation. The pending flow must be
// confirmed or cancelled first; it is never silently overwritten.
var ErrFlowPending = errors.New("a flow is already awaiting confirmation")

// Session is one sender's in-progress flow: the classified intent, the
// current state, and (once the confirmation prompt is out) the token of
// the pending action.
type Session struct {
	Sender    directory.Identity
	State     State
	Intent    routing.Intent
	Token     string
	CreatedAt time.Time
}

// Apply advances the session through the state machine.
func (s *Session) Apply(e Event) error {
	next, err := Next(s.State, e)
	if err != nil {
		return err
	}
	s.State = next
	return nil
}

// Manager tracks at most one session per sender. Sessions for different
// senders are independent; all methods are safe for concurrent use.
type Manager struct {
	mu       sync.Mutex
	sessions map[directory.Identity]*Session
}

// NewManager creates an empty session manager.
func NewManager() *Manager {
	return &Manager{sessions: make(map[directory.Identity]*Session)}
}

// Begin starts a flow for sender with the given intent. A flow that is
// still before its confirmation prompt is overwritten (the sender changed
// their mind); a flow awaiting confirmation is protected and Begin returns
// ErrFlowPending.
func (m *Manager) Begin(sender directory.Identity, intent routing.Intent) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.sessions[sender]; ok && existing.State == StateAwaitingConfirmation {
		return nil, ErrFlowPending
	}

	s := &Session{
		Sender:    sender,
		State:     StateClassified,
		Intent:    intent,
		CreatedAt: time.Now().UTC(),
	}
	m.sessions[sender] = s
	return s, nil
}

// Get returns sender's active session, if any.
func (m *Manager) Get(sender directory.Identity) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sender]
	return s, ok
}

// End discards sender's session. Ending an absent session is a no-op.
func (m *Manager) End(sender directory.Identity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sender)
}

// Active returns the number of senders with an open session.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
