package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/c360studio/teamrelay/directory"
	"github.com/c360studio/teamrelay/routing"
)

// Payload is the captured message content awaiting dispatch: text or a
// document reference, plus the source message reference so the transport
// can forward the original as-is.
type Payload struct {
	Text      string
	DocRef    string
	Caption   string
	SourceRef string
}

// PendingAction is one sender's fully-resolved routing intent awaiting a
// confirm or cancel decision. It is created once the sender role is
// resolved and the message captured, and destroyed exactly once: on
// confirm (after dispatch) or on cancel.
type PendingAction struct {
	// Token addresses this action. Generated fresh per intent, used once.
	Token string

	Sender directory.Identity
	Kind   routing.IntentKind

	// SenderRole is the role the sender acts under. Empty for anonymous
	// feedback and privileged direct sends.
	SenderRole directory.Role

	// RecipientRoles is the addressed role set, kept for display and for
	// anonymity detection. Empty for direct-to-user kinds, where
	// TargetUser carries the addressee instead.
	RecipientRoles []directory.Role
	TargetUser     directory.Identity

	// Recipients is the resolved, deduplicated, sender-excluded identity
	// set at the time the confirmation was requested.
	Recipients map[directory.Identity]struct{}

	Payload Payload

	// Anonymous marks the no-role feedback path: recipients must not learn
	// the sender, and a separate disclosure goes to the privileged identity.
	Anonymous bool

	CreatedAt time.Time
}

// NewToken returns a fresh confirmation token (format: act-<uuid>).
func NewToken() string {
	return fmt.Sprintf("act-%s", uuid.New().String())
}

// PendingStore correlates confirmation tokens to pending actions. All
// methods are safe for concurrent use. Tokens are single-use: Take removes
// the action atomically, so a second confirm or cancel on the same token
// gets ErrStaleToken.
type PendingStore struct {
	mu      sync.Mutex
	actions map[string]*PendingAction
}

// NewPendingStore creates an empty store.
func NewPendingStore() *PendingStore {
	return &PendingStore{actions: make(map[string]*PendingAction)}
}

// Put registers a pending action under its token.
func (s *PendingStore) Put(a *PendingAction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions[a.Token] = a
}

// Take removes and returns the action for token. Missing tokens, including
// tokens already resolved, yield ErrStaleToken.
func (s *PendingStore) Take(token string) (*PendingAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.actions[token]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrStaleToken, token)
	}
	delete(s.actions, token)
	return a, nil
}

// Delete discards the action for token if it is still pending. Deleting a
// resolved or unknown token is a no-op; cancellation is idempotent.
func (s *PendingStore) Delete(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.actions, token)
}

// Len returns the number of unresolved actions.
func (s *PendingStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.actions)
}
