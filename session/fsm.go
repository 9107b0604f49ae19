// Package session holds per-sender conversation state: the confirmation
// state machine and the token-addressed pending action store. Sessions are
// keyed strictly per sender and never shared across senders.
package session

import "fmt"

// State is a position in the confirmation state machine.
type State string

// Confirmation states. Dispatched and Cancelled are terminal: once a flow
// reaches either, no further transitions are accepted.
const (
	StateClassified           State = "classified"
	StateAwaitingRoleChoice   State = "awaiting-role-choice"
	StateCollectingMessage    State = "collecting-message"
	StateAwaitingConfirmation State = "awaiting-confirmation"
	StateDispatched           State = "dispatched"
	StateCancelled            State = "cancelled"
)

// Terminal reports whether s accepts no further transitions.
func (s State) Terminal() bool {
	return s == StateDispatched || s == StateCancelled
}

// Event drives the state machine.
type Event string

// Events. EventCancel is accepted from every non-terminal state.
const (
	EventRoleRequired    Event = "role-required"
	EventRoleResolved    Event = "role-resolved"
	EventRoleChosen      Event = "role-chosen"
	EventMessageReceived Event = "message-received"
	EventConfirm         Event = "confirm"
	EventCancel          Event = "cancel"
)

// Next is the single transition function. It returns the state the flow
// moves to, or an error when the event is not legal in the current state.
func Next(s State, e Event) (State, error) {
	if s.Terminal() {
		return s, fmt.Errorf("%w: %s", ErrTerminalState, s)
	}
	if e == EventCancel {
		return StateCancelled, nil
	}

	switch s {
	case StateClassified:
		switch e {
		case EventRoleRequired:
			return StateAwaitingRoleChoice, nil
		case EventRoleResolved:
			return StateCollectingMessage, nil
		}
	case StateAwaitingRoleChoice:
		if e == EventRoleChosen {
			return StateCollectingMessage, nil
		}
	case StateCollectingMessage:
		if e == EventMessageReceived {
			return StateAwaitingConfirmation, nil
		}
	case StateAwaitingConfirmation:
		if e == EventConfirm {
			return StateDispatched, nil
		}
	}
	return s, fmt.Errorf("%w: %s in %s", ErrInvalidTransition, e, s)
}
