// Package transport defines the chat transport contract the relay core
// speaks, and provides the NATS implementation. The core never depends on
// a concrete chat product: everything it needs is a handful of
// fire-and-report delivery calls plus a stream of inbound events.
package transport

import (
	"context"

	"github.com/c360studio/teamrelay/directory"
)

// Choice is one selectable option in a prompt. Data is an opaque value
// (confirmation token, role name) echoed back in the callback event.
type Choice struct {
	Label string `json:"label"`
	Data  string `json:"data"`
}

// PromptRef identifies a previously presented prompt so it can be edited
// in place.
type PromptRef struct {
	To        directory.Identity `json:"to"`
	MessageID string             `json:"message_id"`
}

// Chat is the delivery surface the core calls. Every call reports success
// or failure for that one call and never panics into the core's control
// flow. Implementations must be safe for concurrent use: the fan-out
// dispatcher calls them from multiple goroutines.
type Chat interface {
	// SendText delivers a plain text message.
	SendText(ctx context.Context, to directory.Identity, text string) error

	// SendDocument delivers a document by reference with a caption.
	SendDocument(ctx context.Context, to directory.Identity, docRef, caption string) error

	// ForwardAsIs forwards the original message unchanged.
	ForwardAsIs(ctx context.Context, to directory.Identity, sourceRef string) error

	// PresentChoice shows a prompt with selectable options. The selection
	// arrives later as a callback Event carrying the chosen Data.
	PresentChoice(ctx context.Context, to directory.Identity, prompt string, options []Choice) (PromptRef, error)

	// EditPrompt replaces the text and options of an earlier prompt.
	EditPrompt(ctx context.Context, ref PromptRef, text string, options []Choice) error
}

// EventKind discriminates inbound events.
type EventKind string

// Inbound event kinds.
const (
	// EventMessage is a chat message (text and/or document).
	EventMessage EventKind = "message"

	// EventCallback is a selection made on a presented prompt.
	EventCallback EventKind = "callback"
)

// Event is one inbound chat event handed to the relay.
type Event struct {
	Kind   EventKind          `json:"kind"`
	Sender directory.Identity `json:"sender"`

	// Handle is the sender's chat handle, when the transport knows it.
	// The relay records it in the handle directory.
	Handle string `json:"handle,omitempty"`

	// Message fields.
	Text      string `json:"text,omitempty"`
	DocRef    string `json:"doc_ref,omitempty"`
	Caption   string `json:"caption,omitempty"`
	SourceRef string `json:"source_ref,omitempty"`

	// Callback fields.
	Data   string    `json:"data,omitempty"`
	Prompt PromptRef `json:"prompt,omitempty"`
}

// Inbound is the event source side of the transport.
type Inbound interface {
	// Subscribe registers the handler for inbound events and blocks until
	// ctx is cancelled. Events for one sender are delivered in order.
	Subscribe(ctx context.Context, handler func(Event)) error
}
