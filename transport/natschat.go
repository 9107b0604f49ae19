package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/c360studio/teamrelay/directory"
)

// outboundMessage is the wire shape of one outbound delivery.
type outboundMessage struct {
	To        directory.Identity `json:"to"`
	Text      string             `json:"text,omitempty"`
	DocRef    string             `json:"doc_ref,omitempty"`
	Caption   string             `json:"caption,omitempty"`
	SourceRef string             `json:"source_ref,omitempty"`
	MessageID string             `json:"message_id,omitempty"`
	Options   []Choice           `json:"options,omitempty"`
}

// ack is the bridge's reply to a delivery request.
type ack struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// NATSChat implements Chat and Inbound over a NATS connection. Each
// delivery is a request to the bridge's per-identity subject; the bridge
// replies with an ack so failures surface per call.
type NATSChat struct {
	conn   *nats.Conn
	logger *slog.Logger
}

// NewNATSChat wraps an established NATS connection.
func NewNATSChat(conn *nats.Conn, logger *slog.Logger) *NATSChat {
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSChat{conn: conn, logger: logger}
}

// SendText delivers a plain text message.
func (c *NATSChat) SendText(ctx context.Context, to directory.Identity, text string) error {
	return c.request(ctx, outboundSubject(to, kindText), outboundMessage{To: to, Text: text})
}

// SendDocument delivers a document by reference.
func (c *NATSChat) SendDocument(ctx context.Context, to directory.Identity, docRef, caption string) error {
	return c.request(ctx, outboundSubject(to, kindDocument), outboundMessage{To: to, DocRef: docRef, Caption: caption})
}

// ForwardAsIs forwards the original message unchanged.
func (c *NATSChat) ForwardAsIs(ctx context.Context, to directory.Identity, sourceRef string) error {
	return c.request(ctx, outboundSubject(to, kindForward), outboundMessage{To: to, SourceRef: sourceRef})
}

// PresentChoice shows a prompt with options. The message ID is generated
// here so the prompt can be edited later without waiting for the bridge.
func (c *NATSChat) PresentChoice(ctx context.Context, to directory.Identity, prompt string, options []Choice) (PromptRef, error) {
	ref := PromptRef{To: to, MessageID: uuid.New().String()}
	msg := outboundMessage{To: to, Text: prompt, MessageID: ref.MessageID, Options: options}
	if err := c.request(ctx, outboundSubject(to, kindPrompt), msg); err != nil {
		return PromptRef{}, err
	}
	return ref, nil
}

// EditPrompt replaces an earlier prompt's text and options.
func (c *NATSChat) EditPrompt(ctx context.Context, ref PromptRef, text string, options []Choice) error {
	msg := outboundMessage{To: ref.To, Text: text, MessageID: ref.MessageID, Options: options}
	return c.request(ctx, outboundSubject(ref.To, kindEdit), msg)
}

func (c *NATSChat) request(ctx context.Context, subject string, msg outboundMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal outbound message: %w", err)
	}

	reply, err := c.conn.RequestWithContext(ctx, subject, data)
	if err != nil {
		return fmt.Errorf("deliver to %s: %w", subject, err)
	}

	var a ack
	if err := json.Unmarshal(reply.Data, &a); err != nil {
		return fmt.Errorf("parse delivery ack: %w", err)
	}
	if !a.OK {
		return fmt.Errorf("bridge rejected delivery: %s", a.Error)
	}
	return nil
}

// Subscribe consumes inbound events until ctx is cancelled. Malformed
// events are logged and dropped rather than stopping the stream.
func (c *NATSChat) Subscribe(ctx context.Context, handler func(Event)) error {
	sub, err := c.conn.Subscribe(SubjectInbound, func(m *nats.Msg) {
		var event Event
		if err := json.Unmarshal(m.Data, &event); err != nil {
			c.logger.Warn("dropping malformed inbound event",
				slog.String("subject", m.Subject),
				slog.String("error", err.Error()))
			return
		}
		handler(event)
	})
	if err != nil {
		return fmt.Errorf("subscribe inbound: %w", err)
	}
	defer sub.Unsubscribe()

	<-ctx.Done()
	return ctx.Err()
}
