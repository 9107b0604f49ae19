// Package relay wires the routing core together: it consumes inbound chat
// events, classifies them, walks each sender's confirmation flow, and
// hands confirmed actions to the dispatcher.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/c360studio/teamrelay/commands"
	"github.com/c360studio/teamrelay/directory"
	"github.com/c360studio/teamrelay/dispatch"
	"github.com/c360studio/teamrelay/metrics"
	"github.com/c360studio/teamrelay/policy"
	"github.com/c360studio/teamrelay/routing"
	"github.com/c360studio/teamrelay/session"
	"github.com/c360studio/teamrelay/storage"
	"github.com/c360studio/teamrelay/transport"
)

// Callback data prefixes. A prompt option's Data field carries one of
// these followed by its argument.
const (
	callbackConfirm = "confirm:"
	callbackCancel  = "cancel:"
	callbackRole    = "role:"
)

// Options configure relay behavior.
type Options struct {
	// AdminID is the privileged identity: -id sender, anonymous-feedback
	// disclosure target, and always an administrator.
	AdminID directory.Identity

	// Coordinators are the roles allowed to use specific-team triggers.
	Coordinators []directory.Role

	// AllowSelfSend permits -@handle and -id targets that resolve to the
	// sender.
	AllowSelfSend bool
}

// Relay is the core event processor. Events are handled one at a time in
// arrival order, which trivially preserves the per-sender ordering the
// flow requires; only the fan-out inside a dispatch runs concurrently.
type Relay struct {
	dir        *directory.Directory
	pol        *policy.Policy
	classifier *routing.Classifier
	sessions   *session.Manager
	pending    *session.PendingStore
	dispatcher *dispatch.Dispatcher
	chat       transport.Chat
	handles    storage.HandleDirectory
	registry   *commands.Registry
	opts       Options
	logger     *slog.Logger
}

// New creates a relay.
func New(
	dir *directory.Directory,
	pol *policy.Policy,
	handles storage.HandleDirectory,
	mutes storage.MuteList,
	chat transport.Chat,
	registry *commands.Registry,
	opts Options,
	logger *slog.Logger,
) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	if len(opts.Coordinators) == 0 {
		opts.Coordinators = []directory.Role{directory.RoleGroupAdmin, directory.RoleGroupAssistant}
	}
	return &Relay{
		dir:        dir,
		pol:        pol,
		classifier: routing.NewClassifier(pol, handles, mutes, opts.Coordinators, opts.AdminID),
		sessions:   session.NewManager(),
		pending:    session.NewPendingStore(),
		dispatcher: dispatch.NewDispatcher(chat, opts.AdminID, logger),
		chat:       chat,
		handles:    handles,
		registry:   registry,
		opts:       opts,
		logger:     logger,
	}
}

// Run consumes inbound events until ctx is cancelled.
func (r *Relay) Run(ctx context.Context, inbound transport.Inbound) error {
	return inbound.Subscribe(ctx, func(event transport.Event) {
		r.HandleEvent(ctx, event)
	})
}

// HandleEvent processes one inbound event end to end. Every path answers
// the sender; no error is swallowed silently.
func (r *Relay) HandleEvent(ctx context.Context, event transport.Event) {
	if event.Handle != "" {
		if err := r.handles.Record(ctx, event.Handle, event.Sender); err != nil {
			r.logger.Warn("handle record failed",
				slog.String("handle", event.Handle),
				slog.String("error", err.Error()))
		}
	}

	switch event.Kind {
	case transport.EventCallback:
		r.handleCallback(ctx, event)
	case transport.EventMessage:
		r.handleMessage(ctx, event)
	default:
		r.logger.Warn("dropping event of unknown kind", slog.String("kind", string(event.Kind)))
	}
}

func (r *Relay) handleMessage(ctx context.Context, event transport.Event) {
	text := strings.TrimSpace(event.Text)

	if text == "/cancel" {
		r.cancelSession(ctx, event.Sender)
		return
	}
	if reply, handled := r.registry.Dispatch(ctx, event.Sender, text); handled {
		r.reply(ctx, event.Sender, reply)
		return
	}

	// A sender mid-flow: the message belongs to the open session, not the
	// classifier.
	if s, ok := r.sessions.Get(event.Sender); ok && !s.State.Terminal() {
		r.continueSession(ctx, s, event)
		return
	}

	r.startFlow(ctx, event)
}

func (r *Relay) startFlow(ctx context.Context, event transport.Event) {
	msg := routing.Message{
		Sender:      event.Sender,
		Text:        event.Text,
		HasDocument: event.DocRef != "",
	}

	intent, err := r.classifier.Classify(ctx, msg, r.dir.RolesOf(event.Sender))
	if err != nil {
		r.rejectFlow(ctx, event.Sender, err)
		return
	}
	metrics.IntentsClassified.WithLabelValues(string(intent.Kind)).Inc()

	s, err := r.sessions.Begin(event.Sender, intent)
	if err != nil {
		// A pending confirmation is never overwritten.
		r.reply(ctx, event.Sender, "You already have a message awaiting confirmation. Confirm or cancel it first.")
		return
	}

	if intent.Kind == routing.IntentNeedsRoleChoice {
		if err := s.Apply(session.EventRoleRequired); err != nil {
			r.failFlow(ctx, s, err)
			return
		}
		r.presentRoleChoice(ctx, s)
		return
	}

	if err := s.Apply(session.EventRoleResolved); err != nil {
		r.failFlow(ctx, s, err)
		return
	}

	if intent.Body != "" || event.DocRef != "" {
		r.captureMessage(ctx, s, payloadFromEvent(event, intent.Body))
		return
	}
	r.reply(ctx, event.Sender, "Send the message you want delivered, or /cancel.")
}

func (r *Relay) continueSession(ctx context.Context, s *session.Session, event transport.Event) {
	switch s.State {
	case session.StateAwaitingRoleChoice:
		r.reply(ctx, event.Sender, "Pick a role from the prompt first, or /cancel.")

	case session.StateCollectingMessage:
		if strings.TrimSpace(event.Text) == "" && event.DocRef == "" {
			r.reply(ctx, event.Sender, "Nothing to deliver. Send text or a document, or /cancel.")
			return
		}
		r.captureMessage(ctx, s, payloadFromEvent(event, strings.TrimSpace(event.Text)))

	case session.StateAwaitingConfirmation:
		r.reply(ctx, event.Sender, "You already have a message awaiting confirmation. Confirm or cancel it first.")

	default:
		r.sessions.End(event.Sender)
		r.startFlow(ctx, event)
	}
}

// captureMessage resolves recipients, creates the pending action, and
// shows the confirmation prompt. This is the one place a PendingAction is
// born; every failure before the prompt ends the flow with no state left
// behind.
func (r *Relay) captureMessage(ctx context.Context, s *session.Session, payload session.Payload) {
	recipients, err := r.resolveRecipients(s)
	if err != nil {
		r.failFlow(ctx, s, err)
		return
	}

	if err := s.Apply(session.EventMessageReceived); err != nil {
		r.failFlow(ctx, s, err)
		return
	}

	action := &session.PendingAction{
		Token:          session.NewToken(),
		Sender:         s.Sender,
		Kind:           s.Intent.Kind,
		SenderRole:     s.Intent.SenderRole,
		RecipientRoles: s.Intent.TargetRoles,
		TargetUser:     s.Intent.TargetUser,
		Recipients:     recipients,
		Payload:        payload,
		Anonymous:      s.Intent.Kind == routing.IntentNoRole,
		CreatedAt:      s.CreatedAt,
	}
	r.pending.Put(action)
	s.Token = action.Token

	prompt := r.confirmationPrompt(action)
	options := []transport.Choice{
		{Label: "Confirm", Data: callbackConfirm + action.Token},
		{Label: "Cancel", Data: callbackCancel + action.Token},
	}
	if _, err := r.chat.PresentChoice(ctx, s.Sender, prompt, options); err != nil {
		// The prompt never reached the sender, so the action can never be
		// confirmed. Clean up instead of leaking the token.
		r.pending.Delete(action.Token)
		r.sessions.End(s.Sender)
		r.logger.Error("confirmation prompt failed",
			slog.Int64("sender", int64(s.Sender)),
			slog.String("error", err.Error()))
	}
}

func (r *Relay) resolveRecipients(s *session.Session) (map[directory.Identity]struct{}, error) {
	switch s.Intent.Kind {
	case routing.IntentNoRole:
		return routing.ResolveAll(s.Sender, r.dir)
	case routing.IntentSpecificUser, routing.IntentDirectUserID:
		return routing.ResolveUser(s.Sender, s.Intent.TargetUser, r.opts.AllowSelfSend)
	default:
		return routing.Resolve(s.Sender, s.Intent.TargetRoles, r.dir)
	}
}

func (r *Relay) presentRoleChoice(ctx context.Context, s *session.Session) {
	options := make([]transport.Choice, len(s.Intent.Candidates))
	for i, role := range s.Intent.Candidates {
		options[i] = transport.Choice{Label: string(role), Data: callbackRole + string(role)}
	}
	if _, err := r.chat.PresentChoice(ctx, s.Sender, "You hold several roles. Which one are you sending as?", options); err != nil {
		r.sessions.End(s.Sender)
		r.logger.Error("role choice prompt failed",
			slog.Int64("sender", int64(s.Sender)),
			slog.String("error", err.Error()))
	}
}

func payloadFromEvent(event transport.Event, body string) session.Payload {
	return session.Payload{
		Text:      body,
		DocRef:    event.DocRef,
		Caption:   event.Caption,
		SourceRef: event.SourceRef,
	}
}

func (r *Relay) confirmationPrompt(action *session.PendingAction) string {
	target := describeTarget(action)
	kind := "message"
	if action.Payload.DocRef != "" {
		kind = "document"
	}
	if action.Anonymous {
		return fmt.Sprintf("Send your %s as anonymous feedback to %s (%d recipients)?",
			kind, target, len(action.Recipients))
	}
	return fmt.Sprintf("Send your %s to %s (%d recipients)?", kind, target, len(action.Recipients))
}

func describeTarget(action *session.PendingAction) string {
	if len(action.RecipientRoles) == 0 {
		return fmt.Sprintf("user %d", action.TargetUser)
	}
	names := make([]string, len(action.RecipientRoles))
	for i, role := range action.RecipientRoles {
		names[i] = string(role)
	}
	return strings.Join(names, ", ")
}

// rejectFlow ends a flow that never got a session: classification errors.
func (r *Relay) rejectFlow(ctx context.Context, sender directory.Identity, err error) {
	metrics.RejectedFlows.WithLabelValues(errorClass(err)).Inc()
	r.reply(ctx, sender, userMessage(err))
}

// failFlow ends an open session with a user-visible explanation.
func (r *Relay) failFlow(ctx context.Context, s *session.Session, err error) {
	metrics.RejectedFlows.WithLabelValues(errorClass(err)).Inc()
	if s.Token != "" {
		r.pending.Delete(s.Token)
	}
	r.sessions.End(s.Sender)
	r.reply(ctx, s.Sender, userMessage(err))
}

func (r *Relay) reply(ctx context.Context, to directory.Identity, text string) {
	if text == "" {
		return
	}
	if err := r.chat.SendText(ctx, to, text); err != nil {
		r.logger.Warn("reply failed",
			slog.Int64("to", int64(to)),
			slog.String("error", err.Error()))
	}
}

// errorClass maps a routing error to its metric label.
func errorClass(err error) string {
	switch {
	case errors.Is(err, routing.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, routing.ErrUnknownHandle):
		return "unknown_handle"
	case errors.Is(err, routing.ErrNoRecipients):
		return "no_recipients"
	case errors.Is(err, routing.ErrInvalidTrigger):
		return "invalid_trigger"
	case errors.Is(err, routing.ErrDirectoryUnavailable):
		return "directory_unavailable"
	default:
		return "internal"
	}
}

// userMessage renders a routing error as the reply the sender sees.
func userMessage(err error) string {
	switch {
	case errors.Is(err, routing.ErrUnauthorized):
		return "You are not allowed to send that."
	case errors.Is(err, routing.ErrUnknownHandle):
		return "I don't know that handle. The user must message the relay once, or an admin can /register them."
	case errors.Is(err, routing.ErrNoRecipients):
		return "Nobody would receive that message, so nothing was sent."
	case errors.Is(err, routing.ErrInvalidTrigger):
		return "I didn't understand that trigger. Plain messages use your role's default route."
	case errors.Is(err, routing.ErrDirectoryUnavailable):
		return "A backing store is unavailable right now. Try again shortly."
	default:
		return "Something went wrong handling that message."
	}
}
