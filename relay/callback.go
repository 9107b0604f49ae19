package relay

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/c360studio/teamrelay/directory"
	"github.com/c360studio/teamrelay/metrics"
	"github.com/c360studio/teamrelay/routing"
	"github.com/c360studio/teamrelay/session"
	"github.com/c360studio/teamrelay/transport"
)

func (r *Relay) handleCallback(ctx context.Context, event transport.Event) {
	switch {
	case strings.HasPrefix(event.Data, callbackConfirm):
		r.confirm(ctx, event, strings.TrimPrefix(event.Data, callbackConfirm))

	case strings.HasPrefix(event.Data, callbackCancel):
		r.cancelToken(ctx, event, strings.TrimPrefix(event.Data, callbackCancel))

	case strings.HasPrefix(event.Data, callbackRole):
		r.chooseRole(ctx, event, strings.TrimPrefix(event.Data, callbackRole))

	default:
		r.logger.Warn("dropping callback with unknown data",
			slog.String("data", event.Data))
	}
}

// confirm finishes a flow: the token is consumed exactly once, the
// dispatcher fans the payload out, and the sender gets the delivery
// summary. A token already consumed (double tap, stale prompt) gets the
// "no longer valid" answer.
func (r *Relay) confirm(ctx context.Context, event transport.Event, token string) {
	action, err := r.pending.Take(token)
	if err != nil {
		metrics.StaleTokens.Inc()
		r.answerPrompt(ctx, event, "This confirmation is no longer valid.")
		return
	}
	// Only the owner may resolve a token. Events are handled serially, so
	// putting the action back cannot race the owner's own tap.
	if event.Sender != action.Sender {
		r.pending.Put(action)
		r.answerPrompt(ctx, event, "This confirmation is no longer valid.")
		return
	}

	if s, ok := r.sessions.Get(action.Sender); ok && s.Token == token {
		if err := s.Apply(session.EventConfirm); err != nil {
			r.logger.Warn("confirm transition rejected",
				slog.String("token", token),
				slog.String("error", err.Error()))
		}
		r.sessions.End(action.Sender)
	}

	report := r.dispatcher.Dispatch(ctx, action)
	metrics.FlowsResolved.WithLabelValues("dispatched").Inc()

	r.answerPrompt(ctx, event, report.Summary())
	r.logger.Info("dispatched",
		slog.String("token", token),
		slog.Int64("sender", int64(action.Sender)),
		slog.Int("succeeded", len(report.Succeeded)),
		slog.Int("failed", len(report.Failed)))
}

// cancelToken discards a pending action. Cancelling twice, or cancelling
// a token that was already dispatched, reports "nothing to cancel" and
// nothing else.
func (r *Relay) cancelToken(ctx context.Context, event transport.Event, token string) {
	action, err := r.pending.Take(token)
	if err != nil {
		metrics.StaleTokens.Inc()
		r.answerPrompt(ctx, event, "Nothing to cancel.")
		return
	}
	if event.Sender != action.Sender {
		r.pending.Put(action)
		r.answerPrompt(ctx, event, "Nothing to cancel.")
		return
	}

	if s, ok := r.sessions.Get(action.Sender); ok && s.Token == token {
		if err := s.Apply(session.EventCancel); err != nil {
			r.logger.Warn("cancel transition rejected",
				slog.String("token", token),
				slog.String("error", err.Error()))
		}
		r.sessions.End(action.Sender)
	}

	metrics.FlowsResolved.WithLabelValues("cancelled").Inc()
	r.answerPrompt(ctx, event, "Cancelled. Nothing was sent.")
}

// chooseRole completes a deferred classification: the sender picked the
// role to act under, so the intent in After can now be finished.
func (r *Relay) chooseRole(ctx context.Context, event transport.Event, roleName string) {
	s, ok := r.sessions.Get(event.Sender)
	if !ok || s.State != session.StateAwaitingRoleChoice {
		r.answerPrompt(ctx, event, "This choice is no longer valid.")
		return
	}

	role, err := directory.ParseRole(roleName)
	if err != nil || !containsRole(s.Intent.Candidates, role) {
		r.answerPrompt(ctx, event, "That role is not one of the choices.")
		return
	}

	intent, err := r.completeIntent(s.Intent, role)
	if err != nil {
		r.failFlow(ctx, s, err)
		return
	}
	s.Intent = intent

	if err := s.Apply(session.EventRoleChosen); err != nil {
		r.failFlow(ctx, s, err)
		return
	}

	if s.Intent.Body != "" {
		r.answerPrompt(ctx, event, fmt.Sprintf("Sending as %s.", role))
		r.captureMessage(ctx, s, session.Payload{Text: s.Intent.Body})
		return
	}
	r.answerPrompt(ctx, event, fmt.Sprintf("Sending as %s. Now send the message to deliver, or /cancel.", role))
}

// completeIntent turns a NeedsRoleChoice intent into the concrete intent
// it deferred, now that the acting role is known.
func (r *Relay) completeIntent(deferred routing.Intent, role directory.Role) (routing.Intent, error) {
	switch deferred.After {
	case routing.IntentDefaultRoute:
		targets, ok := r.pol.DefaultTargets(role)
		if !ok {
			return routing.Intent{}, fmt.Errorf("%w: role %q has no outgoing route", routing.ErrUnauthorized, role)
		}
		return routing.Intent{
			Kind:        routing.IntentDefaultRoute,
			SenderRole:  role,
			TargetRoles: targets,
			Body:        deferred.Body,
		}, nil

	case routing.IntentTeamBroadcast:
		return routing.Intent{
			Kind:        routing.IntentTeamBroadcast,
			SenderRole:  role,
			TargetRoles: routing.TeamBroadcastTargets(role),
			Body:        deferred.Body,
		}, nil
	}
	return routing.Intent{}, fmt.Errorf("%w: cannot complete %s", routing.ErrInvalidTrigger, deferred.After)
}

// cancelSession handles the explicit /cancel command: it ends whatever
// flow the sender has open, in any state. Cancelling with no open flow is
// a no-op with a friendly answer.
func (r *Relay) cancelSession(ctx context.Context, sender directory.Identity) {
	s, ok := r.sessions.Get(sender)
	if !ok {
		r.reply(ctx, sender, "Nothing to cancel.")
		return
	}

	if s.Token != "" {
		r.pending.Delete(s.Token)
	}
	if err := s.Apply(session.EventCancel); err == nil {
		metrics.FlowsResolved.WithLabelValues("cancelled").Inc()
	}
	r.sessions.End(sender)
	r.reply(ctx, sender, "Cancelled. Nothing was sent.")
}

// answerPrompt edits the originating prompt when the event carries its
// reference, and falls back to a plain reply otherwise.
func (r *Relay) answerPrompt(ctx context.Context, event transport.Event, text string) {
	if event.Prompt.MessageID != "" {
		if err := r.chat.EditPrompt(ctx, event.Prompt, text, nil); err == nil {
			return
		}
	}
	r.reply(ctx, event.Sender, text)
}

func containsRole(roles []directory.Role, role directory.Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
