// Package dispatch performs the fan-out: delivering one confirmed payload
// to every resolved recipient with isolated per-recipient failure
// handling and an aggregated report.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/c360studio/teamrelay/directory"
	"github.com/c360studio/teamrelay/metrics"
	"github.com/c360studio/teamrelay/session"
	"github.com/c360studio/teamrelay/transport"
)

// defaultConcurrency bounds parallel deliveries per dispatch.
const defaultConcurrency = 8

// Report is the aggregate outcome of one fan-out. Every recipient appears
// in exactly one of the two sets.
type Report struct {
	Succeeded map[directory.Identity]struct{}
	Failed    map[directory.Identity]string
}

// Summary renders the user-facing delivery summary.
func (r Report) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Sent to %d recipient(s).", len(r.Succeeded))
	if len(r.Failed) > 0 {
		ids := make([]directory.Identity, 0, len(r.Failed))
		for id := range r.Failed {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

		parts := make([]string, 0, len(ids))
		for _, id := range ids {
			parts = append(parts, fmt.Sprintf("%d", id))
		}
		fmt.Fprintf(&b, " Failed for: %s.", strings.Join(parts, ", "))
	}
	return b.String()
}

// Dispatcher delivers confirmed pending actions. Safe for concurrent use
// by many sessions; each Dispatch call is independent.
type Dispatcher struct {
	chat        transport.Chat
	adminID     directory.Identity
	concurrency int
	logger      *slog.Logger
}

// NewDispatcher creates a dispatcher. adminID is the privileged identity
// that receives the anonymous-feedback disclosure.
func NewDispatcher(chat transport.Chat, adminID directory.Identity, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		chat:        chat,
		adminID:     adminID,
		concurrency: defaultConcurrency,
		logger:      logger,
	}
}

// Dispatch delivers the action's payload to every recipient. One
// recipient's failure never aborts the others; the report reflects every
// attempt before Dispatch returns. For anonymous feedback it additionally
// sends the identity disclosure to the privileged identity, decoupled
// from the fan-out: its failure is logged and never affects the report.
func (d *Dispatcher) Dispatch(ctx context.Context, action *session.PendingAction) Report {
	report := Report{
		Succeeded: make(map[directory.Identity]struct{}, len(action.Recipients)),
		Failed:    make(map[directory.Identity]string),
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)

	for id := range action.Recipients {
		id := id
		g.Go(func() error {
			err := d.deliver(gctx, id, action)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed[id] = err.Error()
				metrics.Deliveries.WithLabelValues("failed").Inc()
				d.logger.Warn("delivery failed",
					slog.Int64("recipient", int64(id)),
					slog.String("token", action.Token),
					slog.String("error", err.Error()))
			} else {
				report.Succeeded[id] = struct{}{}
				metrics.Deliveries.WithLabelValues("succeeded").Inc()
			}
			return nil
		})
	}
	_ = g.Wait()

	if action.Anonymous {
		d.disclose(ctx, action)
	}

	return report
}

// deliver sends the payload to a single recipient. Document payloads go as
// documents; anonymous text is re-sent rather than forwarded so the
// original sender stays hidden; everything else with a source reference is
// forwarded as-is.
func (d *Dispatcher) deliver(ctx context.Context, to directory.Identity, action *session.PendingAction) error {
	p := action.Payload

	switch {
	case p.DocRef != "":
		return d.chat.SendDocument(ctx, to, p.DocRef, p.Caption)
	case action.Anonymous:
		return d.chat.SendText(ctx, to, "Anonymous feedback:\n"+p.Text)
	case p.SourceRef != "":
		return d.chat.ForwardAsIs(ctx, to, p.SourceRef)
	default:
		return d.chat.SendText(ctx, to, p.Text)
	}
}

func (d *Dispatcher) disclose(ctx context.Context, action *session.PendingAction) {
	if d.adminID == 0 || d.adminID == action.Sender {
		return
	}
	text := fmt.Sprintf("Anonymous feedback %s was sent by %d.", action.Token, action.Sender)
	if err := d.chat.SendText(ctx, d.adminID, text); err != nil {
		d.logger.Warn("identity disclosure failed",
			slog.String("token", action.Token),
			slog.String("error", err.Error()))
	}
}
