package routing

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/c360studio/teamrelay/directory"
	"github.com/c360studio/teamrelay/policy"
)

// HandleResolver looks up identities by chat handle. Handles are
// lowercase-normalized by the store.
type HandleResolver interface {
	Resolve(ctx context.Context, handle string) (directory.Identity, bool, error)
}

// MuteList answers whether a sender is muted.
type MuteList interface {
	IsMuted(ctx context.Context, id directory.Identity) (bool, error)
}

// Message is the classifier's view of one inbound chat message.
type Message struct {
	Sender      directory.Identity
	Text        string
	HasDocument bool
}

// Classifier turns inbound messages into routing intents. It holds no
// per-message state; all lookups go to the injected collaborators.
type Classifier struct {
	policy       *policy.Policy
	handles      HandleResolver
	mutes        MuteList
	coordinators []directory.Role
	adminID      directory.Identity
}

// NewClassifier creates a classifier. coordinators are the roles allowed
// to use specific-team triggers; adminID is the single identity allowed
// to use the -id trigger.
func NewClassifier(p *policy.Policy, handles HandleResolver, mutes MuteList, coordinators []directory.Role, adminID directory.Identity) *Classifier {
	return &Classifier{
		policy:       p,
		handles:      handles,
		mutes:        mutes,
		coordinators: coordinators,
		adminID:      adminID,
	}
}

// Classify inspects one message against the trigger patterns and yields a
// routing intent. senderRoles must be the sender's current role set from
// the role directory. Errors are terminal for the flow: Unauthorized,
// UnknownHandle, InvalidTrigger, or DirectoryUnavailable.
func (c *Classifier) Classify(ctx context.Context, msg Message, senderRoles []directory.Role) (Intent, error) {
	muted, err := c.mutes.IsMuted(ctx, msg.Sender)
	if err != nil {
		return Intent{}, fmt.Errorf("%w: mute lookup: %v", ErrDirectoryUnavailable, err)
	}
	if muted {
		return Intent{}, fmt.Errorf("%w: sender is muted", ErrUnauthorized)
	}

	head, body := splitTrigger(msg.Text)

	// The -id trigger bypasses role checks entirely, but only for the
	// administrative identity.
	if head == "-id" {
		if msg.Sender != c.adminID {
			return Intent{}, fmt.Errorf("%w: -id is restricted", ErrUnauthorized)
		}
		return c.classifyDirectID(body)
	}

	// A sender with no role gets the anonymous-feedback route no matter
	// what the message says.
	if len(senderRoles) == 0 {
		return Intent{
			Kind:        IntentNoRole,
			TargetRoles: directory.KnownRoles(),
			Body:        msg.Text,
		}, nil
	}

	switch {
	case head == "":
		return c.classifyDefault(senderRoles, msg.Text)

	case head == "-team":
		return c.classifyTeamBroadcast(senderRoles, body)

	case head == "-t":
		return Intent{
			Kind:        IntentDirectToTara,
			SenderRole:  senderRoles[0],
			TargetRoles: []directory.Role{directory.RoleTara},
			Body:        body,
		}, nil

	case strings.HasPrefix(head, "-@"):
		return c.classifySpecificUser(ctx, msg.Sender, head, body)

	case strings.HasPrefix(head, "-"):
		return c.classifySpecificTeam(senderRoles, head, body)
	}

	return c.classifyDefault(senderRoles, msg.Text)
}

// splitTrigger separates a leading trigger token from the message body.
// Text without a leading dash has no trigger; the whole text is the body.
func splitTrigger(text string) (head, body string) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "-") {
		return "", trimmed
	}
	head, body, _ = strings.Cut(trimmed, " ")
	return head, strings.TrimSpace(body)
}

func (c *Classifier) classifyDefault(senderRoles []directory.Role, body string) (Intent, error) {
	if len(senderRoles) > 1 {
		return Intent{
			Kind:       IntentNeedsRoleChoice,
			Candidates: senderRoles,
			After:      IntentDefaultRoute,
			Body:       body,
		}, nil
	}

	role := senderRoles[0]
	targets, ok := c.policy.DefaultTargets(role)
	if !ok {
		return Intent{}, fmt.Errorf("%w: role %q has no outgoing route", ErrUnauthorized, role)
	}
	return Intent{
		Kind:        IntentDefaultRoute,
		SenderRole:  role,
		TargetRoles: targets,
		Body:        body,
	}, nil
}

func (c *Classifier) classifyTeamBroadcast(senderRoles []directory.Role, body string) (Intent, error) {
	if len(senderRoles) > 1 {
		return Intent{
			Kind:       IntentNeedsRoleChoice,
			Candidates: senderRoles,
			After:      IntentTeamBroadcast,
			Body:       body,
		}, nil
	}
	return Intent{
		Kind:        IntentTeamBroadcast,
		SenderRole:  senderRoles[0],
		TargetRoles: TeamBroadcastTargets(senderRoles[0]),
		Body:        body,
	}, nil
}

// TeamBroadcastTargets returns the role set a -team trigger addresses for
// a sender acting under role: the role itself plus tara.
func TeamBroadcastTargets(role directory.Role) []directory.Role {
	if role == directory.RoleTara {
		return []directory.Role{directory.RoleTara}
	}
	return []directory.Role{role, directory.RoleTara}
}

func (c *Classifier) classifySpecificUser(ctx context.Context, sender directory.Identity, head, body string) (Intent, error) {
	handle := strings.TrimPrefix(head, "-@")
	if handle == "" {
		return Intent{}, fmt.Errorf("%w: -@ needs a handle", ErrInvalidTrigger)
	}

	target, ok, err := c.handles.Resolve(ctx, handle)
	if err != nil {
		return Intent{}, fmt.Errorf("%w: handle lookup: %v", ErrDirectoryUnavailable, err)
	}
	if !ok {
		return Intent{}, fmt.Errorf("%w: %q", ErrUnknownHandle, handle)
	}
	return Intent{
		Kind:       IntentSpecificUser,
		TargetUser: target,
		Body:       body,
	}, nil
}

func (c *Classifier) classifySpecificTeam(senderRoles []directory.Role, head, body string) (Intent, error) {
	keyword := strings.TrimPrefix(head, "-")
	targets, ok := c.policy.TriggerTargets(keyword)
	if !ok {
		return Intent{}, fmt.Errorf("%w: %q", ErrInvalidTrigger, head)
	}

	acting, ok := c.coordinatorRole(senderRoles)
	if !ok {
		return Intent{}, fmt.Errorf("%w: -%s requires a coordinating role", ErrUnauthorized, keyword)
	}
	return Intent{
		Kind:        IntentSpecificTeam,
		SenderRole:  acting,
		TargetRoles: targets,
		Keyword:     keyword,
		Body:        body,
	}, nil
}

func (c *Classifier) classifyDirectID(body string) (Intent, error) {
	idText, rest, _ := strings.Cut(body, " ")
	n, err := strconv.ParseInt(idText, 10, 64)
	if err != nil {
		return Intent{}, fmt.Errorf("%w: -id needs a numeric identity", ErrInvalidTrigger)
	}
	return Intent{
		Kind:       IntentDirectUserID,
		TargetUser: directory.Identity(n),
		Body:       strings.TrimSpace(rest),
	}, nil
}

func (c *Classifier) coordinatorRole(senderRoles []directory.Role) (directory.Role, bool) {
	for _, held := range senderRoles {
		for _, coord := range c.coordinators {
			if held == coord {
				return held, true
			}
		}
	}
	return "", false
}
