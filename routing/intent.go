// Package routing classifies inbound messages into routing intents and
// resolves intents into recipient identity sets. Classification is pure:
// the same message, sender, and role set always yield the same intent.
package routing

import (
	"github.com/c360studio/teamrelay/directory"
)

// IntentKind discriminates the routing intent variants.
type IntentKind string

// Intent kinds.
const (
	// IntentNoRole marks a message from a sender with no role: an
	// anonymous-feedback candidate addressed to all role holders.
	IntentNoRole IntentKind = "no-role"

	// IntentDefaultRoute is a plain message routed by the sender role's
	// default target table.
	IntentDefaultRoute IntentKind = "default-route"

	// IntentTeamBroadcast (-team) addresses the sender's own team plus tara.
	IntentTeamBroadcast IntentKind = "team-broadcast"

	// IntentDirectToTara (-t) addresses the tara role only.
	IntentDirectToTara IntentKind = "direct-to-tara"

	// IntentSpecificTeam (-<keyword>) addresses the role set mapped to the
	// keyword. Restricted to coordinating roles.
	IntentSpecificTeam IntentKind = "specific-team"

	// IntentSpecificUser (-@handle) addresses one identity looked up in
	// the handle directory.
	IntentSpecificUser IntentKind = "specific-user"

	// IntentDirectUserID (-id <n>) addresses one identity directly.
	// Restricted to the privileged administrative identity.
	IntentDirectUserID IntentKind = "direct-user-id"

	// IntentNeedsRoleChoice defers classification: the sender holds more
	// than one role and must pick the one to act under before the intent
	// in After can be completed.
	IntentNeedsRoleChoice IntentKind = "needs-role-choice"
)

// Intent is the classified routing decision before recipients are
// resolved. Only the fields relevant to Kind are populated.
type Intent struct {
	Kind IntentKind

	// SenderRole is the role the sender acts under. Empty for IntentNoRole
	// and IntentNeedsRoleChoice, and for privileged direct sends.
	SenderRole directory.Role

	// TargetRoles is the addressed role set for role-targeted kinds.
	TargetRoles []directory.Role

	// TargetUser is the addressed identity for IntentSpecificUser and
	// IntentDirectUserID.
	TargetUser directory.Identity

	// Keyword is the matched trigger keyword for IntentSpecificTeam.
	Keyword string

	// Candidates are the roles to choose between for IntentNeedsRoleChoice.
	Candidates []directory.Role

	// After is the intent kind to complete once a role is chosen. Set only
	// for IntentNeedsRoleChoice.
	After IntentKind

	// Body is the message text remaining after the trigger token. When
	// non-empty the flow already has its message and skips collection.
	Body string
}
