package routing

import (
	"fmt"

	"github.com/c360studio/teamrelay/directory"
)

// Resolve computes the recipient set for a role-targeted intent: the union
// of every target role's members, minus the sender. The result is a fresh
// set the caller owns. An empty result is ErrNoRecipients; the flow must
// abort before any confirmation prompt.
func Resolve(sender directory.Identity, targetRoles []directory.Role, dir *directory.Directory) (map[directory.Identity]struct{}, error) {
	recipients := make(map[directory.Identity]struct{})
	for _, role := range targetRoles {
		for id := range dir.Members(role) {
			recipients[id] = struct{}{}
		}
	}
	delete(recipients, sender)

	if len(recipients) == 0 {
		return nil, fmt.Errorf("%w: no one holds %v besides the sender", ErrNoRecipients, targetRoles)
	}
	return recipients, nil
}

// ResolveAll computes the anonymous-feedback recipient set: every role
// holder across all roles, minus the sender.
func ResolveAll(sender directory.Identity, dir *directory.Directory) (map[directory.Identity]struct{}, error) {
	recipients := dir.AllMembers()
	delete(recipients, sender)

	if len(recipients) == 0 {
		return nil, fmt.Errorf("%w: no role holders to receive feedback", ErrNoRecipients)
	}
	return recipients, nil
}

// ResolveUser computes the recipient set for a direct-to-user intent. The
// set degenerates to the single target; targeting yourself is rejected as
// ErrNoRecipients unless allowSelf is set.
func ResolveUser(sender, target directory.Identity, allowSelf bool) (map[directory.Identity]struct{}, error) {
	if target == sender && !allowSelf {
		return nil, fmt.Errorf("%w: target is the sender", ErrNoRecipients)
	}
	return map[directory.Identity]struct{}{target: {}}, nil
}
