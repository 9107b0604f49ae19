// Package directory provides the role directory: the mapping from role
// names to the identities holding them. The directory is read-mostly and
// safe for concurrent use; writes are serialized against reads so a
// resolution in progress sees either the pre- or post-mutation member set,
// never a partial one.
package directory

import (
	"fmt"
	"sort"
	"sync"
)

// Identity is a stable, opaque numeric user handle. Identities are
// referenced by value everywhere and carry no ownership.
type Identity int64

// Role is a named group membership conferring routing rights.
type Role string

// The closed set of roles the relay knows about.
const (
	RoleWriter             Role = "writer"
	RoleMCQs               Role = "mcqs"
	RoleChecker            Role = "checker"
	RoleWord               Role = "word"
	RoleDesign             Role = "design"
	RoleKing               Role = "king"
	RoleTara               Role = "tara"
	RoleMindMapFormCreator Role = "mind-map-form-creator"
	RoleGroupAdmin         Role = "group-admin"
	RoleGroupAssistant     Role = "group-assistant"
)

// KnownRoles returns the closed role set in a stable order.
func KnownRoles() []Role {
	return []Role{
		RoleWriter,
		RoleMCQs,
		RoleChecker,
		RoleWord,
		RoleDesign,
		RoleKing,
		RoleTara,
		RoleMindMapFormCreator,
		RoleGroupAdmin,
		RoleGroupAssistant,
	}
}

// ParseRole validates a role name against the closed set.
func ParseRole(s string) (Role, error) {
	for _, r := range KnownRoles() {
		if string(r) == s {
			return r, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
}

// Directory maps each role to its member identities. Member sets are
// unordered and deduplicated. All methods are safe for concurrent use.
type Directory struct {
	mu    sync.RWMutex
	roles map[Role]map[Identity]struct{}
}

// New creates a directory with an empty member set for every known role.
func New() *Directory {
	roles := make(map[Role]map[Identity]struct{}, len(KnownRoles()))
	for _, r := range KnownRoles() {
		roles[r] = make(map[Identity]struct{})
	}
	return &Directory{roles: roles}
}

// Members returns a copy of the member set for the given role. Unknown
// roles yield an empty set.
func (d *Directory) Members(role Role) map[Identity]struct{} {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make(map[Identity]struct{}, len(d.roles[role]))
	for id := range d.roles[role] {
		out[id] = struct{}{}
	}
	return out
}

// IsMember reports whether id holds the given role.
func (d *Directory) IsMember(role Role, id Identity) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	_, ok := d.roles[role][id]
	return ok
}

// RolesOf returns every role held by id, in the stable known-role order.
func (d *Directory) RolesOf(id Identity) []Role {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []Role
	for _, r := range KnownRoles() {
		if _, ok := d.roles[r][id]; ok {
			out = append(out, r)
		}
	}
	return out
}

// Add grants role to id. It returns true if the membership was added,
// false if id already held the role.
func (d *Directory) Add(role Role, id Identity) (bool, error) {
	if _, err := ParseRole(string(role)); err != nil {
		return false, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.roles[role][id]; ok {
		return false, nil
	}
	d.roles[role][id] = struct{}{}
	return true, nil
}

// Remove revokes role from id. It returns true if the membership existed.
func (d *Directory) Remove(role Role, id Identity) (bool, error) {
	if _, err := ParseRole(string(role)); err != nil {
		return false, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.roles[role][id]; !ok {
		return false, nil
	}
	delete(d.roles[role], id)
	return true, nil
}

// AllMembers returns the union of every role's member set. Used for the
// anonymous-feedback broadcast.
func (d *Directory) AllMembers() map[Identity]struct{} {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make(map[Identity]struct{})
	for _, members := range d.roles {
		for id := range members {
			out[id] = struct{}{}
		}
	}
	return out
}

// Snapshot returns the full role → member mapping as sorted slices,
// suitable for serialization.
func (d *Directory) Snapshot() map[Role][]Identity {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make(map[Role][]Identity, len(d.roles))
	for role, members := range d.roles {
		ids := make([]Identity, 0, len(members))
		for id := range members {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		out[role] = ids
	}
	return out
}

// Replace swaps the entire membership mapping in one write. Roles absent
// from the new mapping become empty. Used by the file watcher on reload.
func (d *Directory) Replace(snapshot map[Role][]Identity) error {
	roles := make(map[Role]map[Identity]struct{}, len(KnownRoles()))
	for _, r := range KnownRoles() {
		roles[r] = make(map[Identity]struct{})
	}
	for role, ids := range snapshot {
		if _, err := ParseRole(string(role)); err != nil {
			return err
		}
		for _, id := range ids {
			roles[role][id] = struct{}{}
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.roles = roles
	return nil
}
