package commands

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/c360studio/teamrelay/directory"
)

// rolesCommand reports the roles held by the sender (or, for admins, by a
// named identity).
type rolesCommand struct {
	deps Deps
}

func (c *rolesCommand) Name() string { return "roles" }
func (c *rolesCommand) Help() string { return "/roles [id] - list roles held by you (or by id)" }
func (c *rolesCommand) Admin() bool  { return false }

func (c *rolesCommand) Execute(_ context.Context, req Request) (string, error) {
	subject := req.Sender
	if len(req.Args) > 0 {
		if !c.deps.IsAdmin(req.Sender) {
			return "", fmt.Errorf("listing another user's roles requires administrative rights")
		}
		id, err := parseIdentity(req.Args[0])
		if err != nil {
			return "", err
		}
		subject = id
	}

	roles := c.deps.Dir.RolesOf(subject)
	if len(roles) == 0 {
		return fmt.Sprintf("%d holds no roles.", subject), nil
	}

	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	return fmt.Sprintf("%d holds: %s", subject, strings.Join(names, ", ")), nil
}

// membersCommand lists the identities holding a role.
type membersCommand struct {
	deps Deps
}

func (c *membersCommand) Name() string { return "members" }
func (c *membersCommand) Help() string { return "/members <role> - list identities holding a role" }
func (c *membersCommand) Admin() bool  { return true }

func (c *membersCommand) Execute(_ context.Context, req Request) (string, error) {
	if len(req.Args) != 1 {
		return "", fmt.Errorf("usage: /members <role>")
	}
	role, err := directory.ParseRole(req.Args[0])
	if err != nil {
		return "", err
	}

	members := c.deps.Dir.Members(role)
	if len(members) == 0 {
		return fmt.Sprintf("%s has no members.", role), nil
	}

	ids := make([]directory.Identity, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(int64(id), 10)
	}
	return fmt.Sprintf("%s: %s", role, strings.Join(parts, ", ")), nil
}

// addRoleCommand grants a role to one or more identities.
type addRoleCommand struct {
	deps Deps
}

func (c *addRoleCommand) Name() string { return "addrole" }
func (c *addRoleCommand) Help() string { return "/addrole <role> <id>... - grant a role" }
func (c *addRoleCommand) Admin() bool  { return true }

func (c *addRoleCommand) Execute(_ context.Context, req Request) (string, error) {
	role, ids, err := parseRoleAndIdentities(req.Args)
	if err != nil {
		return "", err
	}

	added := 0
	for _, id := range ids {
		ok, err := c.deps.Dir.Add(role, id)
		if err != nil {
			return "", err
		}
		if ok {
			added++
		}
	}
	if added > 0 {
		if err := c.deps.save(); err != nil {
			return "", fmt.Errorf("save role file: %w", err)
		}
	}
	return fmt.Sprintf("Added %d member(s) to %s.", added, role), nil
}

// removeRoleCommand revokes a role from one or more identities.
type removeRoleCommand struct {
	deps Deps
}

func (c *removeRoleCommand) Name() string { return "removerole" }
func (c *removeRoleCommand) Help() string { return "/removerole <role> <id>... - revoke a role" }
func (c *removeRoleCommand) Admin() bool  { return true }

func (c *removeRoleCommand) Execute(_ context.Context, req Request) (string, error) {
	role, ids, err := parseRoleAndIdentities(req.Args)
	if err != nil {
		return "", err
	}

	removed := 0
	for _, id := range ids {
		ok, err := c.deps.Dir.Remove(role, id)
		if err != nil {
			return "", err
		}
		if ok {
			removed++
		}
	}
	if removed > 0 {
		if err := c.deps.save(); err != nil {
			return "", fmt.Errorf("save role file: %w", err)
		}
	}
	return fmt.Sprintf("Removed %d member(s) from %s.", removed, role), nil
}

func parseRoleAndIdentities(args []string) (directory.Role, []directory.Identity, error) {
	if len(args) < 2 {
		return "", nil, fmt.Errorf("usage: <role> <id>...")
	}
	role, err := directory.ParseRole(args[0])
	if err != nil {
		return "", nil, err
	}

	ids := make([]directory.Identity, 0, len(args)-1)
	for _, arg := range args[1:] {
		id, err := parseIdentity(arg)
		if err != nil {
			return "", nil, err
		}
		ids = append(ids, id)
	}
	return role, ids, nil
}

func parseIdentity(s string) (directory.Identity, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("not a numeric identity: %q", s)
	}
	return directory.Identity(n), nil
}
