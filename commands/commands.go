// Package commands implements the relay's slash commands: role
// administration, muting, and handle registration. Commands are plain
// request/reply operations on the collaborator stores; none of them touch
// the confirmation flow.
package commands

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/c360studio/teamrelay/directory"
	"github.com/c360studio/teamrelay/storage"
)

// Request is one parsed command invocation.
type Request struct {
	Sender directory.Identity
	Args   []string
}

// Command is a single slash command.
type Command interface {
	// Name is the command word without the leading slash.
	Name() string
	// Help is the one-line usage string.
	Help() string
	// Admin reports whether the command requires administrative rights.
	Admin() bool
	// Execute runs the command and returns the reply text.
	Execute(ctx context.Context, req Request) (string, error)
}

// Deps are the stores commands operate on.
type Deps struct {
	Dir     *directory.Directory
	Handles storage.HandleDirectory
	Mutes   storage.MuteList

	// AdminID always has administrative rights, in addition to members of
	// the group-admin role.
	AdminID directory.Identity

	// Save persists the role directory after a mutation. May be nil in
	// tests.
	Save func(*directory.Directory) error
}

// IsAdmin reports whether id may run administrative commands.
func (d Deps) IsAdmin(id directory.Identity) bool {
	return id == d.AdminID || d.Dir.IsMember(directory.RoleGroupAdmin, id)
}

func (d Deps) save() error {
	if d.Save == nil {
		return nil
	}
	return d.Save(d.Dir)
}

// Registry parses and executes slash commands.
type Registry struct {
	deps     Deps
	commands map[string]Command
}

// NewRegistry creates a registry with the full command set.
func NewRegistry(deps Deps) *Registry {
	r := &Registry{deps: deps, commands: make(map[string]Command)}
	for _, c := range []Command{
		&rolesCommand{deps},
		&membersCommand{deps},
		&addRoleCommand{deps},
		&removeRoleCommand{deps},
		&muteCommand{deps},
		&unmuteCommand{deps},
		&registerCommand{deps},
		&helpCommand{r},
	} {
		r.commands[c.Name()] = c
	}
	return r
}

// Dispatch executes the command in text if it is one. handled is false
// when text is not a slash command at all, so the caller can route it as
// a regular message.
func (r *Registry) Dispatch(ctx context.Context, sender directory.Identity, text string) (reply string, handled bool) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "/") {
		return "", false
	}

	fields := strings.Fields(trimmed)
	name := strings.TrimPrefix(fields[0], "/")

	cmd, ok := r.commands[name]
	if !ok {
		return fmt.Sprintf("Unknown command /%s. Try /help.", name), true
	}
	if cmd.Admin() && !r.deps.IsAdmin(sender) {
		return fmt.Sprintf("/%s requires administrative rights.", name), true
	}

	out, err := cmd.Execute(ctx, Request{Sender: sender, Args: fields[1:]})
	if err != nil {
		return fmt.Sprintf("/%s failed: %v", name, err), true
	}
	return out, true
}

// helpCommand lists every command the sender may use.
type helpCommand struct {
	registry *Registry
}

func (c *helpCommand) Name() string { return "help" }
func (c *helpCommand) Help() string { return "/help - list available commands" }
func (c *helpCommand) Admin() bool  { return false }

func (c *helpCommand) Execute(_ context.Context, req Request) (string, error) {
	admin := c.registry.deps.IsAdmin(req.Sender)

	names := make([]string, 0, len(c.registry.commands))
	for name := range c.registry.commands {
		names = append(names, name)
	}
	sort.Strings(names)

	var lines []string
	for _, name := range names {
		cmd := c.registry.commands[name]
		if cmd.Admin() && !admin {
			continue
		}
		lines = append(lines, cmd.Help())
	}
	return strings.Join(lines, "\n"), nil
}
