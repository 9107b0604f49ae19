package commands

import (
	"context"
	"fmt"
)

// muteCommand silences a sender: their messages are rejected before any
// routing.
type muteCommand struct {
	deps Deps
}

func (c *muteCommand) Name() string { return "mute" }
func (c *muteCommand) Help() string { return "/mute <id> - reject a sender's messages" }
func (c *muteCommand) Admin() bool  { return true }

func (c *muteCommand) Execute(ctx context.Context, req Request) (string, error) {
	if len(req.Args) != 1 {
		return "", fmt.Errorf("usage: /mute <id>")
	}
	id, err := parseIdentity(req.Args[0])
	if err != nil {
		return "", err
	}
	if err := c.deps.Mutes.Mute(ctx, id); err != nil {
		return "", err
	}
	return fmt.Sprintf("%d is now muted.", id), nil
}

// unmuteCommand lifts a mute.
type unmuteCommand struct {
	deps Deps
}

func (c *unmuteCommand) Name() string { return "unmute" }
func (c *unmuteCommand) Help() string { return "/unmute <id> - lift a mute" }
func (c *unmuteCommand) Admin() bool  { return true }

func (c *unmuteCommand) Execute(ctx context.Context, req Request) (string, error) {
	if len(req.Args) != 1 {
		return "", fmt.Errorf("usage: /unmute <id>")
	}
	id, err := parseIdentity(req.Args[0])
	if err != nil {
		return "", err
	}
	if err := c.deps.Mutes.Unmute(ctx, id); err != nil {
		return "", err
	}
	return fmt.Sprintf("%d is no longer muted.", id), nil
}

// registerCommand records a chat handle for an identity. Handles are
// lowercase-normalized; re-registering an existing handle moves it to the
// new identity (last write wins).
type registerCommand struct {
	deps Deps
}

func (c *registerCommand) Name() string { return "register" }
func (c *registerCommand) Help() string { return "/register <handle> <id> - map a handle to an identity" }
func (c *registerCommand) Admin() bool  { return true }

func (c *registerCommand) Execute(ctx context.Context, req Request) (string, error) {
	if len(req.Args) != 2 {
		return "", fmt.Errorf("usage: /register <handle> <id>")
	}
	id, err := parseIdentity(req.Args[1])
	if err != nil {
		return "", err
	}
	if err := c.deps.Handles.Record(ctx, req.Args[0], id); err != nil {
		return "", err
	}
	return fmt.Sprintf("Handle %s now maps to %d.", req.Args[0], id), nil
}
