package builtin

import (
	"strings"

	"github.com/keshon/flake/internal/command"
	"github.com/keshon/flake/internal/state"
)

func init() {
	ownerOnly := command.WithOwnerOnly()
	command.RegisterBuiltin(func() command.Command { return command.Apply(&ReloadCommand{}, ownerOnly) })
	command.RegisterBuiltin(func() command.Command { return command.Apply(&ResetCommand{}, ownerOnly) })
	command.RegisterBuiltin(func() command.Command { return command.Apply(&QuitCommand{}, ownerOnly) })
	command.RegisterBuiltin(func() command.Command { return command.Apply(&PresenceCommand{}, ownerOnly) })
}

type ReloadCommand struct{}

func (c *ReloadCommand) Name() string        { return command.ReloadName }
func (c *ReloadCommand) Description() string { return "Reload all commands" }
func (c *ReloadCommand) Category() string    { return categoryAdmin }

func (c *ReloadCommand) Run(args []string, ctx *command.Context) (*command.Response, error) {
	return &command.Response{
		Msg:     "Reloading commands.",
		Log:     "reload requested by " + ctx.AuthorID(),
		Signals: command.Signals{"reload"},
	}, nil
}

type ResetCommand struct{}

func (c *ResetCommand) Name() string        { return "reset" }
func (c *ResetCommand) Description() string { return "Restart the bot process" }
func (c *ResetCommand) Category() string    { return categoryAdmin }

func (c *ResetCommand) Run(args []string, ctx *command.Context) (*command.Response, error) {
	return &command.Response{
		Msg:     "Be right back.",
		Log:     "reset requested by " + ctx.AuthorID(),
		Signals: command.Signals{"reset"},
	}, nil
}

type QuitCommand struct{}

func (c *QuitCommand) Name() string        { return "quit" }
func (c *QuitCommand) Description() string { return "Save everything and shut down" }
func (c *QuitCommand) Category() string    { return categoryAdmin }

func (c *QuitCommand) Run(args []string, ctx *command.Context) (*command.Response, error) {
	return &command.Response{
		Msg:     "Goodbye.",
		Log:     "quit requested by " + ctx.AuthorID(),
		Signals: command.Signals{"quit"},
	}, nil
}

// presenceKinds are the activity types the platform understands.
var presenceKinds = map[string]bool{
	"PLAYING":   true,
	"STREAMING": true,
	"LISTENING": true,
	"WATCHING":  true,
	"COMPETING": true,
}

type PresenceCommand struct{}

func (c *PresenceCommand) Name() string { return "presence" }
func (c *PresenceCommand) Description() string {
	return "Set the activity: `presence <playing|listening|watching|competing> <text>`"
}
func (c *PresenceCommand) Category() string { return categoryAdmin }

func (c *PresenceCommand) Run(args []string, ctx *command.Context) (*command.Response, error) {
	if len(args) < 2 {
		return command.Reply("Usage: `%spresence <kind> <text>`", ctx.Config.Prefix), nil
	}
	kind := strings.ToUpper(args[0])
	if !presenceKinds[kind] {
		return command.Reply("Unknown activity kind `%s`.", args[0]), nil
	}
	p := state.Presence{Text: strings.Join(args[1:], " "), Kind: kind}
	if err := ctx.Core.SetPresence(ctx.Ctx, p); err != nil {
		return nil, err
	}
	return &command.Response{Msg: "Activity updated.", Log: "presence set to " + kind + " " + p.Text}, nil
}
