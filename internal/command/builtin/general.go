// Package builtin holds the commands compiled into the bot. Each command
// registers itself with command.RegisterBuiltin from init; import the
// package for its side effects.
package builtin

import (
	"fmt"
	"sort"
	"strings"

	"github.com/keshon/flake/internal/chat"
	"github.com/keshon/flake/internal/command"
)

const (
	categoryGeneral = "General"
	categoryAdmin   = "Admin"
	categoryFun     = "Fun"
)

func init() {
	command.RegisterBuiltin(func() command.Command { return &PingCommand{} })
	command.RegisterBuiltin(func() command.Command { return &HelpCommand{} })
	command.RegisterBuiltin(func() command.Command { return &SayCommand{} })
}

type PingCommand struct{}

func (c *PingCommand) Name() string        { return "ping" }
func (c *PingCommand) Description() string { return "Check that the bot is alive" }
func (c *PingCommand) Category() string    { return categoryGeneral }

func (c *PingCommand) Run(args []string, ctx *command.Context) (*command.Response, error) {
	return command.Reply("Pong!"), nil
}

type HelpCommand struct{}

func (c *HelpCommand) Name() string        { return "help" }
func (c *HelpCommand) Description() string { return "List commands, or describe one: `help <command>`" }
func (c *HelpCommand) Category() string    { return categoryGeneral }

func (c *HelpCommand) Run(args []string, ctx *command.Context) (*command.Response, error) {
	all := ctx.Core.Commands()
	prefix := ctx.Config.Prefix

	if len(args) > 0 {
		name := strings.ToLower(args[0])
		cmd, ok := all[name]
		if !ok {
			return command.Reply("There is no `%s` command.", name), nil
		}
		return command.Reply("`%s%s`: %s", prefix, name, cmd.Description()), nil
	}

	byCategory := map[string][]string{}
	for name, cmd := range all {
		byCategory[cmd.Category()] = append(byCategory[cmd.Category()], name)
	}
	categories := make([]string, 0, len(byCategory))
	for cat := range byCategory {
		categories = append(categories, cat)
	}
	sort.Strings(categories)

	var b strings.Builder
	for _, cat := range categories {
		names := byCategory[cat]
		sort.Strings(names)
		fmt.Fprintf(&b, "**%s**\n", cat)
		for _, name := range names {
			fmt.Fprintf(&b, "`%s%s` %s\n", prefix, name, all[name].Description())
		}
	}
	return &command.Response{
		MsgOptions: &chat.SendOptions{Embed: &chat.Embed{
			Title:       "Commands",
			Description: b.String(),
		}},
		Private: true,
	}, nil
}

type SayCommand struct{}

func (c *SayCommand) Name() string        { return "say" }
func (c *SayCommand) Description() string { return "Repeat the given text" }
func (c *SayCommand) Category() string    { return categoryFun }

func (c *SayCommand) Run(args []string, ctx *command.Context) (*command.Response, error) {
	if len(args) == 0 {
		return nil, nil
	}
	return &command.Response{Msg: strings.Join(args, " ")}, nil
}
