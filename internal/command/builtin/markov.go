package builtin

import (
	"github.com/keshon/flake/internal/command"
)

func init() {
	command.RegisterBuiltin(func() command.Command {
		return command.Apply(&MarkovCommand{}, command.WithGuildOnly())
	})
}

type MarkovCommand struct{}

func (c *MarkovCommand) Name() string { return "markov" }
func (c *MarkovCommand) Description() string {
	return "Say something in the style of this server, optionally starting from one of the given words"
}
func (c *MarkovCommand) Category() string { return categoryFun }

func (c *MarkovCommand) Run(args []string, ctx *command.Context) (*command.Response, error) {
	text := ctx.Core.Generate(ctx.GuildID(), args, ctx.Config.MarkovDefaultMaxWords)
	if text == "" {
		if ctx.Hook {
			return nil, nil
		}
		return command.Reply("I don't know enough words here yet."), nil
	}
	return &command.Response{Msg: text}, nil
}
