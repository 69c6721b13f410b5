package builtin

import (
	"fmt"
	"sort"
	"strings"

	"github.com/keshon/flake/internal/command"
	"github.com/keshon/flake/internal/state"
)

func init() {
	command.RegisterBuiltin(func() command.Command {
		return command.Apply(&HookCommand{}, command.WithGuildOnly())
	})
}

// HookCommand manages the hooks of a guild.
//
//	hook add <command> /<pattern>/<flags> [args...]
//	hook remove /<pattern>/
//	hook list
type HookCommand struct{}

func (c *HookCommand) Name() string { return "hook" }
func (c *HookCommand) Description() string {
	return "Run a command whenever a message matches: `hook add <command> /<pattern>/<flags>`, `hook remove /<pattern>/`, `hook list`"
}
func (c *HookCommand) Category() string { return categoryGeneral }

func (c *HookCommand) Run(args []string, ctx *command.Context) (*command.Response, error) {
	return command.Switch{
		"add":               c.add,
		"remove":            c.remove,
		"list":              c.list,
		command.DefaultCase: c.list,
	}.Run(args, ctx)
}

func (c *HookCommand) add(args []string, ctx *command.Context) (*command.Response, error) {
	if len(args) < 2 {
		return command.Reply("Usage: `%shook add <command> /<pattern>/<flags> [args...]`", ctx.Config.Prefix), nil
	}
	name := strings.ToLower(args[0])
	if !ctx.Core.HasCommand(name) {
		return command.Reply("There is no `%s` command to hook up.", name), nil
	}
	pattern, flags, rest, ok := ParsePattern(args[1:])
	if !ok {
		return command.Reply("Write the pattern between slashes, like `/^hello$/i`."), nil
	}

	added, err := ctx.Core.SetHook(ctx.GuildID(), state.HookDescriptor{
		Pattern: pattern,
		Flags:   flags,
		Command: name,
		Args:    rest,
	})
	if err != nil {
		return command.Reply("That pattern does not work: %v", err), nil
	}
	if !added {
		return command.Reply("A hook for `/%s/` already exists.", pattern), nil
	}
	return &command.Response{
		Msg: fmt.Sprintf("Hooked `%s` to `/%s/%s`.", name, pattern, flags),
		Log: fmt.Sprintf("hook /%s/%s -> %s in %s", pattern, flags, name, ctx.GuildID()),
	}, nil
}

func (c *HookCommand) remove(args []string, ctx *command.Context) (*command.Response, error) {
	pattern, _, _, ok := ParsePattern(args)
	if !ok {
		return command.Reply("Usage: `%shook remove /<pattern>/`", ctx.Config.Prefix), nil
	}
	if _, exists := ctx.Core.Hooks(ctx.GuildID())[pattern]; !exists {
		return command.Reply("No hook for `/%s/`.", pattern), nil
	}
	ctx.Core.ClearHook(ctx.GuildID(), pattern)
	return command.Reply("Removed the hook for `/%s/`.", pattern), nil
}

func (c *HookCommand) list(args []string, ctx *command.Context) (*command.Response, error) {
	hooks := ctx.Core.Hooks(ctx.GuildID())
	if len(hooks) == 0 {
		return command.Reply("No hooks in this server."), nil
	}
	patterns := make([]string, 0, len(hooks))
	for p := range hooks {
		patterns = append(patterns, p)
	}
	sort.Strings(patterns)

	var b strings.Builder
	for _, p := range patterns {
		h := hooks[p]
		fmt.Fprintf(&b, "`/%s/%s` -> `%s`", p, h.Flags, h.Command)
		if len(h.Args) > 0 {
			fmt.Fprintf(&b, " %s", strings.Join(h.Args, " "))
		}
		b.WriteByte('\n')
	}
	return &command.Response{Msg: b.String()}, nil
}

// ParsePattern reads a /pattern/flags literal from the start of args. The
// pattern may span several arguments; they are joined by single spaces.
// It returns the arguments that follow the literal.
func ParsePattern(args []string) (pattern, flags string, rest []string, ok bool) {
	if len(args) == 0 || !strings.HasPrefix(args[0], "/") {
		return "", "", nil, false
	}
	for i := range args {
		joined := strings.Join(args[:i+1], " ")
		end := strings.LastIndex(joined, "/")
		if end <= 0 {
			continue
		}
		tail := joined[end+1:]
		if strings.ContainsAny(tail, " /") || !isFlags(tail) {
			continue
		}
		return joined[1:end], tail, append([]string{}, args[i+1:]...), joined[1:end] != ""
	}
	return "", "", nil, false
}

func isFlags(s string) bool {
	for _, r := range s {
		if !strings.ContainsRune("gimsu", r) {
			return false
		}
	}
	return true
}
