package builtin

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/keshon/flake/internal/command"
	"github.com/keshon/flake/internal/state"
)

func init() {
	command.RegisterBuiltin(func() command.Command {
		return command.Apply(&ConfigCommand{}, command.WithGuildOnly())
	})
}

// ConfigCommand shows and overrides the configuration of a guild. Changes
// are written as a memory patch to the guild's config_override map.
type ConfigCommand struct{}

func (c *ConfigCommand) Name() string { return "config" }
func (c *ConfigCommand) Description() string {
	return "Show or change this server's settings: `config show`, `config set <key> <value>`"
}
func (c *ConfigCommand) Category() string { return categoryAdmin }

func (c *ConfigCommand) Run(args []string, ctx *command.Context) (*command.Response, error) {
	return command.Switch{
		"set":               c.set,
		"show":              c.show,
		command.DefaultCase: c.show,
	}.Run(args, ctx)
}

func (c *ConfigCommand) show(args []string, ctx *command.Context) (*command.Response, error) {
	data, err := json.Marshal(ctx.Config)
	if err != nil {
		return nil, err
	}
	var values map[string]any
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, err
	}

	var b strings.Builder
	for _, key := range ctx.Config.Keys() {
		fmt.Fprintf(&b, "`%s` = `%v`\n", key, values[key])
	}
	return &command.Response{Msg: b.String()}, nil
}

func (c *ConfigCommand) set(args []string, ctx *command.Context) (*command.Response, error) {
	if !ctx.Core.IsOwner(ctx.AuthorID()) {
		return command.Reply("Only my owner can change settings."), nil
	}
	if len(args) < 2 {
		return command.Reply("Usage: `%sconfig set <key> <value>`", ctx.Config.Prefix), nil
	}
	key := strings.ToLower(args[0])
	if !slices.Contains(ctx.Config.Keys(), key) {
		return command.Reply("Unknown setting `%s`. Known: %s", key, strings.Join(ctx.Config.Keys(), ", ")), nil
	}
	raw := strings.Join(args[1:], " ")
	value := ParseValue(raw)

	if _, err := ctx.Config.Override(map[string]any{key: value}); err != nil {
		return command.Reply("`%s` does not fit `%s`.", raw, key), nil
	}

	return &command.Response{
		Msg: fmt.Sprintf("`%s` is now `%v`.", key, value),
		Log: fmt.Sprintf("config %s=%v in %s", key, value, ctx.GuildID()),
		Memory: map[string]any{
			string(state.Guilds): map[string]any{
				ctx.GuildID(): map[string]any{
					state.KeyConfigOverride: map[string]any{key: value},
				},
			},
		},
	}, nil
}

// ParseValue reads a JSON scalar, or keeps raw as a string.
func ParseValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		switch v.(type) {
		case bool, float64, string:
			return v
		}
	}
	return raw
}
