package builtin

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/flake/internal/chat"
	"github.com/keshon/flake/internal/command"
	"github.com/keshon/flake/internal/config"
	"github.com/keshon/flake/internal/state"
)

type scheduled struct {
	target state.Target
	delay  time.Duration
	origin *chat.Message
}

type fakeCore struct {
	commands  map[string]command.Command
	owner     string
	timers    []scheduled
	hooks     map[string]state.HookDescriptor
	presence  *state.Presence
	generated string
}

func newFakeCore(t *testing.T) *fakeCore {
	t.Helper()
	reg := command.NewRegistry(command.BuiltinSource{}, zerolog.Nop())
	_, err := reg.ReloadAll()
	require.NoError(t, err)
	return &fakeCore{commands: reg.All(), owner: "owner", hooks: map[string]state.HookDescriptor{}}
}

func (f *fakeCore) CallCommand(context.Context, string, []string, *chat.Message) {}
func (f *fakeCore) HasCommand(name string) bool                                  { _, ok := f.commands[name]; return ok }
func (f *fakeCore) Commands() map[string]command.Command                         { return f.commands }

func (f *fakeCore) SetPersistentTimeout(_ context.Context, target state.Target, delay time.Duration, origin *chat.Message) (string, error) {
	f.timers = append(f.timers, scheduled{target, delay, origin})
	return "t1", nil
}
func (f *fakeCore) ClearPersistentTimeout(string) {}
func (f *fakeCore) PendingTimers() map[string]state.TimerRecord {
	out := map[string]state.TimerRecord{}
	for i, s := range f.timers {
		out[string(rune('a'+i))] = state.TimerRecord{Target: s.target, FireAt: time.Now().Add(s.delay).UnixMilli()}
	}
	return out
}

func (f *fakeCore) SetHook(_ string, d state.HookDescriptor) (bool, error) {
	if _, ok := f.hooks[d.Pattern]; ok {
		return false, nil
	}
	f.hooks[d.Pattern] = d
	return true, nil
}
func (f *fakeCore) ClearHook(_ string, pattern string) { delete(f.hooks, pattern) }
func (f *fakeCore) Hooks(string) map[string]state.HookDescriptor {
	return f.hooks
}

func (f *fakeCore) IsOwner(id string) bool                                { return id == f.owner }
func (f *fakeCore) DisplayName(_ context.Context, id, _ string) string   { return id }
func (f *fakeCore) SetPresence(_ context.Context, p state.Presence) error { f.presence = &p; return nil }
func (f *fakeCore) Generate(string, []string, int) string                 { return f.generated }

func run(t *testing.T, core *fakeCore, author, name string, args ...string) *command.Response {
	t.Helper()
	cmd, ok := core.commands[name]
	require.True(t, ok, "builtin %s is registered", name)
	resp, err := cmd.Run(args, &command.Context{
		Ctx:     context.Background(),
		Name:    name,
		Message: &chat.Message{ID: "m", ChannelID: "c", GuildID: "g", AuthorID: author, Public: true},
		Config:  config.Defaults().Guild,
		Core:    core,
	})
	require.NoError(t, err)
	return resp
}

func TestBuiltinsAreRegistered(t *testing.T) {
	core := newFakeCore(t)
	for _, name := range []string{"ping", "help", "say", "reload", "reset", "quit", "remind", "timers", "hook", "config", "presence", "markov"} {
		assert.Contains(t, core.commands, name)
	}
}

func TestPingAndSay(t *testing.T) {
	core := newFakeCore(t)
	assert.Equal(t, "Pong!", run(t, core, "u", "ping").Msg)
	assert.Equal(t, "a b", run(t, core, "u", "say", "a", "b").Msg)
	assert.Nil(t, run(t, core, "u", "say"))
}

func TestHelp(t *testing.T) {
	core := newFakeCore(t)

	resp := run(t, core, "u", "help")
	require.NotNil(t, resp.MsgOptions)
	assert.True(t, resp.Private)
	assert.Contains(t, resp.MsgOptions.Embed.Description, "`m!remind`")

	assert.Contains(t, run(t, core, "u", "help", "PING").Msg, "alive")
	assert.Contains(t, run(t, core, "u", "help", "nope").Msg, "no `nope`")
}

func TestLifecycleCommandsAreOwnerOnly(t *testing.T) {
	core := newFakeCore(t)

	for name, sig := range map[string]string{"reload": "reload", "reset": "reset", "quit": "quit"} {
		refused := run(t, core, "u", name)
		assert.Empty(t, refused.Signals, name)

		ok := run(t, core, "owner", name)
		assert.Equal(t, command.Signals{sig}, ok.Signals, name)
	}
}

func TestRemind(t *testing.T) {
	core := newFakeCore(t)

	resp := run(t, core, "u", "remind", "90m", "drink", "water")
	assert.Contains(t, resp.Msg, "from now")
	require.Len(t, core.timers, 1)
	s := core.timers[0]
	assert.Equal(t, 90*time.Minute, s.delay)
	assert.Equal(t, state.Target{Kind: state.TargetCommand, Name: "say", Args: []string{"<@u>", "reminder:", "drink", "water"}}, s.target)
	assert.Equal(t, "m", s.origin.ID)

	assert.Contains(t, run(t, core, "u", "remind", "soon", "x").Msg, "not a duration")
	assert.Contains(t, run(t, core, "u", "remind", "1h").Msg, "Usage")
	assert.Len(t, core.timers, 1)

	listing := run(t, core, "owner", "timers")
	assert.Contains(t, listing.Msg, "`say`")
}

func TestHookCommand(t *testing.T) {
	core := newFakeCore(t)

	resp := run(t, core, "u", "hook", "add", "say", "/^ping", "me$/i", "pong")
	assert.Contains(t, resp.Msg, "Hooked")
	assert.Equal(t, state.HookDescriptor{Pattern: "^ping me$", Flags: "i", Command: "say", Args: []string{"pong"}}, core.hooks["^ping me$"])

	assert.Contains(t, run(t, core, "u", "hook", "add", "say", "/^ping", "me$/i").Msg, "already exists")
	assert.Contains(t, run(t, core, "u", "hook", "add", "nothing", "/x/").Msg, "no `nothing`")
	assert.Contains(t, run(t, core, "u", "hook", "add", "say", "x").Msg, "between slashes")
	assert.Contains(t, run(t, core, "u", "hook", "list").Msg, "`/^ping me$/i` -> `say` pong")

	assert.Contains(t, run(t, core, "u", "hook", "remove", "/^ping", "me$/").Msg, "Removed")
	assert.Empty(t, core.hooks)
	assert.Contains(t, run(t, core, "u", "hook").Msg, "No hooks")
}

func TestParsePattern(t *testing.T) {
	tests := []struct {
		args    []string
		pattern string
		flags   string
		rest    []string
		ok      bool
	}{
		{[]string{"/a/"}, "a", "", []string{}, true},
		{[]string{"/a/gi", "x", "y"}, "a", "gi", []string{"x", "y"}, true},
		{[]string{"/a/b/"}, "a/b", "", []string{}, true},
		{[]string{"/a", "b/m"}, "a b", "m", []string{}, true},
		{[]string{"//"}, "", "", []string{}, false},
		{[]string{"a/"}, "", "", nil, false},
		{[]string{"/unterminated"}, "", "", nil, false},
	}
	for _, tt := range tests {
		p, f, rest, ok := ParsePattern(tt.args)
		assert.Equal(t, tt.ok, ok, tt.args)
		if tt.ok {
			assert.Equal(t, tt.pattern, p, tt.args)
			assert.Equal(t, tt.flags, f, tt.args)
			assert.Equal(t, tt.rest, rest, tt.args)
		}
	}
}

func TestConfigCommand(t *testing.T) {
	core := newFakeCore(t)

	assert.Contains(t, run(t, core, "u", "config").Msg, "`prefix` = `m!`")
	assert.Contains(t, run(t, core, "u", "config", "set", "prefix", "!").Msg, "Only my owner")

	resp := run(t, core, "owner", "config", "set", "markov_chance", "12.5")
	assert.Equal(t, map[string]any{
		"guilds": map[string]any{"g": map[string]any{"config_override": map[string]any{"markov_chance": 12.5}}},
	}, resp.Memory)

	assert.Contains(t, run(t, core, "owner", "config", "set", "max_hooks_per_message", "lots").Msg, "does not fit")
	assert.Contains(t, run(t, core, "owner", "config", "set", "max_hooks_per_message", "0").Msg, "does not fit")
	assert.Contains(t, run(t, core, "owner", "config", "set", "prefix", `""`).Msg, "does not fit")
	assert.Contains(t, run(t, core, "owner", "config", "set", "volume", "11").Msg, "Unknown setting")
}

func TestParseValue(t *testing.T) {
	assert.Equal(t, true, ParseValue("true"))
	assert.Equal(t, 3.0, ParseValue("3"))
	assert.Equal(t, "m!", ParseValue("m!"))
	assert.Equal(t, "5", ParseValue(`"5"`))
	assert.Equal(t, "[1]", ParseValue("[1]"))
}

func TestPresenceAndMarkov(t *testing.T) {
	core := newFakeCore(t)

	run(t, core, "owner", "presence", "watching", "the", "logs")
	require.NotNil(t, core.presence)
	assert.Equal(t, state.Presence{Text: "the logs", Kind: "WATCHING"}, *core.presence)
	assert.Contains(t, run(t, core, "owner", "presence", "sleeping", "x").Msg, "Unknown activity")

	assert.Contains(t, run(t, core, "u", "markov").Msg, "don't know enough")
	core.generated = "some words"
	assert.Equal(t, "some words", run(t, core, "u", "markov", "some").Msg)
}
