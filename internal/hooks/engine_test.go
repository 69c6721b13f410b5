package hooks

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/flake/datastore"
	"github.com/keshon/flake/internal/chat"
	"github.com/keshon/flake/internal/config"
	"github.com/keshon/flake/internal/state"
)

type call struct {
	command string
	args    []string
}

type harness struct {
	store  *state.Store
	engine *Engine
	calls  []call
	name   string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	snap, err := datastore.New(datastore.DefaultConfig(filepath.Join(t.TempDir(), "memory.json")))
	require.NoError(t, err)
	h := &harness{store: state.Open(snap, zerolog.Nop()), name: "Flake"}
	h.engine = New(Config{
		Store: h.store,
		Invoke: func(_ context.Context, _ *chat.Message, command string, args []string) {
			h.calls = append(h.calls, call{command, args})
		},
		SelfName: func(context.Context, string) string { return h.name },
		Logger:   zerolog.Nop(),
	})
	return h
}

func guildConfig(maxHooks int) config.GuildConfig {
	cfg := config.Defaults().Guild
	cfg.MaxHooksPerMessage = maxHooks
	cfg.RandomMarkov = false
	return cfg
}

func msg(text string) *chat.Message {
	return &chat.Message{ID: "m", ChannelID: "c", GuildID: "g", AuthorID: "u", Content: text, Public: true}
}

func TestRegisterDuplicatePattern(t *testing.T) {
	h := newHarness(t)
	d := state.HookDescriptor{Pattern: "^ping$", Command: "pong"}

	ok, err := h.engine.Register("g", d)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.engine.Register("g", d)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, h.engine.Active("g"))
}

func TestRegisterInvalidPatternIsNotStored(t *testing.T) {
	h := newHarness(t)

	ok, err := h.engine.Register("g", state.HookDescriptor{Pattern: "(unclosed", Command: "x"})
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrInvalidPattern)

	ok, err = h.engine.Register("g", state.HookDescriptor{Pattern: "fine", Flags: "q", Command: "x"})
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrInvalidPattern)

	assert.Empty(t, h.store.Hooks("g"))
}

func TestCompileUsesJavaScriptClasses(t *testing.T) {
	re, global, err := Compile(`^\d+\s\w+$`, "", DefaultMatchTimeout)
	require.NoError(t, err)
	assert.False(t, global)

	ok, err := re.MatchString("42 apples")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = re.MatchString("٤٢ apples")
	require.NoError(t, err)
	assert.False(t, ok, "non-ASCII digits are not \\d")

	ok, err = re.MatchString("42 äpfel")
	require.NoError(t, err)
	assert.False(t, ok, "non-ASCII letters are not \\w")
}

func TestGlobalHookIsCappedAcrossHookSet(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.Register("g", state.HookDescriptor{Pattern: "a", Flags: "g", Command: "count"})
	require.NoError(t, err)
	_, err = h.engine.Register("g", state.HookDescriptor{Pattern: "b", Flags: "g", Command: "other"})
	require.NoError(t, err)

	const limit = 3
	fired := h.engine.Match(context.Background(), msg("a a a a a b b"), guildConfig(limit))

	assert.True(t, fired)
	require.Len(t, h.calls, limit)
	for _, c := range h.calls {
		assert.Equal(t, "count", c.command, "pattern a sorts first and uses the whole budget")
	}
}

func TestNonGlobalHookMatchesOnce(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.Register("g", state.HookDescriptor{Pattern: "x", Command: "once"})
	require.NoError(t, err)

	h.engine.Match(context.Background(), msg("x x x x"), guildConfig(10))

	assert.Len(t, h.calls, 1)
}

func TestCapturedGroupsBecomeArgs(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.Register("g", state.HookDescriptor{
		Pattern: `^remind me (\w+) (.*)$`,
		Flags:   "i",
		Command: "remind",
		Args:    []string{"fixed"},
	})
	require.NoError(t, err)
	_, err = h.engine.Register("g", state.HookDescriptor{Pattern: `(optional)?end`, Command: "tail"})
	require.NoError(t, err)

	h.engine.Match(context.Background(), msg("Remind me tomorrow buy milk end"), guildConfig(10))

	require.Len(t, h.calls, 2)
	assert.Equal(t, call{"tail", []string{}}, h.calls[0])
	assert.Equal(t, call{"remind", []string{"fixed", "tomorrow", "buy", "milk", "end"}}, h.calls[1])
}

func TestNoMatchReportsFalse(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.Register("g", state.HookDescriptor{Pattern: "^ping$", Command: "pong"})
	require.NoError(t, err)

	assert.False(t, h.engine.Match(context.Background(), msg("pong"), guildConfig(10)))
	assert.Empty(t, h.calls)
}

func TestDynamicNameHook(t *testing.T) {
	h := newHarness(t)
	cfg := guildConfig(10)
	cfg.RandomMarkov = true

	assert.True(t, h.engine.Match(context.Background(), msg("hey flake, talk"), cfg))
	require.Len(t, h.calls, 1)
	assert.Equal(t, cfg.PassiveCommand, h.calls[0].command)
	assert.Equal(t, []string{"hey", "flake,", "talk"}, h.calls[0].args)

	h.calls = nil
	cfg.RandomMarkov = false
	assert.False(t, h.engine.Match(context.Background(), msg("hey flake"), cfg))
}

func TestStoredHookOverridesDynamic(t *testing.T) {
	h := newHarness(t)
	h.name = "Bot"
	cfg := guildConfig(10)
	cfg.RandomMarkov = true

	_, err := h.engine.Register("g", state.HookDescriptor{Pattern: "^(.*Bot.*)$", Flags: "i", Command: "custom"})
	require.NoError(t, err)

	h.engine.Match(context.Background(), msg("bot"), cfg)
	require.Len(t, h.calls, 1)
	assert.Equal(t, "custom", h.calls[0].command)
}

func TestReviveAllSkipsBrokenHooks(t *testing.T) {
	h := newHarness(t)
	_, err := h.store.AddHook("g", state.HookDescriptor{Pattern: "good", Command: "x"})
	require.NoError(t, err)
	_, err = h.store.AddHook("g", state.HookDescriptor{Pattern: "(bad", Command: "x"})
	require.NoError(t, err)

	assert.Equal(t, 1, h.engine.ReviveAll([]string{"g", "unknown"}))
	assert.True(t, h.engine.Match(context.Background(), msg("good"), guildConfig(10)))
}

func TestUnregisterIsIdempotent(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.Register("g", state.HookDescriptor{Pattern: "x", Command: "x"})
	require.NoError(t, err)

	h.engine.Unregister("g", "x")
	h.engine.Unregister("g", "x")

	assert.Equal(t, 0, h.engine.Active("g"))
	assert.Empty(t, h.store.Hooks("g"))
	assert.False(t, h.engine.Match(context.Background(), msg("x"), guildConfig(10)))
}
