// Package hooks runs commands passively when a message matches a
// per-guild regular expression.
//
// Durable descriptors live in the state store. The engine keeps their
// compiled form for the current process and rebuilds it with ReviveAll at
// boot. It is driven from the bot's event loop only and does no locking.
package hooks

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dlclark/regexp2"
	"github.com/rs/zerolog"

	"github.com/keshon/flake/internal/chat"
	"github.com/keshon/flake/internal/config"
	"github.com/keshon/flake/internal/state"
)

// ErrInvalidPattern is returned when a hook pattern or its flags do not compile.
var ErrInvalidPattern = errors.New("invalid hook pattern")

// DefaultMatchTimeout bounds the time a single pattern may spend on a message.
const DefaultMatchTimeout = 250 * time.Millisecond

// Invoker dispatches the command a hook resolved to.
type Invoker func(ctx context.Context, msg *chat.Message, command string, args []string)

// NameResolver returns the name the bot is currently shown under in a guild.
type NameResolver func(ctx context.Context, guildID string) string

// Config holds the dependencies of the engine.
type Config struct {
	Store        *state.Store
	Invoke       Invoker
	SelfName     NameResolver
	MatchTimeout time.Duration
	Logger       zerolog.Logger
}

// Engine matches messages against hooks.
type Engine struct {
	store    *state.Store
	invoke   Invoker
	selfName NameResolver
	timeout  time.Duration
	log      zerolog.Logger

	compiled map[string]map[string]*compiledHook
}

type compiledHook struct {
	desc   state.HookDescriptor
	re     *regexp2.Regexp
	global bool
}

// New returns an engine with an empty session cache.
func New(cfg Config) *Engine {
	timeout := cfg.MatchTimeout
	if timeout <= 0 {
		timeout = DefaultMatchTimeout
	}
	return &Engine{
		store:    cfg.Store,
		invoke:   cfg.Invoke,
		selfName: cfg.SelfName,
		timeout:  timeout,
		log:      cfg.Logger,
		compiled: map[string]map[string]*compiledHook{},
	}
}

// Compile builds a matcher from a pattern and JavaScript style flags
// (g, i, m, s, u). It reports whether the pattern is global.
func Compile(pattern, flags string, timeout time.Duration) (*regexp2.Regexp, bool, error) {
	opts := regexp2.RegexOptions(regexp2.ECMAScript)
	global := false
	for _, f := range flags {
		switch f {
		case 'g':
			global = true
		case 'i':
			opts |= regexp2.IgnoreCase
		case 'm':
			opts |= regexp2.Multiline
		case 's':
			opts |= regexp2.Singleline
		case 'u':
			opts |= regexp2.Unicode
		default:
			return nil, false, fmt.Errorf("%w: unknown flag %q", ErrInvalidPattern, f)
		}
	}
	re, err := regexp2.Compile(pattern, opts)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrInvalidPattern, err)
	}
	re.MatchTimeout = timeout
	return re, global, nil
}

// Register persists a hook and activates it. It returns false if the guild
// already has a hook with the same pattern. Invalid patterns are rejected
// before anything is stored.
func (e *Engine) Register(guildID string, d state.HookDescriptor) (bool, error) {
	if d.Args == nil {
		d.Args = []string{}
	}
	re, global, err := Compile(d.Pattern, d.Flags, e.timeout)
	if err != nil {
		return false, err
	}
	ok, err := e.store.AddHook(guildID, d)
	if err != nil || !ok {
		return false, err
	}
	e.cache(guildID)[d.Pattern] = &compiledHook{desc: d, re: re, global: global}
	e.log.Info().Str("guild", guildID).Str("pattern", d.Pattern).Str("command", d.Command).Msg("hook set")
	return true, nil
}

// Unregister removes a hook from durable and session state. Unknown hooks
// are ignored.
func (e *Engine) Unregister(guildID, pattern string) {
	e.store.RemoveHook(guildID, pattern)
	if g, ok := e.compiled[guildID]; ok {
		delete(g, pattern)
	}
	e.log.Info().Str("guild", guildID).Str("pattern", pattern).Msg("hook cleared")
}

// ReviveAll compiles every stored hook of the given guilds. A hook that no
// longer compiles is logged and skipped.
func (e *Engine) ReviveAll(guildIDs []string) int {
	n := 0
	for _, guildID := range guildIDs {
		for pattern, d := range e.store.Hooks(guildID) {
			re, global, err := Compile(d.Pattern, d.Flags, e.timeout)
			if err != nil {
				e.log.Error().Err(err).Str("guild", guildID).Str("pattern", pattern).Msg("skipping hook")
				continue
			}
			e.cache(guildID)[pattern] = &compiledHook{desc: d, re: re, global: global}
			n++
		}
	}
	e.log.Info().Int("count", n).Msg("hooks revived")
	return n
}

// DropGuild forgets the compiled hooks of a guild.
func (e *Engine) DropGuild(guildID string) {
	delete(e.compiled, guildID)
}

// Active returns the number of compiled hooks for a guild.
func (e *Engine) Active(guildID string) int {
	return len(e.compiled[guildID])
}

func (e *Engine) cache(guildID string) map[string]*compiledHook {
	g, ok := e.compiled[guildID]
	if !ok {
		g = map[string]*compiledHook{}
		e.compiled[guildID] = g
	}
	return g
}

// effective returns dynamic hooks overlaid with stored ones, in key order.
func (e *Engine) effective(ctx context.Context, guildID string, cfg config.GuildConfig) []*compiledHook {
	set := map[string]*compiledHook{}
	for k, h := range e.dynamic(ctx, guildID, cfg) {
		set[k] = h
	}
	for k, h := range e.compiled[guildID] {
		set[k] = h
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]*compiledHook, len(keys))
	for i, k := range keys {
		out[i] = set[k]
	}
	return out
}

// dynamic builds the hooks that exist only by configuration: while passive
// responses are on, the bot answers to its own name.
func (e *Engine) dynamic(ctx context.Context, guildID string, cfg config.GuildConfig) map[string]*compiledHook {
	if !cfg.RandomMarkov || e.selfName == nil || cfg.PassiveCommand == "" {
		return nil
	}
	name := e.selfName(ctx, guildID)
	if name == "" {
		return nil
	}
	pattern := "^(.*" + regexp2.Escape(name) + ".*)$"
	re, global, err := Compile(pattern, "gi", e.timeout)
	if err != nil {
		e.log.Warn().Err(err).Str("name", name).Msg("cannot build name hook")
		return nil
	}
	return map[string]*compiledHook{
		pattern: {
			desc:   state.HookDescriptor{Pattern: pattern, Flags: "gi", Command: cfg.PassiveCommand, Args: []string{}},
			re:     re,
			global: global,
		},
	}
}

// Match runs every hook of the message's guild and reports whether at least
// one fired. At most cfg.MaxHooksPerMessage matches are processed for the
// whole hook set, and a pattern without the g flag fires at most once.
func (e *Engine) Match(ctx context.Context, msg *chat.Message, cfg config.GuildConfig) bool {
	budget := cfg.MaxHooksPerMessage
	fired := false

	for _, h := range e.effective(ctx, msg.GuildID, cfg) {
		if budget <= 0 {
			break
		}
		m, err := h.re.FindStringMatch(msg.Content)
		for m != nil && budget > 0 {
			budget--
			fired = true
			e.invoke(ctx, msg, h.desc.Command, hookArgs(h.desc.Args, m))
			if !h.global {
				break
			}
			m, err = h.re.FindNextMatch(m)
		}
		if err != nil {
			e.log.Warn().Err(err).Str("guild", msg.GuildID).Str("pattern", h.desc.Pattern).Msg("hook match aborted")
		}
	}

	if fired {
		e.log.Debug().Str("guild", msg.GuildID).Int("used", cfg.MaxHooksPerMessage-budget).Msg("hooks fired")
	}
	return fired
}

// hookArgs appends the words of every non-empty capture group to the
// stored args.
func hookArgs(stored []string, m *regexp2.Match) []string {
	args := append([]string{}, stored...)
	groups := m.Groups()
	for _, g := range groups[1:] {
		if len(g.Captures) == 0 {
			continue
		}
		args = append(args, strings.Fields(g.String())...)
	}
	return args
}
