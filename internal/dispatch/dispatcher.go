// Package dispatch routes inbound messages to commands and hooks, applies
// command responses and contains command failures.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime/debug"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/keshon/flake/internal/chat"
	"github.com/keshon/flake/internal/command"
	"github.com/keshon/flake/internal/config"
	"github.com/keshon/flake/internal/logging"
	"github.com/keshon/flake/internal/markov"
	"github.com/keshon/flake/internal/state"
)

const (
	// UnknownCommandText answers names that are not registered.
	UnknownCommandText = "What did you just fracking say to my face matey?"
	apologyFormat      = "I've fallen and I can't get up. Command `%s` failed. xD"
)

// Timers is the persistent scheduler as seen by the dispatcher.
type Timers interface {
	Schedule(ctx context.Context, target state.Target, delay time.Duration, origin *chat.Message) (string, error)
	Cancel(id string)
	Pending() map[string]state.TimerRecord
}

// Hooks is the hook engine as seen by the dispatcher.
type Hooks interface {
	Register(guildID string, d state.HookDescriptor) (bool, error)
	Unregister(guildID, pattern string)
	Match(ctx context.Context, msg *chat.Message, cfg config.GuildConfig) bool
}

// Config holds the dependencies of the dispatcher.
type Config struct {
	Registry  *command.Registry
	Store     *state.Store
	Messenger chat.Messenger
	Corpus    *markov.Corpus
	Defaults  config.GuildConfig
	OwnerID   string
	// Signal receives lifecycle signals after a response was fully applied.
	Signal func(ctx context.Context, s command.Signal)
	// Rand returns a number in [0, 1). Defaults to math/rand.
	Rand   func() float64
	Logger zerolog.Logger
}

// Dispatcher is the orchestration layer between the platform and the
// commands. It implements command.Core.
type Dispatcher struct {
	registry  *command.Registry
	store     *state.Store
	messenger chat.Messenger
	corpus    *markov.Corpus
	defaults  config.GuildConfig
	ownerID   string
	signal    func(ctx context.Context, s command.Signal)
	rand      func() float64

	timers Timers
	hooks  Hooks

	passive map[string]*passiveCounter

	log     zerolog.Logger
	respLog zerolog.Logger
	memLog  zerolog.Logger
	mkLog   zerolog.Logger
}

// New returns a dispatcher. Timers and hooks are attached with Bind since
// both call back into the dispatcher.
func New(cfg Config) *Dispatcher {
	rnd := cfg.Rand
	if rnd == nil {
		rnd = rand.Float64
	}
	signal := cfg.Signal
	if signal == nil {
		signal = func(context.Context, command.Signal) {}
	}
	return &Dispatcher{
		registry:  cfg.Registry,
		store:     cfg.Store,
		messenger: cfg.Messenger,
		corpus:    cfg.Corpus,
		defaults:  cfg.Defaults,
		ownerID:   cfg.OwnerID,
		signal:    signal,
		rand:      rnd,
		passive:   map[string]*passiveCounter{},
		log:       logging.Section(cfg.Logger, "commands"),
		respLog:   logging.Section(cfg.Logger, "response"),
		memLog:    logging.Section(cfg.Logger, "memory"),
		mkLog:     logging.Section(cfg.Logger, "markov"),
	}
}

// Bind attaches the scheduler and the hook engine.
func (d *Dispatcher) Bind(timers Timers, hooks Hooks) {
	d.timers = timers
	d.hooks = hooks
}

// GuildConfig resolves the effective configuration of a guild. A broken
// override is logged and the defaults are used.
func (d *Dispatcher) GuildConfig(guildID string) config.GuildConfig {
	if guildID == "" {
		return d.defaults
	}
	cfg, err := d.defaults.Override(d.store.ConfigOverride(guildID))
	if err != nil {
		d.log.Warn().Err(err).Str("guild", guildID).Msg("ignoring config override")
	}
	return cfg
}

// HandleMessage routes one inbound message.
func (d *Dispatcher) HandleMessage(ctx context.Context, msg *chat.Message) {
	if msg == nil || msg.AuthorID == d.messenger.SelfID() {
		return
	}
	cfg := d.GuildConfig(msg.GuildID)
	if msg.AuthorBot && cfg.IgnoreBots {
		return
	}

	if strings.HasPrefix(msg.Content, cfg.Prefix) {
		fields := strings.Fields(msg.Content[len(cfg.Prefix):])
		if len(fields) == 0 {
			return
		}
		d.dispatch(ctx, strings.ToLower(fields[0]), fields[1:], msg, cfg, false)
		return
	}

	// hooks, passive responses and training only happen in guilds
	if msg.GuildID == "" {
		return
	}
	matched := false
	if cfg.AllowHooks && d.hooks != nil {
		matched = d.hooks.Match(ctx, msg, cfg)
	}
	if !matched && cfg.RandomMarkov {
		d.maybePassive(ctx, msg, cfg)
	}
	if !msg.AuthorBot {
		d.feed(msg)
	}
}

// DispatchCommand runs a command with full response handling.
func (d *Dispatcher) DispatchCommand(ctx context.Context, name string, args []string, msg *chat.Message) {
	d.dispatch(ctx, strings.ToLower(name), args, msg, d.GuildConfig(guildOf(msg)), false)
}

// HookInvoke is the hooks.Invoker of the dispatcher.
func (d *Dispatcher) HookInvoke(ctx context.Context, msg *chat.Message, name string, args []string) {
	d.dispatch(ctx, strings.ToLower(name), args, msg, d.GuildConfig(guildOf(msg)), true)
}

// RunCommand lets the scheduler run command timers.
func (d *Dispatcher) RunCommand(ctx context.Context, name string, args []string, msg *chat.Message) {
	d.DispatchCommand(ctx, name, args, msg)
}

func (d *Dispatcher) dispatch(ctx context.Context, name string, args []string, msg *chat.Message, cfg config.GuildConfig, hook bool) {
	c := &command.Context{
		Ctx:     ctx,
		Name:    name,
		Hook:    hook,
		Message: msg,
		Config:  cfg,
		State:   d.store,
		Core:    d,
	}

	resp, err := d.invoke(name, args, c)
	switch {
	case err == nil:
	case errors.Is(err, command.ErrUnknownCommand):
		d.respLog.Info().Str("command", name).Str("author", authorOf(msg)).Msg("unknown command")
		resp = &command.Response{Msg: UnknownCommandText}
	default:
		invocation := strings.TrimSpace(name + " " + strings.Join(args, " "))
		ev := d.log.Error().Err(err).Str("command", name).Strs("args", args).
			Str("author", authorOf(msg)).Str("guild", guildOf(msg)).Bool("hook", hook)
		var fault *Fault
		if errors.As(err, &fault) && fault.Stack != nil {
			ev = ev.Bytes("stack", fault.Stack)
		}
		ev.Msg("command failed")
		resp = &command.Response{Msg: fmt.Sprintf(apologyFormat, invocation)}
	}

	d.apply(ctx, name, msg, resp)
}

// invoke calls the registry and turns panics into a Fault.
func (d *Dispatcher) invoke(name string, args []string, c *command.Context) (resp *command.Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			resp = nil
			err = &Fault{Command: name, Args: args, Cause: fmt.Errorf("panic: %v", r), Stack: debug.Stack()}
		}
	}()
	resp, err = d.registry.Invoke(name, args, c)
	if err != nil && !errors.Is(err, command.ErrUnknownCommand) {
		err = &Fault{Command: name, Args: args, Cause: err}
	}
	return resp, err
}

// apply runs the response protocol: log, message, memory, then signals.
func (d *Dispatcher) apply(ctx context.Context, name string, msg *chat.Message, resp *command.Response) {
	if resp == nil {
		return
	}

	if resp.Log != "" {
		d.respLog.Info().Str("command", name).Msg(resp.Log)
	}

	if resp.Msg != "" || resp.MsgOptions != nil {
		d.send(ctx, msg, resp)
	}

	if resp.Memory != nil {
		patch, ok := resp.Memory.(map[string]any)
		if !ok {
			d.memLog.Warn().Str("command", name).Msg("memory patch is not a mapping, not committed")
		} else if err := d.store.MergeDurable(patch); err != nil {
			d.memLog.Error().Err(err).Str("command", name).Msg("memory patch rejected")
		}
	}

	for _, raw := range resp.Signals {
		sig, ok := command.ParseSignal(raw)
		if !ok {
			d.respLog.Debug().Str("command", name).Str("signal", raw).Msg("ignoring unknown signal")
			continue
		}
		d.respLog.Info().Str("command", name).Stringer("signal", sig).Msg("signal")
		d.signal(ctx, sig)
	}
}

func (d *Dispatcher) send(ctx context.Context, msg *chat.Message, resp *command.Response) {
	if msg == nil {
		d.respLog.Warn().Msg("response has a message but nowhere to send it")
		return
	}
	var err error
	if !msg.Public || resp.Private {
		err = d.messenger.SendDirect(ctx, msg.AuthorID, resp.Msg, resp.MsgOptions)
	} else {
		err = d.messenger.SendMessage(ctx, msg.ChannelID, resp.Msg, resp.MsgOptions)
	}
	if err != nil {
		d.respLog.Error().Err(err).Str("channel", msg.ChannelID).Str("author", msg.AuthorID).Msg("cannot send response")
	}
}

func (d *Dispatcher) feed(msg *chat.Message) {
	if d.corpus == nil {
		return
	}
	if err := d.corpus.Feed(msg.GuildID, msg.Content, d.messenger.SelfID()); err != nil {
		d.mkLog.Error().Err(err).Str("guild", msg.GuildID).Msg("cannot store corpus text")
	}
}

func guildOf(msg *chat.Message) string {
	if msg == nil {
		return ""
	}
	return msg.GuildID
}

func authorOf(msg *chat.Message) string {
	if msg == nil {
		return ""
	}
	if msg.AuthorTag != "" {
		return msg.AuthorTag
	}
	return msg.AuthorID
}
