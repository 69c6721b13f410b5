// Package lifecycle owns the process: it boots the components in order,
// runs the single event loop every platform event and timer fire goes
// through, and acts on the reload, reset and quit signals.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/keshon/flake/datastore"
	"github.com/keshon/flake/internal/chat"
	"github.com/keshon/flake/internal/command"
	"github.com/keshon/flake/internal/config"
	"github.com/keshon/flake/internal/dispatch"
	"github.com/keshon/flake/internal/hooks"
	"github.com/keshon/flake/internal/logging"
	"github.com/keshon/flake/internal/markov"
	"github.com/keshon/flake/internal/scheduler"
	"github.com/keshon/flake/internal/state"
	"github.com/keshon/flake/pkg/jobmgr"
)

// ErrRestart is returned by Run after a reset signal. The caller is
// expected to start a fresh process.
var ErrRestart = errors.New("restart requested")

const queueSize = 256

// Options are the collaborators of a Controller.
type Options struct {
	Config    *config.Config
	Source    chat.Source
	Messenger chat.Messenger
	Commands  command.Source
	// Clock drives persistent timers. Defaults to the system clock.
	Clock clockwork.Clock
	// Rand drives the passive random trigger. Defaults to math/rand.
	Rand   func() float64
	Logger zerolog.Logger
}

type exit struct {
	err   error
	grace time.Duration
}

// Controller is the running bot.
type Controller struct {
	cfg       *config.Config
	source    chat.Source
	messenger chat.Messenger

	store      *state.Store
	registry   *command.Registry
	corpus     *markov.Corpus
	dispatcher *dispatch.Dispatcher
	scheduler  *scheduler.Scheduler
	hooks      *hooks.Engine

	queue chan func(ctx context.Context)
	done  chan struct{}

	// loop goroutine only
	ready     bool
	accepting bool
	exit      *exit

	log        zerolog.Logger
	bootLog    zerolog.Logger
	guildLog   zerolog.Logger
	commandLog zerolog.Logger
	memoryLog  zerolog.Logger
}

// New loads the durable state and the commands and wires the components
// together. Nothing is connected until Run.
func New(opts Options) (*Controller, error) {
	cfg := opts.Config
	log := opts.Logger
	bootLog := logging.Section(log, "boot")

	snap, err := datastore.New(datastore.Config{
		FilePath:    cfg.MemoryPath(),
		BackupCount: cfg.BackupCount,
		Logger:      logging.Section(log, "memory"),
	})
	if err != nil {
		return nil, fmt.Errorf("open memory: %w", err)
	}
	store := state.Open(snap, logging.Section(log, "memory"))

	registry := command.NewRegistry(opts.Commands, logging.Section(log, "commands"))
	n, err := registry.ReloadAll()
	if err != nil {
		bootLog.Error().Err(err).Msg("some command sources failed to list")
	}
	bootLog.Info().Int("commands", n).Msg("commands loaded")

	c := &Controller{
		cfg:        cfg,
		source:     opts.Source,
		messenger:  opts.Messenger,
		store:      store,
		registry:   registry,
		queue:      make(chan func(ctx context.Context), queueSize),
		done:       make(chan struct{}),
		log:        log,
		bootLog:    bootLog,
		guildLog:   logging.Section(log, "guild action"),
		commandLog: logging.Section(log, "commands"),
		memoryLog:  logging.Section(log, "memory"),
	}

	c.corpus = markov.NewCorpus(markov.Config{
		GuildsDir: cfg.GuildsDir,
		FileName:  cfg.MarkovFile,
		BasePath:  cfg.BaseMarkovData,
		Logger:    logging.Section(log, "markov"),
	})
	c.dispatcher = dispatch.New(dispatch.Config{
		Registry:  registry,
		Store:     store,
		Messenger: opts.Messenger,
		Corpus:    c.corpus,
		Defaults:  cfg.Guild,
		OwnerID:   cfg.OwnerID,
		Signal:    c.signal,
		Rand:      opts.Rand,
		Logger:    log,
	})
	c.scheduler = scheduler.New(scheduler.Config{
		Store:   store,
		Fetcher: opts.Messenger,
		Runner:  c.dispatcher,
		Clock:   opts.Clock,
		Post:    c.post,
		Logger:  logging.Section(log, "timers"),
	})
	c.hooks = hooks.New(hooks.Config{
		Store:    store,
		Invoke:   c.dispatcher.HookInvoke,
		SelfName: c.dispatcher.SelfName,
		Logger:   logging.Section(log, "hooks"),
	})
	c.dispatcher.Bind(c.scheduler, c.hooks)
	c.scheduler.RegisterInternal(PurgeGuildTask, c.purgeGuild)

	return c, nil
}

// Store is the durable state.
func (c *Controller) Store() *state.Store { return c.store }

// Dispatcher is the command dispatcher.
func (c *Controller) Dispatcher() *dispatch.Dispatcher { return c.dispatcher }

// Run connects to the platform and processes events until ctx is done or
// a signal ends the process. It returns ErrRestart after a reset.
func (c *Controller) Run(ctx context.Context) error {
	jobs := jobmgr.NewManager(ctx, logging.Section(c.log, "jobs"))
	c.startJobs(jobs)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		defer cancel()
		return c.loop(gctx)
	})
	g.Go(func() error {
		if err := c.source.Open(c.enqueue); err != nil {
			return fmt.Errorf("connect: %w", err)
		}
		<-gctx.Done()
		if err := c.source.Close(); err != nil {
			c.log.Warn().Err(err).Msg("closing the platform session")
		}
		return nil
	})
	err := g.Wait()

	c.shutdown(jobs)
	return err
}

func (c *Controller) startJobs(jobs *jobmgr.Manager) {
	_ = jobs.Start("autosave", func(ctx context.Context) error {
		return jobmgr.Every(ctx, c.cfg.SaveInterval, func(context.Context) { c.flush() })
	})
	if c.cfg.WatchCommands && c.cfg.CommandDir != "" {
		w := command.NewWatcher(c.cfg.CommandDir, command.DefaultDebounce, func() {
			c.post(func(ctx context.Context) { c.signal(ctx, command.SignalReload) })
		}, logging.Section(c.log, "commands"))
		_ = jobs.Start("command-watcher", w.Run)
	}
}

func (c *Controller) shutdown(jobs *jobmgr.Manager) {
	log := logging.Section(c.log, "shutdown")
	log.Info().Msg("cleaning up")
	jobs.StopAll()
	c.scheduler.Stop()
	c.flush()
	log.Info().Msg("done cleaning up")
}

func (c *Controller) loop(ctx context.Context) error {
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			return nil
		case task := <-c.queue:
			task(ctx)
		}

		if c.exit != nil {
			if c.exit.grace > 0 {
				t := time.NewTimer(c.exit.grace)
				select {
				case <-ctx.Done():
				case <-t.C:
				}
				t.Stop()
			}
			return c.exit.err
		}
	}
}

// post queues work for the loop goroutine. It is dropped once the loop
// has ended.
func (c *Controller) post(task func(ctx context.Context)) {
	select {
	case c.queue <- task:
	case <-c.done:
	}
}

func (c *Controller) enqueue(ev chat.Event) {
	c.post(func(ctx context.Context) { c.handle(ctx, ev) })
}

func (c *Controller) handle(ctx context.Context, ev chat.Event) {
	if r, ok := ev.(chat.Ready); ok {
		c.onReady(ctx, r)
		return
	}
	if !c.accepting {
		return
	}

	switch ev := ev.(type) {
	case chat.MessageReceived:
		c.dispatcher.HandleMessage(ctx, ev.Message)
	case chat.ScopeJoined:
		c.onScopeJoined(ev)
	case chat.ScopeLeft:
		c.onScopeLeft(ctx, ev)
	case chat.ChannelCreated:
		if ev.GuildID != "" {
			c.store.EnsureScope(state.Channels, ev.ChannelID)
			c.guildLog.Info().Str("channel", ev.ChannelID).Str("guild", ev.GuildID).Msg("entered channel")
		}
	case chat.ChannelDeleted:
		c.guildLog.Info().Str("channel", ev.ChannelID).Str("guild", ev.GuildID).Msg("removed from channel")
	}
}

func (c *Controller) onReady(ctx context.Context, r chat.Ready) {
	if c.exit != nil {
		return
	}
	for _, id := range r.Guilds {
		c.initGuild(id)
	}
	for _, id := range r.Channels {
		c.store.EnsureScope(state.Channels, id)
	}

	if p := c.store.Presence(); p.Text != "" {
		if err := c.messenger.SetPresence(ctx, p.Text, p.Kind); err != nil {
			c.bootLog.Warn().Err(err).Msg("cannot restore presence")
		}
	}

	if c.ready {
		c.bootLog.Info().Msg("session resumed")
		return
	}
	c.ready = true

	timers := c.scheduler.ReviveAll(ctx)
	hookCount := c.hooks.ReviveAll(c.store.ScopeIDs(state.Guilds))
	c.accepting = true

	c.bootLog.Info().
		Str("self", r.SelfID).
		Int("guilds", len(r.Guilds)).
		Int("timers", timers).
		Int("hooks", hookCount).
		Msg("bot has started")
}

// signal is called by the dispatcher once a response was fully applied.
func (c *Controller) signal(ctx context.Context, sig command.Signal) {
	switch sig {
	case command.SignalReload:
		n, err := c.registry.ReloadAll()
		if err != nil {
			c.commandLog.Warn().Err(err).Msg("some command sources failed to list")
		}
		c.commandLog.Info().Int("commands", n).Msg("commands reloaded")
	case command.SignalReset:
		c.accepting = false
		c.flush()
		c.exit = &exit{err: ErrRestart}
	case command.SignalQuit:
		c.accepting = false
		c.flush()
		c.exit = &exit{grace: c.cfg.QuitGrace}
	}
}

func (c *Controller) flush() {
	if err := c.store.Flush(); err != nil {
		c.memoryLog.Error().Err(err).Msg("cannot save memory")
	}
}
