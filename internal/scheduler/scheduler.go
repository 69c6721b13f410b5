// Package scheduler implements persistent timeouts: single-shot deferred
// executions that are stored in the state store, survive restarts and fire
// late rather than never.
//
// A timer is Scheduled while only its durable record exists, Armed once a
// countdown runs in this process, and gone after it fired or was cancelled.
// The record is removed after every fire attempt, so a timer runs at most
// once unless the process dies between running the target and removing
// the record.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/keshon/flake/internal/chat"
	"github.com/keshon/flake/internal/state"
)

// ErrMissingOrigin is returned when a command timer has no originating message.
var ErrMissingOrigin = errors.New("command timers need an originating message")

// InternalFunc is a function that internal timers can target. Args are the
// JSON form of what was scheduled.
type InternalFunc func(ctx context.Context, args any) error

// Runner executes command targets.
type Runner interface {
	HasCommand(name string) bool
	RunCommand(ctx context.Context, name string, args []string, msg *chat.Message)
}

// Fetcher rehydrates a stored message reference.
type Fetcher interface {
	FetchChannel(ctx context.Context, channelID string) (*chat.Channel, error)
	FetchMessage(ctx context.Context, channelID, messageID string) (*chat.Message, error)
}

// Config holds the dependencies of the scheduler.
type Config struct {
	Store   *state.Store
	Fetcher Fetcher
	Runner  Runner
	// Clock defaults to the wall clock.
	Clock clockwork.Clock
	// Post hands a fired countdown over to the event loop. When nil the
	// fire runs on the timer's goroutine.
	Post   func(task func(ctx context.Context))
	Logger zerolog.Logger
}

// Scheduler owns the armed countdowns of the current process.
type Scheduler struct {
	store   *state.Store
	fetcher Fetcher
	runner  Runner
	clock   clockwork.Clock
	post    func(task func(ctx context.Context))
	log     zerolog.Logger

	mu       sync.Mutex
	handles  map[string]clockwork.Timer
	internal map[string]InternalFunc
}

// New returns a scheduler with no armed timers.
func New(cfg Config) *Scheduler {
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	post := cfg.Post
	if post == nil {
		post = func(task func(ctx context.Context)) { task(context.Background()) }
	}
	return &Scheduler{
		store:    cfg.Store,
		fetcher:  cfg.Fetcher,
		runner:   cfg.Runner,
		clock:    clock,
		post:     post,
		log:      cfg.Logger,
		handles:  map[string]clockwork.Timer{},
		internal: map[string]InternalFunc{},
	}
}

// SetRunner sets the command runner after construction.
func (s *Scheduler) SetRunner(r Runner) {
	s.runner = r
}

// RegisterInternal makes fn available to internal timers under name.
func (s *Scheduler) RegisterInternal(name string, fn InternalFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.internal[name] = fn
}

// Schedule persists a timer that runs target after delay and arms it right
// away. Command targets need the message they were scheduled from; only
// its channel and message ids are stored.
func (s *Scheduler) Schedule(ctx context.Context, target state.Target, delay time.Duration, origin *chat.Message) (string, error) {
	if target.Kind != state.TargetInternal && target.Kind != state.TargetCommand {
		return "", fmt.Errorf("unknown timer target kind %q", target.Kind)
	}
	if target.Kind == state.TargetCommand && origin == nil {
		return "", ErrMissingOrigin
	}
	if delay < 0 {
		delay = 0
	}

	rec := state.TimerRecord{
		Target: target,
		FireAt: s.clock.Now().Add(delay).UnixMilli(),
	}
	if origin != nil {
		rec.Origin = &state.MessageRef{ChannelID: origin.ChannelID, MessageID: origin.ID}
	}

	id := s.store.NewTimerID()
	if err := s.store.PutTimer(id, rec); err != nil {
		return "", fmt.Errorf("schedule %s: %w", target.Name, err)
	}
	s.log.Info().Str("timer", id).Str("kind", string(target.Kind)).Str("target", target.Name).
		Str("due", humanize.Time(rec.FireTime())).Msg("timer scheduled")

	s.Revive(ctx, id)
	return id, nil
}

// Revive arms a stored timer, or runs it at once if it is already due.
func (s *Scheduler) Revive(ctx context.Context, id string) {
	rec, ok := s.store.Timer(id)
	if !ok {
		return
	}
	remaining := rec.FireTime().Sub(s.clock.Now())
	if remaining <= 0 {
		s.fire(ctx, id)
		return
	}

	s.mu.Lock()
	if old, ok := s.handles[id]; ok {
		old.Stop()
	}
	s.handles[id] = s.clock.AfterFunc(remaining, func() {
		s.post(func(ctx context.Context) { s.fire(ctx, id) })
	})
	s.mu.Unlock()
}

// ReviveAll revives every stored timer. Overdue timers run immediately.
func (s *Scheduler) ReviveAll(ctx context.Context) int {
	ids := s.store.TimerIDs()
	for _, id := range ids {
		s.Revive(ctx, id)
	}
	s.log.Info().Int("count", len(ids)).Msg("timers revived")
	return len(ids)
}

// Cancel disarms a timer and removes its record. Unknown ids are ignored.
func (s *Scheduler) Cancel(id string) {
	s.mu.Lock()
	if h, ok := s.handles[id]; ok {
		h.Stop()
		delete(s.handles, id)
	}
	s.mu.Unlock()
	if s.store.DeleteTimer(id) {
		s.log.Debug().Str("timer", id).Msg("timer cleared")
	}
}

// Stop disarms every countdown of this process. Durable records stay so the
// next boot picks them up.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, h := range s.handles {
		h.Stop()
		delete(s.handles, id)
	}
}

// Pending returns every stored timer.
func (s *Scheduler) Pending() map[string]state.TimerRecord {
	out := map[string]state.TimerRecord{}
	for _, id := range s.store.TimerIDs() {
		if rec, ok := s.store.Timer(id); ok {
			out[id] = rec
		}
	}
	return out
}

// Armed returns the number of countdowns running in this process.
func (s *Scheduler) Armed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}

func (s *Scheduler) fire(ctx context.Context, id string) {
	rec, ok := s.store.Timer(id)
	if !ok {
		s.mu.Lock()
		delete(s.handles, id)
		s.mu.Unlock()
		return
	}
	defer s.Cancel(id)

	log := s.log.With().Str("timer", id).Str("target", rec.Target.Name).Logger()
	log.Debug().Str("kind", string(rec.Target.Kind)).Msg("timer fired")

	switch rec.Target.Kind {
	case state.TargetInternal:
		s.runInternal(ctx, log, rec)
	case state.TargetCommand:
		s.runCommand(ctx, log, rec)
	default:
		log.Warn().Str("kind", string(rec.Target.Kind)).Msg("unknown timer kind, dropping")
	}
}

func (s *Scheduler) runInternal(ctx context.Context, log zerolog.Logger, rec state.TimerRecord) {
	s.mu.Lock()
	fn, ok := s.internal[rec.Target.Name]
	s.mu.Unlock()
	if !ok {
		log.Warn().Msg("unknown internal function, skipping")
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("internal timer panicked")
		}
	}()
	if err := fn(ctx, rec.Target.Args); err != nil {
		log.Error().Err(err).Msg("internal timer failed")
	}
}

func (s *Scheduler) runCommand(ctx context.Context, log zerolog.Logger, rec state.TimerRecord) {
	if s.runner == nil || !s.runner.HasCommand(rec.Target.Name) {
		log.Warn().Msg("unknown command, skipping")
		return
	}
	if rec.Origin == nil || s.fetcher == nil {
		log.Warn().Msg("command timer without origin, skipping")
		return
	}

	ch, err := s.fetcher.FetchChannel(ctx, rec.Origin.ChannelID)
	if err != nil {
		log.Error().Err(err).Str("channel", rec.Origin.ChannelID).Msg("cannot fetch channel, skipping")
		return
	}
	if ch == nil {
		log.Debug().Str("channel", rec.Origin.ChannelID).Msg("channel is gone, skipping")
		return
	}
	msg, err := s.fetcher.FetchMessage(ctx, rec.Origin.ChannelID, rec.Origin.MessageID)
	if err != nil {
		log.Error().Err(err).Str("message", rec.Origin.MessageID).Msg("cannot fetch message, skipping")
		return
	}
	if msg == nil {
		log.Debug().Str("message", rec.Origin.MessageID).Msg("message is gone, skipping")
		return
	}

	s.runner.RunCommand(ctx, rec.Target.Name, Strings(rec.Target.Args), msg)
}

// Strings converts stored timer args into command arguments.
func Strings(args any) []string {
	switch v := args.(type) {
	case nil:
		return nil
	case []string:
		return v
	case string:
		return []string{v}
	case []any:
		out := make([]string, len(v))
		for i, e := range v {
			if s, ok := e.(string); ok {
				out[i] = s
			} else {
				out[i] = fmt.Sprint(e)
			}
		}
		return out
	default:
		return []string{fmt.Sprint(v)}
	}
}
