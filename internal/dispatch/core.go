package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/keshon/flake/internal/chat"
	"github.com/keshon/flake/internal/command"
	"github.com/keshon/flake/internal/state"
)

var _ command.Core = (*Dispatcher)(nil)

var errNotBound = errors.New("dispatcher has no scheduler or hook engine attached")

func (d *Dispatcher) CallCommand(ctx context.Context, name string, args []string, msg *chat.Message) {
	d.DispatchCommand(ctx, name, args, msg)
}

func (d *Dispatcher) HasCommand(name string) bool {
	return d.registry.Has(name)
}

func (d *Dispatcher) Commands() map[string]command.Command {
	return d.registry.All()
}

func (d *Dispatcher) SetPersistentTimeout(ctx context.Context, target state.Target, delay time.Duration, origin *chat.Message) (string, error) {
	if d.timers == nil {
		return "", errNotBound
	}
	return d.timers.Schedule(ctx, target, delay, origin)
}

func (d *Dispatcher) ClearPersistentTimeout(id string) {
	if d.timers != nil {
		d.timers.Cancel(id)
	}
}

func (d *Dispatcher) PendingTimers() map[string]state.TimerRecord {
	if d.timers == nil {
		return nil
	}
	return d.timers.Pending()
}

func (d *Dispatcher) SetHook(guildID string, desc state.HookDescriptor) (bool, error) {
	if d.hooks == nil {
		return false, errNotBound
	}
	return d.hooks.Register(guildID, desc)
}

func (d *Dispatcher) ClearHook(guildID, pattern string) {
	if d.hooks != nil {
		d.hooks.Unregister(guildID, pattern)
	}
}

func (d *Dispatcher) Hooks(guildID string) map[string]state.HookDescriptor {
	return d.store.Hooks(guildID)
}

func (d *Dispatcher) IsOwner(userID string) bool {
	return d.ownerID != "" && userID == d.ownerID
}

// DisplayName returns the guild nickname of a user, falling back to the id.
func (d *Dispatcher) DisplayName(ctx context.Context, userID, guildID string) string {
	name, err := d.messenger.DisplayName(ctx, userID, guildID)
	if err != nil || name == "" {
		if err != nil {
			d.log.Debug().Err(err).Str("user", userID).Msg("cannot resolve display name")
		}
		return userID
	}
	return name
}

// SelfName is the hooks.NameResolver of the bot itself.
func (d *Dispatcher) SelfName(ctx context.Context, guildID string) string {
	self := d.messenger.SelfID()
	if self == "" {
		return ""
	}
	return d.DisplayName(ctx, self, guildID)
}

// SetPresence stores the activity and shows it.
func (d *Dispatcher) SetPresence(ctx context.Context, p state.Presence) error {
	d.store.SetPresence(p)
	return d.messenger.SetPresence(ctx, p.Text, p.Kind)
}

func (d *Dispatcher) Generate(guildID string, seed []string, maxWords int) string {
	if d.corpus == nil {
		return ""
	}
	cfg := d.GuildConfig(guildID)
	if maxWords <= 0 {
		maxWords = cfg.MarkovDefaultMaxWords
	}
	return d.corpus.Generate(guildID, seed, maxWords, cfg.MarkovMaxLength)
}
