package lifecycle

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/keshon/flake/internal/chat"
	"github.com/keshon/flake/internal/state"
)

// PurgeGuildTask is the internal timer that deletes the data of a guild
// the bot has left.
const PurgeGuildTask = "purge_guild"

// initGuild makes sure a guild has memory and a data directory, and cancels
// a pending deletion.
func (c *Controller) initGuild(guildID string) {
	if c.store.EnsureScope(state.Guilds, guildID) {
		c.guildLog.Debug().Str("guild", guildID).Msg("initialized guild memory")
	}
	if err := os.MkdirAll(c.cfg.GuildDir(guildID), 0o755); err != nil {
		c.guildLog.Error().Err(err).Str("guild", guildID).Msg("cannot create guild directory")
	}

	v, ok := c.store.ScopeValue(state.Guilds, guildID, state.KeyQueuedDeletion)
	if !ok {
		return
	}
	if id, isID := v.(string); isID {
		c.scheduler.Cancel(id)
	}
	c.store.DeleteScopeValue(state.Guilds, guildID, state.KeyQueuedDeletion)
	c.guildLog.Info().Str("guild", guildID).Msg("guild data deletion cancelled")
}

func (c *Controller) onScopeJoined(ev chat.ScopeJoined) {
	c.initGuild(ev.GuildID)
	c.guildLog.Info().
		Str("guild", ev.GuildID).
		Str("name", ev.Name).
		Int("members", ev.MemberCount).
		Msg("joined guild")
}

func (c *Controller) onScopeLeft(ctx context.Context, ev chat.ScopeLeft) {
	if v, ok := c.store.ScopeValue(state.Guilds, ev.GuildID, state.KeyQueuedDeletion); ok {
		if id, isID := v.(string); isID && c.store.HasTimer(id) {
			c.guildLog.Debug().Str("guild", ev.GuildID).Str("timer", id).Msg("guild data deletion already queued")
			return
		}
	}

	target := state.Target{Kind: state.TargetInternal, Name: PurgeGuildTask, Args: ev.GuildID}
	id, err := c.scheduler.Schedule(ctx, target, c.cfg.GuildDataTimeout, nil)
	if err != nil {
		c.guildLog.Error().Err(err).Str("guild", ev.GuildID).Msg("cannot queue guild data deletion")
		return
	}
	// A zero timeout has already purged the guild.
	if !c.store.HasTimer(id) {
		return
	}
	if err := c.store.SetScopeValue(state.Guilds, ev.GuildID, state.KeyQueuedDeletion, id); err != nil {
		c.guildLog.Error().Err(err).Str("guild", ev.GuildID).Msg("cannot record guild data deletion")
	}
	c.guildLog.Info().
		Str("guild", ev.GuildID).
		Str("deletion", humanize.Time(time.Now().Add(c.cfg.GuildDataTimeout))).
		Msg("removed from guild, data will be deleted unless it is rejoined")
}

func (c *Controller) purgeGuild(ctx context.Context, args any) error {
	guildID, ok := args.(string)
	if !ok || guildID == "" {
		return fmt.Errorf("purge guild: bad argument %v", args)
	}
	if err := os.RemoveAll(c.cfg.GuildDir(guildID)); err != nil {
		return fmt.Errorf("purge guild %s: %w", guildID, err)
	}
	c.store.DeleteScope(state.Guilds, guildID)
	c.hooks.DropGuild(guildID)
	c.dispatcher.ForgetGuild(guildID)
	c.guildLog.Info().Str("guild", guildID).Msg("guild data deleted")
	return nil
}
