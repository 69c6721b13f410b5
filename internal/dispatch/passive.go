package dispatch

import (
	"context"
	"strings"

	"github.com/keshon/flake/internal/chat"
	"github.com/keshon/flake/internal/config"
)

// passiveCounter is the session-only state of the random trigger of a guild.
type passiveCounter struct {
	sinceLast int
	chance    float64
}

// maybePassive runs the passive command at random. Nothing happens until
// MarkovMinMessages messages went by; after that every miss raises the
// chance by MarkovChanceIncrease until the trigger hits.
func (d *Dispatcher) maybePassive(ctx context.Context, msg *chat.Message, cfg config.GuildConfig) {
	p, ok := d.passive[msg.GuildID]
	if !ok {
		p = &passiveCounter{chance: cfg.MarkovChance}
		d.passive[msg.GuildID] = p
	}

	if p.sinceLast < cfg.MarkovMinMessages {
		p.sinceLast++
		return
	}
	if d.rand()*100 <= p.chance {
		p.sinceLast = 0
		p.chance = cfg.MarkovChance
		d.dispatch(ctx, strings.ToLower(cfg.PassiveCommand), strings.Fields(msg.Content), msg, cfg, false)
		return
	}
	p.chance += cfg.MarkovChanceIncrease
}

// PassiveState reports the random trigger counters of a guild.
func (d *Dispatcher) PassiveState(guildID string) (sinceLast int, chance float64, ok bool) {
	p, ok := d.passive[guildID]
	if !ok {
		return 0, 0, false
	}
	return p.sinceLast, p.chance, true
}

// ForgetGuild drops the session-only state of a guild.
func (d *Dispatcher) ForgetGuild(guildID string) {
	delete(d.passive, guildID)
	if d.corpus != nil {
		d.corpus.Drop(guildID)
	}
}
