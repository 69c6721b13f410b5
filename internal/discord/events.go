package discord

import (
	"github.com/bwmarrin/discordgo"

	"github.com/keshon/flake/internal/chat"
)

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	b.log.Info().
		Str("user", r.User.Username).
		Int("guilds", len(r.Guilds)).
		Msg("discord session ready")
	b.emit(readyEvent(r))
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Message == nil || m.Author == nil {
		return
	}
	b.emit(chat.MessageReceived{Message: toMessage(m.Message, b.isPublic(m.ChannelID, m.GuildID))})
}

func (b *Bot) onGuildCreate(s *discordgo.Session, g *discordgo.GuildCreate) {
	if g.Guild == nil || g.Unavailable {
		return
	}
	b.log.Info().Str("guild", g.ID).Str("name", g.Name).Msg("guild available")
	b.emit(chat.ScopeJoined{GuildID: g.ID, Name: g.Name, MemberCount: g.MemberCount})
}

func (b *Bot) onGuildDelete(s *discordgo.Session, g *discordgo.GuildDelete) {
	// An unavailable guild is an outage, not a removal.
	if g.Guild == nil || g.Unavailable {
		return
	}
	b.log.Info().Str("guild", g.ID).Msg("removed from guild")
	b.emit(chat.ScopeLeft{GuildID: g.ID})
}

func (b *Bot) onChannelCreate(s *discordgo.Session, c *discordgo.ChannelCreate) {
	if c.Channel == nil {
		return
	}
	b.emit(chat.ChannelCreated{ChannelID: c.ID, GuildID: c.GuildID})
}

func (b *Bot) onChannelDelete(s *discordgo.Session, c *discordgo.ChannelDelete) {
	if c.Channel == nil {
		return
	}
	b.emit(chat.ChannelDeleted{ChannelID: c.ID, GuildID: c.GuildID})
}

// isPublic resolves the channel type from the state cache. Messages in
// channels the cache does not know are public only inside a guild.
func (b *Bot) isPublic(channelID, guildID string) bool {
	if b.dg.State != nil {
		if ch, err := b.dg.State.Channel(channelID); err == nil && ch != nil {
			return ch.Type == discordgo.ChannelTypeGuildText
		}
	}
	return guildID != ""
}

func readyEvent(r *discordgo.Ready) chat.Ready {
	ev := chat.Ready{}
	if r.User != nil {
		ev.SelfID = r.User.ID
	}
	for _, g := range r.Guilds {
		ev.Guilds = append(ev.Guilds, g.ID)
	}
	for _, c := range r.PrivateChannels {
		ev.Channels = append(ev.Channels, c.ID)
	}
	return ev
}

func toMessage(m *discordgo.Message, public bool) *chat.Message {
	msg := &chat.Message{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		GuildID:   m.GuildID,
		Content:   m.Content,
		Public:    public,
	}
	if m.Author != nil {
		msg.AuthorID = m.Author.ID
		msg.AuthorTag = m.Author.String()
		msg.AuthorBot = m.Author.Bot
	}
	return msg
}

func toChannel(c *discordgo.Channel) *chat.Channel {
	return &chat.Channel{
		ID:      c.ID,
		GuildID: c.GuildID,
		Name:    c.Name,
		Public:  c.Type == discordgo.ChannelTypeGuildText,
	}
}
