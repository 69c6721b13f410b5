package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/flake/internal/chat"
	"github.com/keshon/flake/pkg/retrylimit"
)

// maxMessageLength is Discord's limit on message content.
const maxMessageLength = 2000

// StatusCode returns the HTTP status of a discordgo REST error, or 0.
func StatusCode(err error) int {
	var rest *discordgo.RESTError
	if errors.As(err, &rest) && rest.Response != nil {
		return rest.Response.StatusCode
	}
	return 0
}

func isNotFound(err error) bool {
	return StatusCode(err) == http.StatusNotFound
}

func (b *Bot) do(ctx context.Context, fn func() error) error {
	return retrylimit.Do(ctx, b.limiter, b.retry, fn)
}

// SendMessage posts text to a channel. Text beyond Discord's limit is split
// over several messages; the options go with the first one.
func (b *Bot) SendMessage(ctx context.Context, channelID, text string, opts *chat.SendOptions) error {
	for i, part := range splitMessage(text, maxMessageLength) {
		send := &discordgo.MessageSend{Content: part}
		if i == 0 {
			applyOptions(send, opts)
		}
		if send.Content == "" && len(send.Embeds) == 0 {
			continue
		}
		err := b.do(ctx, func() error {
			_, err := b.dg.ChannelMessageSendComplex(channelID, send, discordgo.WithContext(ctx))
			return err
		})
		if err != nil {
			return fmt.Errorf("send to channel %s: %w", channelID, err)
		}
	}
	return nil
}

// SendDirect opens a DM channel with userID and posts text there.
func (b *Bot) SendDirect(ctx context.Context, userID, text string, opts *chat.SendOptions) error {
	var ch *discordgo.Channel
	err := b.do(ctx, func() error {
		var err error
		ch, err = b.dg.UserChannelCreate(userID, discordgo.WithContext(ctx))
		return err
	})
	if err != nil {
		return fmt.Errorf("open direct channel with %s: %w", userID, err)
	}
	return b.SendMessage(ctx, ch.ID, text, opts)
}

// FetchChannel looks the channel up in the state cache, then over REST.
func (b *Bot) FetchChannel(ctx context.Context, channelID string) (*chat.Channel, error) {
	if b.dg.State != nil {
		if ch, err := b.dg.State.Channel(channelID); err == nil && ch != nil {
			return toChannel(ch), nil
		}
	}
	var ch *discordgo.Channel
	err := b.do(ctx, func() error {
		var err error
		ch, err = b.dg.Channel(channelID, discordgo.WithContext(ctx))
		return err
	})
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch channel %s: %w", channelID, err)
	}
	return toChannel(ch), nil
}

// FetchMessage loads a message over REST.
func (b *Bot) FetchMessage(ctx context.Context, channelID, messageID string) (*chat.Message, error) {
	var m *discordgo.Message
	err := b.do(ctx, func() error {
		var err error
		m, err = b.dg.ChannelMessage(channelID, messageID, discordgo.WithContext(ctx))
		return err
	})
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch message %s/%s: %w", channelID, messageID, err)
	}
	if m.ChannelID == "" {
		m.ChannelID = channelID
	}
	if m.GuildID == "" {
		if ch, err := b.FetchChannel(ctx, channelID); err == nil && ch != nil {
			m.GuildID = ch.GuildID
		}
	}
	return toMessage(m, b.isPublic(channelID, m.GuildID)), nil
}

// SetPresence sets the bot's activity. kind is one of PLAYING, STREAMING,
// LISTENING, WATCHING or COMPETING; anything else is treated as PLAYING.
func (b *Bot) SetPresence(ctx context.Context, text, kind string) error {
	err := b.dg.UpdateStatusComplex(discordgo.UpdateStatusData{
		Activities: []*discordgo.Activity{{Name: text, Type: activityType(kind)}},
		Status:     string(discordgo.StatusOnline),
	})
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	return nil
}

// DisplayName is the member's nickname in guildID, or the user's name.
func (b *Bot) DisplayName(ctx context.Context, userID, guildID string) (string, error) {
	if guildID != "" {
		if b.dg.State != nil {
			if m, err := b.dg.State.Member(guildID, userID); err == nil && m.User != nil {
				return m.DisplayName(), nil
			}
		}
		m, err := b.dg.GuildMember(guildID, userID, discordgo.WithContext(ctx))
		if err == nil && m.User != nil {
			return m.DisplayName(), nil
		}
		if err != nil && !isNotFound(err) {
			return "", fmt.Errorf("fetch member %s: %w", userID, err)
		}
	}
	u, err := b.dg.User(userID, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("fetch user %s: %w", userID, err)
	}
	return u.DisplayName(), nil
}

func activityType(kind string) discordgo.ActivityType {
	switch strings.ToUpper(kind) {
	case "STREAMING":
		return discordgo.ActivityTypeStreaming
	case "LISTENING":
		return discordgo.ActivityTypeListening
	case "WATCHING":
		return discordgo.ActivityTypeWatching
	case "COMPETING":
		return discordgo.ActivityTypeCompeting
	default:
		return discordgo.ActivityTypeGame
	}
}

func applyOptions(send *discordgo.MessageSend, opts *chat.SendOptions) {
	if opts == nil {
		return
	}
	send.TTS = opts.TTS
	if e := opts.Embed; e != nil {
		embed := &discordgo.MessageEmbed{
			Title:       e.Title,
			Description: e.Description,
			URL:         e.URL,
			Color:       e.Color,
		}
		if e.Footer != "" {
			embed.Footer = &discordgo.MessageEmbedFooter{Text: e.Footer}
		}
		send.Embeds = []*discordgo.MessageEmbed{embed}
	}
}

// splitMessage cuts text into chunks of at most limit bytes, preferring
// line breaks. It always returns at least one chunk.
func splitMessage(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}
	var parts []string
	for len(text) > limit {
		cut := strings.LastIndex(text[:limit], "\n")
		if cut <= 0 {
			cut = limit
			for cut > 0 && !isRuneStart(text[cut]) {
				cut--
			}
		}
		parts = append(parts, text[:cut])
		text = strings.TrimPrefix(text[cut:], "\n")
	}
	if text != "" {
		parts = append(parts, text)
	}
	return parts
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
