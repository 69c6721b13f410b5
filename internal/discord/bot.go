// Package discord connects the bot to Discord. Bot implements both
// chat.Source and chat.Messenger on top of a discordgo session.
package discord

import (
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/keshon/flake/internal/chat"
	"github.com/keshon/flake/pkg/retrylimit"
)

// Bot is a Discord session.
type Bot struct {
	dg      *discordgo.Session
	log     zerolog.Logger
	limiter *retrylimit.AdaptiveLimiter
	retry   retrylimit.Config

	mu      sync.RWMutex
	sink    func(chat.Event)
	removes []func()
	open    bool
}

var (
	_ chat.Source    = (*Bot)(nil)
	_ chat.Messenger = (*Bot)(nil)
)

// New creates a session for token without connecting.
func New(token string, log zerolog.Logger) (*Bot, error) {
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentGuilds |
		discordgo.IntentGuildMembers |
		discordgo.IntentGuildMessages |
		discordgo.IntentDirectMessages |
		discordgo.IntentMessageContent

	retry := retrylimit.DefaultConfig()
	retry.Status = StatusCode
	retry.Logger = log

	return &Bot{
		dg:      dg,
		log:     log,
		limiter: retrylimit.NewAdaptiveLimiter(5, 1, 40, 1, 0.5),
		retry:   retry,
	}, nil
}

// Open registers the event handlers and connects. Events are passed to
// sink from discordgo's goroutines.
func (b *Bot) Open(sink func(chat.Event)) error {
	b.mu.Lock()
	b.sink = sink
	b.removes = append(b.removes,
		b.dg.AddHandler(b.onReady),
		b.dg.AddHandler(b.onMessageCreate),
		b.dg.AddHandler(b.onGuildCreate),
		b.dg.AddHandler(b.onGuildDelete),
		b.dg.AddHandler(b.onChannelCreate),
		b.dg.AddHandler(b.onChannelDelete),
	)
	b.open = true
	b.mu.Unlock()

	if err := b.dg.Open(); err != nil {
		return fmt.Errorf("failed to open Discord session: %w", err)
	}
	return nil
}

// Close removes the handlers and disconnects.
func (b *Bot) Close() error {
	b.mu.Lock()
	for _, remove := range b.removes {
		remove()
	}
	b.removes = nil
	b.sink = nil
	wasOpen := b.open
	b.open = false
	b.mu.Unlock()

	if !wasOpen {
		return nil
	}
	return b.dg.Close()
}

func (b *Bot) emit(ev chat.Event) {
	b.mu.RLock()
	sink := b.sink
	b.mu.RUnlock()
	if sink != nil {
		sink(ev)
	}
}

// SelfID is the bot's own user id, or "" before the session is ready.
func (b *Bot) SelfID() string {
	if b.dg.State == nil || b.dg.State.User == nil {
		return ""
	}
	return b.dg.State.User.ID
}
