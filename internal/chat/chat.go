// Package chat describes what the bot needs from a chat platform: the
// events it consumes and the actions it invokes. internal/discord is the
// production implementation; tests use in-memory fakes.
package chat

import "context"

// Message is a platform message reduced to what the core uses.
type Message struct {
	ID        string
	ChannelID string
	GuildID   string // empty for direct messages
	AuthorID  string
	AuthorTag string
	Content   string
	AuthorBot bool
	// Public reports whether the channel is a guild text channel. Replies to
	// non-public messages always go to the author directly.
	Public bool
}

// Channel is a platform channel reduced to what the core uses.
type Channel struct {
	ID      string
	GuildID string
	Name    string
	Public  bool
}

// Embed is an optional rich body for outgoing messages.
type Embed struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	URL         string `json:"url,omitempty"`
	Color       int    `json:"color,omitempty"`
	Footer      string `json:"footer,omitempty"`
}

// SendOptions carries the rich-message options of a response.
type SendOptions struct {
	Embed *Embed `json:"embed,omitempty"`
	TTS   bool   `json:"tts,omitempty"`
}

// Messenger is the action side of the platform.
//
// FetchChannel and FetchMessage return (nil, nil) when the target no
// longer exists; errors are reserved for transport failures.
type Messenger interface {
	SelfID() string
	SendMessage(ctx context.Context, channelID, text string, opts *SendOptions) error
	SendDirect(ctx context.Context, userID, text string, opts *SendOptions) error
	FetchChannel(ctx context.Context, channelID string) (*Channel, error)
	FetchMessage(ctx context.Context, channelID, messageID string) (*Message, error)
	SetPresence(ctx context.Context, text, kind string) error
	DisplayName(ctx context.Context, userID, guildID string) (string, error)
}
