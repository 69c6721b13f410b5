package chat

// Event is anything the platform delivers to the event loop.
type Event interface {
	isEvent()
}

// MessageReceived is a new message in any channel the bot can read.
type MessageReceived struct {
	Message *Message
}

// ScopeJoined is emitted when the bot is added to a guild, or when a guild
// becomes available again.
type ScopeJoined struct {
	GuildID     string
	Name        string
	MemberCount int
}

// ScopeLeft is emitted when the bot is removed from a guild.
type ScopeLeft struct {
	GuildID string
}

// ChannelCreated is a new channel, either in a guild or a DM.
type ChannelCreated struct {
	ChannelID string
	GuildID   string
}

// ChannelDeleted is a removed channel.
type ChannelDeleted struct {
	ChannelID string
	GuildID   string
}

// Ready is emitted once the session is established.
type Ready struct {
	SelfID   string
	Guilds   []string
	Channels []string
}

func (MessageReceived) isEvent() {}
func (ScopeJoined) isEvent()     {}
func (ScopeLeft) isEvent()       {}
func (ChannelCreated) isEvent()  {}
func (ChannelDeleted) isEvent()  {}
func (Ready) isEvent()           {}

// Source delivers platform events. Open connects and starts delivering to
// sink; Close disconnects.
type Source interface {
	Open(sink func(Event)) error
	Close() error
}
