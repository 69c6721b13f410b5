package state

import "time"

// ScopeKind names one of the per-scope maps of the global state.
type ScopeKind string

const (
	Guilds   ScopeKind = "guilds"
	Channels ScopeKind = "channels"
	Users    ScopeKind = "users"
)

// Top level keys of the durable document.
const (
	keyActivity = "activity"
	keyTimers   = "timers"
)

// Well-known keys inside a guild scope.
const (
	KeyHooks          = "hooks"
	KeyConfigOverride = "config_override"
	KeyQueuedDeletion = "queued_deletion"
)

// TargetKind selects how a scheduled target is executed.
type TargetKind string

const (
	TargetInternal TargetKind = "internal"
	TargetCommand  TargetKind = "command"
)

// Target names what a timer runs. Args must be plain JSON data.
type Target struct {
	Kind TargetKind `json:"kind"`
	Name string     `json:"name"`
	Args any        `json:"args,omitempty"`
}

// MessageRef is the addressable identity of a chat message. Live message
// objects are never persisted, only this pair.
type MessageRef struct {
	ChannelID string `json:"channel_id"`
	MessageID string `json:"message_id"`
}

// TimerRecord is a durable deferred execution.
type TimerRecord struct {
	Target Target      `json:"target"`
	Origin *MessageRef `json:"origin,omitempty"`
	FireAt int64       `json:"fire_at"` // unix milliseconds
}

// FireTime returns FireAt as a time.
func (r TimerRecord) FireTime() time.Time {
	return time.UnixMilli(r.FireAt)
}

// HookDescriptor is the durable form of a hook. Pattern is unique per guild.
type HookDescriptor struct {
	Pattern string   `json:"pattern"`
	Flags   string   `json:"flags"`
	Command string   `json:"command"`
	Args    []string `json:"args"`
}

// Presence is the activity shown under the bot's name.
type Presence struct {
	Text string `json:"string"`
	Kind string `json:"type"`
}
