// Package command holds the command registry, the response protocol that
// every command speaks, and the loaders that produce commands.
package command

import (
	"context"
	"time"

	"github.com/keshon/flake/internal/chat"
	"github.com/keshon/flake/internal/config"
	"github.com/keshon/flake/internal/state"
)

// Command is a named callable. The registry keys commands by the name
// derived from their source identifier, not by Name.
type Command interface {
	Name() string
	Description() string
	Category() string
	Run(args []string, c *Context) (*Response, error)
}

// StateReader is the read access commands get to the global state.
type StateReader interface {
	Read() map[string]any
	Scope(kind state.ScopeKind, id string) (map[string]any, bool)
}

// Context is what a command sees when it runs.
type Context struct {
	Ctx     context.Context
	Name    string
	Hook    bool
	Message *chat.Message
	Config  config.GuildConfig
	State   StateReader
	Core    Core
}

// Core is the set of entry points the bot exposes to commands.
type Core interface {
	// CallCommand dispatches another command with full response handling.
	CallCommand(ctx context.Context, name string, args []string, msg *chat.Message)
	HasCommand(name string) bool
	Commands() map[string]Command

	SetPersistentTimeout(ctx context.Context, target state.Target, delay time.Duration, origin *chat.Message) (string, error)
	ClearPersistentTimeout(id string)
	PendingTimers() map[string]state.TimerRecord

	SetHook(guildID string, d state.HookDescriptor) (bool, error)
	ClearHook(guildID, pattern string)
	Hooks(guildID string) map[string]state.HookDescriptor

	IsOwner(userID string) bool
	DisplayName(ctx context.Context, userID, guildID string) string
	SetPresence(ctx context.Context, p state.Presence) error
	Generate(guildID string, seed []string, maxWords int) string
}

// GuildID returns the guild of the triggering message, if any.
func (c *Context) GuildID() string {
	if c.Message == nil {
		return ""
	}
	return c.Message.GuildID
}

// AuthorID returns the author of the triggering message, if any.
func (c *Context) AuthorID() string {
	if c.Message == nil {
		return ""
	}
	return c.Message.AuthorID
}
