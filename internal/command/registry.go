package command

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

var (
	// ErrUnknownCommand is returned by Invoke for names that are not registered.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrBadSignature is returned by a Source when a command does not expose
	// the expected call shape.
	ErrBadSignature = errors.New("command does not expose the expected signature")
)

// ReloadName is the command that is always loaded first.
const ReloadName = "reload"

// Registry maps command names to commands. It is rebuilt wholesale on
// every reload.
type Registry struct {
	mu       sync.RWMutex
	source   Source
	commands map[string]Command
	log      zerolog.Logger
}

// NewRegistry returns an empty registry that loads from src.
func NewRegistry(src Source, log zerolog.Logger) *Registry {
	return &Registry{
		source:   src,
		commands: map[string]Command{},
		log:      log,
	}
}

// NameFromID derives a command name from a source identifier: the base
// name without its type suffix, lower-cased.
func NameFromID(id string) string {
	base := filepath.Base(id)
	if i := strings.LastIndex(base, "."); i > 0 {
		base = base[:i]
	}
	return strings.ToLower(base)
}

// ReloadAll lists the source and reloads everything it offers. A source
// that fails to list is reported in the error while the commands of the
// other sources are still loaded.
func (r *Registry) ReloadAll() (int, error) {
	ids, err := r.source.List()
	if err != nil {
		r.log.Error().Err(err).Int("listed", len(ids)).Msg("failed to list some commands")
		err = fmt.Errorf("list commands: %w", err)
	}
	return r.Reload(ids), err
}

// Reload replaces the registry with the commands loaded from ids and
// returns how many were registered. A command that fails to load is logged
// and skipped. The reload command is loaded before all others.
func (r *Registry) Reload(ids []string) int {
	ordered := make([]string, 0, len(ids))
	var rest []string
	for _, id := range ids {
		if NameFromID(id) == ReloadName {
			ordered = append(ordered, id)
		} else {
			rest = append(rest, id)
		}
	}
	ordered = append(ordered, rest...)

	next := make(map[string]Command, len(ordered))
	for _, id := range ordered {
		name := NameFromID(id)
		if name == "" {
			continue
		}
		cmd, err := r.source.Load(id)
		if err != nil {
			r.log.Error().Err(err).Str("id", id).Msg("failed to load command")
			continue
		}
		if _, dup := next[name]; dup {
			r.log.Warn().Str("id", id).Str("command", name).Msg("command name loaded twice, keeping the last one")
		}
		next[name] = cmd
		r.log.Debug().Str("id", id).Str("command", name).Msg("loaded command")
	}

	r.mu.Lock()
	r.commands = next
	r.mu.Unlock()

	r.log.Info().Int("count", len(next)).Int("listed", len(ids)).Msg("commands loaded")
	return len(next)
}

// Invoke runs the named command.
func (r *Registry) Invoke(name string, args []string, c *Context) (*Response, error) {
	cmd, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}
	return cmd.Run(args, c)
}

// Lookup returns the command registered under name.
func (r *Registry) Lookup(name string) (Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.commands[strings.ToLower(name)]
	return cmd, ok
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.Lookup(name)
	return ok
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.commands))
	for n := range r.commands {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// All returns a copy of the registry contents.
func (r *Registry) All() map[string]Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Command, len(r.commands))
	for n, c := range r.commands {
		out[n] = c
	}
	return out
}
