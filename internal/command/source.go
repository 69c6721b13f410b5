package command

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Source lists command identifiers and loads them one by one.
type Source interface {
	List() ([]string, error)
	Load(id string) (Command, error)
}

var (
	builtinsMu sync.RWMutex
	builtins   = map[string]func() Command{}
)

// BuiltinSuffix marks identifiers served by BuiltinSource.
const BuiltinSuffix = ".builtin"

// RegisterBuiltin makes a compiled-in command available to BuiltinSource.
// It is meant to be called from init and panics on duplicate names.
func RegisterBuiltin(factory func() Command) {
	name := factory().Name()
	builtinsMu.Lock()
	defer builtinsMu.Unlock()
	if _, dup := builtins[name]; dup {
		panic("command: builtin registered twice: " + name)
	}
	builtins[name] = factory
}

// BuiltinSource serves the commands registered with RegisterBuiltin. Every
// Load builds a fresh instance.
type BuiltinSource struct{}

func (BuiltinSource) List() ([]string, error) {
	builtinsMu.RLock()
	defer builtinsMu.RUnlock()
	ids := make([]string, 0, len(builtins))
	for name := range builtins {
		ids = append(ids, name+BuiltinSuffix)
	}
	sort.Strings(ids)
	return ids, nil
}

func (BuiltinSource) Load(id string) (Command, error) {
	builtinsMu.RLock()
	factory, ok := builtins[NameFromID(id)]
	builtinsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("builtin %q: %w", id, ErrUnknownCommand)
	}
	return factory(), nil
}

// MultiSource chains sources. Later sources win on name clashes since the
// registry keeps the last command loaded under a name.
type MultiSource []Source

func (m MultiSource) List() ([]string, error) {
	var ids []string
	var errs []error
	for _, s := range m {
		l, err := s.List()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		ids = append(ids, l...)
	}
	return ids, errors.Join(errs...)
}

func (m MultiSource) Load(id string) (Command, error) {
	var errs []error
	for _, s := range m {
		if !owns(s, id) {
			continue
		}
		cmd, err := s.Load(id)
		if err == nil {
			return cmd, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil, fmt.Errorf("no source for %q: %w", id, ErrUnknownCommand)
	}
	return nil, errors.Join(errs...)
}

type owner interface {
	Owns(id string) bool
}

func owns(s Source, id string) bool {
	if o, ok := s.(owner); ok {
		return o.Owns(id)
	}
	return true
}

// Owns reports whether id is a builtin identifier.
func (BuiltinSource) Owns(id string) bool {
	return strings.HasSuffix(id, BuiltinSuffix)
}
