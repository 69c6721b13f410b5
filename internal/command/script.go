package command

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/keshon/flake/internal/state"
)

// ScriptSuffix marks identifiers served by ScriptSource.
const ScriptSuffix = ".go"

// ScriptFunc is the signature a script command must export as main.Call.
type ScriptFunc = func(args []string, info map[string]interface{}) (map[string]interface{}, error)

// ScriptSource loads command files from a directory and interprets them
// with yaegi. Each Load uses a fresh interpreter so edits take effect on the
// next reload.
type ScriptSource struct {
	Dir string
}

func (s ScriptSource) List() ([]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read command dir: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ScriptSuffix) || strings.HasSuffix(e.Name(), "_test.go") {
			continue
		}
		ids = append(ids, e.Name())
	}
	sort.Strings(ids)
	return ids, nil
}

func (s ScriptSource) Owns(id string) bool {
	return strings.HasSuffix(id, ScriptSuffix)
}

func (s ScriptSource) Load(id string) (Command, error) {
	path := filepath.Join(s.Dir, filepath.Base(id))
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script %s: %w", id, err)
	}

	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("load stdlib symbols: %w", err)
	}
	if _, err := i.Eval(string(src)); err != nil {
		return nil, fmt.Errorf("evaluate %s: %w", id, err)
	}
	v, err := i.Eval("main.Call")
	if err != nil {
		return nil, fmt.Errorf("%s: %w: no main.Call", id, ErrBadSignature)
	}
	fn, ok := v.Interface().(ScriptFunc)
	if !ok {
		return nil, fmt.Errorf("%s: %w: main.Call is %s", id, ErrBadSignature, v.Type())
	}

	return &scriptCommand{name: NameFromID(id), file: filepath.Base(id), call: fn}, nil
}

type scriptCommand struct {
	name string
	file string
	call ScriptFunc
}

func (s *scriptCommand) Name() string        { return s.name }
func (s *scriptCommand) Description() string { return "script command (" + s.file + ")" }
func (s *scriptCommand) Category() string    { return "Scripts" }

func (s *scriptCommand) Run(args []string, c *Context) (*Response, error) {
	out, err := s.call(args, scriptInfo(c))
	if err != nil {
		return nil, err
	}
	return ResponseFromMap(out)
}

// scriptInfo exposes the context to interpreted code as plain values and
// native callbacks.
func scriptInfo(c *Context) map[string]interface{} {
	info := map[string]interface{}{
		"name": c.Name,
		"hook": c.Hook,
	}
	if m := c.Message; m != nil {
		info["message"] = map[string]interface{}{
			"id":         m.ID,
			"channel_id": m.ChannelID,
			"guild_id":   m.GuildID,
			"author_id":  m.AuthorID,
			"author_tag": m.AuthorTag,
			"content":    m.Content,
			"public":     m.Public,
		}
	}
	var cfg map[string]interface{}
	if data, err := json.Marshal(c.Config); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}
	info["config"] = cfg
	if c.State != nil {
		info["memory"] = c.State.Read()
	}

	core := c.Core
	if core == nil {
		return info
	}
	info["call_command"] = func(name string, args []string) {
		core.CallCommand(c.Ctx, name, args, c.Message)
	}
	info["has_command"] = core.HasCommand
	info["set_timeout"] = func(name string, args []string, delayMs int64) (string, error) {
		return core.SetPersistentTimeout(
			c.Ctx,
			state.Target{Kind: state.TargetCommand, Name: name, Args: args},
			time.Duration(delayMs)*time.Millisecond,
			c.Message,
		)
	}
	info["clear_timeout"] = core.ClearPersistentTimeout
	info["set_hook"] = func(pattern, flags, name string, args []string) (bool, error) {
		return core.SetHook(c.GuildID(), state.HookDescriptor{Pattern: pattern, Flags: flags, Command: name, Args: args})
	}
	info["clear_hook"] = func(pattern string) {
		core.ClearHook(c.GuildID(), pattern)
	}
	return info
}
