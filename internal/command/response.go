package command

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/keshon/flake/internal/chat"
)

// Response is what a command returns. Every field is optional; a nil
// Response does nothing.
type Response struct {
	Log        string            `json:"log,omitempty"`
	Msg        string            `json:"msg,omitempty"`
	MsgOptions *chat.SendOptions `json:"msgOptions,omitempty"`
	Private    bool              `json:"private,omitempty"`
	// Memory is a deep-merge patch for the global state. Only mappings are
	// applied.
	Memory  any     `json:"memory,omitempty"`
	Signals Signals `json:"signals,omitempty"`
}

// Signals accepts either a single string or a list of strings.
type Signals []string

func (s *Signals) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		if one == "" {
			*s = nil
		} else {
			*s = Signals{one}
		}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("signals must be a string or a list of strings: %w", err)
	}
	*s = many
	return nil
}

// Signal is a lifecycle control request emitted by a command.
type Signal int

const (
	SignalReload Signal = iota + 1
	SignalReset
	SignalQuit
)

func (s Signal) String() string {
	switch s {
	case SignalReload:
		return "reload"
	case SignalReset:
		return "reset"
	case SignalQuit:
		return "quit"
	}
	return fmt.Sprintf("Signal(%d)", int(s))
}

// ParseSignal maps a signal name to its variant. Unknown names report false.
func ParseSignal(name string) (Signal, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "reload":
		return SignalReload, true
	case "reset":
		return SignalReset, true
	case "quit":
		return SignalQuit, true
	}
	return 0, false
}

// ResponseFromMap converts the loosely typed result of a script command.
func ResponseFromMap(m map[string]interface{}) (*Response, error) {
	if m == nil {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	var r Response
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &r, nil
}

// Reply is a shorthand for a plain message response.
func Reply(format string, a ...any) *Response {
	if len(a) == 0 {
		return &Response{Msg: format}
	}
	return &Response{Msg: fmt.Sprintf(format, a...)}
}
