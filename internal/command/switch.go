package command

import "strings"

// DefaultCase is the Switch key used when no other case matches.
const DefaultCase = "default"

// Switch routes on the first argument. The matched case receives the
// remaining arguments; the default case receives all of them.
type Switch map[string]RunFunc

func (s Switch) Run(args []string, c *Context) (*Response, error) {
	if len(args) > 0 {
		key := strings.ToLower(args[0])
		if fn, ok := s[key]; ok && key != DefaultCase {
			return fn(args[1:], c)
		}
	}
	if fn, ok := s[DefaultCase]; ok {
		return fn(args, c)
	}
	return nil, nil
}
