package dispatch

import (
	"fmt"
	"strings"
)

// Fault is a command that returned an error or panicked.
type Fault struct {
	Command string
	Args    []string
	Cause   error
	Stack   []byte
}

func (f *Fault) Error() string {
	return fmt.Sprintf("command `%s` failed: %v", strings.TrimSpace(f.Command+" "+strings.Join(f.Args, " ")), f.Cause)
}

func (f *Fault) Unwrap() error { return f.Cause }
