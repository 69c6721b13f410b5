package command

// Middleware wraps a command (permission check, logging).
type Middleware func(Command) Command

// Apply applies middlewares in order; the last in the list is the outermost.
func Apply(c Command, mws ...Middleware) Command {
	for _, mw := range mws {
		c = mw(c)
	}
	return c
}

// RunFunc is the Run method of a command as a value.
type RunFunc func(args []string, c *Context) (*Response, error)

// Wrapped replaces the Run of an inner command and delegates the rest.
type Wrapped struct {
	Inner   Command
	RunFunc RunFunc
}

func (w *Wrapped) Name() string        { return w.Inner.Name() }
func (w *Wrapped) Description() string { return w.Inner.Description() }
func (w *Wrapped) Category() string    { return w.Inner.Category() }

func (w *Wrapped) Run(args []string, c *Context) (*Response, error) {
	if w.RunFunc != nil {
		return w.RunFunc(args, c)
	}
	return w.Inner.Run(args, c)
}

// Unwrap returns the inner command.
func (w *Wrapped) Unwrap() Command { return w.Inner }

// Wrap returns a command that runs run instead of c.Run.
func Wrap(c Command, run RunFunc) Command {
	return &Wrapped{Inner: c, RunFunc: run}
}

// Root unwraps c until it reaches a command that is not a wrapper.
func Root(c Command) Command {
	for {
		w, ok := c.(interface{ Unwrap() Command })
		if !ok {
			return c
		}
		c = w.Unwrap()
	}
}

// WithOwnerOnly refuses to run the command for anyone but the bot owner.
func WithOwnerOnly() Middleware {
	return func(cmd Command) Command {
		return Wrap(cmd, func(args []string, c *Context) (*Response, error) {
			if c.Core == nil || !c.Core.IsOwner(c.AuthorID()) {
				return &Response{Msg: "Only my owner can use `" + cmd.Name() + "`.", Log: "refused " + cmd.Name() + " for " + c.AuthorID()}, nil
			}
			return cmd.Run(args, c)
		})
	}
}

// WithGuildOnly refuses to run the command outside of a guild.
func WithGuildOnly() Middleware {
	return func(cmd Command) Command {
		return Wrap(cmd, func(args []string, c *Context) (*Response, error) {
			if c.GuildID() == "" {
				return &Response{Msg: "This command only works in a server."}, nil
			}
			return cmd.Run(args, c)
		})
	}
}
