package builtin

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/keshon/flake/internal/command"
	"github.com/keshon/flake/internal/state"
)

// maxReminder caps reminders at a year.
const maxReminder = 365 * 24 * time.Hour

func init() {
	command.RegisterBuiltin(func() command.Command { return &RemindCommand{} })
	command.RegisterBuiltin(func() command.Command { return command.Apply(&TimersCommand{}, command.WithOwnerOnly()) })
}

type RemindCommand struct{}

func (c *RemindCommand) Name() string { return "remind" }
func (c *RemindCommand) Description() string {
	return "Remind you later, even across restarts: `remind <duration> <text>` (e.g. `remind 1h30m stretch`)"
}
func (c *RemindCommand) Category() string { return categoryGeneral }

func (c *RemindCommand) Run(args []string, ctx *command.Context) (*command.Response, error) {
	if len(args) < 2 {
		return command.Reply("Usage: `%sremind <duration> <text>`", ctx.Config.Prefix), nil
	}
	delay, err := time.ParseDuration(args[0])
	if err != nil || delay <= 0 || delay > maxReminder {
		return command.Reply("`%s` is not a duration I can wait for. Try `10m` or `2h`.", args[0]), nil
	}
	if ctx.Message == nil {
		return nil, fmt.Errorf("remind needs a message to answer to")
	}

	text := fmt.Sprintf("<@%s> reminder: %s", ctx.AuthorID(), strings.Join(args[1:], " "))
	id, err := ctx.Core.SetPersistentTimeout(ctx.Ctx, state.Target{
		Kind: state.TargetCommand,
		Name: "say",
		Args: strings.Fields(text),
	}, delay, ctx.Message)
	if err != nil {
		return nil, err
	}
	return &command.Response{
		Msg: fmt.Sprintf("Okay, I'll remind you %s.", humanize.Time(time.Now().Add(delay))),
		Log: "reminder " + id + " set by " + ctx.AuthorID(),
	}, nil
}

type TimersCommand struct{}

func (c *TimersCommand) Name() string        { return "timers" }
func (c *TimersCommand) Description() string { return "List pending persistent timers" }
func (c *TimersCommand) Category() string    { return categoryAdmin }

func (c *TimersCommand) Run(args []string, ctx *command.Context) (*command.Response, error) {
	pending := ctx.Core.PendingTimers()
	if len(pending) == 0 {
		return command.Reply("No timers pending."), nil
	}

	ids := make([]string, 0, len(pending))
	for id := range pending {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return pending[ids[i]].FireAt < pending[ids[j]].FireAt })

	var b strings.Builder
	fmt.Fprintf(&b, "%s pending:\n", humanize.Comma(int64(len(ids))))
	for _, id := range ids {
		rec := pending[id]
		fmt.Fprintf(&b, "`%s` %s `%s` %s\n", id, rec.Target.Kind, rec.Target.Name, humanize.Time(rec.FireTime()))
	}
	return &command.Response{Msg: b.String(), Private: true}, nil
}
