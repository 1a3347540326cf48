package policy

import (
	"fmt"

	"github.com/charmbracelet/log"

	"contagion/internal/engine"
)

// Command pairs a condition with the action it triggers. It implements
// engine.Command.
type Command struct {
	Condition Condition
	Action    Action

	logger     *log.Logger
	executions int
}

// NewCommand returns a command that applies action whenever cond is
// satisfied. A nil condition is only valid for Nope.
func NewCommand(cond Condition, action Action, logger *log.Logger) *Command {
	return &Command{Condition: cond, Action: action, logger: logger}
}

// NopeCommand is the inert command unknown kinds degrade to.
func NopeCommand() *Command {
	return &Command{Action: Nope{}}
}

func (c *Command) TakeAction(s *engine.Simulator) error {
	if c.Done() {
		return nil
	}
	times, err := Evaluate(c.Condition, s)
	if err != nil {
		return fmt.Errorf("%s condition: %w", c.Action.Name(), err)
	}
	if len(times) == 0 {
		return nil
	}
	logger := c.logger
	if logger == nil {
		logger = s.Logger().WithPrefix("policy")
	}
	logger.Info("command executed", "command", c.Action.Name(), "minute", int64(s.Now()))
	if err := Apply(c.Action, s, logger); err != nil {
		return fmt.Errorf("%s: %w", c.Action.Name(), err)
	}
	c.executions++
	return nil
}

// Done reports whether the command has served its purpose.
func (c *Command) Done() bool {
	if _, ok := c.Action.(Nope); ok || c.Condition == nil {
		return true
	}
	return Removable(c.Condition)
}

// Executions counts how many times the action ran.
func (c *Command) Executions() int { return c.executions }
