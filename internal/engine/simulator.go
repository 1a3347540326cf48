// Package engine runs the discrete-event epidemic simulation.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"time"

	"github.com/charmbracelet/log"

	"contagion/internal/disease"
	"contagion/internal/dist"
	"contagion/internal/population"
	"contagion/internal/simtime"
)

// State is the lifecycle state of a Simulator.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateRunning
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Command is consulted once per tick and may mutate quarantine flags and
// role presence probabilities.
type Command interface {
	TakeAction(s *Simulator) error
	// Done reports that the command will never act again.
	Done() bool
}

// Observer is consulted once per tick, before commands, to record state.
type Observer interface {
	Observe(s *Simulator) error
	Done() bool
}

// Flusher is implemented by observers that buffer output.
type Flusher interface {
	Flush() error
}

// Reporter receives the simulator once the run completes.
type Reporter interface {
	Report(s *Simulator) error
}

// Metrics receives engine counters. Implementations must be cheap.
type Metrics interface {
	EventProcessed(k Kind)
	ClockAdvanced(t simtime.Time)
	Infected()
	Died()
}

type nopMetrics struct{}

func (nopMetrics) EventProcessed(Kind)        {}
func (nopMetrics) ClockAdvanced(simtime.Time) {}
func (nopMetrics) Infected()                  {}
func (nopMetrics) Died()                      {}

var ErrInvalidConfig = errors.New("invalid simulation config")

// Config is what a scenario supplies to a run.
type Config struct {
	EndTime         simtime.Time
	SpreadPeriod    simtime.Time
	InitialInfected []int
	Epoch           time.Time
}

// Options carry optional collaborators.
type Options struct {
	Logger   *log.Logger
	Metrics  Metrics
	Reporter Reporter
	Rand     *rand.Rand
}

type slot[T any] struct {
	hook    T
	deleted bool
}

// Simulator owns the clock, the event queue and the statistics of one run.
type Simulator struct {
	pop   *population.Population
	model disease.Model
	cfg   Config

	clock *simtime.Clock
	queue *Queue
	stats *Statistics
	rng   *rand.Rand

	commands  []slot[Command]
	observers []slot[Observer]

	state     State
	processed map[Kind]int
	started   time.Time
	elapsed   time.Duration

	logger   *log.Logger
	metrics  Metrics
	reporter Reporter
}

// New validates cfg against pop and returns an uninitialized simulator.
func New(pop *population.Population, model disease.Model, cfg Config, opts Options) (*Simulator, error) {
	if cfg.SpreadPeriod <= 0 {
		return nil, fmt.Errorf("%w: spread period must be positive", ErrInvalidConfig)
	}
	if cfg.EndTime < 0 {
		return nil, fmt.Errorf("%w: end time must not be negative", ErrInvalidConfig)
	}
	for _, id := range cfg.InitialInfected {
		if _, err := pop.Person(id); err != nil {
			return nil, fmt.Errorf("%w: initial infected: %w", ErrInvalidConfig, err)
		}
	}
	s := &Simulator{
		pop:       pop,
		model:     model,
		cfg:       cfg,
		clock:     simtime.NewClock(cfg.Epoch),
		queue:     NewQueue(),
		processed: make(map[Kind]int),
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		reporter:  opts.Reporter,
		rng:       opts.Rand,
	}
	if s.logger == nil {
		s.logger = log.New(io.Discard)
	}
	if s.metrics == nil {
		s.metrics = nopMetrics{}
	}
	if s.rng == nil {
		s.rng = dist.NewRand(uint64(time.Now().UnixNano()))
	}
	return s, nil
}

// AddCommand appends a command; commands run in insertion order.
func (s *Simulator) AddCommand(c Command) {
	s.commands = append(s.commands, slot[Command]{hook: c})
}

// AddObserver appends an observer; observers run in insertion order.
func (s *Simulator) AddObserver(o Observer) {
	s.observers = append(s.observers, slot[Observer]{hook: o})
}

func (s *Simulator) Population() *population.Population { return s.pop }
func (s *Simulator) Statistics() *Statistics            { return s.stats }
func (s *Simulator) Model() disease.Model               { return s.model }
func (s *Simulator) Clock() *simtime.Clock              { return s.clock }
func (s *Simulator) Now() simtime.Time                  { return s.clock.Now() }
func (s *Simulator) EndTime() simtime.Time              { return s.cfg.EndTime }
func (s *Simulator) SpreadPeriod() simtime.Time         { return s.cfg.SpreadPeriod }
func (s *Simulator) Rand() *rand.Rand                   { return s.rng }
func (s *Simulator) Logger() *log.Logger                { return s.logger }
func (s *Simulator) State() State                       { return s.state }
func (s *Simulator) Queue() *Queue                      { return s.queue }
func (s *Simulator) Elapsed() time.Duration             { return s.elapsed }

// Processed returns how many events of kind k have been activated.
func (s *Simulator) Processed(k Kind) int { return s.processed[k] }

// ActiveCommands counts commands not yet tombstoned.
func (s *Simulator) ActiveCommands() int {
	n := 0
	for _, c := range s.commands {
		if !c.deleted {
			n++
		}
	}
	return n
}

// Initialize resets the population and seeds the queue with every PlanDay,
// every VirusSpread and the initial infections.
func (s *Simulator) Initialize() error {
	s.state = StateInitializing
	s.pop.Initialize()
	s.clock.Reset()
	s.queue = NewQueue()
	s.stats = NewStatistics(s.pop)
	clear(s.processed)

	end := s.cfg.EndTime
	for t := simtime.Time(0); t <= planHorizon(end); t += simtime.Day {
		s.queue.Push(PlanDay{At: t})
	}
	var last simtime.Time
	for t := simtime.Time(0); t <= end; t += s.cfg.SpreadPeriod {
		s.queue.Push(VirusSpread{At: t})
		last = t
	}
	if last < end {
		s.queue.Push(VirusSpread{At: end})
	}

	var initial []int
	seen := make(map[int]struct{})
	for _, id := range s.cfg.InitialInfected {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		initial = append(initial, id)
	}
	if err := s.StartInfections(0, initial); err != nil {
		s.state = StateFailed
		return fmt.Errorf("initial infections: %w", err)
	}
	s.logger.Info("simulation initialized",
		"people", s.pop.Size(), "end_minute", int64(end), "spread_period", int64(s.cfg.SpreadPeriod),
		"initial_infected", len(initial), "queued", s.queue.Len())
	return nil
}

// Run drives the loop until the clock reaches the end time. The context is
// checked between ticks only.
func (s *Simulator) Run(ctx context.Context) error {
	switch s.state {
	case StateUninitialized:
		if err := s.Initialize(); err != nil {
			return err
		}
	case StateInitializing:
	default:
		return fmt.Errorf("simulator cannot run from state %s", s.state)
	}
	s.state = StateRunning
	s.started = time.Now()
	s.logger.Info("simulation started")
	for s.clock.Now() < s.cfg.EndTime {
		if err := ctx.Err(); err != nil {
			return s.fail(err)
		}
		if err := s.Step(); err != nil {
			return s.fail(err)
		}
	}
	return s.complete()
}

// Step activates the next event, runs observers then commands and advances
// the clock to the event's minute.
func (s *Simulator) Step() error {
	now := s.clock.Now()
	ev, err := s.queue.Pop()
	if err != nil {
		return fmt.Errorf("minute %d: %w", now, err)
	}
	if err := s.activate(ev); err != nil {
		return fmt.Errorf("minute %d: %s event: %w", ev.Minute(), ev.Kind(), err)
	}
	s.processed[ev.Kind()]++
	s.metrics.EventProcessed(ev.Kind())

	for i := range s.observers {
		o := &s.observers[i]
		if o.deleted {
			continue
		}
		if err := o.hook.Observe(s); err != nil {
			return fmt.Errorf("minute %d: observer %d: %w", now, i, err)
		}
		if o.hook.Done() {
			o.deleted = true
		}
	}
	for i := range s.commands {
		c := &s.commands[i]
		if c.deleted {
			continue
		}
		if err := c.hook.TakeAction(s); err != nil {
			return fmt.Errorf("minute %d: command %d: %w", now, i, err)
		}
		if c.hook.Done() {
			c.deleted = true
		}
	}

	if err := s.clock.AdvanceTo(ev.Minute()); err != nil {
		return fmt.Errorf("minute %d: %s event: %w", now, ev.Kind(), err)
	}
	if ev.Minute() != now {
		s.metrics.ClockAdvanced(ev.Minute())
		if ev.Minute().Days() != now.Days() {
			s.logger.Debug("day started", "day", ev.Minute().Days(),
				"infected", s.stats.Get(IsInfected), "dead", s.stats.Get(Dead))
		}
	}
	return nil
}

func (s *Simulator) activate(ev Event) error {
	switch e := ev.(type) {
	case PlanDay:
		return s.activatePlanDay(e)
	case Transition:
		return s.activateTransition(e)
	case VirusSpread:
		return s.activateVirusSpread(e)
	case Incubation:
		return s.activateIncubation(e)
	case InfectionEnd:
		return s.activateInfectionEnd(e)
	default:
		return fmt.Errorf("unhandled event %T", ev)
	}
}

func (s *Simulator) fail(err error) error {
	s.state = StateFailed
	s.elapsed = time.Since(s.started)
	s.logger.Error("simulation aborted", "minute", int64(s.clock.Now()), "err", err)
	return err
}

func (s *Simulator) complete() error {
	s.state = StateCompleted
	s.elapsed = time.Since(s.started)
	s.logger.Info("simulation completed",
		"minute", int64(s.clock.Now()), "elapsed", s.elapsed,
		"infected", s.stats.Get(HasBeenInfected), "dead", s.stats.Get(Dead))
	var errs []error
	for _, o := range s.observers {
		if f, ok := o.hook.(Flusher); ok {
			if err := f.Flush(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if s.reporter != nil {
		if err := s.reporter.Report(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
