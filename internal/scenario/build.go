package scenario

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"contagion/internal/disease"
	"contagion/internal/dist"
	"contagion/internal/engine"
	"contagion/internal/observe"
	"contagion/internal/policy"
	"contagion/internal/population"
)

// Seed offsets keep the population, the disease model and the engine on
// independent streams.
const (
	diseaseStream uint64 = 1
	engineStream  uint64 = 2
)

// Built is a scenario compiled against a generated population.
type Built struct {
	Scenario   *Scenario
	Population *population.Population
	Disease    *disease.Properties
	Config     engine.Config
	Commands   []*policy.Command
	Observers  []*observe.Observer
	Warnings   []string
}

// Build generates the population and compiles the disease model, commands
// and observers. Malformed commands degrade to Nope and malformed observer
// conditions leave the observer inert; both are logged and listed in
// Warnings. References to people, families or communities that do not exist
// are errors.
func (s *Scenario) Build(ctx context.Context, sink observe.Sink, logger *log.Logger) (*Built, error) {
	gen, err := s.Population.Generator(logger.WithPrefix("population"))
	if err != nil {
		return nil, fmt.Errorf("population: %w", err)
	}
	pop, err := gen.Generate(ctx, s.Seed)
	if err != nil {
		return nil, fmt.Errorf("population: %w", err)
	}
	model, err := disease.New(s.Disease, dist.NewRand(s.Seed+diseaseStream))
	if err != nil {
		return nil, fmt.Errorf("disease: %w", err)
	}
	epoch, err := s.Epoch()
	if err != nil {
		return nil, err
	}
	b := &Built{
		Scenario:   s,
		Population: pop,
		Disease:    model,
		Config: engine.Config{
			EndTime:         s.EndTime.Time(),
			SpreadPeriod:    s.SpreadPeriod.Time(),
			InitialInfected: s.InitialInfected,
			Epoch:           epoch,
		},
	}

	policyLog := logger.WithPrefix("policy")
	for i, spec := range s.Commands {
		cond, action, err := compileCommand(spec)
		if err != nil {
			b.warn(logger, fmt.Sprintf("command %d (%s): %v; using nope", i, spec.Kind, err))
			b.Commands = append(b.Commands, policy.NopeCommand())
			continue
		}
		if err := policy.Validate(action, pop); err != nil {
			return nil, fmt.Errorf("command %d (%s): %w", i, spec.Kind, err)
		}
		b.Commands = append(b.Commands, policy.NewCommand(cond, action, policyLog))
	}

	for _, spec := range s.Observers {
		cond, err := compileCondition(spec.Condition)
		if err != nil {
			b.warn(logger, fmt.Sprintf("observer %s: %v; observer disabled", spec.Name, err))
			cond = nil
		}
		b.Observers = append(b.Observers, observe.New(spec.Name, cond, spec.Scope, sink))
	}
	return b, nil
}

func (b *Built) warn(logger *log.Logger, msg string) {
	logger.Warn(msg)
	b.Warnings = append(b.Warnings, msg)
}

// Simulator wires the compiled parts into a simulator. The engine draws from
// its own stream derived from the scenario seed unless opts.Rand is set.
func (b *Built) Simulator(opts engine.Options) (*engine.Simulator, error) {
	if opts.Rand == nil {
		opts.Rand = dist.NewRand(b.Scenario.Seed + engineStream)
	}
	sim, err := engine.New(b.Population, b.Disease, b.Config, opts)
	if err != nil {
		return nil, err
	}
	for _, o := range b.Observers {
		sim.AddObserver(o)
	}
	for _, c := range b.Commands {
		sim.AddCommand(c)
	}
	return sim, nil
}

// Check compiles every command and observer condition without generating a
// population and returns what Build would warn about.
func (s *Scenario) Check() []string {
	var out []string
	for i, spec := range s.Commands {
		if _, _, err := compileCommand(spec); err != nil {
			out = append(out, fmt.Sprintf("command %d (%s): %v; using nope", i, spec.Kind, err))
		}
	}
	for _, spec := range s.Observers {
		if _, err := compileCondition(spec.Condition); err != nil {
			out = append(out, fmt.Sprintf("observer %s: %v; observer disabled", spec.Name, err))
		}
	}
	return out
}

func compileCondition(spec ConditionSpec) (policy.Condition, error) {
	max := spec.MaxSatisfaction
	if max == 0 {
		max = 1
	}
	switch normalizeKind(spec.Kind) {
	case policy.KindTimePoint:
		return &policy.TimePoint{Deadline: spec.Deadline.Time()}, nil
	case policy.KindTimePeriod:
		if spec.Period.Time() <= 0 {
			return nil, fmt.Errorf("time period must be positive")
		}
		return &policy.TimePeriod{Period: spec.Period.Time()}, nil
	case policy.KindStatisticalRatio, policy.KindStatisticalRatioRole:
		dividend, err := engine.ParseHealthCondition(spec.Dividend)
		if err != nil {
			return nil, err
		}
		divisor, err := engine.ParseHealthCondition(spec.Divisor)
		if err != nil {
			return nil, err
		}
		op, err := policy.ParseOperator(spec.Operator)
		if err != nil {
			return nil, err
		}
		if normalizeKind(spec.Kind) == policy.KindStatisticalRatio {
			return &policy.StatisticalRatio{Dividend: dividend, Divisor: divisor, Operator: op, Target: spec.Target, MaxSatisfaction: max}, nil
		}
		if spec.Role == "" {
			return nil, fmt.Errorf("role is required")
		}
		return &policy.StatisticalRatioRole{Role: spec.Role, Dividend: dividend, Divisor: divisor, Operator: op, Target: spec.Target, MaxSatisfaction: max}, nil
	case policy.KindStatisticalFamily:
		stat, err := engine.ParseHealthCondition(spec.Stat)
		if err != nil {
			return nil, err
		}
		op, err := policy.ParseOperator(spec.Operator)
		if err != nil {
			return nil, err
		}
		return &policy.StatisticalFamily{Stat: stat, Operator: op, Target: spec.Target, MaxSatisfaction: max}, nil
	}
	return nil, fmt.Errorf("unknown condition kind %q", spec.Kind)
}

func compileCommand(spec CommandSpec) (policy.Condition, policy.Action, error) {
	kind := normalizeKind(spec.Kind)
	if kind == policy.ActionNope {
		return nil, policy.Nope{}, nil
	}
	action, err := compileAction(kind, spec)
	if err != nil {
		return nil, nil, err
	}
	if spec.Condition == nil {
		return nil, nil, fmt.Errorf("condition is required")
	}
	cond, err := compileCondition(*spec.Condition)
	if err != nil {
		return nil, nil, err
	}
	return cond, action, nil
}

func compileAction(kind string, spec CommandSpec) (policy.Action, error) {
	switch kind {
	case policy.ActionQuarantineCommunity:
		return policy.QuarantineCommunity{Type: spec.CommunityType, Index: spec.CommunityIndex}, nil
	case policy.ActionUnquarantineCommunity:
		return policy.UnquarantineCommunity{Type: spec.CommunityType, Index: spec.CommunityIndex}, nil
	case policy.ActionQuarantineCommunityType:
		return policy.QuarantineCommunityType{Type: spec.CommunityType}, nil
	case policy.ActionUnquarantineCommunityType:
		return policy.UnquarantineCommunityType{Type: spec.CommunityType}, nil
	case policy.ActionQuarantineFamily:
		return policy.QuarantineFamily{ID: spec.ID}, nil
	case policy.ActionUnquarantineFamily:
		return policy.UnquarantineFamily{ID: spec.ID}, nil
	case policy.ActionQuarantineFamilies:
		return policy.QuarantineFamilies{IDs: spec.IDs}, nil
	case policy.ActionUnquarantineFamilies:
		return policy.UnquarantineFamilies{IDs: spec.IDs}, nil
	case policy.ActionQuarantinePerson:
		return policy.QuarantinePerson{ID: spec.ID}, nil
	case policy.ActionUnquarantinePerson:
		return policy.UnquarantinePerson{ID: spec.ID}, nil
	case policy.ActionQuarantinePeople:
		return policy.QuarantinePeople{IDs: spec.IDs}, nil
	case policy.ActionUnquarantinePeople:
		return policy.UnquarantinePeople{IDs: spec.IDs}, nil
	case policy.ActionQuarantineAllPeople:
		return policy.QuarantineAllPeople{}, nil
	case policy.ActionUnquarantineAllPeople:
		return policy.UnquarantineAllPeople{}, nil
	case policy.ActionQuarantineDiseased:
		return policy.QuarantineDiseased{}, nil
	case policy.ActionQuarantineDiseasedNoisy:
		return policy.QuarantineDiseasedNoisy{Probability: spec.Probability}, nil
	case policy.ActionUnquarantineDiseased:
		return policy.UnquarantineDiseased{}, nil
	case policy.ActionRestrictRoles:
		if spec.Role == "" {
			return nil, fmt.Errorf("role is required")
		}
		return policy.RestrictRoles{Role: spec.Role, Ratio: spec.Ratio}, nil
	}
	return nil, fmt.Errorf("unknown command kind %q", spec.Kind)
}
