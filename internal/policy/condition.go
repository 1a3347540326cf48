// Package policy holds the conditions and actions that make up scenario
// commands, and the engine hook that runs them.
package policy

import (
	"fmt"
	"strings"

	"contagion/internal/engine"
	"contagion/internal/simtime"
)

// Operator compares an observed ratio against a target.
type Operator string

const (
	OpEQ Operator = "eq"
	OpNE Operator = "ne"
	OpLT Operator = "lt"
	OpLE Operator = "le"
	OpGE Operator = "ge"
	OpGT Operator = "gt"
)

func ParseOperator(s string) (Operator, error) {
	op := Operator(strings.ToLower(strings.TrimSpace(s)))
	switch op {
	case OpEQ, OpNE, OpLT, OpLE, OpGE, OpGT:
		return op, nil
	}
	return "", fmt.Errorf("unknown operator %q", s)
}

// Compare reports whether a op b holds.
func (o Operator) Compare(a, b float64) bool {
	switch o {
	case OpEQ:
		return a == b
	case OpNE:
		return a != b
	case OpLT:
		return a < b
	case OpLE:
		return a <= b
	case OpGE:
		return a >= b
	case OpGT:
		return a > b
	}
	return false
}

// Condition decides when a command acts or an observer records. The set of
// conditions is closed; see Evaluate.
type Condition interface {
	Kind() string
	isCondition()
}

const (
	KindTimePoint            = "time_point"
	KindTimePeriod           = "time_period"
	KindStatisticalRatio     = "statistical_ratio"
	KindStatisticalRatioRole = "statistical_ratio_role"
	KindStatisticalFamily    = "statistical_family"
)

// TimePoint is satisfied once, on the first tick after Deadline.
type TimePoint struct {
	Deadline simtime.Time

	satisfied bool
}

// TimePeriod is satisfied at 0, Period, 2*Period, ... up to the end time.
// Points are expanded on first evaluation.
type TimePeriod struct {
	Period simtime.Time

	points      []*TimePoint
	initialized bool
}

// StatisticalRatio fires when Dividend/Divisor compares true against
// Target. After firing it stays disarmed until the comparison stops holding.
type StatisticalRatio struct {
	Dividend        engine.HealthCondition
	Divisor         engine.HealthCondition
	Operator        Operator
	Target          float64
	MaxSatisfaction int

	disarmed bool
}

// StatisticalRatioRole is StatisticalRatio over the counters of one role.
type StatisticalRatioRole struct {
	Role            string
	Dividend        engine.HealthCondition
	Divisor         engine.HealthCondition
	Operator        Operator
	Target          float64
	MaxSatisfaction int

	disarmed bool
}

// StatisticalFamily compares the share of families with at least one member
// in Stat against Target.
type StatisticalFamily struct {
	Stat            engine.HealthCondition
	Operator        Operator
	Target          float64
	MaxSatisfaction int

	disarmed bool
}

func (*TimePoint) Kind() string            { return KindTimePoint }
func (*TimePeriod) Kind() string           { return KindTimePeriod }
func (*StatisticalRatio) Kind() string     { return KindStatisticalRatio }
func (*StatisticalRatioRole) Kind() string { return KindStatisticalRatioRole }
func (*StatisticalFamily) Kind() string    { return KindStatisticalFamily }

func (*TimePoint) isCondition()            {}
func (*TimePeriod) isCondition()           {}
func (*StatisticalRatio) isCondition()     {}
func (*StatisticalRatioRole) isCondition() {}
func (*StatisticalFamily) isCondition()    {}

// Evaluate returns the times at which c became satisfied since the last
// call, or nothing.
func Evaluate(c Condition, s *engine.Simulator) ([]simtime.Time, error) {
	now := s.Now()
	switch c := c.(type) {
	case *TimePoint:
		if c.satisfied || c.Deadline >= now {
			return nil, nil
		}
		c.satisfied = true
		return []simtime.Time{c.Deadline}, nil
	case *TimePeriod:
		if !c.initialized {
			if c.Period <= 0 {
				return nil, fmt.Errorf("time period must be positive, got %d", c.Period)
			}
			for t := simtime.Time(0); t <= s.EndTime(); t += c.Period {
				c.points = append(c.points, &TimePoint{Deadline: t})
			}
			c.initialized = true
		}
		var out []simtime.Time
		for len(c.points) > 0 {
			times, err := Evaluate(c.points[0], s)
			if err != nil || len(times) == 0 {
				return out, err
			}
			out = append(out, times...)
			c.points = c.points[1:]
		}
		return out, nil
	case *StatisticalRatio:
		ratio, err := s.Statistics().Ratio(c.Dividend, c.Divisor)
		if err != nil {
			return nil, err
		}
		return armed(&c.disarmed, &c.MaxSatisfaction, c.Operator.Compare(ratio, c.Target), now), nil
	case *StatisticalRatioRole:
		ratio, err := s.Statistics().RoleRatio(c.Role, c.Dividend, c.Divisor)
		if err != nil {
			return nil, err
		}
		return armed(&c.disarmed, &c.MaxSatisfaction, c.Operator.Compare(ratio, c.Target), now), nil
	case *StatisticalFamily:
		families := len(s.Population().Families)
		if families == 0 {
			return nil, fmt.Errorf("%w: no families", engine.ErrZeroDenominator)
		}
		ratio := float64(engine.FamilyStatistics(s.Population()).Get(c.Stat)) / float64(families)
		return armed(&c.disarmed, &c.MaxSatisfaction, c.Operator.Compare(ratio, c.Target), now), nil
	default:
		return nil, fmt.Errorf("unhandled condition %T", c)
	}
}

func armed(disarmed *bool, remaining *int, holds bool, now simtime.Time) []simtime.Time {
	if !holds {
		*disarmed = false
		return nil
	}
	if *disarmed || *remaining <= 0 {
		return nil
	}
	*remaining--
	*disarmed = true
	return []simtime.Time{now}
}

// Removable reports whether c can never be satisfied again.
func Removable(c Condition) bool {
	switch c := c.(type) {
	case *TimePoint:
		return c.satisfied
	case *TimePeriod:
		return c.initialized && len(c.points) == 0
	case *StatisticalRatio:
		return c.MaxSatisfaction <= 0
	case *StatisticalRatioRole:
		return c.MaxSatisfaction <= 0
	case *StatisticalFamily:
		return c.MaxSatisfaction <= 0
	}
	return true
}
