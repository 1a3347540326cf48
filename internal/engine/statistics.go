package engine

import (
	"errors"
	"fmt"
	"strings"

	"contagion/internal/population"
)

var (
	// ErrNegativeCount reports a statistics update that would drive a counter below zero.
	ErrNegativeCount = errors.New("statistics counter would become negative")
	// ErrZeroDenominator reports a ratio whose denominator is zero.
	ErrZeroDenominator = errors.New("ratio denominator is zero")
	ErrUnknownRole     = errors.New("unknown role")
)

// HealthCondition indexes the statistics counters.
type HealthCondition int

const (
	IsInfected HealthCondition = iota + 1
	IsNotInfected
	HasBeenInfected
	HasNotBeenInfected
	Alive
	Dead
	All
)

// HealthConditions lists every condition in display order.
var HealthConditions = []HealthCondition{IsInfected, IsNotInfected, HasBeenInfected, HasNotBeenInfected, Alive, Dead, All}

var conditionNames = map[HealthCondition]string{
	IsInfected:         "is_infected",
	IsNotInfected:      "is_not_infected",
	HasBeenInfected:    "has_been_infected",
	HasNotBeenInfected: "has_not_been_infected",
	Alive:              "alive",
	Dead:               "dead",
	All:                "all",
}

func (c HealthCondition) String() string {
	if name, ok := conditionNames[c]; ok {
		return name
	}
	return fmt.Sprintf("condition(%d)", int(c))
}

// ParseHealthCondition accepts the snake_case name of a condition.
func ParseHealthCondition(s string) (HealthCondition, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	for c, name := range conditionNames {
		if name == key {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown health condition %q", s)
}

// Counts holds one counter per health condition.
type Counts [All + 1]int

func (c Counts) Get(h HealthCondition) int { return c[h] }

// Map returns the counters keyed by condition name.
func (c Counts) Map() map[string]int {
	out := make(map[string]int, len(HealthConditions))
	for _, h := range HealthConditions {
		out[h.String()] = c[h]
	}
	return out
}

func initialCounts(n int) Counts {
	var c Counts
	c[IsNotInfected] = n
	c[HasNotBeenInfected] = n
	c[Alive] = n
	c[All] = n
	return c
}

// apply moves delta people into condition h and out of its pair.
func (c *Counts) apply(h HealthCondition, delta int) error {
	next := *c
	switch h {
	case IsInfected:
		next[IsInfected] += delta
		next[IsNotInfected] -= delta
	case IsNotInfected:
		next[IsNotInfected] += delta
		next[IsInfected] -= delta
	case HasBeenInfected:
		next[HasBeenInfected] += delta
		next[HasNotBeenInfected] -= delta
	case HasNotBeenInfected:
		next[HasNotBeenInfected] += delta
		next[HasBeenInfected] -= delta
	case Dead:
		// The dead leave the not-infected pool as well as the living.
		next[Dead] += delta
		next[Alive] -= delta
		next[IsNotInfected] -= delta
	case Alive:
		next[Alive] += delta
		next[Dead] -= delta
		next[IsNotInfected] += delta
	default:
		return fmt.Errorf("condition %s cannot be updated", h)
	}
	for _, k := range HealthConditions {
		if next[k] < 0 {
			return fmt.Errorf("%w: %s = %d", ErrNegativeCount, k, next[k])
		}
	}
	*c = next
	return nil
}

// Statistics keeps running counts for the whole population and per role.
type Statistics struct {
	people Counts
	roles  map[string]*Counts
}

// NewStatistics starts everyone alive and never infected.
func NewStatistics(pop *population.Population) *Statistics {
	s := &Statistics{people: initialCounts(pop.Size()), roles: make(map[string]*Counts)}
	members := make(map[string]int)
	for _, p := range pop.People {
		for _, role := range p.Roles() {
			members[role]++
		}
	}
	for _, role := range pop.Roles() {
		c := initialCounts(members[role])
		s.roles[role] = &c
	}
	return s
}

// Update applies delta to condition h for person p, on the population
// counters and on every role p holds. Nothing changes if any counter would
// become negative.
func (s *Statistics) Update(h HealthCondition, p *population.Person, delta int) error {
	people := s.people
	if err := people.apply(h, delta); err != nil {
		return fmt.Errorf("person %d: %w", p.ID, err)
	}
	roles := p.Roles()
	next := make([]Counts, len(roles))
	for i, role := range roles {
		c, ok := s.roles[role]
		if !ok {
			return fmt.Errorf("person %d: %w: %s", p.ID, ErrUnknownRole, role)
		}
		next[i] = *c
		if err := next[i].apply(h, delta); err != nil {
			return fmt.Errorf("person %d role %s: %w", p.ID, role, err)
		}
	}
	s.people = people
	for i, role := range roles {
		*s.roles[role] = next[i]
	}
	return nil
}

func (s *Statistics) Get(h HealthCondition) int { return s.people[h] }

func (s *Statistics) Snapshot() Counts { return s.people }

// Role returns the counters of the named role.
func (s *Statistics) Role(name string) (Counts, bool) {
	c, ok := s.roles[name]
	if !ok {
		return Counts{}, false
	}
	return *c, true
}

// Ratio divides two population counters.
func (s *Statistics) Ratio(num, den HealthCondition) (float64, error) {
	return ratio(s.people, num, den)
}

// RoleRatio divides two counters of a role.
func (s *Statistics) RoleRatio(role string, num, den HealthCondition) (float64, error) {
	c, ok := s.roles[role]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownRole, role)
	}
	return ratio(*c, num, den)
}

func ratio(c Counts, num, den HealthCondition) (float64, error) {
	if c[den] == 0 {
		return 0, fmt.Errorf("%w: %s / %s", ErrZeroDenominator, num, den)
	}
	return float64(c[num]) / float64(c[den]), nil
}

// FamilyStatistics counts, per condition, the families with at least one
// member in that condition. All is the number of families.
func FamilyStatistics(pop *population.Population) Counts {
	var out Counts
	for _, f := range pop.Families {
		var seen Counts
		for _, id := range f.Members {
			p := pop.People[id]
			if p.Alive {
				seen[Alive] = 1
			} else {
				seen[Dead] = 1
			}
			if p.Diseased() {
				seen[IsInfected] = 1
			} else if p.Alive {
				seen[IsNotInfected] = 1
			}
			if p.TimesInfected > 0 {
				seen[HasBeenInfected] = 1
			} else {
				seen[HasNotBeenInfected] = 1
			}
		}
		for _, h := range HealthConditions {
			out[h] += seen[h]
		}
		out[All]++
	}
	return out
}

// R0 is the mean number of transmissions per person ever infected.
func R0(pop *population.Population, stats *Statistics) (float64, error) {
	infected := stats.Get(HasBeenInfected)
	if infected == 0 {
		return 0, fmt.Errorf("%w: nobody has been infected", ErrZeroDenominator)
	}
	total := 0
	for _, p := range pop.People {
		total += len(p.Transmissions)
	}
	return float64(total) / float64(infected), nil
}
