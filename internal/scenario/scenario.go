// Package scenario reads scenario files and turns them into a ready to run
// simulator.
package scenario

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"contagion/internal/disease"
	"contagion/internal/observe"
	"contagion/internal/population"
	"contagion/internal/simtime"
)

// Scenario models a scenario YAML file.
type Scenario struct {
	Name            string          `yaml:"name" json:"name"`
	Seed            uint64          `yaml:"seed" json:"seed"`
	Start           string          `yaml:"start,omitempty" json:"start,omitempty"`
	EndTime         simtime.Span    `yaml:"end_time" json:"end_time"`
	SpreadPeriod    simtime.Span    `yaml:"spread_period" json:"spread_period"`
	InitialInfected []int           `yaml:"initial_infected" json:"initial_infected"`
	Disease         disease.Spec    `yaml:"disease" json:"disease"`
	Population      population.Spec `yaml:"population" json:"population"`
	Commands        []CommandSpec   `yaml:"commands,omitempty" json:"commands,omitempty"`
	Observers       []ObserverSpec  `yaml:"observers,omitempty" json:"observers,omitempty"`

	raw []byte
}

// ConditionSpec is the file form of every condition kind; only the fields
// of Kind are read.
type ConditionSpec struct {
	Kind            string       `yaml:"kind" json:"kind"`
	Deadline        simtime.Span `yaml:"deadline,omitempty" json:"deadline,omitempty"`
	Period          simtime.Span `yaml:"period,omitempty" json:"period,omitempty"`
	Dividend        string       `yaml:"dividend,omitempty" json:"dividend,omitempty"`
	Divisor         string       `yaml:"divisor,omitempty" json:"divisor,omitempty"`
	Stat            string       `yaml:"stat,omitempty" json:"stat,omitempty"`
	Role            string       `yaml:"role,omitempty" json:"role,omitempty"`
	Operator        string       `yaml:"operator,omitempty" json:"operator,omitempty"`
	Target          float64      `yaml:"target,omitempty" json:"target,omitempty"`
	MaxSatisfaction int          `yaml:"max_satisfaction,omitempty" json:"max_satisfaction,omitempty"`
}

// CommandSpec is the file form of every command kind.
type CommandSpec struct {
	Kind           string         `yaml:"kind" json:"kind"`
	Condition      *ConditionSpec `yaml:"condition,omitempty" json:"condition,omitempty"`
	CommunityType  string         `yaml:"community_type,omitempty" json:"community_type,omitempty"`
	CommunityIndex int            `yaml:"community_index,omitempty" json:"community_index,omitempty"`
	ID             int            `yaml:"id,omitempty" json:"id,omitempty"`
	IDs            []int          `yaml:"ids,omitempty" json:"ids,omitempty"`
	Probability    float64        `yaml:"probability,omitempty" json:"probability,omitempty"`
	Role           string         `yaml:"role,omitempty" json:"role,omitempty"`
	Ratio          float64        `yaml:"ratio,omitempty" json:"ratio,omitempty"`
}

type ObserverSpec struct {
	Name          string        `yaml:"name" json:"name"`
	Condition     ConditionSpec `yaml:"condition" json:"condition"`
	observe.Scope `yaml:",inline" json:",inline"`
}

// Load reads and validates a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Parse decodes and validates raw scenario YAML.
func Parse(data []byte) (*Scenario, error) {
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("invalid scenario yaml: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	s.raw = append([]byte(nil), data...)
	return &s, nil
}

// Raw returns the bytes the scenario was parsed from.
func (s *Scenario) Raw() []byte { return s.raw }

// Validate checks the run parameters. Commands and observers are checked
// while building, where malformed entries degrade instead of failing.
func (s *Scenario) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("scenario.name is required")
	}
	if s.EndTime.Time() <= 0 {
		return fmt.Errorf("scenario.end_time must be positive")
	}
	if s.SpreadPeriod.Time() <= 0 {
		return fmt.Errorf("scenario.spread_period must be positive")
	}
	if s.Population.Size <= 0 {
		return fmt.Errorf("scenario.population.size must be positive")
	}
	for _, id := range s.InitialInfected {
		if id < 0 || id >= s.Population.Size {
			return fmt.Errorf("initial infected id %d outside population of %d", id, s.Population.Size)
		}
	}
	if _, err := s.Epoch(); err != nil {
		return err
	}
	for i, o := range s.Observers {
		if o.Name == "" {
			return fmt.Errorf("observer %d has no name", i)
		}
	}
	return nil
}

// Epoch is the wall-clock instant of minute zero.
func (s *Scenario) Epoch() (time.Time, error) {
	if s.Start == "" {
		return simtime.DefaultEpoch, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, s.Start); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("scenario.start %q is not a date", s.Start)
}

// normalizeKind accepts snake_case kinds in any case and with an optional
// "_condition" suffix.
func normalizeKind(kind string) string {
	k := strings.ToLower(strings.TrimSpace(kind))
	k = strings.ReplaceAll(k, "-", "_")
	return strings.TrimSuffix(k, "_condition")
}
