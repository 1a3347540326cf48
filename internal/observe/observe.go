// Package observe records snapshots of a running simulation whenever an
// observer's condition is satisfied.
package observe

import (
	"fmt"
	"hash/fnv"
	"math/rand/v2"

	"contagion/internal/dist"
	"contagion/internal/engine"
	"contagion/internal/policy"
	"contagion/internal/simtime"
)

// Scope selects what an observer records.
type Scope struct {
	People      bool `yaml:"observe_people" json:"observe_people"`
	Families    bool `yaml:"observe_families" json:"observe_families"`
	Communities bool `yaml:"observe_communities" json:"observe_communities"`
	Simulation  bool `yaml:"observe_simulation" json:"observe_simulation"`
}

// Observer implements engine.Observer.
type Observer struct {
	Name      string
	Condition policy.Condition
	Scope     Scope

	sink         Sink
	rng          *rand.Rand
	observations int
}

// New returns an observer writing to sink. Person positions are jittered
// with a generator derived from name so observing does not disturb the
// simulation's random stream.
func New(name string, cond policy.Condition, scope Scope, sink Sink) *Observer {
	h := fnv.New64a()
	h.Write([]byte(name))
	return &Observer{
		Name:      name,
		Condition: cond,
		Scope:     scope,
		sink:      sink,
		rng:       dist.NewRand(h.Sum64()),
	}
}

func (o *Observer) Observe(s *engine.Simulator) error {
	if o.Condition == nil {
		return nil
	}
	times, err := policy.Evaluate(o.Condition, s)
	if err != nil {
		return fmt.Errorf("observer %s: %w", o.Name, err)
	}
	for _, t := range times {
		if o.Scope.Simulation {
			o.sink.RecordStatistics(StatisticsRecord{
				Observer:      o.Name,
				ObservationID: o.observations,
				Minute:        t,
				Wall:          s.Clock().Wall(t),
				Scope:         ScopePeople,
				Counts:        s.Statistics().Snapshot(),
			})
		}
		if o.Scope.Families {
			o.sink.RecordStatistics(StatisticsRecord{
				Observer:      o.Name,
				ObservationID: o.observations,
				Minute:        t,
				Wall:          s.Clock().Wall(t),
				Scope:         ScopeFamily,
				Counts:        engine.FamilyStatistics(s.Population()),
			})
		}
		if o.Scope.People {
			o.sink.RecordPeople(o.people(s, t))
		}
		if o.Scope.Communities {
			o.sink.RecordCommunities(o.communities(s, t))
		}
		o.observations++
	}
	return nil
}

func (o *Observer) people(s *engine.Simulator, t simtime.Time) []PersonRecord {
	pop := s.Population()
	out := make([]PersonRecord, 0, pop.Size())
	for _, p := range pop.People {
		loc := pop.Location(p, o.rng)
		out = append(out, PersonRecord{
			Observer:      o.Name,
			ObservationID: o.observations,
			Minute:        t,
			PersonID:      p.ID,
			Age:           p.Age,
			Health:        p.Health,
			Gender:        p.Gender.String(),
			Status:        p.Status.String(),
			Alive:         p.Alive,
			Profession:    p.HasProfession,
			TimesInfected: p.TimesInfected,
			Quarantined:   p.Quarantined,
			X:             loc.X,
			Y:             loc.Y,
		})
	}
	return out
}

func (o *Observer) communities(s *engine.Simulator, t simtime.Time) []CommunityRecord {
	all := s.Population().AllCommunities()
	out := make([]CommunityRecord, 0, len(all))
	for _, c := range all {
		out = append(out, CommunityRecord{
			Observer:      o.Name,
			ObservationID: o.observations,
			Minute:        t,
			Type:          c.Type.Name,
			Index:         c.Index,
			Open:          c.OpenMask(),
			Closed:        c.Closed(),
		})
	}
	return out
}

func (o *Observer) Done() bool {
	return o.Condition == nil || policy.Removable(o.Condition)
}

// Flush flushes the sink. It runs once the simulation completes.
func (o *Observer) Flush() error {
	return o.sink.Flush()
}

// Observations is the number of satisfied times recorded so far.
func (o *Observer) Observations() int { return o.observations }
