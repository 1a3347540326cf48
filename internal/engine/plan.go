package engine

import (
	"contagion/internal/dist"
	"contagion/internal/population"
	"contagion/internal/simtime"
)

func (s *Simulator) activatePlanDay(e PlanDay) error {
	now := e.At
	day := s.clock.Weekday(now)
	for _, p := range s.pop.People {
		if !p.Alive || p.Quarantined {
			continue
		}
		var candidates []Interval
		for _, m := range p.Memberships {
			if m.Community.Closed() {
				continue
			}
			role := m.Role()
			prob := role.PresenceProb
			if !m.Community.IsOpen(m.Sub) {
				prob = 0
			}
			if !dist.FlipCoin(s.rng, prob) {
				continue
			}
			start, length := role.Cycle.Sample(s.rng, day)
			iv := Interval{
				Person:    p.ID,
				Start:     now + start,
				End:       now + start + length,
				Community: m.Community,
				Sub:       m.Sub,
				Priority:  role.Priority,
			}
			if err := iv.Validate(); err != nil {
				return err
			}
			candidates = append(candidates, iv)
		}
		for _, iv := range ResolveIntervals(candidates) {
			s.queue.Push(Transition{At: iv.Start, Person: p.ID, Community: iv.Community, Sub: iv.Sub, Start: true})
			s.queue.Push(Transition{At: iv.End, Person: p.ID, Community: iv.Community, Sub: iv.Sub, Start: false})
		}
	}
	return nil
}

func (s *Simulator) activateTransition(e Transition) error {
	p, err := s.pop.Person(e.Person)
	if err != nil {
		return err
	}
	if e.Start {
		p.Place = population.Place{Community: e.Community, Sub: e.Sub}
	} else {
		p.Place = population.Place{}
	}
	return nil
}

// planHorizon is the last minute a PlanDay is seeded for.
func planHorizon(end simtime.Time) simtime.Time {
	return simtime.Time(end.Days()) * simtime.Day
}
