package engine

import (
	"fmt"

	"contagion/internal/dist"
	"contagion/internal/population"
	"contagion/internal/simtime"
)

// Infection is one infection episode of a person.
type Infection struct {
	Person           int
	Start            simtime.Time
	IncubationEnd    simtime.Time
	TransmissionEnd  simtime.Time
	DeathProbability float64
}

// StartInfections moves every listed person from Clean to Incubating and
// schedules the end of their incubation.
func (s *Simulator) StartInfections(now simtime.Time, ids []int) error {
	for _, id := range ids {
		p, err := s.pop.Person(id)
		if err != nil {
			return err
		}
		if p.Status != population.Clean || !p.Alive {
			return fmt.Errorf("person %d cannot be infected while %s (alive=%t)", id, p.Status, p.Alive)
		}
		p.Status = population.Incubating
		if err := s.stats.Update(IsInfected, p, 1); err != nil {
			return err
		}
		if p.TimesInfected == 0 {
			if err := s.stats.Update(HasBeenInfected, p, 1); err != nil {
				return err
			}
		}
		p.TimesInfected++

		incubation, err := s.model.IncubationPeriod(now, p)
		if err != nil {
			return fmt.Errorf("person %d: %w", id, err)
		}
		disease, err := s.model.DiseasePeriod(now, p)
		if err != nil {
			return fmt.Errorf("person %d: %w", id, err)
		}
		death, err := s.model.DeathProbability(now, p)
		if err != nil {
			return fmt.Errorf("person %d: %w", id, err)
		}
		inf := &Infection{
			Person:           id,
			Start:            now,
			IncubationEnd:    now + incubation,
			TransmissionEnd:  now + incubation + disease,
			DeathProbability: death,
		}
		s.queue.Push(Incubation{Infection: inf})
		s.metrics.Infected()
		s.logger.Debug("infection started", "person", id, "minute", int64(now),
			"incubation_end", int64(inf.IncubationEnd), "transmission_end", int64(inf.TransmissionEnd))
	}
	return nil
}

func (s *Simulator) activateIncubation(e Incubation) error {
	p, err := s.pop.Person(e.Infection.Person)
	if err != nil {
		return err
	}
	p.Status = population.Contagious
	s.queue.Push(InfectionEnd{Infection: e.Infection})
	return nil
}

func (s *Simulator) activateInfectionEnd(e InfectionEnd) error {
	p, err := s.pop.Person(e.Infection.Person)
	if err != nil {
		return err
	}
	p.Status = population.Clean
	if err := s.stats.Update(IsNotInfected, p, 1); err != nil {
		return err
	}
	if dist.FlipCoin(s.rng, e.Infection.DeathProbability*(1-p.Health)) {
		p.Alive = false
		if err := s.stats.Update(Dead, p, 1); err != nil {
			return err
		}
		s.metrics.Died()
		s.logger.Debug("person died", "person", p.ID, "minute", int64(e.Minute()))
	}
	s.model.ClearCache(p)
	return nil
}
