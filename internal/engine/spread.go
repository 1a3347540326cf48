package engine

import (
	"fmt"

	"contagion/internal/disease"
	"contagion/internal/dist"
	"contagion/internal/population"
	"contagion/internal/simtime"
)

func (s *Simulator) activateVirusSpread(e VirusSpread) error {
	s.activateEdges()
	infected, err := s.transmit(e.At)
	if err != nil {
		return err
	}
	return s.StartInfections(e.At, infected)
}

// activateEdges makes available exactly the edges of every living person's
// current place.
func (s *Simulator) activateEdges() {
	s.pop.ResetAvailability()
	for _, p := range s.pop.People {
		if p.Alive {
			s.pop.ActivatePlace(p)
		}
	}
}

// transmit scans contagious people and returns the distinct ids newly
// infected, in order of first transmission.
func (s *Simulator) transmit(now simtime.Time) ([]int, error) {
	var infected []int
	seen := make(map[int]struct{})
	for _, src := range s.pop.People {
		if src.Status != population.Contagious {
			continue
		}
		for _, e := range src.Out {
			tgt := s.pop.People[e.To]
			if tgt.Status != population.Clean || !e.Active() {
				continue
			}
			p, err := s.transmissionProbability(now, src, tgt, e)
			if err != nil {
				return nil, err
			}
			if !dist.FlipCoin(s.rng, p) {
				continue
			}
			src.Transmissions = append(src.Transmissions, tgt.ID)
			if _, ok := seen[tgt.ID]; !ok {
				seen[tgt.ID] = struct{}{}
				infected = append(infected, tgt.ID)
			}
		}
	}
	return infected, nil
}

func (s *Simulator) transmissionProbability(now simtime.Time, src, tgt *population.Person, e *population.Edge) (float64, error) {
	srcRate, err := s.model.InfectiousRate(now, src)
	if err != nil {
		return 0, fmt.Errorf("person %d: %w", src.ID, err)
	}
	tgtRate, err := s.model.InfectiousRate(now, tgt)
	if err != nil {
		return 0, fmt.Errorf("person %d: %w", tgt.ID, err)
	}
	immunity, err := s.model.Immunity(now, tgt)
	if err != nil {
		return 0, fmt.Errorf("person %d: %w", tgt.ID, err)
	}
	period := s.cfg.SpreadPeriod
	p := disease.Standardize(srcRate, period) *
		disease.Standardize(tgtRate, period) *
		(1 - disease.Standardize(immunity, period)) *
		e.Potential
	if err := disease.CheckProbability("transmission probability", p); err != nil {
		return 0, fmt.Errorf("edge %d->%d: %w", e.From, e.To, err)
	}
	return p, nil
}
