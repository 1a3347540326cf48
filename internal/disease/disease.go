// Package disease samples per-person disease properties.
package disease

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"contagion/internal/dist"
	"contagion/internal/population"
	"contagion/internal/simtime"
)

// ErrOutOfRange reports a sample outside its admissible range.
var ErrOutOfRange = errors.New("disease sample out of range")

// ReferenceWindow is the window, in minutes, raw rates are expressed over.
const ReferenceWindow = 720

// DefaultReinfectionProbability is the susceptibility used once a person has
// already been infected.
const DefaultReinfectionProbability = 0.02

// Model is the disease model consulted by the engine.
type Model interface {
	InfectiousRate(now simtime.Time, p *population.Person) (float64, error)
	Immunity(now simtime.Time, p *population.Person) (float64, error)
	IncubationPeriod(now simtime.Time, p *population.Person) (simtime.Time, error)
	DiseasePeriod(now simtime.Time, p *population.Person) (simtime.Time, error)
	DeathProbability(now simtime.Time, p *population.Person) (float64, error)
	// ClearCache drops cached samples so the next episode resamples.
	ClearCache(p *population.Person)
}

// Standardize rescales a raw per-window probability to a period of the given length.
func Standardize(raw float64, period simtime.Time) float64 {
	return 1 - math.Pow(1-raw, float64(period)/ReferenceWindow)
}

// CheckProbability returns ErrOutOfRange unless v is in [0,1].
func CheckProbability(name string, v float64) error {
	if math.IsNaN(v) || v < 0 || v > 1 {
		return fmt.Errorf("%w: %s = %v", ErrOutOfRange, name, v)
	}
	return nil
}

// Spec is the file form of a Properties model. Periods are in minutes.
type Spec struct {
	InfectiousRate         dist.Spec `yaml:"infectious_rate" json:"infectious_rate"`
	Immunity               dist.Spec `yaml:"immunity" json:"immunity"`
	ReinfectionProbability *float64  `yaml:"reinfection_probability,omitempty" json:"reinfection_probability,omitempty"`
	IncubationPeriod       dist.Spec `yaml:"incubation_period" json:"incubation_period"`
	DiseasePeriod          dist.Spec `yaml:"disease_period" json:"disease_period"`
	DeathProbability       dist.Spec `yaml:"death_probability" json:"death_probability"`
}

// Characteristics summarises the samples drawn during a run.
type Characteristics struct {
	Infections           int
	MeanIncubation       float64
	MeanDisease          float64
	MeanDeathProbability float64
}

// Properties samples each property from its own distribution. Infectious rate
// and immunity are cached per person until ClearCache.
type Properties struct {
	rate, immunity, incubation, disease, death dist.Distribution
	reinfection                                float64
	r                                          *rand.Rand

	rateCache     map[int]float64
	immunityCache map[int]float64

	incubationSum, diseaseSum, deathSum float64
	incubationN, diseaseN, deathN       int
}

// New compiles spec into a Properties model drawing from r.
func New(spec Spec, r *rand.Rand) (*Properties, error) {
	p := &Properties{
		reinfection:   DefaultReinfectionProbability,
		r:             r,
		rateCache:     make(map[int]float64),
		immunityCache: make(map[int]float64),
	}
	if spec.ReinfectionProbability != nil {
		if err := CheckProbability("reinfection_probability", *spec.ReinfectionProbability); err != nil {
			return nil, err
		}
		p.reinfection = *spec.ReinfectionProbability
	}
	var err error
	for _, f := range []struct {
		name string
		spec dist.Spec
		dst  *dist.Distribution
	}{
		{"infectious_rate", spec.InfectiousRate, &p.rate},
		{"immunity", spec.Immunity, &p.immunity},
		{"incubation_period", spec.IncubationPeriod, &p.incubation},
		{"disease_period", spec.DiseasePeriod, &p.disease},
		{"death_probability", spec.DeathProbability, &p.death},
	} {
		if *f.dst, err = f.spec.Build(); err != nil {
			return nil, fmt.Errorf("%s: %w", f.name, err)
		}
	}
	return p, nil
}

func (m *Properties) InfectiousRate(_ simtime.Time, p *population.Person) (float64, error) {
	if v, ok := m.rateCache[p.ID]; ok {
		return v, nil
	}
	v := m.rate.Sample(m.r)
	if err := CheckProbability("infectious_rate", v); err != nil {
		return 0, err
	}
	m.rateCache[p.ID] = v
	return v, nil
}

// Immunity samples the base distribution for a first infection and uses
// 1 - reinfection probability afterwards.
func (m *Properties) Immunity(_ simtime.Time, p *population.Person) (float64, error) {
	if v, ok := m.immunityCache[p.ID]; ok {
		return v, nil
	}
	v := 1 - m.reinfection
	if p.TimesInfected == 0 {
		v = m.immunity.Sample(m.r)
	}
	if err := CheckProbability("immunity", v); err != nil {
		return 0, err
	}
	m.immunityCache[p.ID] = v
	return v, nil
}

func (m *Properties) IncubationPeriod(_ simtime.Time, _ *population.Person) (simtime.Time, error) {
	v := m.incubation.Sample(m.r)
	if v < 0 {
		return 0, fmt.Errorf("%w: incubation_period = %v", ErrOutOfRange, v)
	}
	m.incubationSum += v
	m.incubationN++
	return simtime.Time(v), nil
}

func (m *Properties) DiseasePeriod(_ simtime.Time, _ *population.Person) (simtime.Time, error) {
	v := m.disease.Sample(m.r)
	if v < 0 {
		return 0, fmt.Errorf("%w: disease_period = %v", ErrOutOfRange, v)
	}
	m.diseaseSum += v
	m.diseaseN++
	return simtime.Time(v), nil
}

func (m *Properties) DeathProbability(_ simtime.Time, _ *population.Person) (float64, error) {
	v := m.death.Sample(m.r)
	if err := CheckProbability("death_probability", v); err != nil {
		return 0, err
	}
	m.deathSum += v
	m.deathN++
	return v, nil
}

func (m *Properties) ClearCache(p *population.Person) {
	delete(m.rateCache, p.ID)
	delete(m.immunityCache, p.ID)
}

// Characteristics reports the means of the samples drawn so far.
func (m *Properties) Characteristics() Characteristics {
	c := Characteristics{Infections: m.deathN}
	if m.incubationN > 0 {
		c.MeanIncubation = m.incubationSum / float64(m.incubationN)
	}
	if m.diseaseN > 0 {
		c.MeanDisease = m.diseaseSum / float64(m.diseaseN)
	}
	if m.deathN > 0 {
		c.MeanDeathProbability = m.deathSum / float64(m.deathN)
	}
	return c
}

// Fixed returns the same values for every person. Useful for calibration runs.
type Fixed struct {
	Rate       float64
	Immune     float64
	Incubation simtime.Time
	Disease    simtime.Time
	Death      float64
}

func (f Fixed) InfectiousRate(simtime.Time, *population.Person) (float64, error) {
	return f.Rate, CheckProbability("infectious_rate", f.Rate)
}

func (f Fixed) Immunity(simtime.Time, *population.Person) (float64, error) {
	return f.Immune, CheckProbability("immunity", f.Immune)
}

func (f Fixed) IncubationPeriod(simtime.Time, *population.Person) (simtime.Time, error) {
	return f.Incubation, nil
}

func (f Fixed) DiseasePeriod(simtime.Time, *population.Person) (simtime.Time, error) {
	return f.Disease, nil
}

func (f Fixed) DeathProbability(simtime.Time, *population.Person) (float64, error) {
	return f.Death, CheckProbability("death_probability", f.Death)
}

func (Fixed) ClearCache(*population.Person) {}
