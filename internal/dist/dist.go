// Package dist holds the sampling primitives used by population generation,
// the disease model and daily planning.
package dist

import (
	"fmt"
	"math"
	"math/rand/v2"
)

// Distribution is a univariate distribution that can be sampled and evaluated.
type Distribution interface {
	Sample(r *rand.Rand) float64
	PDF(x float64) float64
}

// NewRand returns a PCG-backed generator for seed.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// FlipCoin returns true with probability p. Degenerate probabilities do not
// consume randomness.
func FlipCoin(r *rand.Rand, p float64) bool {
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}
	return r.Float64() < p
}

type Constant struct {
	Value float64
}

func (c Constant) Sample(*rand.Rand) float64 { return c.Value }

func (c Constant) PDF(x float64) float64 {
	if x == c.Value {
		return 1
	}
	return 0
}

type Uniform struct {
	Low, High float64
}

func (u Uniform) Sample(r *rand.Rand) float64 {
	return u.Low + r.Float64()*(u.High-u.Low)
}

func (u Uniform) PDF(x float64) float64 {
	if x < u.Low || x > u.High {
		return 0
	}
	if u.High == u.Low {
		return 1
	}
	return 1 / (u.High - u.Low)
}

type Normal struct {
	Mean, Std float64
}

func (n Normal) Sample(r *rand.Rand) float64 {
	return n.Mean + n.Std*r.NormFloat64()
}

func (n Normal) PDF(x float64) float64 {
	if n.Std == 0 {
		return Constant{Value: n.Mean}.PDF(x)
	}
	z := (x - n.Mean) / n.Std
	return math.Exp(-z*z/2) / (n.Std * math.Sqrt(2*math.Pi))
}

func (n Normal) cdf(x float64) float64 {
	if n.Std == 0 {
		if x < n.Mean {
			return 0
		}
		return 1
	}
	return 0.5 * (1 + math.Erf((x-n.Mean)/(n.Std*math.Sqrt2)))
}

// TruncatedNormal is a normal distribution restricted to [Low, High].
type TruncatedNormal struct {
	Mean, Std, Low, High float64
}

const maxRejections = 64

func (t TruncatedNormal) Sample(r *rand.Rand) float64 {
	n := Normal{Mean: t.Mean, Std: t.Std}
	for range maxRejections {
		if v := n.Sample(r); v >= t.Low && v <= t.High {
			return v
		}
	}
	return math.Min(math.Max(t.Mean, t.Low), t.High)
}

func (t TruncatedNormal) PDF(x float64) float64 {
	if x < t.Low || x > t.High {
		return 0
	}
	n := Normal{Mean: t.Mean, Std: t.Std}
	mass := n.cdf(t.High) - n.cdf(t.Low)
	if mass <= 0 {
		return 0
	}
	return n.PDF(x) / mass
}

type Bernoulli struct {
	P float64
}

func (b Bernoulli) Sample(r *rand.Rand) float64 {
	if FlipCoin(r, b.P) {
		return 1
	}
	return 0
}

func (b Bernoulli) PDF(x float64) float64 {
	switch x {
	case 1:
		return b.P
	case 0:
		return 1 - b.P
	}
	return 0
}

// UniformSet picks one of Values with equal probability.
type UniformSet struct {
	Values []float64
}

func (u UniformSet) Sample(r *rand.Rand) float64 {
	return u.Values[r.IntN(len(u.Values))]
}

func (u UniformSet) PDF(x float64) float64 {
	if len(u.Values) == 0 {
		return 0
	}
	hits := 0
	for _, v := range u.Values {
		if v == x {
			hits++
		}
	}
	return float64(hits) / float64(len(u.Values))
}

type Exponential struct {
	Rate float64
}

func (e Exponential) Sample(r *rand.Rand) float64 {
	return r.ExpFloat64() / e.Rate
}

func (e Exponential) PDF(x float64) float64 {
	if x < 0 {
		return 0
	}
	return e.Rate * math.Exp(-e.Rate*x)
}

// Kinds accepted by Spec.
const (
	KindConstant        = "constant"
	KindUniform         = "uniform"
	KindNormal          = "normal"
	KindTruncatedNormal = "truncated_normal"
	KindBernoulli       = "bernoulli"
	KindUniformSet      = "uniform_set"
	KindExponential     = "exponential"
)

// Spec is the file representation of a Distribution.
type Spec struct {
	Kind   string    `yaml:"kind" json:"kind"`
	Value  float64   `yaml:"value,omitempty" json:"value,omitempty"`
	Low    float64   `yaml:"low,omitempty" json:"low,omitempty"`
	High   float64   `yaml:"high,omitempty" json:"high,omitempty"`
	Mean   float64   `yaml:"mean,omitempty" json:"mean,omitempty"`
	Std    float64   `yaml:"std,omitempty" json:"std,omitempty"`
	P      float64   `yaml:"p,omitempty" json:"p,omitempty"`
	Rate   float64   `yaml:"rate,omitempty" json:"rate,omitempty"`
	Values []float64 `yaml:"values,omitempty" json:"values,omitempty"`
}

// Build validates the spec and returns the distribution it describes.
func (s Spec) Build() (Distribution, error) {
	switch s.Kind {
	case KindConstant:
		return Constant{Value: s.Value}, nil
	case KindUniform:
		if s.Low > s.High {
			return nil, fmt.Errorf("uniform: low %v > high %v", s.Low, s.High)
		}
		return Uniform{Low: s.Low, High: s.High}, nil
	case KindNormal:
		if s.Std < 0 {
			return nil, fmt.Errorf("normal: negative std %v", s.Std)
		}
		return Normal{Mean: s.Mean, Std: s.Std}, nil
	case KindTruncatedNormal:
		if s.Std < 0 {
			return nil, fmt.Errorf("truncated_normal: negative std %v", s.Std)
		}
		if s.Low > s.High {
			return nil, fmt.Errorf("truncated_normal: low %v > high %v", s.Low, s.High)
		}
		return TruncatedNormal{Mean: s.Mean, Std: s.Std, Low: s.Low, High: s.High}, nil
	case KindBernoulli:
		if s.P < 0 || s.P > 1 {
			return nil, fmt.Errorf("bernoulli: p %v outside [0,1]", s.P)
		}
		return Bernoulli{P: s.P}, nil
	case KindUniformSet:
		if len(s.Values) == 0 {
			return nil, fmt.Errorf("uniform_set: values required")
		}
		return UniformSet{Values: append([]float64(nil), s.Values...)}, nil
	case KindExponential:
		if s.Rate <= 0 {
			return nil, fmt.Errorf("exponential: rate must be positive")
		}
		return Exponential{Rate: s.Rate}, nil
	case "":
		return nil, fmt.Errorf("distribution kind is required")
	default:
		return nil, fmt.Errorf("unknown distribution kind %q", s.Kind)
	}
}
