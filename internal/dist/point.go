package dist

import (
	"fmt"
	"math"
	"math/rand/v2"
)

// Point is a location on the simulation plane.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p Point) Add(q Point) Point {
	return Point{X: p.X + q.X, Y: p.Y + q.Y}
}

// Distance is the euclidean distance between p and q.
func (p Point) Distance(q Point) float64 {
	return math.Hypot(q.X-p.X, q.Y-p.Y)
}

// PointSampler draws the two coordinates independently.
type PointSampler struct {
	X, Y Distribution
}

func (s PointSampler) Sample(r *rand.Rand) Point {
	return Point{X: s.X.Sample(r), Y: s.Y.Sample(r)}
}

// PointSpec describes a PointSampler. When Y is omitted both axes use X.
type PointSpec struct {
	X Spec  `yaml:"x" json:"x"`
	Y *Spec `yaml:"y,omitempty" json:"y,omitempty"`
}

func (s PointSpec) Build() (PointSampler, error) {
	x, err := s.X.Build()
	if err != nil {
		return PointSampler{}, fmt.Errorf("x: %w", err)
	}
	y := x
	if s.Y != nil {
		if y, err = s.Y.Build(); err != nil {
			return PointSampler{}, fmt.Errorf("y: %w", err)
		}
	}
	return PointSampler{X: x, Y: y}, nil
}

// LocationNoise is the per-axis jitter added to a place's base location.
var LocationNoise = PointSampler{X: Normal{Mean: 1, Std: 1}, Y: Normal{Mean: 1, Std: 1}}
