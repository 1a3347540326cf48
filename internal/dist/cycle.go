package dist

import (
	"fmt"
	"math/rand/v2"
	"time"

	"contagion/internal/simtime"
)

// TimeCycle samples the (start offset, length) of a daily presence window.
type TimeCycle interface {
	Sample(r *rand.Rand, day time.Weekday) (start, length simtime.Time)
}

// WholeWeek samples start and length independently every day.
type WholeWeek struct {
	Start, Length Distribution
}

func (w WholeWeek) Sample(r *rand.Rand, _ time.Weekday) (simtime.Time, simtime.Time) {
	start := simtime.Time(w.Start.Sample(r))
	length := simtime.Time(w.Length.Sample(r))
	return start, length
}

// Weekend yields a zero-length window on weekdays.
type Weekend struct {
	Start, Length Distribution
}

func (w Weekend) Sample(r *rand.Rand, day time.Weekday) (simtime.Time, simtime.Time) {
	start := simtime.Time(w.Start.Sample(r))
	var length simtime.Time
	if day == time.Saturday || day == time.Sunday {
		length = simtime.Time(w.Length.Sample(r))
	}
	return start, length
}

const (
	CycleWholeWeek = "whole_week"
	CycleWeekend   = "weekend"
)

// CycleSpec is the file representation of a TimeCycle, in minutes.
type CycleSpec struct {
	Kind   string `yaml:"kind" json:"kind"`
	Start  Spec   `yaml:"start" json:"start"`
	Length Spec   `yaml:"length" json:"length"`
}

func (s CycleSpec) Build() (TimeCycle, error) {
	start, err := s.Start.Build()
	if err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}
	length, err := s.Length.Build()
	if err != nil {
		return nil, fmt.Errorf("length: %w", err)
	}
	switch s.Kind {
	case CycleWholeWeek, "":
		return WholeWeek{Start: start, Length: length}, nil
	case CycleWeekend:
		return Weekend{Start: start, Length: length}, nil
	default:
		return nil, fmt.Errorf("unknown time cycle kind %q", s.Kind)
	}
}
