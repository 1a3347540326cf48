package engine

import (
	"errors"
	"fmt"
	"slices"

	"contagion/internal/population"
	"contagion/internal/simtime"
)

// ErrInvalidInterval reports an interval that ends before it starts.
var ErrInvalidInterval = errors.New("interval ends before it starts")

// Interval is a planned presence window of one person in a sub-community.
type Interval struct {
	Person    int
	Start     simtime.Time
	End       simtime.Time
	Community *population.Community
	Sub       int
	Priority  int
}

func (iv Interval) Duration() simtime.Time { return iv.End - iv.Start }

func (iv Interval) Validate() error {
	if iv.Start > iv.End {
		return fmt.Errorf("%w: person %d [%d, %d]", ErrInvalidInterval, iv.Person, iv.Start, iv.End)
	}
	return nil
}

// Overlaps reports whether either interval starts inside the other, bounds inclusive.
func Overlaps(a, b Interval) bool {
	return (a.Start <= b.Start && b.Start <= a.End) || (b.Start <= a.Start && a.Start <= b.End)
}

// ResolveIntervals greedily keeps the most important, earliest-ending,
// shortest candidates and drops everything overlapping a kept interval.
// The input slice is not modified.
func ResolveIntervals(candidates []Interval) []Interval {
	pending := slices.Clone(candidates)
	slices.SortStableFunc(pending, func(a, b Interval) int {
		if a.Priority != b.Priority {
			return a.Priority - b.Priority
		}
		if a.End != b.End {
			return cmpTime(a.End, b.End)
		}
		return cmpTime(a.Duration(), b.Duration())
	})
	var accepted []Interval
	for len(pending) > 0 {
		head := pending[0]
		accepted = append(accepted, head)
		rest := pending[:0]
		for _, iv := range pending[1:] {
			if !Overlaps(head, iv) {
				rest = append(rest, iv)
			}
		}
		pending = rest
	}
	return accepted
}

func cmpTime(a, b simtime.Time) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
