// Package simtime provides the minute-resolution clock used by the simulator.
package simtime

import (
	"errors"
	"fmt"
	"time"
)

// Time is a simulation instant in minutes since the run epoch.
type Time int64

const (
	Minute Time = 1
	Hour        = 60 * Minute
	Day         = 24 * Hour
	Week        = 7 * Day
)

// ErrBackwards is returned when a clock would move to an earlier minute.
var ErrBackwards = errors.New("clock cannot move backwards")

// DefaultEpoch is a Monday, so day 0 of a run is a weekday unless configured otherwise.
var DefaultEpoch = time.Date(2020, time.March, 2, 0, 0, 0, 0, time.UTC)

// Days returns the number of whole days elapsed at t.
func (t Time) Days() int64 {
	return int64(t / Day)
}

// MinuteOfDay returns the minute within the current day.
func (t Time) MinuteOfDay() int64 {
	return int64(t % Day)
}

func (t Time) String() string {
	m := t.MinuteOfDay()
	return fmt.Sprintf("d%d %02d:%02d", t.Days(), m/60, m%60)
}

// Span is a human-sized duration as written in scenario files.
type Span struct {
	Days    int64 `yaml:"days,omitempty" json:"days,omitempty"`
	Hours   int64 `yaml:"hours,omitempty" json:"hours,omitempty"`
	Minutes int64 `yaml:"minutes,omitempty" json:"minutes,omitempty"`
}

// Time converts the span to minutes.
func (s Span) Time() Time {
	return Time(s.Days)*Day + Time(s.Hours)*Hour + Time(s.Minutes)*Minute
}

// IsZero reports whether no component is set.
func (s Span) IsZero() bool {
	return s.Days == 0 && s.Hours == 0 && s.Minutes == 0
}

// Clock tracks the current simulation minute relative to a wall-clock epoch.
type Clock struct {
	epoch time.Time
	now   Time
}

// NewClock returns a clock at minute zero.
func NewClock(epoch time.Time) *Clock {
	if epoch.IsZero() {
		epoch = DefaultEpoch
	}
	return &Clock{epoch: epoch}
}

func (c *Clock) Now() Time { return c.now }

func (c *Clock) Epoch() time.Time { return c.epoch }

// AdvanceTo moves the clock forward to t.
func (c *Clock) AdvanceTo(t Time) error {
	if t < c.now {
		return fmt.Errorf("%w: %d -> %d", ErrBackwards, c.now, t)
	}
	c.now = t
	return nil
}

// Reset rewinds the clock to minute zero.
func (c *Clock) Reset() {
	c.now = 0
}

// Wall converts a simulation instant to wall-clock time.
func (c *Clock) Wall(t Time) time.Time {
	return c.epoch.Add(time.Duration(t) * time.Minute)
}

// Weekday returns the day of week at t.
func (c *Clock) Weekday(t Time) time.Weekday {
	return c.Wall(t).Weekday()
}
