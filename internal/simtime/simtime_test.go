package simtime

import (
	"errors"
	"testing"
	"time"
)

func TestClockAdvance(t *testing.T) {
	c := NewClock(time.Time{})
	if !c.Epoch().Equal(DefaultEpoch) {
		t.Fatalf("expected default epoch, got %v", c.Epoch())
	}
	if err := c.AdvanceTo(90); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if err := c.AdvanceTo(90); err != nil {
		t.Fatalf("advance to same minute: %v", err)
	}
	if err := c.AdvanceTo(10); !errors.Is(err, ErrBackwards) {
		t.Fatalf("expected ErrBackwards, got %v", err)
	}
	if c.Now() != 90 {
		t.Fatalf("expected 90, got %d", c.Now())
	}
}

func TestWeekday(t *testing.T) {
	c := NewClock(DefaultEpoch)
	if got := c.Weekday(0); got != time.Monday {
		t.Fatalf("expected Monday, got %v", got)
	}
	if got := c.Weekday(5*Day + 3*Hour); got != time.Saturday {
		t.Fatalf("expected Saturday, got %v", got)
	}
}

func TestSpanAndFormat(t *testing.T) {
	s := Span{Days: 1, Hours: 2, Minutes: 3}
	if s.Time() != Day+2*Hour+3 {
		t.Fatalf("unexpected span minutes %d", s.Time())
	}
	if got := (Day + 90).String(); got != "d1 01:30" {
		t.Fatalf("unexpected format %q", got)
	}
	if !(Span{}).IsZero() {
		t.Fatalf("empty span should be zero")
	}
}
