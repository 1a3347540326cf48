package engine

import (
	"fmt"

	"contagion/internal/population"
	"contagion/internal/simtime"
)

// Kind identifies an event variant. Its value is also the tie-break priority
// between events scheduled for the same minute; lower runs first.
type Kind int

const (
	KindIncubation Kind = iota + 1
	KindInfection
	KindPlanDay
	KindTransition
	KindVirusSpread
)

// Kinds lists every event kind in priority order.
var Kinds = []Kind{KindIncubation, KindInfection, KindPlanDay, KindTransition, KindVirusSpread}

func (k Kind) String() string {
	switch k {
	case KindIncubation:
		return "incubation"
	case KindInfection:
		return "infection"
	case KindPlanDay:
		return "plan_day"
	case KindTransition:
		return "transition"
	case KindVirusSpread:
		return "virus_spread"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Event is a unit of scheduled work. The set of implementations is closed.
type Event interface {
	Minute() simtime.Time
	Kind() Kind
	isEvent()
}

// PlanDay draws every person's schedule for the day.
type PlanDay struct {
	At simtime.Time
}

// Transition moves a person into (Start) or out of a community sub-group.
type Transition struct {
	At        simtime.Time
	Person    int
	Community *population.Community
	Sub       int
	Start     bool
}

// VirusSpread activates edges for current places and runs transmission.
type VirusSpread struct {
	At simtime.Time
}

// Incubation ends the incubation period of an infection.
type Incubation struct {
	Infection *Infection
}

// InfectionEnd ends the contagious period of an infection.
type InfectionEnd struct {
	Infection *Infection
}

func (e PlanDay) Minute() simtime.Time      { return e.At }
func (e Transition) Minute() simtime.Time   { return e.At }
func (e VirusSpread) Minute() simtime.Time  { return e.At }
func (e Incubation) Minute() simtime.Time   { return e.Infection.IncubationEnd }
func (e InfectionEnd) Minute() simtime.Time { return e.Infection.TransmissionEnd }

func (PlanDay) Kind() Kind      { return KindPlanDay }
func (Transition) Kind() Kind   { return KindTransition }
func (VirusSpread) Kind() Kind  { return KindVirusSpread }
func (Incubation) Kind() Kind   { return KindIncubation }
func (InfectionEnd) Kind() Kind { return KindInfection }

func (PlanDay) isEvent()      {}
func (Transition) isEvent()   {}
func (VirusSpread) isEvent()  {}
func (Incubation) isEvent()   {}
func (InfectionEnd) isEvent() {}
