package observe

import (
	"time"

	"contagion/internal/engine"
	"contagion/internal/simtime"
)

// Statistics scopes.
const (
	ScopePeople = "people"
	ScopeFamily = "family"
)

// StatisticsRecord is one snapshot of the health counters.
type StatisticsRecord struct {
	Observer      string
	ObservationID int
	Minute        simtime.Time
	Wall          time.Time
	Scope         string
	Counts        engine.Counts
}

// Confirmed is everyone ever infected.
func (r StatisticsRecord) Confirmed() int { return r.Counts.Get(engine.HasBeenInfected) }

// Active is everyone currently infected.
func (r StatisticsRecord) Active() int { return r.Counts.Get(engine.IsInfected) }

func (r StatisticsRecord) Dead() int { return r.Counts.Get(engine.Dead) }

// PersonRecord is one person as seen by one observation.
type PersonRecord struct {
	Observer      string
	ObservationID int
	Minute        simtime.Time
	PersonID      int
	Age           int
	Health        float64
	Gender        string
	Status        string
	Alive         bool
	Profession    bool
	TimesInfected int
	Quarantined   bool
	X, Y          float64
}

// CommunityRecord is one community as seen by one observation.
type CommunityRecord struct {
	Observer      string
	ObservationID int
	Minute        simtime.Time
	Type          string
	Index         int
	Open          []bool
	Closed        bool
}
