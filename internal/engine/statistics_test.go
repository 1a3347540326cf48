package engine

import (
	"errors"
	"testing"
)

func TestStatisticsPairedUpdates(t *testing.T) {
	pop := threePeople(t)
	stats := NewStatistics(pop)
	if stats.Get(All) != 3 || stats.Get(Alive) != 3 || stats.Get(IsNotInfected) != 3 {
		t.Fatalf("unexpected initial counts: %v", stats.Snapshot().Map())
	}
	p := pop.People[0]
	if err := stats.Update(IsInfected, p, 1); err != nil {
		t.Fatalf("infect: %v", err)
	}
	if err := stats.Update(HasBeenInfected, p, 1); err != nil {
		t.Fatalf("has been: %v", err)
	}
	checkPairing(t, stats)
	if stats.Get(IsInfected) != 1 || stats.Get(IsNotInfected) != 2 {
		t.Fatalf("infection not paired: %v", stats.Snapshot().Map())
	}
	student, ok := stats.Role("student")
	if !ok {
		t.Fatalf("missing student counters")
	}
	if student.Get(All) != 2 || student.Get(IsInfected) != 1 {
		t.Fatalf("unexpected student counts: %v", student.Map())
	}
	instructor, _ := stats.Role("instructor")
	if instructor.Get(IsInfected) != 0 {
		t.Fatalf("instructor counters moved for a student")
	}

	if err := stats.Update(IsNotInfected, p, 1); err != nil {
		t.Fatalf("recover: %v", err)
	}
	if err := stats.Update(Dead, p, 1); err != nil {
		t.Fatalf("die: %v", err)
	}
	checkPairing(t, stats)
	if stats.Get(Dead) != 1 || stats.Get(Alive) != 2 {
		t.Fatalf("death not paired: %v", stats.Snapshot().Map())
	}
}

func TestStatisticsRejectNegativeCounters(t *testing.T) {
	pop := threePeople(t)
	stats := NewStatistics(pop)
	before := stats.Snapshot()
	if err := stats.Update(IsNotInfected, pop.People[2], 1); !errors.Is(err, ErrNegativeCount) {
		t.Fatalf("expected ErrNegativeCount, got %v", err)
	}
	if stats.Snapshot() != before {
		t.Fatalf("failed update changed counters")
	}
	instructor, _ := stats.Role("instructor")
	if instructor.Get(IsInfected) != 0 || instructor.Get(IsNotInfected) != 1 {
		t.Fatalf("failed update changed role counters: %v", instructor.Map())
	}
	if err := stats.Update(All, pop.People[2], 1); err == nil {
		t.Fatalf("expected All to be read only")
	}
}

func TestStatisticsRatios(t *testing.T) {
	pop := threePeople(t)
	stats := NewStatistics(pop)
	if _, err := stats.Ratio(IsInfected, Dead); !errors.Is(err, ErrZeroDenominator) {
		t.Fatalf("expected ErrZeroDenominator, got %v", err)
	}
	if err := stats.Update(IsInfected, pop.People[1], 1); err != nil {
		t.Fatalf("infect: %v", err)
	}
	got, err := stats.Ratio(IsInfected, All)
	if err != nil || got != 1.0/3 {
		t.Fatalf("expected 1/3, got %v (%v)", got, err)
	}
	got, err = stats.RoleRatio("student", IsInfected, All)
	if err != nil || got != 0.5 {
		t.Fatalf("expected 0.5, got %v (%v)", got, err)
	}
	if _, err := stats.RoleRatio("nurse", IsInfected, All); !errors.Is(err, ErrUnknownRole) {
		t.Fatalf("expected ErrUnknownRole, got %v", err)
	}
}

func TestFamilyStatisticsAndR0(t *testing.T) {
	pop := threePeople(t)
	stats := NewStatistics(pop)
	if _, err := R0(pop, stats); !errors.Is(err, ErrZeroDenominator) {
		t.Fatalf("expected ErrZeroDenominator before any infection, got %v", err)
	}
	pop.People[0].TimesInfected = 1
	pop.People[0].Transmissions = []int{1, 2}
	if err := stats.Update(HasBeenInfected, pop.People[0], 1); err != nil {
		t.Fatalf("update: %v", err)
	}
	r0, err := R0(pop, stats)
	if err != nil || r0 != 2 {
		t.Fatalf("expected R0 2, got %v (%v)", r0, err)
	}
	fam := FamilyStatistics(pop)
	if fam.Get(All) != 1 || fam.Get(HasBeenInfected) != 1 || fam.Get(HasNotBeenInfected) != 1 || fam.Get(IsInfected) != 0 {
		t.Fatalf("unexpected family counts: %v", fam.Map())
	}
}

func TestParseHealthCondition(t *testing.T) {
	c, err := ParseHealthCondition(" Has_Been_Infected ")
	if err != nil || c != HasBeenInfected {
		t.Fatalf("expected has_been_infected, got %v (%v)", c, err)
	}
	if _, err := ParseHealthCondition("sneezing"); err == nil {
		t.Fatalf("expected error for unknown condition")
	}
}
