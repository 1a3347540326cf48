package report

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"contagion/internal/disease"
	"contagion/internal/dist"
	"contagion/internal/domain"
	"contagion/internal/engine"
	"contagion/internal/population"
)

func finishedSimulator(t *testing.T, reporter engine.Reporter) *engine.Simulator {
	t.Helper()
	pop := population.New()
	pop.AddPerson(30, population.Female, 1)
	pop.AddPerson(32, population.Male, 1)
	if _, err := pop.AddFamily(dist.Point{}, []int{0, 1}); err != nil {
		t.Fatalf("add family: %v", err)
	}
	model := disease.Fixed{Rate: 1, Immune: 0, Incubation: 0, Disease: 120, Death: 0}
	sim, err := engine.New(pop, model, engine.Config{EndTime: 1440, SpreadPeriod: 60, InitialInfected: []int{0}},
		engine.Options{Rand: dist.NewRand(3), Reporter: reporter})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := sim.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	return sim
}

func TestTextReporterLevels(t *testing.T) {
	var buf bytes.Buffer
	rep := &Text{W: &buf, Level: 2}
	finishedSimulator(t, rep)
	out := buf.String()
	for _, want := range []string{"People", "Families (1)", "has_been_infected", "events processed", "virus_spread", "R0"} {
		if !strings.Contains(out, want) {
			t.Fatalf("report misses %q:\n%s", want, out)
		}
	}
	sum := rep.Last()
	if sum == nil || sum.Population != 2 || sum.People.Get(engine.HasBeenInfected) == 0 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
	if sum.Processed[engine.KindVirusSpread] == 0 || sum.EventsProcessed() <= sum.Processed[engine.KindVirusSpread] {
		t.Fatalf("unexpected event counts: %v", sum.Processed)
	}

	buf.Reset()
	Write(&buf, *sum, 0)
	if buf.Len() != 0 {
		t.Fatalf("level 0 should print nothing")
	}
	Write(&buf, *sum, 1)
	if strings.Contains(buf.String(), "Families") {
		t.Fatalf("level 1 should skip family statistics")
	}
}

func TestListings(t *testing.T) {
	var buf bytes.Buffer
	r0 := 1.25
	Runs(&buf, []domain.Run{{ID: "r1", Scenario: "town", Status: domain.RunCompleted, Seed: 9, R0: &r0}})
	Series(&buf, []domain.Observation{{Observer: "daily", Minute: 1440, Scope: "people", HasBeenInfected: 4}})
	People(&buf, []domain.PersonSnapshot{{Observer: "final", PersonID: 3, Status: "immune", X: 1.25}})
	out := buf.String()
	for _, want := range []string{"r1", "1.25", "daily", "immune", "1.2"} {
		if !strings.Contains(out, want) {
			t.Fatalf("listing misses %q:\n%s", want, out)
		}
	}
}

func TestCurve(t *testing.T) {
	obs := []domain.Observation{
		{Observer: "daily", Minute: 0, Scope: "people", HasBeenInfected: 1, IsInfected: 1},
		{Observer: "daily", Minute: 0, Scope: "family", HasBeenInfected: 1},
		{Observer: "daily", Minute: 1440, Scope: "people", HasBeenInfected: 5, IsInfected: 4},
		{Observer: "daily", Minute: 2880, Scope: "people", HasBeenInfected: 9, IsInfected: 6, Dead: 1},
	}
	var buf bytes.Buffer
	if err := Curve(&buf, "town", obs); err != nil {
		t.Fatalf("curve: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG")) {
		t.Fatalf("expected png output")
	}
	if err := Curve(&buf, "town", obs[:2]); !errors.Is(err, ErrNotEnoughData) {
		t.Fatalf("expected ErrNotEnoughData, got %v", err)
	}
}
