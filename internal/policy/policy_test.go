package policy

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/charmbracelet/log"

	"contagion/internal/disease"
	"contagion/internal/dist"
	"contagion/internal/engine"
	"contagion/internal/population"
	"contagion/internal/simtime"
)

func testPopulation(t *testing.T) *population.Population {
	t.Helper()
	pop := population.New()
	for range 4 {
		pop.AddPerson(30, population.Male, 0.5)
	}
	if _, err := pop.AddFamily(dist.Point{}, []int{0, 1}); err != nil {
		t.Fatalf("add family: %v", err)
	}
	if _, err := pop.AddFamily(dist.Point{X: 5}, []int{2, 3}); err != nil {
		t.Fatalf("add family: %v", err)
	}
	cycle := dist.WholeWeek{Start: dist.Constant{Value: 480}, Length: dist.Constant{Value: 240}}
	ct := pop.AddType("school",
		&population.SubCommunityType{Name: "student", Role: &population.Role{Priority: 2, PresenceProb: 1, Cycle: cycle}},
		&population.SubCommunityType{Name: "instructor", Role: &population.Role{Priority: 1, PresenceProb: 1, Cycle: cycle, Profession: true}},
	)
	if _, err := pop.AddCommunity(ct, dist.Point{X: 10}, [][]int{{0, 2}, {1}}); err != nil {
		t.Fatalf("add community: %v", err)
	}
	if _, err := pop.AddCommunity(ct, dist.Point{X: 20}, [][]int{{3}, {}}); err != nil {
		t.Fatalf("add community: %v", err)
	}
	return pop
}

func testSimulator(t *testing.T, pop *population.Population) *engine.Simulator {
	t.Helper()
	sim, err := engine.New(pop, disease.Fixed{Incubation: simtime.Day, Disease: simtime.Day}, engine.Config{
		EndTime:      simtime.Day,
		SpreadPeriod: simtime.Hour,
	}, engine.Options{Rand: dist.NewRand(5)})
	if err != nil {
		t.Fatalf("new simulator: %v", err)
	}
	if err := sim.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return sim
}

func quiet() *log.Logger {
	return log.New(io.Discard)
}

func TestParseOperator(t *testing.T) {
	op, err := ParseOperator(" GE ")
	if err != nil || op != OpGE {
		t.Fatalf("expected ge, got %q (%v)", op, err)
	}
	if _, err := ParseOperator("approx"); err == nil {
		t.Fatalf("expected error for unknown operator")
	}
	if !OpLE.Compare(1, 1) || OpLT.Compare(1, 1) || !OpNE.Compare(1, 2) || OpGT.Compare(0, 1) {
		t.Fatalf("operator comparison mismatch")
	}
}

func TestTimePointFiresOnceAfterDeadline(t *testing.T) {
	sim := testSimulator(t, testPopulation(t))
	cond := &TimePoint{Deadline: 2 * simtime.Hour}
	var fired []simtime.Time
	var firedAt simtime.Time
	for sim.Now() < sim.EndTime() {
		if err := sim.Step(); err != nil {
			t.Fatalf("step: %v", err)
		}
		times, err := Evaluate(cond, sim)
		if err != nil {
			t.Fatalf("evaluate: %v", err)
		}
		if len(times) > 0 {
			firedAt = sim.Now()
		}
		fired = append(fired, times...)
	}
	if len(fired) != 1 || fired[0] != 2*simtime.Hour {
		t.Fatalf("expected one firing at the deadline, got %v", fired)
	}
	if firedAt <= 2*simtime.Hour {
		t.Fatalf("fired at %s, before the deadline had passed", firedAt)
	}
	if !Removable(cond) {
		t.Fatalf("satisfied time point should be removable")
	}
}

func TestTimePeriodYieldsEveryPassedPoint(t *testing.T) {
	sim := testSimulator(t, testPopulation(t))
	cond := &TimePeriod{Period: 6 * simtime.Hour}
	if Removable(cond) {
		t.Fatalf("unexpanded period should not be removable")
	}
	var fired []simtime.Time
	for sim.Now() < sim.EndTime() {
		if err := sim.Step(); err != nil {
			t.Fatalf("step: %v", err)
		}
		times, err := Evaluate(cond, sim)
		if err != nil {
			t.Fatalf("evaluate: %v", err)
		}
		fired = append(fired, times...)
	}
	want := []simtime.Time{0, 6 * simtime.Hour, 12 * simtime.Hour, 18 * simtime.Hour}
	if len(fired) != len(want) {
		t.Fatalf("expected %v, got %v", want, fired)
	}
	for i := range want {
		if fired[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, fired)
		}
	}
	if Removable(cond) {
		t.Fatalf("the point at the end time is still pending")
	}
}

func TestStatisticalRatioRearms(t *testing.T) {
	pop := testPopulation(t)
	sim := testSimulator(t, pop)
	stats := sim.Statistics()
	cond := &StatisticalRatio{Dividend: engine.IsInfected, Divisor: engine.All, Operator: OpGE, Target: 0.25, MaxSatisfaction: 2}
	eval := func() int {
		t.Helper()
		times, err := Evaluate(cond, sim)
		if err != nil {
			t.Fatalf("evaluate: %v", err)
		}
		return len(times)
	}
	p := pop.People[0]
	if eval() != 0 {
		t.Fatalf("fired with nobody infected")
	}
	if err := stats.Update(engine.IsInfected, p, 1); err != nil {
		t.Fatalf("update: %v", err)
	}
	if eval() != 1 {
		t.Fatalf("expected firing at 1/4 infected")
	}
	if eval() != 0 {
		t.Fatalf("fired again without re-arming")
	}
	if err := stats.Update(engine.IsNotInfected, p, 1); err != nil {
		t.Fatalf("update: %v", err)
	}
	if eval() != 0 {
		t.Fatalf("fired below target")
	}
	if err := stats.Update(engine.IsInfected, p, 1); err != nil {
		t.Fatalf("update: %v", err)
	}
	if eval() != 1 {
		t.Fatalf("expected second firing after re-arming")
	}
	if !Removable(cond) {
		t.Fatalf("exhausted condition should be removable")
	}
}

func TestStatisticalRatioZeroDenominator(t *testing.T) {
	sim := testSimulator(t, testPopulation(t))
	cond := &StatisticalRatio{Dividend: engine.IsInfected, Divisor: engine.Dead, Operator: OpGT, Target: 0, MaxSatisfaction: 1}
	if _, err := Evaluate(cond, sim); !errors.Is(err, engine.ErrZeroDenominator) {
		t.Fatalf("expected ErrZeroDenominator, got %v", err)
	}
}

func TestStatisticalRatioRoleAndFamily(t *testing.T) {
	pop := testPopulation(t)
	sim := testSimulator(t, pop)
	if err := sim.Statistics().Update(engine.IsInfected, pop.People[0], 1); err != nil {
		t.Fatalf("update: %v", err)
	}
	pop.People[0].Status = population.Incubating

	role := &StatisticalRatioRole{Role: "student", Dividend: engine.IsInfected, Divisor: engine.All, Operator: OpGT, Target: 0.3, MaxSatisfaction: 1}
	times, err := Evaluate(role, sim)
	if err != nil || len(times) != 1 {
		t.Fatalf("expected role condition to fire, got %v (%v)", times, err)
	}
	instructor := &StatisticalRatioRole{Role: "instructor", Dividend: engine.IsInfected, Divisor: engine.All, Operator: OpGT, Target: 0, MaxSatisfaction: 1}
	if times, _ := Evaluate(instructor, sim); len(times) != 0 {
		t.Fatalf("instructor condition fired without an infected instructor")
	}

	fam := &StatisticalFamily{Stat: engine.IsInfected, Operator: OpEQ, Target: 0.5, MaxSatisfaction: 1}
	times, err = Evaluate(fam, sim)
	if err != nil || len(times) != 1 {
		t.Fatalf("expected family condition to fire, got %v (%v)", times, err)
	}
}

func TestApplyQuarantineActions(t *testing.T) {
	pop := testPopulation(t)
	sim := testSimulator(t, pop)
	apply := func(a Action) {
		t.Helper()
		if err := Validate(a, pop); err != nil {
			t.Fatalf("%s: validate: %v", a.Name(), err)
		}
		if err := Apply(a, sim, quiet()); err != nil {
			t.Fatalf("%s: %v", a.Name(), err)
		}
	}

	apply(QuarantineCommunity{Type: "school", Index: 1})
	if !pop.Communities[0][1].Closed() || pop.Communities[0][0].Closed() {
		t.Fatalf("expected only school 1 closed")
	}
	apply(QuarantineCommunityType{Type: "school"})
	apply(UnquarantineCommunity{Type: "school", Index: 0})
	if pop.Communities[0][0].Closed() || !pop.Communities[0][1].Closed() {
		t.Fatalf("expected only school 0 open")
	}
	apply(UnquarantineCommunityType{Type: "school"})

	apply(QuarantinePeople{IDs: []int{1, 3}})
	for id, want := range []bool{false, true, false, true} {
		if pop.People[id].Quarantined != want {
			t.Fatalf("person %d quarantined=%t", id, pop.People[id].Quarantined)
		}
	}
	apply(UnquarantinePeople{IDs: []int{1, 3}})
	apply(QuarantineFamilies{IDs: []int{1}})
	if !pop.Families[1].Quarantined || !pop.People[2].Quarantined || pop.People[0].Quarantined {
		t.Fatalf("family 1 not quarantined alone")
	}
	apply(UnquarantineFamily{ID: 1})
	apply(QuarantineAllPeople{})
	for _, p := range pop.People {
		if !p.Quarantined {
			t.Fatalf("person %d not quarantined", p.ID)
		}
	}
	apply(UnquarantineAllPeople{})

	pop.People[2].Status = population.Contagious
	apply(QuarantineDiseasedNoisy{Probability: 0})
	if pop.People[2].Quarantined {
		t.Fatalf("undetectable disease was detected")
	}
	apply(QuarantineDiseased{})
	if !pop.People[2].Quarantined || pop.People[0].Quarantined {
		t.Fatalf("expected only the diseased person quarantined")
	}
	apply(UnquarantineDiseased{})
	if pop.People[2].Quarantined {
		t.Fatalf("diseased person still quarantined")
	}

	apply(RestrictRoles{Role: "student", Ratio: 0.75})
	for _, r := range pop.RoleByName("student") {
		if r.PresenceProb != 0.25 {
			t.Fatalf("expected presence 0.25, got %v", r.PresenceProb)
		}
	}
}

func TestValidateRejectsUnknownTargets(t *testing.T) {
	pop := testPopulation(t)
	for _, a := range []Action{
		QuarantineCommunity{Type: "school", Index: 2},
		QuarantineCommunityType{Type: "office"},
		QuarantineFamilies{IDs: []int{0, 9}},
		UnquarantinePerson{ID: 4},
		RestrictRoles{Role: "nurse", Ratio: 0.5},
		RestrictRoles{Role: "student", Ratio: 1.5},
		QuarantineDiseasedNoisy{Probability: -0.1},
	} {
		if err := Validate(a, pop); err == nil {
			t.Fatalf("%s %+v: expected validation error", a.Name(), a)
		}
	}
	if err := Validate(Nope{}, pop); err != nil {
		t.Fatalf("nope: %v", err)
	}
}

func TestCommandRunsOnceAndRetires(t *testing.T) {
	pop := testPopulation(t)
	sim, err := engine.New(pop, disease.Fixed{Incubation: simtime.Day, Disease: simtime.Day}, engine.Config{
		EndTime:      simtime.Day,
		SpreadPeriod: simtime.Hour,
	}, engine.Options{Rand: dist.NewRand(5)})
	if err != nil {
		t.Fatalf("new simulator: %v", err)
	}
	cmd := NewCommand(&TimePoint{Deadline: 60}, QuarantineCommunityType{Type: "school"}, quiet())
	nope := NopeCommand()
	sim.AddCommand(cmd)
	sim.AddCommand(nope)
	if !nope.Done() {
		t.Fatalf("nope should be done immediately")
	}
	if err := sim.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if cmd.Executions() != 1 || !cmd.Done() {
		t.Fatalf("expected one execution, got %d", cmd.Executions())
	}
	for _, c := range pop.AllCommunities() {
		if !c.Closed() {
			t.Fatalf("community %d still open", c.ID)
		}
	}
	for _, p := range pop.People {
		if !p.Place.AtFamily() {
			t.Fatalf("person %d left home after schools closed", p.ID)
		}
	}
	if sim.ActiveCommands() != 0 {
		t.Fatalf("expected every command retired, %d active", sim.ActiveCommands())
	}
}
