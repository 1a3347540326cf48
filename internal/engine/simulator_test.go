package engine

import (
	"context"
	"errors"
	"testing"

	"contagion/internal/disease"
	"contagion/internal/dist"
	"contagion/internal/population"
	"contagion/internal/simtime"
)

// threePeople is one family of three and a school whose students are 0 and 1
// and whose instructor is 2.
func threePeople(t *testing.T) *population.Population {
	t.Helper()
	pop := population.New()
	for range 3 {
		pop.AddPerson(30, population.Female, 0.5)
	}
	if _, err := pop.AddFamily(dist.Point{}, []int{0, 1, 2}); err != nil {
		t.Fatalf("add family: %v", err)
	}
	cycle := dist.WholeWeek{Start: dist.Constant{Value: 480}, Length: dist.Constant{Value: 240}}
	ct := pop.AddType("school",
		&population.SubCommunityType{Name: "student", Role: &population.Role{Priority: 2, PresenceProb: 1, Cycle: cycle}},
		&population.SubCommunityType{Name: "instructor", Role: &population.Role{Priority: 1, PresenceProb: 1, Cycle: cycle, Profession: true}},
	)
	c, err := pop.AddCommunity(ct, dist.Point{X: 10}, [][]int{{0, 1}, {2}})
	if err != nil {
		t.Fatalf("add community: %v", err)
	}
	if _, err := pop.Connect(c, 0, 0, 1, 0, 0.5); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if _, err := pop.Connect(c, 2, 1, 0, 0, 0.8); err != nil {
		t.Fatalf("connect: %v", err)
	}
	return pop
}

func newSimulator(t *testing.T, pop *population.Population, model disease.Model, cfg Config) *Simulator {
	t.Helper()
	sim, err := New(pop, model, cfg, Options{Rand: dist.NewRand(1)})
	if err != nil {
		t.Fatalf("new simulator: %v", err)
	}
	return sim
}

func checkPairing(t *testing.T, s *Statistics) {
	t.Helper()
	if s.Get(IsInfected)+s.Get(IsNotInfected) != s.Get(Alive) {
		t.Fatalf("infected %d + not infected %d != alive %d", s.Get(IsInfected), s.Get(IsNotInfected), s.Get(Alive))
	}
	if s.Get(Dead)+s.Get(Alive) != s.Get(All) {
		t.Fatalf("dead %d + alive %d != all %d", s.Get(Dead), s.Get(Alive), s.Get(All))
	}
	if s.Get(HasBeenInfected)+s.Get(HasNotBeenInfected) != s.Get(All) {
		t.Fatalf("has been %d + has not been %d != all %d", s.Get(HasBeenInfected), s.Get(HasNotBeenInfected), s.Get(All))
	}
}

func TestInitializeSeedsQueue(t *testing.T) {
	sim := newSimulator(t, threePeople(t), disease.Fixed{Incubation: 2 * simtime.Day, Disease: simtime.Day}, Config{
		EndTime:         simtime.Day,
		SpreadPeriod:    simtime.Hour,
		InitialInfected: []int{0},
	})
	if err := sim.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	q := sim.Queue()
	if q.Count(KindPlanDay) < 1 {
		t.Fatalf("expected at least one plan day")
	}
	if got := q.Count(KindVirusSpread); got != 25 {
		t.Fatalf("expected 25 virus spread events, got %d", got)
	}
	if got := q.Count(KindIncubation); got != 1 {
		t.Fatalf("expected one incubation event, got %d", got)
	}
	if sim.State() != StateInitializing {
		t.Fatalf("expected initializing, got %s", sim.State())
	}

	if err := sim.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if sim.State() != StateCompleted {
		t.Fatalf("expected completed, got %s", sim.State())
	}
	if sim.Now() < simtime.Day {
		t.Fatalf("clock stopped at %s", sim.Now())
	}
	if sim.Population().People[0].TimesInfected < 1 {
		t.Fatalf("person 0 was never infected")
	}
	if got := sim.Statistics().Get(HasBeenInfected); got != 1 {
		t.Fatalf("expected HAS_BEEN_INFECTED 1, got %d", got)
	}
	checkPairing(t, sim.Statistics())
}

func TestSpreadSeedsTerminalEventWhenPeriodDoesNotDivideEnd(t *testing.T) {
	sim := newSimulator(t, threePeople(t), disease.Fixed{}, Config{EndTime: 100, SpreadPeriod: 30})
	if err := sim.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if got := sim.Queue().Count(KindVirusSpread); got != 5 {
		t.Fatalf("expected spreads at 0, 30, 60, 90, 100; got %d events", got)
	}
	if err := sim.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestCertainTransmissionBetweenTwoPeople(t *testing.T) {
	pop := population.New()
	pop.AddPerson(40, population.Male, 1)
	pop.AddPerson(40, population.Female, 1)
	if _, err := pop.AddFamily(dist.Point{}, []int{0, 1}); err != nil {
		t.Fatalf("add family: %v", err)
	}
	model := disease.Fixed{Rate: 1, Immune: 0, Incubation: 0, Disease: simtime.Day}
	sim := newSimulator(t, pop, model, Config{EndTime: simtime.Day, SpreadPeriod: simtime.Hour, InitialInfected: []int{0}})
	if err := sim.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	for sim.Processed(KindVirusSpread) == 0 {
		if err := sim.Step(); err != nil {
			t.Fatalf("step: %v", err)
		}
	}
	a, b := pop.People[0], pop.People[1]
	if a.Status != population.Contagious {
		t.Fatalf("expected source contagious, got %s", a.Status)
	}
	if b.Status != population.Incubating {
		t.Fatalf("expected neighbour incubating, got %s", b.Status)
	}
	for _, e := range append(append([]*population.Edge{}, a.Out...), a.In...) {
		if !e.Active() {
			t.Fatalf("edge %d->%d inactive at home", e.From, e.To)
		}
	}
	if len(a.Transmissions) != 1 || a.Transmissions[0] != 1 {
		t.Fatalf("expected transmissions [1], got %v", a.Transmissions)
	}
	if got := sim.Statistics().Get(IsInfected); got != 2 {
		t.Fatalf("expected 2 infected, got %d", got)
	}
	r0, err := R0(pop, sim.Statistics())
	if err != nil {
		t.Fatalf("r0: %v", err)
	}
	if r0 != 0.5 {
		t.Fatalf("expected R0 0.5, got %v", r0)
	}
}

type statusChange struct {
	minute simtime.Time
	status population.Status
	alive  bool
}

func trace(t *testing.T, sim *Simulator, id int) []statusChange {
	t.Helper()
	if err := sim.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	p := sim.Population().People[id]
	last := statusChange{status: p.Status, alive: p.Alive}
	var out []statusChange
	for sim.Now() < sim.EndTime() {
		if err := sim.Step(); err != nil {
			t.Fatalf("step: %v", err)
		}
		checkPairing(t, sim.Statistics())
		if p.Status != last.status || p.Alive != last.alive {
			last = statusChange{minute: sim.Now(), status: p.Status, alive: p.Alive}
			out = append(out, last)
		}
	}
	return out
}

func TestInfectionLifecycle(t *testing.T) {
	for _, tc := range []struct {
		name  string
		death float64
		alive bool
	}{
		{name: "recovers", death: 0, alive: true},
		{name: "dies", death: 1, alive: false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			pop := population.New()
			pop.AddPerson(70, population.Male, 0)
			if _, err := pop.AddFamily(dist.Point{}, []int{0}); err != nil {
				t.Fatalf("add family: %v", err)
			}
			model := disease.Fixed{Incubation: 2 * simtime.Hour, Disease: 3 * simtime.Hour, Death: tc.death}
			sim := newSimulator(t, pop, model, Config{EndTime: simtime.Day, SpreadPeriod: simtime.Hour, InitialInfected: []int{0}})
			got := trace(t, sim, 0)
			want := []statusChange{
				{minute: 2 * simtime.Hour, status: population.Contagious, alive: true},
				{minute: 5 * simtime.Hour, status: population.Clean, alive: tc.alive},
			}
			if len(got) != len(want) {
				t.Fatalf("expected %d changes, got %+v", len(want), got)
			}
			for i := range want {
				if got[i] != want[i] {
					t.Fatalf("change %d: expected %+v, got %+v", i, want[i], got[i])
				}
			}
			stats := sim.Statistics()
			if tc.alive && stats.Get(Dead) != 0 {
				t.Fatalf("unexpected death")
			}
			if !tc.alive && (stats.Get(Dead) != 1 || stats.Get(IsNotInfected) != 0) {
				t.Fatalf("unexpected counts after death: %v", stats.Snapshot().Map())
			}
		})
	}
}

func TestRunIsReproducibleForSeed(t *testing.T) {
	spec := disease.Spec{
		InfectiousRate:   dist.Spec{Kind: dist.KindUniform, Low: 0.3, High: 0.6},
		Immunity:         dist.Spec{Kind: dist.KindUniform, Low: 0, High: 0.2},
		IncubationPeriod: dist.Spec{Kind: dist.KindUniform, Low: 600, High: 1200},
		DiseasePeriod:    dist.Spec{Kind: dist.KindUniform, Low: 1440, High: 2880},
		DeathProbability: dist.Spec{Kind: dist.KindConstant, Value: 0.5},
	}
	run := func() [][]statusChange {
		model, err := disease.New(spec, dist.NewRand(42))
		if err != nil {
			t.Fatalf("disease: %v", err)
		}
		pop := threePeople(t)
		sim := newSimulator(t, pop, model, Config{EndTime: 4 * simtime.Day, SpreadPeriod: 30, InitialInfected: []int{0}})
		if err := sim.Initialize(); err != nil {
			t.Fatalf("initialize: %v", err)
		}
		out := make([][]statusChange, pop.Size())
		last := make([]statusChange, pop.Size())
		for sim.Now() < sim.EndTime() {
			if err := sim.Step(); err != nil {
				t.Fatalf("step: %v", err)
			}
			for i, p := range pop.People {
				if p.Status != last[i].status || p.Alive != last[i].alive {
					last[i] = statusChange{minute: sim.Now(), status: p.Status, alive: p.Alive}
					out[i] = append(out[i], last[i])
				}
			}
		}
		return out
	}
	a, b := run(), run()
	if len(a[0]) == 0 {
		t.Fatalf("person 0 never changed state")
	}
	for i := range a {
		if len(a[i]) != len(b[i]) {
			t.Fatalf("person %d: traces differ in length: %+v vs %+v", i, a[i], b[i])
		}
		for j := range a[i] {
			if a[i][j] != b[i][j] {
				t.Fatalf("person %d change %d: %+v vs %+v", i, j, a[i][j], b[i][j])
			}
		}
	}
}

func placeEdges(pop *population.Population, p *population.Person) (out, in map[*population.Edge]bool) {
	out, in = make(map[*population.Edge]bool), make(map[*population.Edge]bool)
	var outs, ins []*population.Edge
	if p.Place.AtFamily() {
		f := pop.Families[p.Family]
		outs, ins = f.OutEdges(p.ID), f.InEdges(p.ID)
	} else {
		c := p.Place.Community
		outs, ins = c.OutEdges(p.ID, p.Place.Sub), c.InEdges(p.ID, p.Place.Sub)
	}
	for _, e := range outs {
		out[e] = true
	}
	for _, e := range ins {
		in[e] = true
	}
	return out, in
}

func TestEdgeActivationFollowsPlaces(t *testing.T) {
	pop := threePeople(t)
	sim := newSimulator(t, pop, disease.Fixed{Incubation: simtime.Day, Disease: simtime.Day}, Config{
		EndTime:      2 * simtime.Day,
		SpreadPeriod: 30,
	})
	if err := sim.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := pop.QuarantinePerson(2); err != nil {
		t.Fatalf("quarantine: %v", err)
	}
	sawCommunity := false
	for sim.Now() < sim.EndTime() {
		before := sim.Processed(KindVirusSpread)
		if err := sim.Step(); err != nil {
			t.Fatalf("step: %v", err)
		}
		if sim.Processed(KindVirusSpread) == before {
			continue
		}
		for _, p := range pop.People {
			if !p.Place.AtFamily() {
				sawCommunity = true
			}
			out, in := placeEdges(pop, p)
			for _, e := range p.Out {
				if e.FromAvailable != out[e] {
					t.Fatalf("minute %s: edge %d->%d from side available=%t", sim.Now(), e.From, e.To, e.FromAvailable)
				}
				if e.Active() != (e.FromAvailable && e.ToAvailable && !e.FromQuarantined && !e.ToQuarantined) {
					t.Fatalf("edge %d->%d active flag disagrees with its sides", e.From, e.To)
				}
				if e.Active() && (e.FromQuarantined || e.ToQuarantined) {
					t.Fatalf("edge %d->%d active while quarantined", e.From, e.To)
				}
			}
			for _, e := range p.In {
				if e.ToAvailable != in[e] {
					t.Fatalf("minute %s: edge %d->%d to side available=%t", sim.Now(), e.From, e.To, e.ToAvailable)
				}
			}
		}
	}
	if !sawCommunity {
		t.Fatalf("nobody ever went to school")
	}
	if !pop.People[2].Place.AtFamily() {
		t.Fatalf("quarantined instructor left home")
	}
}

type quarantineCommand struct {
	person int
	at     simtime.Time
	fired  bool
}

func (c *quarantineCommand) TakeAction(s *Simulator) error {
	if s.Now() < c.at {
		return nil
	}
	c.fired = true
	return s.Population().QuarantinePerson(c.person)
}

func (c *quarantineCommand) Done() bool { return c.fired }

type activeEdgeObserver struct {
	cmd     *quarantineCommand
	person  int
	checked int
	active  int
}

func (o *activeEdgeObserver) Observe(s *Simulator) error {
	if !o.cmd.fired {
		return nil
	}
	p := s.Population().People[o.person]
	o.checked++
	for _, e := range append(append([]*population.Edge{}, p.Out...), p.In...) {
		if e.Active() {
			o.active++
		}
	}
	return nil
}

func (o *activeEdgeObserver) Done() bool { return false }

func TestQuarantineMidRunDeactivatesEdges(t *testing.T) {
	pop := threePeople(t)
	sim := newSimulator(t, pop, disease.Fixed{Incubation: simtime.Day, Disease: simtime.Day}, Config{
		EndTime:      simtime.Day,
		SpreadPeriod: 60,
	})
	cmd := &quarantineCommand{person: 1, at: 8*simtime.Hour + 30}
	obs := &activeEdgeObserver{cmd: cmd, person: 1}
	sim.AddObserver(obs)
	sim.AddCommand(cmd)
	if err := sim.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !cmd.fired {
		t.Fatalf("command never fired")
	}
	p := pop.People[1]
	for _, e := range p.Out {
		if !e.FromQuarantined {
			t.Fatalf("edge %d->%d from side not quarantined", e.From, e.To)
		}
	}
	for _, e := range p.In {
		if !e.ToQuarantined {
			t.Fatalf("edge %d->%d to side not quarantined", e.From, e.To)
		}
	}
	if obs.checked == 0 {
		t.Fatalf("no tick observed after quarantine")
	}
	if obs.active != 0 {
		t.Fatalf("saw %d active edges touching a quarantined person", obs.active)
	}
	if sim.ActiveCommands() != 0 {
		t.Fatalf("fired command was not retired")
	}
}

type countingObserver struct {
	limit, calls int
	flushed      bool
}

func (o *countingObserver) Observe(*Simulator) error { o.calls++; return nil }
func (o *countingObserver) Done() bool               { return o.calls >= o.limit }
func (o *countingObserver) Flush() error             { o.flushed = true; return nil }

type recordingReporter struct{ reports int }

func (r *recordingReporter) Report(*Simulator) error { r.reports++; return nil }

func TestRetiredObserversAreSkippedAndFlushed(t *testing.T) {
	rep := &recordingReporter{}
	sim, err := New(threePeople(t), disease.Fixed{}, Config{EndTime: simtime.Day, SpreadPeriod: 60}, Options{Rand: dist.NewRand(2), Reporter: rep})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	obs := &countingObserver{limit: 3}
	sim.AddObserver(obs)
	if err := sim.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if obs.calls != 3 {
		t.Fatalf("expected 3 observations, got %d", obs.calls)
	}
	if !obs.flushed {
		t.Fatalf("observer not flushed")
	}
	if rep.reports != 1 {
		t.Fatalf("expected one report, got %d", rep.reports)
	}
}

func TestStepOnEmptyQueueFails(t *testing.T) {
	sim := newSimulator(t, threePeople(t), disease.Fixed{}, Config{EndTime: simtime.Day, SpreadPeriod: 60})
	if err := sim.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	for sim.Queue().Len() > 0 {
		if _, err := sim.Queue().Pop(); err != nil {
			t.Fatalf("pop: %v", err)
		}
	}
	if err := sim.Step(); !errors.Is(err, ErrEmptyQueue) {
		t.Fatalf("expected ErrEmptyQueue, got %v", err)
	}
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	sim := newSimulator(t, threePeople(t), disease.Fixed{}, Config{EndTime: simtime.Day, SpreadPeriod: 60})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sim.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if sim.State() != StateFailed {
		t.Fatalf("expected failed, got %s", sim.State())
	}
	if err := sim.Run(context.Background()); err == nil {
		t.Fatalf("expected failed simulator to refuse to run")
	}
}

func TestNewValidatesConfig(t *testing.T) {
	pop := threePeople(t)
	if _, err := New(pop, disease.Fixed{}, Config{EndTime: 10}, Options{}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for zero spread period, got %v", err)
	}
	if _, err := New(pop, disease.Fixed{}, Config{EndTime: 10, SpreadPeriod: 5, InitialInfected: []int{7}}, Options{}); !errors.Is(err, population.ErrUnknownPerson) {
		t.Fatalf("expected unknown person, got %v", err)
	}
}

func TestOutOfRangeSampleAbortsRun(t *testing.T) {
	pop := population.New()
	pop.AddPerson(40, population.Male, 1)
	pop.AddPerson(40, population.Female, 1)
	if _, err := pop.AddFamily(dist.Point{}, []int{0, 1}); err != nil {
		t.Fatalf("add family: %v", err)
	}
	sim := newSimulator(t, pop, disease.Fixed{Rate: 1.5, Disease: simtime.Day}, Config{
		EndTime: simtime.Day, SpreadPeriod: 60, InitialInfected: []int{0},
	})
	err := sim.Run(context.Background())
	if !errors.Is(err, disease.ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
	if sim.State() != StateFailed {
		t.Fatalf("expected failed, got %s", sim.State())
	}
}
