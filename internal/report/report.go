// Package report renders run summaries as text tables and charts.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"contagion/internal/disease"
	"contagion/internal/domain"
	"contagion/internal/engine"
	"contagion/internal/simtime"
)

// Summary is the final state of a run.
type Summary struct {
	People       engine.Counts
	Families     engine.Counts
	FamilyCount  int
	Population   int
	EndTime      simtime.Time
	SpreadPeriod simtime.Time
	Processed    map[engine.Kind]int
	R0           *float64
	Disease      *disease.Characteristics
	Elapsed      time.Duration
}

// EventsProcessed sums every kind.
func (s Summary) EventsProcessed() int {
	n := 0
	for _, c := range s.Processed {
		n += c
	}
	return n
}

type characterized interface {
	Characteristics() disease.Characteristics
}

// Summarize reads the summary off a finished simulator. R0 is omitted when
// nobody was infected.
func Summarize(s *engine.Simulator) Summary {
	sum := Summary{
		People:       s.Statistics().Snapshot(),
		Families:     engine.FamilyStatistics(s.Population()),
		FamilyCount:  len(s.Population().Families),
		Population:   s.Population().Size(),
		EndTime:      s.EndTime(),
		SpreadPeriod: s.SpreadPeriod(),
		Processed:    make(map[engine.Kind]int, len(engine.Kinds)),
		Elapsed:      s.Elapsed(),
	}
	for _, k := range engine.Kinds {
		sum.Processed[k] = s.Processed(k)
	}
	if r0, err := engine.R0(s.Population(), s.Statistics()); err == nil {
		sum.R0 = &r0
	}
	if m, ok := s.Model().(characterized); ok {
		c := m.Characteristics()
		sum.Disease = &c
	}
	return sum
}

// Text writes the summary when the run completes. Level 0 prints nothing,
// level 1 the people statistics and run data, level 2 everything.
type Text struct {
	W     io.Writer
	Level int

	last *Summary
}

var _ engine.Reporter = (*Text)(nil)

func (t *Text) Report(s *engine.Simulator) error {
	sum := Summarize(s)
	t.last = &sum
	Write(t.W, sum, t.Level)
	return nil
}

// Last is the summary of the most recent report.
func (t *Text) Last() *Summary { return t.last }

func newTable(w io.Writer, title string) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetTitle(title)
	tw.SetStyle(table.StyleLight)
	return tw
}

func countsTable(w io.Writer, title string, c engine.Counts) {
	tw := newTable(w, title)
	tw.AppendHeader(table.Row{"Condition", "Count"})
	tw.SetColumnConfigs([]table.ColumnConfig{{Number: 2, Align: text.AlignRight}})
	for _, h := range engine.HealthConditions {
		tw.AppendRow(table.Row{h.String(), c.Get(h)})
	}
	tw.Render()
}

func Write(w io.Writer, sum Summary, level int) {
	if level <= 0 {
		return
	}
	countsTable(w, "People", sum.People)
	if level >= 2 {
		countsTable(w, fmt.Sprintf("Families (%d)", sum.FamilyCount), sum.Families)
	}

	tw := newTable(w, "Simulation")
	tw.AppendRow(table.Row{"end time", sum.EndTime})
	tw.AppendRow(table.Row{"spread period", sum.SpreadPeriod})
	tw.AppendRow(table.Row{"population", sum.Population})
	tw.AppendRow(table.Row{"events processed", sum.EventsProcessed()})
	if level >= 2 {
		for _, k := range engine.Kinds {
			tw.AppendRow(table.Row{"  " + k.String(), sum.Processed[k]})
		}
	}
	r0 := "n/a"
	if sum.R0 != nil {
		r0 = fmt.Sprintf("%.3f", *sum.R0)
	}
	tw.AppendRow(table.Row{"R0", r0})
	tw.AppendRow(table.Row{"elapsed", sum.Elapsed.Round(time.Millisecond)})
	tw.Render()

	if level >= 2 && sum.Disease != nil {
		tw := newTable(w, "Disease")
		tw.AppendRow(table.Row{"infections sampled", sum.Disease.Infections})
		tw.AppendRow(table.Row{"mean incubation", simtime.Time(sum.Disease.MeanIncubation)})
		tw.AppendRow(table.Row{"mean disease", simtime.Time(sum.Disease.MeanDisease)})
		tw.AppendRow(table.Row{"mean death probability", fmt.Sprintf("%.4f", sum.Disease.MeanDeathProbability)})
		tw.Render()
	}
}

// Runs lists stored runs.
func Runs(w io.Writer, runs []domain.Run) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"ID", "Scenario", "Status", "Seed", "People", "Confirmed", "Dead", "R0", "Created"})
	for _, r := range runs {
		r0 := ""
		if r.R0 != nil {
			r0 = fmt.Sprintf("%.2f", *r.R0)
		}
		tw.AppendRow(table.Row{r.ID, r.Scenario, r.Status, uint64(r.Seed), r.Population, r.Confirmed, r.Dead, r0, r.CreatedAt})
	}
	tw.Render()
}

// Series lists statistics observations.
func Series(w io.Writer, obs []domain.Observation) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"Observer", "#", "Time", "Scope", "Confirmed", "Active", "Dead", "Alive"})
	for _, o := range obs {
		tw.AppendRow(table.Row{o.Observer, o.ObservationID, simtime.Time(o.Minute), o.Scope, o.HasBeenInfected, o.IsInfected, o.Dead, o.Alive})
	}
	tw.Render()
}

func People(w io.Writer, people []domain.PersonSnapshot) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"Observer", "#", "Person", "Age", "Gender", "Status", "Alive", "Infected", "Quarantined", "X", "Y"})
	for _, p := range people {
		tw.AppendRow(table.Row{p.Observer, p.ObservationID, p.PersonID, p.Age, p.Gender, p.Status, p.Alive, p.TimesInfected, p.Quarantined,
			fmt.Sprintf("%.1f", p.X), fmt.Sprintf("%.1f", p.Y)})
	}
	tw.Render()
}
