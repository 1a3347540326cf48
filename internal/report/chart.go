package report

import (
	"errors"
	"fmt"
	"io"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"contagion/internal/domain"
	"contagion/internal/simtime"
)

// ErrNotEnoughData is returned when a curve has fewer than two points.
var ErrNotEnoughData = errors.New("at least two observations are needed for a chart")

// Curve renders confirmed, active and dead counts over time as a PNG. Only
// people scope observations are plotted; when several observers recorded
// the same minute the first one wins.
func Curve(w io.Writer, title string, obs []domain.Observation) error {
	var xs, confirmed, active, dead []float64
	seen := make(map[int64]bool)
	maxY := 1.0
	for _, o := range obs {
		if o.Scope != "people" || seen[o.Minute] {
			continue
		}
		seen[o.Minute] = true
		xs = append(xs, float64(o.Minute)/float64(simtime.Day))
		confirmed = append(confirmed, float64(o.HasBeenInfected))
		active = append(active, float64(o.IsInfected))
		dead = append(dead, float64(o.Dead))
		maxY = max(maxY, float64(o.HasBeenInfected))
	}
	if len(xs) < 2 || xs[len(xs)-1] == xs[0] {
		return ErrNotEnoughData
	}
	graph := chart.Chart{
		Title:  title,
		Width:  960,
		Height: 480,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 10, Right: 10, Bottom: 10},
		},
		XAxis: chart.XAxis{
			Name:  "day",
			Style: chart.Style{FontSize: 10.0},
			Range: &chart.ContinuousRange{Min: xs[0], Max: xs[len(xs)-1]},
			ValueFormatter: func(v interface{}) string {
				return fmt.Sprintf("%.0f", v.(float64))
			},
		},
		YAxis: chart.YAxis{
			Name:  "people",
			Style: chart.Style{FontSize: 10.0},
			Range: &chart.ContinuousRange{Min: 0, Max: maxY},
			ValueFormatter: func(v interface{}) string {
				return fmt.Sprintf("%.0f", v.(float64))
			},
		},
		Series: []chart.Series{
			chart.ContinuousSeries{
				Name:    "confirmed",
				XValues: xs,
				YValues: confirmed,
				Style:   chart.Style{StrokeColor: drawing.Color{R: 255, G: 165, B: 0, A: 255}, StrokeWidth: 3.0},
			},
			chart.ContinuousSeries{
				Name:    "active",
				XValues: xs,
				YValues: active,
				Style:   chart.Style{StrokeColor: chart.ColorRed, StrokeWidth: 3.0},
			},
			chart.ContinuousSeries{
				Name:    "dead",
				XValues: xs,
				YValues: dead,
				Style:   chart.Style{StrokeColor: chart.ColorBlack, StrokeWidth: 3.0},
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}
	return graph.Render(chart.PNG, w)
}
