package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"contagion/internal/artifact"
	"contagion/internal/domain"
	"contagion/internal/engine"
	"contagion/internal/events"
	"contagion/internal/metrics"
	"contagion/internal/observe"
	"contagion/internal/repo"
	"contagion/internal/report"
	"contagion/internal/scenario"
)

// Artifact names stored for every completed run.
const (
	ReportArtifact   = "report.txt"
	CurveArtifact    = "curve.png"
	ScenarioArtifact = "scenario.yml"
)

// Runner executes scenarios and records them in the store.
type Runner struct {
	Repo      repo.Repo
	Logger    *log.Logger
	Metrics   *metrics.Collector
	Artifacts artifact.Store

	// Out receives the final report; nil discards it.
	Out         io.Writer
	ReportLevel int
	Chart       bool

	Now   func() time.Time
	NewID func() string
}

// NewRunner builds a runner from an opened workspace.
func NewRunner(env *Env, out io.Writer, m *metrics.Collector) *Runner {
	return &Runner{
		Repo:        env.Repo,
		Logger:      env.Logger,
		Metrics:     m,
		Artifacts:   env.Artifacts,
		Out:         out,
		ReportLevel: env.Config.Report.Level,
		Chart:       env.Config.Report.Chart,
	}
}

type Result struct {
	Run       domain.Run
	Summary   *report.Summary
	Warnings  []string
	Artifacts []domain.Artifact
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

func (r *Runner) newID() string {
	if r.NewID != nil {
		return r.NewID()
	}
	return uuid.NewString()
}

// Run executes sc to completion. The run row is written before the
// simulation starts so observations can reference it; its outcome is
// recorded whether the simulation succeeds or not. A failed run returns the
// result together with the error.
func (r *Runner) Run(ctx context.Context, sc *scenario.Scenario) (*Result, error) {
	logger := r.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	out := r.Out
	if out == nil {
		out = io.Discard
	}
	started := r.now()
	run := domain.Run{
		ID:           r.newID(),
		Scenario:     sc.Name,
		Seed:         int64(sc.Seed),
		Status:       domain.RunRunning,
		Population:   sc.Population.Size,
		EndTime:      int64(sc.EndTime.Time()),
		SpreadPeriod: int64(sc.SpreadPeriod.Time()),
		ScenarioYAML: string(sc.Raw()),
		CreatedAt:    started.Format(time.RFC3339Nano),
	}
	if err := r.begin(ctx, run); err != nil {
		return nil, fmt.Errorf("record run: %w", err)
	}
	logger = logger.With("run", run.ID)
	logger.Info("run started", "scenario", run.Scenario, "seed", sc.Seed)

	res := &Result{Run: run}
	sink := repo.NewObservationSink(r.Repo, run.ID, 0, logger.WithPrefix("store"))
	text := &report.Text{W: out, Level: r.ReportLevel}
	sim, runErr := r.simulate(ctx, sc, sink, text, logger, res)
	if err := sink.Close(); err != nil && runErr == nil {
		runErr = fmt.Errorf("store observations: %w", err)
	}

	if sum := text.Last(); sum != nil {
		res.Summary = sum
	} else if sim != nil && sim.State() != engine.StateUninitialized {
		sum := report.Summarize(sim)
		res.Summary = &sum
	}
	elapsed := r.now().Sub(started)
	res.Run = r.outcome(run, res.Summary, runErr, elapsed)
	if err := r.finish(ctx, res.Run); err != nil {
		return res, errors.Join(runErr, fmt.Errorf("record outcome: %w", err))
	}
	if r.Metrics != nil {
		r.Metrics.RunFinished(res.Run.Status, elapsed)
	}
	if runErr != nil {
		logger.Error("run failed", "err", runErr)
		return res, runErr
	}
	logger.Info("run completed", "events", res.Run.EventsProcessed, "confirmed", res.Run.Confirmed, "dead", res.Run.Dead)
	res.Artifacts = r.storeArtifacts(ctx, sc, res, logger)
	return res, nil
}

func (r *Runner) simulate(ctx context.Context, sc *scenario.Scenario, sink observe.Sink, rep engine.Reporter, logger *log.Logger, res *Result) (*engine.Simulator, error) {
	built, err := sc.Build(ctx, sink, logger)
	if err != nil {
		return nil, err
	}
	res.Warnings = built.Warnings
	opts := engine.Options{Logger: logger.WithPrefix("engine"), Reporter: rep}
	if r.Metrics != nil {
		opts.Metrics = r.Metrics
	}
	sim, err := built.Simulator(opts)
	if err != nil {
		return nil, err
	}
	return sim, sim.Run(ctx)
}

func (r *Runner) outcome(run domain.Run, sum *report.Summary, runErr error, elapsed time.Duration) domain.Run {
	finished := r.now().Format(time.RFC3339Nano)
	run.FinishedAt = &finished
	run.ElapsedMS = elapsed.Milliseconds()
	run.Status = domain.RunCompleted
	if runErr != nil {
		run.Status = domain.RunFailed
		msg := runErr.Error()
		run.Error = &msg
	}
	if sum != nil {
		run.Population = sum.Population
		run.EventsProcessed = sum.EventsProcessed()
		run.Confirmed = sum.People.Get(engine.HasBeenInfected)
		run.Active = sum.People.Get(engine.IsInfected)
		run.Dead = sum.People.Get(engine.Dead)
		run.R0 = sum.R0
	}
	return run
}

func (r *Runner) begin(ctx context.Context, run domain.Run) error {
	tx, err := r.Repo.DB.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := r.Repo.InsertRunTx(ctx, tx, run); err != nil {
		return err
	}
	payload := events.EventPayload{"scenario": run.Scenario, "seed": run.Seed}
	if err := r.writer().Append(ctx, tx, events.RunStarted, run.ID, "run", run.ID, payload); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *Runner) finish(ctx context.Context, run domain.Run) error {
	// The caller's context may already be cancelled when the run was
	// interrupted; the outcome is still recorded.
	ctx = context.WithoutCancel(ctx)
	tx, err := r.Repo.DB.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := r.Repo.FinishRunTx(ctx, tx, run); err != nil {
		return err
	}
	evt := events.RunCompleted
	payload := events.EventPayload{
		"scenario":         run.Scenario,
		"events_processed": run.EventsProcessed,
		"confirmed":        run.Confirmed,
		"active":           run.Active,
		"dead":             run.Dead,
		"elapsed_ms":       run.ElapsedMS,
	}
	if run.R0 != nil {
		payload["r0"] = *run.R0
	}
	if run.Status == domain.RunFailed {
		evt = events.RunFailed
		payload = events.EventPayload{"scenario": run.Scenario, "error": *run.Error}
	}
	if err := r.writer().Append(ctx, tx, evt, run.ID, "run", run.ID, payload); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *Runner) writer() events.Writer {
	return events.Writer{Now: r.now}
}

// storeArtifacts writes the full report, the epidemic curve and the scenario
// file. Failures are logged and skip the artifact.
func (r *Runner) storeArtifacts(ctx context.Context, sc *scenario.Scenario, res *Result, logger *log.Logger) []domain.Artifact {
	if r.Artifacts == nil {
		return nil
	}
	type file struct {
		name        string
		contentType string
		data        []byte
	}
	var files []file
	if res.Summary != nil {
		var buf bytes.Buffer
		report.Write(&buf, *res.Summary, 2)
		files = append(files, file{ReportArtifact, "text/plain; charset=utf-8", buf.Bytes()})
	}
	if r.Chart {
		data, err := r.curve(ctx, res.Run)
		switch {
		case errors.Is(err, report.ErrNotEnoughData):
			logger.Debug("curve skipped", "reason", err)
		case err != nil:
			logger.Warn("curve failed", "err", err)
		default:
			files = append(files, file{CurveArtifact, "image/png", data})
		}
	}
	if raw := sc.Raw(); len(raw) > 0 {
		files = append(files, file{ScenarioArtifact, "application/yaml", raw})
	}

	var stored []domain.Artifact
	for _, f := range files {
		loc, err := r.Artifacts.Put(ctx, artifact.Key(res.Run.ID, f.name), f.data, f.contentType)
		if err != nil {
			logger.Warn("artifact not stored", "name", f.name, "err", err)
			continue
		}
		a := domain.Artifact{RunID: res.Run.ID, Name: f.name, Location: loc, CreatedAt: r.now().Format(time.RFC3339Nano)}
		if err := r.recordArtifact(ctx, a); err != nil {
			logger.Warn("artifact not recorded", "name", f.name, "err", err)
			continue
		}
		stored = append(stored, a)
	}
	return stored
}

func (r *Runner) curve(ctx context.Context, run domain.Run) ([]byte, error) {
	obs, err := r.Repo.Series(ctx, repo.SeriesFilters{RunID: run.ID, Scope: observe.ScopePeople})
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := report.Curve(&buf, run.Scenario, obs); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (r *Runner) recordArtifact(ctx context.Context, a domain.Artifact) error {
	tx, err := r.Repo.DB.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := r.Repo.UpsertArtifactTx(ctx, tx, a); err != nil {
		return err
	}
	payload := events.EventPayload{"name": a.Name, "location": a.Location}
	if err := r.writer().Append(ctx, tx, events.ArtifactPut, a.RunID, "artifact", a.Name, payload); err != nil {
		return err
	}
	return tx.Commit()
}
