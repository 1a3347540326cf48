package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"contagion/internal/app"
	"contagion/internal/artifact"
	"contagion/internal/config"
	"contagion/internal/db"
	"contagion/internal/domain"
	"contagion/internal/logging"
	"contagion/internal/metrics"
	"contagion/internal/repo"
	"contagion/internal/report"
	"contagion/internal/scenario"
	"contagion/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "ctg",
	Short: "Contagion epidemic simulator",
	Long: `Contagion runs discrete-event epidemic simulations over a generated population.
- Scenario: a YAML file with the population, the disease, the commands (interventions) and the observers.
- Run: one execution of a scenario with a seed; runs, observations and lifecycle events are stored in the workspace.
- Observers: record statistics and snapshots whenever their condition holds.
- Artifacts: the final report, the epidemic curve and the scenario file of each completed run.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("CONTAGION")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("workspace", "w", ".", "workspace directory")
	flags.Bool("json", false, "output JSON")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("log-format", "", "log format (text, json, logfmt)")
	flags.String("store-driver", "", "observation store driver (sqlite, pgx)")
	flags.String("store-dsn", "", "observation store DSN")
	for _, name := range []string{"workspace", "json", "log-level", "log-format", "store-driver", "store-dsn"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(simulateCmd())
	rootCmd.AddCommand(scenarioCmd())
	rootCmd.AddCommand(runsCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(tokenCmd())
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create contagion.yml and the observation store",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil && !force {
				fmt.Printf("%s exists; keeping it (use --force to overwrite)\n", path)
			} else {
				if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
					return err
				}
				fmt.Printf("Wrote %s\n", path)
			}
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				fmt.Printf("Store ready (%s)\n", env.DB.DriverName())
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing contagion.yml")
	return cmd
}

func simulateCmd() *cobra.Command {
	var scenarioPath string
	var seed uint64
	var observe bool
	var reportLevel int
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a scenario and store its observations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if scenarioPath == "" {
				return fmt.Errorf("--scenario required")
			}
			sc, err := scenario.Load(scenarioPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("seed") {
				sc.Seed = seed
			}
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				m, err := metrics.New(prometheus.DefaultRegisterer)
				if err != nil {
					return err
				}
				runner := app.NewRunner(env, os.Stdout, m)
				if viper.GetBool("json") {
					runner.Out = nil
				}
				if cmd.Flags().Changed("report-level") {
					runner.ReportLevel = reportLevel
				}
				res, err := runner.Run(ctx, sc)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res.Run)
				}
				for _, w := range res.Warnings {
					fmt.Println("warning:", w)
				}
				for _, a := range res.Artifacts {
					fmt.Printf("artifact %s: %s\n", a.Name, a.Location)
				}
				if observe {
					series, err := env.Repo.Series(ctx, repo.SeriesFilters{RunID: res.Run.ID})
					if err != nil {
						return err
					}
					report.Series(os.Stdout, series)
				}
				fmt.Printf("Run %s %s\n", res.Run.ID, res.Run.Status)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&scenarioPath, "scenario", "s", "", "scenario file")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "override the scenario seed")
	cmd.Flags().BoolVar(&observe, "observe", false, "print the stored observation series after the run")
	cmd.Flags().IntVar(&reportLevel, "report-level", 1, "final report detail (0-2)")
	return cmd
}

func scenarioCmd() *cobra.Command {
	sc := &cobra.Command{Use: "scenario", Short: "Inspect scenario files"}
	sc.AddCommand(scenarioValidateCmd())
	sc.AddCommand(scenarioExampleCmd())
	return sc
}

func scenarioValidateCmd() *cobra.Command {
	var build bool
	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Check a scenario file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := scenario.Load(args[0])
			if err != nil {
				return err
			}
			warnings := sc.Check()
			if build {
				logger, err := newLogger(nil)
				if err != nil {
					return err
				}
				built, err := sc.Build(cmd.Context(), nil, logger.WithPrefix("scenario"))
				if err != nil {
					return err
				}
				fmt.Printf("population: %d people, %d families, %d communities\n",
					built.Population.Size(), len(built.Population.Families), len(built.Population.AllCommunities()))
			}
			for _, w := range warnings {
				fmt.Println("warning:", w)
			}
			fmt.Printf("%s: ok (%d commands, %d observers)\n", sc.Name, len(sc.Commands), len(sc.Observers))
			return nil
		},
	}
	cmd.Flags().BoolVar(&build, "build", false, "also generate the population")
	return cmd
}

func scenarioExampleCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "example",
		Short: "Print an example scenario",
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" {
				_, err := os.Stdout.Write(scenario.Example)
				return err
			}
			if err := os.WriteFile(out, scenario.Example, 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "write to a file instead of stdout")
	return cmd
}

func runsCmd() *cobra.Command {
	runs := &cobra.Command{Use: "runs", Short: "Inspect stored runs"}
	runs.AddCommand(runsListCmd())
	runs.AddCommand(runsShowCmd())
	runs.AddCommand(runsSeriesCmd())
	runs.AddCommand(runsPeopleCmd())
	runs.AddCommand(runsEventsCmd())
	return runs
}

func runsListCmd() *cobra.Command {
	var f repo.RunFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				items, err := env.Repo.ListRuns(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				report.Runs(os.Stdout, items)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Scenario, "scenario", "", "scenario name filter")
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter (running, completed, failed)")
	cmd.Flags().IntVar(&f.Limit, "limit", 20, "maximum runs")
	return cmd
}

func runsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a run and its artifacts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				run, err := env.Repo.ResolveRun(ctx, args[0])
				if err != nil {
					return err
				}
				artifacts, err := env.Repo.ListArtifacts(ctx, run.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"run": run, "artifacts": artifacts})
				}
				printRun(run, artifacts)
				return nil
			})
		},
	}
}

func runsSeriesCmd() *cobra.Command {
	var observer, scope string
	cmd := &cobra.Command{
		Use:   "series <id>",
		Short: "Show the statistics observations of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				run, err := env.Repo.ResolveRun(ctx, args[0])
				if err != nil {
					return err
				}
				items, err := env.Repo.Series(ctx, repo.SeriesFilters{RunID: run.ID, Observer: observer, Scope: scope})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				report.Series(os.Stdout, items)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&observer, "observer", "", "observer name filter")
	cmd.Flags().StringVar(&scope, "scope", "", "scope filter (people, family)")
	return cmd
}

func runsPeopleCmd() *cobra.Command {
	var observer string
	var observation, limit int
	cmd := &cobra.Command{
		Use:   "people <id>",
		Short: "Show person snapshots of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				run, err := env.Repo.ResolveRun(ctx, args[0])
				if err != nil {
					return err
				}
				f := repo.SnapshotFilters{RunID: run.ID, Observer: observer, Limit: limit}
				if observation >= 0 {
					f.ObservationID = &observation
				}
				items, err := env.Repo.People(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				report.People(os.Stdout, items)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&observer, "observer", "", "observer name filter")
	cmd.Flags().IntVar(&observation, "observation", -1, "observation id (-1 for the latest of each observer)")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum rows")
	return cmd
}

func runsEventsCmd() *cobra.Command {
	var n int
	var evtType string
	cmd := &cobra.Command{
		Use:   "events <id>",
		Short: "Show the lifecycle events of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				run, err := env.Repo.ResolveRun(ctx, args[0])
				if err != nil {
					return err
				}
				items, err := env.Repo.LatestEvents(ctx, n, 0, run.ID, evtType)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Time", "Type", "Entity", "Payload"})
				for _, e := range items {
					tw.AppendRow(table.Row{e.ID, e.TS, e.Type, e.EntityKind, e.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	return cmd
}

func reportCmd() *cobra.Command {
	var chartPath string
	cmd := &cobra.Command{
		Use:   "report <id>",
		Short: "Print the report of a run and optionally render its epidemic curve",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				run, err := env.Repo.ResolveRun(ctx, args[0])
				if err != nil {
					return err
				}
				printed := false
				if env.Artifacts != nil {
					data, err := env.Artifacts.Get(ctx, artifact.Key(run.ID, app.ReportArtifact))
					if err == nil {
						os.Stdout.Write(data)
						printed = true
					} else {
						env.Logger.Debug("stored report unavailable", "run", run.ID, "err", err)
					}
				}
				if !printed {
					printRun(run, nil)
				}
				if chartPath == "" {
					return nil
				}
				series, err := env.Repo.Series(ctx, repo.SeriesFilters{RunID: run.ID})
				if err != nil {
					return err
				}
				var buf bytes.Buffer
				if err := report.Curve(&buf, run.Scenario, series); err != nil {
					return err
				}
				if err := os.WriteFile(chartPath, buf.Bytes(), 0o644); err != nil {
					return err
				}
				fmt.Printf("Wrote %s\n", chartPath)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&chartPath, "chart", "", "write the epidemic curve PNG to this path")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				if addr == "" {
					addr = env.Config.Server.Addr
				}
				secret := env.Config.Server.JWTSecret
				if s := viper.GetString("jwt-secret"); s != "" {
					secret = s
				}
				handler, err := server.New(server.Config{
					Repo:     env.Repo,
					BasePath: basePath,
					Auth:     server.AuthConfig{JWTSecret: secret},
					Logger:   env.Logger.WithPrefix("server"),
				})
				if err != nil {
					return err
				}
				if d := server.NewDispatcher(env.Repo, env.Config.Webhooks, env.Logger.WithPrefix("webhooks")); d != nil {
					go d.Run(ctx)
				}
				srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				env.Logger.Info("serving", "addr", "http://"+addr+basePath, "auth", secret != "", "webhooks", len(env.Config.Webhooks))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to server.addr in contagion.yml)")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().String("jwt-secret", "", "HS256 secret for bearer auth")
	_ = viper.BindPFlag("jwt-secret", cmd.Flags().Lookup("jwt-secret"))
	return cmd
}

func tokenCmd() *cobra.Command {
	var subject string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			secret := cfg.Server.JWTSecret
			if s := viper.GetString("jwt-secret"); s != "" {
				secret = s
			}
			token, err := server.IssueToken(secret, subject, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "local-user", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime (0 never expires)")
	return cmd
}

// --- helpers ---

// loadConfig reads contagion.yml and overlays flags and CONTAGION_* env vars.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOptional(viper.GetString("workspace"))
	if err != nil {
		return nil, err
	}
	overlay := func(key string, dst *string) {
		if v := viper.GetString(key); v != "" {
			*dst = v
		}
	}
	overlay("log-level", &cfg.Log.Level)
	overlay("log-format", &cfg.Log.Format)
	overlay("store-driver", &cfg.Store.Driver)
	overlay("store-dsn", &cfg.Store.DSN)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*log.Logger, error) {
	if cfg == nil {
		var err error
		if cfg, err = loadConfig(); err != nil {
			return nil, err
		}
	}
	return logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, Writer: os.Stderr})
}

func withEnv(ctx context.Context, fn func(context.Context, *app.Env) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	env, err := app.Open(ctx, viper.GetString("workspace"), cfg, logger)
	if err != nil {
		return err
	}
	defer env.Close()
	return fn(ctx, env)
}

func printRun(run domain.Run, artifacts []domain.Artifact) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetTitle("Run " + run.ID)
	tw.SetStyle(table.StyleLight)
	r0 := "n/a"
	if run.R0 != nil {
		r0 = fmt.Sprintf("%.3f", *run.R0)
	}
	rows := []table.Row{
		{"scenario", run.Scenario},
		{"seed", uint64(run.Seed)},
		{"status", run.Status},
		{"population", run.Population},
		{"end time (min)", run.EndTime},
		{"spread period (min)", run.SpreadPeriod},
		{"events processed", run.EventsProcessed},
		{"confirmed", run.Confirmed},
		{"active", run.Active},
		{"dead", run.Dead},
		{"R0", r0},
		{"created", run.CreatedAt},
		{"elapsed", time.Duration(run.ElapsedMS) * time.Millisecond},
	}
	if run.Error != nil {
		rows = append(rows, table.Row{"error", *run.Error})
	}
	for _, a := range artifacts {
		rows = append(rows, table.Row{"artifact " + a.Name, a.Location})
	}
	tw.AppendRows(rows)
	tw.Render()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
