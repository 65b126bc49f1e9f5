package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/lazyfall/internal/automation"
	"github.com/san-kum/lazyfall/internal/client"
	"github.com/san-kum/lazyfall/internal/config"
	"github.com/san-kum/lazyfall/internal/dynamo"
	"github.com/san-kum/lazyfall/internal/experiment"
	"github.com/san-kum/lazyfall/internal/export"
	"github.com/san-kum/lazyfall/internal/integrators"
	"github.com/san-kum/lazyfall/internal/logger"
	"github.com/san-kum/lazyfall/internal/server"
	"github.com/san-kum/lazyfall/internal/sim"
	"github.com/san-kum/lazyfall/internal/storage"
	"github.com/san-kum/lazyfall/internal/viz"
	"github.com/spf13/cobra"
)

var (
	dataDir    string
	configFile string
	preset     string
	// serve
	host      string
	port      int
	workers   int
	maxID     int
	seed      int64
	origin    string
	streamHz  int
	logLevel  string
	logFormat string
	// trace
	interval    time.Duration
	queries     int
	stopOnRest  bool
	metricNames []string
	// bench
	benchQueries int
	// watch
	serverURL string
	watchIDs  []int
	frameRate int
	theme     string
	// export
	format string
	// sweep
	sweepParam string
	sweepMin   float64
	sweepMax   float64
	sweepSteps int
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "lazyfall",
		Short:        "lazily simulated falling bodies over HTTP",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".lazyfall", "data directory")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (yaml)")
	rootCmd.PersistentFlags().StringVar(&preset, "preset", "", "use preset configuration")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "serve body positions over HTTP",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	serveCmd.Flags().StringVar(&host, "host", config.DefaultHost, "bind address")
	serveCmd.Flags().IntVar(&port, "port", config.DefaultPort, "bind port")
	serveCmd.Flags().IntVar(&workers, "workers", 0, "max OS threads running Go code (0 = one per core)")
	serveCmd.Flags().IntVar(&maxID, "max-id", config.DefaultMaxID, "largest body id")
	serveCmd.Flags().Int64Var(&seed, "seed", 0, "spawn seed (0 = from clock)")
	serveCmd.Flags().StringVar(&origin, "origin", config.DefaultAllowedOrigin, "allowed CORS origin")
	serveCmd.Flags().IntVar(&streamHz, "stream-hz", config.DefaultStreamHz, "websocket push rate")
	serveCmd.Flags().StringVar(&logLevel, "log-level", config.DefaultLogLevel, "debug, info, warn or error")
	serveCmd.Flags().StringVar(&logFormat, "log-format", config.DefaultLogFormat, "console, text or json")

	traceCmd := &cobra.Command{
		Use:   "trace [id]",
		Short: "record one body's fall offline",
		Args:  cobra.ExactArgs(1),
		RunE:  runTrace,
	}
	traceCmd.Flags().DurationVar(&interval, "interval", 16*time.Millisecond, "time between queries")
	traceCmd.Flags().IntVar(&queries, "queries", 5000, "maximum number of queries")
	traceCmd.Flags().BoolVar(&stopOnRest, "stop-on-rest", true, "stop once the body rests")
	traceCmd.Flags().StringSliceVar(&metricNames, "metrics", nil, "metrics to record (default all)")
	traceCmd.Flags().IntVar(&maxID, "max-id", config.DefaultMaxID, "largest body id")
	traceCmd.Flags().Int64Var(&seed, "seed", 0, "spawn seed (0 = from clock)")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list recorded traces",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot a recorded trace",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export a recorded trace",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}
	exportCmd.Flags().StringVar(&format, "format", "json", "json, csv or svg")

	scenarioCmd := &cobra.Command{
		Use:   "scenario [file]",
		Short: "run and record a scripted batch of traces",
		Args:  cobra.ExactArgs(1),
		RunE:  runScenario,
	}

	sweepCmd := &cobra.Command{
		Use:   "sweep [id]",
		Short: "trace one body across a range of a physics parameter",
		Args:  cobra.ExactArgs(1),
		RunE:  runSweep,
	}
	sweepCmd.Flags().StringVar(&sweepParam, "param", "restitution", "gravity, scale, restitution or rest_speed")
	sweepCmd.Flags().Float64Var(&sweepMin, "min", 0.5, "first value")
	sweepCmd.Flags().Float64Var(&sweepMax, "max", 0.95, "last value")
	sweepCmd.Flags().IntVar(&sweepSteps, "steps", 10, "number of values")
	sweepCmd.Flags().DurationVar(&interval, "interval", 16*time.Millisecond, "time between queries")
	sweepCmd.Flags().IntVar(&queries, "queries", 5000, "maximum number of queries per trace")

	benchCmd := &cobra.Command{
		Use:   "bench",
		Short: "measure in-process query throughput",
		Args:  cobra.NoArgs,
		RunE:  runBench,
	}
	benchCmd.Flags().IntVar(&workers, "workers", runtime.NumCPU(), "concurrent workers")
	benchCmd.Flags().IntVar(&benchQueries, "queries", 100000, "queries per worker")
	benchCmd.Flags().IntVar(&maxID, "max-id", config.DefaultMaxID, "largest body id")

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "watch a running server in the terminal",
		Args:  cobra.NoArgs,
		RunE:  runWatch,
	}
	watchCmd.Flags().StringVar(&serverURL, "url", "http://127.0.0.1:5000", "server base URL")
	watchCmd.Flags().IntSliceVar(&watchIDs, "ids", []int{0, 1, 2, 3, 4, 5, 6, 7}, "bodies to watch")
	watchCmd.Flags().IntVar(&frameRate, "fps", 10, "polls per second")
	watchCmd.Flags().StringVar(&theme, "theme", viz.ThemeNames()[0], "color theme")

	queryCmd := &cobra.Command{
		Use:   "query [id]",
		Short: "query one body, or every body, on a running server",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runQuery,
	}
	queryCmd.Flags().StringVar(&serverURL, "url", "http://127.0.0.1:5000", "server base URL")
	queryCmd.Flags().IntVar(&maxID, "max-id", config.DefaultMaxID, "largest body id")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list available presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range config.ListPresets() {
				cfg := config.GetPreset(name)
				fmt.Printf("  %-10s gravity=%g restitution=%g rest_speed=%g max_id=%d\n",
					name, cfg.Physics.Gravity, cfg.Physics.Restitution, cfg.Physics.RestSpeed, cfg.Population.MaxID)
			}
			return nil
		},
	}

	initConfigCmd := &cobra.Command{
		Use:   "init-config [path]",
		Short: "write a config file with default values",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "lazyfall.yaml"
			if len(args) > 0 {
				path = args[0]
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := config.Save(path, cfg); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", path)
			return nil
		},
	}

	rootCmd.AddCommand(serveCmd, traceCmd, listCmd, plotCmd, exportCmd, scenarioCmd, sweepCmd, benchCmd, watchCmd, queryCmd, presetsCmd, initConfigCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// loadConfig resolves the preset, then the config file, then any flag set
// on the command line.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if preset != "" {
		cfg = config.GetPreset(preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets())
		}
	}

	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Server.Host = host
	}
	if flags.Changed("port") {
		cfg.Server.Port = port
	}
	if flags.Changed("workers") {
		cfg.Server.Workers = workers
	}
	if flags.Changed("origin") {
		cfg.Server.AllowedOrigin = origin
	}
	if flags.Changed("stream-hz") {
		cfg.Server.StreamHz = streamHz
	}
	if flags.Changed("max-id") {
		cfg.Population.MaxID = maxID
	}
	if flags.Changed("seed") {
		cfg.Population.Seed = seed
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = logLevel
	}
	if flags.Changed("log-format") {
		cfg.Logging.Format = logFormat
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newEngine(cfg *config.Config, clock sim.Clock) (*sim.Engine, error) {
	pop, err := sim.NewPopulation(cfg.Population.MaxID, cfg.Spawn(), rand.New(rand.NewSource(cfg.SeedOrNow())), time.Now())
	if err != nil {
		return nil, err
	}
	return sim.NewEngine(pop, integrators.NewGravity(cfg.IntegratorParams()), clock), nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	log := logger.Init(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	if cfg.Server.Workers > 0 {
		runtime.GOMAXPROCS(cfg.Server.Workers)
	}

	engine, err := newEngine(cfg, sim.SystemClock{})
	if err != nil {
		return err
	}

	srv := server.New(cfg, engine, log)
	if err := srv.Start(cmd.Context()); err != nil {
		log.Error("Server failed", slog.Any("error", err))
		return err
	}
	return nil
}

func runTrace(cmd *cobra.Command, args []string) error {
	id, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid body id %q: %w", args[0], err)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	expCfg := experiment.Config{
		Body:       id,
		MaxID:      cfg.Population.MaxID,
		Interval:   interval,
		Queries:    queries,
		StopOnRest: stopOnRest,
		Seed:       cfg.SeedOrNow(),
		Spawn:      cfg.Spawn(),
		Physics:    cfg.IntegratorParams(),
	}
	exp, err := experiment.New(expCfg)
	if err != nil {
		return err
	}

	ms, err := experiment.NewRegistry().Metrics(metricNames)
	if err != nil {
		return err
	}
	for _, m := range ms {
		exp.AddMetric(m)
	}

	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}

	fmt.Printf("tracing body %d...\n", id)
	start := time.Now()

	result, err := exp.Run(cmd.Context())
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	runID, err := st.Save(storage.NewMetadata(expCfg, result), result)
	if err != nil {
		return err
	}

	fmt.Printf("completed in %v\n", elapsed)
	fmt.Printf("run id: %s\n", runID)
	fmt.Printf("samples: %d\n", len(result.Samples))
	fmt.Println("\nmetrics:")
	for _, m := range ms {
		fmt.Printf("  %s: %.6f\n", m.Name(), result.Metrics[m.Name()])
	}
	fmt.Println()
	fmt.Println(asciigraph.Plot(result.Heights(),
		asciigraph.Height(10),
		asciigraph.Width(80),
		asciigraph.Caption("height vs query"),
	))
	return nil
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tBODY\tTIME\tSAMPLES\tINTERVAL\tSEED\tLANDED")

	for _, run := range runs {
		landed := "-"
		if v, ok := run.Metrics["landed_at_ms"]; ok && v >= 0 {
			landed = fmt.Sprintf("%.0fms", v)
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%d\t%.0fms\t%d\t%s\n",
			run.ID,
			run.Body,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Samples,
			run.IntervalMs,
			run.Seed,
			landed,
		)
	}

	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}

	rows, err := st.LoadSamples(runID)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("no data to plot")
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("body: %d\n", meta.Body)
	fmt.Printf("samples: %d\n\n", len(rows))

	heights := make([]float64, len(rows))
	velocities := make([]float64, len(rows))
	for i, r := range rows {
		heights[i] = r.Y
		velocities[i] = r.Velocity
	}

	fmt.Println(asciigraph.Plot(heights,
		asciigraph.Height(10),
		asciigraph.Width(80),
		asciigraph.Caption("height vs query"),
	))
	fmt.Println()
	fmt.Println(asciigraph.Plot(velocities,
		asciigraph.Height(10),
		asciigraph.Width(80),
		asciigraph.Caption("velocity vs query"),
	))
	return nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	runID := args[0]
	st := storage.New(dataDir)

	switch format {
	case "json":
		return st.ExportJSON(os.Stdout, runID)
	case "csv":
		rows, err := st.LoadSamples(runID)
		if err != nil {
			return err
		}
		w := csv.NewWriter(os.Stdout)
		w.Write([]string{"time_ms", "x", "y", "z", "velocity", "grounded"})
		for _, r := range rows {
			w.Write([]string{
				strconv.FormatFloat(r.TimeMs, 'f', -1, 64),
				strconv.FormatFloat(r.X, 'f', -1, 64),
				strconv.FormatFloat(r.Y, 'f', -1, 64),
				strconv.FormatFloat(r.Z, 'f', -1, 64),
				strconv.FormatFloat(r.Velocity, 'f', -1, 64),
				strconv.FormatBool(r.Grounded),
			})
		}
		w.Flush()
		return w.Error()
	case "svg":
		rows, err := st.LoadSamples(runID)
		if err != nil {
			return err
		}
		return export.WriteTraceSVG(os.Stdout, rows)
	default:
		return fmt.Errorf("unknown format: %s (json, csv or svg)", format)
	}
}

func runScenario(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	sc, err := automation.LoadScenario(args[0])
	if err != nil {
		return err
	}

	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}

	fmt.Printf("running scenario %s (%d steps)...\n", sc.Name, len(sc.Steps))
	results, err := automation.RunScenario(cmd.Context(), sc, cfg, experiment.NewRegistry())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STEP\tRUN\tBODY\tSAMPLES\tBOUNCES\tLANDED")
	for _, r := range results {
		meta := storage.NewMetadata(r.Config, r.Result)
		meta.ID = fmt.Sprintf("%s_%d", r.Name, meta.Timestamp.UnixNano())
		runID, err := st.Save(meta, r.Result)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%.0f\t%.0fms\n",
			r.Name, runID, r.Config.Body, len(r.Result.Samples),
			r.Result.Metrics["bounces"], r.Result.Metrics["landed_at_ms"])
	}
	return w.Flush()
}

func runSweep(cmd *cobra.Command, args []string) error {
	id, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid body id %q: %w", args[0], err)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	results, err := automation.RunSweep(cmd.Context(), &automation.ParameterSweep{
		Base:      cfg,
		Body:      id,
		ParamName: sweepParam,
		ParamMin:  sweepMin,
		ParamMax:  sweepMax,
		NumSteps:  sweepSteps,
		Interval:  interval,
		Queries:   queries,
	}, experiment.NewRegistry())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\tSAMPLES\tBOUNCES\tLANDED\tPEAK SPEED\n", strings.ToUpper(sweepParam))
	for _, r := range results {
		fmt.Fprintf(w, "%.4f\t%d\t%.0f\t%.0fms\t%.4f\n",
			r.ParamValue, r.Samples, r.Metrics["bounces"], r.Metrics["landed_at_ms"], r.Metrics["peak_speed"])
	}
	return w.Flush()
}

func runBench(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	engine, err := newEngine(cfg, sim.SystemClock{})
	if err != nil {
		return err
	}

	fmt.Printf("benchmarking %d workers x %d queries over %d bodies...\n", workers, benchQueries, cfg.Population.MaxID+1)

	report, err := sim.Hammer(cmd.Context(), engine, sim.LoadConfig{
		Workers: workers,
		Queries: benchQueries,
		Discard: true,
	})
	if err != nil {
		return err
	}

	fmt.Printf("queries:     %d\n", report.Queries)
	fmt.Printf("errors:      %d\n", report.Errors)
	fmt.Printf("elapsed:     %v\n", report.Elapsed)
	fmt.Printf("throughput:  %.0f queries/s\n", report.QueriesPerSecond())
	fmt.Printf("max latency: %v\n", report.MaxLatency)
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	spawn := cfg.Spawn()
	c := client.New(serverURL, nil)
	return viz.Run(c, viz.Options{
		IDs:    watchIDs,
		FPS:    frameRate,
		Theme:  theme,
		Source: c.BaseURL(),
		Bounds: viz.Bounds{MinX: spawn.MinX, MaxX: spawn.MaxX, MaxY: spawn.MaxY},
	})
}

func runQuery(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	c := client.New(serverURL, nil)
	var positions [][16]float32
	first := 0
	if len(args) == 1 {
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid body id %q: %w", args[0], err)
		}
		pos, err := c.GetPos(cmd.Context(), id)
		if err != nil {
			return err
		}
		positions, first = [][16]float32{pos}, id
	} else {
		positions, err = c.Sweep(cmd.Context(), cfg.Population.MaxID)
		if err != nil {
			return fmt.Errorf("after %d bodies: %w", len(positions), err)
		}
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tX\tY\tZ")
	for i, pos := range positions {
		fmt.Fprintf(w, "%d\t%.4f\t%.4f\t%.4f\n", first+i, pos[dynamo.CellX], pos[dynamo.CellY], pos[dynamo.CellZ])
	}
	return w.Flush()
}
