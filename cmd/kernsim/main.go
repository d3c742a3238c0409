// Command kernsim boots a simulated kernel and runs process and file
// scenarios on it.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"os161/pkg/config"
	"os161/pkg/console"
	"os161/pkg/kern"
)

var (
	configPath  string
	logLevel    string
	metricsAddr string
	traceOut    string
	stressProcs int
	stressRate  float64

	cfg    = config.Default()
	logger = slog.Default()
)

var (
	rootCmd = &cobra.Command{
		Use:   "kernsim",
		Short: "Run fork, exit and waitpid scenarios on a simulated kernel",
		Long: `kernsim assembles a kernel from a YAML configuration, boots an
init process and drives it through a named scenario using the same
system calls user programs make.`,
		SilenceUsage:      true,
		PersistentPreRunE: setup,
	}
	runCmd = &cobra.Command{
		Use:   "run [scenario]",
		Short: "Boots a kernel and runs a scenario",
		Args:  cobra.ExactArgs(1),
		RunE:  runScenario,
	}
	scenariosCmd = &cobra.Command{
		Use:   "scenarios",
		Short: "Lists the scenarios",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, name := range scenarioNames() {
				fmt.Fprintf(w, "%s\t%s\n", name, scenarios[name].about)
			}
			w.Flush()
		},
	}
	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Prints the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := cfg.Marshal()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "kernsim.yaml", "path to the kernel configuration")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	rootCmd.PersistentFlags().StringVar(&traceOut, "trace", "", "override trace.exporter (stdout)")
	runCmd.Flags().IntVar(&stressProcs, "procs", 32, "concurrent processes for the stress scenario")
	runCmd.Flags().Float64Var(&stressRate, "rate", 0, "processes booted per second by the stress scenario; 0 is unlimited")

	rootCmd.AddCommand(runCmd, scenariosCmd, configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setup(cmd *cobra.Command, args []string) error {
	var err error
	if cfg, err = config.Load(configPath); err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if metricsAddr != "" {
		cfg.Metrics.Addr = metricsAddr
	}
	if traceOut != "" {
		cfg.Trace.Exporter = traceOut
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger = newLogger(cfg.Log)
	slog.SetDefault(logger)
	return nil
}

func newLogger(lc config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(lc.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	format := lc.Format
	if format == "auto" {
		format = "json"
		if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
			format = "text"
		}
	}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func runScenario(cmd *cobra.Command, args []string) error {
	sc, ok := scenarios[args[0]]
	if !ok {
		return fmt.Errorf("unknown scenario %q (have %s)", args[0], strings.Join(scenarioNames(), ", "))
	}

	shutdown, err := setupTracing(cfg.Trace)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := shutdown(ctx); err != nil {
			logger.Warn("trace flush failed", slog.String("error", err.Error()))
		}
	}()

	store, err := kern.OpenStore(cfg.Store)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	k, err := kern.New(cfg, store, console.New(cmd.InOrStdin(), out), logger)
	if err != nil {
		return err
	}

	if cfg.Metrics.Addr != "" {
		srv := serveMetrics(cfg.Metrics.Addr)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(ctx)
		}()
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := sc.run(ctx, k, out); err != nil {
		return fmt.Errorf("scenario %s: %w", args[0], err)
	}
	k.Wait()

	printProcesses(out, k)
	return nil
}

func serveMetrics(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", slog.String("error", err.Error()))
		}
	}()
	logger.Info("serving metrics", slog.String("addr", addr))
	return srv
}

func printProcesses(out io.Writer, k *kern.Kernel) {
	procs := k.Processes()
	if len(procs) == 0 {
		return
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PID\tPPID\tSTATE\tFILES\tNAME")
	for _, p := range procs {
		fmt.Fprintf(w, "%d\t%d\t%s\t%d\t%s\n", p.PID, p.ParentPID, p.State, p.OpenFiles, p.Name)
	}
	w.Flush()
}

func scenarioNames() []string {
	names := make([]string, 0, len(scenarios))
	for name := range scenarios {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
