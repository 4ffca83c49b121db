// rsaplan plans routing and spectrum assignments for a batch of
// traffic requests over an optical network scenario. It reads a JSON
// scenario, solves for the assignment maximizing accepted requests,
// validates the result independently, and writes a report to stdout.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/signalsfoundry/rsa-planner/core"
	"github.com/signalsfoundry/rsa-planner/internal/logging"
	"github.com/signalsfoundry/rsa-planner/internal/observability"
	"github.com/signalsfoundry/rsa-planner/internal/pipeline"
	"github.com/spf13/cobra"
)

var (
	configPath    string
	budget        time.Duration
	output        string
	metricsListen string
	pairwise      string

	rootCmd = &cobra.Command{
		Use:   "rsaplan [scenario.json...]",
		Short: "Route and assign spectrum for elastic optical network demands",
		Long: `rsaplan solves the routing and spectrum assignment problem for a
batch of traffic requests: each accepted request gets one candidate
path, one modulation format within optical reach, and one contiguous
block of spectrum slots, with guard bands between neighbours and the
overall spectrum ceiling respected.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runPlan,
		// RunE reports failures through process exit codes; cobra's
		// own error echo would duplicate them.
		SilenceErrors: true,
		SilenceUsage:  true,
	}
)

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "planner configuration file (YAML)")
	rootCmd.Flags().DurationVar(&budget, "budget", 0, "override the solver time budget")
	rootCmd.Flags().StringVarP(&output, "output", "o", "", "report format: text or json")
	rootCmd.Flags().StringVar(&metricsListen, "metrics-listen", "", "expose Prometheus metrics on this address")
	rootCmd.Flags().StringVar(&pairwise, "pairwise", "", "non-overlap scope: conflicting or all")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(pipeline.ExitInputError)
	}
}

func runPlan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "rsaplan: %v\n", err)
		os.Exit(pipeline.ExitInputError)
	}

	log := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:     cfg.Tracing.Enabled,
		Exporter:    cfg.Tracing.Exporter,
		Endpoint:    cfg.Tracing.Endpoint,
		SampleRatio: cfg.Tracing.SampleRatio,
	}, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rsaplan: tracing init: %v\n", err)
		os.Exit(pipeline.ExitInputError)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdown, log)

	var collector *observability.PlannerCollector
	if cfg.MetricsListen != "" {
		collector, err = observability.NewPlannerCollector(prometheus.DefaultRegisterer)
		if err != nil {
			fmt.Fprintf(os.Stderr, "rsaplan: metrics init: %v\n", err)
			os.Exit(pipeline.ExitInputError)
		}
		srv := &http.Server{Addr: cfg.MetricsListen, Handler: collector.Handler()}
		go func() {
			if serveErr := srv.ListenAndServe(); serveErr != nil && serveErr != http.ErrServerClosed {
				log.Warn(ctx, "metrics listener stopped", logging.Error(serveErr))
			}
		}()
		defer srv.Close()
	}

	p := pipeline.New(cfg, nil, log, collector)

	worst := pipeline.ExitOK
	for _, path := range args {
		outcome, runErr := p.RunFile(ctx, path)
		code := pipeline.ExitCode(outcome, runErr)
		if runErr != nil {
			fmt.Fprintf(os.Stderr, "rsaplan: %s: %v\n", path, runErr)
		}
		if outcome != nil && outcome.Report != nil {
			if writeErr := writeReport(cfg, outcome); writeErr != nil {
				fmt.Fprintf(os.Stderr, "rsaplan: %s: write report: %v\n", path, writeErr)
				if code == pipeline.ExitOK {
					code = pipeline.ExitInputError
				}
			}
		}
		if code > worst {
			worst = code
		}
	}
	os.Exit(worst)
	return nil
}

func loadConfig() (core.PlannerConfig, error) {
	cfg := core.DefaultPlannerConfig()
	if configPath != "" {
		var err error
		cfg, err = core.LoadPlannerConfigFile(configPath)
		if err != nil {
			return cfg, err
		}
	}
	// CLI flags win over the config file.
	if budget > 0 {
		cfg.SolveBudget = budget
	}
	if output != "" {
		cfg.Output = output
	}
	if metricsListen != "" {
		cfg.MetricsListen = metricsListen
	}
	if pairwise != "" {
		cfg.Pairwise = core.PairwiseScope(pairwise)
	}
	return cfg, cfg.Validate()
}

func writeReport(cfg core.PlannerConfig, outcome *pipeline.Outcome) error {
	switch cfg.Output {
	case "json":
		return outcome.Report.WriteJSON(os.Stdout)
	default:
		return outcome.Report.WriteText(os.Stdout)
	}
}
