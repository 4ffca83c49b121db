package core

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"
)

// PairwiseScope selects which request pairs receive non-overlap
// constraints in the model.
type PairwiseScope string

const (
	// PairwiseConflicting restricts non-overlap to pairs that can
	// actually contend for spectrum: candidate paths sharing a link, or
	// placement into the same zone.
	PairwiseConflicting PairwiseScope = "conflicting"
	// PairwiseAll applies non-overlap to every unordered pair of
	// requests, matching the original blanket formulation.
	PairwiseAll PairwiseScope = "all"
)

// PlannerConfig carries the runtime knobs of the planning pipeline.
// It is immutable after loading and passed explicitly into the path
// generator, model builder, and solver rather than held as ambient
// state.
type PlannerConfig struct {
	// Pairwise selects the non-overlap constraint scope.
	Pairwise PairwiseScope `yaml:"pairwise"`

	// SolveBudget caps the solver's search time. Zero means no cap.
	SolveBudget time.Duration `yaml:"solve_budget"`

	// SolveNodeLimit caps the number of search nodes the reference
	// engine explores. Zero means no cap.
	SolveNodeLimit int64 `yaml:"solve_node_limit"`

	// PathWorkers bounds the number of concurrent per-request path
	// generation workers. Zero means GOMAXPROCS.
	PathWorkers int `yaml:"path_workers"`

	// Output selects the report rendering: "text" or "json".
	Output string `yaml:"output"`

	// MetricsListen, when set, exposes /metrics on the given address
	// for the duration of the run.
	MetricsListen string `yaml:"metrics_listen"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`

	Tracing struct {
		Enabled     bool    `yaml:"enabled"`
		Exporter    string  `yaml:"exporter"` // stdout | otlp
		Endpoint    string  `yaml:"endpoint"`
		SampleRatio float64 `yaml:"sample_ratio"`
	} `yaml:"tracing"`
}

// DefaultPlannerConfig returns the configuration used when no config
// file is provided.
func DefaultPlannerConfig() PlannerConfig {
	cfg := PlannerConfig{
		Pairwise:    PairwiseConflicting,
		SolveBudget: 30 * time.Second,
		PathWorkers: runtime.GOMAXPROCS(0),
		Output:      "text",
	}
	cfg.Log.Level = "info"
	cfg.Log.Format = "text"
	cfg.Tracing.SampleRatio = 1.0
	return cfg
}

// LoadPlannerConfig reads a YAML planner configuration, applying
// defaults for anything unset.
func LoadPlannerConfig(r io.Reader) (PlannerConfig, error) {
	cfg := DefaultPlannerConfig()
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return cfg, fmt.Errorf("%w: planner config: %v", ErrInputValidation, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadPlannerConfigFile is LoadPlannerConfig over a file path.
func LoadPlannerConfigFile(path string) (PlannerConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return DefaultPlannerConfig(), fmt.Errorf("%w: open planner config: %v", ErrInputValidation, err)
	}
	defer f.Close()
	return LoadPlannerConfig(f)
}

// Validate rejects configurations the pipeline cannot run with.
func (c PlannerConfig) Validate() error {
	switch c.Pairwise {
	case PairwiseConflicting, PairwiseAll, "":
	default:
		return fmt.Errorf("%w: unknown pairwise scope %q", ErrInputValidation, c.Pairwise)
	}
	switch c.Output {
	case "text", "json", "":
	default:
		return fmt.Errorf("%w: unknown output format %q", ErrInputValidation, c.Output)
	}
	if c.SolveBudget < 0 {
		return fmt.Errorf("%w: solve_budget must not be negative", ErrInputValidation)
	}
	if c.PathWorkers < 0 {
		return fmt.Errorf("%w: path_workers must not be negative", ErrInputValidation)
	}
	return nil
}

// Workers returns the effective path generation worker count.
func (c PlannerConfig) Workers() int {
	if c.PathWorkers > 0 {
		return c.PathWorkers
	}
	return runtime.GOMAXPROCS(0)
}

// Scope returns the effective pairwise scope.
func (c PlannerConfig) Scope() PairwiseScope {
	if c.Pairwise == "" {
		return PairwiseConflicting
	}
	return c.Pairwise
}
