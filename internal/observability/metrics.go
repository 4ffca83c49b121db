package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PlannerCollector bundles Prometheus metrics for the planning pipeline
// and provides a ready-to-use /metrics handler.
type PlannerCollector struct {
	gatherer prometheus.Gatherer

	Runs          *prometheus.CounterVec
	Requests      *prometheus.CounterVec
	SolveDuration prometheus.Histogram
	Violations    prometheus.Counter

	CandidatePaths prometheus.Gauge
	ConstraintRows prometheus.Gauge
}

// NewPlannerCollector registers planner Prometheus metrics against the
// provided registerer, defaulting to the global Prometheus registry
// when nil.
func NewPlannerCollector(reg prometheus.Registerer) (*PlannerCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rsaplan_runs_total",
		Help: "Total planning runs, labeled by outcome (solved, input_error, solver_error, validation_failed).",
	}, []string{"outcome"})
	runs, err := registerCounterVec(reg, runs, "rsaplan_runs_total")
	if err != nil {
		return nil, err
	}

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rsaplan_requests_total",
		Help: "Total traffic requests processed, labeled by disposition (accepted, rejected).",
	}, []string{"disposition"})
	requests, err = registerCounterVec(reg, requests, "rsaplan_requests_total")
	if err != nil {
		return nil, err
	}

	solveDuration, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "rsaplan_solve_duration_seconds",
		Help:    "Solver wall time in seconds.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
	}), "rsaplan_solve_duration_seconds")
	if err != nil {
		return nil, err
	}

	violations, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rsaplan_validation_violations_total",
		Help: "Total invariant violations reported by the independent validator.",
	}), "rsaplan_validation_violations_total")
	if err != nil {
		return nil, err
	}

	candidatePaths, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rsaplan_candidate_paths",
		Help: "Candidate paths generated in the most recent run.",
	}), "rsaplan_candidate_paths")
	if err != nil {
		return nil, err
	}
	constraintRows, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rsaplan_constraint_rows",
		Help: "Constraint rows assembled in the most recent run.",
	}), "rsaplan_constraint_rows")
	if err != nil {
		return nil, err
	}

	return &PlannerCollector{
		gatherer:       gatherer,
		Runs:           runs,
		Requests:       requests,
		SolveDuration:  solveDuration,
		Violations:     violations,
		CandidatePaths: candidatePaths,
		ConstraintRows: constraintRows,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *PlannerCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// ObserveRun records a completed run's outcome plus per-request
// dispositions. Nil collectors are tolerated so the pipeline can run
// without metrics.
func (c *PlannerCollector) ObserveRun(outcome string, accepted, rejected int) {
	if c == nil {
		return
	}
	if c.Runs != nil {
		c.Runs.WithLabelValues(outcome).Inc()
	}
	if c.Requests != nil {
		c.Requests.WithLabelValues("accepted").Add(float64(accepted))
		c.Requests.WithLabelValues("rejected").Add(float64(rejected))
	}
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
