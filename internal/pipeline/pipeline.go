// Package pipeline wires the planning stages into a single batch run:
// load, generate candidate paths, build the constraint system, solve,
// independently validate, and report. The pipeline advances through an
// explicit state machine; a failed validation is terminal and aborts
// before reporting.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/signalsfoundry/rsa-planner/core"
	"github.com/signalsfoundry/rsa-planner/internal/logging"
	"github.com/signalsfoundry/rsa-planner/internal/model"
	"github.com/signalsfoundry/rsa-planner/internal/observability"
	"github.com/signalsfoundry/rsa-planner/internal/pathgen"
	"github.com/signalsfoundry/rsa-planner/internal/report"
	"github.com/signalsfoundry/rsa-planner/internal/solver"
	"github.com/signalsfoundry/rsa-planner/internal/validate"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// State is the pipeline's position in its lifecycle.
type State string

const (
	StateUnsolved      State = "unsolved"
	StateModelBuilt    State = "model_built"
	StateSolved        State = "solved"
	StateValidatedPass State = "validated_pass"
	StateValidatedFail State = "validated_fail"
	StateReported      State = "reported"
)

// Exit codes of the batch tool.
const (
	ExitOK              = 0
	ExitInputError      = 1
	ExitSolverExhausted = 2
	ExitValidationFault = 3
)

// Outcome is everything a run produced, including partial results when
// a stage failed.
type Outcome struct {
	State   State
	Report  *report.Report
	Verdict validate.Verdict
	Solve   *solver.Result
}

// ExitCode maps the outcome and error to the documented process exit
// codes.
func ExitCode(outcome *Outcome, err error) int {
	if err == nil {
		return ExitOK
	}
	switch {
	case outcome != nil && outcome.State == StateValidatedFail:
		return ExitValidationFault
	case errors.Is(err, core.ErrValidatorMismatch):
		return ExitValidationFault
	case errors.Is(err, core.ErrSolverTimeout):
		return ExitSolverExhausted
	default:
		return ExitInputError
	}
}

// Pipeline runs planning scenarios through the full stage sequence.
type Pipeline struct {
	cfg     core.PlannerConfig
	engine  solver.Engine
	log     logging.Logger
	metrics *observability.PlannerCollector
}

// New creates a Pipeline. A nil engine selects the reference
// branch-and-bound engine; metrics may be nil.
func New(cfg core.PlannerConfig, engine solver.Engine, log logging.Logger, metrics *observability.PlannerCollector) *Pipeline {
	if log == nil {
		log = logging.Noop()
	}
	if engine == nil {
		engine = solver.NewBranchBound(log)
	}
	return &Pipeline{cfg: cfg, engine: engine, log: log, metrics: metrics}
}

// RunFile runs the scenario stored at path.
func (p *Pipeline) RunFile(ctx context.Context, path string) (*Outcome, error) {
	f, err := os.Open(path)
	if err != nil {
		return &Outcome{State: StateUnsolved}, fmt.Errorf("%w: open scenario: %v", core.ErrInputValidation, err)
	}
	defer f.Close()
	return p.Run(ctx, path, f)
}

// Run executes the full pipeline over one scenario. The returned
// Outcome is populated as far as the run got; err is non-nil whenever
// the run did not end in a validated, reportable assignment.
func (p *Pipeline) Run(ctx context.Context, name string, r io.Reader) (*Outcome, error) {
	ctx, log := logging.WithRunLogger(ctx, p.log)
	tracer := otel.Tracer("rsaplan/pipeline")

	ctx, span := tracer.Start(ctx, "plan_run")
	span.SetAttributes(attribute.String("scenario", name))
	defer span.End()

	outcome := &Outcome{State: StateUnsolved}

	// Load + input validation gate.
	_, loadSpan := tracer.Start(ctx, "load_scenario")
	kb := core.NewKnowledgeBase()
	sc, err := core.LoadScenario(kb, r)
	if err == nil {
		err = kb.Validate()
	}
	loadSpan.End()
	if err != nil {
		p.observe("input_error", nil)
		return outcome, err
	}
	log.Info(ctx, "scenario loaded",
		logging.String("scenario", name),
		logging.Int("nodes", len(sc.NodeIDs)),
		logging.Int("links", len(sc.LinkIDs)),
		logging.Int("requests", len(sc.RequestIDs)),
	)

	// Candidate path generation, parallel across requests.
	genCtx, genSpan := tracer.Start(ctx, "generate_paths")
	gen := pathgen.New(kb, sc.K, p.cfg.Workers(), log)
	paths, err := gen.Generate(genCtx)
	genSpan.End()
	if err != nil {
		p.observe("input_error", nil)
		return outcome, fmt.Errorf("candidate path generation failed: %w", err)
	}
	totalPaths := 0
	for _, ps := range paths {
		totalPaths += len(ps)
	}
	if p.metrics != nil && p.metrics.CandidatePaths != nil {
		p.metrics.CandidatePaths.Set(float64(totalPaths))
	}

	// Model building.
	buildCtx, buildSpan := tracer.Start(ctx, "build_model")
	builder := model.NewBuilder(kb, sc, paths, p.cfg.Scope(), log)
	sys, err := builder.Build(buildCtx)
	buildSpan.End()
	if err != nil {
		p.observe("input_error", nil)
		return outcome, fmt.Errorf("model build failed: %w", err)
	}
	outcome.State = StateModelBuilt
	if p.metrics != nil && p.metrics.ConstraintRows != nil {
		p.metrics.ConstraintRows.Set(float64(len(sys.Rows)))
	}

	// Solve within budget. A timed-out solve still yields the best
	// incumbent, flagged unproven; it flows through validation the same
	// way a proven one does.
	solveCtx, solveSpan := tracer.Start(ctx, "solve")
	result, err := p.engine.Solve(solveCtx, sys, solver.Budget{
		Time:  p.cfg.SolveBudget,
		Nodes: p.cfg.SolveNodeLimit,
	})
	solveSpan.End()
	if err != nil {
		p.observe("solver_error", nil)
		return outcome, fmt.Errorf("%w: %v", core.ErrSolverTimeout, err)
	}
	outcome.State = StateSolved
	outcome.Solve = result
	if p.metrics != nil && p.metrics.SolveDuration != nil {
		p.metrics.SolveDuration.Observe(result.Elapsed.Seconds())
	}
	log.Info(ctx, "solve complete",
		logging.Int("objective", result.Objective),
		logging.Any("proven_optimal", result.Proven),
		logging.String("elapsed", result.Elapsed.String()),
	)

	// Independent validation. A mismatch is a correctness fault, never
	// a business outcome.
	_, checkSpan := tracer.Start(ctx, "validate")
	verdict := validate.New(kb, sc, paths, p.cfg.Scope()).Check(result.Assignment)
	checkSpan.End()
	outcome.Verdict = verdict
	if !verdict.Pass() {
		outcome.State = StateValidatedFail
		if p.metrics != nil && p.metrics.Violations != nil {
			p.metrics.Violations.Add(float64(len(verdict.Violations)))
		}
		p.observe("validation_failed", nil)
		for _, violation := range verdict.Violations {
			log.Error(ctx, "assignment violates invariant",
				logging.String("rule", violation.Rule),
				logging.String("requests", strings.Join(violation.Requests, ",")),
				logging.String("detail", violation.Detail),
			)
		}
		return outcome, fmt.Errorf("%w: %d violations", core.ErrValidatorMismatch, len(verdict.Violations))
	}
	outcome.State = StateValidatedPass

	outcome.Report = report.Build(name, result.Assignment, paths, result.Proven)
	outcome.State = StateReported
	p.observe("solved", outcome.Report)
	return outcome, nil
}

func (p *Pipeline) observe(result string, rep *report.Report) {
	if p.metrics == nil {
		return
	}
	accepted, rejected := 0, 0
	if rep != nil {
		accepted, rejected = rep.Accepted, rep.Rejected
	}
	p.metrics.ObserveRun(result, accepted, rejected)
}
