package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/signalsfoundry/rsa-planner/core"
	"github.com/signalsfoundry/rsa-planner/internal/model"
	"github.com/signalsfoundry/rsa-planner/internal/solver"
)

const referenceScenarioJSON = `{
  "nodes": ["0", "1", "2", "3", "4"],
  "links": [
    {"id": "l01", "a": "0", "b": "1", "distance": 200},
    {"id": "l03", "a": "0", "b": "3", "distance": 500},
    {"id": "l12", "a": "1", "b": "2", "distance": 300},
    {"id": "l14", "a": "1", "b": "4", "distance": 400},
    {"id": "l34", "a": "3", "b": "4", "distance": 250},
    {"id": "l23", "a": "2", "b": "3", "distance": 350}
  ],
  "requests": [
    {"id": "r1", "source": "0", "destination": "2", "volume": 100}
  ],
  "modulations": [
    {"id": "m1", "reach": 400, "efficiency": 1},
    {"id": "m2", "reach": 600, "efficiency": 1}
  ],
  "guard_band": 1,
  "spectrum_ceiling": 100,
  "k": 2,
  "slot_table": [
    {"request": "r1", "path": 0, "modulation": "m1", "slots": 10},
    {"request": "r1", "path": 0, "modulation": "m2", "slots": 8},
    {"request": "r1", "path": 1, "modulation": "m2", "slots": 12}
  ]
}`

func testConfig() core.PlannerConfig {
	cfg := core.DefaultPlannerConfig()
	cfg.PathWorkers = 1
	return cfg
}

func TestRun_ReferenceScenarioEndToEnd(t *testing.T) {
	p := New(testConfig(), nil, nil, nil)

	outcome, err := p.Run(context.Background(), "reference", strings.NewReader(referenceScenarioJSON))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if code := ExitCode(outcome, err); code != ExitOK {
		t.Fatalf("exit code = %d, want 0", code)
	}
	if outcome.State != StateReported {
		t.Fatalf("final state = %s, want reported", outcome.State)
	}
	if !outcome.Verdict.Pass() {
		t.Fatalf("verdict has violations: %+v", outcome.Verdict.Violations)
	}

	rep := outcome.Report
	if rep == nil || rep.Accepted != 1 || rep.SMax != 8 || !rep.Proven {
		t.Fatalf("report = %+v, want 1 accepted with S_max 8, proven", rep)
	}
	r1 := rep.Requests[0]
	if !r1.Accepted || r1.Modulation != "m2" || strings.Join(r1.Path, "-") != "0-1-2" {
		t.Fatalf("r1 result = %+v, want path 0-1-2 under m2", r1)
	}
}

func TestRun_MalformedInputIsExitOne(t *testing.T) {
	p := New(testConfig(), nil, nil, nil)

	outcome, err := p.Run(context.Background(), "broken", strings.NewReader(`{"nodes": [`))
	if err == nil {
		t.Fatal("expected an error for malformed input")
	}
	if !errors.Is(err, core.ErrInputValidation) {
		t.Fatalf("error should wrap ErrInputValidation, got %v", err)
	}
	if code := ExitCode(outcome, err); code != ExitInputError {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if outcome.State != StateUnsolved {
		t.Fatalf("state = %s, want unsolved", outcome.State)
	}
}

// failingEngine simulates a solver that gives up without an incumbent.
type failingEngine struct{}

func (failingEngine) Solve(context.Context, *model.System, solver.Budget) (*solver.Result, error) {
	return nil, fmt.Errorf("search space exhausted the budget")
}

func TestRun_SolverFailureIsExitTwo(t *testing.T) {
	p := New(testConfig(), failingEngine{}, nil, nil)

	outcome, err := p.Run(context.Background(), "reference", strings.NewReader(referenceScenarioJSON))
	if err == nil {
		t.Fatal("expected an error from the failing engine")
	}
	if !errors.Is(err, core.ErrSolverTimeout) {
		t.Fatalf("error should wrap ErrSolverTimeout, got %v", err)
	}
	if code := ExitCode(outcome, err); code != ExitSolverExhausted {
		t.Fatalf("exit code = %d, want 2", code)
	}
	if outcome.State != StateModelBuilt {
		t.Fatalf("state = %s, want model_built", outcome.State)
	}
}

// brokenEngine returns an assignment that violates the reach rule:
// the reference request on path 0 under m1 (500 km > 400 km reach).
type brokenEngine struct{}

func (brokenEngine) Solve(_ context.Context, sys *model.System, _ solver.Budget) (*solver.Result, error) {
	return &solver.Result{
		Assignment: &core.Assignment{
			Requests: []*core.RequestAssignment{{
				Request:    "r1",
				Accepted:   true,
				PathIndex:  0,
				Modulation: "m1",
				Block:      core.SpectrumBlock{Start: 0, End: 10},
				Side:       core.SideLeft,
			}},
			SMax: 10,
		},
		Objective: 1,
		Proven:    true,
	}, nil
}

func TestRun_ValidationFaultIsExitThree(t *testing.T) {
	p := New(testConfig(), brokenEngine{}, nil, nil)

	outcome, err := p.Run(context.Background(), "reference", strings.NewReader(referenceScenarioJSON))
	if err == nil {
		t.Fatal("expected an error for an invalid assignment")
	}
	if !errors.Is(err, core.ErrValidatorMismatch) {
		t.Fatalf("error should wrap ErrValidatorMismatch, got %v", err)
	}
	if code := ExitCode(outcome, err); code != ExitValidationFault {
		t.Fatalf("exit code = %d, want 3", code)
	}
	if outcome.State != StateValidatedFail {
		t.Fatalf("state = %s, want validated_fail", outcome.State)
	}
	if outcome.Report != nil {
		t.Fatal("a failed validation must not produce a report")
	}
	if outcome.Verdict.Pass() {
		t.Fatal("verdict should carry the violations")
	}
}

func TestRunFile_MissingFileIsExitOne(t *testing.T) {
	p := New(testConfig(), nil, nil, nil)

	outcome, err := p.RunFile(context.Background(), "/nonexistent/scenario.json")
	if err == nil {
		t.Fatal("expected an error for a missing file")
	}
	if code := ExitCode(outcome, err); code != ExitInputError {
		t.Fatalf("exit code = %d, want 1", code)
	}
}

func TestExitCode_NilErrorIsZero(t *testing.T) {
	if code := ExitCode(&Outcome{State: StateReported}, nil); code != ExitOK {
		t.Fatalf("exit code = %d, want 0", code)
	}
}
