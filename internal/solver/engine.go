// Package solver defines the capability interface an integer-program
// solving engine must implement to serve the planning pipeline, plus a
// self-contained branch-and-bound reference engine. Any engine can be
// swapped in without touching the path generator, model builder, or
// validator.
package solver

import (
	"context"
	"time"

	"github.com/signalsfoundry/rsa-planner/core"
	"github.com/signalsfoundry/rsa-planner/internal/model"
)

// Budget caps a solve. Zero values mean unbounded.
type Budget struct {
	Time  time.Duration
	Nodes int64
}

// Result is the outcome of a solve: the best assignment found, its
// objective value (accepted request count), and whether optimality was
// proven. A timed-out or cancelled solve returns its best incumbent
// with Proven false rather than failing.
type Result struct {
	Assignment *core.Assignment
	Objective  int
	Proven     bool

	Nodes   int64
	Elapsed time.Duration
}

// Engine accepts an assembled constraint system and returns an
// assignment maximizing the number of accepted requests. The pipeline
// never inspects the engine's internal search procedure.
type Engine interface {
	Solve(ctx context.Context, sys *model.System, budget Budget) (*Result, error)
}
