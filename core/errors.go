package core

import "errors"

// Knowledge-base construction errors.
var (
	ErrNodeExists       = errors.New("node already exists")
	ErrLinkExists       = errors.New("link already exists")
	ErrRequestExists    = errors.New("traffic request already exists")
	ErrModulationExists = errors.New("modulation already exists")
	ErrZoneExists       = errors.New("zone already exists")
	ErrUnknownNode      = errors.New("reference to unknown node")
	ErrBadInput         = errors.New("invalid input")
)

// Pipeline error taxonomy.
var (
	// ErrInputValidation marks topology/traffic/config inconsistencies.
	// It aborts the pipeline before model building.
	ErrInputValidation = errors.New("input validation failed")

	// ErrInfeasibleModel marks a constraint system that admits no
	// assignment even with every request rejected. It should be
	// unreachable and indicates a construction bug.
	ErrInfeasibleModel = errors.New("constraint system infeasible")

	// ErrSolverTimeout marks a solve that exhausted its budget without
	// returning any feasible incumbent.
	ErrSolverTimeout = errors.New("solver budget exhausted")

	// ErrValidatorMismatch marks a solver assignment that failed
	// independent validation. Always fatal.
	ErrValidatorMismatch = errors.New("assignment failed independent validation")
)
