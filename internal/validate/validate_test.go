package validate

import (
	"context"
	"strings"
	"testing"

	"github.com/signalsfoundry/rsa-planner/core"
	"github.com/signalsfoundry/rsa-planner/internal/pathgen"
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

type fixture struct {
	kb    *core.KnowledgeBase
	sc    *core.Scenario
	paths map[string][]core.CandidatePath
}

func load(t *testing.T, scenario string) fixture {
	t.Helper()
	kb := core.NewKnowledgeBase()
	sc, err := core.LoadScenario(kb, strings.NewReader(scenario))
	if err != nil {
		t.Fatalf("LoadScenario failed: %v", err)
	}
	paths, err := pathgen.New(kb, sc.K, 1, nil).Generate(context.Background())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	return fixture{kb: kb, sc: sc, paths: paths}
}

func (f fixture) validator() *Validator {
	return New(f.kb, f.sc, f.paths, core.PairwiseConflicting)
}

// goodAssignment is the unique valid acceptance in the reference
// scenario: path 0-1-2 under m2, 8 slots at the bottom of spectrum.
func goodAssignment() *core.Assignment {
	return &core.Assignment{
		Requests: []*core.RequestAssignment{{
			Request:    "r1",
			Accepted:   true,
			PathIndex:  0,
			Modulation: "m2",
			Block:      core.SpectrumBlock{Start: 0, End: 8},
			Side:       core.SideLeft,
		}},
		SMax: 8,
	}
}

func mustViolate(t *testing.T, verdict Verdict, rule string) {
	t.Helper()
	if verdict.Pass() {
		t.Fatalf("expected a %s violation, assignment passed", rule)
	}
	for _, violation := range verdict.Violations {
		if violation.Rule == rule {
			return
		}
	}
	t.Fatalf("expected a %s violation, got %+v", rule, verdict.Violations)
}

func TestCheck_AcceptsTheReferenceSolution(t *testing.T) {
	f := load(t, referenceScenarioJSON)

	verdict := f.validator().Check(goodAssignment())
	if !verdict.Pass() {
		t.Fatalf("valid assignment rejected: %+v", verdict.Violations)
	}
}

func TestCheck_Idempotent(t *testing.T) {
	f := load(t, referenceScenarioJSON)
	v := f.validator()
	asg := goodAssignment()

	first := v.Check(asg)
	second := v.Check(asg)
	if len(first.Violations) != len(second.Violations) {
		t.Fatalf("verdicts differ across runs: %d vs %d violations",
			len(first.Violations), len(second.Violations))
	}
}

// p1 under m1 is out of reach (500 km > 400 km) and must be rejected by
// the reach rule.
func TestCheck_ReachViolation(t *testing.T) {
	f := load(t, referenceScenarioJSON)

	asg := goodAssignment()
	asg.Requests[0].Modulation = "m1"
	asg.Requests[0].Block = core.SpectrumBlock{Start: 0, End: 10}
	asg.SMax = 10

	mustViolate(t, f.validator().Check(asg), RuleReach)
}

// p2 (0-3-2, 850 km) exceeds both reaches; choosing it must trip the
// reach rule no matter the modulation.
func TestCheck_InfeasiblePathViolation(t *testing.T) {
	f := load(t, referenceScenarioJSON)

	asg := goodAssignment()
	asg.Requests[0].PathIndex = 1
	asg.Requests[0].Block = core.SpectrumBlock{Start: 0, End: 12}
	asg.SMax = 12

	mustViolate(t, f.validator().Check(asg), RuleReach)
}

func TestCheck_PathIndexOutOfRange(t *testing.T) {
	f := load(t, referenceScenarioJSON)

	asg := goodAssignment()
	asg.Requests[0].PathIndex = 7

	mustViolate(t, f.validator().Check(asg), RulePathSelection)
}

func TestCheck_UnknownModulation(t *testing.T) {
	f := load(t, referenceScenarioJSON)

	asg := goodAssignment()
	asg.Requests[0].Modulation = "m9"

	mustViolate(t, f.validator().Check(asg), RuleModulationSelection)
}

func TestCheck_BlockLengthMismatch(t *testing.T) {
	f := load(t, referenceScenarioJSON)

	asg := goodAssignment()
	asg.Requests[0].Block = core.SpectrumBlock{Start: 0, End: 6}
	asg.SMax = 6

	mustViolate(t, f.validator().Check(asg), RuleBlockLength)
}

func TestCheck_MissingSide(t *testing.T) {
	f := load(t, referenceScenarioJSON)

	asg := goodAssignment()
	asg.Requests[0].Side = ""

	mustViolate(t, f.validator().Check(asg), RuleSide)
}

func TestCheck_SpectrumCeilingViolations(t *testing.T) {
	f := load(t, referenceScenarioJSON)

	// Block pushed past the ceiling.
	asg := goodAssignment()
	asg.Requests[0].Block = core.SpectrumBlock{Start: 95, End: 103}
	asg.SMax = 103
	mustViolate(t, f.validator().Check(asg), RuleSpectrumCeiling)

	// S_max inconsistent with the blocks.
	asg = goodAssignment()
	asg.SMax = 42
	mustViolate(t, f.validator().Check(asg), RuleSpectrumCeiling)
}

func TestCheck_RejectedRequestMustBeClean(t *testing.T) {
	f := load(t, referenceScenarioJSON)

	asg := &core.Assignment{
		Requests: []*core.RequestAssignment{{
			Request:    "r1",
			Accepted:   false,
			Modulation: "m2",
			Block:      core.SpectrumBlock{Start: 0, End: 8},
			Reason:     core.ReasonSpectrumExhausted,
		}},
	}

	mustViolate(t, f.validator().Check(asg), RulePathSelection)
}

// A rejection must carry one of the known reason codes; a blank or
// invented reason is a contract violation, not a business outcome.
func TestCheck_RejectedRequestNeedsReason(t *testing.T) {
	f := load(t, referenceScenarioJSON)

	asg := &core.Assignment{
		Requests: []*core.RequestAssignment{{Request: "r1"}},
	}
	mustViolate(t, f.validator().Check(asg), RuleRejectReason)

	asg.Requests[0].Reason = "operator_mood"
	mustViolate(t, f.validator().Check(asg), RuleRejectReason)

	asg.Requests[0].Reason = core.ReasonNoFeasibleModulation
	if verdict := f.validator().Check(asg); !verdict.Pass() {
		t.Fatalf("rejection with a known reason flagged: %+v", verdict.Violations)
	}
}

const twoConflictingJSON = `{
  "nodes": ["a", "b", "c", "d"],
  "links": [
    {"id": "lab", "a": "a", "b": "b", "distance": 100},
    {"id": "lbc", "a": "b", "b": "c", "distance": 100},
    {"id": "lcd", "a": "c", "b": "d", "distance": 100}
  ],
  "requests": [
    {"id": "r1", "source": "a", "destination": "c", "volume": 50},
    {"id": "r2", "source": "b", "destination": "d", "volume": 50}
  ],
  "modulations": [{"id": "m1", "reach": 400, "efficiency": 1}],
  "guard_band": 1,
  "spectrum_ceiling": 20,
  "slot_capacity": 12.5,
  "k": 1
}`

func twoAccepted(blockA, blockB core.SpectrumBlock) *core.Assignment {
	smax := blockA.End
	if blockB.End > smax {
		smax = blockB.End
	}
	return &core.Assignment{
		Requests: []*core.RequestAssignment{
			{Request: "r1", Accepted: true, PathIndex: 0, Modulation: "m1", Block: blockA, Side: core.SideLeft},
			{Request: "r2", Accepted: true, PathIndex: 0, Modulation: "m1", Block: blockB, Side: core.SideLeft},
		},
		SMax: smax,
	}
}

func TestCheck_GuardSeparation(t *testing.T) {
	f := load(t, twoConflictingJSON)
	v := f.validator()

	// Separated by exactly the guard band: fine.
	verdict := v.Check(twoAccepted(
		core.SpectrumBlock{Start: 0, End: 4},
		core.SpectrumBlock{Start: 5, End: 9},
	))
	if !verdict.Pass() {
		t.Fatalf("guard-separated blocks rejected: %+v", verdict.Violations)
	}

	// Adjacent without the guard slot: violation.
	mustViolate(t, v.Check(twoAccepted(
		core.SpectrumBlock{Start: 0, End: 4},
		core.SpectrumBlock{Start: 4, End: 8},
	)), RuleGuardSeparation)

	// Overlapping outright: violation.
	mustViolate(t, v.Check(twoAccepted(
		core.SpectrumBlock{Start: 0, End: 4},
		core.SpectrumBlock{Start: 2, End: 6},
	)), RuleGuardSeparation)
}

// Link-disjoint requests may overlap freely under the conflicting
// scope but not under the blanket scope.
func TestCheck_ScopeChangesContention(t *testing.T) {
	f := load(t, `{
	  "nodes": ["a", "b", "c", "d"],
	  "links": [
	    {"id": "lab", "a": "a", "b": "b", "distance": 100},
	    {"id": "lcd", "a": "c", "b": "d", "distance": 100}
	  ],
	  "requests": [
	    {"id": "r1", "source": "a", "destination": "b", "volume": 50},
	    {"id": "r2", "source": "c", "destination": "d", "volume": 50}
	  ],
	  "modulations": [{"id": "m1", "reach": 400, "efficiency": 1}],
	  "guard_band": 1,
	  "spectrum_ceiling": 20,
	  "slot_capacity": 12.5,
	  "k": 1
	}`)

	overlapping := twoAccepted(
		core.SpectrumBlock{Start: 0, End: 4},
		core.SpectrumBlock{Start: 0, End: 4},
	)

	verdict := New(f.kb, f.sc, f.paths, core.PairwiseConflicting).Check(overlapping)
	if !verdict.Pass() {
		t.Fatalf("disjoint fibers may share slots, got %+v", verdict.Violations)
	}

	mustViolate(t, New(f.kb, f.sc, f.paths, core.PairwiseAll).Check(overlapping), RuleGuardSeparation)
}

func TestCheck_UnknownRequestInAssignment(t *testing.T) {
	f := load(t, referenceScenarioJSON)

	asg := goodAssignment()
	asg.Requests = append(asg.Requests, &core.RequestAssignment{Request: "ghost", Accepted: true})

	mustViolate(t, f.validator().Check(asg), RulePathSelection)
}
