// Package validate independently re-checks a solver assignment against
// every structural rule of the planning problem. It consults only the
// input data (knowledge base, scenario parameters, candidate paths),
// never the solver's or builder's internal state, so any engine can be
// regression-tested against the same oracle.
package validate

import (
	"fmt"
	"math"

	"github.com/signalsfoundry/rsa-planner/core"
)

// Rule identifiers carried by violations.
const (
	RulePathSelection       = "path_selection"
	RulePathIntegrity       = "path_integrity"
	RuleModulationSelection = "modulation_selection"
	RuleReach               = "reach"
	RuleBlockLength         = "block_length"
	RuleSide                = "side"
	RuleZone                = "zone"
	RuleGuardSeparation     = "guard_separation"
	RuleSpectrumCeiling     = "spectrum_ceiling"
	RuleRejectReason        = "reject_reason"
)

// distanceTolerance absorbs floating-point noise when re-summing link
// distances.
const distanceTolerance = 1e-6

// Violation names one broken rule and the offending request(s).
type Violation struct {
	Rule     string
	Requests []string
	Detail   string
}

// Verdict is the structured outcome of a validation pass.
type Verdict struct {
	Violations []Violation
}

// Pass reports whether the assignment satisfied every rule.
func (v Verdict) Pass() bool { return len(v.Violations) == 0 }

// Validator re-derives and checks every assignment invariant. It is
// deterministic and side-effect-free; the Assignment is treated as
// read-only.
type Validator struct {
	kb    *core.KnowledgeBase
	sc    *core.Scenario
	paths map[string][]core.CandidatePath
	scope core.PairwiseScope
}

// New creates a Validator over the same inputs the model builder used.
func New(kb *core.KnowledgeBase, sc *core.Scenario, paths map[string][]core.CandidatePath, scope core.PairwiseScope) *Validator {
	if scope == "" {
		scope = core.PairwiseConflicting
	}
	return &Validator{kb: kb, sc: sc, paths: paths, scope: scope}
}

// Check validates the assignment and returns the verdict. Running it
// twice on the same inputs yields an identical verdict.
func (v *Validator) Check(asg *core.Assignment) Verdict {
	var verdict Verdict
	add := func(rule string, requests []string, format string, args ...any) {
		verdict.Violations = append(verdict.Violations, Violation{
			Rule:     rule,
			Requests: requests,
			Detail:   fmt.Sprintf(format, args...),
		})
	}

	if asg == nil {
		add(RulePathSelection, nil, "assignment is nil")
		return verdict
	}

	var accepted []*core.RequestAssignment
	for _, ra := range asg.Requests {
		req := v.kb.GetTrafficRequest(ra.Request)
		if req == nil {
			add(RulePathSelection, []string{ra.Request}, "assignment references unknown request %q", ra.Request)
			continue
		}
		if !ra.Accepted {
			v.checkRejected(ra, add)
			continue
		}
		accepted = append(accepted, ra)
		v.checkAccepted(req, ra, add)
	}

	v.checkPairs(accepted, add)
	v.checkCeiling(asg, accepted, add)

	return verdict
}

func (v *Validator) checkRejected(ra *core.RequestAssignment, add func(string, []string, string, ...any)) {
	if ra.Modulation != "" || ra.Block.Len() != 0 {
		add(RulePathSelection, []string{ra.Request},
			"rejected request carries assignment artifacts (modulation %q, block [%d,%d))",
			ra.Modulation, ra.Block.Start, ra.Block.End)
	}
	if ra.Side != "" {
		add(RuleSide, []string{ra.Request}, "rejected request carries side %q", ra.Side)
	}
	switch ra.Reason {
	case core.ReasonNoFeasiblePath, core.ReasonNoFeasibleModulation, core.ReasonSpectrumExhausted:
	case core.ReasonNone:
		add(RuleRejectReason, []string{ra.Request}, "rejected request carries no reason code")
	default:
		add(RuleRejectReason, []string{ra.Request}, "rejected request carries unknown reason %q", ra.Reason)
	}
}

func (v *Validator) checkAccepted(req *core.TrafficRequest, ra *core.RequestAssignment, add func(string, []string, string, ...any)) {
	// Exactly one candidate path chosen, and it must be a real path of
	// this request.
	candidates := v.paths[ra.Request]
	if ra.PathIndex < 0 || ra.PathIndex >= len(candidates) {
		add(RulePathSelection, []string{ra.Request},
			"chosen path index %d out of range (%d candidates)", ra.PathIndex, len(candidates))
		return
	}
	path := candidates[ra.PathIndex]

	v.checkPathIntegrity(req, path, ra, add)

	// Exactly one modulation, within reach.
	mod := v.kb.GetModulation(ra.Modulation)
	if mod == nil {
		add(RuleModulationSelection, []string{ra.Request}, "chosen modulation %q does not exist", ra.Modulation)
		return
	}
	if path.Distance > mod.Reach {
		add(RuleReach, []string{ra.Request},
			"path distance %.1f exceeds modulation %q reach %.1f", path.Distance, mod.ID, mod.Reach)
	}

	// Block length equals the required slot count of the chosen pair.
	slots, err := v.sc.SlotsFor(req, ra.PathIndex, mod)
	if err != nil {
		add(RuleBlockLength, []string{ra.Request}, "required slot count unresolvable: %v", err)
	} else if ra.Block.Len() != slots {
		add(RuleBlockLength, []string{ra.Request},
			"block length %d does not match required slot count %d", ra.Block.Len(), slots)
	}
	if ra.Block.Start < 0 || ra.Block.End <= ra.Block.Start {
		add(RuleBlockLength, []string{ra.Request},
			"block [%d,%d) is not a valid slot range", ra.Block.Start, ra.Block.End)
	}

	// Exactly one side: left xor right.
	if ra.Side != core.SideLeft && ra.Side != core.SideRight {
		add(RuleSide, []string{ra.Request}, "accepted request has side %q, want left or right", ra.Side)
	}

	// Zone placement when zones are configured.
	zones := v.kb.Zones()
	if len(zones) == 0 {
		if ra.Zone != "" {
			add(RuleZone, []string{ra.Request}, "request assigned to zone %q but no zones are configured", ra.Zone)
		}
		return
	}
	zone := v.kb.GetZone(ra.Zone)
	if zone == nil {
		add(RuleZone, []string{ra.Request}, "accepted request assigned to unknown zone %q", ra.Zone)
		return
	}
	if ra.Block.End > zone.Capacity {
		add(RuleZone, []string{ra.Request},
			"block end %d exceeds zone %q capacity %d", ra.Block.End, zone.ID, zone.Capacity)
	}
}

func (v *Validator) checkPathIntegrity(req *core.TrafficRequest, path core.CandidatePath, ra *core.RequestAssignment, add func(string, []string, string, ...any)) {
	if len(path.Nodes) < 2 || path.Nodes[0] != req.Source || path.Nodes[len(path.Nodes)-1] != req.Destination {
		add(RulePathIntegrity, []string{ra.Request},
			"chosen path does not connect %q to %q", req.Source, req.Destination)
		return
	}
	if !path.Loopless() {
		add(RulePathIntegrity, []string{ra.Request}, "chosen path revisits a node")
	}
	if len(path.Links) != len(path.Nodes)-1 {
		add(RulePathIntegrity, []string{ra.Request},
			"path has %d links for %d nodes", len(path.Links), len(path.Nodes))
		return
	}
	var sum float64
	for i, link := range path.Links {
		known := v.kb.GetLink(link.ID)
		if known == nil {
			add(RulePathIntegrity, []string{ra.Request}, "path uses link %q absent from topology", link.ID)
			continue
		}
		if !known.Connects(path.Nodes[i], path.Nodes[i+1]) {
			add(RulePathIntegrity, []string{ra.Request},
				"link %q does not join consecutive nodes %q and %q", link.ID, path.Nodes[i], path.Nodes[i+1])
		}
		sum += known.Distance
	}
	if math.Abs(sum-path.Distance) > distanceTolerance {
		add(RulePathIntegrity, []string{ra.Request},
			"path distance %.6f does not equal link sum %.6f", path.Distance, sum)
	}
}

// checkPairs verifies guard-band separation for every pair of accepted
// requests that contend for spectrum.
func (v *Validator) checkPairs(accepted []*core.RequestAssignment, add func(string, []string, string, ...any)) {
	guard := v.sc.GuardBand
	for i := 0; i < len(accepted); i++ {
		for j := i + 1; j < len(accepted); j++ {
			a, b := accepted[i], accepted[j]
			if !v.conflicting(a, b) {
				continue
			}
			if !a.Block.SeparatedFrom(b.Block, guard) {
				add(RuleGuardSeparation, []string{a.Request, b.Request},
					"blocks [%d,%d) and [%d,%d) overlap within guard band %d",
					a.Block.Start, a.Block.End, b.Block.Start, b.Block.End, guard)
			}
		}
	}
}

// conflicting re-derives the contention relation from input data: under
// the blanket scope every pair contends; otherwise a pair contends when
// any of their candidate paths share a link, or both sit in the same
// configured zone.
func (v *Validator) conflicting(a, b *core.RequestAssignment) bool {
	if v.scope == core.PairwiseAll {
		return true
	}
	if v.shareCandidateLink(a.Request, b.Request) {
		return true
	}
	return a.Zone != "" && a.Zone == b.Zone
}

func (v *Validator) shareCandidateLink(a, b string) bool {
	seen := map[string]struct{}{}
	for _, p := range v.paths[a] {
		for _, l := range p.Links {
			seen[l.ID] = struct{}{}
		}
	}
	for _, p := range v.paths[b] {
		for _, l := range p.Links {
			if _, ok := seen[l.ID]; ok {
				return true
			}
		}
	}
	return false
}

// checkCeiling verifies S_max consistency: it equals the maximum block
// end among accepted requests and never exceeds the global ceiling.
func (v *Validator) checkCeiling(asg *core.Assignment, accepted []*core.RequestAssignment, add func(string, []string, string, ...any)) {
	maxEnd := 0
	for _, ra := range accepted {
		if ra.Block.End > maxEnd {
			maxEnd = ra.Block.End
		}
		if ra.Block.End > v.sc.SpectrumCeiling {
			add(RuleSpectrumCeiling, []string{ra.Request},
				"block end %d exceeds spectrum ceiling %d", ra.Block.End, v.sc.SpectrumCeiling)
		}
	}
	if asg.SMax != maxEnd {
		add(RuleSpectrumCeiling, nil,
			"S_max %d does not equal maximum block end %d", asg.SMax, maxEnd)
	}
	if asg.SMax > v.sc.SpectrumCeiling {
		add(RuleSpectrumCeiling, nil,
			"S_max %d exceeds spectrum ceiling %d", asg.SMax, v.sc.SpectrumCeiling)
	}
}
