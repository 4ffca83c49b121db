package model

import (
	"context"
	"fmt"
	"sort"

	"github.com/signalsfoundry/rsa-planner/core"
	"github.com/signalsfoundry/rsa-planner/internal/logging"
)

// Builder assembles a System from the knowledge base, the scenario
// parameters, and the generated candidate paths. Building has no side
// effects beyond the returned System; a failed build leaves nothing
// partially visible.
type Builder struct {
	kb    *core.KnowledgeBase
	sc    *core.Scenario
	paths map[string][]core.CandidatePath
	scope core.PairwiseScope
	log   logging.Logger
}

// NewBuilder creates a Builder over the given inputs.
func NewBuilder(kb *core.KnowledgeBase, sc *core.Scenario, paths map[string][]core.CandidatePath, scope core.PairwiseScope, log logging.Logger) *Builder {
	if log == nil {
		log = logging.Noop()
	}
	if scope == "" {
		scope = core.PairwiseConflicting
	}
	return &Builder{kb: kb, sc: sc, paths: paths, scope: scope, log: log}
}

// Build assembles the constraint system. Requests with no candidate
// path or no feasible modulation are force-rejected rather than
// failing the build. Build fails only on construction bugs: a big-M
// too small for the topology or the spectrum would make the always-
// feasible reject-everything assignment violate a row, which surfaces
// as ErrInfeasibleModel.
func (b *Builder) Build(ctx context.Context) (*System, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	sys := &System{
		Zones:           b.kb.Zones(),
		GuardBand:       b.sc.GuardBand,
		SpectrumCeiling: b.sc.SpectrumCeiling,
		Scope:           b.scope,
	}

	// Big-M sizing. The reach constant must exceed the largest possible
	// path distance; no simple path can be longer than all links
	// combined. The spectrum constant must exceed any achievable slot
	// index including the guard band.
	sys.BigM = b.sc.BigM
	if sys.BigM == 0 {
		sys.BigM = b.kb.TotalDistance() + 1
	}
	sys.SpectrumBigM = b.sc.SpectrumCeiling + b.sc.GuardBand + 1

	if sys.BigM <= b.kb.TotalDistance() {
		return nil, fmt.Errorf("%w: big-M %v does not exceed maximum path distance %v",
			core.ErrInfeasibleModel, sys.BigM, b.kb.TotalDistance())
	}

	for _, req := range b.kb.TrafficRequests() {
		rm, err := b.buildRequest(ctx, req)
		if err != nil {
			return nil, err
		}
		sys.Requests = append(sys.Requests, rm)
	}

	sys.Pairs = b.buildPairs(sys.Requests)

	if err := b.emitRows(sys); err != nil {
		return nil, err
	}

	b.log.Debug(ctx, "constraint system built",
		logging.Int("requests", len(sys.Requests)),
		logging.Int("pairs", len(sys.Pairs)),
		logging.Int("vars", len(sys.Vars)),
		logging.Int("rows", len(sys.Rows)),
	)
	return sys, nil
}

func (b *Builder) buildRequest(ctx context.Context, req *core.TrafficRequest) (*RequestModel, error) {
	rm := &RequestModel{
		Request: req,
		Paths:   b.paths[req.ID],
	}

	if len(rm.Paths) == 0 {
		rm.ForcedReject = true
		rm.RejectReason = core.ReasonNoFeasiblePath
		b.log.Info(ctx, "request force-rejected: no candidate path",
			logging.String("request_id", req.ID),
		)
		return rm, nil
	}

	mods := b.kb.Modulations()
	for p, path := range rm.Paths {
		for _, mod := range mods {
			if path.Distance > mod.Reach {
				continue
			}
			slots, err := b.sc.SlotsFor(req, p, mod)
			if err != nil {
				return nil, fmt.Errorf("%w: request %q path %d modulation %q: %v",
					core.ErrInputValidation, req.ID, p, mod.ID, err)
			}
			rm.Options = append(rm.Options, Option{
				PathIndex:  p,
				Modulation: mod.ID,
				Distance:   path.Distance,
				Slots:      slots,
			})
		}
	}

	if len(rm.Options) == 0 {
		rm.ForcedReject = true
		rm.RejectReason = core.ReasonNoFeasibleModulation
		b.log.Info(ctx, "request force-rejected: no feasible modulation",
			logging.String("request_id", req.ID),
		)
	}
	return rm, nil
}

// buildPairs computes the unordered request pairs subject to the
// non-overlap disjunction. Under the blanket scope every pair is
// included. Under the conflicting scope only pairs that can still be
// accepted are included, annotated with whether their candidate paths
// share a link; pairs that share no link conflict only when placed
// into the same zone.
func (b *Builder) buildPairs(requests []*RequestModel) []ConflictPair {
	linkSets := make(map[string]map[string]struct{}, len(requests))
	for _, rm := range requests {
		set := make(map[string]struct{})
		for _, p := range rm.Paths {
			for _, l := range p.Links {
				set[l.ID] = struct{}{}
			}
		}
		linkSets[rm.Request.ID] = set
	}

	var pairs []ConflictPair
	for i := 0; i < len(requests); i++ {
		for j := i + 1; j < len(requests); j++ {
			a, bb := requests[i], requests[j]
			if b.scope == core.PairwiseConflicting && (a.ForcedReject || bb.ForcedReject) {
				continue
			}
			shares := false
			for id := range linkSets[a.Request.ID] {
				if _, ok := linkSets[bb.Request.ID][id]; ok {
					shares = true
					break
				}
			}
			if b.scope == core.PairwiseConflicting && !shares && len(b.kb.Zones()) == 0 {
				// No shared link and no zones: the pair can never
				// contend for the same spectrum.
				continue
			}
			pairs = append(pairs, ConflictPair{
				A:          a.Request.ID,
				B:          bb.Request.ID,
				SharesLink: shares,
			})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].A != pairs[j].A {
			return pairs[i].A < pairs[j].A
		}
		return pairs[i].B < pairs[j].B
	})
	return pairs
}

// rowBuilder tracks variable indices while emitting the explicit
// integer-program encoding.
type rowBuilder struct {
	sys    *System
	byName map[string]int
}

func (rb *rowBuilder) addVar(name string, kind VarKind, lo, hi float64) int {
	idx := len(rb.sys.Vars)
	rb.sys.Vars = append(rb.sys.Vars, Variable{Name: name, Kind: kind, Lo: lo, Hi: hi})
	rb.byName[name] = idx
	return idx
}

func (rb *rowBuilder) idx(name string) (int, error) {
	i, ok := rb.byName[name]
	if !ok {
		return 0, fmt.Errorf("%w: row references undeclared variable %q", core.ErrInfeasibleModel, name)
	}
	return i, nil
}

func (rb *rowBuilder) addRow(name string, terms []Term, sense Sense, rhs float64) {
	rb.sys.Rows = append(rb.sys.Rows, Row{Name: name, Terms: terms, Sense: sense, RHS: rhs})
}

// emitRows encodes the structured model as explicit variables and
// linear rows so a generic integer-program engine can consume the
// system without domain knowledge.
func (b *Builder) emitRows(sys *System) error {
	rb := &rowBuilder{sys: sys, byName: make(map[string]int)}

	M := sys.BigM
	M2 := float64(sys.SpectrumBigM)
	ceiling := float64(sys.SpectrumCeiling)
	guard := float64(sys.GuardBand)

	smax := rb.addVar("smax", VarInteger, 0, ceiling)

	for _, rm := range sys.Requests {
		r := rm.Request.ID

		acceptHi := 1.0
		if rm.ForcedReject {
			acceptHi = 0
		}
		accept := rb.addVar("accept_"+r, VarBinary, 0, acceptHi)

		maxSlots := 0
		for _, opt := range rm.Options {
			if opt.Slots > maxSlots {
				maxSlots = opt.Slots
			}
		}
		start := rb.addVar(fmt.Sprintf("start_%s", r), VarInteger, 0, ceiling)
		length := rb.addVar(fmt.Sprintf("len_%s", r), VarInteger, 0, float64(maxSlots))

		// Acceptance equals the number of selected paths.
		pathTerms := []Term{}
		for p := range rm.Paths {
			usepath := rb.addVar(fmt.Sprintf("usepath_%s_%d", r, p), VarBinary, 0, 1)
			pathTerms = append(pathTerms, Term{Var: usepath, Coef: 1})
		}
		pathTerms = append(pathTerms, Term{Var: accept, Coef: -1})
		rb.addRow("select_path_"+r, pathTerms, SenseEQ, 0)

		// Each selected path carries exactly one selected modulation,
		// and each selected (path, modulation) pair must be within
		// reach (big-M disjunction) and sets the block length.
		lenTerms := []Term{{Var: length, Coef: 1}}
		for p, path := range rm.Paths {
			usepath, err := rb.idx(fmt.Sprintf("usepath_%s_%d", r, p))
			if err != nil {
				return err
			}
			modTerms := []Term{}
			for _, opt := range rm.Options {
				if opt.PathIndex != p {
					continue
				}
				usemod := rb.addVar(fmt.Sprintf("usemod_%s_%d_%s", r, p, opt.Modulation), VarBinary, 0, 1)
				modTerms = append(modTerms, Term{Var: usemod, Coef: 1})

				mod := b.kb.GetModulation(opt.Modulation)
				// dist <= reach + M*(1 - usemod)
				rb.addRow(
					fmt.Sprintf("reach_%s_%d_%s", r, p, opt.Modulation),
					[]Term{{Var: usemod, Coef: M}},
					SenseLE,
					mod.Reach-path.Distance+M,
				)
				lenTerms = append(lenTerms, Term{Var: usemod, Coef: -float64(opt.Slots)})
			}
			modTerms = append(modTerms, Term{Var: usepath, Coef: -1})
			rb.addRow(fmt.Sprintf("select_mod_%s_%d", r, p), modTerms, SenseEQ, 0)
		}
		rb.addRow("block_len_"+r, lenTerms, SenseEQ, 0)

		// Exactly one side when accepted, none otherwise.
		left := rb.addVar("side_left_"+r, VarBinary, 0, 1)
		right := rb.addVar("side_right_"+r, VarBinary, 0, 1)
		rb.addRow("one_side_"+r, []Term{
			{Var: left, Coef: 1}, {Var: right, Coef: 1}, {Var: accept, Coef: -1},
		}, SenseEQ, 0)

		// Exactly one zone when accepted; the block must fit inside it.
		if len(sys.Zones) > 0 {
			zoneTerms := []Term{}
			for _, z := range sys.Zones {
				usezone := rb.addVar(fmt.Sprintf("usezone_%s_%s", r, z.ID), VarBinary, 0, 1)
				zoneTerms = append(zoneTerms, Term{Var: usezone, Coef: 1})
				// start + len <= cap + M2*(1 - usezone)
				rb.addRow(fmt.Sprintf("zone_fit_%s_%s", r, z.ID), []Term{
					{Var: start, Coef: 1}, {Var: length, Coef: 1}, {Var: usezone, Coef: M2},
				}, SenseLE, float64(z.Capacity)+M2)
			}
			zoneTerms = append(zoneTerms, Term{Var: accept, Coef: -1})
			rb.addRow("select_zone_"+r, zoneTerms, SenseEQ, 0)
		}

		// smax >= end when accepted: start + len <= smax + M2*(1 - accept)
		rb.addRow("smax_"+r, []Term{
			{Var: start, Coef: 1}, {Var: length, Coef: 1},
			{Var: smax, Coef: -1}, {Var: accept, Coef: M2},
		}, SenseLE, M2)
	}

	// Pairwise non-overlap: an ordering flag selects which of the two
	// guard-separated orderings holds; both relax unless both requests
	// are accepted, and for pairs without a shared link the rows bind
	// only when the pair lands in the same zone.
	for _, pair := range sys.Pairs {
		before := rb.addVar(fmt.Sprintf("before_%s_%s", pair.A, pair.B), VarBinary, 0, 1)
		if err := b.emitPairRows(rb, sys, pair, before, M2, guard); err != nil {
			return err
		}
	}

	// smax never exceeds the global ceiling (also enforced by its
	// variable bound; the explicit row keeps the encoding complete).
	rb.addRow("spectrum_ceiling", []Term{{Var: smax, Coef: 1}}, SenseLE, ceiling)

	return nil
}

func (b *Builder) emitPairRows(rb *rowBuilder, sys *System, pair ConflictPair, before int, M2, guard float64) error {
	startA, err := rb.idx("start_" + pair.A)
	if err != nil {
		return err
	}
	lenA, err := rb.idx("len_" + pair.A)
	if err != nil {
		return err
	}
	acceptA, err := rb.idx("accept_" + pair.A)
	if err != nil {
		return err
	}
	startB, err := rb.idx("start_" + pair.B)
	if err != nil {
		return err
	}
	lenB, err := rb.idx("len_" + pair.B)
	if err != nil {
		return err
	}
	acceptB, err := rb.idx("accept_" + pair.B)
	if err != nil {
		return err
	}

	zoneGated := sys.Scope == core.PairwiseConflicting && !pair.SharesLink && len(sys.Zones) > 0

	emit := func(suffix string, extra []Term, extraRHS float64) {
		// A before B:
		// startA + lenA + guard <= startB + M2*(1-before) + M2*(2-acceptA-acceptB) [+ zone relaxation]
		rb.addRow(fmt.Sprintf("order_%s_%s%s", pair.A, pair.B, suffix), append([]Term{
			{Var: startA, Coef: 1}, {Var: lenA, Coef: 1}, {Var: startB, Coef: -1},
			{Var: before, Coef: M2}, {Var: acceptA, Coef: M2}, {Var: acceptB, Coef: M2},
		}, extra...), SenseLE, 3*M2-guard+extraRHS)

		// B before A:
		// startB + lenB + guard <= startA + M2*before + M2*(2-acceptA-acceptB) [+ zone relaxation]
		rb.addRow(fmt.Sprintf("order_%s_%s%s", pair.B, pair.A, suffix), append([]Term{
			{Var: startB, Coef: 1}, {Var: lenB, Coef: 1}, {Var: startA, Coef: -1},
			{Var: before, Coef: -M2}, {Var: acceptA, Coef: M2}, {Var: acceptB, Coef: M2},
		}, extra...), SenseLE, 2*M2-guard+extraRHS)
	}

	if !zoneGated {
		emit("", nil, 0)
		return nil
	}

	// Zone-gated pairs get one disjunction per zone, binding only when
	// both requests select that zone.
	for _, z := range sys.Zones {
		uzA, err := rb.idx(fmt.Sprintf("usezone_%s_%s", pair.A, z.ID))
		if err != nil {
			return err
		}
		uzB, err := rb.idx(fmt.Sprintf("usezone_%s_%s", pair.B, z.ID))
		if err != nil {
			return err
		}
		emit("_"+z.ID, []Term{{Var: uzA, Coef: M2}, {Var: uzB, Coef: M2}}, 2*M2)
	}
	return nil
}
