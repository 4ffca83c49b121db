package solver

import (
	"context"
	"sort"
	"time"

	"github.com/signalsfoundry/rsa-planner/core"
	"github.com/signalsfoundry/rsa-planner/internal/logging"
	"github.com/signalsfoundry/rsa-planner/internal/model"
)

// BranchBound is the reference engine: a depth-first branch-and-bound
// over acceptance, option, zone, and pairwise ordering choices. For a
// fixed set of choices the minimal left-compacted arrangement is
// computed exactly, so the search is exhaustive; on budget exhaustion
// it returns the best incumbent found so far, flagged unproven.
type BranchBound struct {
	log logging.Logger
}

// NewBranchBound creates the reference engine.
func NewBranchBound(log logging.Logger) *BranchBound {
	if log == nil {
		log = logging.Noop()
	}
	return &BranchBound{log: log}
}

// placement is one accepted request's in-progress slot reservation.
// above and below index earlier placements this block is ordered
// against; start is recomputed by tighten as orderings accumulate.
type placement struct {
	request string
	slots   int
	zone    string
	zoneCap int
	option  model.Option

	above []int
	below []int
	start int
}

// orderCap bounds the per-request ordering fan-out. A request
// contending with more placed blocks than this would branch beyond any
// practical budget, so the search gives up proving instead.
const orderCap = 62

type searchCtx struct {
	sys      *model.System
	deadline time.Time
	nodeCap  int64
	done     <-chan struct{}

	sharesLink map[[2]string]bool

	nodes     int64
	truncated bool

	best      []placement
	bestCount int
	bestSMax  int
}

// Solve implements Engine.
func (e *BranchBound) Solve(ctx context.Context, sys *model.System, budget Budget) (*Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	started := time.Now()

	sc := &searchCtx{
		sys:        sys,
		nodeCap:    budget.Nodes,
		done:       ctx.Done(),
		sharesLink: make(map[[2]string]bool, len(sys.Pairs)),
	}
	if budget.Time > 0 {
		sc.deadline = started.Add(budget.Time)
	}
	if d, ok := ctx.Deadline(); ok && (sc.deadline.IsZero() || d.Before(sc.deadline)) {
		sc.deadline = d
	}
	for _, p := range sys.Pairs {
		sc.sharesLink[[2]string{p.A, p.B}] = p.SharesLink
	}

	// The zero-valued incumbent is the all-reject assignment, which is
	// always feasible, so a cancelled solve still returns something valid.
	sc.branch(0, nil)

	result := &Result{
		Assignment: e.materialize(sys, sc.best),
		Objective:  sc.bestCount,
		Proven:     !sc.truncated,
		Nodes:      sc.nodes,
		Elapsed:    time.Since(started),
	}
	e.log.Debug(ctx, "solve finished",
		logging.Int("objective", result.Objective),
		logging.Any("proven", result.Proven),
		logging.Any("nodes", result.Nodes),
		logging.Float("elapsed_seconds", result.Elapsed.Seconds()),
	)
	return result, nil
}

// exhausted reports whether the search budget is spent.
func (sc *searchCtx) exhausted() bool {
	if sc.truncated {
		return true
	}
	if sc.nodeCap > 0 && sc.nodes >= sc.nodeCap {
		sc.truncated = true
		return true
	}
	// Deadline and cancellation checks are amortized over node counts
	// to keep the hot path cheap. The first node always checks so a
	// solve that starts past its deadline stops immediately.
	if sc.nodes%256 == 1 {
		if !sc.deadline.IsZero() && time.Now().After(sc.deadline) {
			sc.truncated = true
			return true
		}
		select {
		case <-sc.done:
			sc.truncated = true
			return true
		default:
		}
	}
	return false
}

// branch explores request idx onward given the placements so far.
func (sc *searchCtx) branch(idx int, placed []placement) {
	sc.nodes++
	if sc.exhausted() {
		return
	}

	if idx == len(sc.sys.Requests) {
		sc.record(placed)
		return
	}

	// Bound: even accepting every remaining request cannot beat the
	// incumbent.
	remaining := 0
	for _, rm := range sc.sys.Requests[idx:] {
		if !rm.ForcedReject {
			remaining++
		}
	}
	// Equal objective is kept: it can still improve the S_max tie-break.
	if len(placed)+remaining < sc.bestCount {
		return
	}

	rm := sc.sys.Requests[idx]
	if !rm.ForcedReject {
		// Accept branches first: options ordered by slot count so the
		// cheapest use of spectrum is explored first.
		for _, opt := range orderedOptions(rm.Options) {
			for _, zone := range sc.zoneChoices() {
				sc.placeAndBranch(idx, rm.Request.ID, opt, zone, placed)
				if sc.truncated {
					return
				}
			}
		}
	}

	// Reject branch.
	sc.branch(idx+1, placed)
}

// placeAndBranch accepts request idx with the given option and zone,
// branching over the ordering direction against every contending placed
// block. Each direction vector yields at most one canonical arrangement
// (the relaxation fixpoint), so enumerating all vectors covers every
// arrangement the pairwise separation rule admits.
func (sc *searchCtx) placeAndBranch(idx int, request string, opt model.Option, zone zoneChoice, placed []placement) {
	if opt.Slots > zone.cap {
		return
	}

	var contending []int
	for i, p := range placed {
		if sc.conflicting(request, p.request, zone.id, p.zone) {
			contending = append(contending, i)
		}
	}
	if len(contending) > orderCap {
		sc.truncated = true
		return
	}

	// All-above first: stacking on top of every contending block keeps
	// earlier placements at their current starts, so the first leaves
	// resemble a plain first-fit and seed the incumbent early.
	for mask := 1<<len(contending) - 1; mask >= 0; mask-- {
		sc.nodes++
		if sc.exhausted() {
			return
		}

		next := make([]placement, len(placed)+1)
		copy(next, placed)
		np := placement{
			request: request,
			slots:   opt.Slots,
			zone:    zone.id,
			zoneCap: zone.cap,
			option:  opt,
		}
		for b, i := range contending {
			if mask&(1<<b) != 0 {
				np.above = append(np.above, i)
			} else {
				np.below = append(np.below, i)
			}
		}
		next[len(placed)] = np

		if !tighten(next, sc.sys.GuardBand) {
			continue
		}
		sc.branch(idx+1, next)
		if sc.truncated {
			return
		}
	}
}

// tighten recomputes the minimal start of every placement under the
// recorded pairwise orderings and reports whether the arrangement fits
// its zone capacities. Relaxation over an acyclic ordering settles
// within len(placed) sweeps; a sweep overrun means the orderings form a
// cycle, which no arrangement satisfies.
func tighten(placed []placement, guard int) bool {
	for i := range placed {
		placed[i].start = 0
	}
	for sweep := 0; sweep <= len(placed); sweep++ {
		changed := false
		for i := range placed {
			p := &placed[i]
			for _, j := range p.above {
				if lo := placed[j].start + placed[j].slots + guard; p.start < lo {
					p.start = lo
					changed = true
				}
			}
			for _, j := range p.below {
				q := &placed[j]
				if lo := p.start + p.slots + guard; q.start < lo {
					q.start = lo
					changed = true
				}
			}
		}
		if !changed {
			for i := range placed {
				if placed[i].start+placed[i].slots > placed[i].zoneCap {
					return false
				}
			}
			return true
		}
	}
	return false
}

type zoneChoice struct {
	id  string
	cap int
}

// zoneChoices returns the zones a block may be placed into, or the
// whole spectrum as a single implicit zone when none are configured.
func (sc *searchCtx) zoneChoices() []zoneChoice {
	if len(sc.sys.Zones) == 0 {
		return []zoneChoice{{id: "", cap: sc.sys.SpectrumCeiling}}
	}
	out := make([]zoneChoice, 0, len(sc.sys.Zones))
	for _, z := range sc.sys.Zones {
		c := z.Capacity
		if c > sc.sys.SpectrumCeiling {
			c = sc.sys.SpectrumCeiling
		}
		out = append(out, zoneChoice{id: z.ID, cap: c})
	}
	return out
}

// conflicting reports whether request a (placed in zone za) contends
// with request b (in zone zb) for spectrum.
func (sc *searchCtx) conflicting(a, b, za, zb string) bool {
	if sc.sys.Scope == core.PairwiseAll {
		return true
	}
	key := [2]string{a, b}
	if a > b {
		key = [2]string{b, a}
	}
	shares, ok := sc.sharesLink[key]
	if !ok {
		return false
	}
	if shares {
		return true
	}
	return za == zb
}

// record updates the incumbent when the completed leaf beats it on
// accepted count, with lower S_max as the tie-break.
func (sc *searchCtx) record(placed []placement) {
	smax := 0
	for _, p := range placed {
		if end := p.start + p.slots; end > smax {
			smax = end
		}
	}
	if len(placed) > sc.bestCount || (len(placed) == sc.bestCount && smax < sc.bestSMax) {
		sc.best = append([]placement(nil), placed...)
		sc.bestCount = len(placed)
		sc.bestSMax = smax
	}
}

// orderedOptions returns options sorted by slot count, then path index,
// then modulation ID, so branching is deterministic.
func orderedOptions(opts []model.Option) []model.Option {
	out := append([]model.Option(nil), opts...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Slots != out[j].Slots {
			return out[i].Slots < out[j].Slots
		}
		if out[i].PathIndex != out[j].PathIndex {
			return out[i].PathIndex < out[j].PathIndex
		}
		return out[i].Modulation < out[j].Modulation
	})
	return out
}

// materialize turns the winning placements into a full Assignment over
// every request, with reject reasons for the rest.
func (e *BranchBound) materialize(sys *model.System, placed []placement) *core.Assignment {
	byRequest := make(map[string]placement, len(placed))
	for _, p := range placed {
		byRequest[p.request] = p
	}

	asg := &core.Assignment{}
	for _, rm := range sys.Requests {
		id := rm.Request.ID
		if p, ok := byRequest[id]; ok {
			block := core.SpectrumBlock{Start: p.start, End: p.start + p.slots}
			asg.Requests = append(asg.Requests, &core.RequestAssignment{
				Request:    id,
				Accepted:   true,
				PathIndex:  p.option.PathIndex,
				Modulation: p.option.Modulation,
				Block:      block,
				Side:       core.SideLeft,
				Zone:       p.zone,
			})
			if block.End > asg.SMax {
				asg.SMax = block.End
			}
			continue
		}
		reason := rm.RejectReason
		if !rm.ForcedReject {
			reason = core.ReasonSpectrumExhausted
		}
		asg.Requests = append(asg.Requests, &core.RequestAssignment{
			Request: id,
			Reason:  reason,
		})
	}
	return asg
}
