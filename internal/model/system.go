// Package model assembles the RSA constraint system: for each request,
// which candidate path and modulation may serve it and at what slot
// cost, plus the pairwise non-overlap structure that any assignment
// must respect. The assembled System is immutable and is consumed by a
// solver engine and, independently, re-checked by the validator.
package model

import "github.com/signalsfoundry/rsa-planner/core"

// Option is one feasible (candidate path, modulation) pairing for a
// request, carrying the slot count the pairing requires.
type Option struct {
	PathIndex  int
	Modulation string
	Distance   float64
	Slots      int
}

// RequestModel bundles a request with its candidate paths and feasible
// options. A request with no options is force-rejected: its acceptance
// variable is fixed to zero rather than failing the build.
type RequestModel struct {
	Request *core.TrafficRequest
	Paths   []core.CandidatePath
	Options []Option

	ForcedReject bool
	RejectReason core.RejectReason
}

// ConflictPair names an unordered pair of requests subject to the
// non-overlap disjunction. A always sorts before B.
type ConflictPair struct {
	A string
	B string
	// SharesLink is true when some candidate path of A and some
	// candidate path of B use a common link. Pairs that do not share a
	// link still conflict when placed into the same zone.
	SharesLink bool
}

// System is the assembled constraint system. Once built it is treated
// as read-only and may be consumed concurrently.
type System struct {
	Requests []*RequestModel
	Pairs    []ConflictPair
	Zones    []*core.Zone

	GuardBand       int
	SpectrumCeiling int
	Scope           core.PairwiseScope

	// BigM relaxes the reach disjunctions; it exceeds the largest
	// possible path distance. SpectrumBigM relaxes ordering and ceiling
	// disjunctions; it exceeds any achievable slot index.
	BigM         float64
	SpectrumBigM int

	// Vars and Rows are the explicit integer-program encoding of the
	// system for engines that consume it opaquely. The structured
	// fields above carry the same information for domain-aware engines.
	Vars []Variable
	Rows []Row
}

// ByRequest returns the request model for id, or nil.
func (s *System) ByRequest(id string) *RequestModel {
	for _, rm := range s.Requests {
		if rm.Request.ID == id {
			return rm
		}
	}
	return nil
}

// Conflicting reports whether the pair (a, b) is subject to the
// non-overlap disjunction given the chosen zones. Under the blanket
// scope every pair conflicts; under the conflicting scope a pair
// conflicts when its candidate paths can share a link or when both
// requests sit in the same zone.
func (s *System) Conflicting(a, b, zoneA, zoneB string) bool {
	if s.Scope == core.PairwiseAll {
		return true
	}
	for _, p := range s.Pairs {
		if (p.A == a && p.B == b) || (p.A == b && p.B == a) {
			if p.SharesLink {
				return true
			}
			return zoneA != "" && zoneA == zoneB
		}
	}
	return false
}

// VarKind distinguishes binary selection flags from integer slot
// variables in the explicit encoding.
type VarKind int

const (
	VarBinary VarKind = iota
	VarInteger
)

// Variable is a named decision variable with inclusive bounds.
type Variable struct {
	Name string
	Kind VarKind
	Lo   float64
	Hi   float64
}

// Sense is the comparison direction of a linear row.
type Sense int

const (
	SenseLE Sense = iota
	SenseGE
	SenseEQ
)

// Term is one coefficient of a linear row, referencing a variable by
// its index in System.Vars.
type Term struct {
	Var  int
	Coef float64
}

// Row is one linear constraint: sum(Terms) Sense RHS.
type Row struct {
	Name  string
	Terms []Term
	Sense Sense
	RHS   float64
}
