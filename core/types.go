package core

import (
	"fmt"
	"math"
	"strings"
)

// Node is a switching site in the optical topology. It carries no
// attributes beyond its identity.
type Node struct {
	ID string
}

// Link is an undirected fiber span between two nodes with a positive
// distance in kilometres. Links are owned by the KnowledgeBase and are
// immutable once added.
type Link struct {
	ID       string
	A        string
	B        string
	Distance float64
}

// Other returns the endpoint of the link opposite to nodeID, or "" when
// nodeID is not an endpoint.
func (l *Link) Other(nodeID string) string {
	switch nodeID {
	case l.A:
		return l.B
	case l.B:
		return l.A
	default:
		return ""
	}
}

// Connects reports whether the link joins nodes a and b in either direction.
func (l *Link) Connects(a, b string) bool {
	return (l.A == a && l.B == b) || (l.A == b && l.B == a)
}

// TrafficRequest is a point-to-point demand with a positive volume.
// Requests are loaded once and never mutate.
type TrafficRequest struct {
	ID          string
	Source      string
	Destination string
	Volume      float64
}

// Modulation is a transmission format with a maximum usable reach in
// kilometres and a spectral efficiency factor relative to the slot
// capacity constant.
type Modulation struct {
	ID         string
	Reach      float64
	Efficiency float64
}

// Zone is a contiguous region of the spectrum with its own slot capacity.
type Zone struct {
	ID       string
	Capacity int
}

// Side marks zone-relative placement of a spectrum block.
type Side string

const (
	SideLeft  Side = "left"
	SideRight Side = "right"
)

// CandidatePath is one of up to K precomputed routes for a single
// request: an ordered node sequence with the links that join them.
// Distance is the sum of the constituent link distances.
type CandidatePath struct {
	Request  string
	Nodes    []string
	Links    []*Link
	Distance float64
}

// Key returns a canonical identity for the path, usable for
// deduplication and for deterministic ordering at equal distance.
func (p CandidatePath) Key() string {
	return strings.Join(p.Nodes, "-")
}

// Loopless reports whether the path visits every node at most once.
func (p CandidatePath) Loopless() bool {
	seen := make(map[string]struct{}, len(p.Nodes))
	for _, n := range p.Nodes {
		if _, dup := seen[n]; dup {
			return false
		}
		seen[n] = struct{}{}
	}
	return true
}

// SpectrumBlock is a contiguous half-open slot range [Start, End).
type SpectrumBlock struct {
	Start int
	End   int
}

// Len returns the number of slots covered by the block.
func (b SpectrumBlock) Len() int { return b.End - b.Start }

// SeparatedFrom reports whether the two blocks are separated by at
// least guard slots in one direction or the other.
func (b SpectrumBlock) SeparatedFrom(other SpectrumBlock, guard int) bool {
	return b.End+guard <= other.Start || other.End+guard <= b.Start
}

// RejectReason explains why a request was not accepted.
type RejectReason string

const (
	ReasonNone                 RejectReason = ""
	ReasonNoFeasiblePath       RejectReason = "no_feasible_path"
	ReasonNoFeasibleModulation RejectReason = "no_feasible_modulation"
	ReasonSpectrumExhausted    RejectReason = "spectrum_exhausted"
)

// RequestAssignment is the per-request slice of a solution. For an
// accepted request PathIndex selects one of the request's candidate
// paths, Modulation one format, Block the slot range, and Side/Zone the
// zone-relative placement. For a rejected request only Reason is set.
type RequestAssignment struct {
	Request    string
	Accepted   bool
	PathIndex  int
	Modulation string
	Block      SpectrumBlock
	Side       Side
	Zone       string
	Reason     RejectReason
}

// Assignment is a full solution over all requests. Requests are kept
// sorted by request ID so iteration is deterministic.
type Assignment struct {
	Requests []*RequestAssignment
	SMax     int
}

// ByRequest returns the per-request assignment for id, or nil.
func (a *Assignment) ByRequest(id string) *RequestAssignment {
	for _, ra := range a.Requests {
		if ra.Request == id {
			return ra
		}
	}
	return nil
}

// AcceptedCount returns the number of accepted requests, which is the
// planning objective.
func (a *Assignment) AcceptedCount() int {
	n := 0
	for _, ra := range a.Requests {
		if ra.Accepted {
			n++
		}
	}
	return n
}

// RequiredSlots derives the slot count a request needs under a
// modulation: ceil(volume / (slotCapacity * efficiency)), never less
// than one. The rounding is always upward so a demand is never
// under-provisioned.
func RequiredSlots(volume, slotCapacity, efficiency float64) (int, error) {
	if volume <= 0 {
		return 0, fmt.Errorf("request volume must be positive, got %v", volume)
	}
	if slotCapacity <= 0 {
		return 0, fmt.Errorf("slot capacity must be positive, got %v", slotCapacity)
	}
	if efficiency <= 0 {
		return 0, fmt.Errorf("modulation efficiency must be positive, got %v", efficiency)
	}
	slots := int(math.Ceil(volume / (slotCapacity * efficiency)))
	if slots < 1 {
		slots = 1
	}
	return slots, nil
}
