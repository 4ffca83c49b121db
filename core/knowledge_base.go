package core

import (
	"fmt"
	"sort"
	"sync"
)

// KnowledgeBase stores the static planning input: nodes, links, traffic
// requests, modulations, and spectrum zones. Entities are loaded once
// and treated as immutable afterwards.
//
// NOTE: The KB is concurrency-safe via an internal RWMutex so the path
// generator workers and the validator can read it concurrently, as long
// as all access goes through these methods.
type KnowledgeBase struct {
	mu sync.RWMutex

	nodes       map[string]*Node
	links       map[string]*Link
	linksByNode map[string][]*Link
	requests    map[string]*TrafficRequest
	modulations map[string]*Modulation
	zones       map[string]*Zone
}

// NewKnowledgeBase creates an empty planning knowledge base.
func NewKnowledgeBase() *KnowledgeBase {
	return &KnowledgeBase{
		nodes:       make(map[string]*Node),
		links:       make(map[string]*Link),
		linksByNode: make(map[string][]*Link),
		requests:    make(map[string]*TrafficRequest),
		modulations: make(map[string]*Modulation),
		zones:       make(map[string]*Zone),
	}
}

//
// ---------- Nodes ----------
//

func (kb *KnowledgeBase) AddNode(n *Node) error {
	if n == nil || n.ID == "" {
		return fmt.Errorf("%w: nil or empty node", ErrBadInput)
	}

	kb.mu.Lock()
	defer kb.mu.Unlock()

	if _, exists := kb.nodes[n.ID]; exists {
		return fmt.Errorf("%w: %q", ErrNodeExists, n.ID)
	}
	kb.nodes[n.ID] = n
	return nil
}

// GetNode returns a node by ID, or nil if not found.
func (kb *KnowledgeBase) GetNode(id string) *Node {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return kb.nodes[id]
}

// Nodes returns all nodes sorted by ID.
func (kb *KnowledgeBase) Nodes() []*Node {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	out := make([]*Node, 0, len(kb.nodes))
	for _, n := range kb.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

//
// ---------- Links ----------
//

func (kb *KnowledgeBase) AddLink(l *Link) error {
	if l == nil || l.ID == "" {
		return fmt.Errorf("%w: nil or empty link", ErrBadInput)
	}
	if l.Distance <= 0 {
		return fmt.Errorf("%w: link %q distance must be positive, got %v", ErrBadInput, l.ID, l.Distance)
	}
	if l.A == l.B {
		return fmt.Errorf("%w: link %q joins node %q to itself", ErrBadInput, l.ID, l.A)
	}

	kb.mu.Lock()
	defer kb.mu.Unlock()

	if _, exists := kb.links[l.ID]; exists {
		return fmt.Errorf("%w: %q", ErrLinkExists, l.ID)
	}
	if _, ok := kb.nodes[l.A]; !ok {
		return fmt.Errorf("%w: link %q endpoint %q", ErrUnknownNode, l.ID, l.A)
	}
	if _, ok := kb.nodes[l.B]; !ok {
		return fmt.Errorf("%w: link %q endpoint %q", ErrUnknownNode, l.ID, l.B)
	}
	kb.links[l.ID] = l
	kb.linksByNode[l.A] = append(kb.linksByNode[l.A], l)
	kb.linksByNode[l.B] = append(kb.linksByNode[l.B], l)
	return nil
}

// GetLink returns a link by ID, or nil if not found.
func (kb *KnowledgeBase) GetLink(id string) *Link {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return kb.links[id]
}

// Links returns all links sorted by ID.
func (kb *KnowledgeBase) Links() []*Link {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	out := make([]*Link, 0, len(kb.links))
	for _, l := range kb.links {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// LinksAt returns the links incident to nodeID, sorted by ID so that
// graph traversal over the KB is deterministic.
func (kb *KnowledgeBase) LinksAt(nodeID string) []*Link {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	out := append([]*Link(nil), kb.linksByNode[nodeID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// TotalDistance returns the sum of all link distances. The model
// builder uses it to size the big-M constant for reach disjunctions,
// since no simple path can be longer than every link combined.
func (kb *KnowledgeBase) TotalDistance() float64 {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	var total float64
	for _, l := range kb.links {
		total += l.Distance
	}
	return total
}

//
// ---------- Traffic requests ----------
//

func (kb *KnowledgeBase) AddTrafficRequest(r *TrafficRequest) error {
	if r == nil || r.ID == "" {
		return fmt.Errorf("%w: nil or empty traffic request", ErrBadInput)
	}
	if r.Volume <= 0 {
		return fmt.Errorf("%w: request %q volume must be positive, got %v", ErrBadInput, r.ID, r.Volume)
	}
	if r.Source == r.Destination {
		return fmt.Errorf("%w: request %q source equals destination %q", ErrBadInput, r.ID, r.Source)
	}

	kb.mu.Lock()
	defer kb.mu.Unlock()

	if _, exists := kb.requests[r.ID]; exists {
		return fmt.Errorf("%w: %q", ErrRequestExists, r.ID)
	}
	if _, ok := kb.nodes[r.Source]; !ok {
		return fmt.Errorf("%w: request %q source %q", ErrUnknownNode, r.ID, r.Source)
	}
	if _, ok := kb.nodes[r.Destination]; !ok {
		return fmt.Errorf("%w: request %q destination %q", ErrUnknownNode, r.ID, r.Destination)
	}
	kb.requests[r.ID] = r
	return nil
}

// GetTrafficRequest returns a request by ID, or nil if not found.
func (kb *KnowledgeBase) GetTrafficRequest(id string) *TrafficRequest {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return kb.requests[id]
}

// TrafficRequests returns all requests sorted by ID.
func (kb *KnowledgeBase) TrafficRequests() []*TrafficRequest {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	out := make([]*TrafficRequest, 0, len(kb.requests))
	for _, r := range kb.requests {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

//
// ---------- Modulations ----------
//

func (kb *KnowledgeBase) AddModulation(m *Modulation) error {
	if m == nil || m.ID == "" {
		return fmt.Errorf("%w: nil or empty modulation", ErrBadInput)
	}
	if m.Reach <= 0 {
		return fmt.Errorf("%w: modulation %q reach must be positive, got %v", ErrBadInput, m.ID, m.Reach)
	}
	if m.Efficiency <= 0 {
		return fmt.Errorf("%w: modulation %q efficiency must be positive, got %v", ErrBadInput, m.ID, m.Efficiency)
	}

	kb.mu.Lock()
	defer kb.mu.Unlock()

	if _, exists := kb.modulations[m.ID]; exists {
		return fmt.Errorf("%w: %q", ErrModulationExists, m.ID)
	}
	kb.modulations[m.ID] = m
	return nil
}

// GetModulation returns a modulation by ID, or nil if not found.
func (kb *KnowledgeBase) GetModulation(id string) *Modulation {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return kb.modulations[id]
}

// Modulations returns all modulations sorted by ID.
func (kb *KnowledgeBase) Modulations() []*Modulation {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	out := make([]*Modulation, 0, len(kb.modulations))
	for _, m := range kb.modulations {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

//
// ---------- Zones ----------
//

func (kb *KnowledgeBase) AddZone(z *Zone) error {
	if z == nil || z.ID == "" {
		return fmt.Errorf("%w: nil or empty zone", ErrBadInput)
	}
	if z.Capacity <= 0 {
		return fmt.Errorf("%w: zone %q capacity must be positive, got %d", ErrBadInput, z.ID, z.Capacity)
	}

	kb.mu.Lock()
	defer kb.mu.Unlock()

	if _, exists := kb.zones[z.ID]; exists {
		return fmt.Errorf("%w: %q", ErrZoneExists, z.ID)
	}
	kb.zones[z.ID] = z
	return nil
}

// GetZone returns a zone by ID, or nil if not found.
func (kb *KnowledgeBase) GetZone(id string) *Zone {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return kb.zones[id]
}

// Zones returns all zones sorted by ID.
func (kb *KnowledgeBase) Zones() []*Zone {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	out := make([]*Zone, 0, len(kb.zones))
	for _, z := range kb.zones {
		out = append(out, z)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Validate re-checks referential consistency across the loaded
// entities. Add* methods already reject dangling references at insert
// time; this is the pre-build gate the pipeline runs once after loading.
func (kb *KnowledgeBase) Validate() error {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	if len(kb.nodes) == 0 {
		return fmt.Errorf("%w: topology has no nodes", ErrInputValidation)
	}
	if len(kb.modulations) == 0 {
		return fmt.Errorf("%w: no modulations defined", ErrInputValidation)
	}
	for _, l := range kb.links {
		if _, ok := kb.nodes[l.A]; !ok {
			return fmt.Errorf("%w: link %q references unknown node %q", ErrInputValidation, l.ID, l.A)
		}
		if _, ok := kb.nodes[l.B]; !ok {
			return fmt.Errorf("%w: link %q references unknown node %q", ErrInputValidation, l.ID, l.B)
		}
	}
	for _, r := range kb.requests {
		if _, ok := kb.nodes[r.Source]; !ok {
			return fmt.Errorf("%w: request %q references unknown node %q", ErrInputValidation, r.ID, r.Source)
		}
		if _, ok := kb.nodes[r.Destination]; !ok {
			return fmt.Errorf("%w: request %q references unknown node %q", ErrInputValidation, r.ID, r.Destination)
		}
	}
	return nil
}
