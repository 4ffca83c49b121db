// Package pathgen enumerates candidate paths for traffic requests using
// Yen's K-shortest-loopless-paths algorithm over the planning topology.
//
// The generator is deterministic: paths come back ranked ascending by
// total distance, with ties broken lexicographically over the node
// sequence, so repeated runs over the same scenario produce identical
// candidate lists.
package pathgen

import (
	"container/heap"
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/signalsfoundry/rsa-planner/core"
	"github.com/signalsfoundry/rsa-planner/internal/logging"
)

// ErrUnknownEndpoint is returned when a source or destination node is
// absent from the topology.
var ErrUnknownEndpoint = fmt.Errorf("%w: unknown path endpoint", core.ErrInputValidation)

// Generator enumerates up to K candidate paths per traffic request.
type Generator struct {
	kb      *core.KnowledgeBase
	k       int
	workers int
	log     logging.Logger
}

// New creates a Generator. workers bounds the per-request fan-out; a
// value below one serializes generation.
func New(kb *core.KnowledgeBase, k, workers int, log logging.Logger) *Generator {
	if log == nil {
		log = logging.Noop()
	}
	if workers < 1 {
		workers = 1
	}
	return &Generator{kb: kb, k: k, workers: workers, log: log}
}

// Generate enumerates candidate paths for every traffic request in the
// knowledge base. Requests are independent, so they are fanned out
// across workers; each worker writes only its own request's slot.
// A request with no path at all gets an empty candidate list, which the
// model builder later turns into a forced rejection. Generation aborts
// only on context cancellation.
func (g *Generator) Generate(ctx context.Context) (map[string][]core.CandidatePath, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	requests := g.kb.TrafficRequests()
	results := make([][]core.CandidatePath, len(requests))

	sem := make(chan struct{}, g.workers)
	var wg sync.WaitGroup
	for i, req := range requests {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case sem <- struct{}{}:
		}
		wg.Add(1)
		go func(idx int, req *core.TrafficRequest) {
			defer wg.Done()
			defer func() { <-sem }()
			paths, err := g.PathsBetween(ctx, req.Source, req.Destination)
			if err != nil {
				// Endpoints were validated at load time, so this only
				// fires on cancellation mid-search; the outer ctx check
				// surfaces it.
				g.log.Warn(ctx, "candidate path generation failed",
					logging.String("request_id", req.ID),
					logging.String("error", err.Error()),
				)
				return
			}
			for p := range paths {
				paths[p].Request = req.ID
			}
			results[idx] = paths
		}(i, req)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make(map[string][]core.CandidatePath, len(requests))
	for i, req := range requests {
		out[req.ID] = results[i]
		if len(results[i]) == 0 {
			g.log.Info(ctx, "request has no candidate path",
				logging.String("request_id", req.ID),
			)
		}
	}
	return out, nil
}

// PathsBetween returns up to K distinct loopless paths from src to dst,
// ranked ascending by distance. Fewer than K paths is not an error; an
// unreachable destination yields an empty slice.
func (g *Generator) PathsBetween(ctx context.Context, src, dst string) ([]core.CandidatePath, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if g.kb.GetNode(src) == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEndpoint, src)
	}
	if g.kb.GetNode(dst) == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEndpoint, dst)
	}
	if g.k == 0 {
		return nil, nil
	}

	first, ok := g.shortestPath(src, dst, nil, nil)
	if !ok {
		return nil, nil
	}

	accepted := []core.CandidatePath{first}
	acceptedKeys := map[string]struct{}{first.Key(): {}}

	// Deviation-path candidates, deduplicated by node sequence.
	var candidates []core.CandidatePath
	candidateKeys := map[string]struct{}{}

	for len(accepted) < g.k {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		prev := accepted[len(accepted)-1]
		// The spur node ranges over every node of the previous path
		// except the destination.
		for i := 0; i < len(prev.Nodes)-1; i++ {
			spur := prev.Nodes[i]
			rootNodes := prev.Nodes[:i+1]

			// Remove links used by already-accepted paths that share
			// this root, so each spur search finds a genuine deviation.
			removedLinks := map[string]bool{}
			for _, p := range accepted {
				if len(p.Nodes) > i+1 && sameNodes(p.Nodes[:i+1], rootNodes) {
					removedLinks[p.Links[i].ID] = true
				}
			}
			// Remove root nodes except the spur node to keep the total
			// path loopless.
			removedNodes := map[string]bool{}
			for _, n := range rootNodes[:len(rootNodes)-1] {
				removedNodes[n] = true
			}

			spurPath, ok := g.shortestPath(spur, dst, removedNodes, removedLinks)
			if !ok {
				continue
			}

			total := joinPaths(prev, i, spurPath)
			key := total.Key()
			if _, seen := acceptedKeys[key]; seen {
				continue
			}
			if _, seen := candidateKeys[key]; seen {
				continue
			}
			candidateKeys[key] = struct{}{}
			candidates = append(candidates, total)
		}

		if len(candidates) == 0 {
			break
		}

		sort.Slice(candidates, func(i, j int) bool {
			if candidates[i].Distance != candidates[j].Distance {
				return candidates[i].Distance < candidates[j].Distance
			}
			return candidates[i].Key() < candidates[j].Key()
		})
		next := candidates[0]
		candidates = candidates[1:]
		delete(candidateKeys, next.Key())
		acceptedKeys[next.Key()] = struct{}{}
		accepted = append(accepted, next)
	}

	return accepted, nil
}

// joinPaths glues prev's root (nodes up to spur index i, links up to i)
// onto the spur path found from the spur node to the destination.
func joinPaths(prev core.CandidatePath, i int, spur core.CandidatePath) core.CandidatePath {
	nodes := make([]string, 0, i+len(spur.Nodes))
	nodes = append(nodes, prev.Nodes[:i]...)
	nodes = append(nodes, spur.Nodes...)

	links := make([]*core.Link, 0, i+len(spur.Links))
	links = append(links, prev.Links[:i]...)
	links = append(links, spur.Links...)

	var dist float64
	for _, l := range links {
		dist += l.Distance
	}
	return core.CandidatePath{Nodes: nodes, Links: links, Distance: dist}
}

func sameNodes(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// searchItem is a partial path in the uniform-cost search frontier.
type searchItem struct {
	nodes []string
	links []*core.Link
	dist  float64
	key   string
}

type searchQueue []*searchItem

func (q searchQueue) Len() int { return len(q) }
func (q searchQueue) Less(i, j int) bool {
	if q[i].dist != q[j].dist {
		return q[i].dist < q[j].dist
	}
	return q[i].key < q[j].key
}
func (q searchQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *searchQueue) Push(x any)   { *q = append(*q, x.(*searchItem)) }
func (q *searchQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}

// shortestPath runs a uniform-cost search from src to dst, skipping
// removed nodes and links. Popping by (distance, node-sequence key)
// makes the tie-break between equal-length paths lexicographic and the
// result reproducible across runs.
func (g *Generator) shortestPath(src, dst string, removedNodes, removedLinks map[string]bool) (core.CandidatePath, bool) {
	if removedNodes[src] || removedNodes[dst] {
		return core.CandidatePath{}, false
	}

	start := &searchItem{nodes: []string{src}, key: src}
	frontier := &searchQueue{start}
	heap.Init(frontier)
	settled := map[string]bool{}

	for frontier.Len() > 0 {
		item := heap.Pop(frontier).(*searchItem)
		last := item.nodes[len(item.nodes)-1]
		if settled[last] {
			continue
		}
		settled[last] = true

		if last == dst {
			return core.CandidatePath{
				Nodes:    item.nodes,
				Links:    item.links,
				Distance: item.dist,
			}, true
		}

		for _, link := range g.kb.LinksAt(last) {
			if removedLinks[link.ID] {
				continue
			}
			next := link.Other(last)
			if next == "" || settled[next] || removedNodes[next] {
				continue
			}
			nodes := make([]string, 0, len(item.nodes)+1)
			nodes = append(nodes, item.nodes...)
			nodes = append(nodes, next)
			links := make([]*core.Link, 0, len(item.links)+1)
			links = append(links, item.links...)
			links = append(links, link)
			heap.Push(frontier, &searchItem{
				nodes: nodes,
				links: links,
				dist:  item.dist + link.Distance,
				key:   item.key + "-" + next,
			})
		}
	}
	return core.CandidatePath{}, false
}
