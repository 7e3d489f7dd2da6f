package routing

import (
	"bytes"
	"sort"
	"sync"

	"github.com/nettingnetwork/nnd/nwire"
)

// DefaultMaxPaths is the number of candidate paths a shortest-path query
// returns unless the caller asks for more.
const DefaultMaxPaths = 4

// ChannelGraph is the in-memory directed graph of all channels known for one
// asset network. Nodes are addresses and an edge u->v exists when a channel
// between u and v has been reported open on chain. The graph is directed
// because channel capacity is asymmetric, though the topology itself is
// symmetric: opening a channel inserts both directions and closing removes
// both.
type ChannelGraph struct {
	mtx sync.RWMutex

	edges map[nwire.Address]map[nwire.Address]struct{}
}

// NewChannelGraph creates an empty graph.
func NewChannelGraph() *ChannelGraph {
	return &ChannelGraph{
		edges: make(map[nwire.Address]map[nwire.Address]struct{}),
	}
}

// NewChannelGraphFromEdges builds a graph from the (participant,
// participant) pairs the chain adapter reports for an asset.
func NewChannelGraphFromEdges(edges [][2]nwire.Address) *ChannelGraph {
	g := NewChannelGraph()
	for _, e := range edges {
		g.AddChannel(e[0], e[1])
	}
	return g
}

// AddChannel inserts the channel between a and b, in both directions.
func (g *ChannelGraph) AddChannel(a, b nwire.Address) {
	g.mtx.Lock()
	defer g.mtx.Unlock()

	g.addEdge(a, b)
	g.addEdge(b, a)
}

// RemoveChannel removes the channel between a and b, in both directions.
func (g *ChannelGraph) RemoveChannel(a, b nwire.Address) {
	g.mtx.Lock()
	defer g.mtx.Unlock()

	g.removeEdge(a, b)
	g.removeEdge(b, a)
}

func (g *ChannelGraph) addEdge(u, v nwire.Address) {
	if _, ok := g.edges[u]; !ok {
		g.edges[u] = make(map[nwire.Address]struct{})
	}
	g.edges[u][v] = struct{}{}
}

func (g *ChannelGraph) removeEdge(u, v nwire.Address) {
	if neighbors, ok := g.edges[u]; ok {
		delete(neighbors, v)
		if len(neighbors) == 0 {
			delete(g.edges, u)
		}
	}
}

// neighbors returns u's successors sorted lexicographically by address,
// which fixes the tie-breaking order between equal-length paths.
func (g *ChannelGraph) neighbors(u nwire.Address) []nwire.Address {
	ns := make([]nwire.Address, 0, len(g.edges[u]))
	for v := range g.edges[u] {
		ns = append(ns, v)
	}
	sort.Slice(ns, func(i, j int) bool {
		return bytes.Compare(ns[i][:], ns[j][:]) < 0
	})
	return ns
}

// HasPath reports whether any path leads from source to target.
func (g *ChannelGraph) HasPath(source, target nwire.Address) bool {
	g.mtx.RLock()
	defer g.mtx.RUnlock()

	if source == target {
		return true
	}

	visited := map[nwire.Address]struct{}{source: {}}
	frontier := []nwire.Address{source}
	for len(frontier) > 0 {
		u := frontier[0]
		frontier = frontier[1:]

		for v := range g.edges[u] {
			if v == target {
				return true
			}
			if _, ok := visited[v]; ok {
				continue
			}
			visited[v] = struct{}{}
			frontier = append(frontier, v)
		}
	}

	return false
}

// ShortestPaths enumerates up to maxPaths simple paths from source to target
// ordered by increasing length, breaking length ties lexicographically over
// the sequence of node addresses. Passing maxPaths <= 0 applies
// DefaultMaxPaths.
func (g *ChannelGraph) ShortestPaths(source, target nwire.Address,
	maxPaths int) [][]nwire.Address {

	g.mtx.RLock()
	defer g.mtx.RUnlock()

	if maxPaths <= 0 {
		maxPaths = DefaultMaxPaths
	}

	// Breadth-first over partial simple paths. Expanding each frontier
	// path through its sorted neighbor set yields complete paths by
	// increasing length and in lexicographic order within a length.
	var found [][]nwire.Address
	frontier := [][]nwire.Address{{source}}
	for len(frontier) > 0 && len(found) < maxPaths {
		var next [][]nwire.Address
		for _, path := range frontier {
			u := path[len(path)-1]
			for _, v := range g.neighbors(u) {
				if containsAddress(path, v) {
					continue
				}

				extended := make([]nwire.Address, len(path), len(path)+1)
				copy(extended, path)
				extended = append(extended, v)

				if v == target {
					found = append(found, extended)
					if len(found) == maxPaths {
						return found
					}
					continue
				}
				next = append(next, extended)
			}
		}
		frontier = next
	}

	return found
}

// PathsOfLength returns every simple path of exactly numHops edges starting
// at source, in lexicographic order.
func (g *ChannelGraph) PathsOfLength(source nwire.Address,
	numHops int) [][]nwire.Address {

	g.mtx.RLock()
	defer g.mtx.RUnlock()

	if numHops < 1 {
		return nil
	}

	var found [][]nwire.Address
	frontier := [][]nwire.Address{{source}}
	for hop := 0; hop < numHops; hop++ {
		var next [][]nwire.Address
		for _, path := range frontier {
			u := path[len(path)-1]
			for _, v := range g.neighbors(u) {
				if containsAddress(path, v) {
					continue
				}

				extended := make([]nwire.Address, len(path), len(path)+1)
				copy(extended, path)
				extended = append(extended, v)
				next = append(next, extended)
			}
		}
		frontier = next
	}

	found = frontier
	return found
}

// Nodes returns every address with at least one channel.
func (g *ChannelGraph) Nodes() []nwire.Address {
	g.mtx.RLock()
	defer g.mtx.RUnlock()

	nodes := make([]nwire.Address, 0, len(g.edges))
	for u := range g.edges {
		nodes = append(nodes, u)
	}
	sort.Slice(nodes, func(i, j int) bool {
		return bytes.Compare(nodes[i][:], nodes[j][:]) < 0
	})
	return nodes
}

func containsAddress(path []nwire.Address, addr nwire.Address) bool {
	for _, a := range path {
		if a == addr {
			return true
		}
	}
	return false
}
