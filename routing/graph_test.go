package routing

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nettingnetwork/nnd/nwire"
)

func addr(b byte) nwire.Address {
	return nwire.Address{b}
}

// diamondGraph builds:
//
//	a - b - d
//	 \     /
//	  - c -
//
// so a->d has two length-2 paths, tie-broken by address order.
func diamondGraph() *ChannelGraph {
	g := NewChannelGraph()
	g.AddChannel(addr(1), addr(2))
	g.AddChannel(addr(1), addr(3))
	g.AddChannel(addr(2), addr(4))
	g.AddChannel(addr(3), addr(4))
	return g
}

func TestHasPath(t *testing.T) {
	t.Parallel()

	g := diamondGraph()

	require.True(t, g.HasPath(addr(1), addr(4)))
	require.True(t, g.HasPath(addr(4), addr(1)))
	require.False(t, g.HasPath(addr(1), addr(9)))

	g.RemoveChannel(addr(2), addr(4))
	g.RemoveChannel(addr(3), addr(4))
	require.False(t, g.HasPath(addr(1), addr(4)))
}

func TestShortestPathsOrder(t *testing.T) {
	t.Parallel()

	g := diamondGraph()

	paths := g.ShortestPaths(addr(1), addr(4), 0)
	require.Len(t, paths, 2)

	// Both paths have two hops; the one through the smaller middle
	// address sorts first.
	require.Equal(t, []nwire.Address{addr(1), addr(2), addr(4)}, paths[0])
	require.Equal(t, []nwire.Address{addr(1), addr(3), addr(4)}, paths[1])
}

func TestShortestPathsByIncreasingLength(t *testing.T) {
	t.Parallel()

	// A line a-b-d plus a detour a-c-e-d: the direct two-hop path must
	// come before the three-hop one.
	g := NewChannelGraph()
	g.AddChannel(addr(1), addr(2))
	g.AddChannel(addr(2), addr(4))
	g.AddChannel(addr(1), addr(3))
	g.AddChannel(addr(3), addr(5))
	g.AddChannel(addr(5), addr(4))

	paths := g.ShortestPaths(addr(1), addr(4), 0)
	require.Len(t, paths, 2)
	require.Len(t, paths[0], 3)
	require.Len(t, paths[1], 4)
}

func TestShortestPathsLimit(t *testing.T) {
	t.Parallel()

	g := diamondGraph()

	paths := g.ShortestPaths(addr(1), addr(4), 1)
	require.Len(t, paths, 1)
	require.Equal(t, []nwire.Address{addr(1), addr(2), addr(4)}, paths[0])

	require.Empty(t, g.ShortestPaths(addr(1), addr(9), 0))
}

func TestPathsOfLength(t *testing.T) {
	t.Parallel()

	g := diamondGraph()

	paths := g.PathsOfLength(addr(1), 2)
	require.Len(t, paths, 2)
	for _, p := range paths {
		require.Len(t, p, 3)
		require.Equal(t, addr(1), p[0])
	}

	// Simple paths only: no bouncing back through the source.
	for _, p := range paths {
		seen := make(map[nwire.Address]struct{})
		for _, node := range p {
			_, dup := seen[node]
			require.False(t, dup)
			seen[node] = struct{}{}
		}
	}
}
