// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package positional

// StartAnchor returns a reference anchor path extending backward from
// the seed by greedy traversal of prev links. Only reference nodes are
// traversed, heaviest first, capped at maxKmers k-mers. The seed itself
// is not included. The result is in path order, ending at the node
// preceding the seed.
func StartAnchor(x *Index, seed Subnode, maxKmers int) []Subnode {
	var rev []Subnode
	visited := map[int64]bool{seed.Node.ID(): true}
	at := seed
	total := 0
	for {
		next, ok := bestNeighbour(x.PrevNodes(at.Node), visited, func(n *PathNode) (Subnode, bool) { return at.Prev(n) })
		if !ok || total+next.Length() > maxKmers {
			break
		}
		visited[next.Node.ID()] = true
		total += next.Length()
		rev = append(rev, next)
		at = next
	}
	path := make([]Subnode, len(rev))
	for i, sn := range rev {
		path[len(path)-1-i] = sn
	}
	return path
}

// EndAnchor returns a reference anchor path extending forward from the
// seed by greedy traversal of next links. Only reference nodes are
// traversed, heaviest first, capped at maxKmers k-mers. The seed itself
// is not included.
func EndAnchor(x *Index, seed Subnode, maxKmers int) []Subnode {
	var path []Subnode
	visited := map[int64]bool{seed.Node.ID(): true}
	at := seed
	total := 0
	for {
		next, ok := bestNeighbour(x.NextNodes(at.Node), visited, func(n *PathNode) (Subnode, bool) { return at.Next(n) })
		if !ok || total+next.Length() > maxKmers {
			break
		}
		visited[next.Node.ID()] = true
		total += next.Length()
		path = append(path, next)
		at = next
	}
	return path
}

// bestNeighbour selects the preferred traversal target among reference
// neighbours: greatest total weight, then lowest first k-mer and id for
// determinism.
func bestNeighbour(nodes []*PathNode, visited map[int64]bool, restrict func(*PathNode) (Subnode, bool)) (Subnode, bool) {
	var (
		best Subnode
		have bool
	)
	for _, n := range nodes {
		if !n.IsReference() || visited[n.ID()] {
			continue
		}
		sn, ok := restrict(n)
		if !ok {
			continue
		}
		if !have || betterAnchorNode(n, best.Node) {
			best = sn
			have = true
		}
	}
	return best, have
}

func betterAnchorNode(a, b *PathNode) bool {
	switch {
	case a.TotalWeight() != b.TotalWeight():
		return a.TotalWeight() > b.TotalWeight()
	case a.FirstKmer() != b.FirstKmer():
		return a.FirstKmer() < b.FirstKmer()
	}
	return a.ID() < b.ID()
}
