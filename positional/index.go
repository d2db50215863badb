// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package positional

import (
	"fmt"
	"math"

	"github.com/biogo/store/llrb"
)

const maxInt = int(^uint(0) >> 1)

// nodeKey orders live nodes by (firstStart, firstKmer, id) in the
// position trees. A nil node marks a query bound.
type nodeKey struct {
	start int
	kmer  uint64
	id    int64
	node  *PathNode
}

func keyOf(n *PathNode) nodeKey {
	return nodeKey{start: n.first, kmer: n.kmers[0], id: n.id, node: n}
}

// startQuery returns the least key at the given start position.
func startQuery(start int) nodeKey {
	return nodeKey{start: start, id: math.MinInt64}
}

func (a nodeKey) Compare(b llrb.Comparable) int {
	k := b.(nodeKey)
	switch {
	case a.start < k.start:
		return -1
	case a.start > k.start:
		return 1
	case a.kmer < k.kmer:
		return -1
	case a.kmer > k.kmer:
		return 1
	case a.id < k.id:
		return -1
	case a.id > k.id:
		return 1
	}
	return 0
}

// Occurrence is a single placement of a k-mer within a live node.
type Occurrence struct {
	Node      *PathNode
	Offset    int
	Collapsed bool
}

// Index is the dual index of live path nodes: an ordered set keyed by
// (firstStart, firstKmer, id) and a mapping from each k-mer, primary and
// collapsed, to its occurrences. The Index exclusively owns live nodes.
type Index struct {
	k          int
	nodes      map[int64]*PathNode
	byPosition llrb.Tree
	nonRef     llrb.Tree
	byKmer     map[uint64][]Occurrence
}

// NewIndex returns an empty index for k-mer length k.
func NewIndex(k int) *Index {
	return &Index{
		k:      k,
		nodes:  make(map[int64]*PathNode),
		byKmer: make(map[uint64][]Occurrence),
	}
}

// K returns the index k-mer length.
func (x *Index) K() int { return x.k }

// Len returns the number of live nodes.
func (x *Index) Len() int { return len(x.nodes) }

// Add inserts the node into both indexes. It fails with ErrInvariant if
// another live node shares the first k-mer over an overlapping
// first-position interval.
func (x *Index) Add(n *PathNode) error {
	if _, ok := x.nodes[n.id]; ok {
		return fmt.Errorf("positional: duplicate node %d: %w", n.id, ErrInvariant)
	}
	for _, occ := range x.byKmer[n.kmers[0]] {
		if occ.Offset != 0 || occ.Collapsed || occ.Node.kmers[0] != n.kmers[0] {
			continue
		}
		if occ.Node.first <= n.last && n.first <= occ.Node.last {
			return fmt.Errorf("positional: nodes %d and %d share first kmer over [%d,%d] and [%d,%d]: %w",
				occ.Node.id, n.id, occ.Node.first, occ.Node.last, n.first, n.last, ErrInvariant)
		}
	}
	x.nodes[n.id] = n
	x.byPosition.Insert(keyOf(n))
	if !n.reference {
		x.nonRef.Insert(keyOf(n))
	}
	for i := range n.kmers {
		x.byKmer[n.kmers[i]] = append(x.byKmer[n.kmers[i]], Occurrence{Node: n, Offset: i})
	}
	for _, c := range n.collapsed {
		x.byKmer[c.Kmer] = append(x.byKmer[c.Kmer], Occurrence{Node: n, Offset: c.Offset, Collapsed: true})
	}
	return nil
}

// Remove removes the node from both indexes. Adjacency links held by
// neighbours are not modified; see Unlink.
func (x *Index) Remove(n *PathNode) {
	if _, ok := x.nodes[n.id]; !ok {
		return
	}
	delete(x.nodes, n.id)
	x.byPosition.Delete(keyOf(n))
	if !n.reference {
		x.nonRef.Delete(keyOf(n))
	}
	for i := range n.kmers {
		x.removeOccurrence(n.kmers[i], n.id, i)
	}
	for _, c := range n.collapsed {
		x.removeOccurrence(c.Kmer, n.id, c.Offset)
	}
}

func (x *Index) removeOccurrence(enc uint64, id int64, offset int) {
	occs := x.byKmer[enc]
	for i, occ := range occs {
		if occ.Node.id == id && occ.Offset == offset {
			occs = append(occs[:i], occs[i+1:]...)
			break
		}
	}
	if len(occs) == 0 {
		delete(x.byKmer, enc)
	} else {
		x.byKmer[enc] = occs
	}
}

// Node resolves a node id, returning nil for retired ids.
func (x *Index) Node(id int64) *PathNode { return x.nodes[id] }

// Lookup returns all occurrences of the given k-mer.
func (x *Index) Lookup(enc uint64) []Occurrence { return x.byKmer[enc] }

// Link records the successor relation a→b on both nodes.
func (x *Index) Link(a, b *PathNode) {
	a.next = addID(a.next, b.id)
	b.prev = addID(b.prev, a.id)
}

// Unlink removes the node from its neighbours' adjacency sets.
func (x *Index) Unlink(n *PathNode) {
	for _, id := range n.prev {
		if p := x.nodes[id]; p != nil {
			p.next = removeID(p.next, n.id)
		}
	}
	for _, id := range n.next {
		if s := x.nodes[id]; s != nil {
			s.prev = removeID(s.prev, n.id)
		}
	}
}

// PrevNodes and NextNodes resolve the node's live neighbours.
func (x *Index) PrevNodes(n *PathNode) []*PathNode {
	var nodes []*PathNode
	for _, id := range n.prev {
		if p := x.nodes[id]; p != nil {
			nodes = append(nodes, p)
		}
	}
	return nodes
}

func (x *Index) NextNodes(n *PathNode) []*PathNode {
	var nodes []*PathNode
	for _, id := range n.next {
		if s := x.nodes[id]; s != nil {
			nodes = append(nodes, s)
		}
	}
	return nodes
}

// FirstStart returns the start position of the earliest live node, or
// maxInt if the graph is empty.
func (x *Index) FirstStart() int {
	if x.byPosition.Len() == 0 {
		return maxInt
	}
	return x.byPosition.Min().(nodeKey).start
}

// FirstNonReferenceStart returns the start position of the earliest
// live non-reference node, or maxInt if there is none.
func (x *Index) FirstNonReferenceStart() int {
	if x.nonRef.Len() == 0 {
		return maxInt
	}
	return x.nonRef.Min().(nodeKey).start
}

// NonReferenceLen returns the number of live non-reference nodes.
func (x *Index) NonReferenceLen() int { return x.nonRef.Len() }

// Do calls fn for each live node in position order until fn returns
// true.
func (x *Index) Do(fn func(*PathNode) bool) {
	x.byPosition.Do(func(c llrb.Comparable) bool {
		return fn(c.(nodeKey).node)
	})
}

// DoBefore calls fn for each live node with firstStart < position, in
// position order, until fn returns true.
func (x *Index) DoBefore(position int, fn func(*PathNode) bool) {
	x.byPosition.DoRange(func(c llrb.Comparable) bool {
		return fn(c.(nodeKey).node)
	}, startQuery(minPosition), startQuery(position))
}

// minPosition is the least representable position, used as an open
// lower query bound.
const minPosition = -maxInt - 1

// MaxKmerOccupancy returns the greatest number of live occurrences
// recorded for any single k-mer.
func (x *Index) MaxKmerOccupancy() int {
	var most int
	for _, occs := range x.byKmer {
		if len(occs) > most {
			most = len(occs)
		}
	}
	return most
}

// CheckDisjoint verifies that live nodes sharing a first k-mer have
// disjoint first-position intervals. It backs the self-check mode.
func (x *Index) CheckDisjoint() error {
	for enc, occs := range x.byKmer {
		for i, a := range occs {
			if a.Offset != 0 || a.Collapsed {
				continue
			}
			for _, b := range occs[i+1:] {
				if b.Offset != 0 || b.Collapsed {
					continue
				}
				if a.Node.first <= b.Node.last && b.Node.first <= a.Node.last {
					return fmt.Errorf("positional: kmer %d shared by nodes %d and %d over overlapping intervals: %w",
						enc, a.Node.id, b.Node.id, ErrInvariant)
				}
			}
		}
	}
	return nil
}
