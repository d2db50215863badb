// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package positional implements a streaming positional de Bruijn graph
// contig caller. Path nodes carrying positional intervals are loaded in
// first-start order into a working graph, the best scoring anchored path
// through the loaded graph is continuously memoized, and completed
// contigs are emitted with their supporting evidence in streaming order.
package positional

import (
	"fmt"

	"github.com/kortschak/contig/kmer"
)

// nodeIDs issues identities for path nodes. Replacement nodes emitted by
// weight removal receive fresh identities so stale references held by the
// caller can be detected by id.
var nodeIDs int64

func nextNodeID() int64 {
	nodeIDs++
	return nodeIDs
}

// Collapsed is an alternate k-mer merged into a path node during bubble
// collapse, recorded against the offset of the primary k-mer it was
// collapsed into.
type Collapsed struct {
	Kmer   uint64
	Offset int
}

// PathNode is a run of k-mers valid over a closed interval of first-kmer
// start positions. Nodes are immutable once added to an Index; weight
// removal replaces a node with fresh child nodes rather than mutating it.
//
// Adjacency is held as id sets. The Index resolves ids to nodes; links
// are relations only, never ownership.
type PathNode struct {
	id        int64
	kmers     []uint64
	weights   []int
	first     int
	last      int // firstEnd; the interval of the first kmer is [first, last].
	reference bool
	collapsed []Collapsed

	prev []int64
	next []int64
}

// NewPathNode returns a node over the given k-mer run with per-offset
// weights and first-kmer interval [firstStart, firstEnd].
func NewPathNode(kmers []uint64, weights []int, firstStart, firstEnd int, reference bool) (*PathNode, error) {
	if len(kmers) == 0 {
		return nil, fmt.Errorf("positional: empty kmer path")
	}
	if len(kmers) != len(weights) {
		return nil, fmt.Errorf("positional: kmer/weight length mismatch: %d != %d", len(kmers), len(weights))
	}
	if firstEnd < firstStart {
		return nil, fmt.Errorf("positional: invalid interval: [%d,%d]", firstStart, firstEnd)
	}
	for i, w := range weights {
		if w <= 0 && !reference {
			return nil, fmt.Errorf("positional: non-positive weight %d at offset %d", w, i)
		}
	}
	return &PathNode{
		id:      nextNodeID(),
		kmers:   kmers,
		weights: weights,
		first:   firstStart,
		last:    firstEnd,

		reference: reference,
	}, nil
}

// ID returns the node's identity.
func (n *PathNode) ID() int64 { return n.id }

// Length returns the number of k-mers in the node.
func (n *PathNode) Length() int { return len(n.kmers) }

// Kmer returns the k-mer at the given offset.
func (n *PathNode) Kmer(i int) uint64 { return n.kmers[i] }

// FirstKmer returns the node's first k-mer.
func (n *PathNode) FirstKmer() uint64 { return n.kmers[0] }

// LastKmer returns the node's last k-mer.
func (n *PathNode) LastKmer() uint64 { return n.kmers[len(n.kmers)-1] }

// Kmers returns the node's k-mer run. The returned slice must not be
// mutated.
func (n *PathNode) Kmers() []uint64 { return n.kmers }

// FirstStart and FirstEnd bound the closed interval of positions at
// which the node's first k-mer may occur.
func (n *PathNode) FirstStart() int { return n.first }
func (n *PathNode) FirstEnd() int   { return n.last }

// LastStart and LastEnd bound the interval of the node's final k-mer.
func (n *PathNode) LastStart() int { return n.first + len(n.kmers) - 1 }
func (n *PathNode) LastEnd() int   { return n.last + len(n.kmers) - 1 }

// Weight returns the weight at the given offset.
func (n *PathNode) Weight(i int) int { return n.weights[i] }

// TotalWeight returns the sum of the node's per-offset weights.
func (n *PathNode) TotalWeight() int {
	var sum int
	for _, w := range n.weights {
		sum += w
	}
	return sum
}

// IsReference returns whether every k-mer in the node is supported
// exclusively by reference-aligned evidence.
func (n *PathNode) IsReference() bool { return n.reference }

// Collapsed returns the alternate k-mers merged into the node.
func (n *PathNode) Collapsed() []Collapsed { return n.collapsed }

// AddCollapsed records an alternate k-mer against the given offset.
func (n *PathNode) AddCollapsed(enc uint64, offset int) error {
	if offset < 0 || offset >= len(n.kmers) {
		return fmt.Errorf("positional: collapsed offset out of range: %d", offset)
	}
	n.collapsed = append(n.collapsed, Collapsed{Kmer: enc, Offset: offset})
	return nil
}

// Prev and Next return the ids of the node's neighbours.
func (n *PathNode) Prev() []int64 { return n.prev }
func (n *PathNode) Next() []int64 { return n.next }

func addID(ids []int64, id int64) []int64 {
	for _, v := range ids {
		if v == id {
			return ids
		}
	}
	return append(ids, id)
}

func removeID(ids []int64, id int64) []int64 {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

// reachStart and reachEnd bound the first positions at which a successor
// of n may occur.
func (n *PathNode) reachStart() int { return n.first + len(n.kmers) }
func (n *PathNode) reachEnd() int   { return n.last + len(n.kmers) }

// connectsTo returns whether a successor relation from n to next is
// positionally valid.
func (n *PathNode) connectsTo(next *PathNode) bool {
	return n.reachStart() <= next.last && next.first <= n.reachEnd()
}

// checkPath confirms that the k-mer run forms a single de Bruijn path.
func (n *PathNode) checkPath(k int) error {
	for i := 1; i < len(n.kmers); i++ {
		if !kmer.IsSuccessor(n.kmers[i-1], n.kmers[i], k) {
			return fmt.Errorf("positional: broken kmer path at offset %d in node %d", i, n.id)
		}
	}
	return nil
}

// Subnode is a view of a path node restricted to a sub-interval of its
// first-kmer positions.
type Subnode struct {
	Node *PathNode
	// Low and High bound the closed first-position sub-interval.
	Low, High int
}

// FullSubnode returns the subnode spanning the node's whole interval.
func FullSubnode(n *PathNode) Subnode {
	return Subnode{Node: n, Low: n.first, High: n.last}
}

// Length returns the number of k-mers in the underlying node.
func (s Subnode) Length() int { return s.Node.Length() }

// LastStart and LastEnd bound the positions of the subnode's final k-mer.
func (s Subnode) LastStart() int { return s.Low + s.Node.Length() - 1 }
func (s Subnode) LastEnd() int   { return s.High + s.Node.Length() - 1 }

// KmerStart and KmerEnd bound the positions of the k-mer at offset i.
func (s Subnode) KmerStart(i int) int { return s.Low + i }
func (s Subnode) KmerEnd(i int) int   { return s.High + i }

// Next returns the subnode of next reachable from s, and whether the
// positional restriction leaves it non-empty.
func (s Subnode) Next(next *PathNode) (Subnode, bool) {
	lo := max(s.Low+s.Length(), next.first)
	hi := min(s.High+s.Length(), next.last)
	if lo > hi {
		return Subnode{}, false
	}
	return Subnode{Node: next, Low: lo, High: hi}, true
}

// Prev returns the subnode of prev from which s is reachable, and
// whether the positional restriction leaves it non-empty.
func (s Subnode) Prev(prev *PathNode) (Subnode, bool) {
	lo := max(s.Low-prev.Length(), prev.first)
	hi := min(s.High-prev.Length(), prev.last)
	if lo > hi {
		return Subnode{}, false
	}
	return Subnode{Node: prev, Low: lo, High: hi}, true
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
