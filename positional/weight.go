// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package positional

import (
	"fmt"
	"sort"
)

// RemoveWeight subtracts the given per-offset support from the node,
// replacing it in the index with zero or more fresh nodes covering the
// surviving offsets and positions. toRemove[i] lists the support nodes
// to subtract at k-mer offset i and may be shorter than the node.
//
// The node is removed from the index unless the removal list is longer
// than the node or would drive a weight negative; those cases return an
// error and leave the index unchanged. Replacement nodes
// carry fresh identities, inherit positionally valid adjacency to the
// node's neighbours, and are added to the index before being returned.
// If all weight is removed no replacement is emitted.
func (x *Index) RemoveWeight(n *PathNode, toRemove [][]*SupportNode) ([]*PathNode, error) {
	if len(toRemove) > n.Length() {
		return nil, fmt.Errorf("positional: removal list longer than node %d: %d > %d", n.id, len(toRemove), n.Length())
	}
	segments, err := splitNode(n, toRemove)
	if err != nil {
		return nil, err
	}
	prev := x.PrevNodes(n)
	next := x.NextNodes(n)
	x.Remove(n)
	x.Unlink(n)
	var replacements []*PathNode
	for _, seg := range segments {
		for _, r := range seg.nodes {
			if r.startOffset == 0 {
				for _, p := range prev {
					if p.connectsTo(r.node) {
						x.Link(p, r.node)
					}
				}
			}
			if r.endOffset == n.Length()-1 {
				for _, s := range next {
					if r.node.connectsTo(s) {
						x.Link(r.node, s)
					}
				}
			}
			err = x.Add(r.node)
			if err != nil {
				return replacements, err
			}
			replacements = append(replacements, r.node)
		}
	}
	return replacements, nil
}

// segment is a positional run over which the post-reduction weight
// vector is constant.
type segment struct {
	low, high int
	weights   []int
	nodes     []replacement
}

// replacement is a surviving offset run of a segment.
type replacement struct {
	node        *PathNode
	startOffset int
	endOffset   int
}

// splitNode partitions the node at positions where the reduction
// differs and at offsets where the post-reduction weight drops to zero,
// returning the surviving pieces as fresh nodes. No indexes are
// touched.
func splitNode(n *PathNode, toRemove [][]*SupportNode) ([]segment, error) {
	// Positional boundaries where any support's coverage changes.
	bounds := []int{n.first, n.last + 1}
	for i, supports := range toRemove {
		for _, s := range supports {
			lo := max(s.lastStart-i, n.first)
			hi := min(s.lastEnd-i, n.last)
			if lo > hi {
				continue
			}
			bounds = append(bounds, lo, hi+1)
		}
	}
	sort.Ints(bounds)
	bounds = dedupInts(bounds)

	var segments []segment
	for bi := 0; bi+1 < len(bounds); bi++ {
		lo, hi := bounds[bi], bounds[bi+1]-1
		weights := make([]int, n.Length())
		for i := range weights {
			weights[i] = n.weights[i]
		}
		for i, supports := range toRemove {
			for _, s := range supports {
				if s.lastStart-i <= lo && hi <= s.lastEnd-i {
					weights[i] -= s.weight
				}
			}
		}
		for i, w := range weights {
			if w < 0 {
				return nil, fmt.Errorf("positional: weight underflow at offset %d of node %d over [%d,%d]: %w", i, n.id, lo, hi, ErrInvariant)
			}
		}
		// Merge with the preceding segment when the reduction turns out
		// to be identical; clipped support bounds can introduce
		// boundaries with no weight change.
		if len(segments) > 0 && equalInts(segments[len(segments)-1].weights, weights) && segments[len(segments)-1].high+1 == lo {
			segments[len(segments)-1].high = hi
			continue
		}
		segments = append(segments, segment{low: lo, high: hi, weights: weights})
	}

	for si := range segments {
		seg := &segments[si]
		for i := 0; i < n.Length(); {
			if seg.weights[i] == 0 {
				i++
				continue
			}
			j := i
			for j+1 < n.Length() && seg.weights[j+1] > 0 {
				j++
			}
			node, err := newReplacement(n, seg.low, seg.high, i, j, seg.weights[i:j+1])
			if err != nil {
				return nil, err
			}
			seg.nodes = append(seg.nodes, replacement{node: node, startOffset: i, endOffset: j})
			i = j + 1
		}
	}
	return segments, nil
}

func newReplacement(n *PathNode, low, high, startOffset, endOffset int, weights []int) (*PathNode, error) {
	kmers := make([]uint64, endOffset-startOffset+1)
	copy(kmers, n.kmers[startOffset:endOffset+1])
	w := make([]int, len(weights))
	copy(w, weights)
	node, err := NewPathNode(kmers, w, low+startOffset, high+startOffset, n.reference)
	if err != nil {
		return nil, err
	}
	for _, c := range n.collapsed {
		if startOffset <= c.Offset && c.Offset <= endOffset {
			node.collapsed = append(node.collapsed, Collapsed{Kmer: c.Kmer, Offset: c.Offset - startOffset})
		}
	}
	return node, nil
}

func dedupInts(s []int) []int {
	out := s[:0]
	for i, v := range s {
		if i == 0 || v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i, v := range a {
		if v != b[i] {
			return false
		}
	}
	return true
}
