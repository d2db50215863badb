// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package positional

import (
	"fmt"
	"io"

	"github.com/biogo/store/step"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/encoding"
	"gonum.org/v1/gonum/graph/encoding/dot"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/kortschak/contig/kmer"
)

// ExportDot writes the loaded graph in DOT format with the given path
// highlighted. It backs the graph visualisation sink.
func ExportDot(w io.Writer, x *Index, highlight []Subnode, k int) error {
	onPath := make(map[int64]bool, len(highlight))
	for _, sn := range highlight {
		onPath[sn.Node.ID()] = true
	}
	g := simple.NewDirectedGraph()
	x.Do(func(n *PathNode) bool {
		g.AddNode(dotNode{n: n, k: k, highlight: onPath[n.ID()]})
		return false
	})
	x.Do(func(n *PathNode) bool {
		for _, s := range x.NextNodes(n) {
			if n.ID() == s.ID() || !n.connectsTo(s) {
				continue
			}
			g.SetEdge(dotEdge{f: g.Node(n.ID()), t: g.Node(s.ID())})
		}
		return false
	})
	b, err := dot.Marshal(g, "assembly", "", "\t")
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	if err != nil {
		return err
	}
	_, err = w.Write([]byte{'\n'})
	return err
}

type dotNode struct {
	n         *PathNode
	k         int
	highlight bool
}

func (n dotNode) ID() int64 { return n.n.ID() }

func (n dotNode) DOTID() string {
	return fmt.Sprintf("n%d", n.n.ID())
}

func (n dotNode) Attributes() []encoding.Attribute {
	attr := []encoding.Attribute{
		{Key: "label", Value: fmt.Sprintf("%s [%d,%d] w=%d", firstWord(n.n, n.k), n.n.FirstStart(), n.n.FirstEnd(), n.n.TotalWeight())},
	}
	if n.n.IsReference() {
		attr = append(attr, encoding.Attribute{Key: "shape", Value: "box"})
	}
	if n.highlight {
		attr = append(attr, encoding.Attribute{Key: "color", Value: "red"})
	}
	return attr
}

func firstWord(n *PathNode, k int) string {
	return string(kmer.Decode(n.FirstKmer(), k))
}

type dotEdge struct {
	f, t graph.Node
}

func (e dotEdge) From() graph.Node         { return e.f }
func (e dotEdge) To() graph.Node           { return e.t }
func (e dotEdge) ReversedEdge() graph.Edge { return dotEdge{f: e.t, t: e.f} }

// DepthSummary is the per-position weight profile of the loaded graph.
type DepthSummary struct {
	Start        int
	End          int
	MaxDepth     int
	CoveredWidth int
}

// depthValue is a step vector element carrying total k-mer weight.
type depthValue int

func (d depthValue) Equal(e step.Equaler) bool { return d == e.(depthValue) }

// GraphDepth aggregates the total k-mer weight of the loaded graph per
// position into a step vector and summarises it.
func GraphDepth(x *Index) (DepthSummary, error) {
	if x.Len() == 0 {
		return DepthSummary{}, nil
	}
	start, end := maxInt, minPosition
	x.Do(func(n *PathNode) bool {
		if n.FirstStart() < start {
			start = n.FirstStart()
		}
		if n.LastEnd()+1 > end {
			end = n.LastEnd() + 1
		}
		return false
	})
	v, err := step.New(start, end, depthValue(0))
	if err != nil {
		return DepthSummary{}, err
	}
	v.Relaxed = true
	var applyErr error
	x.Do(func(n *PathNode) bool {
		for i := 0; i < n.Length(); i++ {
			w := n.Weight(i)
			applyErr = v.ApplyRange(n.FirstStart()+i, n.FirstEnd()+i+1, func(e step.Equaler) step.Equaler {
				return e.(depthValue) + depthValue(w)
			})
			if applyErr != nil {
				return true
			}
		}
		return false
	})
	if applyErr != nil {
		return DepthSummary{}, applyErr
	}
	sum := DepthSummary{Start: start, End: end}
	v.Do(func(start, end int, e step.Equaler) {
		d := int(e.(depthValue))
		if d == 0 {
			return
		}
		sum.CoveredWidth += end - start
		if d > sum.MaxDepth {
			sum.MaxDepth = d
		}
	})
	return sum, nil
}
