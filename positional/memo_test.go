// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package positional

import (
	"strings"
	"testing"
)

// chainNodes builds a linked straight-line chain of nodes over seq,
// kmersPer kmers each, starting at position 0.
func chainNodes(t *testing.T, k, kmersPer int, seq string, weight int) []*PathNode {
	t.Helper()
	total := len(seq) - k + 1
	if total%kmersPer != 0 {
		t.Fatalf("sequence with %d kmers does not divide into nodes of %d", total, kmersPer)
	}
	var nodes []*PathNode
	for i := 0; i < total; i += kmersPer {
		seg := seq[i : i+kmersPer+k-1]
		n := kpn(t, k, seg, i, i, false, weight)
		if len(nodes) != 0 {
			link(nodes[len(nodes)-1], n)
		}
		nodes = append(nodes, n)
	}
	return nodes
}

func addAll(t *testing.T, x *Index, c *Caller, nodes ...*PathNode) {
	t.Helper()
	for _, n := range nodes {
		err := x.Add(n)
		if err != nil {
			t.Fatalf("unexpected error adding node: %v", err)
		}
		if c != nil {
			c.Add(n)
		}
	}
}

func TestBestContigStraightLine(t *testing.T) {
	const k = 4
	seq := uniqueSeq(t, k, 6*2+k-1)
	x := NewIndex(k)
	c := NewCaller(x, AnchoredScore)
	nodes := chainNodes(t, k, 2, seq, 2)
	addAll(t, x, c, nodes...)

	path := c.BestContig(maxInt)
	if len(path) != len(nodes) {
		t.Fatalf("BestContig returned %d subnodes, want %d", len(path), len(nodes))
	}
	if got := basesOf(t, path, k); got != seq {
		t.Errorf("BestContig bases = %q, want %q", got, seq)
	}

	// The same path must not be callable while input before its end
	// could still arrive.
	last := nodes[len(nodes)-1]
	if got := c.BestContig(last.FirstStart() + last.Length()); got != nil {
		t.Errorf("BestContig under low frontier returned a path ending at %d", got[len(got)-1].LastEnd())
	}
}

func TestBestContigPrefersHeavierBranch(t *testing.T) {
	const k = 4
	x := NewIndex(k)
	c := NewCaller(x, AnchoredScore)
	stem := kpn(t, k, "AACCG", 0, 0, false, 2)  // AACC ACCG
	heavy := kpn(t, k, "CCGTT", 2, 2, false, 5) // CCGT CGTT
	light := kpn(t, k, "CCGAA", 2, 2, false, 3) // CCGA CGAA
	link(stem, heavy)
	link(stem, light)
	addAll(t, x, c, stem, heavy, light)

	path := c.BestContig(maxInt)
	if len(path) != 2 || path[1].Node != heavy {
		t.Fatalf("BestContig chose %q, want path through the heavier branch", basesOf(t, path, k))
	}
	if got, want := basesOf(t, path, k), "AACCGTT"; got != want {
		t.Errorf("BestContig bases = %q, want %q", got, want)
	}
}

func TestBestContigAnchoredDominance(t *testing.T) {
	const k = 4
	x := NewIndex(k)
	c := NewCaller(x, AnchoredScore)
	ref := kpn(t, k, "AACCG", 0, 0, true, 1)
	anchored := kpn(t, k, "CCGTT", 2, 2, false, 1)
	link(ref, anchored)
	// A much heavier unanchored node elsewhere in the graph.
	free := kpn(t, k, "GGTTA", 10, 10, false, 100)
	addAll(t, x, c, ref, anchored, free)

	path := c.BestContig(maxInt)
	if len(path) != 1 || path[0].Node != anchored {
		t.Fatalf("BestContig did not prefer the anchored path: got %d subnodes", len(path))
	}
}

func TestCallBestContigBeforeBoundsPosition(t *testing.T) {
	const k = 4
	x := NewIndex(k)
	c := NewCaller(x, AnchoredScore)
	wide := kpn(t, k, "ACGT", 0, 100, false, 1)
	addAll(t, x, c, wide)

	if got := c.CallBestContigBefore(maxInt, 0); got != nil {
		t.Errorf("CallBestContigBefore(0) = %v, want nil", got)
	}
	path := c.CallBestContigBefore(maxInt, 50)
	if len(path) != 1 {
		t.Fatalf("CallBestContigBefore returned %d subnodes, want 1", len(path))
	}
	if path[0].Low != 0 || path[0].High != 49 {
		t.Errorf("forced subnode interval [%d,%d], want [0,49]", path[0].Low, path[0].High)
	}
}

func TestFrontierPath(t *testing.T) {
	const k = 4
	seq := uniqueSeq(t, k, 3*2+k-1)
	x := NewIndex(k)
	c := NewCaller(x, AnchoredScore)
	nodes := chainNodes(t, k, 2, seq, 1)
	addAll(t, x, c, nodes...)

	// With the frontier at the chain end the path is still growing.
	frontier := nodes[len(nodes)-1].FirstStart() + 1
	path := c.FrontierPath(frontier, 1)
	if len(path) == 0 {
		t.Fatal("FrontierPath returned nothing for a growing chain")
	}
	if path[0].Low != 0 {
		t.Errorf("FrontierPath origin = %d, want 0", path[0].Low)
	}
	if got := c.FrontierPath(frontier, 0); got != nil {
		t.Errorf("FrontierPath below origin floor returned %d subnodes", len(got))
	}
}

func TestCheckEquivalentAfterRemove(t *testing.T) {
	const k = 4
	seq := uniqueSeq(t, k, 5*2+k-1)
	x := NewIndex(k)
	c := NewCaller(x, AnchoredScore)
	nodes := chainNodes(t, k, 2, seq, 1)
	addAll(t, x, c, nodes...)
	if c.BestContig(maxInt) == nil {
		t.Fatal("no initial best contig")
	}

	mid := nodes[2]
	c.Remove(mid)
	x.Remove(mid)
	x.Unlink(mid)
	if err := c.CheckEquivalent(); err != nil {
		t.Errorf("CheckEquivalent after remove: %v", err)
	}
	// The best path must now stop at the break.
	path := c.BestContig(maxInt)
	if len(path) != 2 {
		t.Fatalf("BestContig after remove returned %d subnodes, want 2", len(path))
	}
	if got := basesOf(t, path, k); !strings.HasPrefix(seq, got) {
		t.Errorf("BestContig after remove bases = %q, want a prefix of %q", got, seq)
	}
}

func TestCheckEquivalentDetectsUnannouncedRemoval(t *testing.T) {
	const k = 4
	seq := uniqueSeq(t, k, 4*2+k-1)
	x := NewIndex(k)
	c := NewCaller(x, AnchoredScore)
	nodes := chainNodes(t, k, 2, seq, 1)
	addAll(t, x, c, nodes...)
	if c.BestContig(maxInt) == nil {
		t.Fatal("no initial best contig")
	}

	// Remove from the index without announcing to the caller.
	mid := nodes[1]
	x.Remove(mid)
	x.Unlink(mid)
	if err := c.CheckEquivalent(); err == nil {
		t.Error("CheckEquivalent did not detect unannounced removal")
	}
}

func TestExportState(t *testing.T) {
	const k = 4
	x := NewIndex(k)
	c := NewCaller(x, AnchoredScore)
	addAll(t, x, c, kpn(t, k, "ACGTA", 0, 3, false, 2))

	var buf strings.Builder
	err := c.ExportState(&buf)
	if err != nil {
		t.Fatalf("unexpected error exporting state: %v", err)
	}
	got := buf.String()
	if !strings.HasPrefix(got, "node,first_kmer,low,high,score,anchored,origin\n") {
		t.Errorf("missing header in exported state: %q", got)
	}
	if !strings.Contains(got, "ACGT,0,3,4,false,0") {
		t.Errorf("missing memoized sub-interval in exported state: %q", got)
	}
}
