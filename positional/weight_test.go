// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package positional

import (
	"errors"
	"testing"
)

func supportAt(t *testing.T, word string, lastStart, lastEnd, weight int) *SupportNode {
	t.Helper()
	e := NewEvidence("support", 1, false, lastStart, lastEnd)
	return e.AddSupport(kmerOf(t, word), lastStart, lastEnd, weight)
}

func TestRemoveWeightUniform(t *testing.T) {
	const k = 4
	x := NewIndex(k)
	n := kpn(t, k, "ACGTA", 1, 5, false, 3)
	err := x.Add(n)
	if err != nil {
		t.Fatalf("unexpected error adding node: %v", err)
	}
	reps, err := x.RemoveWeight(n, [][]*SupportNode{
		{supportAt(t, "ACGT", 1, 5, 1)},
		{supportAt(t, "CGTA", 2, 6, 1)},
	})
	if err != nil {
		t.Fatalf("unexpected error removing weight: %v", err)
	}
	if len(reps) != 1 {
		t.Fatalf("got %d replacements, want 1", len(reps))
	}
	r := reps[0]
	if r.ID() == n.ID() {
		t.Error("replacement did not receive a fresh identity")
	}
	if r.FirstStart() != 1 || r.FirstEnd() != 5 || r.Length() != 2 {
		t.Errorf("replacement shape [%d,%d]x%d, want [1,5]x2", r.FirstStart(), r.FirstEnd(), r.Length())
	}
	if r.Weight(0) != 2 || r.Weight(1) != 2 {
		t.Errorf("replacement weights %d,%d, want 2,2", r.Weight(0), r.Weight(1))
	}
	if x.Node(n.ID()) != nil {
		t.Error("removed node still live in index")
	}
	if x.Node(r.ID()) == nil {
		t.Error("replacement not indexed")
	}
}

func TestRemoveWeightAll(t *testing.T) {
	const k = 4
	x := NewIndex(k)
	n := kpn(t, k, "ACGTA", 1, 5, false, 1)
	err := x.Add(n)
	if err != nil {
		t.Fatalf("unexpected error adding node: %v", err)
	}
	reps, err := x.RemoveWeight(n, [][]*SupportNode{
		{supportAt(t, "ACGT", 1, 5, 1)},
		{supportAt(t, "CGTA", 2, 6, 1)},
	})
	if err != nil {
		t.Fatalf("unexpected error removing weight: %v", err)
	}
	if len(reps) != 0 {
		t.Fatalf("got %d replacements, want 0", len(reps))
	}
	if x.Len() != 0 {
		t.Errorf("index holds %d nodes after full removal, want 0", x.Len())
	}
}

func TestRemoveWeightLongitudinalSplit(t *testing.T) {
	const k = 4
	x := NewIndex(k)
	p := kpn(t, k, "AACGT", 0, 0, false, 1)  // AACG ACGT
	n := kpn(t, k, "CGTACG", 2, 2, false, 1) // CGTA GTAC TACG
	nx := kpn(t, k, "ACGGG", 5, 5, false, 1) // ACGG CGGG
	link(p, n)
	link(n, nx)
	for _, node := range []*PathNode{p, n, nx} {
		err := x.Add(node)
		if err != nil {
			t.Fatalf("unexpected error adding node: %v", err)
		}
	}
	// Remove all weight from the middle kmer only.
	reps, err := x.RemoveWeight(n, [][]*SupportNode{
		nil,
		{supportAt(t, "GTAC", 3, 3, 1)},
	})
	if err != nil {
		t.Fatalf("unexpected error removing weight: %v", err)
	}
	if len(reps) != 2 {
		t.Fatalf("got %d replacements, want 2", len(reps))
	}
	head, tail := reps[0], reps[1]
	if head.Length() != 1 || head.FirstStart() != 2 {
		t.Errorf("head replacement %d kmers at %d, want 1 at 2", head.Length(), head.FirstStart())
	}
	if tail.Length() != 1 || tail.FirstStart() != 4 {
		t.Errorf("tail replacement %d kmers at %d, want 1 at 4", tail.Length(), tail.FirstStart())
	}
	if prev := x.PrevNodes(head); len(prev) != 1 || prev[0] != p {
		t.Errorf("head.prev = %v, want [p]", prev)
	}
	if next := x.NextNodes(head); len(next) != 0 {
		t.Errorf("head.next = %v, want none; the broken kmer severs the path", next)
	}
	if next := x.NextNodes(tail); len(next) != 1 || next[0] != nx {
		t.Errorf("tail.next = %v, want [nx]", next)
	}
	if prev := x.PrevNodes(tail); len(prev) != 0 {
		t.Errorf("tail.prev = %v, want none", prev)
	}
	if got := x.PrevNodes(nx); len(got) != 1 || got[0] != tail {
		t.Errorf("nx.prev = %v, want [tail]", got)
	}
}

func TestRemoveWeightPositionalSplit(t *testing.T) {
	const k = 4
	x := NewIndex(k)
	n := kpn(t, k, "ACGT", 1, 10, false, 2)
	err := x.Add(n)
	if err != nil {
		t.Fatalf("unexpected error adding node: %v", err)
	}
	reps, err := x.RemoveWeight(n, [][]*SupportNode{
		{supportAt(t, "ACGT", 3, 6, 1)},
	})
	if err != nil {
		t.Fatalf("unexpected error removing weight: %v", err)
	}
	if len(reps) != 3 {
		t.Fatalf("got %d replacements, want 3", len(reps))
	}
	type shape struct{ lo, hi, w int }
	var got []shape
	for _, r := range reps {
		got = append(got, shape{r.FirstStart(), r.FirstEnd(), r.Weight(0)})
	}
	want := []shape{{1, 2, 2}, {3, 6, 1}, {7, 10, 2}}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("replacement %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestRemoveWeightUnderflow(t *testing.T) {
	const k = 4
	x := NewIndex(k)
	n := kpn(t, k, "ACGT", 1, 5, false, 1)
	err := x.Add(n)
	if err != nil {
		t.Fatalf("unexpected error adding node: %v", err)
	}
	_, err = x.RemoveWeight(n, [][]*SupportNode{
		{supportAt(t, "ACGT", 1, 5, 2)},
	})
	if !errors.Is(err, ErrInvariant) {
		t.Errorf("underflow error = %v, want ErrInvariant", err)
	}
}
