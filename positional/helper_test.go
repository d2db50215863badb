// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package positional

import (
	"testing"

	"github.com/kortschak/contig/kmer"
)

// kpn builds a path node over the k-mers of seq with the given first
// position interval and uniform weight.
func kpn(t *testing.T, k int, seq string, firstStart, firstEnd int, reference bool, weight int) *PathNode {
	t.Helper()
	count := len(seq) - k + 1
	if count < 1 {
		t.Fatalf("sequence %q shorter than k=%d", seq, k)
	}
	kmers := make([]uint64, count)
	weights := make([]int, count)
	for i := range kmers {
		kmers[i] = kmer.MustEncode(seq[i : i+k])
		weights[i] = weight
	}
	n, err := NewPathNode(kmers, weights, firstStart, firstEnd, reference)
	if err != nil {
		t.Fatalf("failed to construct node for %q: %v", seq, err)
	}
	err = n.checkPath(k)
	if err != nil {
		t.Fatalf("invalid kmer path for %q: %v", seq, err)
	}
	return n
}

func link(a, b *PathNode) {
	a.next = addID(a.next, b.id)
	b.prev = addID(b.prev, a.id)
}

// evidenceOver creates and optionally tracks evidence supporting every
// k-mer of the node over its full position interval.
func evidenceOver(t *testing.T, tracker *Tracker, id string, n *PathNode, weight int) *Evidence {
	t.Helper()
	e := NewEvidence(id, 1, n.IsReference(), n.FirstStart(), n.FirstEnd())
	for i := 0; i < n.Length(); i++ {
		s := e.AddSupport(n.Kmer(i), n.FirstStart()+i, n.FirstEnd()+i, weight)
		if tracker != nil {
			err := tracker.Track(s)
			if err != nil {
				t.Fatalf("failed to track %s: %v", id, err)
			}
		}
	}
	return e
}

// uniqueSeq returns a deterministic base sequence of length n whose
// k-mers are all distinct.
func uniqueSeq(t *testing.T, k, n int) string {
	t.Helper()
	seq := make([]byte, k, n)
	for i := range seq {
		seq[i] = 'A'
	}
	seen := map[string]bool{string(seq): true}
	for len(seq) < n {
		placed := false
		// Preferring the largest base never strands the walk before
		// every k-mer has been used.
		for _, b := range []byte{'T', 'G', 'C', 'A'} {
			cand := string(seq[len(seq)-k+1:]) + string(b)
			if !seen[cand] {
				seen[cand] = true
				seq = append(seq, b)
				placed = true
				break
			}
		}
		if !placed {
			t.Fatalf("cannot extend unique %d-mer sequence beyond %d bases", k, len(seq))
		}
	}
	return string(seq)
}

func kmerOf(t *testing.T, word string) uint64 {
	t.Helper()
	return kmer.MustEncode(word)
}

func basesOf(t *testing.T, path []Subnode, k int) string {
	t.Helper()
	return string(baseCalls(path, k))
}
