// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package positional

import (
	"fmt"
	"testing"
)

func TestTrackerUntrack(t *testing.T) {
	const k = 4
	tracker := NewTracker()

	node := kpn(t, k, "AAAA", 1, 1, true, 1)
	got := tracker.Untrack([]Subnode{FullSubnode(node)})
	if len(got) != 0 {
		t.Fatalf("untrack on empty tracker returned %d evidence, want 0", len(got))
	}

	e := NewEvidence("read1", 1, false, 1, 1)
	err := tracker.Track(e.AddSupport(node.Kmer(0), 1, 1, 1))
	if err != nil {
		t.Fatalf("unexpected error tracking support: %v", err)
	}
	got = tracker.Untrack([]Subnode{FullSubnode(node)})
	if len(got) != 1 {
		t.Fatalf("untrack returned %d evidence, want 1", len(got))
	}
	if got["read1"] != e {
		t.Errorf("untrack returned unexpected evidence set: %v", EvidenceIDs(got))
	}
}

func TestTrackerUntracksAllEvidenceNodes(t *testing.T) {
	const k = 4
	tracker := NewTracker()

	e := NewEvidence("read1", 1, false, 1, 1)
	err := tracker.Track(e.AddSupport(kmerOf(t, "AAAA"), 1, 1, 1))
	if err != nil {
		t.Fatalf("unexpected error tracking support: %v", err)
	}
	err = tracker.Track(e.AddSupport(kmerOf(t, "AAAC"), 2, 2, 1))
	if err != nil {
		t.Fatalf("unexpected error tracking support: %v", err)
	}

	probe := []Subnode{FullSubnode(kpn(t, k, "AAAA", 1, 1, true, 1))}
	got := tracker.Untrack(probe)
	if len(got) != 1 {
		t.Fatalf("untrack returned %d evidence, want 1", len(got))
	}
	// Retiring must drop the evidence's other support too.
	got = tracker.Untrack(probe)
	if len(got) != 0 {
		t.Fatalf("second untrack returned %d evidence, want 0", len(got))
	}
	got = tracker.Untrack([]Subnode{FullSubnode(kpn(t, k, "AAAC", 2, 2, true, 1))})
	if len(got) != 0 {
		t.Fatalf("untrack of retired support returned %d evidence, want 0", len(got))
	}
}

func TestTrackerIsTracked(t *testing.T) {
	tracker := NewTracker()
	e := NewEvidence("read1", 1, false, 1, 1)
	s := e.AddSupport(kmerOf(t, "AAAA"), 1, 1, 1)
	if tracker.IsTracked("read1") {
		t.Error("evidence tracked before Track")
	}
	err := tracker.Track(s)
	if err != nil {
		t.Fatalf("unexpected error tracking support: %v", err)
	}
	if !tracker.IsTracked("read1") {
		t.Error("evidence not tracked after Track")
	}
	tracker.Retire(map[string]*Evidence{"read1": e})
	if tracker.IsTracked("read1") {
		t.Error("evidence tracked after Retire")
	}
	// Retiring again is tolerated.
	tracker.Retire(map[string]*Evidence{"read1": e})
}

func TestTrackerOverlapGather(t *testing.T) {
	const k = 4
	tracker := NewTracker()
	// Supports with disjoint intervals on the same kmer.
	for i, iv := range [][2]int{{1, 5}, {10, 12}} {
		e := NewEvidence(fmt.Sprintf("read%d", i), 1, false, iv[0], iv[1])
		err := tracker.Track(e.AddSupport(kmerOf(t, "ACGT"), iv[0], iv[1], 1))
		if err != nil {
			t.Fatalf("unexpected error tracking support: %v", err)
		}
	}
	got := tracker.Support([]Subnode{FullSubnode(kpn(t, k, "ACGT", 4, 7, false, 1))})
	if len(got) != 1 || got["read0"] == nil {
		t.Errorf("gather over [4,7] returned %v, want [read0]", EvidenceIDs(got))
	}
	got = tracker.Support([]Subnode{FullSubnode(kpn(t, k, "ACGT", 5, 10, false, 1))})
	if len(got) != 2 {
		t.Errorf("gather over [5,10] returned %v, want both reads", EvidenceIDs(got))
	}
}

func TestTrackerMatchesExpected(t *testing.T) {
	const k = 4
	tracker := NewTracker()
	node := kpn(t, k, "ACGTA", 5, 9, false, 2)
	evidenceOver(t, tracker, "read1", node, 2)
	if !tracker.MatchesExpected(FullSubnode(node)) {
		t.Error("tracked weight does not match node weight")
	}
	heavy := kpn(t, k, "ACGTA", 5, 9, false, 3)
	if tracker.MatchesExpected(FullSubnode(heavy)) {
		t.Error("mismatched weight reported as matching")
	}
}
