// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package positional

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"testing"
)

func testConfig() Config {
	return Config{
		K:                                 4,
		ReferenceIndex:                    0,
		FragmentSize:                      20,
		MaxReadLength:                     10,
		MaxEvidenceSupportIntervalWidth:   100,
		AnchorLength:                      2,
		MaxExpectedBreakendLengthMultiple: 3,
		RetainWidthMultiple:               8,
		FlushWidthMultiple:                4,
		QualScale:                         1,
		SelfCheck:                         true,
	}
}

func collect(t *testing.T, asm *Assembler) []*Contig {
	t.Helper()
	var contigs []*Contig
	for asm.Next() {
		contigs = append(contigs, asm.Contig())
	}
	if err := asm.Err(); err != nil {
		t.Fatalf("assembly failed: %v", err)
	}
	return contigs
}

func TestAssembleStraightLine(t *testing.T) {
	const (
		k        = 4
		perNode  = 4
		numNodes = 10
	)
	seq := uniqueSeq(t, k, perNode*numNodes+k-1)
	tracker := NewTracker()
	nodes := chainNodes(t, k, perNode, seq, 2)
	var want []string
	for i, n := range nodes {
		id := fmt.Sprintf("read%02d", i)
		evidenceOver(t, tracker, id, n, 2)
		want = append(want, id)
	}

	asm, err := NewAssembler(testConfig(), NewSliceSource(nodes), tracker)
	if err != nil {
		t.Fatalf("unexpected error constructing assembler: %v", err)
	}
	contigs := collect(t, asm)
	if len(contigs) != 1 {
		t.Fatalf("got %d contigs, want 1", len(contigs))
	}
	c := contigs[0]
	if c.Kind != Unanchored {
		t.Errorf("contig kind = %v, want unanchored", c.Kind)
	}
	if string(c.Bases) != seq {
		t.Errorf("contig bases = %q, want %q", c.Bases, seq)
	}
	if len(c.Quals) != len(seq) {
		t.Fatalf("got %d quals for %d bases", len(c.Quals), len(seq))
	}
	for i, q := range c.Quals {
		if q != 2 {
			t.Errorf("qual[%d] = %d, want 2", i, q)
			break
		}
	}
	if fmt.Sprint(c.EvidenceIDs) != fmt.Sprint(want) {
		t.Errorf("contig evidence = %v, want %v", c.EvidenceIDs, want)
	}
	if tracker.Len() != 0 {
		t.Errorf("%d evidence ids still tracked after assembly", tracker.Len())
	}
	if asm.TrackingActiveNodes() != 0 {
		t.Errorf("%d nodes still live after assembly", asm.TrackingActiveNodes())
	}
}

func TestAssembleAnchoredBranches(t *testing.T) {
	const k = 4
	refWords := []string{"AACC", "ACCA", "CCAA", "CAAC", "AACG"}
	var nodes []*PathNode
	for i, w := range refWords {
		n := kpn(t, k, w, i, i, true, 1)
		if i != 0 {
			link(nodes[i-1], n)
		}
		nodes = append(nodes, n)
	}
	t1 := kpn(t, k, "ACGC", 5, 5, false, 3)
	t2 := kpn(t, k, "ACGG", 5, 5, false, 3)
	link(nodes[len(nodes)-1], t1)
	link(nodes[len(nodes)-1], t2)

	tracker := NewTracker()
	evidenceOver(t, tracker, "alt1", t1, 3)
	evidenceOver(t, tracker, "alt2", t2, 3)
	// Reference support keeps the tracked weights consistent.
	for i, n := range nodes {
		evidenceOver(t, tracker, fmt.Sprintf("ref%d", i), n, 1)
	}

	asm, err := NewAssembler(testConfig(), NewSliceSource(append(nodes, t1, t2)), tracker)
	if err != nil {
		t.Fatalf("unexpected error constructing assembler: %v", err)
	}
	contigs := collect(t, asm)
	if len(contigs) != 2 {
		t.Fatalf("got %d contigs, want 2", len(contigs))
	}
	for i, c := range contigs {
		if c.Kind != ForwardAnchored {
			t.Errorf("contig %d kind = %v, want forward-anchored", i, c.Kind)
		}
		if c.StartAnchorPosition != 7 {
			t.Errorf("contig %d anchor position = %d, want 7", i, c.StartAnchorPosition)
		}
		if c.StartAnchorBases != 2 {
			t.Errorf("contig %d anchor bases = %d, want 2", i, c.StartAnchorBases)
		}
	}
	// Deterministic tie-break: lowest kmer first.
	if got := contigs[0].EvidenceIDs; len(got) != 1 || got[0] != "alt1" {
		t.Errorf("first contig evidence = %v, want [alt1]", got)
	}
	if got := contigs[1].EvidenceIDs; len(got) != 1 || got[0] != "alt2" {
		t.Errorf("second contig evidence = %v, want [alt2]", got)
	}
	if asm.TrackingActiveNodes() != 0 {
		t.Errorf("%d nodes still live after assembly", asm.TrackingActiveNodes())
	}
}

func TestAssembleRepeatTruncation(t *testing.T) {
	const k = 4
	n1 := kpn(t, k, "AACCGGT", 0, 0, false, 1) // AACC ACCG CCGG CGGT
	n2 := kpn(t, k, "GGTAACC", 4, 4, false, 1) // GGTA GTAA TAAC AACC
	link(n1, n2)
	tracker := NewTracker()
	evidenceOver(t, tracker, "read1", n1, 1)
	e2 := NewEvidence("read2", 1, false, 4, 5)
	err := tracker.Track(e2.AddSupport(n2.Kmer(0), 4, 4, 1))
	if err != nil {
		t.Fatalf("unexpected error tracking support: %v", err)
	}
	err = tracker.Track(e2.AddSupport(n2.Kmer(1), 5, 5, 1))
	if err != nil {
		t.Fatalf("unexpected error tracking support: %v", err)
	}

	var buf bytes.Buffer
	cfg := testConfig()
	cfg.SelfCheck = false // n2 is deliberately only partly supported.
	cfg.Logger = log.New(&buf, "", 0)
	asm, err := NewAssembler(cfg, NewSliceSource([]*PathNode{n1, n2}), tracker)
	if err != nil {
		t.Fatalf("unexpected error constructing assembler: %v", err)
	}
	contigs := collect(t, asm)
	if len(contigs) != 3 {
		t.Fatalf("got %d contigs, want 3", len(contigs))
	}
	if got := string(contigs[0].Bases); got != "AACCGGT" {
		t.Errorf("truncated contig bases = %q, want %q", got, "AACCGGT")
	}
	if got := contigs[0].EvidenceIDs; len(got) != 1 || got[0] != "read1" {
		t.Errorf("truncated contig evidence = %v, want [read1]", got)
	}
	if got := string(contigs[1].Bases); got != "GGTAACC" {
		t.Errorf("second contig bases = %q, want %q", got, "GGTAACC")
	}
	// The unsupported remainder is recovered by direct removal and
	// carries no evidence.
	if got := contigs[2].EvidenceIDs; len(got) != 0 {
		t.Errorf("unsupported contig evidence = %v, want none", got)
	}
	if !bytes.Contains(buf.Bytes(), []byte("no support")) {
		t.Error("missing warning for path with no support")
	}
	if tracker.Len() != 0 {
		t.Errorf("%d evidence ids still tracked after assembly", tracker.Len())
	}
}

func TestAssembleForcedFlush(t *testing.T) {
	const (
		k        = 4
		perNode  = 2
		numNodes = 20
	)
	seq := uniqueSeq(t, k, perNode*numNodes+k-1)
	tracker := NewTracker()
	nodes := chainNodes(t, k, perNode, seq, 1)
	want := make(map[string]int)
	for i, n := range nodes {
		id := fmt.Sprintf("read%02d", i)
		evidenceOver(t, tracker, id, n, 1)
		want[id] = 1
	}

	cfg := testConfig()
	cfg.FragmentSize = 4
	cfg.RetainWidthMultiple = 1
	cfg.FlushWidthMultiple = 1
	cfg.MaxEvidenceSupportIntervalWidth = 2
	cfg.MaxReadLength = 2
	cfg.RemoveMisassembledPartialContigs = false
	asm, err := NewAssembler(cfg, NewSliceSource(nodes), tracker)
	if err != nil {
		t.Fatalf("unexpected error constructing assembler: %v", err)
	}
	contigs := collect(t, asm)
	if len(contigs) < 2 {
		t.Fatalf("got %d contigs, want the graph width bound to force at least 2", len(contigs))
	}
	if asm.TrackingForcedCalls() == 0 {
		t.Error("no forced calls despite narrow retain/flush widths")
	}
	// Conservation: every evidence id is emitted exactly once.
	got := make(map[string]int)
	for _, c := range contigs {
		for _, id := range c.EvidenceIDs {
			got[id]++
		}
	}
	if len(got) != len(want) {
		t.Errorf("emitted %d distinct evidence ids, want %d", len(got), len(want))
	}
	for id, n := range got {
		if n != 1 {
			t.Errorf("evidence %s emitted %d times, want once", id, n)
		}
	}
	if tracker.Len() != 0 {
		t.Errorf("%d evidence ids still tracked after assembly", tracker.Len())
	}
}

func TestAssembleReferenceAlleleDiscarded(t *testing.T) {
	const k = 4
	a1 := kpn(t, k, "AACC", 0, 0, true, 1)
	a2 := kpn(t, k, "ACCA", 1, 1, true, 1)
	v := kpn(t, k, "CCAT", 2, 2, false, 1)
	b1 := kpn(t, k, "CATG", 3, 3, true, 1)
	b2 := kpn(t, k, "ATGG", 4, 4, true, 1)
	all := []*PathNode{a1, a2, v, b1, b2}
	for i := 1; i < len(all); i++ {
		link(all[i-1], all[i])
	}
	tracker := NewTracker()
	evidenceOver(t, tracker, "alt", v, 1)
	for i, n := range []*PathNode{a1, a2, b1, b2} {
		evidenceOver(t, tracker, fmt.Sprintf("ref%d", i), n, 1)
	}

	cfg := testConfig()
	cfg.AnchorLength = 10
	asm, err := NewAssembler(cfg, NewSliceSource(all), tracker)
	if err != nil {
		t.Fatalf("unexpected error constructing assembler: %v", err)
	}
	contigs := collect(t, asm)
	if len(contigs) != 0 {
		t.Fatalf("got %d contigs, want reference allele discarded", len(contigs))
	}
	if asm.TrackingContigsCalled() != 1 {
		t.Errorf("contigs called = %d, want 1", asm.TrackingContigsCalled())
	}
	if tracker.IsTracked("alt") {
		t.Error("reference allele evidence not retired")
	}
}

func TestAssembleEvidenceOverreachWarns(t *testing.T) {
	const k = 4
	near := kpn(t, k, "AACC", 0, 0, false, 1)
	far := kpn(t, k, "GGTT", 100, 100, false, 1)
	tracker := NewTracker()
	e := NewEvidence("read1", 1, false, 0, 0)
	err := tracker.Track(e.AddSupport(near.Kmer(0), 0, 150, 1))
	if err != nil {
		t.Fatalf("unexpected error tracking support: %v", err)
	}
	evidenceOver(t, tracker, "read2", far, 1)

	var buf bytes.Buffer
	cfg := testConfig()
	cfg.MaxEvidenceSupportIntervalWidth = 10
	cfg.SelfCheck = false // the overreaching support widens the node weight sum
	cfg.Logger = log.New(&buf, "", 0)
	asm, err := NewAssembler(cfg, NewSliceSource([]*PathNode{near, far}), tracker)
	if err != nil {
		t.Fatalf("unexpected error constructing assembler: %v", err)
	}
	contigs := collect(t, asm)
	if len(contigs) != 2 {
		t.Fatalf("got %d contigs, want 2", len(contigs))
	}
	if !bytes.Contains(buf.Bytes(), []byte("beyond input")) {
		t.Error("missing warning for evidence extending beyond loaded input")
	}
	if tracker.IsTracked("read1") {
		t.Error("overreaching evidence not retired")
	}
}

func TestAssembleOutOfOrderInputFatal(t *testing.T) {
	const k = 4
	tracker := NewTracker()
	a := kpn(t, k, "AACC", 5, 5, false, 1)
	b := kpn(t, k, "GGTT", 3, 3, false, 1)
	evidenceOver(t, tracker, "read1", a, 1)
	evidenceOver(t, tracker, "read2", b, 1)
	asm, err := NewAssembler(testConfig(), NewSliceSource([]*PathNode{a, b}), tracker)
	if err != nil {
		t.Fatalf("unexpected error constructing assembler: %v", err)
	}
	for asm.Next() {
	}
	if err := asm.Err(); !errors.Is(err, ErrOutOfOrder) {
		t.Errorf("Err() = %v, want ErrOutOfOrder", err)
	}
}

func TestNewAssemblerConfigFailure(t *testing.T) {
	_, err := NewAssembler(Config{}, NewSliceSource(nil), nil)
	if !errors.Is(err, ErrConfig) {
		t.Errorf("NewAssembler error = %v, want ErrConfig", err)
	}
	cfg := testConfig()
	cfg.K = 33
	_, err = NewAssembler(cfg, NewSliceSource(nil), nil)
	if !errors.Is(err, ErrConfig) {
		t.Errorf("NewAssembler error for oversize k = %v, want ErrConfig", err)
	}
}
