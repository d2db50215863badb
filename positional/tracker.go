// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package positional

import (
	"sort"

	"github.com/biogo/store/interval"
)

// Tracker maps evidence ids to the k-mer support nodes currently
// contributing weight to the graph. Lookup by k-mer is backed by one
// interval tree per k-mer over support end positions.
type Tracker struct {
	byEvidence map[string]*Evidence
	byKmer     map[uint64]*interval.IntTree
}

// NewTracker returns an empty evidence tracker.
func NewTracker() *Tracker {
	return &Tracker{
		byEvidence: make(map[string]*Evidence),
		byKmer:     make(map[uint64]*interval.IntTree),
	}
}

// Track records the support node under its evidence id and k-mer.
func (t *Tracker) Track(s *SupportNode) error {
	tree, ok := t.byKmer[s.kmer]
	if !ok {
		tree = &interval.IntTree{}
		t.byKmer[s.kmer] = tree
	}
	err := tree.Insert(s, false)
	if err != nil {
		return err
	}
	t.byEvidence[s.evidence.id] = s.evidence
	return nil
}

// IsTracked returns whether the given evidence id is currently tracked.
func (t *Tracker) IsTracked(id string) bool {
	_, ok := t.byEvidence[id]
	return ok
}

// Len returns the number of tracked evidence ids.
func (t *Tracker) Len() int { return len(t.byEvidence) }

// Untrack gathers every evidence whose support overlaps any k-mer
// position of the given path and retires the gathered evidence
// entirely. An empty path yields an empty set.
func (t *Tracker) Untrack(path []Subnode) map[string]*Evidence {
	evidence := t.gather(path)
	t.Retire(evidence)
	return evidence
}

// Support returns a read-only view of the evidence supporting the given
// path without retiring it.
func (t *Tracker) Support(path []Subnode) map[string]*Evidence {
	return t.gather(path)
}

func (t *Tracker) gather(path []Subnode) map[string]*Evidence {
	evidence := make(map[string]*Evidence)
	for _, sn := range path {
		for i := 0; i < sn.Length(); i++ {
			t.gatherKmer(evidence, sn.Node.Kmer(i), sn.KmerStart(i), sn.KmerEnd(i))
		}
		for _, c := range sn.Node.Collapsed() {
			t.gatherKmer(evidence, c.Kmer, sn.KmerStart(c.Offset), sn.KmerEnd(c.Offset))
		}
	}
	return evidence
}

func (t *Tracker) gatherKmer(into map[string]*Evidence, enc uint64, start, end int) {
	tree, ok := t.byKmer[enc]
	if !ok {
		return
	}
	for _, iv := range tree.Get(rangeQuery{start: start, end: end}) {
		s := iv.(*SupportNode)
		into[s.evidence.id] = s.evidence
	}
}

// Retire removes all support belonging to the given evidence from the
// tracker. Retiring evidence that is not tracked is tolerated.
func (t *Tracker) Retire(evidence map[string]*Evidence) {
	for _, e := range evidence {
		t.retire(e)
	}
}

func (t *Tracker) retire(e *Evidence) {
	if _, ok := t.byEvidence[e.id]; !ok {
		return
	}
	delete(t.byEvidence, e.id)
	for _, s := range e.supports {
		tree, ok := t.byKmer[s.kmer]
		if !ok {
			continue
		}
		tree.Delete(s, false)
		if tree.Len() == 0 {
			delete(t.byKmer, s.kmer)
		}
	}
}

// MatchesExpected confirms that the subnode's per-offset weights equal
// the sum of tracked support overlapping each offset. It backs the
// self-check mode.
func (t *Tracker) MatchesExpected(sn Subnode) bool {
	for i := 0; i < sn.Length(); i++ {
		var sum int
		tree, ok := t.byKmer[sn.Node.Kmer(i)]
		if ok {
			for _, iv := range tree.Get(rangeQuery{start: sn.KmerStart(i), end: sn.KmerEnd(i)}) {
				sum += iv.(*SupportNode).weight
			}
		}
		if sum != sn.Node.Weight(i) {
			return false
		}
	}
	return true
}

// EvidenceIDs returns the sorted ids of the given evidence set.
func EvidenceIDs(evidence map[string]*Evidence) []string {
	ids := make([]string, 0, len(evidence))
	for id := range evidence {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
