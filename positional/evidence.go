// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package positional

import (
	"github.com/biogo/store/interval"
)

// supportIDs issues identities for support nodes; the interval tree
// backing the evidence tracker requires stored intervals to carry a
// unique id.
var supportIDs uintptr

// Evidence is a read or read pair contributing k-mer support to the
// graph, identified by an opaque evidence id. An Evidence owns its
// support nodes; the tracker retires them as a unit.
type Evidence struct {
	id       string
	quality  float64
	anchored bool

	// breakendLow and breakendHigh give the evidence's own breakend
	// interval, used to derive positions for unanchored contigs.
	breakendLow, breakendHigh int

	supports []*SupportNode
}

// NewEvidence returns evidence with the given id, quality and breakend
// interval. The anchored flag records whether the evidence is itself
// reference anchored.
func NewEvidence(id string, quality float64, anchored bool, breakendLow, breakendHigh int) *Evidence {
	return &Evidence{
		id:           id,
		quality:      quality,
		anchored:     anchored,
		breakendLow:  breakendLow,
		breakendHigh: breakendHigh,
	}
}

// ID returns the evidence id.
func (e *Evidence) ID() string { return e.id }

// Quality returns the evidence quality score.
func (e *Evidence) Quality() float64 { return e.quality }

// IsAnchored returns whether the evidence is reference anchored.
func (e *Evidence) IsAnchored() bool { return e.anchored }

// Breakend returns the evidence's breakend interval.
func (e *Evidence) Breakend() (low, high int) { return e.breakendLow, e.breakendHigh }

// Supports returns the evidence's k-mer support nodes.
func (e *Evidence) Supports() []*SupportNode { return e.supports }

// AddSupport records a single k-mer support with the given last-kmer
// interval and weight, returning the created node.
func (e *Evidence) AddSupport(enc uint64, lastStart, lastEnd, weight int) *SupportNode {
	supportIDs++
	s := &SupportNode{
		kmer:      enc,
		lastStart: lastStart,
		lastEnd:   lastEnd,
		weight:    weight,
		evidence:  e,
		uid:       supportIDs,
	}
	e.supports = append(e.supports, s)
	return s
}

// SupportNode is a single k-mer of evidence support over a closed
// positional interval. It is created when evidence is ingested and
// destroyed only when the tracker retires its evidence.
type SupportNode struct {
	kmer      uint64
	lastStart int
	lastEnd   int
	weight    int
	evidence  *Evidence
	uid       uintptr
}

// Kmer returns the supported k-mer.
func (s *SupportNode) Kmer() uint64 { return s.kmer }

// LastStart and LastEnd bound the closed interval of the support's
// k-mer end position.
func (s *SupportNode) LastStart() int { return s.lastStart }
func (s *SupportNode) LastEnd() int   { return s.lastEnd }

// Weight returns the support weight.
func (s *SupportNode) Weight() int { return s.weight }

// Evidence returns the owning evidence.
func (s *SupportNode) Evidence() *Evidence { return s.evidence }

// Range, Overlap and ID satisfy interval.IntInterface. Ranges are
// stored half open.
func (s *SupportNode) Range() interval.IntRange {
	return interval.IntRange{Start: s.lastStart, End: s.lastEnd + 1}
}

func (s *SupportNode) Overlap(b interval.IntRange) bool {
	return s.lastStart < b.End && b.Start <= s.lastEnd
}

func (s *SupportNode) ID() uintptr { return s.uid }

// rangeQuery is an interval tree query over a closed position interval.
type rangeQuery struct {
	start, end int
}

func (q rangeQuery) Range() interval.IntRange {
	return interval.IntRange{Start: q.start, End: q.end + 1}
}

func (q rangeQuery) Overlap(b interval.IntRange) bool {
	return q.start < b.End && b.Start <= q.end
}

func (q rangeQuery) ID() uintptr { return 0 }
