// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package positional

import (
	"fmt"
	"sort"

	"github.com/kortschak/contig/kmer"
)

// AnchorKind classifies an emitted contig by its flanking anchors.
type AnchorKind int

const (
	// Unanchored is a breakend with no reference anchor; its position
	// interval derives from the supporting evidence.
	Unanchored AnchorKind = iota
	// ForwardAnchored is a breakend anchored at its start.
	ForwardAnchored
	// BackwardAnchored is a breakend anchored at its end.
	BackwardAnchored
	// Breakpoint is anchored at both ends with residual unanchored
	// bases between.
	Breakpoint
)

func (k AnchorKind) String() string {
	switch k {
	case Unanchored:
		return "unanchored"
	case ForwardAnchored:
		return "forward-anchored"
	case BackwardAnchored:
		return "backward-anchored"
	case Breakpoint:
		return "breakpoint"
	}
	return fmt.Sprintf("AnchorKind(%d)", int(k))
}

// Contig is a called contig record.
type Contig struct {
	// Bases and Quals are the assembled sequence and per-base
	// qualities derived from k-mer weights.
	Bases []byte `json:"bases"`
	Quals []byte `json:"quals"`

	Kind AnchorKind `json:"kind"`

	ReferenceIndex int `json:"referenceIndex"`

	// StartAnchorPosition and EndAnchorPosition locate the genomic
	// anchors; the base counts give the anchored extent at each end.
	// Zero values apply to absent anchors.
	StartAnchorPosition int `json:"startAnchorPosition,omitempty"`
	StartAnchorBases    int `json:"startAnchorBases,omitempty"`
	EndAnchorPosition   int `json:"endAnchorPosition,omitempty"`
	EndAnchorBases      int `json:"endAnchorBases,omitempty"`

	// BreakendStart and BreakendEnd give the evidence derived breakend
	// interval of an unanchored contig.
	BreakendStart int `json:"breakendStart,omitempty"`
	BreakendEnd   int `json:"breakendEnd,omitempty"`

	// EvidenceIDs lists the contributing evidence, sorted.
	EvidenceIDs []string `json:"evidenceIDs"`
}

// Start returns the leftmost position attributable to the contig, used
// for ordering persisted records.
func (c *Contig) Start() int {
	switch c.Kind {
	case Unanchored:
		return c.BreakendStart
	case BackwardAnchored:
		return c.EndAnchorPosition
	default:
		return c.StartAnchorPosition
	}
}

// End returns the rightmost position attributable to the contig.
func (c *Contig) End() int {
	switch c.Kind {
	case Unanchored:
		return c.BreakendEnd
	case ForwardAnchored:
		return c.StartAnchorPosition
	default:
		return c.EndAnchorPosition
	}
}

// pathKmers flattens the path's k-mer runs.
func pathKmers(path []Subnode) []uint64 {
	var kmers []uint64
	for _, sn := range path {
		kmers = append(kmers, sn.Node.Kmers()...)
	}
	return kmers
}

func pathWeights(path []Subnode) []int {
	var weights []int
	for _, sn := range path {
		for i := 0; i < sn.Length(); i++ {
			weights = append(weights, sn.Node.Weight(i))
		}
	}
	return weights
}

func pathLength(path []Subnode) int {
	var length int
	for _, sn := range path {
		length += sn.Length()
	}
	return length
}

func pathWeight(path []Subnode) int {
	var weight int
	for _, sn := range path {
		weight += sn.Node.TotalWeight()
	}
	return weight
}

// maxQual caps derived base qualities at the Sanger printable range.
const maxQual = 93

// kmerWeightsToQuals derives per-base qualities from per-kmer weights:
// each base takes the scaled maximum weight among the k-mers covering
// it.
func kmerWeightsToQuals(k int, weights []int, scale float64) []byte {
	quals := make([]byte, len(weights)+k-1)
	for i := range quals {
		lo := max(0, i-k+1)
		hi := min(i, len(weights)-1)
		var w int
		for j := lo; j <= hi; j++ {
			if weights[j] > w {
				w = weights[j]
			}
		}
		q := int(float64(w) * scale)
		if q > maxQual {
			q = maxQual
		}
		quals[i] = byte(q)
	}
	return quals
}

// calculateBreakend derives the breakend interval of an unanchored
// contig from its evidence: the closed interval maximising the total
// quality weighted overlap of the evidence breakend intervals. Ties
// resolve to the earliest interval.
func calculateBreakend(evidence map[string]*Evidence) (low, high int) {
	type event struct {
		pos    int
		weight float64
	}
	var events []event
	for _, e := range evidence {
		lo, hi := e.Breakend()
		w := e.Quality()
		if w <= 0 {
			w = 1
		}
		events = append(events, event{pos: lo, weight: w}, event{pos: hi + 1, weight: -w})
	}
	if len(events) == 0 {
		return 0, 0
	}
	sort.Slice(events, func(i, j int) bool {
		if events[i].pos != events[j].pos {
			return events[i].pos < events[j].pos
		}
		return events[i].weight > events[j].weight
	})
	var (
		depth, best float64
		bestStart   int
		bestEnd     int
		haveBest    bool
		closedAt    int
	)
	for i, ev := range events {
		depth += ev.weight
		if i+1 < len(events) && events[i+1].pos == ev.pos {
			continue
		}
		if depth > best {
			best = depth
			bestStart = ev.pos
			haveBest = true
			closedAt = -1
		} else if haveBest && closedAt < 0 && depth < best {
			bestEnd = ev.pos - 1
			closedAt = i
		}
	}
	if !haveBest {
		return 0, 0
	}
	if closedAt < 0 {
		bestEnd = bestStart
	}
	return bestStart, bestEnd
}

func baseCalls(path []Subnode, k int) []byte {
	return kmer.BaseCalls(pathKmers(path), k)
}
