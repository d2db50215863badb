// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package positional

import (
	"fmt"
	"sort"
)

// Assembler is the streaming contig caller orchestrator. It loads path
// nodes from its source in batches, keeps the memoized caller and
// evidence tracker consistent with the loaded graph, and emits called
// contigs in streaming order.
//
// The Assembler exposes a single pass scanner: Next advances to the
// next contig, Contig returns it and Err reports the terminal error, if
// any, once Next has returned false. All graph mutation happens between
// pulls; the model is single threaded and pull driven.
type Assembler struct {
	cfg Config

	src     *peekSource
	index   *Index
	tracker *Tracker
	caller  *Caller

	called  []*Contig
	current *Contig

	lastStart     int
	consumed      int64
	contigsCalled int
	forcedCalls   int
	stats         ContigStats

	err  error
	done bool
}

// NewAssembler returns an assembler over the given source and tracker.
// The tracker must already hold, or be fed with, the evidence backing
// the source's nodes. A nil tracker is replaced with an empty one.
// Configuration failures are reported here and are fatal.
func NewAssembler(cfg Config, src NodeSource, tracker *Tracker) (*Assembler, error) {
	err := cfg.verify()
	if err != nil {
		return nil, err
	}
	if tracker == nil {
		tracker = NewTracker()
	}
	index := NewIndex(cfg.K)
	return &Assembler{
		cfg:       cfg,
		src:       newPeekSource(src),
		index:     index,
		tracker:   tracker,
		caller:    NewCaller(index, AnchoredScore),
		lastStart: minPosition,
	}, nil
}

// Next advances the assembler to the next called contig, reporting
// whether one is available. When Next returns false, Err distinguishes
// a clean end of stream from a fatal error.
func (a *Assembler) Next() bool {
	if a.err != nil || a.done {
		return false
	}
	a.ensureCalled()
	if a.err != nil || len(a.called) == 0 {
		return false
	}
	a.current = a.called[0]
	a.called = a.called[1:]
	return true
}

// Contig returns the contig reached by the last call to Next.
func (a *Assembler) Contig() *Contig { return a.current }

// Err returns the first fatal error encountered, or nil.
func (a *Assembler) Err() error {
	if a.err != nil {
		return a.err
	}
	return a.src.error()
}

// Close releases all live graph and tracker state. No contig is
// emitted after Close.
func (a *Assembler) Close() error {
	a.done = true
	a.called = nil
	a.index = NewIndex(a.cfg.K)
	a.caller = NewCaller(a.index, AnchoredScore)
	a.tracker = NewTracker()
	return nil
}

func (a *Assembler) nextPosition() int {
	n := a.src.peek()
	if n == nil {
		return maxInt
	}
	return n.FirstStart()
}

func (a *Assembler) warnf(format string, args ...interface{}) {
	if a.cfg.Logger != nil {
		a.cfg.Logger.Printf(format, args...)
	}
}

func (a *Assembler) ensureCalled() {
	for len(a.called) == 0 && a.err == nil {
		// Safety calling to keep the loaded graph width bounded.
		if a.index.NonReferenceLen() != 0 {
			loadedStart := a.index.FirstNonReferenceStart()
			frontierStart := a.caller.FrontierStart(a.nextPosition())
			if loadedStart+a.cfg.retainWidth()+a.cfg.flushWidth() < frontierStart {
				for {
					forced := a.caller.CallBestContigBefore(a.nextPosition(), frontierStart-a.cfg.flushWidth())
					if forced == nil {
						break
					}
					a.forcedCalls++
					a.err = a.callContig(forced)
					if a.err != nil {
						return
					}
				}
				a.err = a.flushReferenceNodes()
				if a.err != nil {
					return
				}
				if len(a.called) != 0 {
					break
				}
			}
		}

		best := a.caller.BestContig(a.nextPosition())
		if best != nil {
			a.err = a.callContig(best)
			if a.err != nil {
				return
			}
		}
		if len(a.called) == 0 && best == nil {
			if a.src.hasNext() {
				a.err = a.advanceUnderlying()
				if a.err != nil {
					return
				}
				if a.cfg.RemoveMisassembledPartialContigs {
					a.err = a.removeMisassembledPartialContig()
					if a.err != nil {
						return
					}
				}
				a.err = a.flushReferenceNodes()
				if a.err != nil {
					return
				}
			} else {
				if err := a.src.error(); err != nil {
					a.err = err
					return
				}
				a.err = a.flushReferenceNodes()
				if a.err != nil {
					return
				}
				if a.index.Len() != 0 {
					a.warnf("positional: non-empty graph with no contigs called: %d nodes remain", a.index.Len())
				}
				a.done = true
				return
			}
		}
	}
	if a.err == nil && a.cfg.SelfCheck {
		a.err = a.verify()
	}
}

// advanceUnderlying loads all input within the evidence support reach
// of the next position. Batching reduces memoization frontier
// advancement overhead.
func (a *Assembler) advanceUnderlying() error {
	loadUntil := a.nextPosition()
	if loadUntil < maxInt {
		loadUntil += a.cfg.MaxEvidenceSupportIntervalWidth
	}
	return a.advanceUnderlyingUntil(loadUntil)
}

func (a *Assembler) advanceUnderlyingUntil(loadUntil int) error {
	for a.src.hasNext() && a.nextPosition() <= loadUntil {
		n, err := a.src.next()
		if err != nil {
			return err
		}
		if n.FirstStart() < a.lastStart {
			return fmt.Errorf("positional: node %d at %d loaded after position %d: %w", n.ID(), n.FirstStart(), a.lastStart, ErrOutOfOrder)
		}
		a.lastStart = n.FirstStart()
		if a.cfg.SelfCheck && !a.tracker.MatchesExpected(FullSubnode(n)) {
			return fmt.Errorf("positional: node %d weight does not match tracked evidence: %w", n.ID(), ErrInvariant)
		}
		err = a.index.Add(n)
		if err != nil {
			return err
		}
		a.caller.Add(n)
		a.consumed++
	}
	if err := a.src.error(); err != nil {
		return err
	}
	return nil
}

// flushReferenceNodes removes reference nodes that can no longer
// participate in any contig or contig anchor sequence.
func (a *Assembler) flushReferenceNodes() error {
	position := a.nextPosition()
	if a.index.NonReferenceLen() != 0 {
		position = a.index.FirstNonReferenceStart()
	}
	// First position guaranteed not to be involved in any contig
	// anchor sequence.
	position -= a.cfg.MaxEvidenceSupportIntervalWidth + a.cfg.maxContigAnchorLength()
	if a.index.Len() == 0 || a.index.FirstStart() >= position {
		return nil
	}
	var flush []Subnode
	a.index.DoBefore(position, func(n *PathNode) bool {
		if n.IsReference() {
			flush = append(flush, FullSubnode(n))
		}
		return false
	})
	if len(flush) == 0 {
		return nil
	}
	evidence := a.tracker.Untrack(flush)
	if len(evidence) != 0 {
		err := a.removeEvidence(evidence)
		if err != nil {
			return err
		}
	}
	// Reference nodes with no tracked evidence are removed directly.
	for _, sn := range flush {
		if a.index.Node(sn.Node.ID()) != nil {
			a.removeNode(sn.Node)
		}
	}
	return nil
}

// removeMisassembledPartialContig removes frontier paths longer than
// the maximum theoretical breakend contig length.
func (a *Assembler) removeMisassembledPartialContig() error {
	loadedBefore := a.nextPosition()
	misassembly := a.caller.FrontierPath(loadedBefore, loadedBefore-a.cfg.misassemblyLength())
	if misassembly == nil {
		return nil
	}
	// Only remove nodes that cannot contain a read that also
	// contributes to an unloaded node.
	var safe []Subnode
	for _, sn := range misassembly {
		if sn.LastEnd()+a.cfg.MaxEvidenceSupportIntervalWidth < loadedBefore {
			safe = append(safe, sn)
		}
	}
	evidence := a.tracker.Untrack(safe)
	if len(evidence) == 0 {
		return nil
	}
	return a.removeEvidence(evidence)
}

func (a *Assembler) callContig(raw []Subnode) error {
	if raw == nil {
		return nil
	}
	contig := raw
	if ContainsKmerRepeat(contig) {
		// The called path may break at the repeated kmer; evidence is
		// re-placed at the occurrence it best supports.
		contig = FixMisassembly(contig, a.tracker.Support(contig))
	}
	if len(contig) == 0 {
		// Nothing of the called path survives re-segmentation. Retire
		// its evidence so assembly can progress.
		a.warnf("positional: called path at %d fully truncated by misassembly fix", raw[0].Low)
		evidence := a.tracker.Untrack(raw)
		if len(evidence) == 0 {
			for _, sn := range raw {
				a.removeNode(sn.Node)
			}
			return nil
		}
		return a.removeEvidence(evidence)
	}
	evidence := a.tracker.Untrack(contig)

	targetAnchorLength := max(pathLength(contig), a.cfg.AnchorLength)
	anchorLimit := targetAnchorLength + a.cfg.MaxEvidenceSupportIntervalWidth
	startingAnchor := StartAnchor(a.index, contig[0], anchorLimit)
	// Load far enough ahead that the forward anchor traversal is fully
	// defined.
	last := contig[len(contig)-1]
	err := a.advanceUnderlyingUntil(last.LastEnd() + targetAnchorLength + a.cfg.MaxEvidenceSupportIntervalWidth)
	if err != nil {
		return err
	}
	endingAnchor := EndAnchor(a.index, last, anchorLimit)

	full := make([]Subnode, 0, len(startingAnchor)+len(contig)+len(endingAnchor))
	full = append(full, startingAnchor...)
	full = append(full, contig...)
	full = append(full, endingAnchor...)

	k := a.cfg.K
	bases := baseCalls(full, k)
	quals := kmerWeightsToQuals(k, pathWeights(full), a.cfg.qualScale())

	var (
		startAnchorPosition, endAnchorPosition   int
		startAnchorBaseCount, endAnchorBaseCount int
	)
	if len(startingAnchor) != 0 {
		// Left aligned anchor position; anchoring is a single base
		// wide so alignment choice does not matter.
		startAnchorPosition = startingAnchor[len(startingAnchor)-1].LastStart() + k - 1
		startAnchorBaseCount = pathLength(startingAnchor) + k - 1
	}
	if len(endingAnchor) != 0 {
		endAnchorPosition = endingAnchor[0].Low
		endAnchorBaseCount = pathLength(endingAnchor) + k - 1
	}
	startTrim := max(0, startAnchorBaseCount-targetAnchorLength)
	endTrim := max(0, endAnchorBaseCount-targetAnchorLength)
	bases = bases[startTrim : len(bases)-endTrim]
	quals = quals[startTrim : len(quals)-endTrim]

	ids := EvidenceIDs(evidence)
	var called *Contig
	switch {
	case len(startingAnchor) == 0 && len(endingAnchor) == 0:
		low, high := calculateBreakend(evidence)
		called = &Contig{
			Bases:          bases,
			Quals:          quals,
			Kind:           Unanchored,
			ReferenceIndex: a.cfg.ReferenceIndex,
			BreakendStart:  low,
			BreakendEnd:    high,
			EvidenceIDs:    ids,
		}
		for _, e := range evidence {
			if e.IsAnchored() {
				a.warnf("positional: unanchored assembly at %d contains anchored evidence %s", contig[0].Low, e.ID())
				break
			}
		}
	case len(startingAnchor) == 0:
		called = &Contig{
			Bases:             bases,
			Quals:             quals,
			Kind:              BackwardAnchored,
			ReferenceIndex:    a.cfg.ReferenceIndex,
			EndAnchorPosition: endAnchorPosition,
			EndAnchorBases:    endAnchorBaseCount - endTrim,
			EvidenceIDs:       ids,
		}
	case len(endingAnchor) == 0:
		called = &Contig{
			Bases:               bases,
			Quals:               quals,
			Kind:                ForwardAnchored,
			ReferenceIndex:      a.cfg.ReferenceIndex,
			StartAnchorPosition: startAnchorPosition,
			StartAnchorBases:    startAnchorBaseCount - startTrim,
			EvidenceIDs:         ids,
		}
	default:
		if startAnchorBaseCount+endAnchorBaseCount >= len(quals) {
			// No unanchored bases: a reference allele, not emitted.
			called = nil
		} else {
			called = &Contig{
				Bases:               bases,
				Quals:               quals,
				Kind:                Breakpoint,
				ReferenceIndex:      a.cfg.ReferenceIndex,
				StartAnchorPosition: startAnchorPosition,
				StartAnchorBases:    startAnchorBaseCount - startTrim,
				EndAnchorPosition:   endAnchorPosition,
				EndAnchorBases:      endAnchorBaseCount - endTrim,
				EvidenceIDs:         ids,
			}
		}
	}

	a.stats = ContigStats{
		ContigNodes:         len(contig),
		TruncatedNodes:      len(raw) - len(contig),
		ContigStartPosition: contig[0].Low,
		StartAnchorNodes:    len(startingAnchor),
		EndAnchorNodes:      len(endingAnchor),
		Score:               pathWeight(contig),
		EvidenceCount:       len(evidence),
	}
	a.export(called, full)

	// Remove all evidence contributing to this assembly from the
	// graph.
	if len(evidence) != 0 {
		err = a.removeEvidence(evidence)
		if err != nil {
			return err
		}
	} else {
		a.warnf("positional: found path with no support at %d; recovering by direct node removal", contig[0].Low)
		for _, sn := range contig {
			a.removeNode(sn.Node)
		}
	}
	a.contigsCalled++
	if called != nil {
		a.called = append(a.called, called)
	}
	return nil
}

// export feeds the optional telemetry sinks. Sink failure is soft: the
// failing sink is logged and disabled.
func (a *Assembler) export(called *Contig, full []Subnode) {
	if called == nil {
		return
	}
	if a.cfg.Graph != nil {
		err := a.cfg.Graph(a.index, full)
		if err != nil {
			a.warnf("positional: disabling graph sink: %v", err)
			a.cfg.Graph = nil
		}
	}
	if a.cfg.CallerState != nil {
		err := a.cfg.CallerState(a.caller)
		if err != nil {
			a.warnf("positional: disabling caller state sink: %v", err)
			a.cfg.CallerState = nil
		}
	}
	if a.cfg.ContigStats != nil {
		err := a.cfg.ContigStats(a.stats)
		if err != nil {
			a.warnf("positional: disabling contig stats sink: %v", err)
			a.cfg.ContigStats = nil
		}
	}
}

// removeEvidence subtracts the weight contributed by the given
// evidence from the graph, splitting affected nodes as required.
func (a *Assembler) removeEvidence(evidence map[string]*Evidence) error {
	toRemove := make(map[int64][][]*SupportNode)
	for _, id := range EvidenceIDs(evidence) {
		e := evidence[id]
		for _, s := range e.Supports() {
			if s.LastEnd() >= a.nextPosition() {
				// Soft: the support is retired regardless.
				a.warnf("positional: evidence %s extends to %d beyond input at %d", e.ID(), s.LastEnd(), a.nextPosition())
			}
			for _, occ := range a.index.Lookup(s.Kmer()) {
				n := occ.Node
				if s.LastStart() <= n.FirstEnd()+occ.Offset && n.FirstStart()+occ.Offset <= s.LastEnd() {
					lists := toRemove[n.ID()]
					for len(lists) <= occ.Offset {
						lists = append(lists, nil)
					}
					lists[occ.Offset] = append(lists[occ.Offset], s)
					toRemove[n.ID()] = lists
				}
			}
		}
	}
	ids := make([]int64, 0, len(toRemove))
	for id := range toRemove {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		a.caller.Remove(a.index.Node(id))
	}
	for _, id := range ids {
		n := a.index.Node(id)
		if n == nil {
			continue
		}
		replacements, err := a.index.RemoveWeight(n, toRemove[id])
		if err != nil {
			return err
		}
		for _, r := range replacements {
			if a.cfg.SelfCheck && !a.tracker.MatchesExpected(FullSubnode(r)) {
				return fmt.Errorf("positional: replacement node %d weight does not match tracked evidence: %w", r.ID(), ErrInvariant)
			}
			a.caller.Add(r)
		}
	}
	return nil
}

func (a *Assembler) removeNode(n *PathNode) {
	a.caller.Remove(n)
	a.index.Remove(n)
	a.index.Unlink(n)
}

// verify runs the self-check assertions: memoization equivalence and
// node interval disjointness. Agreement of node weights with tracked
// evidence is checked separately as nodes are loaded and replaced.
func (a *Assembler) verify() error {
	err := a.index.CheckDisjoint()
	if err != nil {
		return err
	}
	return a.caller.CheckEquivalent()
}

// Tracking accessors report assembly progress for telemetry.

// TrackingActiveNodes returns the number of live nodes.
func (a *Assembler) TrackingActiveNodes() int { return a.index.Len() }

// TrackingMaxKmerActiveNodeCount returns the maximum number of live
// occurrences of any single k-mer.
func (a *Assembler) TrackingMaxKmerActiveNodeCount() int { return a.index.MaxKmerOccupancy() }

// TrackingUnderlyingConsumed returns the number of input nodes loaded.
func (a *Assembler) TrackingUnderlyingConsumed() int64 { return a.consumed }

// TrackingInputPosition returns the next input position.
func (a *Assembler) TrackingInputPosition() int { return a.nextPosition() }

// TrackingFirstPosition returns the first loaded position, or maxInt.
func (a *Assembler) TrackingFirstPosition() int { return a.index.FirstStart() }

// TrackingContigsCalled returns the number of contigs called,
// including discarded reference alleles.
func (a *Assembler) TrackingContigsCalled() int { return a.contigsCalled }

// TrackingForcedCalls returns the number of width bounding forced
// calls.
func (a *Assembler) TrackingForcedCalls() int { return a.forcedCalls }

// TrackingLastContig returns the stats of the last called contig.
func (a *Assembler) TrackingLastContig() ContigStats { return a.stats }
