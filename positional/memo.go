// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package positional

import (
	"container/heap"
	"fmt"
	"io"
	"sort"

	"github.com/biogo/store/llrb"

	"github.com/kortschak/contig/kmer"
)

// AnchoredScore is the score bonus granted to reference anchored paths.
// Reference k-mers are not otherwise scored, so without the bonus the
// highest weighted path would prefer tails of sequencing error over a
// path anchored to the reference. The bonus exceeds any achievable
// unanchored score.
const AnchoredScore = 1 << 30

// trav is a sub-interval of a node's first positions over which the
// best incoming predecessor and score are constant.
type trav struct {
	node      *PathNode
	low, high int
	score     int
	anchored  bool
	pred      *trav
	// origin is the first position of the path's first node, used for
	// frontier path queries.
	origin int
	valid  bool
}

func (t *trav) sameAs(low, high, score int, anchored bool, pred *trav) bool {
	return t.low == low && t.high == high && t.score == score && t.anchored == anchored && t.pred == pred
}

// candidate is a terminal piece of a trav: a sub-range not covered by
// any loaded non-reference successor. Stale candidates are recognised
// by epoch and trav validity.
type candidate struct {
	t         *trav
	low, high int
	epoch     int
}

func (c candidate) less(o candidate) bool {
	switch {
	case c.t.score != o.t.score:
		return c.t.score > o.t.score
	case c.t.node.first != o.t.node.first:
		return c.t.node.first < o.t.node.first
	case c.t.node.kmers[0] != o.t.node.kmers[0]:
		return c.t.node.kmers[0] < o.t.node.kmers[0]
	case c.t.node.id != o.t.node.id:
		return c.t.node.id < o.t.node.id
	}
	return c.low < o.low
}

type candidateHeap []candidate

func (h candidateHeap) Len() int            { return len(h) }
func (h candidateHeap) Less(i, j int) bool  { return h[i].less(h[j]) }
func (h candidateHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *candidateHeap) Push(x interface{}) { *h = append(*h, x.(candidate)) }
func (h *candidateHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

type dirtyEntry struct {
	pos int
	id  int64
}

type dirtyHeap []dirtyEntry

func (h dirtyHeap) Len() int { return len(h) }
func (h dirtyHeap) Less(i, j int) bool {
	if h[i].pos != h[j].pos {
		return h[i].pos < h[j].pos
	}
	return h[i].id < h[j].id
}
func (h dirtyHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *dirtyHeap) Push(x interface{}) { *h = append(*h, x.(dirtyEntry)) }
func (h *dirtyHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// Caller memoizes the best scoring anchored path through the loaded
// graph as a score annotated frontier over node sub-intervals. Graph
// membership changes are announced through Add and Remove; all
// operations are linearized by the Assembler.
type Caller struct {
	index         *Index
	anchoredScore int

	// memo holds, per live non-reference node, the partition of its
	// first-position interval into best-predecessor sub-intervals.
	memo map[int64][]*trav

	pending   llrb.Tree
	dirty     map[int64]int
	dirtyq    dirtyHeap
	tailDirty map[int64]bool

	candidates candidateHeap
	epoch      map[int64]int
}

// NewCaller returns a caller over the given index with the given
// anchored path bonus.
func NewCaller(index *Index, anchoredScore int) *Caller {
	return &Caller{
		index:         index,
		anchoredScore: anchoredScore,
		memo:          make(map[int64][]*trav),
		dirty:         make(map[int64]int),
		tailDirty:     make(map[int64]bool),
		epoch:         make(map[int64]int),
	}
}

// Add announces a node newly added to the graph. Memoization of the
// node and invalidation of affected paths is deferred to the next
// query.
func (c *Caller) Add(n *PathNode) {
	c.pending.Insert(keyOf(n))
	// The new node may cover previously terminal sub-intervals of its
	// predecessors.
	if !n.reference {
		for _, p := range c.index.PrevNodes(n) {
			if !p.reference {
				c.tailDirty[p.id] = true
			}
		}
	}
}

// Remove announces removal of a node from the graph. Sub-intervals
// owned by the node are purged; downstream sub-intervals that ran
// through it are invalidated and recomputed lazily.
func (c *Caller) Remove(n *PathNode) {
	c.pending.Delete(keyOf(n))
	delete(c.dirty, n.id)
	delete(c.tailDirty, n.id)
	c.epoch[n.id]++
	for _, t := range c.memo[n.id] {
		t.valid = false
	}
	delete(c.memo, n.id)
	for _, s := range c.index.NextNodes(n) {
		if s.id == n.id || s.reference {
			continue
		}
		if _, ok := c.memo[s.id]; ok {
			c.markDirty(s.id, max(s.first, n.reachStart()))
		}
	}
	if !n.reference {
		for _, p := range c.index.PrevNodes(n) {
			if p.id != n.id && !p.reference {
				c.tailDirty[p.id] = true
			}
		}
	}
}

func (c *Caller) markDirty(id int64, pos int) {
	if have, ok := c.dirty[id]; ok && have <= pos {
		return
	}
	c.dirty[id] = pos
	heap.Push(&c.dirtyq, dirtyEntry{pos: pos, id: id})
}

// advance brings the memoization up to date with all announced graph
// changes. After advance returns, every predecessor chain referenced by
// a live trav is internally consistent.
func (c *Caller) advance() {
	for c.pending.Len() != 0 {
		k := c.pending.Min().(nodeKey)
		c.pending.DeleteMin()
		n := k.node
		if c.index.Node(n.id) == nil {
			continue
		}
		if n.reference {
			// Reference nodes are not traversed but change the
			// anchored start candidates of their successors.
			for _, s := range c.index.NextNodes(n) {
				if !s.reference {
					if _, ok := c.memo[s.id]; ok {
						c.markDirty(s.id, max(s.first, n.reachStart()))
					}
				}
			}
			continue
		}
		c.markDirty(n.id, n.first)
		c.tailDirty[n.id] = true
	}
	c.drain()
	c.refreshTails()
}

func (c *Caller) drain() {
	for c.dirtyq.Len() != 0 {
		e := heap.Pop(&c.dirtyq).(dirtyEntry)
		want, ok := c.dirty[e.id]
		if !ok || want != e.pos {
			continue
		}
		delete(c.dirty, e.id)
		n := c.index.Node(e.id)
		if n == nil || n.reference {
			continue
		}
		changedLow, changed := c.recompute(n)
		if !changed {
			continue
		}
		c.tailDirty[n.id] = true
		for _, s := range c.index.NextNodes(n) {
			if s.id == n.id && changedLow+n.Length() > s.last {
				continue
			}
			if s.reference {
				continue
			}
			c.markDirty(s.id, max(s.first, changedLow+n.Length()))
		}
	}
}

type cand struct {
	low, high int
	score     int
	anchored  bool
	pred      *trav
	// predecessor identity for deterministic tie-breaks.
	predKmer uint64
	predID   int64
}

// recompute rebuilds the node's memo partition from its predecessors'
// current memos, reusing unchanged trav values so that downstream
// references stay valid. It reports the lowest changed position.
func (c *Caller) recompute(n *PathNode) (changedLow int, changed bool) {
	weight := n.TotalWeight()
	cands := []cand{{low: n.first, high: n.last, score: weight, predKmer: ^uint64(0), predID: maxInt64}}
	for _, p := range c.index.PrevNodes(n) {
		if p.reference {
			lo := max(p.reachStart(), n.first)
			hi := min(p.reachEnd(), n.last)
			if lo <= hi {
				cands = append(cands, cand{low: lo, high: hi, score: c.anchoredScore + weight, anchored: true, predKmer: p.kmers[0], predID: p.id})
			}
			continue
		}
		for _, t := range c.memo[p.id] {
			lo := max(t.low+p.Length(), n.first)
			hi := min(t.high+p.Length(), n.last)
			if lo <= hi {
				cands = append(cands, cand{low: lo, high: hi, score: t.score + weight, anchored: t.anchored, pred: t, predKmer: p.kmers[0], predID: p.id})
			}
		}
	}
	parts := partitionCands(cands, n.first, n.last)

	old := c.memo[n.id]
	travs := make([]*trav, 0, len(parts))
	changedLow = maxInt
	oi := 0
	for _, p := range parts {
		origin := p.low
		if p.pred != nil {
			origin = p.pred.origin
		}
		var reuse *trav
		for ; oi < len(old); oi++ {
			if old[oi].high < p.low {
				old[oi].valid = false
				changedLow = min(changedLow, old[oi].low)
				continue
			}
			if old[oi].sameAs(p.low, p.high, p.score, p.anchored, p.pred) && old[oi].origin == origin {
				reuse = old[oi]
				oi++
			}
			break
		}
		if reuse != nil {
			travs = append(travs, reuse)
			continue
		}
		changedLow = min(changedLow, p.low)
		travs = append(travs, &trav{
			node:     n,
			low:      p.low,
			high:     p.high,
			score:    p.score,
			anchored: p.anchored,
			pred:     p.pred,
			origin:   origin,
			valid:    true,
		})
	}
	for ; oi < len(old); oi++ {
		if !containsTrav(travs, old[oi]) {
			old[oi].valid = false
			changedLow = min(changedLow, old[oi].low)
		}
	}
	c.memo[n.id] = travs
	return changedLow, changedLow != maxInt
}

func containsTrav(travs []*trav, t *trav) bool {
	for _, v := range travs {
		if v == t {
			return true
		}
	}
	return false
}

const maxInt64 = int64(^uint64(0) >> 1)

// partitionCands computes the upper envelope of the candidate score
// intervals over [first, last]: a partition into ranges with constant
// best candidate. Ties prefer an extension over a fresh start, then the
// lowest predecessor k-mer, then the lowest predecessor id.
func partitionCands(cands []cand, first, last int) []cand {
	bounds := make([]int, 0, 2*len(cands))
	for _, cd := range cands {
		bounds = append(bounds, cd.low, cd.high+1)
	}
	sort.Ints(bounds)
	bounds = dedupInts(bounds)

	var parts []cand
	for bi := 0; bi+1 < len(bounds); bi++ {
		lo, hi := bounds[bi], bounds[bi+1]-1
		if lo < first || hi > last {
			continue
		}
		best := -1
		for i, cd := range cands {
			if cd.low > lo || hi > cd.high {
				continue
			}
			if best < 0 || betterCand(cd, cands[best]) {
				best = i
			}
		}
		if best < 0 {
			continue
		}
		cd := cands[best]
		cd.low, cd.high = lo, hi
		if len(parts) != 0 {
			prev := &parts[len(parts)-1]
			if prev.high+1 == lo && prev.score == cd.score && prev.pred == cd.pred && prev.anchored == cd.anchored && prev.predID == cd.predID {
				prev.high = cd.high
				continue
			}
		}
		parts = append(parts, cd)
	}
	return parts
}

func betterCand(a, b cand) bool {
	switch {
	case a.score != b.score:
		return a.score > b.score
	case (a.pred == nil) != (b.pred == nil):
		return a.pred != nil
	case a.predKmer != b.predKmer:
		return a.predKmer < b.predKmer
	}
	return a.predID < b.predID
}

// refreshTails recomputes the terminal candidate set for nodes whose
// memo or successor set changed.
func (c *Caller) refreshTails() {
	if len(c.candidates) > 64 && len(c.candidates) > 4*c.index.Len() {
		c.compact()
	}
	for id := range c.tailDirty {
		delete(c.tailDirty, id)
		c.epoch[id]++
		n := c.index.Node(id)
		if n == nil || n.reference {
			continue
		}
		travs, ok := c.memo[id]
		if !ok {
			continue
		}
		covered := c.coveredRanges(n)
		for _, t := range travs {
			for _, r := range subtractRanges(t.low, t.high, covered) {
				heap.Push(&c.candidates, candidate{t: t, low: r[0], high: r[1], epoch: c.epoch[id]})
			}
		}
	}
}

// coveredRanges returns the first-position ranges of n from which a
// loaded non-reference successor can extend a path.
func (c *Caller) coveredRanges(n *PathNode) [][2]int {
	var covered [][2]int
	for _, s := range c.index.NextNodes(n) {
		if s.reference {
			continue
		}
		lo := max(s.first-n.Length(), n.first)
		hi := min(s.last-n.Length(), n.last)
		if lo <= hi {
			covered = append(covered, [2]int{lo, hi})
		}
	}
	sort.Slice(covered, func(i, j int) bool { return covered[i][0] < covered[j][0] })
	return covered
}

func subtractRanges(low, high int, covered [][2]int) [][2]int {
	var out [][2]int
	at := low
	for _, r := range covered {
		if r[1] < at || r[0] > high {
			continue
		}
		if r[0] > at {
			out = append(out, [2]int{at, min(r[0]-1, high)})
		}
		at = max(at, r[1]+1)
		if at > high {
			return out
		}
	}
	if at <= high {
		out = append(out, [2]int{at, high})
	}
	return out
}

// compact drops stale candidates and epoch records for retired nodes.
func (c *Caller) compact() {
	live := c.candidates[:0]
	for _, cd := range c.candidates {
		if c.liveCandidate(cd) {
			live = append(live, cd)
		}
	}
	c.candidates = live
	heap.Init(&c.candidates)
	for id := range c.epoch {
		if c.index.Node(id) == nil {
			delete(c.epoch, id)
		}
	}
}

func (c *Caller) liveCandidate(cd candidate) bool {
	return cd.t.valid && cd.epoch == c.epoch[cd.t.node.id]
}

// BestContig returns the best scoring path that is guaranteed complete:
// no node loaded later than frontier could extend it. If the globally
// best terminal path could still be extended by future input, nothing
// is returned even when lower scoring complete paths exist.
func (c *Caller) BestContig(frontier int) []Subnode {
	c.advance()
	for c.candidates.Len() != 0 {
		top := c.candidates[0]
		if !c.liveCandidate(top) {
			heap.Pop(&c.candidates)
			continue
		}
		hi := min(top.high, frontier-top.t.node.Length()-1)
		if hi < top.low {
			return nil
		}
		return c.trace(top.t, top.low, hi)
	}
	return nil
}

// CallBestContigBefore force-calls the best path whose last node ends
// before positionBound, even if globally suboptimal, to bound the
// loaded graph width. Unlike BestContig, a path may be called here even
// when a loaded successor extends it; the bound keeps the call safe
// with respect to unloaded input.
func (c *Caller) CallBestContigBefore(frontier, positionBound int) []Subnode {
	c.advance()
	var (
		best   *trav
		bestHi int
	)
	for _, travs := range c.memo {
		for _, t := range travs {
			length := t.node.Length()
			hi := min(t.high, frontier-length-1)
			hi = min(hi, positionBound-length)
			if hi < t.low {
				continue
			}
			if best == nil || betterForced(t, best) {
				best = t
				bestHi = hi
			}
		}
	}
	if best == nil {
		return nil
	}
	return c.trace(best, best.low, bestHi)
}

func betterForced(a, b *trav) bool {
	switch {
	case a.score != b.score:
		return a.score > b.score
	case a.node.first != b.node.first:
		return a.node.first < b.node.first
	case a.node.kmers[0] != b.node.kmers[0]:
		return a.node.kmers[0] < b.node.kmers[0]
	case a.node.id != b.node.id:
		return a.node.id < b.node.id
	}
	return a.low < b.low
}

func (c *Caller) trace(t *trav, low, high int) []Subnode {
	var rev []Subnode
	for {
		rev = append(rev, Subnode{Node: t.node, Low: low, High: high})
		if t.pred == nil {
			break
		}
		low -= t.pred.node.Length()
		high -= t.pred.node.Length()
		t = t.pred
	}
	path := make([]Subnode, len(rev))
	for i, sn := range rev {
		path[len(path)-1-i] = sn
	}
	return path
}

// FrontierStart returns the earliest first start of a node owning a
// sub-interval still blocked by future input, or frontier if the
// memoization has no such frontier.
func (c *Caller) FrontierStart(frontier int) int {
	c.advance()
	start := frontier
	for _, cd := range c.candidates {
		if !c.liveCandidate(cd) {
			continue
		}
		if cd.high+cd.t.node.Length() >= frontier && cd.t.node.first < start {
			start = cd.t.node.first
		}
	}
	return start
}

// FrontierPath returns the best scoring frontier path whose origin lies
// before lookbackFloor, or nothing. It backs misassembled partial
// contig removal.
func (c *Caller) FrontierPath(frontier, lookbackFloor int) []Subnode {
	c.advance()
	best := -1
	for i, cd := range c.candidates {
		if !c.liveCandidate(cd) {
			continue
		}
		if cd.high+cd.t.node.Length() < frontier {
			continue
		}
		if cd.t.origin >= lookbackFloor {
			continue
		}
		if best < 0 || cd.less(c.candidates[best]) {
			best = i
		}
	}
	if best < 0 {
		return nil
	}
	cd := c.candidates[best]
	return c.trace(cd.t, cd.low, cd.high)
}

// ExportState writes the memoized sub-intervals as CSV for telemetry.
func (c *Caller) ExportState(w io.Writer) error {
	c.advance()
	ids := make([]int64, 0, len(c.memo))
	for id := range c.memo {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	_, err := fmt.Fprintln(w, "node,first_kmer,low,high,score,anchored,origin")
	if err != nil {
		return err
	}
	for _, id := range ids {
		for _, t := range c.memo[id] {
			_, err = fmt.Fprintf(w, "%d,%s,%d,%d,%d,%t,%d\n",
				id, kmer.Decode(t.node.kmers[0], c.index.k), t.low, t.high, t.score, t.anchored, t.origin)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// callableTuple is a comparable snapshot of a callable sub-interval.
type callableTuple struct {
	first     int
	kmer      uint64
	id        int64
	low, high int
	score     int
}

func (c *Caller) callableSet() []callableTuple {
	var set []callableTuple
	seen := make(map[callableTuple]bool)
	for _, cd := range c.candidates {
		if !c.liveCandidate(cd) {
			continue
		}
		tup := callableTuple{
			first: cd.t.node.first,
			kmer:  cd.t.node.kmers[0],
			id:    cd.t.node.id,
			low:   cd.low,
			high:  cd.high,
			score: cd.t.score,
		}
		if !seen[tup] {
			seen[tup] = true
			set = append(set, tup)
		}
	}
	sort.Slice(set, func(i, j int) bool {
		a, b := set[i], set[j]
		switch {
		case a.id != b.id:
			return a.id < b.id
		case a.low != b.low:
			return a.low < b.low
		}
		return a.high < b.high
	})
	return set
}

// CheckEquivalent verifies that the incremental memoization matches a
// freshly constructed caller replaying only Add for the current live
// node set. It backs the self-check mode.
func (c *Caller) CheckEquivalent() error {
	fresh := NewCaller(c.index, c.anchoredScore)
	c.index.Do(func(n *PathNode) bool {
		fresh.Add(n)
		return false
	})
	c.advance()
	fresh.advance()
	have := c.callableSet()
	want := fresh.callableSet()
	if len(have) != len(want) {
		return fmt.Errorf("positional: memoization mismatch: %d callable sub-intervals, want %d: %w", len(have), len(want), ErrInvariant)
	}
	for i := range have {
		if have[i] != want[i] {
			return fmt.Errorf("positional: memoization mismatch at %d: %+v != %+v: %w", i, have[i], want[i], ErrInvariant)
		}
	}
	return nil
}
