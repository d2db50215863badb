// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package positional

// ContainsKmerRepeat returns whether the same k-mer, including
// collapsed alternates, occurs at more than one offset along the path.
func ContainsKmerRepeat(path []Subnode) bool {
	seen := make(map[uint64]bool)
	for _, sn := range path {
		for i := 0; i < sn.Length(); i++ {
			if seen[sn.Node.Kmer(i)] {
				return true
			}
			seen[sn.Node.Kmer(i)] = true
		}
		for _, c := range sn.Node.Collapsed() {
			if seen[c.Kmer] {
				return true
			}
			seen[c.Kmer] = true
		}
	}
	return false
}

// pathSlot is one k-mer offset along a concatenated path.
type pathSlot struct {
	low, high int
}

// FixMisassembly re-segments a called path containing a k-mer repeat.
// Each supporting evidence piece is greedily re-placed at the repeat
// occurrence minimizing positional misalignment; pieces with no
// consistent placement are dropped. The path is truncated to the
// longest prefix of subnodes whose every k-mer retains support, which
// may be empty.
func FixMisassembly(path []Subnode, support map[string]*Evidence) []Subnode {
	slots := make([]pathSlot, 0)
	occurrences := make(map[uint64][]int)
	for _, sn := range path {
		for i := 0; i < sn.Length(); i++ {
			slot := len(slots)
			slots = append(slots, pathSlot{low: sn.KmerStart(i), high: sn.KmerEnd(i)})
			occurrences[sn.Node.Kmer(i)] = append(occurrences[sn.Node.Kmer(i)], slot)
		}
	}
	for si, sn := range path {
		base := slotBase(path, si)
		for _, c := range sn.Node.Collapsed() {
			occurrences[c.Kmer] = append(occurrences[c.Kmer], base+c.Offset)
		}
	}

	covered := make([]bool, len(slots))
	for _, e := range support {
		placed := placeEvidence(e, slots, occurrences)
		for _, slot := range placed {
			covered[slot] = true
		}
	}

	var keep int
	slot := 0
done:
	for si, sn := range path {
		for i := 0; i < sn.Length(); i++ {
			if !covered[slot] {
				break done
			}
			slot++
		}
		keep = si + 1
	}
	return path[:keep]
}

func slotBase(path []Subnode, subnode int) int {
	var base int
	for _, sn := range path[:subnode] {
		base += sn.Length()
	}
	return base
}

// placeEvidence chooses a single alignment of the evidence against the
// path: the shift placing its first matching support at the occurrence
// with least positional misalignment. The remaining supports that the
// shift places on the path must agree with it; otherwise the evidence is
// dropped. Supports shifted beyond either end of the path are ignored.
func placeEvidence(e *Evidence, slots []pathSlot, occurrences map[uint64][]int) []int {
	supports := e.Supports()
	anchorIdx := -1
	anchorSlot := -1
	for i, s := range supports {
		occs := occurrences[s.Kmer()]
		if len(occs) == 0 {
			continue
		}
		best, bestDist := -1, maxInt
		for _, slot := range occs {
			d := misalignment(s, slots[slot])
			if d < bestDist {
				best, bestDist = slot, d
			}
		}
		anchorIdx, anchorSlot = i, best
		break
	}
	if anchorIdx < 0 {
		return nil
	}
	var placed []int
	for i, s := range supports {
		slot := anchorSlot + (i - anchorIdx)
		if slot < 0 || slot >= len(slots) {
			continue
		}
		if !kmerAtSlot(s.Kmer(), slot, occurrences) {
			return nil
		}
		placed = append(placed, slot)
	}
	return placed
}

func kmerAtSlot(enc uint64, slot int, occurrences map[uint64][]int) bool {
	for _, o := range occurrences[enc] {
		if o == slot {
			return true
		}
	}
	return false
}

// misalignment is the positional distance between a support interval
// and a path slot interval, zero when they overlap.
func misalignment(s *SupportNode, slot pathSlot) int {
	if s.LastStart() <= slot.high && slot.low <= s.LastEnd() {
		return 0
	}
	if s.LastEnd() < slot.low {
		return slot.low - s.LastEnd()
	}
	return s.LastStart() - slot.high
}
