// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package positional

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/kortschak/contig/kmer"
)

// NodeRecord is the JSON wire form of an input path node. Adjacency
// refers to producer node ids of previously or subsequently delivered
// records.
type NodeRecord struct {
	ID         int64             `json:"id"`
	Kmers      []string          `json:"kmers"`
	Weights    []int             `json:"weights"`
	FirstStart int               `json:"firstStart"`
	FirstEnd   int               `json:"firstEnd"`
	Reference  bool              `json:"reference"`
	Collapsed  []CollapsedRecord `json:"collapsed,omitempty"`
	Prev       []int64           `json:"prev,omitempty"`
	Next       []int64           `json:"next,omitempty"`
	Evidence   []EvidenceRecord  `json:"evidence,omitempty"`
}

// CollapsedRecord is an alternate k-mer merged into a node.
type CollapsedRecord struct {
	Kmer   string `json:"kmer"`
	Offset int    `json:"offset"`
}

// EvidenceRecord carries evidence attached to the node record where it
// is first delivered.
type EvidenceRecord struct {
	ID            string          `json:"id"`
	Quality       float64         `json:"quality"`
	Anchored      bool            `json:"anchored,omitempty"`
	BreakendStart int             `json:"breakendStart"`
	BreakendEnd   int             `json:"breakendEnd"`
	Supports      []SupportRecord `json:"supports"`
}

// SupportRecord is a single k-mer support interval of an evidence
// record.
type SupportRecord struct {
	Kmer      string `json:"kmer"`
	LastStart int    `json:"lastStart"`
	LastEnd   int    `json:"lastEnd"`
	Weight    int    `json:"weight"`
}

// JSONSource decodes a stream of newline delimited NodeRecords into
// path nodes, resolving adjacency between records and feeding evidence
// into the tracker as it is seen.
type JSONSource struct {
	sc      *bufio.Scanner
	k       int
	tracker *Tracker

	byProducerID map[int64]*PathNode
	// pendingNext links a yielded node forward to records not yet
	// delivered.
	pendingNext map[int64][]*PathNode
	line        int
}

// NewJSONSource returns a source reading records from r at k-mer
// length k. Evidence carried by records is tracked in tracker as nodes
// are delivered.
func NewJSONSource(r io.Reader, k int, tracker *Tracker) *JSONSource {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 1<<16), 1<<24)
	return &JSONSource{
		sc:           sc,
		k:            k,
		tracker:      tracker,
		byProducerID: make(map[int64]*PathNode),
		pendingNext:  make(map[int64][]*PathNode),
	}
}

// Next implements NodeSource.
func (s *JSONSource) Next() (*PathNode, error) {
	for s.sc.Scan() {
		s.line++
		line := s.sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec NodeRecord
		err := json.Unmarshal(line, &rec)
		if err != nil {
			return nil, fmt.Errorf("positional: malformed record at line %d: %w", s.line, err)
		}
		return s.materialize(&rec)
	}
	err := s.sc.Err()
	if err != nil {
		return nil, err
	}
	return nil, io.EOF
}

func (s *JSONSource) materialize(rec *NodeRecord) (*PathNode, error) {
	kmers := make([]uint64, len(rec.Kmers))
	for i, word := range rec.Kmers {
		if len(word) != s.k {
			return nil, fmt.Errorf("positional: record %d kmer %q is not %d-mer", rec.ID, word, s.k)
		}
		enc, err := kmer.Encode([]byte(word))
		if err != nil {
			return nil, fmt.Errorf("positional: record %d: %w", rec.ID, err)
		}
		kmers[i] = enc
	}
	n, err := NewPathNode(kmers, rec.Weights, rec.FirstStart, rec.FirstEnd, rec.Reference)
	if err != nil {
		return nil, fmt.Errorf("positional: record %d: %w", rec.ID, err)
	}
	err = n.checkPath(s.k)
	if err != nil {
		return nil, fmt.Errorf("positional: record %d: %w", rec.ID, err)
	}
	for _, c := range rec.Collapsed {
		enc, err := kmer.Encode([]byte(c.Kmer))
		if err != nil {
			return nil, fmt.Errorf("positional: record %d: %w", rec.ID, err)
		}
		err = n.AddCollapsed(enc, c.Offset)
		if err != nil {
			return nil, fmt.Errorf("positional: record %d: %w", rec.ID, err)
		}
	}

	s.byProducerID[rec.ID] = n
	for _, id := range rec.Prev {
		if p, ok := s.byProducerID[id]; ok {
			p.next = addID(p.next, n.id)
			n.prev = addID(n.prev, p.id)
		}
	}
	for _, id := range rec.Next {
		if nx, ok := s.byProducerID[id]; ok {
			n.next = addID(n.next, nx.id)
			nx.prev = addID(nx.prev, n.id)
		} else {
			s.pendingNext[id] = append(s.pendingNext[id], n)
		}
	}
	for _, p := range s.pendingNext[rec.ID] {
		p.next = addID(p.next, n.id)
		n.prev = addID(n.prev, p.id)
	}
	delete(s.pendingNext, rec.ID)

	if s.tracker != nil {
		for _, er := range rec.Evidence {
			if s.tracker.IsTracked(er.ID) {
				continue
			}
			e := NewEvidence(er.ID, er.Quality, er.Anchored, er.BreakendStart, er.BreakendEnd)
			for _, sr := range er.Supports {
				enc, err := kmer.Encode([]byte(sr.Kmer))
				if err != nil {
					return nil, fmt.Errorf("positional: record %d evidence %s: %w", rec.ID, er.ID, err)
				}
				support := e.AddSupport(enc, sr.LastStart, sr.LastEnd, sr.Weight)
				err = s.tracker.Track(support)
				if err != nil {
					return nil, fmt.Errorf("positional: record %d evidence %s: %w", rec.ID, er.ID, err)
				}
			}
		}
	}
	return n, nil
}
