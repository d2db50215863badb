// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package positional

import "io"

// NodeSource delivers path nodes ordered by ascending first start.
// Next returns io.EOF when the stream is exhausted.
type NodeSource interface {
	Next() (*PathNode, error)
}

// SliceSource is a NodeSource over an in-memory node slice.
type SliceSource struct {
	nodes []*PathNode
}

// NewSliceSource returns a source yielding the given nodes in order.
func NewSliceSource(nodes []*PathNode) *SliceSource {
	return &SliceSource{nodes: nodes}
}

// Next implements NodeSource.
func (s *SliceSource) Next() (*PathNode, error) {
	if len(s.nodes) == 0 {
		return nil, io.EOF
	}
	n := s.nodes[0]
	s.nodes = s.nodes[1:]
	return n, nil
}

// peekSource wraps a NodeSource with single node lookahead.
type peekSource struct {
	src  NodeSource
	head *PathNode
	err  error
}

func newPeekSource(src NodeSource) *peekSource {
	return &peekSource{src: src}
}

func (p *peekSource) fill() {
	if p.head != nil || p.err != nil {
		return
	}
	p.head, p.err = p.src.Next()
	if p.err != nil {
		p.head = nil
	}
}

// hasNext returns whether a node is available without error.
func (p *peekSource) hasNext() bool {
	p.fill()
	return p.head != nil
}

// peek returns the next node without consuming it, or nil.
func (p *peekSource) peek() *PathNode {
	p.fill()
	return p.head
}

// next consumes and returns the next node.
func (p *peekSource) next() (*PathNode, error) {
	p.fill()
	if p.head == nil {
		return nil, p.err
	}
	n := p.head
	p.head = nil
	return n, nil
}

// error returns the stream error, nil for a clean end.
func (p *peekSource) error() error {
	if p.err == io.EOF {
		return nil
	}
	return p.err
}
