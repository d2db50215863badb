// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package positional

import (
	"fmt"
	"log"

	"github.com/kortschak/contig/kmer"
)

// Config holds the assembly parameters. All required fields are
// validated when the Assembler is constructed; a missing or malformed
// option is fatal at that point.
type Config struct {
	// K is the de Bruijn graph k-mer size.
	K int

	// ReferenceIndex identifies the reference sequence the input
	// positions refer to. It is attached to emitted contigs.
	ReferenceIndex int

	// FragmentSize is the maximum concordant fragment size. The
	// retain, flush and misassembly widths scale from it.
	FragmentSize int

	// MaxReadLength is the longest input read contributing evidence.
	MaxReadLength int

	// MaxEvidenceSupportIntervalWidth is the maximum distance from the
	// first position of the first k-mer of a read to the last position
	// of its last k-mer: read length plus the max-min concordant
	// fragment size in the worst case.
	MaxEvidenceSupportIntervalWidth int

	// AnchorLength is the minimum number of reference anchor bases to
	// assemble. A longer breakend forces anchors at least as long as
	// the breakend itself.
	AnchorLength int

	// MaxExpectedBreakendLengthMultiple bounds the expected length of
	// a breakend assembly as a multiple of FragmentSize. Longer
	// assemblies are treated as misassembled.
	MaxExpectedBreakendLengthMultiple float64

	// RetainWidthMultiple and FlushWidthMultiple bound the positional
	// extent of the loaded graph as multiples of FragmentSize. When the
	// loaded width is exceeded, contigs are force-called even when
	// suboptimal.
	RetainWidthMultiple float64
	FlushWidthMultiple  float64

	// RemoveMisassembledPartialContigs enables removal of partial
	// contigs exceeding the maximum expected breakend length during
	// assembly rather than after it.
	RemoveMisassembledPartialContigs bool

	// QualScale scales k-mer weights to per-base qualities. Zero means
	// unscaled.
	QualScale float64

	// SelfCheck enables graph and memoization sanity checking after
	// mutation. Expensive; for debugging only.
	SelfCheck bool

	// Logger receives soft inconsistency warnings. Nil disables
	// warning output.
	Logger *log.Logger

	// ContigStats, CallerState and Graph are optional telemetry sinks
	// invoked per emitted contig. A failing sink is logged and
	// disabled; sinks have no effect on assembly output.
	ContigStats func(ContigStats) error
	CallerState func(*Caller) error
	Graph       func(*Index, []Subnode) error
}

func (c *Config) verify() error {
	if c.K < 1 || c.K > kmer.MaxK {
		return fmt.Errorf("positional: k %d out of range [1,%d]: %w", c.K, kmer.MaxK, ErrConfig)
	}
	if c.ReferenceIndex < 0 {
		return fmt.Errorf("positional: negative reference index %d: %w", c.ReferenceIndex, ErrConfig)
	}
	if c.FragmentSize <= 0 {
		return fmt.Errorf("positional: non-positive fragment size %d: %w", c.FragmentSize, ErrConfig)
	}
	if c.MaxReadLength <= 0 {
		return fmt.Errorf("positional: non-positive max read length %d: %w", c.MaxReadLength, ErrConfig)
	}
	if c.MaxEvidenceSupportIntervalWidth <= 0 {
		return fmt.Errorf("positional: non-positive evidence support width %d: %w", c.MaxEvidenceSupportIntervalWidth, ErrConfig)
	}
	if c.AnchorLength <= 0 {
		return fmt.Errorf("positional: non-positive anchor length %d: %w", c.AnchorLength, ErrConfig)
	}
	if c.MaxExpectedBreakendLengthMultiple <= 0 {
		return fmt.Errorf("positional: non-positive breakend length multiple %v: %w", c.MaxExpectedBreakendLengthMultiple, ErrConfig)
	}
	if c.RetainWidthMultiple <= 0 || c.FlushWidthMultiple <= 0 {
		return fmt.Errorf("positional: non-positive retain/flush width multiple %v/%v: %w", c.RetainWidthMultiple, c.FlushWidthMultiple, ErrConfig)
	}
	if c.QualScale < 0 {
		return fmt.Errorf("positional: negative quality scale %v: %w", c.QualScale, ErrConfig)
	}
	return nil
}

func (c *Config) retainWidth() int { return int(c.RetainWidthMultiple * float64(c.FragmentSize)) }
func (c *Config) flushWidth() int  { return int(c.FlushWidthMultiple * float64(c.FragmentSize)) }

// maxContigAnchorLength is the first width at which a node can no
// longer contribute to any contig anchor sequence.
func (c *Config) maxContigAnchorLength() int {
	return max(int(c.MaxExpectedBreakendLengthMultiple*float64(c.FragmentSize)), c.AnchorLength)
}

func (c *Config) misassemblyLength() int {
	positionalWidth := c.MaxEvidenceSupportIntervalWidth - c.MaxReadLength
	return int(c.MaxExpectedBreakendLengthMultiple*float64(c.FragmentSize)) + positionalWidth
}

func (c *Config) qualScale() float64 {
	if c.QualScale == 0 {
		return 1
	}
	return c.QualScale
}

// ContigStats summarises the most recently called contig for the stats
// sink.
type ContigStats struct {
	ContigNodes         int
	TruncatedNodes      int
	ContigStartPosition int
	StartAnchorNodes    int
	EndAnchorNodes      int
	Score               int
	EvidenceCount       int
}
