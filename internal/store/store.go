// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package store provides key marshaling and kv compare functions for
// the on-disk called-contig database.
package store

import (
	"bytes"
	"encoding/binary"
)

// ContigKey is the ordering key of a persisted contig record.
type ContigKey struct {
	ReferenceIndex int64
	Start          int64
	End            int64
	Kind           int8
	// Seq is the emission sequence number, ensuring key uniqueness.
	Seq int64
}

var order = binary.BigEndian

// MarshalInt returns a slice encoding n as an int64.
func MarshalInt(n int) []byte {
	var buf [8]byte
	order.PutUint64(buf[:], uint64(n))
	return buf[:]
}

func MarshalContigKey(k ContigKey) []byte {
	var (
		buf bytes.Buffer
		b   [8]byte
	)
	order.PutUint64(b[:], uint64(k.ReferenceIndex))
	buf.Write(b[:])
	order.PutUint64(b[:], uint64(k.Start))
	buf.Write(b[:])
	order.PutUint64(b[:], uint64(k.End))
	buf.Write(b[:])
	buf.WriteByte(byte(k.Kind))
	order.PutUint64(b[:], uint64(k.Seq))
	buf.Write(b[:])
	return buf.Bytes()
}

func UnmarshalContigKey(data []byte) ContigKey {
	var k ContigKey
	n64 := binary.Size(uint64(0))
	k.ReferenceIndex = int64(order.Uint64(data[:n64]))
	data = data[n64:]
	k.Start = int64(order.Uint64(data[:n64]))
	data = data[n64:]
	k.End = int64(order.Uint64(data[:n64]))
	data = data[n64:]
	k.Kind = int8(data[0])
	data = data[1:]
	k.Seq = int64(order.Uint64(data[:n64]))
	return k
}

// ByPosition is a kv compare function, ordering by reference index,
// anchor position, contig kind and emission order.
func ByPosition(x, y []byte) int {
	if bytes.Equal(x, y) {
		return 0
	}

	kx := UnmarshalContigKey(x)
	ky := UnmarshalContigKey(y)

	switch {
	case kx.ReferenceIndex < ky.ReferenceIndex:
		return -1
	case kx.ReferenceIndex > ky.ReferenceIndex:
		return 1
	}

	// Sort by left position, with wider contigs first.
	switch {
	case kx.Start < ky.Start:
		return -1
	case kx.Start > ky.Start:
		return 1
	}
	switch {
	case kx.End > ky.End:
		return -1
	case kx.End < ky.End:
		return 1
	}
	switch {
	case kx.Kind < ky.Kind:
		return -1
	case kx.Kind > ky.Kind:
		return 1
	}

	// Ensure key uniqueness.
	switch {
	case kx.Seq < ky.Seq:
		return -1
	case kx.Seq > ky.Seq:
		return 1
	}

	panic("unreachable")
}
