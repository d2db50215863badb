// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package kmer provides 2-bit integer encoding of DNA k-mers and helpers
// for reconstructing base calls from k-mer paths.
package kmer

import "fmt"

// MaxK is the longest word length that fits a 2-bit packed uint64.
const MaxK = 32

var codeFor = [256]int8{
	'A': 0, 'a': 0,
	'C': 1, 'c': 1,
	'G': 2, 'g': 2,
	'T': 3, 't': 3,
}

var baseFor = [4]byte{'A', 'C', 'G', 'T'}

func init() {
	for i := range codeFor {
		switch i {
		case 'A', 'a', 'C', 'c', 'G', 'g', 'T', 't':
		default:
			codeFor[i] = -1
		}
	}
}

// Encode returns the packed representation of word. The first base of the
// word occupies the highest bits so that numeric ordering of encoded words
// matches lexicographic ordering of the words themselves.
func Encode(word []byte) (uint64, error) {
	if len(word) == 0 || len(word) > MaxK {
		return 0, fmt.Errorf("kmer: invalid word length: %d", len(word))
	}
	var enc uint64
	for _, b := range word {
		c := codeFor[b]
		if c < 0 {
			return 0, fmt.Errorf("kmer: invalid base: %q", b)
		}
		enc = enc<<2 | uint64(c)
	}
	return enc, nil
}

// MustEncode is like Encode but panics on error.
func MustEncode(word string) uint64 {
	enc, err := Encode([]byte(word))
	if err != nil {
		panic(err)
	}
	return enc
}

// Decode returns the word encoded by enc at word length k.
func Decode(enc uint64, k int) []byte {
	word := make([]byte, k)
	for i := k - 1; i >= 0; i-- {
		word[i] = baseFor[enc&3]
		enc >>= 2
	}
	return word
}

// LastBase returns the final base of the encoded word.
func LastBase(enc uint64) byte {
	return baseFor[enc&3]
}

// FirstBase returns the initial base of the encoded word at word length k.
func FirstBase(enc uint64, k int) byte {
	return baseFor[(enc>>uint(2*(k-1)))&3]
}

// IsSuccessor returns whether next can directly follow enc in a de Bruijn
// graph of word length k, that is whether the last k-1 bases of enc are
// the first k-1 bases of next.
func IsSuccessor(enc, next uint64, k int) bool {
	mask := uint64(1)<<uint(2*(k-1)) - 1
	return next>>2 == enc&mask
}

// Next returns the successor of enc obtained by shifting in the given
// base code (0-3) at word length k.
func Next(enc uint64, k int, code byte) uint64 {
	mask := uint64(1)<<uint(2*(k-1)) - 1
	return (enc&mask)<<2 | uint64(code&3)
}

// BaseCalls reconstructs the base sequence spelled by the given chain of
// k-mers overlapping by k-1 bases. The chain is not validated; callers
// wanting validation should check IsSuccessor over adjacent pairs.
func BaseCalls(chain []uint64, k int) []byte {
	if len(chain) == 0 {
		return nil
	}
	bases := make([]byte, 0, k+len(chain)-1)
	bases = append(bases, Decode(chain[0], k)...)
	for _, enc := range chain[1:] {
		bases = append(bases, LastBase(enc))
	}
	return bases
}
