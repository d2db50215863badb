// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package positional

import (
	"errors"
	"fmt"
)

var (
	// ErrInvariant reports a fatal graph invariant violation: node
	// uniqueness broken, input out of order or a memoization self-check
	// failure. The assembly stream terminates on ErrInvariant.
	ErrInvariant = errors.New("invariant violation")

	// ErrOutOfOrder reports input delivered out of first-start order.
	// It wraps ErrInvariant.
	ErrOutOfOrder = fmt.Errorf("input out of order: %w", ErrInvariant)

	// ErrConfig reports a missing or malformed configuration option at
	// construction.
	ErrConfig = errors.New("invalid configuration")
)
