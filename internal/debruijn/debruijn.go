// Package debruijn generates minimal k-ary digit sequences that contain every
// n-digit code as a contiguous window. Transmitting the sequence instead of
// full back-to-back codes lets consecutive codes share n-1 digits of radio
// symbol time, which is what makes full-keyspace coverage practical.
package debruijn

import (
	"context"
	"fmt"

	"sesame-tx/internal/catalog"
)

// DefaultMemoryLimit bounds the generator's working set (one visited-code
// entry per possible code). 10000 covers binary n<=13 and trinary n<=8.
const DefaultMemoryLimit = 10000

// cancelCheckInterval is how many construction steps run between context
// polls, keeping cancellation latency bounded during the O(k^n) precompute.
const cancelCheckInterval = 64

// Generate builds a de Bruijn sequence over the alphabet {0..k-1} covering
// every n-digit code. The returned slice has length k^n + (n-1): read as a
// cyclic stream, each of the first k^n windows of n digits is a distinct
// code. Construction is greedy, always extending with the largest digit that
// produces an unvisited code; this tie-break is part of the package contract
// since downstream code ordering depends on it. The first n digits are zero.
//
// Generate refuses with catalog.ErrKeyspaceTooLarge when k^n exceeds
// memLimit (or the 32-bit code bound), and returns ctx.Err if cancelled.
func Generate(ctx context.Context, k, n int, memLimit int) ([]byte, error) {
	if k != 2 && k != 3 {
		return nil, fmt.Errorf("alphabet size %d not supported", k)
	}
	if n < 1 {
		return nil, fmt.Errorf("digit count %d not supported", n)
	}
	if (k == 2 && n > 31) || (k == 3 && n > 19) {
		return nil, fmt.Errorf("%d base-%d digits: %w", n, k, catalog.ErrKeyspaceTooLarge)
	}
	if memLimit <= 0 {
		memLimit = DefaultMemoryLimit
	}

	numCodes := 1
	for i := 0; i < n; i++ {
		numCodes *= k
	}
	if numCodes > memLimit {
		return nil, fmt.Errorf("%d codes exceed working-set limit %d: %w",
			numCodes, memLimit, catalog.ErrKeyspaceTooLarge)
	}

	divisor := numCodes / k // k^(n-1)
	seen := make([]bool, numCodes)
	seq := make([]byte, numCodes+n-1)

	// The sequence starts with the all-zero code: n zero digits, code 0
	// pre-marked as visited.
	seen[0] = true
	state := 0

	for i := n; i < numCodes; i++ {
		if i%cancelCheckInterval == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}

		// Shift the rolling n-digit register left by one digit, then try
		// candidates from the largest digit down.
		state = state % divisor * k
		appended := false
		for d := k - 1; d >= 0; d-- {
			next := state + d
			if !seen[next] {
				seen[next] = true
				seq[i] = byte(d)
				state = next
				appended = true
				break
			}
		}
		if !appended {
			// Exhaustion boundary: close the cycle with a zero digit.
			seq[i] = 0
		}
	}

	// The trailing n-1 digits wrap around to the all-zero prefix, completing
	// the final cyclic windows.
	return seq, nil
}
