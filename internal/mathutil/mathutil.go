// Package mathutil provides small numeric and slice helpers used by paging code.
package mathutil

import (
	"cmp"
	"slices"
)

// Integer is the set of built-in signed integer types.
type Integer interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64
}

// Clamp restricts a value to be within a specified range.
// Returns low if val < low, high if val > high, otherwise returns val.
func Clamp[T cmp.Ordered](val, low, high T) T {
	if val < low {
		return low
	}
	if val > high {
		return high
	}
	return val
}

// CeilDiv divides rounding up. A non-positive divisor yields 0.
func CeilDiv[T Integer](n, d T) T {
	if d <= 0 || n <= 0 {
		return 0
	}
	return (n + d - 1) / d
}

// Chunk splits items into consecutive groups of at most size elements.
// The groups share the backing array of items.
func Chunk[T any](items []T, size int) [][]T {
	if size < 1 || len(items) == 0 {
		return nil
	}
	chunks := make([][]T, 0, CeilDiv(len(items), size))
	for chunk := range slices.Chunk(items, size) {
		chunks = append(chunks, chunk)
	}
	return chunks
}

// PageWindow returns the [start, end) slice bounds of a 1-based page over total items.
// Pages past the end produce an empty window at total.
func PageWindow(page, pageSize, total int) (int, int) {
	if page < 1 || pageSize < 1 {
		return 0, 0
	}
	start := min((page-1)*pageSize, total)
	end := min(start+pageSize, total)
	return start, end
}
