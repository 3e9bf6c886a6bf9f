// Package allocator implements the free-space model for a volume group:
// a canonicalized types.Allocation representing unused physical extents,
// with merge, subtract, and first-fit find operations. Nothing here
// mutates its inputs; every operation returns a fresh, canonical
// Allocation and leaves the caller's copy untouched.
package allocator
