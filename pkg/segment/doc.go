// Package segment implements an LV's segment map: the sorted, gapless
// list of logical-extent ranges that map a logical volume onto physical
// extents, either linearly (one PV run per segment) or striped (parsed
// and re-emitted, never translated for I/O).
//
// The map supports the four operations pkg/vg and pkg/volume build on:
// FindExtent (logical extent -> owning segment, binary search),
// ToAllocation (segment list -> the physical extents it consumes),
// ReduceSizeTo (truncate to a new logical extent count), and Linear
// (free-space allocation -> a fresh segment list starting at a given
// logical extent).
package segment
