// Package volume implements the logical-volume block device: the
// translation from LV-relative sector addresses to physical sector
// addresses on one of the volume group's underlying block devices.
//
// A Volume is deliberately thin. It holds no reference to the rest of
// a volume group's metadata — just the one Lv record it was connected
// to, its segment map, and a pe_start per PV name — so that the
// session's metadata pointer can be swapped out from under it by a
// concurrent update without invalidating an open Volume. Connect takes
// a snapshot; callers reconnect after an update if they need to see
// the Lv's latest segments (for instance after a resize).
//
// Only linear segments support I/O. A Volume connected to an LV with
// any striped segment returns an error from Read/Write rather than
// silently reading the wrong stripe; pkg/vg's metadata codec still
// emits and parses striped segments faithfully; this package just
// doesn't drive I/O through them.
package volume
