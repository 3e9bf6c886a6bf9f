package vg

import (
	"github.com/simonjbeaumont/mirage-block-volume/pkg/segment"
	"github.com/simonjbeaumont/mirage-block-volume/pkg/types"
)

// Op is the tagged union of every mutation Apply understands. Each
// concrete type below implements it with an unexported marker method,
// a closed-sum-type-over-an-interface shape standing in for what a
// tagged Command enum would be in a language with one.
type Op interface {
	opTag() string
}

// LvCreate installs a brand-new Lv, including its chosen segments.
type LvCreate struct {
	Lv Lv
}

// LvExpand appends physical segments to an existing LV.
type LvExpand struct {
	ID       types.Uuid
	Segments segment.List
}

// LvReduce truncates an LV to a new logical extent count.
type LvReduce struct {
	ID             types.Uuid
	NewExtentCount uint64
}

// LvTransfer atomically moves segments from one LV to another, used to
// hand a freshly allocated run of extents to a different LV than the
// one that first reserved them.
type LvTransfer struct {
	SrcID, DstID types.Uuid
	Segments     segment.List
}

// LvRemove deletes an LV. Removing a missing id is a successful no-op.
type LvRemove struct {
	ID types.Uuid
}

// LvRename changes an LV's display name, keyed by id so replay is a
// no-op after the first apply.
type LvRename struct {
	ID      types.Uuid
	NewName string
}

// LvAddTag attaches a tag to an LV. Adding an already-present tag is a
// no-op.
type LvAddTag struct {
	ID  types.Uuid
	Tag types.Tag
}

// LvRemoveTag removes a tag from an LV. Removing an absent tag is a
// no-op.
type LvRemoveTag struct {
	ID  types.Uuid
	Tag types.Tag
}

// LvSetStatus replaces an LV's status flag set wholesale.
type LvSetStatus struct {
	ID     types.Uuid
	Status []types.LvStatus
}

func (LvCreate) opTag() string    { return "lv_create" }
func (LvExpand) opTag() string    { return "lv_expand" }
func (LvReduce) opTag() string    { return "lv_reduce" }
func (LvTransfer) opTag() string  { return "lv_transfer" }
func (LvRemove) opTag() string    { return "lv_remove" }
func (LvRename) opTag() string    { return "lv_rename" }
func (LvAddTag) opTag() string    { return "lv_add_tag" }
func (LvRemoveTag) opTag() string { return "lv_remove_tag" }
func (LvSetStatus) opTag() string { return "lv_set_status" }
