package session

import (
	"sort"

	"github.com/simonjbeaumont/mirage-block-volume/pkg/types"
	"github.com/simonjbeaumont/mirage-block-volume/pkg/vg"
)

// ListPVs returns every physical volume in the session's current
// metadata, in the deterministic order vg.Metadata.PVOrder uses.
func (s *Session) ListPVs() []vg.Pv {
	meta := s.Snapshot()
	order := meta.PVOrder()
	out := make([]vg.Pv, 0, len(order))
	for _, name := range order {
		if pv, ok := meta.PVByName(name); ok {
			out = append(out, pv)
		}
	}
	return out
}

// ListLVs returns every logical volume in the session's current
// metadata, sorted by name for a stable listing order.
func (s *Session) ListLVs() []vg.Lv {
	meta := s.Snapshot()
	out := make([]vg.Lv, 0, len(meta.LVs))
	for _, lv := range meta.LVs {
		out = append(out, lv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Stat looks up a single LV by id.
func (s *Session) Stat(id types.Uuid) (vg.Lv, bool) {
	meta := s.Snapshot()
	lv, ok := meta.LVs[id]
	return lv, ok
}

// StatByName looks up a single LV by its display name.
func (s *Session) StatByName(name string) (vg.Lv, bool) {
	return s.Snapshot().LVByName(name)
}
