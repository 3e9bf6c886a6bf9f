package vg

import (
	"fmt"

	"github.com/simonjbeaumont/mirage-block-volume/pkg/configtext"
	"github.com/simonjbeaumont/mirage-block-volume/pkg/segment"
	"github.com/simonjbeaumont/mirage-block-volume/pkg/types"
)

// generatorComment is the leading "# Generated by ..." line every
// emitted metadata text carries, matching the header real lvm tools
// leave so the file is recognizable as machine-written.
const generatorComment = "# Generated by MLVM version 0.1: "

// EmitText renders meta as LVM2 textual metadata, in the fixed key
// order real lvm tools (and this system) always write: the named vg
// block first, then the document-level contents/version/description/
// creation_host/creation_time block.
func EmitText(meta Metadata) string {
	root := configtext.Struct(
		configtext.F(meta.Name, emitVg(meta)),
		configtext.F("contents", configtext.Str("Text Format Volume Group")),
		configtext.F("version", configtext.Int(1)),
		configtext.F("description", configtext.Str("")),
		configtext.F("creation_host", configtext.Str(meta.CreationHost)),
		configtext.F("creation_time", configtext.Int(meta.CreationTime)),
	)
	return generatorComment + "\n" + configtext.Emit(root)
}

func emitVg(meta Metadata) configtext.Node {
	pvFields := make([]configtext.Field, 0, len(meta.PVs))
	for i, pv := range meta.PVs {
		pvFields = append(pvFields, configtext.F(fmt.Sprintf("pv%d", i), emitPv(pv)))
	}

	lvFields := make([]configtext.Field, 0, len(meta.LVs))
	for _, lv := range orderedLVs(meta) {
		lvFields = append(lvFields, configtext.F(lv.Name, emitLv(lv)))
	}

	return configtext.Struct(
		configtext.F("id", configtext.Str(meta.ID.Bare())),
		configtext.F("seqno", configtext.Int(int64(meta.Seqno))),
		configtext.F("status", emitStringArray(statusStrings(meta.Status))),
		configtext.F("extent_size", configtext.Int(int64(meta.ExtentSize))),
		configtext.F("max_lv", configtext.Int(int64(meta.MaxLV))),
		configtext.F("max_pv", configtext.Int(int64(meta.MaxPV))),
		configtext.F("physical_volumes", configtext.Struct(pvFields...)),
		configtext.F("logical_volumes", configtext.Struct(lvFields...)),
	)
}

// orderedLVs returns meta's LVs sorted by name, so EmitText is
// deterministic even though Metadata.LVs is a map.
func orderedLVs(meta Metadata) []Lv {
	out := make([]Lv, 0, len(meta.LVs))
	for _, lv := range meta.LVs {
		out = append(out, lv)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1].Name > out[j].Name; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

func emitPv(pv Pv) configtext.Node {
	status := make([]string, len(pv.Status))
	for i, s := range pv.Status {
		status[i] = string(s)
	}
	return configtext.Struct(
		configtext.F("id", configtext.Str(pv.ID.Bare())),
		configtext.F("device", configtext.Str(string(pv.Name))),
		configtext.F("status", emitStringArray(status)),
		configtext.F("pe_start", configtext.Int(int64(pv.PeStart))),
		configtext.F("pe_count", configtext.Int(int64(pv.PeCount))),
	)
}

func emitLv(lv Lv) configtext.Node {
	fields := []configtext.Field{
		configtext.F("id", configtext.Str(lv.ID.Bare())),
		configtext.F("status", emitStringArray(lvStatusStrings(lv.Status))),
	}
	if len(lv.Tags) > 0 {
		tagStrs := make([]string, len(lv.Tags))
		for i, t := range lv.Tags {
			tagStrs[i] = t.String()
		}
		fields = append(fields, configtext.F("tags", emitStringArray(tagStrs)))
	}
	fields = append(fields, configtext.F("segment_count", configtext.Int(int64(len(lv.Segments)))))
	for i, seg := range lv.Segments {
		fields = append(fields, configtext.F(fmt.Sprintf("segment%d", i+1), emitSegment(seg)))
	}
	return configtext.Struct(fields...)
}

func emitSegment(seg segment.Segment) configtext.Node {
	fields := []configtext.Field{
		configtext.F("start_extent", configtext.Int(int64(seg.StartExtent))),
		configtext.F("extent_count", configtext.Int(int64(seg.ExtentCount))),
		configtext.F("type", configtext.Str("striped")),
	}
	switch seg.Kind {
	case segment.KindLinear:
		fields = append(fields,
			configtext.F("stripe_count", configtext.Int(1)),
			configtext.F("stripes", configtext.Arr(
				configtext.Str(string(seg.Linear.PvName)),
				configtext.Int(int64(seg.Linear.PvStartExtent)),
			)),
		)
	case segment.KindStriped:
		stripeNodes := make([]configtext.Node, 0, len(seg.Stripes)*2)
		for _, st := range seg.Stripes {
			stripeNodes = append(stripeNodes, configtext.Str(string(st.PvName)), configtext.Int(int64(st.PvStartExtent)))
		}
		fields = append(fields,
			configtext.F("stripe_count", configtext.Int(int64(len(seg.Stripes)))),
			configtext.F("stripe_size", configtext.Int(int64(seg.StripeSize))),
			configtext.F("stripes", configtext.Arr(stripeNodes...)),
		)
	}
	return configtext.Struct(fields...)
}

func emitStringArray(values []string) configtext.Node {
	nodes := make([]configtext.Node, len(values))
	for i, v := range values {
		nodes[i] = configtext.Str(v)
	}
	return configtext.Arr(nodes...)
}

func statusStrings(status []types.VgStatus) []string {
	out := make([]string, len(status))
	for i, s := range status {
		out[i] = string(s)
	}
	return out
}

func lvStatusStrings(status []types.LvStatus) []string {
	out := make([]string, len(status))
	for i, s := range status {
		out[i] = string(s)
	}
	return out
}

// ParseText parses LVM2 textual metadata back into a Metadata value.
// ParseText(EmitText(m)) reproduces m, modulo LV ordering (Metadata.LVs
// is a map; EmitText sorts by name for determinism but Parse recovers
// the same set regardless of on-disk order), with two exceptions: the
// text carries no FreeSpace, so the result's FreeSpace is empty, and
// the LV blocks carry no creation host or time, so each Lv's
// CreationHost and CreationTime come back zero.
func ParseText(text string) (Metadata, error) {
	root, err := configtext.Parse(text)
	if err != nil {
		return Metadata{}, Msgf("vg: parse metadata: %v", err)
	}

	var vgName string
	var vgNode configtext.Node
	found := false
	for _, f := range root.Struct {
		if f.Value.Kind == configtext.KindStruct && f.Key != "physical_volumes" && f.Key != "logical_volumes" {
			vgName, vgNode, found = f.Key, f.Value, true
			break
		}
	}
	if !found {
		return Metadata{}, Msgf("vg: parse metadata: no volume group block found")
	}

	creationHost, err := root.ExpectMappedString("creation_host")
	if err != nil {
		return Metadata{}, Msgf("vg: parse metadata: %v", err)
	}
	creationTime, err := root.ExpectMappedInt("creation_time")
	if err != nil {
		return Metadata{}, Msgf("vg: parse metadata: %v", err)
	}

	meta, err := parseVg(vgName, vgNode)
	if err != nil {
		return Metadata{}, Msgf("vg: parse metadata: %s: %v", vgName, err)
	}
	meta.CreationHost = creationHost
	meta.CreationTime = creationTime
	return meta, nil
}

func parseVg(name string, n configtext.Node) (Metadata, error) {
	idStr, err := n.ExpectMappedString("id")
	if err != nil {
		return Metadata{}, err
	}
	id, err := types.ParseUuid(idStr)
	if err != nil {
		return Metadata{}, fmt.Errorf("id: %w", err)
	}
	seqno, err := n.ExpectMappedInt("seqno")
	if err != nil {
		return Metadata{}, err
	}
	statusNodes, err := n.ExpectMappedArray("status")
	if err != nil {
		return Metadata{}, err
	}
	status, err := parseVgStatus(statusNodes)
	if err != nil {
		return Metadata{}, fmt.Errorf("status: %w", err)
	}
	extentSize, err := n.ExpectMappedInt("extent_size")
	if err != nil {
		return Metadata{}, err
	}
	maxLV, err := n.ExpectMappedInt("max_lv")
	if err != nil {
		return Metadata{}, err
	}
	maxPV, err := n.ExpectMappedInt("max_pv")
	if err != nil {
		return Metadata{}, err
	}

	pvFields, err := n.ExpectMappedStruct("physical_volumes")
	if err != nil {
		return Metadata{}, err
	}
	pvs := make([]Pv, 0, len(pvFields))
	for _, f := range pvFields {
		pv, err := parsePv(f.Value)
		if err != nil {
			return Metadata{}, fmt.Errorf("physical_volumes.%s: %w", f.Key, err)
		}
		pvs = append(pvs, pv)
	}

	lvFields, err := n.ExpectMappedStruct("logical_volumes")
	if err != nil {
		return Metadata{}, err
	}
	lvs := make(map[types.Uuid]Lv, len(lvFields))
	for _, f := range lvFields {
		lv, err := parseLv(f.Key, f.Value)
		if err != nil {
			return Metadata{}, fmt.Errorf("logical_volumes.%s: %w", f.Key, err)
		}
		lvs[lv.ID] = lv
	}

	return Metadata{
		Name:       name,
		ID:         id,
		Seqno:      uint32(seqno),
		Status:     status,
		ExtentSize: uint64(extentSize),
		MaxLV:      uint32(maxLV),
		MaxPV:      uint32(maxPV),
		PVs:        pvs,
		LVs:        lvs,
	}, nil
}

func parseVgStatus(nodes []configtext.Node) ([]types.VgStatus, error) {
	out := make([]types.VgStatus, len(nodes))
	for i, n := range nodes {
		s, err := n.String()
		if err != nil {
			return nil, err
		}
		out[i] = types.VgStatus(s)
	}
	return out, nil
}

func parseLvStatus(nodes []configtext.Node) ([]types.LvStatus, error) {
	out := make([]types.LvStatus, len(nodes))
	for i, n := range nodes {
		s, err := n.String()
		if err != nil {
			return nil, err
		}
		out[i] = types.LvStatus(s)
	}
	return out, nil
}

func parsePvStatus(nodes []configtext.Node) ([]types.PvStatus, error) {
	out := make([]types.PvStatus, len(nodes))
	for i, n := range nodes {
		s, err := n.String()
		if err != nil {
			return nil, err
		}
		out[i] = types.PvStatus(s)
	}
	return out, nil
}

func parsePv(n configtext.Node) (Pv, error) {
	idStr, err := n.ExpectMappedString("id")
	if err != nil {
		return Pv{}, err
	}
	id, err := types.ParseUuid(idStr)
	if err != nil {
		return Pv{}, err
	}
	deviceStr, err := n.ExpectMappedString("device")
	if err != nil {
		return Pv{}, err
	}
	name, err := types.NewPvName(deviceStr)
	if err != nil {
		return Pv{}, err
	}
	statusNodes, err := n.ExpectMappedArray("status")
	if err != nil {
		return Pv{}, err
	}
	status, err := parsePvStatus(statusNodes)
	if err != nil {
		return Pv{}, err
	}
	peStart, err := n.ExpectMappedInt("pe_start")
	if err != nil {
		return Pv{}, err
	}
	peCount, err := n.ExpectMappedInt("pe_count")
	if err != nil {
		return Pv{}, err
	}
	return Pv{
		ID:      id,
		Name:    name,
		Status:  status,
		PeStart: uint64(peStart),
		PeCount: uint64(peCount),
	}, nil
}

func parseLv(name string, n configtext.Node) (Lv, error) {
	idStr, err := n.ExpectMappedString("id")
	if err != nil {
		return Lv{}, err
	}
	id, err := types.ParseUuid(idStr)
	if err != nil {
		return Lv{}, err
	}
	statusNodes, err := n.ExpectMappedArray("status")
	if err != nil {
		return Lv{}, err
	}
	status, err := parseLvStatus(statusNodes)
	if err != nil {
		return Lv{}, err
	}

	var tags []types.Tag
	if tagNode, ok := n.Get("tags"); ok {
		tagNodes, err := tagNode.ExpectArray()
		if err != nil {
			return Lv{}, fmt.Errorf("tags: %w", err)
		}
		for _, tn := range tagNodes {
			s, err := tn.String()
			if err != nil {
				return Lv{}, fmt.Errorf("tags: %w", err)
			}
			tag, err := types.NewTag(s)
			if err != nil {
				return Lv{}, fmt.Errorf("tags: %w", err)
			}
			tags = append(tags, tag)
		}
	}

	segCount, err := n.ExpectMappedInt("segment_count")
	if err != nil {
		return Lv{}, err
	}
	segs := make(segment.List, 0, segCount)
	for i := int64(1); i <= segCount; i++ {
		key := fmt.Sprintf("segment%d", i)
		segNode, ok := n.Get(key)
		if !ok {
			return Lv{}, fmt.Errorf("missing %s", key)
		}
		seg, err := parseSegment(segNode)
		if err != nil {
			return Lv{}, fmt.Errorf("%s: %w", key, err)
		}
		segs = append(segs, seg)
	}

	return Lv{
		ID:       id,
		Name:     name,
		Tags:     tags,
		Status:   status,
		Segments: segs,
	}, nil
}

func parseSegment(n configtext.Node) (segment.Segment, error) {
	start, err := n.ExpectMappedInt("start_extent")
	if err != nil {
		return segment.Segment{}, err
	}
	count, err := n.ExpectMappedInt("extent_count")
	if err != nil {
		return segment.Segment{}, err
	}
	stripeCount, err := n.ExpectMappedInt("stripe_count")
	if err != nil {
		return segment.Segment{}, err
	}
	stripeNodes, err := n.ExpectMappedArray("stripes")
	if err != nil {
		return segment.Segment{}, err
	}
	if len(stripeNodes)%2 != 0 {
		return segment.Segment{}, fmt.Errorf("stripes: odd element count")
	}

	parseStripe := func(i int) (types.PvName, uint64, error) {
		nameStr, err := stripeNodes[i].String()
		if err != nil {
			return "", 0, fmt.Errorf("stripes[%d]: %w", i, err)
		}
		name, err := types.NewPvName(nameStr)
		if err != nil {
			return "", 0, fmt.Errorf("stripes[%d]: %w", i, err)
		}
		offset, err := stripeNodes[i+1].Int64()
		if err != nil {
			return "", 0, fmt.Errorf("stripes[%d]: %w", i+1, err)
		}
		return name, uint64(offset), nil
	}

	if stripeCount == 1 {
		name, offset, err := parseStripe(0)
		if err != nil {
			return segment.Segment{}, err
		}
		return segment.Segment{
			StartExtent: uint64(start),
			ExtentCount: uint64(count),
			Kind:        segment.KindLinear,
			Linear:      segment.LinearSegment{PvName: name, PvStartExtent: offset},
		}, nil
	}

	stripeSize, err := n.ExpectMappedInt("stripe_size")
	if err != nil {
		return segment.Segment{}, err
	}
	stripes := make([]segment.Stripe, 0, stripeCount)
	for i := 0; i < len(stripeNodes); i += 2 {
		name, offset, err := parseStripe(i)
		if err != nil {
			return segment.Segment{}, err
		}
		stripes = append(stripes, segment.Stripe{PvName: name, PvStartExtent: offset})
	}
	return segment.Segment{
		StartExtent: uint64(start),
		ExtentCount: uint64(count),
		Kind:        segment.KindStriped,
		StripeSize:  uint64(stripeSize),
		Stripes:     stripes,
	}, nil
}
