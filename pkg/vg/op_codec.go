package vg

import (
	"fmt"

	"github.com/simonjbeaumont/mirage-block-volume/pkg/configtext"
	"github.com/simonjbeaumont/mirage-block-volume/pkg/segment"
	"github.com/simonjbeaumont/mirage-block-volume/pkg/types"
)

// EncodeOp renders op as a self-describing configtext struct, the
// redo log's on-disk record format for a single queued mutation (see
// pkg/redolog). It reuses the same lexer/parser as metadata text
// instead of a separate binary codec, so a record can be inspected or
// hand-repaired with the same tools that read metadata text.
func EncodeOp(op Op) configtext.Node {
	switch o := op.(type) {
	case LvCreate:
		return configtext.Struct(
			configtext.F("op", configtext.Str("lv_create")),
			configtext.F("lv", encodeLv(o.Lv)),
		)
	case LvExpand:
		return configtext.Struct(
			configtext.F("op", configtext.Str("lv_expand")),
			configtext.F("id", configtext.Str(o.ID.Bare())),
			configtext.F("segments", encodeSegmentList(o.Segments)),
		)
	case LvReduce:
		return configtext.Struct(
			configtext.F("op", configtext.Str("lv_reduce")),
			configtext.F("id", configtext.Str(o.ID.Bare())),
			configtext.F("new_extent_count", configtext.Int(int64(o.NewExtentCount))),
		)
	case LvTransfer:
		return configtext.Struct(
			configtext.F("op", configtext.Str("lv_transfer")),
			configtext.F("src_id", configtext.Str(o.SrcID.Bare())),
			configtext.F("dst_id", configtext.Str(o.DstID.Bare())),
			configtext.F("segments", encodeSegmentList(o.Segments)),
		)
	case LvRemove:
		return configtext.Struct(
			configtext.F("op", configtext.Str("lv_remove")),
			configtext.F("id", configtext.Str(o.ID.Bare())),
		)
	case LvRename:
		return configtext.Struct(
			configtext.F("op", configtext.Str("lv_rename")),
			configtext.F("id", configtext.Str(o.ID.Bare())),
			configtext.F("new_name", configtext.Str(o.NewName)),
		)
	case LvAddTag:
		return configtext.Struct(
			configtext.F("op", configtext.Str("lv_add_tag")),
			configtext.F("id", configtext.Str(o.ID.Bare())),
			configtext.F("tag", configtext.Str(o.Tag.String())),
		)
	case LvRemoveTag:
		return configtext.Struct(
			configtext.F("op", configtext.Str("lv_remove_tag")),
			configtext.F("id", configtext.Str(o.ID.Bare())),
			configtext.F("tag", configtext.Str(o.Tag.String())),
		)
	case LvSetStatus:
		return configtext.Struct(
			configtext.F("op", configtext.Str("lv_set_status")),
			configtext.F("id", configtext.Str(o.ID.Bare())),
			configtext.F("status", emitStringArray(lvStatusStrings(o.Status))),
		)
	default:
		panic(fmt.Sprintf("vg: EncodeOp: unknown op type %T", op))
	}
}

// DecodeOp parses a configtext struct produced by EncodeOp back into an
// Op.
func DecodeOp(n configtext.Node) (Op, error) {
	tag, err := n.ExpectMappedString("op")
	if err != nil {
		return nil, err
	}
	switch tag {
	case "lv_create":
		lvNode, err := n.ExpectMappedStruct("lv")
		if err != nil {
			return nil, err
		}
		lv, err := decodeLv(configtext.Node{Kind: configtext.KindStruct, Struct: lvNode})
		if err != nil {
			return nil, fmt.Errorf("lv_create: %w", err)
		}
		return LvCreate{Lv: lv}, nil

	case "lv_expand":
		id, err := decodeOpID(n)
		if err != nil {
			return nil, err
		}
		segs, err := decodeOpSegments(n)
		if err != nil {
			return nil, fmt.Errorf("lv_expand: %w", err)
		}
		return LvExpand{ID: id, Segments: segs}, nil

	case "lv_reduce":
		id, err := decodeOpID(n)
		if err != nil {
			return nil, err
		}
		newCount, err := n.ExpectMappedInt("new_extent_count")
		if err != nil {
			return nil, fmt.Errorf("lv_reduce: %w", err)
		}
		return LvReduce{ID: id, NewExtentCount: uint64(newCount)}, nil

	case "lv_transfer":
		srcStr, err := n.ExpectMappedString("src_id")
		if err != nil {
			return nil, fmt.Errorf("lv_transfer: %w", err)
		}
		srcID, err := types.ParseUuid(srcStr)
		if err != nil {
			return nil, fmt.Errorf("lv_transfer: src_id: %w", err)
		}
		dstStr, err := n.ExpectMappedString("dst_id")
		if err != nil {
			return nil, fmt.Errorf("lv_transfer: %w", err)
		}
		dstID, err := types.ParseUuid(dstStr)
		if err != nil {
			return nil, fmt.Errorf("lv_transfer: dst_id: %w", err)
		}
		segs, err := decodeOpSegments(n)
		if err != nil {
			return nil, fmt.Errorf("lv_transfer: %w", err)
		}
		return LvTransfer{SrcID: srcID, DstID: dstID, Segments: segs}, nil

	case "lv_remove":
		id, err := decodeOpID(n)
		if err != nil {
			return nil, err
		}
		return LvRemove{ID: id}, nil

	case "lv_rename":
		id, err := decodeOpID(n)
		if err != nil {
			return nil, err
		}
		newName, err := n.ExpectMappedString("new_name")
		if err != nil {
			return nil, fmt.Errorf("lv_rename: %w", err)
		}
		return LvRename{ID: id, NewName: newName}, nil

	case "lv_add_tag", "lv_remove_tag":
		id, err := decodeOpID(n)
		if err != nil {
			return nil, err
		}
		tagStr, err := n.ExpectMappedString("tag")
		if err != nil {
			return nil, fmt.Errorf("%s: %w", tag, err)
		}
		t, err := types.NewTag(tagStr)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", tag, err)
		}
		if tag == "lv_add_tag" {
			return LvAddTag{ID: id, Tag: t}, nil
		}
		return LvRemoveTag{ID: id, Tag: t}, nil

	case "lv_set_status":
		id, err := decodeOpID(n)
		if err != nil {
			return nil, err
		}
		statusNodes, err := n.ExpectMappedArray("status")
		if err != nil {
			return nil, fmt.Errorf("lv_set_status: %w", err)
		}
		status, err := parseLvStatus(statusNodes)
		if err != nil {
			return nil, fmt.Errorf("lv_set_status: %w", err)
		}
		return LvSetStatus{ID: id, Status: status}, nil

	default:
		return nil, fmt.Errorf("vg: DecodeOp: unknown op tag %q", tag)
	}
}

func decodeOpID(n configtext.Node) (types.Uuid, error) {
	s, err := n.ExpectMappedString("id")
	if err != nil {
		return types.Uuid{}, err
	}
	return types.ParseUuid(s)
}

func decodeOpSegments(n configtext.Node) (segment.List, error) {
	segFields, err := n.ExpectMappedStruct("segments")
	if err != nil {
		return nil, err
	}
	out := make(segment.List, 0, len(segFields))
	for _, f := range segFields {
		seg, err := parseSegment(f.Value)
		if err != nil {
			return nil, fmt.Errorf("segments.%s: %w", f.Key, err)
		}
		out = append(out, seg)
	}
	return out, nil
}

func encodeLv(lv Lv) configtext.Node {
	fields := []configtext.Field{
		configtext.F("id", configtext.Str(lv.ID.Bare())),
		configtext.F("name", configtext.Str(lv.Name)),
		configtext.F("status", emitStringArray(lvStatusStrings(lv.Status))),
		configtext.F("creation_host", configtext.Str(lv.CreationHost)),
		configtext.F("creation_time", configtext.Int(lv.CreationTime)),
	}
	if len(lv.Tags) > 0 {
		tagStrs := make([]string, len(lv.Tags))
		for i, t := range lv.Tags {
			tagStrs[i] = t.String()
		}
		fields = append(fields, configtext.F("tags", emitStringArray(tagStrs)))
	}
	fields = append(fields, configtext.F("segments", encodeSegmentList(lv.Segments)))
	return configtext.Struct(fields...)
}

func decodeLv(n configtext.Node) (Lv, error) {
	idStr, err := n.ExpectMappedString("id")
	if err != nil {
		return Lv{}, err
	}
	id, err := types.ParseUuid(idStr)
	if err != nil {
		return Lv{}, err
	}
	name, err := n.ExpectMappedString("name")
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
	creationHost, err := n.ExpectMappedString("creation_host")
	if err != nil {
		return Lv{}, err
	}
	creationTime, err := n.ExpectMappedInt("creation_time")
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
			t, err := types.NewTag(s)
			if err != nil {
				return Lv{}, fmt.Errorf("tags: %w", err)
			}
			tags = append(tags, t)
		}
	}

	segs, err := decodeOpSegments(n)
	if err != nil {
		return Lv{}, err
	}

	return Lv{
		ID:           id,
		Name:         name,
		Tags:         tags,
		Status:       status,
		CreationHost: creationHost,
		CreationTime: creationTime,
		Segments:     segs,
	}, nil
}

func encodeSegmentList(segs segment.List) configtext.Node {
	fields := make([]configtext.Field, len(segs))
	for i, s := range segs {
		fields[i] = configtext.F(fmt.Sprintf("segment%d", i+1), emitSegment(s))
	}
	return configtext.Struct(fields...)
}
