package configtext

import (
	"fmt"
	"strconv"
	"strings"
)

// Emit renders a Struct node back to LVM2 textual config form, indenting
// nested structs by one tab per level, matching the layout `lvm` itself
// writes.
func Emit(n Node) string {
	var b strings.Builder
	emitFields(&b, n.Struct, 0)
	return b.String()
}

func emitFields(b *strings.Builder, fields []Field, depth int) {
	indent := strings.Repeat("\t", depth)
	for _, f := range fields {
		switch f.Value.Kind {
		case KindStruct:
			fmt.Fprintf(b, "%s%s {\n", indent, f.Key)
			emitFields(b, f.Value.Struct, depth+1)
			fmt.Fprintf(b, "%s}\n", indent)
		default:
			fmt.Fprintf(b, "%s%s = %s\n", indent, f.Key, emitValue(f.Value))
		}
	}
}

func emitValue(n Node) string {
	switch n.Kind {
	case KindInt:
		return strconv.FormatInt(n.Int, 10)
	case KindString:
		return emitString(n.Str)
	case KindArray:
		parts := make([]string, len(n.Array))
		for i, v := range n.Array {
			parts[i] = emitValue(v)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return ""
	}
}

func emitString(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, c := range s {
		switch c {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		default:
			b.WriteRune(c)
		}
	}
	b.WriteByte('"')
	return b.String()
}
