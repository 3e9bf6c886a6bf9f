package configtext

import "testing"

func TestParseScalarsAndArray(t *testing.T) {
	src := `
# a comment
id = "abc-123"
seqno = 4
flags = ["READ", "WRITE"]
`
	root, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	id, err := root.ExpectMappedString("id")
	if err != nil || id != "abc-123" {
		t.Fatalf("id = %q, %v", id, err)
	}
	seqno, err := root.ExpectMappedInt("seqno")
	if err != nil || seqno != 4 {
		t.Fatalf("seqno = %d, %v", seqno, err)
	}
	flags, err := root.ExpectMappedArray("flags")
	if err != nil || len(flags) != 2 {
		t.Fatalf("flags = %v, %v", flags, err)
	}
}

func TestParseNestedStruct(t *testing.T) {
	src := `
vg0 {
	id = "xyz"
	physical_volumes {
		pv0 {
			pe_start = 2048
		}
	}
}
`
	root, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	vg, err := root.ExpectMappedStruct("vg0")
	if err != nil {
		t.Fatalf("vg0: %v", err)
	}
	vgNode := Node{Kind: KindStruct, Struct: vg}
	pvs, err := vgNode.ExpectMappedStruct("physical_volumes")
	if err != nil {
		t.Fatalf("physical_volumes: %v", err)
	}
	pvsNode := Node{Kind: KindStruct, Struct: pvs}
	pv0, err := pvsNode.ExpectMappedStruct("pv0")
	if err != nil {
		t.Fatalf("pv0: %v", err)
	}
	pv0Node := Node{Kind: KindStruct, Struct: pv0}
	peStart, err := pv0Node.ExpectMappedInt("pe_start")
	if err != nil || peStart != 2048 {
		t.Fatalf("pe_start = %d, %v", peStart, err)
	}
}

func TestParseStringEscapes(t *testing.T) {
	src := `s = "a\"b\\c"`
	root, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	s, err := root.ExpectMappedString("s")
	if err != nil {
		t.Fatalf("s: %v", err)
	}
	if want := `a"b\c`; s != want {
		t.Fatalf("s = %q, want %q", s, want)
	}
}

func TestMissingKeyErrorHasPath(t *testing.T) {
	root, _ := Parse(`id = "x"`)
	_, err := root.ExpectMappedInt("seqno")
	if err == nil {
		t.Fatal("ExpectMappedInt() succeeded, want error")
	}
	if err.Error() != "seqno: missing key" {
		t.Fatalf("error = %q, want context path", err.Error())
	}
}

func TestRoundTripEmit(t *testing.T) {
	src := "id = \"abc\"\nseqno = 4\nstripes = [\"pv0\", 0, \"pv1\", 8]\n"
	root, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	reparsed, err := Parse(Emit(root))
	if err != nil {
		t.Fatalf("Parse(Emit()) error = %v", err)
	}
	if len(reparsed.Struct) != len(root.Struct) {
		t.Fatalf("round trip changed field count: %d vs %d", len(reparsed.Struct), len(root.Struct))
	}
}

func TestMapExpectedMappedArray(t *testing.T) {
	root, _ := Parse(`nums = [1, 2, 3]`)
	out, err := MapExpectedMappedArray(root, "nums", func(n Node) (int64, error) { return n.Int64() })
	if err != nil {
		t.Fatalf("MapExpectedMappedArray() error = %v", err)
	}
	if len(out) != 3 || out[2] != 3 {
		t.Fatalf("out = %v", out)
	}
}
