// Package configtext lexes and parses the LVM2 textual metadata format:
//
//	file    := item*
//	item    := IDENT '=' value | IDENT '{' item* '}'
//	value   := STRING | INT | '[' (value (',' value)*)? ']'
//
// It produces a generic tree of Int, String, Array, and Struct nodes, and
// a small set of accessors (ExpectStruct, ExpectMappedString, ...) that
// higher layers (pkg/vg) use to walk it without re-implementing traversal
// or error-context bookkeeping at every call site. Every accessor failure
// carries the dotted key path that led to it, so a malformed metadata
// area produces an error message pointing at the exact offending key
// rather than just "parse error".
package configtext
