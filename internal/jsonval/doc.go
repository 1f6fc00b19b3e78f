// Package jsonval implements the minimal JSON value parser used for inbound
// protocol messages.
//
// The parser is a recursive-descent scanner over a string buffer producing a
// generic value tree: map[string]any for objects, []any for arrays, string,
// float64, bool and nil. There is no distinct integer type; callers convert
// explicitly where the protocol requires one (device indices, message ids).
//
// The parser is deliberately lenient. The protocol surface is narrow and
// trusted, so on any structural anomaly it returns whatever partial value it
// has built instead of failing. Use the As* helpers to extract typed values
// safely from the tree.
package jsonval
