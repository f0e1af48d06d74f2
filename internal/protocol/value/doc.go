// Package value owns the self-describing value tree carried by RPC messages.
//
// Ownership boundary:
// - typed leaves (int8/int16/int32/string/null)
// - ordered composites (array, name->value table)
// - JSON dump/parse for diagnostics and text transports
//
// Tables keep insertion order and may repeat names; Lookup is linear and the
// first match wins.
package value
