package pprobe

import "github.com/cespare/xxhash/v2"

// ComputeGUID derives the stable 64-bit function identifier spec.md's
// glossary describes ("GUID ... typically a hash of its mangled name")
// from a function's linkage name. It is a convenience for callers that
// don't already have a GUID from their own symbol table — cmd/pprobedump's
// --filter-func flag uses it to turn function names into the GUIDs
// BuildAddressIndex filters on; the encoder and decoder never call it
// themselves, since the wire format carries GUIDs as opaque uint64s.
func ComputeGUID(mangledName string) uint64 {
	return xxhash.Sum64String(mangledName)
}
